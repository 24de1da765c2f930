package fixups

import (
	"strings"
	"testing"
)

func TestConstantFixup(t *testing.T) {
	e := &Engine{constants: []ConstantRule{
		{Protocols: []string{"eth"}, Text: "Destination: Broadcast", Name: "eth.dst.bc"},
	}}
	got := e.Apply("eth", "", Attrs{Show: "Destination: Broadcast"})
	if got.Name != "eth.dst.bc" || got.Showname != "Destination: Broadcast" || got.Show != "" || got.Value != "" {
		t.Errorf("got %+v", got)
	}
}

func TestPrefixFixup(t *testing.T) {
	e := &Engine{prefixes: []PrefixRule{
		{Protocols: []string{"x"}, Text: "Header", Name: "x.header"},
	}}
	got := e.Apply("x", "", Attrs{Show: "Header:   payload-bytes"})
	if got.Name != "x.header" || got.Show != "payload-bytes" || got.Value != "payload-bytes" {
		t.Errorf("got %+v", got)
	}
}

func TestConstantShortCircuitsPrefix(t *testing.T) {
	e := &Engine{
		constants: []ConstantRule{{Protocols: []string{"x"}, Text: "A", Name: "x.a"}},
		prefixes:  []PrefixRule{{Protocols: []string{"x"}, Text: "A", Name: "x.wrong"}},
	}
	got := e.Apply("x", "", Attrs{Show: "A"})
	if got.Name != "x.a" {
		t.Errorf("constant did not short-circuit prefix: got %+v", got)
	}
}

func TestTemplateFixupNormalizesName(t *testing.T) {
	tpl, err := compileTemplate(templateElem{
		Protocol:    "x",
		Name:        `(?P<opt>.+)`,
		NameFormat:  "Foo  $(opt)-_baz",
		ValueFormat: "$(value)",
	})
	if err != nil {
		t.Fatalf("compileTemplate: %v", err)
	}
	e := &Engine{templates: []TemplateRule{tpl}}
	got := e.Apply("x", "", Attrs{Name: "whatever", Value: "payload"})
	if got.Name != "foo.whatever.baz" {
		t.Errorf("Name = %q, want %q", got.Name, "foo.whatever.baz")
	}
	if got.Show != "payload" || got.Value != "payload" {
		t.Errorf("Show/Value = %q/%q, want payload/payload", got.Show, got.Value)
	}
}

func TestTemplateImplicitKeysShadowCaptures(t *testing.T) {
	// The regex captures a group literally named "show" with a value that
	// differs from the node's actual Show attribute; the implicit "show"
	// key, appended after capture accumulation, must win.
	tpl, err := compileTemplate(templateElem{
		Protocol:   "x",
		Name:       `captured-(?P<show>[a-z]+)`,
		NameFormat: "$(show)",
	})
	if err != nil {
		t.Fatalf("compileTemplate: %v", err)
	}
	e := &Engine{templates: []TemplateRule{tpl}}
	got := e.Apply("x", "", Attrs{Name: "captured-fromcapture", Show: "actualshow"})
	if got.Name != "actualshow" {
		t.Errorf("Name = %q, want %q (implicit key should shadow the regex capture)", got.Name, "actualshow")
	}
}

func TestTemplateRequiresAllProvidedMatchersToMatch(t *testing.T) {
	tpl, err := compileTemplate(templateElem{
		Protocol:   "x",
		Name:       `^yes$`,
		Show:       `^also-yes$`,
		NameFormat: "matched",
	})
	if err != nil {
		t.Fatalf("compileTemplate: %v", err)
	}
	e := &Engine{templates: []TemplateRule{tpl}}

	got := e.Apply("x", "", Attrs{Name: "yes", Show: "no"})
	if got.Name == "matched" {
		t.Errorf("template matched despite one regex failing")
	}

	got = e.Apply("x", "", Attrs{Name: "yes", Show: "also-yes"})
	if got.Name != "matched" {
		t.Errorf("template did not match when all regexes matched")
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Foo  Bar-_baz": "foo.bar.baz",
		"already.lower": "already.lower",
		"trailing---":   "trailing",
	}
	for in, want := range cases {
		if got := normalizeName(in); got != want {
			t.Errorf("normalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuiltinRulesLoad(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	if len(e.constants) == 0 {
		t.Errorf("expected at least one built-in constant rule")
	}
	got := e.Apply("eth", "", Attrs{Show: "Destination: Broadcast"})
	if got.Name != "eth.dst.bc" {
		t.Errorf("built-in constant rule did not apply: got %+v", got)
	}
}

func TestLoadFileAugmentsBuiltins(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	before := len(e.constants)
	xmlDoc := `<fixups><constant protocol="zz" text="Hello" name="zz.hello"/></fixups>`
	if err := e.LoadFile(strings.NewReader(xmlDoc)); err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(e.constants) != before+1 {
		t.Errorf("constants count = %d, want %d", len(e.constants), before+1)
	}
}
