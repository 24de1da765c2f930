// Package fixups implements the declarative rewrite engine (spec.md S4.3,
// component D) that repairs a dissector node's name/show/showname/value
// attributes before the value typer sees them.
package fixups

import (
	"bytes"
	"compress/flate"
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// builtinMagic is the four-byte header preceding the deflate payload of the
// built-in rule file (spec.md S4.3).
var builtinMagic = [4]byte{0x53, 0x49, 0x47, 0x4D}

//go:embed builtin.bin
var builtinBytes []byte

// Attrs is the mutable subset of a tree node's attributes a fixup rule can
// rewrite. It is deliberately independent of the pdml package's TreeNode so
// that fixups has no dependency on packet-tree internals.
type Attrs struct {
	Name     string
	Showname string
	Show     string
	Value    string
}

// ConstantRule implements spec.md S4.3's "Constant" rule.
type ConstantRule struct {
	Protocols []string
	Text      string
	Name      string
}

// PrefixRule implements spec.md S4.3's "Prefix" rule.
type PrefixRule struct {
	Protocols []string
	Text      string
	Name      string
}

// TemplateRule implements spec.md S4.3's "Template" rule: up to five
// optional regex matchers and two format strings. A nil matcher matches
// everything.
type TemplateRule struct {
	Protocols   []string
	ParentName  *regexp.Regexp
	Name        *regexp.Regexp
	Show        *regexp.Regexp
	Showname    *regexp.Regexp
	Value       *regexp.Regexp
	NameFormat  string
	ValueFormat string
}

// Engine holds the loaded rule set and applies it to one node at a time.
type Engine struct {
	constants []ConstantRule
	prefixes  []PrefixRule
	templates []TemplateRule
}

// NewEngine returns an Engine loaded with the built-in rule set.
func NewEngine() (*Engine, error) {
	e := &Engine{}
	data, err := decodeBuiltin(builtinBytes)
	if err != nil {
		return nil, fmt.Errorf("fixups: decoding built-in rules: %w", err)
	}
	if err := e.loadXML(data); err != nil {
		return nil, fmt.Errorf("fixups: parsing built-in rules: %w", err)
	}
	return e, nil
}

// LoadFile augments the engine's rule set with an external rule file,
// appended after the built-ins (spec.md S4.3: "An optional external rule
// file, when provided, augments the built-ins").
func (e *Engine) LoadFile(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("fixups: reading rule file: %w", err)
	}
	return e.loadXML(data)
}

func decodeBuiltin(b []byte) ([]byte, error) {
	if len(b) < 4 || [4]byte{b[0], b[1], b[2], b[3]} != builtinMagic {
		return nil, fmt.Errorf("missing or incorrect magic header")
	}
	fr := flate.NewReader(bytes.NewReader(b[4:]))
	defer fr.Close()
	return io.ReadAll(fr)
}

// Apply rewrites a's attributes per spec.md S4.3's application order: try
// the constant rules, then the prefix rules (short-circuit on the first
// hit of either), then every template rule in declared order, each capable
// of overwriting what came before.
func (e *Engine) Apply(protocol, parentName string, a Attrs) Attrs {
	if a.Name == "" {
		if applied, ok := e.applyConstant(protocol, a); ok {
			a = applied
		} else if applied, ok := e.applyPrefix(protocol, a); ok {
			a = applied
		}
	}
	for _, t := range e.templates {
		if applied, ok := t.apply(protocol, parentName, a); ok {
			a = applied
		}
	}
	return a
}

func (e *Engine) applyConstant(protocol string, a Attrs) (Attrs, bool) {
	for _, r := range e.constants {
		if !protocolsMatch(r.Protocols, protocol) {
			continue
		}
		if a.Show != r.Text {
			continue
		}
		return Attrs{Name: r.Name, Showname: a.Show, Show: "", Value: ""}, true
	}
	return a, false
}

func (e *Engine) applyPrefix(protocol string, a Attrs) (Attrs, bool) {
	for _, r := range e.prefixes {
		if !protocolsMatch(r.Protocols, protocol) {
			continue
		}
		prefix := r.Text + ":"
		if !strings.HasPrefix(a.Show, prefix) {
			continue
		}
		rest := strings.TrimLeft(a.Show[len(prefix):], " \t")
		return Attrs{Name: r.Name, Showname: a.Show, Show: rest, Value: rest}, true
	}
	return a, false
}

func (t TemplateRule) apply(protocol, parentName string, a Attrs) (Attrs, bool) {
	if !protocolsMatch(t.Protocols, protocol) {
		return a, false
	}

	captures := make(map[string]string)
	matchers := []struct {
		re  *regexp.Regexp
		val string
	}{
		{t.ParentName, parentName},
		{t.Name, a.Name},
		{t.Show, a.Show},
		{t.Showname, a.Showname},
		{t.Value, a.Value},
	}
	for _, m := range matchers {
		if m.re == nil {
			continue
		}
		sub := m.re.FindStringSubmatch(m.val)
		if sub == nil {
			return a, false
		}
		for i, name := range m.re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			if _, exists := captures[name]; !exists {
				captures[name] = sub[i]
			}
		}
	}

	// Implicit keys are appended last so they shadow identically named
	// regex captures (spec.md S9).
	parentNamePrefix := ""
	if parentName != "" {
		parentNamePrefix = parentName + "."
	}
	captures["parentName"] = parentName
	captures["parentNamePrefix"] = parentNamePrefix
	captures["name"] = a.Name
	captures["show"] = a.Show
	captures["showname"] = a.Showname
	captures["value"] = a.Value

	newName := normalizeName(expand(t.NameFormat, captures))
	newValue := expand(t.ValueFormat, captures)

	return Attrs{Name: newName, Showname: newName, Show: newValue, Value: newValue}, true
}

var tokenRe = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

func expand(format string, captures map[string]string) string {
	if format == "" {
		return ""
	}
	return tokenRe.ReplaceAllStringFunc(format, func(tok string) string {
		key := tok[2 : len(tok)-1]
		return captures[key]
	})
}

// normalizeName implements spec.md S4.3's name normalization: lowercase
// letters and digits are preserved; any run of other characters collapses
// to a single '.'; a trailing '.' is trimmed.
func normalizeName(s string) string {
	var b strings.Builder
	inRun := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			inRun = false
		default:
			if !inRun {
				b.WriteByte('.')
				inRun = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), ".")
}

func protocolsMatch(list []string, protocol string) bool {
	protocol = strings.ToLower(protocol)
	for _, p := range list {
		if strings.ToLower(strings.TrimSpace(p)) == protocol {
			return true
		}
	}
	return false
}

func splitProtocols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
