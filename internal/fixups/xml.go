package fixups

import (
	"encoding/xml"
	"fmt"
	"regexp"
)

// ruleFile mirrors the fixups file XML shape (spec.md S6): root <fixups>
// with <constant>, <prefix>, <speculative>, and <template> children.
type ruleFile struct {
	XMLName     xml.Name          `xml:"fixups"`
	Constants   []constantElem    `xml:"constant"`
	Prefixes    []prefixElem      `xml:"prefix"`
	Speculative []speculativeElem `xml:"speculative"`
	Templates   []templateElem    `xml:"template"`
}

type constantElem struct {
	Protocol string `xml:"protocol,attr"`
	Text     string `xml:"text,attr"`
	Name     string `xml:"name,attr"`
}

type prefixElem struct {
	Protocol string `xml:"protocol,attr"`
	Text     string `xml:"text,attr"`
	Name     string `xml:"name,attr"`
}

// speculativeElem is a shorthand that installs both a constant rule and a
// prefix rule from one declaration (spec.md S6: "speculative = both
// constant and prefix applied").
type speculativeElem struct {
	Protocol string `xml:"protocol,attr"`
	Text     string `xml:"text,attr"`
	Name     string `xml:"name,attr"`
}

type templateElem struct {
	Protocol    string `xml:"protocol,attr"`
	ParentName  string `xml:"parentName,attr"`
	Name        string `xml:"name,attr"`
	Show        string `xml:"show,attr"`
	Showname    string `xml:"showname,attr"`
	Value       string `xml:"value,attr"`
	NameFormat  string `xml:"nameFormat,attr"`
	ValueFormat string `xml:"valueFormat,attr"`
}

func (e *Engine) loadXML(data []byte) error {
	var rf ruleFile
	if err := xml.Unmarshal(data, &rf); err != nil {
		return err
	}

	for _, c := range rf.Constants {
		e.constants = append(e.constants, ConstantRule{
			Protocols: splitProtocols(c.Protocol),
			Text:      c.Text,
			Name:      c.Name,
		})
	}
	for _, p := range rf.Prefixes {
		e.prefixes = append(e.prefixes, PrefixRule{
			Protocols: splitProtocols(p.Protocol),
			Text:      p.Text,
			Name:      p.Name,
		})
	}
	for _, s := range rf.Speculative {
		protos := splitProtocols(s.Protocol)
		e.constants = append(e.constants, ConstantRule{Protocols: protos, Text: s.Text, Name: s.Name})
		e.prefixes = append(e.prefixes, PrefixRule{Protocols: protos, Text: s.Text, Name: s.Name})
	}
	for _, tpl := range rf.Templates {
		t, err := compileTemplate(tpl)
		if err != nil {
			// Filter compile failure: skip the rule, log a warning (spec.md S7).
			logBadRule.Println(fmt.Sprintf("fixups: skipping uncompilable template rule %+v: %v", tpl, err))
			continue
		}
		e.templates = append(e.templates, t)
	}
	return nil
}

func compileTemplate(tpl templateElem) (TemplateRule, error) {
	t := TemplateRule{
		Protocols:   splitProtocols(tpl.Protocol),
		NameFormat:  tpl.NameFormat,
		ValueFormat: tpl.ValueFormat,
	}
	var err error
	if t.ParentName, err = compileOptional(tpl.ParentName); err != nil {
		return t, err
	}
	if t.Name, err = compileOptional(tpl.Name); err != nil {
		return t, err
	}
	if t.Show, err = compileOptional(tpl.Show); err != nil {
		return t, err
	}
	if t.Showname, err = compileOptional(tpl.Showname); err != nil {
		return t, err
	}
	if t.Value, err = compileOptional(tpl.Value); err != nil {
		return t, err
	}
	return t, nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}
