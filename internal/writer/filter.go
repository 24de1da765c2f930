package writer

import (
	"encoding/xml"
	"regexp"
	"time"

	"github.com/m-lab/go/logx"
)

var logBadFilterRule = logx.NewLogEvery(nil, 10*time.Second)

// Filter is a compiled table/column allow-deny list (spec.md S6, "Filter
// file"). All matching rules are evaluated in declaration order; the last
// match wins; a name matching nothing defaults to allow.
type Filter struct {
	tables  []filterRule
	columns []filterRule
}

type filterRule struct {
	allow  bool
	table  *regexp.Regexp
	column *regexp.Regexp // nil for table rules
}

// filterFile is the XML document shape: root <filter> with <tables> and
// <columns> sections, each holding <allow>/<deny> elements.
type filterFile struct {
	XMLName xml.Name      `xml:"filter"`
	Tables  filterSection `xml:"tables"`
	Columns filterSection `xml:"columns"`
}

type filterSection struct {
	Rules []filterElem `xml:",any"`
}

type filterElem struct {
	XMLName    xml.Name
	TableName  string `xml:"tableName,attr"`
	ColumnName string `xml:"columnName,attr"`
}

// NewFilter returns a Filter that allows everything, for when no filter
// file is configured.
func NewFilter() *Filter {
	return &Filter{}
}

// LoadFilterFile parses an XML filter document into f, appending rules.
// Rules that fail to compile are logged and skipped (spec.md S7, "Filter
// compile failure -> skip rule").
func LoadFilterFile(data []byte) (*Filter, error) {
	var doc filterFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	f := NewFilter()
	for _, e := range doc.Tables.Rules {
		if r, ok := compileFilterRule(e, false); ok {
			f.tables = append(f.tables, r)
		}
	}
	for _, e := range doc.Columns.Rules {
		if r, ok := compileFilterRule(e, true); ok {
			f.columns = append(f.columns, r)
		}
	}
	return f, nil
}

func compileFilterRule(e filterElem, isColumn bool) (filterRule, bool) {
	allow, ok := allowFromTag(e.XMLName.Local)
	if !ok {
		logBadFilterRule.Println("filter: unrecognized rule element:", e.XMLName.Local)
		return filterRule{}, false
	}
	tableRe, err := regexp.Compile(e.TableName)
	if err != nil {
		logBadFilterRule.Println("filter: bad tableName pattern:", e.TableName, err)
		return filterRule{}, false
	}
	r := filterRule{allow: allow, table: tableRe}
	if isColumn {
		colRe, err := regexp.Compile(e.ColumnName)
		if err != nil {
			logBadFilterRule.Println("filter: bad columnName pattern:", e.ColumnName, err)
			return filterRule{}, false
		}
		r.column = colRe
	}
	return r, true
}

func allowFromTag(tag string) (bool, bool) {
	switch tag {
	case "allow":
		return true, true
	case "deny":
		return false, true
	default:
		return false, false
	}
}

// AllowTable reports whether table is allowed, per the last matching rule
// (default allow).
func (f *Filter) AllowTable(table string) bool {
	return evaluate(f.tables, func(r filterRule) bool { return r.table.MatchString(table) })
}

// AllowColumn reports whether table.column is allowed.
func (f *Filter) AllowColumn(table, column string) bool {
	return evaluate(f.columns, func(r filterRule) bool {
		return r.table.MatchString(table) && r.column.MatchString(column)
	})
}

func evaluate(rules []filterRule, matches func(filterRule) bool) bool {
	allow := true
	for _, r := range rules {
		if matches(r) {
			allow = r.allow
		}
	}
	return allow
}
