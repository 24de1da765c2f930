// Package pdml streams a pdml-shaped packet-capture dissection (spec.md
// S4.4, component E), builds one tree per packet, applies fixups and value
// typing to each node, and flattens the tree into relational DataRows.
package pdml

import "github.com/m-lab/pdmlsql/internal/value"

// XML tags a TreeNode was built from.
const (
	TagPacket = "packet"
	TagProto  = "proto"
	TagField  = "field"
)

// TreeNode is the transient per-packet parse state (spec.md S3): one
// dissector XML element, its raw attributes, its typed value (fields
// only), and its children in document order.
type TreeNode struct {
	Tag string

	Name     string
	Showname string
	Show     string
	Value    string
	Size     int
	Pos      int
	Hide     bool

	TypedValue      value.Value
	TypedValueLabel string
	HasTypedValue   bool
	HasLabel        bool

	Children []*TreeNode
	Parent   *TreeNode
}

// DataRow is a flattened relational row, transient until the writer
// consumes it (spec.md S3): a table name, an ordered set of columns, and
// an ordered list of nested child rows linked to this row as parent.
type DataRow struct {
	TableName string
	Columns   []Column
	ChildRows []*DataRow
}

// Column is one (name, value) pair of a DataRow. A repeated name (see
// addColumn) turns Value into a value.KindArray.
type Column struct {
	Name  string
	Value value.Value
}

// addColumn appends a new column, or — if name was already set on this row
// — folds the new value into a multi-value array (spec.md S4.4 step 4).
func (r *DataRow) addColumn(name string, v value.Value) {
	for i := range r.Columns {
		if r.Columns[i].Name != name {
			continue
		}
		existing := &r.Columns[i]
		if existing.Value.Kind == value.KindArray {
			existing.Value.Array = append(existing.Value.Array, v)
		} else {
			existing.Value = value.Value{Kind: value.KindArray, Array: []value.Value{existing.Value, v}}
		}
		return
	}
	r.Columns = append(r.Columns, Column{Name: name, Value: v})
}
