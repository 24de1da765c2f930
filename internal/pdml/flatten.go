package pdml

import (
	"strings"

	"github.com/m-lab/pdmlsql/internal/value"
)

// Flatten converts a TreeNode into zero or one DataRow (spec.md S4.4's
// flattening algorithm). tableNamingPrefix is the accumulated table name of
// the nearest enclosing row (empty at the top of a packet's proto forest);
// parentNodeName is the nearest enclosing node's own (post-fixup) name,
// used only when node itself is nameless.
func Flatten(node *TreeNode, tableNamingPrefix, parentNodeName string) *DataRow {
	rowName := deriveRowName(node.Name, parentNodeName)
	tableName := CombineNames(tableNamingPrefix, rowName)
	row := &DataRow{TableName: tableName}

	var namelessLeaves, namedLeaves, namelessBranches, namedBranches []*TreeNode
	for _, c := range node.Children {
		isLeaf := len(c.Children) == 0
		switch {
		case isLeaf && c.Name == "":
			namelessLeaves = append(namelessLeaves, c)
		case isLeaf:
			namedLeaves = append(namedLeaves, c)
		case c.Name == "":
			namelessBranches = append(namelessBranches, c)
		default:
			namedBranches = append(namedBranches, c)
		}
	}

	for _, leaf := range namedLeaves {
		row.addColumn(leaf.Name, leaf.TypedValue)
		if leaf.HasLabel {
			row.addColumn(leaf.Name+"_string", value.Text(leaf.TypedValueLabel))
		}
	}

	valueTable := tableName + "._value"
	for i, leaf := range namelessLeaves {
		child := &DataRow{TableName: valueTable}
		child.addColumn("_index", value.SmallestUnsigned(uint64(i)))
		child.addColumn("_value", leaf.TypedValue)
		row.ChildRows = append(row.ChildRows, child)
	}

	for i, branch := range namelessBranches {
		child := Flatten(branch, tableName, "")
		if child == nil {
			continue
		}
		child.addColumn("_index", value.SmallestUnsigned(uint64(i)))
		row.ChildRows = append(row.ChildRows, child)
	}

	for _, branch := range namedBranches {
		child := Flatten(branch, tableName, node.Name)
		if child == nil {
			continue
		}
		row.ChildRows = append(row.ChildRows, child)
	}

	if node.HasTypedValue {
		row.addColumn("_value", node.TypedValue)
		if node.HasLabel {
			row.addColumn("_string", value.Text(node.TypedValueLabel))
		}
	}

	if len(row.Columns) == 0 && len(row.ChildRows) == 0 {
		return nil
	}
	return row
}

// FlattenPacket flattens every top-level (post-promotion) proto tree of one
// packet into its own root DataRow, moving the geninfo row to the front and
// stamping it with the originating file path (spec.md S4.4).
func FlattenPacket(tops []*TreeNode, filePath string) []*DataRow {
	rows := make([]*DataRow, 0, len(tops))
	for _, t := range tops {
		if r := Flatten(t, "", ""); r != nil {
			rows = append(rows, r)
		}
	}
	for i, r := range rows {
		if r.TableName != "geninfo" {
			continue
		}
		r.addColumn("file", value.Text(filePath))
		if i != 0 {
			rows[0], rows[i] = rows[i], rows[0]
		}
		break
	}
	return rows
}

// deriveRowName implements spec.md S4.4 step 2.
func deriveRowName(name, parentNodeName string) string {
	if name != "" {
		return filterRowName(name)
	}
	if parentNodeName != "" {
		return filterRowName(parentNodeName) + "._group"
	}
	return "_group"
}

// filterRowName keeps lowercased alphanumerics, maps '.', ' ', '_', '-' to
// '.', and passes any other rune through unchanged (spec.md S4.4 step 2;
// the writer's later identifier escaping handles anything left over).
func filterRowName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '.' || r == ' ' || r == '_' || r == '-':
			b.WriteByte('.')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CombineNames merges a naming prefix with a row name, eliding the longest
// contiguous dotted suffix of prefix that equals the row name's dotted
// prefix (spec.md S4.4 step 3 and S8's CombineNames invariant).
func CombineNames(prefix, rowName string) string {
	if prefix == "" {
		return rowName
	}
	prefixSegs := strings.Split(prefix, ".")
	rowSegs := strings.Split(rowName, ".")

	maxK := len(prefixSegs)
	if len(rowSegs) < maxK {
		maxK = len(rowSegs)
	}
	bestK := 0
	for k := maxK; k >= 1; k-- {
		if segsEqual(prefixSegs[len(prefixSegs)-k:], rowSegs[:k]) {
			bestK = k
			break
		}
	}

	merged := make([]string, 0, len(prefixSegs)-bestK+len(rowSegs))
	merged = append(merged, prefixSegs[:len(prefixSegs)-bestK]...)
	merged = append(merged, rowSegs...)
	return strings.Join(merged, ".")
}

func segsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
