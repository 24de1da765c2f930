package pdml

import (
	"encoding/xml"
	"strconv"

	"github.com/m-lab/pdmlsql/internal/fixups"
	"github.com/m-lab/pdmlsql/internal/schema"
	"github.com/m-lab/pdmlsql/internal/typer"
)

// rawElem is a fully-parsed XML element, attributes and children verbatim
// and in document order, before any pruning or proto-promotion is applied.
type rawElem struct {
	Tag      string
	Attrs    map[string]string
	Children []*rawElem
}

// parseElem recursively consumes tokens from dec until the element opened
// by start is closed, ignoring character data, comments, and processing
// instructions (spec.md S6).
func parseElem(dec *xml.Decoder, start xml.StartElement) (*rawElem, error) {
	e := &rawElem{Tag: start.Name.Local, Attrs: make(map[string]string, len(start.Attr))}
	for _, a := range start.Attr {
		e.Attrs[a.Name.Local] = a.Value
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElem(dec, t)
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, child)
		case xml.EndElement:
			return e, nil
		default:
			// CharData, Comment, ProcInst, Directive: ignored.
		}
	}
}

// flattenProtos implements the promotion behavior described in spec.md
// S4.4's abridged XML shape: a <proto> nested inside another <proto> is
// promoted to a sibling at the enclosing packet's level, recursively. Only
// "proto"-tagged children are kept; this is also the packet->proto and
// proto->field pruning step (spec.md S4.4 "child type pruning") for proto
// nodes specifically.
func flattenProtos(children []*rawElem) []*rawElem {
	var out []*rawElem
	for _, n := range children {
		if n.Tag != TagProto {
			continue
		}
		var nested, kept []*rawElem
		for _, c := range n.Children {
			if c.Tag == TagProto {
				nested = append(nested, c)
			} else if c.Tag == TagField {
				kept = append(kept, c)
			}
			// Anything else (stray sibling tags) is pruned.
		}
		n.Children = kept
		out = append(out, n)
		out = append(out, flattenProtos(nested)...)
	}
	return out
}

// pruneFields keeps only field-tagged children of a field node (spec.md
// S4.4's field->field pruning rule).
func pruneFields(children []*rawElem) []*rawElem {
	var out []*rawElem
	for _, c := range children {
		if c.Tag == TagField {
			out = append(out, c)
		}
	}
	return out
}

// BuildPacket builds the promoted, pruned forest of top-level TreeNodes for
// one <packet> element: one tree per top-level (post-promotion) proto,
// fixups applied and, for field nodes, typed.
//
// protocolName is set once per top-level proto subtree, from that proto's
// own name attribute, and is not re-derived deeper in the tree: fixups
// rules are keyed by the owning protocol, and every field nested under a
// given top-level proto belongs to that protocol for fixup purposes
// regardless of depth.
func BuildPacket(packet *rawElem, reg *schema.Registry, eng *fixups.Engine) []*TreeNode {
	tops := flattenProtos(packet.Children)
	out := make([]*TreeNode, 0, len(tops))
	for _, top := range tops {
		out = append(out, buildTree(top, top.Attrs["name"], reg, eng, nil, ""))
	}
	return out
}

func buildTree(raw *rawElem, protocolName string, reg *schema.Registry, eng *fixups.Engine, parent *TreeNode, parentAttrName string) *TreeNode {
	attrs := fixups.Attrs{
		Name:     raw.Attrs["name"],
		Showname: raw.Attrs["showname"],
		Show:     raw.Attrs["show"],
		Value:    raw.Attrs["value"],
	}
	attrs = eng.Apply(protocolName, parentAttrName, attrs)

	node := &TreeNode{
		Tag:      raw.Tag,
		Name:     attrs.Name,
		Showname: attrs.Showname,
		Show:     attrs.Show,
		Value:    attrs.Value,
		Size:     atoiOr0(raw.Attrs["size"]),
		Pos:      atoiOr0(raw.Attrs["pos"]),
		Hide:     raw.Attrs["hide"] == "yes",
		Parent:   parent,
	}

	if raw.Tag == TagField {
		typed, label, hasLabel := typer.Type(reg, attrs.Name, attrs.Name, attrs.Show, attrs.Value)
		node.TypedValue = typed
		node.HasTypedValue = true
		node.TypedValueLabel = label
		node.HasLabel = hasLabel
	}

	var rawChildren []*rawElem
	switch raw.Tag {
	case TagProto, TagField:
		rawChildren = pruneFields(raw.Children)
	default:
		rawChildren = raw.Children
	}

	node.Children = make([]*TreeNode, 0, len(rawChildren))
	for _, c := range rawChildren {
		node.Children = append(node.Children, buildTree(c, protocolName, reg, eng, node, attrs.Name))
	}
	return node
}

func atoiOr0(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
