// Package schema holds the in-memory registry of dissector protocols,
// fields, and value-string tables (spec.md S3/S4.1, component A/B), along
// with the loader that populates it from the four tab-delimited catalogs
// emitted by the dissector.
//
// The registry owns protocols and fields by value; everything else looks
// them up by short name rather than holding an owning pointer, so there are
// no reference cycles between a Field and its parent Protocol.
package schema

import (
	"fmt"
	"strings"
)

// FieldType is the closed set of semantic field types named in spec.md S3.
type FieldType int

const (
	TypeBoolean FieldType = iota
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeTimestamp // absolute, UTC
	TypeDuration  // relative
	TypeText
	TypeBytes
	TypeIP
	TypeGUID
	// TypeOpaque covers ether/OID/IPX/PCRE fields: rendered as text but kept
	// as a distinct tag per spec.md S3's semantic-type list.
	TypeOpaque
)

func (t FieldType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeTimestamp:
		return "timestamp"
	case TypeDuration:
		return "duration"
	case TypeText:
		return "text"
	case TypeBytes:
		return "bytes"
	case TypeIP:
		return "ip"
	case TypeGUID:
		return "guid"
	case TypeOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// ftenumTable maps dissector type tokens to semantic types (spec.md S6).
// FT_NUM_TYPES and anything absent from this table fail the field line.
var ftenumTable = map[string]FieldType{
	"FT_BOOLEAN":       TypeBoolean,
	"FT_UINT8":         TypeUint8,
	"FT_UINT16":        TypeUint16,
	"FT_UINT24":        TypeUint32,
	"FT_UINT32":        TypeUint32,
	"FT_UINT64":        TypeUint64,
	"FT_INT8":          TypeInt8,
	"FT_INT16":         TypeInt16,
	"FT_INT24":         TypeInt32,
	"FT_INT32":         TypeInt32,
	"FT_INT64":         TypeInt64,
	"FT_FLOAT":         TypeFloat32,
	"FT_DOUBLE":        TypeFloat64,
	"FT_ABSOLUTE_TIME": TypeTimestamp,
	"FT_RELATIVE_TIME": TypeDuration,
	"FT_STRING":        TypeText,
	"FT_STRINGZ":       TypeText,
	"FT_EBCDIC":        TypeText,
	"FT_UINT_STRING":   TypeText,
	"FT_BYTES":         TypeBytes,
	"FT_UINT_BYTES":    TypeBytes,
	"FT_IPv4":          TypeIP,
	"FT_IPv6":          TypeIP,
	"FT_GUID":          TypeGUID,
	"FT_ETHER":         TypeOpaque,
	"FT_IPXNET":        TypeOpaque,
	"FT_OID":           TypeOpaque,
	"FT_PCRE":          TypeOpaque,
	"FT_NONE":          TypeText,
	"FT_PROTOCOL":      TypeText,
	"FT_EUI64":         TypeUint64,
	"FT_FRAMENUM":      TypeUint32,
}

// ParseFieldType converts a dissector type token into a semantic FieldType.
// ok is false for FT_NUM_TYPES or any unrecognized token, in which case the
// caller must fail (skip) the field registration line.
func ParseFieldType(token string) (t FieldType, ok bool) {
	t, ok = ftenumTable[token]
	return t, ok
}

// DisplayBase is the rendering hint attached to a numeric field
// (BASE_DEC, BASE_HEX, BASE_NONE, ...). The dissector emits many BASE_HEX
// variants (BASE_HEX_DOTTED, etc.), so this wraps the raw token rather than
// enumerating every variant, and exposes the two predicates the Value Typer
// needs (spec.md S4.2).
type DisplayBase string

// IsHex reports whether this is any BASE_HEX* variant.
func (d DisplayBase) IsHex() bool { return strings.HasPrefix(string(d), "BASE_HEX") }

// IsNone reports whether this is BASE_NONE.
func (d DisplayBase) IsNone() bool { return d == "BASE_NONE" }

// ValueStringKind tags the three ValueString variants (spec.md S3).
type ValueStringKind int

const (
	VSSingle ValueStringKind = iota
	VSRange
	VSBoolean
)

// ValueString is one entry of a field's value-string table: a single value,
// an inclusive-or-exclusive range, or a true/false label pair.
type ValueString struct {
	Kind ValueStringKind

	Value int64 // VSSingle

	Lo, Hi    int64 // VSRange
	Inclusive bool  // VSRange

	Label string // VSSingle, VSRange

	TrueLabel, FalseLabel string // VSBoolean
}

// key identifies this entry for merge/dedup purposes, per spec.md S3's
// "(fieldShortName, kind, key)" keying (fieldShortName is tracked by Field).
func (v ValueString) key() string {
	switch v.Kind {
	case VSSingle:
		return fmt.Sprintf("V:%d", v.Value)
	case VSRange:
		return fmt.Sprintf("R:%d:%d:%v", v.Lo, v.Hi, v.Inclusive)
	case VSBoolean:
		return "T"
	default:
		return ""
	}
}

// Field is a dissector field: a stable short name, descriptive metadata, a
// semantic type, a read-only link to its parent Protocol, and an ordered
// value-string table.
type Field struct {
	ShortName   string
	LongName    string
	Description string
	DisplayBase DisplayBase
	Bitmask     string
	Type        FieldType

	// Protocol is a read-only lookup key into the owning Registry, not an
	// owning pointer: it is set once at registration and never reassigned.
	Protocol *Protocol

	Values []ValueString

	valueIndex map[string]int // key() -> index into Values, for merge lookups
}

// addValueString registers or merges a value-string entry, concatenating
// differing labels with " / " (spec.md S3).
func (f *Field) addValueString(v ValueString) {
	if f.valueIndex == nil {
		f.valueIndex = make(map[string]int)
	}
	k := v.key()
	if idx, ok := f.valueIndex[k]; ok {
		existing := &f.Values[idx]
		switch v.Kind {
		case VSBoolean:
			existing.TrueLabel = mergeLabel(existing.TrueLabel, v.TrueLabel)
			existing.FalseLabel = mergeLabel(existing.FalseLabel, v.FalseLabel)
		default:
			existing.Label = mergeLabel(existing.Label, v.Label)
		}
		return
	}
	f.valueIndex[k] = len(f.Values)
	f.Values = append(f.Values, v)
}

func mergeLabel(existing, next string) string {
	if existing == "" {
		return next
	}
	if next == "" || next == existing {
		return existing
	}
	return existing + " / " + next
}

// LookupSingle returns the label for an exact integer match, if any.
func (f *Field) LookupSingle(v int64) (string, bool) {
	for i := range f.Values {
		vs := &f.Values[i]
		if vs.Kind == VSSingle && vs.Value == v {
			return vs.Label, true
		}
	}
	return "", false
}

// LookupRange returns the label of the first range containing v, if any.
func (f *Field) LookupRange(v int64) (string, bool) {
	for i := range f.Values {
		vs := &f.Values[i]
		if vs.Kind != VSRange {
			continue
		}
		if vs.Inclusive {
			if v >= vs.Lo && v <= vs.Hi {
				return vs.Label, true
			}
		} else if v > vs.Lo && v < vs.Hi {
			return vs.Label, true
		}
	}
	return "", false
}

// LookupBoolean returns the (true, false) labels of the field's boolean
// value-string entry, if one was registered.
func (f *Field) LookupBoolean() (trueLabel, falseLabel string, ok bool) {
	for i := range f.Values {
		vs := &f.Values[i]
		if vs.Kind == VSBoolean {
			return vs.TrueLabel, vs.FalseLabel, true
		}
	}
	return "", "", false
}

// Protocol is a dissector protocol: a stable short name (the merge key),
// descriptive metadata, and its ordered list of fields.
type Protocol struct {
	ShortName  string
	LongName   string
	FilterName string
	Fields     []*Field

	fieldIndex map[string]int // ShortName -> index into Fields
}

func (p *Protocol) addField(f *Field) {
	if p.fieldIndex == nil {
		p.fieldIndex = make(map[string]int)
	}
	p.fieldIndex[f.ShortName] = len(p.Fields)
	p.Fields = append(p.Fields, f)
}

// Registry is the in-memory schema model (component A). It is populated
// exclusively by the Schema Loader and is immutable once loading completes;
// all lookups are by short name, never by owning pointer.
type Registry struct {
	protocols map[string]*Protocol // key: strings.ToLower(shortName)
	fields    map[string]*Field    // key: shortName (case-sensitive: spec.md only
	// calls out Protocol short names as case-insensitive)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		protocols: make(map[string]*Protocol),
		fields:    make(map[string]*Field),
	}
}

// Protocol looks up a protocol by short name, case-insensitively.
func (r *Registry) Protocol(shortName string) (*Protocol, bool) {
	p, ok := r.protocols[strings.ToLower(shortName)]
	return p, ok
}

// Field looks up a field by short name.
func (r *Registry) Field(shortName string) (*Field, bool) {
	f, ok := r.fields[shortName]
	return f, ok
}

// Protocols returns all registered protocols, in no particular order.
func (r *Registry) Protocols() []*Protocol {
	out := make([]*Protocol, 0, len(r.protocols))
	for _, p := range r.protocols {
		out = append(out, p)
	}
	return out
}

// RegisterProtocol creates or merges a Protocol. Merging concatenates
// differing LongNames with " / " and rejects FilterName conflicts, per
// spec.md S3.
func (r *Registry) RegisterProtocol(shortName, longName, filterName string) error {
	key := strings.ToLower(shortName)
	if existing, ok := r.protocols[key]; ok {
		if existing.FilterName != "" && filterName != "" && existing.FilterName != filterName {
			return fmt.Errorf("protocol %q: conflicting filterName %q vs %q", shortName, existing.FilterName, filterName)
		}
		if filterName != "" && existing.FilterName == "" {
			existing.FilterName = filterName
		}
		existing.LongName = mergeLabel(existing.LongName, longName)
		return nil
	}
	r.protocols[key] = &Protocol{ShortName: shortName, LongName: longName, FilterName: filterName}
	return nil
}

// RegisterField creates or merges a Field under an existing parent protocol.
// The parent protocol must already be registered (the "F" catalog form fails
// the line otherwise; the "P" form auto-registers it first). Merging a field
// whose Protocol or Type differs from the existing registration fails, per
// spec.md S3's invariant.
func (r *Registry) RegisterField(shortName, longName, description string, displayBase DisplayBase, bitmask string, parentShortName string, ftype FieldType) error {
	parent, ok := r.Protocol(parentShortName)
	if !ok {
		return fmt.Errorf("field %q: unknown parent protocol %q", shortName, parentShortName)
	}

	if existing, ok := r.fields[shortName]; ok {
		if existing.Protocol != parent {
			return fmt.Errorf("field %q: parent protocol changed from %q to %q", shortName, existing.Protocol.ShortName, parent.ShortName)
		}
		if existing.Type != ftype {
			return fmt.Errorf("field %q: type changed from %s to %s", shortName, existing.Type, ftype)
		}
		// Idempotent: keep first-registered descriptive metadata.
		return nil
	}

	f := &Field{
		ShortName:   shortName,
		LongName:    longName,
		Description: description,
		DisplayBase: displayBase,
		Bitmask:     bitmask,
		Type:        ftype,
		Protocol:    parent,
	}
	r.fields[shortName] = f
	parent.addField(f)
	return nil
}

// RegisterSingle adds a "V" (single value) entry to a field's value-string table.
func (r *Registry) RegisterSingle(fieldShortName string, value int64, label string) error {
	f, ok := r.fields[fieldShortName]
	if !ok {
		return fmt.Errorf("value string: unknown field %q", fieldShortName)
	}
	f.addValueString(ValueString{Kind: VSSingle, Value: value, Label: label})
	return nil
}

// RegisterRange adds an "R" (range) entry to a field's value-string table.
func (r *Registry) RegisterRange(fieldShortName string, lo, hi int64, label string) error {
	f, ok := r.fields[fieldShortName]
	if !ok {
		return fmt.Errorf("value string: unknown field %q", fieldShortName)
	}
	f.addValueString(ValueString{Kind: VSRange, Lo: lo, Hi: hi, Inclusive: true, Label: label})
	return nil
}

// RegisterBoolean adds a "T" (boolean) entry to a field's value-string table.
func (r *Registry) RegisterBoolean(fieldShortName string, trueLabel, falseLabel string) error {
	f, ok := r.fields[fieldShortName]
	if !ok {
		return fmt.Errorf("value string: unknown field %q", fieldShortName)
	}
	f.addValueString(ValueString{Kind: VSBoolean, TrueLabel: trueLabel, FalseLabel: falseLabel})
	return nil
}
