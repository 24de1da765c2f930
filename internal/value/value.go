// Package value defines the small tagged variant shared by the Value Typer's
// typed leaf values and the writer's column-value union (spec.md S9,
// "Heterogeneous typed values").
package value

import (
	"fmt"
	"net"
	"time"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindTimestamp
	KindDuration
	KindText
	KindBytes
	KindIP
	KindGUID
	// KindArray holds a single-level multi-value array, per spec.md S9
	// ("multi-value array of the above (single level only)").
	KindArray
)

func (k Kind) String() string {
	names := [...]string{
		"bool", "int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64",
		"float32", "float64", "timestamp", "duration",
		"text", "bytes", "ip", "guid", "array",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Value is the tagged variant carried by a TreeNode's typedValue and bound
// to writer columns: boolean | signed/unsigned integer (four widths each) |
// float | double | timestamp | duration | text | bytes | IP address | GUID |
// array of the above.
type Value struct {
	Kind Kind

	Bool  bool
	Int   int64  // signed kinds
	Uint  uint64 // unsigned kinds
	Float float64
	Time  time.Time
	Dur   time.Duration
	Text  string
	Bytes []byte
	IP    net.IP
	GUID  [16]byte
	Array []Value
}

func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func Text(s string) Value  { return Value{Kind: KindText, Text: s} }
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }
func IP(ip net.IP) Value   { return Value{Kind: KindIP, IP: ip} }
func GUID(g [16]byte) Value {
	return Value{Kind: KindGUID, GUID: g}
}
func Float32(f float64) Value        { return Value{Kind: KindFloat32, Float: f} }
func Float64(f float64) Value        { return Value{Kind: KindFloat64, Float: f} }
func Timestamp(t time.Time) Value    { return Value{Kind: KindTimestamp, Time: t} }
func Duration(d time.Duration) Value { return Value{Kind: KindDuration, Dur: d} }

// SmallestSigned returns v in the smallest signed integer Kind that fits it,
// per spec.md S4.2 ("stored in the smallest variant that fits the numeric range").
func SmallestSigned(v int64) Value {
	switch {
	case v >= -128 && v <= 127:
		return Value{Kind: KindInt8, Int: v}
	case v >= -32768 && v <= 32767:
		return Value{Kind: KindInt16, Int: v}
	case v >= -2147483648 && v <= 2147483647:
		return Value{Kind: KindInt32, Int: v}
	default:
		return Value{Kind: KindInt64, Int: v}
	}
}

// SmallestUnsigned returns v in the smallest unsigned integer Kind that fits it.
func SmallestUnsigned(v uint64) Value {
	switch {
	case v <= 0xFF:
		return Value{Kind: KindUint8, Uint: v}
	case v <= 0xFFFF:
		return Value{Kind: KindUint16, Uint: v}
	case v <= 0xFFFFFFFF:
		return Value{Kind: KindUint32, Uint: v}
	default:
		return Value{Kind: KindUint64, Uint: v}
	}
}

// IsInteger reports whether k is one of the eight signed/unsigned integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindUint64
}

// IsSigned reports whether k is one of the four signed integer kinds.
func (k Kind) IsSigned() bool {
	return k >= KindInt8 && k <= KindInt64
}

// AsInt64 returns the value as an int64 for integer kinds (signed or
// unsigned, truncating unsigned values that don't fit — only used for
// value-string lookups, which compare against the catalog's int64 keys).
func (v Value) AsInt64() (int64, bool) {
	switch {
	case v.Kind.IsSigned():
		return v.Int, true
	case v.Kind.IsInteger():
		return int64(v.Uint), true
	case v.Kind == KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// String renders a Value for logging/debugging purposes only.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindText:
		return v.Text
	case KindBytes:
		return fmt.Sprintf("% x", v.Bytes)
	case KindIP:
		return v.IP.String()
	case KindTimestamp:
		return v.Time.Format(time.RFC3339Nano)
	case KindDuration:
		return v.Dur.String()
	case KindGUID:
		return fmt.Sprintf("%x", v.GUID)
	case KindArray:
		return fmt.Sprintf("%v", v.Array)
	default:
		if v.Kind.IsSigned() {
			return fmt.Sprintf("%d", v.Int)
		}
		if v.Kind.IsInteger() {
			return fmt.Sprintf("%d", v.Uint)
		}
		return fmt.Sprintf("%v", v.Float)
	}
}
