// Package typer implements the Value Typer (spec.md S4.2, component C):
// converting a dissector field's raw (show, value) attribute strings into a
// typed value.Value, consulting the schema.Registry for the field's
// semantic type and value-string table.
package typer

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m-lab/pdmlsql/internal/bigendian"
	"github.com/m-lab/pdmlsql/internal/schema"
	"github.com/m-lab/pdmlsql/internal/value"
)

// timestampLayout matches the dissector's absolute-timestamp rendering,
// "MMM d, yyyy HH:mm:ss.fffffff" (spec.md S4.2): month abbreviation, day
// without zero-padding, 4-digit year, and up to 7 fractional-second digits.
const timestampLayout = "Jan 2, 2006 15:04:05.9999999"

// Type converts one field's raw attributes into a typed value and, when the
// field's value-string table has a matching entry, its label.
//
// name is the node's own name attribute (used only by the degrade path,
// spec.md S4.2 step 4); fieldShortName, show, and rawValue are the
// dissector's field short name, "show", and "value" attributes.
func Type(reg *schema.Registry, name, fieldShortName, show, rawValue string) (typed value.Value, label string, hasLabel bool) {
	field, ok := reg.Field(fieldShortName)
	if !ok {
		// Unknown field: type = text, typed value = show (spec.md S4.2 step 1).
		return value.Text(show), "", false
	}

	v, err := typeByField(field, show, rawValue)
	if err != nil {
		return degrade(name, show, rawValue), "", false
	}

	label, hasLabel = lookupLabel(field, v)
	return v, label, hasLabel
}

func typeByField(field *schema.Field, show, rawValue string) (value.Value, error) {
	switch field.Type {
	case schema.TypeBoolean:
		switch show {
		case "1":
			return value.Boolean(true), nil
		case "0":
			return value.Boolean(false), nil
		default:
			// Spec-mandated inline degrade, not a conversion exception.
			return value.Text(show), nil
		}

	case schema.TypeUint8, schema.TypeUint16, schema.TypeUint32, schema.TypeUint64,
		schema.TypeInt8, schema.TypeInt16, schema.TypeInt32, schema.TypeInt64:
		return typeInteger(field, show)

	case schema.TypeFloat32:
		f, err := strconv.ParseFloat(show, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.Float32(f), nil

	case schema.TypeFloat64:
		f, err := strconv.ParseFloat(show, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.Float64(f), nil

	case schema.TypeTimestamp:
		t, err := parseAbsoluteTimestamp(show)
		if err != nil {
			return value.Value{}, err
		}
		return value.Timestamp(t), nil

	case schema.TypeDuration:
		secs, err := strconv.ParseFloat(show, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.Duration(time.Duration(secs * float64(time.Second))), nil

	case schema.TypeBytes:
		if rawValue == "" {
			return value.Bytes([]byte{}), nil
		}
		b, err := hex.DecodeString(rawValue)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bytes(b), nil

	case schema.TypeIP:
		return typeIP(show, rawValue)

	case schema.TypeGUID:
		g, err := uuid.Parse(show)
		if err != nil {
			return value.Value{}, err
		}
		return value.GUID([16]byte(g)), nil

	default: // TypeText, TypeOpaque
		return value.Text(show), nil
	}
}

func isSignedType(t schema.FieldType) bool {
	return t == schema.TypeInt8 || t == schema.TypeInt16 || t == schema.TypeInt32 || t == schema.TypeInt64
}

func typeInteger(field *schema.Field, show string) (value.Value, error) {
	switch {
	case field.DisplayBase.IsNone():
		return value.Text(show), nil

	case field.DisplayBase.IsHex():
		raw, err := hexLittleEndianUint64(show)
		if err != nil {
			return value.Value{}, err
		}
		if isSignedType(field.Type) {
			return value.SmallestSigned(int64(raw)), nil
		}
		return value.SmallestUnsigned(raw), nil

	default:
		if isSignedType(field.Type) {
			iv, err := strconv.ParseInt(show, 10, 64)
			if err != nil {
				return value.Value{}, err
			}
			return value.SmallestSigned(iv), nil
		}
		uv, err := strconv.ParseUint(show, 10, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.SmallestUnsigned(uv), nil
	}
}

// hexLittleEndianUint64 decodes show as a hexadecimal byte sequence,
// zero-pads it to 8 bytes, and reinterprets it little-endian (spec.md S4.2).
func hexLittleEndianUint64(show string) (uint64, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(show, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("hex show value %q: %w", show, err)
	}
	if len(b) > 8 {
		return 0, fmt.Errorf("hex show value %q: more than 8 bytes", show)
	}
	return bigendian.PadRight8(b).Uint64(), nil // LE64: show's bytes, left-to-right, read little-endian
}

func typeIP(show, rawValue string) (value.Value, error) {
	if ip := net.ParseIP(show); ip != nil {
		return value.IP(ip), nil
	}
	b, err := hex.DecodeString(rawValue)
	if err != nil {
		return value.Value{}, fmt.Errorf("ip value %q: %w", rawValue, err)
	}
	switch len(b) {
	case 4, 16:
		return value.IP(net.IP(b)), nil
	default:
		return value.Value{}, fmt.Errorf("ip value %q: unexpected byte length %d", rawValue, len(b))
	}
}

// parseAbsoluteTimestamp parses "MMM d, yyyy HH:mm:ss.fffffff", assumed to be
// local time, and converts it to UTC. Fractional digits beyond 7 are
// truncated before parsing.
func parseAbsoluteTimestamp(show string) (time.Time, error) {
	show = truncateFractionalSeconds(show, 7)
	t, err := time.ParseInLocation(timestampLayout, show, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func truncateFractionalSeconds(s string, maxDigits int) string {
	dot := strings.LastIndexByte(s, '.')
	if dot < 0 {
		return s
	}
	frac := s[dot+1:]
	end := len(frac)
	for end > 0 && !isDigit(frac[end-1]) {
		end--
	}
	digits := frac[:end]
	trailing := frac[end:]
	if len(digits) > maxDigits {
		digits = digits[:maxDigits]
	}
	return s[:dot+1] + digits + trailing
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// lookupLabel consults the field's value-string table for v, per spec.md
// S4.2 step 3: booleans consult the boolean variant; integers consult the
// first matching single, else the first containing range; anything else
// has no label.
func lookupLabel(field *schema.Field, v value.Value) (string, bool) {
	switch {
	case v.Kind == value.KindBool:
		trueLabel, falseLabel, ok := field.LookupBoolean()
		if !ok {
			return "", false
		}
		if v.Bool {
			return trueLabel, true
		}
		return falseLabel, true

	case v.Kind.IsInteger():
		iv, _ := v.AsInt64()
		if label, ok := field.LookupSingle(iv); ok {
			return label, true
		}
		if label, ok := field.LookupRange(iv); ok {
			return label, true
		}
		return "", false

	default:
		return "", false
	}
}

// degrade implements spec.md S4.2 step 4: on any conversion exception, the
// node degrades to text. typedValue is the raw "value" attribute when show
// is a (case-insensitive) suffix of name, else it is show itself; the
// label is always absent.
func degrade(name, show, rawValue string) value.Value {
	if strings.HasSuffix(strings.ToLower(name), strings.ToLower(show)) {
		return value.Text(rawValue)
	}
	return value.Text(show)
}
