package writer

import (
	"github.com/m-lab/pdmlsql/internal/value"
)

// SQLType is the writer's internal column-type tag, dialect-independent
// (spec.md S6's semantic-type -> SQL-type reference mapping); each Backend
// renders it to its own DDL spelling.
type SQLType int

const (
	SQLBit SQLType = iota
	SQLInt32
	SQLInt64
	SQLBigNumeric // NUMERIC(20,0) / DECIMAL(20,0): unsigned 64 and the widening terminal for integers
	SQLFloat
	SQLTimestamp
	SQLStringNarrow // 8-bit string, precision-bucketed, capped at 8000
	SQLStringWide   // 16-bit string, precision-bucketed, capped at 4000
	SQLBytes
	SQLGUID
)

// stringBuckets are the precision steps a string column grows through
// (spec.md S4.5 step 4).
var stringBuckets = []int{250, 500, 1000, 2000, 4000}

const stringNarrowCap = 8000
const stringWideCap = 4000

// typeForValue derives a column's initial SQL type and precision from a
// typed value (spec.md S4.5 step 4 / S6).
func typeForValue(v value.Value) (SQLType, int) {
	switch v.Kind {
	case value.KindBool:
		return SQLBit, 0
	case value.KindInt8, value.KindInt16, value.KindInt32,
		value.KindUint8, value.KindUint16, value.KindUint32:
		return SQLInt32, 0
	case value.KindInt64:
		return SQLInt64, 0
	case value.KindUint64:
		return SQLBigNumeric, 0
	case value.KindFloat32, value.KindFloat64:
		return SQLFloat, 0
	case value.KindTimestamp, value.KindDuration:
		return SQLTimestamp, 0
	case value.KindBytes:
		return SQLBytes, 0
	case value.KindIP:
		return stringPrecisionFor(len(v.IP.String()))
	case value.KindGUID:
		return SQLGUID, 0
	case value.KindArray:
		return stringPrecisionFor(renderedArrayLen(v))
	default: // text, opaque
		return stringPrecisionFor(len(v.Text))
	}
}

func renderedArrayLen(v value.Value) int {
	n := 2 // "{}"
	for _, e := range v.Array {
		n += len(e.String()) + 2
	}
	return n
}

// stringPrecisionFor returns SQLStringWide with the smallest string bucket
// that fits n characters, or with the string(4000) terminal when no bucket
// does.
func stringPrecisionFor(n int) (SQLType, int) {
	for _, b := range stringBuckets {
		if n <= b {
			return SQLStringWide, b
		}
	}
	return SQLStringWide, stringWideCap
}

// widen computes the new (type, precision) for a column given an
// incoming value, following the widening lattice of spec.md S4.5 step 5:
// irreversible, never narrows; incompatible transitions degrade to a
// terminal string(4000).
func widen(existing SQLType, existingPrecision int, incoming value.Value) (SQLType, int, bool) {
	incomingType, incomingPrecision := typeForValue(incoming)

	if existing == incomingType {
		if isString(existing) && incomingPrecision > existingPrecision {
			return existing, incomingPrecision, true
		}
		return existing, existingPrecision, false
	}

	// string(4000)/string(8000) is a fixed point: spec.md S4.5 step 5,
	// S8 invariant "string(4000) is a fixed point".
	if existing == SQLStringWide && existingPrecision >= stringWideCap {
		return existing, existingPrecision, false
	}
	if existing == SQLStringNarrow && existingPrecision >= stringNarrowCap {
		return existing, existingPrecision, false
	}

	// int32 -> int64 -> bignumeric is the only non-string widening path.
	if isIntegerPath(existing) && isIntegerPath(incomingType) {
		if integerRank(incomingType) > integerRank(existing) {
			return incomingType, 0, true
		}
		return existing, existingPrecision, false
	}

	// Any other transition (e.g. float -> int, bit -> text) degrades to
	// the terminal wide string.
	return SQLStringWide, stringWideCap, true
}

func isString(t SQLType) bool { return t == SQLStringWide || t == SQLStringNarrow }

func isIntegerPath(t SQLType) bool {
	return t == SQLInt32 || t == SQLInt64 || t == SQLBigNumeric
}

func integerRank(t SQLType) int {
	switch t {
	case SQLInt32:
		return 0
	case SQLInt64:
		return 1
	case SQLBigNumeric:
		return 2
	default:
		return -1
	}
}
