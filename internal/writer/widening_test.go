package writer

import (
	"strings"
	"testing"

	"github.com/m-lab/pdmlsql/internal/value"
)

func TestTypeForValueBuckets(t *testing.T) {
	typ, precision := typeForValue(value.Text("hello"))
	if typ != SQLStringWide || precision != 250 {
		t.Fatalf("typeForValue(short text) = (%v, %d), want (SQLStringWide, 250)", typ, precision)
	}
}

func TestWidenStringGrowsToFitLongerValue(t *testing.T) {
	// A column starts at NVARCHAR(250); a 1500-character value should widen
	// it to the 2000 bucket (spec.md S4.5 step 5 scenario).
	typ, precision, changed := widen(SQLStringWide, 250, value.Text(strings.Repeat("x", 1500)))
	if !changed || typ != SQLStringWide || precision != 2000 {
		t.Fatalf("widen() = (%v, %d, %v), want (SQLStringWide, 2000, true)", typ, precision, changed)
	}
}

func TestWidenNoChangeWhenValueFitsExistingPrecision(t *testing.T) {
	// A subsequent 300-character value fits inside the already-widened
	// 2000 column: no further widening, no DDL.
	typ, precision, changed := widen(SQLStringWide, 2000, value.Text(strings.Repeat("y", 300)))
	if changed {
		t.Fatalf("widen() reported a change for a value that already fits: (%v, %d)", typ, precision)
	}
}

func TestWidenStringIsAFixedPointAtCap(t *testing.T) {
	typ, precision, changed := widen(SQLStringWide, stringWideCap, value.Value{Kind: value.KindInt64, Int: 0})
	if changed {
		t.Fatal("widen() moved away from the string(4000) fixed point")
	}
	if typ != SQLStringWide || precision != stringWideCap {
		t.Fatalf("widen() = (%v, %d), want the string(4000) fixed point unchanged", typ, precision)
	}
}

func TestWidenIntegerPath(t *testing.T) {
	typ, _, changed := widen(SQLInt32, 0, value.Value{Kind: value.KindInt64, Int: 1 << 40})
	if !changed || typ != SQLInt64 {
		t.Fatalf("widen(int32, int64 value) = (%v, %v), want (SQLInt64, true)", typ, changed)
	}

	typ, _, changed = widen(SQLInt64, 0, value.Value{Kind: value.KindUint64, Uint: 1 << 63})
	if !changed || typ != SQLBigNumeric {
		t.Fatalf("widen(int64, uint64 value) = (%v, %v), want (SQLBigNumeric, true)", typ, changed)
	}

	typ, _, changed = widen(SQLBigNumeric, 0, value.Value{Kind: value.KindInt32, Int: 1})
	if changed {
		t.Fatalf("widen(bignumeric, smaller int) = (%v, %v), want no narrowing", typ, changed)
	}
}

func TestWidenIncompatibleTransitionDegradesToWideString(t *testing.T) {
	typ, precision, changed := widen(SQLFloat, 0, value.Text("not a float anymore"))
	if !changed || typ != SQLStringWide || precision != stringWideCap {
		t.Fatalf("widen(float, text) = (%v, %d, %v), want degrade to string(4000)", typ, precision, changed)
	}
}
