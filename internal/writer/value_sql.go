package writer

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/m-lab/pdmlsql/internal/value"
	"github.com/m-lab/pdmlsql/metrics"
)

// timestampFormat is the wire format used to bind timestamp/duration
// values as parameters (spec.md S4.5: "timestamps as
// yyyy-MM-dd HH:mm:ss.fffffff").
const timestampFormat = "2006-01-02 15:04:05.0000000"

// dropByteColumns, when true, makes marshalValue return nil for byte-
// sequence columns instead of their hex rendering (spec.md S4.5:
// "Byte-sequence columns may optionally be dropped entirely (configurable)
// to avoid storage blowup").
type marshalOptions struct {
	dropByteColumns bool
}

// marshalValue converts a typed Value into a parameter-bindable Go value,
// truncating strings to fit col's precision and recording the truncation
// (spec.md S4.5 step 7).
func marshalValue(v value.Value, col *ColumnDefinition, table, column string, opts marshalOptions) interface{} {
	switch v.Kind {
	case value.KindBool:
		if v.Bool {
			return 1
		}
		return 0

	case value.KindInt8, value.KindInt16, value.KindInt32, value.KindInt64:
		return v.Int

	case value.KindUint8, value.KindUint16, value.KindUint32, value.KindUint64:
		return v.Uint

	case value.KindFloat32, value.KindFloat64:
		return v.Float

	case value.KindTimestamp:
		return v.Time.UTC().Format(timestampFormat)

	case value.KindDuration:
		return durationAsTimestamp(v.Dur)

	case value.KindBytes:
		if opts.dropByteColumns {
			return nil
		}
		return truncateString(table, column, col, hex.EncodeToString(v.Bytes))

	case value.KindIP:
		return truncateString(table, column, col, v.IP.String())

	case value.KindGUID:
		return fmt.Sprintf("%x-%x-%x-%x-%x", v.GUID[0:4], v.GUID[4:6], v.GUID[6:8], v.GUID[8:10], v.GUID[10:16])

	case value.KindArray:
		return truncateString(table, column, col, renderArray(v, opts))

	default: // text, opaque
		return truncateString(table, column, col, v.Text)
	}
}

func renderArray(v value.Value, opts marshalOptions) string {
	parts := make([]string, 0, len(v.Array))
	for _, e := range v.Array {
		parts = append(parts, fmt.Sprint(marshalValue(e, &ColumnDefinition{}, "", "", opts)))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func durationAsTimestamp(d time.Duration) string {
	// Relative durations reuse the timestamp wire format applied to the
	// Unix epoch plus the duration, matching the absolute-timestamp
	// marshalling convention (spec.md S4.5).
	return time.Unix(0, 0).UTC().Add(d).Format(timestampFormat)
}

func truncateString(table, column string, col *ColumnDefinition, s string) string {
	if col == nil || col.Precision <= 0 || len(s) <= col.Precision {
		return s
	}
	metrics.TruncatedStringCount.WithLabelValues(table, column).Inc()
	return s[:col.Precision]
}
