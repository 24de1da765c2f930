package writer

import (
	"strings"

	"github.com/m-lab/pdmlsql/metrics"
)

const maxIdentifierLength = 96

// EscapeIdentifier turns table/column name into a safe SQL identifier:
// every character other than an ASCII letter or digit becomes '_', and a name longer than 96
// characters is truncated by removing a contiguous span near the middle
// and inserting "___", so the head and tail stay readable and the result
// is deterministic for the same input (spec.md S4.5 step 1).
func EscapeIdentifier(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	escaped := b.String()
	if len(escaped) <= maxIdentifierLength {
		return escaped
	}
	return middleElide(escaped, maxIdentifierLength)
}

// middleElide keeps the first and last segments of s and joins them with
// "___", producing a string of exactly maxLen bytes.
func middleElide(s string, maxLen int) string {
	const sep = "___"
	keep := maxLen - len(sep)
	head := keep / 2
	tail := keep - head
	return s[:head] + sep + s[len(s)-tail:]
}

// collisionTracker records the first collision per table between two
// distinct logical names that escape/truncate to the same identifier
// (spec.md S9: log once, do not attempt reconciliation).
type collisionTracker struct {
	seen map[string]map[string]string // table -> escaped name -> first logical name
}

func newCollisionTracker() *collisionTracker {
	return &collisionTracker{seen: make(map[string]map[string]string)}
}

// check records logicalName's escaped form for table and reports whether
// this is a first-time collision against a different logical name.
func (c *collisionTracker) check(table, escapedName, logicalName string) (collided bool) {
	byName, ok := c.seen[table]
	if !ok {
		byName = make(map[string]string)
		c.seen[table] = byName
	}
	first, seen := byName[escapedName]
	if !seen {
		byName[escapedName] = logicalName
		return false
	}
	if first == logicalName {
		return false
	}
	metrics.IdentifierCollisionCount.WithLabelValues(table).Inc()
	return true
}
