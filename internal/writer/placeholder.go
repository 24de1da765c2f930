package writer

import (
	"bytes"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// atPlaceholder renders squirrel's default "?" placeholders as "@0", "@1",
// ... in positional order (spec.md S4.5 step 7: "binding values through
// parameter placeholders named @0, @1, …").
type atPlaceholder struct{}

var _ sq.PlaceholderFormat = atPlaceholder{}

func (atPlaceholder) ReplacePlaceholders(query string) (string, error) {
	var buf bytes.Buffer
	i := 0
	for _, r := range query {
		if r == '?' {
			fmt.Fprintf(&buf, "@%d", i)
			i++
			continue
		}
		buf.WriteRune(r)
	}
	return buf.String(), nil
}
