package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseInt parses a catalog integer, accepting decimal, "0x..." hex, and
// "&h..." hex forms (spec.md S4.1): ParseInt("0x1F") == ParseInt("&h1F") ==
// ParseInt("31") == 31.
func ParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	var v int64
	var err error
	switch {
	case len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X"):
		v, err = parseHexInt(s[2:])
	case len(s) >= 2 && (strings.EqualFold(s[0:2], "&h")):
		v, err = parseHexInt(s[2:])
	default:
		v, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("parsing integer %q: %w", s, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

func parseHexInt(s string) (int64, error) {
	u, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}
