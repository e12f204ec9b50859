package docxparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)\s*([^\d\s\-+.]+)?$`)

// ParseNumber extracts a trailing numeric value and an optional unit from
// cell or statement text. Thousands separators (both ASCII and fullwidth)
// are dropped; a parenthesized value is negative. Unparseable text yields
// (nil, nil) and the raw text is preserved by the caller.
func ParseNumber(text string) (*float64, *string) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "，", "")

	neg := false
	if len(s) >= 2 {
		if (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")) ||
			(strings.HasPrefix(s, "（") && strings.HasSuffix(s, "）")) {
			neg = true
			s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(s, "("), ")"), "（"), "）")
			s = strings.TrimSpace(s)
		}
	}

	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return nil, nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, nil
	}
	if neg {
		v = -v
	}

	var unit *string
	if u := strings.TrimSpace(m[2]); u != "" {
		u = truncate(u, 32)
		unit = &u
	}
	return &v, unit
}

// FormatNumber renders a numeric value with its unit the way ParseNumber
// reads it back.
func FormatNumber(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit == "" {
		return s
	}
	return fmt.Sprintf("%s %s", s, unit)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
