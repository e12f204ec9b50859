// Package textnorm normalizes document text for matching. Both the source
// parser and the page aligner must agree on one normal form, otherwise
// probe fragments never match rendered page text.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var wsRun = regexp.MustCompile(`\s+`)

// Norm collapses whitespace runs to single spaces, strips BOM and zero-width
// characters, converts ideographic space to space and trims the result.
func Norm(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\ufeff', '\u200b', '\u200c', '\u200d':
			continue
		case '　':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(wsRun.ReplaceAllString(b.String(), " "))
}

// Compact removes all whitespace after Norm. Used for quote containment
// checks, where spacing differences between source and render are noise.
func Compact(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, Norm(s))
}

// FoldWidth converts fullwidth ASCII forms to their halfwidth equivalents.
// Rendered pages and authored text frequently disagree here.
func FoldWidth(s string) string {
	return width.Narrow.String(s)
}

// TruncateRunes shortens s to at most n runes.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
