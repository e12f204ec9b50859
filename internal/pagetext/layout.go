// Package pagetext models the rendered fixed-page output as addressable,
// searchable text with geometry. The aligner only needs three capabilities
// from a renderer: page count, normalized page text, and substring search
// returning rectangles.
package pagetext

import (
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/textnorm"
)

// Char is one positioned glyph run on a line.
type Char struct {
	S string  `json:"s"`
	X float64 `json:"x"`
	W float64 `json:"w"`
}

// Line is a horizontal run of chars sharing a baseline.
type Line struct {
	Y0    float64 `json:"y0"`
	Y1    float64 `json:"y1"`
	Chars []Char  `json:"chars"`
}

// Page is one rendered page. Y grows downward from the top edge.
type Page struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Lines  []Line  `json:"lines"`

	normText  string
	normBuilt bool
}

// Layout is the rendered document.
type Layout struct {
	Pages []Page `json:"pages"`
}

// PageCount returns the number of rendered pages.
func (l *Layout) PageCount() int { return len(l.Pages) }

// normalize builds the canonical matching form of s: width-folded,
// whitespace-collapsed.
func normalize(s string) string {
	return textnorm.Norm(textnorm.FoldWidth(s))
}

// Normalize exposes the layout's matching normal form so probe fragments are
// built identically.
func Normalize(s string) string { return normalize(s) }

// PageNormText returns the normalized full text of page p (1-based).
func (l *Layout) PageNormText(p int) string {
	if p < 1 || p > len(l.Pages) {
		return ""
	}
	pg := &l.Pages[p-1]
	if !pg.normBuilt {
		var sb strings.Builder
		for _, line := range pg.Lines {
			for _, c := range line.Chars {
				sb.WriteString(c.S)
			}
			sb.WriteByte('\n')
		}
		pg.normText = normalize(sb.String())
		pg.normBuilt = true
	}
	return pg.normText
}

// PageSize returns the dimensions of page p in points.
func (l *Layout) PageSize(p int) (w, h float64) {
	if p < 1 || p > len(l.Pages) {
		return 0, 0
	}
	return l.Pages[p-1].Width, l.Pages[p-1].Height
}

// Find locates every occurrence of fragment on page p and returns their
// rectangles. Matching is line-local: the normalized fragment must fit on a
// single rendered line.
func (l *Layout) Find(p int, fragment string) []docmodel.Rect {
	if p < 1 || p > len(l.Pages) {
		return nil
	}
	want := []rune(normalize(fragment))
	if len(want) == 0 {
		return nil
	}
	var rects []docmodel.Rect
	for _, line := range l.Pages[p-1].Lines {
		rects = append(rects, line.find(want)...)
	}
	return rects
}

// find matches the normalized fragment against the line, tracking which
// source char produced each normalized rune so match boundaries map back to
// x-coordinates.
func (line *Line) find(want []rune) []docmodel.Rect {
	var norm []rune
	var src []int // norm rune index -> char index
	lastSpace := true
	for ci, c := range line.Chars {
		for _, r := range textnorm.FoldWidth(c.S) {
			switch r {
			case '\ufeff', '\u200b', '\u200c', '\u200d':
				continue
			case '　', ' ', '\t', '\n', '\r':
				if lastSpace {
					continue
				}
				norm = append(norm, ' ')
				src = append(src, ci)
				lastSpace = true
			default:
				norm = append(norm, r)
				src = append(src, ci)
				lastSpace = false
			}
		}
	}
	// Trim a trailing space.
	for len(norm) > 0 && norm[len(norm)-1] == ' ' {
		norm = norm[:len(norm)-1]
		src = src[:len(src)-1]
	}

	var rects []docmodel.Rect
	for start := 0; start+len(want) <= len(norm); start++ {
		if !runesEqual(norm[start:start+len(want)], want) {
			continue
		}
		first := line.Chars[src[start]]
		last := line.Chars[src[start+len(want)-1]]
		rects = append(rects, docmodel.Rect{
			X0: first.X,
			Y0: line.Y0,
			X1: last.X + last.W,
			Y1: line.Y1,
		})
		start += len(want) - 1
	}
	return rects
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
