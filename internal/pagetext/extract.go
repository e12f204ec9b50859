package pagetext

import (
	"bytes"
	"math"
	"sort"

	"github.com/ledongthuc/pdf"

	rerr "github.com/swscloud/reviewd/internal/errors"
)

// yTolerance groups glyphs onto one line despite baseline jitter from
// anti-aliased rendering.
const yTolerance = 2.0

// ExtractLayout reads the rendered PDF into the layout model. Glyph runs are
// grouped into lines by baseline, and coordinates are flipped so y grows
// downward (matching the anchor model).
func ExtractLayout(data []byte) (*Layout, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, rerr.Wrap(err, rerr.CategoryParse, rerr.SeverityFatal, "open rendered pdf")
	}

	layout := &Layout{}
	n := r.NumPage()
	if n == 0 {
		return nil, rerr.New(rerr.CategoryParse, rerr.SeverityFatal, "rendered pdf has no pages")
	}

	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			layout.Pages = append(layout.Pages, Page{Number: i})
			continue
		}
		w, h := mediaBoxSize(p)
		page := Page{Number: i, Width: w, Height: h}
		page.Lines = extractLines(p, h)
		layout.Pages = append(layout.Pages, page)
	}
	return layout, nil
}

func mediaBoxSize(p pdf.Page) (float64, float64) {
	box := p.V.Key("MediaBox")
	if box.Len() == 4 {
		w := box.Index(2).Float64() - box.Index(0).Float64()
		h := box.Index(3).Float64() - box.Index(1).Float64()
		if w > 0 && h > 0 {
			return w, h
		}
	}
	// A4 portrait default.
	return 595.0, 842.0
}

func extractLines(p pdf.Page, pageHeight float64) []Line {
	defer func() { _ = recover() }() // malformed content streams abort one page, not the stage

	content := p.Content()
	texts := make([]pdf.Text, len(content.Text))
	copy(texts, content.Text)

	// Top of page first, then left to right.
	sort.SliceStable(texts, func(i, j int) bool {
		if math.Abs(texts[i].Y-texts[j].Y) > yTolerance {
			return texts[i].Y > texts[j].Y
		}
		return texts[i].X < texts[j].X
	})

	var lines []Line
	var cur *Line
	curBaseline := math.Inf(1)
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		top := pageHeight - t.Y - t.FontSize
		bottom := pageHeight - t.Y
		if cur == nil || math.Abs(t.Y-curBaseline) > yTolerance {
			lines = append(lines, Line{Y0: top, Y1: bottom})
			cur = &lines[len(lines)-1]
			curBaseline = t.Y
		}
		if top < cur.Y0 {
			cur.Y0 = top
		}
		if bottom > cur.Y1 {
			cur.Y1 = bottom
		}
		cur.Chars = append(cur.Chars, Char{S: t.S, X: t.X, W: t.W})
	}
	return lines
}

// FullText concatenates all pages' normalized text, separated by form feeds.
// Used by the knowledge-base indexer.
func (l *Layout) FullText() (string, []PageBoundary) {
	var sb bytes.Buffer
	var bounds []PageBoundary
	for i := range l.Pages {
		start := sb.Len()
		sb.WriteString(l.PageNormText(i + 1))
		bounds = append(bounds, PageBoundary{CharStart: start, CharEnd: sb.Len(), PageNo: i + 1})
		sb.WriteByte('\f')
	}
	return sb.String(), bounds
}

// PageBoundary maps a character range of the concatenated text to a page.
type PageBoundary struct {
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
	PageNo    int `json:"page_no"`
}

// PageAt returns the page containing character offset off, using binary
// search over the boundary table.
func PageAt(bounds []PageBoundary, off int) (int, bool) {
	i := sort.Search(len(bounds), func(i int) bool { return bounds[i].CharEnd > off })
	if i < len(bounds) && off >= bounds[i].CharStart {
		return bounds[i].PageNo, true
	}
	return 0, false
}
