// Package align locates logical blocks within rendered pages. For each block
// it probes the page text with representative fragments, prefilters candidate
// pages with an expanding window around the last hit, and picks a rectangle
// that progresses monotonically down each page.
package align

import (
	"sort"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/pagetext"
)

// PageSource is the minimal renderer capability the aligner needs.
type PageSource interface {
	PageCount() int
	PageNormText(p int) string
	Find(p int, fragment string) []docmodel.Rect
	PageSize(p int) (w, h float64)
}

// Input is one block to align, in document order.
type Input struct {
	BlockID int64
	Kind    docmodel.BlockType
	Text    string
	TableNo string
	Title   string
}

// BlockPage records the resolved page of a block (nil when unanchored).
type BlockPage struct {
	BlockID int64 `json:"block_id"`
	PageNo  *int  `json:"page_no"`
}

// Result is the aligner output.
type Result struct {
	Anchors    []docmodel.PageAnchor
	BlockPages []BlockPage
}

const (
	minFragment = 8
	fullConfLen = 40
	// yBacktrack tolerates anti-aliasing and baseline variance when
	// enforcing forward progression within a page.
	yBacktrack = 2.0
)

var probeLengths = []int{40, 30, 20}

// Align anchors every block it can and returns the anchors plus the complete
// block→page map.
func Align(src PageSource, blocks []Input) *Result {
	res := &Result{}
	pageCount := src.PageCount()
	lastPage := 1
	lastY := make(map[int]float64)

	for _, blk := range blocks {
		frags := candidates(blk)
		if len(frags) == 0 || pageCount == 0 {
			res.BlockPages = append(res.BlockPages, BlockPage{BlockID: blk.BlockID})
			continue
		}

		pages := candidatePages(src, frags[len(frags)-1], lastPage, pageCount)
		anchored := false
		for _, c := range pages {
			rect, fragLen, ok := locate(src, c, frags, lastY)
			if !ok {
				continue
			}
			w, h := src.PageSize(c)
			conf := float64(fragLen) / fullConfLen
			if conf > 1 {
				conf = 1
			}
			anchor := docmodel.PageAnchor{
				BlockID:    blk.BlockID,
				PageNo:     c,
				X0:         rect.X0,
				Y0:         rect.Y0,
				X1:         rect.X1,
				Y1:         rect.Y1,
				Confidence: conf,
			}
			if w > 0 && h > 0 {
				anchor.NX0 = rect.X0 / w
				anchor.NY0 = rect.Y0 / h
				anchor.NX1 = rect.X1 / w
				anchor.NY1 = rect.Y1 / h
			}
			res.Anchors = append(res.Anchors, anchor)
			page := c
			res.BlockPages = append(res.BlockPages, BlockPage{BlockID: blk.BlockID, PageNo: &page})
			lastPage = c
			lastY[c] = rect.Y0
			anchored = true
			break
		}
		if !anchored {
			res.BlockPages = append(res.BlockPages, BlockPage{BlockID: blk.BlockID})
		}
	}
	return res
}

// candidates emits probe fragments for a block, longest first. Fragments
// shorter than minFragment are discarded.
func candidates(blk Input) []string {
	var raw []string
	if blk.Kind == docmodel.BlockTable {
		no := pagetext.Normalize(blk.TableNo)
		title := pagetext.Normalize(blk.Title)
		switch {
		case no != "" && title != "":
			raw = append(raw, no+" "+title, no, title)
		case no != "":
			raw = append(raw, no)
		case title != "":
			raw = append(raw, title)
		}
	} else {
		norm := []rune(pagetext.Normalize(blk.Text))
		for _, n := range probeLengths {
			if len(norm) >= n {
				raw = append(raw, string(norm[:n]))
			}
		}
		if len(raw) == 0 && len(norm) >= minFragment {
			raw = append(raw, string(norm))
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, f := range raw {
		if len([]rune(f)) < minFragment || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len([]rune(out[i])) > len([]rune(out[j]))
	})
	return out
}

// candidatePages prefilters pages containing the shortest fragment using an
// expanding window around the last anchored page, falling back to a full
// scan. Results are ordered by proximity to the last anchored page.
func candidatePages(src PageSource, probe string, lastPage, pageCount int) []int {
	for _, w := range []int{3, 8, 20, pageCount} {
		lo := lastPage - 1
		if lo < 1 {
			lo = 1
		}
		hi := lastPage - 1 + w
		if hi > pageCount {
			hi = pageCount
		}
		var found []int
		for p := lo; p <= hi; p++ {
			if strings.Contains(src.PageNormText(p), probe) {
				found = append(found, p)
			}
		}
		if len(found) > 0 {
			sort.SliceStable(found, func(i, j int) bool {
				di, dj := abs(found[i]-lastPage), abs(found[j]-lastPage)
				if di != dj {
					return di < dj
				}
				return found[i] < found[j]
			})
			return found
		}
		if hi == pageCount && lo == 1 {
			break
		}
	}
	return nil
}

// locate tries the probe fragments on one page, longest first, and picks the
// first rectangle at or below the page's forward-progress cursor.
func locate(src PageSource, page int, frags []string, lastY map[int]float64) (docmodel.Rect, int, bool) {
	for _, frag := range frags {
		rects := src.Find(page, frag)
		if len(rects) == 0 {
			continue
		}
		sort.SliceStable(rects, func(i, j int) bool {
			if rects[i].Y0 != rects[j].Y0 {
				return rects[i].Y0 < rects[j].Y0
			}
			return rects[i].X0 < rects[j].X0
		})
		chosen := rects[0]
		if floor, ok := lastY[page]; ok {
			for _, r := range rects {
				if r.Y0 >= floor-yBacktrack {
					chosen = r
					break
				}
			}
		}
		return chosen, len([]rune(frag)), true
	}
	return docmodel.Rect{}, 0, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
