package docxparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/swscloud/reviewd/internal/textnorm"
)

const (
	maxTitleLen  = 255
	maxNodeNoLen = 32
	maxBlockLen  = 10000
	maxCellLen   = 2000
)

// ParsedNode is one outline heading before persistence. Parent and heading
// block references are indices into the ParsedDoc slices (-1 for none).
type ParsedNode struct {
	NodeNo     string
	Title      string
	Level      int
	ParentIdx  int
	OrderIndex int
	BlockIdx   int
}

// BlockKind mirrors the persisted block types.
type BlockKind string

const (
	KindHeading BlockKind = "HEADING"
	KindPara    BlockKind = "PARA"
	KindTable   BlockKind = "TABLE"
)

// ParsedBlock is one ordered content unit before persistence.
type ParsedBlock struct {
	Kind       BlockKind
	OutlineIdx int
	OrderIndex int
	Text       string
	TableIdx   int
}

// ParsedCell is one table cell with its parsed numeric value.
type ParsedCell struct {
	Text string
	Num  *float64
	Unit *string
}

// ParsedTable is one source table before persistence.
type ParsedTable struct {
	OutlineIdx int
	TableNo    *string
	Title      *string
	Rows       [][]ParsedCell
}

// ParsedDoc is the output of the structure builder.
type ParsedDoc struct {
	Nodes  []ParsedNode
	Blocks []ParsedBlock
	Tables []ParsedTable
}

// Options tunes the structure builder.
type Options struct {
	// DedupWindow is how many of the first emitted titles are checked when
	// suppressing repeated-outline artifacts. Minimum 5.
	DedupWindow int
}

var (
	styleHeadingRe = regexp.MustCompile(`^Heading\s*(\d+)$`)
	styleCNRe      = regexp.MustCompile(`^标题\s*(\d+)$`)
	numPrefixRe    = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s*`)
	headingRestRe  = regexp.MustCompile(`^[\p{Han}a-zA-Z]`)
	appendixRe     = regexp.MustCompile(`^(附表|附件|附图)\s*(\d*)`)
	tocTailRe      = regexp.MustCompile(`^(.+?)\s+(\d+)\s*$`)
	trailingNumRe  = regexp.MustCompile(`\d+\s*$`)
	tableTitleRe   = regexp.MustCompile(`^表\s*[\d.\-]+\s*[：:]?\s*(.+)$`)
	tableNoRe      = regexp.MustCompile(`表\s*[\d.\-]+`)
)

// DetectHeading reports whether (style, text) identifies a heading and at
// what level (1..6). Date-like runs such as "2023年11月9日" are rejected.
func DetectHeading(style, text string) (int, bool) {
	text = textnorm.Norm(text)
	if text == "" {
		return 0, false
	}

	for _, re := range []*regexp.Regexp{styleHeadingRe, styleCNRe} {
		if m := re.FindStringSubmatch(strings.TrimSpace(style)); m != nil {
			lvl, err := strconv.Atoi(m[1])
			if err == nil && lvl >= 1 {
				return clampLevel(lvl), true
			}
		}
	}

	if m := appendixRe.FindStringSubmatch(text); m != nil {
		if m[2] != "" {
			return 2, true
		}
		return 1, true
	}

	if m := numPrefixRe.FindStringSubmatch(text); m != nil && m[1] != "" {
		segs := strings.Split(m[1], ".")
		rest := text[len(m[0]):]
		if first, err := strconv.Atoi(segs[0]); err == nil && len(segs) == 1 && first > 100 {
			return 0, false
		}
		if strings.HasPrefix(rest, "年") {
			return 0, false
		}
		if rest == "" || headingRestRe.MatchString(rest) {
			return clampLevel(len(segs)), true
		}
	}
	return 0, false
}

func clampLevel(l int) int {
	if l < 1 {
		return 1
	}
	if l > 6 {
		return 6
	}
	return l
}

type builder struct {
	doc      ParsedDoc
	opts     Options
	counters [7]int
	// stack holds indices of the current ancestor chain, innermost last.
	stack      []int
	inTOC      bool
	seenTitles map[string]bool
	fromTOC    map[string]bool
	titleSeq   []string
	blockOrder int
	lastPara   string
}

// BuildStructure turns ordered source elements into the outline tree, block
// sequence and tables of a version.
func BuildStructure(elems []Element, opts Options) *ParsedDoc {
	if opts.DedupWindow < 5 {
		opts.DedupWindow = 15
	}
	b := &builder{opts: opts, seenTitles: make(map[string]bool), fromTOC: make(map[string]bool)}
	for _, el := range elems {
		switch el.Kind {
		case ElemPara:
			b.addPara(el)
		case ElemTable:
			b.addTable(el)
		}
	}
	return &b.doc
}

func (b *builder) currentOutline() int {
	if len(b.stack) == 0 {
		return -1
	}
	return b.stack[len(b.stack)-1]
}

func (b *builder) addPara(el Element) {
	text := textnorm.Norm(el.Text)
	if text == "" {
		return
	}
	compact := strings.ReplaceAll(text, " ", "")
	if strings.Contains(compact, "目录") {
		b.inTOC = true
		if compact == "目录" {
			b.lastPara = text
			return
		}
	}

	title := text
	level, isHeading := DetectHeading(el.Style, text)

	// A heading ending in a bare page number is a TOC line when the stripped
	// remainder still detects as a heading; seeing one opens the TOC region
	// even without a 目录 marker. Appendix rows like "附件 3" carry a real
	// trailing number and stay intact.
	if isHeading && !appendixRe.MatchString(text) {
		if m := tocTailRe.FindStringSubmatch(text); m != nil {
			stripped := textnorm.Norm(m[1])
			if lvl, ok := DetectHeading(el.Style, stripped); ok {
				b.inTOC = true
				no, bare := splitHeadingNo(stripped)
				if b.seenTitles[headingKey(no, bare)] {
					b.lastPara = text
					return
				}
				title, level = stripped, lvl
			}
		}
	}
	if b.inTOC && isHeading && level == 1 && !trailingNumRe.MatchString(text) {
		// Body resumed: a level-1 heading without a trailing page number.
		b.inTOC = false
	}

	if !isHeading {
		b.appendBlock(ParsedBlock{
			Kind:       KindPara,
			OutlineIdx: b.currentOutline(),
			Text:       textnorm.TruncateRunes(text, maxBlockLen),
			TableIdx:   -1,
		})
		b.lastPara = text
		return
	}

	nodeNo, title := splitHeadingNo(title)
	b.addHeading(nodeNo, title, level)
	b.lastPara = text
}

// splitHeadingNo separates an explicit numeric prefix ("2.3 水土流失预测")
// from the heading title. Headings without one keep their full text and get
// a synthesized number.
func splitHeadingNo(text string) (string, string) {
	if m := numPrefixRe.FindStringSubmatch(text); m != nil && m[1] != "" {
		if rest := strings.TrimSpace(text[len(m[0]):]); rest != "" {
			return m[1], rest
		}
	}
	return "", text
}

func (b *builder) addHeading(nodeNo, title string, level int) {
	title = textnorm.TruncateRunes(title, maxTitleLen)
	// Keyed on the explicit number (or bare title) so TOC lines and their
	// body counterparts collide before any numbering is synthesized.
	key := headingKey(nodeNo, title)

	parent := b.parentFor(level)

	// Skip a heading identical to the immediately previous one.
	if n := len(b.doc.Nodes); n > 0 {
		prev := b.doc.Nodes[n-1]
		if prev.Title == title && prev.Level == level && prev.ParentIdx == parent {
			return
		}
	}
	// Body headings repeat the titles the TOC already contributed.
	if b.fromTOC[key] {
		return
	}
	// Repeated-outline artifact: the same leading titles re-emitted later in
	// the document (common in generated reports).
	if len(b.doc.Nodes) >= 5 {
		window := b.opts.DedupWindow
		if window > len(b.titleSeq) {
			window = len(b.titleSeq)
		}
		for _, t := range b.titleSeq[:window] {
			if t == title {
				return
			}
		}
	}

	b.counters[level]++
	for l := level + 1; l <= 6; l++ {
		b.counters[l] = 0
	}
	if nodeNo == "" {
		parts := make([]string, 0, level)
		for l := 1; l <= level; l++ {
			if b.counters[l] > 0 {
				parts = append(parts, strconv.Itoa(b.counters[l]))
			}
		}
		nodeNo = strings.Join(parts, ".")
	} else if segs := strings.Split(nodeNo, "."); len(segs) > 0 {
		// Keep synthesized numbering in step with the document's own.
		if n, err := strconv.Atoi(segs[len(segs)-1]); err == nil {
			b.counters[level] = n
		}
	}
	nodeNo = textnorm.TruncateRunes(nodeNo, maxNodeNoLen)

	idx := len(b.doc.Nodes)
	node := ParsedNode{
		NodeNo:     nodeNo,
		Title:      title,
		Level:      level,
		ParentIdx:  parent,
		OrderIndex: idx,
		BlockIdx:   -1,
	}

	// Maintain the ancestor stack: pop everything at >= level, push self.
	for len(b.stack) > 0 && b.doc.Nodes[b.stack[len(b.stack)-1]].Level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	b.stack = append(b.stack, idx)

	blockIdx := b.appendBlock(ParsedBlock{
		Kind:       KindHeading,
		OutlineIdx: idx,
		Text:       title,
		TableIdx:   -1,
	})
	node.BlockIdx = blockIdx
	b.doc.Nodes = append(b.doc.Nodes, node)

	b.seenTitles[key] = true
	if b.inTOC {
		b.fromTOC[key] = true
	}
	if len(b.titleSeq) < 20 {
		b.titleSeq = append(b.titleSeq, title)
	}
}

func headingKey(nodeNo, title string) string {
	if nodeNo == "" {
		return title
	}
	return nodeNo + " " + title
}

// parentFor returns the index of the nearest node with a smaller level.
func (b *builder) parentFor(level int) int {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if b.doc.Nodes[b.stack[i]].Level < level {
			return b.stack[i]
		}
	}
	return -1
}

func (b *builder) appendBlock(blk ParsedBlock) int {
	blk.OrderIndex = b.blockOrder
	b.blockOrder++
	b.doc.Blocks = append(b.doc.Blocks, blk)
	return len(b.doc.Blocks) - 1
}

func (b *builder) addTable(el Element) {
	if len(el.Rows) == 0 {
		return
	}
	t := ParsedTable{OutlineIdx: b.currentOutline()}

	// The immediately preceding paragraph may caption the table.
	if m := tableTitleRe.FindStringSubmatch(b.lastPara); m != nil {
		title := textnorm.TruncateRunes(textnorm.Norm(m[1]), maxTitleLen)
		t.Title = &title
		if no := tableNoRe.FindString(b.lastPara); no != "" {
			no = strings.ReplaceAll(no, " ", "")
			t.TableNo = &no
		}
	}

	for _, row := range el.Rows {
		cells := make([]ParsedCell, 0, len(row))
		for _, raw := range row {
			text := textnorm.TruncateRunes(strings.TrimSpace(raw), maxCellLen)
			num, unit := ParseNumber(text)
			cells = append(cells, ParsedCell{Text: text, Num: num, Unit: unit})
		}
		t.Rows = append(t.Rows, cells)
	}

	if t.TableNo == nil && len(t.Rows) > 0 && len(t.Rows[0]) > 0 {
		if no := tableNoRe.FindString(t.Rows[0][0].Text); no != "" {
			no = strings.ReplaceAll(no, " ", "")
			t.TableNo = &no
		}
	}

	tableIdx := len(b.doc.Tables)
	b.doc.Tables = append(b.doc.Tables, t)
	b.appendBlock(ParsedBlock{
		Kind:       KindTable,
		OutlineIdx: b.currentOutline(),
		TableIdx:   tableIdx,
	})
}
