package review

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// coverKeywordGroups: each group must have at least one hit in the cover
// region (blocks before the first heading).
var coverKeywordGroups = map[string][]string{
	"方案名称": {"水土保持方案", "水土保持"},
	"责任单位": {"建设单位", "编制单位", "生产建设单位"},
	"编制日期": {"年"},
}

// unitVariantGroups: symbol variants that must not be mixed in one document.
var unitVariantGroups = map[string][]string{
	"面积单位": {"hm2", "hm²", "公顷"},
	"面积单位2": {"m2", "m²", "平方米"},
	"体积单位": {"m3", "m³", "立方米"},
}

// FormatReview covers presentation checks. Sub-check ids: cover_required_elements,
// toc_present, heading_numbering, table_numbering, table_caption_present,
// table_referenced, unit_symbol_consistency, table_unit_column_present.
// Figure checks need figure extraction and are not implemented.
func FormatReview(ctx *Context, rc RuleConfig) []IssueDraft {
	corpus := joinedText(ctx)

	checks := []struct {
		name string
		run  func() []IssueDraft
	}{
		{"cover_required_elements", func() []IssueDraft { return checkCoverElements(ctx) }},
		{"toc_present", func() []IssueDraft { return checkTocPresent(ctx, corpus) }},
		{"heading_numbering", func() []IssueDraft { return checkHeadingNumbering(ctx) }},
		{"table_numbering", func() []IssueDraft { return checkTableNumbering(ctx) }},
		{"table_caption_present", func() []IssueDraft { return checkTableCaptions(ctx) }},
		{"table_referenced", func() []IssueDraft { return checkTableReferenced(ctx, corpus) }},
		{"unit_symbol_consistency", func() []IssueDraft { return checkUnitSymbols(ctx, corpus) }},
		{"table_unit_column_present", func() []IssueDraft { return checkTableUnitColumn(ctx) }},
	}

	var drafts []IssueDraft
	for _, c := range checks {
		if rc.CheckEnabled(c.name) {
			drafts = append(drafts, c.run()...)
		}
	}
	return drafts
}

// coverBlocks returns the non-table blocks before the first heading.
func coverBlocks(ctx *Context) []docmodel.Block {
	var out []docmodel.Block
	for i := range ctx.Blocks {
		b := ctx.Blocks[i]
		if b.BlockType == docmodel.BlockHeading {
			break
		}
		if b.BlockType == docmodel.BlockTable {
			continue
		}
		out = append(out, b)
	}
	return out
}

func checkCoverElements(ctx *Context) []IssueDraft {
	cover := coverBlocks(ctx)
	if len(cover) == 0 {
		return nil
	}
	var sb strings.Builder
	var evidence []int64
	for _, b := range cover {
		sb.WriteString(b.Text)
		sb.WriteByte(' ')
		evidence = append(evidence, b.ID)
	}
	text := sb.String()

	var drafts []IssueDraft
	for _, name := range []string{"方案名称", "责任单位", "编制日期"} {
		if firstContained(text, coverKeywordGroups[name]) != "" {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType:        "FORMAT",
			Severity:         docmodel.SeverityS3,
			Title:            fmt.Sprintf("封面缺少%s", name),
			Description:      fmt.Sprintf("正文首个标题之前未找到%s（关键词：%s）。", name, strings.Join(coverKeywordGroups[name], "、")),
			Suggestion:       fmt.Sprintf("请在封面补充%s。", name),
			Confidence:       0.7,
			EvidenceBlockIDs: dedupIDs(evidence),
		})
	}
	return drafts
}

func checkTocPresent(ctx *Context, corpus string) []IssueDraft {
	if strings.Contains(corpus, "目录") {
		return nil
	}
	for _, n := range ctx.Outline {
		if strings.Contains(n.Title, "目录") {
			return nil
		}
	}
	var evidence []int64
	if id := ctx.FirstHeadingBlock(); id != nil {
		evidence = []int64{*id}
	}
	return []IssueDraft{{
		IssueType:        "FORMAT",
		Severity:         docmodel.SeverityS3,
		Title:            "未检测到目录",
		Description:      "文档中未找到“目录”页。",
		Suggestion:       "请在正文前添加目录。",
		Confidence:       0.7,
		EvidenceBlockIDs: evidence,
	}}
}

// checkHeadingNumbering verifies level-1 chapter numbers run 1, 2, 3…
// without gaps.
func checkHeadingNumbering(ctx *Context) []IssueDraft {
	expected := 1
	var drafts []IssueDraft
	for _, n := range ctx.Outline {
		if n.Level != 1 || n.NodeNo == "" {
			continue
		}
		no := strings.TrimSuffix(n.NodeNo, ".")
		if strings.Contains(no, ".") {
			continue
		}
		v, err := strconv.Atoi(no)
		if err != nil {
			continue
		}
		if v != expected {
			var evidence []int64
			if id, ok := ctx.HeadingBlockByNode[n.ID]; ok {
				evidence = []int64{id}
			}
			drafts = append(drafts, IssueDraft{
				IssueType:        "FORMAT",
				Severity:         docmodel.SeverityS3,
				Title:            "章节编号不连续",
				Description:      fmt.Sprintf("一级章节“%s %s”编号应为 %d。", no, n.Title, expected),
				Suggestion:       "请按顺序重排一级章节编号。",
				Confidence:       0.85,
				EvidenceBlockIDs: evidence,
			})
			expected = v + 1
			continue
		}
		expected++
	}
	return drafts
}

func checkTableNumbering(ctx *Context) []IssueDraft {
	seen := make(map[string][]int64)
	var order []string
	for i := range ctx.Tables {
		t := &ctx.Tables[i]
		if t.Table.TableNo == nil || *t.Table.TableNo == "" {
			continue
		}
		no := *t.Table.TableNo
		if _, ok := seen[no]; !ok {
			order = append(order, no)
		}
		seen[no] = append(seen[no], ctx.TableEvidence(t)...)
	}

	var drafts []IssueDraft
	for _, no := range order {
		ids := seen[no]
		if len(ids) < 2 {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType:        "FORMAT",
			Severity:         docmodel.SeverityS2,
			Title:            fmt.Sprintf("表号重复：%s", no),
			Description:      fmt.Sprintf("“%s”在文档中出现了 %d 次。", no, len(ids)),
			Suggestion:       "请为重复的表格分配唯一表号。",
			Confidence:       0.9,
			EvidenceBlockIDs: dedupIDs(ids),
		})
	}
	return drafts
}

func checkTableCaptions(ctx *Context) []IssueDraft {
	var drafts []IssueDraft
	for i := range ctx.Tables {
		t := &ctx.Tables[i]
		if t.Table.Title != nil && strings.TrimSpace(*t.Table.Title) != "" {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType:        "FORMAT",
			Severity:         docmodel.SeverityS3,
			Title:            fmt.Sprintf("%s缺少表题", tableLabel(t)),
			Description:      "表格上方未找到“表X-X 标题”形式的表题。",
			Suggestion:       "请为表格补充规范表题。",
			Confidence:       0.8,
			EvidenceBlockIDs: ctx.TableEvidence(t),
		})
	}
	return drafts
}

// checkTableReferenced looks for an in-text reference to each numbered
// table: 见表X、如表X、表X所示、表X可见.
func checkTableReferenced(ctx *Context, corpus string) []IssueDraft {
	var drafts []IssueDraft
	for i := range ctx.Tables {
		t := &ctx.Tables[i]
		if t.Table.TableNo == nil || *t.Table.TableNo == "" {
			continue
		}
		no := strings.ReplaceAll(*t.Table.TableNo, " ", "")
		body := strings.ReplaceAll(corpus, " ", "")
		referenced := strings.Contains(body, "见"+no) ||
			strings.Contains(body, "如"+no) ||
			strings.Contains(body, no+"所示") ||
			strings.Contains(body, no+"可见")
		if referenced {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType:        "FORMAT",
			Severity:         docmodel.SeverityS3,
			Title:            fmt.Sprintf("正文未引用%s", *t.Table.TableNo),
			Description:      fmt.Sprintf("正文中未找到对“%s”的引用（见/如/所示/可见）。", *t.Table.TableNo),
			Suggestion:       fmt.Sprintf("请在相关段落中引用“%s”。", *t.Table.TableNo),
			Confidence:       0.75,
			EvidenceBlockIDs: ctx.TableEvidence(t),
		})
	}
	return drafts
}

func checkUnitSymbols(ctx *Context, corpus string) []IssueDraft {
	var drafts []IssueDraft
	for _, name := range []string{"面积单位", "面积单位2", "体积单位"} {
		variants := unitVariantGroups[name]
		var present []string
		for _, v := range variants {
			if strings.Contains(corpus, v) {
				present = append(present, v)
			}
		}
		// hm² contains no hm2 substring, but m² vs m2 overlap with hm
		// variants; drop m-variants already counted as hm-variants.
		if name == "面积单位2" {
			present = filterShadowed(corpus, present)
		}
		if len(present) < 2 {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType:   "FORMAT",
			Severity:    docmodel.SeverityS2,
			Title:       fmt.Sprintf("%s写法不统一", strings.TrimSuffix(name, "2")),
			Description: fmt.Sprintf("文档中混用了 %s。", strings.Join(present, "、")),
			Suggestion:  fmt.Sprintf("请统一使用其中一种写法（建议 %s）。", variants[1]),
			Confidence:  0.8,
		})
	}
	return drafts
}

// filterShadowed keeps an m-variant only when it occurs outside an
// hm-variant occurrence.
func filterShadowed(corpus string, present []string) []string {
	var out []string
	for _, v := range present {
		if v != "m2" && v != "m²" {
			out = append(out, v)
			continue
		}
		stripped := strings.ReplaceAll(corpus, "h"+v, "")
		if strings.Contains(stripped, v) {
			out = append(out, v)
		}
	}
	return out
}

// checkTableUnitColumn flags tables whose cells carry numbers but whose
// header row never declares a unit.
func checkTableUnitColumn(ctx *Context) []IssueDraft {
	var drafts []IssueDraft
	for i := range ctx.Tables {
		t := &ctx.Tables[i]
		numeric := false
		headerHasUnit := false
		titleHasUnit := t.Table.Title != nil && strings.Contains(*t.Table.Title, "单位")
		for _, c := range t.Cells {
			if c.Row == 0 && (strings.Contains(c.Text, "单位") || c.Unit != nil) {
				headerHasUnit = true
			}
			if c.Row > 0 && c.NumValue != nil {
				numeric = true
			}
		}
		if !numeric || headerHasUnit || titleHasUnit {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType:        "FORMAT",
			Severity:         docmodel.SeverityS3,
			Title:            fmt.Sprintf("%s未标注计量单位", tableLabel(t)),
			Description:      "表格含数值但表头与表题均未标注单位。",
			Suggestion:       "请在表头或表题中标注计量单位。",
			Confidence:       0.7,
			EvidenceBlockIDs: ctx.TableEvidence(t),
		})
	}
	return drafts
}
