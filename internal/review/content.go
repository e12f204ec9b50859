package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// contentRequiredSections maps each required chapter to the title keywords
// that satisfy it.
var contentRequiredSections = map[string][]string{
	"综合说明":   {"综合说明"},
	"项目概况":   {"项目概况", "工程概况"},
	"项目区概况":  {"项目区概况"},
	"水土流失预测": {"水土流失预测", "水土流失分析"},
	"防治措施":   {"防治措施", "水土保持措施"},
	"监测":     {"监测"},
	"管理":     {"管理", "实施保障"},
	"投资":     {"投资", "投资估算"},
	"结论":     {"结论"},
}

// defaultTriggerRequirements: when a trigger fact is present in the
// document, the listed sections and measures become mandatory.
var defaultTriggerRequirements = map[string]Trigger{
	"是否弃渣":   {RequiredSections: []string{"弃渣场"}, RequiredMeasures: []string{"拦挡", "覆盖", "排水"}},
	"是否临时用地": {RequiredSections: []string{"临时用地"}, RequiredMeasures: []string{"覆盖", "排水"}},
	"是否消纳场":  {RequiredSections: []string{"消纳场"}, RequiredMeasures: []string{"拦挡", "覆盖", "排水"}},
}

var areaUnitKeywords = []string{"面积", "hm²", "hm2", "m²", "m2", "公顷"}

var predictionElements = []string{"分区", "时段", "侵蚀强度", "侵蚀量"}

// ContentReview checks document completeness beyond bare section presence.
// Sub-check ids: required_sections, trigger_requirements, required_elements.
func ContentReview(ctx *Context, rc RuleConfig) []IssueDraft {
	titles := joinedTitles(ctx)
	corpus := joinedText(ctx)

	var drafts []IssueDraft
	if rc.CheckEnabled("required_sections") {
		drafts = append(drafts, checkContentSections(ctx, titles)...)
	}
	if rc.CheckEnabled("trigger_requirements") {
		drafts = append(drafts, checkTriggerRequirements(ctx, rc, titles, corpus)...)
	}
	if rc.CheckEnabled("required_elements") {
		drafts = append(drafts, checkRequiredElements(ctx, titles)...)
	}
	return drafts
}

func joinedTitles(ctx *Context) string {
	var sb strings.Builder
	for _, n := range ctx.Outline {
		sb.WriteString(n.Title)
		sb.WriteByte(' ')
	}
	return sb.String()
}

func joinedText(ctx *Context) string {
	var sb strings.Builder
	for i := range ctx.Blocks {
		sb.WriteString(ctx.Blocks[i].Text)
		sb.WriteByte(' ')
	}
	return sb.String()
}

func checkContentSections(ctx *Context, titles string) []IssueDraft {
	names := make([]string, 0, len(contentRequiredSections))
	for name := range contentRequiredSections {
		names = append(names, name)
	}
	sort.Strings(names)

	var evidence []int64
	if id := ctx.FirstHeadingBlock(); id != nil {
		evidence = []int64{*id}
	}

	var drafts []IssueDraft
	for _, name := range names {
		if firstContained(titles, contentRequiredSections[name]) != "" {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType:        "CONTENT",
			Severity:         docmodel.SeverityS1,
			Title:            fmt.Sprintf("内容缺失：未见“%s”章节", name),
			Description:      fmt.Sprintf("提纲标题中未找到“%s”相关章节（匹配关键词：%s）。", name, strings.Join(contentRequiredSections[name], "、")),
			Suggestion:       fmt.Sprintf("请补充“%s”章节内容。", name),
			Confidence:       0.8,
			EvidenceBlockIDs: evidence,
		})
	}
	return drafts
}

func checkTriggerRequirements(ctx *Context, rc RuleConfig, titles, corpus string) []IssueDraft {
	reqs := defaultTriggerRequirements
	if len(rc.TriggerRequirements) > 0 {
		reqs = rc.TriggerRequirements
	}

	keys := make([]string, 0, len(reqs))
	for k := range reqs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var drafts []IssueDraft
	for _, key := range keys {
		group := ctx.FactsByKey[key]
		if len(group) == 0 {
			continue
		}
		var evidence []int64
		for _, f := range group {
			if f.SourceBlockID != nil {
				evidence = append(evidence, *f.SourceBlockID)
			}
		}
		req := reqs[key]

		for _, section := range req.RequiredSections {
			if strings.Contains(titles, section) {
				continue
			}
			drafts = append(drafts, IssueDraft{
				IssueType:        "CONTENT",
				Severity:         docmodel.SeverityS2,
				Title:            fmt.Sprintf("触发条件“%s”成立但缺少“%s”章节", key, section),
				Description:      fmt.Sprintf("文档中出现了“%s”相关内容，但提纲未见“%s”。", key, section),
				Suggestion:       fmt.Sprintf("请补充“%s”章节。", section),
				Confidence:       0.8,
				EvidenceBlockIDs: dedupIDs(evidence),
			})
		}
		for _, measure := range req.RequiredMeasures {
			if strings.Contains(corpus, measure) {
				continue
			}
			drafts = append(drafts, IssueDraft{
				IssueType:        "CONTENT",
				Severity:         docmodel.SeverityS2,
				Title:            fmt.Sprintf("触发条件“%s”成立但未见“%s”措施", key, measure),
				Description:      fmt.Sprintf("文档中出现了“%s”相关内容，但未提及“%s”措施。", key, measure),
				Suggestion:       fmt.Sprintf("请补充“%s”措施的设计说明。", measure),
				Confidence:       0.75,
				EvidenceBlockIDs: dedupIDs(evidence),
			})
		}
	}
	return drafts
}

func checkRequiredElements(ctx *Context, titles string) []IssueDraft {
	var drafts []IssueDraft

	// 防治责任范围 statements must quantify an area.
	var mentionBlocks []int64
	quantified := false
	for i := range ctx.Blocks {
		b := &ctx.Blocks[i]
		if !strings.Contains(b.Text, "防治责任范围") {
			continue
		}
		mentionBlocks = append(mentionBlocks, b.ID)
		if firstContained(b.Text, areaUnitKeywords) != "" {
			quantified = true
		}
	}
	if len(mentionBlocks) > 0 && !quantified {
		drafts = append(drafts, IssueDraft{
			IssueType:        "CONTENT",
			Severity:         docmodel.SeverityS2,
			Title:            "防治责任范围未量化",
			Description:      "提及防治责任范围的段落均未给出面积数值或计量单位。",
			Suggestion:       "请以面积（m²或hm²）明确防治责任范围。",
			Confidence:       0.8,
			EvidenceBlockIDs: dedupIDs(mentionBlocks),
		})
	}

	// A prediction chapter must carry its standard elements.
	if strings.Contains(titles, "水土流失预测") {
		corpus := joinedText(ctx)
		var missing []string
		for _, el := range predictionElements {
			if !strings.Contains(corpus, el) {
				missing = append(missing, el)
			}
		}
		if len(missing) > 0 {
			var evidence []int64
			if id := ctx.FirstHeadingBlock(); id != nil {
				evidence = []int64{*id}
			}
			drafts = append(drafts, IssueDraft{
				IssueType:        "CONTENT",
				Severity:         docmodel.SeverityS2,
				Title:            "水土流失预测要素不全",
				Description:      fmt.Sprintf("预测章节缺少要素：%s。", strings.Join(missing, "、")),
				Suggestion:       "请补充预测分区、预测时段、侵蚀强度与侵蚀量等要素。",
				Confidence:       0.75,
				EvidenceBlockIDs: evidence,
			})
		}
	}
	return drafts
}
