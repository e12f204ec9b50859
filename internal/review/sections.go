package review

import (
	"fmt"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// requiredSectionKeywords are the chapters every plan must contain.
var requiredSectionKeywords = []string{"综合说明", "项目概况", "项目区概况", "水土保持", "投资", "结论"}

// MissingSection checks the outline for required chapters. The configured
// required_sections list overrides the default set.
func MissingSection(ctx *Context, rc RuleConfig) []IssueDraft {
	required := requiredSectionKeywords
	if len(rc.RequiredSections) > 0 {
		required = rc.RequiredSections
	}

	var sb strings.Builder
	for _, n := range ctx.Outline {
		sb.WriteString(strings.ToLower(n.Title))
		sb.WriteByte(' ')
	}
	titles := sb.String()

	var evidence []int64
	if id := ctx.FirstHeadingBlock(); id != nil {
		evidence = []int64{*id}
	}

	var drafts []IssueDraft
	for _, kw := range required {
		if strings.Contains(titles, strings.ToLower(kw)) {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType:        "MISSING_SECTION",
			Severity:         docmodel.SeverityS1,
			Title:            fmt.Sprintf("缺少必备章节：%s", kw),
			Description:      fmt.Sprintf("提纲中未找到包含“%s”的章节标题。", kw),
			Suggestion:       fmt.Sprintf("请补充“%s”章节，或核对章节命名是否规范。", kw),
			Confidence:       0.8,
			EvidenceBlockIDs: evidence,
		})
	}
	return drafts
}
