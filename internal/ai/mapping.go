package ai

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/review"
	"github.com/swscloud/reviewd/internal/textnorm"
)

// issueTypeMap translates the model's Chinese issue_type enum into stored
// issue types.
var issueTypeMap = map[string]string{
	"一致性":    "CONSISTENCY",
	"格式":     "FORMAT",
	"表内计算":   "SUM_MISMATCH_ROW",
	"合计行":    "SUM_MISMATCH_ROW",
	"合计列":    "SUM_MISMATCH_COL",
	"百分比合计":  "PERCENTAGE_SUM_MISMATCH",
	"业务逻辑":   "BUSINESS_LOGIC",
	"规范引用":   "CONTENT",
	"信息缺失":   "MISSING_SECTION",
	"术语规范":   "FORMAT",
	"标点":     "FORMAT",
	"缺失章节":   "MISSING_SECTION",
	"单位不一致":  "UNIT_INCONSISTENT",
	"公式平衡":   "FORMULA_BALANCE_MISMATCH",
	"AI合规差距": "AI_COMPLIANCE_GAP",
}

var severityMap = map[string]docmodel.Severity{
	"致命": docmodel.SeverityS1,
	"高":  docmodel.SeverityS2,
	"中":  docmodel.SeverityS3,
	"低":  docmodel.SeverityInfo,
}

// formIssueTypes split findings into form review vs technical review.
var formIssueTypes = map[string]bool{"FORMAT": true, "CONTENT": true}

// DocIndex is the block view the mapper resolves anchors against. Blocks
// keep document order; PageByBlock carries resolved page numbers.
type DocIndex struct {
	Blocks      []docmodel.Block
	PageByBlock map[int64]int
}

// RuleDeposit is one entry of the model's 规则库沉淀清单.
type RuleDeposit struct {
	RuleID  string `json:"rule_id"`
	Summary string `json:"rule_summary"`
}

// MappedIssue is one model finding mapped onto the stored issue shape.
type MappedIssue struct {
	Draft          review.IssueDraft
	CheckpointCode string
	ReviewType     docmodel.ReviewType
}

// stripFences removes a markdown code fence around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseBatchResponse parses one batch's raw model output. ruleCategory maps
// rule_id to the checkpoint's review category. A malformed payload returns
// an error so the caller can retry without the json_object hint.
func ParseBatchResponse(raw string, idx *DocIndex, ruleCategory map[string]string) ([]MappedIssue, []RuleDeposit, error) {
	clean := stripFences(raw)
	if !gjson.Valid(clean) {
		return nil, nil, errors.New(errors.CategoryAI, errors.SeverityError, "model output is not valid JSON")
	}
	root := gjson.Parse(clean)
	results := root.Get("规则校验结果")
	if !results.Exists() {
		results = root.Get("issues")
	}
	if !results.IsArray() {
		return nil, nil, errors.New(errors.CategoryAI, errors.SeverityError, "model output has no 规则校验结果 array")
	}

	var issues []MappedIssue
	for _, item := range results.Array() {
		if m, ok := mapEngineIssue(item, idx, ruleCategory); ok {
			issues = append(issues, m)
		}
	}

	var deposits []RuleDeposit
	for _, d := range root.Get("规则库沉淀清单").Array() {
		deposits = append(deposits, RuleDeposit{
			RuleID:  d.Get("rule_id").String(),
			Summary: d.Get("rule_summary").String(),
		})
	}
	return issues, deposits, nil
}

// mapEngineIssue maps one finding. Page resolution order: first
// evidence.page_refs entry, then location.page, then the page of the block
// whose text prefix contains the anchor, else unresolved.
func mapEngineIssue(item gjson.Result, idx *DocIndex, ruleCategory map[string]string) (MappedIssue, bool) {
	title := strings.TrimSpace(item.Get("issue_title").String())
	if title == "" {
		title = strings.TrimSpace(item.Get("title").String())
	}
	if title == "" {
		return MappedIssue{}, false
	}
	title = textnorm.TruncateRunes(title, 255)

	issueType := issueTypeMap[strings.TrimSpace(item.Get("issue_type").String())]
	if issueType == "" {
		issueType = "AI_COMPLIANCE_GAP"
	}
	severity, ok := severityMap[strings.TrimSpace(item.Get("severity").String())]
	if !ok {
		severity = docmodel.SeverityS2
	}

	loc := item.Get("location")
	evidence := item.Get("evidence")

	var snippets []string
	sn := evidence.Get("snippets")
	if sn.Type == gjson.String {
		snippets = []string{sn.String()}
	} else {
		for _, s := range sn.Array() {
			snippets = append(snippets, s.String())
		}
	}

	anchor := strings.TrimSpace(loc.Get("anchor_text").String())
	if anchor == "" && len(snippets) > 0 {
		anchor = snippets[0]
	}

	pageNo := resolvePage(item, loc, evidence, anchor, idx)

	quotes := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if len(quotes) >= 10 {
			break
		}
		quotes = append(quotes, textnorm.TruncateRunes(s, 500))
	}

	suggestion := buildSuggestion(item.Get("fix_suggestion"))
	description := buildDescription(item, title)

	var evidenceIDs []int64
	if anchor != "" {
		if b := matchBlockByAnchor(anchor, idx); b != nil {
			evidenceIDs = append(evidenceIDs, b.ID)
		}
	}
	if len(evidenceIDs) == 0 && len(idx.Blocks) > 0 {
		evidenceIDs = append(evidenceIDs, idx.Blocks[0].ID)
	}
	if len(evidenceIDs) > 5 {
		evidenceIDs = evidenceIDs[:5]
	}

	ruleID := item.Get("rule_definition.rule_id").String()
	code := ruleID
	if code == "" {
		code = "AI_RULE"
	}
	code = textnorm.TruncateRunes(code, 64)

	reviewType := docmodel.ReviewTech
	if cat := ruleCategory[ruleID]; cat == string(docmodel.ReviewForm) {
		reviewType = docmodel.ReviewForm
	} else if cat == "" && formIssueTypes[issueType] {
		reviewType = docmodel.ReviewForm
	}

	return MappedIssue{
		Draft: review.IssueDraft{
			IssueType:        issueType,
			Severity:         severity,
			Title:            title,
			Description:      description,
			Suggestion:       suggestion,
			Confidence:       0.75,
			EvidenceBlockIDs: evidenceIDs,
			EvidenceQuotes:   quotes,
			PageNo:           pageNo,
		},
		CheckpointCode: code,
		ReviewType:     reviewType,
	}, true
}

func resolvePage(item, loc, evidence gjson.Result, anchor string, idx *DocIndex) *int {
	refs := evidence.Get("page_refs")
	if refs.Type == gjson.String || refs.Type == gjson.Number {
		if p := asPage(refs); p != nil {
			return p
		}
	}
	for _, r := range refs.Array() {
		if p := asPage(r); p != nil {
			return p
		}
		break
	}
	if p := asPage(loc.Get("page")); p != nil {
		return p
	}
	if anchor != "" {
		if b := matchBlockByAnchor(anchor, idx); b != nil {
			if p, ok := idx.PageByBlock[b.ID]; ok && p > 0 {
				return &p
			}
		}
	}
	return nil
}

func asPage(r gjson.Result) *int {
	if !r.Exists() {
		return nil
	}
	p := int(r.Int())
	if p <= 0 {
		return nil
	}
	return &p
}

// matchBlockByAnchor finds the first block whose compacted 100-rune prefix
// contains the compacted 50-rune anchor.
func matchBlockByAnchor(anchor string, idx *DocIndex) *docmodel.Block {
	needle := textnorm.TruncateRunes(textnorm.Compact(anchor), 50)
	if needle == "" {
		return nil
	}
	for i := range idx.Blocks {
		b := &idx.Blocks[i]
		prefix := textnorm.TruncateRunes(textnorm.Compact(b.Text), 100)
		if strings.Contains(prefix, needle) {
			return b
		}
	}
	return nil
}

func buildSuggestion(fix gjson.Result) string {
	if fix.Type == gjson.String {
		s := strings.TrimSpace(fix.String())
		if s != "" {
			return textnorm.TruncateRunes(s, 2000)
		}
	}
	var parts []string
	if s := strings.TrimSpace(fix.Get("suggested_text").String()); s != "" {
		parts = append(parts, s)
	}
	for _, step := range fix.Get("fix_steps").Array() {
		if s := strings.TrimSpace(step.String()); s != "" {
			parts = append(parts, s)
		}
	}
	out := strings.TrimSpace(strings.Join(parts, "\n"))
	if out == "" {
		return "请根据规范库与问题描述自行修正。"
	}
	return textnorm.TruncateRunes(out, 2000)
}

func buildDescription(item gjson.Result, title string) string {
	desc := strings.TrimSpace(item.Get("description").String())
	if desc == "" {
		desc = title
	}
	parts := []string{desc}
	if name := item.Get("rule_definition.rule_name").String(); name != "" {
		parts = append(parts, "规则："+name)
	}
	if basis := item.Get("norm_basis.basis_text").String(); basis != "" && basis != "-" {
		parts = append(parts, "依据："+basis)
	}
	return textnorm.TruncateRunes(strings.Join(parts, "\n"), 2000)
}
