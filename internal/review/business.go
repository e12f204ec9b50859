package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// defaultProhibitions pairs facility keywords with siting keywords they must
// never co-occur with in one statement.
var defaultProhibitions = map[string]ProhRule{
	"消纳场禁限区": {
		Triggers:   []string{"消纳场", "专门存放地"},
		Prohibited: []string{"水源保护区", "生态红线", "自然保护区核心区"},
	},
}

// BusinessLogicReview scans blocks for prohibited co-occurrences: a trigger
// keyword and a prohibited keyword in the same block indicate a siting
// conflict.
func BusinessLogicReview(ctx *Context, rc RuleConfig) []IssueDraft {
	rules := defaultProhibitions
	if len(rc.ProhibitionRules) > 0 {
		rules = rc.ProhibitionRules
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	var drafts []IssueDraft
	for _, name := range names {
		rule := rules[name]
		for i := range ctx.Blocks {
			b := &ctx.Blocks[i]
			if b.BlockType == docmodel.BlockTable || b.Text == "" {
				continue
			}
			trigger := firstContained(b.Text, rule.Triggers)
			if trigger == "" {
				continue
			}
			prohibited := firstContained(b.Text, rule.Prohibited)
			if prohibited == "" {
				continue
			}
			drafts = append(drafts, IssueDraft{
				IssueType: "BUSINESS_LOGIC",
				Severity:  docmodel.SeverityS1,
				Title:     fmt.Sprintf("业务逻辑冲突：%s", name),
				Description: fmt.Sprintf("同一段落同时出现“%s”与“%s”，存在禁限区选址风险。",
					trigger, prohibited),
				Suggestion:       fmt.Sprintf("请核实“%s”选址是否落入“%s”，必要时调整选址并补充论证。", trigger, prohibited),
				Confidence:       0.9,
				EvidenceBlockIDs: []int64{b.ID},
				EvidenceQuotes:   []string{quoteOf(b.Text)},
			})
		}
	}
	return drafts
}

func firstContained(text string, kws []string) string {
	for _, kw := range kws {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

func quoteOf(text string) string {
	r := []rune(text)
	if len(r) > 500 {
		return string(r[:500])
	}
	return text
}
