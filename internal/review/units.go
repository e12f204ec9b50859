package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// UnitInconsistent flags table columns whose cells carry more than one
// distinct unit.
func UnitInconsistent(ctx *Context, rc RuleConfig) []IssueDraft {
	var drafts []IssueDraft
	for i := range ctx.Tables {
		t := &ctx.Tables[i]
		byCol := make(map[int]map[string]bool)
		for _, c := range t.Cells {
			if c.Unit == nil || strings.TrimSpace(*c.Unit) == "" {
				continue
			}
			if byCol[c.Col] == nil {
				byCol[c.Col] = make(map[string]bool)
			}
			byCol[c.Col][strings.TrimSpace(*c.Unit)] = true
		}

		cols := make([]int, 0, len(byCol))
		for col := range byCol {
			cols = append(cols, col)
		}
		sort.Ints(cols)

		for _, col := range cols {
			units := byCol[col]
			if len(units) <= 1 {
				continue
			}
			list := make([]string, 0, len(units))
			for u := range units {
				list = append(list, u)
			}
			sort.Strings(list)
			drafts = append(drafts, IssueDraft{
				IssueType: "UNIT_INCONSISTENT",
				Severity:  docmodel.SeverityS2,
				Title:     fmt.Sprintf("%s 第%d列单位不一致", tableLabel(t), col+1),
				Description: fmt.Sprintf("同一列出现多个单位：%s。数值比较与合计可能失真。",
					strings.Join(list, "、")),
				Suggestion:       "统一该列的计量单位，或在表头注明单位后去掉单元格内的单位。",
				Confidence:       0.85,
				EvidenceBlockIDs: ctx.TableEvidence(t),
			})
		}
	}
	return drafts
}
