package review

import (
	"fmt"
	"math"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// sixIndicator is one of the standard prevention-target indicators.
type sixIndicator struct {
	Name        string
	Numerator   string
	Denominator string
}

// sixIndicators defines the computed value of each indicator from facts.
var sixIndicators = []sixIndicator{
	{"治理度", "治理达标面积", "水土流失总面积"},
	{"控制比", "防治措施面积", "扰动面积"},
	{"渣土防护率", "渣土防护量", "渣土总量"},
	{"表土保护率", "表土保护量", "可剥离表土量"},
	{"恢复率", "恢复面积", "可恢复面积"},
	{"覆盖率", "植被覆盖面积", "可绿化面积"},
}

// indicatorTableKeywords identify tables that state the implemented
// indicator values.
var indicatorTableKeywords = []string{"指标", "治理度", "控制比"}

// FormulaCalculation verifies computed indicator and balance formulas
// against the values stated in the document. formula_type selects one
// family; by default the six indicators and the earthwork balance run.
func FormulaCalculation(ctx *Context, rc RuleConfig) []IssueDraft {
	tolerance := rc.ToleranceOr(0.01)

	var drafts []IssueDraft
	switch rc.FormulaType {
	case "six_indicators":
		drafts = append(drafts, checkSixIndicators(ctx, tolerance)...)
	case "balance":
		drafts = append(drafts, checkBalance(ctx, tolerance)...)
	case "prediction":
		// Erosion prediction (分区面积 × 时段 × 侵蚀模数) has no reliably
		// extractable implementation value yet.
	default:
		drafts = append(drafts, checkSixIndicators(ctx, tolerance)...)
		drafts = append(drafts, checkBalance(ctx, tolerance)...)
	}
	return drafts
}

// factValue returns the first numeric fact for a key.
func (c *Context) factValue(key string) (float64, *int64, bool) {
	for _, f := range c.FactsByKey[key] {
		if f.ValueNum != nil {
			return normalizedValue(f), f.SourceBlockID, true
		}
	}
	return 0, nil, false
}

func checkSixIndicators(ctx *Context, tolerance float64) []IssueDraft {
	var drafts []IssueDraft
	for _, ind := range sixIndicators {
		num, numSrc, ok := ctx.factValue(ind.Numerator)
		if !ok {
			continue
		}
		den, denSrc, ok := ctx.factValue(ind.Denominator)
		if !ok || den == 0 {
			continue
		}
		calc := num / den

		impl, t, ok := findImplementationValue(ctx, ind.Name)
		if !ok {
			continue
		}
		if math.Abs(calc-impl) <= tolerance {
			continue
		}

		trace := fmt.Sprintf("%s / %s = %.4f ≠ %.4f", fmtNum(num, 4), fmtNum(den, 4), calc, impl)
		evidence := ctx.TableEvidence(t)
		for _, src := range []*int64{numSrc, denSrc} {
			if src != nil {
				evidence = append(evidence, *src)
			}
		}

		drafts = append(drafts, IssueDraft{
			IssueType:        "FORMULA_MISMATCH_SIX_INDICATORS",
			Severity:         docmodel.SeverityS1,
			Title:            fmt.Sprintf("六项指标“%s”计算不符", ind.Name),
			Description:      fmt.Sprintf("按事实计算 %s = %s/%s：%s", ind.Name, ind.Numerator, ind.Denominator, trace),
			Suggestion:       fmt.Sprintf("请核对“%s”与“%s”的取值，或更正指标表中的“%s”。", ind.Numerator, ind.Denominator, ind.Name),
			Confidence:       0.9,
			EvidenceBlockIDs: dedupIDs(evidence),
		})
	}
	return drafts
}

// findImplementationValue looks for the stated indicator value in an
// indicator table: a 0..1 numeric in the same row or column as a cell
// containing the indicator name. A cell that carries both the name and the
// number (e.g. "治理度 0.85") counts too.
func findImplementationValue(ctx *Context, name string) (float64, *TableWithCells, bool) {
	for i := range ctx.Tables {
		t := &ctx.Tables[i]
		title := ""
		if t.Table.Title != nil {
			title = *t.Table.Title
		}
		if !containsAny(title, indicatorTableKeywords) && !tableMentions(t, name) {
			continue
		}

		for _, c := range t.Cells {
			if !strings.Contains(c.Text, name) {
				continue
			}
			for _, other := range t.Cells {
				if other.NumValue == nil {
					continue
				}
				if other.Row != c.Row && other.Col != c.Col {
					continue
				}
				v := *other.NumValue
				if v >= 0 && v <= 1 {
					return v, t, true
				}
			}
		}
	}
	return 0, nil, false
}

func tableMentions(t *TableWithCells, name string) bool {
	for _, c := range t.Cells {
		if strings.Contains(c.Text, name) {
			return true
		}
	}
	return false
}

func checkBalance(ctx *Context, tolerance float64) []IssueDraft {
	excavated, aSrc, okA := ctx.factValue("挖方")
	filled, bSrc, okB := ctx.factValue("填方")
	spoiled, cSrc, okC := ctx.factValue("弃方")
	hauled, dSrc, okD := ctx.factValue("外运量")
	if !okA || !okB || !okC || !okD {
		return nil
	}

	rhs := filled + spoiled + hauled
	if math.Abs(excavated-rhs) <= tolerance {
		return nil
	}

	trace := fmt.Sprintf("%s + %s + %s = %s ≠ %s (挖方)",
		fmtNum(filled, 2), fmtNum(spoiled, 2), fmtNum(hauled, 2), fmtNum(rhs, 2), fmtNum(excavated, 2))

	var evidence []int64
	for _, src := range []*int64{aSrc, bSrc, cSrc, dSrc} {
		if src != nil {
			evidence = append(evidence, *src)
		}
	}

	return []IssueDraft{{
		IssueType:        "FORMULA_BALANCE_MISMATCH",
		Severity:         docmodel.SeverityS1,
		Title:            "土石方平衡不成立",
		Description:      fmt.Sprintf("挖方应等于填方+弃方+外运量。计算过程：%s", trace),
		Suggestion:       "请核对土石方平衡表中各项取值，修正挖方或分项数值。",
		Confidence:       0.9,
		EvidenceBlockIDs: dedupIDs(evidence),
	}}
}
