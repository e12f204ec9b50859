package review

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// sumKeywords mark total rows and columns in domain tables.
var sumKeywords = []string{"合计", "小计", "总计", "合计值", "合计金额", "合计面积"}

// percentageKeywords mark ratio columns.
var percentageKeywords = []string{"占比", "比例", "%", "百分比"}

var percentTextRe = regexp.MustCompile(`([\d.]+)%`)

func containsAny(s string, kws []string) bool {
	for _, kw := range kws {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func fmtNum(v float64, places int) string {
	return strconv.FormatFloat(roundTo(v, places), 'f', -1, 64)
}

func tableLabel(t *TableWithCells) string {
	if t.Table.TableNo != nil && *t.Table.TableNo != "" {
		return *t.Table.TableNo
	}
	return fmt.Sprintf("表%d", t.Table.ID)
}

func cellsByRow(cells []docmodel.Cell) map[int][]docmodel.Cell {
	m := make(map[int][]docmodel.Cell)
	for _, c := range cells {
		m[c.Row] = append(m[c.Row], c)
	}
	return m
}

func cellsByCol(cells []docmodel.Cell) map[int][]docmodel.Cell {
	m := make(map[int][]docmodel.Cell)
	for _, c := range cells {
		m[c.Col] = append(m[c.Col], c)
	}
	return m
}

// SumMismatch checks in-table arithmetic: total rows against their column
// sums, total columns against their row values, and percentage columns
// against 100%. Sub-check ids: row_sums, col_sums, percentages.
func SumMismatch(ctx *Context, rc RuleConfig) []IssueDraft {
	tolerance := rc.ToleranceOr(0.01)
	rounding := rc.RoundingOr(2)

	var drafts []IssueDraft
	for i := range ctx.Tables {
		t := &ctx.Tables[i]
		if len(t.Cells) == 0 {
			continue
		}
		byRow := cellsByRow(t.Cells)
		byCol := cellsByCol(t.Cells)

		if rc.CheckEnabled("row_sums") {
			drafts = append(drafts, checkRowSums(ctx, t, byRow, tolerance, rounding)...)
		}
		if rc.CheckEnabled("col_sums") {
			drafts = append(drafts, checkColSums(ctx, t, byCol, tolerance, rounding)...)
		}
		if rc.CheckEnabled("percentages") {
			drafts = append(drafts, checkPercentages(ctx, t, byRow, byCol, tolerance)...)
		}
	}
	return drafts
}

func checkRowSums(ctx *Context, t *TableWithCells, byRow map[int][]docmodel.Cell, tolerance float64, rounding int) []IssueDraft {
	var drafts []IssueDraft
	label := tableLabel(t)

	for r := 0; r < t.Table.NRows; r++ {
		rowCells := byRow[r]
		var rowText strings.Builder
		for _, c := range rowCells {
			rowText.WriteString(c.Text)
			rowText.WriteByte(' ')
		}
		if !containsAny(rowText.String(), sumKeywords) {
			continue
		}

		for _, sumCell := range rowCells {
			if sumCell.NumValue == nil {
				continue
			}
			var values []float64
			for rr := 0; rr < t.Table.NRows; rr++ {
				if rr == r {
					continue
				}
				for _, c := range byRow[rr] {
					if c.Col == sumCell.Col && c.NumValue != nil {
						values = append(values, *c.NumValue)
					}
				}
			}
			if len(values) < 2 {
				continue
			}
			computed := 0.0
			for _, v := range values {
				computed += v
			}
			if math.Abs(*sumCell.NumValue-computed) <= tolerance {
				continue
			}

			parts := make([]string, 0, len(values))
			for _, v := range values {
				parts = append(parts, fmtNum(v, rounding))
			}
			trace := fmt.Sprintf("%s = %s ≠ %s",
				strings.Join(parts, " + "), fmtNum(computed, rounding), fmtNum(*sumCell.NumValue, rounding))

			drafts = append(drafts, IssueDraft{
				IssueType:  "SUM_MISMATCH_ROW",
				Severity:   docmodel.SeverityS1,
				Title:      fmt.Sprintf("%s 行合计错误（第%d行）", label, r+1),
				Description: fmt.Sprintf("合计行第%d列的值%s与分项之和%s不一致。计算过程：%s",
					sumCell.Col+1, fmtNum(*sumCell.NumValue, rounding), fmtNum(computed, rounding), trace),
				Suggestion:       "请核对分项值来源，重新计算合计。如涉及取整，请统一取整规则。",
				Confidence:       0.95,
				EvidenceBlockIDs: ctx.TableEvidence(t),
			})
		}
	}
	return drafts
}

func checkColSums(ctx *Context, t *TableWithCells, byCol map[int][]docmodel.Cell, tolerance float64, rounding int) []IssueDraft {
	var drafts []IssueDraft
	label := tableLabel(t)

	for col := 0; col < t.Table.NCols; col++ {
		colCells := byCol[col]
		header := ""
		for _, c := range colCells {
			if c.Row == 0 {
				header = c.Text
				break
			}
		}
		if header == "" || !containsAny(header, sumKeywords) {
			continue
		}

		var values []float64
		for _, c := range colCells {
			if c.Row == 0 {
				continue
			}
			if c.NumValue != nil {
				values = append(values, *c.NumValue)
			}
		}
		if len(values) < 2 {
			continue
		}
		sumValue := values[len(values)-1]
		computed := 0.0
		for _, v := range values[:len(values)-1] {
			computed += v
		}
		if math.Abs(sumValue-computed) <= tolerance {
			continue
		}

		parts := make([]string, 0, len(values)-1)
		for _, v := range values[:len(values)-1] {
			parts = append(parts, fmtNum(v, rounding))
		}
		trace := fmt.Sprintf("%s = %s ≠ %s",
			strings.Join(parts, " + "), fmtNum(computed, rounding), fmtNum(sumValue, rounding))

		drafts = append(drafts, IssueDraft{
			IssueType:  "SUM_MISMATCH_COL",
			Severity:   docmodel.SeverityS1,
			Title:      fmt.Sprintf("%s 列合计错误（第%d列）", label, col+1),
			Description: fmt.Sprintf("合计列的值%s与分项之和%s不一致。计算过程：%s",
				fmtNum(sumValue, rounding), fmtNum(computed, rounding), trace),
			Suggestion:       "请核对分项值，重新计算合计。",
			Confidence:       0.95,
			EvidenceBlockIDs: ctx.TableEvidence(t),
		})
	}
	return drafts
}

func checkPercentages(ctx *Context, t *TableWithCells, byRow, byCol map[int][]docmodel.Cell, tolerance float64) []IssueDraft {
	var drafts []IssueDraft
	label := tableLabel(t)

	for _, hc := range byRow[0] {
		if !containsAny(hc.Text, percentageKeywords) {
			continue
		}
		var percentages []float64
		for _, c := range byCol[hc.Col] {
			if c.Row == 0 {
				continue
			}
			switch {
			case c.NumValue != nil:
				v := *c.NumValue
				// Ratio form is rescaled; percent form is taken as-is.
				if v >= 0 && v <= 1 {
					percentages = append(percentages, v*100)
				} else if v <= 100 {
					percentages = append(percentages, v)
				}
			case strings.Contains(c.Text, "%"):
				if m := percentTextRe.FindStringSubmatch(c.Text); m != nil {
					if v, err := strconv.ParseFloat(m[1], 64); err == nil {
						percentages = append(percentages, v)
					}
				}
			}
		}
		if len(percentages) < 2 {
			continue
		}
		sum := 0.0
		for _, v := range percentages {
			sum += v
		}
		if math.Abs(sum-100) <= tolerance {
			continue
		}
		drafts = append(drafts, IssueDraft{
			IssueType: "PERCENTAGE_SUM_MISMATCH",
			Severity:  docmodel.SeverityS2,
			Title:     fmt.Sprintf("%s 占比列合计不为100%%", label),
			Description: fmt.Sprintf("占比列（第%d列）各项占比之和为%s%%，不等于100%%",
				hc.Col+1, fmtNum(sum, 2)),
			Suggestion:       "请核对各项占比值，确保合计为100%",
			Confidence:       0.9,
			EvidenceBlockIDs: ctx.TableEvidence(t),
		})
	}
	return drafts
}
