package review

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/facts"
)

// ConsistencyReview compares every fact key's values across its scopes.
// Numeric deviations beyond the tolerance and textual disagreements both
// surface as S1 findings.
func ConsistencyReview(ctx *Context, rc RuleConfig) []IssueDraft {
	tolerance := rc.ToleranceOr(0.01)

	keys := make([]string, 0, len(ctx.FactsByKey))
	for k := range ctx.FactsByKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var drafts []IssueDraft
	for _, key := range keys {
		group := ctx.FactsByKey[key]

		var numeric []docmodel.Fact
		var textual []docmodel.Fact
		for _, f := range group {
			if f.ValueNum != nil {
				numeric = append(numeric, f)
			} else if f.ValueText != nil {
				textual = append(textual, f)
			}
		}

		if len(numeric) >= 2 {
			if d := checkNumericConsistency(key, numeric, tolerance); d != nil {
				drafts = append(drafts, *d)
			}
		}
		if len(textual) >= 2 {
			if d := checkTextConsistency(key, textual); d != nil {
				drafts = append(drafts, *d)
			}
		}
	}
	return drafts
}

func normalizedValue(f docmodel.Fact) float64 {
	unit := ""
	if f.Unit != nil {
		unit = *f.Unit
	}
	// Stored facts are canonical already; this protects against facts
	// written by older extractions.
	v, _ := facts.NormalizeUnit(*f.ValueNum, unit)
	return v
}

func checkNumericConsistency(key string, group []docmodel.Fact, tolerance float64) *IssueDraft {
	base := group[0]
	baseVal := normalizedValue(base)

	var mismatched []docmodel.Fact
	for _, f := range group[1:] {
		if math.Abs(normalizedValue(f)-baseVal) > tolerance {
			mismatched = append(mismatched, f)
		}
	}
	if len(mismatched) == 0 {
		return nil
	}

	parts := make([]string, 0, len(mismatched))
	var evidence []int64
	if base.SourceBlockID != nil {
		evidence = append(evidence, *base.SourceBlockID)
	}
	for _, f := range mismatched {
		parts = append(parts, fmt.Sprintf("%s(%s)", f.Scope, fmtNum(normalizedValue(f), 4)))
		if f.SourceBlockID != nil {
			evidence = append(evidence, *f.SourceBlockID)
		}
	}

	return &IssueDraft{
		IssueType: "CONSISTENCY_VALUE_MISMATCH",
		Severity:  docmodel.SeverityS1,
		Title:     fmt.Sprintf("“%s”多处数值不一致", key),
		Description: fmt.Sprintf("%s(%s) vs %s",
			base.Scope, fmtNum(baseVal, 4), strings.Join(parts, "、")),
		Suggestion:       fmt.Sprintf("请统一“%s”在各章节与表格中的取值，并核对计量单位。", key),
		Confidence:       0.9,
		EvidenceBlockIDs: dedupIDs(evidence),
	}
}

func checkTextConsistency(key string, group []docmodel.Fact) *IssueDraft {
	distinct := make(map[string]bool)
	var evidence []int64
	for _, f := range group {
		distinct[strings.TrimSpace(*f.ValueText)] = true
		if f.SourceBlockID != nil {
			evidence = append(evidence, *f.SourceBlockID)
		}
	}
	if len(distinct) <= 1 {
		return nil
	}

	values := make([]string, 0, len(distinct))
	for v := range distinct {
		values = append(values, v)
	}
	sort.Strings(values)

	return &IssueDraft{
		IssueType:        "CONSISTENCY_TEXT_MISMATCH",
		Severity:         docmodel.SeverityS1,
		Title:            fmt.Sprintf("“%s”多处表述不一致", key),
		Description:      fmt.Sprintf("同一事实出现不同表述：%s", strings.Join(values, "；")),
		Suggestion:       fmt.Sprintf("请统一“%s”的表述。", key),
		Confidence:       0.85,
		EvidenceBlockIDs: dedupIDs(evidence),
	}
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	var out []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
