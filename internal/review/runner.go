package review

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/observability"
)

// IssueDraft is an executor finding before persistence.
type IssueDraft struct {
	IssueType        string
	Severity         docmodel.Severity
	Title            string
	Description      string
	Suggestion       string
	Confidence       float64
	EvidenceBlockIDs []int64
	EvidenceQuotes   []string
	PageNo           *int
	AnchorRects      []docmodel.Rect
}

// RuleConfig is the per-checkpoint configuration. Family-specific fields are
// optional; zero values select the defaults.
type RuleConfig struct {
	Executor            string              `json:"executor"`
	OnlyChecks          []string            `json:"only_checks"`
	Tolerance           *float64            `json:"tolerance"`
	Rounding            *int                `json:"rounding"`
	FormulaType         string              `json:"formula_type"`
	RequiredSections    []string            `json:"required_sections"`
	TriggerRequirements map[string]Trigger  `json:"trigger_requirements"`
	ProhibitionRules    map[string]ProhRule `json:"prohibition_rules"`
}

// Trigger binds a trigger fact to the sections and measures it requires.
type Trigger struct {
	RequiredSections []string `json:"required_sections"`
	RequiredMeasures []string `json:"required_measures"`
}

// ProhRule pairs trigger keywords with keywords they must not co-occur with.
type ProhRule struct {
	Triggers   []string `json:"triggers"`
	Prohibited []string `json:"prohibited"`
}

// ParseRuleConfig decodes a checkpoint's rule_config JSON. Malformed config
// degrades to the defaults rather than failing the checkpoint.
func ParseRuleConfig(raw string) RuleConfig {
	var rc RuleConfig
	if strings.TrimSpace(raw) == "" {
		return rc
	}
	_ = json.Unmarshal([]byte(raw), &rc)
	return rc
}

// ToleranceOr returns the configured tolerance or def.
func (rc RuleConfig) ToleranceOr(def float64) float64 {
	if rc.Tolerance != nil {
		return *rc.Tolerance
	}
	return def
}

// RoundingOr returns the configured rounding or def decimal places.
func (rc RuleConfig) RoundingOr(def int) int {
	if rc.Rounding != nil {
		return *rc.Rounding
	}
	return def
}

// CheckEnabled reports whether a sub-check runs under only_checks filtering.
func (rc RuleConfig) CheckEnabled(id string) bool {
	if len(rc.OnlyChecks) == 0 {
		return true
	}
	for _, c := range rc.OnlyChecks {
		if c == id {
			return true
		}
	}
	return false
}

// Executor is one rule family. Executors never return errors: findings are
// drafts, failures are logged and skipped by the runner.
type Executor func(*Context, RuleConfig) []IssueDraft

// Registry resolves executor names to executors.
type Registry struct {
	m map[string]Executor
}

// NewRegistry returns a registry with every built-in executor registered.
func NewRegistry() *Registry {
	r := &Registry{m: make(map[string]Executor)}
	r.Register("format_review", FormatReview)
	r.Register("content_review", ContentReview)
	r.Register("consistency_review", ConsistencyReview)
	r.Register("sum_mismatch", SumMismatch)
	r.Register("formula_calculation", FormulaCalculation)
	r.Register("business_logic_review", BusinessLogicReview)
	r.Register("unit_inconsistent", UnitInconsistent)
	r.Register("missing_section", MissingSection)
	r.Register("norm_citation", NormCitationReview)
	return r
}

// Register binds a name to an executor.
func (r *Registry) Register(name string, fn Executor) { r.m[strings.ToLower(name)] = fn }

// Resolve returns the executor for a name, or nil.
func (r *Registry) Resolve(name string) Executor { return r.m[strings.ToLower(name)] }

// AttributedDraft pairs a draft with the checkpoint that produced it.
type AttributedDraft struct {
	Draft          IssueDraft
	CheckpointCode string
	ReviewCategory string
}

// RunCheckpoints dispatches the given checkpoints against the context. An
// unknown executor is logged and skipped; a panicking executor is logged and
// the run continues with the remaining checkpoints.
func RunCheckpoints(ctx context.Context, reg *Registry, rctx *Context, checkpoints []docmodel.Checkpoint) []AttributedDraft {
	var out []AttributedDraft
	for _, cp := range checkpoints {
		rc := ParseRuleConfig(cp.RuleConfig)
		name := rc.Executor
		if name == "" {
			name = strings.ToLower(cp.Code)
		}
		fn := reg.Resolve(name)
		if fn == nil {
			observability.Warn(ctx, "unknown executor, skipping checkpoint",
				slog.String("checkpoint", cp.Code), slog.String("executor", name))
			continue
		}
		drafts := safeRun(ctx, cp.Code, name, fn, rctx, rc)
		observability.Info(ctx, "checkpoint executed",
			slog.String("checkpoint", cp.Code),
			slog.String("executor", name),
			slog.Int("issues", len(drafts)))
		for _, d := range drafts {
			out = append(out, AttributedDraft{Draft: d, CheckpointCode: cp.Code, ReviewCategory: cp.ReviewCategory})
		}
	}
	return out
}

func safeRun(ctx context.Context, code, name string, fn Executor, rctx *Context, rc RuleConfig) (drafts []IssueDraft) {
	defer func() {
		if r := recover(); r != nil {
			observability.Error(ctx, "executor panicked, continuing run",
				slog.String("checkpoint", code),
				slog.String("executor", name),
				slog.Any("panic", r))
			drafts = nil
		}
	}()
	return fn(rctx, rc)
}
