package metrics

import "time"

// ResultLabel enumerates stage and batch result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for pipeline and review metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder makes injection optional.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObservePipelineDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncPipelineOutcome(outcome string) // outcome: ready|failed|canceled
	ObserveRunDuration(runType string, d time.Duration)
	IncAIBatch(result ResultLabel)
	IncIssue(severity string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)    {}
func (NoopRecorder) ObservePipelineDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)            {}
func (NoopRecorder) IncPipelineOutcome(string)                     {}
func (NoopRecorder) ObserveRunDuration(string, time.Duration)      {}
func (NoopRecorder) IncAIBatch(ResultLabel)                        {}
func (NoopRecorder) IncIssue(string)                               {}
