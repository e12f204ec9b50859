package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder backed by a prometheus registry.
type PrometheusRecorder struct {
	registry         *prometheus.Registry
	stageDuration    *prometheus.HistogramVec
	pipelineDuration prometheus.Histogram
	stageResults     *prometheus.CounterVec
	pipelineOutcomes *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	aiBatches        *prometheus.CounterVec
	issues           *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reviewd",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		pipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reviewd",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end duration of version pipelines.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		stageResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewd",
			Name:      "stage_results_total",
			Help:      "Stage completions by result.",
		}, []string{"stage", "result"}),
		pipelineOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewd",
			Name:      "pipeline_outcomes_total",
			Help:      "Pipeline completions by outcome.",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reviewd",
			Name:      "run_duration_seconds",
			Help:      "Duration of review runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"run_type"}),
		aiBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewd",
			Name:      "ai_batches_total",
			Help:      "AI rule batches by result.",
		}, []string{"result"}),
		issues: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewd",
			Name:      "issues_total",
			Help:      "Issues inserted by severity.",
		}, []string{"severity"}),
	}
}

// Handler returns the /metrics HTTP handler for this recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePipelineDuration(d time.Duration) {
	p.pipelineDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncPipelineOutcome(outcome string) {
	p.pipelineOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(runType string, d time.Duration) {
	p.runDuration.WithLabelValues(runType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncAIBatch(result ResultLabel) {
	p.aiBatches.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncIssue(severity string) {
	p.issues.WithLabelValues(severity).Inc()
}
