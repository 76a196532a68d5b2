// Package metrics is an optional Prometheus sink for the executor's
// per-node observability hook. It does not replace the structured
// WorkflowObservabilityReport — it only aggregates node outcomes, node
// durations, LLM token counts, and per-run edge/adaptation totals for
// operational dashboards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/relayforge/relayforge/engine/executor"
	"github.com/relayforge/relayforge/engine/nodemeta"
)

const namespace = "relayforge"

const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

// Buckets sized for effector latencies: sub-millisecond gateways up to
// multi-second LLM calls.
var durationBuckets = []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// Recorder holds the engine's Prometheus instruments. Build one per
// process with NewRecorder and wire NodeObserver into
// executor.Options.OnNodeReport; feed completed runs to ObserveReport.
type Recorder struct {
	nodeExecutions   *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec
	promptTokens     prometheus.Counter
	completionTokens prometheus.Counter
	edgeEvals        prometheus.Counter
	adaptations      *prometheus.CounterVec
	runs             *prometheus.CounterVec
}

// NewRecorder registers the engine's instruments with registry. A nil
// registry falls back to prometheus.DefaultRegisterer.
func NewRecorder(registry prometheus.Registerer) *Recorder {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Recorder{
		nodeExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Node executions by node kind and outcome.",
		}, []string{"kind", "outcome"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Wall-clock node execution duration by node kind.",
			Buckets:   durationBuckets,
		}, []string{"kind"}),
		promptTokens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_prompt_tokens_total",
			Help:      "Prompt tokens reported by LLM node executions.",
		}),
		completionTokens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_completion_tokens_total",
			Help:      "Completion tokens reported by LLM node executions.",
		}),
		edgeEvals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edge_evaluations_total",
			Help:      "Edge condition evaluations across completed runs.",
		}),
		adaptations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adaptations_total",
			Help:      "Port Adapter invocations by outcome.",
		}, []string{"outcome"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Workflow runs by outcome.",
		}, []string{"outcome"}),
	}
}

// NodeObserver returns the hook to install as executor.Options.OnNodeReport.
func (r *Recorder) NodeObserver() func(kind nodemeta.Kind, nr executor.NodeReport) {
	return func(kind nodemeta.Kind, nr executor.NodeReport) {
		outcome := outcomeFailed
		switch {
		case nr.Skipped:
			outcome = outcomeSkipped
		case nr.Success:
			outcome = outcomeSuccess
		}
		r.nodeExecutions.WithLabelValues(string(kind), outcome).Inc()
		if !nr.Skipped {
			r.nodeDuration.WithLabelValues(string(kind)).Observe(nr.Duration.Seconds())
		}
		if nr.TokenUsage != nil {
			r.promptTokens.Add(float64(nr.TokenUsage.PromptTokens))
			r.completionTokens.Add(float64(nr.TokenUsage.CompletionTokens))
		}
	}
}

// ObserveReport records a finished run's aggregate counters. failed marks
// the run-level outcome; node-level outcomes already flowed through
// NodeObserver.
func (r *Recorder) ObserveReport(report *executor.Report, failed bool) {
	if report == nil {
		return
	}
	outcome := outcomeSuccess
	if failed {
		outcome = outcomeFailed
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.edgeEvals.Add(float64(report.Aggregate.EdgeEvalCount))
	for _, a := range report.Adaptations {
		if a.Success {
			r.adaptations.WithLabelValues(outcomeSuccess).Inc()
		} else {
			r.adaptations.WithLabelValues(outcomeFailed).Inc()
		}
	}
}
