// Package metrics exposes Prometheus collectors for episode runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "episodegen"

// Stage outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Pipeline groups the run and stage collectors on a private registry. A nil
// *Pipeline is valid and records nothing.
type Pipeline struct {
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runsActive    prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	audioSeconds  prometheus.Counter
}

// New registers the pipeline collectors plus Go and process collectors.
func New() *Pipeline {
	p := &Pipeline{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of generation runs submitted",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Total number of generation runs reaching a terminal status",
		}, []string{"status"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Number of runs currently executing in this process",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Histogram of stage execution duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage", "outcome"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_executions_total",
			Help:      "Total number of stage executions",
		}, []string{"stage", "outcome"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		}, []string{"stage"}),
		audioSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_seconds_total",
			Help:      "Total seconds of finished episode audio",
		}),
	}
	p.registry.MustRegister(
		p.runsStarted,
		p.runsFinished,
		p.runsActive,
		p.stageDuration,
		p.stageTotal,
		p.tokensTotal,
		p.audioSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry returns the underlying registry for tests and custom exporters.
func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Pipeline) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// RunStarted records a submitted run.
func (p *Pipeline) RunStarted() {
	if p == nil {
		return
	}
	p.runsStarted.Inc()
}

// RunFinished records a terminal status.
func (p *Pipeline) RunFinished(status string) {
	if p == nil {
		return
	}
	p.runsFinished.WithLabelValues(status).Inc()
}

// RunEntered and RunExited track runs executing in this process.
func (p *Pipeline) RunEntered() {
	if p == nil {
		return
	}
	p.runsActive.Inc()
}

func (p *Pipeline) RunExited() {
	if p == nil {
		return
	}
	p.runsActive.Dec()
}

// StageObserved records one stage execution.
func (p *Pipeline) StageObserved(stage, outcome string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
	p.stageTotal.WithLabelValues(stage, outcome).Inc()
}

// TokensUsed adds LLM token usage for a stage.
func (p *Pipeline) TokensUsed(stage string, tokens int64) {
	if p == nil || tokens <= 0 {
		return
	}
	p.tokensTotal.WithLabelValues(stage).Add(float64(tokens))
}

// AudioProduced adds finished audio duration.
func (p *Pipeline) AudioProduced(seconds int) {
	if p == nil || seconds <= 0 {
		return
	}
	p.audioSeconds.Add(float64(seconds))
}
