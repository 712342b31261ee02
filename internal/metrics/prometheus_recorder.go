package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "gongjeon"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	buildDuration   prom.Histogram
	stageResults    *prom.CounterVec
	buildOutcome    *prom.CounterVec
	docsRendered    prom.Counter
	docFailures     *prom.CounterVec
	rebuildTriggers *prom.CounterVec
	lastBuildPosts  prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		docsRendered: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "documents_rendered_total",
			Help:      "Markdown documents converted to HTML pages",
		}),
		docFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "document_failures_total",
			Help:      "Per-document conversion failures by kind",
		}, []string{"kind"}),
		rebuildTriggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rebuild_triggers_total",
			Help:      "Rebuild requests by trigger source",
		}, []string{"source"}),
		lastBuildPosts: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_build_posts",
			Help:      "Posts listed in the index of the last completed build",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.docsRendered, pr.docFailures, pr.rebuildTriggers, pr.lastBuildPosts)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncDocumentsRendered(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.docsRendered.Add(float64(n))
}

func (p *PrometheusRecorder) IncDocumentFailure(kind string) {
	if p == nil {
		return
	}
	p.docFailures.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncRebuildTrigger(source string) {
	if p == nil {
		return
	}
	p.rebuildTriggers.WithLabelValues(source).Inc()
}

func (p *PrometheusRecorder) SetLastBuildPosts(n int) {
	if p == nil {
		return
	}
	p.lastBuildPosts.Set(float64(n))
}
