package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "assetbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	passDuration    prom.Histogram
	stageResults    *prom.CounterVec
	passOutcome     *prom.CounterVec
	cacheResults    *prom.CounterVec
	artifacts       prom.Gauge
	artifactBytes   *prom.HistogramVec
	rebuildTriggers *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg. A
// nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pass stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		passDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Total build pass duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		passOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pass_outcomes_total",
			Help:      "Pass outcomes by final status",
		}, []string{"outcome"}),
		cacheResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transform_cache_total",
			Help:      "Transform cache lookups by result",
		}, []string{"result"}),
		artifacts: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts",
			Help:      "Artifacts emitted by the last successful pass",
		}),
		artifactBytes: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of emitted artifacts",
			Buckets:   prom.ExponentialBuckets(256, 4, 8),
		}, []string{"category"}),
		rebuildTriggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rebuild_triggers_total",
			Help:      "Dev server rebuilds by trigger",
		}, []string{"trigger"}),
	}
	reg.MustRegister(pr.stageDuration, pr.passDuration, pr.stageResults, pr.passOutcome,
		pr.cacheResults, pr.artifacts, pr.artifactBytes, pr.rebuildTriggers)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePassDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.passDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncPassOutcome(outcome PassOutcomeLabel) {
	if p == nil {
		return
	}
	p.passOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddCacheResults(hits, misses int) {
	if p == nil {
		return
	}
	p.cacheResults.WithLabelValues("hit").Add(float64(hits))
	p.cacheResults.WithLabelValues("miss").Add(float64(misses))
}

func (p *PrometheusRecorder) SetArtifacts(n int) {
	if p == nil {
		return
	}
	p.artifacts.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveArtifactBytes(category string, n int) {
	if p == nil {
		return
	}
	p.artifactBytes.WithLabelValues(category).Observe(float64(n))
}

func (p *PrometheusRecorder) IncRebuildTrigger(trigger string) {
	if p == nil {
		return
	}
	p.rebuildTriggers.WithLabelValues(trigger).Inc()
}
