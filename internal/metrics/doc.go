// Package metrics records build pass observability data.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so no call site needs a nil check:
//
//	orch, _ := pipeline.New(cfg, pipeline.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The dev server exposes the Prometheus registry on /metrics when
// server.metrics is enabled.
package metrics
