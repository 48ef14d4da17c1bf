package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultWarning ResultLabel = "warning"
	ResultFatal   ResultLabel = "fatal"
)

// PassOutcomeLabel is the final status of a build pass.
type PassOutcomeLabel string

const (
	PassSuccess PassOutcomeLabel = "success"
	PassWarning PassOutcomeLabel = "warning"
	PassFailed  PassOutcomeLabel = "failed"
)

// Recorder defines observability hooks for passes and their stages.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObservePassDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncPassOutcome(outcome PassOutcomeLabel)
	AddCacheResults(hits, misses int)
	SetArtifacts(n int)
	ObserveArtifactBytes(category string, n int)
	IncRebuildTrigger(trigger string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObservePassDuration(time.Duration)          {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncPassOutcome(PassOutcomeLabel)            {}
func (NoopRecorder) AddCacheResults(int, int)                   {}
func (NoopRecorder) SetArtifacts(int)                           {}
func (NoopRecorder) ObserveArtifactBytes(string, int)           {}
func (NoopRecorder) IncRebuildTrigger(string)                   {}
