// Package pipeline runs build passes: Clean, Transform, Plan, Emit,
// ExclusionFilter and Promote, producing a Report per pass.
package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/assetbuilder/internal/cache"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/entry"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/link"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/registry"
	"git.home.luguber.info/inful/assetbuilder/internal/transforms"
)

// Orchestrator executes build passes for one immutable configuration. Only
// one pass runs at a time.
type Orchestrator struct {
	cfg      *config.Config
	graph    *entry.Graph
	registry *registry.Registry
	catalog  *transforms.Catalog
	linker   link.Linker
	cache    *cache.Cache
	root     *OutputRoot
	recorder metrics.Recorder
	logger   *slog.Logger

	concurrency int
	exclusions  map[string]bool

	mu    sync.Mutex
	state atomic.Value
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog replaces the built-in transform catalog.
func WithCatalog(c *transforms.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithLinker replaces the linker selected by the configuration.
func WithLinker(l link.Linker) Option {
	return func(o *Orchestrator) { o.linker = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger sets the logger used for pass output.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOutputRoot shares an existing output root, typically with a server.
func WithOutputRoot(r *OutputRoot) Option {
	return func(o *Orchestrator) { o.root = r }
}

// New validates cfg against the transform catalog and prepares the entry
// graph, rules, linker and cache.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("configuration is required").Build()
	}
	o := &Orchestrator{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.catalog == nil {
		o.catalog = transforms.DefaultCatalog()
	}
	if o.root == nil {
		o.root = NewOutputRoot(cfg.Output)
	}

	graph, err := entry.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	o.graph = graph

	reg, err := registry.New(cfg.Rules, cfg.BaseDir, o.catalog)
	if err != nil {
		return nil, err
	}
	o.registry = reg

	if o.linker == nil {
		l, err := link.New(cfg.Link, cfg.Mode)
		if err != nil {
			return nil, ferrors.ConfigError("invalid link settings").WithCause(err).Build()
		}
		o.linker = l
	}

	c, err := cache.New(cfg.Build.CacheSize)
	if err != nil {
		return nil, ferrors.ConfigError("invalid cache size").WithCause(err).Build()
	}
	o.cache = c

	o.concurrency = cfg.Build.Concurrency
	if o.concurrency <= 0 {
		o.concurrency = runtime.GOMAXPROCS(0)
	}
	o.exclusions = make(map[string]bool, len(cfg.ExcludeOutputs))
	for _, p := range cfg.ExcludeOutputs {
		o.exclusions[cleanRel(p)] = true
	}
	o.state.Store(StateIdle)
	return o, nil
}

// State reports the current pass state.
func (o *Orchestrator) State() State {
	return o.state.Load().(State)
}

func (o *Orchestrator) setState(s State) { o.state.Store(s) }

// Root returns the output root the orchestrator promotes into.
func (o *Orchestrator) Root() *OutputRoot { return o.root }

// Graph returns the entry graph.
func (o *Orchestrator) Graph() *entry.Graph { return o.graph }

// Registry returns the compiled transform rules.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() *config.Config { return o.cfg }

// Run executes one complete pass. On success the new tree is promoted and the
// report lists every emitted artifact. On failure the previously promoted
// tree is left untouched and the returned error carries the stage and cause.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ps := &passState{
		ctx:    ctx,
		orch:   o,
		report: newReport(uuid.NewString(), o.cfg.Mode),
	}
	log := o.logger.With(logfields.PassID(ps.report.PassID))
	log.Info("Starting build pass", slog.String("mode", string(o.cfg.Mode)), slog.String("output", o.root.Dir()))

	stages := []stageDef{
		{StateCleaning, stageClean},
		{StateTransforming, stageTransform},
		{StatePlanning, stagePlan},
		{StateEmitting, stageEmit},
		{StateExclusionFiltering, stageExclusionFilter},
		{StatePromoting, stagePromote},
	}
	err := o.runStages(ps, stages, log)
	if err != nil {
		o.root.abortStaging()
		o.setState(StateIdle)
	} else {
		o.setState(StateDone)
	}

	r := ps.report
	r.CacheHits, r.CacheMisses = int(ps.cacheHits.Load()), int(ps.cacheMisses.Load())
	r.finish(err)
	o.recordOutcome(r, ps)
	return r, err
}

// runStages executes stages in order, recording timing and stopping on the
// first fatal error.
func (o *Orchestrator) runStages(ps *passState, stages []stageDef, log *slog.Logger) error {
	for _, st := range stages {
		if err := ps.ctx.Err(); err != nil {
			return newFatalStageError(st.state, ferrors.WrapError(err, ferrors.CategoryInternal, "pass canceled").Fatal().Build())
		}
		o.setState(st.state)
		t0 := time.Now()
		err := st.fn(ps)
		dur := time.Since(t0)
		ps.report.StageDurations[string(st.state)] = dur
		o.recorder.ObserveStageDuration(string(st.state), dur)
		if err != nil {
			o.recorder.IncStageResult(string(st.state), metrics.ResultFatal)
			log.Debug("Stage failed", logfields.Stage(string(st.state)), logfields.Duration(dur), logfields.Error(err))
			return newFatalStageError(st.state, err)
		}
		o.recorder.IncStageResult(string(st.state), metrics.ResultSuccess)
		log.Debug("Stage complete", logfields.Stage(string(st.state)), logfields.Duration(dur))
	}
	return nil
}

func (o *Orchestrator) recordOutcome(r *Report, ps *passState) {
	o.recorder.ObservePassDuration(r.Duration())
	o.recorder.AddCacheResults(r.CacheHits, r.CacheMisses)
	switch r.Outcome {
	case OutcomeFailed:
		o.recorder.IncPassOutcome(metrics.PassFailed)
		return
	case OutcomeWarning:
		o.recorder.IncPassOutcome(metrics.PassWarning)
	default:
		o.recorder.IncPassOutcome(metrics.PassSuccess)
	}
	o.recorder.SetArtifacts(len(r.Artifacts))
	for _, a := range ps.artifacts {
		if _, kept := r.Sizes[a.RelPath]; kept {
			o.recorder.ObserveArtifactBytes(string(a.category), a.Size())
		}
	}
}
