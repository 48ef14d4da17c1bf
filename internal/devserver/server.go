// Package devserver serves the output tree over HTTP and rebuilds it when
// source files change.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	"github.com/klauspost/compress/gzhttp"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/entry"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// Rebuild triggers.
const (
	TriggerInitial = "initial"
	TriggerWatch   = "watch"
	TriggerPoll    = "poll"
)

// Builder runs one build pass. *pipeline.Orchestrator satisfies it.
type Builder interface {
	Run(ctx context.Context) (*pipeline.Report, error)
	State() pipeline.State
	Root() *pipeline.OutputRoot
	Graph() *entry.Graph
}

// Server is the development loop: it serves the promoted output tree and
// runs a new pass whenever watched sources change.
type Server struct {
	cfg      *config.Config
	builder  Builder
	root     *pipeline.OutputRoot
	hub      *LiveReloadHub
	status   *buildStatus
	recorder metrics.Recorder
	registry *prom.Registry
	logger   *slog.Logger
	listener net.Listener
	errs     *ferrors.HTTPErrorAdapter

	rebuildReq chan string
	// passDone receives the report of every pass after it is recorded.
	passDone func(*pipeline.Report, error)
}

// Option configures a Server.
type Option func(*Server)

// WithRecorder records rebuild triggers.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithMetricsRegistry exposes reg on /metrics when server.metrics is on.
func WithMetricsRegistry(reg *prom.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithLogger sets the logger for server and pass output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListener serves on an existing listener instead of cfg.Addr().
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.listener = ln }
}

// New returns a server for builder.
func New(cfg *config.Config, builder Builder, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		builder:    builder,
		root:       builder.Root(),
		hub:        NewLiveReloadHub(),
		status:     &buildStatus{},
		recorder:   metrics.NoopRecorder{},
		logger:     slog.Default(),
		rebuildReq: make(chan string, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.errs = ferrors.NewHTTPErrorAdapter(s.logger)
	return s
}

// Hub returns the live reload hub.
func (s *Server) Hub() *LiveReloadHub { return s.hub }

// Run performs the initial pass, starts serving and watching, and blocks
// until ctx is canceled or the listener fails. Pass failures are logged and
// never stop the server.
func (s *Server) Run(ctx context.Context) error {
	s.runPass(ctx, TriggerInitial)

	dirs := watchDirs(s.cfg, s.builder.Graph().SourceDirs(), s.root)
	watcher, err := newWatcher(dirs, s.root)
	if err != nil {
		return ferrors.ServerError("cannot start file watcher").WithCause(err).Build()
	}
	defer func() { _ = watcher.Close() }()
	s.logger.Info("Watching sources", logfields.Count(len(dirs)), slog.Any("dirs", dirs))

	var scheduler gocron.Scheduler
	if s.cfg.Server.PollInterval > 0 {
		scheduler, err = s.startPoller(dirs)
		if err != nil {
			return err
		}
		defer func() { _ = scheduler.Shutdown() }()
	}

	ln := s.listener
	if ln == nil {
		ln, err = net.Listen("tcp", s.cfg.Addr())
		if err != nil {
			return ferrors.ServerError("cannot listen").WithCause(err).WithContext("addr", s.cfg.Addr()).Build()
		}
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	s.logger.Info("Dev server listening", logfields.Port(s.cfg.Server.Port), slog.String("url", "http://"+ln.Addr().String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.rebuildWorker(ctx)
	}()
	debounce := newDebouncer(s.cfg.Server.Debounce, s.request)
	defer debounce.stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err, ok := <-serveErr:
			if ok && err != nil {
				runErr = ferrors.ServerError("http server failed").WithCause(err).Build()
			}
			break loop
		case ev, ok := <-watcher.Events:
			if !ok {
				break loop
			}
			s.handleEvent(watcher, ev, debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				break loop
			}
			s.logger.Warn("watcher error", logfields.Error(err))
		}
	}

	s.logger.Info("Shutting down dev server")
	cancel()
	s.hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error", logfields.Error(err))
	}
	<-workerDone
	return runErr
}

// runPass executes one pass, logs its report and notifies browsers on success.
func (s *Server) runPass(ctx context.Context, trigger string) {
	s.recorder.IncRebuildTrigger(trigger)
	if trigger != TriggerInitial {
		s.logger.Info("Change detected; rebuilding", slog.String("trigger", trigger))
	}
	report, err := s.builder.Run(ctx)
	s.status.record(report, err)
	if report != nil {
		report.LogStats(s.logger, s.cfg.Server.Stats)
	}
	if err != nil {
		s.logger.Warn("Build failed; serving last good output", logfields.Error(err))
	} else if s.cfg.Server.LiveReload && report != nil {
		s.hub.Broadcast(report.PassID)
	}
	if s.passDone != nil {
		s.passDone(report, err)
	}
}

// request queues a pass. While a pass runs, at most one more is queued.
func (s *Server) request(trigger string) {
	select {
	case s.rebuildReq <- trigger:
	default:
	}
}

func (s *Server) rebuildWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-s.rebuildReq:
			s.runPass(ctx, trigger)
		}
	}
}

func (s *Server) startPoller(dirs []string) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.ServerError("failed to create poll scheduler").WithCause(err).Build()
	}
	last := treeFingerprint(dirs)
	_, err = sched.NewJob(
		gocron.DurationJob(s.cfg.Server.PollInterval),
		gocron.NewTask(func() {
			fp := treeFingerprint(dirs)
			if fp != last {
				last = fp
				s.request(TriggerPoll)
			}
		}),
		gocron.WithName("source-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, ferrors.ServerError("failed to schedule source polling").WithCause(err).Build()
	}
	sched.Start()
	s.logger.Info("Polling sources", slog.Duration("interval", s.cfg.Server.PollInterval))
	return sched, nil
}

func (s *Server) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event, d *debouncer) {
	if shouldIgnoreEvent(ev.Name) || s.root.Owns(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			addDirsRecursive(w, ev.Name, s.root)
		}
	}
	s.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	d.trigger(TriggerWatch)
}

// Handler returns the HTTP handler: the output tree, live reload endpoints,
// health and optionally metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.cfg.Server.LiveReload {
		mux.Handle(LiveReloadPath, s.hub)
		mux.HandleFunc(LiveReloadScriptPath, serveLiveReloadScript)
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc(ErrorPath, s.handleLastError)
	if s.cfg.Server.Metrics && s.registry != nil {
		mux.Handle("/metrics", metrics.HTTPHandler(s.registry))
	}

	var site http.Handler = s.siteHandler()
	if s.cfg.Server.LiveReload {
		site = injectLiveReload(site)
	}
	if s.cfg.Server.Compress {
		site = gzhttp.GzipHandler(site)
	}
	mux.Handle("/", site)
	return s.logRequests(mux)
}

// writeTimeout bounds a single response; the live reload hub sets its own
// deadlines per message.
const writeTimeout = 60 * time.Second

// rootFS opens files of the output tree under its read lock. A promotion
// waits only for in-progress opens; a response already being written keeps
// reading the complete file it opened, even after the tree is swapped.
type rootFS struct {
	root *pipeline.OutputRoot
	dir  http.Dir
}

func (f rootFS) Open(name string) (http.File, error) {
	f.root.RLock()
	defer f.root.RUnlock()
	return f.dir.Open(name)
}

func (s *Server) siteHandler() http.Handler {
	files := http.FileServer(rootFS{root: s.root, dir: http.Dir(s.root.Dir())})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.root.Exists() {
			s.writeStatusPage(w)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>assetbuilder</title></head>
<body>
<h1>{{if .Err}}Build failed{{else}}Building{{end}}</h1>
{{if .Err}}<pre>{{.Err}}</pre>{{else}}<p>No output has been produced yet.</p>{{end}}
</body></html>
`))

func (s *Server) writeStatusPage(w http.ResponseWriter) {
	snap := s.status.snapshot()
	var msg string
	if snap.LastError != nil {
		msg = snap.LastError.Error()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = statusPage.Execute(w, struct{ Err string }{msg})
}

// ErrorPath reports the failure of the most recent pass as JSON.
const ErrorPath = "/__error"

func (s *Server) handleLastError(w http.ResponseWriter, r *http.Request) {
	snap := s.status.snapshot()
	if snap.LastError == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.errs.WriteErrorResponse(w, r, snap.LastError)
}

type healthResponse struct {
	Status       string    `json:"status"`
	State        string    `json:"state"`
	Passes       int       `json:"passes"`
	LastPassID   string    `json:"last_pass_id,omitempty"`
	LastFinished time.Time `json:"last_finished,omitzero"`
	LastError    string    `json:"last_error,omitempty"`
	HasGoodBuild bool      `json:"has_good_build"`
	LiveReload   int       `json:"livereload_clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.snapshot()
	resp := healthResponse{
		Status:       "ok",
		State:        string(s.builder.State()),
		Passes:       snap.Passes,
		LastPassID:   snap.LastPassID,
		LastFinished: snap.LastFinished,
		HasGoodBuild: snap.HasGoodBuild,
		LiveReload:   s.hub.Clients(),
	}
	if snap.LastError != nil {
		resp.Status = "degraded"
		resp.LastError = snap.LastError.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("health encode failed", logfields.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websockets.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == LiveReloadPath {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			logfields.Method(r.Method),
			logfields.Path(r.URL.Path),
			logfields.Status(rec.status),
			logfields.Duration(time.Since(start)))
	})
}
