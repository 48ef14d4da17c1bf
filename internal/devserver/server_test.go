package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/entry"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

type fakeBuilder struct {
	cfg  *config.Config
	root *pipeline.OutputRoot

	mu      sync.Mutex
	runs    int
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeBuilder) Run(_ context.Context) (*pipeline.Report, error) {
	f.mu.Lock()
	f.runs++
	n, err := f.runs, f.err
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	r := &pipeline.Report{PassID: fmt.Sprintf("pass-%d", n), Start: time.Now(), End: time.Now(), Err: err}
	return r, err
}

func (f *fakeBuilder) State() pipeline.State      { return pipeline.StateIdle }
func (f *fakeBuilder) Root() *pipeline.OutputRoot { return f.root }

func (f *fakeBuilder) Graph() *entry.Graph {
	g, err := entry.FromConfig(f.cfg)
	if err != nil {
		panic(err)
	}
	return g
}

func (f *fakeBuilder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.BaseDir = dir
	cfg.Output = filepath.Join(dir, "dist")
	cfg.Server.Debounce = 10 * time.Millisecond
	return cfg
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *fakeBuilder) {
	t.Helper()
	fb := &fakeBuilder{cfg: cfg, root: pipeline.NewOutputRoot(cfg.Output)}
	return New(cfg, fb, append([]Option{WithLogger(quietLogger())}, opts...)...), fb
}

func writeOutput(t *testing.T, cfg *config.Config, rel, content string) {
	t.Helper()
	p := filepath.Join(cfg.Output, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerServesOutputTree(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newTestServer(t, cfg)
	writeOutput(t, cfg, "resources/js/main.js", "main();")

	rec := get(t, s.Handler(), "/resources/js/main.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "main();", rec.Body.String())
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = get(t, s.Handler(), "/resources/js/missing.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerShowsStatusPageWithoutBuild(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newTestServer(t, cfg)
	s.status.record(nil, errors.New("main.scss: undefined variable"))

	rec := get(t, s.Handler(), "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Build failed")
	assert.Contains(t, rec.Body.String(), "main.scss: undefined variable")
}

func TestHandlerInjectsLiveReloadIntoHTML(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newTestServer(t, cfg)
	writeOutput(t, cfg, "index.html", "<html><body><p>hi</p></body></html>")
	writeOutput(t, cfg, "resources/css/main.css", "body{}")

	rec := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<p>hi</p><script async src="/__livereload.js"></script></body>`)
	onDisk, err := os.ReadFile(filepath.Join(cfg.Output, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html><body><p>hi</p></body></html>", string(onDisk), "injection happens only in the response")

	rec = get(t, s.Handler(), "/resources/css/main.css")
	assert.Equal(t, "body{}", rec.Body.String())

	rec = get(t, s.Handler(), LiveReloadScriptPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), LiveReloadPath)
}

func TestHandlerWithoutLiveReload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.LiveReload = false
	s, _ := newTestServer(t, cfg)
	writeOutput(t, cfg, "index.html", "<html><body></body></html>")

	assert.Equal(t, "<html><body></body></html>", get(t, s.Handler(), "/").Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), LiveReloadScriptPath).Code)
}

func TestHandlerCompresses(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newTestServer(t, cfg)
	writeOutput(t, cfg, "resources/js/big.js", strings.Repeat("console.log('x');\n", 500))

	rec := get(t, s.Handler(), "/resources/js/big.js", "Accept-Encoding", "gzip")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	cfg.Server.Compress = false
	rec = get(t, s.Handler(), "/resources/js/big.js", "Accept-Encoding", "gzip")
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestHealthz(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newTestServer(t, cfg)
	s.runPass(context.Background(), TriggerInitial)

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, 1, resp.Passes)
	assert.Equal(t, "pass-1", resp.LastPassID)
	assert.True(t, resp.HasGoodBuild)
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Metrics = true
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	s, _ := newTestServer(t, cfg, WithRecorder(rec), WithMetricsRegistry(reg))

	s.runPass(context.Background(), TriggerWatch)

	out := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, out.Code)
	assert.Contains(t, out.Body.String(), `assetbuilder_rebuild_triggers_total{trigger="watch"} 1`)
}

func TestRunPassBroadcastsOnlyOnSuccess(t *testing.T) {
	cfg := testConfig(t)
	s, fb := newTestServer(t, cfg)

	s.runPass(context.Background(), TriggerInitial)
	assert.Equal(t, "pass-1", s.hub.lastHash)

	fb.err = errors.New("transform failed")
	s.runPass(context.Background(), TriggerWatch)
	assert.Equal(t, "pass-1", s.hub.lastHash)

	snap := s.status.snapshot()
	assert.Error(t, snap.LastError)
	assert.True(t, snap.HasGoodBuild)
	assert.Equal(t, 2, snap.Passes)
}

func TestRebuildRequestsCoalesce(t *testing.T) {
	cfg := testConfig(t)
	s, fb := newTestServer(t, cfg)
	fb.started = make(chan struct{}, 10)
	fb.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.rebuildWorker(ctx)
	}()

	s.request(TriggerWatch)
	<-fb.started
	for range 5 {
		s.request(TriggerWatch)
	}
	close(fb.release)

	assert.Eventually(t, func() bool { return fb.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, fb.count(), "changes during a pass trigger exactly one follow-up")

	cancel()
	<-done
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	d := newDebouncer(20*time.Millisecond, func(l string) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, l)
	})
	defer d.stop()

	for range 5 {
		d.trigger(TriggerWatch)
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(fired)
	}
	assert.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, count())
}

func TestLiveReloadHubBroadcast(t *testing.T) {
	hub := NewLiveReloadHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg lrMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "hello", msg.Type)
	assert.Equal(t, 1, hub.Clients())

	hub.Broadcast("pass-7")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, lrMessage{Type: "reload", Hash: "pass-7"}, msg)

	hub.Shutdown()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRunServesUntilCanceled(t *testing.T) {
	cfg := testConfig(t)
	src := filepath.Join(cfg.BaseDir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	cfg.Entries = []config.EntryConfig{{Name: "main", Source: filepath.Join(src, "main.js")}}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var logs bytes.Buffer
	fb := &fakeBuilder{cfg: cfg, root: pipeline.NewOutputRoot(cfg.Output)}
	s := New(cfg, fb, WithListener(ln), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(src, "main.js"), []byte("x"), 0o644))
	assert.Eventually(t, func() bool { return fb.count() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestLastErrorEndpoint(t *testing.T) {
	cfg := testConfig(t)
	s, fb := newTestServer(t, cfg)

	s.runPass(context.Background(), TriggerInitial)
	assert.Equal(t, http.StatusNoContent, get(t, s.Handler(), ErrorPath).Code)

	fb.err = ferrors.TransformFailure("transform step failed").WithContext("path", "src/main.scss").Build()
	s.runPass(context.Background(), TriggerWatch)

	rec := get(t, s.Handler(), ErrorPath)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var payload ferrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "transform", payload.Code)
	assert.Equal(t, "src/main.scss", payload.Details["path"])
}
