package devserver

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// siteInBaseDir keeps the entry and the template next to the config file, so
// the base directory (which also holds dist, dist_stage and dist.prev) is
// watched.
const siteInBaseDir = `
output: ./dist
entries:
  - {name: main, source: ./main.js}
templates: [./index.html]
link: {linker: concat}
`

func newSiteOrchestrator(t *testing.T) (*config.Config, *pipeline.Orchestrator) {
	t.Helper()
	for _, k := range []string{config.EnvMode, config.EnvNodeEnv, config.EnvOutput, config.EnvPort} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("console.log('v1');\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html><body></body></html>"), 0o644))

	cfg, err := config.Parse([]byte(siteInBaseDir), dir)
	require.NoError(t, err)
	cfg.Server.Debounce = 20 * time.Millisecond

	orch, err := pipeline.New(cfg, pipeline.WithLogger(quietLogger()))
	require.NoError(t, err)
	return cfg, orch
}

func TestRunDoesNotRebuildOnItsOwnOutput(t *testing.T) {
	cfg, orch := newSiteOrchestrator(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := New(cfg, orch, WithListener(ln), WithLogger(quietLogger()))
	var passes atomic.Int32
	s.passDone = func(*pipeline.Report, error) { passes.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), passes.Load())

	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaseDir, "main.js"), []byte("console.log('v2');\n"), 0o644))
	require.Eventually(t, func() bool { return passes.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(2), passes.Load(), "promoting a pass must not schedule another")

	js, err := os.ReadFile(filepath.Join(cfg.Output, "resources", "js", "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(js), "v2")

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStalledClientDoesNotBlockPromotion(t *testing.T) {
	cfg, orch := newSiteOrchestrator(t)
	cfg.Server.Compress = false
	cfg.Server.LiveReload = false
	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	big := bytes.Repeat([]byte("0123456789abcdef"), 2<<20)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Output, "big.bin"), big, 0o644))

	s := New(cfg, orch, WithLogger(quietLogger()))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET /big.bin HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pass blocked by a client that stopped reading")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/resources/js/main.js")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
