package devserver

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	LiveReloadPath       = "/__livereload"
	LiveReloadScriptPath = "/__livereload.js"

	lrWriteWait  = 10 * time.Second
	lrPongWait   = 60 * time.Second
	lrPingPeriod = (lrPongWait * 9) / 10
)

var lrUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type lrMessage struct {
	Type string `json:"type"`
	Hash string `json:"hash,omitempty"`
}

// LiveReloadHub tracks websocket clients and pushes the ID of every
// successful pass to them.
type LiveReloadHub struct {
	mu       sync.Mutex
	clients  map[*lrClient]struct{}
	closed   bool
	lastHash string
}

type lrClient struct {
	ch   chan string
	done chan struct{}
	once sync.Once
}

func (c *lrClient) close() { c.once.Do(func() { close(c.done) }) }

func NewLiveReloadHub() *LiveReloadHub {
	return &LiveReloadHub{clients: map[*lrClient]struct{}{}}
}

// ServeHTTP upgrades the request and streams reload messages until the
// client disconnects or the hub shuts down.
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := lrUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("livereload upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &lrClient{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.clients[client] = struct{}{}
	current := h.lastHash
	h.mu.Unlock()
	defer h.removeClient(client)

	// Reader: handles pongs and notices disconnects.
	_ = conn.SetReadDeadline(time.Now().Add(lrPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(lrPongWait))
	})
	go func() {
		defer client.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(m lrMessage) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(lrWriteWait)); err != nil {
			return false
		}
		return conn.WriteJSON(m) == nil
	}
	if !write(lrMessage{Type: "hello", Hash: current}) {
		return
	}

	ping := time.NewTicker(lrPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-client.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(lrWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(lrWriteWait)); err != nil {
				return
			}
		case hash := <-client.ch:
			if !write(lrMessage{Type: "reload", Hash: hash}) {
				return
			}
		}
	}
}

func (h *LiveReloadHub) removeClient(c *lrClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Broadcast sends hash to every client. Clients whose buffers are full are
// dropped; the browser script reconnects on its own.
func (h *LiveReloadHub) Broadcast(hash string) {
	h.mu.Lock()
	if h.closed || hash == "" || hash == h.lastHash {
		h.mu.Unlock()
		return
	}
	h.lastHash = hash
	snapshot := make([]*lrClient, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- hash:
		default:
			dropped++
			h.removeClient(c)
		}
	}
	slog.Debug("livereload broadcast", "hash", hash, "clients", len(snapshot), "dropped", dropped)
}

// Clients returns the number of connected browsers.
func (h *LiveReloadHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown disconnects all clients and rejects new ones.
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[*lrClient]struct{}{}
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// LiveReloadScript connects to the hub and reloads the page when a pass ID
// different from the one seen on connect arrives.
const LiveReloadScript = `(() => {
  if (window.__ASSETBUILDER_LR__) return;
  window.__ASSETBUILDER_LR__ = true;
  function connect() {
    const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    const ws = new WebSocket(proto + location.host + '` + LiveReloadPath + `');
    let current = null;
    ws.onmessage = (e) => {
      try {
        const m = JSON.parse(e.data);
        if (m.type === 'hello') { current = m.hash; return; }
        if (m.hash && m.hash !== current) {
          console.log('[assetbuilder] rebuilt, reloading');
          location.reload();
        }
      } catch (_) {}
    };
    ws.onclose = () => { setTimeout(connect, 2000); };
  }
  connect();
})();`

func serveLiveReloadScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(LiveReloadScript)); err != nil {
		slog.Debug("failed to write livereload script", "error", err)
	}
}

// injectLiveReload adds the client script to HTML responses before </body>.
func injectLiveReload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if !(p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html") || strings.HasSuffix(p, ".htm")) {
			next.ServeHTTP(w, r)
			return
		}
		injector := &liveReloadInjector{ResponseWriter: w, statusCode: http.StatusOK, maxSize: 512 * 1024}
		next.ServeHTTP(injector, r)
		injector.finalize()
	})
}

// liveReloadInjector buffers an HTML response up to maxSize so the script tag
// can be inserted. Larger or non-HTML bodies pass through unchanged.
type liveReloadInjector struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
	maxSize       int
}

func (l *liveReloadInjector) WriteHeader(code int) {
	l.statusCode = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *liveReloadInjector) Write(data []byte) (int, error) {
	if !l.headerWritten && !l.passthrough && l.buffer == nil {
		ct := l.ResponseWriter.Header().Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "text/html") {
			l.startPassthrough()
			return l.ResponseWriter.Write(data)
		}
		l.buffer = make([]byte, 0, 16*1024)
	}
	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}
	if len(l.buffer)+len(data) > l.maxSize {
		l.startPassthrough()
		if len(l.buffer) > 0 {
			if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
				return 0, err
			}
		}
		return l.ResponseWriter.Write(data)
	}
	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

func (l *liveReloadInjector) startPassthrough() {
	l.passthrough = true
	l.ResponseWriter.WriteHeader(l.statusCode)
	l.headerWritten = true
}

func (l *liveReloadInjector) finalize() {
	if l.passthrough || len(l.buffer) == 0 {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.statusCode)
		}
		return
	}
	tag := `<script async src="` + LiveReloadScriptPath + `"></script>`
	body := string(l.buffer)
	if i := strings.LastIndex(strings.ToLower(body), "</body>"); i >= 0 {
		body = body[:i] + tag + body[i:]
	} else {
		body += tag
	}
	l.ResponseWriter.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.statusCode)
	_, _ = l.ResponseWriter.Write([]byte(body))
}
