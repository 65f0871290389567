package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/dtn-gateway/internal/metrics"
	"github.com/rickgao/dtn-gateway/internal/queue"
)

// Hub is the set of connected subscribers and the listener that feeds it.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session

	serverMu sync.Mutex
	server   *http.Server
	listener net.Listener

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// New creates a hub. Call Start to listen, or mount Handler on an existing
// server.
func New(cfg Config, opts ...Option) *Hub {
	defaults := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = defaults.Path
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaults.PongTimeout
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaults.MaxPending
	}

	h := &Hub{
		cfg:      cfg,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	return h
}

// Start listens on cfg.Address and serves upgrades in the background.
func (h *Hub) Start(ctx context.Context) error {
	if h.stopped.Load() {
		return ErrStopped
	}

	h.serverMu.Lock()
	defer h.serverMu.Unlock()
	if h.server != nil {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.cfg.Address, err)
	}

	h.listener = ln
	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("websocket server error", "error", err)
		}
	}()

	h.logger.Info("websocket hub listening", "addr", ln.Addr().String(), "path", h.cfg.Path)
	return nil
}

// Addr returns the listener address, or nil before Start.
func (h *Hub) Addr() net.Addr {
	h.serverMu.Lock()
	defer h.serverMu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Handler returns the HTTP handler that upgrades subscribers on cfg.Path.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(h.cfg.Path, h.serveWS)
	return mux
}

// Broadcast queues msg as a text frame for every current subscriber and
// returns how many sessions it was queued on. It never blocks on I/O.
func (h *Hub) Broadcast(msg []byte) int {
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, msg)
	if err != nil {
		h.logger.Warn("prepare broadcast failed", "error", err)
		return 0
	}
	h.metrics.Broadcast(len(msg))

	var slow []*session
	queued := 0

	h.mu.RLock()
	for _, s := range h.sessions {
		if s.out.Len() >= h.cfg.MaxPending {
			slow = append(slow, s)
			continue
		}
		if s.out.Push(pm) {
			queued++
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		s.evict(reasonSlow, nil)
	}
	return queued
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sessions returns the ids of connected subscribers, sorted.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Stop closes the listener and every session, then waits for session
// goroutines to exit or ctx to expire.
func (h *Hub) Stop(ctx context.Context) error {
	if !h.stopped.CompareAndSwap(false, true) {
		return nil
	}

	h.serverMu.Lock()
	server := h.server
	h.serverMu.Unlock()

	var shutdownErr error
	if server != nil {
		shutdownErr = server.Shutdown(ctx)
	}

	h.mu.RLock()
	all := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.evict(reasonShutdown, nil)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("websocket hub stopped")
		return shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	if h.stopped.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.UpgradeFailed()
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := &session{
		id:          uuid.NewString(),
		hub:         h,
		conn:        conn,
		out:         queue.New[*websocket.PreparedMessage](64),
		remote:      r.RemoteAddr,
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	if h.stopped.Load() {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.sessions[s.id] = s
	count := len(h.sessions)
	h.wg.Add(3)
	h.mu.Unlock()

	h.metrics.SessionOpened()
	h.logger.Info("subscriber connected", "session", s.id, "remote", s.remote, "sessions", count)

	go s.writeLoop()
	go s.readLoop()
	go s.pingLoop()
}

// remove deletes s from the set and returns the remaining count.
func (h *Hub) remove(s *session) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
	return len(h.sessions)
}
