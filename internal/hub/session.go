package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/dtn-gateway/internal/queue"
)

// session is one connected subscriber.
type session struct {
	id          string
	hub         *Hub
	conn        *websocket.Conn
	out         *queue.Queue[*websocket.PreparedMessage]
	remote      string
	connectedAt time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// writeLoop writes queued frames one at a time until the session closes.
func (s *session) writeLoop() {
	defer s.hub.wg.Done()

	for {
		pm, ok := s.out.Pop()
		if !ok || s.closed.Load() {
			return
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
		if err := s.conn.WritePreparedMessage(pm); err != nil {
			s.evict(reasonWrite, err)
			return
		}
		s.hub.metrics.FrameSent()
	}
}

// readLoop discards inbound frames and detects the peer going away.
// Pongs extend the read deadline.
func (s *session) readLoop() {
	defer s.hub.wg.Done()

	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.evict(reasonRead, err)
			return
		}
	}
}

// pingLoop sends keepalive pings. WriteControl may run concurrently with
// the writer goroutine.
func (s *session) pingLoop() {
	defer s.hub.wg.Done()

	ticker := time.NewTicker(s.hub.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.hub.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.evict(reasonPing, err)
				return
			}
		}
	}
}

// evict removes the session from the hub and releases it. Only the first
// call has any effect.
func (s *session) evict(reason string, err error) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		remaining := s.hub.remove(s)

		s.out.Close()
		close(s.done)
		_ = s.conn.Close()

		s.hub.metrics.SessionEvicted(reason)

		logger := s.hub.logger.With(
			"session", s.id,
			"reason", reason,
			"sessions", remaining,
			"connected_for", time.Since(s.connectedAt).Round(time.Millisecond),
		)
		switch reason {
		case reasonRead, reasonShutdown:
			logger.Info("subscriber disconnected")
		default:
			logger.Warn("subscriber evicted", "error", err)
		}
	})
}
