package hub

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/dtn-gateway/internal/metrics"
)

// Errors
var (
	ErrAlreadyStarted = errors.New("hub already started")
	ErrStopped        = errors.New("hub stopped")
)

// Eviction reasons, also used as metric labels.
const (
	reasonWrite    = "write"
	reasonPing     = "ping"
	reasonRead     = "read"
	reasonSlow     = "slow"
	reasonShutdown = "shutdown"
)

// Config configures the WebSocket listener and per-session limits.
type Config struct {
	Address      string        // Listen address, e.g. ":8080"
	Path         string        // HTTP path that accepts upgrades
	WriteTimeout time.Duration // Deadline for a single frame write
	PingInterval time.Duration // Interval between keepalive pings
	PongTimeout  time.Duration // Read deadline extended by each pong
	MaxPending   int           // Queue length above which a session is evicted
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		Address:      ":8080",
		Path:         "/",
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		MaxPending:   4096,
	}
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithMetrics records session and frame metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}
