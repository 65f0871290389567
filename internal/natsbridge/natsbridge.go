// Package natsbridge mirrors every broadcast frame onto NATS subjects, one
// subject per feed (e.g. "dtn.l1"). Publishing is fire-and-forget; the NATS
// client buffers while reconnecting.
package natsbridge

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("nats bridge closed")

// Config configures the NATS connection.
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string // Client name shown in server monitoring
	ReconnectWait time.Duration
	MaxReconnects int // -1 retries forever
}

// DefaultConfig returns the connection defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "dtn",
		Name:          "dtn-gateway",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	IsConnected() bool
}

// Publisher publishes frames to NATS.
type Publisher struct {
	mu     sync.RWMutex
	conn   conn
	prefix string
	logger *slog.Logger
}

// Connect dials NATS and returns a publisher.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = defaults.URL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaults.SubjectPrefix
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaults.ReconnectWait
	}
	logger = logger.With("component", "nats")

	nc, err := nats.Connect(cfg.URL, buildOptions(cfg, logger)...)
	if err != nil {
		return nil, err
	}

	logger.Info("nats connected", "url", nc.ConnectedUrl(), "prefix", cfg.SubjectPrefix)
	return newPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newPublisher(c conn, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   c,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

func buildOptions(cfg Config, logger *slog.Logger) []nats.Option {
	return []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	}
}

// Subject returns the subject frames from feed are published on.
func (p *Publisher) Subject(feed string) string {
	return p.prefix + "." + strings.ToLower(feed)
}

// Publish sends msg on the feed's subject.
func (p *Publisher) Publish(feed string, msg []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conn == nil {
		return ErrClosed
	}
	return p.conn.Publish(p.Subject(feed), msg)
}

// Connected reports whether the client currently has a server connection.
func (p *Publisher) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	p.conn = nil
	return err
}
