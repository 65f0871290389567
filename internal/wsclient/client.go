package wsclient

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single subscriber connection to the hub.
type Client interface {
	// Connect dials the hub and starts receiving.
	Connect(ctx context.Context) error

	// Close sends a close frame and tears the connection down.
	Close() error

	// Messages delivers frames that pass the feed filter.
	Messages() <-chan Message

	// Errors reports the error that ended the connection.
	Errors() <-chan error

	IsConnected() bool
	Stats() Stats
}

type client struct {
	cfg    Config
	logger *slog.Logger
	feeds  map[string]struct{}

	conn     *websocket.Conn
	messages chan Message
	errors   chan error
	done     chan struct{}

	mu       sync.RWMutex
	state    connState
	lastSeen time.Time

	received atomic.Int64
	filtered atomic.Int64
	dropped  atomic.Int64
}

type connState int

const (
	stateIdle connState = iota
	stateOpen
	stateLost
	stateClosed
)

// New creates a subscriber. Zero config fields take DefaultConfig values.
func New(cfg Config, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaults.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}

	var feeds map[string]struct{}
	if len(cfg.Feeds) > 0 {
		feeds = make(map[string]struct{}, len(cfg.Feeds))
		for _, f := range cfg.Feeds {
			feeds[f] = struct{}{}
		}
	}

	return &client{
		cfg:      cfg,
		logger:   logger.With("url", cfg.URL),
		feeds:    feeds,
		messages: make(chan Message, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state == stateClosed {
		return ErrAlreadyClosed
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	// The hub pings; any control frame counts as liveness.
	conn.SetPingHandler(func(data string) error {
		c.seen()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
	})
	conn.SetPongHandler(func(string) error {
		c.seen()
		return nil
	})

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.state = stateOpen
	c.lastSeen = time.Now()
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.watchdog()

	c.logger.Debug("subscribed to hub", "feeds", c.cfg.Feeds)
	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (c *client) Messages() <-chan Message {
	return c.messages
}

func (c *client) Errors() <-chan error {
	return c.errors
}

func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateOpen
}

func (c *client) Stats() Stats {
	return Stats{
		Received: c.received.Load(),
		Filtered: c.filtered.Load(),
		Dropped:  c.dropped.Load(),
	}
}

func (c *client) seen() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// fail records the terminal error unless Close already ran.
func (c *client) fail(err error) {
	c.mu.Lock()
	if c.state != stateOpen {
		c.mu.Unlock()
		return
	}
	c.state = stateLost
	c.mu.Unlock()

	select {
	case c.errors <- err:
	default:
	}
}

func (c *client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		at := time.Now()
		c.received.Add(1)

		if c.feeds != nil {
			if _, ok := c.feeds[peekFeed(data)]; !ok {
				c.filtered.Add(1)
				continue
			}
		}

		select {
		case c.messages <- Message{Data: data, ReceivedAt: at}:
		case <-c.done:
			return
		default:
			if c.dropped.Add(1)%1000 == 1 {
				c.logger.Warn("message buffer full, dropping frames", "dropped", c.dropped.Load())
			}
		}
	}
}

// watchdog reports ErrStaleConnection when no ping or pong has been seen
// for PingTimeout.
func (c *client) watchdog() {
	ticker := time.NewTicker(c.cfg.PingTimeout / 3)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			last, state := c.lastSeen, c.state
			c.mu.RUnlock()

			if state != stateOpen {
				return
			}
			if idle := time.Since(last); idle > c.cfg.PingTimeout {
				c.logger.Warn("hub went quiet", "idle", idle.Round(time.Millisecond), "timeout", c.cfg.PingTimeout)
				c.fail(ErrStaleConnection)
				return
			}
		}
	}
}

// peekFeed extracts the "feed" tag without decoding the whole frame. The
// hub always writes it as a plain string value.
func peekFeed(data []byte) string {
	const key = `"feed":"`
	i := bytes.Index(data, []byte(key))
	if i < 0 {
		return ""
	}
	rest := data[i+len(key):]
	j := bytes.IndexByte(rest, '"')
	if j < 0 {
		return ""
	}
	return string(rest[:j])
}
