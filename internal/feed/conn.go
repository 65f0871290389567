package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/dtn-gateway/internal/queue"
)

// Option configures a Conn.
type Option func(*Conn)

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// WithConnectHook registers fn to run once per established socket, before
// the first read. Typical use is sending the protocol handshake.
func WithConnectHook(fn func(*Conn)) Option {
	return func(c *Conn) { c.onConnect = fn }
}

// WithMessageHandler registers fn to receive every non-empty line with its
// trailing newline removed.
func WithMessageHandler(fn func(line string)) Option {
	return func(c *Conn) { c.onMessage = fn }
}

// WithObserver registers fn to receive state transition events.
func WithObserver(fn func(Event)) Option {
	return func(c *Conn) { c.observer = fn }
}

// Conn is a self-healing connection to one upstream feed.
type Conn struct {
	cfg       Config
	dialer    Dialer
	logger    *slog.Logger
	onConnect func(*Conn)
	onMessage func(string)
	observer  func(Event)

	state      atomic.Int32
	stopped    atomic.Bool
	stopOnce   sync.Once
	inCallback atomic.Bool // set while the hook or handler runs on the owning goroutine

	mu      sync.Mutex
	started bool
	live    *socket
	cancel  context.CancelFunc
	done    chan struct{}

	connects     atomic.Int64
	dialFailures atomic.Int64
	readErrors   atomic.Int64
	lines        atomic.Int64
	sent         atomic.Int64
}

// socket is one established TCP connection and its write path.
type socket struct {
	conn       net.Conn
	out        *queue.Queue[string]
	writerDone chan struct{}
}

// New creates a feed connection. It does nothing until Start.
func New(cfg Config, opts ...Option) *Conn {
	defaults := DefaultConfig()
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	c := &Conn{
		cfg:  cfg,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("feed", cfg.Name, "addr", cfg.Address)

	return c
}

// Name returns the feed identifier.
func (c *Conn) Name() string {
	return c.cfg.Name
}

// State returns the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Stats returns current counters.
func (c *Conn) Stats() Stats {
	return Stats{
		State:        c.State(),
		Connects:     c.connects.Load(),
		DialFailures: c.dialFailures.Load(),
		ReadErrors:   c.readErrors.Load(),
		Lines:        c.lines.Load(),
		Sent:         c.sent.Load(),
	}
}

// Start begins connecting in the background.
func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped.Load() {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.run(runCtx)
	return nil
}

// Stop terminates the connection and waits for its goroutines to exit.
// Pending retry timers are cancelled. Safe to call more than once.
//
// While the connect hook or message handler is running, Stop only signals,
// so a callback may stop its own connection. The owning goroutine exits once
// the callback returns and makes no further callbacks. Wait blocks until then.
func (c *Conn) Stop() {
	c.stopped.Store(true)

	c.mu.Lock()
	started := c.started
	if c.cancel != nil {
		c.cancel()
	}
	if c.live != nil {
		c.live.conn.Close()
	}
	c.mu.Unlock()

	if started && !c.inCallback.Load() {
		<-c.done
	}
	c.finish()
}

// Wait blocks until the owning goroutine has exited. It returns at once if
// the connection was never started. It must not be called from a callback.
func (c *Conn) Wait() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if started {
		<-c.done
	}
}

// Send queues cmd for writing on the current socket. Commands are written in
// call order by the socket's writer goroutine; Send never blocks on I/O.
func (c *Conn) Send(cmd string) error {
	if c.stopped.Load() {
		return ErrStopped
	}

	c.mu.Lock()
	sock := c.live
	c.mu.Unlock()

	if sock == nil || !sock.out.Push(cmd) {
		return ErrNotConnected
	}
	return nil
}

// run is the owning goroutine: dial, hook, read, and retry until halted.
func (c *Conn) run(ctx context.Context) {
	defer close(c.done)
	defer c.finish()

	var lastErr error
	for {
		if c.halted(ctx) {
			return
		}
		c.setState(Connecting, lastErr)

		conn, err := c.dial(ctx)
		if err != nil {
			if c.halted(ctx) {
				return
			}
			c.dialFailures.Add(1)
			c.logger.Warn("feed connect failed",
				"error", err,
				"retry_in", c.cfg.RetryDelay,
			)
			lastErr = err
			if !c.wait(ctx) {
				return
			}
			continue
		}

		sock, ok := c.attach(conn)
		if !ok {
			return
		}
		c.connects.Add(1)
		c.setState(Connected, nil)
		c.logger.Info("feed connected")

		if c.onConnect != nil {
			c.callback(func() { c.onConnect(c) })
		}
		if c.halted(ctx) {
			c.detach(sock)
			return
		}

		c.setState(Streaming, nil)
		err = c.readLoop(ctx, sock)
		c.detach(sock)

		if c.halted(ctx) {
			return
		}
		c.readErrors.Add(1)
		c.logger.Warn("feed read failed",
			"error", err,
			"retry_in", c.cfg.RetryDelay,
		)
		lastErr = err
		if !c.wait(ctx) {
			return
		}
	}
}

// dial makes one connection attempt bounded by DialTimeout.
func (c *Conn) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	return c.dialer.DialContext(dialCtx, "tcp", c.cfg.Address)
}

// attach publishes conn as the live socket and starts its writer.
// Returns false if the feed was stopped in the meantime.
func (c *Conn) attach(conn net.Conn) (*socket, bool) {
	sock := &socket{
		conn:       conn,
		out:        queue.New[string](16),
		writerDone: make(chan struct{}),
	}

	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		conn.Close()
		return nil, false
	}
	c.live = sock
	c.mu.Unlock()

	go c.writeLoop(sock)
	return sock, true
}

// detach closes sock and waits for its writer to finish.
func (c *Conn) detach(sock *socket) {
	c.mu.Lock()
	if c.live == sock {
		c.live = nil
	}
	c.mu.Unlock()

	sock.out.Close()
	sock.conn.Close()
	<-sock.writerDone
}

// readLoop delivers newline-terminated lines until the socket fails.
// A partial line left at EOF is discarded.
func (c *Conn) readLoop(ctx context.Context, sock *socket) error {
	reader := bufio.NewReaderSize(sock.conn, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("connection closed by peer: %w", err)
			}
			return err
		}

		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}
		if c.halted(ctx) {
			return nil
		}

		c.lines.Add(1)
		if c.onMessage != nil {
			c.callback(func() { c.onMessage(line) })
		}
	}
}

// writeLoop drains the socket's queue. A write failure closes the socket,
// which ends the read loop and triggers a reconnect.
func (c *Conn) writeLoop(sock *socket) {
	defer close(sock.writerDone)

	for {
		cmd, ok := sock.out.Pop()
		if !ok {
			return
		}

		sock.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if _, err := io.WriteString(sock.conn, cmd); err != nil {
			if !c.stopped.Load() {
				c.logger.Warn("feed write failed", "error", err)
			}
			sock.conn.Close()
			return
		}
		c.sent.Add(1)
	}
}

// wait sleeps for RetryDelay. Returns false if the feed was halted first.
func (c *Conn) wait(ctx context.Context) bool {
	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return !c.stopped.Load()
	}
}

// callback runs fn on the owning goroutine with inCallback set, so a Stop
// from inside fn does not wait on its own goroutine.
func (c *Conn) callback(fn func()) {
	c.inCallback.Store(true)
	defer c.inCallback.Store(false)
	fn()
}

func (c *Conn) halted(ctx context.Context) bool {
	return c.stopped.Load() || ctx.Err() != nil
}

// finish moves the connection into the terminal state exactly once.
func (c *Conn) finish() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		c.setState(Stopped, nil)
		c.logger.Info("feed stopped")
	})
}

func (c *Conn) setState(s State, err error) {
	c.state.Store(int32(s))
	if c.observer != nil {
		c.observer(Event{
			Feed:  c.cfg.Name,
			State: s,
			Err:   err,
			At:    time.Now(),
		})
	}
}
