package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rickgao/dtn-gateway/internal/decoder"
	"github.com/rickgao/dtn-gateway/internal/feed"
	"github.com/rickgao/dtn-gateway/internal/metrics"
	"github.com/rickgao/dtn-gateway/internal/schema"
)

// Errors
var (
	ErrNoProfiles    = errors.New("no feed profiles configured")
	ErrNoBroadcaster = errors.New("broadcaster is required")
	ErrNoSchemas     = errors.New("schema registry is required")
)

// Broadcaster fans a frame out to subscribers.
type Broadcaster interface {
	Broadcast(msg []byte) int
}

// Mirror receives a copy of every broadcast frame.
type Mirror interface {
	Publish(feed string, msg []byte) error
}

// EventSink receives feed state transitions.
type EventSink interface {
	Record(e feed.Event)
}

// Config configures the gateway.
type Config struct {
	Profiles     []Profile
	Symbols      []string
	RetryDelay   time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the gateway's collaborators. Schemas and Hub are required.
type Deps struct {
	Schemas *schema.Registry
	Decoder *decoder.Decoder
	Hub     Broadcaster
	Mirror  Mirror
	Metrics *metrics.Metrics
	Events  EventSink
	Logger  *slog.Logger
	Dialer  feed.Dialer
}

// FeedStats is a per-feed snapshot.
type FeedStats struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	State    string `json:"state"`
	Connects int64  `json:"connects"`
	Lines    int64  `json:"lines"`
	Decoded  int64  `json:"decoded"`
	Filtered int64  `json:"filtered"`
	Dropped  int64  `json:"dropped"`
}

// Gateway owns one feed connection per profile.
type Gateway struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	feeds  []*runner
}

// runner is the per-feed pipeline.
type runner struct {
	gw      *Gateway
	profile Profile
	fields  []string
	conn    *feed.Conn
	logger  *slog.Logger

	subscribed atomic.Bool
	lastState  atomic.Int32

	lines    atomic.Int64
	decoded  atomic.Int64
	filtered atomic.Int64
	dropped  atomic.Int64
}

// New builds the gateway. Every profile's schema must already be loaded.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if len(cfg.Profiles) == 0 {
		return nil, ErrNoProfiles
	}
	if deps.Hub == nil {
		return nil, ErrNoBroadcaster
	}
	if deps.Schemas == nil {
		return nil, ErrNoSchemas
	}
	if deps.Decoder == nil {
		deps.Decoder = decoder.New(schema.DefaultHints(), decoder.DefaultPolicy())
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	g := &Gateway{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}

	for _, p := range cfg.Profiles {
		r := &runner{
			gw:      g,
			profile: p,
			logger:  g.logger.With("feed", p.Name),
		}
		if r.profile.Allow == nil {
			r.profile.Allow = AllowNone
		}

		if p.SchemaID != "" {
			fields, err := deps.Schemas.Fields(p.SchemaID)
			if err != nil {
				return nil, fmt.Errorf("feed %s: %w", p.Name, err)
			}
			r.fields = fields
		}

		opts := []feed.Option{
			feed.WithLogger(g.logger),
			feed.WithConnectHook(r.onConnect),
			feed.WithMessageHandler(r.handle),
			feed.WithObserver(r.observe),
		}
		if deps.Dialer != nil {
			opts = append(opts, feed.WithDialer(deps.Dialer))
		}

		r.conn = feed.New(feed.Config{
			Name:         p.Name,
			Address:      p.Address,
			RetryDelay:   cfg.RetryDelay,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}, opts...)

		g.feeds = append(g.feeds, r)
	}

	return g, nil
}

// Start starts every feed.
func (g *Gateway) Start(ctx context.Context) error {
	for _, r := range g.feeds {
		if err := r.conn.Start(ctx); err != nil {
			return fmt.Errorf("start feed %s: %w", r.profile.Name, err)
		}
		g.logger.Info("feed started",
			"feed", r.profile.Name,
			"addr", r.profile.Address,
			"schema", r.profile.SchemaID,
		)
	}
	return nil
}

// Stop stops every feed and waits for them to exit.
func (g *Gateway) Stop() {
	for _, r := range g.feeds {
		r.conn.Stop()
	}
	for _, r := range g.feeds {
		r.conn.Wait()
	}
}

// Stats returns per-feed counters in profile order.
func (g *Gateway) Stats() []FeedStats {
	out := make([]FeedStats, 0, len(g.feeds))
	for _, r := range g.feeds {
		fs := r.conn.Stats()
		out = append(out, FeedStats{
			Name:     r.profile.Name,
			Address:  r.profile.Address,
			State:    fs.State.String(),
			Connects: fs.Connects,
			Lines:    r.lines.Load(),
			Decoded:  r.decoded.Load(),
			Filtered: r.filtered.Load(),
			Dropped:  r.dropped.Load(),
		})
	}
	return out
}

// onConnect sends the handshake and re-arms the subscription trigger for
// the new socket.
func (r *runner) onConnect(c *feed.Conn) {
	r.subscribed.Store(false)
	for _, line := range r.profile.Handshake {
		r.send(c, line)
	}
}

// handle processes one upstream line.
func (r *runner) handle(raw string) {
	msg := strings.TrimSpace(raw)
	r.lines.Add(1)
	r.gw.deps.Metrics.LineReceived(r.profile.Name)

	if r.profile.SchemaID == "" {
		r.logger.Info("feed message", "line", msg)
	} else {
		r.logger.Debug("feed message", "line", msg)
	}

	if r.profile.SubscribeTrigger != "" &&
		strings.HasPrefix(msg, r.profile.SubscribeTrigger) &&
		r.subscribed.CompareAndSwap(false, true) {
		r.subscribe()
		return
	}

	for _, prefix := range r.profile.EchoPrefixes {
		if strings.HasPrefix(msg, prefix) {
			r.send(r.conn, msg)
			return
		}
	}

	if r.profile.SchemaID == "" || !r.profile.Allow(msg) {
		r.filtered.Add(1)
		r.gw.deps.Metrics.LineFiltered(r.profile.Name)
		return
	}

	rec, err := r.gw.deps.Decoder.Decode(r.profile.SchemaID, r.fields, msg)
	if err != nil {
		r.drop("decode", err, msg)
		return
	}
	rec.Set("feed", r.profile.Name)
	rec.Set("messageType", msg[:1])

	frame, err := json.Marshal(rec)
	if err != nil {
		r.drop("marshal", err, msg)
		return
	}

	r.decoded.Add(1)
	r.gw.deps.Metrics.LineDecoded(r.profile.Name)
	r.gw.deps.Hub.Broadcast(frame)

	if mirror := r.gw.deps.Mirror; mirror != nil {
		err := mirror.Publish(r.profile.Name, frame)
		r.gw.deps.Metrics.MirrorPublished(err)
		if err != nil {
			r.logger.Debug("mirror publish failed", "error", err)
		}
	}
}

func (r *runner) subscribe() {
	for _, sym := range r.gw.cfg.Symbols {
		r.send(r.conn, fmt.Sprintf(r.profile.SubscribeFormat, sym))
	}
	r.logger.Info("subscribed symbols", "count", len(r.gw.cfg.Symbols))
}

func (r *runner) send(c *feed.Conn, line string) {
	if err := c.Send(line + "\r\n"); err != nil {
		r.logger.Warn("feed send failed", "command", line, "error", err)
	}
}

func (r *runner) drop(reason string, err error, line string) {
	r.dropped.Add(1)
	r.gw.deps.Metrics.DecodeFailed(r.profile.Name, reason)
	r.logger.Debug("line dropped", "reason", reason, "error", err, "line", line)
}

// observe forwards state transitions to metrics and the event sink.
func (r *runner) observe(e feed.Event) {
	prev := feed.State(r.lastState.Swap(int32(e.State)))

	m := r.gw.deps.Metrics
	m.FeedState(e.Feed, int(e.State))
	switch {
	case e.State == feed.Connected:
		m.FeedConnected(e.Feed)
	case e.State == feed.Connecting && e.Err != nil && prev == feed.Streaming:
		m.FeedReadFailed(e.Feed)
	case e.State == feed.Connecting && e.Err != nil:
		m.FeedDialFailed(e.Feed)
	}

	if sink := r.gw.deps.Events; sink != nil {
		sink.Record(e)
	}
}
