package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/dtn-gateway/internal/feed"
	"github.com/rickgao/dtn-gateway/internal/metrics"
	"github.com/rickgao/dtn-gateway/internal/queue"
)

const createTable = `
	CREATE TABLE IF NOT EXISTS feed_events (
		id          BIGSERIAL PRIMARY KEY,
		instance_id TEXT        NOT NULL,
		feed        TEXT        NOT NULL,
		state       TEXT        NOT NULL,
		error       TEXT,
		at          TIMESTAMPTZ NOT NULL
	)`

const insertEvent = `
	INSERT INTO feed_events (instance_id, feed, state, error, at)
	VALUES ($1, $2, $3, $4, $5)`

// flushTimeout bounds a single background batch insert.
const flushTimeout = 10 * time.Second

// DB is the subset of *pgxpool.Pool the writer needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config configures batching.
type Config struct {
	InstanceID    string
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// Stats holds writer counters.
type Stats struct {
	Written int64
	Errors  int64
	Flushes int64
	Dropped int64
}

// eventRow is one feed_events row.
type eventRow struct {
	Feed  string
	State string
	Error *string
	At    time.Time
}

// Writer batches feed events into the feed_events table.
type Writer struct {
	cfg     Config
	db      DB
	logger  *slog.Logger
	metrics *metrics.Metrics

	input *queue.Queue[feed.Event]

	batch   []eventRow
	batchMu sync.Mutex
	stats   Stats

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	consumerDone chan struct{}
}

// NewWriter creates a journal writer. m may be nil.
func NewWriter(cfg Config, db DB, m *metrics.Metrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	return &Writer{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		metrics: m,
		input:   queue.New[feed.Event](cfg.BatchSize),
		batch:   make([]eventRow, 0, cfg.BatchSize),

		consumerDone: make(chan struct{}),
	}
}

// EnsureSchema creates the feed_events table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create feed_events: %w", err)
	}
	return nil
}

// Record queues an event. It never blocks; events recorded after Stop are
// counted as dropped.
func (w *Writer) Record(e feed.Event) {
	if !w.input.Push(e) {
		w.batchMu.Lock()
		w.stats.Dropped++
		w.batchMu.Unlock()
	}
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued events, writes them and shuts down. The consumer's
// flushes are bounded by flushTimeout rather than ctx, so rows queued before
// Stop are still written when ctx expires mid-drain.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	w.input.Close()

	if w.cancel != nil {
		// Let the consumer drain what was queued before Stop.
		select {
		case <-w.consumerDone:
		case <-ctx.Done():
			w.logger.Warn("journal writer stop timed out, still draining", "queued", w.input.Len())
		}
		w.cancel()
		w.wg.Wait()
	}

	// Final flush
	w.flush(ctx)

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop moves events from the queue into the batch until the queue
// is closed and empty.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()
	defer close(w.consumerDone)

	for {
		e, ok := w.input.Pop()
		if !ok {
			return
		}
		w.handleEvent(e)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flushDetached()
		}
	}
}

func (w *Writer) handleEvent(e feed.Event) {
	row := transform(e)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flushDetached()
	}
}

// flushDetached flushes with a context that outlives Stop's cancel, bounded
// by flushTimeout.
func (w *Writer) flushDetached() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), flushTimeout)
	defer cancel()
	w.flush(ctx)
}

func transform(e feed.Event) eventRow {
	row := eventRow{
		Feed:  e.Feed,
		State: e.State.String(),
		At:    e.At.UTC(),
	}
	if e.Err != nil {
		msg := e.Err.Error()
		row.Error = &msg
	}
	return row
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	err := w.batchInsert(ctx, batch)
	w.metrics.JournalFlushed(len(batch), err)

	w.batchMu.Lock()
	if err != nil {
		w.stats.Errors++
	} else {
		w.stats.Written += int64(len(batch))
		w.stats.Flushes++
	}
	w.batchMu.Unlock()

	if err != nil {
		w.logger.Error("journal insert failed", "error", err, "count", len(batch))
		return
	}
	w.logger.Debug("flushed feed events", "count", len(batch), "duration", time.Since(start))
}

// batchInsert inserts rows with a single pgx.Batch round trip.
func (w *Writer) batchInsert(ctx context.Context, rows []eventRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEvent, w.cfg.InstanceID, r.Feed, r.State, r.Error, r.At)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
