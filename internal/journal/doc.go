// Package journal records feed connection lifecycle events in PostgreSQL.
//
// Events are buffered in memory and written in batches with pgx.Batch,
// flushed when a batch fills or on a timer. Only state transitions are
// stored; market data never reaches the database.
//
// Table:
//
//	CREATE TABLE feed_events (
//	    id          BIGSERIAL PRIMARY KEY,
//	    instance_id TEXT        NOT NULL,
//	    feed        TEXT        NOT NULL,
//	    state       TEXT        NOT NULL,
//	    error       TEXT,
//	    at          TIMESTAMPTZ NOT NULL
//	);
package journal
