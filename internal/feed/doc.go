// Package feed maintains a single upstream TCP connection to a line-oriented
// market data feed.
//
// A Conn walks the states Disconnected → Connecting → Connected → Streaming
// and falls back to Connecting whenever a dial or read fails, retrying after a
// fixed delay for as long as it runs. Stop is the only way out; once stopped a
// Conn never dials, retries or delivers another line.
//
// Each Conn is owned by one goroutine that dials, runs the connect hook and
// reads lines. Writes go through a per-socket queue drained by a dedicated
// writer goroutine, so Send is safe to call from inside the message handler.
package feed
