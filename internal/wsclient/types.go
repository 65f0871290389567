package wsclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrNoFeed          = errors.New("frame has no feed tag")
)

// Frame is a decoded gateway broadcast: one upstream line keyed by schema
// field names, plus the feed and message type tags.
type Frame struct {
	Feed        string
	MessageType string
	Fields      map[string]any
}

// Message is one frame received from the hub.
type Message struct {
	Data       []byte    // Raw frame payload
	ReceivedAt time.Time // Local timestamp when ReadMessage returned
}

// Frame decodes the payload. Numbers stay json.Number so integer fields
// keep their exact value.
func (m Message) Frame() (Frame, error) {
	var fields map[string]any

	dec := json.NewDecoder(bytes.NewReader(m.Data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	f := Frame{Fields: fields}
	f.Feed, _ = fields["feed"].(string)
	f.MessageType, _ = fields["messageType"].(string)
	if f.Feed == "" {
		return f, ErrNoFeed
	}
	delete(fields, "feed")
	delete(fields, "messageType")
	return f, nil
}

// Config configures a subscriber client.
type Config struct {
	URL              string        // ws:// or wss:// URL of the hub
	Feeds            []string      // Deliver only these feeds; empty means all
	PingTimeout      time.Duration // Max silence before the connection is stale
	WriteTimeout     time.Duration // Deadline for control frames
	HandshakeTimeout time.Duration // Upgrade handshake timeout
	BufferSize       int           // Capacity of the Messages channel
}

// DefaultConfig returns client defaults suited to the hub's 30s ping interval.
func DefaultConfig() Config {
	return Config{
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       1024,
	}
}

// Stats holds receive counters.
type Stats struct {
	Received int64 // Frames read off the socket
	Filtered int64 // Frames skipped by the feed filter
	Dropped  int64 // Frames lost because Messages was full
}
