package feed

import (
	"context"
	"errors"
	"net"
	"time"
)

// Errors
var (
	ErrNotConnected   = errors.New("feed not connected")
	ErrStopped        = errors.New("feed stopped")
	ErrAlreadyStarted = errors.New("feed already started")
)

// State is the connection state of a feed.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Streaming
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event reports a state transition. Err is set when the transition was
// caused by a dial or read failure.
type Event struct {
	Feed  string
	State State
	Err   error
	At    time.Time
}

// Dialer opens upstream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config configures a feed connection.
type Config struct {
	Name         string        // Feed identifier used in logs and events (e.g. "L1")
	Address      string        // host:port of the upstream feed
	RetryDelay   time.Duration // Fixed wait before every reconnect attempt
	DialTimeout  time.Duration // Per-attempt dial timeout
	WriteTimeout time.Duration // Write deadline for outbound commands
}

// DefaultConfig returns the reconnect and timeout defaults.
func DefaultConfig() Config {
	return Config{
		RetryDelay:   5 * time.Second,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Stats is a snapshot of connection counters.
type Stats struct {
	State        State
	Connects     int64
	DialFailures int64
	ReadErrors   int64
	Lines        int64
	Sent         int64
}
