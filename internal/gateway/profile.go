package gateway

import (
	"net"
	"strconv"
	"strings"
)

// Upstream defaults for a local IQFeed client.
const (
	DefaultLevel1Port = 5009
	DefaultLevel2Port = 9200
	DefaultAdminPort  = 9300

	ProtocolHandshake = "S,SET PROTOCOL,6.2"
	ServerConnected   = "S,SERVER CONNECTED"
	KeyPrefix         = "S,KEY,"
)

// AllowFunc reports whether a trimmed line is a data line for its feed.
type AllowFunc func(line string) bool

// AllowDigits accepts lines whose message type is a digit.
func AllowDigits(line string) bool {
	return line != "" && isDigit(line[0])
}

// AllowDigitsAnd accepts digits plus any leading character in extra.
func AllowDigitsAnd(extra string) AllowFunc {
	return func(line string) bool {
		if line == "" {
			return false
		}
		return isDigit(line[0]) || strings.IndexByte(extra, line[0]) >= 0
	}
}

// AllowNone rejects every line. Used for monitor-only feeds.
func AllowNone(string) bool {
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Profile describes one upstream feed.
type Profile struct {
	Name     string
	Address  string
	SchemaID string // Empty means monitor only: lines are logged, never decoded
	Allow    AllowFunc

	// Handshake lines are sent, CRLF-terminated, on every new socket.
	Handshake []string

	// When a line starts with SubscribeTrigger, one SubscribeFormat command
	// per symbol is sent. This happens at most once per socket.
	SubscribeTrigger string
	SubscribeFormat  string

	// Lines starting with one of these prefixes are sent straight back.
	EchoPrefixes []string
}

// DefaultProfiles returns the Level 1, Level 2 and admin feeds on host.
func DefaultProfiles(host string) []Profile {
	return []Profile{
		{
			Name:             "L1",
			Address:          net.JoinHostPort(host, strconv.Itoa(DefaultLevel1Port)),
			SchemaID:         "L1",
			Allow:            AllowDigitsAnd("Q"),
			Handshake:        []string{ProtocolHandshake},
			SubscribeTrigger: ServerConnected,
			SubscribeFormat:  "w%s",
			EchoPrefixes:     []string{KeyPrefix},
		},
		{
			Name:             "L2",
			Address:          net.JoinHostPort(host, strconv.Itoa(DefaultLevel2Port)),
			SchemaID:         "L2",
			Allow:            AllowDigits,
			Handshake:        []string{ProtocolHandshake},
			SubscribeTrigger: ServerConnected,
			SubscribeFormat:  "WOR,%s",
		},
		{
			Name:      "ADMIN",
			Address:   net.JoinHostPort(host, strconv.Itoa(DefaultAdminPort)),
			Allow:     AllowNone,
			Handshake: []string{ProtocolHandshake},
		},
	}
}
