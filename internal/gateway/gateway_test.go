package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/dtn-gateway/internal/feed"
	"github.com/rickgao/dtn-gateway/internal/schema"
)

const (
	l1Header = "Type,Symbol,Most Recent Trade,Bid Size,Date,Time\r\n"
	l2Header = "Type,Symbol,Order ID,MMID,Side,Price,Order Size,Order Priority,Precision,Time,Date\r\n"
)

// frames collects broadcast or mirrored frames.
type frames struct {
	ch chan []byte
}

func newFrames() *frames {
	return &frames{ch: make(chan []byte, 64)}
}

func (f *frames) Broadcast(msg []byte) int {
	f.ch <- append([]byte(nil), msg...)
	return 1
}

func (f *frames) Publish(_ string, msg []byte) error {
	f.ch <- append([]byte(nil), msg...)
	return nil
}

func (f *frames) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case msg := <-f.ch:
		var out map[string]any
		require.NoError(t, json.Unmarshal(msg, &out))
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (f *frames) none(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.ch:
		t.Fatalf("unexpected frame %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

// events collects feed events.
type events struct {
	mu  sync.Mutex
	all []feed.Event
}

func (e *events) Record(ev feed.Event) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
}

func (e *events) states() []feed.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]feed.State, 0, len(e.all))
	for _, ev := range e.all {
		out = append(out, ev.State)
	}
	return out
}

// upstream is a fake IQFeed port.
type upstream struct {
	ln    net.Listener
	conns chan net.Conn
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	u := &upstream{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			u.conns <- conn
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return u
}

// peer is the server side of one upstream socket.
type peer struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (u *upstream) accept(t *testing.T) *peer {
	t.Helper()
	select {
	case conn := <-u.conns:
		t.Cleanup(func() { conn.Close() })
		return &peer{conn: conn, reader: bufio.NewReader(conn)}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func (p *peer) expect(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := p.reader.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, w+"\r\n", line)
	}
}

func (p *peer) write(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		_, err := p.conn.Write([]byte(l + "\r\n"))
		require.NoError(t, err)
	}
}

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Load("L1", strings.NewReader(l1Header)))
	require.NoError(t, reg.Load("L2", strings.NewReader(l2Header)))
	return reg
}

func startGateway(t *testing.T, profiles []Profile, deps Deps) *Gateway {
	t.Helper()
	if deps.Schemas == nil {
		deps.Schemas = newRegistry(t)
	}
	g, err := New(Config{
		Profiles:   profiles,
		Symbols:    []string{"AAPL", "MSFT"},
		RetryDelay: 20 * time.Millisecond,
	}, deps)
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(g.Stop)
	return g
}

func TestGateway_Level1Session(t *testing.T) {
	up := newUpstream(t)
	hub := newFrames()

	profile := DefaultProfiles("127.0.0.1")[0]
	profile.Address = up.ln.Addr().String()
	g := startGateway(t, []Profile{profile}, Deps{Hub: hub})

	p := up.accept(t)
	p.expect(t, "S,SET PROTOCOL,6.2")

	p.write(t, "S,SERVER CONNECTED")
	p.expect(t, "wAAPL", "wMSFT")

	p.write(t, "S,KEY,ABC123")
	p.expect(t, "S,KEY,ABC123")

	p.write(t, "Q,AAPL,101.5,1200,2024-01-01,09:30:00")
	frame := hub.next(t)
	assert.Equal(t, "L1", frame["feed"])
	assert.Equal(t, "Q", frame["messageType"])
	assert.Equal(t, "AAPL", frame["Symbol"])
	assert.Equal(t, 101.5, frame["Most Recent Trade"])
	assert.Equal(t, 1200.0, frame["Bid Size"])
	assert.Equal(t, "2024-01-01T09:30:00Z", frame["timestamp"])
	assert.NotContains(t, frame, "Date")
	assert.NotContains(t, frame, "Time")

	// System lines and non-data types never reach subscribers.
	p.write(t, "S,STATS,1", "T,20240101", "n,XYZ")
	hub.none(t)

	// Same socket: the trigger is not honoured twice, so it is filtered.
	p.write(t, "S,SERVER CONNECTED", "2,MSFT,300.25,,,")
	frame = hub.next(t)
	assert.Equal(t, "2", frame["messageType"])
	assert.Nil(t, frame["Bid Size"])

	stats := g.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "L1", stats[0].Name)
	assert.Equal(t, "streaming", stats[0].State)
	assert.Equal(t, int64(2), stats[0].Decoded)
	assert.Equal(t, int64(4), stats[0].Filtered)
}

func TestGateway_ResubscribesAfterReconnect(t *testing.T) {
	up := newUpstream(t)
	hub := newFrames()

	profile := DefaultProfiles("127.0.0.1")[1]
	profile.Address = up.ln.Addr().String()
	sink := &events{}
	startGateway(t, []Profile{profile}, Deps{Hub: hub, Events: sink})

	first := up.accept(t)
	first.expect(t, "S,SET PROTOCOL,6.2")
	first.write(t, "S,SERVER CONNECTED")
	first.expect(t, "WOR,AAPL", "WOR,MSFT")
	first.conn.Close()

	second := up.accept(t)
	second.expect(t, "S,SET PROTOCOL,6.2")
	second.write(t, "S,SERVER CONNECTED")
	second.expect(t, "WOR,AAPL", "WOR,MSFT")

	assert.Contains(t, sink.states(), feed.Streaming)
	assert.Contains(t, sink.states(), feed.Connecting)
}

func TestGateway_DepthDeleteRealigned(t *testing.T) {
	up := newUpstream(t)
	hub := newFrames()

	profile := DefaultProfiles("127.0.0.1")[1]
	profile.Address = up.ln.Addr().String()
	startGateway(t, []Profile{profile}, Deps{Hub: hub})

	p := up.accept(t)
	p.write(t, "5,AAPL,ORD1")

	frame := hub.next(t)
	assert.Equal(t, "L2", frame["feed"])
	assert.Equal(t, "5", frame["messageType"])
	assert.Equal(t, "AAPL", frame["Symbol"])
	assert.Equal(t, "ORD1", frame["Order ID"])
	assert.Nil(t, frame["MMID"])
	assert.Nil(t, frame["Price"])

	// Level 2 only accepts digits.
	p.write(t, "Q,AAPL,1")
	hub.none(t)
}

func TestGateway_AdminIsMonitorOnly(t *testing.T) {
	up := newUpstream(t)
	hub := newFrames()

	profile := DefaultProfiles("127.0.0.1")[2]
	profile.Address = up.ln.Addr().String()
	g := startGateway(t, []Profile{profile}, Deps{Hub: hub})

	p := up.accept(t)
	p.expect(t, "S,SET PROTOCOL,6.2")
	p.write(t, "S,STATS,1,2,3", "1,2,3")
	hub.none(t)

	require.Eventually(t, func() bool { return g.Stats()[0].Filtered == 2 }, time.Second, 5*time.Millisecond)
}

func TestGateway_Mirror(t *testing.T) {
	up := newUpstream(t)
	hub := newFrames()
	mirror := newFrames()

	profile := DefaultProfiles("127.0.0.1")[0]
	profile.Address = up.ln.Addr().String()
	startGateway(t, []Profile{profile}, Deps{Hub: hub, Mirror: mirror})

	p := up.accept(t)
	p.write(t, "Q,AAPL,1,2,,")

	assert.Equal(t, hub.next(t), mirror.next(t))
}

func TestNew_Validation(t *testing.T) {
	reg := newRegistry(t)
	hub := newFrames()

	_, err := New(Config{}, Deps{Hub: hub, Schemas: reg})
	assert.ErrorIs(t, err, ErrNoProfiles)

	profiles := DefaultProfiles("127.0.0.1")
	_, err = New(Config{Profiles: profiles}, Deps{Schemas: reg})
	assert.ErrorIs(t, err, ErrNoBroadcaster)

	_, err = New(Config{Profiles: profiles}, Deps{Hub: hub})
	assert.ErrorIs(t, err, ErrNoSchemas)

	_, err = New(Config{Profiles: profiles}, Deps{Hub: hub, Schemas: schema.NewRegistry()})
	assert.ErrorIs(t, err, schema.ErrUnknownSchema)
}

func TestDefaultProfiles(t *testing.T) {
	profiles := DefaultProfiles("10.0.0.5")
	require.Len(t, profiles, 3)

	tests := []struct {
		name    string
		address string
		schema  string
		format  string
	}{
		{"L1", "10.0.0.5:5009", "L1", "w%s"},
		{"L2", "10.0.0.5:9200", "L2", "WOR,%s"},
		{"ADMIN", "10.0.0.5:9300", "", ""},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profiles[i]
			assert.Equal(t, tt.name, p.Name)
			assert.Equal(t, tt.address, p.Address)
			assert.Equal(t, tt.schema, p.SchemaID)
			assert.Equal(t, tt.format, p.SubscribeFormat)
			assert.Equal(t, []string{ProtocolHandshake}, p.Handshake)
		})
	}
	assert.Equal(t, []string{KeyPrefix}, profiles[0].EchoPrefixes)
}

func TestAllowFuncs(t *testing.T) {
	l1 := AllowDigitsAnd("Q")

	tests := []struct {
		line   string
		digits bool
		l1     bool
	}{
		{"Q,AAPL", false, true},
		{"3,AAPL", true, true},
		{"0", true, true},
		{"S,SERVER CONNECTED", false, false},
		{"T,20240101", false, false},
		{"q,lower", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.digits, AllowDigits(tt.line), "AllowDigits(%q)", tt.line)
		assert.Equal(t, tt.l1, l1(tt.line), "AllowDigitsAnd(Q)(%q)", tt.line)
		assert.False(t, AllowNone(tt.line))
	}
}
