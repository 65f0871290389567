package feed

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDialer fails the first n attempts, then dials for real.
type flakyDialer struct {
	failures int32
	attempts atomic.Int32
	dialer   net.Dialer
}

func (d *flakyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	n := d.attempts.Add(1)
	if n <= d.failures {
		return nil, errors.New("connection refused")
	}
	return d.dialer.DialContext(ctx, network, address)
}

// failingDialer never connects.
type failingDialer struct {
	attempts atomic.Int32
}

func (d *failingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.attempts.Add(1)
	return nil, errors.New("connection refused")
}

// upstream is a fake line feed that hands accepted sockets to the test.
type upstream struct {
	ln    net.Listener
	conns chan net.Conn
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	u := &upstream{ln: ln, conns: make(chan net.Conn, 8)}
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

func (u *upstream) addr() string {
	return u.ln.Addr().String()
}

func (u *upstream) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-u.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func testConfig(addr string) Config {
	return Config{
		Name:         "L1",
		Address:      addr,
		RetryDelay:   20 * time.Millisecond,
		DialTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

func TestConn_RetriesUntilConnected(t *testing.T) {
	up := newUpstream(t)
	dialer := &flakyDialer{failures: 2}

	var hooks atomic.Int32
	c := New(testConfig(up.addr()),
		WithDialer(dialer),
		WithConnectHook(func(*Conn) { hooks.Add(1) }),
	)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	up.accept(t)

	require.Eventually(t, func() bool { return c.State() == Streaming }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), dialer.attempts.Load())
	assert.Equal(t, int32(1), hooks.Load())

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.DialFailures)
	assert.Equal(t, int64(1), stats.Connects)
}

func TestConn_DeliversLines(t *testing.T) {
	up := newUpstream(t)

	lines := make(chan string, 8)
	c := New(testConfig(up.addr()), WithMessageHandler(func(line string) { lines <- line }))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	server := up.accept(t)
	_, err := server.Write([]byte("Q,AAPL,1.5\r\n\nS,SERVER CONNECTED\r\npartial"))
	require.NoError(t, err)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case line := <-lines:
			got = append(got, line)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for line")
		}
	}

	// Only the newline is stripped; the carriage return is left to the consumer.
	assert.Equal(t, []string{"Q,AAPL,1.5\r", "S,SERVER CONNECTED\r"}, got)
	assert.Equal(t, int64(2), c.Stats().Lines)
}

func TestConn_SendPreservesOrder(t *testing.T) {
	up := newUpstream(t)

	c := New(testConfig(up.addr()), WithConnectHook(func(c *Conn) {
		assert.NoError(t, c.Send("S,SET PROTOCOL,6.2\r\n"))
		assert.NoError(t, c.Send("wAAPL\r\n"))
		assert.NoError(t, c.Send("wMSFT\r\n"))
	}))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	server := up.accept(t)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(server)

	for _, want := range []string{"S,SET PROTOCOL,6.2\r\n", "wAAPL\r\n", "wMSFT\r\n"} {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
}

func TestConn_SendFromHandler(t *testing.T) {
	up := newUpstream(t)

	var c *Conn
	c = New(testConfig(up.addr()), WithMessageHandler(func(line string) {
		assert.NoError(t, c.Send(line+"\n"))
	}))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	server := up.accept(t)
	_, err := server.Write([]byte("S,KEY,1234\n"))
	require.NoError(t, err)

	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(server).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "S,KEY,1234\n", line)
}

func TestConn_SendWithoutSocket(t *testing.T) {
	c := New(testConfig("127.0.0.1:1"), WithDialer(&failingDialer{}))

	assert.ErrorIs(t, c.Send("wAAPL\r\n"), ErrNotConnected)

	c.Stop()
	assert.ErrorIs(t, c.Send("wAAPL\r\n"), ErrStopped)
}

func TestConn_ReconnectsAfterReadFailure(t *testing.T) {
	up := newUpstream(t)

	var hooks atomic.Int32
	c := New(testConfig(up.addr()), WithConnectHook(func(*Conn) { hooks.Add(1) }))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	first := up.accept(t)
	first.Close()

	up.accept(t)
	require.Eventually(t, func() bool { return hooks.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), c.Stats().ReadErrors)
	assert.Equal(t, int64(2), c.Stats().Connects)
}

func TestConn_StopHaltsRetries(t *testing.T) {
	dialer := &failingDialer{}
	cfg := testConfig("127.0.0.1:1")
	cfg.RetryDelay = 10 * time.Millisecond

	var handled atomic.Int32
	c := New(cfg,
		WithDialer(dialer),
		WithMessageHandler(func(string) { handled.Add(1) }),
	)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return dialer.attempts.Load() >= 2 }, 2*time.Second, time.Millisecond)
	c.Stop()

	attempts := dialer.attempts.Load()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, attempts, dialer.attempts.Load())
	assert.Equal(t, Stopped, c.State())
	assert.Zero(t, handled.Load())
}

func TestConn_StopIsIdempotent(t *testing.T) {
	up := newUpstream(t)

	c := New(testConfig(up.addr()))
	require.NoError(t, c.Start(context.Background()))
	up.accept(t)

	c.Stop()
	c.Stop()

	assert.Equal(t, Stopped, c.State())
	assert.ErrorIs(t, c.Start(context.Background()), ErrStopped)
}

func TestConn_StopFromHandler(t *testing.T) {
	up := newUpstream(t)

	var c *Conn
	var handled atomic.Int32
	stopped := make(chan struct{})
	c = New(testConfig(up.addr()), WithMessageHandler(func(line string) {
		handled.Add(1)
		if line == "S,STOP" {
			c.Stop()
			close(stopped)
		}
	}))
	require.NoError(t, c.Start(context.Background()))

	server := up.accept(t)
	_, err := server.Write([]byte("S,STOP\nQ,AAPL,1.5\n"))
	require.NoError(t, err)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop from handler did not return (state=%s)", c.State())
	}

	waited := make(chan struct{})
	go func() {
		c.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Stop from handler")
	}

	assert.Equal(t, Stopped, c.State())
	assert.Equal(t, int32(1), handled.Load())
	assert.ErrorIs(t, c.Send("wAAPL\r\n"), ErrStopped)
}

func TestConn_StopFromConnectHook(t *testing.T) {
	up := newUpstream(t)

	var states []State
	var mu sync.Mutex
	c := New(testConfig(up.addr()),
		WithConnectHook(func(c *Conn) { c.Stop() }),
		WithObserver(func(e Event) {
			mu.Lock()
			states = append(states, e.State)
			mu.Unlock()
		}),
	)
	require.NoError(t, c.Start(context.Background()))
	up.accept(t)

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("feed did not exit after Stop from hook (state=%s)", c.State())
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Connecting, Connected, Stopped}, states)
}

func TestConn_WaitWithoutStart(t *testing.T) {
	c := New(testConfig("127.0.0.1:1"))
	c.Stop()
	c.Wait()
}

func TestConn_StartTwice(t *testing.T) {
	c := New(testConfig("127.0.0.1:1"), WithDialer(&failingDialer{}))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestConn_StopBeforeStart(t *testing.T) {
	c := New(testConfig("127.0.0.1:1"))
	c.Stop()
	assert.Equal(t, Stopped, c.State())
}

func TestConn_ObserverSeesTransitions(t *testing.T) {
	up := newUpstream(t)

	var mu sync.Mutex
	var states []State
	c := New(testConfig(up.addr()),
		WithDialer(&flakyDialer{failures: 1}),
		WithObserver(func(e Event) {
			mu.Lock()
			states = append(states, e.State)
			mu.Unlock()
		}),
	)
	require.NoError(t, c.Start(context.Background()))
	up.accept(t)
	require.Eventually(t, func() bool { return c.State() == Streaming }, 2*time.Second, 5*time.Millisecond)
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Connecting, Connecting, Connected, Streaming, Stopped}, states)
}

func TestConn_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(testConfig("127.0.0.1:1"), WithDialer(&failingDialer{}))
	require.NoError(t, c.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return c.State() == Stopped }, 2*time.Second, 5*time.Millisecond)
	c.Stop()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "unknown", State(42).String())
}
