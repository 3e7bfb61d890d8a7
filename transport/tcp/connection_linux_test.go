//go:build linux

// File: transport/tcp/connection_linux_test.go
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/core/buffer"
	"github.com/momentics/hioload-reactor/internal/logging"
	"github.com/momentics/hioload-reactor/reactor"
)

const waitFor = 3 * time.Second

func startLoop(t *testing.T) *reactor.EventLoop {
	t.Helper()
	th := reactor.NewEventLoopThread(t.Name(), nil, reactor.WithLogger(logging.Nop()))
	loop, err := th.StartLoop()
	require.NoError(t, err)
	t.Cleanup(th.Stop)
	return loop
}

// socketPair returns the connection side (non-blocking) and a blocking peer
// with a receive timeout.
func socketPair(t *testing.T) (local, peer *Socket) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	tv := unix.NsecToTimeval(waitFor.Nanoseconds())
	require.NoError(t, unix.SetsockoptTimeval(fds[1], unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv))
	local, peer = NewSocket(fds[0]), NewSocket(fds[1])
	t.Cleanup(func() {
		local.Close()
		peer.Close()
	})
	return local, peer
}

func runSync(loop *reactor.EventLoop, fn func()) {
	done := make(chan struct{})
	loop.RunInLoop(func() {
		fn()
		close(done)
	})
	<-done
}

func wait(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// readN reads exactly n bytes from the blocking peer.
func readN(t *testing.T, peer *Socket, n int) []byte {
	t.Helper()
	out := make([]byte, 0, n)
	buf := make([]byte, 64*1024)
	for len(out) < n {
		m, err := unix.Read(peer.Fd(), buf[:min(len(buf), n-len(out))])
		require.NoError(t, err)
		require.Positive(t, m, "unexpected EOF after %d bytes", len(out))
		out = append(out, buf[:m]...)
	}
	return out
}

func expectEOF(t *testing.T, peer *Socket) {
	t.Helper()
	var b [16]byte
	n, err := unix.Read(peer.Fd(), b[:])
	require.NoError(t, err)
	assert.Zero(t, n)
}

type tracker struct {
	up, down, writeComplete, highWater atomic.Int32
	queued                             atomic.Int64
	downCh                             chan struct{}
	completeCh                         chan struct{}
}

func newTracker() *tracker {
	return &tracker{downCh: make(chan struct{}, 4), completeCh: make(chan struct{}, 4)}
}

func newConn(t *testing.T, loop *reactor.EventLoop, sock *Socket, tr *tracker, opts ...ConnOption) *Connection {
	t.Helper()
	conn := NewConnection(loop, "test#1", sock, api.InetAddress{}, api.InetAddress{}, opts...)
	conn.SetConnectionCallback(func(c *Connection) {
		if c.Connected() {
			tr.up.Add(1)
			return
		}
		tr.down.Add(1)
		tr.downCh <- struct{}{}
	})
	conn.SetWriteCompleteCallback(func(*Connection) {
		tr.writeComplete.Add(1)
		tr.completeCh <- struct{}{}
	})
	conn.SetHighWaterMarkCallback(func(_ *Connection, queued int) {
		tr.highWater.Add(1)
		tr.queued.Store(int64(queued))
	}, 1024)
	return conn
}

func TestConnectionMessageRoundTrip(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	tr := newTracker()
	conn := newConn(t, loop, local, tr)

	got := make(chan string, 1)
	conn.SetMessageCallback(func(c *Connection, buf *buffer.Buffer, ts api.Timestamp) {
		if buf.ReadableBytes() < 4 {
			return
		}
		assert.False(t, ts.IsZero())
		got <- buf.RetrieveAsString(4)
		c.SendString("pong")
	})

	assert.Equal(t, StateConnecting, conn.State())
	runSync(loop, conn.ConnectionEstablished)
	assert.Equal(t, StateConnected, conn.State())
	assert.EqualValues(t, 1, tr.up.Load())

	_, err := unix.Write(peer.Fd(), []byte("ping"))
	require.NoError(t, err)
	select {
	case msg := <-got:
		assert.Equal(t, "ping", msg)
	case <-time.After(waitFor):
		t.Fatal("message callback not invoked")
	}
	assert.Equal(t, "pong", string(readN(t, peer, 4)))
	wait(t, tr.completeCh, "write complete")
}

func TestConnectionHighWaterMarkOncePerCrossing(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	require.NoError(t, unix.SetsockoptInt(local.Fd(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))
	tr := newTracker()
	conn := newConn(t, loop, local, tr)
	runSync(loop, conn.ConnectionEstablished)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
	conn.Send(payload)
	conn.Send(payload)

	var queued int
	runSync(loop, func() { queued = conn.OutputBuffer().ReadableBytes() })
	runSync(loop, func() {})
	assert.Greater(t, queued, len(payload))
	assert.EqualValues(t, 1, tr.highWater.Load())
	assert.GreaterOrEqual(t, tr.queued.Load(), int64(1024))
	assert.Zero(t, tr.writeComplete.Load())

	got := readN(t, peer, 2*len(payload))
	assert.True(t, bytes.Equal(payload, got[:len(payload)]))
	assert.True(t, bytes.Equal(payload, got[len(payload):]))

	wait(t, tr.completeCh, "write complete")
	runSync(loop, func() {})
	assert.EqualValues(t, 1, tr.writeComplete.Load())
	assert.EqualValues(t, 1, tr.highWater.Load())
}

func TestConnectionShutdownWaitsForOutput(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	require.NoError(t, unix.SetsockoptInt(local.Fd(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))
	tr := newTracker()
	conn := newConn(t, loop, local, tr)
	runSync(loop, conn.ConnectionEstablished)

	payload := bytes.Repeat([]byte{'z'}, 512*1024)
	runSync(loop, func() {
		conn.Send(payload)
		conn.Shutdown()
		assert.Equal(t, StateDisconnecting, conn.State())
		assert.Positive(t, conn.OutputBuffer().ReadableBytes())
	})
	conn.Send([]byte("late"))

	assert.Equal(t, payload, readN(t, peer, len(payload)))
	expectEOF(t, peer)
}

func TestConnectionShutdownImmediateWhenIdle(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	tr := newTracker()
	conn := newConn(t, loop, local, tr)
	runSync(loop, conn.ConnectionEstablished)

	conn.Shutdown()
	expectEOF(t, peer)
	assert.Equal(t, StateDisconnecting, conn.State())
}

func TestConnectionSendThenShutdownFromAnotherGoroutine(t *testing.T) {
	loop := startLoop(t)
	payload := bytes.Repeat([]byte("0123456789"), 100)
	for i := 0; i < 50; i++ {
		local, peer := socketPair(t)
		conn := newConn(t, loop, local, newTracker())
		runSync(loop, conn.ConnectionEstablished)

		conn.Send(payload)
		conn.Shutdown()

		require.Equal(t, payload, readN(t, peer, len(payload)), "iteration %d", i)
		expectEOF(t, peer)
		assert.Equal(t, StateDisconnecting, conn.State())
	}
}

func TestConnectionSendThenForceCloseFromAnotherGoroutine(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	tr := newTracker()
	conn := newConn(t, loop, local, tr)
	runSync(loop, conn.ConnectionEstablished)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SendString("bye")
		conn.ForceClose()
		conn.ForceClose()
	}()
	wait(t, done, "sender goroutine")
	wait(t, tr.downCh, "down callback")

	assert.Equal(t, []byte("bye"), readN(t, peer, 3))
	expectEOF(t, peer)
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Eventually(t, func() bool { return !conn.Alive() }, waitFor, 5*time.Millisecond)
	assert.EqualValues(t, 1, tr.down.Load())
}

func TestConnectionShutdownWhileConnectingIsNoop(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	conn := newConn(t, loop, local, newTracker())

	conn.Shutdown()
	runSync(loop, func() {})
	assert.Equal(t, StateConnecting, conn.State())

	var b [1]byte
	_, _, err := unix.Recvfrom(peer.Fd(), b[:], unix.MSG_DONTWAIT)
	assert.ErrorIs(t, err, unix.EAGAIN)

	runSync(loop, conn.ConnectionEstablished)
	assert.Equal(t, StateConnected, conn.State())
}

func TestConnectionPeerCloseTearsDownOnce(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	tr := newTracker()
	conn := newConn(t, loop, local, tr)
	runSync(loop, conn.ConnectionEstablished)

	require.NoError(t, peer.Close())
	wait(t, tr.downCh, "down callback")
	assert.Eventually(t, func() bool { return !conn.Alive() }, waitFor, 5*time.Millisecond)

	runSync(loop, conn.ConnectionDestroyed)
	assert.Equal(t, StateDisconnected, conn.State())
	assert.EqualValues(t, 1, tr.up.Load())
	assert.EqualValues(t, 1, tr.down.Load())

	conn.Send([]byte("dropped"))
	conn.Shutdown()
	conn.ForceClose()
}

func TestConnectionCloseCallbackOwnsTeardown(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	tr := newTracker()
	conn := newConn(t, loop, local, tr)

	closed := make(chan struct{})
	conn.SetCloseCallback(func(c *Connection) {
		assert.True(t, c.Alive())
		c.Loop().QueueInLoop(func() {
			c.ConnectionDestroyed()
			close(closed)
		})
	})
	runSync(loop, conn.ConnectionEstablished)

	require.NoError(t, peer.Close())
	wait(t, closed, "close callback")
	assert.False(t, conn.Alive())
	assert.EqualValues(t, 1, tr.down.Load())
}

func TestConnectionForceClose(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	tr := newTracker()
	conn := newConn(t, loop, local, tr)
	runSync(loop, conn.ConnectionEstablished)

	conn.ForceClose()
	wait(t, tr.downCh, "down callback")
	expectEOF(t, peer)
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestConnectionDestroyedWithoutClose(t *testing.T) {
	loop := startLoop(t)
	local, _ := socketPair(t)
	tr := newTracker()
	conn := newConn(t, loop, local, tr)
	runSync(loop, conn.ConnectionEstablished)

	runSync(loop, conn.ConnectionDestroyed)
	assert.EqualValues(t, 1, tr.down.Load())
	assert.False(t, conn.Alive())
	runSync(loop, func() { assert.False(t, loop.HasChannel(conn.channel)) })
}

func TestStopReadPausesMessages(t *testing.T) {
	loop := startLoop(t)
	local, peer := socketPair(t)
	conn := newConn(t, loop, local, newTracker())

	var reads atomic.Int32
	got := make(chan struct{}, 8)
	conn.SetMessageCallback(func(_ *Connection, buf *buffer.Buffer, _ api.Timestamp) {
		buf.RetrieveAll()
		reads.Add(1)
		got <- struct{}{}
	})
	runSync(loop, conn.ConnectionEstablished)

	conn.StopRead()
	runSync(loop, func() {})
	_, err := unix.Write(peer.Fd(), []byte("held"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, reads.Load())

	conn.StartRead()
	wait(t, got, "message after StartRead")
}

func TestConnectionContext(t *testing.T) {
	loop := startLoop(t)
	local, _ := socketPair(t)
	conn := newConn(t, loop, local, newTracker())
	assert.Nil(t, conn.Context())

	type session struct{ user string }
	conn.SetContext(&session{user: "alice"})
	s, ok := conn.Context().(*session)
	require.True(t, ok)
	assert.Equal(t, "alice", s.user)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Connected", StateConnected.String())
	assert.Equal(t, "Disconnecting", StateDisconnecting.String())
	assert.Equal(t, "State(9)", State(9).String())
}
