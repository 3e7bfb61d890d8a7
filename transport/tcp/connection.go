// File: transport/tcp/connection.go
// Author: momentics <momentics@gmail.com>
//
// Connection is an established TCP stream bound to one EventLoop.
// States: Connecting -> Connected -> Disconnecting -> Disconnected.

package tcp

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/core/buffer"
	"github.com/momentics/hioload-reactor/internal/logging"
	"github.com/momentics/hioload-reactor/reactor"
)

// DefaultHighWaterMark is the output backlog that triggers the high-water callback.
const DefaultHighWaterMark = 64 * 1024 * 1024

// State is the lifecycle stage of a Connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ConnOption customizes a Connection before it is established.
type ConnOption func(*Connection)

// WithHighWaterMark sets the backlog threshold.
func WithHighWaterMark(n int) ConnOption {
	return func(c *Connection) {
		if n > 0 {
			c.highWaterMark = n
		}
	}
}

// WithInitialBufferSize sets the initial size of both buffers.
func WithInitialBufferSize(n int) ConnOption {
	return func(c *Connection) {
		c.bufferSize = n
	}
}

// Connection drives one socket on its loop.
type Connection struct {
	loop      *reactor.EventLoop
	name      string
	state     atomic.Int32
	reading   bool
	disposed  atomic.Bool
	socket    *Socket
	channel   *reactor.Channel
	localAddr api.InetAddress
	peerAddr  api.InetAddress

	highWaterMark int
	bufferSize    int
	inputBuffer   *buffer.Buffer
	outputBuffer  *buffer.Buffer

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback

	context any
	log     *logging.Logger
	metrics *control.MetricsRegistry
}

// NewConnection wraps an accepted or connected socket. The connection stays
// Connecting until ConnectionEstablished runs on loop.
func NewConnection(loop *reactor.EventLoop, name string, sock *Socket,
	localAddr, peerAddr api.InetAddress, opts ...ConnOption) *Connection {
	c := &Connection{
		loop:               loop,
		name:               name,
		reading:            true,
		socket:             sock,
		channel:            reactor.NewChannel(loop, sock.Fd()),
		localAddr:          localAddr,
		peerAddr:           peerAddr,
		highWaterMark:      DefaultHighWaterMark,
		connectionCallback: DefaultConnectionCallback,
		messageCallback:    DefaultMessageCallback,
		log:                loop.Logger().With("conn", name),
		metrics:            loop.Metrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.inputBuffer = buffer.New(c.bufferSize)
	c.outputBuffer = buffer.New(c.bufferSize)
	c.setState(StateConnecting)

	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	c.log.Debugf("TcpConnection::ctor[%s] fd=%d", name, sock.Fd())
	return c
}

func (c *Connection) Loop() *reactor.EventLoop   { return c.loop }
func (c *Connection) Name() string               { return c.name }
func (c *Connection) LocalAddr() api.InetAddress { return c.localAddr }
func (c *Connection) PeerAddr() api.InetAddress  { return c.peerAddr }
func (c *Connection) State() State               { return State(c.state.Load()) }
func (c *Connection) Connected() bool            { return c.State() == StateConnected }
func (c *Connection) Disconnected() bool         { return c.State() == StateDisconnected }
func (c *Connection) setState(s State)           { c.state.Store(int32(s)) }

// Alive reports whether ConnectionDestroyed has not run yet. It guards the
// socket Channel against dispatch after teardown.
func (c *Connection) Alive() bool { return !c.disposed.Load() }

// InputBuffer and OutputBuffer may only be used on the loop goroutine.
func (c *Connection) InputBuffer() *buffer.Buffer  { return c.inputBuffer }
func (c *Connection) OutputBuffer() *buffer.Buffer { return c.outputBuffer }

// Context returns the application value attached with SetContext.
func (c *Connection) Context() any           { return c.context }
func (c *Connection) SetContext(context any) { c.context = context }

func (c *Connection) SetConnectionCallback(cb ConnectionCallback)       { c.connectionCallback = cb }
func (c *Connection) SetMessageCallback(cb MessageCallback)             { c.messageCallback = cb }
func (c *Connection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCallback = cb }
func (c *Connection) SetCloseCallback(cb CloseCallback)                 { c.closeCallback = cb }

// SetHighWaterMarkCallback installs cb for backlogs reaching mark bytes.
func (c *Connection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = cb
	if mark > 0 {
		c.highWaterMark = mark
	}
}

// SetTCPNoDelay toggles Nagle's algorithm.
func (c *Connection) SetTCPNoDelay(on bool) error {
	return c.socket.SetTCPNoDelay(on)
}

// Send queues data for the peer. Off the loop goroutine data is copied first.
// Sends on a connection that is not Connected are dropped.
func (c *Connection) Send(data []byte) {
	if c.State() != StateConnected {
		c.log.Errorf("send on %s connection %s dropped", c.State(), c.name)
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	msg := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(msg) })
}

// SendString is Send for text.
func (c *Connection) SendString(s string) {
	if c.State() != StateConnected {
		c.log.Errorf("send on %s connection %s dropped", c.State(), c.name)
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop([]byte(s))
		return
	}
	c.loop.RunInLoop(func() { c.sendInLoop([]byte(s)) })
}

// SendBuffer sends and consumes the readable bytes of buf.
func (c *Connection) SendBuffer(buf *buffer.Buffer) {
	c.SendString(buf.RetrieveAllAsString())
}

func (c *Connection) sendInLoop(data []byte) {
	c.loop.AssertInLoopThread()
	if c.State() != StateConnected {
		c.log.Errorf("connection %s is %s, give up writing", c.name, c.State())
		return
	}

	written := 0
	remaining := len(data)
	faultError := false
	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := c.socket.Write(data)
		if err == nil {
			written = n
			remaining -= n
			c.metrics.Add(control.MetricConnBytesWritten, int64(n))
			if remaining == 0 && c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
			}
		} else if !isWouldBlock(err) {
			c.log.Errorf("TcpConnection::sendInLoop: %v", err)
			faultError = isPeerGone(err)
		}
	}

	if faultError || remaining == 0 {
		return
	}
	oldLen := c.outputBuffer.ReadableBytes()
	newLen := oldLen + remaining
	if newLen >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
		c.metrics.Add(control.MetricConnHighWaterMark, 1)
		c.loop.QueueInLoop(func() { c.highWaterMarkCallback(c, newLen) })
	}
	c.outputBuffer.Append(data[written:])
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
}

// Shutdown half-closes the connection once queued output has been written.
// It has no effect unless the connection is Connected when the loop runs it.
func (c *Connection) Shutdown() {
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *Connection) shutdownInLoop() {
	c.loop.AssertInLoopThread()
	if c.State() != StateConnected {
		return
	}
	c.setState(StateDisconnecting)
	if !c.channel.IsWriting() {
		c.shutdownWrite()
	}
}

func (c *Connection) shutdownWrite() {
	if err := c.socket.ShutdownWrite(); err != nil {
		c.log.Errorf("TcpConnection::shutdownInLoop: %v", err)
	}
}

// ForceClose tears the connection down without draining output. Sends queued
// before it from the same goroutine are attempted first.
func (c *Connection) ForceClose() {
	c.loop.QueueInLoop(c.forceCloseInLoop)
}

func (c *Connection) forceCloseInLoop() {
	c.loop.AssertInLoopThread()
	if s := c.State(); s == StateConnected || s == StateDisconnecting {
		c.handleClose()
	}
}

// StartRead resumes read interest.
func (c *Connection) StartRead() {
	c.loop.RunInLoop(func() {
		if !c.reading || !c.channel.IsReading() {
			c.channel.EnableReading()
			c.reading = true
		}
	})
}

// StopRead pauses read interest; input stays queued in the kernel.
func (c *Connection) StopRead() {
	c.loop.RunInLoop(func() {
		if c.reading || c.channel.IsReading() {
			c.channel.DisableReading()
			c.reading = false
		}
	})
}

// ConnectionEstablished must run once on the loop after the connection is
// handed to it.
func (c *Connection) ConnectionEstablished() {
	c.loop.AssertInLoopThread()
	if c.State() != StateConnecting {
		c.log.Errorf("connectionEstablished in state %s", c.State())
		return
	}
	c.setState(StateConnected)
	c.channel.Tie(c)
	c.channel.EnableReading()
	c.connectionCallback(c)
}

// ConnectionDestroyed is the last call a connection receives. It notifies
// the application if handleClose has not, deregisters the Channel and closes
// the socket.
func (c *Connection) ConnectionDestroyed() {
	c.loop.AssertInLoopThread()
	if c.disposed.Load() {
		return
	}
	if s := c.State(); s == StateConnected || s == StateDisconnecting {
		c.setState(StateDisconnected)
		c.channel.DisableAll()
		c.connectionCallback(c)
	}
	c.channel.Remove()
	c.disposed.Store(true)
	if err := c.socket.Close(); err != nil {
		c.log.Errorf("TcpConnection::connectDestroyed: %v", err)
	}
	c.log.Debugf("TcpConnection::dtor[%s] fd=%d", c.name, c.socket.Fd())
}

func (c *Connection) handleRead(receiveTime api.Timestamp) {
	c.loop.AssertInLoopThread()
	n, err := c.inputBuffer.ReadFd(c.channel.Fd())
	switch {
	case n > 0:
		c.metrics.Add(control.MetricConnBytesRead, int64(n))
		c.messageCallback(c, c.inputBuffer, receiveTime)
	case n == 0:
		c.handleClose()
	case isWouldBlock(err):
	default:
		c.log.Errorf("TcpConnection::handleRead: %v", err)
		c.handleError()
	}
}

func (c *Connection) handleWrite() {
	c.loop.AssertInLoopThread()
	if !c.channel.IsWriting() {
		c.log.Debugf("Connection fd = %d is down, no more writing", c.channel.Fd())
		return
	}
	n, err := c.outputBuffer.WriteFd(c.channel.Fd())
	if err != nil {
		if !isWouldBlock(err) {
			c.log.Errorf("TcpConnection::handleWrite: %v", err)
		}
		return
	}
	c.outputBuffer.Retrieve(n)
	c.metrics.Add(control.MetricConnBytesWritten, int64(n))
	if c.outputBuffer.ReadableBytes() > 0 {
		return
	}
	c.channel.DisableWriting()
	if c.writeCompleteCallback != nil {
		c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
	}
	if c.State() == StateDisconnecting {
		c.shutdownWrite()
	}
}

// handleClose runs at most once per connection. Teardown is deferred to the
// owner through closeCallback, or queued on the loop when there is none.
func (c *Connection) handleClose() {
	c.loop.AssertInLoopThread()
	s := c.State()
	if s == StateDisconnected || s == StateConnecting {
		return
	}
	c.log.Debugf("fd = %d state = %s", c.channel.Fd(), s)
	c.setState(StateDisconnected)
	c.channel.DisableAll()

	c.connectionCallback(c)
	if c.closeCallback != nil {
		c.closeCallback(c)
		return
	}
	c.loop.QueueInLoop(c.ConnectionDestroyed)
}

func (c *Connection) handleError() {
	err := c.socket.SocketError()
	c.log.Errorf("TcpConnection::handleError [%s] - SO_ERROR = %v", c.name, err)
	c.handleClose()
}
