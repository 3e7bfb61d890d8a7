// File: client/client.go
// Package client connects outbound TCP streams onto an EventLoop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/logging"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/transport/tcp"
)

// Dial connects to addr with a blocking connect and wraps the socket in a
// Connection owned by loop. The connection is still Connecting; the caller
// installs callbacks and then runs ConnectionEstablished on loop.
func Dial(loop *reactor.EventLoop, addr api.InetAddress, name string, opts ...tcp.ConnOption) (*tcp.Connection, error) {
	sock, err := tcp.DialSocket(addr)
	if err != nil {
		return nil, err
	}
	local, err := sock.LocalAddr()
	if err != nil {
		sock.Close()
		return nil, err
	}
	return tcp.NewConnection(loop, name, sock, local, addr, opts...), nil
}

// Client manages a single outbound connection.
type Client struct {
	loop   *reactor.EventLoop
	addr   api.InetAddress
	name   string
	opts   []tcp.ConnOption
	nextID int

	connectionCallback    tcp.ConnectionCallback
	messageCallback       tcp.MessageCallback
	writeCompleteCallback tcp.WriteCompleteCallback

	mu         sync.Mutex
	connection *tcp.Connection
	log        *logging.Logger
}

// NewClient prepares a client for addr; nothing connects until Connect.
func NewClient(loop *reactor.EventLoop, addr api.InetAddress, name string, opts ...tcp.ConnOption) *Client {
	return &Client{
		loop:               loop,
		addr:               addr,
		name:               name,
		opts:               opts,
		connectionCallback: tcp.DefaultConnectionCallback,
		messageCallback:    tcp.DefaultMessageCallback,
		log:                loop.Logger().With("client", name),
	}
}

func (c *Client) SetConnectionCallback(cb tcp.ConnectionCallback)       { c.connectionCallback = cb }
func (c *Client) SetMessageCallback(cb tcp.MessageCallback)             { c.messageCallback = cb }
func (c *Client) SetWriteCompleteCallback(cb tcp.WriteCompleteCallback) { c.writeCompleteCallback = cb }

// Connection returns the live connection, or nil.
func (c *Client) Connection() *tcp.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection
}

// Connect dials and hands the connection to the loop. Callbacks set before
// Connect apply to the new connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connection != nil {
		c.mu.Unlock()
		return fmt.Errorf("client %s: already connected", c.name)
	}
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	connName := fmt.Sprintf("%s:%s#%d", c.name, c.addr.IPPort(), id)
	conn, err := Dial(c.loop, c.addr, connName, c.opts...)
	if err != nil {
		return fmt.Errorf("client %s: %w", c.name, err)
	}
	conn.SetConnectionCallback(c.connectionCallback)
	conn.SetMessageCallback(c.messageCallback)
	conn.SetWriteCompleteCallback(c.writeCompleteCallback)
	conn.SetCloseCallback(c.removeConnection)

	c.mu.Lock()
	c.connection = conn
	c.mu.Unlock()
	c.log.Infof("TcpClient::connect[%s] - connected to %s", c.name, c.addr)
	c.loop.RunInLoop(conn.ConnectionEstablished)
	return nil
}

func (c *Client) removeConnection(conn *tcp.Connection) {
	c.mu.Lock()
	if c.connection == conn {
		c.connection = nil
	}
	c.mu.Unlock()
	c.loop.QueueInLoop(conn.ConnectionDestroyed)
}

// Disconnect half-closes the connection after pending output.
func (c *Client) Disconnect() {
	if conn := c.Connection(); conn != nil {
		conn.Shutdown()
	}
}

// Stop closes the connection at once.
func (c *Client) Stop() {
	if conn := c.Connection(); conn != nil {
		conn.ForceClose()
	}
}
