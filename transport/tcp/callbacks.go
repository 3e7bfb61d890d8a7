// File: transport/tcp/callbacks.go
// Author: momentics <momentics@gmail.com>
//
// Application callback signatures. All callbacks run on the connection's loop.

package tcp

import (
	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/core/buffer"
)

// ConnectionCallback observes a connection coming up and going down.
type ConnectionCallback func(conn *Connection)

// CloseCallback is the owner's hook to schedule teardown.
type CloseCallback func(conn *Connection)

// WriteCompleteCallback fires when the output buffer drains to empty.
type WriteCompleteCallback func(conn *Connection)

// HighWaterMarkCallback fires when queued output crosses the high-water mark.
type HighWaterMarkCallback func(conn *Connection, queued int)

// MessageCallback receives the input buffer; it retrieves what it consumes.
type MessageCallback func(conn *Connection, buf *buffer.Buffer, receiveTime api.Timestamp)

// DefaultConnectionCallback logs the transition.
func DefaultConnectionCallback(conn *Connection) {
	state := "DOWN"
	if conn.Connected() {
		state = "UP"
	}
	conn.log.Infof("%s -> %s is %s", conn.LocalAddr(), conn.PeerAddr(), state)
}

// DefaultMessageCallback discards everything received.
func DefaultMessageCallback(conn *Connection, buf *buffer.Buffer, _ api.Timestamp) {
	buf.RetrieveAll()
}
