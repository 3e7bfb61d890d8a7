// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements non-blocking TCP sockets and the Connection state
// machine driven by a reactor.EventLoop.
//
// A Connection belongs to exactly one loop. Its buffers and state change only
// on that loop's goroutine; Send, Shutdown and ForceClose may be called from
// anywhere and are marshalled onto the loop.
package tcp
