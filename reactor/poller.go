// File: reactor/poller.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness multiplexer interface.

package reactor

import "github.com/momentics/hioload-reactor/api"

// Poller multiplexes readiness for the Channels of a single EventLoop.
// Every method must be called from the loop goroutine.
type Poller interface {
	// Poll waits up to timeoutMs for readiness, appends ready Channels to
	// active and returns the time the wait returned.
	Poll(timeoutMs int, active *[]*Channel) api.Timestamp

	// UpdateChannel registers ch or applies its new interest mask.
	UpdateChannel(ch *Channel)

	// RemoveChannel forgets ch. The Channel may be registered again later.
	RemoveChannel(ch *Channel)

	// HasChannel reports whether ch is tracked by this poller.
	HasChannel(ch *Channel) bool

	// Close releases the OS multiplexer.
	Close() error
}
