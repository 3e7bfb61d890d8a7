//go:build !linux

// File: reactor/poller_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "github.com/momentics/hioload-reactor/api"

// NewDefaultPoller returns an error for unsupported platforms.
func NewDefaultPoller(loop *EventLoop, initEventListSize int) (Poller, error) {
	return nil, api.ErrNotSupported
}
