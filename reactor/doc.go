// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the one-loop-per-goroutine event reactor: Channels
// bind a descriptor to its callbacks, a level-triggered epoll Poller reports
// readiness, and an EventLoop dispatches ready Channels and runs callbacks
// queued from other goroutines.
//
// All Channel and Poller mutation happens on the goroutine that owns the loop.
// Other goroutines reach a loop only through RunInLoop and QueueInLoop.
package reactor
