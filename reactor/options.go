// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for EventLoop construction.

package reactor

import (
	"time"

	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/internal/logging"
)

const (
	// DefaultPollTimeout bounds a single wait in the poller.
	DefaultPollTimeout = 10 * time.Second
	// DefaultInitEventListSize is the initial capacity of the poll result list.
	DefaultInitEventListSize = 16
)

// Option customizes EventLoop initialization.
type Option func(*EventLoop)

// WithPollTimeout overrides how long a poll may block.
func WithPollTimeout(d time.Duration) Option {
	return func(l *EventLoop) {
		if d > 0 {
			l.pollTimeout = d
		}
	}
}

// WithInitEventListSize overrides the initial poll result capacity.
func WithInitEventListSize(n int) Option {
	return func(l *EventLoop) {
		if n > 0 {
			l.initEventListSize = n
		}
	}
}

// WithMetrics records loop counters into mr.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(l *EventLoop) {
		l.metrics = mr
	}
}

// WithLogger replaces the process default logger for this loop.
func WithLogger(lg *logging.Logger) Option {
	return func(l *EventLoop) {
		if lg != nil {
			l.log = lg
		}
	}
}

// WithConfig applies the poller settings of cfg.
func WithConfig(cfg control.Config) Option {
	return func(l *EventLoop) {
		WithPollTimeout(cfg.PollTimeout)(l)
		WithInitEventListSize(cfg.InitEventListSize)(l)
	}
}
