// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-reactor/control"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithConfig replaces the default configuration.
func WithConfig(cfg control.Config) ServerOption {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithConfigStore takes the configuration from cs and follows its reloads.
// Reloaded values apply to connections accepted afterwards.
func WithConfigStore(cs *control.ConfigStore) ServerOption {
	return func(s *Server) {
		s.cfg = cs.GetSnapshot()
		s.store = cs
	}
}

// WithReusePort sets SO_REUSEPORT on the listening socket.
func WithReusePort(on bool) ServerOption {
	return func(s *Server) {
		s.reusePort = on
	}
}

// WithMetrics records connection counters into mr.
func WithMetrics(mr *control.MetricsRegistry) ServerOption {
	return func(s *Server) {
		s.metrics = mr
	}
}

// WithDebugProbes registers server and loop probes in dp.
func WithDebugProbes(dp *control.DebugProbes) ServerOption {
	return func(s *Server) {
		s.probes = dp
	}
}

// WithThreadNum overrides the configured number of I/O loops.
func WithThreadNum(n int) ServerOption {
	return func(s *Server) {
		if n >= 0 {
			s.cfg.Threads = n
		}
	}
}
