// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for loops and connections.
// Counters are created on first use and updated atomically.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metric names recorded by the reactor.
const (
	MetricLoopPolls          = "loop.polls"
	MetricLoopEvents         = "loop.events"
	MetricLoopWakeups        = "loop.wakeups"
	MetricLoopFunctors       = "loop.functors"
	MetricConnBytesRead      = "conn.bytes_read"
	MetricConnBytesWritten   = "conn.bytes_written"
	MetricConnHighWaterMark  = "conn.high_water_mark"
	MetricServerConnections  = "server.connections"
	MetricServerAcceptErrors = "server.accept_errors"
)

// MetricsRegistry holds named int64 counters.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	updated  atomic.Int64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*atomic.Int64),
	}
}

func (mr *MetricsRegistry) counter(key string) *atomic.Int64 {
	mr.mu.RLock()
	c, ok := mr.counters[key]
	mr.mu.RUnlock()
	if ok {
		return c
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if c, ok = mr.counters[key]; !ok {
		c = new(atomic.Int64)
		mr.counters[key] = c
	}
	return c
}

// Add increments key by delta. A nil registry ignores the call.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	if mr == nil {
		return
	}
	mr.counter(key).Add(delta)
	mr.updated.Store(time.Now().UnixNano())
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value int64) {
	if mr == nil {
		return
	}
	mr.counter(key).Store(value)
	mr.updated.Store(time.Now().UnixNano())
}

// Get returns the current value of key, zero when unknown.
func (mr *MetricsRegistry) Get(key string) int64 {
	if mr == nil {
		return 0
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	if c, ok := mr.counters[key]; ok {
		return c.Load()
	}
	return 0
}

// Updated returns the time of the last change.
func (mr *MetricsRegistry) Updated() time.Time {
	return time.Unix(0, mr.updated.Load())
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.counters))
	for k, v := range mr.counters {
		out[k] = v.Load()
	}
	return out
}
