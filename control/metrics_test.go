// control/metrics_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistryConcurrentAdd(t *testing.T) {
	mr := NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mr.Add(MetricLoopPolls, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8000), mr.Get(MetricLoopPolls))
	assert.False(t, mr.Updated().IsZero())
}

func TestMetricsRegistrySnapshotAndSet(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Set(MetricServerConnections, 5)
	mr.Add(MetricConnBytesRead, 42)
	snap := mr.GetSnapshot()
	assert.Equal(t, map[string]int64{
		MetricServerConnections: 5,
		MetricConnBytesRead:     42,
	}, snap)
	assert.Zero(t, mr.Get("unknown"))
}

func TestNilMetricsRegistryIsInert(t *testing.T) {
	var mr *MetricsRegistry
	mr.Add(MetricLoopEvents, 1)
	mr.Set(MetricLoopEvents, 1)
	assert.Zero(t, mr.Get(MetricLoopEvents))
}

func TestDebugProbesDump(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("a", func() any { return 1 })
	dp.RegisterProbe("b", func() any { return "two" })
	RegisterPlatformProbes(dp)

	state := dp.DumpState()
	assert.Equal(t, 1, state["a"])
	assert.Equal(t, "two", state["b"])
	assert.Contains(t, state, "platform.cpus")

	dp.UnregisterProbe("a")
	assert.NotContains(t, dp.DumpState(), "a")
}
