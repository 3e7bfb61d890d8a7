// control/config_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/api"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.PollTimeout)
	assert.Equal(t, 16, cfg.InitEventListSize)
	assert.Equal(t, 1024, cfg.BufferInitialSize)
	assert.Equal(t, 64*1024*1024, cfg.HighWaterMark)
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig(`
listen_addr = "0.0.0.0:7000"
threads = 4
cpu_affinity = [0, 2]
poll_timeout = "250ms"
high_water_mark = 4096
log_level = "debug"
`)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.ListenAddr)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, []int{0, 2}, cfg.CPUAffinity)
	assert.Equal(t, 250*time.Millisecond, cfg.PollTimeout)
	assert.Equal(t, 4096, cfg.HighWaterMark)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1024, cfg.BufferInitialSize)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"threads":     func(c *Config) { c.Threads = -1 },
		"poll":        func(c *Config) { c.PollTimeout = 0 },
		"events":      func(c *Config) { c.InitEventListSize = 0 },
		"buffer":      func(c *Config) { c.BufferInitialSize = -5 },
		"water":       func(c *Config) { c.HighWaterMark = 0 },
		"listen_addr": func(c *Config) { c.ListenAddr = "nope" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, api.ErrInvalidArgument)
		})
	}
}

func TestConfigStoreUpdateNotifiesListeners(t *testing.T) {
	store := NewConfigStore(DefaultConfig())
	var got []Config
	store.OnReload(func(c Config) { got = append(got, c) })

	next := DefaultConfig()
	next.HighWaterMark = 128
	require.NoError(t, store.Update(next))
	require.Len(t, got, 1)
	assert.Equal(t, 128, got[0].HighWaterMark)
	assert.Equal(t, 128, store.GetSnapshot().HighWaterMark)

	bad := next
	bad.HighWaterMark = 0
	require.Error(t, store.Update(bad))
	assert.Len(t, got, 1)
	assert.Equal(t, 128, store.GetSnapshot().HighWaterMark)
}

func TestConfigStoreReloadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactor.toml")
	require.NoError(t, os.WriteFile(path, []byte("threads = 3\n"), 0o600))

	store := NewConfigStore(DefaultConfig())
	reloaded := make(chan Config, 1)
	store.OnReload(func(c Config) { reloaded <- c })

	require.NoError(t, store.ReloadFile(path))
	assert.Equal(t, 3, (<-reloaded).Threads)

	require.NoError(t, os.WriteFile(path, []byte("threads = -2\n"), 0o600))
	require.Error(t, store.ReloadFile(path))
	assert.Equal(t, 3, store.GetSnapshot().Threads)

	require.Error(t, store.ReloadFile(filepath.Join(t.TempDir(), "missing.toml")))
}

func TestConfigStoreListenersSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPUAffinity = []int{0}
	store := NewConfigStore(cfg)

	calls := 0
	store.OnReload(func(Config) {
		calls++
		store.OnReload(func(Config) { calls += 10 })
	})
	require.NoError(t, store.Update(cfg))
	assert.Equal(t, 1, calls)
	require.NoError(t, store.Update(cfg))
	assert.Equal(t, 12, calls)

	snap := store.GetSnapshot()
	snap.CPUAffinity[0] = 7
	assert.Equal(t, []int{0}, store.GetSnapshot().CPUAffinity)
}
