// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Reactor configuration: TOML-backed settings plus a thread-safe store with
// reload listeners.

package control

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/momentics/hioload-reactor/api"
)

// Config holds every tunable of the reactor and the servers built on it.
type Config struct {
	ListenAddr        string        `toml:"listen_addr"`
	Threads           int           `toml:"threads"`
	CPUAffinity       []int         `toml:"cpu_affinity"`
	PollTimeout       time.Duration `toml:"poll_timeout"`
	InitEventListSize int           `toml:"init_event_list_size"`
	BufferInitialSize int           `toml:"buffer_initial_size"`
	HighWaterMark     int           `toml:"high_water_mark"`
	TCPNoDelay        bool          `toml:"tcp_no_delay"`
	KeepAlive         bool          `toml:"keep_alive"`
	LogLevel          string        `toml:"log_level"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:9002",
		PollTimeout:       10 * time.Second,
		InitEventListSize: 16,
		BufferInitialSize: 1024,
		HighWaterMark:     64 * 1024 * 1024,
		TCPNoDelay:        true,
		KeepAlive:         true,
		LogLevel:          "info",
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes TOML text on top of DefaultConfig and validates it.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the reactor cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Threads < 0:
		return fmt.Errorf("%w: threads must be >= 0, got %d", api.ErrInvalidArgument, c.Threads)
	case c.PollTimeout <= 0:
		return fmt.Errorf("%w: poll_timeout must be positive", api.ErrInvalidArgument)
	case c.InitEventListSize <= 0:
		return fmt.Errorf("%w: init_event_list_size must be positive", api.ErrInvalidArgument)
	case c.BufferInitialSize <= 0:
		return fmt.Errorf("%w: buffer_initial_size must be positive", api.ErrInvalidArgument)
	case c.HighWaterMark <= 0:
		return fmt.Errorf("%w: high_water_mark must be positive", api.ErrInvalidArgument)
	}
	if _, err := api.ParseInetAddress(c.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr: %w", err)
	}
	return nil
}

// ConfigStore holds the active Config and notifies listeners on change.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// GetSnapshot returns a copy of the active config.
func (cs *ConfigStore) GetSnapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := cs.config
	out.CPUAffinity = slices.Clone(cs.config.CPUAffinity)
	return out
}

// Update validates and installs cfg, then runs reload listeners synchronously
// outside the lock.
func (cs *ConfigStore) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := slices.Clone(cs.listeners)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnReload registers a listener called with every newly installed config.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
