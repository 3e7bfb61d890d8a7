// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for the reactor.
//
// Provides concurrent-safe state handling primitives including:
//   - TOML configuration with validation and snapshot reads
//   - Reload listeners invoked on every accepted update
//   - Atomic counters shared by loops and connections
//   - Named debug probes dumped on demand
package control
