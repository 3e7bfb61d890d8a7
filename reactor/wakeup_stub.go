//go:build !linux

// File: reactor/wakeup_stub.go
// Author: momentics <momentics@gmail.com>

package reactor

import "github.com/momentics/hioload-reactor/api"

func createWakeFd() (int, error)       { return -1, api.ErrNotSupported }
func signalWakeFd(fd int) (int, error) { return -1, api.ErrNotSupported }
func drainWakeFd(fd int) (int, error)  { return -1, api.ErrNotSupported }
func closeWakeFd(fd int) error         { return api.ErrNotSupported }
