//go:build linux

// File: reactor/wakeup_linux.go
// Author: momentics <momentics@gmail.com>
//
// eventfd(2) based wakeup descriptor. A wakeup writes the 8-byte value 1;
// the loop drains 8 bytes when the descriptor turns readable.

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

func createWakeFd() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, api.SyscallError("eventfd", err)
	}
	return fd, nil
}

func signalWakeFd(fd int) (int, error) {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	return unix.Write(fd, one[:])
}

func drainWakeFd(fd int) (int, error) {
	var buf [8]byte
	return unix.Read(fd, buf[:])
}

func closeWakeFd(fd int) error {
	return unix.Close(fd)
}
