//go:build linux

// File: transport/tcp/socket_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux socket wrapper: non-blocking, close-on-exec IPv4 stream sockets.

package tcp

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

// Socket owns a descriptor and closes it once.
type Socket struct {
	fd     int
	closed atomic.Bool
}

// NewSocket takes ownership of fd.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// OpenSocket creates a non-blocking IPv4 stream socket.
func OpenSocket() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, api.SyscallError("socket", err)
	}
	return NewSocket(fd), nil
}

// DialSocket connects to addr with a blocking connect and returns the socket
// switched to non-blocking mode.
func DialSocket(addr api.InetAddress) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, api.SyscallError("socket", err)
	}
	s := NewSocket(fd)
	for {
		err = unix.Connect(fd, addr.Sockaddr())
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		s.Close()
		return nil, api.SyscallError("connect", err).WithContext("addr", addr.String())
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		s.Close()
		return nil, api.SyscallError("set nonblock", err)
	}
	return s, nil
}

func (s *Socket) Fd() int { return s.fd }

// Close closes the descriptor; later calls are no-ops.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := unix.Close(s.fd); err != nil {
		return api.SyscallError("close", err).WithContext("fd", s.fd)
	}
	return nil
}

func (s *Socket) BindAddress(addr api.InetAddress) error {
	if err := unix.Bind(s.fd, addr.Sockaddr()); err != nil {
		return api.SyscallError("bind", err).WithContext("addr", addr.String())
	}
	return nil
}

func (s *Socket) Listen() error {
	if err := unix.Listen(s.fd, unix.SOMAXCONN); err != nil {
		return api.SyscallError("listen", err).WithContext("fd", s.fd)
	}
	return nil
}

// Accept returns a non-blocking socket for the next pending connection.
// The error wraps the raw errno so callers can test for EAGAIN and EMFILE.
func (s *Socket) Accept() (*Socket, api.InetAddress, error) {
	nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, api.InetAddress{}, api.SyscallError("accept4", err)
	}
	peer, _ := api.InetAddressFromSockaddr(sa)
	return NewSocket(nfd), peer, nil
}

// ShutdownWrite half-closes the socket.
func (s *Socket) ShutdownWrite() error {
	if err := unix.Shutdown(s.fd, unix.SHUT_WR); err != nil {
		return api.SyscallError("shutdown", err).WithContext("fd", s.fd)
	}
	return nil
}

func (s *Socket) SetTCPNoDelay(on bool) error {
	return s.setBool(unix.IPPROTO_TCP, unix.TCP_NODELAY, on, "TCP_NODELAY")
}

func (s *Socket) SetReuseAddr(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_REUSEADDR, on, "SO_REUSEADDR")
}

func (s *Socket) SetReusePort(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_REUSEPORT, on, "SO_REUSEPORT")
}

func (s *Socket) SetKeepAlive(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_KEEPALIVE, on, "SO_KEEPALIVE")
}

func (s *Socket) setBool(level, opt int, on bool, name string) error {
	v := 0
	if on {
		v = 1
	}
	if err := unix.SetsockoptInt(s.fd, level, opt, v); err != nil {
		return api.SyscallError("setsockopt "+name, err).WithContext("fd", s.fd)
	}
	return nil
}

// SocketError returns the pending SO_ERROR, nil when none.
func (s *Socket) SocketError() error {
	v, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

// Write performs one non-blocking write.
func (s *Socket) Write(p []byte) (int, error) {
	return unix.Write(s.fd, p)
}

func (s *Socket) LocalAddr() (api.InetAddress, error) { return LocalAddrOf(s.fd) }
func (s *Socket) PeerAddr() (api.InetAddress, error)  { return PeerAddrOf(s.fd) }

// LocalAddrOf returns the bound address of fd.
func LocalAddrOf(fd int) (api.InetAddress, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return api.InetAddress{}, api.SyscallError("getsockname", err)
	}
	addr, ok := api.InetAddressFromSockaddr(sa)
	if !ok {
		return api.InetAddress{}, api.ErrNotSupported
	}
	return addr, nil
}

// PeerAddrOf returns the connected peer of fd.
func PeerAddrOf(fd int) (api.InetAddress, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return api.InetAddress{}, api.SyscallError("getpeername", err)
	}
	addr, ok := api.InetAddressFromSockaddr(sa)
	if !ok {
		return api.InetAddress{}, api.ErrNotSupported
	}
	return addr, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}

func isPeerGone(err error) bool {
	return errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET)
}
