//go:build !linux

// File: transport/tcp/socket_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package tcp

import "github.com/momentics/hioload-reactor/api"

// Socket is unavailable off Linux.
type Socket struct{ fd int }

func NewSocket(fd int) *Socket                        { return &Socket{fd: fd} }
func OpenSocket() (*Socket, error)                    { return nil, api.ErrNotSupported }
func DialSocket(api.InetAddress) (*Socket, error)     { return nil, api.ErrNotSupported }
func (s *Socket) Fd() int                             { return s.fd }
func (s *Socket) Close() error                        { return api.ErrNotSupported }
func (s *Socket) BindAddress(api.InetAddress) error   { return api.ErrNotSupported }
func (s *Socket) Listen() error                       { return api.ErrNotSupported }
func (s *Socket) ShutdownWrite() error                { return api.ErrNotSupported }
func (s *Socket) SetTCPNoDelay(bool) error            { return api.ErrNotSupported }
func (s *Socket) SetReuseAddr(bool) error             { return api.ErrNotSupported }
func (s *Socket) SetReusePort(bool) error             { return api.ErrNotSupported }
func (s *Socket) SetKeepAlive(bool) error             { return api.ErrNotSupported }
func (s *Socket) SocketError() error                  { return api.ErrNotSupported }
func (s *Socket) Write([]byte) (int, error)           { return -1, api.ErrNotSupported }
func (s *Socket) LocalAddr() (api.InetAddress, error) { return LocalAddrOf(s.fd) }
func (s *Socket) PeerAddr() (api.InetAddress, error)  { return PeerAddrOf(s.fd) }
func LocalAddrOf(int) (api.InetAddress, error)        { return api.InetAddress{}, api.ErrNotSupported }
func PeerAddrOf(int) (api.InetAddress, error)         { return api.InetAddress{}, api.ErrNotSupported }
func isWouldBlock(error) bool                         { return false }
func isPeerGone(error) bool                           { return false }

func (s *Socket) Accept() (*Socket, api.InetAddress, error) {
	return nil, api.InetAddress{}, api.ErrNotSupported
}
