// File: api/inet_address.go
// Author: momentics <momentics@gmail.com>
//
// IPv4 endpoint value object.

package api

import (
	"fmt"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// InetAddress is an IPv4 address and port.
type InetAddress struct {
	ip   [4]byte
	port uint16
}

// NewInetAddress builds an endpoint from a dotted IPv4 literal and a port.
// An empty ip means 0.0.0.0.
func NewInetAddress(ip string, port uint16) (InetAddress, error) {
	if ip == "" {
		return InetAddress{port: port}, nil
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return InetAddress{}, fmt.Errorf("%w: not an IPv4 address %q", ErrInvalidArgument, ip)
	}
	return InetAddress{ip: addr.As4(), port: port}, nil
}

// ParseInetAddress parses "ip:port".
func ParseInetAddress(hostport string) (InetAddress, error) {
	ap, err := netip.ParseAddrPort(hostport)
	if err != nil {
		return InetAddress{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if !ap.Addr().Is4() {
		return InetAddress{}, fmt.Errorf("%w: not an IPv4 endpoint %q", ErrInvalidArgument, hostport)
	}
	return InetAddress{ip: ap.Addr().As4(), port: ap.Port()}, nil
}

// InetAddressFromSockaddr converts a kernel socket address. Non-IPv4 addresses
// report ok=false.
func InetAddressFromSockaddr(sa unix.Sockaddr) (addr InetAddress, ok bool) {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return InetAddress{}, false
	}
	return InetAddress{ip: in4.Addr, port: uint16(in4.Port)}, true
}

// IP returns the dotted textual address.
func (a InetAddress) IP() string {
	return netip.AddrFrom4(a.ip).String()
}

// IPPort returns "ip:port".
func (a InetAddress) IPPort() string {
	return a.IP() + ":" + strconv.Itoa(int(a.port))
}

// Port returns the numeric port.
func (a InetAddress) Port() uint16 { return a.port }

// Sockaddr returns the kernel representation used by bind/connect.
func (a InetAddress) Sockaddr() *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Port: int(a.port), Addr: a.ip}
}

func (a InetAddress) String() string { return a.IPPort() }
