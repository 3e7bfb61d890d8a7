// File: server/acceptor.go
// Author: momentics <momentics@gmail.com>
//
// Acceptor owns the listening socket and turns readable events into new
// connection callbacks on the base loop.

package server

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/transport/tcp"
)

// NewConnectionCallback receives each accepted non-blocking socket.
type NewConnectionCallback func(sock *tcp.Socket, peer api.InetAddress)

// Acceptor listens on one address for a single loop.
type Acceptor struct {
	loop          *reactor.EventLoop
	acceptSocket  *tcp.Socket
	acceptChannel *reactor.Channel
	newConnection NewConnectionCallback
	listening     bool
	idleFd        int
	addr          api.InetAddress
}

// NewAcceptor creates and binds the listening socket. Listening starts with Listen.
func NewAcceptor(loop *reactor.EventLoop, listenAddr api.InetAddress, reusePort bool) (*Acceptor, error) {
	sock, err := tcp.OpenSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.SetReuseAddr(true); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.SetReusePort(reusePort); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.BindAddress(listenAddr); err != nil {
		sock.Close()
		return nil, err
	}
	bound, err := sock.LocalAddr()
	if err != nil {
		sock.Close()
		return nil, err
	}
	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		sock.Close()
		return nil, api.SyscallError("open /dev/null", err)
	}

	a := &Acceptor{
		loop:          loop,
		acceptSocket:  sock,
		acceptChannel: reactor.NewChannel(loop, sock.Fd()),
		idleFd:        idleFd,
		addr:          bound,
	}
	a.acceptChannel.SetReadCallback(a.handleRead)
	return a, nil
}

func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) { a.newConnection = cb }
func (a *Acceptor) Listening() bool                                   { return a.listening }

// ListenAddr returns the bound address, with the kernel-chosen port when 0
// was requested.
func (a *Acceptor) ListenAddr() api.InetAddress { return a.addr }

// Listen starts accepting. It must run on the acceptor's loop.
func (a *Acceptor) Listen() error {
	a.loop.AssertInLoopThread()
	if err := a.acceptSocket.Listen(); err != nil {
		return err
	}
	a.listening = true
	a.acceptChannel.EnableReading()
	return nil
}

func (a *Acceptor) handleRead(api.Timestamp) {
	a.loop.AssertInLoopThread()
	sock, peer, err := a.acceptSocket.Accept()
	if err == nil {
		if a.newConnection != nil {
			a.newConnection(sock, peer)
		} else {
			sock.Close()
		}
		return
	}

	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
		return
	case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
		a.loop.Metrics().Add(control.MetricServerAcceptErrors, 1)
		a.loop.Logger().Errorf("in Acceptor::handleRead: %v", err)
		a.shedOne()
	default:
		a.loop.Metrics().Add(control.MetricServerAcceptErrors, 1)
		a.loop.Logger().Errorf("in Acceptor::handleRead: %v", err)
	}
}

// shedOne frees the reserved descriptor to accept and drop one pending
// connection, so a level-triggered listener stops reporting it.
func (a *Acceptor) shedOne() {
	unix.Close(a.idleFd)
	if nfd, _, err := unix.Accept(a.acceptSocket.Fd()); err == nil {
		unix.Close(nfd)
	}
	a.idleFd, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

// Close stops listening and releases the socket. It must run on the loop.
func (a *Acceptor) Close() {
	a.loop.AssertInLoopThread()
	a.acceptChannel.DisableAll()
	a.acceptChannel.Remove()
	a.listening = false
	a.acceptSocket.Close()
	if a.idleFd >= 0 {
		unix.Close(a.idleFd)
		a.idleFd = -1
	}
}
