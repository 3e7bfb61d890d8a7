// File: server/server.go
// Author: momentics <momentics@gmail.com>
//
// Server accepts TCP connections on a base loop and spreads them round-robin
// over a pool of I/O loops.

package server

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/internal/logging"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/transport/tcp"
)

// Server is a multi-loop TCP server.
type Server struct {
	loop      *reactor.EventLoop
	name      string
	ipPort    string
	cfg       control.Config
	store     *control.ConfigStore
	reusePort bool
	acceptor  *Acceptor
	pool      *reactor.EventLoopThreadPool

	connectionCallback    tcp.ConnectionCallback
	messageCallback       tcp.MessageCallback
	writeCompleteCallback tcp.WriteCompleteCallback
	highWaterMarkCallback tcp.HighWaterMarkCallback
	threadInitCallback    reactor.ThreadInitCallback

	highWaterMark atomic.Int64
	tcpNoDelay    atomic.Bool
	keepAlive     atomic.Bool

	started     atomic.Bool
	stopped     atomic.Bool
	nextConnID  int
	connections map[string]*tcp.Connection
	connCount   atomic.Int64

	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
	log     *logging.Logger
}

// NewServer binds the listening socket on loop. Nothing is accepted until Start.
func NewServer(loop *reactor.EventLoop, name string, opts ...ServerOption) (*Server, error) {
	s := &Server{
		loop:               loop,
		name:               name,
		cfg:                control.DefaultConfig(),
		connectionCallback: tcp.DefaultConnectionCallback,
		messageCallback:    tcp.DefaultMessageCallback,
		connections:        make(map[string]*tcp.Connection),
		log:                loop.Logger().With("server", name),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.applyConfig(s.cfg)
	if s.store != nil {
		s.store.OnReload(s.applyConfig)
	}

	listenAddr, err := api.ParseInetAddress(s.cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	acceptor, err := NewAcceptor(loop, listenAddr, s.reusePort)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", name, err)
	}
	s.acceptor = acceptor
	s.ipPort = acceptor.ListenAddr().IPPort()
	s.acceptor.SetNewConnectionCallback(s.newConnection)

	poolOpts := []reactor.Option{reactor.WithConfig(s.cfg), reactor.WithMetrics(s.metrics)}
	s.pool = reactor.NewEventLoopThreadPool(loop, name, poolOpts...)
	s.pool.SetThreadNum(s.cfg.Threads)
	s.pool.SetCPUAffinity(s.cfg.CPUAffinity)
	return s, nil
}

func (s *Server) applyConfig(cfg control.Config) {
	s.highWaterMark.Store(int64(cfg.HighWaterMark))
	s.tcpNoDelay.Store(cfg.TCPNoDelay)
	s.keepAlive.Store(cfg.KeepAlive)
}

func (s *Server) Name() string                       { return s.name }
func (s *Server) IPPort() string                     { return s.ipPort }
func (s *Server) Loop() *reactor.EventLoop           { return s.loop }
func (s *Server) ListenAddr() api.InetAddress        { return s.acceptor.ListenAddr() }
func (s *Server) ConnectionCount() int               { return int(s.connCount.Load()) }
func (s *Server) Pool() *reactor.EventLoopThreadPool { return s.pool }

func (s *Server) SetConnectionCallback(cb tcp.ConnectionCallback)       { s.connectionCallback = cb }
func (s *Server) SetMessageCallback(cb tcp.MessageCallback)             { s.messageCallback = cb }
func (s *Server) SetWriteCompleteCallback(cb tcp.WriteCompleteCallback) { s.writeCompleteCallback = cb }
func (s *Server) SetThreadInitCallback(cb reactor.ThreadInitCallback)   { s.threadInitCallback = cb }

// SetHighWaterMarkCallback installs cb on every new connection.
func (s *Server) SetHighWaterMarkCallback(cb tcp.HighWaterMarkCallback) {
	s.highWaterMarkCallback = cb
}

// Start launches the I/O loops and begins listening. It must be called on
// the base loop goroutine; later calls are no-ops.
func (s *Server) Start() error {
	s.loop.AssertInLoopThread()
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.pool.Start(s.threadInitCallback); err != nil {
		return fmt.Errorf("server %s: %w", s.name, err)
	}
	if err := s.acceptor.Listen(); err != nil {
		s.pool.Stop()
		return fmt.Errorf("server %s: %w", s.name, err)
	}
	s.registerProbes()
	s.log.Infof("TcpServer %s listening on %s with %d io loops", s.name, s.ipPort, s.cfg.Threads)
	return nil
}

func (s *Server) registerProbes() {
	if s.probes == nil {
		return
	}
	s.probes.RegisterProbe(control.MetricServerConnections, func() any {
		return s.ConnectionCount()
	})
	for _, l := range s.pool.AllLoops() {
		s.probes.RegisterProbe(fmt.Sprintf("loop.%d.pending", l.ID()), func() any {
			return l.PendingFunctors()
		})
	}
}

func (s *Server) newConnection(sock *tcp.Socket, peer api.InetAddress) {
	s.loop.AssertInLoopThread()
	ioLoop := s.pool.NextLoop()
	s.nextConnID++
	connName := fmt.Sprintf("%s-%s#%d", s.name, s.ipPort, s.nextConnID)
	s.log.Infof("TcpServer::newConnection [%s] - new connection [%s] from %s", s.name, connName, peer)

	local, err := sock.LocalAddr()
	if err != nil {
		s.log.Errorf("TcpServer::newConnection [%s]: %v", connName, err)
	}
	if err := sock.SetTCPNoDelay(s.tcpNoDelay.Load()); err != nil {
		s.log.Errorf("TcpServer::newConnection [%s]: %v", connName, err)
	}
	if err := sock.SetKeepAlive(s.keepAlive.Load()); err != nil {
		s.log.Errorf("TcpServer::newConnection [%s]: %v", connName, err)
	}

	conn := tcp.NewConnection(ioLoop, connName, sock, local, peer,
		tcp.WithHighWaterMark(int(s.highWaterMark.Load())),
		tcp.WithInitialBufferSize(s.cfg.BufferInitialSize))
	s.connections[connName] = conn
	s.connCount.Store(int64(len(s.connections)))
	s.metrics.Set(control.MetricServerConnections, int64(len(s.connections)))

	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	if s.highWaterMarkCallback != nil {
		conn.SetHighWaterMarkCallback(s.highWaterMarkCallback, int(s.highWaterMark.Load()))
	}
	conn.SetCloseCallback(s.removeConnection)
	ioLoop.RunInLoop(conn.ConnectionEstablished)
}

func (s *Server) removeConnection(conn *tcp.Connection) {
	s.loop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *Server) removeConnectionInLoop(conn *tcp.Connection) {
	s.loop.AssertInLoopThread()
	s.log.Infof("TcpServer::removeConnectionInLoop [%s] - connection %s", s.name, conn.Name())
	delete(s.connections, conn.Name())
	s.connCount.Store(int64(len(s.connections)))
	s.metrics.Set(control.MetricServerConnections, int64(len(s.connections)))
	conn.Loop().QueueInLoop(conn.ConnectionDestroyed)
}

// Shutdown stops accepting, destroys every live connection on its own loop
// and stops the I/O loops. The base loop keeps running. When called off the
// base loop goroutine, the base loop must be running.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	var conns []*tcp.Connection
	err := runOn(ctx, s.loop, func() {
		s.acceptor.Close()
		for _, c := range s.connections {
			conns = append(conns, c)
		}
		clear(s.connections)
		s.connCount.Store(0)
		s.metrics.Set(control.MetricServerConnections, 0)
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		if c.Loop().IsInLoopThread() {
			c.ConnectionDestroyed()
			continue
		}
		g.Go(func() error {
			return runOn(gctx, c.Loop(), c.ConnectionDestroyed)
		})
	}
	err = g.Wait()
	s.pool.Stop()
	return err
}

// runOn executes fn on loop and waits for it, or for ctx.
func runOn(ctx context.Context, loop *reactor.EventLoop, fn func()) error {
	if loop.IsInLoopThread() {
		fn()
		return nil
	}
	done := make(chan struct{})
	loop.QueueInLoop(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
