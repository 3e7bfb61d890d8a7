// File: reactor/eventloop_thread_pool.go
// Author: momentics <momentics@gmail.com>
//
// Fixed set of EventLoopThreads handed out round-robin.

package reactor

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EventLoopThreadPool owns worker loops beside a base loop.
type EventLoopThreadPool struct {
	baseLoop   *EventLoop
	name       string
	numThreads int
	cpus       []int
	opts       []Option

	started bool
	next    int
	threads []*EventLoopThread
	loops   []*EventLoop
}

// NewEventLoopThreadPool creates a pool serving baseLoop. With zero threads
// the base loop serves all work.
func NewEventLoopThreadPool(baseLoop *EventLoop, name string, opts ...Option) *EventLoopThreadPool {
	return &EventLoopThreadPool{
		baseLoop: baseLoop,
		name:     name,
		opts:     opts,
	}
}

func (p *EventLoopThreadPool) SetThreadNum(n int)     { p.numThreads = n }
func (p *EventLoopThreadPool) SetCPUAffinity(c []int) { p.cpus = c }
func (p *EventLoopThreadPool) Started() bool          { return p.started }
func (p *EventLoopThreadPool) Name() string           { return p.name }

// Start launches the worker loops concurrently. cb runs on each worker, or on
// the base loop when the pool has no workers.
func (p *EventLoopThreadPool) Start(cb ThreadInitCallback) error {
	p.baseLoop.AssertInLoopThread()
	if p.started {
		return fmt.Errorf("pool %s already started", p.name)
	}
	p.started = true

	p.threads = make([]*EventLoopThread, p.numThreads)
	p.loops = make([]*EventLoop, p.numThreads)
	var g errgroup.Group
	for i := range p.threads {
		t := NewEventLoopThread(fmt.Sprintf("%s%d", p.name, i), cb, p.opts...)
		if len(p.cpus) > 0 {
			t.PinToCPU(p.cpus[i%len(p.cpus)])
		}
		p.threads[i] = t
		g.Go(func() error {
			loop, err := t.StartLoop()
			p.loops[i] = loop
			return err
		})
	}
	if err := g.Wait(); err != nil {
		p.Stop()
		return err
	}

	if p.numThreads == 0 && cb != nil {
		cb(p.baseLoop)
	}
	return nil
}

// NextLoop returns worker loops round-robin, or the base loop without workers.
func (p *EventLoopThreadPool) NextLoop() *EventLoop {
	p.baseLoop.AssertInLoopThread()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// LoopForHash returns a stable loop for hashCode.
func (p *EventLoopThreadPool) LoopForHash(hashCode uint64) *EventLoop {
	p.baseLoop.AssertInLoopThread()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	return p.loops[hashCode%uint64(len(p.loops))]
}

// AllLoops returns every loop that serves work.
func (p *EventLoopThreadPool) AllLoops() []*EventLoop {
	p.baseLoop.AssertInLoopThread()
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	return append([]*EventLoop(nil), p.loops...)
}

// Stop quits and joins every worker.
func (p *EventLoopThreadPool) Stop() {
	for _, t := range p.threads {
		if t != nil {
			t.Stop()
		}
	}
	p.threads = nil
	p.loops = nil
	p.next = 0
}
