// File: reactor/eventloop_thread.go
// Author: momentics <momentics@gmail.com>
//
// EventLoopThread runs an EventLoop on a dedicated goroutine locked to its
// own OS thread.

package reactor

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/momentics/hioload-reactor/affinity"
	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/logging"
)

// ThreadInitCallback runs on the loop goroutine before the loop starts.
type ThreadInitCallback func(loop *EventLoop)

// EventLoopThread owns one loop goroutine.
type EventLoopThread struct {
	name     string
	callback ThreadInitCallback
	opts     []Option
	cpu      int

	mu      sync.Mutex
	cond    *sync.Cond
	loop    *EventLoop
	err     error
	started bool
	stopped bool
	done    chan struct{}
}

// NewEventLoopThread prepares a thread; nothing runs until StartLoop.
func NewEventLoopThread(name string, cb ThreadInitCallback, opts ...Option) *EventLoopThread {
	t := &EventLoopThread{
		name:     name,
		callback: cb,
		opts:     opts,
		cpu:      -1,
		done:     make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Name returns the thread name.
func (t *EventLoopThread) Name() string { return t.name }

// PinToCPU pins the loop's OS thread to cpu. Must precede StartLoop.
func (t *EventLoopThread) PinToCPU(cpu int) { t.cpu = cpu }

// StartLoop starts the goroutine and blocks until its loop is constructed.
func (t *EventLoopThread) StartLoop() (*EventLoop, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil, fmt.Errorf("%s: %w", t.name, api.ErrThreadStarted)
	}
	t.started = true

	go t.threadFunc()

	for t.loop == nil && t.err == nil {
		t.cond.Wait()
	}
	return t.loop, t.err
}

func (t *EventLoopThread) threadFunc() {
	defer close(t.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if t.cpu >= 0 {
		if err := affinity.SetAffinity(t.cpu); err != nil {
			logging.Default().Errorf("EventLoopThread %s: %v", t.name, err)
		}
	}

	loop, err := NewEventLoop(t.opts...)
	if err != nil {
		logging.Default().Fatalf("EventLoopThread %s: %v", t.name, err)
		t.mu.Lock()
		t.err = err
		t.cond.Signal()
		t.mu.Unlock()
		return
	}
	if t.callback != nil {
		t.callback(loop)
	}

	t.mu.Lock()
	t.loop = loop
	if t.stopped {
		loop.Quit()
	}
	t.cond.Signal()
	t.mu.Unlock()

	loop.Loop()

	t.mu.Lock()
	t.loop = nil
	t.mu.Unlock()
	if err := loop.Close(); err != nil {
		loop.log.Errorf("EventLoopThread %s: close: %v", t.name, err)
	}
}

// Stop quits the loop and waits for the goroutine to exit. A Stop racing a
// StartLoop still in progress makes the loop quit as soon as it is built.
func (t *EventLoopThread) Stop() {
	t.mu.Lock()
	started := t.started
	t.stopped = true
	if t.loop != nil {
		t.loop.Quit()
	}
	t.mu.Unlock()
	if started {
		<-t.done
	}
}
