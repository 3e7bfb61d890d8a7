// File: reactor/eventloop.go
// Author: momentics <momentics@gmail.com>
//
// EventLoop: one per goroutine. Polls, dispatches ready Channels, then runs
// callbacks queued from other goroutines.

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/internal/logging"
)

var loopSeq atomic.Uint64

// EventLoop is a reactor bound to the goroutine that created it.
type EventLoop struct {
	id   uint64
	goid uint64

	looping atomic.Bool
	quit    atomic.Bool
	closed  atomic.Bool

	pollTimeout       time.Duration
	initEventListSize int
	pollReturnTime    atomic.Int64

	poller         Poller
	activeChannels []*Channel
	eventHandling  bool
	currentActive  *Channel

	wakeMu        sync.RWMutex
	wakeupFd      int
	wakeupChannel *Channel

	mu                     sync.Mutex
	pendingFunctors        *queue.Queue
	drainFunctors          *queue.Queue
	callingPendingFunctors atomic.Bool

	metrics *control.MetricsRegistry
	log     *logging.Logger
}

// NewEventLoop creates an EventLoop owned by the calling goroutine. It fails
// with api.ErrLoopExists when the goroutine already owns one.
func NewEventLoop(opts ...Option) (*EventLoop, error) {
	l := &EventLoop{
		id:                loopSeq.Add(1),
		goid:              goroutineID(),
		pollTimeout:       DefaultPollTimeout,
		initEventListSize: DefaultInitEventListSize,
		wakeupFd:          -1,
		pendingFunctors:   queue.New(),
		drainFunctors:     queue.New(),
		log:               logging.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("loop", l.id)

	if !registerLoop(l.goid, l) {
		other, _ := loops.Load(l.goid)
		return nil, fmt.Errorf("%w: goroutine %d already runs loop %d",
			api.ErrLoopExists, l.goid, other.(*EventLoop).id)
	}

	poller, err := NewDefaultPoller(l, l.initEventListSize)
	if err != nil {
		unregisterLoop(l.goid, l)
		return nil, err
	}
	wakeupFd, err := createWakeFd()
	if err != nil {
		_ = poller.Close()
		unregisterLoop(l.goid, l)
		return nil, err
	}
	l.poller = poller
	l.wakeupFd = wakeupFd
	l.wakeupChannel = NewChannel(l, wakeupFd)
	l.wakeupChannel.SetReadCallback(l.handleWakeup)
	l.wakeupChannel.EnableReading()

	l.log.Debugf("EventLoop created in goroutine %d", l.goid)
	return l, nil
}

// MustNewEventLoop is NewEventLoop with failures logged at fatal level.
func MustNewEventLoop(opts ...Option) *EventLoop {
	l, err := NewEventLoop(opts...)
	if err != nil {
		logging.Default().Fatalf("EventLoop: %v", err)
	}
	return l
}

// ID returns the process-unique loop number.
func (l *EventLoop) ID() uint64 { return l.id }

// Logger returns the loop's logger.
func (l *EventLoop) Logger() *logging.Logger { return l.log }

// Metrics returns the registry the loop records into, possibly nil.
func (l *EventLoop) Metrics() *control.MetricsRegistry { return l.metrics }

// Loop runs until Quit. It must be called on the owner goroutine.
func (l *EventLoop) Loop() {
	l.AssertInLoopThread()
	if !l.looping.CompareAndSwap(false, true) {
		l.log.Errorf("EventLoop %d is already looping", l.id)
		return
	}
	l.log.Infof("EventLoop %d start looping", l.id)

	timeoutMs := max(int(l.pollTimeout/time.Millisecond), 1)
	for !l.quit.Load() {
		l.activeChannels = l.activeChannels[:0]
		receiveTime := l.poller.Poll(timeoutMs, &l.activeChannels)
		l.pollReturnTime.Store(receiveTime.Time().UnixNano())
		l.metrics.Add(control.MetricLoopPolls, 1)
		l.metrics.Add(control.MetricLoopEvents, int64(len(l.activeChannels)))

		l.eventHandling = true
		for _, ch := range l.activeChannels {
			l.currentActive = ch
			ch.HandleEvent(receiveTime)
		}
		l.currentActive = nil
		l.eventHandling = false
		l.doPendingFunctors()
	}

	l.log.Infof("EventLoop %d stop looping", l.id)
	l.quit.Store(false)
	l.looping.Store(false)
}

// Quit asks Loop to return after the current iteration. Safe from any
// goroutine; a Quit issued before Loop starts makes Loop return at once.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.IsInLoopThread() {
		l.Wakeup()
	}
}

// RunInLoop runs cb now when called on the owner goroutine, otherwise queues it.
func (l *EventLoop) RunInLoop(cb func()) {
	if l.IsInLoopThread() {
		cb()
		return
	}
	l.QueueInLoop(cb)
}

// QueueInLoop appends cb to the pending list. Callbacks from one goroutine run
// in submission order.
func (l *EventLoop) QueueInLoop(cb func()) {
	l.mu.Lock()
	l.pendingFunctors.Add(cb)
	l.mu.Unlock()

	if !l.IsInLoopThread() || l.callingPendingFunctors.Load() {
		l.Wakeup()
	}
}

// PendingFunctors returns the number of queued callbacks.
func (l *EventLoop) PendingFunctors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingFunctors.Length()
}

// Wakeup interrupts a blocked poll.
func (l *EventLoop) Wakeup() {
	l.wakeMu.RLock()
	defer l.wakeMu.RUnlock()
	if l.closed.Load() {
		return
	}
	n, err := signalWakeFd(l.wakeupFd)
	if n != 8 {
		l.log.Errorf("EventLoop::wakeup() writes %d bytes instead of 8: %v", n, err)
	}
}

func (l *EventLoop) handleWakeup(api.Timestamp) {
	n, err := drainWakeFd(l.wakeupFd)
	if n != 8 {
		l.log.Errorf("EventLoop::handleRead() reads %d bytes instead of 8: %v", n, err)
	}
	l.metrics.Add(control.MetricLoopWakeups, 1)
}

func (l *EventLoop) doPendingFunctors() {
	l.callingPendingFunctors.Store(true)

	l.mu.Lock()
	l.pendingFunctors, l.drainFunctors = l.drainFunctors, l.pendingFunctors
	l.mu.Unlock()

	n := l.drainFunctors.Length()
	for l.drainFunctors.Length() > 0 {
		fn := l.drainFunctors.Remove().(func())
		fn()
	}
	l.metrics.Add(control.MetricLoopFunctors, int64(n))

	l.callingPendingFunctors.Store(false)
}

// PollReturnTime returns when the last poll returned.
func (l *EventLoop) PollReturnTime() api.Timestamp {
	ns := l.pollReturnTime.Load()
	if ns == 0 {
		return api.Timestamp{}
	}
	return api.TimestampOf(time.Unix(0, ns))
}

// IsInLoopThread reports whether the caller is the owner goroutine.
func (l *EventLoop) IsInLoopThread() bool {
	return goroutineID() == l.goid
}

// AssertInLoopThread logs at fatal level when called off the owner goroutine.
func (l *EventLoop) AssertInLoopThread() {
	if !l.IsInLoopThread() {
		l.log.Fatalf("EventLoop %d was created in goroutine %d, current goroutine %d",
			l.id, l.goid, goroutineID())
	}
}

// HasChannel reports whether ch is registered with this loop's poller.
func (l *EventLoop) HasChannel(ch *Channel) bool {
	if ch.OwnerLoop() != l {
		return false
	}
	return l.poller.HasChannel(ch)
}

func (l *EventLoop) updateChannel(ch *Channel) {
	if ch.OwnerLoop() != l {
		l.log.Fatalf("channel fd = %d belongs to another loop", ch.Fd())
		return
	}
	l.poller.UpdateChannel(ch)
}

func (l *EventLoop) removeChannel(ch *Channel) {
	if ch.OwnerLoop() != l {
		l.log.Fatalf("channel fd = %d belongs to another loop", ch.Fd())
		return
	}
	l.AssertInLoopThread()
	if l.eventHandling && l.currentActive != ch {
		for _, active := range l.activeChannels {
			if active == ch {
				l.log.Errorf("removing fd = %d while it is pending dispatch", ch.Fd())
				break
			}
		}
	}
	l.poller.RemoveChannel(ch)
}

// Close releases the poller and the wakeup descriptor and frees the goroutine
// for a new loop. It must be called on the owner goroutine after Loop returns.
func (l *EventLoop) Close() error {
	if !l.IsInLoopThread() {
		return api.ErrNotInLoopThread
	}
	if l.looping.Load() {
		return fmt.Errorf("EventLoop %d: close while looping: %w", l.id, api.ErrInvalidArgument)
	}
	if !l.closed.CompareAndSwap(false, true) {
		return api.ErrLoopClosed
	}
	l.wakeupChannel.DisableAll()
	l.wakeupChannel.Remove()
	l.wakeMu.Lock()
	wakeErr := closeWakeFd(l.wakeupFd)
	l.wakeupFd = -1
	l.wakeMu.Unlock()
	err := errors.Join(wakeErr, l.poller.Close())
	unregisterLoop(l.goid, l)
	l.log.Debugf("EventLoop %d closed", l.id)
	return err
}
