//go:build linux

// File: reactor/epoll_poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Level-triggered epoll(7) Poller. Event user data carries the descriptor;
// Channels are resolved through the poller's descriptor map.

package reactor

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/logging"
)

// epollPoller implements Poller using Linux epoll.
type epollPoller struct {
	loop     *EventLoop
	epfd     int
	events   []unix.EpollEvent
	channels map[int]*Channel
}

// NewDefaultPoller creates the platform poller for loop.
func NewDefaultPoller(loop *EventLoop, initEventListSize int) (Poller, error) {
	return newEpollPoller(loop, initEventListSize)
}

func newEpollPoller(loop *EventLoop, initEventListSize int) (*epollPoller, error) {
	if initEventListSize <= 0 {
		initEventListSize = DefaultInitEventListSize
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.SyscallError("epoll_create1", err)
	}
	return &epollPoller{
		loop:     loop,
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initEventListSize),
		channels: make(map[int]*Channel),
	}, nil
}

func (p *epollPoller) Poll(timeoutMs int, active *[]*Channel) api.Timestamp {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := api.Now()
	switch {
	case err != nil:
		if !errors.Is(err, unix.EINTR) {
			p.loop.log.Errorf("EPollPoller::poll() epoll_wait: %v", err)
		}
	case n > 0:
		p.loop.log.Debugf("%d events happened", n)
		p.fillActiveChannels(n, active)
		if n == len(p.events) {
			p.events = make([]unix.EpollEvent, 2*len(p.events))
		}
	default:
		p.loop.log.Debugf("nothing happened")
	}
	return now
}

func (p *epollPoller) fillActiveChannels(n int, active *[]*Channel) {
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		ch, ok := p.channels[int(ev.Fd)]
		if !ok {
			continue
		}
		ch.SetRevents(ev.Events)
		*active = append(*active, ch)
	}
}

func (p *epollPoller) UpdateChannel(ch *Channel) {
	p.loop.AssertInLoopThread()
	fd := ch.Fd()
	if p.loop.log.Enabled(logging.LevelDebug) {
		p.loop.log.Debugf("update fd = %s index = %d", ch.EventsString(), ch.Index())
	}

	switch ch.Index() {
	case IndexNew, IndexDeleted:
		if ch.Index() == IndexNew {
			p.channels[fd] = ch
		}
		ch.SetIndex(IndexAdded)
		p.update(unix.EPOLL_CTL_ADD, ch)
	default:
		if ch.IsNoneEvent() {
			p.update(unix.EPOLL_CTL_DEL, ch)
			ch.SetIndex(IndexDeleted)
		} else {
			p.update(unix.EPOLL_CTL_MOD, ch)
		}
	}
}

func (p *epollPoller) RemoveChannel(ch *Channel) {
	p.loop.AssertInLoopThread()
	fd := ch.Fd()
	p.loop.log.Debugf("remove fd = %d", fd)

	if cur, ok := p.channels[fd]; ok && cur == ch {
		delete(p.channels, fd)
	}
	if ch.Index() == IndexAdded {
		p.update(unix.EPOLL_CTL_DEL, ch)
	}
	ch.SetIndex(IndexNew)
}

func (p *epollPoller) HasChannel(ch *Channel) bool {
	p.loop.AssertInLoopThread()
	cur, ok := p.channels[ch.Fd()]
	return ok && cur == ch
}

func (p *epollPoller) update(op int, ch *Channel) {
	ev := unix.EpollEvent{Events: ch.Events(), Fd: int32(ch.Fd())}
	if err := unix.EpollCtl(p.epfd, op, ch.Fd(), &ev); err != nil {
		if op == unix.EPOLL_CTL_DEL {
			p.loop.log.Errorf("epoll_ctl op = %s fd = %d: %v", operationString(op), ch.Fd(), err)
			return
		}
		p.loop.log.Fatalf("epoll_ctl op = %s fd = %d: %v", operationString(op), ch.Fd(), err)
	}
}

func (p *epollPoller) Close() error {
	if err := unix.Close(p.epfd); err != nil {
		return api.SyscallError("close epoll", err)
	}
	return nil
}

func operationString(op int) string {
	switch op {
	case unix.EPOLL_CTL_ADD:
		return "ADD"
	case unix.EPOLL_CTL_DEL:
		return "DEL"
	case unix.EPOLL_CTL_MOD:
		return "MOD"
	}
	return "Unknown Operation"
}
