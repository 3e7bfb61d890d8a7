// File: reactor/channel.go
// Author: momentics <momentics@gmail.com>
//
// Channel binds one descriptor to its interest mask and event callbacks.
// A Channel never owns its descriptor.

package reactor

import (
	"strconv"
	"strings"

	"github.com/momentics/hioload-reactor/api"
)

// Readiness bits as reported by epoll(7).
const (
	PollIn    uint32 = 0x001
	PollPri   uint32 = 0x002
	PollOut   uint32 = 0x004
	PollErr   uint32 = 0x008
	PollHup   uint32 = 0x010
	PollRdHup uint32 = 0x2000
)

const (
	noneEvent  uint32 = 0
	readEvent         = PollIn | PollPri
	writeEvent        = PollOut
)

// ChannelIndex is the poller-private registration tag of a Channel.
// Pollers use it to tell never-registered, registered and disabled apart.
type ChannelIndex int

const (
	IndexNew     ChannelIndex = -1
	IndexAdded   ChannelIndex = 1
	IndexDeleted ChannelIndex = 2
)

// LifetimeGuard reports whether the owner of a Channel is still usable.
// Dispatch is skipped once Alive returns false.
type LifetimeGuard interface {
	Alive() bool
}

// EventCallback handles write, close and error readiness.
type EventCallback func()

// ReadEventCallback handles readable readiness with the poll return time.
type ReadEventCallback func(receiveTime api.Timestamp)

// Channel dispatches the readiness of a single descriptor. It is used only
// from its owner loop's goroutine.
type Channel struct {
	loop    *EventLoop
	fd      int
	events  uint32
	revents uint32
	index   ChannelIndex

	guard LifetimeGuard
	tied  bool

	readCallback  ReadEventCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback
}

// NewChannel creates a Channel for fd owned by loop. Nothing is registered
// until an interest bit is enabled.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:  loop,
		fd:    fd,
		index: IndexNew,
	}
}

func (c *Channel) SetReadCallback(cb ReadEventCallback) { c.readCallback = cb }
func (c *Channel) SetWriteCallback(cb EventCallback)    { c.writeCallback = cb }
func (c *Channel) SetCloseCallback(cb EventCallback)    { c.closeCallback = cb }
func (c *Channel) SetErrorCallback(cb EventCallback)    { c.errorCallback = cb }

// Tie makes dispatch conditional on guard staying alive.
func (c *Channel) Tie(guard LifetimeGuard) {
	c.guard = guard
	c.tied = true
}

func (c *Channel) Fd() int                   { return c.fd }
func (c *Channel) Events() uint32            { return c.events }
func (c *Channel) Revents() uint32           { return c.revents }
func (c *Channel) SetRevents(rev uint32)     { c.revents = rev }
func (c *Channel) Index() ChannelIndex       { return c.index }
func (c *Channel) SetIndex(idx ChannelIndex) { c.index = idx }
func (c *Channel) OwnerLoop() *EventLoop     { return c.loop }

func (c *Channel) IsNoneEvent() bool { return c.events == noneEvent }
func (c *Channel) IsWriting() bool   { return c.events&writeEvent != 0 }
func (c *Channel) IsReading() bool   { return c.events&readEvent != 0 }

func (c *Channel) EnableReading() {
	c.events |= readEvent
	c.update()
}

func (c *Channel) DisableReading() {
	c.events &^= readEvent
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= writeEvent
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= writeEvent
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = noneEvent
	c.update()
}

// Remove deregisters the Channel from its loop's poller. It must be called
// before the descriptor is closed.
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// HandleEvent runs the callbacks matching the last reported readiness.
func (c *Channel) HandleEvent(receiveTime api.Timestamp) {
	if c.tied && (c.guard == nil || !c.guard.Alive()) {
		return
	}
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime api.Timestamp) {
	rev := c.revents
	if rev&PollHup != 0 && rev&PollIn == 0 {
		c.loop.log.Debugf("fd = %d Channel::handle_event() POLLHUP", c.fd)
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if rev&PollErr != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if rev&(PollIn|PollPri|PollRdHup) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if rev&PollOut != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}

// String renders the fd and the last reported readiness, e.g. "7: IN OUT".
func (c *Channel) String() string {
	return eventsToString(c.fd, c.revents)
}

// EventsString renders the fd and the interest mask.
func (c *Channel) EventsString() string {
	return eventsToString(c.fd, c.events)
}

func eventsToString(fd int, ev uint32) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(fd))
	sb.WriteString(":")
	for _, f := range []struct {
		bit  uint32
		name string
	}{
		{PollIn, "IN"},
		{PollPri, "PRI"},
		{PollOut, "OUT"},
		{PollHup, "HUP"},
		{PollRdHup, "RDHUP"},
		{PollErr, "ERR"},
	} {
		if ev&f.bit != 0 {
			sb.WriteString(" ")
			sb.WriteString(f.name)
		}
	}
	return sb.String()
}
