// File: reactor/goid.go
// Author: momentics <momentics@gmail.com>
//
// Goroutine identity and the process-wide loop registry that enforces one
// EventLoop per goroutine.

package reactor

import (
	"runtime"
	"sync"
)

// loops maps goroutine id to the EventLoop it owns.
var loops sync.Map

// goroutineID parses the id from the "goroutine NNN [" stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

func registerLoop(gid uint64, loop *EventLoop) bool {
	_, loaded := loops.LoadOrStore(gid, loop)
	return !loaded
}

func unregisterLoop(gid uint64, loop *EventLoop) {
	loops.CompareAndDelete(gid, loop)
}

// LoopOfCurrentGoroutine returns the EventLoop owned by the calling
// goroutine, or nil.
func LoopOfCurrentGoroutine() *EventLoop {
	if v, ok := loops.Load(goroutineID()); ok {
		return v.(*EventLoop)
	}
	return nil
}
