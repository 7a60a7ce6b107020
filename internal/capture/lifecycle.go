package capture

import (
	"runtime"
	"sync/atomic"
)

// State is the lifecycle state of a capture session.
type State int32

const (
	// Active sessions accept frame callbacks
	Active State = iota
	// Draining sessions reject new callbacks and wait for in-flight ones
	Draining
	// Destroyed sessions have released their resources
	Destroyed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Draining:
		return "draining"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Lifecycle gates frame callbacks against teardown without a lock on the
// frame path. A callback brackets its work with Enter/Exit; teardown calls
// Drain, after which no callback is inside and none can enter. The zero
// value is Active.
type Lifecycle struct {
	state    atomic.Int32
	inflight atomic.Int32
}

// Enter registers a callback. It returns false, and the callback must not
// touch session resources, once the session has left Active.
func (l *Lifecycle) Enter() bool {
	l.inflight.Add(1)
	if State(l.state.Load()) != Active {
		l.inflight.Add(-1)
		return false
	}
	return true
}

// Exit ends a callback admitted by Enter.
func (l *Lifecycle) Exit() {
	l.inflight.Add(-1)
}

// Drain moves an Active lifecycle to Draining and blocks until every
// admitted callback has exited.
func (l *Lifecycle) Drain() {
	l.state.CompareAndSwap(int32(Active), int32(Draining))
	for l.inflight.Load() > 0 {
		runtime.Gosched()
	}
}

// Destroy drains and marks the lifecycle Destroyed. It reports whether this
// call performed the transition.
func (l *Lifecycle) Destroy() bool {
	l.Drain()
	return State(l.state.Swap(int32(Destroyed))) != Destroyed
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// InFlight returns the number of callbacks currently admitted.
func (l *Lifecycle) InFlight() int {
	return int(l.inflight.Load())
}
