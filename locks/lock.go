package locks

import (
	"sync/atomic"

	"github.com/joshuapare/heapkit/internal/sys"
)

// State is the value of a Lock's atomic word.
type State uint32

const (
	Available State = 0
	Locked    State = 1
	Contended State = 2
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Locked:
		return "locked"
	case Contended:
		return "contended"
	default:
		return "invalid"
	}
}

// Lock is a futex-backed mutual-exclusion lock. The zero value is an
// unlocked Lock using SystemFutex. A Lock must not be copied after first use.
type Lock struct {
	state uint32
	futex Futex
}

// NewLock returns an unlocked Lock that sleeps on f. A nil f selects
// SystemFutex.
func NewLock(f Futex) *Lock {
	return &Lock{futex: f}
}

// Lock acquires l, blocking the calling thread until it is available.
func (l *Lock) Lock() {
	if atomic.CompareAndSwapUint32(&l.state, uint32(Available), uint32(Locked)) {
		return
	}
	l.lockSlow()
}

func (l *Lock) lockSlow() {
	s := atomic.SwapUint32(&l.state, uint32(Contended))
	for s != uint32(Available) {
		if _, err := l.sleeper().Wait(&l.state, uint32(Contended), sys.NoTimeout); err != nil {
			panic("locks: futex wait failed: " + err.Error())
		}
		s = atomic.SwapUint32(&l.state, uint32(Contended))
	}
}

// TryLock acquires l only if it is available right now.
func (l *Lock) TryLock() bool {
	return atomic.CompareAndSwapUint32(&l.state, uint32(Available), uint32(Locked))
}

// Unlock releases l. It must be called exactly once per successful Lock or
// TryLock; unlocking an available Lock panics.
func (l *Lock) Unlock() {
	prev := atomic.AddUint32(&l.state, ^uint32(0)) + 1
	if prev == uint32(Locked) {
		return
	}
	atomic.StoreUint32(&l.state, uint32(Available))
	if prev == uint32(Available) {
		panic("locks: unlock of unlocked lock")
	}
	if _, err := l.sleeper().Wake(&l.state, 1); err != nil {
		panic("locks: futex wake failed: " + err.Error())
	}
}

// State reports the current value of the lock word. It is a snapshot and
// only useful for diagnostics.
func (l *Lock) State() State {
	return State(atomic.LoadUint32(&l.state))
}

func (l *Lock) sleeper() Futex {
	if l.futex == nil {
		return SystemFutex{}
	}
	return l.futex
}
