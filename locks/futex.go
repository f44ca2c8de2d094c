package locks

import (
	"time"

	"github.com/joshuapare/heapkit/internal/sys"
)

// Futex is the wait/wake primitive a Lock sleeps on.
type Futex interface {
	// Wait blocks while *addr == val, until woken or until timeout elapses
	// (a negative timeout waits forever). It may return spuriously; the
	// boolean is false only on timeout.
	Wait(addr *uint32, val uint32, timeout time.Duration) (bool, error)

	// Wake wakes up to n waiters blocked on addr and returns how many were
	// woken.
	Wake(addr *uint32, n int) (int, error)
}

// SystemFutex is the platform futex: FUTEX_WAIT/FUTEX_WAKE on Linux, a
// yielding poll elsewhere.
type SystemFutex struct{}

// Wait implements Futex.
func (SystemFutex) Wait(addr *uint32, val uint32, timeout time.Duration) (bool, error) {
	return sys.FutexWait(addr, val, timeout)
}

// Wake implements Futex.
func (SystemFutex) Wake(addr *uint32, n int) (int, error) {
	return sys.FutexWake(addr, n)
}
