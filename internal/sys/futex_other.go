//go:build !linux

package sys

import (
	"runtime"
	"sync/atomic"
	"time"
)

// FutexWait polls *addr, yielding between reads, until it differs from val
// or the timeout elapses.
func FutexWait(addr *uint32, val uint32, timeout time.Duration) (bool, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for atomic.LoadUint32(addr) == val {
		if timeout >= 0 && !time.Now().Before(deadline) {
			return false, nil
		}
		runtime.Gosched()
	}
	return true, nil
}

// FutexWake is a no-op: waiters poll the word themselves.
func FutexWake(addr *uint32, n int) (int, error) {
	return 0, nil
}
