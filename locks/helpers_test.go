package locks

import (
	"sync/atomic"
	"time"
)

// countingFutex forwards to SystemFutex and counts every call.
type countingFutex struct {
	waits atomic.Int64
	wakes atomic.Int64
}

func (f *countingFutex) Wait(addr *uint32, val uint32, timeout time.Duration) (bool, error) {
	f.waits.Add(1)
	return SystemFutex{}.Wait(addr, val, timeout)
}

func (f *countingFutex) Wake(addr *uint32, n int) (int, error) {
	f.wakes.Add(1)
	return SystemFutex{}.Wake(addr, n)
}

func (f *countingFutex) calls() int64 {
	return f.waits.Load() + f.wakes.Load()
}

// waitForState polls until l reaches want or the deadline passes.
func waitForState(l *Lock, want State, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if l.State() == want {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
