// Package locks provides a blocking mutual-exclusion lock built on a single
// 32-bit atomic word and a futex-style wait/wake primitive.
//
// # State Machine
//
// The word moves between three states:
//
//	Available (0) -> Locked (1)     uncontended acquire, one compare-and-swap
//	Locked    (1) -> Contended (2)  a second caller arrived and will sleep
//	Contended (2) -> Available (0)  unlock stores 0 and wakes one sleeper
//	Locked    (1) -> Available (0)  uncontended unlock, no wake-up needed
//
// A sleeper that wakes swaps the word back to Contended before checking the
// value it replaced. It therefore acquires the lock in the Contended state,
// which guarantees its own unlock will issue a wake-up for anyone that queued
// behind it. The cost is at most one unnecessary wake per contention episode.
//
// # Allocation
//
// Lock, Unlock and TryLock never allocate. The allocator in package heap is
// guarded by a Mutex, so any allocation here would recurse into the structure
// being protected.
//
// # Usage
//
//	m := locks.NewMutex(registry{})
//	g := m.Lock()
//	defer g.Unlock()
//	g.Value().count++
package locks
