// Package cell provides Lazy, a value computed once on first use.
//
// Lazy does not block in the kernel. Callers that arrive while another
// caller is running the initializer yield the processor in a loop until the
// value is published, which keeps the type free of any lock and usable from
// code that the lock itself depends on. This suits short initializers such
// as opening standard streams; a long-running initializer makes every
// concurrent caller spin for its whole duration.
package cell

import (
	"sync/atomic"

	"github.com/joshuapare/heapkit/internal/sys"
)

type phase uint32

const (
	pending phase = iota
	inProgress
	ready
)

// Lazy holds a value of type T produced by an initializer that runs at most
// once. A Lazy lives for the whole process; it cannot be reset.
type Lazy[T any] struct {
	running atomic.Bool
	state   atomic.Uint32
	init    func() T
	value   T
	yield   func()
}

// New returns a Lazy that will call init on first Get.
func New[T any](init func() T) *Lazy[T] {
	return &Lazy[T]{init: init}
}

// Get returns the value, running the initializer if no caller has yet.
//
// If the initializer panics the panic propagates to the caller that ran it,
// and every later or concurrent Get panics because the value can never
// become ready.
func (c *Lazy[T]) Get() T {
	switch phase(c.state.Load()) {
	case ready:
		return c.value
	case inProgress:
		return c.wait()
	}

	if !c.running.CompareAndSwap(false, true) {
		return c.wait()
	}
	// An earlier winner may have finished between the state load and the CAS.
	if phase(c.state.Load()) == ready {
		c.running.Store(false)
		return c.value
	}
	return c.initialize()
}

// Ready reports whether the value has been published.
func (c *Lazy[T]) Ready() bool {
	return phase(c.state.Load()) == ready
}

func (c *Lazy[T]) initialize() T {
	defer c.running.Store(false)

	c.state.Store(uint32(inProgress))
	fn := c.init
	c.init = nil
	c.value = fn()
	c.state.Store(uint32(ready))
	return c.value
}

func (c *Lazy[T]) wait() T {
	yield := c.yield
	if yield == nil {
		yield = sys.Yield
	}
	for c.running.Load() && phase(c.state.Load()) != ready {
		yield()
	}
	if phase(c.state.Load()) != ready {
		panic("cell: awaited initialization but the value was never initialized")
	}
	return c.value
}
