package locks

// Mutex guards a value of type T with a Lock. The value may only be reached
// through a Guard, which exists exactly while the lock is held.
type Mutex[T any] struct {
	lock  Lock
	value T
}

// NewMutex returns an unlocked Mutex holding v.
func NewMutex[T any](v T) *Mutex[T] {
	return &Mutex[T]{value: v}
}

// NewMutexWith returns an unlocked Mutex holding v that sleeps on f.
func NewMutexWith[T any](v T, f Futex) *Mutex[T] {
	return &Mutex[T]{lock: Lock{futex: f}, value: v}
}

// Lock blocks until the mutex is acquired and returns the guard that owns
// it. Release it with Unlock, normally via defer.
func (m *Mutex[T]) Lock() Guard[T] {
	m.lock.Lock()
	return Guard[T]{m: m}
}

// TryLock acquires the mutex only if it is free. ok is false when it is held
// elsewhere, in which case the returned guard is unusable.
func (m *Mutex[T]) TryLock() (g Guard[T], ok bool) {
	if !m.lock.TryLock() {
		return Guard[T]{}, false
	}
	return Guard[T]{m: m}, true
}

// With runs fn with exclusive access to the value. The lock is released when
// fn returns or panics.
func (m *Mutex[T]) With(fn func(v *T)) {
	g := m.Lock()
	defer g.Unlock()
	fn(g.Value())
}

// State reports the lock word; see Lock.State.
func (m *Mutex[T]) State() State {
	return m.lock.State()
}

// Inner returns the guarded value without locking. Only valid while no other
// goroutine can reach m, such as during construction.
func (m *Mutex[T]) Inner() *T {
	return &m.value
}

// Guard is proof of holding a Mutex.
type Guard[T any] struct {
	m *Mutex[T]
}

// Value returns the guarded value. It panics once the guard is released.
func (g *Guard[T]) Value() *T {
	if g.m == nil {
		panic("locks: use of released guard")
	}
	return &g.m.value
}

// Unlock releases the mutex. A guard can be released only once.
func (g *Guard[T]) Unlock() {
	if g.m == nil {
		panic("locks: unlock of released guard")
	}
	m := g.m
	g.m = nil
	m.lock.Unlock()
}
