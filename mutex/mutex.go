// Package mutex implements a mutual-exclusion lock that owns the value it
// guards, with poisoning-on-panic semantics.
//
// A Mutex[T] holds the T inside it; the only access path is through a Guard
// obtained from Lock or TryLock, so an unguarded reference to the value
// cannot leak out by construction. At most one Guard is live per Mutex at
// any instant.
//
// If a goroutine panics while holding a Guard, the mutex becomes poisoned:
// every later Lock still succeeds but additionally returns a *PoisonError,
// signalling that the guarded value may have been left half-updated. The
// caller decides whether to trust the data (use the returned guard and
// ignore the error) or discard it; the signal itself is never silently
// dropped. ClearPoison removes the mark after recovery.
//
// The closure form is the robust default:
//
//	m := mutex.New(0)
//	err := m.With(func(v *int) { *v++ })
//
// The explicit form requires releasing the guard with a direct defer, which
// is also what arms poison detection on an unwinding path:
//
//	g, err := m.Lock()
//	if err != nil { /* poisoned: decide whether to trust the value */ }
//	defer g.Unlock()
//	*g.Get()++
//
// A goroutine locking a Mutex it already holds deadlocks; self-deadlock is
// not detected.
package mutex

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kolkov/oxide/internal/trace"
)

var tr = trace.Logger("mutex")

// ErrWouldBlock is returned by TryLock when the mutex is already held.
var ErrWouldBlock = errors.New("mutex: would block")

// PoisonError reports that a previous holder panicked while the mutex was
// locked, so the guarded value may be inconsistent. Lock and TryLock return
// it alongside a usable Guard; the caller acknowledges the risk by using
// the guard anyway.
type PoisonError struct{}

func (*PoisonError) Error() string {
	return "mutex: poisoned by a panicking holder"
}

// Mutex owns a value of type T and serializes access to it.
//
// Acquisition order among contending goroutines follows the runtime's
// lock fairness (starvation-resistant, not FIFO).
type Mutex[T any] struct {
	mu       sync.Mutex
	poisoned atomic.Bool
	value    T
}

// New returns an unlocked, unpoisoned mutex owning value.
func New[T any](value T) *Mutex[T] {
	return &Mutex[T]{value: value}
}

// Lock blocks until the mutex is acquired and returns a Guard granting
// exclusive access. If the mutex is poisoned the Guard is returned together
// with a *PoisonError; the lock is held either way.
func (m *Mutex[T]) Lock() (*Guard[T], error) {
	m.mu.Lock()
	g := &Guard[T]{m: m}
	if m.poisoned.Load() {
		return g, &PoisonError{}
	}
	return g, nil
}

// TryLock attempts to acquire the mutex without blocking. It returns
// ErrWouldBlock (and no guard) if the mutex is held, otherwise it behaves
// like Lock, including the poison report.
func (m *Mutex[T]) TryLock() (*Guard[T], error) {
	if !m.mu.TryLock() {
		return nil, ErrWouldBlock
	}
	g := &Guard[T]{m: m}
	if m.poisoned.Load() {
		return g, &PoisonError{}
	}
	return g, nil
}

// With locks the mutex, runs fn with exclusive access to the value, and
// releases on every exit path. A panic inside fn poisons the mutex and
// propagates unchanged. If the mutex was already poisoned, fn still runs
// and With returns a *PoisonError afterwards.
func (m *Mutex[T]) With(fn func(*T)) error {
	m.mu.Lock()
	defer func() {
		if p := recover(); p != nil {
			m.poison()
			m.mu.Unlock()
			panic(p)
		}
		m.mu.Unlock()
	}()
	wasPoisoned := m.poisoned.Load()
	fn(&m.value)
	if wasPoisoned {
		return &PoisonError{}
	}
	return nil
}

// Poisoned reports whether a holder has panicked while the mutex was held.
func (m *Mutex[T]) Poisoned() bool {
	return m.poisoned.Load()
}

// ClearPoison removes the poison mark. Call it after restoring the guarded
// value to a consistent state.
func (m *Mutex[T]) ClearPoison() {
	m.poisoned.Store(false)
}

func (m *Mutex[T]) poison() {
	m.poisoned.Store(true)
	if trace.Enabled() {
		tr.Debug("mutex poisoned by panicking holder")
	}
}

// ThreadShareable marks Mutex as safe for concurrent use: serializing
// concurrent access is what it is for.
func (m *Mutex[T]) ThreadShareable() {}

// Guard grants exclusive access to a Mutex's value from acquisition until
// Unlock. A Guard belongs to the goroutine that acquired it.
type Guard[T any] struct {
	m        *Mutex[T]
	released bool
}

// Get returns a pointer to the guarded value. The pointer must not outlive
// the Guard; after Unlock, Get panics.
func (g *Guard[T]) Get() *T {
	if g.released {
		panic("mutex: Get on a released guard")
	}
	return &g.m.value
}

// Set replaces the guarded value.
func (g *Guard[T]) Set(v T) {
	if g.released {
		panic("mutex: Set on a released guard")
	}
	g.m.value = v
}

// Unlock releases the mutex. Calling Unlock on an already-released guard is
// a no-op, so `defer g.Unlock()` composes with an early explicit unlock.
//
// Unlock must be deferred directly (`defer g.Unlock()`, not wrapped in an
// extra closure): when the goroutine is unwinding from a panic, a directly
// deferred Unlock observes the panic, poisons the mutex, and re-raises the
// same payload. A wrapped defer releases the lock but cannot see the panic;
// use With when that matters.
func (g *Guard[T]) Unlock() {
	if g.released {
		return
	}
	g.released = true
	if p := recover(); p != nil {
		g.m.poison()
		g.m.mu.Unlock()
		panic(p)
	}
	g.m.mu.Unlock()
}
