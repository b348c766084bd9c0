// Package arc implements an atomically reference-counted shared-ownership
// handle, usable across goroutines.
//
// An Arc[T] is one owning handle to a heap-allocated value. Cloning an Arc
// produces another handle to the same value with an atomic count increment;
// dropping a handle decrements the count, and the last drop tears the value
// down exactly once. A Weak[T] observes the value without keeping it alive
// and can be upgraded back to an Arc only while at least one strong handle
// remains.
//
// Sharing discipline: the wrapped T must be safe for concurrent access,
// which is checked at construction (see package capability). An immutable T
// is shared as-is; a T that needs mutation is wrapped in a mutex first:
//
//	counter := arc.New(mutex.New(0))
//	worker := counter.Clone() // hand worker to another goroutine
//
// Strong-reference cycles are never collected. Ownership must form a tree
// or DAG; back-references use Weak handles, exactly like a parent pointer
// in a tree of nodes. A cycle of strong handles is a leak, not a detected
// fault.
package arc

import (
	"go.uber.org/zap"

	"github.com/kolkov/oxide/capability"
	"github.com/kolkov/oxide/internal/block"
	"github.com/kolkov/oxide/internal/trace"
)

var tr = trace.Logger("arc")

// state is the shared allocation behind every handle of one group: the
// control block, the value, and its optional teardown.
type state[T any] struct {
	ctl   *block.Block
	value T
	drop  func(T)
}

// destroy runs the teardown and severs the value so late Weak upgrades
// observe absence and the referent becomes collectable. Called exactly once,
// by the goroutine whose Drop took the strong count to zero.
func (s *state[T]) destroy() {
	if s.drop != nil {
		s.drop(s.value)
	}
	var zero T
	s.value = zero
}

// Arc is a single owning handle. Handles are not safe for concurrent use of
// the SAME handle; each goroutine owns its own handle, obtained via Clone.
// The handles of one group may be used from any number of goroutines
// concurrently.
//
// Every handle must be released with Drop. Clone, Value, and Downgrade on a
// dropped handle panic: a dropped handle no longer guarantees the value is
// alive, so using it is a bug on par with a use-after-free.
type Arc[T any] struct {
	s       *state[T]
	dropped bool
}

// New allocates a value with a strong count of one.
//
// New panics if T is not safe for concurrent sharing (capability check at
// the wrap boundary): handles are expected to be cloned across goroutines,
// so an unsynchronized mutable T would be a race waiting to happen. Wrap
// such a T in a mutex.Mutex first.
func New[T any](value T) *Arc[T] {
	capability.AssertShareable(value)
	return &Arc[T]{s: &state[T]{ctl: block.New(), value: value}}
}

// NewWithDrop is New with a teardown hook, run exactly once when the last
// strong handle is dropped. The hook receives the wrapped value; it runs on
// the goroutine that dropped the final handle.
func NewWithDrop[T any](value T, drop func(T)) *Arc[T] {
	capability.AssertShareable(value)
	return &Arc[T]{s: &state[T]{ctl: block.New(), value: value, drop: drop}}
}

// Clone returns a new owning handle to the same value. Safe to call from
// any goroutine holding a live handle; the increment is a single atomic
// add with no read-modify-write gap.
func (a *Arc[T]) Clone() *Arc[T] {
	if a.dropped {
		panic("arc: Clone on a dropped handle")
	}
	a.s.ctl.IncStrong()
	if trace.Enabled() {
		tr.Debug("clone", zap.Int64("strong", a.s.ctl.StrongCount()))
	}
	return &Arc[T]{s: a.s}
}

// Value returns the wrapped value. The handle keeps the value alive, so the
// access needs no further synchronization for reads; mutation goes through
// whatever T itself provides (typically an inner mutex).
func (a *Arc[T]) Value() T {
	if a.dropped {
		panic("arc: Value on a dropped handle")
	}
	return a.s.value
}

// Drop releases this handle. The last strong drop in the group runs the
// teardown. Dropping the same handle twice panics.
func (a *Arc[T]) Drop() {
	if a.dropped {
		panic("arc: handle dropped twice")
	}
	a.dropped = true
	if a.s.ctl.DecStrong() {
		if trace.Enabled() {
			tr.Debug("last strong handle dropped, destroying value")
		}
		a.s.destroy()
	}
}

// Downgrade returns a Weak handle to the same value without extending its
// lifetime.
func (a *Arc[T]) Downgrade() *Weak[T] {
	if a.dropped {
		panic("arc: Downgrade on a dropped handle")
	}
	a.s.ctl.IncWeak()
	return &Weak[T]{s: a.s}
}

// StrongCount returns a snapshot of the group's strong count.
func (a *Arc[T]) StrongCount() int64 {
	return a.s.ctl.StrongCount()
}

// WeakCount returns a snapshot of the group's weak count.
func (a *Arc[T]) WeakCount() int64 {
	return a.s.ctl.WeakCount()
}

// ThreadShareable marks Arc as safe for concurrent use across goroutines.
func (a *Arc[T]) ThreadShareable() {}
