// Package rc implements a single-goroutine reference-counted handle.
//
// Rc is the non-atomic sibling of arc.Arc: the same clone/drop ownership
// model with plain integer counts and no synchronization. It is cheaper
// than Arc and exactly as correct, as long as every handle of a group stays
// on the goroutine that created it.
//
// That restriction is the point: Rc declares itself thread-bound (see
// package capability), so handing one to thread.SpawnValue, sending it on a
// channel, or wrapping it in an Arc is rejected at the boundary. Moving an
// Rc would not race by itself, but a subsequent Clone from two goroutines
// increments the same plain integer concurrently, so the whole type stays
// home. Use arc.Arc when a value crosses goroutines.
package rc

// state is the shared allocation behind every handle of one group.
type state[T any] struct {
	strong int
	weak   int
	value  T
	drop   func(T)
	dead   bool
}

// Rc is a single owning handle to a reference-counted value.
type Rc[T any] struct {
	s       *state[T]
	dropped bool
}

// New allocates a value with a strong count of one.
func New[T any](value T) *Rc[T] {
	return &Rc[T]{s: &state[T]{strong: 1, value: value}}
}

// NewWithDrop is New with a teardown hook, run when the last strong handle
// is dropped.
func NewWithDrop[T any](value T, drop func(T)) *Rc[T] {
	return &Rc[T]{s: &state[T]{strong: 1, value: value, drop: drop}}
}

// Clone returns a new owning handle to the same value.
func (r *Rc[T]) Clone() *Rc[T] {
	if r.dropped {
		panic("rc: Clone on a dropped handle")
	}
	r.s.strong++
	return &Rc[T]{s: r.s}
}

// Value returns the wrapped value.
func (r *Rc[T]) Value() T {
	if r.dropped {
		panic("rc: Value on a dropped handle")
	}
	return r.s.value
}

// Drop releases this handle; the last drop in the group runs the teardown.
// Dropping the same handle twice panics.
func (r *Rc[T]) Drop() {
	if r.dropped {
		panic("rc: handle dropped twice")
	}
	r.dropped = true
	r.s.strong--
	if r.s.strong == 0 {
		if r.s.drop != nil {
			r.s.drop(r.s.value)
		}
		var zero T
		r.s.value = zero
		r.s.dead = true
	}
}

// Downgrade returns a weak handle to the same value.
func (r *Rc[T]) Downgrade() *Weak[T] {
	if r.dropped {
		panic("rc: Downgrade on a dropped handle")
	}
	r.s.weak++
	return &Weak[T]{s: r.s}
}

// StrongCount returns the group's strong count.
func (r *Rc[T]) StrongCount() int {
	return r.s.strong
}

// ThreadBound pins Rc to its home goroutine: the plain counters make any
// cross-goroutine clone a data race.
func (r *Rc[T]) ThreadBound() {}

// Weak is the non-owning handle of an Rc group.
type Weak[T any] struct {
	s       *state[T]
	dropped bool
}

// Upgrade attempts to regain an owning handle; it fails once the value has
// been destroyed.
func (w *Weak[T]) Upgrade() (*Rc[T], bool) {
	if w.dropped {
		panic("rc: Upgrade on a dropped weak handle")
	}
	if w.s.dead || w.s.strong == 0 {
		return nil, false
	}
	w.s.strong++
	return &Rc[T]{s: w.s}, true
}

// Drop releases this weak handle.
func (w *Weak[T]) Drop() {
	if w.dropped {
		panic("rc: weak handle dropped twice")
	}
	w.dropped = true
	w.s.weak--
}

// ThreadBound pins Weak to its home goroutine alongside Rc.
func (w *Weak[T]) ThreadBound() {}
