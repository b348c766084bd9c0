package arc

// Weak is a non-owning handle. It does not keep the value alive; its only
// capability is an Upgrade attempt, which succeeds exactly when at least one
// strong handle is still live at that instant.
//
// Like Arc, a single Weak handle belongs to one goroutine; separate handles
// of the same group may be used concurrently.
type Weak[T any] struct {
	s       *state[T]
	dropped bool
}

// Upgrade attempts to regain an owning handle. It returns (handle, true)
// while the value is alive and (nil, false) once the last strong handle has
// been dropped. The underlying increment-if-nonzero is a CAS loop, so an
// upgrade can never resurrect a value whose teardown has begun.
func (w *Weak[T]) Upgrade() (*Arc[T], bool) {
	if w.dropped {
		panic("arc: Upgrade on a dropped weak handle")
	}
	if !w.s.ctl.UpgradeStrong() {
		return nil, false
	}
	return &Arc[T]{s: w.s}, true
}

// Clone returns another weak handle to the same group.
func (w *Weak[T]) Clone() *Weak[T] {
	if w.dropped {
		panic("arc: Clone on a dropped weak handle")
	}
	w.s.ctl.IncWeak()
	return &Weak[T]{s: w.s}
}

// Drop releases this weak handle. Dropping the same handle twice panics.
func (w *Weak[T]) Drop() {
	if w.dropped {
		panic("arc: weak handle dropped twice")
	}
	w.dropped = true
	w.s.ctl.DecWeak()
}

// ThreadShareable marks Weak as safe to hand across goroutines.
func (w *Weak[T]) ThreadShareable() {}
