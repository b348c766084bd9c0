// Package thread ties the spawning of a concurrent unit of work to the
// observation of its outcome.
//
// Spawn starts a goroutine immediately and returns a Handle; the only
// ordering between caller and spawned code is what Join (or a channel, or a
// mutex) establishes. A panic inside the spawned function never crashes the
// process: the payload and stack are captured and surface at Join as a
// *PanicError, and nowhere else.
//
// The spawned function captures its inputs by closure, which makes the
// captures invisible to runtime checks; the oxvet tool vets them
// statically. SpawnValue is the checked alternative: it moves one explicit
// argument across the boundary and asserts its transfer capability at spawn
// time.
//
// A Handle is single-use: the terminal state is consumed by the first Join,
// and a second Join fails with ErrAlreadyJoined. If the process exits
// before a handle is joined, the spawned goroutine may simply never finish;
// joining (or otherwise synchronizing with) every spawned unit is the
// caller's responsibility.
package thread

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/kolkov/oxide/capability"
	"github.com/kolkov/oxide/internal/trace"
)

var tr = trace.Logger("thread")

// ErrAlreadyJoined is returned by Join when the handle's outcome has
// already been consumed by an earlier Join.
var ErrAlreadyJoined = errors.New("thread: handle already joined")

// PanicError is the captured abnormal termination of a spawned unit.
// Payload returns the value passed to panic; Stack the stack of the
// panicking goroutine at the point of the panic.
type PanicError struct {
	ID        uint64
	Recovered *panics.Recovered
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("thread %d panicked: %v", e.ID, e.Recovered.Value)
}

// Payload returns the original panic value.
func (e *PanicError) Payload() any {
	return e.Recovered.Value
}

// Stack returns the formatted stack trace captured at the panic site.
func (e *PanicError) Stack() []byte {
	return e.Recovered.Stack
}

// Unwrap exposes the recovered panic as an error for errors.As chains.
func (e *PanicError) Unwrap() error {
	return e.Recovered.AsError()
}

// nextID allocates handle identifiers. A plain atomic counter, never
// reused; the IDs exist for trace output and panic reports.
var nextID atomic.Uint64

// Handle represents one spawned unit of execution and owns the exclusive
// right to observe its outcome.
type Handle[R any] struct {
	id     uint64
	done   chan struct{}
	result R
	rec    *panics.Recovered
	joined atomic.Bool
}

// Spawn starts fn on a new goroutine and returns its handle. The spawned
// unit races with the caller from this point on.
func Spawn[R any](fn func() R) *Handle[R] {
	h := &Handle[R]{id: nextID.Add(1), done: make(chan struct{})}
	if trace.Enabled() {
		tr.Debug("spawn", zap.Uint64("id", h.id))
	}
	go func() {
		defer close(h.done)
		var c panics.Catcher
		c.Try(func() { h.result = fn() })
		h.rec = c.Recovered()
	}()
	return h
}

// SpawnValue moves arg to a new goroutine and runs fn with it. The move is
// checked: a non-transferable arg (for example an rc.Rc handle) panics at
// spawn time, before any goroutine starts.
func SpawnValue[A, R any](arg A, fn func(A) R) *Handle[R] {
	capability.AssertTransferable(arg)
	return Spawn(func() R { return fn(arg) })
}

// Join blocks until the spawned unit terminates and consumes its outcome:
// the produced value, or a *PanicError if the unit terminated abnormally.
// Only the first Join observes the outcome; later calls fail with
// ErrAlreadyJoined.
func (h *Handle[R]) Join() (R, error) {
	var zero R
	if !h.joined.CompareAndSwap(false, true) {
		return zero, ErrAlreadyJoined
	}
	<-h.done
	if trace.Enabled() {
		tr.Debug("join", zap.Uint64("id", h.id), zap.Bool("panicked", h.rec != nil))
	}
	if h.rec != nil {
		return zero, &PanicError{ID: h.id, Recovered: h.rec}
	}
	return h.result, nil
}

// Done returns a channel closed when the spawned unit has terminated. It
// makes a handle select-able; the outcome is still consumed via Join.
func (h *Handle[R]) Done() <-chan struct{} {
	return h.done
}

// ID returns the handle's identifier, as used in trace output and panic
// reports.
func (h *Handle[R]) ID() uint64 {
	return h.id
}
