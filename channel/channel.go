// Package channel implements an unbounded multi-producer, single-consumer
// FIFO channel with explicit ownership of both ends.
//
// New returns a Sender and a Receiver. The Sender is cloneable (every clone
// feeds the same queue and may live on its own goroutine) while the Receiver
// is unique. Values arrive in send order per sender; the interleaving
// between different senders is whatever the scheduler produced.
//
// Sending a value is an ownership transfer: the value leaves the sending
// goroutine and belongs to the receiver once delivered. The send boundary
// therefore checks the transfer capability of the value's type (see package
// capability); sending a thread-bound value such as an rc.Rc panics at the
// first attempt.
//
// Closure is signalled through the handles, not a separate call: dropping
// the last Sender clone closes the channel for sending while buffered
// values remain receivable, and dropping the Receiver closes it immediately
// in the other direction, failing further sends. A Recv that can never be
// satisfied (queue empty, no senders left) fails with ErrDisconnected
// rather than blocking forever.
//
// Sends never block; the queue is unbounded. Backpressure, if needed, is
// the caller's to arrange.
package channel

import (
	"errors"
	"iter"
	"reflect"
	"sync"

	"github.com/kolkov/oxide/capability"
	"github.com/kolkov/oxide/internal/trace"
)

var tr = trace.Logger("channel")

// ErrDisconnected is returned by Recv and TryRecv when the queue is empty
// and every Sender clone has been dropped: no value can ever arrive.
var ErrDisconnected = errors.New("channel: all senders dropped")

// ErrEmpty is returned by TryRecv when no value is buffered but senders
// remain, so blocking would have been required.
var ErrEmpty = errors.New("channel: empty")

// SendError reports a send on a channel whose Receiver has been dropped.
// It carries the rejected value so the caller regains ownership of it.
type SendError[T any] struct {
	Value T
}

func (*SendError[T]) Error() string {
	return "channel: send on a channel with no receiver"
}

// core is the state shared by every handle of one channel.
type core[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	buf  []T
	head int

	senders  int // live Sender clones, guarded by mu
	recvGone bool

	// checked caches the concrete types already validated at the send
	// boundary, so the reflective capability walk runs once per type.
	checked sync.Map
}

// New creates an empty channel and returns its two ends.
func New[T any]() (*Sender[T], *Receiver[T]) {
	c := &core[T]{senders: 1}
	c.notEmpty = sync.NewCond(&c.mu)
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

func (c *core[T]) assertTransferable(v T) {
	t := reflect.TypeOf(any(v))
	if t == nil {
		return
	}
	if _, ok := c.checked.Load(t); ok {
		return
	}
	capability.AssertTransferable(v)
	c.checked.Store(t, struct{}{})
}

// pop removes the front value. Caller holds mu and has checked length.
func (c *core[T]) pop() T {
	v := c.buf[c.head]
	var zero T
	c.buf[c.head] = zero // release the reference for the collector
	c.head++
	if c.head == len(c.buf) {
		c.buf = c.buf[:0]
		c.head = 0
	} else if c.head > 64 && c.head*2 >= len(c.buf) {
		n := copy(c.buf, c.buf[c.head:])
		for i := n; i < len(c.buf); i++ {
			c.buf[i] = zero
		}
		c.buf = c.buf[:n]
		c.head = 0
	}
	return v
}

func (c *core[T]) length() int {
	return len(c.buf) - c.head
}

// Sender is the writing end. Each clone belongs to one goroutine; to send
// from several goroutines, give each its own clone. Clones of the same
// channel may send concurrently.
type Sender[T any] struct {
	c       *core[T]
	dropped bool
}

// Send appends v to the queue and wakes the receiver if it is blocked.
// It fails with a *SendError carrying v back once the Receiver has been
// dropped. Send never blocks.
func (s *Sender[T]) Send(v T) error {
	if s.dropped {
		panic("channel: Send on a dropped sender")
	}
	s.c.assertTransferable(v)

	s.c.mu.Lock()
	if s.c.recvGone {
		s.c.mu.Unlock()
		return &SendError[T]{Value: v}
	}
	s.c.buf = append(s.c.buf, v)
	s.c.mu.Unlock()
	s.c.notEmpty.Signal()
	return nil
}

// Clone returns another sending handle feeding the same queue.
func (s *Sender[T]) Clone() *Sender[T] {
	if s.dropped {
		panic("channel: Clone on a dropped sender")
	}
	s.c.mu.Lock()
	s.c.senders++
	s.c.mu.Unlock()
	return &Sender[T]{c: s.c}
}

// Drop releases this sending handle. When the last clone is dropped the
// channel is closed for sending; buffered values remain receivable, and a
// blocked Recv wakes with ErrDisconnected once they are drained.
func (s *Sender[T]) Drop() {
	if s.dropped {
		panic("channel: sender dropped twice")
	}
	s.dropped = true
	s.c.mu.Lock()
	s.c.senders--
	last := s.c.senders == 0
	s.c.mu.Unlock()
	if last {
		if trace.Enabled() {
			tr.Debug("last sender dropped, channel closed for sending")
		}
		s.c.notEmpty.Broadcast()
	}
}

// Receiver is the unique reading end. It may be moved to another goroutine
// but not shared between two.
type Receiver[T any] struct {
	c       *core[T]
	dropped bool
}

// Recv blocks until a value is available and returns it in FIFO order.
// It fails with ErrDisconnected when the queue is empty and no sender
// remains.
func (r *Receiver[T]) Recv() (T, error) {
	if r.dropped {
		panic("channel: Recv on a dropped receiver")
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	for r.c.length() == 0 {
		if r.c.senders == 0 {
			var zero T
			return zero, ErrDisconnected
		}
		r.c.notEmpty.Wait()
	}
	return r.c.pop(), nil
}

// TryRecv returns a buffered value without blocking. It fails with ErrEmpty
// when nothing is buffered but senders remain, and with ErrDisconnected
// when no value can ever arrive.
func (r *Receiver[T]) TryRecv() (T, error) {
	if r.dropped {
		panic("channel: TryRecv on a dropped receiver")
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.length() == 0 {
		var zero T
		if r.c.senders == 0 {
			return zero, ErrDisconnected
		}
		return zero, ErrEmpty
	}
	return r.c.pop(), nil
}

// Seq returns a single-use iterator over received values: lazy, in FIFO
// order, terminating where Recv would fail with ErrDisconnected.
//
//	for v := range receiver.Seq() {
//		process(v)
//	}
func (r *Receiver[T]) Seq() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := r.Recv()
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Len reports how many values are currently buffered.
func (r *Receiver[T]) Len() int {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.length()
}

// Drop releases the receiving end, closing the channel for sending
// immediately. Buffered values are discarded; later sends fail with a
// *SendError.
func (r *Receiver[T]) Drop() {
	if r.dropped {
		panic("channel: receiver dropped twice")
	}
	r.dropped = true
	r.c.mu.Lock()
	r.c.recvGone = true
	r.c.buf = nil
	r.c.head = 0
	r.c.mu.Unlock()
	if trace.Enabled() {
		tr.Debug("receiver dropped, channel closed")
	}
}
