// Package block implements the atomic control block shared by every strong
// and weak handle of one reference-counted value.
//
// The block holds two counters:
//
//   - strong: the number of live owning handles. The wrapped value stays
//     alive while strong >= 1 and is torn down exactly once when the count
//     reaches zero.
//   - weak: the number of live non-owning handles. Weak handles do not keep
//     the value alive; they only keep the block reachable so an upgrade
//     attempt can observe whether the value still exists.
//
// Counter misuse (decrement below zero, increment of a dead group) is a
// caller bug, not a recoverable condition, and panics immediately.
package block

import "sync/atomic"

// Block is the shared control block. The zero value is NOT ready for use;
// call New so the strong count starts at one.
type Block struct {
	strong atomic.Int64
	weak   atomic.Int64
}

// New returns a block with one strong owner and no weak handles.
func New() *Block {
	b := &Block{}
	b.strong.Store(1)
	return b
}

// IncStrong adds a strong owner. The caller must itself hold a strong
// handle, so the previous count has to be at least one; anything lower is a
// clone of an already-dead group and panics.
func (b *Block) IncStrong() {
	if n := b.strong.Add(1); n < 2 {
		panic("block: strong count incremented from zero")
	}
}

// DecStrong removes a strong owner and reports whether this was the last
// one, i.e. whether the caller must now tear down the value.
func (b *Block) DecStrong() (last bool) {
	n := b.strong.Add(-1)
	if n < 0 {
		panic("block: strong count below zero")
	}
	return n == 0
}

// UpgradeStrong attempts to add a strong owner on behalf of a weak handle.
// It succeeds only if at least one strong owner still exists at the moment
// of the attempt; the increment-if-nonzero is a CAS loop so a concurrent
// final drop can never be resurrected.
func (b *Block) UpgradeStrong() bool {
	for {
		n := b.strong.Load()
		if n == 0 {
			return false
		}
		if b.strong.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// IncWeak adds a weak handle.
func (b *Block) IncWeak() {
	b.weak.Add(1)
}

// DecWeak removes a weak handle.
func (b *Block) DecWeak() {
	if b.weak.Add(-1) < 0 {
		panic("block: weak count below zero")
	}
}

// StrongCount returns the current strong count. The value is a snapshot;
// under concurrent clones and drops it is stale by the time it is read.
func (b *Block) StrongCount() int64 {
	return b.strong.Load()
}

// WeakCount returns the current weak count snapshot.
func (b *Block) WeakCount() int64 {
	return b.weak.Load()
}
