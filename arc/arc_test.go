package arc_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/oxide/arc"
	"github.com/kolkov/oxide/mutex"
)

func TestNewStartsWithSingleOwner(t *testing.T) {
	a := arc.New(42)
	require.Equal(t, int64(1), a.StrongCount())
	require.Equal(t, int64(0), a.WeakCount())
	require.Equal(t, 42, a.Value())
	a.Drop()
}

func TestCloneAndDropAdjustStrongCount(t *testing.T) {
	a := arc.New("shared")
	b := a.Clone()
	c := b.Clone()
	require.Equal(t, int64(3), a.StrongCount())
	require.Equal(t, "shared", c.Value())

	c.Drop()
	require.Equal(t, int64(2), a.StrongCount())
	b.Drop()
	a.Drop()
}

// TestTeardownRunsExactlyOnce stresses clone/drop from many goroutines and
// checks the core ownership property: the value is destroyed exactly once,
// after the last strong handle is dropped, never while one remains live.
func TestTeardownRunsExactlyOnce(t *testing.T) {
	const (
		goroutines = 16
		iterations = 200
	)

	var torndown atomic.Int32
	root := arc.NewWithDrop(7, func(int) {
		torndown.Add(1)
	})

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		h := root.Clone()
		wg.Add(1)
		go func(h *arc.Arc[int]) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				c := h.Clone()
				_ = c.Value()
				c.Drop()
			}
			h.Drop()
		}(h)
	}

	require.Equal(t, int32(0), torndown.Load(), "teardown ran while the root handle is live")
	root.Drop()
	wg.Wait()

	require.Equal(t, int32(1), torndown.Load(), "teardown must run exactly once")
}

func TestDropHandleTwicePanics(t *testing.T) {
	a := arc.New(1)
	a.Drop()
	require.Panics(t, func() { a.Drop() })
}

func TestUseAfterDropPanics(t *testing.T) {
	tests := []struct {
		name string
		op   func(a *arc.Arc[int])
	}{
		{name: "clone", op: func(a *arc.Arc[int]) { a.Clone() }},
		{name: "value", op: func(a *arc.Arc[int]) { a.Value() }},
		{name: "downgrade", op: func(a *arc.Arc[int]) { a.Downgrade() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := arc.New(1)
			keep := a.Clone() // keep the group alive past the drop
			defer keep.Drop()
			a.Drop()
			require.Panics(t, func() { tt.op(a) })
		})
	}
}

func TestNewRejectsUnshareableValue(t *testing.T) {
	type mutable struct{ n int }

	tests := []struct {
		name   string
		wrap   func()
		panics bool
	}{
		{name: "int", wrap: func() { arc.New(1).Drop() }, panics: false},
		{name: "string", wrap: func() { arc.New("s").Drop() }, panics: false},
		{name: "inner mutex", wrap: func() { arc.New(mutex.New(0)).Drop() }, panics: false},
		{name: "bare pointer", wrap: func() { arc.New(&mutable{}) }, panics: true},
		{name: "slice", wrap: func() { arc.New([]int{1}) }, panics: true},
		{name: "map", wrap: func() { arc.New(map[string]int{}) }, panics: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.panics {
				require.Panics(t, tt.wrap)
			} else {
				require.NotPanics(t, tt.wrap)
			}
		})
	}
}

func TestTeardownReceivesValue(t *testing.T) {
	var got string
	a := arc.NewWithDrop("payload", func(v string) { got = v })
	a.Drop()
	require.Equal(t, "payload", got)
}
