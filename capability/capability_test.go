package capability_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/oxide/arc"
	"github.com/kolkov/oxide/capability"
	"github.com/kolkov/oxide/channel"
	"github.com/kolkov/oxide/mutex"
	"github.com/kolkov/oxide/rc"
)

func TestClassification(t *testing.T) {
	type plain struct {
		A int
		B string
	}
	type viaPointer struct {
		N *int
	}
	type withRc struct {
		H *rc.Rc[int]
	}
	type withMutex struct {
		M *mutex.Mutex[int]
	}

	n := 0
	rcHandle := rc.New(1)
	defer rcHandle.Drop()
	arcHandle := arc.New(1)
	defer arcHandle.Drop()
	tx, rx := channel.New[int]()
	defer rx.Drop()
	defer tx.Drop()

	tests := []struct {
		name         string
		value        any
		transferable bool
		shareable    bool
	}{
		{name: "int", value: 42, transferable: true, shareable: true},
		{name: "string", value: "s", transferable: true, shareable: true},
		{name: "nil", value: nil, transferable: true, shareable: true},
		{name: "chan", value: make(chan int), transferable: true, shareable: true},
		{name: "pointer to int", value: &n, transferable: true, shareable: false},
		{name: "slice", value: []int{1}, transferable: true, shareable: false},
		{name: "map", value: map[string]int{}, transferable: true, shareable: false},
		{name: "func", value: func() {}, transferable: true, shareable: false},
		{name: "plain struct", value: plain{}, transferable: true, shareable: true},
		{name: "struct with pointer field", value: viaPointer{}, transferable: true, shareable: false},
		{name: "stdlib mutex pointer", value: &sync.Mutex{}, transferable: true, shareable: true},
		{name: "stdlib waitgroup pointer", value: &sync.WaitGroup{}, transferable: true, shareable: true},
		{name: "oxide mutex", value: mutex.New(0), transferable: true, shareable: true},
		{name: "arc handle", value: arcHandle, transferable: true, shareable: true},
		{name: "sender", value: tx, transferable: true, shareable: false},
		{name: "receiver", value: rx, transferable: true, shareable: false},
		{name: "rc handle", value: rcHandle, transferable: false, shareable: false},
		{name: "struct embedding rc handle", value: withRc{H: rcHandle}, transferable: false, shareable: false},
		{name: "struct embedding oxide mutex", value: withMutex{M: mutex.New(0)}, transferable: true, shareable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transferable, capability.IsTransferable(tt.value), "transferable")
			assert.Equal(t, tt.shareable, capability.IsShareable(tt.value), "shareable")
		})
	}
}

func TestClassString(t *testing.T) {
	tests := []struct {
		name  string
		class capability.Class
		want  string
	}{
		{name: "both", class: capability.Transferable | capability.Shareable, want: "transferable+shareable"},
		{name: "transferable only", class: capability.Transferable, want: "transferable"},
		{name: "shareable only", class: capability.Shareable, want: "shareable"},
		{name: "neither", class: 0, want: "thread-bound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.class.String())
		})
	}
}

func TestClassify(t *testing.T) {
	h := rc.New(1)
	defer h.Drop()

	assert.Equal(t, capability.Transferable|capability.Shareable, capability.Classify(7))
	assert.Equal(t, capability.Class(0), capability.Classify(h))

	n := 0
	assert.Equal(t, capability.Transferable, capability.Classify(&n))
}

func TestAssertPanicsNameTheCulprit(t *testing.T) {
	type carrier struct {
		Inner *rc.Rc[int]
	}

	h := rc.New(1)
	defer h.Drop()

	require.PanicsWithValue(t,
		"capability: *rc.Rc[int] is not transferable across threads (at root (*rc.Rc[int] is thread-bound))",
		func() { capability.AssertTransferable(h) })

	defer func() {
		p := recover()
		require.NotNil(t, p)
		require.Contains(t, p.(string), "Inner")
	}()
	capability.AssertTransferable(carrier{Inner: h})
}

func TestAssertAcceptsValidValues(t *testing.T) {
	require.NotPanics(t, func() { capability.AssertTransferable(42) })
	require.NotPanics(t, func() { capability.AssertShareable(mutex.New("x")) })
	require.NotPanics(t, func() { capability.AssertTransferable(nil) })
}

func TestRecursiveTypeTerminates(t *testing.T) {
	type node struct {
		Value int
		Next  *node
	}
	// A self-referential type must classify without infinite recursion.
	assert.True(t, capability.IsTransferable(&node{}))
	assert.False(t, capability.IsShareable(&node{}))
}
