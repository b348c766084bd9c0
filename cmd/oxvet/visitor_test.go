package main

import (
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseSource parses an in-memory file and runs the spawn visitor over it.
func runVisitor(t *testing.T, src string) ([]finding, *spawnVisitor) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", src, parser.ParseComments)
	require.NoError(t, err)
	v := newSpawnVisitor(fset, file, map[string]bool{"rc": true})
	return v.run(), v
}

func TestVisitorFlagsRcCapture(t *testing.T) {
	src := `package main

import (
	"github.com/kolkov/oxide/rc"
	"github.com/kolkov/oxide/thread"
)

func main() {
	handle := rc.New(1)
	h := thread.Spawn(func() int {
		return handle.Value()
	})
	_, _ = h.Join()
}
`
	findings, v := runVisitor(t, src)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].message, `captures "handle"`)
	assert.Contains(t, findings[0].message, "rc.New")
	assert.Equal(t, 1, v.stats.SpawnSites)
}

func TestVisitorFlagsDeclaredRcType(t *testing.T) {
	src := `package main

import (
	"github.com/kolkov/oxide/rc"
	"github.com/kolkov/oxide/thread"
)

func run(shared *rc.Rc[int]) {
	thread.Spawn(func() int {
		return shared.Value()
	})
}

var _ = rc.New
`
	findings, _ := runVisitor(t, src)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].message, "*rc.Rc[int]")
}

func TestVisitorIgnoresLocalConstruction(t *testing.T) {
	src := `package main

import (
	"github.com/kolkov/oxide/rc"
	"github.com/kolkov/oxide/thread"
)

func main() {
	h := thread.Spawn(func() int {
		local := rc.New(1)
		defer local.Drop()
		return local.Value()
	})
	_, _ = h.Join()
}
`
	findings, v := runVisitor(t, src)
	assert.Empty(t, findings, "an rc built inside the goroutine never crosses a boundary")
	assert.Equal(t, 1, v.stats.SpawnSites)
}

func TestVisitorIgnoresBenignCaptures(t *testing.T) {
	src := `package main

import "github.com/kolkov/oxide/thread"

func main() {
	n := 42
	name := "worker"
	h := thread.Spawn(func() int {
		_ = name
		return n
	})
	_, _ = h.Join()
}
`
	findings, v := runVisitor(t, src)
	assert.Empty(t, findings)
	assert.Equal(t, 1, v.stats.SpawnSites)
	assert.Equal(t, 2, v.stats.CapturesChecked)
}

func TestVisitorHonorsImportAlias(t *testing.T) {
	src := `package main

import (
	"github.com/kolkov/oxide/rc"
	th "github.com/kolkov/oxide/thread"
)

func main() {
	handle := rc.New(1)
	h := th.Spawn(func() int { return handle.Value() })
	_, _ = h.Join()
}
`
	findings, _ := runVisitor(t, src)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].message, "th.Spawn")
}

func TestVisitorSkipsFilesWithoutThreadImport(t *testing.T) {
	src := `package main

func Spawn(fn func() int) {}

type threadLike struct{}

func main() {
	Spawn(func() int { return 1 })
}
`
	findings, v := runVisitor(t, src)
	assert.Empty(t, findings)
	assert.Equal(t, 0, v.stats.SpawnSites)
}
