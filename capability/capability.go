// Package capability classifies Go types by the two thread-boundary
// capabilities the rest of this module enforces:
//
//   - Transferable: ownership of a value may be moved to another goroutine.
//   - Shareable: a value may be accessed concurrently from several
//     goroutines without additional synchronization.
//
// Almost every Go type is Transferable. The notable exception is a type
// whose internal bookkeeping assumes single-goroutine access, such as the
// non-atomic reference count in rc.Rc: moving one handle is harmless, but
// cloning it from two goroutines afterwards is a data race, so the whole
// type is kept on its home goroutine. Shareable is the stricter capability:
// it holds for immutable primitives and for types built entirely from
// atomic operations or locks, and fails for anything offering interior
// mutability without synchronization (plain pointers, slices, maps).
//
// A composite type has a capability only if every field has it. The
// classification is structural and runs at the thread-crossing boundaries
// of this module (arc.New, Sender.Send, thread.SpawnValue); a violation is
// reported at construction time as a panic naming the offending field path,
// which is the closest Go rendition of a compile-time capability error.
//
// Types can override the structural rules with marker methods:
//
//	func (T) ThreadShareable() {}   // declares T safe for concurrent use
//	func (T) ThreadBound()     {}   // pins T to one goroutine entirely
//
// Closure captures are invisible to runtime reflection, so plain
// thread.Spawn cannot be checked here; the oxvet tool performs that check
// statically (see cmd/oxvet).
package capability

import (
	"fmt"
	"reflect"
	"strings"
)

// Sharer is the opt-in marker for concurrent-access safety. A type
// implementing it (on value or pointer receiver) is treated as Shareable
// regardless of its structure. The module's own synchronized types
// (mutex.Mutex, arc.Arc) implement it.
type Sharer interface {
	ThreadShareable()
}

// Bound is the opt-out marker. A type implementing it is neither
// Transferable nor Shareable: it must stay on the goroutine that created
// it. rc.Rc implements it.
type Bound interface {
	ThreadBound()
}

// Class is a bitset of the capabilities a type holds.
type Class uint8

const (
	// Transferable means ownership may move across goroutines.
	Transferable Class = 1 << iota
	// Shareable means concurrent access is safe without extra locking.
	Shareable
)

// String returns a human-readable form: "transferable+shareable",
// "transferable", "shareable", or "thread-bound".
func (c Class) String() string {
	switch {
	case c&Transferable != 0 && c&Shareable != 0:
		return "transferable+shareable"
	case c&Transferable != 0:
		return "transferable"
	case c&Shareable != 0:
		return "shareable"
	default:
		return "thread-bound"
	}
}

var (
	sharerType = reflect.TypeOf((*Sharer)(nil)).Elem()
	boundType  = reflect.TypeOf((*Bound)(nil)).Elem()
)

// Classify reports the capabilities of v's dynamic type.
func Classify(v any) Class {
	var c Class
	if IsTransferable(v) {
		c |= Transferable
	}
	if IsShareable(v) {
		c |= Shareable
	}
	return c
}

// IsTransferable reports whether v's dynamic type may be moved to another
// goroutine. A nil value is trivially transferable.
func IsTransferable(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return true
	}
	ok, _ := transferable(t, newWalk())
	return ok
}

// IsShareable reports whether v's dynamic type may be accessed concurrently
// from several goroutines. A nil value is trivially shareable.
func IsShareable(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return true
	}
	ok, _ := shareable(t, newWalk())
	return ok
}

// AssertTransferable panics if v's dynamic type is not Transferable.
// The panic message names the type and the field path that pinned it.
func AssertTransferable(v any) {
	t := reflect.TypeOf(v)
	if t == nil {
		return
	}
	if ok, path := transferable(t, newWalk()); !ok {
		panic(fmt.Sprintf("capability: %s is not transferable across threads (at %s)", t, path))
	}
}

// AssertShareable panics if v's dynamic type is not Shareable.
func AssertShareable(v any) {
	t := reflect.TypeOf(v)
	if t == nil {
		return
	}
	if ok, path := shareable(t, newWalk()); !ok {
		panic(fmt.Sprintf("capability: %s is not safe for concurrent sharing (at %s)", t, path))
	}
}

// walk tracks in-progress types so recursive definitions terminate.
// A type already under examination is assumed to hold the capability;
// if it does not, the outer visit reports it.
type walk struct {
	seen map[reflect.Type]bool
	path []string
}

func newWalk() *walk {
	return &walk{seen: make(map[reflect.Type]bool)}
}

func (w *walk) at() string {
	if len(w.path) == 0 {
		return "root"
	}
	return strings.Join(w.path, ".")
}

// implementsMarker checks t and *t against the marker interface. Marker
// methods are commonly declared on pointer receivers; a value field of
// such a type still counts as marked.
func implementsMarker(t reflect.Type, marker reflect.Type) bool {
	if t.Implements(marker) {
		return true
	}
	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(marker) {
		return true
	}
	return false
}

func transferable(t reflect.Type, w *walk) (bool, string) {
	if implementsMarker(t, boundType) {
		return false, w.at() + " (" + t.String() + " is thread-bound)"
	}
	if implementsMarker(t, sharerType) {
		// Shareable implies transferable: concurrent access safety
		// subsumes a one-time ownership move.
		return true, ""
	}
	if w.seen[t] {
		return true, ""
	}
	w.seen[t] = true
	defer delete(w.seen, t)

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String, reflect.Chan, reflect.UnsafePointer:
		return true, ""
	case reflect.Func:
		// The signature carries no capture information; oxvet inspects
		// captures statically.
		return true, ""
	case reflect.Interface:
		// The dynamic type is unknown from the static field type. The
		// concrete value is re-checked wherever it crosses a boundary
		// on its own.
		return true, ""
	case reflect.Pointer, reflect.Slice, reflect.Array:
		w.path = append(w.path, "("+t.String()+")")
		ok, path := transferable(t.Elem(), w)
		w.path = w.path[:len(w.path)-1]
		return ok, path
	case reflect.Map:
		w.path = append(w.path, "("+t.String()+" key)")
		ok, path := transferable(t.Key(), w)
		w.path = w.path[:len(w.path)-1]
		if !ok {
			return false, path
		}
		w.path = append(w.path, "("+t.String()+" value)")
		ok, path = transferable(t.Elem(), w)
		w.path = w.path[:len(w.path)-1]
		return ok, path
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			w.path = append(w.path, f.Name)
			ok, path := transferable(f.Type, w)
			w.path = w.path[:len(w.path)-1]
			if !ok {
				return false, path
			}
		}
		return true, ""
	default:
		return false, w.at() + " (unsupported kind " + t.Kind().String() + ")"
	}
}

func shareable(t reflect.Type, w *walk) (bool, string) {
	if implementsMarker(t, boundType) {
		return false, w.at() + " (" + t.String() + " is thread-bound)"
	}
	if implementsMarker(t, sharerType) {
		return true, ""
	}
	if isSyncType(t) {
		return true, ""
	}
	if w.seen[t] {
		return true, ""
	}
	w.seen[t] = true
	defer delete(w.seen, t)

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String, reflect.Chan:
		return true, ""
	case reflect.Pointer:
		// A shared pointer hands every holder mutable access to the
		// pointee, so the pointee itself must synchronize: a marker
		// type, a stdlib sync primitive, or a channel. A *int is not
		// shareable even though an int value is.
		if syncSafe(t.Elem()) {
			return true, ""
		}
		return false, w.at() + " (" + t.String() + " points at an unsynchronized value)"
	case reflect.Array:
		w.path = append(w.path, "("+t.String()+")")
		ok, path := shareable(t.Elem(), w)
		w.path = w.path[:len(w.path)-1]
		return ok, path
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			w.path = append(w.path, f.Name)
			ok, path := shareable(f.Type, w)
			w.path = w.path[:len(w.path)-1]
			if !ok {
				return false, path
			}
		}
		return true, ""
	case reflect.Slice, reflect.Map, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return false, w.at() + " (" + t.Kind().String() + " has unsynchronized interior mutability)"
	default:
		return false, w.at() + " (unsupported kind " + t.Kind().String() + ")"
	}
}

// syncSafe reports whether a value of type t synchronizes its own access,
// making a pointer to it safe to hand to several goroutines.
func syncSafe(t reflect.Type) bool {
	if implementsMarker(t, sharerType) || isSyncType(t) {
		return true
	}
	return t.Kind() == reflect.Chan
}

// isSyncType recognizes the standard library's synchronization primitives,
// which are safe to share by construction.
func isSyncType(t reflect.Type) bool {
	pkg := t.PkgPath()
	if pkg != "sync" && pkg != "sync/atomic" {
		return false
	}
	switch t.Name() {
	case "Mutex", "RWMutex", "WaitGroup", "Once", "Cond", "Map", "Pool",
		"Bool", "Int32", "Int64", "Uint32", "Uint64", "Uintptr", "Pointer", "Value":
		return true
	}
	return false
}
