// visitor.go implements the per-file AST analysis for spawn-capture
// checking.
//
// The analysis runs in two passes over each file:
//
//	Pass 1: find every thread.Spawn call site whose argument is a function
//	        literal, using the file's own import table to resolve the
//	        package qualifier.
//	Pass 2: for each such literal, find identifiers resolving to variables
//	        declared outside the literal (the captures) and test their
//	        declared or constructed type against the thread-bound package
//	        set.
//
// The passes stay separate so capture resolution works from a complete
// list of spawn sites and never mutates the tree it is walking.
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
)

// threadImportPath is the package whose Spawn boundary is being vetted.
const threadImportPath = "github.com/kolkov/oxide/thread"

// visitStats counts what the visitor saw in one file.
type visitStats struct {
	SpawnSites      int
	CapturesChecked int
}

type spawnVisitor struct {
	fset      *token.FileSet
	file      *ast.File
	boundPkgs map[string]bool
	stats     visitStats

	// threadName is the local name the file imported the thread package
	// under; empty when the file does not import it at all.
	threadName string
}

func newSpawnVisitor(fset *token.FileSet, file *ast.File, boundPkgs map[string]bool) *spawnVisitor {
	v := &spawnVisitor{fset: fset, file: file, boundPkgs: boundPkgs}
	for _, imp := range file.Imports {
		if imp.Path.Value != `"`+threadImportPath+`"` {
			continue
		}
		if imp.Name != nil {
			v.threadName = imp.Name.Name
		} else {
			v.threadName = "thread"
		}
	}
	return v
}

// run performs both passes and returns the file's findings.
func (v *spawnVisitor) run() []finding {
	if v.threadName == "" || v.threadName == "_" {
		return nil
	}

	// Pass 1: spawn sites with closure arguments.
	var closures []*ast.FuncLit
	ast.Inspect(v.file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "Spawn" {
			return true
		}
		pkg, ok := sel.X.(*ast.Ident)
		if !ok || pkg.Name != v.threadName || pkg.Obj != nil {
			return true
		}
		v.stats.SpawnSites++
		if fl, ok := call.Args[0].(*ast.FuncLit); ok {
			closures = append(closures, fl)
		}
		return true
	})

	// Pass 2: captures of thread-bound values inside each closure.
	var findings []finding
	for _, fl := range closures {
		findings = append(findings, v.checkClosure(fl)...)
	}
	return findings
}

// checkClosure reports every capture of a thread-bound value in one
// function literal.
func (v *spawnVisitor) checkClosure(fl *ast.FuncLit) []finding {
	var findings []finding
	reported := make(map[*ast.Object]bool)

	ast.Inspect(fl.Body, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok || id.Obj == nil || id.Obj.Kind != ast.Var || reported[id.Obj] {
			return true
		}
		declPos := declPosition(id.Obj)
		if declPos == token.NoPos || (declPos >= fl.Pos() && declPos <= fl.End()) {
			// Declared inside the closure: not a capture.
			return true
		}
		v.stats.CapturesChecked++
		boundAs, ok := v.boundTypeOf(id.Obj)
		if !ok {
			return true
		}
		reported[id.Obj] = true
		findings = append(findings, finding{
			pos: v.fset.Position(id.Pos()),
			message: fmt.Sprintf(
				"closure passed to %s.Spawn captures %q (%s), a thread-bound value; "+
					"construct it inside the goroutine or share an arc handle via SpawnValue",
				v.threadName, id.Name, boundAs),
		})
		return true
	})
	return findings
}

// declPosition returns the position of a variable's declaration, across
// the declaration forms go/ast resolves objects to.
func declPosition(obj *ast.Object) token.Pos {
	switch d := obj.Decl.(type) {
	case *ast.ValueSpec:
		return d.Pos()
	case *ast.AssignStmt:
		return d.Pos()
	case *ast.Field:
		return d.Pos()
	case *ast.DeclStmt:
		return d.Pos()
	default:
		return token.NoPos
	}
}

// boundTypeOf reports whether the variable's declared type, or the
// constructor call it was initialized from, names a thread-bound package.
// The returned string describes what matched, for the report.
func (v *spawnVisitor) boundTypeOf(obj *ast.Object) (string, bool) {
	switch d := obj.Decl.(type) {
	case *ast.ValueSpec:
		if d.Type != nil && v.exprNamesBoundPkg(d.Type) {
			return types.ExprString(d.Type), true
		}
		for i, name := range d.Names {
			if name.Obj != obj || i >= len(d.Values) {
				continue
			}
			if call, ok := boundConstructor(d.Values[i], v.boundPkgs); ok {
				return types.ExprString(call.Fun) + " value", true
			}
		}
	case *ast.AssignStmt:
		for i, lhs := range d.Lhs {
			lid, ok := lhs.(*ast.Ident)
			if !ok || lid.Obj != obj {
				continue
			}
			rhs := rhsFor(d, i)
			if rhs == nil {
				continue
			}
			if call, ok := boundConstructor(rhs, v.boundPkgs); ok {
				return types.ExprString(call.Fun) + " value", true
			}
		}
	case *ast.Field:
		if d.Type != nil && v.exprNamesBoundPkg(d.Type) {
			return types.ExprString(d.Type), true
		}
	}
	return "", false
}

// rhsFor maps an assignment's left-hand index to its right-hand expression,
// accounting for the single-call multi-value form.
func rhsFor(a *ast.AssignStmt, i int) ast.Expr {
	if len(a.Rhs) == len(a.Lhs) {
		return a.Rhs[i]
	}
	if len(a.Rhs) == 1 {
		return a.Rhs[0]
	}
	return nil
}

// boundConstructor reports whether expr is a call into a thread-bound
// package (rc.New, rc.NewWithDrop, a method chain rooted there).
func boundConstructor(expr ast.Expr, boundPkgs map[string]bool) (*ast.CallExpr, bool) {
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return nil, false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return nil, false
	}
	switch x := sel.X.(type) {
	case *ast.Ident:
		if x.Obj == nil && boundPkgs[x.Name] {
			return call, true
		}
	case *ast.CallExpr:
		// Chained call: follow the root.
		if root, ok := boundConstructor(x, boundPkgs); ok {
			return root, true
		}
	}
	return nil, false
}

// exprNamesBoundPkg reports whether a type expression mentions a selector
// qualified by one of the thread-bound packages (rc.Rc, *rc.Weak[T], ...).
func (v *spawnVisitor) exprNamesBoundPkg(expr ast.Expr) bool {
	found := false
	ast.Inspect(expr, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if x, ok := sel.X.(*ast.Ident); ok && x.Obj == nil && v.boundPkgs[x.Name] {
			found = true
			return false
		}
		return true
	})
	return found
}
