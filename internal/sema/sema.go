// Package sema resolves and type-checks an ast.Program: building symbol
// tables for variables/subs/functions/types/labels, applying the
// auto-declare rule, resolving GOTO/GOSUB targets, and widening expression
// types. It never mutates the AST; results are returned as a separate
// Info value consumed by internal/codegen.
package sema

import (
	"fmt"

	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/samber/lo"
)

// VarInfo is what sema knows about one auto-declared or DIMmed variable.
type VarInfo struct {
	Name    string
	Type    ast.QBType
	IsArray bool
	Dims    int
}

// SubInfo/FuncInfo record arity for call-site checking.
type SubInfo struct {
	Name   string
	Params []ast.Param
}

type FuncInfo struct {
	Name   string
	Params []ast.Param
	Ret    ast.QBType
}

// Info is the result of analyzing a Program: every fact internal/codegen
// needs without re-walking the AST's declaration surface.
type Info struct {
	Vars       map[string]*VarInfo
	Subs       map[string]*SubInfo
	Funcs      map[string]*FuncInfo
	Types      map[string]*ast.TypeDecl
	Labels     map[string]bool
	UserArrays map[string]bool // Name -> true if resolved as an array (vs. a call)
}

// analyzer walks a Program accumulating errors rather than stopping at the
// first one, per spec's "run to completion, collect all errors" policy
// (mirrored from original_source's sema pass).
type analyzer struct {
	info   *Info
	scopes []map[string]*VarInfo
	errs   []error
}

// Analyze runs every pass over prog and returns the accumulated Info, or
// every error found across all passes.
func Analyze(prog *ast.Program) (*Info, []error) {
	a := &analyzer{
		info: &Info{
			Vars:       map[string]*VarInfo{},
			Subs:       map[string]*SubInfo{},
			Funcs:      map[string]*FuncInfo{},
			Types:      map[string]*ast.TypeDecl{},
			Labels:     map[string]bool{},
			UserArrays: map[string]bool{},
		},
	}
	a.pushScope()

	// Pass 1: collect SUB/FUNCTION/TYPE declarations (arity, return type).
	for _, td := range prog.Types {
		a.info.Types[td.Name] = td
	}
	for _, sub := range prog.Subs {
		a.info.Subs[sub.Name] = &SubInfo{Name: sub.Name, Params: sub.Params}
	}
	for _, fn := range prog.Functions {
		a.info.Funcs[fn.Name] = &FuncInfo{Name: fn.Name, Params: fn.Params, Ret: fn.Ret}
	}

	// Pass 2: collect every label across top-level code and every
	// SUB/FUNCTION body into one set for the whole compilation unit; label
	// references are resolved against that set, not per body.
	a.collectLabels(prog.TopLevel)
	for _, sub := range prog.Subs {
		a.collectLabels(sub.Body)
	}
	for _, fn := range prog.Functions {
		a.collectLabels(fn.Body)
	}

	// Pass 3: auto-declare + type-check top-level code.
	a.walkStmts(prog.TopLevel)

	// Pass 4: check each SUB/FUNCTION body in its own scope, parameters
	// pre-declared.
	for _, sub := range prog.Subs {
		a.pushScope()
		for _, p := range sub.Params {
			a.declare(p.Name, p.Type)
		}
		a.walkStmts(sub.Body)
		a.popScope()
	}
	for _, fn := range prog.Functions {
		a.pushScope()
		for _, p := range fn.Params {
			a.declare(p.Name, p.Type)
		}
		// The function name itself is an implicit return-value local.
		a.declare(fn.Name, fn.Ret)
		a.walkStmts(fn.Body)
		a.popScope()
	}

	// Pass 5: GOTO/GOSUB/RESTORE label-resolution check, now that every
	// label in every body has been collected.
	a.checkLabelRefs(prog.TopLevel)
	for _, sub := range prog.Subs {
		a.checkLabelRefs(sub.Body)
	}
	for _, fn := range prog.Functions {
		a.checkLabelRefs(fn.Body)
	}

	// Pass 6: duplicate SUB/FUNCTION name check.
	a.checkDuplicateNames(prog)

	// Pass 7: EXIT-scope validation (EXIT FOR/DO only inside the matching
	// loop, EXIT SUB/FUNCTION only inside the matching body).
	a.checkExitScopes(prog)

	return a.info, a.errs
}

func (a *analyzer) fail(format string, args ...interface{}) {
	a.errs = append(a.errs, fmt.Errorf(format, args...))
}

func (a *analyzer) pushScope() { a.scopes = append(a.scopes, map[string]*VarInfo{}) }
func (a *analyzer) popScope() {
	if len(a.scopes) > 0 {
		a.scopes = a.scopes[:len(a.scopes)-1]
	}
}

// declare auto-declares name with the given type if it is not already
// known in any enclosing scope, per spec's auto-declare rule: first use
// wins. Once a variable's storage type is concrete, a later use at a
// different storage type is a monotonicity violation rather than a
// silent reuse; Inferred stays compatible with anything and is refined
// to the first concrete type observed.
func (a *analyzer) declare(name string, t ast.QBType) *VarInfo {
	if v, ok := a.lookup(name); ok {
		switch {
		case v.Type.Kind == ast.TInferred:
			v.Type = t
		case t.Kind != ast.TInferred && v.Type.Storage() != t.Storage():
			a.fail("cannot assign %s value to %s variable %s", storageWord(t.Storage()), storageWord(v.Type.Storage()), sigilName(name, v.Type))
		}
		return v
	}
	v := &VarInfo{Name: name, Type: t}
	a.scopes[len(a.scopes)-1][name] = v
	a.info.Vars[name] = v
	return v
}

// storageWord renders a StorageKind the way spec.md's error scenarios do:
// "numeric" or "string".
func storageWord(s ast.StorageKind) string {
	if s == ast.StoragePointerString {
		return "string"
	}
	return "numeric"
}

// sigilName renders name with the sigil implied by t, matching how the
// offending identifier would actually appear in source (spec.md's
// scenario 3: "variable X$").
func sigilName(name string, t ast.QBType) string {
	switch t.Kind {
	case ast.TInteger:
		return name + "%"
	case ast.TLong:
		return name + "&"
	case ast.TSingle:
		return name + "!"
	case ast.TDouble:
		return name + "#"
	case ast.TString:
		return name + "$"
	default:
		return name
	}
}

func (a *analyzer) lookup(name string) (*VarInfo, bool) {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		if v, ok := a.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (a *analyzer) collectLabels(body []ast.Stmt) {
	for _, s := range body {
		switch n := s.(type) {
		case *ast.Label:
			a.info.Labels[n.Name] = true
		case *ast.If:
			a.collectLabels(n.Then)
			for _, ei := range n.ElseIfs {
				a.collectLabels(ei.Body)
			}
			a.collectLabels(n.Else)
		case *ast.For:
			a.collectLabels(n.Body)
		case *ast.ForEach:
			a.collectLabels(n.Body)
		case *ast.DoLoop:
			a.collectLabels(n.Body)
		case *ast.While:
			a.collectLabels(n.Body)
		case *ast.SelectCase:
			for _, c := range n.Clauses {
				a.collectLabels(c.Body)
			}
		case *ast.TryCatch:
			a.collectLabels(n.TryBody)
			a.collectLabels(n.CatchBody)
		case *ast.Task:
			a.collectLabels(n.Body)
		}
	}
}

// checkLabelRefs walks the same tree looking for Goto/Gosub/OnGoto/OnGosub/
// OnEvent/Restore/OnErrorGoto targets that were not found by collectLabels.
func (a *analyzer) checkLabelRefs(body []ast.Stmt) {
	for _, s := range body {
		switch n := s.(type) {
		case *ast.Goto:
			a.requireLabel(n.Target)
		case *ast.Gosub:
			a.requireLabel(n.Target)
		case *ast.OnGoto:
			lo.ForEach(n.Targets, func(t string, _ int) { a.requireLabel(t) })
		case *ast.OnGosub:
			lo.ForEach(n.Targets, func(t string, _ int) { a.requireLabel(t) })
		case *ast.OnEvent:
			a.requireLabel(n.Target)
		case *ast.OnErrorGoto:
			if n.Target != "0" {
				a.requireLabel(n.Target)
			}
		case *ast.Restore:
			if n.Label != "" {
				a.requireLabel(n.Label)
			}
		case *ast.If:
			a.checkLabelRefs(n.Then)
			for _, ei := range n.ElseIfs {
				a.checkLabelRefs(ei.Body)
			}
			a.checkLabelRefs(n.Else)
		case *ast.For:
			a.checkLabelRefs(n.Body)
		case *ast.ForEach:
			a.checkLabelRefs(n.Body)
		case *ast.DoLoop:
			a.checkLabelRefs(n.Body)
		case *ast.While:
			a.checkLabelRefs(n.Body)
		case *ast.SelectCase:
			for _, c := range n.Clauses {
				a.checkLabelRefs(c.Body)
			}
		case *ast.TryCatch:
			a.checkLabelRefs(n.TryBody)
			a.checkLabelRefs(n.CatchBody)
		case *ast.Task:
			a.checkLabelRefs(n.Body)
		}
	}
}

func (a *analyzer) requireLabel(name string) {
	if !a.info.Labels[name] {
		a.fail("undefined label %q", name)
	}
}

func (a *analyzer) checkDuplicateNames(prog *ast.Program) {
	seen := map[string]bool{}
	for _, sub := range prog.Subs {
		if seen[sub.Name] {
			a.fail("duplicate SUB %q", sub.Name)
		}
		seen[sub.Name] = true
	}
	for _, fn := range prog.Functions {
		if seen[fn.Name] {
			a.fail("duplicate FUNCTION %q", fn.Name)
		}
		seen[fn.Name] = true
	}
}

// checkExitScopes validates that every Exit statement sits inside a loop
// (EXIT FOR/DO) or SUB/FUNCTION body (EXIT SUB/FUNCTION) of the matching
// kind, using a small enclosing-scope-kind stack.
func (a *analyzer) checkExitScopes(prog *ast.Program) {
	a.walkExitScope(prog.TopLevel, nil)
	for _, sub := range prog.Subs {
		a.walkExitScope(sub.Body, []ast.ExitKind{ast.ExitSub})
	}
	for _, fn := range prog.Functions {
		a.walkExitScope(fn.Body, []ast.ExitKind{ast.ExitFunction})
	}
}

func (a *analyzer) walkExitScope(body []ast.Stmt, enclosing []ast.ExitKind) {
	for _, s := range body {
		switch n := s.(type) {
		case *ast.Exit:
			if !lo.Contains(enclosing, n.Kind) {
				a.fail("EXIT used outside matching FOR/DO/SUB/FUNCTION")
			}
		case *ast.If:
			a.walkExitScope(n.Then, enclosing)
			for _, ei := range n.ElseIfs {
				a.walkExitScope(ei.Body, enclosing)
			}
			a.walkExitScope(n.Else, enclosing)
		case *ast.For:
			a.walkExitScope(n.Body, append(append([]ast.ExitKind{}, enclosing...), ast.ExitFor))
		case *ast.ForEach:
			a.walkExitScope(n.Body, append(append([]ast.ExitKind{}, enclosing...), ast.ExitFor))
		case *ast.DoLoop:
			a.walkExitScope(n.Body, append(append([]ast.ExitKind{}, enclosing...), ast.ExitDo))
		case *ast.While:
			a.walkExitScope(n.Body, append(append([]ast.ExitKind{}, enclosing...), ast.ExitDo))
		case *ast.SelectCase:
			for _, c := range n.Clauses {
				a.walkExitScope(c.Body, enclosing)
			}
		case *ast.TryCatch:
			a.walkExitScope(n.TryBody, enclosing)
			a.walkExitScope(n.CatchBody, enclosing)
		case *ast.Task:
			a.walkExitScope(n.Body, enclosing)
		}
	}
}
