// Package codegen lowers a parsed, analyzed program into an internal/ir
// Module: one ir.Func for the top-level statement stream ("main") and one
// per user SUB/FUNCTION, following the per-statement-kind lowering method
// the teacher's Compiler.compileFunc/compileIf/compileFor use (legacy/
// compiler/ir.go), generalized from the teacher's Go-subset AST to BASIC's.
package codegen

import (
	"fmt"

	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/ir"
	"github.com/parisxmas/esp32basic/internal/sema"
	"github.com/samber/lo"
)

// arrayInfo records an array local's element count and storage kind so
// ArrayAssign/CallOrIndex lowering can bounds-check and address it.
type arrayInfo struct {
	local   int
	dims    []int64 // resolved dimension sizes, row-major
	storage ir.StorageKind
}

// loopFrame is one entry of the EXIT FOR/EXIT DO scope stack.
type loopFrame struct {
	isFor     bool
	exitBlock int
}

// genCtx is the per-function generation context spec.md §4.5 requires to
// be saved before entering and restored after leaving a SUB/FUNCTION body.
type genCtx struct {
	f             *ir.Func
	vars          map[string]int
	arrays        map[string]arrayInfo
	labelBlocks   map[string]int
	pendingGotos  []pendingGoto
	loopExit      []loopFrame
	hasGosub      bool
	gosubSlot     int
	dispatchBlock int
	returnSites   map[int]int // ordinal -> resume block index
	nextGosubOrd  int
	exitBlock     int
	retType       ast.QBType
	hasRetType    bool
	termed        map[int]bool
}

type pendingGoto struct {
	block int // block whose Term needs patching once the label resolves
	label string
}

// Gen drives AST-to-IR lowering for one compilation unit.
type Gen struct {
	mod    *ir.Module
	info   *sema.Info
	ctx    *genCtx
	curIdx int // index of the block lowering is currently appending to
	errs   []error
}

// New returns a Gen ready to lower prog, using info from a prior
// sema.Analyze pass for variable/array/sub/function metadata.
func New(info *sema.Info) *Gen {
	return &Gen{mod: ir.NewModule(), info: info}
}

// Compile lowers the whole program: top-level statements into a "main"
// Func, then every SUB/FUNCTION into its own Func. Returns the completed,
// validated module, or the accumulated lowering errors.
func Compile(prog *ast.Program, info *sema.Info) (*ir.Module, []error) {
	g := New(info)
	g.buildDataPool(prog)

	main := g.mod.NewFunc("main")
	g.pushCtx(main, ast.QBType{}, false)
	g.lowerBlock(prog.TopLevel)
	g.finishFunc()
	g.popCtx()

	for _, sub := range prog.Subs {
		f := g.mod.NewFunc(sub.Name)
		g.pushCtx(f, ast.QBType{}, false)
		for _, p := range sub.Params {
			g.ctx.vars[p.Name] = f.AddLocal(p.Name, storageOf(p.Type))
			f.Params++
		}
		g.lowerBlock(sub.Body)
		g.finishFunc()
		g.popCtx()
	}
	for _, fn := range prog.Functions {
		f := g.mod.NewFunc(fn.Name)
		g.pushCtx(f, fn.Ret, true)
		for _, p := range fn.Params {
			g.ctx.vars[p.Name] = f.AddLocal(p.Name, storageOf(p.Type))
			f.Params++
		}
		g.lowerBlock(fn.Body)
		g.finishFunc()
		g.popCtx()
	}

	if len(g.errs) > 0 {
		return nil, g.errs
	}
	if err := g.mod.Validate(); err != nil {
		return nil, []error{err}
	}
	return g.mod, nil
}

func storageOf(t ast.QBType) ir.StorageKind {
	switch t.Storage() {
	case ast.StorageNumericI32:
		return ir.StorageNumericI32
	case ast.StorageNumericF32:
		return ir.StorageNumericF32
	default:
		return ir.StoragePointerString
	}
}

func (g *Gen) fail(span string, format string, args ...interface{}) {
	g.errs = append(g.errs, fmt.Errorf("%s: %s", span, fmt.Sprintf(format, args...)))
}

// pushCtx starts a fresh context for f, replacing g.ctx. Nothing is
// saved: SUB/FUNCTION bodies don't nest, and every caller pairs it with
// popCtx before the next pushCtx.
func (g *Gen) pushCtx(f *ir.Func, retType ast.QBType, hasRet bool) {
	g.ctx = &genCtx{
		f:           f,
		vars:        map[string]int{},
		arrays:      map[string]arrayInfo{},
		labelBlocks: map[string]int{},
		returnSites: map[int]int{},
		retType:     retType,
		hasRetType:  hasRet,
		termed:      map[int]bool{},
	}
	g.ctx.exitBlock = f.NewBlock()
	g.curIdx = f.NewBlock()
}

// popCtx clears the context, leaving the generator with no active
// function, so nothing leaks into the next pushCtx. GOSUB dispatch wiring
// is done earlier, by finishFunc.
func (g *Gen) popCtx() {
	g.ctx = nil
}

func (g *Gen) curBlock() *ir.Block { return g.ctx.f.Block(g.curIdx) }

func (g *Gen) emit(inst ir.Inst) {
	b := g.ctx.f.Block(g.curIdx)
	b.Insts = append(b.Insts, inst)
}

func (g *Gen) newBlock() int { return g.ctx.f.NewBlock() }

func (g *Gen) setCur(idx int) { g.curIdx = idx }

func (g *Gen) branchTo(target int) {
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermBranch, Target: target})
}

// setTerm sets block idx's terminator and records it as terminated, so
// finishFunc/lowering never mistakes a genuinely empty-but-terminated
// block for one lowering simply fell off the end of.
func (g *Gen) setTerm(idx int, t ir.Term) {
	g.ctx.f.Block(idx).Term = t
	g.ctx.termed[idx] = true
}

// finishFunc closes out the function: if lowering fell through without an
// explicit END/RETURN, branch into the exit block; builds the GOSUB
// dispatch block if the function used GOSUB at all (spec.md §4.5's
// "dispatch block is omitted if has_gosub is false").
func (g *Gen) finishFunc() {
	f := g.ctx.f
	if g.curIdx != g.ctx.exitBlock && !g.ctx.termed[g.curIdx] {
		g.branchTo(g.ctx.exitBlock)
	}
	g.setTerm(g.ctx.exitBlock, ir.Term{Kind: ir.TermReturn, HasValue: g.ctx.hasRetType})

	if g.ctx.hasGosub {
		dispatch := g.ctx.dispatchBlock
		cases := map[int64]int{}
		for ord, block := range g.ctx.returnSites {
			cases[int64(ord)] = block
		}
		g.setTerm(dispatch, ir.Term{Kind: ir.TermSwitch, Cases: cases, Default: g.ctx.exitBlock})
	}
}

func (g *Gen) ensureDispatchBlock() int {
	if !g.ctx.hasGosub {
		g.ctx.hasGosub = true
		g.ctx.gosubSlot = g.ctx.f.AddLocal("__gosub_ret", ir.StorageNumericI32)
		g.ctx.dispatchBlock = g.newBlock()
	}
	return g.ctx.dispatchBlock
}

func (g *Gen) labelBlock(name string) int {
	if b, ok := g.ctx.labelBlocks[name]; ok {
		return b
	}
	b := g.newBlock()
	g.ctx.labelBlocks[name] = b
	return b
}

// buildDataPool flattens every DATA statement across the whole program
// (spec.md §3: "DATA items discovered by the analyzer are pooled") into
// the module's parallel constant-global convention.
func (g *Gen) buildDataPool(prog *ast.Program) {
	var walk func(stmts []ast.Stmt)
	walk = func(stmts []ast.Stmt) {
		for _, s := range stmts {
			switch n := s.(type) {
			case *ast.Data:
				for _, item := range n.Items {
					switch item.Kind {
					case ast.DataInt:
						g.mod.Data = append(g.mod.Data, ir.DataEntry{Kind: ir.DataInt, IVal: item.IntVal})
					case ast.DataFloat:
						g.mod.Data = append(g.mod.Data, ir.DataEntry{Kind: ir.DataFloat, FVal: item.FloatVal})
					case ast.DataString:
						g.mod.Data = append(g.mod.Data, ir.DataEntry{Kind: ir.DataString, SVal: item.StringVal})
					}
				}
			case *ast.If:
				walk(n.Then)
				for _, ei := range n.ElseIfs {
					walk(ei.Body)
				}
				walk(n.Else)
			case *ast.For:
				walk(n.Body)
			case *ast.ForEach:
				walk(n.Body)
			case *ast.DoLoop:
				walk(n.Body)
			case *ast.While:
				walk(n.Body)
			case *ast.SelectCase:
				for _, c := range n.Clauses {
					walk(c.Body)
				}
			case *ast.Task:
				walk(n.Body)
			case *ast.TryCatch:
				walk(n.TryBody)
				walk(n.CatchBody)
			}
		}
	}
	walk(prog.TopLevel)
	lo.ForEach(prog.Subs, func(s *ast.SubDecl, _ int) { walk(s.Body) })
	lo.ForEach(prog.Functions, func(f *ast.FuncDecl, _ int) { walk(f.Body) })

	if len(g.mod.Data) > 0 {
		g.mod.Globals = append(g.mod.Globals,
			ir.Global{Name: "rb_data_types", Storage: ir.StorageNumericI32},
			ir.Global{Name: "rb_data_ints", Storage: ir.StorageNumericI32},
			ir.Global{Name: "rb_data_floats", Storage: ir.StorageNumericF32},
			ir.Global{Name: "rb_data_strings", Storage: ir.StoragePointerString},
			ir.Global{Name: "rb_data_count", Storage: ir.StorageNumericI32},
		)
	}
}
