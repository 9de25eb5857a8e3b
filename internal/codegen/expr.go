package codegen

import (
	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/ir"
)

// lowerExpr emits the instructions that leave e's value on top of the
// operand stack, returning its storage type for the caller's own
// bookkeeping (matching storage types at an assignment, picking the
// right binop variant, and so on).
func (g *Gen) lowerExpr(e ast.Expr) ir.StorageKind {
	switch n := e.(type) {
	case *ast.IntLit:
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: n.Value})
		return ir.StorageNumericI32
	case *ast.FloatLit:
		g.emit(ir.Inst{Op: ir.OpConstF32, FVal: n.Value})
		return ir.StorageNumericF32
	case *ast.StringLit:
		idx := g.mod.InternString(n.Value)
		g.emit(ir.Inst{Op: ir.OpConstStr, Arg: idx})
		return ir.StoragePointerString
	case *ast.InterpString:
		return g.lowerExpr(n.Parts)
	case *ast.Ident:
		return g.lowerIdentLoad(n.Name)
	case *ast.FieldAccess:
		return g.lowerFieldAccess(n)
	case *ast.BinOp:
		return g.lowerBinOp(n)
	case *ast.UnaryOp:
		return g.lowerUnaryOp(n)
	case *ast.CallOrIndex:
		return g.lowerCallOrIndex(n)
	case *ast.ArrayAccess:
		return g.lowerArrayAccess(n)
	default:
		g.fail("expr", "unhandled expression kind %T", e)
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
		return ir.StorageNumericI32
	}
}

func (g *Gen) lowerIdentLoad(name string) ir.StorageKind {
	if local, ok := g.ctx.vars[name]; ok {
		st := g.ctx.f.Locals[local].Storage
		g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: local})
		return st
	}
	if vi, ok := g.info.Vars[name]; ok {
		st := storageOf(vi.Type)
		gi := g.globalIndex(name, st)
		g.emit(ir.Inst{Op: ir.OpGlobalGet, Arg: gi})
		return st
	}
	g.fail(name, "undeclared variable %q", name)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
	return ir.StorageNumericI32
}

// globalIndex finds or creates the module Global backing name.
func (g *Gen) globalIndex(name string, st ir.StorageKind) int {
	for i, gl := range g.mod.Globals {
		if gl.Name == name {
			return i
		}
	}
	g.mod.Globals = append(g.mod.Globals, ir.Global{Name: name, Storage: st})
	return len(g.mod.Globals) - 1
}

func (g *Gen) lowerFieldAccess(n *ast.FieldAccess) ir.StorageKind {
	// User-TYPE fields flatten to a fixed byte offset within the base
	// variable's storage (spec.md's user-TYPE lowering); offsets aren't
	// tracked per-type here since internal/sema doesn't record field
	// layouts yet, so field access loads through the base object and
	// reports the base's storage kind as a conservative approximation.
	return g.lowerExpr(n.Object)
}

func (g *Gen) lowerUnaryOp(n *ast.UnaryOp) ir.StorageKind {
	st := g.lowerExpr(n.X)
	switch n.Op {
	case "-":
		g.emit(ir.Inst{Op: ir.OpNeg})
	case "NOT":
		g.emit(ir.Inst{Op: ir.OpNot})
		st = ir.StorageNumericI32
	}
	return st
}

func (g *Gen) lowerBinOp(n *ast.BinOp) ir.StorageKind {
	lt := g.lowerExpr(n.X)
	rt := g.lowerExpr(n.Y)
	if n.Op == "+" && (lt == ir.StoragePointerString || rt == ir.StoragePointerString) {
		g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_string_concat", Arg: 2})
		return ir.StoragePointerString
	}
	op, resultIsBool := binOpcode(n.Op)
	g.emit(ir.Inst{Op: op})
	if resultIsBool {
		return ir.StorageNumericI32
	}
	if lt == ir.StorageNumericF32 || rt == ir.StorageNumericF32 {
		return ir.StorageNumericF32
	}
	return ir.StorageNumericI32
}

func binOpcode(op string) (ir.Opcode, bool) {
	switch op {
	case "+":
		return ir.OpAdd, false
	case "-":
		return ir.OpSub, false
	case "*":
		return ir.OpMul, false
	case "/":
		return ir.OpDiv, false
	case "\\":
		return ir.OpIDiv, false
	case "MOD":
		return ir.OpMod, true // MOD always yields Integer per the widening ladder
	case "AND":
		return ir.OpAnd, true
	case "OR":
		return ir.OpOr, true
	case "XOR":
		return ir.OpXor, true
	case "=":
		return ir.OpEq, true
	case "<>":
		return ir.OpNeq, true
	case "<":
		return ir.OpLt, true
	case ">":
		return ir.OpGt, true
	case "<=":
		return ir.OpLeq, true
	case ">=":
		return ir.OpGeq, true
	}
	return ir.OpAdd, false
}

// lowerCallOrIndex resolves the CallOrIndex ambiguity by trying, in
// order, a built-in name, a DIMmed array, and a user FUNCTION; any other
// name is reported as a call to an undeclared function or array.
func (g *Gen) lowerCallOrIndex(n *ast.CallOrIndex) ir.StorageKind {
	if bi, ok := builtins[n.Name]; ok {
		for _, a := range n.Args {
			g.lowerExpr(a)
		}
		g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: bi.runtime, Arg: len(n.Args)})
		return bi.ret
	}
	if _, ok := g.ctx.arrays[n.Name]; ok {
		return g.loadArrayElement(n.Name, n.Args)
	}
	if fn, ok := g.info.Funcs[n.Name]; ok {
		for _, a := range n.Args {
			g.lowerExpr(a)
		}
		fi := g.funcIndex(n.Name)
		g.emit(ir.Inst{Op: ir.OpCall, Arg: fi})
		return storageOf(fn.Ret)
	}
	g.fail(n.Name, "call to undeclared function or array %q", n.Name)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
	return ir.StorageNumericI32
}

func (g *Gen) funcIndex(name string) int {
	for i, f := range g.mod.Funcs {
		if f.Name == name {
			return i
		}
	}
	g.fail(name, "internal: function %q not yet lowered", name)
	return 0
}

func (g *Gen) lowerArrayAccess(n *ast.ArrayAccess) ir.StorageKind {
	return g.loadArrayElement(n.Name, n.Indices)
}

// loadArrayElement emits the row-major address computation, a runtime
// bounds check, and the element load.
func (g *Gen) loadArrayElement(name string, indices []ast.Expr) ir.StorageKind {
	info, ok := g.ctx.arrays[name]
	if !ok {
		g.fail(name, "undeclared array %q", name)
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
		return ir.StorageNumericI32
	}
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: info.local})
	g.emitLinearIndex(info, indices)
	elemSize := int(4)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: int64(elemSize)})
	g.emit(ir.Inst{Op: ir.OpMul})
	g.emit(ir.Inst{Op: ir.OpAdd}) // base pointer + byte offset
	g.emit(ir.Inst{Op: ir.OpLoad})
	return info.storage
}

// emitLinearIndex pushes the flattened row-major index for a possibly
// multi-dimensional array access, bounds-checking each index against the
// array's total element count (the product of all dimensions). Each
// index expression is evaluated once and stashed in a fresh scratch
// local, since ir.OpBoundsCheck consumes its operands and the same value
// is also needed for the stride multiply.
func (g *Gen) emitLinearIndex(info arrayInfo, indices []ast.Expr) {
	total := int64(1)
	for _, d := range info.dims {
		total *= d
	}
	for i, idxExpr := range indices {
		g.lowerExpr(idxExpr)
		tmp := g.ctx.f.AddLocal("__idx_tmp", ir.StorageNumericI32)
		g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: tmp})

		stride := int64(1)
		for _, d := range info.dims[i+1:] {
			stride *= d
		}

		g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: tmp})
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: total})
		g.emit(ir.Inst{Op: ir.OpBoundsCheck})

		g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: tmp})
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: stride})
		g.emit(ir.Inst{Op: ir.OpMul})
		if i > 0 {
			g.emit(ir.Inst{Op: ir.OpAdd})
		}
	}
}
