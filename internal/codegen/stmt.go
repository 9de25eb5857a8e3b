package codegen

import (
	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/ir"
)

// lowerBlock lowers a straight-line statement list into the current block,
// branching into new blocks as control-flow statements require.
func (g *Gen) lowerBlock(stmts []ast.Stmt) {
	for _, s := range stmts {
		g.lowerStmt(s)
	}
}

func (g *Gen) lowerStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.Dim:
		g.lowerDim(n)
	case *ast.Const:
		g.lowerConst(n)
	case *ast.Let:
		st := g.lowerExpr(n.Value)
		g.storeIdent(n.Name, st)
	case *ast.FieldAssign:
		// Field layouts aren't tracked (see lowerFieldAccess); store
		// through the base object as a conservative approximation.
		st := g.lowerExpr(n.Value)
		g.storeIdent(n.Object, st)
	case *ast.ArrayAssign:
		g.lowerArrayAssign(n)

	case *ast.Print:
		g.lowerPrint(n)
	case *ast.PrintUsing:
		g.lowerPrintUsing(n)
	case *ast.Input:
		g.lowerInput(n)
	case *ast.LineInput:
		g.lowerLineInput(n)

	case *ast.If:
		g.lowerIf(n)
	case *ast.For:
		g.lowerFor(n)
	case *ast.ForEach:
		g.lowerForEach(n)
	case *ast.DoLoop:
		g.lowerDoLoop(n)
	case *ast.While:
		g.lowerWhile(n)
	case *ast.SelectCase:
		g.lowerSelectCase(n)

	case *ast.Label:
		b := g.labelBlock(n.Name)
		g.branchTo(b)
		g.setCur(b)
	case *ast.Goto:
		g.branchTo(g.labelBlock(n.Target))
		g.setCur(g.newBlock()) // unreachable tail, kept terminated below
		g.setTerm(g.curIdx, ir.Term{Kind: ir.TermUnreachable})
	case *ast.Gosub:
		g.lowerGosub(n)
	case *ast.Return:
		g.lowerReturn(n)
	case *ast.End:
		g.setTerm(g.curIdx, ir.Term{Kind: ir.TermReturn, HasValue: false})
		g.setCur(g.newBlock())
		g.setTerm(g.curIdx, ir.Term{Kind: ir.TermUnreachable})
	case *ast.Exit:
		g.lowerExit(n)
	case *ast.OnGoto:
		g.lowerOnGoto(n)
	case *ast.OnGosub:
		g.lowerOnGosub(n)
	case *ast.OnErrorGoto:
		g.lowerOnErrorGoto(n)

	case *ast.Data:
		// Collected up front by buildDataPool; nothing to lower here.
	case *ast.Read:
		g.lowerRead(n)
	case *ast.Restore:
		g.lowerRestore(n)

	case *ast.DefFn:
		// No IR is emitted for DEF FN: lowerCallOrIndex has no DEF FN
		// branch, so a call to one is reported as a call to an undeclared
		// function.
	case *ast.Swap:
		g.lowerSwap(n)
	case *ast.Randomize:
		g.lowerRandomize(n)
	case *ast.Assert:
		g.lowerAssert(n)
	case *ast.TryCatch:
		g.lowerTryCatch(n)

	case *ast.Task:
		g.lowerTask(n)
	case *ast.OnEvent:
		g.lowerOnEvent(n)
	case *ast.MachineEvent:
		g.lowerMachineEvent(n)

	case *ast.CallSub:
		g.lowerCallSub(n)
	case *ast.HWStmt:
		g.lowerHWStmt(n)

	default:
		g.fail("stmt", "unhandled statement kind %T", s)
	}
}

// storeIdent emits the store half of an assignment: a local if name is
// bound in the current function scope, otherwise the module-level global
// internal/sema resolved it to (mirrors lowerIdentLoad's resolution order).
func (g *Gen) storeIdent(name string, st ir.StorageKind) {
	if local, ok := g.ctx.vars[name]; ok {
		g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: local})
		return
	}
	if _, ok := g.info.Vars[name]; ok {
		gi := g.globalIndex(name, st)
		g.emit(ir.Inst{Op: ir.OpGlobalSet, Arg: gi})
		return
	}
	g.fail(name, "assignment to undeclared variable %q", name)
	g.emit(ir.Inst{Op: ir.OpDrop})
}

func (g *Gen) lowerDim(n *ast.Dim) {
	for _, item := range n.Items {
		st := storageOf(item.Type)
		if len(item.Dims) == 0 {
			g.ctx.vars[item.Name] = g.ctx.f.AddLocal(item.Name, st)
			continue
		}
		dims := make([]int64, 0, len(item.Dims))
		total := int64(1)
		for _, d := range item.Dims {
			n, ok := constInt(d)
			if !ok {
				g.fail(item.Name, "array dimension for %q is not a compile-time constant", item.Name)
				n = 1
			}
			dims = append(dims, n)
			total *= n
		}
		local := g.ctx.f.AddLocal(item.Name, ir.StorageNumericI32) // holds the base pointer
		g.emit(ir.Inst{Op: ir.OpArrayAlloc, Arg: int(total)})
		g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: local})
		g.ctx.arrays[item.Name] = arrayInfo{local: local, dims: dims, storage: st}
	}
}

// constInt evaluates a compile-time-constant integer dimension expression.
// DIM bounds are always literals or simple constant arithmetic in practice;
// anything richer is out of scope for this array model.
func constInt(e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.IntLit:
		return n.Value, true
	case *ast.UnaryOp:
		if n.Op == "-" {
			if v, ok := constInt(n.X); ok {
				return -v, true
			}
		}
	case *ast.BinOp:
		l, lok := constInt(n.X)
		r, rok := constInt(n.Y)
		if lok && rok {
			switch n.Op {
			case "+":
				return l + r, true
			case "-":
				return l - r, true
			case "*":
				return l * r, true
			}
		}
	}
	return 0, false
}

func (g *Gen) lowerConst(n *ast.Const) {
	st := g.lowerExpr(n.Value)
	g.storeIdent(n.Name, st)
}

func (g *Gen) lowerArrayAssign(n *ast.ArrayAssign) {
	info, ok := g.ctx.arrays[n.Name]
	if !ok {
		g.fail(n.Name, "assignment to undeclared array %q", n.Name)
		return
	}
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: info.local})
	g.emitLinearIndex(info, n.Indices)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 4})
	g.emit(ir.Inst{Op: ir.OpMul})
	g.emit(ir.Inst{Op: ir.OpAdd}) // base pointer + byte offset
	if info.storage == ir.StoragePointerString {
		// Release the string the element held before it is overwritten.
		addr := g.ctx.f.AddLocal("__elem_addr", ir.StorageNumericI32)
		g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: addr})
		g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: addr})
		g.emit(ir.Inst{Op: ir.OpLoad})
		g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_string_release", Arg: 1})
		g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: addr})
	}
	g.lowerExpr(n.Value)
	g.emit(ir.Inst{Op: ir.OpStore})
}

func (g *Gen) lowerPrint(n *ast.Print) {
	for _, item := range n.Items {
		if item.Expr == nil {
			if item.Comma {
				g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_print_tab", Arg: 0})
			}
			continue
		}
		st := g.lowerExpr(item.Expr)
		switch st {
		case ir.StorageNumericI32:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_print_int", Arg: 1})
		case ir.StorageNumericF32:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_print_float", Arg: 1})
		default:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_print_string", Arg: 1})
		}
	}
	if !n.TrailingSemi {
		g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_print_newline", Arg: 0})
	}
}

func (g *Gen) lowerPrintUsing(n *ast.PrintUsing) {
	g.lowerExpr(n.Format)
	for _, it := range n.Items {
		g.lowerExpr(it)
	}
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_print_using", Arg: len(n.Items) + 1})
}

func (g *Gen) lowerInput(n *ast.Input) {
	if n.Prompt != nil {
		g.lowerExpr(n.Prompt)
		g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_print_string", Arg: 1})
	}
	for _, v := range n.Vars {
		st := g.varStorage(v)
		switch st {
		case ir.StorageNumericI32:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_fn_input_int", Arg: 0})
		case ir.StorageNumericF32:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_fn_input_float", Arg: 0})
		default:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_fn_input_string", Arg: 0})
		}
		g.storeIdent(v, st)
	}
}

func (g *Gen) lowerLineInput(n *ast.LineInput) {
	if n.Prompt != nil {
		g.lowerExpr(n.Prompt)
		g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_print_string", Arg: 1})
	}
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_fn_input_string", Arg: 0})
	g.storeIdent(n.Var, ir.StoragePointerString)
}

// varStorage reports what storage kind assigning to name would use, without
// emitting anything, consulting locals first then the global symbol table.
func (g *Gen) varStorage(name string) ir.StorageKind {
	if local, ok := g.ctx.vars[name]; ok {
		return g.ctx.f.Locals[local].Storage
	}
	if vi, ok := g.info.Vars[name]; ok {
		return storageOf(vi.Type)
	}
	return ir.StorageNumericF32
}

func (g *Gen) lowerIf(n *ast.If) {
	endBlock := g.newBlock()
	g.lowerIfChain(n.Cond, n.Then, n.ElseIfs, n.Else, endBlock)
	g.setCur(endBlock)
}

// lowerIfChain lowers one IF/ELSEIF level, recursing into the remaining
// ElseIfs so the chain reads as nested binary ifs (matches the teacher's
// compileIf shape, generalized to BASIC's flat ElseIfClause list).
func (g *Gen) lowerIfChain(cond ast.Expr, then []ast.Stmt, elseIfs []ast.ElseIfClause, els []ast.Stmt, endBlock int) {
	thenBlock := g.newBlock()
	elseBlock := g.newBlock()
	g.lowerExpr(cond)
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: thenBlock, Else: elseBlock})

	g.setCur(thenBlock)
	g.lowerBlock(then)
	if !g.ctx.termed[g.curIdx] {
		g.branchTo(endBlock)
	}

	g.setCur(elseBlock)
	if len(elseIfs) > 0 {
		g.lowerIfChain(elseIfs[0].Cond, elseIfs[0].Body, elseIfs[1:], els, endBlock)
		return
	}
	g.lowerBlock(els)
	if !g.ctx.termed[g.curIdx] {
		g.branchTo(endBlock)
	}
}

func (g *Gen) lowerFor(n *ast.For) {
	fromSt := g.lowerExpr(n.From)
	loopVar, ok := g.ctx.vars[n.Var]
	if !ok {
		loopVar = g.ctx.f.AddLocal(n.Var, fromSt)
		g.ctx.vars[n.Var] = loopVar
	}
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: loopVar})

	// STEP is evaluated once at loop entry, matching BASIC's fixed-STEP
	// semantics (not re-evaluated per iteration) and giving the header a
	// stable value to test the sign of.
	stepLocal := g.ctx.f.AddLocal("__for_step", ir.StorageNumericI32)
	if n.Step != nil {
		g.lowerExpr(n.Step)
	} else {
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 1})
	}
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: stepLocal})

	toLocal := g.ctx.f.AddLocal("__for_to", fromSt)
	g.lowerExpr(n.To)
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: toLocal})

	headerBlock := g.newBlock()
	ascTestBlock := g.newBlock()
	descTestBlock := g.newBlock()
	bodyBlock := g.newBlock()
	exitBlock := g.newBlock()
	g.branchTo(headerBlock)

	// header: step >= 0 ? ascTest : descTest
	g.setCur(headerBlock)
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: stepLocal})
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
	g.emit(ir.Inst{Op: ir.OpGeq})
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: ascTestBlock, Else: descTestBlock})

	g.setCur(ascTestBlock)
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: loopVar})
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: toLocal})
	g.emit(ir.Inst{Op: ir.OpLeq})
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: bodyBlock, Else: exitBlock})

	g.setCur(descTestBlock)
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: loopVar})
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: toLocal})
	g.emit(ir.Inst{Op: ir.OpGeq})
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: bodyBlock, Else: exitBlock})

	g.setCur(bodyBlock)
	g.ctx.loopExit = append(g.ctx.loopExit, loopFrame{isFor: true, exitBlock: exitBlock})
	g.lowerBlock(n.Body)
	g.ctx.loopExit = g.ctx.loopExit[:len(g.ctx.loopExit)-1]
	if !g.ctx.termed[g.curIdx] {
		g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: loopVar})
		g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: stepLocal})
		g.emit(ir.Inst{Op: ir.OpAdd})
		g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: loopVar})
		g.branchTo(headerBlock)
	}

	g.setCur(exitBlock)
}

func (g *Gen) lowerForEach(n *ast.ForEach) {
	// FOR EACH over an array iterates its flattened element count;
	// collections beyond arrays aren't part of this target's array model.
	info, ok := g.ctx.arrays[identName(n.Collection)]
	if !ok {
		g.fail(n.Var, "FOR EACH over a non-array collection is unsupported")
		return
	}
	idxLocal := g.ctx.f.AddLocal("__foreach_idx", ir.StorageNumericI32)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: idxLocal})

	total := int64(1)
	for _, d := range info.dims {
		total *= d
	}

	headerBlock := g.newBlock()
	bodyBlock := g.newBlock()
	exitBlock := g.newBlock()
	g.branchTo(headerBlock)

	g.setCur(headerBlock)
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: idxLocal})
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: total})
	g.emit(ir.Inst{Op: ir.OpLt})
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: bodyBlock, Else: exitBlock})

	g.setCur(bodyBlock)
	elemVar, ok := g.ctx.vars[n.Var]
	if !ok {
		elemVar = g.ctx.f.AddLocal(n.Var, info.storage)
		g.ctx.vars[n.Var] = elemVar
	}
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: info.local})
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: idxLocal})
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 4})
	g.emit(ir.Inst{Op: ir.OpMul})
	g.emit(ir.Inst{Op: ir.OpAdd})
	g.emit(ir.Inst{Op: ir.OpLoad})
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: elemVar})

	g.ctx.loopExit = append(g.ctx.loopExit, loopFrame{isFor: true, exitBlock: exitBlock})
	g.lowerBlock(n.Body)
	g.ctx.loopExit = g.ctx.loopExit[:len(g.ctx.loopExit)-1]
	if !g.ctx.termed[g.curIdx] {
		g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: idxLocal})
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 1})
		g.emit(ir.Inst{Op: ir.OpAdd})
		g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: idxLocal})
		g.branchTo(headerBlock)
	}

	g.setCur(exitBlock)
}

func identName(e ast.Expr) string {
	if id, ok := e.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func (g *Gen) lowerDoLoop(n *ast.DoLoop) {
	headerBlock := g.newBlock()
	bodyBlock := g.newBlock()
	exitBlock := g.newBlock()
	g.branchTo(headerBlock)

	g.setCur(headerBlock)
	if n.PreCond != ast.CondNone {
		g.lowerExpr(n.PreExpr)
		if n.PreCond == ast.CondUntil {
			g.emit(ir.Inst{Op: ir.OpNot})
		}
		g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: bodyBlock, Else: exitBlock})
	} else {
		g.branchTo(bodyBlock)
	}

	g.setCur(bodyBlock)
	g.ctx.loopExit = append(g.ctx.loopExit, loopFrame{isFor: false, exitBlock: exitBlock})
	g.lowerBlock(n.Body)
	g.ctx.loopExit = g.ctx.loopExit[:len(g.ctx.loopExit)-1]
	if !g.ctx.termed[g.curIdx] {
		if n.PostCond != ast.CondNone {
			g.lowerExpr(n.PostExpr)
			if n.PostCond == ast.CondUntil {
				g.emit(ir.Inst{Op: ir.OpNot})
			}
			g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: bodyBlock, Else: exitBlock})
		} else {
			g.branchTo(headerBlock)
		}
	}

	g.setCur(exitBlock)
}

func (g *Gen) lowerWhile(n *ast.While) {
	headerBlock := g.newBlock()
	bodyBlock := g.newBlock()
	exitBlock := g.newBlock()
	g.branchTo(headerBlock)

	g.setCur(headerBlock)
	g.lowerExpr(n.Cond)
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: bodyBlock, Else: exitBlock})

	g.setCur(bodyBlock)
	g.ctx.loopExit = append(g.ctx.loopExit, loopFrame{isFor: false, exitBlock: exitBlock})
	g.lowerBlock(n.Body)
	g.ctx.loopExit = g.ctx.loopExit[:len(g.ctx.loopExit)-1]
	if !g.ctx.termed[g.curIdx] {
		g.branchTo(headerBlock)
	}

	g.setCur(exitBlock)
}

// lowerSelectCase lowers to a chain of comparisons against the subject,
// stored in a scratch local so it's only evaluated once (spec.md §4.2).
func (g *Gen) lowerSelectCase(n *ast.SelectCase) {
	subjSt := g.lowerExpr(n.Subject)
	subj := g.ctx.f.AddLocal("__select_subject", subjSt)
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: subj})

	endBlock := g.newBlock()
	g.lowerCaseClauses(subj, n.Clauses, endBlock)
	g.setCur(endBlock)
}

func (g *Gen) lowerCaseClauses(subj int, clauses []ast.CaseClause, endBlock int) {
	if len(clauses) == 0 {
		if !g.ctx.termed[g.curIdx] {
			g.branchTo(endBlock)
		}
		return
	}
	clause := clauses[0]
	if clause.Else {
		g.lowerBlock(clause.Body)
		if !g.ctx.termed[g.curIdx] {
			g.branchTo(endBlock)
		}
		return
	}

	matchBlock := g.newBlock()
	nextBlock := g.newBlock()
	g.emitCaseTestsOr(subj, clause.Tests)
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: matchBlock, Else: nextBlock})

	g.setCur(matchBlock)
	g.lowerBlock(clause.Body)
	if !g.ctx.termed[g.curIdx] {
		g.branchTo(endBlock)
	}

	g.setCur(nextBlock)
	g.lowerCaseClauses(subj, clauses[1:], endBlock)
}

// emitCaseTestsOr pushes a single boolean: true if any test in tests
// matches the subject local.
func (g *Gen) emitCaseTestsOr(subj int, tests []ast.CaseTest) {
	for i, t := range tests {
		switch {
		case t.Value != nil:
			g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: subj})
			g.lowerExpr(t.Value)
			g.emit(ir.Inst{Op: ir.OpEq})
		case t.Lo != nil && t.Hi != nil:
			g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: subj})
			g.lowerExpr(t.Lo)
			g.emit(ir.Inst{Op: ir.OpGeq})
			g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: subj})
			g.lowerExpr(t.Hi)
			g.emit(ir.Inst{Op: ir.OpLeq})
			g.emit(ir.Inst{Op: ir.OpAnd})
		case t.IsValue != nil:
			g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: subj})
			g.lowerExpr(t.IsValue)
			op, _ := binOpcode(t.IsOp)
			g.emit(ir.Inst{Op: op})
		}
		if i > 0 {
			g.emit(ir.Inst{Op: ir.OpOr})
		}
	}
}

func (g *Gen) lowerGosub(n *ast.Gosub) {
	g.ensureDispatchBlock()
	ord := g.ctx.nextGosubOrd
	g.ctx.nextGosubOrd++

	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: int64(ord)})
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: g.ctx.gosubSlot})
	g.branchTo(g.labelBlock(n.Target))

	resumeBlock := g.newBlock()
	g.ctx.returnSites[ord] = resumeBlock
	g.setCur(resumeBlock)
}

func (g *Gen) lowerReturn(n *ast.Return) {
	if g.ctx.hasRetType {
		if n.Value != nil {
			g.lowerExpr(n.Value)
		} else {
			g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
		}
		g.storeIdentLocalOnly(g.ctx.f.Name)
		g.branchTo(g.ctx.exitBlock)
		return
	}
	if g.ctx.hasGosub {
		g.branchTo(g.ctx.dispatchBlock)
		return
	}
	g.branchTo(g.ctx.exitBlock)
}

// storeIdentLocalOnly stores into the function's own implicit return-value
// local (a FUNCTION's name acts as its return variable per spec.md §4.3).
func (g *Gen) storeIdentLocalOnly(name string) {
	if local, ok := g.ctx.vars[name]; ok {
		g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: local})
		return
	}
	local := g.ctx.f.AddLocal(name, ir.StorageNumericI32)
	g.ctx.vars[name] = local
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: local})
}

func (g *Gen) lowerExit(n *ast.Exit) {
	switch n.Kind {
	case ast.ExitFor, ast.ExitDo:
		if len(g.ctx.loopExit) == 0 {
			g.fail("exit", "EXIT FOR/DO outside a loop")
			return
		}
		top := g.ctx.loopExit[len(g.ctx.loopExit)-1]
		g.branchTo(top.exitBlock)
		g.setCur(g.newBlock())
		g.setTerm(g.curIdx, ir.Term{Kind: ir.TermUnreachable})
	case ast.ExitSub, ast.ExitFunction:
		g.branchTo(g.ctx.exitBlock)
		g.setCur(g.newBlock())
		g.setTerm(g.curIdx, ir.Term{Kind: ir.TermUnreachable})
	}
}

func (g *Gen) lowerOnGoto(n *ast.OnGoto) {
	g.lowerExpr(n.Selector)
	sel := g.ctx.f.AddLocal("__on_sel", ir.StorageNumericI32)
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: sel})

	cases := map[int64]int{}
	for i, target := range n.Targets {
		cases[int64(i+1)] = g.labelBlock(target)
	}
	fallthroughBlock := g.newBlock()
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: sel})
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermSwitch, Cases: cases, Default: fallthroughBlock})
	g.setCur(fallthroughBlock)
}

func (g *Gen) lowerOnGosub(n *ast.OnGosub) {
	g.ensureDispatchBlock()
	g.lowerExpr(n.Selector)
	sel := g.ctx.f.AddLocal("__on_sel", ir.StorageNumericI32)
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: sel})

	fallthroughBlock := g.newBlock()
	cases := map[int64]int{}
	for i, target := range n.Targets {
		ord := g.ctx.nextGosubOrd
		g.ctx.nextGosubOrd++
		callBlock := g.newBlock()
		cases[int64(i+1)] = callBlock

		saveCur := g.curIdx
		g.setCur(callBlock)
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: int64(ord)})
		g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: g.ctx.gosubSlot})
		g.branchTo(g.labelBlock(target))
		resumeBlock := g.newBlock()
		g.ctx.returnSites[ord] = resumeBlock
		g.setTerm(resumeBlock, ir.Term{Kind: ir.TermBranch, Target: fallthroughBlock})
		g.setCur(saveCur)
	}
	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: sel})
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermSwitch, Cases: cases, Default: fallthroughBlock})
	g.setCur(fallthroughBlock)
}

// lowerOnErrorGoto registers the trap target with the runtime; the label's
// block is reserved so it exists even if nothing else branches to it yet.
func (g *Gen) lowerOnErrorGoto(n *ast.OnErrorGoto) {
	if n.Target == "" {
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
		g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_set_error_handler", Arg: 1})
		return
	}
	g.labelBlock(n.Target)
	idx := g.mod.InternString(n.Target)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: int64(idx)})
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_set_error_handler", Arg: 1})
}

func (g *Gen) lowerRead(n *ast.Read) {
	for _, v := range n.Vars {
		st := g.varStorage(v)
		switch st {
		case ir.StorageNumericI32:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_data_read_int", Arg: 0})
		case ir.StorageNumericF32:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_data_read_float", Arg: 0})
		default:
			g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_data_read_string", Arg: 0})
		}
		g.storeIdent(v, st)
	}
}

func (g *Gen) lowerRestore(n *ast.Restore) {
	if n.Label != "" {
		idx := g.mod.InternString(n.Label)
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: int64(idx)})
	} else {
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
	}
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_data_restore", Arg: 1})
}

// lowerSwap exchanges a and b through a scratch local: tmp=a; a=b; b=tmp.
func (g *Gen) lowerSwap(n *ast.Swap) {
	stA := g.varStorage(n.A)
	stB := g.varStorage(n.B)
	tmp := g.ctx.f.AddLocal("__swap_tmp", stA)
	g.lowerIdentLoad(n.A)
	g.emit(ir.Inst{Op: ir.OpLocalSet, Arg: tmp})

	g.lowerIdentLoad(n.B)
	g.storeIdent(n.A, stB)

	g.emit(ir.Inst{Op: ir.OpLocalGet, Arg: tmp})
	g.storeIdent(n.B, stA)
}

func (g *Gen) lowerRandomize(n *ast.Randomize) {
	if n.Seed != nil {
		g.lowerExpr(n.Seed)
	} else {
		g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_fn_timer", Arg: 0})
	}
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_randomize", Arg: 1})
}

func (g *Gen) lowerAssert(n *ast.Assert) {
	g.lowerExpr(n.Cond)
	okBlock := g.newBlock()
	failBlock := g.newBlock()
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermCondBranch, Then: okBlock, Else: failBlock})

	g.setCur(failBlock)
	if n.Message != nil {
		g.lowerExpr(n.Message)
	} else {
		idx := g.mod.InternString("assertion failed")
		g.emit(ir.Inst{Op: ir.OpConstStr, Arg: idx})
	}
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_panic", Arg: 1})
	g.setTerm(g.curIdx, ir.Term{Kind: ir.TermUnreachable})

	g.setCur(okBlock)
}

// lowerTryCatch runs the try body straight-line. The CATCH body is not
// lowered: no code is generated for it, and no runtime failure transfers
// control to it.
func (g *Gen) lowerTryCatch(n *ast.TryCatch) {
	g.lowerBlock(n.TryBody)
	if n.ErrVar != "" {
		// The CATCH error variable is not bound to anything either.
	}
}

func (g *Gen) lowerTask(n *ast.Task) {
	// Concurrency is modeled as the runtime's own task table: a TASK
	// lowers to one rb_task_spawn(stack, priority, name) call. The TASK
	// body itself is not lowered, neither inline nor as its own function.
	if n.Stack != nil {
		g.lowerExpr(n.Stack)
	} else {
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 4096})
	}
	if n.Priority != nil {
		g.lowerExpr(n.Priority)
	} else {
		g.emit(ir.Inst{Op: ir.OpConstI32, IVal: 0})
	}
	idx := g.mod.InternString(n.Name)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: int64(idx)})
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_task_spawn", Arg: 3})
}

func (g *Gen) lowerOnEvent(n *ast.OnEvent) {
	name := map[ast.OnEventKind]string{
		ast.OnGPIOChange:  "rb_on_gpio_change",
		ast.OnTimer:       "rb_on_timer",
		ast.OnMQTTMessage: "rb_on_mqtt_message",
	}[n.Kind]
	for _, a := range n.Args {
		g.lowerExpr(a)
	}
	idx := g.mod.InternString(n.Target)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: int64(idx)})
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: name, Arg: len(n.Args) + 1})
}

func (g *Gen) lowerMachineEvent(n *ast.MachineEvent) {
	g.lowerExpr(n.Event)
	idx := g.mod.InternString(n.Machine)
	g.emit(ir.Inst{Op: ir.OpConstI32, IVal: int64(idx)})
	g.emit(ir.Inst{Op: ir.OpCallIntrinsic, Name: "rb_machine_fire", Arg: 2})
}

func (g *Gen) lowerCallSub(n *ast.CallSub) {
	sub, ok := g.info.Subs[n.Name]
	if !ok {
		g.fail(n.Name, "call to undeclared SUB %q", n.Name)
		return
	}
	if len(n.Args) != len(sub.Params) {
		g.fail(n.Name, "SUB %q expects %d arguments, got %d", n.Name, len(sub.Params), len(n.Args))
	}
	for _, a := range n.Args {
		g.lowerExpr(a)
	}
	fi := g.funcIndex(n.Name)
	g.emit(ir.Inst{Op: ir.OpCall, Arg: fi})
}
