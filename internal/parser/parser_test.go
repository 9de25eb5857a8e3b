package parser

import (
	"testing"

	"github.com/parisxmas/esp32basic/internal/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse(0, []byte(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return prog
}

func TestParsePrintLiteral(t *testing.T) {
	prog := mustParse(t, "PRINT 42\n")
	if len(prog.TopLevel) != 1 {
		t.Fatalf("expected 1 top-level stmt, got %d", len(prog.TopLevel))
	}
	pr, ok := prog.TopLevel[0].(*ast.Print)
	if !ok {
		t.Fatalf("expected *ast.Print, got %T", prog.TopLevel[0])
	}
	if len(pr.Items) != 1 {
		t.Fatalf("expected 1 print item, got %d", len(pr.Items))
	}
	lit, ok := pr.Items[0].Expr.(*ast.IntLit)
	if !ok || lit.Value != 42 {
		t.Fatalf("expected IntLit(42), got %#v", pr.Items[0].Expr)
	}
}

func TestParseLabelsAndGosub(t *testing.T) {
	prog := mustParse(t, "GOSUB DoThing\nEND\nDoThing:\n  PRINT 1\n  RETURN\n")
	if len(prog.TopLevel) != 5 {
		t.Fatalf("expected 5 top-level stmts, got %d", len(prog.TopLevel))
	}
	if _, ok := prog.TopLevel[0].(*ast.Gosub); !ok {
		t.Fatalf("expected Gosub first, got %T", prog.TopLevel[0])
	}
	lbl, ok := prog.TopLevel[2].(*ast.Label)
	if !ok || lbl.Name != "DOTHING" {
		t.Fatalf("expected label DOTHING, got %#v", prog.TopLevel[2])
	}
}

func TestParseDimWithArrayDims(t *testing.T) {
	prog := mustParse(t, "DIM arr(10) AS INTEGER\n")
	dim, ok := prog.TopLevel[0].(*ast.Dim)
	if !ok {
		t.Fatalf("expected *ast.Dim, got %T", prog.TopLevel[0])
	}
	if len(dim.Items) != 1 || dim.Items[0].Name != "ARR" {
		t.Fatalf("unexpected dim items: %#v", dim.Items)
	}
	if len(dim.Items[0].Dims) != 1 {
		t.Fatalf("expected 1 dim bound, got %d", len(dim.Items[0].Dims))
	}
	if dim.Items[0].Type.Kind != ast.TInteger {
		t.Fatalf("expected INTEGER, got %v", dim.Items[0].Type.Kind)
	}
}

func TestParseIfMultiLine(t *testing.T) {
	prog := mustParse(t, "IF x > 0 THEN\n  PRINT 1\nELSEIF x < 0 THEN\n  PRINT 2\nELSE\n  PRINT 3\nEND IF\n")
	ifs, ok := prog.TopLevel[0].(*ast.If)
	if !ok {
		t.Fatalf("expected *ast.If, got %T", prog.TopLevel[0])
	}
	if ifs.SingleLine {
		t.Fatalf("expected multi-line IF")
	}
	if len(ifs.ElseIfs) != 1 || len(ifs.Else) != 1 {
		t.Fatalf("unexpected shape: %#v", ifs)
	}
}

func TestParseIfSingleLine(t *testing.T) {
	prog := mustParse(t, "IF x > 0 THEN PRINT 1 ELSE PRINT 2\n")
	ifs, ok := prog.TopLevel[0].(*ast.If)
	if !ok {
		t.Fatalf("expected *ast.If, got %T", prog.TopLevel[0])
	}
	if !ifs.SingleLine {
		t.Fatalf("expected single-line IF")
	}
}

func TestParseForLoop(t *testing.T) {
	prog := mustParse(t, "FOR i = 1 TO 10 STEP 2\n  PRINT i\nNEXT i\n")
	f, ok := prog.TopLevel[0].(*ast.For)
	if !ok {
		t.Fatalf("expected *ast.For, got %T", prog.TopLevel[0])
	}
	if f.Var != "I" {
		t.Fatalf("expected loop var I, got %s", f.Var)
	}
	if f.Step == nil {
		t.Fatalf("expected non-nil step")
	}
}

func TestParseSelectCase(t *testing.T) {
	prog := mustParse(t, "SELECT CASE x\nCASE 1, 2\n  PRINT 1\nCASE 3 TO 5\n  PRINT 2\nCASE ELSE\n  PRINT 3\nEND SELECT\n")
	sc, ok := prog.TopLevel[0].(*ast.SelectCase)
	if !ok {
		t.Fatalf("expected *ast.SelectCase, got %T", prog.TopLevel[0])
	}
	if len(sc.Clauses) != 3 {
		t.Fatalf("expected 3 clauses, got %d", len(sc.Clauses))
	}
	if len(sc.Clauses[0].Tests) != 2 {
		t.Fatalf("expected 2 tests in first clause, got %d", len(sc.Clauses[0].Tests))
	}
	if sc.Clauses[1].Tests[0].Lo == nil || sc.Clauses[1].Tests[0].Hi == nil {
		t.Fatalf("expected TO-range test in second clause")
	}
	if !sc.Clauses[2].Else {
		t.Fatalf("expected CASE ELSE in third clause")
	}
}

func TestParseArrayAssignVsCallSub(t *testing.T) {
	prog := mustParse(t, "arr(1) = 5\nDoThing(1, 2)\n")
	if _, ok := prog.TopLevel[0].(*ast.ArrayAssign); !ok {
		t.Fatalf("expected ArrayAssign, got %T", prog.TopLevel[0])
	}
	if _, ok := prog.TopLevel[1].(*ast.CallSub); !ok {
		t.Fatalf("expected CallSub, got %T", prog.TopLevel[1])
	}
}

func TestParseHWStmtWithDest(t *testing.T) {
	prog := mustParse(t, "GPIO.READ 5 => val\n")
	hw, ok := prog.TopLevel[0].(*ast.HWStmt)
	if !ok {
		t.Fatalf("expected *ast.HWStmt, got %T", prog.TopLevel[0])
	}
	if hw.Family != ast.HWGPIORead {
		t.Fatalf("expected HWGPIORead, got %v", hw.Family)
	}
	if hw.Dest != "VAL" {
		t.Fatalf("expected dest VAL, got %q", hw.Dest)
	}
}

func TestParseInterpolatedString(t *testing.T) {
	prog := mustParse(t, `PRINT $"value is {x + 1}!"` + "\n")
	pr := prog.TopLevel[0].(*ast.Print)
	interp, ok := pr.Items[0].Expr.(*ast.InterpString)
	if !ok {
		t.Fatalf("expected *ast.InterpString, got %T", pr.Items[0].Expr)
	}
	// The folded chain must bottom out in a BinOp("+", ...) joining the
	// literal prefix with the STR$() call for the placeholder.
	if _, ok := interp.Parts.(*ast.BinOp); !ok {
		t.Fatalf("expected folded '+' chain, got %T", interp.Parts)
	}
}

func TestParseOnGosubOnGoto(t *testing.T) {
	prog := mustParse(t, "ON x GOSUB L1, L2\nON y GOTO L3, L4\n")
	og, ok := prog.TopLevel[0].(*ast.OnGosub)
	if !ok || len(og.Targets) != 2 {
		t.Fatalf("unexpected OnGosub: %#v", prog.TopLevel[0])
	}
	ogo, ok := prog.TopLevel[1].(*ast.OnGoto)
	if !ok || len(ogo.Targets) != 2 {
		t.Fatalf("unexpected OnGoto: %#v", prog.TopLevel[1])
	}
}

func TestParseSubAndFunctionDecl(t *testing.T) {
	prog := mustParse(t, "SUB Greet(name AS STRING)\n  PRINT name\nEND SUB\n\nFUNCTION Square(n AS INTEGER) AS INTEGER\n  Square = n * n\nEND FUNCTION\n")
	if len(prog.Subs) != 1 || prog.Subs[0].Name != "GREET" {
		t.Fatalf("unexpected subs: %#v", prog.Subs)
	}
	if len(prog.Functions) != 1 || prog.Functions[0].Name != "SQUARE" {
		t.Fatalf("unexpected functions: %#v", prog.Functions)
	}
	if prog.Functions[0].Ret.Kind != ast.TInteger {
		t.Fatalf("expected INTEGER return, got %v", prog.Functions[0].Ret.Kind)
	}
}

func TestParseMachineDecl(t *testing.T) {
	prog := mustParse(t, "MACHINE Door\n  STATE Closed\n    ON Open GOTO Opened\n  END STATE\n  STATE Opened\n    ON Close GOTO Closed\n  END STATE\nEND MACHINE\n")
	if len(prog.Machines) != 1 {
		t.Fatalf("expected 1 machine, got %d", len(prog.Machines))
	}
	m := prog.Machines[0]
	if m.Name != "DOOR" || len(m.States) != 2 {
		t.Fatalf("unexpected machine: %#v", m)
	}
	if len(m.States[0].Transitions) != 1 || m.States[0].Transitions[0].Target != "OPENED" {
		t.Fatalf("unexpected transitions: %#v", m.States[0].Transitions)
	}
}

func TestStateIsNotAReservedKeyword(t *testing.T) {
	// spec.md: "STATE is a bare identifier, not a keyword" — it must stay
	// usable as an ordinary variable name outside a MACHINE block.
	prog := mustParse(t, "STATE = 1\nPRINT STATE\n")
	let, ok := prog.TopLevel[0].(*ast.Let)
	if !ok || let.Name != "STATE" {
		t.Fatalf("expected STATE to parse as a plain assignment target, got %#v", prog.TopLevel[0])
	}
}

func TestParseOperatorPrecedence(t *testing.T) {
	prog := mustParse(t, "PRINT 1 + 2 * 3\n")
	pr := prog.TopLevel[0].(*ast.Print)
	bin, ok := pr.Items[0].Expr.(*ast.BinOp)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %#v", pr.Items[0].Expr)
	}
	rhs, ok := bin.Y.(*ast.BinOp)
	if !ok || rhs.Op != "*" {
		t.Fatalf("expected '2 * 3' to bind tighter, got %#v", bin.Y)
	}
}

func TestParseCaretRightAssociative(t *testing.T) {
	prog := mustParse(t, "PRINT 2 ^ 3 ^ 2\n")
	pr := prog.TopLevel[0].(*ast.Print)
	bin := pr.Items[0].Expr.(*ast.BinOp)
	if bin.Op != "^" {
		t.Fatalf("expected '^', got %s", bin.Op)
	}
	if _, ok := bin.Y.(*ast.BinOp); !ok {
		t.Fatalf("expected right-associated '^' chain, got %#v", bin.Y)
	}
	if _, ok := bin.X.(*ast.IntLit); !ok {
		t.Fatalf("expected left operand to be the literal 2, got %#v", bin.X)
	}
}

func TestParseDoLoopVariants(t *testing.T) {
	prog := mustParse(t, "DO WHILE x < 10\n  x = x + 1\nLOOP\n")
	dl, ok := prog.TopLevel[0].(*ast.DoLoop)
	if !ok {
		t.Fatalf("expected *ast.DoLoop, got %T", prog.TopLevel[0])
	}
	if dl.PreCond != ast.CondWhile || dl.PreExpr == nil {
		t.Fatalf("expected pre-WHILE condition, got %#v", dl)
	}
}

func TestParseDataReadRestore(t *testing.T) {
	prog := mustParse(t, "DATA 1, 2.5, \"hi\"\nREAD a, b, c$\nRESTORE\n")
	d, ok := prog.TopLevel[0].(*ast.Data)
	if !ok || len(d.Items) != 3 {
		t.Fatalf("unexpected data: %#v", prog.TopLevel[0])
	}
	r, ok := prog.TopLevel[1].(*ast.Read)
	if !ok || len(r.Vars) != 3 {
		t.Fatalf("unexpected read: %#v", prog.TopLevel[1])
	}
	if _, ok := prog.TopLevel[2].(*ast.Restore); !ok {
		t.Fatalf("expected Restore, got %T", prog.TopLevel[2])
	}
}

func TestParseTryCatch(t *testing.T) {
	prog := mustParse(t, "TRY\n  PRINT 1\nCATCH err$\n  PRINT err$\nEND TRY\n")
	tc, ok := prog.TopLevel[0].(*ast.TryCatch)
	if !ok {
		t.Fatalf("expected *ast.TryCatch, got %T", prog.TopLevel[0])
	}
	if tc.ErrVar != "ERR" {
		t.Fatalf("unexpected error var: %q", tc.ErrVar)
	}
	if len(tc.TryBody) != 1 || len(tc.CatchBody) != 1 {
		t.Fatalf("unexpected bodies: %#v", tc)
	}
}
