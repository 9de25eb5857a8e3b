package sema

import (
	"testing"

	"github.com/parisxmas/esp32basic/internal/ast"
	"github.com/parisxmas/esp32basic/internal/parser"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := parser.Parse(0, []byte(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return prog
}

func TestAutoDeclareFirstUseWins(t *testing.T) {
	prog := mustParse(t, "x = 5\nPRINT x\n")
	info, errs := Analyze(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	v, ok := info.Vars["X"]
	if !ok {
		t.Fatalf("expected X to be auto-declared")
	}
	if v.Type.Kind != ast.TInteger {
		t.Fatalf("expected X to be INTEGER from literal 5, got %v", v.Type.Kind)
	}
}

func TestUndefinedLabelIsError(t *testing.T) {
	prog := mustParse(t, "GOTO Nowhere\n")
	_, errs := Analyze(prog)
	if len(errs) == 0 {
		t.Fatalf("expected an undefined-label error")
	}
}

func TestLabelClosureAcrossGosubReturn(t *testing.T) {
	prog := mustParse(t, "GOSUB Worker\nEND\nWorker:\n  PRINT 1\n  RETURN\n")
	_, errs := Analyze(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestDuplicateSubIsError(t *testing.T) {
	prog := mustParse(t, "SUB Foo()\nEND SUB\n\nSUB Foo()\nEND SUB\n")
	_, errs := Analyze(prog)
	if len(errs) == 0 {
		t.Fatalf("expected a duplicate-SUB error")
	}
}

func TestCallUndeclaredSubIsError(t *testing.T) {
	prog := mustParse(t, "Missing 1, 2\n")
	_, errs := Analyze(prog)
	if len(errs) == 0 {
		t.Fatalf("expected an undeclared-SUB-call error")
	}
}

func TestCallArityMismatchIsError(t *testing.T) {
	prog := mustParse(t, "SUB Foo(a, b)\nEND SUB\nFoo 1\n")
	_, errs := Analyze(prog)
	if len(errs) == 0 {
		t.Fatalf("expected an arity-mismatch error")
	}
}

func TestExitForOutsideLoopIsError(t *testing.T) {
	prog := mustParse(t, "EXIT FOR\n")
	_, errs := Analyze(prog)
	if len(errs) == 0 {
		t.Fatalf("expected an EXIT-scope error")
	}
}

func TestExitForInsideLoopIsOK(t *testing.T) {
	prog := mustParse(t, "FOR i = 1 TO 3\n  EXIT FOR\nNEXT i\n")
	_, errs := Analyze(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestNumericWideningLadder(t *testing.T) {
	prog := mustParse(t, "a% = 1\nb# = 2.5\nc = a% + b#\n")
	info, errs := Analyze(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	c, ok := info.Vars["C"]
	if !ok {
		t.Fatalf("expected C to be auto-declared")
	}
	if c.Type.Kind != ast.TDouble {
		t.Fatalf("expected C widened to DOUBLE, got %v", c.Type.Kind)
	}
}

func TestArrayUsageTrackedViaDim(t *testing.T) {
	prog := mustParse(t, "DIM nums(10) AS INTEGER\nnums(1) = 5\nPRINT nums(1)\n")
	info, errs := Analyze(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !info.UserArrays["NUMS"] {
		t.Fatalf("expected NUMS to be tracked as an array")
	}
}

func TestStringPlusStringStaysString(t *testing.T) {
	// '+' on two strings is concatenation; confirm analysis records a
	// STRING result rather than widening through the numeric ladder.
	prog := mustParse(t, `s$ = "5"` + "\n" + `r$ = s$ + "x"` + "\n")
	info, errs := Analyze(prog)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	r, ok := info.Vars["R"]
	if !ok || r.Type.Kind != ast.TString {
		t.Fatalf("expected R to be STRING, got %#v", info.Vars["R"])
	}
}

func TestStringSigilNumericValueIsError(t *testing.T) {
	// spec.md scenario 3: LET X$ = 42 must fail with the exact storage
	// mismatch message, not silently coerce.
	prog := mustParse(t, "LET X$ = 42\n")
	_, errs := Analyze(prog)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	want := "cannot assign numeric value to string variable X$"
	if errs[0].Error() != want {
		t.Fatalf("expected %q, got %q", want, errs[0].Error())
	}
}

func TestStorageTypeMonotonicityAcrossUses(t *testing.T) {
	// Once X's storage type is fixed by its first use, a later use at a
	// different storage type is a monotonicity violation even without a
	// sigil forcing the mismatch on a single line.
	prog := mustParse(t, "X = 1\nX$ = \"a\"\n")
	_, errs := Analyze(prog)
	if len(errs) == 0 {
		t.Fatalf("expected a storage-type monotonicity error")
	}
}
