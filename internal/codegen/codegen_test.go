package codegen

import (
	"strings"
	"testing"

	"github.com/parisxmas/esp32basic/internal/ir"
	"github.com/parisxmas/esp32basic/internal/parser"
	"github.com/parisxmas/esp32basic/internal/sema"
)

func compileSrc(t *testing.T, src string) (*ir.Module, []error) {
	t.Helper()
	prog, err := parser.Parse(0, []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	info, errs := sema.Analyze(prog)
	if len(errs) > 0 {
		t.Fatalf("sema: %v", errs)
	}
	return Compile(prog, info)
}

func TestCompilePrintLiteral(t *testing.T) {
	mod, errs := compileSrc(t, "PRINT 42\n")
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	main := mod.Funcs[0]
	if main.Name != "main" {
		t.Fatalf("expected main func first, got %q", main.Name)
	}
	found := false
	for _, b := range main.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpCallIntrinsic && inst.Name == "rb_print_int" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected a rb_print_int call somewhere in main")
	}
}

func TestCompileLabelsAndGosub(t *testing.T) {
	src := "GOSUB greet\n" +
		"END\n" +
		"greet:\n" +
		"PRINT \"hi\"\n" +
		"RETURN\n"
	mod, errs := compileSrc(t, src)
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	main := mod.Funcs[0]
	sawDispatchSwitch := false
	for _, b := range main.Blocks {
		if b.Term.Kind == ir.TermSwitch && len(b.Term.Cases) == 1 {
			sawDispatchSwitch = true
		}
	}
	if !sawDispatchSwitch {
		t.Fatal("expected a one-case GOSUB dispatch switch block")
	}
}

func TestCompileUndeclaredFunctionCallFails(t *testing.T) {
	_, errs := compileSrc(t, "X = NOSUCHFUNC(1)\n")
	if len(errs) == 0 {
		t.Fatal("expected a lowering error calling an undeclared function")
	}
}

func TestCompileDuplicateSubNameCaughtBySema(t *testing.T) {
	src := "SUB Foo()\nEND SUB\nSUB Foo()\nEND SUB\n"
	prog, err := parser.Parse(0, []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, errs := sema.Analyze(prog)
	if len(errs) == 0 {
		t.Fatal("expected sema to catch a duplicate SUB declaration")
	}
}

func TestCompileBuiltinLeftDollarTyping(t *testing.T) {
	mod, errs := compileSrc(t, "A$ = LEFT$(\"hello\", 2)\nPRINT A$\n")
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	main := mod.Funcs[0]
	found := false
	for _, b := range main.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpCallIntrinsic && inst.Name == "rb_fn_left_s" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected LEFT$ to lower to rb_fn_left_s")
	}
}

func TestCompileInterpolatedString(t *testing.T) {
	mod, errs := compileSrc(t, "N = 5\nPRINT $\"count: {N}\"\n")
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	main := mod.Funcs[0]
	found := false
	for _, b := range main.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpCallIntrinsic && inst.Name == "rb_string_concat" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected the interpolated string to fold through rb_string_concat")
	}
}

func TestCompileArrayBoundsCheckEmitted(t *testing.T) {
	mod, errs := compileSrc(t, "DIM NUMS(10)\nNUMS(3) = 7\nPRINT NUMS(3)\n")
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	main := mod.Funcs[0]
	count := 0
	for _, b := range main.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == ir.OpBoundsCheck {
				count++
			}
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 bounds checks (one store, one load), got %d", count)
	}
}

func TestCompileValidatesModule(t *testing.T) {
	mod, errs := compileSrc(t, "FOR I = 1 TO 10\nPRINT I\nNEXT I\n")
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	if err := mod.Validate(); err != nil {
		t.Fatalf("expected a well-formed module, got %v", err)
	}
}

func TestCompileForLoopRuntimeStepDirection(t *testing.T) {
	mod, errs := compileSrc(t, "S = -1\nFOR I = 10 TO 1 STEP S\nPRINT I\nNEXT I\n")
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	if err := mod.Validate(); err != nil {
		t.Fatalf("expected a well-formed module for a variable-STEP FOR loop, got %v", err)
	}
	main := mod.Funcs[0]
	condBranches := 0
	for _, b := range main.Blocks {
		if b.Term.Kind == ir.TermCondBranch {
			condBranches++
		}
	}
	// one to pick ascending/descending test block, one per direction test
	if condBranches < 3 {
		t.Fatalf("expected at least 3 conditional branches for the sign-dispatched FOR header, got %d", condBranches)
	}
}

func TestDumpDoesNotPanic(t *testing.T) {
	mod, errs := compileSrc(t, "PRINT 1\nPRINT 2\n")
	if len(errs) > 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	out := mod.Dump()
	if !strings.Contains(out, "main") {
		t.Fatal("expected dump to mention the main function")
	}
}
