package ir

import "testing"

func TestModuleValidateCatchesOutOfRangeBranch(t *testing.T) {
	m := NewModule()
	f := m.NewFunc("main")
	b0 := f.NewBlock()
	f.Block(b0).Term = Term{Kind: TermBranch, Target: 5}
	if err := m.Validate(); err == nil {
		t.Fatalf("expected an out-of-range branch target to fail validation")
	}
}

func TestModuleValidateAcceptsWellFormedModule(t *testing.T) {
	m := NewModule()
	f := m.NewFunc("main")
	b0 := f.NewBlock()
	b1 := f.NewBlock()
	f.Block(b0).Insts = append(f.Block(b0).Insts, Inst{Op: OpConstI32, IVal: 1})
	f.Block(b0).Term = Term{Kind: TermBranch, Target: b1}
	f.Block(b1).Term = Term{Kind: TermReturn}
	if err := m.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestInternStringDeduplicates(t *testing.T) {
	m := NewModule()
	i1 := m.InternString("hello")
	i2 := m.InternString("world")
	i3 := m.InternString("hello")
	if i1 != i3 {
		t.Fatalf("expected interning to dedupe, got %d and %d", i1, i3)
	}
	if i2 == i1 {
		t.Fatalf("expected distinct indices for distinct strings")
	}
	if len(m.Strings) != 2 {
		t.Fatalf("expected 2 interned strings, got %d", len(m.Strings))
	}
}

func TestDumpProducesReadableText(t *testing.T) {
	m := NewModule()
	f := m.NewFunc("main")
	b0 := f.NewBlock()
	f.Block(b0).Insts = append(f.Block(b0).Insts, Inst{Op: OpConstI32, IVal: 42})
	f.Block(b0).Term = Term{Kind: TermReturn}
	out := m.Dump()
	if out == "" {
		t.Fatalf("expected non-empty dump")
	}
}
