package rv32

import "testing"

func TestKnownEncodings(t *testing.T) {
	cases := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"nop", Nop(), 0x00000013},
		{"ret", Ret(), 0x00008067},
		{"add a0,a1,a2", Add(A0, A1, A2), 0x00c58533},
		{"addi sp,sp,-16", Addi(SP, SP, -16), 0xff010113},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: got %#08x, want %#08x", c.name, c.got, c.want)
		}
	}
}

func TestLi32SmallImmediateIsOneInstruction(t *testing.T) {
	words := Li32(T0, 5)
	if len(words) != 1 {
		t.Fatalf("expected a single ADDI for a small immediate, got %d words", len(words))
	}
}

func TestLi32LargeImmediateNeedsLuiAddi(t *testing.T) {
	words := Li32(T0, 0x12345678)
	if len(words) != 2 {
		t.Fatalf("expected LUI+ADDI for a large immediate, got %d words", len(words))
	}
}

func TestBranchEncodingRoundTrips(t *testing.T) {
	w := Beq(T0, T1, 0)
	if w&0x7f != opBranch {
		t.Fatalf("expected opcode field to be opBranch, got %#x", w&0x7f)
	}
}
