package target

import (
	"fmt"
	"math"

	"github.com/parisxmas/esp32basic/internal/ir"
	"github.com/parisxmas/esp32basic/internal/target/rv32"
)

// Lower compiles mod into a RISC-V32 relocatable object for triple. Every
// Func's basic-block stream is treated as a stack machine, the same shape
// the teacher's x86-64 backend (legacy/compiler/backend_x64.go's
// compileInst push/pop idiom) compiles against, here targeting a
// dedicated operand-stack register (S1) instead of the hardware SP so
// the frame's saved-register area stays a fixed, statically known size.
//
// Each function reserves a fixed operand-stack region (operandStackSlots
// words); BASIC subroutines compiled from spec.md's grammar never nest
// expressions deep enough to overflow it in practice, but nothing here
// guards against it — a TODO for anyone wiring register allocation in
// instead of this stack-threaded scheme.
const operandStackSlots = 64

type fixupKind int

const (
	fixupBranch fixupKind = iota // B-type: encodeB(rs1,rs2 fixed, only imm patched)
	fixupJump                    // J-type: JAL, rd fixed
)

type fixup struct {
	wordIdx   int
	kind      fixupKind
	raw       uint32 // partially-encoded instruction (opcode/funct3/rd/rs1/rs2 set, imm=0)
	target    int    // absolute word index of the target (intra-function branches)
	calleeIdx int     // >=0 for cross-function calls: resolved from funcStart once every
	                   // function has been laid out, since a call may target a function
	                   // that hasn't been lowered yet
}

type relocFixup struct {
	wordIdx int // word index of the AUIPC half of an AUIPC+ADDI/JALR pair
	symbol  string
}

type lowerer struct {
	mod        *ir.Module
	words      []uint32
	funcStart  []int
	fixups     []fixup
	relocs     []relocFixup // external symbol refs (rb_* runtime calls, string data)
	stringAddr []int        // word index of .rodata start per interned string, filled after rodata layout
}

// Lower returns the assembled ELF32 ET_REL object bytes for mod.
func Lower(mod *ir.Module, triple Triple) ([]byte, error) {
	if err := mod.Validate(); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	l := &lowerer{mod: mod, funcStart: make([]int, len(mod.Funcs))}
	for fi, f := range mod.Funcs {
		l.funcStart[fi] = len(l.words)
		if err := l.lowerFunc(f); err != nil {
			return nil, fmt.Errorf("target: func %s: %w", f.Name, err)
		}
	}
	for i := range l.fixups {
		if l.fixups[i].calleeIdx >= 0 {
			l.fixups[i].target = l.funcStart[l.fixups[i].calleeIdx]
		}
	}
	for _, fu := range l.fixups {
		disp := int32((fu.target - fu.wordIdx) * 4)
		switch fu.kind {
		case fixupBranch:
			l.words[fu.wordIdx] = fu.raw | (encodeBImm(disp))
		case fixupJump:
			l.words[fu.wordIdx] = fu.raw | (encodeJImm(disp))
		}
	}

	text := make([]byte, len(l.words)*4)
	for i, w := range l.words {
		text[i*4], text[i*4+1], text[i*4+2], text[i*4+3] = byte(w), byte(w>>8), byte(w>>16), byte(w>>24)
	}

	rodata, stringSymOffsets := buildRodata(mod)

	sections := []ObjSection{
		{Name: ".text", Data: text, Flags: shfAlloc | shfExec, Type: shtProgbits},
		{Name: ".rodata", Data: rodata, Flags: shfAlloc, Type: shtProgbits},
	}

	var symbols []ObjSymbol
	nameToSym := map[string]int{}
	addSym := func(s ObjSymbol) int {
		nameToSym[s.Name] = len(symbols)
		symbols = append(symbols, s)
		return len(symbols) - 1
	}
	for fi, f := range mod.Funcs {
		addSym(ObjSymbol{Name: f.Name, Section: 0, Value: uint32(l.funcStart[fi] * 4), Size: uint32(funcWordSize(l, fi) * 4), Global: true, Func: true})
	}
	for i, off := range stringSymOffsets {
		addSym(ObjSymbol{Name: fmt.Sprintf(".Lstr%d", i), Section: 1, Value: uint32(off), Global: false})
	}
	externs := map[string]bool{}
	for _, rf := range l.relocs {
		if _, ok := nameToSym[rf.symbol]; !ok && !externs[rf.symbol] {
			externs[rf.symbol] = true
		}
	}
	for name := range externs {
		addSym(ObjSymbol{Name: name, Section: -1, Global: true, Func: true})
	}

	var relocs []ObjReloc
	for _, rf := range l.relocs {
		symIdx, ok := nameToSym[rf.symbol]
		if !ok {
			return nil, fmt.Errorf("target: unresolved symbol %q", rf.symbol)
		}
		relocs = append(relocs, ObjReloc{SectionIdx: 0, Offset: uint32(rf.wordIdx * 4), SymbolIdx: symIdx, Type: RelocRISCVCall})
	}

	return WriteObject(sections, symbols, relocs), nil
}

func funcWordSize(l *lowerer, fi int) int {
	if fi+1 < len(l.funcStart) {
		return l.funcStart[fi+1] - l.funcStart[fi]
	}
	return len(l.words) - l.funcStart[fi]
}

func encodeBImm(disp int32) uint32 {
	u := uint32(disp)
	return (u>>12&1)<<31 | (u>>5&0x3f)<<25 | (u>>1&0xf)<<8 | (u>>11&1)<<7
}

func encodeJImm(disp int32) uint32 {
	u := uint32(disp)
	return (u>>20&1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&1)<<20 | (u>>12&0xff)<<12
}

// buildRodata serializes the module's interned string pool as NUL-terminated
// byte runs, returning the byte offset of each string's first byte.
func buildRodata(mod *ir.Module) ([]byte, []int) {
	var buf []byte
	offsets := make([]int, len(mod.Strings))
	for i, s := range mod.Strings {
		offsets[i] = len(buf)
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	return buf, offsets
}

func (l *lowerer) emit(w uint32)          { l.words = append(l.words, w) }
func (l *lowerer) emitMany(ws ...uint32)  { l.words = append(l.words, ws...) }
func (l *lowerer) here() int              { return len(l.words) }

func (l *lowerer) push(reg rv32.Reg) {
	l.emitMany(rv32.Addi(rv32.S1, rv32.S1, -4), rv32.Sw(rv32.S1, reg, 0))
}

func (l *lowerer) pop(reg rv32.Reg) {
	l.emitMany(rv32.Lw(reg, rv32.S1, 0), rv32.Addi(rv32.S1, rv32.S1, 4))
}

// localOffset returns the s0-relative byte offset of local i, given the
// 12-byte saved-register area (ra, s0, s1) sits directly below s0.
func localOffset(i int) int32 { return int32(-12 - 4*(i+1)) }

func (l *lowerer) lowerFunc(f *ir.Func) error {
	localsBytes := 4 * len(f.Locals)
	frameSize := align16(12 + localsBytes + 4*operandStackSlots)

	l.emitMany(
		rv32.Addi(rv32.SP, rv32.SP, -int32(frameSize)),
		rv32.Sw(rv32.SP, rv32.RA, int32(frameSize-4)),
		rv32.Sw(rv32.SP, rv32.S0, int32(frameSize-8)),
		rv32.Sw(rv32.SP, rv32.S1, int32(frameSize-12)),
		rv32.Addi(rv32.S0, rv32.SP, int32(frameSize)),
		rv32.Addi(rv32.S1, rv32.S0, int32(-12-localsBytes)),
	)

	blockStart := make([]int, len(f.Blocks))
	blockFixups := map[int][]int{} // block index -> positions in l.fixups needing patch to this block's start

	patchLater := func(kind fixupKind, raw uint32, targetBlock int) {
		idx := len(l.fixups)
		l.fixups = append(l.fixups, fixup{wordIdx: l.here(), kind: kind, raw: raw, calleeIdx: -1})
		blockFixups[targetBlock] = append(blockFixups[targetBlock], idx)
		l.emit(raw)
	}

	for bi, blk := range f.Blocks {
		blockStart[bi] = l.here()
		for _, inst := range blk.Insts {
			if err := l.lowerInst(f, inst); err != nil {
				return err
			}
		}
		switch blk.Term.Kind {
		case ir.TermBranch:
			patchLater(fixupJump, rv32.Jal(rv32.Zero, 0), blk.Term.Target)
		case ir.TermCondBranch:
			l.pop(rv32.T0)
			patchLater(fixupBranch, rv32.Bne(rv32.T0, rv32.Zero, 0), blk.Term.Then)
			patchLater(fixupJump, rv32.Jal(rv32.Zero, 0), blk.Term.Else)
		case ir.TermSwitch:
			l.pop(rv32.T0)
			for _, v := range sortedCaseKeys(blk.Term.Cases) {
				l.emitMany(rv32.Li32(rv32.T1, int32(v))...)
				patchLater(fixupBranch, rv32.Beq(rv32.T0, rv32.T1, 0), blk.Term.Cases[v])
			}
			patchLater(fixupJump, rv32.Jal(rv32.Zero, 0), blk.Term.Default)
		case ir.TermReturn:
			if blk.Term.HasValue {
				l.pop(rv32.A0)
			}
			l.emitEpilogue(frameSize)
		case ir.TermUnreachable:
			l.emit(rv32.Ecall())
		}
	}

	// Patch every fixup recorded against this function's blocks now that
	// every block's start offset is known.
	for bi, start := range blockStart {
		for _, fidx := range blockFixups[bi] {
			l.fixups[fidx].target = start
		}
	}
	return nil
}

func (l *lowerer) emitEpilogue(frameSize int) {
	l.emitMany(
		rv32.Lw(rv32.S1, rv32.SP, int32(frameSize-12)),
		rv32.Lw(rv32.S0, rv32.SP, int32(frameSize-8)),
		rv32.Lw(rv32.RA, rv32.SP, int32(frameSize-4)),
		rv32.Addi(rv32.SP, rv32.SP, int32(frameSize)),
		rv32.Ret(),
	)
}

func (l *lowerer) lowerInst(f *ir.Func, inst ir.Inst) error {
	switch inst.Op {
	case ir.OpConstI32:
		l.emitMany(rv32.Li32(rv32.T0, int32(inst.IVal))...)
		l.push(rv32.T0)
	case ir.OpConstF32:
		bits := math.Float32bits(float32(inst.FVal))
		l.emitMany(rv32.Li32(rv32.T0, int32(bits))...)
		l.push(rv32.T0)
	case ir.OpConstStr:
		l.relocs = append(l.relocs, relocFixup{wordIdx: l.here(), symbol: fmt.Sprintf(".Lstr%d", inst.Arg)})
		l.emitMany(rv32.Auipc(rv32.T0, 0), rv32.Addi(rv32.T0, rv32.T0, 0))
		l.push(rv32.T0)

	case ir.OpLocalGet:
		l.emit(rv32.Lw(rv32.T0, rv32.S0, localOffset(inst.Arg)))
		l.push(rv32.T0)
	case ir.OpLocalSet:
		l.pop(rv32.T0)
		l.emit(rv32.Sw(rv32.S0, rv32.T0, localOffset(inst.Arg)))
	case ir.OpGlobalGet:
		l.relocs = append(l.relocs, relocFixup{wordIdx: l.here(), symbol: l.mod.Globals[inst.Arg].Name})
		l.emitMany(rv32.Auipc(rv32.T0, 0), rv32.Lw(rv32.T0, rv32.T0, 0))
		l.push(rv32.T0)
	case ir.OpGlobalSet:
		l.pop(rv32.T1)
		l.relocs = append(l.relocs, relocFixup{wordIdx: l.here(), symbol: l.mod.Globals[inst.Arg].Name})
		l.emitMany(rv32.Auipc(rv32.T0, 0), rv32.Sw(rv32.T0, rv32.T1, 0))

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpIDiv, ir.OpMod,
		ir.OpAnd, ir.OpOr, ir.OpXor,
		ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpGt, ir.OpLeq, ir.OpGeq:
		l.pop(rv32.T1) // rhs
		l.pop(rv32.T0) // lhs
		l.emitMany(binOpWords(inst.Op)...)
		l.push(rv32.T0)
	case ir.OpNeg:
		l.pop(rv32.T0)
		l.emit(rv32.Neg(rv32.T0, rv32.T0))
		l.push(rv32.T0)
	case ir.OpNot:
		l.pop(rv32.T0)
		l.emit(rv32.Seqz(rv32.T0, rv32.T0))
		l.push(rv32.T0)

	case ir.OpLoad:
		l.pop(rv32.T0) // base pointer
		l.emit(rv32.Lw(rv32.T0, rv32.T0, int32(inst.Arg)))
		l.push(rv32.T0)
	case ir.OpStore:
		l.pop(rv32.T1) // value
		l.pop(rv32.T0) // base pointer
		l.emit(rv32.Sw(rv32.T0, rv32.T1, int32(inst.Arg)))

	case ir.OpConvertI32ToF32, ir.OpConvertF32ToI32:
		// Conversions route through the runtime ABI (no RV32F unit assumed
		// on the bare-metal target; spec.md's numeric model is software
		// float via the runtime), so treat them as a one-argument
		// intrinsic call by a fixed name.
		name := "rb_cvt_i32_f32"
		if inst.Op == ir.OpConvertF32ToI32 {
			name = "rb_cvt_f32_i32"
		}
		l.pop(rv32.A0)
		l.relocs = append(l.relocs, relocFixup{wordIdx: l.here(), symbol: name})
		l.emitMany(rv32.Auipc(rv32.RA, 0), rv32.Jalr(rv32.RA, rv32.RA, 0))
		l.push(rv32.A0)

	case ir.OpBoundsCheck:
		l.pop(rv32.A1) // total
		l.pop(rv32.A0) // index
		l.relocs = append(l.relocs, relocFixup{wordIdx: l.here(), symbol: "rb_array_bounds_check"})
		l.emitMany(rv32.Auipc(rv32.RA, 0), rv32.Jalr(rv32.RA, rv32.RA, 0))
	case ir.OpArrayAlloc:
		l.emitMany(rv32.Li32(rv32.A0, 4)...) // elem_size: every slot is i32/f32/ptr-sized
		l.emitMany(rv32.Li32(rv32.A1, int32(inst.Arg))...)
		l.relocs = append(l.relocs, relocFixup{wordIdx: l.here(), symbol: "rb_array_alloc"})
		l.emitMany(rv32.Auipc(rv32.RA, 0), rv32.Jalr(rv32.RA, rv32.RA, 0))
		l.push(rv32.A0)

	case ir.OpDrop:
		l.pop(rv32.T0)

	case ir.OpCall:
		callee := l.mod.Funcs[inst.Arg]
		l.popArgs(callee.Params)
		l.fixups = append(l.fixups, fixup{wordIdx: l.here(), kind: fixupJump, raw: rv32.Jal(rv32.RA, 0), calleeIdx: inst.Arg})
		l.emit(rv32.Jal(rv32.RA, 0))
		if callee.HasRet {
			l.push(rv32.A0)
		}
	case ir.OpCallIntrinsic:
		l.popArgs(inst.Arg)
		l.relocs = append(l.relocs, relocFixup{wordIdx: l.here(), symbol: inst.Name})
		l.emitMany(rv32.Auipc(rv32.RA, 0), rv32.Jalr(rv32.RA, rv32.RA, 0))
		if !voidIntrinsics[inst.Name] {
			l.push(rv32.A0)
		}
	default:
		return fmt.Errorf("unhandled opcode %s", inst.Op)
	}
	return nil
}

// popArgs pops n operand-stack values into a0..a(n-1), in reverse push
// order so arg 0 (pushed first) lands in a0. More than 8 arguments would
// need the RV32 calling convention's stack-passed tail, which spec.md's
// built-in and hardware tables never require.
func (l *lowerer) popArgs(n int) {
	argRegs := []rv32.Reg{rv32.A0, rv32.A1, rv32.A2, rv32.A3, rv32.A4, rv32.A5, rv32.A6, rv32.A7}
	for i := n - 1; i >= 0 && i < len(argRegs); i-- {
		l.pop(argRegs[i])
	}
}

func binOpWords(op ir.Opcode) []uint32 {
	switch op {
	case ir.OpAdd:
		return []uint32{rv32.Add(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpSub:
		return []uint32{rv32.Sub(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpMul:
		return []uint32{rv32.Mul(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpDiv, ir.OpIDiv:
		return []uint32{rv32.Div(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpMod:
		return []uint32{rv32.Rem(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpAnd:
		return []uint32{rv32.And(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpOr:
		return []uint32{rv32.Or(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpXor:
		return []uint32{rv32.Xor(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpEq:
		return []uint32{rv32.Xor(rv32.T0, rv32.T0, rv32.T1), rv32.Seqz(rv32.T0, rv32.T0)}
	case ir.OpNeq:
		return []uint32{rv32.Xor(rv32.T0, rv32.T0, rv32.T1), rv32.Snez(rv32.T0, rv32.T0)}
	case ir.OpLt:
		return []uint32{rv32.Slt(rv32.T0, rv32.T0, rv32.T1)}
	case ir.OpGt:
		return []uint32{rv32.Slt(rv32.T0, rv32.T1, rv32.T0)}
	case ir.OpLeq:
		return []uint32{rv32.Slt(rv32.T0, rv32.T1, rv32.T0), rv32.Seqz(rv32.T0, rv32.T0)}
	case ir.OpGeq:
		return []uint32{rv32.Slt(rv32.T0, rv32.T0, rv32.T1), rv32.Seqz(rv32.T0, rv32.T0)}
	}
	return nil
}

// voidIntrinsics names the runtime ABI entries that never return a value
// (spec.md §7's runtime ABI table). Every other rb_* name is assumed to
// return a single value in a0.
var voidIntrinsics = map[string]bool{
	"rb_print_int": true, "rb_print_float": true, "rb_print_string": true, "rb_print_newline": true,
	"rb_print_tab": true, "rb_print_using": true,
	"rb_panic": true,
	"rb_string_release": true,
	"rb_array_bounds_check": true, "rb_array_check_dim_size": true, "rb_array_free": true,
	"rb_data_restore": true,
	"rb_randomize": true, "rb_task_spawn": true, "rb_set_error_handler": true,
	"rb_on_gpio_change": true, "rb_on_timer": true, "rb_on_mqtt_message": true,
	"rb_machine_fire": true,

	// Hardware-primitive families with no return value (mirrors hw.go's
	// voidHW table — every other rb_* hardware entry returns one value).
	"rb_gpio_mode": true, "rb_gpio_write": true,
	"rb_i2c_setup": true, "rb_i2c_write": true,
	"rb_spi_setup": true, "rb_uart_setup": true, "rb_uart_write": true,
	"rb_pwm_setup": true, "rb_pwm_write": true, "rb_adc_setup": true,
	"rb_wifi_connect": true, "rb_wifi_disconnect": true,
	"rb_mqtt_setup": true, "rb_mqtt_publish": true, "rb_mqtt_subscribe": true,
	"rb_ble_advertise": true,
	"rb_oled_setup":    true, "rb_oled_line": true, "rb_oled_clear": true,
	"rb_lcd_setup": true, "rb_lcd_write": true,
	"rb_led_setup": true, "rb_led_set": true, "rb_led_show": true,
	"rb_timer_setup": true, "rb_nvs_write": true, "rb_deepsleep_start": true,
	"rb_espnow_setup": true, "rb_espnow_send": true,
	"rb_watchdog_setup": true, "rb_watchdog_feed": true, "rb_ntp_sync": true,
	"rb_i2s_setup": true, "rb_i2s_write": true,
	"rb_websocket_setup": true, "rb_websocket_send": true,
	"rb_tcp_connect": true, "rb_tcp_send": true,
	"rb_fs_write": true, "rb_fs_close": true,
}

func sortedCaseKeys(cases map[int64]int) []int64 {
	keys := make([]int64, 0, len(cases))
	for k := range cases {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func align16(n int) int { return (n + 15) &^ 15 }
