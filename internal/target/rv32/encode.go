// Package rv32 encodes the RV32IMC instruction subset internal/target's
// lowering pass needs to emit: integer arithmetic, loads/stores, branches,
// jumps, and the M-extension multiply/divide used for BASIC's numeric
// ops. Register names follow the ABI mnemonics the teacher's disassembly
// reader (ajroetker-goat/riscv64_parser.go's riscv64Registers table) also
// uses, narrowed to the 32 RV32 integer registers; the bit-level encoders
// themselves are new, since that file parses objdump text rather than
// emitting machine code.
package rv32

// Reg is one of the 32 integer registers, addressed by its ABI name.
type Reg int

const (
	Zero Reg = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
)

// opcode field values (bits 0-6) for the formats this encoder needs.
const (
	opLoad   = 0x03
	opImm    = 0x13
	opAuipc  = 0x17
	opStore  = 0x23
	opReg    = 0x33
	opLui    = 0x37
	opBranch = 0x63
	opJalr   = 0x67
	opJal    = 0x6f
	opSystem = 0x73
)

func encodeR(opcode, funct3 uint32, rd, rs1, rs2 Reg, funct7 uint32) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

func encodeI(opcode, funct3 uint32, rd, rs1 Reg, imm int32) uint32 {
	return uint32(imm)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

func encodeS(opcode, funct3 uint32, rs1, rs2 Reg, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

func encodeB(opcode, funct3 uint32, rs1, rs2 Reg, imm int32) uint32 {
	u := uint32(imm)
	return (u>>12&1)<<31 | (u>>5&0x3f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 |
		(u>>1&0xf)<<8 | (u>>11&1)<<7 | opcode
}

func encodeU(opcode uint32, rd Reg, imm int32) uint32 {
	return uint32(imm)&0xfffff000 | uint32(rd)<<7 | opcode
}

func encodeJ(opcode uint32, rd Reg, imm int32) uint32 {
	u := uint32(imm)
	return (u>>20&1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&1)<<20 | (u>>12&0xff)<<12 | uint32(rd)<<7 | opcode
}

// Integer-immediate and register-register arithmetic (RV32I).
func Addi(rd, rs1 Reg, imm int32) uint32 { return encodeI(opImm, 0x0, rd, rs1, imm) }
func Slti(rd, rs1 Reg, imm int32) uint32 { return encodeI(opImm, 0x2, rd, rs1, imm) }
func Andi(rd, rs1 Reg, imm int32) uint32 { return encodeI(opImm, 0x7, rd, rs1, imm) }
func Ori(rd, rs1 Reg, imm int32) uint32  { return encodeI(opImm, 0x6, rd, rs1, imm) }
func Xori(rd, rs1 Reg, imm int32) uint32 { return encodeI(opImm, 0x4, rd, rs1, imm) }

func Add(rd, rs1, rs2 Reg) uint32  { return encodeR(opReg, 0x0, rd, rs1, rs2, 0x00) }
func Sub(rd, rs1, rs2 Reg) uint32  { return encodeR(opReg, 0x0, rd, rs1, rs2, 0x20) }
func Xor(rd, rs1, rs2 Reg) uint32  { return encodeR(opReg, 0x4, rd, rs1, rs2, 0x00) }
func Or(rd, rs1, rs2 Reg) uint32   { return encodeR(opReg, 0x6, rd, rs1, rs2, 0x00) }
func And(rd, rs1, rs2 Reg) uint32  { return encodeR(opReg, 0x7, rd, rs1, rs2, 0x00) }
func Slt(rd, rs1, rs2 Reg) uint32  { return encodeR(opReg, 0x2, rd, rs1, rs2, 0x00) }
func Sltu(rd, rs1, rs2 Reg) uint32 { return encodeR(opReg, 0x3, rd, rs1, rs2, 0x00) }

// M-extension: integer multiply/divide/remainder.
func Mul(rd, rs1, rs2 Reg) uint32  { return encodeR(opReg, 0x0, rd, rs1, rs2, 0x01) }
func Div(rd, rs1, rs2 Reg) uint32  { return encodeR(opReg, 0x4, rd, rs1, rs2, 0x01) }
func Rem(rd, rs1, rs2 Reg) uint32  { return encodeR(opReg, 0x6, rd, rs1, rs2, 0x01) }
func Divu(rd, rs1, rs2 Reg) uint32 { return encodeR(opReg, 0x5, rd, rs1, rs2, 0x01) }

// Loads and stores. Width is one of 'b' (byte), 'h' (half), 'w' (word).
func Lw(rd, rs1 Reg, imm int32) uint32 { return encodeI(opLoad, 0x2, rd, rs1, imm) }
func Lh(rd, rs1 Reg, imm int32) uint32 { return encodeI(opLoad, 0x1, rd, rs1, imm) }
func Lb(rd, rs1 Reg, imm int32) uint32 { return encodeI(opLoad, 0x0, rd, rs1, imm) }

func Sw(rs1, rs2 Reg, imm int32) uint32 { return encodeS(opStore, 0x2, rs1, rs2, imm) }
func Sh(rs1, rs2 Reg, imm int32) uint32 { return encodeS(opStore, 0x1, rs1, rs2, imm) }
func Sb(rs1, rs2 Reg, imm int32) uint32 { return encodeS(opStore, 0x0, rs1, rs2, imm) }

// Branches: imm is the byte displacement from the branch's own address.
func Beq(rs1, rs2 Reg, imm int32) uint32  { return encodeB(opBranch, 0x0, rs1, rs2, imm) }
func Bne(rs1, rs2 Reg, imm int32) uint32  { return encodeB(opBranch, 0x1, rs1, rs2, imm) }
func Blt(rs1, rs2 Reg, imm int32) uint32  { return encodeB(opBranch, 0x4, rs1, rs2, imm) }
func Bge(rs1, rs2 Reg, imm int32) uint32  { return encodeB(opBranch, 0x5, rs1, rs2, imm) }
func Bltu(rs1, rs2 Reg, imm int32) uint32 { return encodeB(opBranch, 0x6, rs1, rs2, imm) }
func Bgeu(rs1, rs2 Reg, imm int32) uint32 { return encodeB(opBranch, 0x7, rs1, rs2, imm) }

// Jumps and upper-immediates.
func Jal(rd Reg, imm int32) uint32          { return encodeJ(opJal, rd, imm) }
func Jalr(rd, rs1 Reg, imm int32) uint32    { return encodeI(opJalr, 0x0, rd, rs1, imm) }
func Lui(rd Reg, imm int32) uint32          { return encodeU(opLui, rd, imm) }
func Auipc(rd Reg, imm int32) uint32        { return encodeU(opAuipc, rd, imm) }

// Ecall is the environment-call used for the runtime ABI trap on bare-metal
// boot images; the primary call path for rb_* intrinsics is a relocated
// JAL/JALR pair instead (see internal/target/lower.go).
func Ecall() uint32 { return encodeI(opSystem, 0x0, Zero, Zero, 0) }

// Pseudo-instructions, expanded the way the RISC-V assembler expands them.
func Nop() uint32            { return Addi(Zero, Zero, 0) }
func Mv(rd, rs Reg) uint32   { return Addi(rd, rs, 0) }
func Not(rd, rs Reg) uint32  { return Xori(rd, rs, -1) }
func Neg(rd, rs Reg) uint32  { return Sub(rd, Zero, rs) }
func Seqz(rd, rs Reg) uint32 { return Sltiu(rd, rs, 1) }
func Snez(rd, rs Reg) uint32 { return Sltu(rd, Zero, rs) }
func Jr(rs Reg) uint32       { return Jalr(Zero, rs, 0) }
func Ret() uint32            { return Jalr(Zero, RA, 0) }

func Sltiu(rd, rs1 Reg, imm int32) uint32 { return encodeI(opImm, 0x3, rd, rs1, imm) }

// Li32 expands a 32-bit immediate load into LUI+ADDI, the two-instruction
// form needed whenever imm doesn't fit signed 12 bits.
func Li32(rd Reg, imm int32) []uint32 {
	lo := imm & 0xfff
	hi := imm - lo // arithmetic so the ADDI sign-extension of lo is compensated
	if lo&0x800 != 0 {
		hi += 0x1000
	}
	if hi == 0 {
		return []uint32{Addi(rd, Zero, lo)}
	}
	return []uint32{Lui(rd, hi), Addi(rd, rd, lo)}
}
