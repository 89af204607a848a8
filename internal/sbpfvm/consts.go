// Package sbpfvm is the stand-in for the out-of-scope production sBPF
// interpreter (spec.md §1): a from-scratch register-based executor the
// debugger core drives one instruction at a time. Its decode/execute loop
// and memory mapping are deliberately outside the core's testable surface —
// the core only ever calls Step, the register/frame accessors, and the
// compute-unit accessors.
package sbpfvm

// Memory map constants for the sBPF target (spec.md §6). Mirrors the fixed
// layout solana_sbpf's VM uses: a read-only region (program text + rodata)
// followed by stack, heap, and input regions, each at a 4GiB-aligned base.
const (
	MMProgramStart = 0x100000000
	// MMRodataStart aliases the program region base, as in solana_sbpf's
	// memory map; rodata symbol addresses are computed from it. This VM
	// maps only .text at that base (see VM).
	MMRodataStart = MMProgramStart
	MMStackStart  = 0x200000000
	MMHeapStart   = 0x300000000
	MMInputStart  = 0x400000000

	// InstructionSize is the width in bytes of one encoded sBPF instruction
	// slot (a wide lddw occupies two consecutive slots).
	InstructionSize = 8

	// HostAlign is the alignment the host-side stack/heap buffers are
	// allocated to.
	HostAlign = 16
)

// Instruction class bitfield (low 3 bits of the opcode byte), opcode layout
// grounded on the retrieved nevermosby-ebpf/types.go constant tables.
const (
	classMask  = 0x07
	ldClass    = 0x00
	ldxClass   = 0x01
	stClass    = 0x02
	stxClass   = 0x03
	aluClass   = 0x04
	jmpClass   = 0x05
	_          = 0x06 // retClass, unused by eBPF
	alu64Class = 0x07
)

// ALU/JMP operation bitfield (high 4 bits of the opcode byte).
const (
	opMask  = 0xf0
	addOp   = 0x00
	subOp   = 0x10
	mulOp   = 0x20
	divOp   = 0x30
	orOp    = 0x40
	andOp   = 0x50
	lshOp   = 0x60
	rshOp   = 0x70
	negOp   = 0x80
	modOp   = 0x90
	xorOp   = 0xa0
	movOp   = 0xb0
	arshOp  = 0xc0
	jaOp    = 0x00
	jeqOp   = 0x10
	jgtOp   = 0x20
	jgeOp   = 0x30
	jsetOp  = 0x40
	jneOp   = 0x50
	jsgtOp  = 0x60
	jsgeOp  = 0x70
	jsltOp  = 0xc0
	jsleOp  = 0xd0
	jltOp   = 0xa0
	jleOp   = 0xb0
	callOp  = 0x80
	exitOp  = 0x90
)

// Source-operand bit: 0 = immediate operand, 1 = register operand.
const (
	srcMask = 0x08
	srcImm  = 0x00
	srcReg  = 0x08
)

// Size bitfield for load/store opcodes.
const (
	sizeMask = 0x18
	sizeW    = 0x00
	sizeH    = 0x08
	sizeB    = 0x10
	sizeDW   = 0x18
)

// Mode bitfield for load/store opcodes.
const (
	modeMask = 0xe0
	modeImm  = 0x00
	modeMem  = 0x60
)

// opLdDW is the full opcode byte for the two-slot wide immediate load.
const opLdDW = ldClass | modeImm | sizeDW
