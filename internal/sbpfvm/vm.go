package sbpfvm

import (
	"encoding/binary"

	"github.com/xyproto/sbpfdbg/internal/dbgerr"
)

// region is a single mapped memory window: a byte slice addressed starting
// at base in VM address space.
type region struct {
	base     uint64
	data     []byte
	writable bool
}

func (r *region) contains(addr uint64, size int) bool {
	if addr < r.base {
		return false
	}
	off := addr - r.base
	return off+uint64(size) <= uint64(len(r.data))
}

// CallFrame is one entry of the synthetic call stack the VM keeps as it
// executes `call` instructions, mirroring what the Facade's stack-frame
// query surfaces (spec.md §4.E get_stack_frames).
type CallFrame struct {
	ReturnPC   uint64
	FrameSP    uint64
	SavedRegs  [4]uint64 // r6-r9, callee-saved per the sBPF calling convention
}

// ProgramResult is the outcome of the interpreted program once it stops
// running, distinguishing a clean exit code from a trapped failure.
type ProgramResult struct {
	Done     bool
	ExitCode uint64
	Err      error
}

// VM is the stand-in sBPF interpreter. It decodes and executes one
// instruction at a time against a fixed register file and four mapped
// memory regions (read-only program text, stack, heap, input). The
// read-only region holds exactly Config.Text; program.Load passes the .text
// section alone, so .rodata is not mapped.
type VM struct {
	regs [11]uint64 // r0-r10; r10 is the read-only frame pointer
	pc   uint64      // instruction slot index, not byte offset; exposed as reg[11]

	text   region
	stack  region
	heap   region
	input  region

	callFrames   []CallFrame
	maxCallDepth int

	dueInsnCount uint64

	result ProgramResult
}

// Config wires up a VM's memory regions and initial register state. Region
// byte slices are owned by the caller (typically internal/program, which
// built them from the loaded ELF and the serialized input parameters).
type Config struct {
	Text         []byte
	Stack        []byte
	Heap         []byte
	Input        []byte
	EntrypointPC uint64 // instruction slot index of the entrypoint
	MaxCallDepth int
}

// New builds a VM ready to execute from cfg.EntrypointPC. Register 1 is
// seeded with the input region's base VM address and register 10 with the
// top of the stack region, matching the calling convention the loaded
// sBPF program expects on entry.
func New(cfg Config) *VM {
	vm := &VM{
		text:         region{base: MMProgramStart, data: cfg.Text, writable: false},
		stack:        region{base: MMStackStart, data: cfg.Stack, writable: true},
		heap:         region{base: MMHeapStart, data: cfg.Heap, writable: true},
		input:        region{base: MMInputStart, data: cfg.Input, writable: true},
		pc:           cfg.EntrypointPC,
		maxCallDepth: cfg.MaxCallDepth,
	}
	if vm.maxCallDepth == 0 {
		vm.maxCallDepth = 64
	}
	vm.regs[1] = MMInputStart
	vm.regs[10] = MMStackStart + uint64(len(cfg.Stack))
	return vm
}

// PC returns the byte offset of the next instruction to execute, reg[11]
// scaled by the instruction size per the GLOSSARY's "PC = r11 x 8".
func (vm *VM) PC() uint64 { return vm.pc * InstructionSize }

// Registers returns r0 through r10 plus the PC register r11 (the raw
// instruction-slot index, not yet scaled to a byte offset) — the 12-entry
// register file spec.md §4.E describes.
func (vm *VM) Registers() [12]uint64 {
	var out [12]uint64
	copy(out[:11], vm.regs[:])
	out[11] = vm.pc
	return out
}

// SetRegister overwrites register idx (0-11); idx 11 is the PC register
// and moves the raw instruction-slot index directly.
func (vm *VM) SetRegister(idx int, val uint64) error {
	if idx < 0 || idx > 11 {
		return dbgerr.RegisterOutOfRange(idx)
	}
	if idx == 11 {
		vm.pc = val
		return nil
	}
	vm.regs[idx] = val
	return nil
}

// CallFrames returns the synthetic call stack, outermost frame first.
func (vm *VM) CallFrames() []CallFrame { return append([]CallFrame(nil), vm.callFrames...) }

// CallDepth returns the number of live call frames.
func (vm *VM) CallDepth() int { return len(vm.callFrames) }

// ProgramResult returns the VM's terminal state, zero-valued while running.
func (vm *VM) ProgramResult() ProgramResult { return vm.result }

// DueInstructionCount returns the number of instructions retired since the
// last ResetDueInstructionCount, the quantity the controller reconciles
// against the compute-unit budget (spec.md §4.D consume_instruction_cost).
func (vm *VM) DueInstructionCount() uint64 { return vm.dueInsnCount }

// ResetDueInstructionCount zeroes the due-instruction counter.
func (vm *VM) ResetDueInstructionCount() { vm.dueInsnCount = 0 }

func (vm *VM) fetch() (rawInsn uint64, wideImm uint32, ok bool) {
	off := vm.pc * InstructionSize
	if off+InstructionSize > uint64(len(vm.text.data)) {
		return 0, 0, false
	}
	rawInsn = binary.LittleEndian.Uint64(vm.text.data[off : off+8])
	if byte(rawInsn) == opLdDW {
		next := off + InstructionSize
		if next+4 > uint64(len(vm.text.data)) {
			return 0, 0, false
		}
		wideImm = binary.LittleEndian.Uint32(vm.text.data[next+4 : next+8])
	}
	return rawInsn, wideImm, true
}

func decode(raw uint64) (op byte, dst, src int, offset int16, imm int32) {
	op = byte(raw)
	regs := byte(raw >> 8)
	dst = int(regs & 0x0f)
	src = int((regs >> 4) & 0x0f)
	offset = int16(raw >> 16)
	imm = int32(raw >> 32)
	return
}

// translate resolves a VM address to a host byte slice window, enforcing
// the region's writability for stores.
func (vm *VM) translate(addr uint64, size int, write bool) ([]byte, error) {
	for _, r := range []*region{&vm.text, &vm.stack, &vm.heap, &vm.input} {
		if r.contains(addr, size) {
			if write && !r.writable {
				return nil, dbgerr.Interpreter("write to read-only memory region")
			}
			off := addr - r.base
			return r.data[off : off+uint64(size)], nil
		}
	}
	return nil, dbgerr.Interpreter("memory access out of bounds")
}
