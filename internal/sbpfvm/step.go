package sbpfvm

import (
	"encoding/binary"

	"github.com/xyproto/sbpfdbg/internal/dbgerr"
)

// Step decodes and executes exactly one instruction (two slots for a wide
// lddw). It returns ok=false once the program has produced a ProgramResult
// (either from `exit` at call depth zero or a trapped fault), at which
// point the controller must stop calling Step.
func (vm *VM) Step() (ok bool, err error) {
	if vm.result.Done {
		return false, nil
	}

	raw, wideImm, fetched := vm.fetch()
	if !fetched {
		vm.trap(dbgerr.Interpreter("fetch past end of program text"))
		return false, vm.result.Err
	}

	op, dst, src, offset, imm := decode(raw)
	class := op & classMask

	switch class {
	case ldClass:
		if op != opLdDW {
			vm.trap(dbgerr.Interpreter("unsupported ld opcode"))
			return false, vm.result.Err
		}
		vm.regs[dst] = uint64(wideImm)<<32 | uint64(uint32(imm))
		vm.pc += 2
		vm.dueInsnCount++
		return true, nil

	case ldxClass:
		if err := vm.execLoad(op, dst, src, offset); err != nil {
			vm.trap(err)
			return false, err
		}

	case stClass:
		if err := vm.execStoreImm(op, dst, offset, imm); err != nil {
			vm.trap(err)
			return false, err
		}

	case stxClass:
		if err := vm.execStoreReg(op, dst, src, offset); err != nil {
			vm.trap(err)
			return false, err
		}

	case aluClass:
		vm.execALU(op, dst, src, imm, false)

	case alu64Class:
		vm.execALU(op, dst, src, imm, true)

	case jmpClass:
		done, err := vm.execJump(op, dst, src, offset, imm)
		if err != nil {
			vm.trap(err)
			return false, err
		}
		if done {
			return false, nil
		}
		vm.dueInsnCount++
		return true, nil

	default:
		vm.trap(dbgerr.Interpreter("unsupported instruction class"))
		return false, vm.result.Err
	}

	vm.pc++
	vm.dueInsnCount++
	return true, nil
}

func (vm *VM) trap(err error) {
	vm.result = ProgramResult{Done: true, Err: err}
}

func sizeBytes(op byte) int {
	switch op & sizeMask {
	case sizeB:
		return 1
	case sizeH:
		return 2
	case sizeW:
		return 4
	case sizeDW:
		return 8
	}
	return 0
}

func (vm *VM) execLoad(op byte, dst, src int, offset int16) error {
	n := sizeBytes(op)
	addr := uint64(int64(vm.regs[src]) + int64(offset))
	buf, err := vm.translate(addr, n, false)
	if err != nil {
		return err
	}
	switch n {
	case 1:
		vm.regs[dst] = uint64(buf[0])
	case 2:
		vm.regs[dst] = uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		vm.regs[dst] = uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		vm.regs[dst] = binary.LittleEndian.Uint64(buf)
	}
	return nil
}

func (vm *VM) execStoreImm(op byte, dst int, offset int16, imm int32) error {
	n := sizeBytes(op)
	addr := uint64(int64(vm.regs[dst]) + int64(offset))
	buf, err := vm.translate(addr, n, true)
	if err != nil {
		return err
	}
	writeSized(buf, n, uint64(uint32(imm)))
	return nil
}

func (vm *VM) execStoreReg(op byte, dst, src int, offset int16) error {
	n := sizeBytes(op)
	addr := uint64(int64(vm.regs[dst]) + int64(offset))
	buf, err := vm.translate(addr, n, true)
	if err != nil {
		return err
	}
	writeSized(buf, n, vm.regs[src])
	return nil
}

func writeSized(buf []byte, n int, val uint64) {
	switch n {
	case 1:
		buf[0] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(val))
	case 8:
		binary.LittleEndian.PutUint64(buf, val)
	}
}

// execALU applies an ALU64/ALU32 operation. is64 selects whether the result
// is sign-extended/truncated to 32 bits per the eBPF ALU32 semantics.
func (vm *VM) execALU(op byte, dst, src int, imm int32, is64 bool) {
	var operand uint64
	if op&srcMask == srcReg {
		operand = vm.regs[src]
	} else {
		operand = uint64(uint32(imm))
		if is64 {
			operand = uint64(imm)
		}
	}

	a := vm.regs[dst]
	if !is64 {
		a = uint64(uint32(a))
	}

	var result uint64
	switch op & opMask {
	case addOp:
		result = a + operand
	case subOp:
		result = a - operand
	case mulOp:
		result = a * operand
	case divOp:
		if operand == 0 {
			result = 0
		} else {
			result = a / operand
		}
	case orOp:
		result = a | operand
	case andOp:
		result = a & operand
	case lshOp:
		result = a << (operand & shiftMask(is64))
	case rshOp:
		result = a >> (operand & shiftMask(is64))
	case negOp:
		result = -a
	case modOp:
		if operand == 0 {
			result = a
		} else {
			result = a % operand
		}
	case xorOp:
		result = a ^ operand
	case movOp:
		result = operand
	case arshOp:
		if is64 {
			result = uint64(int64(a) >> (operand & 63))
		} else {
			result = uint64(uint32(int32(a) >> (operand & 31)))
		}
	}

	if !is64 {
		result = uint64(uint32(result))
	}
	vm.regs[dst] = result
}

func shiftMask(is64 bool) uint64 {
	if is64 {
		return 63
	}
	return 31
}

// execJump applies a jump/call/exit instruction. It returns done=true when
// the program has terminated (an `exit` at call depth zero), at which
// point vm.result has already been populated.
func (vm *VM) execJump(op byte, dst, src int, offset int16, imm int32) (bool, error) {
	switch op {
	case jmpClass | callOp:
		return false, vm.execCall(imm)
	case jmpClass | exitOp:
		return vm.execExit(), nil
	case jmpClass | jaOp:
		vm.pc = uint64(int64(vm.pc) + int64(offset) + 1)
		return false, nil
	}

	var operand uint64
	if op&srcMask == srcReg {
		operand = vm.regs[src]
	} else {
		operand = uint64(int64(imm))
	}
	a := vm.regs[dst]

	taken := false
	switch op & opMask {
	case jeqOp:
		taken = a == operand
	case jneOp:
		taken = a != operand
	case jgtOp:
		taken = a > operand
	case jgeOp:
		taken = a >= operand
	case jltOp:
		taken = a < operand
	case jleOp:
		taken = a <= operand
	case jsetOp:
		taken = a&operand != 0
	case jsgtOp:
		taken = int64(a) > int64(operand)
	case jsgeOp:
		taken = int64(a) >= int64(operand)
	case jsltOp:
		taken = int64(a) < int64(operand)
	case jsleOp:
		taken = int64(a) <= int64(operand)
	default:
		return false, dbgerr.Interpreter("unsupported jump opcode")
	}

	if taken {
		vm.pc = uint64(int64(vm.pc) + int64(offset) + 1)
	} else {
		vm.pc++
	}
	return false, nil
}

func (vm *VM) execCall(imm int32) error {
	if len(vm.callFrames) >= vm.maxCallDepth {
		return dbgerr.Interpreter("call stack depth exceeded")
	}
	var saved [4]uint64
	copy(saved[:], vm.regs[6:10])
	vm.callFrames = append(vm.callFrames, CallFrame{
		ReturnPC:  vm.pc + 1,
		FrameSP:   vm.regs[10],
		SavedRegs: saved,
	})
	vm.pc = uint64(int64(vm.pc) + int64(imm) + 1)
	return nil
}

// execExit pops a call frame, or terminates the program when the call
// stack is empty, recording r0 as the exit code.
func (vm *VM) execExit() bool {
	if len(vm.callFrames) == 0 {
		vm.result = ProgramResult{Done: true, ExitCode: vm.regs[0]}
		return true
	}
	top := vm.callFrames[len(vm.callFrames)-1]
	vm.callFrames = vm.callFrames[:len(vm.callFrames)-1]
	copy(vm.regs[6:10], top.SavedRegs[:])
	vm.regs[10] = top.FrameSP
	vm.pc = top.ReturnPC
	return false
}
