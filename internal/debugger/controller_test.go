package debugger

import (
	"testing"

	"github.com/xyproto/sbpfdbg/internal/sbpfvm"
)

// fakeInterp is a minimal Interpreter a program counter that advances by
// one slot per successful Step, exercising the controller state machine
// without a real instruction stream.
type fakeInterp struct {
	pcSlot    uint64
	programLen uint64 // number of valid PC slots before Exit
	due       uint64
	exitCode  uint64
	faultAt   uint64 // pcSlot at which Step should fault; 0 = never
	faultErr  error
}

func (f *fakeInterp) Step() (bool, error) {
	if f.faultAt != 0 && f.pcSlot == f.faultAt {
		return false, f.faultErr
	}
	if f.pcSlot >= f.programLen {
		return false, nil
	}
	f.pcSlot++
	f.due++
	return true, nil
}

func (f *fakeInterp) PC() uint64 { return f.pcSlot * sbpfvm.InstructionSize }

func (f *fakeInterp) Registers() [12]uint64 { return [12]uint64{} }

func (f *fakeInterp) SetRegister(idx int, val uint64) error { return nil }

func (f *fakeInterp) CallFrames() []sbpfvm.CallFrame { return nil }

func (f *fakeInterp) CallDepth() int { return 0 }

func (f *fakeInterp) ProgramResult() sbpfvm.ProgramResult {
	if f.faultAt != 0 && f.pcSlot == f.faultAt {
		return sbpfvm.ProgramResult{Done: true, Err: f.faultErr}
	}
	if f.pcSlot >= f.programLen {
		return sbpfvm.ProgramResult{Done: true, ExitCode: f.exitCode}
	}
	return sbpfvm.ProgramResult{}
}

func (f *fakeInterp) DueInstructionCount() uint64 { return f.due }

func (f *fakeInterp) ResetDueInstructionCount() { f.due = 0 }

// S4: step into a breakpoint at P (a PC breakpoint at P = 0 stands in for a
// line breakpoint). First run() in Step mode -> Breakpoint(P), no
// instruction executed. Second run() -> Step reporting the new PC, which
// differs from P; used increases by exactly the step's CU cost.
func TestStepIntoBreakpoint(t *testing.T) {
	interp := &fakeInterp{programLen: 10}
	e := New(interp, 1000)
	e.SetMode(ModeStep)
	e.SetBreakpointAtPC(0) // break at the entry PC directly

	before := interp.pcSlot
	ev := e.Run()
	if ev.Kind != EventBreakpoint || ev.PC != 0 {
		t.Fatalf("first Run() = %+v, want Breakpoint(0)", ev)
	}
	if interp.pcSlot != before {
		t.Fatalf("pre-step breakpoint must not execute the instruction: pcSlot moved from %d to %d", before, interp.pcSlot)
	}
	cuBefore := e.ComputeUnits()

	ev = e.Run()
	if ev.Kind != EventStep {
		t.Fatalf("second Run() = %+v, want Step", ev)
	}
	if ev.PC == 0 {
		t.Fatalf("new PC must differ from breakpoint PC, got %#x", ev.PC)
	}
	cuAfter := e.ComputeUnits()
	if cuAfter.Used != cuBefore.Used+1 {
		t.Fatalf("used = %d, want %d (cost of exactly one step)", cuAfter.Used, cuBefore.Used+1)
	}
}

// S8 / invariant: debounce. Immediately after a Breakpoint(P) event, a
// subsequent run() never re-emits Breakpoint(P) without advancing past it
// — in Continue mode the pending instruction runs and we proceed.
func TestBreakpointDebounce(t *testing.T) {
	interp := &fakeInterp{programLen: 10}
	e := New(interp, 1000)
	e.SetMode(ModeContinue)
	e.SetBreakpointAtPC(3 * sbpfvm.InstructionSize)

	ev := e.Run()
	if ev.Kind != EventBreakpoint || ev.PC != 3*sbpfvm.InstructionSize {
		t.Fatalf("Run() = %+v, want Breakpoint(3*InstructionSize)", ev)
	}

	// Running again resumes past the breakpoint and runs to exit; it must
	// not immediately re-report Breakpoint at the same PC.
	ev = e.Run()
	if ev.Kind == EventBreakpoint && ev.PC == 3*sbpfvm.InstructionSize {
		t.Fatalf("breakpoint re-fired at the same PC without advancing")
	}
}

// S5: continue across breakpoint runs to Exit without looping on P.
func TestContinueAcrossBreakpointToExit(t *testing.T) {
	interp := &fakeInterp{programLen: 5, exitCode: 7}
	e := New(interp, 1000)
	e.SetMode(ModeContinue)
	e.SetBreakpointAtPC(2 * sbpfvm.InstructionSize)

	ev := e.Run()
	if ev.Kind != EventBreakpoint {
		t.Fatalf("first Run() = %+v, want Breakpoint", ev)
	}
	ev = e.Run()
	if ev.Kind != EventExit || ev.Code != 7 {
		t.Fatalf("second Run() = %+v, want Exit(7)", ev)
	}
}

// Invariant 6: breakpoint idempotence.
func TestBreakpointIdempotence(t *testing.T) {
	interp := &fakeInterp{programLen: 10}
	e := New(interp, 1000)
	e.lineMap = nil // no line map installed: line ops are no-ops; this test covers PC breakpoints only

	e.SetBreakpointAtPC(8)
	e.SetBreakpointAtPC(8)
	if !e.breakpoints[8] {
		t.Fatal("breakpoint at pc 8 should be set")
	}
	delete(e.breakpoints, 8)
	if e.breakpoints[8] {
		t.Fatal("breakpoint at pc 8 should be cleared")
	}
}

// Invariant 9: CU conservation — used + remaining = initial, and used is
// monotonic nondecreasing.
func TestComputeUnitConservation(t *testing.T) {
	interp := &fakeInterp{programLen: 20}
	e := New(interp, 500)
	e.SetMode(ModeStep)

	lastUsed := uint64(0)
	for i := 0; i < 10; i++ {
		ev := e.Run()
		if ev.Kind == EventExit || ev.Kind == EventError {
			break
		}
		cu := e.ComputeUnits()
		if cu.Used+cu.Remaining != cu.Total {
			t.Fatalf("iteration %d: used(%d) + remaining(%d) != total(%d)", i, cu.Used, cu.Remaining, cu.Total)
		}
		if cu.Used < lastUsed {
			t.Fatalf("iteration %d: used decreased from %d to %d", i, lastUsed, cu.Used)
		}
		lastUsed = cu.Used
	}
}

// Invariant 7: a single Step-mode run() executes exactly one instruction
// unless a pre-step breakpoint fires, in which case it executes zero.
func TestStepSemantics(t *testing.T) {
	interp := &fakeInterp{programLen: 10}
	e := New(interp, 1000)
	e.SetMode(ModeStep)

	before := interp.pcSlot
	beforePC := e.PC()
	ev := e.Run()
	if ev.Kind != EventStep {
		t.Fatalf("Run() = %+v, want Step", ev)
	}
	if interp.pcSlot != before+1 {
		t.Fatalf("pcSlot advanced by %d, want 1", interp.pcSlot-before)
	}
	if ev.PC != beforePC {
		t.Fatalf("Step event PC = %#x, want the pre-step PC %#x", ev.PC, beforePC)
	}
}

func TestErrorEventOnFault(t *testing.T) {
	interp := &fakeInterp{programLen: 10, faultAt: 3, faultErr: errBoom}
	e := New(interp, 1000)
	e.SetMode(ModeContinue)

	ev := e.Run()
	if ev.Kind != EventError {
		t.Fatalf("Run() = %+v, want Error", ev)
	}
}

// spec.md §7: a checked consume that would underflow the meter surfaces
// as ComputationalBudgetExceeded, not a silently clamped budget.
func TestComputeBudgetExceeded(t *testing.T) {
	interp := &fakeInterp{programLen: 10}
	e := New(interp, 2)
	e.SetMode(ModeStep)

	for i := 0; i < 2; i++ {
		ev := e.Run()
		if ev.Kind != EventStep {
			t.Fatalf("step %d: Run() = %+v, want Step", i, ev)
		}
	}

	ev := e.Run()
	if ev.Kind != EventError {
		t.Fatalf("Run() = %+v, want Error (budget exceeded)", ev)
	}
	cu := e.ComputeUnits()
	if cu.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0 after exceeding the budget", cu.Remaining)
	}
	if cu.Used+cu.Remaining != cu.Total {
		t.Fatalf("used(%d) + remaining(%d) != total(%d)", cu.Used, cu.Remaining, cu.Total)
	}
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
