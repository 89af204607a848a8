// Package debugger implements the Debugger Facade: the single owned-state
// struct both the REPL and the JSON adapter drive, holding the interpreter
// handle, breakpoint sets, line map, rodata, and compute-unit accounting.
package debugger

import (
	"fmt"

	"github.com/xyproto/sbpfdbg/internal/dbgerr"
	"github.com/xyproto/sbpfdbg/internal/dwarfline"
	"github.com/xyproto/sbpfdbg/internal/rodata"
	"github.com/xyproto/sbpfdbg/internal/sbpfvm"
)

// Mode selects how Run advances the interpreter.
type Mode int

const (
	ModeContinue Mode = iota
	ModeStep
)

// EventKind tags a DebugEvent.
type EventKind int

const (
	EventStep EventKind = iota
	EventBreakpoint
	EventExit
	EventError
)

// Event is what Run returns after one controller pass.
type Event struct {
	Kind    EventKind
	PC      uint64
	Line    uint32
	HasLine bool
	Code    uint64
	Message string
}

// StackFrame is one synthesized call-stack entry.
type StackFrame struct {
	Index       int
	Name        string
	File        string
	Line        uint32
	Instruction uint64
}

// ComputeUnits is the snapshot Run's caller can query after any event.
type ComputeUnits struct {
	Total     uint64
	Used      uint64
	Remaining uint64
}

// Interpreter is the capability set the Facade drives. sbpfvm.VM satisfies
// it; tests substitute a fake to exercise the controller state machine in
// isolation.
type Interpreter interface {
	Step() (bool, error)
	PC() uint64
	Registers() [12]uint64
	SetRegister(idx int, val uint64) error
	CallFrames() []sbpfvm.CallFrame
	CallDepth() int
	ProgramResult() sbpfvm.ProgramResult
	DueInstructionCount() uint64
	ResetDueInstructionCount()
}

// Engine owns every piece of mutable session state (spec.md §3 Engine
// state): the interpreter, both breakpoint sets, the optional line map and
// rodata list, the current mode, and the breakpoint debounce/CU fields.
type Engine struct {
	interp Interpreter

	breakpoints     map[uint64]bool
	lineBreakpoints map[uint32]bool

	lineMap *dwarfline.LineMap
	rodata  []rodata.Entry

	mode Mode

	atBreakpoint     bool
	lastBreakpointPC uint64
	hasLastBP        bool

	initialComputeBudget uint64
	remainingComputeUnits uint64
}

// New constructs an Engine over interp with the given initial compute-unit
// budget (spec.md §3 initial_compute_budget snapshot).
func New(interp Interpreter, computeBudget uint64) *Engine {
	return &Engine{
		interp:                interp,
		breakpoints:           make(map[uint64]bool),
		lineBreakpoints:       make(map[uint32]bool),
		mode:                  ModeContinue,
		initialComputeBudget:  computeBudget,
		remainingComputeUnits: computeBudget,
	}
}

// consumeInstructionCost deducts the interpreter's accumulated
// due-instruction count from the compute meter and resets the counter,
// per spec.md §4.D consume_instruction_cost. It is a no-op when nothing
// is due (pre-step breakpoint, or Error where budget state is undefined).
// It reports exceeded=true when the checked consume would underflow the
// meter (spec.md §7 ComputationalBudgetExceeded) — the meter is still
// clamped to zero so ComputeUnits' used+remaining=initial invariant holds.
func (e *Engine) consumeInstructionCost() (exceeded bool) {
	due := e.interp.DueInstructionCount()
	if due == 0 {
		return false
	}
	e.interp.ResetDueInstructionCount()
	if due > e.remainingComputeUnits {
		e.remainingComputeUnits = 0
		return true
	}
	e.remainingComputeUnits -= due
	return false
}

var errComputeBudgetExceeded = dbgerr.ComputeBudgetExceeded()

// SetLineMap installs the DWARF line map, enabling line-based operations.
func (e *Engine) SetLineMap(lm *dwarfline.LineMap) { e.lineMap = lm }

// SetRodata installs the extracted rodata entries.
func (e *Engine) SetRodata(entries []rodata.Entry) { e.rodata = entries }

// HasLineMap reports whether line-based features are available.
func (e *Engine) HasLineMap() bool { return e.lineMap != nil && !e.lineMap.Empty() }

func (e *Engine) lineForPC(pc uint64) (uint32, bool) {
	if e.lineMap == nil {
		return 0, false
	}
	return e.lineMap.LineForPC(pc)
}

func (e *Engine) pcsForLine(line uint32) []uint64 {
	if e.lineMap == nil {
		return nil
	}
	return e.lineMap.PCsForLine(line)
}

// PC returns the interpreter's current PC, the raw register-11 value times
// the instruction size (spec.md §4.E).
func (e *Engine) PC() uint64 { return e.interp.PC() }

// SetBreakpointAtLine installs every PC mapped to line into the PC
// breakpoint set. A line with no mapped PCs is a no-op that still reports
// success (spec.md §4.D set_bp_line).
func (e *Engine) SetBreakpointAtLine(line uint32) {
	pcs := e.pcsForLine(line)
	if len(pcs) == 0 {
		return
	}
	e.lineBreakpoints[line] = true
	for _, pc := range pcs {
		e.breakpoints[pc] = true
	}
}

// SetBreakpointAtPC installs a raw PC breakpoint, bypassing line lookup.
func (e *Engine) SetBreakpointAtPC(pc uint64) { e.breakpoints[pc] = true }

// RemoveBreakpointAtLine is the symmetric removal of SetBreakpointAtLine.
func (e *Engine) RemoveBreakpointAtLine(line uint32) {
	pcs := e.pcsForLine(line)
	if len(pcs) == 0 {
		return
	}
	delete(e.lineBreakpoints, line)
	for _, pc := range pcs {
		delete(e.breakpoints, pc)
	}
}

// ClearBreakpoints empties the line-breakpoint set and, for each line,
// removes its PCs from the PC set — or, with no line map installed, wipes
// both sets outright. The file argument is accepted but unused, matching
// the reference adapter's behavior.
func (e *Engine) ClearBreakpoints(_ string) {
	if e.lineMap != nil {
		for line := range e.lineBreakpoints {
			for _, pc := range e.lineMap.PCsForLine(line) {
				delete(e.breakpoints, pc)
			}
		}
		e.lineBreakpoints = make(map[uint32]bool)
		return
	}
	e.breakpoints = make(map[uint64]bool)
	e.lineBreakpoints = make(map[uint32]bool)
}

// Registers returns r0..r10 plus the PC register r11.
func (e *Engine) Registers() [12]uint64 { return e.interp.Registers() }

// SetRegister sets register idx.
func (e *Engine) SetRegister(idx int, val uint64) error {
	return e.interp.SetRegister(idx, val)
}

// StackFrames synthesizes the call stack: one frame per active call frame
// (looked up by its ReturnPC), followed by a final frame for the current PC.
func (e *Engine) StackFrames() []StackFrame {
	frames := e.interp.CallFrames()
	out := make([]StackFrame, 0, len(frames)+1)

	lookup := func(pc uint64) (name, file string, line uint32) {
		if e.lineMap != nil {
			if loc, ok := e.lineMap.SourceLocationForPC(pc); ok {
				return loc.File, loc.File, loc.Line
			}
			if l, ok := e.lineMap.LineForPC(pc); ok {
				return "?", "?", l
			}
		}
		return "?", "?", 0
	}

	for i, f := range frames {
		name, file, line := lookup(f.ReturnPC)
		out = append(out, StackFrame{Index: i, Name: name, File: file, Line: line, Instruction: f.ReturnPC})
	}
	pc := e.PC()
	name, file, line := lookup(pc)
	out = append(out, StackFrame{Index: len(out), Name: name, File: file, Line: line, Instruction: pc})
	return out
}

// Rodata returns the installed rodata entries, possibly nil.
func (e *Engine) Rodata() []rodata.Entry { return e.rodata }

// ComputeUnits reports the compute-unit snapshot: used = initial -
// remaining, per spec.md §4.D.
func (e *Engine) ComputeUnits() ComputeUnits {
	used := e.initialComputeBudget - e.remainingComputeUnits
	return ComputeUnits{Total: e.initialComputeBudget, Used: used, Remaining: e.remainingComputeUnits}
}

// BreakpointsInfo renders the PC- and line-breakpoint sets as REPL-facing
// text, grounded on get_breakpoints_info.
func (e *Engine) BreakpointsInfo() string {
	info := ""
	if len(e.breakpoints) > 0 {
		info += "PC breakpoints:\n"
		for pc := range e.breakpoints {
			if line, ok := e.lineForPC(pc); ok {
				info += fmt.Sprintf("  PC 0x%x (line %d)\n", pc, line)
			} else {
				info += fmt.Sprintf("  PC 0x%x\n", pc)
			}
		}
	}
	if len(e.lineBreakpoints) > 0 {
		info += "Line breakpoints:\n"
		for line := range e.lineBreakpoints {
			pcs := e.pcsForLine(line)
			if len(pcs) == 0 {
				continue
			}
			info += fmt.Sprintf("  Line %d (PCs: ", line)
			for i, pc := range pcs {
				if i > 0 {
					info += ", "
				}
				info += fmt.Sprintf("0x%x", pc)
			}
			info += ")\n"
		}
	}
	if info == "" {
		info = "No breakpoints set\n"
	}
	return info
}
