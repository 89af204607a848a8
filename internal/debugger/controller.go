package debugger

import "fmt"

// SetMode switches between Step and Continue for the next Run call.
func (e *Engine) SetMode(m Mode) { e.mode = m }

// Mode returns the engine's current debug mode.
func (e *Engine) Mode() Mode { return e.mode }

// Run advances the interpreter until it yields an event: a pre-step
// breakpoint hit, one completed Step in Step mode, an Exit, or an Error.
// This is the Stepping Controller (spec.md §4.D).
func (e *Engine) Run() Event {
	if e.mode == ModeStep {
		return e.runStep()
	}
	return e.runContinue()
}

func (e *Engine) atBreak(pc uint64) bool {
	return e.breakpoints[pc] && !(e.hasLastBP && e.lastBreakpointPC == pc)
}

// resumeFromBreak executes the single pending instruction the engine
// stopped at, clearing the breakpoint-debounce state, and reports whether
// the program ran to completion or faulted. ok=false means the caller
// should stop; the Event has already been filled in.
func (e *Engine) resumeFromBreak(currentPC uint64) (Event, bool) {
	ok, err := e.interp.Step()
	if ok {
		if e.consumeInstructionCost() {
			return Event{Kind: EventError, PC: e.PC(), Message: errComputeBudgetExceeded.Error()}, false
		}
		e.atBreakpoint = false
		e.hasLastBP = false
		return Event{}, true
	}
	return e.terminalEvent(currentPC, err), false
}

func (e *Engine) terminalEvent(pc uint64, stepErr error) Event {
	result := e.interp.ProgramResult()
	switch {
	case result.Done && result.Err == nil:
		if e.consumeInstructionCost() {
			return Event{Kind: EventError, PC: pc, Message: errComputeBudgetExceeded.Error()}
		}
		return Event{Kind: EventExit, Code: result.ExitCode}
	case result.Done && result.Err != nil:
		return Event{Kind: EventError, Message: fmt.Sprintf("program error at PC 0x%016x: %v", pc, result.Err)}
	default:
		msg := "unknown program error"
		if stepErr != nil {
			msg = stepErr.Error()
		}
		return Event{Kind: EventError, Message: fmt.Sprintf("%s at PC 0x%016x", msg, pc)}
	}
}

func (e *Engine) breakpointEvent(pc uint64) Event {
	e.atBreakpoint = true
	e.lastBreakpointPC = pc
	e.hasLastBP = true
	line, hasLine := e.lineForPC(pc)
	return Event{Kind: EventBreakpoint, PC: pc, Line: line, HasLine: hasLine}
}

func (e *Engine) stepEvent(pc uint64) Event {
	line, hasLine := e.lineForPC(pc)
	return Event{Kind: EventStep, PC: pc, Line: line, HasLine: hasLine}
}

func (e *Engine) runStep() Event {
	currentPC := e.PC()

	if e.atBreakpoint {
		ev, ran := e.resumeFromBreak(currentPC)
		if !ran {
			return ev
		}
		newPC := e.PC()
		if e.breakpoints[newPC] {
			return e.breakpointEvent(newPC)
		}
		return e.stepEvent(newPC)
	}

	if e.atBreak(currentPC) {
		return e.breakpointEvent(currentPC)
	}

	ok, err := e.interp.Step()
	if ok {
		if e.consumeInstructionCost() {
			return Event{Kind: EventError, PC: e.PC(), Message: errComputeBudgetExceeded.Error()}
		}
		return e.stepEvent(currentPC)
	}
	return e.terminalEvent(currentPC, err)
}

func (e *Engine) runContinue() Event {
	for {
		currentPC := e.PC()

		if e.atBreakpoint {
			ev, ran := e.resumeFromBreak(currentPC)
			if !ran {
				return ev
			}
			continue
		}

		if e.atBreak(currentPC) {
			return e.breakpointEvent(currentPC)
		}

		ok, err := e.interp.Step()
		if ok {
			if e.consumeInstructionCost() {
				return Event{Kind: EventError, PC: e.PC(), Message: errComputeBudgetExceeded.Error()}
			}
			continue
		}
		return e.terminalEvent(currentPC, err)
	}
}
