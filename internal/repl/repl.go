// Package repl implements the line-oriented REPL front end (spec.md §4.F):
// a command loop over stdin that formats the Facade's state as human
// output.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xyproto/sbpfdbg/internal/debugger"
)

// Run reads whitespace-tokenized commands from in, one per line, writing
// formatted output to out, until `quit` or in is exhausted.
func Run(engine *debugger.Engine, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if quit := dispatch(engine, line, out); quit {
				return
			}
		}
		fmt.Fprint(out, "> ")
	}
}

func dispatch(e *debugger.Engine, line string, out io.Writer) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "step", "s":
		printEvent(e, debugger.ModeStep, out)
	case "continue", "c":
		printEvent(e, debugger.ModeContinue, out)
	case "break":
		cmdBreak(e, args, out)
	case "delete":
		cmdDelete(e, args, out)
	case "info":
		cmdInfo(e, args, out)
	case "regs":
		cmdRegs(e, out)
	case "reg":
		cmdReg(e, args, out)
	case "setreg":
		cmdSetReg(e, args, out)
	case "rodata":
		cmdRodata(e, out)
	case "lines":
		cmdLines(e, out)
	case "stack", "bt":
		cmdStack(e, out)
	case "compute":
		cmdCompute(e, out)
	case "help":
		printHelp(out)
	case "quit":
		return true
	default:
		fmt.Fprintf(out, "unknown command: %s\n", cmd)
	}
	return false
}

func printEvent(e *debugger.Engine, mode debugger.Mode, out io.Writer) {
	e.SetMode(mode)
	ev := e.Run()
	switch ev.Kind {
	case debugger.EventStep:
		fmt.Fprintf(out, "stepped to pc 0x%x%s\n", ev.PC, lineSuffix(ev))
	case debugger.EventBreakpoint:
		fmt.Fprintf(out, "breakpoint at pc 0x%x%s\n", ev.PC, lineSuffix(ev))
	case debugger.EventExit:
		cu := e.ComputeUnits()
		fmt.Fprintf(out, "program exited with code %d (compute units used: %d)\n", ev.Code, cu.Used)
	case debugger.EventError:
		fmt.Fprintf(out, "error: %s\n", ev.Message)
	}
}

func lineSuffix(ev debugger.Event) string {
	if !ev.HasLine {
		return ""
	}
	return fmt.Sprintf(" (line %d)", ev.Line)
}

func cmdBreak(e *debugger.Engine, args []string, out io.Writer) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: break <line|pc>")
		return
	}
	if line, err := strconv.ParseUint(args[0], 10, 32); err == nil {
		e.SetBreakpointAtLine(uint32(line))
		fmt.Fprintf(out, "breakpoint set at line %d\n", line)
		return
	}
	pc, err := parseNumber(args[0])
	if err != nil {
		fmt.Fprintf(out, "invalid line or pc: %s\n", args[0])
		return
	}
	e.SetBreakpointAtPC(pc)
	fmt.Fprintf(out, "breakpoint set at pc 0x%x\n", pc)
}

func cmdDelete(e *debugger.Engine, args []string, out io.Writer) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: delete <line>")
		return
	}
	line, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(out, "invalid line: %s\n", args[0])
		return
	}
	e.RemoveBreakpointAtLine(uint32(line))
	fmt.Fprintf(out, "breakpoint removed at line %d\n", line)
}

func cmdInfo(e *debugger.Engine, args []string, out io.Writer) {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: info breakpoints|b | info line")
		return
	}
	switch args[0] {
	case "breakpoints", "b":
		fmt.Fprint(out, e.BreakpointsInfo())
	case "line":
		pc := e.PC()
		if l, ok := lineForCurrentPC(e, pc); ok {
			fmt.Fprintf(out, "current line: %d (pc 0x%x)\n", l, pc)
		} else {
			fmt.Fprintf(out, "no line information for pc 0x%x\n", pc)
		}
	default:
		fmt.Fprintf(out, "unknown info subcommand: %s\n", args[0])
	}
}

func lineForCurrentPC(e *debugger.Engine, pc uint64) (uint32, bool) {
	frames := e.StackFrames()
	if len(frames) == 0 {
		return 0, false
	}
	last := frames[len(frames)-1]
	if last.Line == 0 {
		return 0, false
	}
	return last.Line, true
}

func cmdRegs(e *debugger.Engine, out io.Writer) {
	regs := e.Registers()
	fmt.Fprintln(out, "register | value")
	for i, v := range regs {
		fmt.Fprintf(out, "  r%-2d    | 0x%016x\n", i, v)
	}
	fmt.Fprintf(out, "  pc     | 0x%016x\n", e.PC())
}

func cmdReg(e *debugger.Engine, args []string, out io.Writer) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: reg <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n > 11 {
		fmt.Fprintf(out, "invalid register: %s\n", args[0])
		return
	}
	regs := e.Registers()
	fmt.Fprintf(out, "r%d = 0x%016x\n", n, regs[n])
}

func cmdSetReg(e *debugger.Engine, args []string, out io.Writer) {
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: setreg <n> <dec-or-0x-hex>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(out, "invalid register: %s\n", args[0])
		return
	}
	val, err := parseNumber(args[1])
	if err != nil {
		fmt.Fprintf(out, "invalid value: %s\n", args[1])
		return
	}
	if err := e.SetRegister(n, val); err != nil {
		fmt.Fprintf(out, "error: %s\n", err)
		return
	}
	fmt.Fprintf(out, "r%d set to 0x%016x\n", n, val)
}

func cmdRodata(e *debugger.Engine, out io.Writer) {
	entries := e.Rodata()
	if len(entries) == 0 {
		fmt.Fprintln(out, "no rodata symbols")
		return
	}
	fmt.Fprintln(out, "name | address | value")
	for _, r := range entries {
		fmt.Fprintf(out, "  %s | 0x%016x | %s\n", r.Name, r.Address, r.Content)
	}
}

func cmdLines(e *debugger.Engine, out io.Writer) {
	if !e.HasLineMap() {
		fmt.Fprintln(out, "no line mapping available. compile with debug info (-g)")
		return
	}
	fmt.Fprintln(out, "line mapping loaded")
}

func cmdStack(e *debugger.Engine, out io.Writer) {
	frames := e.StackFrames()
	for _, f := range frames {
		fmt.Fprintf(out, "#%d  0x%016x  %s at %s:%d\n", f.Index, f.Instruction, f.Name, f.File, f.Line)
	}
}

func cmdCompute(e *debugger.Engine, out io.Writer) {
	cu := e.ComputeUnits()
	fmt.Fprintf(out, "compute units: %d used, %d remaining, %d total\n", cu.Used, cu.Remaining, cu.Total)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `commands:
  step|s                     execute one instruction
  continue|c                 run until breakpoint or exit
  break <line|pc>            set a breakpoint
  delete <line>               remove a line breakpoint
  info breakpoints|b          list breakpoints
  info line                   show current source line
  regs                        dump all registers
  reg <n>                     show one register
  setreg <n> <value>          set a register (decimal or 0x-hex)
  rodata                      list rodata symbols
  lines                       report line-mapping status
  stack|bt                    show the call stack
  compute                     show compute-unit usage
  quit                        end the session`)
}

func parseNumber(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
