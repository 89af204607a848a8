// Package dbglog is the debugger's ambient logging helper: a package-level
// verbosity switch plus prefixed stderr writers, the same
// VerboseMode-gated fmt.Fprintf idiom the rest of this codebase's lineage
// uses rather than pulling in a structured logging library.
package dbglog

import (
	"fmt"
	"os"
)

// Verbose gates Debugf output. Set from the -v CLI flag.
var Verbose bool

func prefixed(component, format string, args ...any) string {
	return fmt.Sprintf("[sbpfdbg:%s] %s\n", component, fmt.Sprintf(format, args...))
}

// Debugf writes a diagnostic line to stderr when Verbose is set.
func Debugf(component, format string, args ...any) {
	if !Verbose {
		return
	}
	fmt.Fprint(os.Stderr, prefixed(component, format, args...))
}

// Warnf always writes a warning line to stderr, used for recoverable
// failures (DWARF/rodata parse failures the Facade degrades gracefully
// from, per spec.md §7).
func Warnf(component, format string, args ...any) {
	fmt.Fprint(os.Stderr, prefixed(component, format, args...))
}

// Errorf writes an "error:"-prefixed line, matching the fatal-error wire
// format spec.md §6 requires for CLI failures.
func Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error:%s\n", fmt.Sprintf(format, args...))
}
