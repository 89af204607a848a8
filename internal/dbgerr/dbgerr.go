// Package dbgerr defines the fixed set of error kinds the debugger core can
// surface, following the level/category/message shape the rest of this
// module's diagnostics use.
package dbgerr

import "fmt"

// Kind tags a DebuggerError with one of the fixed error categories the
// debugger core distinguishes.
type Kind int

const (
	KindIO Kind = iota
	KindElfParse
	KindDwarfRead
	KindDwarfUnit
	KindMissingAccount
	KindRegisterOutOfRange
	KindComputeBudgetExceeded
	KindInterpreter
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindElfParse:
		return "elf-parse"
	case KindDwarfRead:
		return "dwarf-read"
	case KindDwarfUnit:
		return "dwarf-unit"
	case KindMissingAccount:
		return "missing-account"
	case KindRegisterOutOfRange:
		return "register-out-of-range"
	case KindComputeBudgetExceeded:
		return "compute-budget-exceeded"
	case KindInterpreter:
		return "interpreter"
	default:
		return "unknown"
	}
}

// DebuggerError is the single error type the debugger core returns. Kind
// classifies it for callers that want to branch on the failure category;
// Err, when set, carries the underlying cause.
type DebuggerError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *DebuggerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *DebuggerError) Unwrap() error { return e.Err }

// Is reports whether target is a *DebuggerError with the same Kind, so
// callers can do errors.Is(err, dbgerr.New(dbgerr.KindMissingAccount, "", nil))
// without caring about Msg/Err.
func (e *DebuggerError) Is(target error) bool {
	other, ok := target.(*DebuggerError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a DebuggerError of the given kind.
func New(kind Kind, msg string, cause error) *DebuggerError {
	return &DebuggerError{Kind: kind, Msg: msg, Err: cause}
}

func IO(msg string, cause error) *DebuggerError {
	return New(KindIO, msg, cause)
}

func ElfParse(msg string, cause error) *DebuggerError {
	return New(KindElfParse, msg, cause)
}

func DwarfRead(msg string, cause error) *DebuggerError {
	return New(KindDwarfRead, msg, cause)
}

func DwarfUnit(msg string, cause error) *DebuggerError {
	return New(KindDwarfUnit, msg, cause)
}

func MissingAccount(key string) *DebuggerError {
	return New(KindMissingAccount, fmt.Sprintf("no account provided for key %s", key), nil)
}

func RegisterOutOfRange(idx int) *DebuggerError {
	return New(KindRegisterOutOfRange, fmt.Sprintf("register index %d out of range", idx), nil)
}

func ComputeBudgetExceeded() *DebuggerError {
	return New(KindComputeBudgetExceeded, "compute budget exceeded", nil)
}

func Interpreter(msg string) *DebuggerError {
	return New(KindInterpreter, msg, nil)
}
