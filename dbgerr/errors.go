// Package dbgerr collects the error kinds the engine can produce (spec
// §7). Leaf components return these unchanged; only the dispatcher (C8)
// converts them into Feedback.
package dbgerr

import "fmt"

// Sentinel errors for conditions with no payload. Compare with errors.Is.
var (
	ErrNoDebugee                   = fmt.Errorf("no debuggee attached")
	ErrAlreadyRunning              = fmt.Errorf("a debuggee is already running")
	ErrBreakpointIsAlreadyEnabled  = fmt.Errorf("breakpoint is already enabled")
	ErrBreakpointIsAlreadyDisabled = fmt.Errorf("breakpoint is already disabled")
	ErrExecutableDoesNotExist      = fmt.Errorf("executable does not exist")
	ErrExecutableIsNotAFile        = fmt.Errorf("executable is not a regular file")
	ErrWrongSymbolKind             = fmt.Errorf("operation applied to symbol of the wrong kind")
	ErrVariableSymbolNoType        = fmt.Errorf("variable symbol has no declared type")
	ErrSymbolHasNoLocation         = fmt.Errorf("symbol has no location")
	ErrNoDatatypeFound             = fmt.Errorf("no datatype found for symbol")
	ErrHighAddrExistsButNotLowAddr = fmt.Errorf("high_pc present without low_pc")
	ErrAmbiguousVarExpr            = fmt.Errorf("variable expression is ambiguous")
	ErrVarExprReturnedNothing      = fmt.Errorf("variable expression matched nothing")
	ErrStepOutMain                 = fmt.Errorf("cannot step out of the outermost frame")
	ErrNotInFunction               = fmt.Errorf("instruction pointer is outside any known function")
	ErrNoFrameInfo                 = fmt.Errorf("no frame information available for location evaluation")
)

// OSError wraps a failed ptrace/OS-level syscall, carrying the errno that
// produced it (spec §7: OS).
type OSError struct {
	Op  string
	Err error
}

func (e *OSError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Err) }
func (e *OSError) Unwrap() error { return e.Err }

// IOError wraps a failure reading the executable file (spec §7: IO).
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("reading %s: %s", e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// DwarfError wraps malformed or unsupported debug information (spec §7:
// Object/Dwarf).
type DwarfError struct {
	Context string
	Err     error
}

func (e *DwarfError) Error() string { return fmt.Sprintf("dwarf: %s: %s", e.Context, e.Err) }
func (e *DwarfError) Unwrap() error { return e.Err }

// AttributeDoesNotExist reports a required DIE attribute that is missing.
type AttributeDoesNotExist struct {
	Attr string
}

func (e *AttributeDoesNotExist) Error() string {
	return fmt.Sprintf("attribute %s does not exist", e.Attr)
}

// UnimplementedRegister reports a DWARF register number outside the
// register-name enum the engine understands (spec §6).
type UnimplementedRegister struct {
	Number int
}

func (e *UnimplementedRegister) Error() string {
	return fmt.Sprintf("unimplemented dwarf register %d", e.Number)
}
