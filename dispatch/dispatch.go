// Package dispatch implements the single command/feedback pump that
// fronts a debuggee session (spec §4.8: component C8). It is the only
// layer permitted to convert errors into a structured outcome; every
// layer beneath it propagates errors unchanged.
package dispatch

import (
	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/dbgerr"
	"github.com/ogledbg/ogledbg/debuggee"
	"github.com/ogledbg/ogledbg/disasm"
	"github.com/ogledbg/ogledbg/location"
	"github.com/ogledbg/ogledbg/procmap"
	"github.com/ogledbg/ogledbg/regio"
	"github.com/ogledbg/ogledbg/symtab"
)

// CommandKind tags the Command sum type (spec §4.8).
type CommandKind int

const (
	CmdContinue CommandKind = iota
	CmdSetBreakpoint
	CmdDelBreakpoint
	CmdDumpRegisters
	CmdSetRegister
	CmdReadMem
	CmdWriteMem
	CmdDisassembleAt
	CmdGetSymbolsByName
	CmdBacktrace
	CmdStepSingle
	CmdStepOver
	CmdStepOut
	CmdStepIn
	CmdReadVariable
	CmdWriteVariable
	CmdProcMap
	CmdQuit
)

// Command is the discriminated request the UI issues (spec §4.8). Only
// the fields relevant to Kind are populated by the caller.
type Command struct {
	Kind CommandKind

	Addr addr.Address
	Len  int

	RegisterName  regio.Name
	RegisterValue uint64

	WordValue addr.Word

	Name string // symbol name, or variable expression for Read/WriteVariable

	VariableValue uint64
}

// FeedbackKind tags the Feedback sum type (spec §4.8, §6).
type FeedbackKind int

const (
	FeedbackOk FeedbackKind = iota
	FeedbackText
	FeedbackWord
	FeedbackAddr
	FeedbackRegisters
	FeedbackDisassembly
	FeedbackSymbols
	FeedbackBacktrace
	FeedbackVariable
	FeedbackProcessMap
	FeedbackExit
	FeedbackError
)

// Frame is one stack frame surfaced by Backtrace: the PC it was
// executing at and the canonical frame address computed for it.
type Frame struct {
	PC  addr.Address
	CFA addr.Address
}

// Feedback is the response the dispatcher hands back for every Command
// (spec §4.8, §6). Only the field matching Kind is meaningful.
type Feedback struct {
	Kind FeedbackKind

	Text string
	Word addr.Word
	Addr addr.Address

	Registers *regio.RegisterFile
	Disasm    []disasm.Instruction
	Symbols   []*symtab.OwnedSymbol
	Stack     []Frame
	Variable  location.Location
	ProcMap   []procmap.Entry

	ExitCode int
	Err      error
}

func ok() Feedback                 { return Feedback{Kind: FeedbackOk} }
func errFeedback(err error) Feedback { return Feedback{Kind: FeedbackError, Err: err} }

// Dispatcher fronts one live Session (spec §4.8).
type Dispatcher struct {
	Session *debuggee.Session
}

// New constructs a dispatcher over an already-launched session.
func New(s *debuggee.Session) *Dispatcher {
	return &Dispatcher{Session: s}
}

// Dispatch executes cmd against the session and converts the outcome
// into a Feedback. This is the only function in the engine that turns
// an error return into a discriminated success/failure value (spec
// §4.8, §7 policy).
func (d *Dispatcher) Dispatch(cmd Command) Feedback {
	if d.Session == nil && cmd.Kind != CmdQuit {
		return errFeedback(dbgerr.ErrNoDebugee)
	}

	switch cmd.Kind {
	case CmdContinue:
		return d.stopFeedback(d.Session.Continue())
	case CmdSetBreakpoint:
		if err := d.Session.SetBreakpoint(cmd.Addr); err != nil {
			return errFeedback(err)
		}
		return ok()
	case CmdDelBreakpoint:
		if err := d.Session.ClearBreakpoint(cmd.Addr); err != nil {
			return errFeedback(err)
		}
		return ok()
	case CmdDumpRegisters:
		regs, err := d.Session.Registers()
		if err != nil {
			return errFeedback(err)
		}
		return Feedback{Kind: FeedbackRegisters, Registers: regs}
	case CmdSetRegister:
		if err := regio.SetReg(d.Session.Pid, cmd.RegisterName, cmd.RegisterValue); err != nil {
			return errFeedback(err)
		}
		return ok()
	case CmdReadMem:
		buf := make([]byte, 8)
		if _, err := regio.ReadBytes(d.Session.Pid, cmd.Addr, buf); err != nil {
			return errFeedback(err)
		}
		v, _ := decodeWord(buf)
		return Feedback{Kind: FeedbackWord, Word: addr.Word(v)}
	case CmdWriteMem:
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(cmd.WordValue >> (8 * uint(i)))
		}
		if _, err := regio.WriteBytes(d.Session.Pid, cmd.Addr, buf[:]); err != nil {
			return errFeedback(err)
		}
		return ok()
	case CmdDisassembleAt:
		buf := make([]byte, cmd.Len)
		if _, err := regio.ReadBytes(d.Session.Pid, cmd.Addr, buf); err != nil {
			return errFeedback(err)
		}
		insts, err := disasm.At(buf, cmd.Addr, cmd.Len)
		if err != nil {
			return errFeedback(err)
		}
		return Feedback{Kind: FeedbackDisassembly, Disasm: insts}
	case CmdGetSymbolsByName:
		if d.Session.Symbols == nil {
			return errFeedback(dbgerr.ErrVarExprReturnedNothing)
		}
		return Feedback{Kind: FeedbackSymbols, Symbols: d.Session.Symbols.ByName(cmd.Name)}
	case CmdBacktrace:
		frames, err := d.backtrace()
		if err != nil {
			return errFeedback(err)
		}
		return Feedback{Kind: FeedbackBacktrace, Stack: frames}
	case CmdStepSingle:
		return d.stopFeedback(d.Session.StepSingle())
	case CmdStepOver:
		return d.stopFeedback(d.Session.StepOver())
	case CmdStepOut:
		return d.stopFeedback(d.Session.StepOut())
	case CmdStepIn:
		return d.stopFeedback(d.Session.StepIn())
	case CmdReadVariable:
		loc, err := d.evaluateVariable(cmd.Name)
		if err != nil {
			return errFeedback(err)
		}
		return Feedback{Kind: FeedbackVariable, Variable: loc}
	case CmdWriteVariable:
		if err := d.writeVariable(cmd.Name, cmd.VariableValue); err != nil {
			return errFeedback(err)
		}
		return ok()
	case CmdProcMap:
		entries, err := d.Session.ProcMap()
		if err != nil {
			return errFeedback(err)
		}
		return Feedback{Kind: FeedbackProcessMap, ProcMap: entries}
	case CmdQuit:
		if d.Session != nil {
			if err := d.Session.Kill(); err != nil {
				return errFeedback(err)
			}
		}
		return ok()
	default:
		return errFeedback(dbgerr.ErrWrongSymbolKind)
	}
}

func (d *Dispatcher) stopFeedback(ev debuggee.StopEvent, err error) Feedback {
	if err != nil {
		return errFeedback(err)
	}
	switch ev.Kind {
	case debuggee.StopExited:
		return Feedback{Kind: FeedbackExit, ExitCode: ev.ExitCode}
	case debuggee.StopBreakpoint, debuggee.StopStep:
		return Feedback{Kind: FeedbackAddr, Addr: ev.Addr}
	default:
		return Feedback{Kind: FeedbackText, Text: ev.Signal.String()}
	}
}

func decodeWord(buf []byte) (uint64, bool) {
	if len(buf) != 8 {
		return 0, false
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, true
}
