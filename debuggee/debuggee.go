// Package debuggee implements the ptrace-driven session state machine:
// launching a tracee, the stop/resume wait loop, and breakpoint
// transparency (spec §4.7: component C7).
package debuggee

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/breakpoint"
	"github.com/ogledbg/ogledbg/dbgerr"
	"github.com/ogledbg/ogledbg/dwarfdata"
	"github.com/ogledbg/ogledbg/frame"
	"github.com/ogledbg/ogledbg/procmap"
	"github.com/ogledbg/ogledbg/regio"
	"github.com/ogledbg/ogledbg/symtab"
)

// StopKind classifies why a trace-stop occurred (spec §4.7: "core loop").
type StopKind int

const (
	StopBreakpoint StopKind = iota
	StopStep
	StopSignal
	StopExited
)

// StopEvent is the outcome of a wait after resuming the tracee.
type StopEvent struct {
	Kind     StopKind
	Addr     addr.Address
	Signal   syscall.Signal
	ExitCode int
}

// Session is a live debuggee: tracee pid, breakpoint map, debug-info
// handle, and lazily derived process map / base address (spec §3:
// Debuggee).
type Session struct {
	Pid         int
	Breakpoints map[addr.Address]*breakpoint.Breakpoint
	Info        *dwarfdata.Info
	Symbols     *symtab.Tree
	Frames      *frame.Table
	Lines       *dwarfdata.LineTable

	cmd      *exec.Cmd
	exePath  string
	base     addr.Address
	baseKnown bool
	exited   bool
}

var log = logrus.WithField("component", "debuggee")

// Launch forks the tracee (via os/exec with SysProcAttr.Ptrace, which
// performs PTRACE_TRACEME in the child before execve — the Go-idiomatic
// equivalent of spec §4.7's explicit fork+traceme+exec sequence),
// builds the debug-info handle from path, and waits for the initial
// post-exec SIGTRAP.
func Launch(path string, argv []string) (*Session, error) {
	info, err := dwarfdata.Load(path)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, argv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		info.Close()
		return nil, &dbgerr.OSError{Op: "exec", Err: err}
	}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(cmd.Process.Pid, &ws, 0, nil); err != nil {
		info.Close()
		return nil, &dbgerr.OSError{Op: "PTRACE initial wait", Err: err}
	}
	log.WithField("pid", cmd.Process.Pid).Debug("tracee stopped after exec")

	s := &Session{
		Pid:         cmd.Process.Pid,
		Breakpoints: make(map[addr.Address]*breakpoint.Breakpoint),
		Info:        info,
		cmd:         cmd,
		exePath:     path,
	}

	if fdata, err := info.OptionalSection(".debug_frame"); err == nil && fdata != nil {
		if table, err := frame.Parse(fdata); err == nil {
			s.Frames = table
		} else {
			log.WithError(err).Warn("failed to parse .debug_frame")
		}
	}

	if err := s.resolveBase(); err != nil {
		log.WithError(err).Warn("could not resolve module base yet")
	}
	if tree, err := symtab.Build(info, s.base); err == nil {
		s.Symbols = tree
	} else {
		log.WithError(err).Warn("failed to build symbol tree")
	}

	if lines, err := info.BuildLineTable(s.base); err == nil {
		s.Lines = lines
	} else {
		log.WithError(err).Warn("failed to build line table")
	}

	return s, nil
}

// resolveBase queries the process map and records the module base
// (spec §4.7: "Process map and base address"). Once it succeeds the
// base is cached for the rest of the session; see ModuleBase.
func (s *Session) resolveBase() error {
	entries, err := procmap.Read(s.Pid)
	if err != nil {
		return err
	}
	base, err := procmap.ModuleBase(entries, s.exePath)
	if err != nil {
		return err
	}
	s.base = base
	s.baseKnown = true
	return nil
}

// ModuleBase returns the tracee's module base, resolving it on first
// use if a prior resolution attempt (e.g. during Launch, before the
// process map was fully populated) had not yet succeeded.
func (s *Session) ModuleBase() (addr.Address, error) {
	if s.baseKnown {
		return s.base, nil
	}
	if err := s.resolveBase(); err != nil {
		return 0, err
	}
	return s.base, nil
}

// ProcMap returns the current process map (spec §4.7: surfaced to the
// UI on request).
func (s *Session) ProcMap() ([]procmap.Entry, error) {
	return procmap.Read(s.Pid)
}

// SetBreakpoint inserts (or no-ops on a duplicate) a breakpoint at a
// (spec §4.7: "Double-set at the same address is a no-op returning Ok").
func (s *Session) SetBreakpoint(a addr.Address) error {
	if _, ok := s.Breakpoints[a]; ok {
		return nil
	}
	bp := breakpoint.New(s.Pid, a)
	if err := bp.Enable(); err != nil {
		return err
	}
	s.Breakpoints[a] = bp
	return nil
}

// ClearBreakpoint removes the breakpoint at a, disabling it first.
func (s *Session) ClearBreakpoint(a addr.Address) error {
	bp, ok := s.Breakpoints[a]
	if !ok {
		return dbgerr.ErrBreakpointIsAlreadyDisabled
	}
	if err := bp.Close(); err != nil {
		return err
	}
	delete(s.Breakpoints, a)
	return nil
}

// StepOverBreakpoint is the central breakpoint-transparency invariant
// (spec §4.7). It must run before every resume path: if the tracee is
// currently stopped one byte past an enabled breakpoint's address, it
// rewinds RIP, disables the trap, single-steps the original
// instruction, and re-enables the trap — so the caller's subsequent
// resume never re-executes the patched 0xCC byte.
func (s *Session) StepOverBreakpoint() error {
	regs, err := regio.GetRegs(s.Pid)
	if err != nil {
		return err
	}
	probe := addr.Address(regs.Rip - 1)
	bp, ok := s.Breakpoints[probe]
	if !ok || !bp.Enabled {
		return nil
	}

	regs.Rip = uint64(probe)
	if err := regio.SetRegs(s.Pid, regs); err != nil {
		return err
	}
	if err := bp.Disable(); err != nil {
		return err
	}
	if err := unix.PtraceSingleStep(s.Pid); err != nil {
		return &dbgerr.OSError{Op: "PTRACE_SINGLESTEP", Err: err}
	}
	if _, err := s.wait(); err != nil {
		return err
	}
	return bp.Enable()
}

// wait blocks for the next trace-stop or exit and returns the raw
// status, without interpreting it into a StopEvent (used internally by
// StepOverBreakpoint, which only needs to know the single-step
// completed).
func (s *Session) wait() (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	if _, err := unix.Wait4(s.Pid, &ws, 0, nil); err != nil {
		return ws, &dbgerr.OSError{Op: "wait4", Err: err}
	}
	return ws, nil
}

// classify converts a raw wait status into a StopEvent, consulting the
// breakpoint map to distinguish a breakpoint trap from a plain
// single-step trap (spec §4.7: "core loop" stop-reason handling).
// Factored out as a pure function (breakpoints keyed by probe address,
// the wait status, and the current rip) so it is testable without a
// live tracee.
func classify(ws unix.WaitStatus, rip uint64, breakpoints map[addr.Address]*breakpoint.Breakpoint) StopEvent {
	if ws.Exited() {
		return StopEvent{Kind: StopExited, ExitCode: ws.ExitStatus()}
	}
	if ws.Signaled() {
		return StopEvent{Kind: StopExited, ExitCode: -int(ws.Signal())}
	}
	if ws.Stopped() && ws.StopSignal() == unix.SIGTRAP {
		probe := addr.Address(rip - 1)
		if bp, ok := breakpoints[probe]; ok && bp.Enabled {
			return StopEvent{Kind: StopBreakpoint, Addr: probe}
		}
		return StopEvent{Kind: StopStep, Addr: addr.Address(rip)}
	}
	return StopEvent{Kind: StopSignal, Signal: ws.StopSignal()}
}

func (s *Session) waitAndClassify() (StopEvent, error) {
	ws, err := s.wait()
	if err != nil {
		return StopEvent{}, err
	}
	if ws.Exited() || ws.Signaled() {
		s.exited = true
		ev := classify(ws, 0, s.Breakpoints)
		return ev, nil
	}
	regs, err := regio.GetRegs(s.Pid)
	if err != nil {
		return StopEvent{}, err
	}
	return classify(ws, regs.Rip, s.Breakpoints), nil
}

// Continue resumes the tracee until the next trace-stop or exit (spec
// §4.7, §4.8: Continue command).
func (s *Session) Continue() (StopEvent, error) {
	if s.exited {
		return StopEvent{}, dbgerr.ErrNoDebugee
	}
	if err := s.StepOverBreakpoint(); err != nil {
		return StopEvent{}, err
	}
	if err := unix.PtraceCont(s.Pid, 0); err != nil {
		return StopEvent{}, &dbgerr.OSError{Op: "PTRACE_CONT", Err: err}
	}
	return s.waitAndClassify()
}

// StepSingle executes exactly one machine instruction (spec §4.8:
// StepSingle command).
func (s *Session) StepSingle() (StopEvent, error) {
	if s.exited {
		return StopEvent{}, dbgerr.ErrNoDebugee
	}
	if err := s.StepOverBreakpoint(); err != nil {
		return StopEvent{}, err
	}
	if err := unix.PtraceSingleStep(s.Pid); err != nil {
		return StopEvent{}, &dbgerr.OSError{Op: "PTRACE_SINGLESTEP", Err: err}
	}
	return s.waitAndClassify()
}

// StepOver executes instructions until the source line changes within
// the starting frame (spec §9: "single-step + next-line lookup via the
// address-to-line index"). Any call made along the way is run to
// completion via its CFA-derived return address, so a StepOver never
// leaves the caller's frame. With no line index available it degenerates
// to a single StepSingle that still skips over one call.
func (s *Session) StepOver() (StopEvent, error) {
	if s.Frames == nil {
		return s.StepSingle()
	}
	regs, err := regio.GetRegs(s.Pid)
	if err != nil {
		return StopEvent{}, err
	}
	startFDE := s.Frames.FDEForPC(addr.Address(regs.Rip))
	if startFDE == nil {
		return s.StepSingle()
	}
	startRow, haveLine := s.lineRowFor(addr.Address(regs.Rip))

	for {
		ev, err := s.StepSingle()
		if err != nil || ev.Kind == StopExited {
			return ev, err
		}
		regs, err = regio.GetRegs(s.Pid)
		if err != nil {
			return StopEvent{}, err
		}
		pc := addr.Address(regs.Rip)

		if !startFDE.Cover(pc) {
			// Stepped into a callee: run until control returns to the
			// caller's frame before checking the line again.
			if s.Frames.FDEForPC(pc) != nil {
				if returnPC, err := s.callerReturnAddress(pc, regs); err == nil {
					for {
						ev, err = s.StepSingle()
						if err != nil || ev.Kind == StopExited {
							return ev, err
						}
						regs, err = regio.GetRegs(s.Pid)
						if err != nil {
							return StopEvent{}, err
						}
						if addr.Address(regs.Rip) == returnPC {
							pc = returnPC
							break
						}
					}
				}
			}
		}

		if !haveLine {
			return ev, nil
		}
		if stmt, changed := s.lineChanged(startRow, pc); changed && stmt {
			return ev, nil
		}
	}
}

// callerReturnAddress resolves the return address of the frame
// currently active at pc (used to run a callee to completion).
func (s *Session) callerReturnAddress(pc addr.Address, regs *regio.RegisterFile) (addr.Address, error) {
	cfa, _, err := s.Frames.CFAFor(pc, regs)
	if err != nil {
		return 0, err
	}
	retWord, err := regio.ReadWord(s.Pid, cfa.Add(-8))
	if err != nil {
		return 0, err
	}
	return addr.Address(retWord), nil
}

// lineRowFor looks up the line-table row covering pc, if a line index
// was built.
func (s *Session) lineRowFor(pc addr.Address) (dwarfdata.LineRow, bool) {
	if s.Lines == nil {
		return dwarfdata.LineRow{}, false
	}
	return s.Lines.RowForPC(pc)
}

// lineChanged reports whether pc has moved off of startRow's source
// line, and whether the row it landed on is a recommended statement
// boundary worth stopping at.
func (s *Session) lineChanged(startRow dwarfdata.LineRow, pc addr.Address) (isStmt, changed bool) {
	if s.Lines.SameLine(startRow, pc) {
		return false, false
	}
	row, ok := s.Lines.RowForPC(pc)
	if !ok {
		return true, true
	}
	return row.IsStmt, true
}

// StepOut single-steps until the CFA-derived return address of the
// frame active when the command was issued is reached (SUPPLEMENTED
// FEATURES: Step-out).
func (s *Session) StepOut() (StopEvent, error) {
	if s.Frames == nil {
		return StopEvent{}, dbgerr.ErrNoFrameInfo
	}
	regs, err := regio.GetRegs(s.Pid)
	if err != nil {
		return StopEvent{}, err
	}
	fde := s.Frames.FDEForPC(addr.Address(regs.Rip))
	if fde == nil {
		return StopEvent{}, dbgerr.ErrNotInFunction
	}
	cfa, _, err := s.Frames.CFAFor(addr.Address(regs.Rip), regs)
	if err != nil {
		return StopEvent{}, err
	}
	retAddrPtr := cfa.Add(-8) // the return address sits just below the CFA on x86-64.
	retWord, err := regio.ReadWord(s.Pid, retAddrPtr)
	if err != nil {
		return StopEvent{}, err
	}
	returnPC := addr.Address(retWord)
	if s.Frames.FDEForPC(returnPC) == nil {
		return StopEvent{}, dbgerr.ErrStepOutMain
	}
	for {
		ev, err := s.StepSingle()
		if err != nil || ev.Kind == StopExited {
			return ev, err
		}
		regs, err := regio.GetRegs(s.Pid)
		if err != nil {
			return StopEvent{}, err
		}
		if addr.Address(regs.Rip) == returnPC {
			return ev, nil
		}
	}
}

// StepIn single-steps until either a new function is entered or the
// current line within the same function changes (SUPPLEMENTED FEATURES:
// Step-in), using the address-to-line index the same way StepOver does
// (spec §9). With no line index built it stops as soon as it can no
// longer attribute the PC to the starting function.
func (s *Session) StepIn() (StopEvent, error) {
	if s.Symbols == nil {
		return s.StepSingle()
	}
	regs, err := regio.GetRegs(s.Pid)
	if err != nil {
		return StopEvent{}, err
	}
	startFn, _ := s.Symbols.FunctionContaining(addr.Address(regs.Rip))
	startRow, haveLine := s.lineRowFor(addr.Address(regs.Rip))

	for {
		ev, err := s.StepSingle()
		if err != nil || ev.Kind == StopExited {
			return ev, err
		}
		regs, err := regio.GetRegs(s.Pid)
		if err != nil {
			return StopEvent{}, err
		}
		pc := addr.Address(regs.Rip)

		fn, ferr := s.Symbols.FunctionContaining(pc)
		if ferr != nil {
			return ev, nil
		}
		if startFn == nil || fn.Offset != startFn.Offset {
			return ev, nil
		}
		if !haveLine {
			continue
		}
		if stmt, changed := s.lineChanged(startRow, pc); changed && stmt {
			return ev, nil
		}
	}
}

// Registers reads the current register bank.
func (s *Session) Registers() (*regio.RegisterFile, error) {
	return regio.GetRegs(s.Pid)
}

// Kill terminates the tracee and tears down the breakpoint map (spec
// §5's cancellation policy; SUPPLEMENTED FEATURES: kill/detach on
// quit).
func (s *Session) Kill() error {
	if s.exited {
		return nil
	}
	if err := unix.Kill(s.Pid, unix.SIGKILL); err != nil {
		return &dbgerr.OSError{Op: "PTRACE_KILL", Err: err}
	}
	s.exited = true
	s.Breakpoints = make(map[addr.Address]*breakpoint.Breakpoint)
	return s.Info.Close()
}
