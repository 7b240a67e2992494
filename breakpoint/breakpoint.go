// Package breakpoint implements a single software breakpoint: patching
// and restoring the trap instruction at one address (spec §3, §4.3:
// component C3).
package breakpoint

import (
	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/arch"
	"github.com/ogledbg/ogledbg/dbgerr"
	"github.com/ogledbg/ogledbg/regio"
)

// Breakpoint is a single patched instruction in a stopped tracee. The
// zero value is not usable; construct with New.
type Breakpoint struct {
	Pid       int
	Addr      addr.Address
	Enabled   bool
	SavedByte byte
}

// New returns a disabled breakpoint for pid at a (spec §3: "created
// disabled").
func New(pid int, a addr.Address) *Breakpoint {
	return &Breakpoint{Pid: pid, Addr: a}
}

// Enable patches the least-significant byte at Addr with 0xCC, saving the
// original byte. The tracee must be stopped.
func (b *Breakpoint) Enable() error {
	if b.Enabled {
		return dbgerr.ErrBreakpointIsAlreadyEnabled
	}
	w, err := regio.ReadWord(b.Pid, b.Addr)
	if err != nil {
		return err
	}
	b.SavedByte = byte(w)
	patched := (w &^ 0xff) | arch.BreakpointInstr
	if err := regio.WriteWord(b.Pid, b.Addr, patched); err != nil {
		return err
	}
	b.Enabled = true
	return nil
}

// Disable restores the byte saved by Enable. The tracee must be stopped.
func (b *Breakpoint) Disable() error {
	if !b.Enabled {
		return dbgerr.ErrBreakpointIsAlreadyDisabled
	}
	w, err := regio.ReadWord(b.Pid, b.Addr)
	if err != nil {
		return err
	}
	restored := (w &^ 0xff) | addr.Word(b.SavedByte)
	if err := regio.WriteWord(b.Pid, b.Addr, restored); err != nil {
		return err
	}
	b.Enabled = false
	return nil
}

// Close disables an enabled breakpoint, matching spec §3's "on drop, an
// enabled breakpoint is disabled". Safe to call on an already-disabled
// breakpoint.
func (b *Breakpoint) Close() error {
	if !b.Enabled {
		return nil
	}
	return b.Disable()
}
