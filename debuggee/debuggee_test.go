package debuggee

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/breakpoint"
)

func TestClassifyRecognizesBreakpointTrap(t *testing.T) {
	bp := breakpoint.New(0, addr.Address(0x4000))
	bp.Enabled = true
	breakpoints := map[addr.Address]*breakpoint.Breakpoint{addr.Address(0x4000): bp}

	ev := classify(syntheticStopped(unix.SIGTRAP), 0x4001, breakpoints)
	require.Equal(t, StopBreakpoint, ev.Kind)
	require.Equal(t, addr.Address(0x4000), ev.Addr)
}

func TestClassifyTreatsUnknownTrapAsStep(t *testing.T) {
	ev := classify(syntheticStopped(unix.SIGTRAP), 0x5000, nil)
	require.Equal(t, StopStep, ev.Kind)
	require.Equal(t, addr.Address(0x5000), ev.Addr)
}

func TestClassifyNonTrapSignalIsSignalStop(t *testing.T) {
	ev := classify(syntheticStopped(unix.SIGSEGV), 0x5000, nil)
	require.Equal(t, StopSignal, ev.Kind)
	require.Equal(t, unix.SIGSEGV, ev.Signal)
}

// syntheticStopped builds a unix.WaitStatus as the kernel encodes a
// stopped-with-signal status, without needing a live process: status =
// (sig << 8) | 0x7f, per the wait(2) WIFSTOPPED/WSTOPSIG encoding that
// unix.WaitStatus itself implements.
func syntheticStopped(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(int(sig)<<8 | 0x7f)
}

func TestSetBreakpointDoubleSetIsNoop(t *testing.T) {
	s := &Session{Breakpoints: map[addr.Address]*breakpoint.Breakpoint{}}
	bp := breakpoint.New(0, addr.Address(0x1000))
	bp.Enabled = true
	s.Breakpoints[addr.Address(0x1000)] = bp

	// A second SetBreakpoint at the same address must not attempt to
	// re-enable (which would fail, since bp is already Enabled) — it
	// must see the existing entry and return nil immediately.
	err := s.SetBreakpoint(addr.Address(0x1000))
	require.NoError(t, err)
}
