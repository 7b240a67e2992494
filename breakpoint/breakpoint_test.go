package breakpoint_test

import (
	"testing"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/breakpoint"
	"github.com/ogledbg/ogledbg/dbgerr"
	"github.com/stretchr/testify/require"
)

// TestDisableWithoutEnableRejected exercises spec §8 property 2's
// double-state rejection without needing a live tracee: Disable on a
// freshly constructed (disabled) breakpoint must fail before any ptrace
// call is attempted.
func TestDisableWithoutEnableRejected(t *testing.T) {
	bp := breakpoint.New(0, addr.Address(0x1000))
	err := bp.Disable()
	require.ErrorIs(t, err, dbgerr.ErrBreakpointIsAlreadyDisabled)
	require.False(t, bp.Enabled)
}

func TestCloseOnDisabledIsNoop(t *testing.T) {
	bp := breakpoint.New(0, addr.Address(0x1000))
	require.NoError(t, bp.Close())
}
