package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/dispatch"
	"github.com/ogledbg/ogledbg/regio"
)

func TestParseCommandBreakpoint(t *testing.T) {
	cmd, err := parseCommand("break 0x4000")
	require.NoError(t, err)
	require.Equal(t, dispatch.CmdSetBreakpoint, cmd.Kind)
	require.Equal(t, addr.Address(0x4000), cmd.Addr)
}

func TestParseCommandShortAliases(t *testing.T) {
	cmd, err := parseCommand("c")
	require.NoError(t, err)
	require.Equal(t, dispatch.CmdContinue, cmd.Kind)
}

func TestParseCommandSetRegister(t *testing.T) {
	cmd, err := parseCommand("setreg rax 0x10")
	require.NoError(t, err)
	require.Equal(t, dispatch.CmdSetRegister, cmd.Kind)
	require.Equal(t, regio.Rax, cmd.RegisterName)
	require.Equal(t, uint64(0x10), cmd.RegisterValue)
}

func TestParseCommandUnknownVerb(t *testing.T) {
	_, err := parseCommand("frobnicate")
	require.Error(t, err)
}

func TestParseCommandMissingArgs(t *testing.T) {
	_, err := parseCommand("break")
	require.Error(t, err)
}

func TestParseAddrAcceptsHexPrefix(t *testing.T) {
	a, err := parseAddr("0x1000")
	require.NoError(t, err)
	require.Equal(t, addr.Address(0x1000), a)
}

func TestParseRegisterRejectsUnknownName(t *testing.T) {
	_, err := parseRegister("r99")
	require.Error(t, err)
}
