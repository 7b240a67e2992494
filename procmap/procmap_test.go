package procmap_test

import (
	"testing"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/procmap"
	"github.com/stretchr/testify/require"
)

func TestModuleBaseFallsBackToFirstEntry(t *testing.T) {
	entries := []procmap.Entry{
		{Low: 0x400000, High: 0x401000, Path: "/bin/target"},
		{Low: 0x7f0000000000, High: 0x7f0000100000, Path: "/lib/libc.so"},
	}
	base, err := procmap.ModuleBase(entries, "/does/not/match")
	require.NoError(t, err)
	require.Equal(t, addr.Address(0x400000), base)
}

func TestModuleBaseMatchesExecutablePath(t *testing.T) {
	entries := []procmap.Entry{
		{Low: 0x7f0000000000, High: 0x7f0000100000, Path: "/lib/ld-linux.so"},
		{Low: 0x555555554000, High: 0x555555556000, Path: "/home/me/target"},
	}
	base, err := procmap.ModuleBase(entries, "/home/me/target")
	require.NoError(t, err)
	require.Equal(t, addr.Address(0x555555554000), base)
}

func TestModuleBaseEmptyIsError(t *testing.T) {
	_, err := procmap.ModuleBase(nil, "/x")
	require.Error(t, err)
}
