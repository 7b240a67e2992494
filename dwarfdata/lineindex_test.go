package dwarfdata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ogledbg/ogledbg/addr"
)

func newTestLineTable(rows []LineRow) *LineTable {
	return &LineTable{rows: rows}
}

func TestRowForPCFindsCoveringRow(t *testing.T) {
	lt := newTestLineTable([]LineRow{
		{Address: 0x1000, File: "main.c", Line: 10, IsStmt: true},
		{Address: 0x1010, File: "main.c", Line: 11, IsStmt: true},
		{Address: 0x1020, File: "main.c", Line: 12, IsStmt: true},
	})

	row, ok := lt.RowForPC(addr.Address(0x1015))
	require.True(t, ok)
	require.Equal(t, 11, row.Line)
}

func TestRowForPCBeforeFirstRowIsMiss(t *testing.T) {
	lt := newTestLineTable([]LineRow{
		{Address: 0x1000, File: "main.c", Line: 10, IsStmt: true},
	})
	_, ok := lt.RowForPC(addr.Address(0xfff))
	require.False(t, ok)
}

func TestSameLineTracksLineBoundary(t *testing.T) {
	lt := newTestLineTable([]LineRow{
		{Address: 0x1000, File: "main.c", Line: 10, IsStmt: true},
		{Address: 0x1010, File: "main.c", Line: 11, IsStmt: true},
	})
	startRow, ok := lt.RowForPC(addr.Address(0x1000))
	require.True(t, ok)

	require.True(t, lt.SameLine(startRow, addr.Address(0x1008)))
	require.False(t, lt.SameLine(startRow, addr.Address(0x1010)))
}
