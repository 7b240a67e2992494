package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/regio"
)

// buildFrame assembles a minimal CIE+FDE pair by hand: CIE declares
// def_cfa(rbp, 16) in its initial instructions, FDE covers [low, low+4)
// with no further CFI (no prologue-tracking opcodes), matching a
// function compiled with frame pointers and no stack adjustments yet.
func buildFrame(low uint64) []byte {
	cie := []byte{
		1,        // version
		0,        // augmentation ""
		1,        // code_alignment_factor (ULEB128)
		0x7e,     // data_alignment_factor (SLEB128, -2)
		16,       // return_address_register (ULEB128) = rip dwarf number
		0x0d, 6,  // DW_CFA_def_cfa_register(rbp=6)
		0x0e, 16, // DW_CFA_def_cfa_offset(16)
	}
	cieBody := append(le32(0xffffffff), cie...) // CIE marker + fields
	var buf []byte
	buf = append(buf, le32(uint32(len(cieBody)))...)
	buf = append(buf, cieBody...)

	fdeBody := []byte{}
	fdeBody = append(fdeBody, le32(0)...) // CIE pointer: offset of CIE entry (0)
	fdeBody = append(fdeBody, le64(low)...)
	fdeBody = append(fdeBody, le64(4)...) // range length
	fdeLen := uint32(len(fdeBody))
	buf = append(buf, le32(fdeLen)...)
	buf = append(buf, fdeBody...)
	return buf
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

func TestParseAndCFAForUsesDefCFARule(t *testing.T) {
	data := buildFrame(0x1000)
	table, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, table.fdes, 1)

	regs := &regio.RegisterFile{Rbp: 0x7ffff000}
	cfa, fde, err := table.CFAFor(addr.Address(0x1001), regs)
	require.NoError(t, err)
	require.NotNil(t, fde)
	require.Equal(t, addr.Address(0x7ffff000+16), cfa)
}

func TestFDEForPCReturnsNilOutsideRange(t *testing.T) {
	data := buildFrame(0x1000)
	table, err := Parse(data)
	require.NoError(t, err)
	require.Nil(t, table.FDEForPC(addr.Address(0x2000)))
}

func TestFDECoverRespectsHalfOpenRange(t *testing.T) {
	fde := &FDE{Low: addr.Address(0x100), High: addr.Address(0x110)}
	require.True(t, fde.Cover(addr.Address(0x100)))
	require.True(t, fde.Cover(addr.Address(0x10f)))
	require.False(t, fde.Cover(addr.Address(0x110)))
}
