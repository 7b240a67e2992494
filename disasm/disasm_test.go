package disasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ogledbg/ogledbg/addr"
)

func TestAtDecodesSequentialInstructions(t *testing.T) {
	code := []byte{0x90, 0x90, 0xc3} // nop; nop; ret
	insts, err := At(code, addr.Address(0x1000), 3)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	require.Equal(t, addr.Address(0x1000), insts[0].Address)
	require.Equal(t, addr.Address(0x1001), insts[1].Address)
	require.Equal(t, addr.Address(0x1002), insts[2].Address)
	for _, in := range insts {
		require.NotEmpty(t, in.Text)
		require.Equal(t, in.Length, len(in.Bytes))
	}
}

func TestAtStopsOnUndecodableBytes(t *testing.T) {
	code := []byte{0x90, 0xff}
	insts, err := At(code, addr.Address(0), 5)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(insts), 1)
}

func TestAtRespectsRequestedCount(t *testing.T) {
	code := []byte{0x90, 0x90, 0x90, 0x90}
	insts, err := At(code, addr.Address(0), 2)
	require.NoError(t, err)
	require.Len(t, insts, 2)
}
