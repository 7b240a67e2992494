package regio_test

import (
	"testing"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/regio"
	"github.com/stretchr/testify/require"
)

func TestWordAlignedRangeCoversRequestedBytes(t *testing.T) {
	cases := []struct {
		a      addr.Address
		length int
	}{
		{0x1000, 8},
		{0x1001, 8},  // unaligned start
		{0x1000, 3},  // unaligned end
		{0x1003, 10}, // unaligned both ends
	}
	for _, tc := range cases {
		start, end := regio.WordAlignedRange(tc.a, tc.length)
		require.Equal(t, uint64(0), start%8, "start must be word-aligned")
		require.Equal(t, uint64(0), end%8, "end must be word-aligned")
		require.LessOrEqual(t, start, uint64(tc.a))
		require.GreaterOrEqual(t, end, uint64(tc.a)+uint64(tc.length))
	}
}
