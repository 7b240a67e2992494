package addr_test

import (
	"testing"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/stretchr/testify/require"
)

func TestRelativeConversionIdempotence(t *testing.T) {
	base := addr.Address(0x400000)
	for _, a := range []addr.Address{base, base + 1, base + 0xfff, base + 0x123456} {
		rel, err := addr.ToRelative(a, base)
		require.NoError(t, err)
		require.Equal(t, a, addr.FromRelative(base, rel))
	}
}

func TestToRelativeUnderflowIsError(t *testing.T) {
	base := addr.Address(0x400000)
	_, err := addr.ToRelative(base-1, base)
	require.Error(t, err)
}
