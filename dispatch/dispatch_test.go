package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeWordRoundTrips(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	v, ok := decodeWord(buf)
	require.True(t, ok)
	require.Equal(t, uint64(0x0807060504030201), v)
}

func TestDecodeWordRejectsWrongLength(t *testing.T) {
	_, ok := decodeWord([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestOkFeedback(t *testing.T) {
	require.Equal(t, FeedbackOk, ok().Kind)
}

func TestErrFeedbackCarriesError(t *testing.T) {
	sentinel := errors.New("boom")
	fb := errFeedback(sentinel)
	require.Equal(t, FeedbackError, fb.Kind)
	require.ErrorIs(t, fb.Err, sentinel)
}

func TestDispatchWithoutSessionRejectsNonQuit(t *testing.T) {
	d := New(nil)
	fb := d.Dispatch(Command{Kind: CmdContinue})
	require.Equal(t, FeedbackError, fb.Kind)
}

func TestDispatchQuitWithoutSessionIsOk(t *testing.T) {
	d := New(nil)
	fb := d.Dispatch(Command{Kind: CmdQuit})
	require.Equal(t, FeedbackOk, fb.Kind)
}

func TestDecodeLittleEndianMatchesByteOrder(t *testing.T) {
	require.Equal(t, uint64(0x1234), decodeLittleEndian([]byte{0x34, 0x12, 0x00, 0x00}))
}

func TestDecodeLittleEndianSingleByte(t *testing.T) {
	require.Equal(t, uint64(0xff), decodeLittleEndian([]byte{0xff}))
}
