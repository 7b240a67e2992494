package location

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/regio"
)

type fakeTracee struct {
	mem  map[addr.Address][]byte
	regs map[regio.Name]uint64
	base addr.Address
}

func (f *fakeTracee) ReadBytes(a addr.Address, n int) ([]byte, error) {
	b, ok := f.mem[a]
	if !ok {
		return make([]byte, n), nil
	}
	return b[:n], nil
}

func (f *fakeTracee) GetRegister(name regio.Name) (uint64, error) {
	return f.regs[name], nil
}

func (f *fakeTracee) ModuleBase() addr.Address { return f.base }

func TestEvaluateConstAddr(t *testing.T) {
	expr := []byte{opAddr, 0x10, 0x20, 0, 0, 0, 0, 0, 0}
	loc, err := Evaluate(expr, &fakeTracee{}, nil)
	require.NoError(t, err)
	require.Equal(t, KindAddress, loc.Kind)
	require.Equal(t, addr.Address(0x2010), loc.Address)
}

func TestEvaluateFbregRequiresFrameBase(t *testing.T) {
	expr := []byte{opFbreg, 0x7e} // SLEB128 -2
	fb := func() (addr.Address, error) { return addr.Address(0x1000), nil }
	loc, err := Evaluate(expr, &fakeTracee{}, fb)
	require.NoError(t, err)
	require.Equal(t, KindAddress, loc.Kind)
	require.Equal(t, addr.Address(0x0ffe), loc.Address)
}

func TestEvaluateFbregWithoutFrameBaseErrors(t *testing.T) {
	expr := []byte{opFbreg, 0x00}
	_, err := Evaluate(expr, &fakeTracee{}, nil)
	require.Error(t, err)
}

func TestEvaluateRegisterOperand(t *testing.T) {
	expr := []byte{opReg0 + 0} // DW_OP_reg0 -> rax per System V numbering
	loc, err := Evaluate(expr, &fakeTracee{}, nil)
	require.NoError(t, err)
	require.Equal(t, KindRegister, loc.Kind)
	require.Equal(t, regio.Rax, loc.Register)
}

func TestEvaluateStackValue(t *testing.T) {
	expr := []byte{opLit0 + 5, opStackValue}
	loc, err := Evaluate(expr, &fakeTracee{}, nil)
	require.NoError(t, err)
	require.Equal(t, KindValue, loc.Kind)
	require.Equal(t, uint64(5), loc.Value)
}

func TestEvaluateEmptyExpression(t *testing.T) {
	loc, err := Evaluate(nil, &fakeTracee{}, nil)
	require.NoError(t, err)
	require.Equal(t, KindEmpty, loc.Kind)
}

func TestLocListPicksCoveringRange(t *testing.T) {
	var data []byte
	appendU64 := func(v uint64) {
		for i := 0; i < 8; i++ {
			data = append(data, byte(v>>(8*i)))
		}
	}
	// range [0x10, 0x20): DW_OP_lit7
	appendU64(0x10)
	appendU64(0x20)
	data = append(data, 1, 0, opLit0+7)
	// terminator
	appendU64(0)
	appendU64(0)

	ll := NewLocList(data)
	expr, ok, err := ll.Lookup(0, addr.Address(0x15))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{opLit0 + 7}, expr)

	_, ok, err = ll.Lookup(0, addr.Address(0x25))
	require.NoError(t, err)
	require.False(t, ok)
}
