package symtab

import (
	"testing"

	lru "github.com/hashicorp/golang-lru"
	"github.com/derekparker/trie"
	"github.com/stretchr/testify/require"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/dbgerr"
)

func newTestTree(units []*OwnedSymbol) *Tree {
	cache, _ := lru.New(8)
	t := &Tree{
		byName:  make(map[string][]*OwnedSymbol),
		prefix:  trie.New(),
		typeLRU: cache,
		units:   units,
	}
	for _, u := range units {
		t.index(u)
	}
	return t
}

func TestFunctionContainingFindsEnclosingFunction(t *testing.T) {
	fn := &OwnedSymbol{
		Kind: KindFunction, Name: "main", HasName: true,
		LowAddr: 0x1000, HighAddr: 0x1040, HasLow: true, HasHigh: true,
	}
	cu := &OwnedSymbol{Kind: KindCompileUnit, Children: []*OwnedSymbol{fn}}
	tree := newTestTree([]*OwnedSymbol{cu})

	found, err := tree.FunctionContaining(addr.Address(0x1010))
	require.NoError(t, err)
	require.Equal(t, "main", found.Name)
}

func TestFunctionContainingOutsideAnyFunctionIsError(t *testing.T) {
	fn := &OwnedSymbol{
		Kind: KindFunction, Name: "main", HasName: true,
		LowAddr: 0x1000, HighAddr: 0x1040, HasLow: true, HasHigh: true,
	}
	cu := &OwnedSymbol{Kind: KindCompileUnit, Children: []*OwnedSymbol{fn}}
	tree := newTestTree([]*OwnedSymbol{cu})

	_, err := tree.FunctionContaining(addr.Address(0x2000))
	require.Error(t, err)
}

func TestByNameAndByPrefix(t *testing.T) {
	v1 := &OwnedSymbol{Kind: KindVariable, Name: "counter", HasName: true}
	v2 := &OwnedSymbol{Kind: KindVariable, Name: "counter_max", HasName: true}
	cu := &OwnedSymbol{Kind: KindCompileUnit, Children: []*OwnedSymbol{v1, v2}}
	tree := newTestTree([]*OwnedSymbol{cu})

	require.Len(t, tree.ByName("counter"), 1)
	require.ElementsMatch(t, []string{"counter", "counter_max"}, tree.ByPrefix("counter"))
}

func TestTypeOfRejectsNonVariableSymbol(t *testing.T) {
	fn := &OwnedSymbol{Kind: KindFunction, Name: "main", HasName: true}
	tree := newTestTree([]*OwnedSymbol{fn})

	_, err := tree.TypeOf(fn)
	require.ErrorIs(t, err, dbgerr.ErrWrongSymbolKind)
}

func TestTypeOfRejectsVariableWithoutDatatype(t *testing.T) {
	v := &OwnedSymbol{Kind: KindVariable, Name: "x", HasName: true}
	tree := newTestTree([]*OwnedSymbol{v})

	_, err := tree.TypeOf(v)
	require.ErrorIs(t, err, dbgerr.ErrVariableSymbolNoType)
}
