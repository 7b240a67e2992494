// Package symtab builds and queries the symbol tree mirrored from a
// program's DWARF DIE graph (spec §4.5: component C5).
package symtab

import (
	"debug/dwarf"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/derekparker/trie"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/dbgerr"
	"github.com/ogledbg/ogledbg/dwarfdata"
)

// Kind is the OwnedSymbol tag set (spec §3: OwnedSymbol.kind).
type Kind int

const (
	KindCompileUnit Kind = iota
	KindFunction
	KindVariable
	KindParameter
	KindBaseType
	KindConstant
	KindBlock
	KindOther
)

func kindOf(tag dwarf.Tag) Kind {
	switch tag {
	case dwarf.TagCompileUnit:
		return KindCompileUnit
	case dwarf.TagSubprogram:
		return KindFunction
	case dwarf.TagVariable:
		return KindVariable
	case dwarf.TagFormalParameter:
		return KindParameter
	case dwarf.TagBaseType:
		return KindBaseType
	case dwarf.TagConstant:
		return KindConstant
	case dwarf.TagLexDwarfBlock:
		return KindBlock
	default:
		return KindOther
	}
}

// supported reports whether tag maps into the SymbolKind set the tree
// retains nodes for (spec §4.5: "for each DIE whose tag maps into the
// supported SymbolKind set").
func supported(tag dwarf.Tag) bool {
	switch tag {
	case dwarf.TagCompileUnit, dwarf.TagSubprogram, dwarf.TagVariable,
		dwarf.TagFormalParameter, dwarf.TagBaseType, dwarf.TagConstant,
		dwarf.TagLexDwarfBlock:
		return true
	default:
		return false
	}
}

// OwnedSymbol is one node in the tree (spec §3).
type OwnedSymbol struct {
	Offset   dwarf.Offset
	Kind     Kind
	Name     string
	HasName  bool

	LowAddr, HighAddr   addr.Address
	HasLow, HasHigh     bool

	Datatype    dwarf.Offset
	HasDatatype bool

	ByteSize    int64
	HasByteSize bool

	Location  interface{} // raw DW_AT_location value: []byte or int64 offset
	FrameBase interface{} // raw DW_AT_frame_base value

	Children []*OwnedSymbol
}

// Tree is the symbol tree for one loaded program, plus the indexes
// built over it (spec §4.5 query surface; D3/D4 in SPEC_FULL.md).
type Tree struct {
	units   []*OwnedSymbol
	byName  map[string][]*OwnedSymbol
	prefix  *trie.Trie
	data    *dwarf.Data
	typeLRU *lru.Cache
}

// Build walks every compile unit in info and constructs the symbol
// tree, resolving addresses against base (spec §4.5).
func Build(info *dwarfdata.Info, base addr.Address) (*Tree, error) {
	cache, err := lru.New(512)
	if err != nil {
		return nil, err
	}
	t := &Tree{
		byName:  make(map[string][]*OwnedSymbol),
		prefix:  trie.New(),
		data:    info.Data,
		typeLRU: cache,
	}

	r := info.Data.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, &dbgerr.DwarfError{Context: "reading DIE tree", Err: err}
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		sym, err := buildSubtree(r, entry, base)
		if err != nil {
			return nil, err
		}
		t.units = append(t.units, sym)
		t.index(sym)
	}
	return t, nil
}

// buildSubtree consumes entries from r until the children list started
// by entry is exhausted (a nil-tag terminator, per debug/dwarf.Reader's
// convention), building one OwnedSymbol per supported DIE.
func buildSubtree(r *dwarf.Reader, entry *dwarf.Entry, base addr.Address) (*OwnedSymbol, error) {
	sym, err := symbolFromEntry(entry, base)
	if err != nil {
		return nil, err
	}
	if !entry.Children {
		return sym, nil
	}
	for {
		child, err := r.Next()
		if err != nil {
			return nil, &dbgerr.DwarfError{Context: "reading DIE children", Err: err}
		}
		if child == nil || child.Tag == 0 {
			break
		}
		if !supported(child.Tag) {
			if child.Children {
				r.SkipChildren()
			}
			continue
		}
		childSym, err := buildSubtree(r, child, base)
		if err != nil {
			return nil, err
		}
		sym.Children = append(sym.Children, childSym)
	}
	return sym, nil
}

func symbolFromEntry(entry *dwarf.Entry, base addr.Address) (*OwnedSymbol, error) {
	sym := &OwnedSymbol{Offset: entry.Offset, Kind: kindOf(entry.Tag)}

	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		sym.Name = name
		sym.HasName = true
	}

	lowVal := entry.Val(dwarf.AttrLowpc)
	highVal := entry.Val(dwarf.AttrHighpc)
	if lowVal != nil {
		low, ok := lowVal.(uint64)
		if ok {
			sym.LowAddr = base.Add(int64(low))
			sym.HasLow = true
		}
	}
	if highVal != nil {
		switch hv := highVal.(type) {
		case uint64:
			// An address-class high_pc is an absolute address in the
			// same (unrelocated) space as low_pc.
			sym.HighAddr = base.Add(int64(hv))
			sym.HasHigh = true
		case int64:
			// A constant-class high_pc is an offset from low_pc, the
			// form most compilers emit (DWARF4+ convention).
			if sym.HasLow {
				sym.HighAddr = sym.LowAddr.Add(hv)
			} else {
				sym.HighAddr = base.Add(hv)
			}
			sym.HasHigh = true
		}
	}
	if sym.HasHigh && !sym.HasLow {
		return nil, dbgerr.ErrHighAddrExistsButNotLowAddr
	}

	if dt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
		sym.Datatype = dt
		sym.HasDatatype = true
	}
	if bs, ok := entry.Val(dwarf.AttrByteSize).(int64); ok {
		sym.ByteSize = bs
		sym.HasByteSize = true
	}
	sym.Location = entry.Val(dwarf.AttrLocation)
	sym.FrameBase = entry.Val(dwarf.AttrFrameBase)

	return sym, nil
}

func (t *Tree) index(sym *OwnedSymbol) {
	if sym.HasName {
		t.byName[sym.Name] = append(t.byName[sym.Name], sym)
		t.prefix.Add(sym.Name)
	}
	for _, c := range sym.Children {
		t.index(c)
	}
}

// Symbols returns the top-level compile-unit symbols (spec §4.5:
// symbols()).
func (t *Tree) Symbols() []*OwnedSymbol { return t.units }

// ByName performs a depth-first-search name lookup across the entire
// tree (spec §4.5: by_name).
func (t *Tree) ByName(name string) []*OwnedSymbol {
	return t.byName[name]
}

// ByPrefix returns every known symbol name with the given prefix,
// backed by the trie index (SPEC_FULL.md D3).
func (t *Tree) ByPrefix(prefix string) []string {
	return t.prefix.PrefixSearch(prefix)
}

// FunctionContaining finds the Function symbol whose [low, high) range
// contains addr (spec §4.5: function_containing).
func (t *Tree) FunctionContaining(a addr.Address) (*OwnedSymbol, error) {
	var found *OwnedSymbol
	var walk func(sym *OwnedSymbol)
	walk = func(sym *OwnedSymbol) {
		if found != nil {
			return
		}
		if sym.Kind == KindFunction && sym.HasLow && sym.HasHigh && a >= sym.LowAddr && a < sym.HighAddr {
			found = sym
			return
		}
		for _, c := range sym.Children {
			walk(c)
		}
	}
	for _, u := range t.units {
		walk(u)
		if found != nil {
			break
		}
	}
	if found == nil {
		return nil, dbgerr.ErrNotInFunction
	}
	return found, nil
}

// TypeOf resolves sym's datatype DIE into a parsed dwarf.Type, caching
// results by offset (SPEC_FULL.md D4) since shared struct/array member
// types are otherwise re-walked on every query.
func (t *Tree) TypeOf(sym *OwnedSymbol) (dwarf.Type, error) {
	if sym.Kind != KindVariable && sym.Kind != KindParameter {
		return nil, dbgerr.ErrWrongSymbolKind
	}
	if !sym.HasDatatype {
		return nil, dbgerr.ErrVariableSymbolNoType
	}
	if cached, ok := t.typeLRU.Get(sym.Datatype); ok {
		return cached.(dwarf.Type), nil
	}
	typ, err := t.data.Type(sym.Datatype)
	if err != nil {
		return nil, &dbgerr.DwarfError{Context: fmt.Sprintf("resolving type at offset %v", sym.Datatype), Err: err}
	}
	t.typeLRU.Add(sym.Datatype, typ)
	return typ, nil
}
