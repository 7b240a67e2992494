package location

import (
	"encoding/binary"
	"fmt"

	"github.com/ogledbg/ogledbg/addr"
)

// LocList is a parsed .debug_loc section (DWARF <=4 location lists):
// spec §4.6's location-list range selection. Each compile unit's
// variables reference entries by byte offset into this section.
type LocList struct {
	data []byte
}

// NewLocList wraps the raw .debug_loc section bytes. A nil/empty
// section is valid: callers with DW_AT_location pointing into it will
// simply find no entries.
func NewLocList(data []byte) *LocList {
	return &LocList{data: data}
}

// Lookup returns the expression bytes active at pc (a module-relative
// address) for the list beginning at offset, or ok=false if none of
// the list's ranges cover pc.
//
// Format (DWARF <=4, matching what gcc/clang still emit without
// -gdwarf-5): a sequence of (begin uint64, end uint64) range pairs
// followed by a uint16 expression length and that many expression
// bytes, terminated by a (0, 0) pair. 0xffffffffffffffff as `begin`
// is a base-address-selection entry whose `end` becomes the new base
// for subsequent ranges; this engine has no per-CU base address
// override wired in yet, so base-selection entries are recognized and
// skipped rather than applied (TODO: thread the compile unit's
// DW_AT_low_pc through as the initial base once symtab exposes it).
func (l *LocList) Lookup(offset int64, pc addr.Address) ([]byte, bool, error) {
	if l == nil || offset < 0 || int(offset) >= len(l.data) {
		return nil, false, nil
	}
	buf := l.data[offset:]
	i := 0
	for i+16 <= len(buf) {
		begin := binary.LittleEndian.Uint64(buf[i : i+8])
		end := binary.LittleEndian.Uint64(buf[i+8 : i+16])
		i += 16
		if begin == 0 && end == 0 {
			return nil, false, nil
		}
		if begin == ^uint64(0) {
			// Base-address selection entry; see TODO above.
			continue
		}
		if i+2 > len(buf) {
			return nil, false, fmt.Errorf("location: truncated loclist entry")
		}
		exprLen := int(binary.LittleEndian.Uint16(buf[i : i+2]))
		i += 2
		if i+exprLen > len(buf) {
			return nil, false, fmt.Errorf("location: truncated loclist expression")
		}
		expr := buf[i : i+exprLen]
		i += exprLen
		if uint64(pc) >= begin && uint64(pc) < end {
			return expr, true, nil
		}
	}
	return nil, false, nil
}

// EvaluateAttr evaluates a DW_AT_location attribute value, which is
// either a single location expression ([]byte, DWARF class exprloc) or
// a location-list offset (int64, DWARF class loclistptr/sec_offset).
func EvaluateAttr(val interface{}, loclist *LocList, pc addr.Address, t Tracee, fb FrameBase) (Location, error) {
	switch v := val.(type) {
	case []byte:
		return Evaluate(v, t, fb)
	case int64:
		expr, ok, err := loclist.Lookup(v, pc)
		if err != nil {
			return Location{}, err
		}
		if !ok {
			return Location{Kind: KindEmpty}, nil
		}
		return Evaluate(expr, t, fb)
	default:
		return Location{}, fmt.Errorf("location: unsupported attribute value type %T", val)
	}
}
