// Package arch holds the x86-64 machine-word constants the rest of the
// engine is built against. The engine supports exactly one architecture
// (spec Non-goals: no non-x86-64 targets), so unlike a multi-arch debugger
// this is a handful of constants rather than a selectable table.
package arch

import "encoding/binary"

const (
	// WordSize is the width of a ptrace PEEKDATA/POKEDATA unit.
	WordSize = 8
	// PointerSize is the width of a pointer in the tracee's address space.
	PointerSize = 8
	// BreakpointInstr is the x86 INT3 software breakpoint opcode.
	BreakpointInstr = 0xCC
)

// ByteOrder is the tracee's byte order: little-endian, native for x86-64.
var ByteOrder = binary.LittleEndian

// DecodeUint interprets buf (len 1, 2, 4, or 8) as an unsigned little-endian
// integer. Used wherever DWARF expression evaluation or variable reads need
// a typed value of an architecture-native size (spec §4.6: U8/U16/U32/U64).
func DecodeUint(buf []byte) (uint64, bool) {
	switch len(buf) {
	case 1:
		return uint64(buf[0]), true
	case 2:
		return uint64(ByteOrder.Uint16(buf)), true
	case 4:
		return uint64(ByteOrder.Uint32(buf)), true
	case 8:
		return ByteOrder.Uint64(buf), true
	default:
		return 0, false
	}
}
