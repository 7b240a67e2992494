// Package disasm wraps golang.org/x/arch/x86/x86asm for the
// DisassembleAt command (spec.md §1's external-disassembler contract;
// SPEC_FULL.md §4.10: component D2). Disassembly never touches the
// tracee directly: callers read memory via regio and pass the raw
// bytes in here.
package disasm

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/ogledbg/ogledbg/addr"
)

// Instruction is one decoded instruction starting at Address.
type Instruction struct {
	Address addr.Address
	Length  int
	Text    string
	Bytes   []byte
}

// At decodes up to count instructions from code, which is assumed to
// begin at base. Decoding stops early if code is exhausted or a byte
// sequence fails to decode; a failed decode does not abort the
// instructions already collected.
func At(code []byte, base addr.Address, count int) ([]Instruction, error) {
	var out []Instruction
	off := 0
	for len(out) < count && off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			break
		}
		out = append(out, Instruction{
			Address: base.Add(int64(off)),
			Length:  inst.Len,
			Text:    x86asm.GNUSyntax(inst, uint64(base.Add(int64(off))), nil),
			Bytes:   append([]byte(nil), code[off:off+inst.Len]...),
		})
		off += inst.Len
	}
	return out, nil
}
