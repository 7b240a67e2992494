// Package frame implements a minimal DWARF Call Frame Information (CFI)
// reader over .debug_frame (spec §4.11: component D8). It resolves, for
// a given PC, the canonical frame address (CFA) and the saved
// return-address location, which feeds location's RequiresFrameBase and
// the dispatcher's Backtrace command.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/regio"
)

// CFA rule kinds: the CFA is always expressed as baseRegister + offset
// in the subset of CFI this package implements (register+immediate
// rules cover the overwhelming majority of code generated by gcc/clang
// for x86-64, which never needs DW_CFA_def_cfa_expression in a normal,
// non-hand-written-asm function).
type cfaRule struct {
	register regio.Name
	offset   int64
}

// FDE is one frame description entry: the CFI program covering
// [Low, High).
type FDE struct {
	Low, High addr.Address
	instrs    []byte
	cie       *cie
}

// Cover reports whether pc falls within the FDE's address range.
func (f *FDE) Cover(pc addr.Address) bool {
	return pc >= f.Low && pc < f.High
}

type cie struct {
	codeAlignment uint64
	dataAlignment int64
	returnReg     uint64
	initialInstrs []byte
}

// Table is a parsed .debug_frame section: an ordered set of FDEs.
type Table struct {
	fdes []*FDE
}

// Parse parses the raw bytes of a .debug_frame section.
func Parse(data []byte) (*Table, error) {
	r := bytes.NewReader(data)
	cies := map[int64]*cie{}
	var fdes []*FDE

	for r.Len() > 0 {
		entryStart := int64(len(data)) - int64(r.Len())
		length, err := readUint32(r)
		if err != nil {
			break
		}
		if length == 0 {
			continue
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("frame: truncated entry at %d: %w", entryStart, err)
		}
		br := bytes.NewReader(body)
		cieOrOffset, err := readUint32(br)
		if err != nil {
			return nil, err
		}
		if isCIEID(cieOrOffset) {
			c, err := parseCIE(br)
			if err != nil {
				return nil, err
			}
			cies[entryStart] = c
			continue
		}
		c, ok := cies[int64(cieOrOffset)]
		if !ok {
			// Forward/unknown reference: skip, best-effort.
			continue
		}
		low, err := readUint64Sized(br, 8)
		if err != nil {
			return nil, err
		}
		rangeLen, err := readUint64Sized(br, 8)
		if err != nil {
			return nil, err
		}
		rest := make([]byte, br.Len())
		io.ReadFull(br, rest)
		fdes = append(fdes, &FDE{
			Low:    addr.Address(low),
			High:   addr.Address(low + rangeLen),
			instrs: rest,
			cie:    c,
		})
	}
	return &Table{fdes: fdes}, nil
}

// isCIEID reports whether the 4-byte CIE/FDE discriminator marks this
// entry as a CIE (0xffffffff in 32-bit DWARF .debug_frame).
func isCIEID(v uint32) bool { return v == 0xffffffff }

func parseCIE(r *bytes.Reader) (*cie, error) {
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	aug, err := readCString(r)
	if err != nil {
		return nil, err
	}
	if aug != "" {
		// Augmented CIEs (eh_frame-style "zR" etc.) are not produced by
		// .debug_frame in typical ELF output; bail out gracefully.
		return nil, fmt.Errorf("frame: unsupported CIE augmentation %q", aug)
	}
	_ = version
	codeAlign, err := readULEB128(r)
	if err != nil {
		return nil, err
	}
	dataAlign, err := readSLEB128(r)
	if err != nil {
		return nil, err
	}
	retReg, err := readULEB128(r)
	if err != nil {
		return nil, err
	}
	initial := make([]byte, r.Len())
	io.ReadFull(r, initial)
	return &cie{codeAlignment: codeAlign, dataAlignment: dataAlign, returnReg: retReg, initialInstrs: initial}, nil
}

// CFAFor evaluates the CFI program for the FDE covering pc and returns
// the canonical frame address for the given live register snapshot.
func (t *Table) CFAFor(pc addr.Address, regs *regio.RegisterFile) (addr.Address, *FDE, error) {
	fde := t.FDEForPC(pc)
	if fde == nil {
		return 0, nil, fmt.Errorf("frame: no FDE covers %s", pc)
	}
	rule, err := evalRule(fde, pc)
	if err != nil {
		return 0, nil, err
	}
	base := regFieldByDwarf(regs, rule.register)
	return addr.Address(int64(base) + rule.offset), fde, nil
}

// FDEForPC returns the FDE covering pc, or nil.
func (t *Table) FDEForPC(pc addr.Address) *FDE {
	for _, f := range t.fdes {
		if f.Cover(pc) {
			return f
		}
	}
	return nil
}

// ReturnAddressRegister reports the CIE-declared DWARF register number
// holding the return address (typically the architecture's "ra" column,
// 16 for x86-64's %rip via the CFI return-column convention).
func (f *FDE) ReturnAddressRegister() uint64 {
	return f.cie.returnReg
}

func evalRule(f *FDE, pc addr.Address) (cfaRule, error) {
	rule := cfaRule{register: regio.Rsp, offset: 8} // CFI's implicit initial state for a fresh call frame.
	run := func(instrs []byte) error {
		r := bytes.NewReader(instrs)
		loc := f.Low
		for r.Len() > 0 && loc <= pc {
			op, err := r.ReadByte()
			if err != nil {
				return nil
			}
			switch {
			case op>>6 == 1: // DW_CFA_advance_loc
				loc = loc.Add(int64(op&0x3f) * int64(f.cie.codeAlignment))
			case op>>6 == 2: // DW_CFA_offset
				readULEB128(r) // factored offset, unused: we only track CFA rule here.
			case op>>6 == 3: // DW_CFA_restore
				// no-op for CFA-only tracking
			default:
				switch op {
				case 0x00: // nop
				case 0x01: // set_loc
					v, err := readUint64Sized(r, 8)
					if err != nil {
						return err
					}
					loc = addr.Address(v)
				case 0x02: // advance_loc1
					d, _ := r.ReadByte()
					loc = loc.Add(int64(d) * int64(f.cie.codeAlignment))
				case 0x03: // advance_loc2
					v, _ := readUint64Sized(r, 2)
					loc = loc.Add(int64(v) * int64(f.cie.codeAlignment))
				case 0x04: // advance_loc4
					v, _ := readUint64Sized(r, 4)
					loc = loc.Add(int64(v) * int64(f.cie.codeAlignment))
				case 0x0c: // def_cfa
					regNum, _ := readULEB128(r)
					off, _ := readULEB128(r)
					name, err := regio.DwarfRegisterName(int(regNum))
					if err == nil {
						rule.register = name
					}
					rule.offset = int64(off)
				case 0x0d: // def_cfa_register
					regNum, _ := readULEB128(r)
					if name, err := regio.DwarfRegisterName(int(regNum)); err == nil {
						rule.register = name
					}
				case 0x0e: // def_cfa_offset
					off, _ := readULEB128(r)
					rule.offset = int64(off)
				case 0x12: // def_cfa_sf
					regNum, _ := readULEB128(r)
					off, _ := readSLEB128(r)
					if name, err := regio.DwarfRegisterName(int(regNum)); err == nil {
						rule.register = name
					}
					rule.offset = off * f.cie.dataAlignment
				case 0x13: // def_cfa_offset_sf
					off, _ := readSLEB128(r)
					rule.offset = off * f.cie.dataAlignment
				case 0x05: // offset_extended
					readULEB128(r)
					readULEB128(r)
				case 0x06: // restore_extended
					readULEB128(r)
				case 0x07: // undefined
					readULEB128(r)
				case 0x08: // same_value
					readULEB128(r)
				case 0x09: // register
					readULEB128(r)
					readULEB128(r)
				case 0x0a, 0x0b: // remember_state / restore_state
				case 0x11: // offset_extended_sf
					readULEB128(r)
					readSLEB128(r)
				default:
					// Unknown opcode: stop interpreting rather than
					// mis-parse the remaining stream.
					return nil
				}
			}
		}
		return nil
	}
	if err := run(f.cie.initialInstrs); err != nil {
		return rule, err
	}
	if err := run(f.instrs); err != nil {
		return rule, err
	}
	return rule, nil
}

func regFieldByDwarf(regs *regio.RegisterFile, name regio.Name) uint64 {
	switch name {
	case regio.Rsp:
		return regs.Rsp
	case regio.Rbp:
		return regs.Rbp
	default:
		return 0
	}
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64Sized(r *bytes.Reader, n int) (uint64, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	switch n {
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	case 8:
		return binary.LittleEndian.Uint64(buf), nil
	default:
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(buf[i])
		}
		return v, nil
	}
}

func readCString(r *bytes.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func readULEB128(r *bytes.Reader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, nil
}

func readSLEB128(r *bytes.Reader) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}
