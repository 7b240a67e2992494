package dispatch

import (
	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/dbgerr"
	"github.com/ogledbg/ogledbg/location"
	"github.com/ogledbg/ogledbg/regio"
	"github.com/ogledbg/ogledbg/symtab"
)

// tracee adapts a debuggee.Session to location.Tracee.
type tracee struct {
	pid  int
	base addr.Address
}

func (t tracee) ReadBytes(a addr.Address, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := regio.ReadBytes(t.pid, a, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t tracee) GetRegister(name regio.Name) (uint64, error) {
	return regio.GetReg(t.pid, name)
}

func (t tracee) ModuleBase() addr.Address { return t.base }

// resolveVariableSymbol finds the unique Variable/Parameter symbol
// named expr, rejecting ambiguous or absent matches (spec §4.8:
// ReadVariable/WriteVariable).
func (d *Dispatcher) resolveVariableSymbol(expr string) (*symtab.OwnedSymbol, error) {
	if d.Session.Symbols == nil {
		return nil, dbgerr.ErrVarExprReturnedNothing
	}
	matches := d.Session.Symbols.ByName(expr)
	var candidates []*symtab.OwnedSymbol
	for _, m := range matches {
		if m.Kind == symtab.KindVariable || m.Kind == symtab.KindParameter {
			candidates = append(candidates, m)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, dbgerr.ErrVarExprReturnedNothing
	case 1:
		return candidates[0], nil
	default:
		return nil, dbgerr.ErrAmbiguousVarExpr
	}
}

// frameBase resolves the frame_base attribute of the function
// containing pc, satisfying location's RequiresFrameBase (spec §4.6).
func (d *Dispatcher) frameBase(pc addr.Address, t location.Tracee) location.FrameBase {
	return func() (addr.Address, error) {
		fn, err := d.Session.Symbols.FunctionContaining(pc)
		if err != nil {
			return 0, err
		}
		expr, ok := fn.FrameBase.([]byte)
		if !ok {
			return 0, dbgerr.ErrNoFrameInfo
		}
		cfaFunc := func() (addr.Address, error) {
			if d.Session.Frames == nil {
				return 0, dbgerr.ErrNoFrameInfo
			}
			regs, err := d.Session.Registers()
			if err != nil {
				return 0, err
			}
			cfa, _, err := d.Session.Frames.CFAFor(pc, regs)
			return cfa, err
		}
		loc, err := location.Evaluate(expr, t, cfaFunc)
		if err != nil {
			return 0, err
		}
		if loc.Kind != location.KindAddress {
			return 0, dbgerr.ErrNoFrameInfo
		}
		return loc.Address, nil
	}
}

// resolveVariableLocation finds expr's symbol and evaluates its
// location expression against the tracee's current stop state,
// returning the *storage* the variable lives in (an address, a
// register, or an already-materialized value) — not yet dereferenced.
func (d *Dispatcher) resolveVariableLocation(expr string) (*symtab.OwnedSymbol, location.Location, error) {
	sym, err := d.resolveVariableSymbol(expr)
	if err != nil {
		return nil, location.Location{}, err
	}
	if sym.Location == nil {
		return nil, location.Location{}, dbgerr.ErrSymbolHasNoLocation
	}
	regs, err := d.Session.Registers()
	if err != nil {
		return nil, location.Location{}, err
	}
	base, err := d.Session.ModuleBase()
	if err != nil {
		return nil, location.Location{}, err
	}
	pc := addr.Address(regs.Rip)
	relPC, err := addr.ToRelative(pc, base)
	if err != nil {
		return nil, location.Location{}, err
	}

	t := tracee{pid: d.Session.Pid, base: base}
	var locList *location.LocList
	if d.Session.Info != nil {
		data, _ := d.Session.Info.OptionalSection(".debug_loc")
		locList = location.NewLocList(data)
	}

	loc, err := location.EvaluateAttr(sym.Location, locList, addr.Address(relPC), t, d.frameBase(pc, t))
	return sym, loc, err
}

// variableSize returns sym's declared type size, falling back to a
// whole register word when the type can't be resolved.
func (d *Dispatcher) variableSize(sym *symtab.OwnedSymbol) int64 {
	if d.Session.Symbols != nil {
		if typ, err := d.Session.Symbols.TypeOf(sym); err == nil && typ.Size() > 0 {
			return typ.Size()
		}
	}
	return 8
}

// evaluateVariable resolves expr's storage and dereferences it using
// its declared type size (spec §4.8 ReadVariable / scenario S5): an
// address yields the ByteSize bytes actually stored there, decoded to a
// little-endian numeric value when they fit in a machine word; a
// register yields its current value, masked to the type's width.
func (d *Dispatcher) evaluateVariable(expr string) (location.Location, error) {
	sym, loc, err := d.resolveVariableLocation(expr)
	if err != nil {
		return location.Location{}, err
	}

	switch loc.Kind {
	case location.KindAddress:
		size := d.variableSize(sym)
		n := size
		if n <= 0 {
			n = 8
		}
		buf := make([]byte, n)
		if _, err := regio.ReadBytes(d.Session.Pid, loc.Address, buf); err != nil {
			return location.Location{}, err
		}
		if size > 8 {
			return location.Location{Kind: location.KindBytes, Bytes: buf}, nil
		}
		return location.Location{Kind: location.KindValue, Value: decodeLittleEndian(buf)}, nil
	case location.KindRegister:
		v, err := regio.GetReg(d.Session.Pid, loc.Register)
		if err != nil {
			return location.Location{}, err
		}
		if size := d.variableSize(sym); size > 0 && size < 8 {
			v &= (uint64(1) << (8 * uint(size))) - 1
		}
		return location.Location{Kind: location.KindValue, Value: v}, nil
	default:
		return loc, nil
	}
}

func decodeLittleEndian(buf []byte) uint64 {
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// writeVariable resolves expr's storage (without dereferencing it) and
// writes value into exactly its declared type's width, so a sub-word
// variable's write doesn't clobber adjacent memory.
func (d *Dispatcher) writeVariable(expr string, value uint64) error {
	sym, loc, err := d.resolveVariableLocation(expr)
	if err != nil {
		return err
	}
	switch loc.Kind {
	case location.KindAddress:
		size := d.variableSize(sym)
		if size <= 0 || size > 8 {
			size = 8
		}
		buf := make([]byte, size)
		for i := int64(0); i < size; i++ {
			buf[i] = byte(value >> (8 * uint(i)))
		}
		_, err := regio.WriteBytes(d.Session.Pid, loc.Address, buf)
		return err
	case location.KindRegister:
		return regio.SetReg(d.Session.Pid, loc.Register, value)
	default:
		return dbgerr.ErrSymbolHasNoLocation
	}
}

// backtrace unwinds by repeatedly resolving the CFA of the current PC
// and reading the return address stored just below it, per
// SPEC_FULL.md §4.11. It approximates the next frame's register state
// (Rsp = CFA, Rbp = the slot saved at CFA-16, matching the standard
// `push rbp; mov rbp, rsp` prologue) rather than fully replaying that
// frame's CFI program, since only those two fields feed the frame
// package's rbp/rsp-only CFA rules (frame.regFieldByDwarf).
func (d *Dispatcher) backtrace() ([]Frame, error) {
	if d.Session.Frames == nil {
		return nil, dbgerr.ErrNoFrameInfo
	}
	regs, err := d.Session.Registers()
	if err != nil {
		return nil, err
	}
	synthetic := *regs
	pc := addr.Address(regs.Rip)

	var frames []Frame
	const maxDepth = 64
	for i := 0; i < maxDepth; i++ {
		if d.Session.Frames.FDEForPC(pc) == nil {
			break
		}
		cfa, _, err := d.Session.Frames.CFAFor(pc, &synthetic)
		if err != nil {
			break
		}
		frames = append(frames, Frame{PC: pc, CFA: cfa})

		retWord, err := regio.ReadWord(d.Session.Pid, cfa.Add(-8))
		if err != nil || retWord == 0 {
			break
		}
		savedRbp, err := regio.ReadWord(d.Session.Pid, cfa.Add(-16))
		if err != nil {
			break
		}
		pc = addr.Address(retWord)
		synthetic.Rsp = uint64(cfa)
		synthetic.Rbp = uint64(savedRbp)
	}
	return frames, nil
}
