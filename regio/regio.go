// Package regio implements word-aligned memory and register access against
// a stopped tracee via ptrace (spec §4.2: component C2). All operations
// require the tracee to be stopped; callers issuing them against a running
// tracee will see the underlying ptrace syscall fail.
package regio

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/arch"
	"github.com/ogledbg/ogledbg/dbgerr"
)

// RegisterFile is the full x86-64 general-purpose register bank (spec §6).
type RegisterFile = unix.PtraceRegs

// Name enumerates the registers the engine exposes by name (spec §6).
type Name int

const (
	R8 Name = iota
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	Rip
	Rbp
	Rsp
	Rbx
	Rax
	Rcx
	Rdx
	Rsi
	Rdi
	OrigRax
	Eflags
	Cs
	Ss
	Ds
	Es
	Fs
	Gs
	FsBase
	GsBase
)

var names = map[Name]string{
	R8: "r8", R9: "r9", R10: "r10", R11: "r11", R12: "r12", R13: "r13",
	R14: "r14", R15: "r15", Rip: "rip", Rbp: "rbp", Rsp: "rsp", Rbx: "rbx",
	Rax: "rax", Rcx: "rcx", Rdx: "rdx", Rsi: "rsi", Rdi: "rdi",
	OrigRax: "orig_rax", Eflags: "eflags", Cs: "cs", Ss: "ss", Ds: "ds",
	Es: "es", Fs: "fs", Gs: "gs", FsBase: "fs_base", GsBase: "gs_base",
}

func (n Name) String() string { return names[n] }

// ReadWord reads one aligned machine word at addr via PTRACE_PEEKDATA.
func ReadWord(pid int, a addr.Address) (addr.Word, error) {
	var buf [arch.WordSize]byte
	n, err := unix.PtracePeekData(pid, uintptr(a), buf[:])
	if err != nil {
		return 0, &dbgerr.OSError{Op: "PTRACE_PEEKDATA", Err: err}
	}
	if n != len(buf) {
		return 0, &dbgerr.OSError{Op: "PTRACE_PEEKDATA", Err: fmt.Errorf("read %d bytes, want %d", n, len(buf))}
	}
	v, _ := arch.DecodeUint(buf[:])
	return addr.Word(v), nil
}

// WriteWord writes one aligned machine word at addr via PTRACE_POKEDATA.
func WriteWord(pid int, a addr.Address, w addr.Word) error {
	var buf [arch.WordSize]byte
	arch.ByteOrder.PutUint64(buf[:], uint64(w))
	n, err := unix.PtracePokeData(pid, uintptr(a), buf[:])
	if err != nil {
		return &dbgerr.OSError{Op: "PTRACE_POKEDATA", Err: err}
	}
	if n != len(buf) {
		return &dbgerr.OSError{Op: "PTRACE_POKEDATA", Err: fmt.Errorf("wrote %d bytes, want %d", n, len(buf))}
	}
	return nil
}

// WordAlignedRange returns the [start, end) word-aligned byte range that
// contains [a, a+length), rounding down/up to the nearest word boundary.
// Exported so the masking arithmetic used by ReadBytes/WriteBytes can be
// unit-tested without a live tracee.
func WordAlignedRange(a addr.Address, length int) (start, end uint64) {
	start = uint64(a) &^ (arch.WordSize - 1)
	end = (uint64(a) + uint64(length) + arch.WordSize - 1) &^ (arch.WordSize - 1)
	return start, end
}

// ReadBytes reads len(buf) bytes starting at a, word-by-word, masking the
// first and last partial words when a or a+len(buf) are not word-aligned
// (spec §4.2, testable property 5). It returns the number of bytes
// actually populated, which on success equals len(buf).
func ReadBytes(pid int, a addr.Address, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	start, end := WordAlignedRange(a, len(buf))
	words := make([]byte, end-start)
	for off := uint64(0); off < end-start; off += arch.WordSize {
		w, err := ReadWord(pid, addr.Address(start+off))
		if err != nil {
			return 0, err
		}
		arch.ByteOrder.PutUint64(words[off:off+arch.WordSize], uint64(w))
	}
	lo := uint64(a) - start
	n := copy(buf, words[lo:lo+uint64(len(buf))])
	return n, nil
}

// WriteBytes writes len(buf) bytes starting at a. For partial-word
// endpoints it reads the containing word first and writes back only the
// overlapping bytes, so bytes outside [a, a+len(buf)) are preserved
// (spec §4.2, testable property 5).
func WriteBytes(pid int, a addr.Address, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	start, end := WordAlignedRange(a, len(buf))
	words := make([]byte, end-start)
	for off := uint64(0); off < end-start; off += arch.WordSize {
		w, err := ReadWord(pid, addr.Address(start+off))
		if err != nil {
			return 0, err
		}
		arch.ByteOrder.PutUint64(words[off:off+arch.WordSize], uint64(w))
	}
	lo := uint64(a) - start
	copy(words[lo:lo+uint64(len(buf))], buf)
	for off := uint64(0); off < end-start; off += arch.WordSize {
		w := arch.ByteOrder.Uint64(words[off : off+arch.WordSize])
		if err := WriteWord(pid, addr.Address(start+off), addr.Word(w)); err != nil {
			return 0, err
		}
	}
	return len(buf), nil
}

// GetRegs reads the full register bank in a single ptrace call, so that
// all registers observed within one command see a consistent snapshot
// (spec §5 ordering guarantee).
func GetRegs(pid int) (*RegisterFile, error) {
	var regs RegisterFile
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return nil, &dbgerr.OSError{Op: "PTRACE_GETREGS", Err: err}
	}
	return &regs, nil
}

// SetRegs writes the full register bank in a single ptrace call.
func SetRegs(pid int, regs *RegisterFile) error {
	if err := unix.PtraceSetRegs(pid, regs); err != nil {
		return &dbgerr.OSError{Op: "PTRACE_SETREGS", Err: err}
	}
	return nil
}

// GetReg reads a single named register out of a fresh register snapshot.
func GetReg(pid int, name Name) (uint64, error) {
	regs, err := GetRegs(pid)
	if err != nil {
		return 0, err
	}
	return fieldOf(regs, name), nil
}

// SetReg writes a single named register, reading the bank first and
// writing the whole bank back so other registers are unaffected (spec
// §8, testable property 4).
func SetReg(pid int, name Name, value uint64) error {
	regs, err := GetRegs(pid)
	if err != nil {
		return err
	}
	setFieldOf(regs, name, value)
	return SetRegs(pid, regs)
}

func fieldOf(r *RegisterFile, name Name) uint64 {
	switch name {
	case R8:
		return r.R8
	case R9:
		return r.R9
	case R10:
		return r.R10
	case R11:
		return r.R11
	case R12:
		return r.R12
	case R13:
		return r.R13
	case R14:
		return r.R14
	case R15:
		return r.R15
	case Rip:
		return r.Rip
	case Rbp:
		return r.Rbp
	case Rsp:
		return r.Rsp
	case Rbx:
		return r.Rbx
	case Rax:
		return r.Rax
	case Rcx:
		return r.Rcx
	case Rdx:
		return r.Rdx
	case Rsi:
		return r.Rsi
	case Rdi:
		return r.Rdi
	case OrigRax:
		return r.Orig_rax
	case Eflags:
		return r.Eflags
	case Cs:
		return r.Cs
	case Ss:
		return r.Ss
	case Ds:
		return r.Ds
	case Es:
		return r.Es
	case Fs:
		return r.Fs
	case Gs:
		return r.Gs
	case FsBase:
		return r.Fs_base
	case GsBase:
		return r.Gs_base
	default:
		return 0
	}
}

func setFieldOf(r *RegisterFile, name Name, v uint64) {
	switch name {
	case R8:
		r.R8 = v
	case R9:
		r.R9 = v
	case R10:
		r.R10 = v
	case R11:
		r.R11 = v
	case R12:
		r.R12 = v
	case R13:
		r.R13 = v
	case R14:
		r.R14 = v
	case R15:
		r.R15 = v
	case Rip:
		r.Rip = v
	case Rbp:
		r.Rbp = v
	case Rsp:
		r.Rsp = v
	case Rbx:
		r.Rbx = v
	case Rax:
		r.Rax = v
	case Rcx:
		r.Rcx = v
	case Rdx:
		r.Rdx = v
	case Rsi:
		r.Rsi = v
	case Rdi:
		r.Rdi = v
	case OrigRax:
		r.Orig_rax = v
	case Eflags:
		r.Eflags = v
	case Cs:
		r.Cs = v
	case Ss:
		r.Ss = v
	case Ds:
		r.Ds = v
	case Es:
		r.Es = v
	case Fs:
		r.Fs = v
	case Gs:
		r.Gs = v
	case FsBase:
		r.Fs_base = v
	case GsBase:
		r.Gs_base = v
	}
}

// DwarfRegisterName translates a DWARF register number (System V AMD64
// ABI numbering) to the engine's register-name enum (spec §4.6, §6).
func DwarfRegisterName(num int) (Name, error) {
	// System V AMD64 ABI DWARF register numbers 0-16.
	switch num {
	case 0:
		return Rax, nil
	case 1:
		return Rdx, nil
	case 2:
		return Rcx, nil
	case 3:
		return Rbx, nil
	case 4:
		return Rsi, nil
	case 5:
		return Rdi, nil
	case 6:
		return Rbp, nil
	case 7:
		return Rsp, nil
	case 8:
		return R8, nil
	case 9:
		return R9, nil
	case 10:
		return R10, nil
	case 11:
		return R11, nil
	case 12:
		return R12, nil
	case 13:
		return R13, nil
	case 14:
		return R14, nil
	case 15:
		return R15, nil
	case 16:
		return Rip, nil
	default:
		return 0, &dbgerr.UnimplementedRegister{Number: num}
	}
}
