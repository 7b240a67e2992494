// Package dwarfdata loads DWARF debug information from an ELF64
// executable (spec §4.4: component C4).
package dwarfdata

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"os"

	"github.com/ogledbg/ogledbg/dbgerr"
)

// Info bundles the parsed object file view with a DWARF context and an
// independent duplicate used for line-table queries (spec §9: "Duplicate
// DWARF context for line info" — two independently constructed contexts
// over the same section bytes, rather than one shared context, so that
// the line-info reader's cursor state never interferes with DIE
// traversal happening concurrently with it).
type Info struct {
	Path    string
	ELF     *elf.File
	Data    *dwarf.Data // DIE graph: compile units, subprograms, variables, types
	Line    *dwarf.Data // independent context used only for LineReader
	file    *os.File
}

// Load opens path, verifies it is a regular file, and parses its ELF and
// DWARF sections.
func Load(path string) (*Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dbgerr.ErrExecutableDoesNotExist
		}
		return nil, &dbgerr.IOError{Path: path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return nil, dbgerr.ErrExecutableIsNotAFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &dbgerr.IOError{Path: path, Err: err}
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, &dbgerr.DwarfError{Context: "parsing ELF", Err: err}
	}

	data, err := ef.DWARF()
	if err != nil {
		f.Close()
		return nil, &dbgerr.DwarfError{Context: "loading .debug_info", Err: err}
	}
	lineData, err := ef.DWARF()
	if err != nil {
		f.Close()
		return nil, &dbgerr.DwarfError{Context: "loading duplicate line context", Err: err}
	}

	return &Info{Path: path, ELF: ef, Data: data, Line: lineData, file: f}, nil
}

// Close releases the underlying executable file handle.
func (i *Info) Close() error {
	if i.file == nil {
		return nil
	}
	return i.file.Close()
}

// Section returns the raw bytes of a named ELF section, or an error if
// absent, for data the dwarf.Data DIE graph doesn't expose directly.
func (i *Info) Section(name string) ([]byte, error) {
	sec := i.ELF.Section(name)
	if sec == nil {
		return nil, fmt.Errorf("dwarfdata: section %s not present", name)
	}
	return sec.Data()
}

// OptionalSection is like Section but returns (nil, nil) when the
// section is absent, for sections (.debug_loclists, .eh_frame, ...)
// whose absence is not an error by itself. debuggee reads .debug_frame
// and dispatch reads .debug_loc through it.
func (i *Info) OptionalSection(name string) ([]byte, error) {
	sec := i.ELF.Section(name)
	if sec == nil {
		return nil, nil
	}
	return sec.Data()
}
