package dwarfdata

import (
	"debug/dwarf"
	"io"
	"sort"

	"github.com/ogledbg/ogledbg/addr"
	"github.com/ogledbg/ogledbg/dbgerr"
)

// LineRow is one row of the address-to-line index (spec §3, §4.4): the
// range of machine addresses a single source line covers.
type LineRow struct {
	Address addr.Address
	File    string
	Line    int
	IsStmt  bool
}

// LineTable is the address-to-line index built from the Line duplicate
// DWARF context (spec §4.4: "plus an address-to-line mapper"). Rows are
// sorted by Address and cover [Address, next row's Address).
type LineTable struct {
	rows []LineRow
}

// BuildLineTable walks every compile unit's line program via i.Line (the
// independent duplicate context; spec §9's lifetime-separation
// requirement) and flattens it into one address-sorted table. base is
// added to every row's address, matching symtab.Build's relative-to-
// runtime address resolution, so LineTable and the symbol tree agree on
// what a PC value means.
func (i *Info) BuildLineTable(base addr.Address) (*LineTable, error) {
	var rows []LineRow
	r := i.Line.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, &dbgerr.DwarfError{Context: "reading compile units for line table", Err: err}
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := i.Line.LineReader(entry)
		if err != nil {
			r.SkipChildren()
			continue
		}
		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				if err == io.EOF {
					break
				}
				return nil, &dbgerr.DwarfError{Context: "reading line program", Err: err}
			}
			name := ""
			if le.File != nil {
				name = le.File.Name
			}
			rows = append(rows, LineRow{
				Address: base.Add(int64(le.Address)),
				File:    name,
				Line:    le.Line,
				IsStmt:  le.IsStmt,
			})
		}
		r.SkipChildren()
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].Address < rows[b].Address })
	return &LineTable{rows: rows}, nil
}

// RowForPC returns the row covering pc: the row with the greatest
// Address not exceeding pc.
func (t *LineTable) RowForPC(pc addr.Address) (LineRow, bool) {
	rows := t.rows
	idx := sort.Search(len(rows), func(i int) bool { return rows[i].Address > pc }) - 1
	if idx < 0 {
		return LineRow{}, false
	}
	return rows[idx], true
}

// SameLine reports whether pc still falls within the source line row.
func (t *LineTable) SameLine(row LineRow, pc addr.Address) bool {
	cur, ok := t.RowForPC(pc)
	if !ok {
		return false
	}
	return cur.File == row.File && cur.Line == row.Line
}
