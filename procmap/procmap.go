// Package procmap parses /proc/<pid>/maps and resolves the tracee's
// module base address (spec §4.7, §9: component D1).
package procmap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ogledbg/ogledbg/addr"
)

// Entry is one parsed line of /proc/<pid>/maps.
type Entry struct {
	Low, High addr.Address
	Perms     string
	Offset    uint64
	Dev       string
	Inode     uint64
	Path      string
}

// Read parses /proc/<pid>/maps for pid.
func Read(pid int) ([]Entry, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		e, ok, err := parseLine(sc.Text())
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseLine(line string) (Entry, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Entry{}, false, nil
	}
	rng := strings.SplitN(fields[0], "-", 2)
	if len(rng) != 2 {
		return Entry{}, false, fmt.Errorf("procmap: malformed range %q", fields[0])
	}
	low, err := strconv.ParseUint(rng[0], 16, 64)
	if err != nil {
		return Entry{}, false, err
	}
	high, err := strconv.ParseUint(rng[1], 16, 64)
	if err != nil {
		return Entry{}, false, err
	}
	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return Entry{}, false, err
	}
	var inode uint64
	if len(fields) >= 5 {
		inode, _ = strconv.ParseUint(fields[4], 10, 64)
	}
	e := Entry{
		Low:    addr.Address(low),
		High:   addr.Address(high),
		Perms:  fields[1],
		Offset: offset,
		Dev:    fields[3],
		Inode:  inode,
	}
	if len(fields) >= 6 {
		e.Path = strings.Join(fields[5:], " ")
	}
	return e, true, nil
}

// ModuleBase resolves the tracee's module load address. It prefers the
// mapping whose Path matches exePath (resolved to an absolute path),
// falling back to the first entry's Low address when no mapping matches.
// exePath is made absolute with filepath.Abs but symlinks are not
// resolved, so a path reached through a symlink takes the fallback.
// This supersedes the
// "always take the first entry" rule the reference implementation used,
// which breaks when a prelinked library maps below the main image (spec
// §9 Open Question).
func ModuleBase(entries []Entry, exePath string) (addr.Address, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("procmap: empty process map")
	}
	if resolved, err := filepath.Abs(exePath); err == nil {
		for _, e := range entries {
			if e.Path == resolved {
				return e.Low, nil
			}
		}
	}
	return entries[0].Low, nil
}
