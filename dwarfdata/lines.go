package dwarfdata

import (
	"fmt"
	"sort"
)

// NotFoundError reports a name or location lookup miss (spec's NotFound
// error kind).
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found", e.What) }

// AddressOfLine returns the address of the first statement-start row in
// the line program for (file, line). file is matched by basename, per
// the spec's user-facing SourceLocation. If line itself has no
// statement, resolution rounds up to the next statement-bearing line in
// the same file (the documented resolution of the spec's open
// question — see SPEC_FULL.md §6).
func (d *Data) AddressOfLine(file string, line int) (uint64, error) {
	best := -1
	var bestAddr uint64
	for _, row := range d.lines {
		if row.EndSeq || !row.IsStmt || row.Base != file {
			continue
		}
		if row.Line < line {
			continue
		}
		if best == -1 || row.Line < best || (row.Line == best && row.Address < bestAddr) {
			best = row.Line
			bestAddr = row.Address
		}
	}
	if best == -1 {
		return 0, &NotFoundError{What: fmt.Sprintf("%s:%d", file, line)}
	}
	return bestAddr, nil
}

// LineOf returns the basename and line number containing addr — the
// reverse of AddressOfLine, used by loc and by breakpoint-hit reporting.
func (d *Data) LineOf(addr uint64) (file string, line int, err error) {
	i := sort.Search(len(d.lines), func(i int) bool { return d.lines[i].Address > addr }) - 1
	if i < 0 || i >= len(d.lines) || d.lines[i].EndSeq {
		return "", 0, &NotFoundError{What: fmt.Sprintf("address %#x", addr)}
	}
	return d.lines[i].Base, d.lines[i].Line, nil
}

// MainFile returns the basename of the file containing the function
// named "main", used to resolve a bare "b <line>" against the program's
// entry source file.
func (d *Data) MainFile() (string, error) {
	fn, err := d.FunctionByName("main")
	if err != nil {
		return "", err
	}
	return fn.File, nil
}
