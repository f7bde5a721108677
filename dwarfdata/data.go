// Package dwarfdata implements Component B, the debug-info index: a
// queryable view over the DWARF data embedded in the traced executable,
// built once at startup. It answers line<->address, function-range,
// variable-location, and type-graph queries.
//
// The ELF loader and the DWARF byte-level decoder are the spec's named
// external collaborators; both are the standard library's debug/elf and
// debug/dwarf, which is also the corpus's own choice (see DESIGN.md).
package dwarfdata

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Data is the debug-info index for one executable, built once after the
// ELF and DWARF sections are loaded and held for the debugging session's
// lifetime.
type Data struct {
	path    string
	elf     *elf.File
	dwarf   *dwarf.Data
	entry   uint64

	lines     []lineRow   // all line-table rows, sorted by Address
	functions []*Function // sorted by Entry

	typeCache map[dwarf.Offset]dwarf.Type
}

// lineRow is one row of the flattened line-number program, tagged with
// the basename of the file it belongs to (the user-facing identifier per
// the spec's SourceLocation) alongside the full path DWARF reports.
type lineRow struct {
	Address     uint64
	File        string // full path, as DWARF recorded it
	Base        string // filepath.Base(File)
	Line        int
	IsStmt      bool
	EndSeq      bool
	PrologueEnd bool
}

// Function is the index's view of a DWARF subprogram.
type Function struct {
	Name             string
	Entry            uint64
	End              uint64
	PrologueEnd      uint64
	File             string // basename of the function's declaration file
	FrameBaseExpr    []byte // raw DW_OP_* bytes for DW_AT_frame_base
	die              *dwarf.Entry
}

// Load opens path as an ELF executable, extracts its DWARF data, and
// builds the line and function indexes.
func Load(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dwarfdata: open: %w", err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, fmt.Errorf("dwarfdata: not an ELF file: %w", err)
	}
	dd, err := ef.DWARF()
	if err != nil {
		return nil, fmt.Errorf("dwarfdata: no DWARF data (compile with -g): %w", err)
	}

	d := &Data{
		path:      path,
		elf:       ef,
		dwarf:     dd,
		entry:     ef.Entry,
		typeCache: make(map[dwarf.Offset]dwarf.Type),
	}
	if err := d.buildLineIndex(); err != nil {
		return nil, err
	}
	if err := d.buildFunctionIndex(); err != nil {
		return nil, err
	}
	return d, nil
}

// EntryPoint is the executable's entry address, from the ELF header.
func (d *Data) EntryPoint() uint64 { return d.entry }

// Reader returns a fresh DIE cursor over the DWARF data, for callers
// (scope.go, location.go) that need to walk entries directly.
func (d *Data) Reader() *dwarf.Reader { return d.dwarf.Reader() }

func (d *Data) buildLineIndex() error {
	r := d.dwarf.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return fmt.Errorf("dwarfdata: reading compile units: %w", err)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		lr, err := d.dwarf.LineReader(cu)
		if err != nil {
			return fmt.Errorf("dwarfdata: line reader: %w", err)
		}
		if lr == nil {
			r.SkipChildren()
			continue
		}
		var entry dwarf.LineEntry
		for {
			if err := lr.Next(&entry); err != nil {
				break // io.EOF ends this CU's line program
			}
			d.lines = append(d.lines, lineRow{
				Address:     entry.Address,
				File:        entry.File.Name,
				Base:        filepath.Base(entry.File.Name),
				Line:        entry.Line,
				IsStmt:      entry.IsStmt,
				EndSeq:      entry.EndSequence,
				PrologueEnd: entry.PrologueEnd,
			})
		}
		r.SkipChildren()
	}
	sort.Slice(d.lines, func(i, j int) bool { return d.lines[i].Address < d.lines[j].Address })
	return nil
}

func (d *Data) buildFunctionIndex() error {
	r := d.dwarf.Reader()
	var cu *dwarf.Entry
	for {
		entry, err := r.Next()
		if err != nil {
			return fmt.Errorf("dwarfdata: reading subprograms: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag == dwarf.TagCompileUnit {
			cu = entry
			continue
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}
		name, _ := entry.Val(dwarf.AttrName).(string)
		lowpc, lok := entry.Val(dwarf.AttrLowpc).(uint64)
		if name == "" || !lok {
			continue
		}
		var end uint64
		switch hv := entry.Val(dwarf.AttrHighpc).(type) {
		case uint64:
			end = hv
		case int64:
			end = lowpc + uint64(hv)
		}
		decl, _ := entry.Val(dwarf.AttrDeclFile).(int64)
		file := d.fileNameByIndex(cu, decl)
		fb, _ := entry.Val(dwarf.AttrFrameBase).([]byte)

		fn := &Function{
			Name:          name,
			Entry:         lowpc,
			End:           end,
			File:          filepath.Base(file),
			FrameBaseExpr: fb,
			die:           entry,
		}
		fn.PrologueEnd = d.prologueEnd(lowpc, end)
		d.functions = append(d.functions, fn)
	}
	sort.Slice(d.functions, func(i, j int) bool { return d.functions[i].Entry < d.functions[j].Entry })
	return nil
}

// fileNameByIndex resolves a DW_AT_decl_file index against the file
// table of compile unit cu; it returns "" when the index names no file
// in that table.
func (d *Data) fileNameByIndex(cu *dwarf.Entry, idx int64) string {
	lr, err := d.dwarf.LineReader(cu)
	if err != nil || lr == nil {
		return ""
	}
	files := lr.Files()
	if idx >= 0 && int(idx) < len(files) && files[idx] != nil {
		return files[idx].Name
	}
	return ""
}

// prologueEnd returns the DWARF line program's prologue-end marker for
// [lowpc, highpc), or, failing that, the first row strictly past lowpc.
func (d *Data) prologueEnd(lowpc, highpc uint64) uint64 {
	i := sort.Search(len(d.lines), func(i int) bool { return d.lines[i].Address >= lowpc })
	var firstPast uint64
	found := false
	for j := i; j < len(d.lines) && d.lines[j].Address < highpc; j++ {
		if d.lines[j].PrologueEnd {
			return d.lines[j].Address
		}
		if d.lines[j].Address > lowpc && !found {
			firstPast = d.lines[j].Address
			found = true
		}
	}
	if found {
		return firstPast
	}
	return lowpc
}
