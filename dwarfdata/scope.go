package dwarfdata

import "debug/dwarf"

// Variable is the index's view of a DWARF variable or parameter: its
// type and the raw location expression needed to compute its address
// (frame-relative for locals/params, absolute for globals).
type Variable struct {
	Name         string
	Type         dwarf.Type
	LocationExpr []byte
	Function     *Function // nil for globals
}

// VariableInScope searches lexical blocks innermost-first within the
// function containing pc, then that function's parameters, then file
// globals. Shadowing follows innermost-wins, matching a normal C scope
// search.
func (d *Data) VariableInScope(name string, pc uint64) (*Variable, error) {
	fn, err := d.FunctionContaining(pc)
	if err == nil {
		if v := d.searchFunction(fn, name, pc); v != nil {
			return v, nil
		}
	}
	if v := d.searchGlobals(name); v != nil {
		return v, nil
	}
	return nil, &NotFoundError{What: name}
}

// InScopeVariables returns every variable visible at pc: locals and
// parameters of the enclosing function (innermost blocks first), then
// globals — the set "p" with no argument prints.
func (d *Data) InScopeVariables(pc uint64) []*Variable {
	var out []*Variable
	seen := map[string]bool{}
	if fn, err := d.FunctionContaining(pc); err == nil {
		for _, v := range d.functionVariables(fn, pc) {
			if !seen[v.Name] {
				seen[v.Name] = true
				out = append(out, v)
			}
		}
	}
	for _, v := range d.globalVariables() {
		if !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v)
		}
	}
	return out
}

// searchFunction walks entry's DIE subtree for a matching parameter or
// variable, preferring the innermost lexical block that contains pc.
func (d *Data) searchFunction(fn *Function, name string, pc uint64) *Variable {
	var best *Variable
	var bestDepth = -1
	d.walkFunctionEntries(fn, pc, func(entry *dwarf.Entry, depth int) {
		if entry.Tag != dwarf.TagVariable && entry.Tag != dwarf.TagFormalParameter {
			return
		}
		n, _ := entry.Val(dwarf.AttrName).(string)
		if n != name {
			return
		}
		if depth > bestDepth {
			bestDepth = depth
			best = variableFromEntry(d, entry, n, fn)
		}
	})
	return best
}

func (d *Data) functionVariables(fn *Function, pc uint64) []*Variable {
	var out []*Variable
	d.walkFunctionEntries(fn, pc, func(entry *dwarf.Entry, depth int) {
		if entry.Tag != dwarf.TagVariable && entry.Tag != dwarf.TagFormalParameter {
			return
		}
		n, _ := entry.Val(dwarf.AttrName).(string)
		if n == "" {
			return
		}
		out = append(out, variableFromEntry(d, entry, n, fn))
	})
	return out
}

// walkFunctionEntries visits fn's direct descendants — parameters,
// locals, and the contents of lexical blocks that contain pc — calling
// visit with a depth equal to the lexical-block nesting at that point,
// so callers can prefer the deepest (innermost) match. debug/dwarf's
// Reader signals the end of a sibling list with a synthetic zero-Tag
// Entry (see debug/dwarf's buf.entry), which this walk uses to pop the
// depth counter.
func (d *Data) walkFunctionEntries(fn *Function, pc uint64, visit func(*dwarf.Entry, int)) {
	r := d.dwarf.Reader()
	r.Seek(fn.die.Offset)
	root, err := r.Next()
	if err != nil || root == nil || !root.Children {
		return
	}
	depth := 0
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			return
		}
		if entry.Tag == 0 {
			if depth == 0 {
				return // end of fn's own children: done
			}
			depth--
			continue
		}
		if entry.Tag == dwarf.TagLexDwarfBlock {
			if !rangeContains(entry, pc) {
				if entry.Children {
					r.SkipChildren()
				}
				continue
			}
			if entry.Children {
				depth++
			}
			continue
		}
		visit(entry, depth)
		if entry.Children {
			r.SkipChildren()
		}
	}
}

// rangeContains reports whether entry's DW_AT_low_pc/high_pc range
// contains pc. Lexical blocks without range attributes are assumed to
// apply unconditionally.
func rangeContains(entry *dwarf.Entry, pc uint64) bool {
	lowpc, lok := entry.Val(dwarf.AttrLowpc).(uint64)
	if !lok {
		return true
	}
	var highpc uint64
	switch hv := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		highpc = hv
	case int64:
		highpc = lowpc + uint64(hv)
	default:
		return true
	}
	return pc >= lowpc && pc < highpc
}

func (d *Data) searchGlobals(name string) *Variable {
	for _, v := range d.globalVariables() {
		if v.Name == name {
			return v
		}
	}
	return nil
}

func (d *Data) globalVariables() []*Variable {
	var out []*Variable
	r := d.dwarf.Reader()
	depth := 0
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag == dwarf.TagCompileUnit {
			depth = 1
			continue
		}
		if depth != 1 {
			r.SkipChildren()
			continue
		}
		if entry.Tag != dwarf.TagVariable {
			if entry.Children {
				r.SkipChildren()
			}
			continue
		}
		n, _ := entry.Val(dwarf.AttrName).(string)
		if n == "" {
			continue
		}
		out = append(out, variableFromEntry(d, entry, n, nil))
	}
	return out
}

func variableFromEntry(d *Data, entry *dwarf.Entry, name string, fn *Function) *Variable {
	typeOff, _ := entry.Val(dwarf.AttrType).(dwarf.Offset)
	typ, _ := d.dwarf.Type(typeOff)
	loc, _ := entry.Val(dwarf.AttrLocation).([]byte)
	return &Variable{Name: name, Type: typ, LocationExpr: loc, Function: fn}
}
