package dwarfdata

import (
	"fmt"
	"sort"
)

// FunctionByName looks up a function by its exact DIE name. C has no
// overloading, so there is never more than one candidate.
func (d *Data) FunctionByName(name string) (*Function, error) {
	for _, fn := range d.functions {
		if fn.Name == name {
			return fn, nil
		}
	}
	return nil, &NotFoundError{What: name}
}

// FunctionContaining returns the function whose [Entry, End) range holds
// addr, used by step-out to find the return address's containing frame.
func (d *Data) FunctionContaining(addr uint64) (*Function, error) {
	i := sort.Search(len(d.functions), func(i int) bool { return d.functions[i].Entry > addr }) - 1
	if i < 0 || i >= len(d.functions) {
		return nil, &NotFoundError{What: fmt.Sprintf("function at %#x", addr)}
	}
	fn := d.functions[i]
	if addr < fn.Entry || addr >= fn.End {
		return nil, &NotFoundError{What: fmt.Sprintf("function at %#x", addr)}
	}
	return fn, nil
}
