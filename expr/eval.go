package expr

import (
	"debug/dwarf"
	"fmt"

	"github.com/dwarfdbg/cdbg/dwarfdata"
	"github.com/dwarfdbg/cdbg/errkind"
)

// Memory is the subset of the tracee controller the evaluator needs to
// read and write tracee memory. tracee.Controller satisfies this by
// signature; expr does not import package tracee to avoid a cycle (the
// step engine and debugger session already sit above both).
type Memory interface {
	ReadMemory(addr uint64, buf []byte) error
	WriteMemory(addr uint64, buf []byte) error
}

// Value is the tagged result of evaluating a path expression: a type
// paired with either an addressable location or an immediate (the
// pointer value produced by &expr, which is addressable nowhere —
// "set &x = 30" fails InvalidLocation per the assignment rule).
type Value struct {
	Type    dwarf.Type
	HasAddr bool
	Addr    uint64
	Imm     []byte
}

// Scope carries everything evaluation needs beyond the AST: the
// debug-info index, tracee memory, the current PC (for variable-in-scope
// search), and the current function's frame base (for frame-relative
// locals and parameters).
type Scope struct {
	Data      *dwarfdata.Data
	Mem       Memory
	PC        uint64
	FrameBase uint64
}

// preEvaluated lets a Node carry an already-computed Value instead of
// being resolved against a Scope. Production parses never produce one;
// tests use it to inject a Value as the base of a Field/Index/Deref/Addr
// chain without needing a real dwarfdata-backed variable lookup.
type preEvaluated interface {
	Node
	evaluated() Value
}

// Eval walks n against sc, producing a Value or one of the spec's error
// kinds (errkind.NotFound, errkind.InvalidPath).
func Eval(n Node, sc *Scope) (Value, error) {
	if pe, ok := n.(preEvaluated); ok {
		return pe.evaluated(), nil
	}
	switch n := n.(type) {
	case Ident:
		return evalIdent(n, sc)
	case Field:
		return evalField(n, sc)
	case Index:
		return evalIndex(n, sc)
	case Deref:
		return evalDeref(n, sc)
	case Addr:
		return evalAddr(n, sc)
	default:
		return Value{}, fmt.Errorf("expr: unknown node type %T", n)
	}
}

func evalIdent(n Ident, sc *Scope) (Value, error) {
	v, err := sc.Data.VariableInScope(n.Name, sc.PC)
	if err != nil {
		return Value{}, fmt.Errorf("%s %w", n.Name, errkind.NotFound)
	}
	fb := uint64(0)
	if v.Function != nil {
		fb = sc.FrameBase
	}
	addr, err := dwarfdata.EvalLocation(v.LocationExpr, fb)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", n.Name, errkind.InvalidLocation)
	}
	return Value{Type: v.Type, HasAddr: true, Addr: addr}, nil
}

func evalField(n Field, sc *Scope) (Value, error) {
	x, err := Eval(n.X, sc)
	if err != nil {
		return Value{}, err
	}
	typ := StripTypedefsQuals(x.Type)

	// C's -> is folded into .: a pointer left-hand side is
	// auto-dereferenced one level before field lookup.
	if ptr, ok := typ.(*dwarf.PtrType); ok {
		if !x.HasAddr && x.Imm == nil {
			return Value{}, fmt.Errorf("%s: %w", n.Name, errkind.InvalidPath)
		}
		addr, err := readPointer(x, sc)
		if err != nil {
			return Value{}, err
		}
		x = Value{Type: ptr.Type, HasAddr: true, Addr: addr}
		typ = StripTypedefsQuals(x.Type)
	}

	if !x.HasAddr {
		return Value{}, fmt.Errorf("%s: %w", n.Name, errkind.InvalidPath)
	}

	switch t := typ.(type) {
	case *dwarf.StructType:
		for _, f := range t.Field {
			if f.Name == n.Name {
				return Value{Type: f.Type, HasAddr: true, Addr: x.Addr + uint64(f.ByteOffset)}, nil
			}
		}
		return Value{}, fmt.Errorf("%s: %w", n.Name, errkind.InvalidPath)
	default:
		return Value{}, fmt.Errorf("%s: %w", n.Name, errkind.InvalidPath)
	}
}

func evalIndex(n Index, sc *Scope) (Value, error) {
	x, err := Eval(n.X, sc)
	if err != nil {
		return Value{}, err
	}
	if n.Idx < 0 {
		return Value{}, fmt.Errorf("negative index: %w", errkind.InvalidPath)
	}
	typ := StripTypedefsQuals(x.Type)
	switch t := typ.(type) {
	case *dwarf.ArrayType:
		if !x.HasAddr {
			return Value{}, fmt.Errorf("array index: %w", errkind.InvalidPath)
		}
		if t.Count >= 0 && n.Idx >= t.Count {
			return Value{}, fmt.Errorf("array index out of range: %w", errkind.InvalidPath)
		}
		elemSize := Sizeof(t.Type)
		return Value{Type: t.Type, HasAddr: true, Addr: x.Addr + uint64(n.Idx)*uint64(elemSize)}, nil
	case *dwarf.PtrType:
		ptrVal, err := readPointer(x, sc)
		if err != nil {
			return Value{}, err
		}
		elemSize := Sizeof(t.Type)
		return Value{Type: t.Type, HasAddr: true, Addr: ptrVal + uint64(n.Idx)*uint64(elemSize)}, nil
	default:
		return Value{}, fmt.Errorf("index of non-array/pointer: %w", errkind.InvalidPath)
	}
}

func evalDeref(n Deref, sc *Scope) (Value, error) {
	x, err := Eval(n.X, sc)
	if err != nil {
		return Value{}, err
	}
	typ := StripTypedefsQuals(x.Type)
	ptr, ok := typ.(*dwarf.PtrType)
	if !ok {
		return Value{}, fmt.Errorf("dereference of non-pointer: %w", errkind.InvalidPath)
	}
	if _, isFunc := StripTypedefsQuals(ptr.Type).(*dwarf.FuncType); isFunc {
		return Value{}, fmt.Errorf("dereference of function pointer: %w", errkind.InvalidPath)
	}
	addr, err := readPointer(x, sc)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: ptr.Type, HasAddr: true, Addr: addr}, nil
}

func evalAddr(n Addr, sc *Scope) (Value, error) {
	x, err := Eval(n.X, sc)
	if err != nil {
		return Value{}, err
	}
	if !x.HasAddr {
		return Value{}, fmt.Errorf("address-of non-addressable value: %w", errkind.InvalidLocation)
	}
	buf := make([]byte, 8)
	putLE64(buf, x.Addr)
	ptrType := &dwarf.PtrType{
		CommonType: dwarf.CommonType{ByteSize: 8},
		Type:       x.Type,
	}
	return Value{Type: ptrType, HasAddr: false, Imm: buf}, nil
}

// readPointer reads the pointer-sized value out of x, whether it is
// backed by tracee memory (HasAddr) or is an immediate (the result of a
// prior &expr).
func readPointer(x Value, sc *Scope) (uint64, error) {
	if x.HasAddr {
		buf := make([]byte, 8)
		if err := sc.Mem.ReadMemory(x.Addr, buf); err != nil {
			return 0, fmt.Errorf("expr: read pointer: %w", err)
		}
		return le64(buf), nil
	}
	if len(x.Imm) >= 8 {
		return le64(x.Imm), nil
	}
	return 0, fmt.Errorf("expr: value has no address: %w", errkind.InvalidPath)
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
