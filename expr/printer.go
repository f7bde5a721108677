package expr

import (
	"bytes"
	"debug/dwarf"
	"fmt"
	"math"
	"strconv"

	"github.com/dwarfdbg/cdbg/dwarfdata"
	"github.com/dwarfdbg/cdbg/errkind"
)

// maxArrayElements caps how many elements an array prints before eliding
// the rest with "...", mirroring ogle/program/server/print.go's own cap
// against runaway output for large/corrupt arrays.
const maxArrayElements = 100

// maxString caps how many bytes of a NUL-terminated string are read
// before giving up, guarding against a corrupt or unterminated string in
// tracee memory.
const maxString = 4096

// maxPrintDepth backstops the struct-pointer auto-follow recursion
// against cycles that the (type, address) visited-set doesn't catch
// (two distinct nodes whose traversals happen to alias through
// different paths) — see SPEC_FULL.md §5.
const maxPrintDepth = 64

type visitKey struct {
	typ  *dwarf.StructType
	addr uint64
}

// Printer formats Values the way the spec's §4.C printing rules
// describe, reading tracee memory as needed (struct fields, array
// elements, NUL-terminated strings). Modeled on
// ogle/program/server/print.go's Printer: a cycle guard keyed on
// (type, address) plus a depth backstop, and a sticky low-level Memory
// dependency rather than ambient global state.
type Printer struct {
	Data    *dwarfdata.Data
	Mem     Memory
	visited map[visitKey]bool
}

// NewPrinter constructs a Printer bound to a debug-info index and a
// tracee memory reader.
func NewPrinter(d *dwarfdata.Data, mem Memory) *Printer {
	return &Printer{Data: d, Mem: mem}
}

// Sprint renders "<type> <name> = <value>" for v, the §6 format the test
// suite keys output parsing on.
func (p *Printer) Sprint(name string, v Value) (string, error) {
	p.visited = make(map[visitKey]bool)
	valStr, err := p.sprintValue(v.Type, v, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s = %s", TypeName(v.Type), name, valStr), nil
}

// TypeName renders t the way a C declaration would name it, preserving
// the qualifier prefixes debug/dwarf decodes (const, volatile, restrict;
// an _Atomic-qualified type is decoded as dwarf.UnsupportedType, so no
// _Atomic prefix is ever produced) and attaching pointer stars to the base name without an inner space
// ("const char*", "Node*"), so the general "<type> <name>" join produces
// a single space before the variable name.
func TypeName(t dwarf.Type) string {
	switch u := t.(type) {
	case *dwarf.QualType:
		return u.Qual + " " + TypeName(u.Type)
	case *dwarf.PtrType:
		return TypeName(u.Type) + "*"
	case *dwarf.TypedefType:
		return u.Name
	case *dwarf.ArrayType:
		n := "[]"
		if u.Count >= 0 {
			n = "[" + strconv.FormatInt(u.Count, 10) + "]"
		}
		return TypeName(u.Type) + n
	case *dwarf.StructType:
		if u.StructName != "" {
			return u.Kind + " " + u.StructName
		}
		return u.Kind
	case *dwarf.EnumType:
		if u.EnumName != "" {
			return "enum " + u.EnumName
		}
		return "enum"
	case *dwarf.VoidType:
		return "void"
	case nil:
		return "?"
	default:
		return t.String()
	}
}

func (p *Printer) sprintValue(t dwarf.Type, v Value, depth int) (string, error) {
	if depth > maxPrintDepth {
		return "...", nil
	}
	typ := StripTypedefsQuals(t)
	switch u := typ.(type) {
	case *dwarf.BoolType:
		buf, err := p.readValue(v, 1)
		if err != nil {
			return "", err
		}
		if buf[0] != 0 {
			return "true", nil
		}
		return "false", nil

	case *dwarf.CharType:
		buf, err := p.readValue(v, u.ByteSize)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(signedFromBytes(buf), 10), nil

	case *dwarf.UcharType:
		buf, err := p.readValue(v, u.ByteSize)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(unsignedFromBytes(buf), 10), nil

	case *dwarf.IntType:
		buf, err := p.readValue(v, u.ByteSize)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(signedFromBytes(buf), 10), nil

	case *dwarf.UintType, *dwarf.AddrType:
		size := typ.Common().ByteSize
		buf, err := p.readValue(v, size)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(unsignedFromBytes(buf), 10), nil

	case *dwarf.FloatType:
		buf, err := p.readValue(v, u.ByteSize)
		if err != nil {
			return "", err
		}
		var f float64
		switch u.ByteSize {
		case 4:
			f = float64(math.Float32frombits(uint32(unsignedFromBytes(buf))))
		default:
			f = math.Float64frombits(unsignedFromBytes(buf))
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil

	case *dwarf.EnumType:
		buf, err := p.readValue(v, typ.Common().ByteSize)
		if err != nil {
			return "", err
		}
		val := signedFromBytes(buf)
		for _, ev := range u.Val {
			if ev.Val == val {
				return ev.Name, nil
			}
		}
		return strconv.FormatInt(val, 10), nil

	case *dwarf.PtrType:
		return p.sprintPointer(u, v, depth)

	case *dwarf.StructType:
		return p.sprintStruct(u, v, depth)

	case *dwarf.ArrayType:
		return p.sprintArray(u, v, depth)

	case *dwarf.FuncType:
		addr, err := p.pointerValue(v)
		if err != nil {
			return "", err
		}
		if fn, err := p.Data.FunctionContaining(addr); err == nil {
			return fn.Name, nil
		}
		return fmt.Sprintf("@%#x", addr), nil

	case *dwarf.VoidType:
		return "void", nil

	default:
		return "", fmt.Errorf("print: unsupported type %v: %w", t, errkind.InvalidPath)
	}
}

func (p *Printer) sprintPointer(u *dwarf.PtrType, v Value, depth int) (string, error) {
	pointee := StripTypedefsQuals(u.Type)

	if fn, ok := pointee.(*dwarf.FuncType); ok {
		_ = fn
		addr, err := p.pointerValue(v)
		if err != nil {
			return "", err
		}
		if addr == 0 {
			return "null", nil
		}
		if target, err := p.Data.FunctionContaining(addr); err == nil {
			return target.Name, nil
		}
		return fmt.Sprintf("%#x", addr), nil
	}

	addr, err := p.pointerValue(v)
	if err != nil {
		return "", err
	}
	if addr == 0 {
		return "null", nil
	}

	if isCharType(pointee) {
		s, err := p.readCString(addr)
		if err != nil {
			return "", err
		}
		return strconv.Quote(s), nil
	}
	if _, isAgg := pointee.(*dwarf.StructType); isAgg {
		inner, err := p.sprintValue(u.Type, Value{Type: u.Type, HasAddr: true, Addr: addr}, depth+1)
		if err != nil {
			return "", err
		}
		return "&" + inner, nil
	}
	return fmt.Sprintf("0x%x", addr), nil
}

func (p *Printer) pointerValue(v Value) (uint64, error) {
	if v.HasAddr {
		buf := make([]byte, 8)
		if err := p.Mem.ReadMemory(v.Addr, buf); err != nil {
			return 0, fmt.Errorf("print: read pointer: %w", err)
		}
		return unsignedFromBytes(buf), nil
	}
	if len(v.Imm) >= 8 {
		return unsignedFromBytes(v.Imm[:8]), nil
	}
	return 0, fmt.Errorf("print: pointer value has no address: %w", errkind.InvalidPath)
}

func (p *Printer) readCString(addr uint64) (string, error) {
	var out bytes.Buffer
	buf := make([]byte, 1)
	for i := 0; i < maxString; i++ {
		if err := p.Mem.ReadMemory(addr+uint64(i), buf); err != nil {
			return "", fmt.Errorf("print: read string: %w", err)
		}
		if buf[0] == 0 {
			return out.String(), nil
		}
		out.WriteByte(buf[0])
	}
	return out.String(), nil
}

func (p *Printer) sprintStruct(u *dwarf.StructType, v Value, depth int) (string, error) {
	if u.Kind == "union" {
		return "", fmt.Errorf("print union as a whole: %w", errkind.InvalidPath)
	}
	if !v.HasAddr {
		return "", fmt.Errorf("print: struct value has no address: %w", errkind.InvalidPath)
	}
	key := visitKey{typ: u, addr: v.Addr}
	if p.visited[key] {
		return "{...}", nil
	}
	p.visited[key] = true
	defer delete(p.visited, key)

	var out bytes.Buffer
	out.WriteString("{ ")
	for i, f := range u.Field {
		if i > 0 {
			out.WriteString(", ")
		}
		fv := Value{Type: f.Type, HasAddr: true, Addr: v.Addr + uint64(f.ByteOffset)}
		fieldStr, err := p.sprintStructField(f, fv, depth+1)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&out, "%s = %s", f.Name, fieldStr)
	}
	out.WriteString(" }")
	return out.String(), nil
}

// sprintStructField renders a struct field's value. Pointer fields go
// through the same null/string/aggregate-follow rules as any other
// pointer print (sprintPointer), so "&{ ... }" auto-follow isn't a
// field-only special case.
func (p *Printer) sprintStructField(f *dwarf.StructField, v Value, depth int) (string, error) {
	return p.sprintValue(f.Type, v, depth)
}

func (p *Printer) sprintArray(u *dwarf.ArrayType, v Value, depth int) (string, error) {
	if !v.HasAddr {
		return "", fmt.Errorf("print: array value has no address: %w", errkind.InvalidPath)
	}
	flexible := u.Count < 0
	if flexible {
		return "[...]", nil
	}
	n := u.Count
	if n == 0 {
		return "[]", nil
	}
	elemSize := Sizeof(u.Type)
	shown := n
	truncated := false
	if shown > maxArrayElements {
		shown = maxArrayElements
		truncated = true
	}
	var out bytes.Buffer
	out.WriteByte('[')
	for i := int64(0); i < shown; i++ {
		if i > 0 {
			out.WriteString(", ")
		}
		ev := Value{Type: u.Type, HasAddr: true, Addr: v.Addr + uint64(i)*uint64(elemSize)}
		s, err := p.sprintValue(u.Type, ev, depth+1)
		if err != nil {
			return "", err
		}
		out.WriteString(s)
	}
	if truncated {
		out.WriteString(", ...")
	}
	out.WriteByte(']')
	return out.String(), nil
}

func (p *Printer) readValue(v Value, size int64) ([]byte, error) {
	if size <= 0 {
		size = 8
	}
	if v.HasAddr {
		buf := make([]byte, size)
		if err := p.Mem.ReadMemory(v.Addr, buf); err != nil {
			return nil, fmt.Errorf("print: read: %w", err)
		}
		return buf, nil
	}
	if int64(len(v.Imm)) >= size {
		return v.Imm[:size], nil
	}
	return nil, fmt.Errorf("print: value has no address: %w", errkind.InvalidPath)
}

func isCharType(t dwarf.Type) bool {
	switch t.(type) {
	case *dwarf.CharType, *dwarf.UcharType:
		return true
	}
	return false
}

func unsignedFromBytes(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func signedFromBytes(b []byte) int64 {
	u := unsignedFromBytes(b)
	switch len(b) {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}
