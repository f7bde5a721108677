package expr

import (
	"debug/dwarf"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dwarfdbg/cdbg/errkind"
)

// Write evaluates n to an lvalue and stores literal into it, encoding
// the text per the target type the way the set grammar's literal table
// describes (decimal/hex ints, floats, bool, null, enum names, function
// names, double-quoted strings, char literals, and negative numbers).
// "set &x = 30" fails InvalidLocation because &expr never has an
// address of its own.
func Write(n Node, literal string, sc *Scope) error {
	target, err := Eval(n, sc)
	if err != nil {
		return err
	}
	if !target.HasAddr {
		return fmt.Errorf("assignment target has no address: %w", errkind.InvalidLocation)
	}
	typ := StripTypedefsQuals(target.Type)
	literal = strings.TrimSpace(literal)

	switch t := typ.(type) {
	case *dwarf.BoolType:
		buf := make([]byte, 1)
		switch literal {
		case "true":
			buf[0] = 1
		case "false":
			buf[0] = 0
		default:
			return fmt.Errorf("not a bool literal: %w", errkind.InvalidValue)
		}
		return sc.Mem.WriteMemory(target.Addr, buf)

	case *dwarf.CharType, *dwarf.UcharType:
		v, err := parseCharOrIntLiteral(literal)
		if err != nil {
			return err
		}
		return sc.Mem.WriteMemory(target.Addr, encodeSigned(v, typ.Common().ByteSize))

	case *dwarf.IntType:
		v, err := parseCharOrIntLiteral(literal)
		if err != nil {
			return err
		}
		return sc.Mem.WriteMemory(target.Addr, encodeSigned(v, t.ByteSize))

	case *dwarf.UintType, *dwarf.AddrType:
		v, err := parseIntLiteral(literal)
		if err != nil {
			return err
		}
		return sc.Mem.WriteMemory(target.Addr, encodeSigned(v, typ.Common().ByteSize))

	case *dwarf.FloatType:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return fmt.Errorf("not a float literal: %w", errkind.InvalidValue)
		}
		buf := make([]byte, t.ByteSize)
		switch t.ByteSize {
		case 4:
			putUint32(buf, math.Float32bits(float32(f)))
		default:
			putUint64(buf, math.Float64bits(f))
		}
		return sc.Mem.WriteMemory(target.Addr, buf)

	case *dwarf.EnumType:
		return writeEnum(t, literal, target, sc)

	case *dwarf.PtrType:
		return writePointer(t, literal, target, sc)

	default:
		return fmt.Errorf("set: unsupported target type %v: %w", target.Type, errkind.InvalidValue)
	}
}

func parseCharOrIntLiteral(s string) (int64, error) {
	if strings.HasPrefix(s, "'") {
		return parseCharLiteral(s)
	}
	return parseIntLiteral(s)
}

func writeEnum(t *dwarf.EnumType, literal string, target Value, sc *Scope) error {
	for _, ev := range t.Val {
		if ev.Name == literal {
			return sc.Mem.WriteMemory(target.Addr, encodeSigned(ev.Val, t.Common().ByteSize))
		}
	}
	if isIntLiteralText(literal) {
		v, err := parseIntLiteral(literal)
		if err != nil {
			return err
		}
		return sc.Mem.WriteMemory(target.Addr, encodeSigned(v, t.Common().ByteSize))
	}
	return fmt.Errorf("%q is not a member of enum %s: %w", literal, t.EnumName, errkind.InvalidValue)
}

func writePointer(t *dwarf.PtrType, literal string, target Value, sc *Scope) error {
	pointee := StripTypedefsQuals(t.Type)
	if isCharType(pointee) && strings.HasPrefix(literal, "\"") {
		return writeCString(literal, target, sc)
	}

	if literal == "null" {
		return sc.Mem.WriteMemory(target.Addr, encodeSigned(0, 8))
	}
	if isIntLiteralText(literal) {
		v, err := parseIntLiteral(literal)
		if err != nil {
			return err
		}
		return sc.Mem.WriteMemory(target.Addr, encodeSigned(v, 8))
	}
	if fn, err := sc.Data.FunctionByName(literal); err == nil {
		return sc.Mem.WriteMemory(target.Addr, encodeSigned(int64(fn.Entry), 8))
	}
	return fmt.Errorf("not a valid pointer literal: %w", errkind.InvalidValue)
}

// writeCString overwrites the NUL-terminated string currently pointed
// to by target with literal, failing if it doesn't fit in the existing
// buffer (measured as the current string's length) and NUL-padding any
// bytes left over from a shorter replacement, per the supplemented
// write semantics.
func writeCString(literal string, target Value, sc *Scope) error {
	s, err := parseStringLiteral(literal)
	if err != nil {
		return err
	}
	ptrBuf := make([]byte, 8)
	if err := sc.Mem.ReadMemory(target.Addr, ptrBuf); err != nil {
		return fmt.Errorf("set: read pointer: %w", err)
	}
	addr := le64(ptrBuf)
	if addr == 0 {
		return fmt.Errorf("cannot write string through a null pointer: %w", errkind.InvalidLocation)
	}

	oldLen, err := cStringLen(addr, sc)
	if err != nil {
		return err
	}
	if len(s) > oldLen {
		return fmt.Errorf("string %q too long for existing buffer: %w", s, errkind.InvalidValue)
	}

	buf := make([]byte, oldLen+1)
	copy(buf, s)
	return sc.Mem.WriteMemory(addr, buf)
}

func cStringLen(addr uint64, sc *Scope) (int, error) {
	b := make([]byte, 1)
	for i := 0; i < maxString; i++ {
		if err := sc.Mem.ReadMemory(addr+uint64(i), b); err != nil {
			return 0, fmt.Errorf("set: read string: %w", err)
		}
		if b[0] == 0 {
			return i, nil
		}
	}
	return maxString, nil
}

func encodeSigned(v int64, size int64) []byte {
	if size <= 0 {
		size = 8
	}
	buf := make([]byte, size)
	u := uint64(v)
	for i := int64(0); i < size; i++ {
		buf[i] = byte(u)
		u >>= 8
	}
	return buf
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
