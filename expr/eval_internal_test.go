package expr

import (
	"debug/dwarf"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfdbg/cdbg/errkind"
)

// fakeMemory is a flat byte-addressed memory used to exercise the
// evaluator and printer without a real tracee, the way
// ogle/program/server's own tests stub out process memory.
type fakeMemory map[uint64]byte

func (m fakeMemory) ReadMemory(addr uint64, buf []byte) error {
	for i := range buf {
		b, ok := m[addr+uint64(i)]
		if !ok {
			return errors.New("fakeMemory: unmapped address")
		}
		buf[i] = b
	}
	return nil
}

func (m fakeMemory) WriteMemory(addr uint64, buf []byte) error {
	for i, b := range buf {
		m[addr+uint64(i)] = b
	}
	return nil
}

func intType(name string, size int64) dwarf.Type {
	return &dwarf.IntType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{Name: name, ByteSize: size}}}
}

func structType(name string, fields ...*dwarf.StructField) *dwarf.StructType {
	return &dwarf.StructType{
		CommonType: dwarf.CommonType{Name: name},
		StructName: name,
		Kind:       "struct",
		Field:      fields,
	}
}

func ptrType(to dwarf.Type) *dwarf.PtrType {
	return &dwarf.PtrType{CommonType: dwarf.CommonType{ByteSize: 8}, Type: to}
}

func TestEvalFieldOnStruct(t *testing.T) {
	valT := intType("int", 4)
	st := structType("Point",
		&dwarf.StructField{Name: "x", Type: valT, ByteOffset: 0},
		&dwarf.StructField{Name: "y", Type: valT, ByteOffset: 4},
	)
	mem := fakeMemory{}
	putLE32(mem, 0x1000, 10)
	putLE32(mem, 0x1004, 20)

	base := Value{Type: st, HasAddr: true, Addr: 0x1000}
	sc := &Scope{Mem: mem}

	v, err := evalField(Field{X: identValue(base), Name: "y"}, sc)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1004), v.Addr)
}

func TestEvalFieldAutoDereferencesPointer(t *testing.T) {
	valT := intType("int", 4)
	st := structType("Node", &dwarf.StructField{Name: "value", Type: valT, ByteOffset: 0})
	pt := ptrType(st)

	mem := fakeMemory{}
	putMemLE64(mem, 0x2000, 0x3000) // pointer value at 0x2000 -> points to 0x3000
	putLE32(mem, 0x3000, 42)

	base := Value{Type: pt, HasAddr: true, Addr: 0x2000}
	sc := &Scope{Mem: mem}

	v, err := evalField(Field{X: identValue(base), Name: "value"}, sc)
	require.NoError(t, err)
	require.Equal(t, uint64(0x3000), v.Addr)
}

func TestEvalFieldUnknownNameIsInvalidPath(t *testing.T) {
	st := structType("Point", &dwarf.StructField{Name: "x", Type: intType("int", 4)})
	sc := &Scope{Mem: fakeMemory{}}
	_, err := evalField(Field{X: identValue(Value{Type: st, HasAddr: true, Addr: 0}), Name: "z"}, sc)
	require.ErrorIs(t, err, errkind.InvalidPath)
}

func TestEvalIndexArrayBounds(t *testing.T) {
	elem := intType("int", 4)
	arr := &dwarf.ArrayType{CommonType: dwarf.CommonType{ByteSize: 16}, Type: elem, Count: 4}
	mem := fakeMemory{}
	for i := uint64(0); i < 4; i++ {
		putLE32(mem, 0x4000+i*4, uint32(i*10))
	}
	sc := &Scope{Mem: mem}
	base := Value{Type: arr, HasAddr: true, Addr: 0x4000}

	v, err := evalIndex(Index{X: identValue(base), Idx: 2}, sc)
	require.NoError(t, err)
	require.Equal(t, uint64(0x4008), v.Addr)

	_, err = evalIndex(Index{X: identValue(base), Idx: 4}, sc)
	require.ErrorIs(t, err, errkind.InvalidPath)

	_, err = evalIndex(Index{X: identValue(base), Idx: -1}, sc)
	require.ErrorIs(t, err, errkind.InvalidPath)
}

func TestEvalDerefRejectsNonPointer(t *testing.T) {
	sc := &Scope{Mem: fakeMemory{}}
	_, err := evalDeref(Deref{X: identValue(Value{Type: intType("int", 4), HasAddr: true})}, sc)
	require.ErrorIs(t, err, errkind.InvalidPath)
}

func TestEvalAddrThenWriteFailsInvalidLocation(t *testing.T) {
	sc := &Scope{Mem: fakeMemory{}}
	v := Value{Type: intType("int", 4), HasAddr: true, Addr: 0x10}
	addrVal, err := evalAddr(Addr{X: identValue(v)}, sc)
	require.NoError(t, err)
	require.False(t, addrVal.HasAddr)

	err = Write(identNodeFor(addrVal), "30", sc)
	require.ErrorIs(t, err, errkind.InvalidLocation)
}

// literalNode lets a test inject a pre-built Value as if it were the
// result of evaluating an identifier, via the preEvaluated hook.
type literalNode struct{ v Value }

func (literalNode) node()              {}
func (n literalNode) evaluated() Value { return n.v }

func identValue(v Value) Node   { return literalNode{v} }
func identNodeFor(v Value) Node { return literalNode{v} }

func putLE32(m fakeMemory, addr uint64, v uint32) {
	for i := 0; i < 4; i++ {
		m[addr+uint64(i)] = byte(v)
		v >>= 8
	}
}

func putMemLE64(m fakeMemory, addr uint64, v uint64) {
	for i := 0; i < 8; i++ {
		m[addr+uint64(i)] = byte(v)
		v >>= 8
	}
}
