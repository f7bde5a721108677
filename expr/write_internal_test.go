package expr

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfdbg/cdbg/errkind"
)

func TestWriteInt(t *testing.T) {
	mem := fakeMemory{}
	putLE32(mem, 0x10, 0)
	sc := &Scope{Mem: mem}
	v := Value{Type: intType("int", 4), HasAddr: true, Addr: 0x10}

	err := Write(identNodeFor(v), "-5", sc)
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, mem.ReadMemory(0x10, buf))
	require.Equal(t, int64(-5), signedFromBytes(buf))
}

func TestWriteBool(t *testing.T) {
	mem := fakeMemory{0x20: 1}
	sc := &Scope{Mem: mem}
	boolT := &dwarf.BoolType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{Name: "bool", ByteSize: 1}}}
	v := Value{Type: boolT, HasAddr: true, Addr: 0x20}

	require.NoError(t, Write(identNodeFor(v), "false", sc))
	require.Equal(t, byte(0), mem[0x20])

	err := Write(identNodeFor(v), "nah", sc)
	require.ErrorIs(t, err, errkind.InvalidValue)
}

func TestWritePointerNullAndHex(t *testing.T) {
	mem := fakeMemory{}
	sc := &Scope{Mem: mem}
	pt := ptrType(intType("int", 4))
	v := Value{Type: pt, HasAddr: true, Addr: 0x30}

	require.NoError(t, Write(identNodeFor(v), "null", sc))
	buf := make([]byte, 8)
	require.NoError(t, mem.ReadMemory(0x30, buf))
	require.Equal(t, uint64(0), unsignedFromBytes(buf))

	require.NoError(t, Write(identNodeFor(v), "0x4000", sc))
	require.NoError(t, mem.ReadMemory(0x30, buf))
	require.Equal(t, uint64(0x4000), unsignedFromBytes(buf))
}

func TestWriteEnum(t *testing.T) {
	enumT := &dwarf.EnumType{
		CommonType: dwarf.CommonType{Name: "Color", ByteSize: 4},
		EnumName:   "Color",
		Val: []*dwarf.EnumValue{
			{Name: "RED", Val: 0},
			{Name: "GREEN", Val: 1},
		},
	}
	mem := fakeMemory{}
	sc := &Scope{Mem: mem}
	v := Value{Type: enumT, HasAddr: true, Addr: 0x40}

	require.NoError(t, Write(identNodeFor(v), "GREEN", sc))
	buf := make([]byte, 4)
	require.NoError(t, mem.ReadMemory(0x40, buf))
	require.Equal(t, int64(1), signedFromBytes(buf))

	err := Write(identNodeFor(v), "BLUE", sc)
	require.ErrorIs(t, err, errkind.InvalidValue)
}

func TestWriteCStringShorterPadsRemainder(t *testing.T) {
	mem := fakeMemory{}
	// target is a char* variable at 0x50 holding a pointer to a 5-byte
	// "hello\0" buffer at 0x1000.
	putMemLE64(mem, 0x50, 0x1000)
	copy5 := []byte("hello\x00")
	for i, b := range copy5 {
		mem[0x1000+uint64(i)] = b
	}
	sc := &Scope{Mem: mem}
	pt := ptrType(&dwarf.CharType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{Name: "char", ByteSize: 1}}})
	v := Value{Type: pt, HasAddr: true, Addr: 0x50}

	require.NoError(t, Write(identNodeFor(v), `"hi"`, sc))

	want := []byte("hi\x00\x00\x00\x00")
	for i, b := range want {
		require.Equal(t, b, mem[0x1000+uint64(i)], "byte %d", i)
	}
}

func TestWriteCStringTooLongRejected(t *testing.T) {
	mem := fakeMemory{}
	putMemLE64(mem, 0x60, 0x2000)
	for i, b := range []byte("hi\x00") {
		mem[0x2000+uint64(i)] = b
	}
	sc := &Scope{Mem: mem}
	pt := ptrType(&dwarf.CharType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{Name: "char", ByteSize: 1}}})
	v := Value{Type: pt, HasAddr: true, Addr: 0x60}

	err := Write(identNodeFor(v), `"hello"`, sc)
	require.ErrorIs(t, err, errkind.InvalidValue)
}

func TestWriteAddressOfTargetFailsInvalidLocation(t *testing.T) {
	sc := &Scope{Mem: fakeMemory{}}
	v := Value{Type: intType("int", 4), HasAddr: false, Imm: []byte{1, 0, 0, 0, 0, 0, 0, 0}}
	err := Write(identNodeFor(v), "30", sc)
	require.ErrorIs(t, err, errkind.InvalidLocation)
}
