package dwarfdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestData() *Data {
	return &Data{
		lines: []lineRow{
			{Address: 0x1000, Base: "main.c", Line: 10, IsStmt: true},
			{Address: 0x1004, Base: "main.c", Line: 11, IsStmt: true},
			{Address: 0x1008, Base: "main.c", Line: 11, IsStmt: false},
			{Address: 0x100c, Base: "main.c", Line: 12, IsStmt: true, PrologueEnd: true},
			{Address: 0x1020, Base: "main.c", Line: 999, EndSeq: true},
			{Address: 0x2000, Base: "helper.c", Line: 5, IsStmt: true},
		},
		functions: []*Function{
			{Name: "main", Entry: 0x1000, End: 0x1020, File: "main.c"},
			{Name: "helper", Entry: 0x2000, End: 0x2100, File: "helper.c"},
		},
	}
}

func TestAddressOfLineExactAndRoundUp(t *testing.T) {
	d := newTestData()

	addr, err := d.AddressOfLine("main.c", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), addr)

	// no statement-bearing row at or after line 13 exists in this fixture
	addr, err = d.AddressOfLine("main.c", 13)
	require.Error(t, err)
	require.Zero(t, addr)

	// line 9 has no row of its own; resolution rounds up to line 10
	addr, err = d.AddressOfLine("main.c", 9)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), addr)
}

func TestAddressOfLineUnknownFile(t *testing.T) {
	d := newTestData()
	_, err := d.AddressOfLine("nope.c", 1)
	require.Error(t, err)
}

func TestLineOf(t *testing.T) {
	d := newTestData()

	file, line, err := d.LineOf(0x1005)
	require.NoError(t, err)
	require.Equal(t, "main.c", file)
	require.Equal(t, 11, line)

	file, line, err = d.LineOf(0x100c)
	require.NoError(t, err)
	require.Equal(t, "main.c", file)
	require.Equal(t, 12, line)

	_, _, err = d.LineOf(0x1021)
	require.Error(t, err)
}

func TestFunctionByNameAndContaining(t *testing.T) {
	d := newTestData()

	fn, err := d.FunctionByName("helper")
	require.NoError(t, err)
	require.Equal(t, uint64(0x2000), fn.Entry)

	_, err = d.FunctionByName("nope")
	require.Error(t, err)

	fn, err = d.FunctionContaining(0x1010)
	require.NoError(t, err)
	require.Equal(t, "main", fn.Name)

	_, err = d.FunctionContaining(0x3000)
	require.Error(t, err)
}

func TestMainFile(t *testing.T) {
	d := newTestData()
	f, err := d.MainFile()
	require.NoError(t, err)
	require.Equal(t, "main.c", f)
}

func TestPrologueEnd(t *testing.T) {
	d := newTestData()
	require.Equal(t, uint64(0x100c), d.prologueEnd(0x1000, 0x1020))
}
