package dwarfdata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfdbg/cdbg/dwarfdata"
)

func TestFrameBaseCallFrameCFA(t *testing.T) {
	addr, err := dwarfdata.FrameBase([]byte{0x9c}, dwarfdata.Regs{BP: 0x7000})
	require.NoError(t, err)
	require.Equal(t, uint64(0x7010), addr)
}

func TestFrameBaseEmptyExprDefaultsToCFA(t *testing.T) {
	addr, err := dwarfdata.FrameBase(nil, dwarfdata.Regs{BP: 0x7000})
	require.NoError(t, err)
	require.Equal(t, uint64(0x7010), addr)
}

func TestFrameBaseBreg6(t *testing.T) {
	// DW_OP_breg6, SLEB128(+16)
	addr, err := dwarfdata.FrameBase([]byte{0x76, 0x10}, dwarfdata.Regs{BP: 0x7000})
	require.NoError(t, err)
	require.Equal(t, uint64(0x7010), addr)
}

func TestEvalLocationFbreg(t *testing.T) {
	// DW_OP_fbreg, SLEB128(-8)
	addr, err := dwarfdata.EvalLocation([]byte{0x91, 0x78}, 0x7010)
	require.NoError(t, err)
	require.Equal(t, uint64(0x7008), addr)
}

func TestEvalLocationAddr(t *testing.T) {
	expr := []byte{0x03, 0x00, 0x10, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00}
	addr, err := dwarfdata.EvalLocation(expr, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0x00401000), addr)
}

func TestEvalLocationEmptyIsError(t *testing.T) {
	_, err := dwarfdata.EvalLocation(nil, 0)
	require.Error(t, err)
}

func TestEvalLocationUnsupportedOpcode(t *testing.T) {
	_, err := dwarfdata.EvalLocation([]byte{0xff}, 0)
	require.Error(t, err)
}
