package arch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfdbg/cdbg/internal/arch"
)

func TestUintRoundTrips(t *testing.T) {
	a := arch.AMD64
	buf := make([]byte, 8)
	a.PutUint(buf, 8, 0x1122334455667788)
	require.Equal(t, uint64(0x1122334455667788), a.Uint(buf, 8))

	buf4 := make([]byte, 4)
	a.PutUint(buf4, 4, 0xdeadbeef)
	require.Equal(t, uint64(0xdeadbeef), a.Uint(buf4, 4))
}

func TestIntSignExtends(t *testing.T) {
	a := arch.AMD64
	buf := []byte{0xff}
	require.Equal(t, int64(-1), a.Int(buf, 1))

	buf4 := make([]byte, 4)
	a.PutUint(buf4, 4, uint64(int32(-2)))
	require.Equal(t, int64(-2), a.Int(buf4, 4))
}

func TestUintptrUsesPointerSize(t *testing.T) {
	a := arch.AMD64
	buf := make([]byte, 8)
	a.PutUint(buf, 8, 0x4000)
	require.Equal(t, uint64(0x4000), a.Uintptr(buf))
}
