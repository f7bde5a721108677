package tracee_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfdbg/cdbg/tracee"
)

// TestSpawnStopsAtEntry exercises the controller against /bin/true, which
// every Linux host in the test fleet has, rather than requiring a
// compiled C fixture with DWARF info.
func TestSpawnStopsAtEntry(t *testing.T) {
	c, err := tracee.New("/bin/true", []string{"true"})
	require.NoError(t, err)
	require.Equal(t, tracee.Stopped, c.State())

	regs, err := c.ReadRegisters()
	require.NoError(t, err)
	require.NotZero(t, regs.PC)

	require.NoError(t, c.Kill())
}

func TestInstallTrapRoundTrips(t *testing.T) {
	c, err := tracee.New("/bin/true", []string{"true"})
	require.NoError(t, err)
	defer c.Kill()

	regs, err := c.ReadRegisters()
	require.NoError(t, err)

	saved, err := c.InstallTrap(regs.PC)
	require.NoError(t, err)

	var buf [1]byte
	require.NoError(t, c.ReadMemory(regs.PC, buf[:]))
	require.Equal(t, byte(0xCC), buf[0])

	require.NoError(t, c.RemoveTrap(regs.PC, saved))
	require.NoError(t, c.ReadMemory(regs.PC, buf[:]))
	require.Equal(t, saved, buf[0])
}
