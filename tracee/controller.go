package tracee

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/dwarfdbg/cdbg/internal/arch"
)

// breakpointInstr is the one-byte software trap for amd64 (0xCC, INT 3).
const breakpointInstr = arch.AMD64.BreakpointInstr

// InstallTrap overwrites the first byte at addr with the trap instruction
// and returns the byte it replaced.
func (c *Controller) InstallTrap(addr uint64) (byte, error) {
	var buf [1]byte
	if err := c.ReadMemory(addr, buf[:]); err != nil {
		return 0, err
	}
	saved := buf[0]
	buf[0] = breakpointInstr
	if err := c.WriteMemory(addr, buf[:]); err != nil {
		return 0, err
	}
	return saved, nil
}

// RemoveTrap restores savedByte at addr, undoing InstallTrap.
func (c *Controller) RemoveTrap(addr uint64, savedByte byte) error {
	buf := [1]byte{savedByte}
	return c.WriteMemory(addr, buf[:])
}

// stepOffOwnBreakpoint implements the "resume-across-own-breakpoint"
// rule: if the current PC sits on an installed trap, the trap is lifted,
// one instruction is single-stepped, and the trap is reinstalled, before
// any requested operation proceeds. bp is nil when the PC is not on a
// breakpoint, in which case this is a no-op.
func (c *Controller) stepOffOwnBreakpoint(bp *Breakpoint) (Event, bool, error) {
	if bp == nil {
		return Event{}, false, nil
	}
	if err := c.RemoveTrap(bp.Addr, bp.SavedByte); err != nil {
		return Event{}, false, err
	}
	ev, err := c.singleStepRaw()
	if err != nil {
		return Event{}, false, err
	}
	if c.state == Exited {
		return ev, true, nil
	}
	if _, err := c.InstallTrap(bp.Addr); err != nil {
		return Event{}, false, err
	}
	return ev, true, nil
}

// SingleStep issues a one-instruction step, honoring the
// resume-across-own-breakpoint rule first when the PC sits on bp (the
// breakpoint installed at the current PC, or nil if none). A stop by the
// step's own SIGTRAP is reported as ReasonSingleStep; an exit or another
// signal keeps the event wait reported.
func (c *Controller) SingleStep(bp *Breakpoint) (Event, error) {
	ev, handled, err := c.stepOffOwnBreakpoint(bp)
	if err != nil {
		return Event{}, err
	}
	if !handled {
		ev, err = c.singleStepRaw()
		if err != nil {
			return Event{}, err
		}
	}
	if c.state == Exited || ev.Signal != int(unix.SIGTRAP) {
		return ev, nil
	}
	ev.Reason = ReasonSingleStep
	return ev, nil
}

// Resume continues execution until the next trap, signal, or exit,
// honoring the resume-across-own-breakpoint rule first when the PC sits
// on bp. On a trap caused by a software breakpoint, the reported PC is
// corrected to point at the breakpoint's site address (decremented by
// the trap's size), restoring the data model's invariant that a
// Breakpoint-reason stop's PC equals the site address exactly.
func (c *Controller) Resume(bp *Breakpoint, siteOf func(pc uint64) (*Breakpoint, bool)) (Event, error) {
	if bp != nil {
		_, handled, err := c.stepOffOwnBreakpoint(bp)
		if err != nil {
			return Event{}, err
		}
		if handled && c.state == Exited {
			return Event{Reason: ReasonSignal, ExitCode: 0}, nil
		}
	}
	ev, err := c.resumeRaw()
	if err != nil {
		return Event{}, err
	}
	if c.state == Exited {
		return ev, nil
	}
	if ev.Signal == int(unix.SIGTRAP) {
		trapPC := ev.PC - uint64(arch.AMD64.BreakpointSize)
		if hit, ok := siteOf(trapPC); ok {
			regs, err := c.ReadRegisters()
			if err != nil {
				return Event{}, err
			}
			regs.PC = trapPC
			if err := c.WriteRegisters(regs); err != nil {
				return Event{}, err
			}
			_ = hit
			return Event{Reason: ReasonBreakpoint, PC: trapPC}, nil
		}
	}
	return ev, nil
}

// Kill terminates the tracee and waits for the exit report.
func (c *Controller) Kill() error {
	if c.proc == nil {
		return nil
	}
	if c.state == Exited {
		return nil
	}
	if err := c.do(func() error { return unix.Kill(c.pid, unix.SIGKILL) }); err != nil {
		return fmt.Errorf("tracee: kill: %w", err)
	}
	_, _ = c.wait()
	return nil
}
