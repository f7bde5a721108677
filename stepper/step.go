// Package stepper implements the three stepping operations (step,
// step-in, step-out) on top of the tracee's single-step/resume
// primitives and the line-table index, the way
// other_examples/proctl.go's Next/Step and cucaracha's controller.go
// tell a line boundary and a call apart: by watching the stack pointer
// move past the current frame.
package stepper

import (
	"fmt"

	"github.com/dwarfdbg/cdbg/breakpoint"
	"github.com/dwarfdbg/cdbg/dwarfdata"
	"github.com/dwarfdbg/cdbg/errkind"
	"github.com/dwarfdbg/cdbg/tracee"
)

// maxInstructions backstops every stepping loop against runaway
// single-stepping through code with no further line-table entries
// (e.g. inside libc with no debug info).
const maxInstructions = 200000

// Stepper drives the tracee one source line or one call frame at a
// time.
type Stepper struct {
	ctrl *tracee.Controller
	data *dwarfdata.Data
	bps  *breakpoint.Manager
}

// New binds a Stepper to the tracee controller, debug-info index, and
// breakpoint manager it needs to step around existing breakpoints.
func New(ctrl *tracee.Controller, data *dwarfdata.Data, bps *breakpoint.Manager) *Stepper {
	return &Stepper{ctrl: ctrl, data: data, bps: bps}
}

// Step advances to the next source line without descending into calls
// made from the current line ("step over"): a call that moves the
// stack pointer below the starting frame is run to its return address
// rather than single-stepped through.
func (s *Stepper) Step() (tracee.Event, error) {
	start, err := s.ctrl.ReadRegisters()
	if err != nil {
		return tracee.Event{}, err
	}
	startFile, startLine, _ := s.data.LineOf(start.PC)
	startSP := start.SP

	return s.runUntilLineChange(start.PC, startSP, startFile, startLine, true)
}

// StepIn advances to the next source line, descending into any call
// made from the current line and stopping past its prologue.
func (s *Stepper) StepIn() (tracee.Event, error) {
	start, err := s.ctrl.ReadRegisters()
	if err != nil {
		return tracee.Event{}, err
	}
	startFile, startLine, _ := s.data.LineOf(start.PC)
	return s.runUntilLineChange(start.PC, start.SP, startFile, startLine, false)
}

func (s *Stepper) runUntilLineChange(startPC, startSP uint64, startFile string, startLine int, over bool) (tracee.Event, error) {
	bpAtPC := s.trapAt(startPC)

	for i := 0; i < maxInstructions; i++ {
		ev, err := s.ctrl.SingleStep(bpAtPC)
		if err != nil {
			return ev, err
		}
		bpAtPC = nil
		if ev.Reason != tracee.ReasonSingleStep && ev.Reason != tracee.ReasonBreakpoint {
			return ev, nil
		}

		regs, err := s.ctrl.ReadRegisters()
		if err != nil {
			return ev, err
		}

		if over && regs.SP < startSP {
			retAddr, err := s.returnAddress(regs.SP)
			if err != nil {
				return ev, err
			}
			ev, err = s.runToAddress(retAddr)
			if err != nil {
				return ev, err
			}
			regs, err = s.ctrl.ReadRegisters()
			if err != nil {
				return ev, err
			}
			if regs.PC != retAddr {
				// Landed on an unrelated breakpoint before returning.
				return ev, nil
			}
		}

		file, line, lerr := s.data.LineOf(regs.PC)
		if lerr == nil && (file != startFile || line != startLine) && regs.SP >= startSP {
			if !over {
				if fn, ferr := s.data.FunctionContaining(regs.PC); ferr == nil && regs.PC == fn.Entry {
					ev, err = s.runToAddress(fn.PrologueEnd)
					if err != nil {
						return ev, err
					}
				}
			}
			ev.Reason = tracee.ReasonSingleStep
			ev.PC = regs.PC
			return ev, nil
		}
	}
	return tracee.Event{}, fmt.Errorf("step: no line boundary found: %w", errkind.InvalidCommand)
}

// StepOut runs until the current function returns to its caller,
// failing with errkind.InvalidCommand if there is no caller frame
// (stepping out of main).
func (s *Stepper) StepOut() (tracee.Event, error) {
	regs, err := s.ctrl.ReadRegisters()
	if err != nil {
		return tracee.Event{}, err
	}
	fn, err := s.data.FunctionContaining(regs.PC)
	if err != nil {
		return tracee.Event{}, fmt.Errorf("step-out: %w", errkind.InvalidCommand)
	}
	if fn.Name == "main" {
		return tracee.Event{}, fmt.Errorf("step-out of main: %w", errkind.InvalidCommand)
	}

	retAddr, err := s.returnAddress(regs.BP + 8)
	if err != nil {
		return tracee.Event{}, err
	}
	return s.runToAddress(retAddr)
}

// returnAddress reads the 8-byte return address stored at addr (either
// the top of the stack right after a call, or a frame's saved
// rbp+8 slot).
func (s *Stepper) returnAddress(addr uint64) (uint64, error) {
	buf := make([]byte, 8)
	if err := s.ctrl.ReadMemory(addr, buf); err != nil {
		return 0, fmt.Errorf("step: read return address: %w", err)
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// runToAddress installs an ephemeral trap at target (unless a tracked
// breakpoint already covers it) and resumes until some trap fires.
func (s *Stepper) runToAddress(target uint64) (tracee.Event, error) {
	if _, ok := s.bps.SiteAt(target); ok {
		return s.ctrl.Resume(nil, s.bps.SiteAt)
	}

	saved, err := s.ctrl.InstallTrap(target)
	if err != nil {
		return tracee.Event{}, fmt.Errorf("step: install temporary trap: %w", err)
	}
	siteOf := func(pc uint64) (*tracee.Breakpoint, bool) {
		if pc == target {
			return &tracee.Breakpoint{Addr: target, SavedByte: saved}, true
		}
		return s.bps.SiteAt(pc)
	}
	ev, err := s.ctrl.Resume(nil, siteOf)
	if err != nil {
		s.ctrl.RemoveTrap(target, saved)
		return ev, err
	}
	if s.ctrl.State() != tracee.Exited {
		if rerr := s.ctrl.RemoveTrap(target, saved); rerr != nil {
			return ev, rerr
		}
	}
	return ev, nil
}

// trapAt reports the breakpoint installed at addr, if any, so a
// single-step or resume starting there can perform the
// remove-step-reinstall dance instead of looping on its own trap.
func (s *Stepper) trapAt(addr uint64) *tracee.Breakpoint {
	bp, _ := s.bps.SiteAt(addr)
	return bp
}
