// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package tracee

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// call is a ptrace operation to be run on the dedicated tracing thread.
// All ptrace calls for a given tracee must come from the same OS thread
// that attached to it, so the controller funnels every one of them
// through a single goroutine pinned with runtime.LockOSThread, following
// the teacher's ptraceRun pattern.
type call struct {
	fn func() error
	ec chan error
}

// Controller drives one tracee process through ptrace. All exported
// methods are safe to call from any goroutine; the actual syscalls are
// executed on the dedicated thread started by New.
type Controller struct {
	pid   int
	proc  *os.Process
	state State
	regs  unix.PtraceRegs

	callc chan call
}

// New starts path under ptrace and blocks until the kernel delivers the
// initial post-exec stop, the point at which the controller transitions
// to Stopped at the entry point.
func New(path string, argv []string) (*Controller, error) {
	c := &Controller{
		callc: make(chan call),
	}
	go c.loop()

	type result struct {
		proc *os.Process
		err  error
	}
	resc := make(chan result, 1)
	c.do(func() error {
		proc, err := os.StartProcess(path, argv, &os.ProcAttr{
			Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
			Sys:   &unix.SysProcAttr{Ptrace: true},
		})
		resc <- result{proc, err}
		return err
	})
	r := <-resc
	if r.err != nil {
		return nil, fmt.Errorf("tracee: spawn: %w", r.err)
	}
	c.proc = r.proc
	c.pid = r.proc.Pid

	var status unix.WaitStatus
	if err := c.do(func() error {
		_, err := unix.Wait4(c.pid, &status, 0, nil)
		return err
	}); err != nil {
		return nil, fmt.Errorf("tracee: initial wait: %w", err)
	}
	if !status.Stopped() || status.StopSignal() != unix.SIGTRAP {
		return nil, fmt.Errorf("tracee: unexpected initial status %#x", status)
	}
	if err := c.do(func() error {
		return unix.PtraceSetOptions(c.pid, unix.PTRACE_O_TRACECLONE|unix.PTRACE_O_EXITKILL)
	}); err != nil {
		return nil, fmt.Errorf("tracee: PtraceSetOptions: %w", err)
	}
	if err := c.do(func() error { return unix.PtraceGetRegs(c.pid, &c.regs) }); err != nil {
		return nil, fmt.Errorf("tracee: PtraceGetRegs: %w", err)
	}
	c.state = Stopped
	return c, nil
}

// loop pins the goroutine to one OS thread and executes every ptrace
// call on it, per the teacher's ptraceRun pattern (ogle/program/server/ptrace.go).
func (c *Controller) loop() {
	runtime.LockOSThread()
	for call := range c.callc {
		call.ec <- call.fn()
	}
}

func (c *Controller) do(fn func() error) error {
	ec := make(chan error, 1)
	c.callc <- call{fn, ec}
	return <-ec
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State { return c.state }

// Pid returns the tracee's process id.
func (c *Controller) Pid() int { return c.pid }

// ReadRegisters returns the full register file. Requires Stopped.
func (c *Controller) ReadRegisters() (Regs, error) {
	if c.state != Stopped {
		return Regs{}, ErrNotStopped
	}
	var raw unix.PtraceRegs
	if err := c.do(func() error { return unix.PtraceGetRegs(c.pid, &raw) }); err != nil {
		return Regs{}, fmt.Errorf("tracee: PtraceGetRegs: %w", err)
	}
	c.regs = raw
	return fromPtraceRegs(raw), nil
}

// WriteRegisters installs the given register file. Requires Stopped.
func (c *Controller) WriteRegisters(r Regs) error {
	if c.state != Stopped {
		return ErrNotStopped
	}
	raw := c.regs
	toPtraceRegs(r, &raw)
	if err := c.do(func() error { return unix.PtraceSetRegs(c.pid, &raw) }); err != nil {
		return fmt.Errorf("tracee: PtraceSetRegs: %w", err)
	}
	c.regs = raw
	return nil
}

// ReadMemory reads len(buf) bytes starting at addr. Requires Stopped.
func (c *Controller) ReadMemory(addr uint64, buf []byte) error {
	if c.state != Stopped {
		return ErrNotStopped
	}
	var n int
	var err error
	if doErr := c.do(func() error {
		n, err = unix.PtracePeekText(c.pid, uintptr(addr), buf)
		return err
	}); doErr != nil {
		return fmt.Errorf("tracee: PtracePeekText: %w", doErr)
	}
	if err != nil {
		return fmt.Errorf("tracee: PtracePeekText: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("tracee: PtracePeekText: got %d bytes, want %d", n, len(buf))
	}
	return nil
}

// WriteMemory writes buf to the tracee starting at addr. Requires Stopped.
func (c *Controller) WriteMemory(addr uint64, buf []byte) error {
	if c.state != Stopped {
		return ErrNotStopped
	}
	var n int
	var err error
	if doErr := c.do(func() error {
		n, err = unix.PtracePokeText(c.pid, uintptr(addr), buf)
		return err
	}); doErr != nil {
		return fmt.Errorf("tracee: PtracePokeText: %w", doErr)
	}
	if err != nil {
		return fmt.Errorf("tracee: PtracePokeText: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("tracee: PtracePokeText: wrote %d bytes, want %d", n, len(buf))
	}
	return nil
}

// singleStepRaw issues one PTRACE_SINGLESTEP and waits for the resulting
// stop, without running the resume-across-own-breakpoint dance (that
// lives in Controller.SingleStep, one layer up in controller.go).
func (c *Controller) singleStepRaw() (Event, error) {
	if c.state != Stopped {
		return Event{}, ErrNotStopped
	}
	if err := c.do(func() error { return unix.PtraceSingleStep(c.pid) }); err != nil {
		return Event{}, fmt.Errorf("tracee: PtraceSingleStep: %w", err)
	}
	return c.wait()
}

// resumeRaw issues PTRACE_CONT and waits for the next event, without the
// breakpoint dance.
func (c *Controller) resumeRaw() (Event, error) {
	if c.state != Stopped {
		return Event{}, ErrNotStopped
	}
	if err := c.do(func() error { return unix.PtraceCont(c.pid, 0) }); err != nil {
		return Event{}, fmt.Errorf("tracee: PtraceCont: %w", err)
	}
	return c.wait()
}

// wait blocks for the next wait4 status on this tracee and classifies it.
// Mirrors demo/ptrace-linux-amd64/main.go's status switch, generalized
// beyond the Go-runtime-specific case arms that demo hard-codes.
func (c *Controller) wait() (Event, error) {
	for {
		var status unix.WaitStatus
		var wpid int
		var err error
		if doErr := c.do(func() error {
			wpid, err = unix.Wait4(c.pid, &status, 0, nil)
			return err
		}); doErr != nil {
			return Event{}, fmt.Errorf("tracee: wait4: %w", doErr)
		}
		if err != nil {
			return Event{}, fmt.Errorf("tracee: wait4: %w", err)
		}
		if wpid != c.pid {
			continue
		}

		if status.Exited() {
			c.state = Exited
			return Event{Reason: ReasonSignal, ExitCode: status.ExitStatus()}, nil
		}
		if status.Signaled() {
			c.state = Exited
			return Event{Reason: ReasonSignal, ExitCode: -1}, nil
		}
		if !status.Stopped() {
			continue
		}

		// PTRACE_EVENT_CLONE and friends report via the high bits of
		// status; this debugger traces a single thread (Non-goal:
		// multi-threaded tracees), so such events are acknowledged and
		// ignored, matching the teacher's waitForTrap loop.
		if status>>8 == (unix.WaitStatus(unix.SIGTRAP) | (unix.WaitStatus(unix.PTRACE_EVENT_CLONE) << 8)) {
			if err := c.do(func() error { return unix.PtraceCont(c.pid, 0) }); err != nil {
				return Event{}, fmt.Errorf("tracee: PtraceCont (clone ack): %w", err)
			}
			continue
		}

		sig := status.StopSignal()
		if sig == unix.SIGTRAP {
			var raw unix.PtraceRegs
			if err := c.do(func() error { return unix.PtraceGetRegs(c.pid, &raw) }); err != nil {
				return Event{}, fmt.Errorf("tracee: PtraceGetRegs: %w", err)
			}
			c.regs = raw
			c.state = Stopped
			return Event{Reason: ReasonSignal, PC: uint64(raw.Rip), Signal: int(unix.SIGTRAP)}, nil
		}
		c.state = Stopped
		return Event{Reason: ReasonSignal, Signal: int(sig)}, nil
	}
}

func fromPtraceRegs(r unix.PtraceRegs) Regs {
	return Regs{
		PC:  r.Rip,
		SP:  r.Rsp,
		BP:  r.Rbp,
		Rax: r.Rax,
		Rbx: r.Rbx,
		Rcx: r.Rcx,
		Rdx: r.Rdx,
		Rsi: r.Rsi,
		Rdi: r.Rdi,
		R8:  r.R8,
		R9:  r.R9,
		R10: r.R10,
		R11: r.R11,
		R12: r.R12,
		R13: r.R13,
		R14: r.R14,
		R15: r.R15,
	}
}

func toPtraceRegs(regs Regs, r *unix.PtraceRegs) {
	r.Rip = regs.PC
	r.Rsp = regs.SP
	r.Rbp = regs.BP
	r.Rax = regs.Rax
	r.Rbx = regs.Rbx
	r.Rcx = regs.Rcx
	r.Rdx = regs.Rdx
	r.Rsi = regs.Rsi
	r.Rdi = regs.Rdi
	r.R8 = regs.R8
	r.R9 = regs.R9
	r.R10 = regs.R10
	r.R11 = regs.R11
	r.R12 = regs.R12
	r.R13 = regs.R13
	r.R14 = regs.R14
	r.R15 = regs.R15
}
