// Package debugger wires components A-E (tracee, dwarfdata, expr,
// breakpoint, stepper) into the single-session API the REPL drives,
// collapsing the teacher's client/server RPC split (ogle/program.go's
// Program interface) into direct in-process calls, since this debugger
// traces a local child process rather than a remote agent.
package debugger

import (
	"fmt"
	"strings"

	"github.com/dwarfdbg/cdbg/breakpoint"
	"github.com/dwarfdbg/cdbg/dwarfdata"
	"github.com/dwarfdbg/cdbg/errkind"
	"github.com/dwarfdbg/cdbg/expr"
	"github.com/dwarfdbg/cdbg/stepper"
	"github.com/dwarfdbg/cdbg/tracee"
)

// Session is a single debugging session over one executable: debug
// info loaded once at construction, a tracee spawned (and respawned)
// by Run, and the breakpoint/stepper/printer state that follows it.
type Session struct {
	path string
	argv []string

	data *dwarfdata.Data
	bps  *breakpoint.Manager

	ctrl    *tracee.Controller
	step    *stepper.Stepper
	printer *expr.Printer
}

// New loads path's debug info and prepares a session. argv is the
// argument vector forwarded to the tracee on Run (argv[0] should
// conventionally be path, matching os.StartProcess's contract).
func New(path string, argv []string) (*Session, error) {
	data, err := dwarfdata.Load(path)
	if err != nil {
		return nil, err
	}
	return &Session{
		path: path,
		argv: argv,
		data: data,
		bps:  breakpoint.NewManager(data, nil),
	}, nil
}

// Break resolves and records a new breakpoint at spec (a bare line
// number, "file:line", or a function name).
func (s *Session) Break(spec string) (*breakpoint.Entry, error) {
	return s.bps.Add(spec)
}

// Breakpoints lists tracked breakpoints in the order they were added.
func (s *Session) Breakpoints() []*breakpoint.Entry {
	return s.bps.List()
}

// RemoveBreakpoint deletes the breakpoint at spec's resolved address,
// the same address-resolution rules Break uses (bare line number,
// "file:line", or function name) — not a numeric id.
func (s *Session) RemoveBreakpoint(spec string) error { return s.bps.RemoveSpec(spec) }

// EnableBreakpoint and DisableBreakpoint toggle a tracked breakpoint,
// addressed by spec rather than id, without forgetting its location.
func (s *Session) EnableBreakpoint(spec string) error  { return s.bps.EnableSpec(spec) }
func (s *Session) DisableBreakpoint(spec string) error { return s.bps.DisableSpec(spec) }

// ClearBreakpoints removes every tracked breakpoint and reports how
// many were removed.
func (s *Session) ClearBreakpoints() (int, error) { return s.bps.Clear() }

// Run spawns the tracee and resumes it to the first breakpoint (or
// completion, if none are set).
func (s *Session) Run() (string, error) {
	if s.ctrl != nil && s.ctrl.State() != tracee.Exited {
		return "", fmt.Errorf("tracee already running: %w", errkind.InvalidCommand)
	}
	argv := s.argv
	if len(argv) == 0 {
		argv = []string{s.path}
	}
	ctrl, err := tracee.New(s.path, argv)
	if err != nil {
		return "", fmt.Errorf("run %s: %w", s.path, errkind.SpawnError)
	}
	s.ctrl = ctrl
	s.printer = expr.NewPrinter(s.data, ctrl)
	s.step = stepper.New(ctrl, s.data, s.bps)
	if err := s.bps.Attach(ctrl); err != nil {
		return "", err
	}
	return s.resumeAndReport(nil)
}

// Continue resumes a stopped tracee until the next breakpoint, signal,
// or exit.
func (s *Session) Continue() (string, error) {
	if err := s.requireStopped(); err != nil {
		return "", err
	}
	regs, err := s.ctrl.ReadRegisters()
	if err != nil {
		return "", err
	}
	bp, _ := s.bps.SiteAt(regs.PC)
	return s.resumeAndReport(bp)
}

// Step, StepIn, and StepOut drive the stepper for one source line or
// one call frame. They report nothing on an ordinary line-boundary
// stop (use `loc`/`stop` to query where execution landed); they still
// report a breakpoint hit reached mid-step, or the tracee exiting or
// taking a signal, since those are state changes a caller stepping in
// a loop needs to notice.
func (s *Session) Step() (string, error) {
	if err := s.requireStopped(); err != nil {
		return "", err
	}
	ev, err := s.step.Step()
	if err != nil {
		return "", err
	}
	return s.reportStepEvent(ev)
}

func (s *Session) StepIn() (string, error) {
	if err := s.requireStopped(); err != nil {
		return "", err
	}
	ev, err := s.step.StepIn()
	if err != nil {
		return "", err
	}
	return s.reportStepEvent(ev)
}

func (s *Session) StepOut() (string, error) {
	if err := s.requireStopped(); err != nil {
		return "", err
	}
	ev, err := s.step.StepOut()
	if err != nil {
		return "", err
	}
	return s.reportStepEvent(ev)
}

// Stop reports whether the tracee is alive and stopped, and if so,
// where — the same "stopped at <file>:<line>" sentence a breakpoint
// hit reports. It fails with errkind.InvalidCommand when there is no
// live, stopped tracee (not yet run, or already exited).
func (s *Session) Stop() (string, error) {
	if err := s.requireStopped(); err != nil {
		return "", err
	}
	regs, err := s.ctrl.ReadRegisters()
	if err != nil {
		return "", err
	}
	file, line, err := s.data.LineOf(regs.PC)
	if err != nil {
		return fmt.Sprintf("stopped at %#x", regs.PC), nil
	}
	return fmt.Sprintf("stopped at %s:%d", file, line), nil
}

// Print evaluates exprText (or, if blank, lists every variable in
// scope) and renders it per the printing rules.
func (s *Session) Print(exprText string) (string, error) {
	if err := s.requireStopped(); err != nil {
		return "", err
	}
	exprText = strings.TrimSpace(exprText)
	if exprText == "" {
		return s.printInScope()
	}
	n, err := expr.Parse(exprText)
	if err != nil {
		return "", fmt.Errorf("%s: %w", exprText, errkind.InvalidPath)
	}
	v, err := expr.Eval(n, s.scope())
	if err != nil {
		return "", err
	}
	return s.printer.Sprint(exprText, v)
}

func (s *Session) printInScope() (string, error) {
	regs, err := s.ctrl.ReadRegisters()
	if err != nil {
		return "", err
	}
	vars := s.data.InScopeVariables(regs.PC)
	var lines []string
	for _, v := range vars {
		val, err := expr.Eval(expr.Ident{Name: v.Name}, s.scope())
		if err != nil {
			continue
		}
		line, err := s.printer.Sprint(v.Name, val)
		if err != nil {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// Set evaluates exprText to an lvalue and stores literal into it.
func (s *Session) Set(exprText, literal string) error {
	if err := s.requireStopped(); err != nil {
		return err
	}
	n, err := expr.Parse(exprText)
	if err != nil {
		return fmt.Errorf("%s: %w", exprText, errkind.InvalidPath)
	}
	return expr.Write(n, literal, s.scope())
}

// Location reports the current stop's file and line, for a REPL prompt
// or a "where" command.
func (s *Session) Location() (file string, line int, err error) {
	if err := s.requireStopped(); err != nil {
		return "", 0, err
	}
	regs, err := s.ctrl.ReadRegisters()
	if err != nil {
		return "", 0, err
	}
	return s.data.LineOf(regs.PC)
}

// Kill terminates the tracee, if one is running.
func (s *Session) Kill() error {
	if s.ctrl == nil {
		return nil
	}
	return s.ctrl.Kill()
}

func (s *Session) requireStopped() error {
	if s.ctrl == nil || s.ctrl.State() != tracee.Stopped {
		return fmt.Errorf("no stopped tracee: %w", errkind.InvalidCommand)
	}
	return nil
}

func (s *Session) scope() *expr.Scope {
	regs, err := s.ctrl.ReadRegisters()
	if err != nil {
		return &expr.Scope{Data: s.data, Mem: s.ctrl}
	}
	fb := regs.BP + 16
	if fn, ferr := s.data.FunctionContaining(regs.PC); ferr == nil {
		if v, verr := dwarfdata.FrameBase(fn.FrameBaseExpr, dwarfdata.Regs{BP: regs.BP}); verr == nil {
			fb = v
		}
	}
	return &expr.Scope{Data: s.data, Mem: s.ctrl, PC: regs.PC, FrameBase: fb}
}

func (s *Session) resumeAndReport(bp *tracee.Breakpoint) (string, error) {
	ev, err := s.ctrl.Resume(bp, s.bps.SiteAt)
	if err != nil {
		return "", err
	}
	return s.reportEvent(ev)
}

// reportStepEvent mirrors reportEvent but swallows the "stopped at
// ..." text for an ordinary line-boundary stop, keeping the current-
// file bookkeeping reportEvent would otherwise perform as a side
// effect. A breakpoint hit reached mid-step, an exit, or a signal
// still produce their usual text.
func (s *Session) reportStepEvent(ev tracee.Event) (string, error) {
	msg, err := s.reportEvent(ev)
	if err != nil {
		return "", err
	}
	if s.ctrl.State() != tracee.Exited && ev.Reason == tracee.ReasonSingleStep {
		return "", nil
	}
	return msg, nil
}

func (s *Session) reportEvent(ev tracee.Event) (string, error) {
	if s.ctrl.State() == tracee.Exited {
		if ev.ExitCode < 0 {
			return "program terminated by signal", nil
		}
		return fmt.Sprintf("program exited with code %d", ev.ExitCode), nil
	}
	switch ev.Reason {
	case tracee.ReasonBreakpoint, tracee.ReasonSingleStep:
		file, line, err := s.data.LineOf(ev.PC)
		if err != nil {
			return fmt.Sprintf("stopped at %#x", ev.PC), nil
		}
		s.bps.SetCurrentFile(file)
		return fmt.Sprintf("stopped at %s:%d", file, line), nil
	case tracee.ReasonSignal:
		return fmt.Sprintf("stopped on signal %d", ev.Signal), nil
	default:
		return "stopped", nil
	}
}
