// Package repl implements the interactive command loop: a readline
// prompt, a small command table, and formatting for the debugger
// session's replies, the way the teacher's own CLI tools (and
// chzyer/readline's own examples) structure a REPL around one
// Instance and a line-dispatch switch.
package repl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dwarfdbg/cdbg/breakpoint"
	"github.com/dwarfdbg/cdbg/debugger"
	"github.com/dwarfdbg/cdbg/errkind"
)

// REPL drives one interactive session against a debugger.Session.
type REPL struct {
	sess *debugger.Session
	rl   *readline.Instance
}

// New builds a REPL bound to sess, with history kept in the user's
// temp directory for the lifetime of the process.
func New(sess *debugger.Session) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "(cdbg) ",
		HistoryFile:     os.TempDir() + "/cdbg_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("repl: %w", err)
	}
	return &REPL{sess: sess, rl: rl}, nil
}

// Close releases the underlying terminal.
func (r *REPL) Close() error { return r.rl.Close() }

// Run reads commands until EOF or a quit command, printing each
// command's reply or error to stdout/stderr.
func (r *REPL) Run() error {
	for {
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			r.sess.Kill()
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "q" || line == "exit" {
			r.sess.Kill()
			return nil
		}
		out, err := r.Dispatch(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
}

// Dispatch executes one command line and returns its reply text.
func (r *REPL) Dispatch(line string) (string, error) {
	fields := strings.SplitN(line, " ", 2)
	cmd := fields[0]
	rest := ""
	if len(fields) > 1 {
		rest = strings.TrimSpace(fields[1])
	}

	switch cmd {
	case "run", "r":
		return r.sess.Run()
	case "continue", "c":
		return r.sess.Continue()
	case "step", "s":
		return r.sess.Step()
	case "step-in", "si":
		return r.sess.StepIn()
	case "step-out", "so":
		return r.sess.StepOut()
	case "break", "b":
		return r.addBreakpoint(rest)
	case "rm":
		return r.removeBreakpoint(rest)
	case "enable":
		return r.toggleBreakpoint(rest, true)
	case "disable":
		return r.toggleBreakpoint(rest, false)
	case "clear":
		n, err := r.sess.ClearBreakpoints()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d breakpoints removed", n), nil
	case "list", "l":
		return r.listBreakpoints(), nil
	case "print", "p":
		return r.sess.Print(rest)
	case "set":
		return "", r.set(rest)
	case "stop":
		return r.sess.Stop()
	case "loc":
		return r.location()
	default:
		return "", fmt.Errorf("%s: %w", cmd, errkind.InvalidCommand)
	}
}

func (r *REPL) addBreakpoint(spec string) (string, error) {
	e, err := r.sess.Break(spec)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("breakpoint set at %s:%d", e.File, e.Line), nil
}

func (r *REPL) removeBreakpoint(spec string) (string, error) {
	if err := r.sess.RemoveBreakpoint(spec); err != nil {
		return "", err
	}
	return fmt.Sprintf("breakpoint removed: %s", spec), nil
}

func (r *REPL) toggleBreakpoint(spec string, enable bool) (string, error) {
	var err error
	if enable {
		err = r.sess.EnableBreakpoint(spec)
	} else {
		err = r.sess.DisableBreakpoint(spec)
	}
	if err != nil {
		return "", err
	}
	if enable {
		return fmt.Sprintf("breakpoint enabled: %s", spec), nil
	}
	return fmt.Sprintf("breakpoint disabled: %s", spec), nil
}

func (r *REPL) location() (string, error) {
	file, line, err := r.sess.Location()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", breakpoint.ShortFile(file), line), nil
}

func (r *REPL) listBreakpoints() string {
	entries := r.sess.Breakpoints()
	if len(entries) == 0 {
		return "no breakpoints"
	}
	var lines []string
	for _, e := range entries {
		state := "enabled"
		if !e.Enabled {
			state = "disabled"
		}
		lines = append(lines, fmt.Sprintf("%d: %s:%d (%s)", e.ID, breakpoint.ShortFile(e.File), e.Line, state))
	}
	return strings.Join(lines, "\n")
}

// set accepts both "set <path> = <literal>" and "set <path> <literal>"
// (the "=" is punctuation, not required grammar) per §4.C.
func (r *REPL) set(rest string) error {
	target, literal, ok := splitSetArgs(rest)
	if !ok {
		return fmt.Errorf("usage: set <expr> [=] <literal>: %w", errkind.InvalidCommand)
	}
	return r.sess.Set(target, literal)
}

func splitSetArgs(rest string) (target, literal string, ok bool) {
	if eq := strings.Index(rest, "="); eq >= 0 {
		target = strings.TrimSpace(rest[:eq])
		literal = strings.TrimSpace(rest[eq+1:])
	} else {
		fields := strings.SplitN(strings.TrimSpace(rest), " ", 2)
		if len(fields) < 2 {
			return "", "", false
		}
		target = fields[0]
		literal = strings.TrimSpace(fields[1])
	}
	if target == "" || literal == "" {
		return "", "", false
	}
	return target, literal, true
}
