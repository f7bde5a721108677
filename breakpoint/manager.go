// Package breakpoint resolves breakpoint specifications (a bare line
// number, a file:line pair, or a function name) against debug info and
// tracks the resulting sites as software breakpoints in the tracee,
// mirroring the teacher's ogle/program/server.go addBreakpoints /
// other_examples/proctl.go FindLocation split between "where does this
// text mean" and "what's installed right now".
package breakpoint

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dwarfdbg/cdbg/dwarfdata"
	"github.com/dwarfdbg/cdbg/errkind"
	"github.com/dwarfdbg/cdbg/tracee"
)

// Entry is one tracked breakpoint. Entries are kept in insertion order
// (not keyed by address) so `l` lists them the order the user created
// them, per the supplemented original_source-grounded listing rule.
type Entry struct {
	ID        int
	Spec      string
	File      string
	Line      int
	Addr      uint64
	Enabled   bool
	installed bool
	savedByte byte
}

// Manager owns the full set of tracked breakpoints for one debug
// session and keeps the tracee's installed traps consistent with it.
type Manager struct {
	data    *dwarfdata.Data
	ctrl    *tracee.Controller
	entries []*Entry
	nextID  int
	curFile string
}

// NewManager binds a Manager to a debug-info index and a tracee
// controller. ctrl may be nil before the tracee is spawned; Add still
// resolves and records the location, deferring installation until
// Attach is called.
func NewManager(d *dwarfdata.Data, ctrl *tracee.Controller) *Manager {
	return &Manager{data: d, ctrl: ctrl, nextID: 1}
}

// Attach binds a freshly spawned tracee controller and installs traps
// for every enabled breakpoint recorded so far (set before `run`, or
// carried over from a previous run of the tracee).
func (m *Manager) Attach(ctrl *tracee.Controller) error {
	m.ctrl = ctrl
	for _, e := range m.entries {
		e.installed = false
		if e.Enabled {
			if err := m.install(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetCurrentFile records which source file a bare line number refers
// to (the file of the last resolved stop location, defaulting to the
// file containing main).
func (m *Manager) SetCurrentFile(file string) {
	m.curFile = file
}

// Add resolves spec and records a new, enabled breakpoint at its site.
// Adding a second breakpoint at a site that already has one fails with
// errkind.AlreadyExists.
func (m *Manager) Add(spec string) (*Entry, error) {
	file, line, addr, err := m.resolve(spec)
	if err != nil {
		return nil, err
	}
	for _, e := range m.entries {
		if e.Addr == addr {
			return nil, fmt.Errorf("breakpoint at %s:%d: %w", file, line, errkind.AlreadyExists)
		}
	}
	e := &Entry{ID: m.nextID, Spec: spec, File: file, Line: line, Addr: addr, Enabled: true}
	m.nextID++
	if m.ctrl != nil {
		if err := m.install(e); err != nil {
			return nil, err
		}
	}
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *Manager) resolve(spec string) (file string, line int, addr uint64, err error) {
	spec = strings.TrimSpace(spec)

	if idx := strings.LastIndex(spec, ":"); idx >= 0 {
		file = spec[:idx]
		n, cerr := strconv.Atoi(spec[idx+1:])
		if cerr != nil {
			return "", 0, 0, fmt.Errorf("%q: %w", spec, errkind.InvalidPath)
		}
		line = n
		addr, err = m.data.AddressOfLine(file, line)
		if err != nil {
			return "", 0, 0, fmt.Errorf("%s:%d: %w", file, line, errkind.NotFound)
		}
		if resolvedFile, resolvedLine, lerr := m.data.LineOf(addr); lerr == nil {
			file, line = resolvedFile, resolvedLine
		}
		return file, line, addr, nil
	}

	if n, cerr := strconv.Atoi(spec); cerr == nil {
		file = m.curFile
		if file == "" {
			file, err = m.data.MainFile()
			if err != nil {
				return "", 0, 0, fmt.Errorf("no current file: %w", errkind.NotFound)
			}
		}
		addr, err = m.data.AddressOfLine(file, n)
		if err != nil {
			return "", 0, 0, fmt.Errorf("%s:%d: %w", file, n, errkind.NotFound)
		}
		if resolvedFile, resolvedLine, lerr := m.data.LineOf(addr); lerr == nil {
			file, line = resolvedFile, resolvedLine
		} else {
			line = n
		}
		return file, line, addr, nil
	}

	fn, ferr := m.data.FunctionByName(spec)
	if ferr != nil {
		return "", 0, 0, fmt.Errorf("%q: %w", spec, errkind.NotFound)
	}
	addr = fn.PrologueEnd
	if resolvedFile, resolvedLine, lerr := m.data.LineOf(addr); lerr == nil {
		file, line = resolvedFile, resolvedLine
	} else {
		file, line = fn.File, 0
	}
	return file, line, addr, nil
}

func (m *Manager) install(e *Entry) error {
	saved, err := m.ctrl.InstallTrap(e.Addr)
	if err != nil {
		return fmt.Errorf("install breakpoint at %s:%d: %w", e.File, e.Line, err)
	}
	e.savedByte = saved
	e.installed = true
	return nil
}

func (m *Manager) uninstall(e *Entry) error {
	if !e.installed {
		return nil
	}
	if err := m.ctrl.RemoveTrap(e.Addr, e.savedByte); err != nil {
		return fmt.Errorf("remove breakpoint at %s:%d: %w", e.File, e.Line, err)
	}
	e.installed = false
	return nil
}

// Remove deletes the breakpoint with the given id, uninstalling its
// trap if present.
func (m *Manager) Remove(id int) error {
	for i, e := range m.entries {
		if e.ID == id {
			if err := m.uninstall(e); err != nil {
				return err
			}
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("breakpoint %d: %w", id, errkind.NotFound)
}

// Enable (re-)installs the trap for id; Disable removes it without
// forgetting the breakpoint's location.
func (m *Manager) Enable(id int) error  { return m.setEnabled(id, true) }
func (m *Manager) Disable(id int) error { return m.setEnabled(id, false) }

func (m *Manager) setEnabled(id int, enabled bool) error {
	e := m.find(id)
	if e == nil {
		return fmt.Errorf("breakpoint %d: %w", id, errkind.NotFound)
	}
	if e.Enabled == enabled {
		return nil
	}
	e.Enabled = enabled
	if m.ctrl == nil {
		return nil
	}
	if enabled {
		return m.install(e)
	}
	return m.uninstall(e)
}

func (m *Manager) find(id int) *Entry {
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *Manager) findByAddr(addr uint64) *Entry {
	for _, e := range m.entries {
		if e.Addr == addr {
			return e
		}
	}
	return nil
}

// RemoveSpec, EnableSpec, and DisableSpec act on the breakpoint at
// spec's resolved address rather than a numeric id, per §4.D: `rm`,
// `enable`, and `disable` address breakpoints the same way `b` creates
// them, so a breakpoint added by bare line number can be removed by its
// "file:line" form (or vice versa) without the caller tracking ids.
func (m *Manager) RemoveSpec(spec string) error {
	e, err := m.bySpec(spec)
	if err != nil {
		return err
	}
	return m.Remove(e.ID)
}

func (m *Manager) EnableSpec(spec string) error  { return m.setEnabledSpec(spec, true) }
func (m *Manager) DisableSpec(spec string) error { return m.setEnabledSpec(spec, false) }

func (m *Manager) setEnabledSpec(spec string, enabled bool) error {
	e, err := m.bySpec(spec)
	if err != nil {
		return err
	}
	return m.setEnabled(e.ID, enabled)
}

func (m *Manager) bySpec(spec string) (*Entry, error) {
	_, _, addr, err := m.resolve(spec)
	if err != nil {
		return nil, err
	}
	e := m.findByAddr(addr)
	if e == nil {
		return nil, fmt.Errorf("breakpoint %s: %w", spec, errkind.NotFound)
	}
	return e, nil
}

// List returns the tracked breakpoints in insertion order.
func (m *Manager) List() []*Entry {
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Clear removes every tracked breakpoint and reports how many were
// removed.
func (m *Manager) Clear() (int, error) {
	n := len(m.entries)
	for _, e := range m.entries {
		if err := m.uninstall(e); err != nil {
			return 0, err
		}
	}
	m.entries = nil
	return n, nil
}

// SiteAt reports the enabled, installed breakpoint at addr, if any —
// used by the tracee's Resume to correct a trap-stop PC back to the
// site address.
func (m *Manager) SiteAt(addr uint64) (*tracee.Breakpoint, bool) {
	for _, e := range m.entries {
		if e.Enabled && e.installed && e.Addr == addr {
			return &tracee.Breakpoint{Addr: e.Addr, SavedByte: e.savedByte}, true
		}
	}
	return nil, false
}

// ShortFile returns the base name of file, the form breakpoint listing
// text uses.
func ShortFile(file string) string {
	return filepath.Base(file)
}
