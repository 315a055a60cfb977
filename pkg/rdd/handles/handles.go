// Package handles issues the numeric handles bound to opened units.
package handles

import (
	"fmt"

	"github.com/robotalks/rdd.go/pkg/rdd/status"
	"github.com/robotalks/rdd.go/pkg/rdd/units"
)

// ID is the handle number carried on the wire. Zero is never issued.
type ID uint8

// MaxHandles is the largest handle space supported by the wire format.
const MaxHandles = 0xfe

// State is the life cycle state of a handle.
type State int

// Handle states.
const (
	// Opening is the tentative state between reservation and the
	// confirmation of the open command.
	Opening State = iota
	Open
	Closing
	Closed
)

var stateNames = [...]string{"Opening", "Open", "Closing", "Closed"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Handle is a session scoped identifier bound to one opened unit.
type Handle struct {
	ID   ID
	Unit units.Unit

	state State
}

// State gets the current state.
func (h *Handle) State() State {
	return h.state
}

var (
	// ErrInvalidHandle indicates an unknown, stale or closed handle.
	ErrInvalidHandle = status.NewError(status.InvalidHandle, "invalid handle")
	// ErrResourceExhausted indicates no handle id is available.
	ErrResourceExhausted = status.NewError(status.ResourceExhausted, "no handle available")
)

// Manager owns all handles of a session. It is not safe for concurrent
// use and is expected to be confined to the protocol loop.
type Manager struct {
	max     int
	handles map[ID]*Handle
	last    ID
}

// NewManager creates a Manager issuing ids 1..max.
func NewManager(max int) *Manager {
	if max <= 0 || max > MaxHandles {
		max = MaxHandles
	}
	return &Manager{max: max, handles: make(map[ID]*Handle)}
}

func invalid(id ID, state string) error {
	return status.NewError(status.InvalidHandle, fmt.Sprintf("handle %d %s", id, state))
}

// Allocate reserves a tentative handle for unit. The handle stays in
// Opening until Commit or Abandon.
func (m *Manager) Allocate(unit units.Unit) (*Handle, error) {
	if len(m.handles) >= m.max {
		return nil, ErrResourceExhausted
	}
	id := m.last
	for {
		if id++; int(id) > m.max || id == 0 {
			id = 1
		}
		if _, used := m.handles[id]; !used {
			break
		}
	}
	m.last = id
	h := &Handle{ID: id, Unit: unit, state: Opening}
	m.handles[id] = h
	return h, nil
}

// Commit confirms a tentative handle after a successful open.
func (m *Manager) Commit(id ID) (*Handle, error) {
	h := m.handles[id]
	if h == nil || h.state != Opening {
		return nil, invalid(id, "is not opening")
	}
	h.state = Open
	return h, nil
}

// Abandon releases a tentative handle after a failed open.
func (m *Manager) Abandon(id ID) error {
	h := m.handles[id]
	if h == nil || h.state != Opening {
		return invalid(id, "is not opening")
	}
	h.state = Closed
	delete(m.handles, id)
	return nil
}

// BeginClose moves an Open handle to Closing. Closing an already
// Closing handle is allowed so a failed close can be retried.
func (m *Manager) BeginClose(id ID) (*Handle, error) {
	h := m.handles[id]
	if h == nil || (h.state != Open && h.state != Closing) {
		return nil, invalid(id, "is not open")
	}
	h.state = Closing
	return h, nil
}

// Release closes the handle and frees its id for reuse.
func (m *Manager) Release(id ID) error {
	h := m.handles[id]
	if h == nil || (h.state != Open && h.state != Closing) {
		return invalid(id, "is not open")
	}
	h.state = Closed
	delete(m.handles, id)
	return nil
}

// Get finds a live handle (Opening, Open or Closing).
func (m *Manager) Get(id ID) (*Handle, error) {
	if h := m.handles[id]; h != nil {
		return h, nil
	}
	return nil, ErrInvalidHandle
}

// GetOpen finds a handle in Open state.
func (m *Manager) GetOpen(id ID) (*Handle, error) {
	h := m.handles[id]
	if h == nil {
		return nil, ErrInvalidHandle
	}
	if h.state != Open {
		return nil, invalid(id, "is "+h.state.String())
	}
	return h, nil
}

// ByUnit lists live handles bound to the named unit.
func (m *Manager) ByUnit(name string) []*Handle {
	var list []*Handle
	for _, h := range m.handles {
		if h.Unit.Name == name && h.state != Opening {
			list = append(list, h)
		}
	}
	return list
}

// Len returns the number of live handles.
func (m *Manager) Len() int {
	return len(m.handles)
}
