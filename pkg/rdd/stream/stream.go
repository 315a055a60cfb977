// Package stream routes unsolicited continuous reports to the listener
// subscribed on their handle.
package stream

import (
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
)

// Report is one continuous read result pushed by the board.
type Report struct {
	Handle handles.ID
	Reply  *wire.Reply
}

// Listener receives reports of a handle.
type Listener func(*Report)

// Mux holds at most one listener per handle. It is confined to the loop.
type Mux struct {
	handles   *handles.Manager
	listeners map[handles.ID]Listener
}

// NewMux creates a Mux.
func NewMux(hm *handles.Manager) *Mux {
	return &Mux{handles: hm, listeners: make(map[handles.ID]Listener)}
}

// Subscribe replaces the listener of an Open handle.
func (m *Mux) Subscribe(id handles.ID, listener Listener) error {
	if _, err := m.handles.GetOpen(id); err != nil {
		return err
	}
	m.listeners[id] = listener
	return nil
}

// Unsubscribe removes the listener, it's a no-op without one.
func (m *Mux) Unsubscribe(id handles.ID) {
	delete(m.listeners, id)
}

// Subscribed tells if the handle has a listener.
func (m *Mux) Subscribed(id handles.ID) bool {
	return m.listeners[id] != nil
}

// Deliver hands the report to the listener of its handle, returning
// false when nobody listens.
func (m *Mux) Deliver(r *Report) bool {
	listener := m.listeners[r.Handle]
	if listener == nil {
		return false
	}
	listener(r)
	return true
}
