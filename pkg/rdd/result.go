package rdd

import (
	"fmt"

	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/status"
)

// EventType classifies a Result.
type EventType string

// Event types.
const (
	EventOpen           EventType = "open"
	EventRead           EventType = "read"
	EventWrite          EventType = "write"
	EventClose          EventType = "close"
	EventReadContinuous EventType = "read-continuous"
	// EventPreempted reports a handle retired by a forced open of its
	// unit. Op is EventClose.
	EventPreempted EventType = "preempted"
	EventError          EventType = "error"
)

// EventTypes lists every event type.
var EventTypes = []EventType{
	EventOpen, EventRead, EventWrite, EventClose, EventReadContinuous, EventPreempted, EventError,
}

// Result is the outcome of a command, or one report of a continuous read.
// A failed Result always has EventType EventError, Op tells the failed
// operation and Err the cause.
type Result struct {
	Status    status.Code
	Handle    handles.ID
	UnitName  string
	EventType EventType
	Op        EventType
	Register  int16
	Data      []byte
	Err       error
}

// OK tells if the Result is successful.
func (r *Result) OK() bool {
	return r.EventType != EventError && r.Status.IsSuccess()
}

// String implements fmt.Stringer.
func (r *Result) String() string {
	if r.EventType == EventError {
		return fmt.Sprintf("%s %s#%d failed: %s", r.Op, r.UnitName, r.Handle, r.Status)
	}
	return fmt.Sprintf("%s %s#%d reg=%d data=%q", r.EventType, r.UnitName, r.Handle, r.Register, r.Data)
}

// Listener receives Results on the loop.
type Listener func(*Result)
