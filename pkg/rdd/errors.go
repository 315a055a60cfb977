package rdd

import (
	"fmt"

	"github.com/robotalks/rdd.go/pkg/rdd/dispatch"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/status"
	"github.com/robotalks/rdd.go/pkg/rdd/units"
)

// Sentinels to compare with errors.Is.
var (
	ErrUnitNotFound         = units.ErrUnitNotFound
	ErrInvalidHandle        = handles.ErrInvalidHandle
	ErrResourceExhausted    = handles.ErrResourceExhausted
	ErrHandleBusy           = dispatch.ErrHandleBusy
	ErrTransportUnavailable = dispatch.ErrTransportUnavailable
	ErrTimeout              = status.NewError(status.Timeout, "command timed out")
)

// Error is a failed operation.
type Error struct {
	Op     EventType
	Handle handles.ID
	Unit   string
	Status status.Code
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	target := e.Unit
	if e.Handle != 0 {
		target = fmt.Sprintf("%s#%d", e.Unit, e.Handle)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, target, e.Status)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinels by status code.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *status.Error:
		return t.Code == e.Status
	case *Error:
		return t.Status == e.Status
	}
	return false
}

// Result converts the error into an error Result.
func (e *Error) Result() *Result {
	return &Result{
		Status:    e.Status,
		Handle:    e.Handle,
		UnitName:  e.Unit,
		EventType: EventError,
		Op:        e.Op,
		Err:       e,
	}
}

func newError(op EventType, h handles.ID, unit string, err error) *Error {
	return &Error{Op: op, Handle: h, Unit: unit, Status: status.CodeOf(err), Err: err}
}

func statusError(op EventType, h handles.ID, unit string, code status.Code) *Error {
	return &Error{Op: op, Handle: h, Unit: unit, Status: code, Err: status.NewError(code, "")}
}
