package status

import "errors"

// Error is an error classified by a status code.
type Error struct {
	Code   Code
	Detail string
}

// NewError creates an Error.
func NewError(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail + ": " + e.Code.String()
	}
	return e.Code.String()
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf extracts the status code from err. nil maps to ESUCCESS and
// errors without a code map to EIO.
func CodeOf(err error) Code {
	if err == nil {
		return ESUCCESS
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EIO
}
