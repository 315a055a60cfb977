// Package status is the registry of status codes shared by the host and
// the remote device drivers.
package status

import (
	"fmt"
	"sort"
)

// Code is a protocol level result classification.
// Zero is success, every other registered value is a failure.
type Code int

// Entry describes a registered Code.
type Entry struct {
	Code    Code
	Symbol  string
	Message string
}

// Status codes follow the errno numbering used by the device firmware.
const (
	ESUCCESS   Code = 0
	EPERM      Code = 1
	ENOENT     Code = 2
	EIO        Code = 5
	ENXIO      Code = 6
	E2BIG      Code = 7
	EBADF      Code = 9
	EAGAIN     Code = 11
	ENOMEM     Code = 12
	EACCES     Code = 13
	EFAULT     Code = 14
	EBUSY      Code = 16
	ENODEV     Code = 19
	EINVAL     Code = 22
	EMFILE     Code = 24
	ENOSPC     Code = 28
	ERANGE     Code = 34
	ENOSYS     Code = 38
	ENODATA    Code = 61
	EBADMSG    Code = 74
	EMSGSIZE   Code = 90
	EOPNOTSUPP Code = 95
	ENOTCONN   Code = 107
	ETIMEDOUT  Code = 110
	ECANCELED  Code = 125

	// Firmware specific codes.
	EPANIC       Code = 256
	EBADUNITNAME Code = 257
	EMUTEX       Code = 258
)

// Aliases for the host side error taxonomy.
const (
	UnitNotFound         = ENODEV
	InvalidHandle        = EBADF
	ResourceExhausted    = EMFILE
	HandleBusy           = EBUSY
	Timeout              = ETIMEDOUT
	TransportUnavailable = ENOTCONN
	Canceled             = ECANCELED
)

// Unknown is the entry reported for unregistered codes.
var Unknown = Entry{Symbol: "UNKNOWN", Message: "Unknown status code"}

var registry = map[Code]Entry{}

func register(code Code, sym, msg string) {
	registry[code] = Entry{Code: code, Symbol: sym, Message: msg}
}

func init() {
	register(ESUCCESS, "ESUCCESS", "Success")
	register(EPERM, "EPERM", "Operation not permitted")
	register(ENOENT, "ENOENT", "No such file or directory")
	register(EIO, "EIO", "I/O error")
	register(ENXIO, "ENXIO", "No such device or address")
	register(E2BIG, "E2BIG", "Argument list too long")
	register(EBADF, "EBADF", "Bad handle number")
	register(EAGAIN, "EAGAIN", "Try again")
	register(ENOMEM, "ENOMEM", "Out of memory")
	register(EACCES, "EACCES", "Permission denied")
	register(EFAULT, "EFAULT", "Bad address")
	register(EBUSY, "EBUSY", "Device or resource busy")
	register(ENODEV, "ENODEV", "No such device")
	register(EINVAL, "EINVAL", "Invalid argument")
	register(EMFILE, "EMFILE", "Too many open handles")
	register(ENOSPC, "ENOSPC", "No space left on device")
	register(ERANGE, "ERANGE", "Result out of range")
	register(ENOSYS, "ENOSYS", "Function not implemented")
	register(ENODATA, "ENODATA", "No data available")
	register(EBADMSG, "EBADMSG", "Not a data message")
	register(EMSGSIZE, "EMSGSIZE", "Message too long")
	register(EOPNOTSUPP, "EOPNOTSUPP", "Operation not supported")
	register(ENOTCONN, "ENOTCONN", "Transport is not connected")
	register(ETIMEDOUT, "ETIMEDOUT", "Timed out waiting for response")
	register(ECANCELED, "ECANCELED", "Operation canceled")
	register(EPANIC, "EPANIC", "Unrecoverable device driver error")
	register(EBADUNITNAME, "EBADUNITNAME", "Malformed unit name")
	register(EMUTEX, "EMUTEX", "Unit is held by another opener")
}

// Lookup finds the entry of a code. ok is false when the code is not
// registered, in which case the caller must treat it as Unknown.
func Lookup(code Code) (e Entry, ok bool) {
	e, ok = registry[code]
	return
}

// Entry returns the registered entry, or Unknown carrying the code.
func (c Code) Entry() Entry {
	if e, ok := registry[c]; ok {
		return e
	}
	e := Unknown
	e.Code = c
	return e
}

// Symbol gets the symbolic name.
func (c Code) Symbol() string {
	return c.Entry().Symbol
}

// Message gets the human readable message.
func (c Code) Message() string {
	return c.Entry().Message
}

// IsSuccess indicates the code is ESUCCESS.
func (c Code) IsSuccess() bool {
	return c == ESUCCESS
}

// String implements fmt.Stringer, e.g. "EBADF (9) Bad handle number".
func (c Code) String() string {
	e := c.Entry()
	return fmt.Sprintf("%s (%d) %s", e.Symbol, int(c), e.Message)
}

// Codes lists all registered entries ordered by code.
func Codes() []Entry {
	entries := make([]Entry, 0, len(registry))
	for _, e := range registry {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
	return entries
}
