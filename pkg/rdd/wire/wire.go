// Package wire encodes the remote device driver frames exchanged with
// the board.
//
// Every frame starts with a 3-byte header:
//
//	byte 0: kind (bits 7-6) | action (bits 3-0)
//	byte 1: correlation token, echoed by the response
//	byte 2: handle
//
// followed by an action specific payload. Responses and reports carry a
// reply payload: a little-endian int16 status (negated status code on
// failure, a non-negative count on success), the register and the data.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/rdd.go/pkg/rdd/status"
)

// Kind is the frame kind.
type Kind byte

// Frame kinds.
const (
	KindRequest  Kind = 0x00
	KindResponse Kind = 0x80
	KindReport   Kind = 0xc0

	kindMask   byte = 0xc0
	actionMask byte = 0x0f
)

// Action is the operation a frame belongs to.
type Action byte

// Actions.
const (
	ActionOpen  Action = 0
	ActionRead  Action = 1
	ActionWrite Action = 2
	ActionClose Action = 3
)

var actionNames = [...]string{"open", "read", "write", "close"}

// String implements fmt.Stringer.
func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", byte(a))
}

// Flags modify an action.
type Flags byte

// Action flags.
const (
	// Force reclaims a unit already opened elsewhere.
	Force Flags = 0x01
	// MilliRun repeats a read on the millisecond timer.
	MilliRun Flags = 0x02
	// MicroRun repeats a read on the microsecond timer.
	MicroRun Flags = 0x04
	// Halt stops repeated reads.
	Halt Flags = 0x08
)

// Common device registers, implemented by every driver.
const (
	RegDriverVersion  int16 = -1
	RegLibraryVersion int16 = -2
	RegConfigure      int16 = -3
	RegIntervals      int16 = -4
)

const headerLen = 3

// Frame is one message on the transport.
type Frame struct {
	Kind    Kind
	Action  Action
	Token   byte
	Handle  byte
	Payload []byte
}

// DecodeError reports a malformed frame.
type DecodeError struct {
	Reason string
}

// Error implements error.
func (e *DecodeError) Error() string {
	return "malformed frame: " + e.Reason
}

// Bytes encodes the frame.
func (f *Frame) Bytes() []byte {
	b := make([]byte, headerLen+len(f.Payload))
	b[0] = byte(f.Kind)&kindMask | byte(f.Action)&actionMask
	b[1], b[2] = f.Token, f.Handle
	copy(b[headerLen:], f.Payload)
	return b
}

// Decode decodes a frame. The payload aliases b.
func Decode(b []byte) (*Frame, error) {
	if len(b) < headerLen {
		return nil, &DecodeError{Reason: fmt.Sprintf("%d bytes too short", len(b))}
	}
	f := &Frame{
		Kind:    Kind(b[0] & kindMask),
		Action:  Action(b[0] & actionMask),
		Token:   b[1],
		Handle:  b[2],
		Payload: b[headerLen:],
	}
	switch f.Kind {
	case KindRequest, KindResponse, KindReport:
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown kind %#x", byte(f.Kind))}
	}
	if f.Action > ActionClose {
		return nil, &DecodeError{Reason: "unknown " + f.Action.String()}
	}
	return f, nil
}

// OpenRequest is the payload of an open request.
type OpenRequest struct {
	Address uint8
	Flags   Flags
	Param   uint16
}

// Encode encodes the payload.
func (r *OpenRequest) Encode() []byte {
	b := []byte{r.Address, byte(r.Flags), 0, 0}
	binary.LittleEndian.PutUint16(b[2:], r.Param)
	return b
}

// DecodeOpenRequest decodes an open request payload.
func DecodeOpenRequest(p []byte) (*OpenRequest, error) {
	if len(p) != 4 {
		return nil, &DecodeError{Reason: "open request size"}
	}
	return &OpenRequest{Address: p[0], Flags: Flags(p[1]), Param: binary.LittleEndian.Uint16(p[2:])}, nil
}

// ReadRequest is the payload of a read request.
type ReadRequest struct {
	Flags    Flags
	Register int16
	Count    uint16
}

// Encode encodes the payload.
func (r *ReadRequest) Encode() []byte {
	b := make([]byte, 5)
	b[0] = byte(r.Flags)
	binary.LittleEndian.PutUint16(b[1:], uint16(r.Register))
	binary.LittleEndian.PutUint16(b[3:], r.Count)
	return b
}

// DecodeReadRequest decodes a read request payload.
func DecodeReadRequest(p []byte) (*ReadRequest, error) {
	if len(p) != 5 {
		return nil, &DecodeError{Reason: "read request size"}
	}
	return &ReadRequest{
		Flags:    Flags(p[0]),
		Register: int16(binary.LittleEndian.Uint16(p[1:])),
		Count:    binary.LittleEndian.Uint16(p[3:]),
	}, nil
}

// WriteRequest is the payload of a write request.
type WriteRequest struct {
	Flags    Flags
	Register int16
	Data     []byte
}

// Encode encodes the payload.
func (r *WriteRequest) Encode() []byte {
	b := make([]byte, 3+len(r.Data))
	b[0] = byte(r.Flags)
	binary.LittleEndian.PutUint16(b[1:], uint16(r.Register))
	copy(b[3:], r.Data)
	return b
}

// DecodeWriteRequest decodes a write request payload.
func DecodeWriteRequest(p []byte) (*WriteRequest, error) {
	if len(p) < 3 {
		return nil, &DecodeError{Reason: "write request size"}
	}
	return &WriteRequest{
		Flags:    Flags(p[0]),
		Register: int16(binary.LittleEndian.Uint16(p[1:])),
		Data:     p[3:],
	}, nil
}

// CloseRequest is the payload of a close request.
type CloseRequest struct {
	Flags Flags
}

// Encode encodes the payload.
func (r *CloseRequest) Encode() []byte {
	return []byte{byte(r.Flags)}
}

// DecodeCloseRequest decodes a close request payload.
func DecodeCloseRequest(p []byte) (*CloseRequest, error) {
	if len(p) != 1 {
		return nil, &DecodeError{Reason: "close request size"}
	}
	return &CloseRequest{Flags: Flags(p[0])}, nil
}

// Reply is the payload of responses and reports.
type Reply struct {
	// Status is the raw wire status: negative for a failure.
	Status   int16
	Register int16
	Data     []byte
}

// NewErrorReply creates a failure Reply.
func NewErrorReply(code status.Code) *Reply {
	return &Reply{Status: -int16(code)}
}

// Code converts the wire status into a status code.
func (r *Reply) Code() status.Code {
	if r.Status < 0 {
		return status.Code(-int(r.Status))
	}
	return status.ESUCCESS
}

// Encode encodes the payload.
func (r *Reply) Encode() []byte {
	b := make([]byte, 4+len(r.Data))
	binary.LittleEndian.PutUint16(b, uint16(r.Status))
	binary.LittleEndian.PutUint16(b[2:], uint16(r.Register))
	copy(b[4:], r.Data)
	return b
}

// DecodeReply decodes a response or report payload.
func DecodeReply(p []byte) (*Reply, error) {
	if len(p) < 4 {
		return nil, &DecodeError{Reason: "reply size"}
	}
	return &Reply{
		Status:   int16(binary.LittleEndian.Uint16(p)),
		Register: int16(binary.LittleEndian.Uint16(p[2:])),
		Data:     p[4:],
	}, nil
}

// EncodeIntervals encodes the value of RegIntervals: the microsecond and
// millisecond repeat intervals, 4 bytes little-endian each. Zero keeps
// the current interval.
func EncodeIntervals(micros, millis uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, micros)
	binary.LittleEndian.PutUint32(b[4:], millis)
	return b
}

// DecodeIntervals decodes the value of RegIntervals.
func DecodeIntervals(p []byte) (micros, millis uint32, err error) {
	if len(p) != 8 {
		return 0, 0, &DecodeError{Reason: "intervals size"}
	}
	return binary.LittleEndian.Uint32(p), binary.LittleEndian.Uint32(p[4:]), nil
}
