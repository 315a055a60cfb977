// Package servo is the façade of the hobby servo device.
package servo

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/rdd.go/pkg/api"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
)

// RegPosition holds the shaft position in degrees.
const RegPosition int16 = 0

// Attachment configures the servo output.
type Attachment struct {
	Pin byte
	// Pulse widths in microseconds, zero selects the device default.
	MinPulse uint16
	MaxPulse uint16
}

// Encode encodes the value of the configure register.
func (a Attachment) Encode() []byte {
	b := make([]byte, 5)
	b[0] = a.Pin
	binary.LittleEndian.PutUint16(b[1:], a.MinPulse)
	binary.LittleEndian.PutUint16(b[3:], a.MaxPulse)
	return b
}

// API talks to Servo units.
type API struct {
	api.Base
}

// New creates the API.
func New(drv api.Driver) *API {
	return &API{Base: api.Base{Driver: drv}}
}

// Attach attaches the servo to an output pin.
func (a *API) Attach(id handles.ID, att Attachment, done rdd.Listener) error {
	return a.Driver.Write(id, 0, wire.RegConfigure, att.Encode(), done)
}

// To moves the shaft to deg degrees, 0 to 180.
func (a *API) To(id handles.ID, deg int16, done rdd.Listener) error {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(deg))
	return a.Driver.Write(id, 0, RegPosition, b, done)
}

// Position reads the current shaft position, see DecodePosition.
func (a *API) Position(id handles.ID, done rdd.Listener) error {
	return a.Driver.Read(id, 0, RegPosition, 2, done)
}

// DecodePosition extracts the position from the Result of Position.
func DecodePosition(res *rdd.Result) (int16, error) {
	if len(res.Data) != 2 {
		return 0, fmt.Errorf("position of %d bytes", len(res.Data))
	}
	return int16(binary.LittleEndian.Uint16(res.Data)), nil
}
