package sim

import (
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/robotalks/rdd.go/pkg/rdd/status"
	"github.com/robotalks/rdd.go/pkg/rdd/units"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
)

// Device is a device driver hosted by the simulated board. The board
// serves the common registers except RegConfigure.
type Device interface {
	Version() string
	Read(reg int16, count uint16) ([]byte, status.Code)
	Write(reg int16, data []byte) status.Code
	// Reset is called when a handle opens the device.
	Reset()
}

// NewDevice creates the device driver for a driver type.
func NewDevice(t units.DriverType) Device {
	switch t {
	case units.DriverHello:
		return NewHello()
	case units.DriverServo:
		return NewServo()
	}
	return &Meta{}
}

func truncate(data []byte, count uint16) []byte {
	if count > 0 && int(count) < len(data) {
		return data[:count]
	}
	return data
}

// Hello registers.
const (
	HelloRegGreeting int16 = 0
)

// DefaultGreeting is the greeting of a freshly opened Hello device.
const DefaultGreeting = "Hello World."

// Hello is the greeting device.
type Hello struct {
	lock     sync.Mutex
	greeting string
}

// NewHello creates a Hello device.
func NewHello() *Hello {
	return &Hello{greeting: DefaultGreeting}
}

// Version implements Device.
func (h *Hello) Version() string {
	return "Hello 0.1.0"
}

// Reset implements Device.
func (h *Hello) Reset() {
	h.lock.Lock()
	h.greeting = DefaultGreeting
	h.lock.Unlock()
}

// Greeting returns the current greeting.
func (h *Hello) Greeting() string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.greeting
}

// Read implements Device.
func (h *Hello) Read(reg int16, count uint16) ([]byte, status.Code) {
	if reg != HelloRegGreeting {
		return nil, status.EINVAL
	}
	return truncate([]byte(h.Greeting()), count), status.ESUCCESS
}

// Write implements Device.
func (h *Hello) Write(reg int16, data []byte) status.Code {
	if reg != HelloRegGreeting {
		return status.EINVAL
	}
	if len(data) == 0 || len(data) > 0x40 {
		return status.EMSGSIZE
	}
	h.lock.Lock()
	h.greeting = string(data)
	h.lock.Unlock()
	return status.ESUCCESS
}

// Servo registers. RegConfigure attaches the servo: pin (1 byte), then
// min and max pulse widths in microseconds (uint16 little-endian each,
// zero selects the default).
const (
	ServoRegPosition int16 = 0
)

// Servo pulse defaults and motion speed.
const (
	DefaultMinPulse = 544
	DefaultMaxPulse = 2400
	// ServoSpeed is the sweep speed in degrees per second.
	ServoSpeed = 600.0
)

// Servo is the hobby servo device. The shaft sweeps toward the target
// position at ServoSpeed.
type Servo struct {
	Now func() time.Time

	lock     sync.Mutex
	attached bool
	pin      byte
	minPulse uint16
	maxPulse uint16
	sweep    servoSweep
}

type servoSweep struct {
	from, to  float64
	startTime time.Time
}

func (s servoSweep) estimate(now time.Time) float64 {
	travel := now.Sub(s.startTime).Seconds() * ServoSpeed
	if s.to >= s.from {
		if pos := s.from + travel; pos < s.to {
			return pos
		}
	} else if pos := s.from - travel; pos > s.to {
		return pos
	}
	return s.to
}

// NewServo creates a Servo device.
func NewServo() *Servo {
	return &Servo{Now: time.Now}
}

// Version implements Device.
func (s *Servo) Version() string {
	return "Servo 0.1.0"
}

// Reset implements Device.
func (s *Servo) Reset() {
	s.lock.Lock()
	s.attached = false
	s.lock.Unlock()
}

// Attachment returns the attached pin and pulse range.
func (s *Servo) Attachment() (pin byte, minPulse, maxPulse uint16, attached bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pin, s.minPulse, s.maxPulse, s.attached
}

// Position estimates the current position in degrees.
func (s *Servo) Position() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.sweep.estimate(s.Now())
}

// Target returns the requested position in degrees.
func (s *Servo) Target() float64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.sweep.to
}

// Read implements Device.
func (s *Servo) Read(reg int16, count uint16) ([]byte, status.Code) {
	if reg != ServoRegPosition {
		return nil, status.EINVAL
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.attached {
		return nil, status.ENXIO
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(int16(s.sweep.estimate(s.Now())+0.5)))
	return b, status.ESUCCESS
}

// Write implements Device.
func (s *Servo) Write(reg int16, data []byte) status.Code {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch reg {
	case wire.RegConfigure:
		if len(data) != 5 {
			return status.EMSGSIZE
		}
		s.pin = data[0]
		s.minPulse = binary.LittleEndian.Uint16(data[1:])
		s.maxPulse = binary.LittleEndian.Uint16(data[3:])
		if s.minPulse == 0 {
			s.minPulse = DefaultMinPulse
		}
		if s.maxPulse == 0 {
			s.maxPulse = DefaultMaxPulse
		}
		if s.minPulse >= s.maxPulse {
			return status.EINVAL
		}
		s.attached = true
		return status.ESUCCESS
	case ServoRegPosition:
		if !s.attached {
			return status.ENXIO
		}
		if len(data) != 2 {
			return status.EMSGSIZE
		}
		target := int16(binary.LittleEndian.Uint16(data))
		if target < 0 || target > 180 {
			return status.ERANGE
		}
		now := s.Now()
		s.sweep = servoSweep{from: s.sweep.estimate(now), to: float64(target), startTime: now}
		return status.ESUCCESS
	}
	return status.EINVAL
}

// Meta describes the board itself. Register 0 lists the unit names.
type Meta struct {
	names []string
}

// Version implements Device.
func (m *Meta) Version() string {
	return "Meta 0.1.0"
}

// Reset implements Device.
func (m *Meta) Reset() {}

// Read implements Device.
func (m *Meta) Read(reg int16, count uint16) ([]byte, status.Code) {
	if reg != 0 {
		return nil, status.EINVAL
	}
	return truncate([]byte(strings.Join(m.names, ",")), count), status.ESUCCESS
}

// Write implements Device.
func (m *Meta) Write(int16, []byte) status.Code {
	return status.EPERM
}
