// Package api holds the device façades built on the remote device driver.
// A façade translates device-specific calls into register reads and
// writes, and forwards the Results of the driver unchanged.
package api

import (
	fx "github.com/robotalks/rdd.go/pkg/framework"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
	"github.com/robotalks/rdd.go/pkg/rdd/wire"
)

// Driver is the part of rdd.Driver used by the façades.
type Driver interface {
	Open(unitName string, flags wire.Flags, param uint16, done rdd.Listener) error
	Read(id handles.ID, flags wire.Flags, reg int16, count uint16, done rdd.Listener) error
	Write(id handles.ID, flags wire.Flags, reg int16, data []byte, done rdd.Listener) error
	Close(id handles.ID, done rdd.Listener) error
	EnableContinuous(id handles.ID, reg int16, count uint16, listener, done rdd.Listener) error
	DisableContinuous(id handles.ID, done rdd.Listener) error
	SetIntervals(id handles.ID, micros, millis uint32, done rdd.Listener) error
	On(event rdd.EventType, listener rdd.Listener) *fx.Subscription
}

// Base implements the operations common to every device.
type Base struct {
	Driver Driver
}

// Open opens a unit.
func (b *Base) Open(unitName string, flags wire.Flags, param uint16, done rdd.Listener) error {
	return b.Driver.Open(unitName, flags, param, done)
}

// Close closes a handle.
func (b *Base) Close(id handles.ID, done rdd.Listener) error {
	return b.Driver.Close(id, done)
}

// SetIntervals sets the repeat intervals of continuous reads.
func (b *Base) SetIntervals(id handles.ID, micros, millis uint32, done rdd.Listener) error {
	return b.Driver.SetIntervals(id, micros, millis, done)
}

// On subscribes to the Results of the driver, so a façade can be the
// source of a sequencer.
func (b *Base) On(event rdd.EventType, listener rdd.Listener) *fx.Subscription {
	return b.Driver.On(event, listener)
}

// DriverVersion reads the version string of the device driver.
func (b *Base) DriverVersion(id handles.ID, done rdd.Listener) error {
	return b.Driver.Read(id, 0, wire.RegDriverVersion, 0, done)
}

// LibraryVersion reads the version string of the board library.
func (b *Base) LibraryVersion(id handles.ID, done rdd.Listener) error {
	return b.Driver.Read(id, 0, wire.RegLibraryVersion, 0, done)
}
