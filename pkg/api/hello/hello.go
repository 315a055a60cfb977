// Package hello is the façade of the Hello greeting device.
package hello

import (
	"github.com/robotalks/rdd.go/pkg/api"
	"github.com/robotalks/rdd.go/pkg/rdd"
	"github.com/robotalks/rdd.go/pkg/rdd/handles"
)

// RegGreeting holds the greeting text.
const RegGreeting int16 = 0

// MaxGreeting is the longest greeting the device stores.
const MaxGreeting = 0x40

// API talks to Hello units.
type API struct {
	api.Base
}

// New creates the API.
func New(drv api.Driver) *API {
	return &API{Base: api.Base{Driver: drv}}
}

// GetGreeting reads the greeting, delivered in Result.Data.
func (a *API) GetGreeting(id handles.ID, done rdd.Listener) error {
	return a.Driver.Read(id, 0, RegGreeting, MaxGreeting, done)
}

// SetGreeting replaces the greeting.
func (a *API) SetGreeting(id handles.ID, greeting string, done rdd.Listener) error {
	return a.Driver.Write(id, 0, RegGreeting, []byte(greeting), done)
}

// GetContinuousGreeting reads the greeting repeatedly, once per
// millisecond interval, passing each report to listener.
func (a *API) GetContinuousGreeting(id handles.ID, listener, done rdd.Listener) error {
	return a.Driver.EnableContinuous(id, RegGreeting, MaxGreeting, listener, done)
}

// StopContinuousGreeting stops the repeated read.
func (a *API) StopContinuousGreeting(id handles.ID, done rdd.Listener) error {
	return a.Driver.DisableContinuous(id, done)
}
