// Package units maps unit names to the device drivers hosted on the
// remote board.
package units

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robotalks/rdd.go/pkg/rdd/status"
)

// DriverType identifies the device driver implementation behind a unit.
type DriverType int

// Known driver types.
const (
	DriverUnknown DriverType = iota
	DriverMeta
	DriverHello
	DriverServo
)

var driverNames = map[DriverType]string{
	DriverMeta:  "Meta",
	DriverHello: "Hello",
	DriverServo: "Servo",
}

// String implements fmt.Stringer.
func (t DriverType) String() string {
	if name, ok := driverNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DriverType(%d)", int(t))
}

// ParseDriverType parses a driver name (case insensitive).
func ParseDriverType(name string) (DriverType, error) {
	for t, n := range driverNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return DriverUnknown, fmt.Errorf("unknown driver type %q", name)
}

// Unit is a named device driver instance on the remote side.
type Unit struct {
	Name    string
	Driver  DriverType
	Address uint8
}

// ErrUnitNotFound is returned by Resolve for absent names.
var ErrUnitNotFound = status.NewError(status.UnitNotFound, "unit not found")

// Table is the static unit table of a session. It is read-only once
// created and safe for concurrent use.
type Table struct {
	units map[string]Unit
}

// NewTable creates a Table. Names must be unique and non-empty.
func NewTable(units ...Unit) (*Table, error) {
	t := &Table{units: make(map[string]Unit, len(units))}
	for _, u := range units {
		if u.Name == "" {
			return nil, fmt.Errorf("unit at address %d has no name", u.Address)
		}
		if _, exists := t.units[u.Name]; exists {
			return nil, fmt.Errorf("duplicated unit %q", u.Name)
		}
		t.units[u.Name] = u
	}
	return t, nil
}

// MustNewTable creates a Table and panics on error.
func MustNewTable(units ...Unit) *Table {
	t, err := NewTable(units...)
	if err != nil {
		panic(err)
	}
	return t
}

// Default is the unit table of the stock firmware build.
func Default() *Table {
	return MustNewTable(
		Unit{Name: "Meta:0", Driver: DriverMeta, Address: 0},
		Unit{Name: "Hello:0", Driver: DriverHello, Address: 1},
		Unit{Name: "Servo:0", Driver: DriverServo, Address: 2},
	)
}

// Resolve finds a unit by name.
func (t *Table) Resolve(name string) (Unit, error) {
	u, ok := t.units[name]
	if !ok {
		return Unit{}, status.NewError(status.UnitNotFound, fmt.Sprintf("unit %q", name))
	}
	return u, nil
}

// Units lists all units ordered by address.
func (t *Table) Units() []Unit {
	list := make([]Unit, 0, len(t.units))
	for _, u := range t.units {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Address != list[j].Address {
			return list[i].Address < list[j].Address
		}
		return list[i].Name < list[j].Name
	})
	return list
}
