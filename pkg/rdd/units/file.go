package units

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a unit table file:
//
//	units:
//	  - name: Hello:0
//	    driver: hello
//	    address: 1
type File struct {
	Units []UnitConfig `yaml:"units"`
}

// UnitConfig is one unit entry in a File.
type UnitConfig struct {
	Name    string `yaml:"name"`
	Driver  string `yaml:"driver"`
	Address *int   `yaml:"address"`
}

// LoadFile reads a unit table from a YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a unit table from YAML content.
func Parse(data []byte) (*Table, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse unit table: %w", err)
	}
	list := make([]Unit, 0, len(f.Units))
	for n, uc := range f.Units {
		drv, err := ParseDriverType(uc.Driver)
		if err != nil {
			return nil, fmt.Errorf("units[%d] %q: %w", n, uc.Name, err)
		}
		if uc.Address == nil {
			return nil, fmt.Errorf("units[%d] %q: address required", n, uc.Name)
		}
		if *uc.Address < 0 || *uc.Address > 0xff {
			return nil, fmt.Errorf("units[%d] %q: address %d out of range", n, uc.Name, *uc.Address)
		}
		list = append(list, Unit{Name: uc.Name, Driver: drv, Address: uint8(*uc.Address)})
	}
	return NewTable(list...)
}
