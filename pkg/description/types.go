package description

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Description errors.
var (
	ErrInvalidDescription = errors.New("invalid device description")
	ErrUnsupportedFormat  = errors.New("unsupported description format")
)

// DeviceDescription is the static description of one appliance.
type DeviceDescription struct {
	Info            map[string]any      `json:"info,omitempty"`
	Status          []EntityDescription `json:"status,omitempty"`
	Setting         []EntityDescription `json:"setting,omitempty"`
	Event           []EntityDescription `json:"event,omitempty"`
	Command         []EntityDescription `json:"command,omitempty"`
	Option          []EntityDescription `json:"option,omitempty"`
	Program         []EntityDescription `json:"program,omitempty"`
	ActiveProgram   *EntityDescription  `json:"activeProgram,omitempty"`
	SelectedProgram *EntityDescription  `json:"selectedProgram,omitempty"`
	ProtectionPort  *EntityDescription  `json:"protectionPort,omitempty"`
}

// EntityDescription describes a single entity. Pointer and interface fields
// are nil when the description does not declare them.
type EntityDescription struct {
	UID          *int64            `json:"uid,omitempty"`
	Name         string            `json:"name,omitempty"`
	ProtocolType string            `json:"protocolType,omitempty"`
	ContentType  string            `json:"contentType,omitempty"`
	Enumeration  map[string]string `json:"enumeration,omitempty"`
	Access       *string           `json:"access,omitempty"`
	Available    *bool             `json:"available,omitempty"`
	Min          any               `json:"min,omitempty"`
	Max          any               `json:"max,omitempty"`
	StepSize     any               `json:"stepSize,omitempty"`
	InitValue    any               `json:"initValue,omitempty"`
	Default      any               `json:"default,omitempty"`
}

// EntityCount returns the number of entities in the description.
func (d *DeviceDescription) EntityCount() int {
	n := len(d.Status) + len(d.Setting) + len(d.Event) + len(d.Command) + len(d.Option) + len(d.Program)
	for _, single := range []*EntityDescription{d.ActiveProgram, d.SelectedProgram, d.ProtectionPort} {
		if single != nil {
			n++
		}
	}
	return n
}

// Bundle is the result of loading an uploaded file: a description together
// with the credentials and state that came with it.
type Bundle struct {
	Description *DeviceDescription
	PSK         string
	Services    map[string]int
	State       []map[string]any
}

// Parse decodes and validates a JSON device description.
func Parse(data []byte) (*DeviceDescription, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var desc DeviceDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return &desc, nil
}

// Int64 returns a pointer to v. Useful for building descriptions in code.
func Int64(v int64) *int64 {
	return &v
}

// String returns a pointer to v.
func String(v string) *string {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
