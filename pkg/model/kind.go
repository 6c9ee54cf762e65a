package model

// Kind identifies the category an entity was declared in.
type Kind uint8

const (
	KindStatus Kind = iota
	KindSetting
	KindEvent
	KindCommand
	KindOption
	KindProgram
	KindActiveProgram
	KindSelectedProgram
	KindProtectionPort
)

var kindNames = map[Kind]string{
	KindStatus:          "status",
	KindSetting:         "setting",
	KindEvent:           "event",
	KindCommand:         "command",
	KindOption:          "option",
	KindProgram:         "program",
	KindActiveProgram:   "activeProgram",
	KindSelectedProgram: "selectedProgram",
	KindProtectionPort:  "protectionPort",
}

// String returns the description category name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Capability is a bitmap of the optional attribute groups an entity carries.
type Capability uint8

const (
	// CapAccess adds the access level.
	CapAccess Capability = 1 << iota

	// CapAvailable adds the availability flag.
	CapAvailable

	// CapRange adds min, max and step.
	CapRange
)

// Has returns true if all bits of c are set.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Capabilities returns the capability set of the kind.
func (k Kind) Capabilities() Capability {
	switch k {
	case KindStatus, KindSetting, KindCommand, KindOption:
		return CapAccess | CapAvailable | CapRange
	case KindProgram:
		return CapAvailable
	case KindActiveProgram, KindSelectedProgram, KindProtectionPort:
		return CapAccess | CapAvailable
	default:
		return 0
	}
}

// defaultAvailable returns the availability a kind starts with when its
// description does not declare one. nil means "absent".
func (k Kind) defaultAvailable() *bool {
	switch k {
	case KindActiveProgram, KindSelectedProgram:
		v := true
		return &v
	case KindProtectionPort:
		v := false
		return &v
	default:
		return nil
	}
}
