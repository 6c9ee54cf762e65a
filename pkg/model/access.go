package model

import (
	"fmt"
	"strings"
)

// Access is the access level of an entity.
type Access string

const (
	AccessNone       Access = "none"
	AccessRead       Access = "read"
	AccessReadWrite  Access = "readwrite"
	AccessWriteOnly  Access = "writeonly"
	AccessReadStatic Access = "readstatic"
)

// ParseAccess parses an access level case-insensitively ("readWrite" and
// "READWRITE" are both AccessReadWrite).
func ParseAccess(v any) (Access, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrInvalidAccess, v)
	}
	switch a := Access(strings.ToLower(strings.TrimSpace(s))); a {
	case AccessNone, AccessRead, AccessReadWrite, AccessWriteOnly, AccessReadStatic:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAccess, s)
	}
}

// String returns the upper-case form used in dumps and description changes.
func (a Access) String() string {
	return strings.ToUpper(string(a))
}
