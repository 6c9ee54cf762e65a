package model

import "errors"

// Construction errors. All of them wrap ErrConstruction.
var (
	ErrConstruction        = errors.New("invalid entity description")
	ErrMissingUID          = wrapErr(ErrConstruction, "missing uid")
	ErrMissingName         = wrapErr(ErrConstruction, "missing name")
	ErrUnknownProtocolType = wrapErr(ErrConstruction, "unknown protocol type")
	ErrDuplicateEntity     = wrapErr(ErrConstruction, "duplicate entity")
)

// Validation errors. All of them wrap ErrValidation.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidEnumValue = wrapErr(ErrValidation, "value not in enumeration")
	ErrInvalidValue     = wrapErr(ErrValidation, "invalid value")
	ErrInvalidAccess    = wrapErr(ErrValidation, "invalid access level")
)

// Appliance errors.
var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrClosed        = errors.New("appliance closed")
)

// kindError is a sentinel that matches itself and its parent with errors.Is.
type kindError struct {
	parent error
	msg    string
}

func wrapErr(parent error, msg string) error {
	return &kindError{parent: parent, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }
