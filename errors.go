package reflexio

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a type or enum registration is invalid.
	ErrConfiguration = errors.New("reflexio: configuration error")
	// ErrTypeMismatch is returned when a value does not fit a field's type.
	ErrTypeMismatch = errors.New("reflexio: type mismatch")
	// ErrBounds is returned for out-of-range element access.
	ErrBounds = errors.New("reflexio: index out of range")
	// ErrFormat is returned when encoded bytes are malformed or truncated.
	ErrFormat = errors.New("reflexio: malformed encoding")
	// ErrUnsupportedField is returned when an operation cannot handle a field.
	ErrUnsupportedField = errors.New("reflexio: unsupported field")
	// ErrUnknownField is returned for lookups of undeclared field names.
	ErrUnknownField = errors.New("reflexio: unknown field")
)

// ConfigError describes a rejected registration.
//
// It unwraps to ErrConfiguration.
type ConfigError struct {
	Type   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("reflexio: configuration error: %s.%s: %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("reflexio: configuration error: %s: %s", e.Type, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// TypeMismatchError reports a value rejected by a field setter.
//
// It unwraps to ErrTypeMismatch.
type TypeMismatchError struct {
	Field  string
	Want   string
	Got    any
	Reason string
}

func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("reflexio: type mismatch: field %q wants %s, got %T", e.Field, e.Want, e.Got)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// BoundsError reports an element index outside [0, Len).
//
// It unwraps to ErrBounds.
type BoundsError struct {
	Field string
	Index int
	Len   int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("reflexio: index %d out of range for field %q of length %d", e.Index, e.Field, e.Len)
}

func (e *BoundsError) Unwrap() error { return ErrBounds }

// FormatError reports malformed input at a byte offset.
//
// It unwraps to ErrFormat.
type FormatError struct {
	Type   string
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("reflexio: malformed %s encoding at offset %d: %s", e.Type, e.Offset, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// UnsupportedFieldError reports a field an operation cannot represent,
// such as a variable-length field in a fixed-stride export.
//
// It unwraps to ErrUnsupportedField.
type UnsupportedFieldError struct {
	Type   string
	Field  string
	Reason string
}

func (e *UnsupportedFieldError) Error() string {
	return fmt.Sprintf("reflexio: unsupported field %s.%s: %s", e.Type, e.Field, e.Reason)
}

func (e *UnsupportedFieldError) Unwrap() error { return ErrUnsupportedField }

func unknownField(typ, name string) error {
	return fmt.Errorf("%w: %s has no field %q", ErrUnknownField, typ, name)
}
