// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error categories for driver operations.
type ErrorCode int

const (
	// ErrProtocol indicates a protocol-level error.
	ErrProtocol ErrorCode = iota
	// ErrAuthentication indicates an authentication failure.
	ErrAuthentication
	// ErrEncoding indicates an encoding/decoding error.
	ErrEncoding
	// ErrNetwork indicates a network-related error.
	ErrNetwork
	// ErrConfiguration indicates a configuration error.
	ErrConfiguration
	// ErrTimeout indicates a timeout error.
	ErrTimeout
	// ErrValidation indicates input validation failure.
	ErrValidation
	// ErrUnsupported indicates an unsupported feature or operation.
	ErrUnsupported
	// ErrUnsupportedCharacter indicates a character with no key mapping.
	ErrUnsupportedCharacter
	// ErrInvalidRate indicates a pacing rate that is zero, negative or not finite.
	ErrInvalidRate
	// ErrConnection indicates the peer reported an error or its event stream ended.
	ErrConnection
	// ErrNoResolution indicates the peer did not announce its screen resolution.
	ErrNoResolution
	// ErrMalformedRectangle indicates a rectangle whose payload does not match its geometry.
	ErrMalformedRectangle
	// ErrLockContention indicates the previous-frame lock could not be acquired.
	ErrLockContention
)

// String returns the string representation of the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrProtocol:
		return "protocol"
	case ErrAuthentication:
		return "authentication"
	case ErrEncoding:
		return "encoding"
	case ErrNetwork:
		return "network"
	case ErrConfiguration:
		return "configuration"
	case ErrTimeout:
		return "timeout"
	case ErrValidation:
		return "validation"
	case ErrUnsupported:
		return "unsupported"
	case ErrUnsupportedCharacter:
		return "unsupported character"
	case ErrInvalidRate:
		return "invalid rate"
	case ErrConnection:
		return "connection"
	case ErrNoResolution:
		return "no resolution"
	case ErrMalformedRectangle:
		return "malformed rectangle"
	case ErrLockContention:
		return "lock contention"
	default:
		return "unknown"
	}
}

// VNCError provides structured error information with operation context,
// error codes, and message wrapping.
type VNCError struct {
	Op      string
	Code    ErrorCode
	Message string
	Err     error
}

// Error returns the formatted error message.
func (e *VNCError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vnc %s: %s: %s: %v", e.Code.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("vnc %s: %s: %s", e.Code.String(), e.Op, e.Message)
}

// Unwrap returns the underlying error for error chain unwrapping.
func (e *VNCError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches the target error.
func (e *VNCError) Is(target error) bool {
	var vncErr *VNCError
	if errors.As(target, &vncErr) {
		return e.Code == vncErr.Code && e.Op == vncErr.Op
	}
	return false
}

// NewVNCError creates a new VNCError with the specified parameters.
func NewVNCError(op string, code ErrorCode, message string, err error) *VNCError {
	return &VNCError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapError wraps an existing error with driver-specific context.
// Returns nil if the input error is nil.
func WrapError(op string, code ErrorCode, message string, err error) error {
	if err == nil {
		return nil
	}
	return NewVNCError(op, code, message, err)
}

// IsVNCError checks if an error is a VNCError and optionally matches specific error codes.
// With no codes it matches any VNCError.
func IsVNCError(err error, code ...ErrorCode) bool {
	var vncErr *VNCError
	if !errors.As(err, &vncErr) {
		return false
	}

	if len(code) == 0 {
		return true
	}

	for _, c := range code {
		if vncErr.Code == c {
			return true
		}
	}
	return false
}

// GetErrorCode extracts the error code from a VNCError.
// Returns -1 if the error is not a VNCError.
func GetErrorCode(err error) ErrorCode {
	var vncErr *VNCError
	if errors.As(err, &vncErr) {
		return vncErr.Code
	}
	return ErrorCode(-1)
}

// CharacterError carries the character that could not be mapped to a key.
type CharacterError struct {
	Char rune
}

func (e *CharacterError) Error() string {
	return fmt.Sprintf("no key mapping for character %q (U+%04X)", e.Char, e.Char)
}

func protocolError(op, message string, err error) error {
	return NewVNCError(op, ErrProtocol, message, err)
}

func authenticationError(op, message string, err error) error {
	return NewVNCError(op, ErrAuthentication, message, err)
}

func encodingError(op, message string, err error) error {
	return NewVNCError(op, ErrEncoding, message, err)
}

func networkError(op, message string, err error) error {
	return NewVNCError(op, ErrNetwork, message, err)
}

func configurationError(op, message string, err error) error {
	return NewVNCError(op, ErrConfiguration, message, err)
}

func timeoutError(op, message string, err error) error {
	return NewVNCError(op, ErrTimeout, message, err)
}

func validationError(op, message string, err error) error {
	return NewVNCError(op, ErrValidation, message, err)
}

func unsupportedError(op, message string, err error) error {
	return NewVNCError(op, ErrUnsupported, message, err)
}

func unsupportedCharacterError(op string, r rune) error {
	return NewVNCError(op, ErrUnsupportedCharacter, "character cannot be typed", &CharacterError{Char: r})
}

func invalidRateError(op, message string) error {
	return NewVNCError(op, ErrInvalidRate, message, nil)
}

func connectionError(op, message string, err error) error {
	return NewVNCError(op, ErrConnection, message, err)
}

func noResolutionError(op, message string) error {
	return NewVNCError(op, ErrNoResolution, message, nil)
}

func malformedRectangleError(op, message string) error {
	return NewVNCError(op, ErrMalformedRectangle, message, nil)
}

func lockContentionError(op string, err error) error {
	return NewVNCError(op, ErrLockContention, "previous frame is locked", err)
}
