// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_CodeString(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected string
	}{
		{ErrProtocol, "protocol"},
		{ErrAuthentication, "authentication"},
		{ErrEncoding, "encoding"},
		{ErrNetwork, "network"},
		{ErrConfiguration, "configuration"},
		{ErrTimeout, "timeout"},
		{ErrValidation, "validation"},
		{ErrUnsupported, "unsupported"},
		{ErrUnsupportedCharacter, "unsupported character"},
		{ErrInvalidRate, "invalid rate"},
		{ErrConnection, "connection"},
		{ErrNoResolution, "no resolution"},
		{ErrMalformedRectangle, "malformed rectangle"},
		{ErrLockContention, "lock contention"},
		{ErrorCode(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.code.String())
		})
	}
}

func TestErrors_VNCErrorError(t *testing.T) {
	tests := []struct {
		name     string
		vncErr   *VNCError
		expected string
	}{
		{
			name: "error with underlying error",
			vncErr: &VNCError{
				Op:      "handshake",
				Code:    ErrProtocol,
				Message: "invalid version",
				Err:     errors.New("connection refused"),
			},
			expected: "vnc protocol: handshake: invalid version: connection refused",
		},
		{
			name: "error without underlying error",
			vncErr: &VNCError{
				Op:      "Capture",
				Code:    ErrNoResolution,
				Message: "expected resolution announcement",
			},
			expected: "vnc no resolution: Capture: expected resolution announcement",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.vncErr.Error())
		})
	}
}

func TestErrors_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewVNCError("test", ErrNetwork, "test message", underlying)

	assert.Same(t, underlying, errors.Unwrap(err))
	assert.ErrorIs(t, err, underlying)

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsVNCError(wrapped, ErrNetwork))
	assert.Equal(t, ErrNetwork, GetErrorCode(wrapped))
}

func TestErrors_Is(t *testing.T) {
	err := NewVNCError("Capture", ErrConnection, "peer failed", nil)

	assert.True(t, errors.Is(err, &VNCError{Op: "Capture", Code: ErrConnection}))
	assert.False(t, errors.Is(err, &VNCError{Op: "Capture", Code: ErrNetwork}))
	assert.False(t, errors.Is(err, &VNCError{Op: "Dial", Code: ErrConnection}))
}

func TestErrors_IsVNCError(t *testing.T) {
	err := validationError("op", "bad", nil)

	assert.True(t, IsVNCError(err))
	assert.True(t, IsVNCError(err, ErrValidation))
	assert.True(t, IsVNCError(err, ErrNetwork, ErrValidation))
	assert.False(t, IsVNCError(err, ErrNetwork))
	assert.False(t, IsVNCError(errors.New("plain")))
	assert.False(t, IsVNCError(nil))
}

func TestErrors_GetErrorCode(t *testing.T) {
	assert.Equal(t, ErrInvalidRate, GetErrorCode(invalidRateError("op", "zero")))
	assert.Equal(t, ErrorCode(-1), GetErrorCode(errors.New("plain")))
}

func TestErrors_WrapError(t *testing.T) {
	assert.NoError(t, WrapError("op", ErrNetwork, "msg", nil))

	err := WrapError("op", ErrNetwork, "msg", errors.New("boom"))
	require.Error(t, err)
	assert.Equal(t, "vnc network: op: msg: boom", err.Error())
}

func TestErrors_CharacterError(t *testing.T) {
	err := unsupportedCharacterError("EncodeKey", 'é')

	var charErr *CharacterError
	require.True(t, errors.As(err, &charErr))
	assert.Equal(t, 'é', charErr.Char)
	assert.Equal(t, `no key mapping for character 'é' (U+00E9)`, charErr.Error())
}
