// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidation_ProtocolVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{"valid 3.8", "RFB 003.008\n", false},
		{"valid 3.3", "RFB 003.003\n", false},
		{"too short", "RFB 003.008", true},
		{"too long", "RFB 003.008\n\n", true},
		{"wrong prefix", "VNC 003.008\n", true},
		{"missing newline", "RFB 003.008 ", true},
		{"missing dot", "RFB 003-008\n", true},
		{"non-digit", "RFB 00a.008\n", true},
	}

	iv := newInputValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := iv.ValidateProtocolVersion(tt.version)
			if tt.wantErr {
				assert.True(t, IsVNCError(err, ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidation_SecurityTypes(t *testing.T) {
	iv := newInputValidator()
	assert.NoError(t, iv.ValidateSecurityTypes([]uint8{1, 2}))
	assert.Error(t, iv.ValidateSecurityTypes(nil))
	assert.Error(t, iv.ValidateSecurityTypes([]uint8{1, 0}))
}

func TestValidation_FramebufferDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint16
		wantErr       bool
	}{
		{"typical", 1024, 768, false},
		{"maximum", 32768, 32768, false},
		{"zero width", 0, 768, true},
		{"zero height", 1024, 0, true},
		{"too large", 32769, 10, true},
	}

	iv := newInputValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := iv.ValidateFramebufferDimensions(tt.width, tt.height)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestValidation_Rectangle(t *testing.T) {
	tests := []struct {
		name                string
		x, y, width, height uint16
		wantErr             bool
	}{
		{"inside", 0, 0, 10, 10, false},
		{"touches edge", 90, 90, 10, 10, false},
		{"zero width", 0, 0, 0, 10, true},
		{"past right", 95, 0, 10, 10, true},
		{"past bottom", 0, 95, 10, 10, true},
		{"overflow", 65535, 0, 10, 10, true},
	}

	iv := newInputValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := iv.ValidateRectangle(tt.x, tt.y, tt.width, tt.height, 100, 100)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestValidation_PixelFormat(t *testing.T) {
	iv := newInputValidator()
	assert.NoError(t, iv.ValidatePixelFormat(PixelFormat32BitRGBA))
	assert.True(t, IsVNCError(iv.ValidatePixelFormat(nil), ErrValidation))
	assert.True(t, IsVNCError(iv.ValidatePixelFormat(&PixelFormat{BPP: 12}), ErrValidation))
}

func TestValidation_EncodingType(t *testing.T) {
	iv := newInputValidator()
	for _, enc := range DefaultEncodings() {
		assert.NoError(t, iv.ValidateEncodingType(enc.Type()))
	}
	assert.Error(t, iv.ValidateEncodingType(1000001))
	assert.Error(t, iv.ValidateEncodingType(-1000001))
}

func TestValidation_TextData(t *testing.T) {
	iv := newInputValidator()
	assert.NoError(t, iv.ValidateTextData("hello\tworld\r\n", 100))
	assert.Error(t, iv.ValidateTextData(strings.Repeat("a", 11), 10))
	assert.Error(t, iv.ValidateTextData("bad\x00byte", 100))
	assert.Error(t, iv.ValidateTextData(string([]byte{0xff, 0xfe}), 100))
}

func TestValidation_MessageLength(t *testing.T) {
	iv := newInputValidator()
	assert.NoError(t, iv.ValidateMessageLength(0, 10))
	assert.NoError(t, iv.ValidateMessageLength(10, 10))
	assert.Error(t, iv.ValidateMessageLength(11, 10))
}

func TestValidation_ColorMapEntries(t *testing.T) {
	iv := newInputValidator()
	assert.NoError(t, iv.ValidateColorMapEntries(0, 256, ColorMapSize))
	assert.Error(t, iv.ValidateColorMapEntries(0, 0, ColorMapSize))
	assert.Error(t, iv.ValidateColorMapEntries(255, 2, ColorMapSize))
	assert.Error(t, iv.ValidateColorMapEntries(65535, 2, ColorMapSize))
}

func TestValidation_KeySymbol(t *testing.T) {
	iv := newInputValidator()
	for _, char := range SupportedCharacters() {
		stroke, err := EncodeKey(char)
		assert.NoError(t, err)
		assert.NoError(t, iv.ValidateKeySymbol(uint32(stroke.Key)))
	}
	assert.NoError(t, iv.ValidateKeySymbol(uint32(KeyShiftL)))
	assert.Error(t, iv.ValidateKeySymbol(0))
	assert.Error(t, iv.ValidateKeySymbol(0x2000000))
}

func TestValidation_SanitizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"tab\tand\nnewline", "tab\tand\nnewline"},
		{"bell\x07here", "bell here"},
		{"del\x7f", "del�"},
	}

	iv := newInputValidator()
	for _, tt := range tests {
		assert.Equal(t, tt.expected, iv.SanitizeText(tt.input))
	}
}
