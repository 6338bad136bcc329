// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"fmt"
	"math"
	"unicode"
	"unicode/utf8"
)

// InputValidator checks values read from or sent to the peer before they
// are trusted.
type InputValidator struct{}

func newInputValidator() *InputValidator {
	return &InputValidator{}
}

// ValidateProtocolVersion checks the 12-byte "RFB xxx.yyy\n" greeting.
func (iv *InputValidator) ValidateProtocolVersion(version string) error {
	if len(version) != pvLen {
		return validationError("InputValidator.ValidateProtocolVersion",
			fmt.Sprintf("protocol version must be exactly %d characters, got %d", pvLen, len(version)), nil)
	}
	if version[:4] != "RFB " {
		return validationError("InputValidator.ValidateProtocolVersion",
			"protocol version must start with 'RFB '", nil)
	}
	if version[11] != '\n' {
		return validationError("InputValidator.ValidateProtocolVersion",
			"protocol version must end with newline", nil)
	}
	if version[7] != '.' {
		return validationError("InputValidator.ValidateProtocolVersion",
			"protocol version format must be XXX.YYY", nil)
	}
	for i, char := range version[4:11] {
		if i == 3 {
			continue
		}
		if !unicode.IsDigit(char) {
			return validationError("InputValidator.ValidateProtocolVersion",
				"protocol version must contain only digits and dot", nil)
		}
	}
	return nil
}

// ValidateSecurityTypes rejects an empty list and the invalid type 0.
func (iv *InputValidator) ValidateSecurityTypes(securityTypes []uint8) error {
	if len(securityTypes) == 0 {
		return validationError("InputValidator.ValidateSecurityTypes",
			"security types array cannot be empty", nil)
	}
	for i, secType := range securityTypes {
		if secType == 0 {
			return validationError("InputValidator.ValidateSecurityTypes",
				fmt.Sprintf("security type 0 at index %d indicates connection failure", i), nil)
		}
	}
	return nil
}

// ValidateFramebufferDimensions checks a screen size announced by the peer.
func (iv *InputValidator) ValidateFramebufferDimensions(width, height uint16) error {
	if width == 0 || height == 0 {
		return validationError("InputValidator.ValidateFramebufferDimensions",
			"framebuffer dimensions cannot be zero", nil)
	}

	const maxDimension = 32768
	if width > maxDimension || height > maxDimension {
		return validationError("InputValidator.ValidateFramebufferDimensions",
			fmt.Sprintf("framebuffer dimensions too large: %dx%d (max %d)", width, height, maxDimension), nil)
	}
	return nil
}

// ValidateRectangle checks that a non-empty rectangle lies within a
// fbWidth×fbHeight area.
func (iv *InputValidator) ValidateRectangle(x, y, width, height, fbWidth, fbHeight uint16) error {
	if width == 0 || height == 0 {
		return validationError("InputValidator.ValidateRectangle",
			"rectangle dimensions cannot be zero", nil)
	}
	if x > math.MaxUint16-width || y > math.MaxUint16-height {
		return validationError("InputValidator.ValidateRectangle",
			"rectangle coordinates would cause integer overflow", nil)
	}
	if x+width > fbWidth || y+height > fbHeight {
		return validationError("InputValidator.ValidateRectangle",
			fmt.Sprintf("rectangle (%d,%d,%d,%d) exceeds framebuffer bounds (%d,%d)",
				x, y, width, height, fbWidth, fbHeight), nil)
	}
	return nil
}

// ValidatePixelFormat checks pf for a format the decoder supports.
func (iv *InputValidator) ValidatePixelFormat(pf *PixelFormat) error {
	if pf == nil {
		return validationError("InputValidator.ValidatePixelFormat", "pixel format cannot be nil", nil)
	}
	if err := pf.Validate(); err != nil {
		return validationError("InputValidator.ValidatePixelFormat", "unsupported pixel format", err)
	}
	return nil
}

// ValidateEncodingType rejects encoding numbers outside any registered range.
func (iv *InputValidator) ValidateEncodingType(encodingType int32) error {
	if encodingType > 1000000 || encodingType < -1000000 {
		return validationError("InputValidator.ValidateEncodingType",
			fmt.Sprintf("encoding type out of range: %d", encodingType), nil)
	}
	return nil
}

// ValidateTextData checks length, UTF-8 validity and control characters.
func (iv *InputValidator) ValidateTextData(text string, maxLength int) error {
	if len(text) > maxLength {
		return validationError("InputValidator.ValidateTextData",
			fmt.Sprintf("text length %d exceeds maximum %d", len(text), maxLength), nil)
	}
	if !utf8.ValidString(text) {
		return validationError("InputValidator.ValidateTextData",
			"text contains invalid UTF-8 sequences", nil)
	}
	for i, char := range text {
		if char < 32 && char != '\t' && char != '\n' && char != '\r' {
			return validationError("InputValidator.ValidateTextData",
				fmt.Sprintf("text contains invalid control character at position %d", i), nil)
		}
	}
	return nil
}

// ValidateMessageLength checks a length prefix against maxLength.
func (iv *InputValidator) ValidateMessageLength(length uint32, maxLength uint32) error {
	if length > maxLength {
		return validationError("InputValidator.ValidateMessageLength",
			fmt.Sprintf("message length %d exceeds maximum %d", length, maxLength), nil)
	}
	return nil
}

// ValidateColorMapEntries checks a SetColorMapEntries range.
func (iv *InputValidator) ValidateColorMapEntries(firstColor, numColors, maxColors uint16) error {
	if numColors == 0 {
		return validationError("InputValidator.ValidateColorMapEntries",
			"number of colors cannot be zero", nil)
	}
	if firstColor > math.MaxUint16-numColors {
		return validationError("InputValidator.ValidateColorMapEntries",
			"color map range would cause integer overflow", nil)
	}
	if firstColor+numColors > maxColors {
		return validationError("InputValidator.ValidateColorMapEntries",
			fmt.Sprintf("color map range (%d-%d) exceeds maximum colors %d",
				firstColor, firstColor+numColors-1, maxColors), nil)
	}
	return nil
}

// ValidateKeySymbol rejects zero and values beyond the keysym space.
func (iv *InputValidator) ValidateKeySymbol(keysym uint32) error {
	if keysym == 0 {
		return validationError("InputValidator.ValidateKeySymbol", "keysym cannot be zero", nil)
	}
	if keysym > 0x1FFFFFF {
		return validationError("InputValidator.ValidateKeySymbol",
			fmt.Sprintf("keysym value too large: 0x%X", keysym), nil)
	}
	return nil
}

// SanitizeText replaces control and unprintable characters so the text is
// safe to log.
func (iv *InputValidator) SanitizeText(text string) string {
	if text == "" {
		return text
	}

	sanitized := make([]rune, 0, len(text))
	for _, r := range text {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			sanitized = append(sanitized, r)
		case r < 32:
			sanitized = append(sanitized, ' ')
		case unicode.IsPrint(r):
			sanitized = append(sanitized, r)
		default:
			sanitized = append(sanitized, '�')
		}
	}
	return string(sanitized)
}
