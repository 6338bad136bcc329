// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"encoding/binary"
	"fmt"
	"io"
)

// pixelFormatSize is the encoded length of a PIXEL_FORMAT structure.
const pixelFormatSize = 16

// PixelFormat describes how pixel values are laid out on the wire
// (RFC 6143 Section 7.4).
type PixelFormat struct {
	// BPP is the number of bits per pixel: 8, 16 or 32.
	BPP uint8

	// Depth is the number of useful bits within each pixel.
	Depth uint8

	// BigEndian is true when multi-byte pixels are sent most significant byte first.
	BigEndian bool

	// TrueColor is true when pixel values encode RGB directly rather than
	// indexing the colour map.
	TrueColor bool

	RedMax   uint16
	GreenMax uint16
	BlueMax  uint16

	RedShift   uint8
	GreenShift uint8
	BlueShift  uint8
}

// BytesPerPixel returns the wire size of one pixel.
func (pf *PixelFormat) BytesPerPixel() int {
	return int(pf.BPP / 8)
}

// readPixelFormat decodes a PIXEL_FORMAT structure from r.
func readPixelFormat(r io.Reader, result *PixelFormat) error {
	var raw [pixelFormatSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return networkError("readPixelFormat", "failed to read pixel format data", err)
	}

	*result = PixelFormat{
		BPP:       raw[0],
		Depth:     raw[1],
		BigEndian: raw[2] != 0,
		TrueColor: raw[3] != 0,
	}
	if result.TrueColor {
		result.RedMax = binary.BigEndian.Uint16(raw[4:6])
		result.GreenMax = binary.BigEndian.Uint16(raw[6:8])
		result.BlueMax = binary.BigEndian.Uint16(raw[8:10])
		result.RedShift = raw[10]
		result.GreenShift = raw[11]
		result.BlueShift = raw[12]
	}
	return nil
}

// writePixelFormat encodes format as a PIXEL_FORMAT structure. The three
// trailing padding bytes are zero.
func writePixelFormat(format *PixelFormat) []byte {
	raw := make([]byte, pixelFormatSize)
	raw[0] = format.BPP
	raw[1] = format.Depth
	if format.BigEndian {
		raw[2] = 1
	}
	if format.TrueColor {
		raw[3] = 1
		binary.BigEndian.PutUint16(raw[4:6], format.RedMax)
		binary.BigEndian.PutUint16(raw[6:8], format.GreenMax)
		binary.BigEndian.PutUint16(raw[8:10], format.BlueMax)
		raw[10] = format.RedShift
		raw[11] = format.GreenShift
		raw[12] = format.BlueShift
	}
	return raw
}

// PixelFormatValidationError describes why a pixel format was rejected.
type PixelFormatValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *PixelFormatValidationError) Error() string {
	return fmt.Sprintf("pixel format validation failed for field %s: %s (value: %v)",
		e.Field, e.Message, e.Value)
}

// Validate checks that pf describes a format the pixel decoder can read.
func (pf *PixelFormat) Validate() error {
	if pf.BPP != 8 && pf.BPP != 16 && pf.BPP != 32 {
		return &PixelFormatValidationError{Field: "BPP", Value: pf.BPP, Message: "bits per pixel must be 8, 16, or 32"}
	}
	if pf.Depth == 0 {
		return &PixelFormatValidationError{Field: "Depth", Value: pf.Depth, Message: "color depth cannot be zero"}
	}
	if pf.Depth > pf.BPP {
		return &PixelFormatValidationError{Field: "Depth", Value: pf.Depth,
			Message: fmt.Sprintf("color depth (%d) cannot exceed bits per pixel (%d)", pf.Depth, pf.BPP)}
	}
	if !pf.TrueColor {
		return nil
	}

	if pf.RedMax == 0 && pf.GreenMax == 0 && pf.BlueMax == 0 {
		return &PixelFormatValidationError{Field: "ColorMax",
			Value:   fmt.Sprintf("R:%d G:%d B:%d", pf.RedMax, pf.GreenMax, pf.BlueMax),
			Message: "all color maximums cannot be zero in true color mode"}
	}

	maxShift := pf.BPP - 1
	shifts := []struct {
		name  string
		value uint8
	}{
		{"RedShift", pf.RedShift},
		{"GreenShift", pf.GreenShift},
		{"BlueShift", pf.BlueShift},
	}
	for _, s := range shifts {
		if s.value > maxShift {
			return &PixelFormatValidationError{Field: s.name, Value: s.value,
				Message: fmt.Sprintf("shift exceeds maximum for %d-bit pixels", pf.BPP)}
		}
	}

	bits := countBits(pf.RedMax) + countBits(pf.GreenMax) + countBits(pf.BlueMax)
	if bits > pf.Depth {
		return &PixelFormatValidationError{Field: "ColorBits", Value: bits,
			Message: fmt.Sprintf("total color component bits (%d) exceed color depth (%d)", bits, pf.Depth)}
	}
	return nil
}

// countBits returns the number of bits needed to represent maxVal.
func countBits(maxVal uint16) uint8 {
	bits := uint8(0)
	for maxVal > 0 {
		maxVal >>= 1
		bits++
	}
	return bits
}

// Common pixel formats. PixelFormat32BitRGBA is what Dial negotiates.
var (
	PixelFormat32BitRGBA = &PixelFormat{
		BPP:        32,
		Depth:      24,
		BigEndian:  false,
		TrueColor:  true,
		RedMax:     255,
		GreenMax:   255,
		BlueMax:    255,
		RedShift:   0,
		GreenShift: 8,
		BlueShift:  16,
	}

	PixelFormat16BitRGB565 = &PixelFormat{
		BPP:        16,
		Depth:      16,
		BigEndian:  false,
		TrueColor:  true,
		RedMax:     31,
		GreenMax:   63,
		BlueMax:    31,
		RedShift:   11,
		GreenShift: 5,
		BlueShift:  0,
	}

	PixelFormat8BitIndexed = &PixelFormat{
		BPP:       8,
		Depth:     8,
		BigEndian: false,
		TrueColor: false,
	}
)
