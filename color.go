// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

// ColorMapSize is the number of entries in an indexed-colour palette.
const ColorMapSize = 256

// Color is an RGB colour with 16-bit components, the precision used by
// SetColorMapEntries. True-colour pixels are scaled up to this range.
type Color struct {
	// R is the red color component value (0-65535).
	R uint16

	// G is the green color component value (0-65535).
	G uint16

	// B is the blue color component value (0-65535).
	B uint16
}

// RGBA returns the colour as 8-bit RGBA bytes, fully opaque.
func (c Color) RGBA() [4]byte {
	return [4]byte{byte(c.R >> 8), byte(c.G >> 8), byte(c.B >> 8), 0xff}
}

// put writes c as RGBA into dst, which must hold at least four bytes.
func (c Color) put(dst []byte) {
	rgba := c.RGBA()
	copy(dst, rgba[:])
}

// scaleComponent widens a component in the range 0..max to 0..65535.
func scaleComponent(value, max uint16) uint16 {
	if max == 0 {
		return 0
	}
	return uint16(uint32(value) * 0xffff / uint32(max)) // #nosec G115 - value <= max
}

// fillRGBA paints a w×h area at (x, y) of an RGBA buffer with the given
// stride, all in pixels.
func fillRGBA(buf []byte, stride, x, y, w, h int, c Color) {
	rgba := c.RGBA()
	for row := y; row < y+h; row++ {
		offset := (row*stride + x) * BytesPerPixel
		for col := 0; col < w; col++ {
			copy(buf[offset:offset+BytesPerPixel], rgba[:])
			offset += BytesPerPixel
		}
	}
}

// Common colours.
var (
	ColorBlack = Color{R: 0, G: 0, B: 0}
	ColorWhite = Color{R: 65535, G: 65535, B: 65535}
	ColorRed   = Color{R: 65535, G: 0, B: 0}
	ColorGreen = Color{R: 0, G: 65535, B: 0}
	ColorBlue  = Color{R: 0, G: 0, B: 65535}
)
