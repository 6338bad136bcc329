// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxRRESubrects bounds the subrectangle count accepted in one RRE rectangle.
const maxRRESubrects = 1000000

// RREEncoding is rise-and-run-length encoding (RFC 6143 Section 7.7.3): a
// background colour overlaid with solid subrectangles.
type RREEncoding struct {
	BackgroundColor Color
	Subrectangles   []RRESubrectangle
}

// RRESubrectangle is a solid area relative to the enclosing rectangle.
type RRESubrectangle struct {
	Color  Color
	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
}

// Type returns 2.
func (*RREEncoding) Type() int32 {
	return 2
}

// Read decodes the subrectangle count, background and subrectangles.
func (*RREEncoding) Read(c *ClientConn, rect *Rectangle, r io.Reader) (Encoding, error) {
	validator := newInputValidator()
	pixels := c.pixelReader()

	var numSubrects uint32
	if err := binary.Read(r, binary.BigEndian, &numSubrects); err != nil {
		return nil, encodingError("RREEncoding.Read", "failed to read number of subrectangles", err)
	}
	if numSubrects > maxRRESubrects {
		return nil, encodingError("RREEncoding.Read",
			fmt.Sprintf("too many subrectangles: %d (max %d)", numSubrects, maxRRESubrects), nil)
	}

	background, err := pixels.ReadPixelColor(r)
	if err != nil {
		return nil, encodingError("RREEncoding.Read", "failed to read background color", err)
	}

	subrects := make([]RRESubrectangle, numSubrects)
	for i := range subrects {
		color, err := pixels.ReadPixelColor(r)
		if err != nil {
			return nil, encodingError("RREEncoding.Read", "failed to read subrectangle color", err)
		}

		var geometry [4]uint16
		if err := binary.Read(r, binary.BigEndian, &geometry); err != nil {
			return nil, encodingError("RREEncoding.Read", "failed to read subrectangle geometry", err)
		}

		sub := RRESubrectangle{Color: color, X: geometry[0], Y: geometry[1], Width: geometry[2], Height: geometry[3]}
		if err := validator.ValidateRectangle(sub.X, sub.Y, sub.Width, sub.Height, rect.Width, rect.Height); err != nil {
			return nil, encodingError("RREEncoding.Read", "invalid subrectangle bounds", err)
		}
		subrects[i] = sub
	}

	return &RREEncoding{
		BackgroundColor: background,
		Subrectangles:   subrects,
	}, nil
}

// RGBA paints the background and then each subrectangle in order.
func (e *RREEncoding) RGBA(width, height int) []byte {
	out := make([]byte, width*height*BytesPerPixel)
	fillRGBA(out, width, 0, 0, width, height, e.BackgroundColor)
	for _, sub := range e.Subrectangles {
		fillRGBA(out, width, int(sub.X), int(sub.Y), int(sub.Width), int(sub.Height), sub.Color)
	}
	return out
}
