// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"io"
)

// RawEncoding is the uncompressed encoding (RFC 6143 Section 7.7.1). Every
// server supports it.
type RawEncoding struct {
	// Pixels holds the rectangle as RGBA bytes.
	Pixels []byte
}

// Type returns 0.
func (*RawEncoding) Type() int32 {
	return 0
}

// Read decodes width*height pixels in row-major order.
func (*RawEncoding) Read(c *ClientConn, rect *Rectangle, r io.Reader) (Encoding, error) {
	count := int(rect.Width) * int(rect.Height)
	pixels, err := c.pixelReader().ReadRGBA(r, count)
	if err != nil {
		return nil, encodingError("RawEncoding.Read", "failed to read pixel data", err)
	}
	return &RawEncoding{Pixels: pixels}, nil
}

// RGBA returns the decoded pixels.
func (e *RawEncoding) RGBA(width, height int) []byte {
	return e.Pixels
}
