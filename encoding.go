// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"io"
)

// Encoding decodes one rectangle of a FramebufferUpdate message.
type Encoding interface {
	// Type returns the encoding number sent in SetEncodings.
	Type() int32

	// Read decodes the rectangle payload from r and returns a new Encoding
	// holding the result.
	Read(*ClientConn, *Rectangle, io.Reader) (Encoding, error)
}

// PixelEncoding is a decoded encoding that carries screen content.
type PixelEncoding interface {
	Encoding

	// RGBA renders the rectangle as width*height RGBA pixels.
	RGBA(width, height int) []byte
}

// PseudoEncoding is an encoding that carries connection state rather than
// pixels.
type PseudoEncoding interface {
	Encoding

	IsPseudo() bool
	Handle(*ClientConn, *Rectangle) error
}

// DefaultEncodings returns the encodings Dial negotiates, in preference order.
func DefaultEncodings() []Encoding {
	return []Encoding{
		&HextileEncoding{},
		&RREEncoding{},
		&RawEncoding{},
		&DesktopSizePseudoEncoding{},
	}
}
