// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"fmt"
)

// BlendPixel lays overlay over base using the overlay's alpha as weight:
// base*(1-a) + overlay*a per colour channel, rounded to nearest. The result
// is fully opaque. An alpha of 255 yields overlay's colour exactly and an
// alpha of 0 yields base's colour exactly.
func BlendPixel(base, overlay [4]byte) [4]byte {
	a := uint32(overlay[3])
	var out [4]byte
	for i := 0; i < 3; i++ {
		out[i] = byte((uint32(base[i])*(255-a) + uint32(overlay[i])*a + 127) / 255)
	}
	out[3] = 0xff
	return out
}

// validateRect checks that r carries exactly Width*Height pixels and lies
// within res.
func validateRect(op string, r RectUpdate, res Resolution) error {
	if r.Width < 0 || r.Height < 0 {
		return malformedRectangleError(op, fmt.Sprintf("negative size %dx%d", r.Width, r.Height))
	}
	// Subtract rather than add: X+Width may overflow.
	if r.X < 0 || r.Y < 0 || r.Width > res.Width || r.Height > res.Height ||
		r.X > res.Width-r.Width || r.Y > res.Height-r.Height {
		return malformedRectangleError(op, fmt.Sprintf("%dx%d rectangle at (%d,%d) exceeds %s screen",
			r.Width, r.Height, r.X, r.Y, res))
	}
	if want := r.Width * r.Height * BytesPerPixel; len(r.Pixels) != want {
		return malformedRectangleError(op, fmt.Sprintf("%dx%d rectangle at (%d,%d) carries %d bytes, want %d",
			r.Width, r.Height, r.X, r.Y, len(r.Pixels), want))
	}
	return nil
}

// stitch copies r's pixels into f at r's position.
func stitch(f *Frame, r RectUpdate) {
	rowBytes := r.Width * BytesPerPixel
	stride := f.Width * BytesPerPixel
	for row := 0; row < r.Height; row++ {
		dst := (r.Y+row)*stride + r.X*BytesPerPixel
		src := row * rowBytes
		copy(f.Pix[dst:dst+rowBytes], r.Pixels[src:src+rowBytes])
	}
}

// blendRect alpha-blends r's pixels onto f at r's position.
func blendRect(f *Frame, r RectUpdate) {
	stride := f.Width * BytesPerPixel
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			dst := (r.Y+row)*stride + (r.X+col)*BytesPerPixel
			src := (row*r.Width + col) * BytesPerPixel
			var base, overlay [4]byte
			copy(base[:], f.Pix[dst:dst+4])
			copy(overlay[:], r.Pixels[src:src+4])
			out := BlendPixel(base, overlay)
			copy(f.Pix[dst:dst+4], out[:])
		}
	}
}

// Assemble builds a frame of size res from rects, copied in order so later
// rectangles win where they overlap. Pixels no rectangle covers stay zero.
func Assemble(res Resolution, rects []RectUpdate) (*Frame, error) {
	if res.Width <= 0 || res.Height <= 0 {
		return nil, validationError("Assemble", fmt.Sprintf("invalid resolution %s", res), nil)
	}
	for _, r := range rects {
		if err := validateRect("Assemble", r, res); err != nil {
			return nil, err
		}
	}
	frame := NewFrame(res.Width, res.Height)
	for _, r := range rects {
		stitch(frame, r)
	}
	return frame, nil
}

// Composite blends rects onto a copy of base in order. base is not modified.
func Composite(base *Frame, rects []RectUpdate) (*Frame, error) {
	if base == nil {
		return nil, validationError("Composite", "base frame cannot be nil", nil)
	}
	res := base.Resolution()
	for _, r := range rects {
		if err := validateRect("Composite", r, res); err != nil {
			return nil, err
		}
	}
	frame := base.Clone()
	for _, r := range rects {
		blendRect(frame, r)
	}
	return frame, nil
}
