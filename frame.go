// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
)

// Frame is a screen image. Pix holds Width*Height RGBA pixels in row-major
// order with a stride of 4*Width bytes.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*BytesPerPixel),
	}
}

// Resolution returns the frame size.
func (f *Frame) Resolution() Resolution {
	return Resolution{Width: f.Width, Height: f.Height}
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// Image returns an *image.RGBA sharing f's pixels.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// WritePNG encodes f as PNG to w.
func (f *Frame) WritePNG(w io.Writer) error {
	if err := png.Encode(w, f.Image()); err != nil {
		return encodingError("WritePNG", "failed to encode frame", err)
	}
	return nil
}

// SavePNG writes f as a PNG file at path, replacing any existing file.
func (f *Frame) SavePNG(path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return WrapError("SavePNG", ErrConfiguration, fmt.Sprintf("cannot create %s", path), err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = WrapError("SavePNG", ErrConfiguration, fmt.Sprintf("cannot close %s", path), closeErr)
		}
	}()
	return f.WritePNG(file)
}

// FrameFromImage converts img to an RGBA frame whose origin is img's top-left
// corner.
func FrameFromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	frame := NewFrame(bounds.Dx(), bounds.Dy())
	draw.Draw(frame.Image(), frame.Image().Rect, img, bounds.Min, draw.Src)
	return frame
}

// ReadFramePNG decodes a PNG image from r.
func ReadFramePNG(r io.Reader) (*Frame, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, encodingError("ReadFramePNG", "failed to decode PNG", err)
	}
	return FrameFromImage(img), nil
}

// LoadFramePNG reads the PNG file at path.
func LoadFramePNG(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, WrapError("LoadFramePNG", ErrConfiguration, fmt.Sprintf("cannot open %s", path), err)
	}
	defer file.Close()
	return ReadFramePNG(file)
}

// FrameStore holds the previous full frame that composited captures blend
// onto. Access is mutually exclusive; the lock is taken only while pixels are
// copied or blended, never while waiting on the network.
type FrameStore struct {
	sem   chan struct{}
	frame *Frame
}

// NewFrameStore returns a store holding initial, which may be nil.
func NewFrameStore(initial *Frame) *FrameStore {
	return &FrameStore{
		sem:   make(chan struct{}, 1),
		frame: initial,
	}
}

// lock acquires the store. It fails with ErrLockContention if ctx ends while
// another holder keeps the lock.
func (s *FrameStore) lock(ctx context.Context, op string) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	default:
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return lockContentionError(op, ctx.Err())
	}
}

func (s *FrameStore) unlock() {
	<-s.sem
}

// Load returns a copy of the stored frame, or nil when the store is empty.
func (s *FrameStore) Load(ctx context.Context) (*Frame, error) {
	if err := s.lock(ctx, "FrameStore.Load"); err != nil {
		return nil, err
	}
	defer s.unlock()
	if s.frame == nil {
		return nil, nil
	}
	return s.frame.Clone(), nil
}

// Store replaces the stored frame with a copy of frame.
func (s *FrameStore) Store(ctx context.Context, frame *Frame) error {
	if err := s.lock(ctx, "FrameStore.Store"); err != nil {
		return err
	}
	defer s.unlock()
	if frame == nil {
		s.frame = nil
		return nil
	}
	s.frame = frame.Clone()
	return nil
}

// Resolution returns the size of the stored frame; ok is false when empty.
func (s *FrameStore) Resolution(ctx context.Context) (res Resolution, ok bool, err error) {
	if err := s.lock(ctx, "FrameStore.Resolution"); err != nil {
		return Resolution{}, false, err
	}
	defer s.unlock()
	if s.frame == nil {
		return Resolution{}, false, nil
	}
	return s.frame.Resolution(), true, nil
}

// update runs fn on the stored frame under the lock and stores its result.
func (s *FrameStore) update(ctx context.Context, fn func(previous *Frame) (*Frame, error)) (*Frame, error) {
	if err := s.lock(ctx, "FrameStore.update"); err != nil {
		return nil, err
	}
	defer s.unlock()
	next, err := fn(s.frame)
	if err != nil {
		return nil, err
	}
	s.frame = next.Clone()
	return next, nil
}
