// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"io"
)

// DesktopSizePseudoEncoding announces a screen resize. The rectangle's width
// and height are the new size; it carries no payload.
type DesktopSizePseudoEncoding struct {
	Width  uint16
	Height uint16
}

// Type returns -223.
func (*DesktopSizePseudoEncoding) Type() int32 {
	return -223
}

// IsPseudo returns true.
func (*DesktopSizePseudoEncoding) IsPseudo() bool {
	return true
}

// Read validates the announced size.
func (*DesktopSizePseudoEncoding) Read(c *ClientConn, rect *Rectangle, r io.Reader) (Encoding, error) {
	if err := newInputValidator().ValidateFramebufferDimensions(rect.Width, rect.Height); err != nil {
		return nil, validationError("DesktopSizePseudoEncoding.Read", "invalid desktop size", err)
	}
	return &DesktopSizePseudoEncoding{
		Width:  rect.Width,
		Height: rect.Height,
	}, nil
}

// Handle records the new size on the connection so later rectangles are
// checked against it.
func (desktop *DesktopSizePseudoEncoding) Handle(c *ClientConn, rect *Rectangle) error {
	oldWidth, oldHeight := c.GetFrameBufferSize()

	c.mu.Lock()
	c.FrameBufferWidth = desktop.Width
	c.FrameBufferHeight = desktop.Height
	c.mu.Unlock()

	c.logger.Info("Desktop size changed",
		Field{Key: "old_width", Value: oldWidth},
		Field{Key: "old_height", Value: oldHeight},
		Field{Key: "new_width", Value: desktop.Width},
		Field{Key: "new_height", Value: desktop.Height})

	return nil
}

// event returns the resolution announcement for this resize.
func (desktop *DesktopSizePseudoEncoding) event() PeerEvent {
	return ResolutionEvent{Width: int(desktop.Width), Height: int(desktop.Height)}
}
