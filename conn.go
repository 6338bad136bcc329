// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"context"
	"fmt"
)

// BytesPerPixel is the size of one pixel in every buffer exchanged through
// Conn. Pixels are RGBA, one byte per channel.
const BytesPerPixel = 4

// Conn is the connection to a remote display. ClientConn implements it over
// RFB; tests substitute scripted fakes.
//
// Calls on one Conn are made sequentially by a single session. Errors returned
// by a Conn are passed through to callers unchanged.
type Conn interface {
	// Input sends one input event to the peer.
	Input(ctx context.Context, event InputEvent) error

	// PollEvent returns the next pending peer event without waiting.
	// It returns nil, nil when no event is available.
	PollEvent(ctx context.Context) (PeerEvent, error)

	// RecvEvent waits for the next peer event.
	RecvEvent(ctx context.Context) (PeerEvent, error)

	// Close releases the connection. It must be called at most once.
	Close() error
}

// InputEvent is an event sent to the peer: a KeyEvent or a RefreshRequest.
type InputEvent interface {
	inputEvent()
}

// KeyEvent presses (Down) or releases a key.
type KeyEvent struct {
	Key  Keysym
	Down bool
}

func (KeyEvent) inputEvent() {}

func (e KeyEvent) String() string {
	state := "up"
	if e.Down {
		state = "down"
	}
	return fmt.Sprintf("key 0x%04x %s", uint32(e.Key), state)
}

// RefreshRequest asks the peer to send the screen. A full refresh
// (Incremental false) resends every pixel; an incremental one only the
// regions that changed since the last update.
type RefreshRequest struct {
	Incremental bool
}

func (RefreshRequest) inputEvent() {}

// PeerEvent is an event received from the peer.
type PeerEvent interface {
	peerEvent()
}

// Resolution is a screen size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ResolutionEvent announces the peer's screen size, initially and after
// every resize.
type ResolutionEvent struct {
	Width  int
	Height int
}

func (ResolutionEvent) peerEvent() {}

// Resolution returns the announced size.
func (e ResolutionEvent) Resolution() Resolution {
	return Resolution{Width: e.Width, Height: e.Height}
}

// RectUpdate carries the new contents of one screen region. Pixels holds
// Width*Height RGBA pixels in row-major order.
type RectUpdate struct {
	X      int
	Y      int
	Width  int
	Height int
	Pixels []byte
}

func (RectUpdate) peerEvent() {}

// ErrorEvent reports a failure on the peer side.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) peerEvent() {}

// BellEvent is the peer ringing its bell.
type BellEvent struct{}

func (BellEvent) peerEvent() {}

// ClipboardEvent carries text the peer placed on its clipboard.
type ClipboardEvent struct {
	Text string
}

func (ClipboardEvent) peerEvent() {}
