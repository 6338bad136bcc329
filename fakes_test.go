// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeClock advances only when a caller waits on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waited []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waited = append(c.waited, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waited...)
}

var errScriptExhausted = errors.New("script exhausted")

// fakeConn records input and replays a scripted event sequence. A nil entry
// in the script is an empty poll.
type fakeConn struct {
	mu       sync.Mutex
	inputs   []InputEvent
	script   []PeerEvent
	inputErr error
	failAt   int
	pollErr  error
	closed   int
}

func newFakeConn(script ...PeerEvent) *fakeConn {
	return &fakeConn{script: script, failAt: -1}
}

func (c *fakeConn) Input(ctx context.Context, event InputEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inputErr != nil && (c.failAt < 0 || len(c.inputs) == c.failAt) {
		return c.inputErr
	}
	c.inputs = append(c.inputs, event)
	return nil
}

func (c *fakeConn) PollEvent(ctx context.Context) (PeerEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.script) == 0 {
		if c.pollErr != nil {
			return nil, c.pollErr
		}
		return nil, nil
	}
	event := c.script[0]
	c.script = c.script[1:]
	return event, nil
}

func (c *fakeConn) RecvEvent(ctx context.Context) (PeerEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.script) > 0 {
		event := c.script[0]
		c.script = c.script[1:]
		if event != nil {
			return event, nil
		}
	}
	return nil, errScriptExhausted
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) sent() []InputEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]InputEvent(nil), c.inputs...)
}

func (c *fakeConn) keyEvents() []KeyEvent {
	var keys []KeyEvent
	for _, event := range c.sent() {
		if key, ok := event.(KeyEvent); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *fakeConn) refreshes() []RefreshRequest {
	var refreshes []RefreshRequest
	for _, event := range c.sent() {
		if refresh, ok := event.(RefreshRequest); ok {
			refreshes = append(refreshes, refresh)
		}
	}
	return refreshes
}

// solidRect returns a rectangle filled with one RGBA colour.
func solidRect(x, y, width, height int, rgba [4]byte) RectUpdate {
	pixels := make([]byte, width*height*BytesPerPixel)
	for i := 0; i < len(pixels); i += BytesPerPixel {
		copy(pixels[i:], rgba[:])
	}
	return RectUpdate{X: x, Y: y, Width: width, Height: height, Pixels: pixels}
}

// pixelAt returns the RGBA value at (x, y).
func pixelAt(f *Frame, x, y int) [4]byte {
	var p [4]byte
	offset := (y*f.Width + x) * BytesPerPixel
	copy(p[:], f.Pix[offset:offset+BytesPerPixel])
	return p
}
