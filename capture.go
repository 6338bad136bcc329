// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CaptureMode selects how collected rectangles become a frame. It has no
// default; the zero value is rejected.
type CaptureMode int

const (
	// CaptureOverwrite builds the frame from a full refresh. Regions the
	// peer does not send stay zero.
	CaptureOverwrite CaptureMode = iota + 1
	// CaptureComposite alpha-blends the received rectangles onto the
	// previous frame, so incremental updates yield a complete image.
	CaptureComposite
)

func (m CaptureMode) String() string {
	switch m {
	case CaptureOverwrite:
		return "overwrite"
	case CaptureComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// ParseCaptureMode maps "overwrite" or "composite" to a CaptureMode.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overwrite":
		return CaptureOverwrite, nil
	case "composite":
		return CaptureComposite, nil
	default:
		return 0, configurationError("ParseCaptureMode", fmt.Sprintf("invalid capture mode %q, want overwrite or composite", s), nil)
	}
}

const (
	// DefaultIdleTimeout ends a capture after this long without a peer event.
	DefaultIdleTimeout = time.Second
	// DefaultPollInterval is the wait between polls that find no event.
	DefaultPollInterval = 10 * time.Millisecond
)

// CaptureOptions configures Capture.
type CaptureOptions struct {
	// Resolution is the screen size. When nil it is discovered from the
	// peer's first event, which the peer sends only once per connection.
	Resolution *Resolution

	// IdleTimeout ends collection once no event has arrived for this long.
	// Zero selects DefaultIdleTimeout.
	IdleTimeout time.Duration

	// PollInterval is the pause after an empty poll. Zero selects
	// DefaultPollInterval.
	PollInterval time.Duration

	// Mode is required.
	Mode CaptureMode

	// Previous holds the frame composited captures blend onto. Every
	// successful capture stores its result here. May be nil.
	Previous *FrameStore

	// OnResolution, when set, is called as soon as the peer announces a
	// screen size, including when the capture later fails. The peer
	// announces its size only once, so callers keep it for the next capture.
	OnResolution func(Resolution)

	Logger Logger
	Clock  Clock
}

// Capture requests the screen from conn and assembles the rectangles it
// receives into a frame.
//
// Collection ends when no event has arrived for IdleTimeout, when the peer
// sends an event other than a resolution or rectangle update (a warning is
// logged and the partial frame returned), or when ctx ends (an error). The
// idle timer restarts with every event, so a peer that keeps sending updates
// more often than IdleTimeout keeps the capture open; bound the call with
// ctx when that matters.
//
// A resolution change during collection discards the rectangles received for
// the old size and requests a full refresh. Every announced size is passed to
// OnResolution before the capture can fail. An ErrorEvent fails the capture
// with ErrConnection, a rectangle that does not fit the screen or whose
// payload does not match its size fails it with ErrMalformedRectangle. Errors
// from conn are returned unchanged.
func Capture(ctx context.Context, conn Conn, opts CaptureOptions) (*Frame, error) {
	if conn == nil {
		return nil, validationError("Capture", "connection cannot be nil", nil)
	}
	if opts.Mode != CaptureOverwrite && opts.Mode != CaptureComposite {
		return nil, validationError("Capture", fmt.Sprintf("capture mode must be overwrite or composite, got %d", int(opts.Mode)), nil)
	}
	if opts.Resolution != nil && (opts.Resolution.Width <= 0 || opts.Resolution.Height <= 0) {
		return nil, validationError("Capture", fmt.Sprintf("invalid resolution %s", *opts.Resolution), nil)
	}

	a := &assembler{
		conn:         conn,
		opts:         opts,
		logger:       loggerOrNoOp(opts.Logger),
		clock:        clockOrReal(opts.Clock),
		idleTimeout:  opts.IdleTimeout,
		pollInterval: opts.PollInterval,
	}
	if a.idleTimeout <= 0 {
		a.idleTimeout = DefaultIdleTimeout
	}
	if a.pollInterval <= 0 {
		a.pollInterval = DefaultPollInterval
	}
	return a.run(ctx)
}

// assembler carries the state of one Capture call.
type assembler struct {
	conn         Conn
	opts         CaptureOptions
	logger       Logger
	clock        Clock
	idleTimeout  time.Duration
	pollInterval time.Duration

	resolution Resolution
	rects      []RectUpdate
}

func (a *assembler) run(ctx context.Context) (*Frame, error) {
	a.logger.Info("requesting screenshot", Field{Key: "mode", Value: a.opts.Mode.String()})

	if a.opts.Resolution != nil {
		a.resolution = *a.opts.Resolution
		if err := a.refresh(ctx); err != nil {
			return nil, err
		}
	} else if err := a.discoverResolution(ctx); err != nil {
		return nil, err
	}

	if err := a.collect(ctx); err != nil {
		return nil, err
	}
	return a.assemble(ctx)
}

// discoverResolution requests the screen and requires the peer's first event
// to announce its size.
func (a *assembler) discoverResolution(ctx context.Context) error {
	if err := a.conn.Input(ctx, RefreshRequest{Incremental: false}); err != nil {
		return err
	}
	event, err := a.conn.RecvEvent(ctx)
	if err != nil {
		return err
	}
	announced, ok := event.(ResolutionEvent)
	if !ok {
		a.logger.Error("peer did not announce its resolution", Field{Key: "event", Value: fmt.Sprintf("%T", event)})
		return noResolutionError("Capture", fmt.Sprintf("expected resolution announcement, got %T", event))
	}
	if announced.Width <= 0 || announced.Height <= 0 {
		return noResolutionError("Capture", fmt.Sprintf("peer announced invalid resolution %s", announced.Resolution()))
	}
	a.resolution = announced.Resolution()
	a.logger.Info("resolution received", Field{Key: "resolution", Value: a.resolution.String()})
	a.announce()
	return a.refresh(ctx)
}

// refresh requests the screen. The request is incremental only when
// compositing onto a stored frame of the current size.
func (a *assembler) refresh(ctx context.Context) error {
	incremental := false
	if a.opts.Mode == CaptureComposite && a.opts.Previous != nil {
		res, ok, err := a.opts.Previous.Resolution(ctx)
		if err != nil {
			return err
		}
		incremental = ok && res == a.resolution
	}
	a.logger.Debug("sending refresh request", Field{Key: "incremental", Value: incremental})
	return a.conn.Input(ctx, RefreshRequest{Incremental: incremental})
}

// collect gathers rectangle updates until the peer goes idle.
func (a *assembler) collect(ctx context.Context) error {
	lastEvent := a.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		event, err := a.conn.PollEvent(ctx)
		if err != nil {
			return err
		}

		if event == nil {
			if a.clock.Now().Sub(lastEvent) >= a.idleTimeout {
				a.logger.Debug("no event within idle timeout",
					Field{Key: "timeout", Value: a.idleTimeout},
					Field{Key: "rectangles", Value: len(a.rects)})
				return nil
			}
			if err := sleep(ctx, a.clock, a.pollInterval); err != nil {
				return err
			}
			continue
		}
		lastEvent = a.clock.Now()

		switch e := event.(type) {
		case ResolutionEvent:
			if err := a.resize(ctx, e); err != nil {
				return err
			}
		case RectUpdate:
			if err := validateRect("Capture", e, a.resolution); err != nil {
				return err
			}
			a.rects = append(a.rects, e)
		case ErrorEvent:
			a.logger.Error("peer reported an error", Field{Key: "message", Value: e.Message})
			return connectionError("Capture", e.Message, nil)
		default:
			a.logger.Warn("unexpected event ends capture early",
				Field{Key: "event", Value: fmt.Sprintf("%T", event)},
				Field{Key: "rectangles", Value: len(a.rects)})
			return nil
		}
	}
}

// resize adopts a new resolution announced mid-capture. An announcement of
// the current size changes nothing and sends no request.
func (a *assembler) resize(ctx context.Context, e ResolutionEvent) error {
	res := e.Resolution()
	if res.Width <= 0 || res.Height <= 0 {
		return noResolutionError("Capture", fmt.Sprintf("peer announced invalid resolution %s", res))
	}
	if res == a.resolution {
		a.logger.Debug("resolution unchanged", Field{Key: "resolution", Value: res.String()})
		return nil
	}
	a.logger.Info("screen resolution changed",
		Field{Key: "from", Value: a.resolution.String()},
		Field{Key: "to", Value: res.String()},
		Field{Key: "dropped", Value: len(a.rects)})
	a.resolution = res
	a.rects = nil
	a.announce()
	return a.conn.Input(ctx, RefreshRequest{Incremental: false})
}

func (a *assembler) announce() {
	if a.opts.OnResolution != nil {
		a.opts.OnResolution(a.resolution)
	}
}

// assemble turns the collected rectangles into a frame and records it in the
// previous-frame store.
func (a *assembler) assemble(ctx context.Context) (*Frame, error) {
	fields := []Field{
		{Key: "resolution", Value: a.resolution.String()},
		{Key: "rectangles", Value: len(a.rects)},
	}

	if a.opts.Mode == CaptureOverwrite {
		frame, err := Assemble(a.resolution, a.rects)
		if err != nil {
			return nil, err
		}
		if a.opts.Previous != nil {
			if err := a.opts.Previous.Store(ctx, frame); err != nil {
				return nil, err
			}
		}
		a.logger.Info("screenshot assembled", fields...)
		return frame, nil
	}

	compose := func(previous *Frame) (*Frame, error) {
		base := previous
		if base == nil || base.Resolution() != a.resolution {
			base = NewFrame(a.resolution.Width, a.resolution.Height)
		}
		return Composite(base, a.rects)
	}

	var frame *Frame
	var err error
	if a.opts.Previous != nil {
		frame, err = a.opts.Previous.update(ctx, compose)
	} else {
		frame, err = compose(nil)
	}
	if err != nil {
		return nil, err
	}
	a.logger.Info("screenshot composited", fields...)
	return frame, nil
}
