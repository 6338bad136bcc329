// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"context"
)

// keyAction selects which key transitions apply sends.
type keyAction int

const (
	actionPress keyAction = iota
	actionRelease
	actionTap
)

func (a keyAction) String() string {
	switch a {
	case actionPress:
		return "press"
	case actionRelease:
		return "release"
	case actionTap:
		return "tap"
	default:
		return "unknown"
	}
}

// keyboardConfig holds the settings applied by KeyboardOption values.
type keyboardConfig struct {
	rate   *float64
	clock  Clock
	logger Logger
}

// KeyboardOption configures a Keyboard.
type KeyboardOption func(*keyboardConfig)

// WithRate sets the number of input events per second. Without it the
// keyboard paces at DefaultPacingInterval.
func WithRate(rate float64) KeyboardOption {
	return func(cfg *keyboardConfig) {
		cfg.rate = &rate
	}
}

// WithRatePtr sets the event rate from an optional value; nil keeps the default.
func WithRatePtr(rate *float64) KeyboardOption {
	return func(cfg *keyboardConfig) {
		cfg.rate = rate
	}
}

// WithKeyboardClock sets the clock used for pacing.
func WithKeyboardClock(clock Clock) KeyboardOption {
	return func(cfg *keyboardConfig) {
		cfg.clock = clock
	}
}

// WithKeyboardLogger sets the logger for key events.
func WithKeyboardLogger(logger Logger) KeyboardOption {
	return func(cfg *keyboardConfig) {
		cfg.logger = logger
	}
}

// Keyboard sends paced key events through a Conn. Every event is followed
// by one pacing interval before the next is sent. A Keyboard is not safe for
// concurrent use; event order is part of the protocol state.
type Keyboard struct {
	conn   Conn
	pacer  *Pacer
	logger Logger
}

// NewKeyboard returns a Keyboard sending to conn. It fails with
// ErrInvalidRate when the configured rate is not usable.
func NewKeyboard(conn Conn, options ...KeyboardOption) (*Keyboard, error) {
	if conn == nil {
		return nil, validationError("NewKeyboard", "connection cannot be nil", nil)
	}

	cfg := &keyboardConfig{}
	for _, option := range options {
		option(cfg)
	}

	pacer, err := NewPacer(cfg.rate, cfg.clock)
	if err != nil {
		return nil, err
	}

	return &Keyboard{
		conn:   conn,
		pacer:  pacer,
		logger: loggerOrNoOp(cfg.logger),
	}, nil
}

// Press sends a key down event.
func (k *Keyboard) Press(ctx context.Context, key Keysym) error {
	return k.apply(ctx, actionPress, key)
}

// Release sends a key up event.
func (k *Keyboard) Release(ctx context.Context, key Keysym) error {
	return k.apply(ctx, actionRelease, key)
}

// Tap presses and releases a key.
func (k *Keyboard) Tap(ctx context.Context, key Keysym) error {
	return k.apply(ctx, actionTap, key)
}

// Chord taps key while modifier is held down.
func (k *Keyboard) Chord(ctx context.Context, modifier, key Keysym) error {
	if err := k.apply(ctx, actionPress, modifier); err != nil {
		return err
	}
	if err := k.apply(ctx, actionTap, key); err != nil {
		return err
	}
	return k.apply(ctx, actionRelease, modifier)
}

// Stroke types a single encoded key stroke, bracketing it with its modifier
// when one is required.
func (k *Keyboard) Stroke(ctx context.Context, stroke KeyStroke) error {
	if stroke.HasModifier() {
		return k.Chord(ctx, stroke.Modifier, stroke.Key)
	}
	return k.Tap(ctx, stroke.Key)
}

// Type sends text one character at a time. The first character without a key
// mapping stops the dispatch with ErrUnsupportedCharacter; characters before
// it have already been delivered and are not undone.
func (k *Keyboard) Type(ctx context.Context, text string) error {
	k.logger.Debug("typing text",
		Field{Key: "characters", Value: len([]rune(text))},
		Field{Key: "interval", Value: k.pacer.Interval()})

	for _, r := range text {
		stroke, err := EncodeKey(r)
		if err != nil {
			k.logger.Error("character cannot be typed", Field{Key: "char", Value: string(r)})
			return err
		}
		if err := k.Stroke(ctx, stroke); err != nil {
			return err
		}
	}
	return nil
}

// apply sends the events for action and paces after each one.
func (k *Keyboard) apply(ctx context.Context, action keyAction, key Keysym) error {
	switch action {
	case actionPress:
		return k.send(ctx, KeyEvent{Key: key, Down: true})
	case actionRelease:
		return k.send(ctx, KeyEvent{Key: key, Down: false})
	case actionTap:
		if err := k.send(ctx, KeyEvent{Key: key, Down: true}); err != nil {
			return err
		}
		return k.send(ctx, KeyEvent{Key: key, Down: false})
	default:
		return validationError("apply", "unknown key action "+action.String(), nil)
	}
}

func (k *Keyboard) send(ctx context.Context, event KeyEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.logger.Debug("sending key event",
		Field{Key: "keysym", Value: uint32(event.Key)},
		Field{Key: "down", Value: event.Down})
	if err := k.conn.Input(ctx, event); err != nil {
		return err
	}
	return k.pacer.Wait(ctx)
}

// TypeText types text on conn at rate events per second; a nil rate uses
// DefaultPacingInterval. The rate is validated before any event is sent, so
// an invalid rate fails even for empty text.
func TypeText(ctx context.Context, conn Conn, text string, rate *float64, options ...KeyboardOption) error {
	options = append([]KeyboardOption{WithRatePtr(rate)}, options...)
	keyboard, err := NewKeyboard(conn, options...)
	if err != nil {
		return err
	}
	return keyboard.Type(ctx, text)
}
