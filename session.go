// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Conn = (*ClientConn)(nil)

// sessionConfig holds the settings applied by SessionOption values.
type sessionConfig struct {
	client       []ClientOption
	keyboard     []KeyboardOption
	logger       Logger
	clock        Clock
	idleTimeout  time.Duration
	pollInterval time.Duration
	previous     *Frame
	resolution   *Resolution
	dialer       *net.Dialer
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

// WithClientOptions passes options to the RFB client created by Dial.
func WithClientOptions(options ...ClientOption) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.client = append(cfg.client, options...)
	}
}

// WithKeyboardOptions passes options to the session keyboard.
func WithKeyboardOptions(options ...KeyboardOption) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.keyboard = append(cfg.keyboard, options...)
	}
}

// WithSessionLogger sets the logger. Every record carries the session ID.
func WithSessionLogger(logger Logger) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.logger = logger
	}
}

// WithSessionClock sets the clock used for pacing and capture deadlines.
func WithSessionClock(clock Clock) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.clock = clock
	}
}

// WithIdleTimeout sets the capture idle timeout.
func WithIdleTimeout(timeout time.Duration) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.idleTimeout = timeout
	}
}

// WithPollInterval sets the pause between empty polls during capture.
func WithPollInterval(interval time.Duration) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.pollInterval = interval
	}
}

// WithPreviousFrame seeds the frame composited screenshots blend onto.
func WithPreviousFrame(frame *Frame) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.previous = frame
	}
}

// WithDialer sets the dialer Dial uses for the TCP connection.
func WithDialer(dialer *net.Dialer) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.dialer = dialer
	}
}

// WithResolution supplies the screen size instead of discovering it.
func WithResolution(res Resolution) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.resolution = &res
	}
}

// Session drives one remote display: it types text and takes screenshots
// over a single Conn. It remembers the screen resolution once discovered,
// because the peer announces it only once, and keeps the last frame for
// composited screenshots. Operations on a Session run one at a time.
type Session struct {
	// ID identifies the session in logs.
	ID uuid.UUID

	conn     Conn
	keyboard *Keyboard
	store    *FrameStore
	logger   Logger
	clock    Clock

	idleTimeout  time.Duration
	pollInterval time.Duration

	// mu orders operations; key events and captures share the connection.
	mu         sync.Mutex
	resolution *Resolution

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an established connection.
func NewSession(conn Conn, options ...SessionOption) (*Session, error) {
	cfg := &sessionConfig{}
	for _, option := range options {
		option(cfg)
	}
	return newSession(conn, cfg)
}

func newSession(conn Conn, cfg *sessionConfig) (*Session, error) {
	if conn == nil {
		return nil, validationError("NewSession", "connection cannot be nil", nil)
	}

	id := uuid.New()
	logger := loggerOrNoOp(cfg.logger).With(Field{Key: "session_id", Value: id.String()})
	clock := clockOrReal(cfg.clock)

	keyboardOptions := append([]KeyboardOption{
		WithKeyboardLogger(logger),
		WithKeyboardClock(clock),
	}, cfg.keyboard...)
	keyboard, err := NewKeyboard(conn, keyboardOptions...)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:           id,
		conn:         conn,
		keyboard:     keyboard,
		store:        NewFrameStore(cfg.previous),
		logger:       logger,
		clock:        clock,
		idleTimeout:  cfg.idleTimeout,
		pollInterval: cfg.pollInterval,
		resolution:   cfg.resolution,
	}, nil
}

// Dial connects to the RFB server at address, negotiates 32-bit RGBA pixels
// and the default encodings, and returns a Session over the connection.
func Dial(ctx context.Context, address string, options ...SessionOption) (*Session, error) {
	cfg := &sessionConfig{}
	for _, option := range options {
		option(cfg)
	}

	dialer := cfg.dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	logger := loggerOrNoOp(cfg.logger)
	logger.Info("Connecting to VNC server", Field{Key: "address", Value: address})

	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, networkError("Dial", "failed to connect to "+address, err)
	}

	clientOptions := append([]ClientOption{WithLogger(logger)}, cfg.client...)
	client, err := ClientWithOptions(ctx, netConn, clientOptions...)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	if err := client.SetPixelFormat(ctx, PixelFormat32BitRGBA); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SetEncodings(ctx, DefaultEncodings()); err != nil {
		client.Close()
		return nil, err
	}

	session, err := newSession(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	session.logger.Info("Session established", Field{Key: "desktop_name", Value: client.GetDesktopName()})
	return session, nil
}

// Type types text on the remote keyboard. See Keyboard.Type.
func (s *Session) Type(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyboard.Type(ctx, text)
}

// Keyboard returns the session keyboard for individual key events. Callers
// must not use it concurrently with other session operations.
func (s *Session) Keyboard() *Keyboard {
	return s.keyboard
}

// Screenshot captures the screen. The first call discovers the resolution
// unless one was supplied; later calls reuse it. A size the peer announces
// is kept even when that capture fails.
func (s *Session) Screenshot(ctx context.Context, mode CaptureMode) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame, err := Capture(ctx, s.conn, CaptureOptions{
		Resolution:   s.resolution,
		IdleTimeout:  s.idleTimeout,
		PollInterval: s.pollInterval,
		Mode:         mode,
		Previous:     s.store,
		Logger:       s.logger,
		Clock:        s.clock,
		OnResolution: func(res Resolution) {
			s.resolution = &res
		},
	})
	if err != nil {
		return nil, err
	}

	res := frame.Resolution()
	s.resolution = &res
	return frame, nil
}

// Resolution returns the remembered screen size, if any.
func (s *Session) Resolution() (Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolution == nil {
		return Resolution{}, false
	}
	return *s.resolution, true
}

// PreviousFrame returns the store holding the last captured frame.
func (s *Session) PreviousFrame() *FrameStore {
	return s.store
}

// Close closes the connection. Only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
		s.logger.Info("Session closed")
	})
	return s.closeErr
}
