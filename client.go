// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// DefaultEventBuffer is the number of peer events queued before the message
// loop waits for a consumer.
const DefaultEventBuffer = 256

// ClientConn is an RFB client connection. It implements Conn: server
// messages are decoded by a background loop into PeerEvents and queued for
// PollEvent and RecvEvent, and input events are encoded as client messages.
type ClientConn struct {
	c      net.Conn
	config *ClientConfig
	logger Logger

	// Context and cancellation support
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex for protecting concurrent access to connection state
	mu sync.RWMutex

	// wmu serializes writes so client messages never interleave.
	wmu sync.Mutex

	events    chan PeerEvent
	loopErr   error
	closeOnce sync.Once
	closeErr  error

	// ColorMap contains the color map for indexed color modes.
	ColorMap [ColorMapSize]Color

	// Encs contains the list of encodings supported by this client.
	Encs []Encoding

	// FrameBufferWidth is the width of the remote framebuffer in pixels.
	FrameBufferWidth uint16

	// FrameBufferHeight is the height of the remote framebuffer in pixels.
	FrameBufferHeight uint16

	// DesktopName is the human-readable name of the desktop.
	DesktopName string

	// PixelFormat describes the format of pixel data used in this connection.
	PixelFormat PixelFormat
}

// ClientConfig configures VNC client connection behavior.
type ClientConfig struct {
	// Auth lists the security types to offer, in order of preference.
	// Defaults to ClientAuthNone.
	Auth []ClientAuth

	// Exclusive asks the server to disconnect other clients.
	Exclusive bool

	// Logger specifies the logger instance to use for connection logging.
	Logger Logger

	// ConnectTimeout bounds the handshake.
	ConnectTimeout time.Duration

	// EventBuffer is the capacity of the peer event queue. Zero selects
	// DefaultEventBuffer.
	EventBuffer int
}

// ClientOption represents a functional option for configuring a VNC client connection.
type ClientOption func(*ClientConfig)

// WithAuth sets the authentication methods for the client connection.
// The methods are tried in the order provided during server negotiation.
func WithAuth(auth ...ClientAuth) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.Auth = auth
	}
}

// WithExclusive sets whether the client should request exclusive access to the server.
func WithExclusive(exclusive bool) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.Exclusive = exclusive
	}
}

// WithLogger sets the logger for the client connection.
func WithLogger(logger Logger) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.Logger = logger
	}
}

// WithConnectTimeout sets the timeout for the initial connection handshake.
func WithConnectTimeout(timeout time.Duration) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.ConnectTimeout = timeout
	}
}

// WithEventBuffer sets the capacity of the peer event queue.
func WithEventBuffer(size int) ClientOption {
	return func(cfg *ClientConfig) {
		cfg.EventBuffer = size
	}
}

// ClientWithOptions performs the RFB handshake over c and starts the message
// loop. The screen size from ServerInit is queued as the first
// ResolutionEvent.
//
//	conn, err := net.Dial("tcp", "localhost:5900")
//	if err != nil {
//		return err
//	}
//	client, err := ClientWithOptions(ctx, conn,
//		WithAuth(NewPasswordAuth("secret")),
//		WithConnectTimeout(10*time.Second),
//	)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
func ClientWithOptions(ctx context.Context, c net.Conn, options ...ClientOption) (*ClientConn, error) {
	cfg := &ClientConfig{}
	for _, option := range options {
		option(cfg)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}

	handshakeCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	connCtx, cancel := context.WithCancel(context.Background())
	conn := &ClientConn{
		c:      c,
		config: cfg,
		logger: loggerOrNoOp(cfg.Logger),
		ctx:    connCtx,
		cancel: cancel,
		events: make(chan PeerEvent, cfg.EventBuffer),
	}

	if err := conn.handshakeWithContext(handshakeCtx); err != nil {
		conn.Close()
		return nil, err
	}

	width, height := conn.GetFrameBufferSize()
	conn.events <- ResolutionEvent{Width: int(width), Height: int(height)}

	go conn.mainLoop()

	return conn, nil
}

// Close terminates the connection. The message loop exits and the event
// queue is closed once buffered events are drained. Calls after the first
// return the first result.
func (c *ClientConn) Close() error {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.closeErr = c.c.Close()
	})
	return c.closeErr
}

// Input sends a KeyEvent or a full-screen FramebufferUpdateRequest.
func (c *ClientConn) Input(ctx context.Context, event InputEvent) error {
	switch e := event.(type) {
	case KeyEvent:
		return c.KeyEvent(ctx, uint32(e.Key), e.Down)
	case RefreshRequest:
		width, height := c.GetFrameBufferSize()
		return c.FramebufferUpdateRequest(ctx, e.Incremental, 0, 0, width, height)
	default:
		return unsupportedError("Input", fmt.Sprintf("unsupported input event %T", event), nil)
	}
}

// PollEvent returns the next queued peer event, or nil when none is queued.
// Once the message loop has ended and the queue is drained it fails with
// ErrConnection.
func (c *ClientConn) PollEvent(ctx context.Context) (PeerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case event, ok := <-c.events:
		if !ok {
			return nil, c.streamError("PollEvent")
		}
		return event, nil
	default:
		return nil, nil
	}
}

// RecvEvent waits for the next peer event.
func (c *ClientConn) RecvEvent(ctx context.Context) (PeerEvent, error) {
	select {
	case event, ok := <-c.events:
		if !ok {
			return nil, c.streamError("RecvEvent")
		}
		return event, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *ClientConn) streamError(op string) error {
	c.mu.RLock()
	err := c.loopErr
	c.mu.RUnlock()
	return connectionError(op, "event stream closed", err)
}

// KeyEvent sends a key press or release (RFC 6143 Section 7.5.4). keysym is
// an X11 keysym such as 0xffe1 for the left Shift key.
func (c *ClientConn) KeyEvent(ctx context.Context, keysym uint32, down bool) error {
	if err := newInputValidator().ValidateKeySymbol(keysym); err != nil {
		c.logger.Error("Invalid keysym value",
			Field{Key: "keysym", Value: keysym},
			Field{Key: "error", Value: err})
		return validationError("KeyEvent", "invalid keysym value", err)
	}

	msg := struct {
		Type    uint8
		Down    uint8
		Padding [2]uint8
		Key     uint32
	}{Type: 4, Key: keysym}
	if down {
		msg.Down = 1
	}

	if err := c.writeMessage(ctx, msg); err != nil {
		c.logger.Error("Failed to send key event", Field{Key: "error", Value: err})
		return networkError("KeyEvent", "failed to send key event", err)
	}
	return nil
}

// FramebufferUpdateRequest asks for the contents of a region (RFC 6143
// Section 7.5.3). An incremental request only returns what changed.
func (c *ClientConn) FramebufferUpdateRequest(ctx context.Context, incremental bool, x, y, width, height uint16) error {
	c.logger.Debug("Sending framebuffer update request",
		Field{Key: "incremental", Value: incremental},
		Field{Key: "x", Value: x},
		Field{Key: "y", Value: y},
		Field{Key: "width", Value: width},
		Field{Key: "height", Value: height})

	msg := struct {
		Type                uint8
		Incremental         uint8
		X, Y, Width, Height uint16
	}{Type: 3, X: x, Y: y, Width: width, Height: height}
	if incremental {
		msg.Incremental = 1
	}

	if err := c.writeMessage(ctx, msg); err != nil {
		c.logger.Error("Failed to send framebuffer update request", Field{Key: "error", Value: err})
		return networkError("FramebufferUpdateRequest", "failed to send framebuffer update request", err)
	}
	return nil
}

// SetEncodings announces the encodings the client accepts, in preference
// order (RFC 6143 Section 7.5.2). Raw is always accepted.
func (c *ClientConn) SetEncodings(ctx context.Context, encs []Encoding) error {
	validator := newInputValidator()

	const maxEncodings = 100
	if len(encs) > maxEncodings {
		return validationError("SetEncodings", fmt.Sprintf("too many encodings: %d (max %d)", len(encs), maxEncodings), nil)
	}

	types := make([]int32, len(encs))
	for i, enc := range encs {
		types[i] = enc.Type()
		if err := validator.ValidateEncodingType(types[i]); err != nil {
			return validationError("SetEncodings", fmt.Sprintf("invalid encoding type at index %d", i), err)
		}
	}

	c.logger.Info("Setting supported encodings",
		Field{Key: "count", Value: len(encs)},
		Field{Key: "types", Value: types})

	header := struct {
		Type    uint8
		Padding uint8
		Count   uint16
	}{Type: 2, Count: uint16(len(encs))} // #nosec G115 - len(encs) <= maxEncodings

	if err := c.writeMessage(ctx, header, types); err != nil {
		c.logger.Error("Failed to send set encodings message", Field{Key: "error", Value: err})
		return networkError("SetEncodings", "failed to send set encodings message", err)
	}

	c.mu.Lock()
	c.Encs = encs
	c.mu.Unlock()
	return nil
}

// SetPixelFormat selects the pixel format of subsequent updates (RFC 6143
// Section 7.5.1) and resets the colour map.
func (c *ClientConn) SetPixelFormat(ctx context.Context, format *PixelFormat) error {
	if err := newInputValidator().ValidatePixelFormat(format); err != nil {
		c.logger.Error("Invalid pixel format specified", Field{Key: "error", Value: err})
		return err
	}

	c.logger.Info("Setting pixel format",
		Field{Key: "bpp", Value: format.BPP},
		Field{Key: "depth", Value: format.Depth},
		Field{Key: "true_color", Value: format.TrueColor})

	header := struct {
		Type    uint8
		Padding [3]uint8
	}{}

	c.mu.Lock()
	c.PixelFormat = *format
	c.ColorMap = [ColorMapSize]Color{}
	c.mu.Unlock()

	if err := c.writeMessage(ctx, header, writePixelFormat(format)); err != nil {
		return networkError("SetPixelFormat", "failed to send pixel format message", err)
	}
	return nil
}

// writeMessage encodes parts big-endian and sends them as one write.
func (c *ClientConn) writeMessage(ctx context.Context, parts ...interface{}) error {
	var buf bytes.Buffer
	for _, part := range parts {
		if err := binary.Write(&buf, binary.BigEndian, part); err != nil {
			return encodingError("writeMessage", "failed to encode message", err)
		}
	}
	return c.writeWithContext(ctx, buf.Bytes())
}

const pvLen = 12

// parseProtocolVersion parses a VNC protocol version string.
func parseProtocolVersion(pv []byte) (uint, uint, error) {
	var major, minor uint

	if len(pv) < pvLen {
		return 0, 0, protocolError("parseProtocolVersion",
			fmt.Sprintf("protocol version message too short (%v < %v)", len(pv), pvLen), nil)
	}

	l, err := fmt.Sscanf(string(pv), "RFB %d.%d\n", &major, &minor)
	if l != 2 {
		return 0, 0, protocolError("parseProtocolVersion", "invalid protocol version format", nil)
	}
	if err != nil {
		return 0, 0, protocolError("parseProtocolVersion", "failed to parse protocol version", err)
	}

	return major, minor, nil
}

// handshakeWithContext performs protocol version negotiation, security
// negotiation, authentication and initialization.
func (c *ClientConn) handshakeWithContext(ctx context.Context) error {
	c.logger.Info("Starting VNC handshake")
	validator := newInputValidator()

	// 7.1.1 ProtocolVersion
	var protocolVersion [pvLen]byte
	if err := c.readWithContext(ctx, protocolVersion[:]); err != nil {
		return networkError("handshake", "failed to read protocol version from server", err)
	}
	if err := validator.ValidateProtocolVersion(string(protocolVersion[:])); err != nil {
		return protocolError("handshake", "server sent invalid protocol version format", err)
	}

	maxMajor, maxMinor, err := parseProtocolVersion(protocolVersion[:])
	if err != nil {
		return err
	}
	c.logger.Info("Received protocol version",
		Field{Key: "major", Value: maxMajor},
		Field{Key: "minor", Value: maxMinor})

	if maxMajor < 3 {
		return unsupportedError("handshake", fmt.Sprintf("unsupported major version, less than 3: %d", maxMajor), nil)
	}
	if maxMajor == 3 && maxMinor < 8 {
		return unsupportedError("handshake", fmt.Sprintf("unsupported minor version, less than 8: %d", maxMinor), nil)
	}

	if err = c.writeWithContext(ctx, []byte("RFB 003.008\n")); err != nil {
		return networkError("handshake", "failed to send protocol version response", err)
	}

	// 7.1.2 Security
	var numSecurityTypes uint8
	if err = c.readBinaryWithContext(ctx, &numSecurityTypes); err != nil {
		return networkError("handshake", "failed to read number of security types", err)
	}
	if numSecurityTypes == 0 {
		reason := c.readErrorReason(ctx)
		return authenticationError("handshake", fmt.Sprintf("no security types available: %s", reason), nil)
	}

	securityTypes := make([]uint8, numSecurityTypes)
	if err = c.readWithContext(ctx, securityTypes); err != nil {
		return networkError("handshake", "failed to read security types", err)
	}
	if err := validator.ValidateSecurityTypes(securityTypes); err != nil {
		return protocolError("handshake", "server sent invalid security types", err)
	}
	c.logger.Info("Received security types from server", Field{Key: "types", Value: securityTypes})

	clientAuth := c.config.Auth
	if len(clientAuth) == 0 {
		clientAuth = []ClientAuth{new(ClientAuthNone)}
	}

	var auth ClientAuth
FindAuth:
	for _, candidate := range clientAuth {
		for _, securityType := range securityTypes {
			if candidate.SecurityType() == securityType {
				auth = candidate
				break FindAuth
			}
		}
	}
	if auth == nil {
		return authenticationError("handshake", fmt.Sprintf("no suitable auth schemes found. server supported: %#v", securityTypes), nil)
	}

	c.logger.Info("Selected authentication method",
		Field{Key: "type", Value: auth.SecurityType()},
		Field{Key: "method", Value: auth.String()})

	if err = c.writeBinaryWithContext(ctx, auth.SecurityType()); err != nil {
		return networkError("handshake", "failed to send selected security type", err)
	}

	if authWithLogger, ok := auth.(interface{ SetLogger(Logger) }); ok {
		authWithLogger.SetLogger(c.logger)
	}
	if err = auth.Handshake(ctx, c.c); err != nil {
		return authenticationError("handshake", "authentication handshake failed", err)
	}

	// 7.1.3 SecurityResult
	var securityResult uint32
	if err = c.readBinaryWithContext(ctx, &securityResult); err != nil {
		return networkError("handshake", "failed to read security result", err)
	}
	if securityResult != 0 {
		reason := c.readErrorReason(ctx)
		return authenticationError("handshake", fmt.Sprintf("security handshake failed: %s", reason), nil)
	}
	c.logger.Info("Authentication successful")

	// 7.3.1 ClientInit
	var sharedFlag uint8 = 1
	if c.config.Exclusive {
		sharedFlag = 0
	}
	if err = c.writeBinaryWithContext(ctx, sharedFlag); err != nil {
		return networkError("handshake", "failed to send client init message", err)
	}

	// 7.3.2 ServerInit
	var size struct{ Width, Height uint16 }
	if err = c.readBinaryWithContext(ctx, &size); err != nil {
		return networkError("handshake", "failed to read framebuffer size", err)
	}
	if err := validator.ValidateFramebufferDimensions(size.Width, size.Height); err != nil {
		return protocolError("handshake", "server sent invalid framebuffer dimensions", err)
	}

	var pixelFormat PixelFormat
	if err = c.readPixelFormatWithContext(ctx, &pixelFormat); err != nil {
		return protocolError("handshake", "failed to read pixel format", err)
	}
	if err := validator.ValidatePixelFormat(&pixelFormat); err != nil {
		return protocolError("handshake", "server sent invalid pixel format", err)
	}

	var nameLength uint32
	if err = c.readBinaryWithContext(ctx, &nameLength); err != nil {
		return networkError("handshake", "failed to read desktop name length", err)
	}
	const maxDesktopNameLength = 1024 * 1024
	if err := validator.ValidateMessageLength(nameLength, maxDesktopNameLength); err != nil {
		return protocolError("handshake", "server sent invalid desktop name length", err)
	}
	nameBytes := make([]byte, nameLength)
	if err = c.readWithContext(ctx, nameBytes); err != nil {
		return networkError("handshake", "failed to read desktop name", err)
	}
	desktopName := validator.SanitizeText(string(nameBytes))

	c.mu.Lock()
	c.FrameBufferWidth = size.Width
	c.FrameBufferHeight = size.Height
	c.PixelFormat = pixelFormat
	c.DesktopName = desktopName
	c.mu.Unlock()

	c.logger.Info("VNC handshake completed successfully",
		Field{Key: "desktop_name", Value: desktopName},
		Field{Key: "framebuffer_width", Value: size.Width},
		Field{Key: "framebuffer_height", Value: size.Height},
		Field{Key: "pixel_format_bpp", Value: pixelFormat.BPP})

	return nil
}

// mainLoop decodes server messages and queues the events they produce.
// When it ends, the error is recorded and the queue is closed.
func (c *ClientConn) mainLoop() {
	var loopErr error
	defer func() {
		c.mu.Lock()
		c.loopErr = loopErr
		c.mu.Unlock()
		close(c.events)
		c.Close()
	}()

	c.logger.Debug("Starting message processing loop")

	typeMap := make(map[uint8]ServerMessage)
	for _, msg := range []ServerMessage{
		new(FramebufferUpdateMessage),
		new(SetColorMapEntriesMessage),
		new(BellMessage),
		new(ServerCutTextMessage),
	} {
		typeMap[msg.Type()] = msg
	}

	for {
		var messageType uint8
		if err := c.readBinaryWithContext(c.ctx, &messageType); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.Debug("Message processing loop ended", Field{Key: "reason", Value: err})
			} else {
				c.logger.Warn("Error reading message type", Field{Key: "error", Value: err})
			}
			loopErr = err
			return
		}

		msg, ok := typeMap[messageType]
		if !ok {
			c.logger.Error("Unsupported message type received", Field{Key: "type", Value: messageType})
			loopErr = unsupportedError("mainLoop", fmt.Sprintf("unsupported server message type %d", messageType), nil)
			return
		}

		parsedMsg, err := msg.Read(c, c.c)
		if err != nil {
			c.logger.Error("Failed to parse server message",
				Field{Key: "type", Value: messageType},
				Field{Key: "error", Value: err})
			loopErr = err
			return
		}

		c.logger.Debug("Received server message", Field{Key: "message_type", Value: fmt.Sprintf("%T", parsedMsg)})

		for _, event := range parsedMsg.Events() {
			select {
			case c.events <- event:
			case <-c.ctx.Done():
				loopErr = c.ctx.Err()
				return
			}
		}
	}
}

// readErrorReason reads the length-prefixed reason string sent with a failure.
func (c *ClientConn) readErrorReason(ctx context.Context) string {
	var reasonLen uint32
	if err := c.readBinaryWithContext(ctx, &reasonLen); err != nil {
		return "<failed to read error reason length>"
	}

	validator := newInputValidator()
	const maxErrorReasonLength = 64 * 1024
	if err := validator.ValidateMessageLength(reasonLen, maxErrorReasonLength); err != nil {
		return "<invalid error reason length>"
	}

	reason := make([]byte, reasonLen)
	if err := c.readWithContext(ctx, reason); err != nil {
		return "<failed to read error reason>"
	}
	return validator.SanitizeText(string(reason))
}

// Context-aware network operation helpers

// readWithContext reads data from the connection with context cancellation support.
func (c *ClientConn) readWithContext(ctx context.Context, buf []byte) error {
	done := make(chan error, 1)

	go func() {
		_, err := io.ReadFull(c.c, buf)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeWithContext writes data to the connection with context cancellation
// support. It fails once the connection is closed.
func (c *ClientConn) writeWithContext(ctx context.Context, data []byte) error {
	if err := c.ctx.Err(); err != nil {
		return connectionError("write", "connection closed", err)
	}

	done := make(chan error, 1)

	go func() {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		_, err := c.c.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return connectionError("write", "connection closed", c.ctx.Err())
	}
}

// readBinaryWithContext reads binary data with context cancellation support.
func (c *ClientConn) readBinaryWithContext(ctx context.Context, data interface{}) error {
	done := make(chan error, 1)

	go func() {
		done <- binary.Read(c.c, binary.BigEndian, data)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeBinaryWithContext writes binary data with context cancellation support.
func (c *ClientConn) writeBinaryWithContext(ctx context.Context, data interface{}) error {
	return c.writeMessage(ctx, data)
}

// readPixelFormatWithContext reads pixel format data with context cancellation support.
func (c *ClientConn) readPixelFormatWithContext(ctx context.Context, pf *PixelFormat) error {
	done := make(chan error, 1)

	go func() {
		done <- readPixelFormat(c.c, pf)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// encodings returns the negotiated encodings.
func (c *ClientConn) encodings() []Encoding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Encoding(nil), c.Encs...)
}

// GetFrameBufferSize returns the current framebuffer dimensions in a thread-safe manner.
func (c *ClientConn) GetFrameBufferSize() (width, height uint16) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.FrameBufferWidth, c.FrameBufferHeight
}

// GetDesktopName returns the desktop name in a thread-safe manner.
func (c *ClientConn) GetDesktopName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DesktopName
}

// GetPixelFormat returns a copy of the current pixel format in a thread-safe manner.
func (c *ClientConn) GetPixelFormat() PixelFormat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.PixelFormat
}
