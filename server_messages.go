// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Protocol limits applied to server messages.
const (
	MaxRectanglesPerUpdate   = 10000
	MaxServerClipboardLength = 10 * 1024 * 1024
)

// ServerMessage is a message sent by the server (RFC 6143 Section 7.6).
type ServerMessage interface {
	// Type returns the message type byte.
	Type() uint8

	// Read decodes the message body that follows the type byte.
	Read(c *ClientConn, r io.Reader) (ServerMessage, error)

	// Events returns the peer events the message produces, in order.
	Events() []PeerEvent
}

// FramebufferUpdateMessage carries a batch of rectangles.
type FramebufferUpdateMessage struct {
	Rectangles []Rectangle
}

// Rectangle is one region of a framebuffer update and its decoded content.
type Rectangle struct {
	X      uint16
	Y      uint16
	Width  uint16
	Height uint16
	Enc    Encoding
}

// Type returns 0.
func (*FramebufferUpdateMessage) Type() uint8 {
	return 0
}

// Read decodes every rectangle with the encoding named in its header.
// Pseudo-encodings are applied to the connection as they are read, so a
// resize takes effect for the rectangles that follow it.
func (*FramebufferUpdateMessage) Read(c *ClientConn, r io.Reader) (ServerMessage, error) {
	validator := newInputValidator()

	var header struct {
		Padding  uint8
		NumRects uint16
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, networkError("FramebufferUpdateMessage.Read", "failed to read update header", err)
	}
	if header.NumRects > MaxRectanglesPerUpdate {
		return nil, protocolError("FramebufferUpdateMessage.Read",
			fmt.Sprintf("too many rectangles in update: %d (max %d)", header.NumRects, MaxRectanglesPerUpdate), nil)
	}

	encMap := make(map[int32]Encoding)
	for _, enc := range c.encodings() {
		encMap[enc.Type()] = enc
	}
	rawEnc := new(RawEncoding)
	encMap[rawEnc.Type()] = rawEnc
	desktopSize := new(DesktopSizePseudoEncoding)
	encMap[desktopSize.Type()] = desktopSize

	rects := make([]Rectangle, header.NumRects)
	for i := range rects {
		var rectHeader struct {
			X, Y, Width, Height uint16
			Encoding            int32
		}
		if err := binary.Read(r, binary.BigEndian, &rectHeader); err != nil {
			return nil, networkError("FramebufferUpdateMessage.Read", "failed to read rectangle header", err)
		}

		rect := &rects[i]
		rect.X, rect.Y = rectHeader.X, rectHeader.Y
		rect.Width, rect.Height = rectHeader.Width, rectHeader.Height
		encodingType := rectHeader.Encoding

		if err := validator.ValidateEncodingType(encodingType); err != nil {
			return nil, protocolError("FramebufferUpdateMessage.Read",
				fmt.Sprintf("invalid encoding type for rectangle %d", i), err)
		}

		if encodingType >= 0 {
			fbWidth, fbHeight := c.GetFrameBufferSize()
			if err := validator.ValidateRectangle(rect.X, rect.Y, rect.Width, rect.Height, fbWidth, fbHeight); err != nil {
				return nil, protocolError("FramebufferUpdateMessage.Read",
					fmt.Sprintf("invalid rectangle %d", i), err)
			}
		}

		enc, ok := encMap[encodingType]
		if !ok {
			return nil, unsupportedError("FramebufferUpdateMessage.Read",
				fmt.Sprintf("unsupported encoding type: %d", encodingType), nil)
		}

		var err error
		rect.Enc, err = enc.Read(c, rect, r)
		if err != nil {
			return nil, encodingError("FramebufferUpdateMessage.Read", "failed to read rectangle encoding data", err)
		}

		if pseudoEnc, isPseudo := rect.Enc.(PseudoEncoding); isPseudo {
			if err := pseudoEnc.Handle(c, rect); err != nil {
				c.logger.Error("Failed to handle pseudo-encoding",
					Field{Key: "encoding_type", Value: encodingType},
					Field{Key: "error", Value: err})
			}
		}
	}

	return &FramebufferUpdateMessage{rects}, nil
}

// Events returns a RectUpdate per pixel rectangle and a ResolutionEvent per
// resize, in the order the server sent them.
func (m *FramebufferUpdateMessage) Events() []PeerEvent {
	events := make([]PeerEvent, 0, len(m.Rectangles))
	for _, rect := range m.Rectangles {
		switch enc := rect.Enc.(type) {
		case *DesktopSizePseudoEncoding:
			events = append(events, enc.event())
		case PixelEncoding:
			width, height := int(rect.Width), int(rect.Height)
			events = append(events, RectUpdate{
				X:      int(rect.X),
				Y:      int(rect.Y),
				Width:  width,
				Height: height,
				Pixels: enc.RGBA(width, height),
			})
		}
	}
	return events
}

// SetColorMapEntriesMessage updates part of the colour map used by indexed
// pixel formats.
type SetColorMapEntriesMessage struct {
	FirstColor uint16
	Colors     []Color
}

// Type returns 1.
func (*SetColorMapEntriesMessage) Type() uint8 {
	return 1
}

// Read decodes the entries and applies them to the connection's colour map.
func (*SetColorMapEntriesMessage) Read(c *ClientConn, r io.Reader) (ServerMessage, error) {
	var header struct {
		Padding    uint8
		FirstColor uint16
		NumColors  uint16
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, networkError("SetColorMapEntriesMessage.Read", "failed to read message header", err)
	}

	if err := newInputValidator().ValidateColorMapEntries(header.FirstColor, header.NumColors, ColorMapSize); err != nil {
		return nil, protocolError("SetColorMapEntriesMessage.Read", "invalid color map entries", err)
	}

	result := SetColorMapEntriesMessage{
		FirstColor: header.FirstColor,
		Colors:     make([]Color, header.NumColors),
	}
	for i := range result.Colors {
		if err := binary.Read(r, binary.BigEndian, &result.Colors[i]); err != nil {
			return nil, networkError("SetColorMapEntriesMessage.Read", "failed to read color data", err)
		}
	}

	c.mu.Lock()
	for i, color := range result.Colors {
		c.ColorMap[int(result.FirstColor)+i] = color
	}
	c.mu.Unlock()

	return &result, nil
}

// Events returns nothing; the colour map is connection state.
func (*SetColorMapEntriesMessage) Events() []PeerEvent {
	return nil
}

// BellMessage rings the client's bell.
type BellMessage byte

// Type returns 2.
func (*BellMessage) Type() uint8 {
	return 2
}

// Read returns a BellMessage; it has no body.
func (*BellMessage) Read(*ClientConn, io.Reader) (ServerMessage, error) {
	return new(BellMessage), nil
}

// Events returns a BellEvent.
func (*BellMessage) Events() []PeerEvent {
	return []PeerEvent{BellEvent{}}
}

// ServerCutTextMessage carries the server's clipboard text.
type ServerCutTextMessage struct {
	Text string
}

// Type returns 3.
func (*ServerCutTextMessage) Type() uint8 {
	return 3
}

// Read decodes the clipboard text, sanitizing anything unprintable.
func (*ServerCutTextMessage) Read(c *ClientConn, r io.Reader) (ServerMessage, error) {
	validator := newInputValidator()

	var header struct {
		Padding [3]uint8
		Length  uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, networkError("ServerCutTextMessage.Read", "failed to read message header", err)
	}

	if err := validator.ValidateMessageLength(header.Length, MaxServerClipboardLength); err != nil {
		return nil, protocolError("ServerCutTextMessage.Read", "invalid clipboard text length", err)
	}

	textBytes := make([]byte, header.Length)
	if _, err := io.ReadFull(r, textBytes); err != nil {
		return nil, networkError("ServerCutTextMessage.Read", "failed to read text data", err)
	}

	clipboardText := string(textBytes)
	if err := validator.ValidateTextData(clipboardText, MaxServerClipboardLength); err != nil {
		c.logger.Warn("Invalid clipboard text received from server, sanitizing",
			Field{Key: "original_length", Value: len(clipboardText)},
			Field{Key: "error", Value: err})
		clipboardText = validator.SanitizeText(clipboardText)
	}

	return &ServerCutTextMessage{clipboardText}, nil
}

// Events returns a ClipboardEvent.
func (m *ServerCutTextMessage) Events() []PeerEvent {
	return []PeerEvent{ClipboardEvent{Text: m.Text}}
}
