// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// serverPixelFormat is the format announced in ServerInit: 32bpp little
// endian with red in the high byte.
var serverPixelFormat = PixelFormat{
	BPP: 32, Depth: 24, TrueColor: true,
	RedMax: 255, GreenMax: 255, BlueMax: 255,
	RedShift: 16, GreenShift: 8, BlueShift: 0,
}

// MockVNCServer is a minimal RFB 3.8 server. It answers every
// FramebufferUpdateRequest with one raw rectangle covering the screen in
// Fill, and records the key events it receives.
type MockVNCServer struct {
	listener net.Listener
	wg       sync.WaitGroup
	stop     chan struct{}

	// Configuration, set before Start.
	AuthMethods []uint8
	Password    string
	FrameWidth  uint16
	FrameHeight uint16
	DesktopName string
	Fill        [3]byte

	// ResizeTo, when non-zero, is announced with the first update.
	ResizeTo Resolution

	mu          sync.Mutex
	pixelFormat PixelFormat
	encodings   []int32
	keys        []KeyEvent
	shared      []uint8
}

// NewMockVNCServer returns an 8x6 server without authentication.
func NewMockVNCServer() *MockVNCServer {
	return &MockVNCServer{
		AuthMethods: []uint8{1},
		FrameWidth:  8,
		FrameHeight: 6,
		DesktopName: "Mock VNC Server",
		Fill:        [3]byte{255, 0, 0},
		pixelFormat: serverPixelFormat,
		stop:        make(chan struct{}),
	}
}

// Start listens on a random local port and stops the server on test cleanup.
func (m *MockVNCServer) Start(t *testing.T) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("error listening: %s", err)
	}
	m.listener = listener

	m.wg.Add(1)
	go m.serve()
	t.Cleanup(m.Stop)
}

// Stop closes the listener and waits for the accept loop.
func (m *MockVNCServer) Stop() {
	select {
	case <-m.stop:
		return
	default:
	}
	close(m.stop)
	m.listener.Close()
	m.wg.Wait()
}

// Addr returns the server address.
func (m *MockVNCServer) Addr() string {
	return m.listener.Addr().String()
}

func (m *MockVNCServer) serve() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.handleConnection(conn)
	}
}

func (m *MockVNCServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return
	}
	if err := m.handleProtocolVersion(conn); err != nil {
		return
	}
	if err := m.handleSecurity(conn); err != nil {
		return
	}
	if err := m.handleClientInit(conn); err != nil {
		return
	}
	if err := m.handleServerInit(conn); err != nil {
		return
	}
	m.handleMessages(conn)
}

func (m *MockVNCServer) handleProtocolVersion(conn net.Conn) error {
	if _, err := conn.Write([]byte("RFB 003.008\n")); err != nil {
		return err
	}
	buf := make([]byte, pvLen)
	_, err := io.ReadFull(conn, buf)
	return err
}

func (m *MockVNCServer) handleSecurity(conn net.Conn) error {
	authMethodsLen := uint8(len(m.AuthMethods)) // #nosec G115 - Test code with small arrays
	if err := binary.Write(conn, binary.BigEndian, authMethodsLen); err != nil {
		return err
	}
	if _, err := conn.Write(m.AuthMethods); err != nil {
		return err
	}

	var chosenType uint8
	if err := binary.Read(conn, binary.BigEndian, &chosenType); err != nil {
		return err
	}

	switch chosenType {
	case 1:
		return binary.Write(conn, binary.BigEndian, uint32(0))
	case 2:
		return m.handleVNCAuth(conn)
	default:
		return m.rejectSecurity(conn, "unsupported security type")
	}
}

func (m *MockVNCServer) handleVNCAuth(conn net.Conn) error {
	challenge := make([]byte, VNCChallengeSize)
	for i := range challenge {
		challenge[i] = byte(i * 7)
	}
	if _, err := conn.Write(challenge); err != nil {
		return err
	}

	response := make([]byte, VNCChallengeSize)
	if _, err := io.ReadFull(conn, response); err != nil {
		return err
	}

	expected, err := encryptChallenge(m.Password, challenge)
	if err != nil {
		return err
	}
	if !bytes.Equal(expected, response) {
		if err := m.rejectSecurity(conn, "authentication failed"); err != nil {
			return err
		}
		return io.EOF
	}
	return binary.Write(conn, binary.BigEndian, uint32(0))
}

func (m *MockVNCServer) rejectSecurity(conn net.Conn, reason string) error {
	if err := binary.Write(conn, binary.BigEndian, uint32(1)); err != nil {
		return err
	}
	if err := binary.Write(conn, binary.BigEndian, uint32(len(reason))); err != nil { // #nosec G115 - short literal
		return err
	}
	_, err := conn.Write([]byte(reason))
	return err
}

func (m *MockVNCServer) handleClientInit(conn net.Conn) error {
	var shared uint8
	if err := binary.Read(conn, binary.BigEndian, &shared); err != nil {
		return err
	}
	m.mu.Lock()
	m.shared = append(m.shared, shared)
	m.mu.Unlock()
	return nil
}

func (m *MockVNCServer) handleServerInit(conn net.Conn) error {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, [2]uint16{m.FrameWidth, m.FrameHeight})
	buf.Write(writePixelFormat(&serverPixelFormat))
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(m.DesktopName))) // #nosec G115 - short name
	buf.WriteString(m.DesktopName)
	_, err := conn.Write(buf.Bytes())
	return err
}

func (m *MockVNCServer) handleMessages(conn net.Conn) {
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		var msgType uint8
		if err := binary.Read(conn, binary.BigEndian, &msgType); err != nil {
			return
		}

		var err error
		switch msgType {
		case 0:
			err = m.readSetPixelFormat(conn)
		case 2:
			err = m.readSetEncodings(conn)
		case 3:
			err = m.readUpdateRequest(conn)
		case 4:
			err = m.readKeyEvent(conn)
		default:
			return
		}
		if err != nil {
			return
		}
	}
}

func (m *MockVNCServer) readSetPixelFormat(conn net.Conn) error {
	buf := make([]byte, 3+pixelFormatSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return err
	}
	var pf PixelFormat
	if err := readPixelFormat(bytes.NewReader(buf[3:]), &pf); err != nil {
		return err
	}
	m.mu.Lock()
	m.pixelFormat = pf
	m.mu.Unlock()
	return nil
}

func (m *MockVNCServer) readSetEncodings(conn net.Conn) error {
	var header struct {
		Padding uint8
		Count   uint16
	}
	if err := binary.Read(conn, binary.BigEndian, &header); err != nil {
		return err
	}
	encodings := make([]int32, header.Count)
	if err := binary.Read(conn, binary.BigEndian, encodings); err != nil {
		return err
	}
	m.mu.Lock()
	m.encodings = encodings
	m.mu.Unlock()
	return nil
}

func (m *MockVNCServer) readKeyEvent(conn net.Conn) error {
	var msg struct {
		Down    uint8
		Padding [2]uint8
		Key     uint32
	}
	if err := binary.Read(conn, binary.BigEndian, &msg); err != nil {
		return err
	}
	m.mu.Lock()
	m.keys = append(m.keys, KeyEvent{Key: Keysym(msg.Key), Down: msg.Down != 0})
	m.mu.Unlock()
	return nil
}

func (m *MockVNCServer) readUpdateRequest(conn net.Conn) error {
	var msg struct {
		Incremental         uint8
		X, Y, Width, Height uint16
	}
	if err := binary.Read(conn, binary.BigEndian, &msg); err != nil {
		return err
	}

	m.mu.Lock()
	var resize *Resolution
	if m.ResizeTo.Width > 0 {
		res := m.ResizeTo
		resize = &res
		m.FrameWidth, m.FrameHeight = uint16(res.Width), uint16(res.Height) // #nosec G115 - test sizes
		m.ResizeTo = Resolution{}
	}
	width, height := m.FrameWidth, m.FrameHeight
	pf := m.pixelFormat
	fill := m.Fill
	m.mu.Unlock()

	return m.sendUpdate(conn, pf, fill, width, height, resize)
}

// sendUpdate writes a FramebufferUpdate holding an optional DesktopSize
// rectangle followed by a full-screen raw rectangle.
func (m *MockVNCServer) sendUpdate(conn net.Conn, pf PixelFormat, fill [3]byte, width, height uint16, resize *Resolution) error {
	var buf bytes.Buffer
	numRects := uint16(1)
	if resize != nil {
		numRects++
	}
	_ = binary.Write(&buf, binary.BigEndian, struct {
		Type     uint8
		Padding  uint8
		NumRects uint16
	}{0, 0, numRects})

	type rectHeader struct {
		X, Y, Width, Height uint16
		Encoding            int32
	}
	if resize != nil {
		_ = binary.Write(&buf, binary.BigEndian, rectHeader{0, 0, width, height, -223})
	}
	_ = binary.Write(&buf, binary.BigEndian, rectHeader{0, 0, width, height, 0})

	pixel := encodeTestPixel(pf, fill)
	for i := 0; i < int(width)*int(height); i++ {
		buf.Write(pixel)
	}

	_, err := conn.Write(buf.Bytes())
	return err
}

// encodeTestPixel encodes an 8-bit RGB colour in a 32bpp true-colour format.
func encodeTestPixel(pf PixelFormat, rgb [3]byte) []byte {
	value := uint32(rgb[0])<<pf.RedShift | uint32(rgb[1])<<pf.GreenShift | uint32(rgb[2])<<pf.BlueShift
	out := make([]byte, 4)
	if pf.BigEndian {
		binary.BigEndian.PutUint32(out, value)
	} else {
		binary.LittleEndian.PutUint32(out, value)
	}
	return out
}

// SetFill changes the colour of later updates.
func (m *MockVNCServer) SetFill(rgb [3]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fill = rgb
}

func (m *MockVNCServer) receivedKeys() []KeyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]KeyEvent(nil), m.keys...)
}

func (m *MockVNCServer) receivedEncodings() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int32(nil), m.encodings...)
}

func (m *MockVNCServer) receivedPixelFormat() PixelFormat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pixelFormat
}

func (m *MockVNCServer) sharedFlags() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint8(nil), m.shared...)
}
