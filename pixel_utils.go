// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"encoding/binary"
	"io"
)

// PixelReader decodes wire pixels into colours for one pixel format and
// colour map.
type PixelReader struct {
	pixelFormat PixelFormat
	colorMap    [ColorMapSize]Color
	byteOrder   binary.ByteOrder
	buf         [4]byte
}

// NewPixelReader creates a reader for pixelFormat. colorMap is consulted
// only for indexed formats.
func NewPixelReader(pixelFormat PixelFormat, colorMap [ColorMapSize]Color) *PixelReader {
	var byteOrder binary.ByteOrder = binary.LittleEndian
	if pixelFormat.BigEndian {
		byteOrder = binary.BigEndian
	}

	return &PixelReader{
		pixelFormat: pixelFormat,
		colorMap:    colorMap,
		byteOrder:   byteOrder,
	}
}

// BytesPerPixel returns the wire size of one pixel.
func (pr *PixelReader) BytesPerPixel() int {
	return pr.pixelFormat.BytesPerPixel()
}

// ReadPixelColor reads one pixel from r.
func (pr *PixelReader) ReadPixelColor(r io.Reader) (Color, error) {
	pixelBytes := pr.buf[:pr.BytesPerPixel()]
	if _, err := io.ReadFull(r, pixelBytes); err != nil {
		return Color{}, err
	}
	return pr.pixelToColor(pr.bytesToPixel(pixelBytes)), nil
}

// ReadRGBA reads count pixels from r and returns them as RGBA bytes.
func (pr *PixelReader) ReadRGBA(r io.Reader, count int) ([]byte, error) {
	bpp := pr.BytesPerPixel()
	raw := make([]byte, count*bpp)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	out := make([]byte, count*BytesPerPixel)
	for i := 0; i < count; i++ {
		color := pr.pixelToColor(pr.bytesToPixel(raw[i*bpp : (i+1)*bpp]))
		color.put(out[i*BytesPerPixel:])
	}
	return out, nil
}

func (pr *PixelReader) bytesToPixel(pixelBytes []uint8) uint32 {
	switch pr.pixelFormat.BPP {
	case 8:
		return uint32(pixelBytes[0])
	case 16:
		return uint32(pr.byteOrder.Uint16(pixelBytes))
	case 32:
		return pr.byteOrder.Uint32(pixelBytes)
	default:
		return 0
	}
}

// pixelToColor extracts and scales the colour components of a raw pixel.
func (pr *PixelReader) pixelToColor(rawPixel uint32) Color {
	pf := pr.pixelFormat
	if !pf.TrueColor {
		return pr.colorMap[rawPixel&0xff]
	}
	return Color{
		R: scaleComponent(uint16((rawPixel>>pf.RedShift)&uint32(pf.RedMax)), pf.RedMax),       // #nosec G115 - masked by RedMax
		G: scaleComponent(uint16((rawPixel>>pf.GreenShift)&uint32(pf.GreenMax)), pf.GreenMax), // #nosec G115 - masked by GreenMax
		B: scaleComponent(uint16((rawPixel>>pf.BlueShift)&uint32(pf.BlueMax)), pf.BlueMax),    // #nosec G115 - masked by BlueMax
	}
}

// pixelReader returns a PixelReader for the connection's current format.
func (c *ClientConn) pixelReader() *PixelReader {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return NewPixelReader(c.PixelFormat, c.ColorMap)
}
