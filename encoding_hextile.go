// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"encoding/binary"
	"io"
)

// Hextile subencoding flags and limits (RFC 6143 Section 7.7.4).
const (
	HextileRaw                 = 1
	HextileBackgroundSpecified = 2
	HextileForegroundSpecified = 4
	HextileAnySubrects         = 8
	HextileSubrectsColoured    = 16

	HextileTileSize = 16
)

// HextileEncoding splits a rectangle into 16x16 tiles, each raw or a
// background with solid subrectangles.
type HextileEncoding struct {
	Tiles []HextileTile
}

// HextileTile is one decoded tile, positioned relative to the rectangle.
type HextileTile struct {
	X, Y          int
	Width, Height int

	// Pixels is set for raw tiles.
	Pixels []byte

	Background    Color
	Subrectangles []HextileSubrectangle
}

// HextileSubrectangle is a solid area relative to its tile.
type HextileSubrectangle struct {
	Color         Color
	X, Y          uint8
	Width, Height uint8
}

// Type returns 5.
func (*HextileEncoding) Type() int32 {
	return 5
}

// Read decodes the tiles in row-major order. Background and foreground
// colours carry over from one tile to the next unless respecified.
func (*HextileEncoding) Read(c *ClientConn, rect *Rectangle, r io.Reader) (Encoding, error) {
	pixels := c.pixelReader()
	width, height := int(rect.Width), int(rect.Height)

	var tiles []HextileTile
	var background, foreground Color

	for tileY := 0; tileY < height; tileY += HextileTileSize {
		for tileX := 0; tileX < width; tileX += HextileTileSize {
			tile := HextileTile{
				X:      tileX,
				Y:      tileY,
				Width:  min(HextileTileSize, width-tileX),
				Height: min(HextileTileSize, height-tileY),
			}

			var subencoding uint8
			if err := binary.Read(r, binary.BigEndian, &subencoding); err != nil {
				return nil, encodingError("HextileEncoding.Read", "failed to read tile subencoding", err)
			}

			if subencoding&HextileRaw != 0 {
				raw, err := pixels.ReadRGBA(r, tile.Width*tile.Height)
				if err != nil {
					return nil, encodingError("HextileEncoding.Read", "failed to read raw tile pixels", err)
				}
				tile.Pixels = raw
				tiles = append(tiles, tile)
				continue
			}

			var err error
			if subencoding&HextileBackgroundSpecified != 0 {
				if background, err = pixels.ReadPixelColor(r); err != nil {
					return nil, encodingError("HextileEncoding.Read", "failed to read background color", err)
				}
			}
			tile.Background = background

			if subencoding&HextileForegroundSpecified != 0 {
				if foreground, err = pixels.ReadPixelColor(r); err != nil {
					return nil, encodingError("HextileEncoding.Read", "failed to read foreground color", err)
				}
			}

			if subencoding&HextileAnySubrects != 0 {
				if tile.Subrectangles, err = readHextileSubrects(pixels, r, subencoding, foreground, tile); err != nil {
					return nil, err
				}
			}
			tiles = append(tiles, tile)
		}
	}

	return &HextileEncoding{Tiles: tiles}, nil
}

func readHextileSubrects(pixels *PixelReader, r io.Reader, subencoding uint8, foreground Color, tile HextileTile) ([]HextileSubrectangle, error) {
	var count uint8
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, encodingError("HextileEncoding.Read", "failed to read subrectangle count", err)
	}

	subrects := make([]HextileSubrectangle, count)
	for i := range subrects {
		sub := &subrects[i]
		sub.Color = foreground
		if subencoding&HextileSubrectsColoured != 0 {
			color, err := pixels.ReadPixelColor(r)
			if err != nil {
				return nil, encodingError("HextileEncoding.Read", "failed to read subrectangle color", err)
			}
			sub.Color = color
		}

		var geometry [2]uint8
		if _, err := io.ReadFull(r, geometry[:]); err != nil {
			return nil, encodingError("HextileEncoding.Read", "failed to read subrectangle geometry", err)
		}
		sub.X = geometry[0] >> 4
		sub.Y = geometry[0] & 0x0f
		sub.Width = (geometry[1] >> 4) + 1
		sub.Height = (geometry[1] & 0x0f) + 1

		if int(sub.X)+int(sub.Width) > tile.Width || int(sub.Y)+int(sub.Height) > tile.Height {
			return nil, encodingError("HextileEncoding.Read", "subrectangle extends outside tile bounds", nil)
		}
	}
	return subrects, nil
}

// RGBA renders every tile into one buffer.
func (e *HextileEncoding) RGBA(width, height int) []byte {
	out := make([]byte, width*height*BytesPerPixel)
	for _, tile := range e.Tiles {
		if tile.Pixels != nil {
			rowBytes := tile.Width * BytesPerPixel
			for row := 0; row < tile.Height; row++ {
				dst := ((tile.Y+row)*width + tile.X) * BytesPerPixel
				copy(out[dst:dst+rowBytes], tile.Pixels[row*rowBytes:(row+1)*rowBytes])
			}
			continue
		}
		fillRGBA(out, width, tile.X, tile.Y, tile.Width, tile.Height, tile.Background)
		for _, sub := range tile.Subrectangles {
			fillRGBA(out, width, tile.X+int(sub.X), tile.Y+int(sub.Y), int(sub.Width), int(sub.Height), sub.Color)
		}
	}
	return out
}
