// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package vncdriver

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() *Frame {
	frame := NewFrame(3, 2)
	for i := range frame.Pix {
		frame.Pix[i] = byte(i * 11)
	}
	for i := 3; i < len(frame.Pix); i += 4 {
		frame.Pix[i] = 0xff
	}
	return frame
}

func TestFrame_PNGRoundTrip(t *testing.T) {
	frame := testFrame()

	var buf bytes.Buffer
	require.NoError(t, frame.WritePNG(&buf))

	decoded, err := ReadFramePNG(&buf)
	require.NoError(t, err)
	assert.Equal(t, frame.Resolution(), decoded.Resolution())
	assert.Equal(t, frame.Pix, decoded.Pix)
}

func TestFrame_SaveAndLoad(t *testing.T) {
	frame := testFrame()
	path := filepath.Join(t.TempDir(), "frame.png")

	require.NoError(t, frame.SavePNG(path))
	loaded, err := LoadFramePNG(path)
	require.NoError(t, err)
	assert.Equal(t, frame.Pix, loaded.Pix)

	_, err = LoadFramePNG(filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, IsVNCError(err, ErrConfiguration))

	_, err = ReadFramePNG(bytes.NewReader([]byte("not a png")))
	assert.True(t, IsVNCError(err, ErrEncoding))
}

func TestFrame_FromImageOffsetBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	img.Set(6, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	frame := FrameFromImage(img)
	assert.Equal(t, Resolution{Width: 2, Height: 1}, frame.Resolution())
	assert.Equal(t, [4]byte{1, 2, 3, 255}, pixelAt(frame, 1, 0))
}

func TestFrame_CloneIsDeep(t *testing.T) {
	frame := testFrame()
	clone := frame.Clone()
	clone.Pix[0] = 0x42
	assert.NotEqual(t, frame.Pix[0], clone.Pix[0])
}

func TestFrameStore_LoadStore(t *testing.T) {
	ctx := context.Background()
	store := NewFrameStore(nil)

	frame, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, frame)

	_, ok, err := store.Resolution(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	original := testFrame()
	require.NoError(t, store.Store(ctx, original))
	original.Pix[0] = 0x99

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0), loaded.Pix[0], "store keeps its own copy")

	loaded.Pix[1] = 0x99
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(11), again.Pix[1], "load returns a copy")

	res, ok, err := store.Resolution(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Resolution{Width: 3, Height: 2}, res)
}

func TestFrameStore_LockContention(t *testing.T) {
	store := NewFrameStore(testFrame())
	require.NoError(t, store.lock(context.Background(), "test"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := store.Load(ctx)
	assert.True(t, IsVNCError(err, ErrLockContention))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	store.unlock()
	_, err = store.Load(context.Background())
	assert.NoError(t, err)
}

func TestFrameStore_WaitsForHolder(t *testing.T) {
	store := NewFrameStore(nil)
	require.NoError(t, store.lock(context.Background(), "test"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		store.unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, store.Store(ctx, testFrame()))
}
