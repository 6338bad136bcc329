// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenthirtyam/vncdriver"
)

func TestOutputPath(t *testing.T) {
	now := time.Date(2024, 3, 5, 7, 8, 9, 10, time.UTC)
	dir := t.TempDir()

	path, gotDir, err := outputPath(dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "frame_2024-03-05T07-08-09.000000010Z.png"), path)
	assert.Equal(t, dir, gotDir)

	file := filepath.Join(dir, "shot.png")
	path, gotDir, err = outputPath(file, now)
	require.NoError(t, err)
	assert.Equal(t, file, path)
	assert.Equal(t, dir, gotDir)

	path, gotDir, err = outputPath("", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".", frameFileName(now)), path)
	assert.Equal(t, ".", gotDir)
}

func TestTypedText(t *testing.T) {
	text, err := typedText([]string{"hello", "world"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	text, err = typedText(nil, strings.NewReader("from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", text)
}

func TestReadLine(t *testing.T) {
	line, err := readLine(strings.NewReader("secret\r\nrest"))
	require.NoError(t, err)
	assert.Equal(t, "secret", line)

	line, err = readLine(strings.NewReader("no newline"))
	require.NoError(t, err)
	assert.Equal(t, "no newline", line)
}

func TestNewestFrame(t *testing.T) {
	dir := t.TempDir()

	frame, err := newestFrame(dir)
	require.NoError(t, err)
	assert.Nil(t, frame)

	frame, err = newestFrame(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Nil(t, frame)

	older := filepath.Join(dir, "older.png")
	newer := filepath.Join(dir, "newer.png")
	require.NoError(t, vncdriver.NewFrame(1, 1).SavePNG(older))
	require.NoError(t, vncdriver.NewFrame(3, 2).SavePNG(newer))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	frame, err = newestFrame(dir)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, vncdriver.Resolution{Width: 3, Height: 2}, frame.Resolution())
}

func TestResolveFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vncdriver.toml")
	require.NoError(t, os.WriteFile(path, []byte("address = \"file:5900\"\nlog_level = \"debug\"\n"), 0o600))

	opts := &options{}
	flagSet := opts.flagSet("screenshot")
	require.NoError(t, flagSet.Parse([]string{
		"--config", path,
		"--address", "flag:5901",
		"--composite",
		"--idle-timeout", "250ms",
	}))

	cfg, err := opts.resolve(flagSet)
	require.NoError(t, err)
	assert.Equal(t, "flag:5901", cfg.Address)
	assert.Equal(t, "debug", cfg.LogLevel, "unset flags keep file values")
	assert.Equal(t, "composite", cfg.CaptureMode)
	assert.Equal(t, 250*time.Millisecond, cfg.IdleTimeout.Duration)
}

func TestResolveRejectsConflicts(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
	}{
		{"both modes", "screenshot", []string{"--composite", "--overwrite"}},
		{"invalid rate", "type", []string{"--rate", "0"}},
		{"bad log level", "type", []string{"--log-level", "chatty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &options{}
			flagSet := opts.flagSet(tt.command)
			require.NoError(t, flagSet.Parse(tt.args))

			_, err := opts.resolve(flagSet)
			assert.Error(t, err)
		})
	}
}

func TestRunUsageErrors(t *testing.T) {
	assert.Error(t, run(nil))
	assert.Error(t, run([]string{"paint"}))
	assert.Error(t, run([]string{"type", "--password-stdin"}))
	assert.NoError(t, run([]string{"help"}))
}
