// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package vp8

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterHeader(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 640, 480)
	require.NoError(t, err)

	header := buf.Bytes()
	require.Len(t, header, 32)
	assert.Equal(t, "DKIF", string(header[0:4]))
	assert.Equal(t, "VP80", string(header[8:12]))
	assert.Equal(t, uint16(640), binary.LittleEndian.Uint16(header[12:]))
	assert.Equal(t, uint16(480), binary.LittleEndian.Uint16(header[14:]))

	assert.NoError(t, w.Close())
}

func TestWriterRoundTripThroughIVFReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ivf")
	file, err := os.Create(path)
	require.NoError(t, err)

	w, err := NewWriter(file, 320, 240)
	require.NoError(t, err)

	frames := [][]byte{{0x00, 0x01, 0x02}, {0x01, 0x03}, {0x01, 0x04, 0x05, 0x06}}
	for i, frame := range frames {
		require.NoError(t, w.WriteFrame(frame, uint64(i)))
	}
	assert.Equal(t, uint64(3), w.FrameCount())
	require.NoError(t, w.Close())

	readBack, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = readBack.Close() }()

	reader, header, err := ivfreader.NewWith(readBack)
	require.NoError(t, err)
	assert.Equal(t, "VP80", header.FourCC)
	assert.Equal(t, uint16(320), header.Width)
	assert.Equal(t, uint32(3), header.NumFrames, "frame count must be patched on Close")

	for i, expected := range frames {
		frame, frameHeader, err := reader.ParseNextFrame()
		require.NoError(t, err)
		assert.Equal(t, expected, frame)
		assert.Equal(t, uint64(i), frameHeader.Timestamp)
	}
}

func TestWriterNonSeekableOutput(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 640, 480)
	require.NoError(t, err)

	require.NoError(t, w.WriteFrame([]byte{0x00, 0x01}, 0))
	require.NoError(t, w.Close())

	// Header frame count stays zero without seeking; the frame body is
	// still intact.
	header := buf.Bytes()[:32]
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(header[24:]))
	assert.Equal(t, 32+12+2, buf.Len())
}
