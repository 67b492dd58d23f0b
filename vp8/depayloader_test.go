// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package vp8

import (
	"encoding/binary"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vp8Packet builds an RTP packet with a minimal VP8 payload descriptor.
func vp8Packet(timestamp uint32, startBit bool, frameData []byte) *rtp.Packet {
	descriptor := byte(0x00)
	if startBit {
		descriptor |= 0x10
	}

	return &rtp.Packet{
		Header:  rtp.Header{Timestamp: timestamp},
		Payload: append([]byte{descriptor}, frameData...),
	}
}

func keyframeData(width, height uint16) []byte {
	data := make([]byte, 16)
	data[0] = 0x00 // P bit clear
	data[3] = 0x9d
	data[4] = 0x01
	data[5] = 0x2a
	binary.LittleEndian.PutUint16(data[6:], width)
	binary.LittleEndian.PutUint16(data[8:], height)

	return data
}

func TestIsKeyframe(t *testing.T) {
	testCases := []struct {
		name     string
		payload  []byte
		expected bool
	}{
		{
			name:     "keyframe",
			payload:  []byte{0x10, 0x00, 0xaa},
			expected: true,
		},
		{
			name:     "interframe",
			payload:  []byte{0x10, 0x01, 0xaa},
			expected: false,
		},
		{
			name:     "empty",
			payload:  nil,
			expected: false,
		},
		{
			name:     "descriptor only",
			payload:  []byte{0x10},
			expected: false,
		},
		{
			name: "extended descriptor with long picture id",
			// X set, I set, long PictureID: 4 descriptor bytes.
			payload:  []byte{0x90, 0x80, 0x80, 0x01, 0x00, 0xaa},
			expected: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsKeyframe(tc.payload))
		})
	}
}

func TestKeyframeDimensions(t *testing.T) {
	width, height, ok := KeyframeDimensions(keyframeData(640, 480))
	require.True(t, ok)
	assert.Equal(t, 640, width)
	assert.Equal(t, 480, height)

	_, _, ok = KeyframeDimensions([]byte{0x01, 0x00, 0x00})
	assert.False(t, ok, "interframe has no dimensions")

	_, _, ok = KeyframeDimensions(keyframeData(640, 480)[:8])
	assert.False(t, ok, "short data")

	bad := keyframeData(640, 480)
	bad[3] = 0x00
	_, _, ok = KeyframeDimensions(bad)
	assert.False(t, ok, "missing sync code")
}

func TestDepayloaderAssemblesAcrossPackets(t *testing.T) {
	d := NewDepayloader()

	// Two packets of frame A, then the first packet of frame B
	// completes A.
	complete, _, _ := d.ProcessPacket(vp8Packet(1000, true, []byte{0x01, 0xaa}))
	assert.False(t, complete)
	complete, _, _ = d.ProcessPacket(vp8Packet(1000, false, []byte{0xbb}))
	assert.False(t, complete)

	complete, frame, timestamp := d.ProcessPacket(vp8Packet(2000, true, []byte{0x01, 0xcc}))
	require.True(t, complete)
	assert.Equal(t, []byte{0x01, 0xaa, 0xbb}, frame)
	assert.Equal(t, uint32(1000), timestamp)
}

func TestDepayloaderFlush(t *testing.T) {
	d := NewDepayloader()

	complete, _, _ := d.ProcessPacket(vp8Packet(1000, true, []byte{0x00, 0xaa}))
	require.False(t, complete)

	frame, isKeyframe, timestamp := d.Flush()
	assert.Equal(t, []byte{0x00, 0xaa}, frame)
	assert.True(t, isKeyframe)
	assert.Equal(t, uint32(1000), timestamp)

	// Nothing left after the flush.
	frame, _, _ = d.Flush()
	assert.Nil(t, frame)
}

func TestDepayloaderIgnoresEmptyPackets(t *testing.T) {
	d := NewDepayloader()

	complete, frame, _ := d.ProcessPacket(nil)
	assert.False(t, complete)
	assert.Nil(t, frame)

	complete, frame, _ = d.ProcessPacket(&rtp.Packet{})
	assert.False(t, complete)
	assert.Nil(t, frame)
}

func TestIsFrameKeyframe(t *testing.T) {
	assert.True(t, IsFrameKeyframe([]byte{0x00}))
	assert.False(t, IsFrameKeyframe([]byte{0x01}))
	assert.False(t, IsFrameKeyframe(nil))
}
