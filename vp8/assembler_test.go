// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package vp8

import (
	"testing"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssembler() *Assembler {
	return NewAssembler(logging.NewDefaultLoggerFactory().NewLogger("assembler_test"))
}

func TestAssemblerGatesOnKeyframe(t *testing.T) {
	a := newTestAssembler()

	// An inter frame before any keyframe is dropped.
	complete, _, _ := a.depayloader.ProcessPacket(vp8Packet(1000, true, []byte{0x01, 0xaa}))
	require.False(t, complete)
	ready, frame, _, _ := a.ProcessPacket(vp8Packet(2000, true, []byte{0x00, 0xbb}))
	assert.False(t, ready, "completing an inter frame before a keyframe yields nothing")
	assert.Nil(t, frame)

	// Completing the keyframe (by starting the next frame) emits it.
	ready, frame, isKeyframe, count := a.ProcessPacket(vp8Packet(3000, true, []byte{0x01, 0xcc}))
	require.True(t, ready)
	assert.True(t, isKeyframe)
	assert.Equal(t, []byte{0x00, 0xbb}, frame)
	assert.Equal(t, uint64(1), count)
}

func TestAssemblerCountsFrames(t *testing.T) {
	a := newTestAssembler()

	// Keyframe then two inter frames, each completed by its successor.
	a.ProcessPacket(vp8Packet(1000, true, []byte{0x00, 0x01}))
	ready, _, isKeyframe, _ := a.ProcessPacket(vp8Packet(2000, true, []byte{0x01, 0x02}))
	require.True(t, ready)
	assert.True(t, isKeyframe)

	ready, _, isKeyframe, _ = a.ProcessPacket(vp8Packet(3000, true, []byte{0x01, 0x03}))
	require.True(t, ready)
	assert.False(t, isKeyframe)

	ready, _, _, count := a.Flush()
	require.True(t, ready)
	assert.Equal(t, uint64(3), count)
	assert.Equal(t, uint64(3), a.FrameCount())
}

func TestAssemblerFlushEmpty(t *testing.T) {
	a := newTestAssembler()

	ready, frame, _, _ := a.Flush()
	assert.False(t, ready)
	assert.Nil(t, frame)
}
