// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package vp8

import (
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"
)

const frameTimeout = 500 * time.Millisecond

// Assembler turns a stream of VP8 RTP packets into complete frames. It
// gates output on the first keyframe and flushes frames abandoned for
// longer than the frame timeout.
type Assembler struct {
	depayloader   *Depayloader
	hasKeyframe   bool
	frameCount    uint64
	lastFrameTime time.Time
	log           logging.LeveledLogger
}

// NewAssembler creates a new VP8 frame assembler.
func NewAssembler(logger logging.LeveledLogger) *Assembler {
	return &Assembler{
		depayloader:   NewDepayloader(),
		lastFrameTime: time.Now(),
		log:           logger,
	}
}

// ProcessPacket processes an RTP packet. When a complete frame is
// available it returns true, the frame data, the keyframe flag and the
// frame's ordinal.
func (a *Assembler) ProcessPacket(packet *rtp.Packet) (bool, []byte, bool, uint64) {
	now := time.Now()
	if now.Sub(a.lastFrameTime) > frameTimeout {
		a.log.Debugf("frame timeout, flushing current frame")
		a.depayloader.Flush()
	}
	a.lastFrameTime = now

	complete, frameData, _ := a.depayloader.ProcessPacket(packet)
	if !complete || len(frameData) == 0 {
		return false, nil, false, 0
	}

	return a.emit(frameData)
}

// Flush forces completion of any in-progress frame.
func (a *Assembler) Flush() (bool, []byte, bool, uint64) {
	frameData, _, _ := a.depayloader.Flush()
	if len(frameData) == 0 {
		return false, nil, false, 0
	}

	return a.emit(frameData)
}

func (a *Assembler) emit(frameData []byte) (bool, []byte, bool, uint64) {
	isKeyframe := IsFrameKeyframe(frameData)
	if isKeyframe && !a.hasKeyframe {
		a.hasKeyframe = true
		a.log.Infof("first keyframe received")
	}

	// Inter frames before the first keyframe cannot be decoded.
	if !a.hasKeyframe {
		a.log.Debugf("dropping frame: no keyframe seen yet")

		return false, nil, false, 0
	}
	a.frameCount++

	return true, frameData, isKeyframe, a.frameCount
}

// FrameCount returns the number of frames emitted so far.
func (a *Assembler) FrameCount() uint64 {
	return a.frameCount
}
