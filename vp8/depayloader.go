// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package vp8 implements the VP8 receive pipeline: RTP depayloading,
// frame assembly, decoding and IVF archival.
package vp8

import (
	"encoding/binary"

	"github.com/pion/rtp"
)

// Depayloader strips VP8 RTP payload descriptors and reassembles frame
// payloads split across packets of one RTP timestamp.
type Depayloader struct {
	currentFrame        []byte
	currentFrameIsFirst bool
	currentTimestamp    uint32
	frameComplete       bool
}

// NewDepayloader creates a new VP8 depayloader.
func NewDepayloader() *Depayloader {
	return &Depayloader{}
}

// IsKeyframe checks if the VP8 frame is a keyframe.
// VP8 keyframes are identified by the P bit in the frame header.
// See https://tools.ietf.org/html/rfc6386#section-9.1.
func IsKeyframe(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}

	descriptorSize := descriptorSize(payload)
	if descriptorSize < 0 {
		return false
	}
	if len(payload) <= descriptorSize {
		return false
	}

	// The P bit (0x01) being 0 indicates a key frame.
	return (payload[descriptorSize] & 0x01) == 0
}

// KeyframeDimensions parses width and height from the uncompressed
// header of a depayloaded VP8 keyframe. The third return value is false
// when the data is not a keyframe or too short.
func KeyframeDimensions(frame []byte) (width, height int, ok bool) {
	// 3-byte frame tag, 3-byte sync code, two 16-bit dimension fields.
	if len(frame) < 10 {
		return 0, 0, false
	}
	if frame[0]&0x01 != 0 {
		return 0, 0, false
	}
	if frame[3] != 0x9d || frame[4] != 0x01 || frame[5] != 0x2a {
		return 0, 0, false
	}

	width = int(binary.LittleEndian.Uint16(frame[6:]) & 0x3fff)
	height = int(binary.LittleEndian.Uint16(frame[8:]) & 0x3fff)
	if width == 0 || height == 0 {
		return 0, 0, false
	}

	return width, height, true
}

// descriptorSize calculates the size of the VP8 payload descriptor.
func descriptorSize(payload []byte) int {
	if len(payload) < 1 {
		return -1
	}

	size := 1
	if payload[0]&0x80 == 0 { // X bit - no extended control bits
		return size
	}

	size++
	if len(payload) < size {
		return -1
	}

	if payload[1]&0x80 != 0 { // I bit - PictureID present
		if len(payload) < size+1 {
			return -1
		}
		if payload[size]&0x80 != 0 {
			size += 2 // long PictureID
		} else {
			size++
		}
	}
	if payload[1]&0x40 != 0 { // L bit - TL0PICIDX present
		size++
	}
	if payload[1]&0x20 != 0 { // T/K bit - TID/KEYIDX present
		size++
	}

	return size
}

// ProcessPacket processes a VP8 RTP packet. It returns a complete frame
// and its RTP timestamp when the packet's timestamp shows the previous
// frame finished.
func (d *Depayloader) ProcessPacket(packet *rtp.Packet) (bool, []byte, uint32) {
	if packet == nil || len(packet.Payload) == 0 {
		return false, nil, 0
	}

	payload := packet.Payload
	timestamp := packet.Timestamp

	// A timestamp change closes the in-progress frame.
	if d.currentTimestamp != timestamp && d.currentTimestamp != 0 && len(d.currentFrame) > 0 {
		d.frameComplete = true
	}

	if d.frameComplete {
		completeFrame := d.currentFrame
		completeTimestamp := d.currentTimestamp

		d.currentFrame = nil
		d.frameComplete = false
		d.currentFrameIsFirst = false
		d.currentTimestamp = timestamp

		frame, isFirst := d.stripDescriptor(payload)
		d.currentFrame = frame
		d.currentFrameIsFirst = isFirst

		return true, completeFrame, completeTimestamp
	}

	if d.currentTimestamp == 0 {
		d.currentTimestamp = timestamp
	}

	frame, isFirst := d.stripDescriptor(payload)
	if d.currentTimestamp != timestamp {
		d.currentTimestamp = timestamp
		d.currentFrame = frame
		d.currentFrameIsFirst = isFirst
	} else {
		d.currentFrame = append(d.currentFrame, frame...)
		if isFirst {
			d.currentFrameIsFirst = true
		}
	}

	return false, nil, 0
}

// stripDescriptor extracts the VP8 frame data from an RTP payload. The
// second return value reports the descriptor's start bit.
func (d *Depayloader) stripDescriptor(payload []byte) ([]byte, bool) {
	size := descriptorSize(payload)
	if size < 0 || len(payload) <= size {
		return nil, false
	}

	return payload[size:], payload[0]&0x10 != 0
}

// Flush forces completion of the in-progress frame and returns it with
// its keyframe flag and timestamp.
func (d *Depayloader) Flush() ([]byte, bool, uint32) {
	if len(d.currentFrame) == 0 {
		return nil, false, 0
	}

	frame := d.currentFrame
	isFirst := d.currentFrameIsFirst
	timestamp := d.currentTimestamp

	d.currentFrame = nil
	d.currentFrameIsFirst = false
	d.frameComplete = false

	isKeyframe := isFirst && IsFrameKeyframe(frame)

	return frame, isKeyframe, timestamp
}

// IsFrameKeyframe reports whether an assembled, descriptor-stripped
// frame is a keyframe.
func IsFrameKeyframe(frame []byte) bool {
	return len(frame) > 0 && frame[0]&0x01 == 0
}
