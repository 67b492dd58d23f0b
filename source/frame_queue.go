// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package source

import (
	"errors"
	"image"
	"sync"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrQueueClosed      = errors.New("frame queue closed")
	ErrNoFrameAvailable = errors.New("no frame available")
)

const frameQueueDepth = 8

// FrameQueue is a small drop-oldest queue of raw frames feeding the
// software encoder. It implements the mediadevices video source shape
// (ID/Read/Close), so a VideoTrack can read from it directly.
type FrameQueue struct {
	frameChan   chan image.Image
	closeChan   chan struct{}
	closeOnce   sync.Once
	width       int
	height      int
	initialized bool
	black       *image.YCbCr
}

// blackFrame returns the queue's warm-up frame, matching its own
// dimensions, allocated on first use. Each queue owns its frame so
// queues of different sizes never feed each other's encoder.
func (q *FrameQueue) blackFrame() *image.YCbCr {
	if q.black == nil {
		ySize := q.width * q.height
		uvSize := ySize / 4
		data := make([]byte, ySize+2*uvSize)

		// Y stays zero (black); chroma planes are neutral.
		for i := range data[ySize:] {
			data[ySize+i] = 128
		}

		q.black = &image.YCbCr{
			Y:              data[:ySize],
			Cb:             data[ySize : ySize+uvSize],
			Cr:             data[ySize+uvSize:],
			YStride:        q.width,
			CStride:        q.width / 2,
			Rect:           image.Rect(0, 0, q.width, q.height),
			SubsampleRatio: image.YCbCrSubsampleRatio420,
		}
	}

	return q.black
}

// NewFrameQueue creates a queue for frames of the given dimensions.
func NewFrameQueue(width, height int) *FrameQueue {
	return &FrameQueue{
		frameChan: make(chan image.Image, frameQueueDepth),
		closeChan: make(chan struct{}),
		width:     width,
		height:    height,
	}
}

// ID identifies the queue as a video source.
func (q *FrameQueue) ID() string {
	return "frame-queue"
}

// SetInitialized stops the black-frame fallback once the encoder is
// fully wired.
func (q *FrameQueue) SetInitialized() {
	q.initialized = true
}

// Read returns the next frame. During encoder initialization a black
// frame is substituted after a short timeout so the encoder never
// blocks indefinitely.
func (q *FrameQueue) Read() (image.Image, func(), error) {
	timer := time.NewTimer(100 * time.Millisecond)
	defer timer.Stop()

	select {
	case img := <-q.frameChan:
		return img, func() {}, nil
	case <-q.closeChan:
		return nil, func() {}, ErrQueueClosed
	case <-timer.C:
		if !q.initialized {
			return q.blackFrame(), func() {}, nil
		}

		return nil, func() {}, ErrNoFrameAvailable
	}
}

// Push enqueues a frame, dropping the oldest queued frame when full.
func (q *FrameQueue) Push(img image.Image) error {
	select {
	case <-q.closeChan:
		return ErrQueueClosed
	default:
	}

	for {
		select {
		case q.frameChan <- img:
			return nil
		default:
		}
		select {
		case <-q.frameChan:
		default:
		}
	}
}

// Close releases the queue.
func (q *FrameQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.closeChan)
	})

	return nil
}
