// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bridge

import (
	"sync"

	"github.com/pion/mediadevices/pkg/frame"
)

// Frame is one decoded video frame ready for display.
type Frame struct {
	Width  int
	Height int
	Format frame.Format
	Data   []byte
}

// FrameBuffer is a single-slot hand-off between one producer and one
// consumer thread. A newly published frame always replaces an unconsumed
// one, so a slow consumer observes only the most recent frame and memory
// stays bounded to a single frame regardless of stream duration.
type FrameBuffer struct {
	mu         sync.Mutex
	current    Frame
	pending    bool
	overwrites uint64
}

// NewFrameBuffer creates an empty frame buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Publish stores a frame, replacing any unconsumed one. Never blocks.
func (b *FrameBuffer) Publish(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending {
		b.overwrites++
	}
	b.current = f
	b.pending = true
}

// Take returns the pending frame exactly once. The second return value is
// false when no unconsumed frame is stored. Never blocks.
func (b *FrameBuffer) Take() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.pending {
		return Frame{}, false
	}
	b.pending = false
	taken := b.current
	b.current = Frame{}

	return taken, true
}

// Clear drops the stored frame and releases its payload. Used during
// session teardown.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = Frame{}
	b.pending = false
}

// Overwrites returns how many unconsumed frames were replaced by a newer
// publish.
func (b *FrameBuffer) Overwrites() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.overwrites
}
