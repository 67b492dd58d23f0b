// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package vp8

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
)

// Static errors for err113 compliance.
var (
	ErrDecoderCreationFailed = errors.New("VP8 decoder creation failed")
	ErrDecoderCloseFailed    = errors.New("decoder close failed")
)

// frameFeeder implements io.Reader to feed assembled frames to the
// decoder without blocking the network thread.
type frameFeeder struct {
	frameChan chan []byte
	current   []byte
	offset    int
	mu        sync.Mutex
}

func newFrameFeeder() *frameFeeder {
	return &frameFeeder{frameChan: make(chan []byte, 10)}
}

func (f *frameFeeder) Read(buffer []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != nil && f.offset < len(f.current) {
		return f.readCurrent(buffer), nil
	}

	select {
	case frame := <-f.frameChan:
		if frame == nil {
			return 0, io.EOF
		}
		f.current = frame
		f.offset = 0

		return f.readCurrent(buffer), nil
	default:
		return 0, nil
	}
}

func (f *frameFeeder) readCurrent(buffer []byte) int {
	n := copy(buffer, f.current[f.offset:])
	f.offset += n
	if f.offset >= len(f.current) {
		f.current = nil
		f.offset = 0
	}

	return n
}

func (f *frameFeeder) feed(data []byte) {
	defer func() {
		// The channel may already be closed during teardown.
		_ = recover()
	}()

	select {
	case f.frameChan <- data:
	default:
		// Feeder full, drop the frame.
	}
}

func (f *frameFeeder) close() {
	close(f.frameChan)
}

// FrameCallback receives each decoded frame.
type FrameCallback func(img image.Image)

// videoDecoder is the slice of the external decoder the read loop
// depends on.
type videoDecoder interface {
	Read() (image.Image, func(), error)
	Close() error
}

// Decoder runs the external VP8 decoder over assembled frames and emits
// decoded images through a callback from its own reader goroutine.
type Decoder struct {
	decoder  videoDecoder
	feeder   *frameFeeder
	callback FrameCallback

	frameCounter int
	counterMu    sync.Mutex

	done     chan struct{}
	finished chan struct{}

	log logging.LeveledLogger
}

// NewDecoder creates a decoder for frames of the given dimensions,
// normally parsed from the first keyframe.
func NewDecoder(width, height int, callback FrameCallback, logger logging.LeveledLogger) (*Decoder, error) {
	feeder := newFrameFeeder()
	videoDecoder, err := vpx.NewDecoder(feeder, prop.Media{
		Video: prop.Video{Width: width, Height: height},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoderCreationFailed, err)
	}

	dec := &Decoder{
		decoder:  videoDecoder,
		feeder:   feeder,
		callback: callback,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		log:      logger,
	}
	go dec.readLoop()

	return dec, nil
}

func (d *Decoder) readLoop() {
	defer close(d.finished)
	for {
		select {
		case <-d.done:
			return
		default:
			// EOF backs off like any other error: after the feeder
			// closes, the loop would otherwise spin until done fires.
			img, release, err := d.decoder.Read()
			if err != nil {
				time.Sleep(10 * time.Millisecond)

				continue
			}
			if img == nil {
				time.Sleep(time.Millisecond)

				continue
			}

			d.counterMu.Lock()
			d.frameCounter++
			d.counterMu.Unlock()

			if d.callback != nil {
				d.callback(img)
			}
			if release != nil {
				release()
			}
		}
	}
}

// Decode feeds an assembled frame to the decoder. The data is copied, so
// the caller may reuse its buffer.
func (d *Decoder) Decode(frameData []byte) {
	if len(frameData) == 0 {
		return
	}
	frameCopy := make([]byte, len(frameData))
	copy(frameCopy, frameData)
	d.feeder.feed(frameCopy)
}

// FrameCount returns the number of decoded frames.
func (d *Decoder) FrameCount() int {
	d.counterMu.Lock()
	defer d.counterMu.Unlock()

	return d.frameCounter
}

// Close stops the reader goroutine and the external decoder.
func (d *Decoder) Close() error {
	d.feeder.close()

	// Give the decoder a moment to drain already-fed frames.
	time.Sleep(100 * time.Millisecond)

	close(d.done)
	<-d.finished

	if err := d.decoder.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrDecoderCloseFailed, err)
	}
	d.log.Infof("closed decoder after %d frames", d.FrameCount())

	return nil
}
