// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package vp8

import (
	"image"
	"io"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVideoDecoder struct {
	mu     sync.Mutex
	frames []image.Image
	reads  int
}

func (s *stubVideoDecoder) Read() (image.Image, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if len(s.frames) == 0 {
		return nil, nil, io.EOF
	}
	img := s.frames[0]
	s.frames = s.frames[1:]

	return img, func() {}, nil
}

func (s *stubVideoDecoder) Close() error { return nil }

func (s *stubVideoDecoder) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reads
}

func newStubbedDecoder(stub videoDecoder, callback FrameCallback) *Decoder {
	return &Decoder{
		decoder:  stub,
		feeder:   newFrameFeeder(),
		callback: callback,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		log:      logging.NewDefaultLoggerFactory().NewLogger("vp8_decoder_test"),
	}
}

func TestReadLoopBacksOffOnEOF(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		t.Helper()

		stub := &stubVideoDecoder{}
		dec := newStubbedDecoder(stub, nil)
		go dec.readLoop()

		time.Sleep(time.Second)
		synctest.Wait()

		// One read per 10ms backoff; a busy loop would spin far past
		// this bound within the same second.
		reads := stub.readCount()
		assert.Positive(t, reads)
		assert.LessOrEqual(t, reads, 110)

		require.NoError(t, dec.Close())
	})
}

func TestDecoderEmitsDecodedFrames(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		t.Helper()

		img := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
		var got []image.Image
		stub := &stubVideoDecoder{frames: []image.Image{img}}
		dec := newStubbedDecoder(stub, func(decoded image.Image) {
			got = append(got, decoded)
		})
		go dec.readLoop()

		time.Sleep(50 * time.Millisecond)
		synctest.Wait()

		require.Len(t, got, 1)
		assert.Equal(t, 1, dec.FrameCount())

		require.NoError(t, dec.Close())
	})
}
