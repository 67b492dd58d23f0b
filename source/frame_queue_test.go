// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package source

import (
	"context"
	"image"
	"testing"
	"testing/synctest"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameQueuePushAndRead(t *testing.T) {
	queue := NewFrameQueue(640, 480)
	defer func() { _ = queue.Close() }()
	queue.SetInitialized()

	img := image.NewYCbCr(image.Rect(0, 0, 640, 480), image.YCbCrSubsampleRatio420)
	require.NoError(t, queue.Push(img))

	got, release, err := queue.Read()
	require.NoError(t, err)
	assert.Equal(t, img, got)
	release()
}

func TestFrameQueueBlackFrameBeforeInitialized(t *testing.T) {
	queue := NewFrameQueue(640, 480)
	defer func() { _ = queue.Close() }()

	img, release, err := queue.Read()
	require.NoError(t, err)
	release()

	_, ok := img.(*image.YCbCr)
	assert.True(t, ok, "expected a YCbCr black frame during warm-up")
}

func TestFrameQueueBlackFrameMatchesQueueDimensions(t *testing.T) {
	// Two queues with different dimensions each warm up with their own
	// frame; the second must not observe the first queue's size.
	small := NewFrameQueue(640, 480)
	defer func() { _ = small.Close() }()
	large := NewFrameQueue(1280, 720)
	defer func() { _ = large.Close() }()

	img, release, err := small.Read()
	require.NoError(t, err)
	release()
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())

	img, release, err = large.Read()
	require.NoError(t, err)
	release()
	assert.Equal(t, 1280, img.Bounds().Dx())
	assert.Equal(t, 720, img.Bounds().Dy())
}

func TestFrameQueueDropsOldestWhenFull(t *testing.T) {
	queue := NewFrameQueue(2, 2)
	defer func() { _ = queue.Close() }()
	queue.SetInitialized()

	for range frameQueueDepth + 3 {
		require.NoError(t, queue.Push(image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420)))
	}
}

func TestFrameQueueClosed(t *testing.T) {
	queue := NewFrameQueue(2, 2)
	require.NoError(t, queue.Close())
	require.NoError(t, queue.Close())

	err := queue.Push(image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420))
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, _, err = queue.Read()
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestSilenceSourceEmitsOpusFrames(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		t.Helper()

		src := NewSilenceSource()

		var samples []media.Sample
		src.SetWriter(func(s media.Sample) error {
			samples = append(samples, s)

			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			assert.NoError(t, src.Start(ctx))
		}()

		time.Sleep(200 * time.Millisecond)
		synctest.Wait()
		cancel()
		<-done
		assert.NoError(t, src.Close())

		require.Len(t, samples, 10)
		assert.Equal(t, opusSilence, samples[0].Data)
		assert.Equal(t, opusFrameDuration, samples[0].Duration)
	})
}

func TestSilenceSourceRequiresWriter(t *testing.T) {
	src := NewSilenceSource()
	assert.ErrorIs(t, src.Start(context.Background()), ErrNoWriter)
}
