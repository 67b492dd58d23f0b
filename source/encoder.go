// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Static errors for err113 compliance.
var (
	ErrEncoderCreationFailed = errors.New("encoder creation failed")
	ErrNotVideoTrack         = errors.New("media track is not a video track")
)

// EncoderSource runs a software VP8 encoder over raw frames pushed into
// a drop-oldest queue. The encoder and its worker belong to the external
// mediadevices library; this source only drives them and forwards the
// encoded output.
type EncoderSource struct {
	width          int
	height         int
	fps            int
	initialBitrate int

	queue         *FrameQueue
	mediaTrack    *mediadevices.VideoTrack
	encodedReader mediadevices.EncodedReadCloser
	mimeType      string

	targetBitrate  atomic.Int64
	bitrateTracker *codec.BitrateTracker

	writer   func(media.Sample) error
	writerMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	log logging.LeveledLogger
}

// EncoderOption configures an EncoderSource.
type EncoderOption func(*EncoderSource) error

// EncoderFPS replaces the default 30 frames per second read cadence.
func EncoderFPS(fps int) EncoderOption {
	return func(s *EncoderSource) error {
		s.fps = fps

		return nil
	}
}

// EncoderInitialBitrate replaces the default 1Mbps starting bitrate.
func EncoderInitialBitrate(bitsPerSecond int) EncoderOption {
	return func(s *EncoderSource) error {
		s.initialBitrate = bitsPerSecond

		return nil
	}
}

// EncoderLoggerFactory sets the logger factory used by the source.
func EncoderLoggerFactory(factory logging.LoggerFactory) EncoderOption {
	return func(s *EncoderSource) error {
		s.log = factory.NewLogger("encoder_source")

		return nil
	}
}

// NewEncoderSource builds the VP8 encoder pipeline for frames of the
// given dimensions.
func NewEncoderSource(width, height int, opts ...EncoderOption) (*EncoderSource, error) {
	src := &EncoderSource{
		width:          width,
		height:         height,
		fps:            defaultFPS,
		initialBitrate: defaultSyntheticBitrate,
		done:           make(chan struct{}),
		log:            logging.NewDefaultLoggerFactory().NewLogger("encoder_source"),
	}
	for _, opt := range opts {
		if err := opt(src); err != nil {
			return nil, err
		}
	}

	params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoderCreationFailed, err)
	}
	params.BitRate = src.initialBitrate
	src.targetBitrate.Store(int64(src.initialBitrate))

	selector := mediadevices.NewCodecSelector(mediadevices.WithVideoEncoders(&params))
	src.queue = NewFrameQueue(width, height)
	track := mediadevices.NewVideoTrack(src.queue, selector)

	src.mimeType = params.RTPCodec().MimeType
	reader, err := track.NewEncodedReader(src.mimeType)
	if err != nil {
		_ = track.Close()
		_ = src.queue.Close()

		return nil, fmt.Errorf("%w: %w", ErrEncoderCreationFailed, err)
	}
	src.encodedReader = reader

	videoTrack, ok := track.(*mediadevices.VideoTrack)
	if !ok {
		_ = reader.Close()
		_ = track.Close()
		_ = src.queue.Close()

		return nil, ErrNotVideoTrack
	}
	src.mediaTrack = videoTrack
	src.bitrateTracker = codec.NewBitrateTracker(300 * time.Millisecond)
	src.queue.SetInitialized()

	return src, nil
}

// Formats returns the encoder's codec.
func (s *EncoderSource) Formats() []string {
	return []string{s.mimeType}
}

// SetFormat accepts only the encoder's own codec.
func (s *EncoderSource) SetFormat(mimeType string) error {
	if mimeType != s.mimeType {
		return ErrFormatUnsupported
	}

	return nil
}

// SetWriter installs the encoded-sample callback target.
func (s *EncoderSource) SetWriter(writer func(media.Sample) error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	s.writer = writer
}

// WriteFrame pushes a raw frame towards the encoder, latest frames
// displacing the oldest when the queue is full.
func (s *EncoderSource) WriteFrame(img image.Image) error {
	return s.queue.Push(img)
}

// SetTargetBitrate steers the encoder output rate through its
// controller, when the controller supports it.
func (s *EncoderSource) SetTargetBitrate(bitsPerSecond int) {
	s.targetBitrate.Store(int64(bitsPerSecond))

	controller := s.encodedReader.Controller()
	if controller == nil {
		return
	}
	if qp, ok := controller.(codec.QPController); ok && qp != nil {
		current := int(s.bitrateTracker.GetBitrate())
		_ = qp.DynamicQPControl(current, bitsPerSecond)

		return
	}
	s.log.Warnf("encoder controller does not support bitrate updates")
}

// Start reads encoded frames at the configured cadence and forwards
// them until ctx is cancelled or Close is called.
func (s *EncoderSource) Start(ctx context.Context) error {
	s.writerMu.Lock()
	writer := s.writer
	s.writerMu.Unlock()
	if writer == nil {
		return ErrNoWriter
	}

	frameDuration := time.Second / time.Duration(s.fps)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			encoded, release, err := s.encodedReader.Read()
			if err != nil {
				if errors.Is(err, ErrNoFrameAvailable) {
					continue
				}

				return err
			}
			s.bitrateTracker.AddFrame(len(encoded.Data), time.Now())
			writeErr := writer(media.Sample{Data: encoded.Data, Duration: frameDuration})
			release()
			if writeErr != nil {
				return writeErr
			}
		}
	}
}

// Close stops the encoder pipeline.
func (s *EncoderSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = errors.Join(
			s.queue.Close(),
			s.encodedReader.Close(),
			s.mediaTrack.Close(),
		)
	})

	return err
}
