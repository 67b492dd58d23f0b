// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"encoding/binary"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	defaultFPS              = 30
	defaultSyntheticBitrate = 1_000_000
	defaultKeyframeInterval = 30
	vp8KeyframeHeaderSize   = 10
)

// SyntheticEncoderSource fakes a VP8 encoder: it emits frames at a fixed
// rate with sizes jittered around the target bitrate. Keyframes carry
// the VP8 uncompressed-header sync code and dimensions, so the receive
// pipeline treats the stream like real VP8 at the framing level.
type SyntheticEncoderSource struct {
	fps              int
	width            uint16
	height           uint16
	keyframeInterval int

	targetBitrate atomic.Int64
	writer        func(media.Sample) error
	writerMu      sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	framesProduced atomic.Uint64

	rng *rand.Rand
	log logging.LeveledLogger
}

// SyntheticOption configures a SyntheticEncoderSource.
type SyntheticOption func(*SyntheticEncoderSource) error

// SyntheticFPS replaces the default 30 frames per second.
func SyntheticFPS(fps int) SyntheticOption {
	return func(s *SyntheticEncoderSource) error {
		s.fps = fps

		return nil
	}
}

// SyntheticDimensions replaces the default 640x480 keyframe dimensions.
func SyntheticDimensions(width, height uint16) SyntheticOption {
	return func(s *SyntheticEncoderSource) error {
		s.width = width
		s.height = height

		return nil
	}
}

// SyntheticKeyframeInterval replaces the default interval of one
// keyframe every 30 frames.
func SyntheticKeyframeInterval(frames int) SyntheticOption {
	return func(s *SyntheticEncoderSource) error {
		s.keyframeInterval = frames

		return nil
	}
}

// SyntheticLoggerFactory sets the logger factory used by the source.
func SyntheticLoggerFactory(factory logging.LoggerFactory) SyntheticOption {
	return func(s *SyntheticEncoderSource) error {
		s.log = factory.NewLogger("synthetic_source")

		return nil
	}
}

// NewSyntheticEncoderSource returns a synthetic VP8 source.
func NewSyntheticEncoderSource(opts ...SyntheticOption) (*SyntheticEncoderSource, error) {
	src := &SyntheticEncoderSource{
		fps:              defaultFPS,
		width:            640,
		height:           480,
		keyframeInterval: defaultKeyframeInterval,
		done:             make(chan struct{}),
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
		log:              logging.NewDefaultLoggerFactory().NewLogger("synthetic_source"),
	}
	src.targetBitrate.Store(defaultSyntheticBitrate)
	for _, opt := range opts {
		if err := opt(src); err != nil {
			return nil, err
		}
	}

	return src, nil
}

// Formats returns the single codec the source produces.
func (s *SyntheticEncoderSource) Formats() []string {
	return []string{webrtc.MimeTypeVP8}
}

// SetFormat accepts only VP8.
func (s *SyntheticEncoderSource) SetFormat(mimeType string) error {
	if !supportsFormat(s.Formats(), mimeType) {
		return ErrFormatUnsupported
	}

	return nil
}

// SetWriter installs the encoded-sample callback target.
func (s *SyntheticEncoderSource) SetWriter(writer func(media.Sample) error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	s.writer = writer
}

// SetTargetBitrate steers the size of produced frames.
func (s *SyntheticEncoderSource) SetTargetBitrate(bitsPerSecond int) {
	s.targetBitrate.Store(int64(bitsPerSecond))
	s.log.Debugf("target bitrate = %v", bitsPerSecond)
}

// FramesProduced returns the number of frames written so far.
func (s *SyntheticEncoderSource) FramesProduced() uint64 {
	return s.framesProduced.Load()
}

// Start produces frames until ctx is cancelled or Close is called.
func (s *SyntheticEncoderSource) Start(ctx context.Context) error {
	s.writerMu.Lock()
	writer := s.writer
	s.writerMu.Unlock()
	if writer == nil {
		return ErrNoWriter
	}

	frameDuration := time.Second / time.Duration(s.fps)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	frameIndex := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			keyframe := frameIndex%s.keyframeInterval == 0
			payload := s.buildFrame(keyframe)
			frameIndex++
			s.framesProduced.Add(1)
			if err := writer(media.Sample{Data: payload, Duration: frameDuration}); err != nil {
				return err
			}
		}
	}
}

// buildFrame produces a VP8-shaped payload sized around the target
// bitrate with +-10% jitter. Keyframes are three times the average size,
// roughly matching real encoder output.
func (s *SyntheticEncoderSource) buildFrame(keyframe bool) []byte {
	averageSize := int(s.targetBitrate.Load()) / s.fps / 8
	if averageSize < vp8KeyframeHeaderSize {
		averageSize = vp8KeyframeHeaderSize
	}
	size := averageSize + s.rng.Intn(averageSize/5+1) - averageSize/10
	if keyframe {
		size *= 3
	}
	if size < vp8KeyframeHeaderSize {
		size = vp8KeyframeHeaderSize
	}

	payload := make([]byte, size)
	if keyframe {
		// Frame tag with the P bit cleared, then the sync code and
		// 14-bit dimensions of the VP8 uncompressed header.
		payload[0] = 0x00
		payload[3] = 0x9d
		payload[4] = 0x01
		payload[5] = 0x2a
		binary.LittleEndian.PutUint16(payload[6:], s.width&0x3fff)
		binary.LittleEndian.PutUint16(payload[8:], s.height&0x3fff)
	} else {
		payload[0] = 0x01
	}

	return payload
}

// Close stops the source.
func (s *SyntheticEncoderSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	return nil
}
