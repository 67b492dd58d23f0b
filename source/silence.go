// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const opusFrameDuration = 20 * time.Millisecond

// opusSilence is a single Opus DTX comfort-noise frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe} //nolint:gochecknoglobals

// SilenceSource emits Opus silence frames every 20ms. It gives a
// session an audio track without a capture device.
type SilenceSource struct {
	writer   func(media.Sample) error
	writerMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// NewSilenceSource returns a new Opus silence generator.
func NewSilenceSource() *SilenceSource {
	return &SilenceSource{done: make(chan struct{})}
}

// Formats returns the single codec the source produces.
func (s *SilenceSource) Formats() []string {
	return []string{webrtc.MimeTypeOpus}
}

// SetFormat accepts only Opus.
func (s *SilenceSource) SetFormat(mimeType string) error {
	if !supportsFormat(s.Formats(), mimeType) {
		return ErrFormatUnsupported
	}

	return nil
}

// SetWriter installs the encoded-sample callback target.
func (s *SilenceSource) SetWriter(writer func(media.Sample) error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	s.writer = writer
}

// Start emits silence until ctx is cancelled or Close is called.
func (s *SilenceSource) Start(ctx context.Context) error {
	s.writerMu.Lock()
	writer := s.writer
	s.writerMu.Unlock()
	if writer == nil {
		return ErrNoWriter
	}

	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			if err := writer(media.Sample{Data: opusSilence, Duration: opusFrameDuration}); err != nil {
				return err
			}
		}
	}
}

// Close stops the source.
func (s *SilenceSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	return nil
}
