// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package bridge decouples external media callbacks from the session's
// transport send primitive and the display-side frame hand-off.
package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Static errors for err113 compliance.
var (
	ErrUnsupportedFrameFormat = errors.New("unsupported frame format")
	ErrSampleWrite            = errors.New("sample write failed")
	ErrNoSink                 = errors.New("bridge has neither sample writer nor frame buffer")
)

// Stats is a snapshot of the bridge's forward and drop counters.
type Stats struct {
	SamplesForwarded  uint64
	SamplesDropped    uint64
	FramesPublished   uint64
	FramesDropped     uint64
	UnsupportedFrames uint64
}

// Bridge adapts the encoded-sample callback of a media source to the
// transport send function, and the raw-frame callback of a decoder to a
// FrameBuffer. The session controller only starts and stops it; data
// flows through the two Write hooks. Stop detaches both hooks, so a
// callback racing in after teardown has no observable effect.
type Bridge struct {
	mu      sync.Mutex
	running bool
	stopped bool

	sampleWriter func(media.Sample) error
	frameBuffer  *FrameBuffer
	accepted     map[frame.Format]struct{}
	warned       map[frame.Format]struct{}
	negotiated   string

	stats Stats

	log logging.LeveledLogger
}

// Option configures a Bridge.
type Option func(*Bridge) error

// WithSampleWriter binds the send side to the transport's outbound send
// primitive, typically TrackLocalStaticSample.WriteSample.
func WithSampleWriter(writer func(media.Sample) error) Option {
	return func(b *Bridge) error {
		b.sampleWriter = writer

		return nil
	}
}

// WithFrameBuffer binds the receive side to a frame buffer.
func WithFrameBuffer(buffer *FrameBuffer) Option {
	return func(b *Bridge) error {
		b.frameBuffer = buffer

		return nil
	}
}

// WithAcceptedFrameFormats replaces the set of raw pixel formats the
// receive hook forwards. The default accepts only I420.
func WithAcceptedFrameFormats(formats ...frame.Format) Option {
	return func(b *Bridge) error {
		b.accepted = make(map[frame.Format]struct{}, len(formats))
		for _, format := range formats {
			b.accepted[format] = struct{}{}
		}

		return nil
	}
}

// WithLoggerFactory sets the logger factory used by the bridge.
func WithLoggerFactory(factory logging.LoggerFactory) Option {
	return func(b *Bridge) error {
		b.log = factory.NewLogger("bridge")

		return nil
	}
}

// New creates a bridge. At least one of WithSampleWriter and
// WithFrameBuffer must be given.
func New(opts ...Option) (*Bridge, error) {
	bridge := &Bridge{
		accepted: map[frame.Format]struct{}{frame.FormatI420: {}},
		warned:   make(map[frame.Format]struct{}),
		log:      logging.NewDefaultLoggerFactory().NewLogger("bridge"),
	}
	for _, opt := range opts {
		if err := opt(bridge); err != nil {
			return nil, err
		}
	}
	if bridge.sampleWriter == nil && bridge.frameBuffer == nil {
		return nil, ErrNoSink
	}

	return bridge, nil
}

// SetNegotiatedFormat records the codec selected during negotiation.
// Must be called before Start.
func (b *Bridge) SetNegotiatedFormat(mimeType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.negotiated = mimeType
}

// NegotiatedFormat returns the codec selected during negotiation, or the
// empty string before negotiation completes.
func (b *Bridge) NegotiatedFormat() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.negotiated
}

// Start enables both hooks. Idempotent, and a no-op once Stop has run,
// so a connection callback racing with teardown cannot re-enable the
// hooks.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.running = true
}

// Stop disables both hooks. Idempotent, terminal and safe to call even
// if Start never ran. Once Stop returns, subsequent WriteSample and
// WriteFrame calls are dropped without touching the transport or the
// frame buffer, and Start cannot enable the hooks again.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.stopped = true
}

// WriteSample forwards an encoded sample to the transport send function.
// Samples arriving while the bridge is stopped are counted and dropped.
// A transport write failure is wrapped in ErrSampleWrite; the caller
// decides whether that is fatal to the session.
func (b *Bridge) WriteSample(sample media.Sample) error {
	b.mu.Lock()
	if !b.running || b.sampleWriter == nil {
		b.stats.SamplesDropped++
		b.mu.Unlock()

		return nil
	}
	writer := b.sampleWriter
	b.stats.SamplesForwarded++
	b.mu.Unlock()

	if err := writer(sample); err != nil {
		return fmt.Errorf("%w: %w", ErrSampleWrite, err)
	}

	return nil
}

// WriteFrame publishes a raw frame to the frame buffer, latest wins.
// Frames in a pixel format outside the accepted set are dropped with a
// warning, once per format, and never tear the session down.
func (b *Bridge) WriteFrame(f Frame) error {
	b.mu.Lock()
	if !b.running || b.frameBuffer == nil {
		b.stats.FramesDropped++
		b.mu.Unlock()

		return nil
	}
	if _, ok := b.accepted[f.Format]; !ok {
		b.stats.UnsupportedFrames++
		if _, seen := b.warned[f.Format]; !seen {
			b.warned[f.Format] = struct{}{}
			b.log.Warnf("dropping frames in unsupported pixel format %q", string(f.Format))
		}
		b.mu.Unlock()

		return fmt.Errorf("%w: %q", ErrUnsupportedFrameFormat, string(f.Format))
	}
	buffer := b.frameBuffer
	b.stats.FramesPublished++
	b.mu.Unlock()

	buffer.Publish(f)

	return nil
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.stats
}
