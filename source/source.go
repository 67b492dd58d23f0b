// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package source provides the media sources a session can stream:
// a synthetic encoder, an IVF file demuxer, a live software encoder and
// an Opus silence generator. All of them feed encoded samples into a
// writer installed by the session controller.
package source

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4/pkg/media"
)

// Static errors for err113 compliance.
var (
	ErrFormatUnsupported = errors.New("format not supported by this source")
	ErrNoWriter          = errors.New("source has no sample writer")
	ErrSourceClosed      = errors.New("source closed")
)

// Source is the seam to an external encoder or demuxer. The worker that
// drives it blocks inside Start until the context is cancelled or Close
// is called.
type Source interface {
	// Formats lists the codec MIME types the source can produce.
	Formats() []string
	// SetFormat propagates the negotiated codec. Must be called before
	// Start.
	SetFormat(mimeType string) error
	// SetWriter installs the encoded-sample callback target.
	SetWriter(writer func(media.Sample) error)
	// Start runs the source's worker loop.
	Start(ctx context.Context) error
	// Close stops the source. Safe to call before, during and after
	// Start, and more than once.
	Close() error
}

// BitrateController is implemented by sources whose output rate can be
// steered, e.g. by a bandwidth estimator.
type BitrateController interface {
	SetTargetBitrate(bitsPerSecond int)
}

func supportsFormat(formats []string, mimeType string) bool {
	for _, f := range formats {
		if f == mimeType {
			return true
		}
	}

	return false
}
