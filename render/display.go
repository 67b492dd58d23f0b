// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package render

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/pion/mediadevices/pkg/frame"

	"github.com/pion/media-session/bridge"
)

// Static errors for err113 compliance.
var (
	ErrNotI420        = errors.New("frame is not I420")
	ErrShortFrameData = errors.New("frame data shorter than its dimensions require")
)

// Display receives frames at the render loop's cadence.
type Display interface {
	Render(bridge.Frame) error
}

// DisplayFunc adapts a function to the Display interface.
type DisplayFunc func(bridge.Frame) error

// Render calls the wrapped function.
func (f DisplayFunc) Render(fr bridge.Frame) error { return f(fr) }

// Discard drops every frame. Useful as a default and in tests.
var Discard Display = DisplayFunc(func(bridge.Frame) error { return nil }) //nolint:gochecknoglobals

// I420ToImage converts an I420 frame payload into an image.YCbCr without
// copying the plane data.
func I420ToImage(f bridge.Frame) (*image.YCbCr, error) {
	if f.Format != frame.FormatI420 {
		return nil, fmt.Errorf("%w: %q", ErrNotI420, string(f.Format))
	}
	ySize := f.Width * f.Height
	uvSize := ySize / 4
	if len(f.Data) < ySize+2*uvSize {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortFrameData, len(f.Data), ySize+2*uvSize)
	}

	return &image.YCbCr{
		Y:              f.Data[:ySize],
		Cb:             f.Data[ySize : ySize+uvSize],
		Cr:             f.Data[ySize+uvSize : ySize+2*uvSize],
		YStride:        f.Width,
		CStride:        f.Width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}, nil
}

// SnapshotDisplay writes periodic PNG snapshots of rendered frames to a
// directory. It stands in for an on-screen surface in headless runs.
type SnapshotDisplay struct {
	dir      string
	interval time.Duration
	last     time.Time
	count    int
}

// NewSnapshotDisplay creates the snapshot directory and returns a display
// writing at most one PNG per interval.
func NewSnapshotDisplay(dir string, interval time.Duration) (*SnapshotDisplay, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	return &SnapshotDisplay{dir: dir, interval: interval}, nil
}

// Render writes the frame as a PNG when the snapshot interval elapsed,
// and drops it otherwise.
func (d *SnapshotDisplay) Render(f bridge.Frame) error {
	now := time.Now()
	if !d.last.IsZero() && now.Sub(d.last) < d.interval {
		return nil
	}

	img, err := I420ToImage(f)
	if err != nil {
		return err
	}

	name := filepath.Join(d.dir, fmt.Sprintf("frame-%05d.png", d.count))
	file, err := os.Create(name) // #nosec G304 - path is built from the configured directory
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		_ = file.Close()

		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	d.last = now
	d.count++

	return nil
}
