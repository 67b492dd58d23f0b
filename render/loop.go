// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package render drains the session's frame buffer on a fixed cadence
// and hands frames to a display. It owns no network resources.
package render

import (
	"context"
	"time"

	"github.com/pion/logging"

	"github.com/pion/media-session/bridge"
)

const defaultInterval = 33 * time.Millisecond

// Loop polls a FrameBuffer at a fixed interval and forwards each
// available frame to a Display. Cancellation is cooperative: the loop
// checks its context once per poll. Frame buffer teardown stays with the
// session controller; the loop merely stops polling.
type Loop struct {
	buffer   *bridge.FrameBuffer
	display  Display
	interval time.Duration
	onRate   func(framesPerSecond float64, totalRendered uint64)

	rendered      uint64
	displayErrors uint64

	log logging.LeveledLogger
}

// Option configures a Loop.
type Option func(*Loop) error

// WithInterval replaces the default 33ms poll interval.
func WithInterval(interval time.Duration) Option {
	return func(l *Loop) error {
		l.interval = interval

		return nil
	}
}

// WithRateCallback reports the render rate once per second.
func WithRateCallback(callback func(framesPerSecond float64, totalRendered uint64)) Option {
	return func(l *Loop) error {
		l.onRate = callback

		return nil
	}
}

// WithLoggerFactory sets the logger factory used by the loop.
func WithLoggerFactory(factory logging.LoggerFactory) Option {
	return func(l *Loop) error {
		l.log = factory.NewLogger("render")

		return nil
	}
}

// NewLoop creates a render loop reading from buffer and writing to
// display. A nil display falls back to Discard.
func NewLoop(buffer *bridge.FrameBuffer, display Display, opts ...Option) (*Loop, error) {
	if display == nil {
		display = Discard
	}
	loop := &Loop{
		buffer:   buffer,
		display:  display,
		interval: defaultInterval,
		log:      logging.NewDefaultLoggerFactory().NewLogger("render"),
	}
	for _, opt := range opts {
		if err := opt(loop); err != nil {
			return nil, err
		}
	}

	return loop, nil
}

// Run polls until ctx is cancelled and always returns nil. Display
// errors are logged and counted, never fatal.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	rateTicker := time.NewTicker(time.Second)
	defer rateTicker.Stop()

	renderedAtLastRate := uint64(0)
	lastRate := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-rateTicker.C:
			if l.onRate != nil {
				delta := now.Sub(lastRate).Seconds()
				if delta > 0 {
					l.onRate(float64(l.rendered-renderedAtLastRate)/delta, l.rendered)
				}
			}
			renderedAtLastRate = l.rendered
			lastRate = now
		case <-ticker.C:
			f, ok := l.buffer.Take()
			if !ok {
				continue
			}
			if err := l.display.Render(f); err != nil {
				l.displayErrors++
				l.log.Warnf("display rejected frame: %v", err)

				continue
			}
			l.rendered++
		}
	}
}

// Rendered returns the number of frames handed to the display. Only
// meaningful after Run returned.
func (l *Loop) Rendered() uint64 {
	return l.rendered
}

// DisplayErrors returns the number of frames the display rejected. Only
// meaningful after Run returned.
func (l *Loop) DisplayErrors() uint64 {
	return l.displayErrors
}
