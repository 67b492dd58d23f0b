// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pion/media-session/session"
)

const namespace = "media_session"

// Collector exposes session and render counters as Prometheus metrics.
// Plug ObserveTransition into session.OnStateChange and feed the frame
// counters from the render loop.
type Collector struct {
	activeSessions      prometheus.Gauge
	stateTransitions    *prometheus.CounterVec
	negotiationFailures prometheus.Counter
	framesRendered      prometheus.Counter
	framesDropped       prometheus.Counter
	targetBitrate       prometheus.Gauge
}

// NewCollector registers the session metrics with the given registerer.
func NewCollector(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)

	return &Collector{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently in the active state.",
		}),
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state transitions by source and destination state.",
		}, []string{"from", "to"}),
		negotiationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiation_failures_total",
			Help:      "Sessions that entered the failed state.",
		}),
		framesRendered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Frames handed to the display.",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames overwritten in the frame buffer before display.",
		}),
		targetBitrate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_bitrate_bits",
			Help:      "Most recent congestion control target bitrate.",
		}),
	}
}

// ObserveTransition records one session state transition.
func (c *Collector) ObserveTransition(from, to session.State) {
	c.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	if to == session.StateActive {
		c.activeSessions.Inc()
	}
	if from == session.StateActive {
		c.activeSessions.Dec()
	}
	if to == session.StateFailed {
		c.negotiationFailures.Inc()
	}
}

// AddFramesRendered adds to the rendered frame counter.
func (c *Collector) AddFramesRendered(count uint64) {
	c.framesRendered.Add(float64(count))
}

// AddFramesDropped adds to the dropped frame counter.
func (c *Collector) AddFramesDropped(count uint64) {
	c.framesDropped.Add(float64(count))
}

// SetTargetBitrate records the current congestion control target.
func (c *Collector) SetTargetBitrate(bitsPerSecond int) {
	c.targetBitrate.Set(float64(bitsPerSecond))
}
