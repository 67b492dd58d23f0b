// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package session

import (
	"io"
	"time"

	"github.com/pion/interceptor/pkg/packetdump"
	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"

	packetlog "github.com/pion/media-session/logging"
	"github.com/pion/media-session/source"
)

// Option configures a Controller.
type Option func(*Controller) error

// SetVnet attaches the session to a virtual network. Used by tests and
// the vnet harness.
func SetVnet(virtualNet *vnet.Net, publicIPs []string) Option {
	return func(c *Controller) error {
		c.settingEngine.SetNet(virtualNet)
		c.settingEngine.SetICETimeouts(time.Second, time.Second, 200*time.Millisecond)
		c.settingEngine.SetNAT1To1IPs(publicIPs, webrtc.ICECandidateTypeHost)

		return nil
	}
}

// SetLoggerFactory replaces the logger factory used by the session and
// everything it constructs.
func SetLoggerFactory(factory logging.LoggerFactory) Option {
	return func(c *Controller) error {
		c.loggerFactory = factory

		return nil
	}
}

// PacketLogWriter dumps outgoing RTP (sender) or incoming RTP (receiver)
// together with RTCP feedback to the given writers, one CSV line per
// packet.
func PacketLogWriter(rtpWriter, rtcpWriter io.Writer) Option {
	return func(c *Controller) error {
		formatter := &packetlog.RTPFormatter{}
		if c.role == RoleSender {
			rtpLogger, err := packetdump.NewSenderInterceptor(
				packetdump.RTPFormatter(formatter.RTPFormat),
				packetdump.RTPWriter(rtpWriter),
				packetdump.RTCPFormatter(packetlog.RTCPFormat),
				packetdump.RTCPWriter(rtcpWriter),
			)
			if err != nil {
				return err
			}
			c.registry.Add(rtpLogger)

			return nil
		}

		rtpLogger, err := packetdump.NewReceiverInterceptor(
			packetdump.RTPFormatter(formatter.RTPFormat),
			packetdump.RTPWriter(rtpWriter),
			packetdump.RTCPFormatter(packetlog.RTCPFormat),
			packetdump.RTCPWriter(rtcpWriter),
		)
		if err != nil {
			return err
		}
		c.registry.Add(rtpLogger)

		return nil
	}
}

// InitialBitrate sets the bandwidth estimator's starting bitrate in bits
// per second. Sender only; the default is 1 Mb/s.
func InitialBitrate(bitsPerSecond int) Option {
	return func(c *Controller) error {
		c.initialBitrate = bitsPerSecond

		return nil
	}
}

// CCLogWriter receives one CSV line per congestion control tick:
// timestamp in milliseconds, target bitrate.
func CCLogWriter(w io.Writer) Option {
	return func(c *Controller) error {
		c.ccLogWriter = w

		return nil
	}
}

// OnTargetBitrate registers a callback invoked on every congestion
// control tick with the current target bitrate in bits per second.
// Sender only; used to feed live stats.
func OnTargetBitrate(callback func(bitsPerSecond int)) Option {
	return func(c *Controller) error {
		c.onTargetBitrate = callback

		return nil
	}
}

// AcceptCodecs replaces the codec MIME types a receiver accepts during
// negotiation. The default accepts only VP8.
func AcceptCodecs(mimeTypes ...string) Option {
	return func(c *Controller) error {
		c.acceptedFormats = mimeTypes

		return nil
	}
}

// AcceptFrameFormats replaces the raw pixel formats the receive bridge
// forwards to the frame buffer.
func AcceptFrameFormats(formats ...frame.Format) Option {
	return func(c *Controller) error {
		c.acceptedPixels = formats

		return nil
	}
}

// Archive writes each received video track to <basePath>_<track>.ivf.
func Archive(basePath string) Option {
	return func(c *Controller) error {
		c.archiveBasePath = basePath

		return nil
	}
}

// DecodeFrames runs the VP8 decoder over assembled frames and publishes
// the decoded images to the session's frame buffer.
func DecodeFrames() Option {
	return func(c *Controller) error {
		c.decodeFrames = true

		return nil
	}
}

// AudioSource adds an audio track fed by the given source. Sender only.
// Audio samples go straight to the track, bypassing the video bridge.
func AudioSource(src source.Source) Option {
	return func(c *Controller) error {
		c.audioSource = src

		return nil
	}
}

// OnStateChange registers a listener invoked on every state transition,
// from the thread driving the transition.
func OnStateChange(listener func(from, to State)) Option {
	return func(c *Controller) error {
		c.listener = listener

		return nil
	}
}
