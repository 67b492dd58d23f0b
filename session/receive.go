// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package session

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/pion/media-session/bridge"
	"github.com/pion/media-session/vp8"
)

// trackReceiver carries the per-track receive pipeline: the frame
// assembler plus the optional IVF archive and VP8 decoder, both created
// lazily on the first keyframe so they get the stream's real dimensions.
type trackReceiver struct {
	identifier  string
	assembler   *vp8.Assembler
	archive     *vp8.Writer
	decoder     *vp8.Decoder
	initialized bool
	frameIndex  uint64

	mu sync.Mutex
}

func (c *Controller) onTrack(trackRemote *webrtc.TrackRemote, rtpReceiver *webrtc.RTPReceiver) {
	identifier := fmt.Sprintf("track-%d", c.trackCounter.Add(1))
	mimeType := trackRemote.Codec().MimeType
	c.log.Infof("incoming track %s (%s)", identifier, mimeType)

	if trackRemote.Kind() != webrtc.RTPCodecTypeVideo || !strings.EqualFold(mimeType, webrtc.MimeTypeVP8) {
		c.drainTrack(trackRemote, rtpReceiver)

		return
	}

	receiver := &trackReceiver{
		identifier: identifier,
		assembler:  vp8.NewAssembler(c.loggerFactory.NewLogger("assembler")),
	}
	c.receiversMu.Lock()
	c.receivers = append(c.receivers, receiver)
	c.receiversMu.Unlock()

	c.readTrack(trackRemote, rtpReceiver, receiver)
}

// drainTrack reads and discards packets from tracks the session does not
// process, keeping the interceptors fed.
func (c *Controller) drainTrack(trackRemote *webrtc.TrackRemote, rtpReceiver *webrtc.RTPReceiver) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		if err := c.setReadDeadlines(rtpReceiver, trackRemote); err != nil {
			continue
		}
		if _, _, err := trackRemote.ReadRTP(); errors.Is(err, io.EOF) {
			return
		}
	}
}

func (c *Controller) readTrack(
	trackRemote *webrtc.TrackRemote, rtpReceiver *webrtc.RTPReceiver, receiver *trackReceiver,
) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		if err := c.setReadDeadlines(rtpReceiver, trackRemote); err != nil {
			continue
		}

		packet, _, err := trackRemote.ReadRTP()
		if errors.Is(err, io.EOF) {
			c.log.Infof("%s: RTP stream ended", receiver.identifier)

			return
		}
		if err != nil {
			// Deadline expired, loop around and recheck the context.
			continue
		}

		c.rtpPackets.Add(1)
		c.handlePacket(packet, receiver)
	}
}

// setReadDeadlines bounds each RTP read so the loop can observe
// cancellation.
func (c *Controller) setReadDeadlines(rtpReceiver *webrtc.RTPReceiver, trackRemote *webrtc.TrackRemote) error {
	deadline := time.Now().Add(time.Second)
	if err := rtpReceiver.SetReadDeadline(deadline); err != nil {
		c.log.Debugf("failed to set rtpReceiver read deadline: %v", err)

		return err
	}
	if err := trackRemote.SetReadDeadline(deadline); err != nil {
		c.log.Debugf("failed to set trackRemote read deadline: %v", err)

		return err
	}

	return nil
}

func (c *Controller) handlePacket(packet *rtp.Packet, receiver *trackReceiver) {
	ready, frameData, isKeyframe, _ := receiver.assembler.ProcessPacket(packet)
	if !ready {
		return
	}
	c.framesAssembled.Add(1)
	if isKeyframe {
		c.keyframes.Add(1)
	}

	c.handleFrame(frameData, isKeyframe, receiver)
}

func (c *Controller) handleFrame(frameData []byte, isKeyframe bool, receiver *trackReceiver) {
	receiver.mu.Lock()
	defer receiver.mu.Unlock()

	if isKeyframe && !receiver.initialized {
		receiver.initialized = true
		c.initFrameSinks(frameData, receiver)
	}

	if receiver.archive != nil {
		if err := receiver.archive.WriteFrame(frameData, receiver.frameIndex); err != nil {
			c.log.Errorf("archiving frame for %s: %v", receiver.identifier, err)
		}
	}
	receiver.frameIndex++

	if receiver.decoder != nil {
		receiver.decoder.Decode(frameData)
	}
}

// initFrameSinks creates the archive writer and decoder for a track,
// sized from the first keyframe.
func (c *Controller) initFrameSinks(keyframe []byte, receiver *trackReceiver) {
	width, height, ok := vp8.KeyframeDimensions(keyframe)
	if !ok {
		width, height = defaultVideoWidth, defaultVideoHeight
		c.log.Warnf("%s: no dimensions in first keyframe, assuming %dx%d", receiver.identifier, width, height)
	} else {
		c.log.Infof("%s: detected %dx%d from first keyframe", receiver.identifier, width, height)
	}

	if c.archiveBasePath != "" {
		c.initArchive(receiver, width, height)
	}

	if c.decodeFrames {
		decoder, err := vp8.NewDecoder(
			width, height, c.publishDecodedFrame, c.loggerFactory.NewLogger("decoder"),
		)
		if err != nil {
			c.log.Errorf("creating decoder for %s: %v", receiver.identifier, err)
		} else {
			receiver.decoder = decoder
		}
	}
}

func (c *Controller) initArchive(receiver *trackReceiver, width, height int) {
	filename := filepath.Clean(fmt.Sprintf("%s_%s.ivf", c.archiveBasePath, receiver.identifier))
	file, err := os.Create(filename) // #nosec G304 - path is cleaned above
	if err != nil {
		c.log.Errorf("creating archive for %s: %v", receiver.identifier, err)

		return
	}
	writer, err := vp8.NewWriter(file, uint16(width), uint16(height)) // #nosec G115
	if err != nil {
		c.log.Errorf("creating IVF writer for %s: %v", receiver.identifier, err)
		_ = file.Close()

		return
	}
	receiver.archive = writer
	c.log.Infof("archiving %s to %s", receiver.identifier, filename)
}

// publishDecodedFrame hands a decoded image to the bridge. Unsupported
// pixel formats are counted and dropped there; nothing here is fatal.
func (c *Controller) publishDecodedFrame(img image.Image) {
	c.decodedFrames.Add(1)
	_ = c.mediaBridge.WriteFrame(frameFromImage(img))
}

// closeTrackReceivers flushes trailing frames and closes the per-track
// sinks during teardown.
func (c *Controller) closeTrackReceivers() {
	c.receiversMu.Lock()
	receivers := c.receivers
	c.receivers = nil
	c.receiversMu.Unlock()

	for _, receiver := range receivers {
		receiver.mu.Lock()
		if ready, frameData, _, _ := receiver.assembler.Flush(); ready && receiver.archive != nil {
			if err := receiver.archive.WriteFrame(frameData, receiver.frameIndex); err != nil {
				c.log.Warnf("archiving trailing frame for %s: %v", receiver.identifier, err)
			}
		}
		if receiver.archive != nil {
			if err := receiver.archive.Close(); err != nil {
				c.log.Warnf("closing archive for %s: %v", receiver.identifier, err)
			}
			receiver.archive = nil
		}
		if receiver.decoder != nil {
			if err := receiver.decoder.Close(); err != nil {
				c.log.Warnf("closing decoder for %s: %v", receiver.identifier, err)
			}
			receiver.decoder = nil
		}
		receiver.mu.Unlock()
	}
}

// frameFromImage flattens a decoded image into the bridge's frame
// representation. The VP8 decoder emits 4:2:0 YCbCr; anything else is
// tagged with its Go type so the bridge can count and drop it.
func frameFromImage(img image.Image) bridge.Frame {
	bounds := img.Bounds()
	ycbcr, ok := img.(*image.YCbCr)
	if !ok || ycbcr.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return bridge.Frame{
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			Format: frame.Format(fmt.Sprintf("%T", img)),
		}
	}

	width, height := bounds.Dx(), bounds.Dy()
	chromaWidth, chromaHeight := (width+1)/2, (height+1)/2
	data := make([]byte, width*height+2*chromaWidth*chromaHeight)

	offset := 0
	for row := 0; row < height; row++ {
		offset += copy(data[offset:], ycbcr.Y[row*ycbcr.YStride:row*ycbcr.YStride+width])
	}
	for row := 0; row < chromaHeight; row++ {
		offset += copy(data[offset:], ycbcr.Cb[row*ycbcr.CStride:row*ycbcr.CStride+chromaWidth])
	}
	for row := 0; row < chromaHeight; row++ {
		offset += copy(data[offset:], ycbcr.Cr[row*ycbcr.CStride:row*ycbcr.CStride+chromaWidth])
	}

	return bridge.Frame{Width: width, Height: height, Format: frame.FormatI420, Data: data}
}
