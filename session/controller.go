// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package session manages the lifecycle of one real-time media peer:
// negotiation, transport wiring, media start and ordered teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/gcc"
	"github.com/pion/logging"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/pion/media-session/bridge"
	"github.com/pion/media-session/source"
)

const (
	transportCCRtcpfb      = "transport-cc"
	defaultInitialBitrate  = 1_000_000
	congestionControlTick  = 100 * time.Millisecond
	defaultVideoWidth      = 640
	defaultVideoHeight     = 480
)

// Role distinguishes the sending and receiving half of a session.
type Role int

// Session roles.
const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}

	return "receiver"
}

// Stats is a snapshot of the session's counters.
type Stats struct {
	State           State
	RTPPackets      uint64
	FramesAssembled uint64
	Keyframes       uint64
	DecodedFrames   uint64
	FrameOverwrites uint64
	Bridge          bridge.Stats
}

// Controller owns one peer session end to end: it builds the peer
// connection, negotiates, starts media once the transport connects and
// tears everything down in order on Close.
type Controller struct {
	role Role

	settingEngine *webrtc.SettingEngine
	mediaEngine   *webrtc.MediaEngine
	registry      *interceptor.Registry

	peerConnection *webrtc.PeerConnection
	videoTrack     *webrtc.TrackLocalStaticSample
	audioTrack     *webrtc.TrackLocalStaticSample

	machine  *stateMachine
	listener func(from, to State)

	mediaBridge *bridge.Bridge
	frameBuffer *bridge.FrameBuffer
	videoSource source.Source
	audioSource source.Source

	acceptedFormats []string
	acceptedPixels  []frame.Format

	initialBitrate  int
	estimatorChan   chan cc.BandwidthEstimator
	ccLogWriter     io.Writer
	onTargetBitrate func(bitsPerSecond int)

	archiveBasePath string
	decodeFrames    bool

	closed    atomic.Bool
	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	rtpPackets      atomic.Uint64
	framesAssembled atomic.Uint64
	keyframes       atomic.Uint64
	decodedFrames   atomic.Uint64

	trackCounter atomic.Int32
	receivers    []*trackReceiver
	receiversMu  sync.Mutex

	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
}

func newController(role Role, opts ...Option) (*Controller, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := &Controller{
		role:            role,
		settingEngine:   &webrtc.SettingEngine{},
		mediaEngine:     &webrtc.MediaEngine{},
		registry:        &interceptor.Registry{},
		acceptedFormats: []string{webrtc.MimeTypeVP8},
		initialBitrate:  defaultInitialBitrate,
		estimatorChan:   make(chan cc.BandwidthEstimator, 1), // Buffered to avoid blocking
		ccLogWriter:     io.Discard,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		loggerFactory:   logging.NewDefaultLoggerFactory(),
	}
	if err := ctrl.mediaEngine.RegisterDefaultCodecs(); err != nil {
		cancel()

		return nil, err
	}
	for _, opt := range opts {
		if err := opt(ctrl); err != nil {
			cancel()

			return nil, err
		}
	}
	ctrl.log = ctrl.loggerFactory.NewLogger("session")
	ctrl.machine = newStateMachine(ctrl.onTransition, ctrl.loggerFactory.NewLogger("session_fsm"))

	return ctrl, nil
}

// NewSender creates the sending half of a session. The video source's
// samples flow through the media bridge into the session's video track
// once the transport connects.
func NewSender(videoSource source.Source, opts ...Option) (*Controller, error) {
	ctrl, err := newController(RoleSender, opts...)
	if err != nil {
		return nil, err
	}
	ctrl.videoSource = videoSource
	if err := ctrl.setupGCC(ctrl.initialBitrate); err != nil {
		ctrl.cancel()

		return nil, err
	}

	return ctrl, nil
}

// NewReceiver creates the receiving half of a session. Decoded frames
// land in the session's frame buffer; attach a render loop to consume
// them.
func NewReceiver(opts ...Option) (*Controller, error) {
	ctrl, err := newController(RoleReceiver, opts...)
	if err != nil {
		return nil, err
	}
	ctrl.frameBuffer = bridge.NewFrameBuffer()

	return ctrl, nil
}

// setupGCC wires Google Congestion Control with the given initial
// bitrate into the interceptor registry.
func (c *Controller) setupGCC(initialBitrate int) error {
	controller, err := cc.NewInterceptor(func() (cc.BandwidthEstimator, error) {
		return gcc.NewSendSideBWE(gcc.SendSideBWEInitialBitrate(initialBitrate))
	})
	if err != nil {
		return err
	}

	controller.OnNewPeerConnection(func(_ string, estimator cc.BandwidthEstimator) {
		go func() {
			c.estimatorChan <- estimator
		}()
	})
	c.registry.Add(controller)

	if err = webrtc.ConfigureTWCCHeaderExtensionSender(c.mediaEngine, c.registry); err != nil {
		return err
	}
	c.mediaEngine.RegisterFeedback(webrtc.RTCPFeedback{Type: transportCCRtcpfb}, webrtc.RTPCodecTypeVideo)
	c.mediaEngine.RegisterFeedback(webrtc.RTCPFeedback{Type: transportCCRtcpfb}, webrtc.RTPCodecTypeAudio)

	return nil
}

// SetupPeerConnection builds the peer connection, its tracks and the
// media bridge. Must run before negotiation.
func (c *Controller) SetupPeerConnection() error {
	peerConnection, err := webrtc.NewAPI(
		webrtc.WithSettingEngine(*c.settingEngine),
		webrtc.WithInterceptorRegistry(c.registry),
		webrtc.WithMediaEngine(c.mediaEngine),
	).NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	c.peerConnection = peerConnection

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		c.log.Infof("%s ICE connection state: %s", c.role, state)
	})
	peerConnection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		c.log.Debugf("%s candidate: %v", c.role, candidate)
	})
	peerConnection.OnConnectionStateChange(c.onConnectionStateChange)

	if c.role == RoleSender {
		return c.setupSendSide()
	}

	return c.setupReceiveSide()
}

func (c *Controller) setupSendSide() error {
	formats := c.videoSource.Formats()
	if len(formats) == 0 {
		return fmt.Errorf("%w: source offers no formats", ErrMediaSource)
	}
	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: formats[0]}, "video", "media-session",
	)
	if err != nil {
		return err
	}
	c.videoTrack = videoTrack
	if err := c.addTrack(videoTrack); err != nil {
		return err
	}

	if c.audioSource != nil {
		audioFormats := c.audioSource.Formats()
		if len(audioFormats) == 0 {
			return fmt.Errorf("%w: audio source offers no formats", ErrMediaSource)
		}
		audioTrack, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: audioFormats[0]}, "audio", "media-session",
		)
		if err != nil {
			return err
		}
		c.audioTrack = audioTrack
		if err := c.addTrack(audioTrack); err != nil {
			return err
		}
	}

	c.mediaBridge, err = bridge.New(
		bridge.WithSampleWriter(videoTrack.WriteSample),
		bridge.WithLoggerFactory(c.loggerFactory),
	)

	return err
}

func (c *Controller) setupReceiveSide() error {
	c.peerConnection.OnTrack(c.onTrack)

	bridgeOpts := []bridge.Option{
		bridge.WithFrameBuffer(c.frameBuffer),
		bridge.WithLoggerFactory(c.loggerFactory),
	}
	if len(c.acceptedPixels) > 0 {
		bridgeOpts = append(bridgeOpts, bridge.WithAcceptedFrameFormats(c.acceptedPixels...))
	}

	var err error
	c.mediaBridge, err = bridge.New(bridgeOpts...)

	return err
}

func (c *Controller) addTrack(track webrtc.TrackLocal) error {
	rtpSender, err := c.peerConnection.AddTrack(track)
	if err != nil {
		return err
	}

	// Read incoming RTCP packets so interceptors keep running.
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := rtpSender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	return nil
}

// CreateOffer produces the local offer with ICE gathering completed, so
// a single signaling message suffices.
func (c *Controller) CreateOffer() (*webrtc.SessionDescription, error) {
	if c.peerConnection == nil {
		return nil, ErrNoPeerConnection
	}
	offer, err := c.peerConnection.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.peerConnection)
	if err = c.peerConnection.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	<-gatherComplete

	return c.peerConnection.LocalDescription(), nil
}

// AcceptAnswer validates the remote answer against the media source's
// formats and applies it. A failed negotiation tears the session down
// before returning.
func (c *Controller) AcceptAnswer(answer *webrtc.SessionDescription) error {
	if c.peerConnection == nil {
		return ErrNoPeerConnection
	}

	remoteFormats, err := videoCodecFormats(answer.SDP)
	if err != nil {
		return c.failNegotiation(err)
	}
	common := intersectFormats(remoteFormats, c.videoSource.Formats())
	if len(common) == 0 {
		return c.failNegotiation(fmt.Errorf("%w: remote has %v, source provides %v",
			ErrIncompatibleFormats, remoteFormats, c.videoSource.Formats()))
	}
	selected := common[0]
	if err := c.videoSource.SetFormat(selected); err != nil {
		return c.failNegotiation(err)
	}
	c.mediaBridge.SetNegotiatedFormat(selected)

	if err := c.peerConnection.SetRemoteDescription(*answer); err != nil {
		return c.failNegotiation(err)
	}
	c.machine.fire(eventNegotiated)
	c.log.Infof("negotiated %s", selected)

	return nil
}

// AcceptOffer validates the remote offer against the accepted codecs and
// produces an answer with ICE gathering completed. A failed negotiation
// tears the session down before returning.
func (c *Controller) AcceptOffer(offer *webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if c.peerConnection == nil {
		return nil, ErrNoPeerConnection
	}

	offered, err := videoCodecFormats(offer.SDP)
	if err != nil {
		return nil, c.failNegotiation(err)
	}
	common := intersectFormats(offered, c.acceptedFormats)
	if len(common) == 0 {
		return nil, c.failNegotiation(fmt.Errorf("%w: remote offers %v, accepting %v",
			ErrIncompatibleFormats, offered, c.acceptedFormats))
	}
	c.mediaBridge.SetNegotiatedFormat(common[0])

	if err := c.peerConnection.SetRemoteDescription(*offer); err != nil {
		return nil, c.failNegotiation(err)
	}
	answer, err := c.peerConnection.CreateAnswer(nil)
	if err != nil {
		return nil, c.failNegotiation(err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.peerConnection)
	if err = c.peerConnection.SetLocalDescription(answer); err != nil {
		return nil, c.failNegotiation(err)
	}
	<-gatherComplete
	c.machine.fire(eventNegotiated)
	c.log.Infof("negotiated %s", common[0])

	return c.peerConnection.LocalDescription(), nil
}

func (c *Controller) failNegotiation(cause error) error {
	err := cause
	if !errors.Is(err, ErrNegotiationFailed) {
		err = fmt.Errorf("%w: %w", ErrNegotiationFailed, cause)
	}
	c.machine.fire(eventFail)
	if closeErr := c.Close("negotiation failed"); closeErr != nil {
		c.log.Warnf("teardown after failed negotiation: %v", closeErr)
	}

	return err
}

func (c *Controller) onTransition(from, to State) {
	c.log.Infof("state %s -> %s", from, to)
	if c.listener != nil {
		c.listener(from, to)
	}
}

func (c *Controller) onConnectionStateChange(state webrtc.PeerConnectionState) {
	c.log.Infof("%s peer connection state: %s", c.role, state)

	switch state {
	case webrtc.PeerConnectionStateConnected:
		if c.machine.fire(eventConnected) {
			c.startMedia()
		}
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		if c.closed.Load() {
			return
		}
		c.log.Warnf("%v: peer connection %s", ErrTransportFailure, state)
		c.machine.fire(eventFail)
		// Close from a fresh goroutine: tearing the peer connection down
		// from inside its own callback would deadlock.
		go func() {
			if err := c.Close("transport " + state.String()); err != nil {
				c.log.Warnf("teardown after transport failure: %v", err)
			}
		}()
	case webrtc.PeerConnectionStateNew, webrtc.PeerConnectionStateConnecting,
		webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateUnknown:
	}
}

// startMedia runs exactly once, on the first transition to Active. A
// connected event that loses the race against Close starts nothing; the
// bridge additionally refuses to start after Stop.
func (c *Controller) startMedia() {
	c.startOnce.Do(func() {
		if c.closed.Load() {
			return
		}
		c.mediaBridge.Start()
		if c.role == RoleReceiver {
			return
		}

		group, groupCtx := errgroup.WithContext(c.ctx)
		c.videoSource.SetWriter(c.mediaBridge.WriteSample)
		group.Go(func() error {
			return c.videoSource.Start(groupCtx)
		})
		if c.audioSource != nil && c.audioTrack != nil {
			c.audioSource.SetWriter(c.audioTrack.WriteSample)
			group.Go(func() error {
				return c.audioSource.Start(groupCtx)
			})
		}
		group.Go(func() error {
			return c.runCongestionControl(groupCtx)
		})

		go func() {
			if err := group.Wait(); err != nil && !c.closed.Load() {
				c.log.Errorf("%v: %v", ErrMediaSource, err)
				if closeErr := c.Close("media worker failed"); closeErr != nil {
					c.log.Warnf("teardown after media failure: %v", closeErr)
				}
			}
		}()
	})
}

// runCongestionControl waits for the bandwidth estimator and steers the
// video source's bitrate from it.
func (c *Controller) runCongestionControl(ctx context.Context) error {
	var estimator cc.BandwidthEstimator
	select {
	case estimator = <-c.estimatorChan:
	case <-ctx.Done():
		return nil
	}

	controller, _ := c.videoSource.(source.BitrateController)
	lastBitrate := c.initialBitrate

	ticker := time.NewTicker(congestionControlTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			targetBitrate := estimator.GetTargetBitrate()
			if controller != nil && targetBitrate != lastBitrate {
				controller.SetTargetBitrate(targetBitrate)
				lastBitrate = targetBitrate
			}
			if c.onTargetBitrate != nil {
				c.onTargetBitrate(targetBitrate)
			}
			fmt.Fprintf(c.ccLogWriter, "%v, %v\n", now.UnixMilli(), targetBitrate)
		}
	}
}

// Close tears the session down in order: the media bridge detaches its
// hooks, the sources stop, track sinks close, the frame buffer drops its
// payload, and finally the transport closes. The first caller wins;
// concurrent and repeated calls return nil immediately. The reason only
// shows up in the log.
func (c *Controller) Close(reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.log.Infof("closing %s session: %s", c.role, reason)
	c.machine.fire(eventClose)
	c.cancel()

	if c.mediaBridge != nil {
		c.mediaBridge.Stop()
	}

	c.closeSource("video source", c.videoSource)
	c.closeSource("audio source", c.audioSource)
	c.closeTrackReceivers()

	if c.frameBuffer != nil {
		c.frameBuffer.Clear()
	}

	var errs []error
	if c.peerConnection != nil {
		if err := c.peerConnection.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrTransportFailure, err))
		}
	}

	c.machine.fire(eventFinalize)
	close(c.done)

	return errors.Join(errs...)
}

// closeSource stops a media source, tolerating errors and panics so a
// misbehaving external pipeline cannot abort the teardown sequence.
func (c *Controller) closeSource(name string, src source.Source) {
	if src == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			c.log.Warnf("panic closing %s: %v", name, recovered)
		}
	}()
	if err := src.Close(); err != nil && !errors.Is(err, source.ErrSourceClosed) {
		c.log.Warnf("closing %s: %v", name, err)
	}
}

// Done is closed once teardown completed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the session's current lifecycle state.
func (c *Controller) State() State {
	return c.machine.current()
}

// FrameBuffer returns the buffer decoded frames are published to. Nil
// for senders.
func (c *Controller) FrameBuffer() *bridge.FrameBuffer {
	return c.frameBuffer
}

// Stats returns a snapshot of the session counters.
func (c *Controller) Stats() Stats {
	stats := Stats{
		State:           c.machine.current(),
		RTPPackets:      c.rtpPackets.Load(),
		FramesAssembled: c.framesAssembled.Load(),
		Keyframes:       c.keyframes.Load(),
		DecodedFrames:   c.decodedFrames.Load(),
	}
	if c.mediaBridge != nil {
		stats.Bridge = c.mediaBridge.Stats()
	}
	if c.frameBuffer != nil {
		stats.FrameOverwrites = c.frameBuffer.Overwrites()
	}

	return stats
}
