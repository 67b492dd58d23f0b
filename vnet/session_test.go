// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package vnet

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pion/media-session/session"
	"github.com/pion/media-session/source"
)

// buildSessionPair wires a sender and a receiver to opposite sides of a
// fresh virtual network.
func buildSessionPair(t *testing.T, receiverOpts ...session.Option) (*session.Controller, *session.Controller) {
	t.Helper()

	manager, err := NewManager()
	require.NoError(t, err)
	leftNet, leftIP, err := manager.GetLeftNet()
	require.NoError(t, err)
	rightNet, rightIP, err := manager.GetRightNet()
	require.NoError(t, err)

	videoSource, err := source.NewSyntheticEncoderSource()
	require.NoError(t, err)
	sender, err := session.NewSender(videoSource, session.SetVnet(leftNet, []string{leftIP}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sender.Close("test cleanup") })

	receiverOpts = append([]session.Option{session.SetVnet(rightNet, []string{rightIP})}, receiverOpts...)
	receiver, err := session.NewReceiver(receiverOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = receiver.Close("test cleanup") })

	require.NoError(t, sender.SetupPeerConnection())
	require.NoError(t, receiver.SetupPeerConnection())

	return sender, receiver
}

func TestSessionOverVirtualNetwork(t *testing.T) {
	archiveBase := filepath.Join(t.TempDir(), "received")
	sender, receiver := buildSessionPair(t, session.Archive(archiveBase))

	offer, err := sender.CreateOffer()
	require.NoError(t, err)
	answer, err := receiver.AcceptOffer(offer)
	require.NoError(t, err)
	require.NoError(t, sender.AcceptAnswer(answer))

	// Both sides reach Active once ICE completes.
	require.Eventually(t, func() bool {
		return sender.State() == session.StateActive && receiver.State() == session.StateActive
	}, 10*time.Second, 100*time.Millisecond, "sessions must become active")

	// Media flows end to end: the receiver assembles frames from the
	// synthetic VP8 stream.
	require.Eventually(t, func() bool {
		stats := receiver.Stats()

		return stats.FramesAssembled > 0 && stats.Keyframes > 0
	}, 10*time.Second, 100*time.Millisecond, "receiver must assemble frames")

	// The stream keeps flowing once established.
	before := receiver.Stats().FramesAssembled
	require.Eventually(t, func() bool {
		return receiver.Stats().FramesAssembled > before
	}, 10*time.Second, 100*time.Millisecond, "stream must keep flowing")

	require.NoError(t, sender.Close("test complete"))
	require.NoError(t, receiver.Close("test complete"))
	assert.Equal(t, session.StateClosed, sender.State())
	assert.Equal(t, session.StateClosed, receiver.State())

	// Teardown detached the bridge: no samples move afterwards.
	forwarded := sender.Stats().Bridge.SamplesForwarded
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, forwarded, sender.Stats().Bridge.SamplesForwarded)

	// The archive closed as a valid IVF file.
	file, err := os.Open(archiveBase + "_track-1.ivf")
	require.NoError(t, err)
	defer func() { _ = file.Close() }()
	reader, header, err := ivfreader.NewWith(file)
	require.NoError(t, err)
	assert.Equal(t, "VP80", header.FourCC)
	assert.Positive(t, header.NumFrames)
	_, _, err = reader.ParseNextFrame()
	assert.NoError(t, err)
}

func TestSessionCapacityChange(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	// Throttling and restoring the link must not error even while
	// traffic is absent.
	manager.SetCapacity(500*vnet.KBit, initMaxBurst)
	manager.SetCapacity(2*vnet.MBit, initMaxBurst)
}

func TestNegotiationFormatMismatch(t *testing.T) {
	// The receiver accepts a codec the sender never offers; signaling
	// runs over loopback HTTP like production peers would.
	sender, receiver := buildSessionPair(t, session.AcceptCodecs("video/theora"))

	mux := http.NewServeMux()
	mux.HandleFunc("/sdp", receiver.SDPHandler())
	signalServer := httptest.NewServer(mux)
	defer signalServer.Close()

	addr := strings.TrimPrefix(signalServer.URL, "http://")
	err := sender.SignalHTTP(addr, "sdp")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSignalingBadStatus)

	// The rejected receiver tore itself down without touching media.
	require.Eventually(t, func() bool {
		return receiver.State() == session.StateClosed
	}, 5*time.Second, 50*time.Millisecond)
	stats := receiver.Stats()
	assert.Zero(t, stats.FramesAssembled)
	assert.Zero(t, stats.Bridge.FramesPublished)

	require.NoError(t, sender.Close("test complete"))
}

func TestWebSocketSignaling(t *testing.T) {
	sender, receiver := buildSessionPair(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/sdp", receiver.SDPWebSocketHandler())
	signalServer := httptest.NewServer(mux)
	defer signalServer.Close()

	url := "ws" + strings.TrimPrefix(signalServer.URL, "http") + "/sdp"
	require.NoError(t, sender.SignalWebSocket(url))

	require.Eventually(t, func() bool {
		return sender.State() == session.StateActive && receiver.State() == session.StateActive
	}, 10*time.Second, 100*time.Millisecond, "sessions must become active over websocket signaling")

	require.NoError(t, sender.Close("test complete"))
	require.NoError(t, receiver.Close("test complete"))
}
