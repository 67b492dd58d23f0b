// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pion/media-session/session"
)

func TestCollectorTracksSessions(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.ObserveTransition(session.StateConnecting, session.StateActive)
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.activeSessions), 0)

	collector.ObserveTransition(session.StateActive, session.StateClosing)
	assert.InDelta(t, 0.0, testutil.ToFloat64(collector.activeSessions), 0)

	collector.ObserveTransition(session.StateNegotiating, session.StateFailed)
	assert.InDelta(t, 1.0, testutil.ToFloat64(collector.negotiationFailures), 0)

	collector.AddFramesRendered(3)
	collector.AddFramesDropped(2)
	assert.InDelta(t, 3.0, testutil.ToFloat64(collector.framesRendered), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(collector.framesDropped), 0)
}

func TestMetricsEndpoint(t *testing.T) {
	server := New()
	collector := NewCollector(server.Registry())
	collector.SetTargetBitrate(500_000)

	testServer := httptest.NewServer(server.Handler())
	defer testServer.Close()

	resp, err := http.Get(testServer.URL + "/metrics") //nolint:noctx
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "media_session_target_bitrate_bits 500000"),
		"metrics output should carry the bitrate gauge")
}

func TestLivePlotFeed(t *testing.T) {
	server := New()
	testServer := httptest.NewServer(server.Handler())
	defer testServer.Close()

	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/update"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
		_ = conn.Close()
	}()

	server.Add(DataPoint{Label: "render_fps", Timestamp: 42, Value: 30})

	var got DataPoint
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "render_fps", got.Label)
	assert.Equal(t, int64(42), got.Timestamp)
	assert.InDelta(t, 30.0, got.Value, 0)
}
