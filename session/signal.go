// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// SignalHTTP performs one offer/answer exchange against the remote
// peer's SDP endpoint. Sender side.
func (c *Controller) SignalHTTP(addr, route string) error {
	offer, err := c.CreateOffer()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}

	url := fmt.Sprintf("http://%s/%s", addr, route)
	c.log.Infof("signaling to %s", url)
	resp, err := http.Post(url, "application/json; charset=utf-8", bytes.NewReader(payload)) //nolint:gosec,noctx
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %v: %v", ErrSignalingBadStatus, resp.StatusCode, resp.Status)
	}

	answer := webrtc.SessionDescription{}
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}

	return c.AcceptAnswer(&answer)
}

// SDPHandler answers one offer per request. Receiver side. A rejected
// negotiation, including incompatible formats, yields HTTP 400.
func (c *Controller) SDPHandler() http.HandlerFunc {
	return func(respWriter http.ResponseWriter, req *http.Request) {
		offer := webrtc.SessionDescription{}
		if err := json.NewDecoder(req.Body).Decode(&offer); err != nil {
			c.log.Errorf("failed to decode SDP offer: %v", err)
			respWriter.WriteHeader(http.StatusBadRequest)

			return
		}
		answer, err := c.AcceptOffer(&offer)
		if err != nil {
			c.log.Errorf("rejecting offer: %v", err)
			respWriter.WriteHeader(http.StatusBadRequest)

			return
		}
		payload, err := json.Marshal(answer)
		if err != nil {
			c.log.Errorf("failed to marshal SDP answer: %v", err)
			respWriter.WriteHeader(http.StatusInternalServerError)

			return
		}
		respWriter.Header().Set("Content-Type", "application/json")
		if _, err := respWriter.Write(payload); err != nil {
			c.log.Errorf("failed to write signaling response: %v", err)
		}
	}
}

// SignalWebSocket performs the offer/answer exchange over a WebSocket,
// for peers reachable through a relay that cannot terminate plain HTTP.
// Sender side.
func (c *Controller) SignalWebSocket(url string) error {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() {
		_ = conn.Close()
	}()

	offer, err := c.CreateOffer()
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(offer); err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}

	answer := webrtc.SessionDescription{}
	if err := conn.ReadJSON(&answer); err != nil {
		return fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}

	return c.AcceptAnswer(&answer)
}

// SDPWebSocketHandler answers one offer per WebSocket connection.
// Receiver side.
func (c *Controller) SDPWebSocketHandler() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(respWriter http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(respWriter, req, nil)
		if err != nil {
			c.log.Errorf("websocket upgrade: %v", err)

			return
		}
		defer func() {
			_ = conn.Close()
		}()

		offer := webrtc.SessionDescription{}
		if err := conn.ReadJSON(&offer); err != nil {
			c.log.Errorf("failed to read SDP offer: %v", err)

			return
		}
		answer, err := c.AcceptOffer(&offer)
		if err != nil {
			c.log.Errorf("rejecting offer: %v", err)
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})

			return
		}
		if err := conn.WriteJSON(answer); err != nil {
			c.log.Errorf("failed to write SDP answer: %v", err)
		}
	}
}
