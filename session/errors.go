// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package session

import (
	"errors"
	"fmt"
)

// Static errors for err113 compliance.
var (
	// ErrNegotiationFailed covers every way an offer/answer exchange can
	// go wrong. More specific negotiation errors wrap it.
	ErrNegotiationFailed = errors.New("negotiation failed")

	// ErrIncompatibleFormats is returned when the remote's codecs and the
	// local media pipeline share no common format.
	ErrIncompatibleFormats = fmt.Errorf("%w: no mutually supported codec", ErrNegotiationFailed)

	// ErrNoPeerConnection is returned when an operation requires
	// SetupPeerConnection to have run first.
	ErrNoPeerConnection = errors.New("no peer connection created")

	// ErrMediaSource marks failures originating in the media pipeline.
	ErrMediaSource = errors.New("media source failed")

	// ErrTransportFailure marks failures originating in the transport.
	ErrTransportFailure = errors.New("transport failure")

	// ErrSignalingBadStatus is returned when the signaling peer answers
	// with a non-OK HTTP status.
	ErrSignalingBadStatus = errors.New("signaling received unexpected status code")
)
