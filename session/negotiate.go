// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package session

import (
	"fmt"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

// videoCodecFormats parses a session description and returns the video
// codec MIME types it carries, in rtpmap order, deduplicated.
func videoCodecFormats(raw string) ([]string, error) {
	parsed := &psdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNegotiationFailed, err)
	}

	var formats []string
	seen := make(map[string]struct{})
	for _, mediaDesc := range parsed.MediaDescriptions {
		if mediaDesc.MediaName.Media != "video" {
			continue
		}
		for _, attr := range mediaDesc.Attributes {
			if attr.Key != "rtpmap" {
				continue
			}
			name := rtpmapCodecName(attr.Value)
			if name == "" {
				continue
			}
			mimeType := "video/" + name
			key := strings.ToLower(mimeType)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			formats = append(formats, mimeType)
		}
	}

	return formats, nil
}

// rtpmapCodecName extracts the encoding name from an rtpmap attribute
// value, e.g. "VP8" from "96 VP8/90000".
func rtpmapCodecName(value string) string {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return ""
	}
	name, _, _ := strings.Cut(fields[1], "/")

	return name
}

// intersectFormats returns the remote formats also present in supported,
// preserving the remote's preference order. MIME types compare
// case-insensitively.
func intersectFormats(remote, supported []string) []string {
	var common []string
	for _, offered := range remote {
		for _, supp := range supported {
			if strings.EqualFold(offered, supp) {
				common = append(common, supp)

				break
			}
		}
	}

	return common
}
