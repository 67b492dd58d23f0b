// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapper(t *testing.T) {
	var u unwrapper

	assert.Equal(t, int64(65534), u.unwrap(65534))
	assert.Equal(t, int64(65535), u.unwrap(65535))
	// Wraparound continues the 64-bit sequence.
	assert.Equal(t, int64(65536), u.unwrap(0))
	assert.Equal(t, int64(65537), u.unwrap(1))
	// A late packet from before the wrap maps backwards.
	assert.Equal(t, int64(65535), u.unwrap(65535))
}

func TestRTPFormatMalformedTWCC(t *testing.T) {
	formatter := &RTPFormatter{}
	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: 7}}
	require.NoError(t, pkt.SetExtension(1, []byte{0x01})) // too short for a TWCC number

	line := formatter.RTPFormat(pkt, nil)
	assert.True(t, strings.HasSuffix(line, ", 0, 7\n"), "TWCC must log as zero: %q", line)
}

func TestGetLogFile(t *testing.T) {
	discard, err := GetLogFile("")
	require.NoError(t, err)
	assert.NoError(t, discard.Close())

	stdout, err := GetLogFile("stdout")
	require.NoError(t, err)
	assert.NoError(t, stdout.Close())

	path := filepath.Join(t.TempDir(), "rtp.log")
	file, err := GetLogFile(path)
	require.NoError(t, err)
	_, err = file.Write([]byte("1, 2\n"))
	require.NoError(t, err)
	// Buffered content must survive Close.
	require.NoError(t, file.Close())

	content, err := os.ReadFile(path) // #nosec G304
	require.NoError(t, err)
	assert.Equal(t, "1, 2\n", string(content))
}
