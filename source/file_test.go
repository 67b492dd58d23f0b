// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestIVF writes a minimal IVF file with the given FourCC and
// frame payloads, one timestamp unit apart at 10fps.
func writeTestIVF(t *testing.T, fourCC string, frames [][]byte) string {
	t.Helper()

	header := make([]byte, ivfHeaderSize)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)  // version
	binary.LittleEndian.PutUint16(header[6:], 32) // header size
	copy(header[8:], fourCC)
	binary.LittleEndian.PutUint16(header[12:], 320) // width
	binary.LittleEndian.PutUint16(header[14:], 240) // height
	binary.LittleEndian.PutUint32(header[16:], 10)  // timebase denominator
	binary.LittleEndian.PutUint32(header[20:], 1)   // timebase numerator
	binary.LittleEndian.PutUint32(header[24:], uint32(len(frames)))

	path := filepath.Join(t.TempDir(), "test.ivf")
	file, err := os.Create(path)
	require.NoError(t, err)
	_, err = file.Write(header)
	require.NoError(t, err)

	for i, frame := range frames {
		frameHeader := make([]byte, 12)
		binary.LittleEndian.PutUint32(frameHeader[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(frameHeader[4:], uint64(i))
		_, err = file.Write(frameHeader)
		require.NoError(t, err)
		_, err = file.Write(frame)
		require.NoError(t, err)
	}
	require.NoError(t, file.Close())

	return path
}

func TestNewFileSourceFormats(t *testing.T) {
	path := writeTestIVF(t, "VP80", [][]byte{{0x00, 0x01}})

	src, err := NewFileSource(path)
	require.NoError(t, err)
	defer func() { assert.NoError(t, src.Close()) }()

	assert.Equal(t, []string{webrtc.MimeTypeVP8}, src.Formats())
	assert.NoError(t, src.SetFormat(webrtc.MimeTypeVP8))
	assert.ErrorIs(t, src.SetFormat(webrtc.MimeTypeVP9), ErrFormatUnsupported)
}

func TestNewFileSourceUnknownFourCC(t *testing.T) {
	path := writeTestIVF(t, "AV01", [][]byte{{0x00}})

	_, err := NewFileSource(path)
	assert.ErrorIs(t, err, ErrUnknownFourCC)
}

func TestFileSourcePlaysAllFrames(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		t.Helper()

		frames := [][]byte{{0x00, 0xaa}, {0x01, 0xbb}, {0x01, 0xcc}}
		path := writeTestIVF(t, "VP80", frames)

		src, err := NewFileSource(path)
		require.NoError(t, err)

		var samples []media.Sample
		src.SetWriter(func(s media.Sample) error {
			samples = append(samples, s)

			return nil
		})

		err = src.Start(context.Background())
		require.NoError(t, err)
		assert.NoError(t, src.Close())

		require.Len(t, samples, len(frames))
		for i, frame := range frames {
			assert.Equal(t, frame, samples[i].Data)
			assert.Equal(t, 100*time.Millisecond, samples[i].Duration)
		}
	})
}

func TestFileSourceLoops(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		t.Helper()

		path := writeTestIVF(t, "VP80", [][]byte{{0x00, 0x01}, {0x01, 0x02}})

		src, err := NewFileSource(path, FileLoop())
		require.NoError(t, err)

		count := 0
		src.SetWriter(func(media.Sample) error {
			count++

			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			assert.NoError(t, src.Start(ctx))
		}()

		time.Sleep(time.Second)
		synctest.Wait()
		cancel()
		<-done
		assert.NoError(t, src.Close())

		// Two frames per 200ms loop for one second: well past one pass.
		assert.Greater(t, count, 2)
	})
}
