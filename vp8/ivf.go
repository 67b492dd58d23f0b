// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package vp8

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTooManyFrames is returned when the archived frame count no longer
// fits the 32-bit header field.
var ErrTooManyFrames = errors.New("too many frames")

// Writer archives assembled VP8 frames into a valid IVF file. For
// seekable outputs the frame count in the header is patched on Close.
type Writer struct {
	writer        io.Writer
	headerWritten bool
	frameCount    uint64
	width         uint16
	height        uint16
	seekable      bool
}

// NewWriter creates an IVF writer and emits the file header.
func NewWriter(w io.Writer, width, height uint16) (*Writer, error) {
	ivf := &Writer{
		writer: w,
		width:  width,
		height: height,
	}
	if _, ok := w.(*os.File); ok {
		ivf.seekable = true
	}
	if err := ivf.writeHeader(); err != nil {
		return nil, err
	}

	return ivf, nil
}

func (i *Writer) writeHeader() error {
	if i.headerWritten {
		return nil
	}

	header := make([]byte, 32)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)  // version
	binary.LittleEndian.PutUint16(header[6:], 32) // header size
	copy(header[8:], "VP80")
	binary.LittleEndian.PutUint16(header[12:], i.width)
	binary.LittleEndian.PutUint16(header[14:], i.height)
	binary.LittleEndian.PutUint32(header[16:], 30) // timebase denominator
	binary.LittleEndian.PutUint32(header[20:], 1)  // timebase numerator
	binary.LittleEndian.PutUint32(header[24:], 0)  // frame count, patched on Close
	binary.LittleEndian.PutUint32(header[28:], 0)  // reserved

	if _, err := i.writer.Write(header); err != nil {
		return err
	}
	i.headerWritten = true

	return nil
}

// WriteFrame appends one assembled frame with the given timestamp.
func (i *Writer) WriteFrame(frame []byte, timestamp uint64) error {
	if err := i.writeHeader(); err != nil {
		return err
	}

	frameHeader := make([]byte, 12)
	binary.LittleEndian.PutUint32(frameHeader[0:], uint32(len(frame))) // #nosec G115
	binary.LittleEndian.PutUint64(frameHeader[4:], timestamp)

	if _, err := i.writer.Write(frameHeader); err != nil {
		return err
	}
	if _, err := i.writer.Write(frame); err != nil {
		return err
	}
	i.frameCount++

	return nil
}

// FrameCount returns the number of archived frames.
func (i *Writer) FrameCount() uint64 {
	return i.frameCount
}

// Close finalizes the file, patching the frame count into the header
// when the underlying writer supports seeking.
func (i *Writer) Close() error {
	if i.seekable {
		if err := i.patchFrameCount(); err != nil {
			return err
		}
	}
	if closer, ok := i.writer.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

func (i *Writer) patchFrameCount() error {
	file, ok := i.writer.(*os.File)
	if !ok {
		return nil
	}
	if i.frameCount > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d", ErrTooManyFrames, i.frameCount)
	}
	if _, err := file.Seek(24, io.SeekStart); err != nil {
		return err
	}

	return binary.Write(file, binary.LittleEndian, uint32(i.frameCount))
}
