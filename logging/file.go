// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package logging holds the packet-log plumbing: file targets for the
// CSV logs and the RTP/RTCP line formatters used with packetdump.
package logging

import (
	"bufio"
	"io"
	"os"
)

// GetLogFile resolves a log destination: "" discards, "stdout" writes to
// the process's stdout, anything else creates a buffered file.
func GetLogFile(file string) (io.WriteCloser, error) {
	if len(file) == 0 {
		return nopCloser{io.Discard}, nil
	}
	if file == "stdout" {
		return nopCloser{os.Stdout}, nil
	}
	fd, err := os.Create(file) // #nosec G304 - destination comes from the caller's flags
	if err != nil {
		return nil, err
	}

	return &fileCloser{
		f:   fd,
		buf: bufio.NewWriterSize(fd, 4096),
	}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

type fileCloser struct {
	f   *os.File
	buf *bufio.Writer
}

func (f *fileCloser) Write(buf []byte) (int, error) {
	return f.buf.Write(buf)
}

func (f *fileCloser) Close() error {
	if err := f.buf.Flush(); err != nil {
		return err
	}

	return f.f.Close()
}
