// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

const ivfHeaderSize = 32

// ErrUnknownFourCC is returned when an IVF file carries a codec this
// source cannot announce.
var ErrUnknownFourCC = errors.New("unknown IVF FourCC")

// FileSource demuxes an IVF file and paces its frames by the file's
// timebase, optionally looping at EOF.
type FileSource struct {
	file   *os.File
	reader *ivfreader.IVFReader
	header *ivfreader.IVFFileHeader
	format string
	loop   bool

	writer   func(media.Sample) error
	writerMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	log logging.LeveledLogger
}

// FileOption configures a FileSource.
type FileOption func(*FileSource) error

// FileLoop restarts playback from the first frame at EOF instead of
// returning.
func FileLoop() FileOption {
	return func(s *FileSource) error {
		s.loop = true

		return nil
	}
}

// FileLoggerFactory sets the logger factory used by the source.
func FileLoggerFactory(factory logging.LoggerFactory) FileOption {
	return func(s *FileSource) error {
		s.log = factory.NewLogger("file_source")

		return nil
	}
}

// NewFileSource opens path and parses its IVF header.
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	file, err := os.Open(path) // #nosec G304 - the media path is operator-supplied
	if err != nil {
		return nil, err
	}
	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		_ = file.Close()

		return nil, err
	}

	var format string
	switch header.FourCC {
	case "VP80":
		format = webrtc.MimeTypeVP8
	case "VP90":
		format = webrtc.MimeTypeVP9
	default:
		_ = file.Close()

		return nil, fmt.Errorf("%w: %q", ErrUnknownFourCC, header.FourCC)
	}

	src := &FileSource{
		file:   file,
		reader: reader,
		header: header,
		format: format,
		done:   make(chan struct{}),
		log:    logging.NewDefaultLoggerFactory().NewLogger("file_source"),
	}
	for _, opt := range opts {
		if err := opt(src); err != nil {
			_ = file.Close()

			return nil, err
		}
	}

	return src, nil
}

// Formats returns the codec derived from the IVF FourCC.
func (s *FileSource) Formats() []string {
	return []string{s.format}
}

// SetFormat accepts only the file's own codec.
func (s *FileSource) SetFormat(mimeType string) error {
	if mimeType != s.format {
		return ErrFormatUnsupported
	}

	return nil
}

// SetWriter installs the encoded-sample callback target.
func (s *FileSource) SetWriter(writer func(media.Sample) error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	s.writer = writer
}

// Start sends one frame per timebase tick until EOF (or forever when
// looping), ctx cancellation or Close.
//
// A ticker is used instead of sleeping between frames so pacing does not
// accumulate the time spent parsing.
func (s *FileSource) Start(ctx context.Context) error {
	s.writerMu.Lock()
	writer := s.writer
	s.writerMu.Unlock()
	if writer == nil {
		return ErrNoWriter
	}

	frameDuration := time.Duration(
		float64(s.header.TimebaseNumerator) / float64(s.header.TimebaseDenominator) * float64(time.Second),
	)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			frame, _, err := s.reader.ParseNextFrame()
			switch {
			case err == nil:
				if err := writer(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
					return err
				}
			case errors.Is(err, io.EOF):
				if !s.loop {
					return nil
				}
				if err := s.rewind(); err != nil {
					return err
				}
			default:
				return err
			}
		}
	}
}

func (s *FileSource) rewind() error {
	if _, err := s.file.Seek(ivfHeaderSize, io.SeekStart); err != nil {
		return err
	}
	s.reader.ResetReader(func(_ int64) io.Reader {
		return s.file
	})
	s.log.Debugf("rewound %s", s.file.Name())

	return nil
}

// Close stops the source and closes the file.
func (s *FileSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.file.Close()
	})

	return err
}
