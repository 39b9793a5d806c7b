package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// jpeg stream markers
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameSize bounds a single MJPEG frame; anything larger indicates a
// corrupt stream.
const maxFrameSize = 16 << 20

// mjpegScanner splits a concatenated MJPEG byte stream (ffmpeg image2pipe
// output) into individual JPEG frames.
type mjpegScanner struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func newMJPEGScanner(r io.Reader) *mjpegScanner {
	return &mjpegScanner{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next complete JPEG (SOI through EOI). io.EOF signals a
// clean end of stream.
func (s *mjpegScanner) Next() ([]byte, error) {
	if err := s.syncToSOI(); err != nil {
		return nil, err
	}

	s.buf.Reset()
	s.buf.Write(jpegSOI)

	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		s.buf.WriteByte(b)

		if prev == jpegEOI[0] && b == jpegEOI[1] {
			frame := make([]byte, s.buf.Len())
			copy(frame, s.buf.Bytes())
			return frame, nil
		}
		prev = b

		if s.buf.Len() > maxFrameSize {
			return nil, fmt.Errorf("mjpeg frame exceeds %d bytes, stream corrupt", maxFrameSize)
		}
	}
}

// syncToSOI discards bytes until the start-of-image marker, tolerating
// garbage between frames after a mid-frame disconnect.
func (s *mjpegScanner) syncToSOI() error {
	var prev byte
	discarded := 0
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == jpegSOI[0] && b == jpegSOI[1] {
			return nil
		}
		prev = b
		discarded++
		if discarded > maxFrameSize {
			return fmt.Errorf("no jpeg start marker within %d bytes", maxFrameSize)
		}
	}
}
