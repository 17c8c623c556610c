package source

import "io"

// StreamSource adapts a non-seekable io.Reader. Random-access operations
// report Unimplemented; sequential reading works as usual.
type StreamSource struct {
	r   io.Reader
	buf []byte
	off int
	pos uint64
	eof bool
}

// NewStreamSource creates a purely sequential source over r.
func NewStreamSource(r io.Reader) *StreamSource {
	return &StreamSource{r: r}
}

// Pull returns a view of at least min bytes ahead of the cursor, reading
// from the underlying reader as needed.
func (s *StreamSource) Pull(min int) ([]byte, error) {
	for len(s.buf)-s.off < min && !s.eof {
		s.buf = append(s.buf[:0], s.buf[s.off:]...)
		s.off = 0
		grow := make([]byte, defaultBufferSize)
		n, err := s.r.Read(grow)
		s.buf = append(s.buf, grow[:n]...)
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			return s.buf[s.off:], err
		}
	}
	if len(s.buf)-s.off < min {
		return s.buf[s.off:], io.EOF
	}
	return s.buf[s.off:], nil
}

// Advance moves the cursor forward by n buffered bytes.
func (s *StreamSource) Advance(n int) {
	if n > len(s.buf)-s.off {
		n = len(s.buf) - s.off
	}
	s.off += n
	s.pos += uint64(n)
}

// Position returns the number of bytes consumed so far.
func (s *StreamSource) Position() uint64 {
	return s.pos
}

// Size is not available for streams.
func (s *StreamSource) Size() (uint64, error) {
	return 0, errUnimplemented("size")
}

// Seek is not available for streams.
func (s *StreamSource) Seek(pos uint64) error {
	return errUnimplemented("seek")
}

// SupportsRandomAccess always reports false.
func (s *StreamSource) SupportsRandomAccess() bool {
	return false
}

// Close closes the underlying reader when it is an io.Closer.
func (s *StreamSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
