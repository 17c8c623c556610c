package source

import (
	"io"

	"github.com/gregorycollins/riegeli/pkg/codec"
)

// BytesSource reads from an in-memory byte slice. It trivially supports
// random access.
type BytesSource struct {
	data []byte
	pos  uint64
}

// NewBytesSource creates a source over data. The slice is not copied.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: data}
}

// Pull returns the bytes ahead of the cursor, with io.EOF when fewer than
// min remain.
func (s *BytesSource) Pull(min int) ([]byte, error) {
	rest := s.data[s.pos:]
	if len(rest) < min {
		return rest, io.EOF
	}
	return rest, nil
}

// Advance moves the cursor forward by n bytes.
func (s *BytesSource) Advance(n int) {
	s.pos += uint64(n)
}

// Position returns the cursor offset.
func (s *BytesSource) Position() uint64 {
	return s.pos
}

// Size returns the slice length.
func (s *BytesSource) Size() (uint64, error) {
	return uint64(len(s.data)), nil
}

// Seek repositions the cursor. Seeking past the end pins the cursor at the
// end.
func (s *BytesSource) Seek(pos uint64) error {
	if pos > uint64(len(s.data)) {
		s.pos = uint64(len(s.data))
		return codec.Errorf(codec.Truncated, "seek past end: %d > %d", pos, len(s.data))
	}
	s.pos = pos
	return nil
}

// SupportsRandomAccess always reports true.
func (s *BytesSource) SupportsRandomAccess() bool {
	return true
}

// Close is a no-op.
func (s *BytesSource) Close() error {
	return nil
}
