package source

import (
	"io"
	"os"
)

const defaultBufferSize = 64 * 1024

// FileSourceConfig holds configuration for a FileSource.
type FileSourceConfig struct {
	FilePath   string // Path to the file
	BufferSize int    // Read buffer size (0 = 64 KiB)
}

// FileSource reads from a file through an internal buffer and supports
// random access.
type FileSource struct {
	file *os.File
	size uint64
	buf  []byte // buffered window; buf[off:] is ahead of the cursor
	off  int
	pos  uint64 // file offset of buf[off]
	max  int    // buffer growth unit
}

// NewFileSource opens the file at config.FilePath.
func NewFileSource(config FileSourceConfig) (*FileSource, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &FileSource{
		file: file,
		size: uint64(stat.Size()),
		max:  bufSize,
	}, nil
}

// Pull returns a view of at least min bytes ahead of the cursor, refilling
// the buffer as needed. At end of file it returns the remaining bytes with
// io.EOF.
func (s *FileSource) Pull(min int) ([]byte, error) {
	if len(s.buf)-s.off >= min {
		return s.buf[s.off:], nil
	}
	// Compact, then read ahead at least min bytes (rounding the request up
	// to the buffer unit).
	s.buf = append(s.buf[:0], s.buf[s.off:]...)
	s.off = 0
	want := min - len(s.buf)
	if want < s.max {
		want = s.max
	}
	fileOff := s.pos + uint64(len(s.buf))
	grow := make([]byte, want)
	n, err := io.ReadFull(io.NewSectionReader(s.file, int64(fileOff), int64(want)), grow)
	s.buf = append(s.buf, grow[:n]...)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		return s.buf, err
	}
	if len(s.buf) < min {
		return s.buf, io.EOF
	}
	return s.buf, nil
}

// Advance moves the cursor forward by n buffered bytes.
func (s *FileSource) Advance(n int) {
	if n > len(s.buf)-s.off {
		n = len(s.buf) - s.off
	}
	s.off += n
	s.pos += uint64(n)
	// Keep pos pointing at buf[off] by dropping consumed bytes lazily; the
	// invariant is pos == file offset of buf[off].
	if s.off == len(s.buf) {
		s.buf = s.buf[:0]
		s.off = 0
	}
}

// Position returns the cursor's file offset.
func (s *FileSource) Position() uint64 {
	return s.pos
}

// Size returns the file size captured at open time.
func (s *FileSource) Size() (uint64, error) {
	return s.size, nil
}

// Seek repositions the cursor and drops the buffer.
func (s *FileSource) Seek(pos uint64) error {
	s.buf = s.buf[:0]
	s.off = 0
	s.pos = pos
	return nil
}

// SupportsRandomAccess always reports true.
func (s *FileSource) SupportsRandomAccess() bool {
	return true
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}
