// Package source provides pull-based byte access for the record reader
// stack. A ByteSource abstracts over files, memory and other seekable or
// purely sequential inputs.
package source

import "github.com/gregorycollins/riegeli/pkg/codec"

// ByteSource is a single-threaded, pull-based byte stream with an explicit
// cursor. Implementations may buffer internally.
//
// Pull returns a view of at least min bytes ahead of the cursor when
// possible. At end of input it returns the remaining bytes (possibly none)
// together with io.EOF. The view is valid until the next Pull, Advance or
// Seek.
type ByteSource interface {
	Pull(min int) ([]byte, error)
	// Advance moves the cursor forward by n bytes. n must not exceed the
	// length of the last Pull view.
	Advance(n int)
	// Position returns the cursor's byte offset from the start of input.
	Position() uint64
	// Size returns the total input length. Returns an Unimplemented error
	// when the source cannot tell.
	Size() (uint64, error)
	// Seek repositions the cursor. Returns an Unimplemented error when
	// the source does not support random access.
	Seek(pos uint64) error
	// SupportsRandomAccess reports whether Seek and Size are usable.
	SupportsRandomAccess() bool
	// Close releases the underlying resource.
	Close() error
}

func errUnimplemented(op string) error {
	return codec.Errorf(codec.Unimplemented, "%s not supported by this source", op)
}
