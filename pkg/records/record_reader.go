package records

import (
	"io"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/decoder"
	"github.com/gregorycollins/riegeli/pkg/source"
)

// RecordReader reads a stream of records from a chunked file. It multiplexes
// the chunk reader and the chunk decoder: records pop from the current
// chunk's decoder, the next chunk loads when the decoder is exhausted, and
// failures are tagged with the layer whose recovery applies.
//
// A RecordReader must not be used from multiple goroutines.
type RecordReader struct {
	chunkReader *ChunkReader
	chunkBegin  uint64
	decoder     *decoder.ChunkDecoder
	recoverable Recoverable
	recovery    RecoveryHandler
	err         error
	closed      bool
}

// NewRecordReader creates a reader over src.
func NewRecordReader(src source.ByteSource, options ReaderOptions) *RecordReader {
	chunkReader := NewChunkReader(src)
	return &RecordReader{
		chunkReader: chunkReader,
		chunkBegin:  chunkReader.Pos(),
		decoder:     decoder.NewChunkDecoder(decoder.Options{FieldProjection: options.FieldProjection}),
		recovery:    options.Recovery,
	}
}

// Open opens the file at path for reading records.
func Open(path string, options ReaderOptions) (*RecordReader, error) {
	src, err := source.NewFileSource(source.FileSourceConfig{FilePath: path})
	if err != nil {
		return nil, err
	}
	return NewRecordReader(src, options), nil
}

// Close releases the reader. Further operations fail.
func (r *RecordReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.recoverable = RecoverableNo
	return r.chunkReader.Close()
}

// Healthy reports whether the reader can keep reading. A reader at clean
// end of file stays healthy.
func (r *RecordReader) Healthy() bool {
	return r.err == nil && !r.closed
}

// Err returns the failure, or nil.
func (r *RecordReader) Err() error {
	return r.err
}

// RecoverableState reports at which layer recovery applies, or
// RecoverableNo for a healthy reader.
func (r *RecordReader) RecoverableState() Recoverable {
	return r.recoverable
}

// SupportsRandomAccess reports whether seeks are usable.
func (r *RecordReader) SupportsRandomAccess() bool {
	return r.chunkReader.SupportsRandomAccess()
}

// Size returns the file size in bytes.
func (r *RecordReader) Size() (uint64, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	if r.err != nil {
		return 0, r.err
	}
	size, err := r.chunkReader.Size()
	if err != nil {
		return 0, r.fail(RecoverableNo, err)
	}
	return size, nil
}

// Pos returns the reader's logical position: the current record when the
// chunk has pending records, the next chunk begin otherwise.
func (r *RecordReader) Pos() RecordPosition {
	if r.decoder.Index() < r.decoder.NumRecords() {
		return RecordPosition{ChunkBegin: r.chunkBegin, RecordIndex: r.decoder.Index()}
	}
	return RecordPosition{ChunkBegin: r.chunkReader.Pos()}
}

// SetRecoveryHandler installs or replaces the recovery callback.
func (r *RecordReader) SetRecoveryHandler(handler RecoveryHandler) {
	r.recovery = handler
}

// CheckFileFormat verifies that the input looks like a record file without
// consuming records. Returns (false, nil) for an empty input.
func (r *RecordReader) CheckFileFormat() (bool, error) {
	if err := r.checkOpen(); err != nil {
		return false, err
	}
	if r.err != nil {
		return false, r.err
	}
	if r.decoder.Index() < r.decoder.NumRecords() {
		return true, nil
	}
	ok, err := r.chunkReader.CheckFileFormat()
	if err != nil {
		r.decoder.Clear()
		return false, r.fail(RecoverableChunkReader, err)
	}
	return ok, nil
}

// ReadRecord returns the next record. io.EOF marks clean end of file with
// the reader healthy; any other error leaves the reader failed with a
// recoverable tag for Recover.
func (r *RecordReader) ReadRecord() ([]byte, error) {
	record, _, err := r.readRecord()
	return record, err
}

// ReadKeyedRecord returns the next record together with its position.
func (r *RecordReader) ReadKeyedRecord() ([]byte, RecordPosition, error) {
	return r.readRecord()
}

func (r *RecordReader) readRecord() ([]byte, RecordPosition, error) {
	if err := r.checkOpen(); err != nil {
		return nil, RecordPosition{}, err
	}
	// Fast path: pop from the current chunk.
	if record, ok := r.decoder.ReadRecord(); ok {
		return record, RecordPosition{ChunkBegin: r.chunkBegin, RecordIndex: r.decoder.Index() - 1}, nil
	}
	if r.err != nil {
		if !r.tryRecovery() {
			return nil, RecordPosition{}, r.err
		}
	}
	for {
		if record, ok := r.decoder.ReadRecord(); ok {
			return record, RecordPosition{ChunkBegin: r.chunkBegin, RecordIndex: r.decoder.Index() - 1}, nil
		}
		if !r.decoder.Healthy() {
			r.fail(RecoverableChunkDecoder, r.decoder.Err())
			if !r.tryRecovery() {
				return nil, RecordPosition{}, r.err
			}
			continue
		}
		if err := r.readChunk(); err != nil {
			if err == io.EOF {
				return nil, RecordPosition{}, io.EOF
			}
			if !r.tryRecovery() {
				return nil, RecordPosition{}, r.err
			}
		}
	}
}

// readChunk loads and decodes the next chunk. io.EOF means clean end of
// file and leaves the reader healthy.
func (r *RecordReader) readChunk() error {
	r.chunkBegin = r.chunkReader.Pos()
	chunk, err := r.chunkReader.ReadChunk()
	if err != nil {
		r.decoder.Clear()
		if err == io.EOF {
			return io.EOF
		}
		return r.fail(RecoverableChunkReader, err)
	}
	if err := r.decoder.Decode(chunk); err != nil {
		return r.fail(RecoverableChunkDecoder, err)
	}
	return nil
}

func (r *RecordReader) fail(recoverable Recoverable, err error) error {
	r.recoverable = recoverable
	r.err = err
	return err
}

func (r *RecordReader) checkOpen() error {
	if r.closed {
		return codec.Errorf(codec.FailedPrecondition, "reader is closed")
	}
	return nil
}

// tryRecovery runs the installed recovery handler against the failure.
// Without a handler the reader stays failed for an explicit Recover call.
func (r *RecordReader) tryRecovery() bool {
	if r.recovery == nil {
		return false
	}
	region, ok := r.Recover()
	if !ok {
		return false
	}
	if r.recovery(region) {
		return true
	}
	r.recoverable = RecoverableNo
	r.err = codec.Errorf(codec.DataLoss, "%s", region.Reason)
	return false
}

// Recover clears a failed state by skipping the damaged region, dispatching
// to the layer recorded at failure time. Returns the skipped region and
// whether recovery succeeded. Valid only when the reader is failed with a
// recoverable tag.
func (r *RecordReader) Recover() (SkippedRegion, bool) {
	if r.recoverable == RecoverableNo {
		return SkippedRegion{}, false
	}
	recoverable := r.recoverable
	r.recoverable = RecoverableNo
	reason := ""
	if r.err != nil {
		reason = r.err.Error()
	}
	r.err = nil
	switch recoverable {
	case RecoverableChunkReader:
		region, ok := r.chunkReader.Recover()
		if !ok {
			if err := r.chunkReader.Err(); err != nil {
				r.fail(RecoverableNo, err)
			} else {
				r.fail(RecoverableNo, codec.Errorf(codec.DataLoss, "%s", reason))
			}
			return SkippedRegion{}, false
		}
		return region, true
	case RecoverableChunkDecoder:
		indexBefore := r.decoder.Index()
		if !r.decoder.Recover() {
			r.decoder.Clear()
		}
		region := SkippedRegion{
			Begin:  r.chunkBegin + indexBefore,
			End:    r.Pos().Numeric(),
			Reason: reason,
		}
		return region, true
	}
	return SkippedRegion{}, false
}

// Seek positions the reader at newPos. Seeking to record index 0 of a chunk
// does not read the chunk, which matters when the chunk is at end of file.
// io.EOF reports a nonzero record index requested in a chunk that would
// begin at the end of the data.
func (r *RecordReader) Seek(newPos RecordPosition) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if r.err != nil {
		if !r.tryRecovery() {
			return r.err
		}
	}
	readNeeded := false
	if newPos.ChunkBegin == r.chunkBegin {
		if newPos.RecordIndex != 0 && r.chunkReader.Pos() <= r.chunkBegin {
			// The current chunk has not been read yet.
			readNeeded = true
		}
	} else {
		if err := r.chunkReader.Seek(newPos.ChunkBegin); err != nil {
			r.chunkBegin = r.chunkReader.Pos()
			r.decoder.Clear()
			r.fail(RecoverableChunkReader, err)
			if !r.tryRecovery() {
				return r.err
			}
			return nil
		}
		r.chunkBegin = r.chunkReader.Pos()
		r.decoder.Clear()
		if newPos.RecordIndex == 0 {
			return nil
		}
		readNeeded = true
	}
	if readNeeded {
		if err := r.readChunk(); err != nil {
			if err == io.EOF {
				return io.EOF
			}
			if !r.tryRecovery() {
				return r.err
			}
		}
	}
	r.decoder.SetIndex(newPos.RecordIndex)
	return nil
}

// SeekByte positions the reader at the record whose numeric position is
// pos: the chunk containing pos with the record index interpreted relative
// to the chunk begin. When pos falls between chunks the reader stops at the
// next chunk begin.
func (r *RecordReader) SeekByte(pos uint64) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if r.err != nil {
		if !r.tryRecovery() {
			return r.err
		}
	}
	if pos >= r.chunkBegin && pos <= r.chunkReader.Pos() {
		// Inside the current chunk, which is already read or located.
	} else {
		if err := r.chunkReader.SeekToChunkContaining(pos); err != nil {
			r.chunkBegin = r.chunkReader.Pos()
			r.decoder.Clear()
			r.fail(RecoverableChunkReader, err)
			if !r.tryRecovery() {
				return r.err
			}
			return nil
		}
		if r.chunkReader.Pos() >= pos {
			// pos falls after all records of the previous chunk; stop
			// at the next chunk begin.
			r.chunkBegin = r.chunkReader.Pos()
			r.decoder.Clear()
			return nil
		}
		if err := r.readChunk(); err != nil {
			if err == io.EOF {
				return io.EOF
			}
			if !r.tryRecovery() {
				return r.err
			}
		}
	}
	r.decoder.SetIndex(pos - r.chunkBegin)
	return nil
}

// Iterator returns a streaming iterator over the remaining records.
func (r *RecordReader) Iterator() RecordIterator {
	return &recordIterator{reader: r}
}

// RecordIterator provides streaming access to records.
type RecordIterator interface {
	Next() bool
	Record() []byte
	Position() RecordPosition
	Err() error
	Close() error
}

type recordIterator struct {
	reader   *RecordReader
	record   []byte
	position RecordPosition
	err      error
}

func (it *recordIterator) Next() bool {
	record, position, err := it.reader.readRecord()
	if err != nil {
		if err != io.EOF {
			it.err = err
		}
		return false
	}
	it.record = record
	it.position = position
	return true
}

func (it *recordIterator) Record() []byte {
	return it.record
}

func (it *recordIterator) Position() RecordPosition {
	return it.position
}

func (it *recordIterator) Err() error {
	return it.err
}

func (it *recordIterator) Close() error {
	// The underlying reader is owned by the caller.
	return nil
}
