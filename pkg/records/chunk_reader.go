package records

import (
	"errors"
	"io"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/source"
)

// ChunkReader frames a byte source into chunks, hiding the block headers
// interleaved at every 64 KiB boundary and validating all header hashes.
// After a failure it can re-synchronize on the next plausible chunk
// boundary.
//
// Positions reported by the chunk reader are chunk begins. A chunk begin may
// coincide with a block boundary; in that case the block header at the
// boundary is part of the chunk's on-disk extent and the first chunk of a
// file begins at position 0.
type ChunkReader struct {
	src source.ByteSource
	// pos is the begin of the next chunk, or of the chunk currently
	// peeked.
	pos       uint64
	peeked    *codec.ChunkHeader
	err       error
	truncated bool
}

// NewChunkReader creates a chunk reader over src, positioned at the
// source's current position.
func NewChunkReader(src source.ByteSource) *ChunkReader {
	return &ChunkReader{src: src, pos: src.Position()}
}

// Pos returns the begin of the next chunk. After a successful ReadChunk
// this is the position just past the chunk, including its padding and any
// interleaved block headers.
func (r *ChunkReader) Pos() uint64 {
	return r.pos
}

// Healthy reports whether the reader can keep going.
func (r *ChunkReader) Healthy() bool {
	return r.err == nil
}

// Err returns the failure, or nil.
func (r *ChunkReader) Err() error {
	return r.err
}

// SupportsRandomAccess reports whether Seek and SeekToChunkContaining are
// usable.
func (r *ChunkReader) SupportsRandomAccess() bool {
	return r.src.SupportsRandomAccess()
}

// Size returns the source size.
func (r *ChunkReader) Size() (uint64, error) {
	return r.src.Size()
}

// Close closes the underlying source.
func (r *ChunkReader) Close() error {
	return r.src.Close()
}

func (r *ChunkReader) fail(err error) error {
	r.err = err
	r.truncated = codec.KindOf(err) == codec.Truncated
	return err
}

// consumeBlockHeader validates and skips the block header at the source's
// current position. chunkBegin is the begin of the chunk being consumed;
// atChunkStart marks the boundary coinciding with a chunk begin, where the
// previous-chunk offset must be zero.
func (r *ChunkReader) consumeBlockHeader(chunkBegin uint64, atChunkStart bool) error {
	boundary := r.src.Position()
	buf, err := r.src.Pull(codec.BlockHeaderSize)
	if len(buf) < codec.BlockHeaderSize {
		if err != nil && err != io.EOF {
			return err
		}
		return codec.Errorf(codec.Truncated,
			"file ends inside the block header at %d", boundary)
	}
	header, err := codec.DecodeBlockHeader(buf[:codec.BlockHeaderSize])
	if err != nil {
		return err
	}
	if atChunkStart {
		if header.PreviousChunkOffset != 0 {
			return codec.Errorf(codec.DataLoss,
				"block header at %d claims previous chunk %d bytes back, but a chunk begins here",
				boundary, header.PreviousChunkOffset)
		}
	} else if header.PreviousChunkOffset != boundary-chunkBegin {
		return codec.Errorf(codec.DataLoss,
			"block header at %d claims previous chunk %d bytes back, reading chunk %d bytes back",
			boundary, header.PreviousChunkOffset, boundary-chunkBegin)
	}
	r.src.Advance(codec.BlockHeaderSize)
	return nil
}

// readStream reads n chunk bytes from the source, skipping and validating
// interleaved block headers. chunkBegin is the begin of the chunk being
// read.
func (r *ChunkReader) readStream(chunkBegin, n uint64) ([]byte, error) {
	out := make([]byte, 0, n)
	for n > 0 {
		if codec.IsBlockBoundary(r.src.Position()) {
			if err := r.consumeBlockHeader(chunkBegin, false); err != nil {
				return nil, err
			}
		}
		remaining := codec.BlockSize - r.src.Position()%codec.BlockSize
		take := n
		if take > remaining {
			take = remaining
		}
		buf, err := r.src.Pull(int(take))
		if uint64(len(buf)) < take {
			if err != nil && err != io.EOF {
				return nil, err
			}
			return nil, codec.Errorf(codec.Truncated,
				"file ends inside the chunk at %d", chunkBegin)
		}
		out = append(out, buf[:take]...)
		r.src.Advance(int(take))
		n -= take
	}
	return out, nil
}

// pullHeader reads the chunk header of the chunk beginning at chunkBegin,
// leaving the source positioned at the payload. Returns io.EOF when the
// source ends cleanly at the chunk begin.
func (r *ChunkReader) pullHeader(chunkBegin uint64) (*codec.ChunkHeader, error) {
	buf, err := r.src.Pull(1)
	if len(buf) == 0 {
		if err != nil && err != io.EOF {
			return nil, err
		}
		return nil, io.EOF
	}
	if codec.IsBlockBoundary(r.src.Position()) {
		if err := r.consumeBlockHeader(chunkBegin, true); err != nil {
			return nil, err
		}
	}
	raw, err := r.readStream(chunkBegin, codec.ChunkHeaderSize)
	if err != nil {
		return nil, err
	}
	return codec.DecodeChunkHeader(raw)
}

// PullChunkHeader peeks the next chunk's header without consuming its
// payload. Returns io.EOF at clean end of file.
func (r *ChunkReader) PullChunkHeader() (*codec.ChunkHeader, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.peeked != nil {
		return r.peeked, nil
	}
	header, err := r.pullHeader(r.pos)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, r.fail(err)
	}
	r.peeked = header
	return header, nil
}

// ReadChunk reads the next chunk: header, payload and alignment padding,
// validating the chunk header hash and every block header crossed; the
// payload hash is left to the chunk decoder. On success the reader is
// positioned at the next chunk. Returns io.EOF at clean end of file.
func (r *ChunkReader) ReadChunk() (*codec.Chunk, error) {
	if r.err != nil {
		return nil, r.err
	}
	chunkBegin := r.pos
	header := r.peeked
	r.peeked = nil
	if header == nil {
		h, err := r.pullHeader(chunkBegin)
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, r.fail(err)
		}
		header = h
	}
	data, err := r.readStream(chunkBegin, header.DataSize)
	if err != nil {
		return nil, r.fail(err)
	}
	if _, err := r.readStream(chunkBegin, codec.Padding(header.DataSize)); err != nil {
		return nil, r.fail(err)
	}
	// The payload hash is the chunk decoder's to verify: framing stays
	// intact when only payload bytes are damaged, so recovery can stay at
	// the decoder level and resume at the next chunk without rescanning.
	r.pos = r.src.Position()
	return &codec.Chunk{Header: *header, Data: data}, nil
}

// CheckFileFormat verifies that the file starts with a valid signature
// chunk. Returns (false, nil) for an empty file. Must be called at the
// beginning of the file.
func (r *ChunkReader) CheckFileFormat() (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	if r.pos != 0 {
		return false, codec.Errorf(codec.FailedPrecondition,
			"file format check requires the reader at the beginning, at %d", r.pos)
	}
	header, err := r.PullChunkHeader()
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	if header.ChunkType != codec.ChunkTypeFileSignature ||
		header.NumRecords != 0 || header.DataSize != 0 || header.DecodedDataSize != 0 {
		return false, r.fail(codec.Errorf(codec.DataLoss,
			"invalid file signature chunk: type %q, %d records, %d data bytes",
			byte(header.ChunkType), header.NumRecords, header.DataSize))
	}
	return true, nil
}

// Seek positions the reader at pos, which must be a chunk begin (or end of
// file).
func (r *ChunkReader) Seek(pos uint64) error {
	if r.err != nil {
		return r.err
	}
	if !r.src.SupportsRandomAccess() {
		return r.fail(codec.Errorf(codec.Unimplemented, "seek not supported by this source"))
	}
	if err := r.src.Seek(pos); err != nil {
		return r.fail(err)
	}
	r.pos = pos
	r.peeked = nil
	return nil
}

// SeekToChunkContaining positions the reader at the chunk whose span covers
// pos, consulting the block header of pos's block to locate the chunk
// begin. A chunk's span includes its alignment padding and any block headers
// inside its on-disk extent, so pos inside either resolves to that chunk. A
// pos at or past the end of the data leaves the reader at the end.
func (r *ChunkReader) SeekToChunkContaining(pos uint64) error {
	if r.err != nil {
		return r.err
	}
	if !r.src.SupportsRandomAccess() {
		return r.fail(codec.Errorf(codec.Unimplemented, "seek not supported by this source"))
	}
	boundary := pos - pos%codec.BlockSize
	if size, err := r.src.Size(); err == nil && boundary >= size {
		// pos is past the end of the file; stop at the end.
		return r.seekToEnd()
	}
	var c uint64
	if boundary == 0 {
		c = 0
	} else {
		if err := r.src.Seek(boundary); err != nil {
			return r.fail(err)
		}
		buf, err := r.src.Pull(codec.BlockHeaderSize)
		if len(buf) < codec.BlockHeaderSize {
			if err != nil && err != io.EOF {
				return r.fail(err)
			}
			// pos is past the end of the file; stop at the end.
			return r.seekToEnd()
		}
		header, err := codec.DecodeBlockHeader(buf[:codec.BlockHeaderSize])
		if err != nil {
			return r.fail(err)
		}
		if header.PreviousChunkOffset == 0 {
			c = boundary
		} else {
			if header.PreviousChunkOffset > boundary {
				return r.fail(codec.Errorf(codec.DataLoss,
					"block header at %d points before the file begin", boundary))
			}
			c = boundary - header.PreviousChunkOffset
		}
	}
	// Walk forward over chunk headers until the chunk covering pos.
	for {
		if c > pos {
			break
		}
		if err := r.Seek(c); err != nil {
			return err
		}
		header, err := r.PullChunkHeader()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		end := codec.ChunkEnd(c, header.DataSize)
		if pos < end {
			break
		}
		c = end
	}
	return r.Seek(c)
}

func (r *ChunkReader) seekToEnd() error {
	size, err := r.src.Size()
	if err != nil {
		return r.fail(err)
	}
	if err := r.src.Seek(size); err != nil {
		return r.fail(err)
	}
	r.pos = size
	r.peeked = nil
	return nil
}

// skipTo advances to target without random access, reading and discarding.
func (r *ChunkReader) skipTo(target uint64) error {
	for r.src.Position() < target {
		want := target - r.src.Position()
		if want > codec.BlockSize {
			want = codec.BlockSize
		}
		buf, err := r.src.Pull(int(want))
		if len(buf) == 0 {
			if err != nil && err != io.EOF {
				return err
			}
			return io.EOF
		}
		n := uint64(len(buf))
		if n > want {
			n = want
		}
		r.src.Advance(int(n))
	}
	return nil
}

// moveTo positions the source at target, seeking when possible and reading
// forward otherwise. Returns io.EOF when the source ends first.
func (r *ChunkReader) moveTo(target uint64) error {
	if r.src.SupportsRandomAccess() {
		if size, err := r.src.Size(); err == nil && target > size {
			return io.EOF
		}
		return r.src.Seek(target)
	}
	if target < r.src.Position() {
		return codec.Errorf(codec.Unimplemented,
			"cannot move back to %d on a sequential source", target)
	}
	return r.skipTo(target)
}

// Recover re-synchronizes after a failure: it scans forward from the damage
// for a block boundary whose header leads to a chunk header with a valid
// hash, and reports the bytes bridged. End of file reached during the scan
// is a legal terminal state: the region extends to the end and the reader
// is left healthy there. Returns false when the reader is healthy or the
// failure is not data loss.
func (r *ChunkReader) Recover() (SkippedRegion, bool) {
	if r.err == nil || !codec.IsDataLoss(r.err) {
		return SkippedRegion{}, false
	}
	reason := r.err.Error()
	begin := r.pos
	truncated := r.truncated
	r.err = nil
	r.truncated = false
	r.peeked = nil

	if truncated {
		// Truncation at the end of the file: everything to the end is
		// the damaged region, and end of file is a legal final state.
		end := r.endPosition()
		r.pos = end
		return SkippedRegion{Begin: begin, End: end, Reason: reason}, true
	}

	scanFrom := begin
	if p := r.src.Position(); p > scanFrom {
		scanFrom = p
	}
	boundary := codec.NextBlockBoundary(scanFrom)
	for {
		if err := r.moveTo(boundary); err != nil {
			if errors.Is(err, io.EOF) {
				end := r.endPosition()
				r.pos = end
				return SkippedRegion{Begin: begin, End: end, Reason: reason}, true
			}
			r.fail(err)
			return SkippedRegion{}, false
		}
		candidate, ok := r.probeBoundary(boundary)
		if ok {
			r.pos = candidate
			return SkippedRegion{Begin: begin, End: candidate, Reason: reason}, true
		}
		if candidate == endOfFile {
			end := r.endPosition()
			r.pos = end
			return SkippedRegion{Begin: begin, End: end, Reason: reason}, true
		}
		boundary += codec.BlockSize
	}
}

// endOfFile marks a probe that ran off the end of the source.
const endOfFile = ^uint64(0)

// probeBoundary inspects the block header at boundary and the chunk header
// it points at. On success it returns the chunk begin to resume at, with
// the header left peeked.
func (r *ChunkReader) probeBoundary(boundary uint64) (uint64, bool) {
	buf, err := r.src.Pull(codec.BlockHeaderSize)
	if len(buf) < codec.BlockHeaderSize {
		if err == nil || err == io.EOF {
			return endOfFile, false
		}
		return 0, false
	}
	header, err := codec.DecodeBlockHeader(buf[:codec.BlockHeaderSize])
	if err != nil {
		return 0, false
	}
	candidate := boundary
	if header.PreviousChunkOffset != 0 {
		candidate = boundary + header.NextChunkOffset
	}
	if err := r.moveTo(candidate); err != nil {
		if errors.Is(err, io.EOF) {
			return endOfFile, false
		}
		return 0, false
	}
	chunkHeader, err := r.pullHeader(candidate)
	if err != nil {
		if err == io.EOF {
			return endOfFile, false
		}
		return 0, false
	}
	r.pos = candidate
	r.peeked = chunkHeader
	return candidate, true
}

// endPosition returns the best notion of the source end: its size when
// known, the current position otherwise.
func (r *ChunkReader) endPosition() uint64 {
	if size, err := r.src.Size(); err == nil {
		if r.src.SupportsRandomAccess() {
			_ = r.src.Seek(size)
		}
		return size
	}
	return r.src.Position()
}
