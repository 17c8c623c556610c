package codec

// Position arithmetic over the interleaved block layout. Positions are raw
// file offsets; "stream bytes" are chunk bytes exclusive of block headers.

// IsBlockBoundary reports whether pos is a multiple of BlockSize.
func IsBlockBoundary(pos uint64) bool {
	return pos%BlockSize == 0
}

// NextBlockBoundary returns the smallest multiple of BlockSize strictly
// greater than pos.
func NextBlockBoundary(pos uint64) uint64 {
	return (pos/BlockSize + 1) * BlockSize
}

// InBlockHeader reports whether pos falls inside a block header range
// [B, B+BlockHeaderSize) for some boundary B.
func InBlockHeader(pos uint64) bool {
	return pos%BlockSize < BlockHeaderSize
}

// Advance returns the position reached after consuming n stream bytes
// starting at pos, skipping the block header at every boundary crossed.
// A position landing exactly on a boundary stays on the boundary; the block
// header there is charged to whatever is consumed next.
func Advance(pos, n uint64) uint64 {
	for n > 0 {
		if pos%BlockSize == 0 {
			pos += BlockHeaderSize
		}
		remaining := BlockSize - pos%BlockSize
		if n < remaining {
			return pos + n
		}
		pos += remaining
		n -= remaining
	}
	return pos
}

// ChunkEnd returns the position just past a chunk beginning at chunkBegin
// with the given payload size: past the header, the payload, its alignment
// padding, and any interleaved block headers.
func ChunkEnd(chunkBegin, dataSize uint64) uint64 {
	return Advance(chunkBegin, ChunkHeaderSize+dataSize+Padding(dataSize))
}
