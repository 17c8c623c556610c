package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadding(t *testing.T) {
	assert.Equal(t, uint64(0), Padding(0))
	assert.Equal(t, uint64(7), Padding(1))
	assert.Equal(t, uint64(1), Padding(7))
	assert.Equal(t, uint64(0), Padding(8))
	assert.Equal(t, uint64(3), Padding(13))
}

func TestAdvanceWithinBlock(t *testing.T) {
	assert.Equal(t, uint64(100), Advance(60, 40))
	assert.Equal(t, uint64(60), Advance(60, 0))
}

func TestAdvanceFromFileStart(t *testing.T) {
	// Position 0 is a block boundary; the block header is charged to the
	// first byte consumed.
	assert.Equal(t, uint64(BlockHeaderSize+40), Advance(0, 40))
	assert.Equal(t, uint64(0), Advance(0, 0))
}

func TestAdvanceAcrossBoundary(t *testing.T) {
	begin := uint64(BlockSize - 10)
	// 10 bytes reach the boundary, the block header is skipped, and the
	// remaining 30 land after it.
	assert.Equal(t, uint64(BlockSize+BlockHeaderSize+30), Advance(begin, 40))
}

func TestAdvanceLandsOnBoundary(t *testing.T) {
	begin := uint64(BlockSize - 40)
	// Landing exactly on a boundary stays on the boundary.
	assert.Equal(t, uint64(BlockSize), Advance(begin, 40))
}

func TestAdvanceAcrossSeveralBlocks(t *testing.T) {
	n := uint64(3*BlockSize) - 100
	end := Advance(30, n)
	// Two boundaries crossed, two block headers skipped.
	assert.Equal(t, 30+n+2*uint64(BlockHeaderSize), end)
}

func TestChunkEnd(t *testing.T) {
	// First chunk of a file: block header + chunk header, empty payload.
	assert.Equal(t, uint64(BlockHeaderSize+ChunkHeaderSize), ChunkEnd(0, 0))
	// Payload padded to an 8-byte boundary.
	assert.Equal(t, uint64(64+ChunkHeaderSize+8), ChunkEnd(64, 5))
}

func TestBoundaryPredicates(t *testing.T) {
	assert.True(t, IsBlockBoundary(0))
	assert.True(t, IsBlockBoundary(BlockSize))
	assert.False(t, IsBlockBoundary(BlockSize+1))
	assert.Equal(t, uint64(BlockSize), NextBlockBoundary(0))
	assert.Equal(t, uint64(BlockSize), NextBlockBoundary(BlockSize-1))
	assert.Equal(t, uint64(2*BlockSize), NextBlockBoundary(BlockSize))
	assert.True(t, InBlockHeader(0))
	assert.True(t, InBlockHeader(BlockSize+23))
	assert.False(t, InBlockHeader(BlockSize+24))
}
