package wiretest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/compress"
)

func TestFileStartsWithSignature(t *testing.T) {
	builder := NewFileBuilder()
	file := builder.Bytes()
	require.Len(t, file, codec.BlockHeaderSize+codec.ChunkHeaderSize)

	blockHeader, err := codec.DecodeBlockHeader(file[:codec.BlockHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, uint64(0), blockHeader.PreviousChunkOffset)
	assert.Equal(t, uint64(64), blockHeader.NextChunkOffset)

	chunkHeader, err := codec.DecodeChunkHeader(file[codec.BlockHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, codec.ChunkTypeFileSignature, chunkHeader.ChunkType)
	assert.Equal(t, uint64(0), chunkHeader.DataSize)
	assert.Equal(t, uint64(0), chunkHeader.NumRecords)
}

func TestChunksAreContiguous(t *testing.T) {
	builder := NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("abc")}, compress.None)
	builder.AddPadding(100)
	begins := builder.ChunkBegins()
	require.Len(t, begins, 3)
	assert.Equal(t, uint64(0), begins[0])
	assert.Equal(t, uint64(64), begins[1])
	assert.Equal(t, builder.Pos(), uint64(len(builder.Bytes())))
}

func TestBlockHeaderAtCrossing(t *testing.T) {
	builder := NewFileBuilder()
	builder.AddSimple([][]byte{make([]byte, 2*codec.BlockSize)}, compress.None)
	file := builder.Bytes()
	begins := builder.ChunkBegins()
	chunkBegin := begins[1]

	for _, boundary := range []uint64{codec.BlockSize, 2 * codec.BlockSize} {
		blockHeader, err := codec.DecodeBlockHeader(file[boundary : boundary+codec.BlockHeaderSize])
		require.NoError(t, err, "boundary %d", boundary)
		assert.Equal(t, boundary-chunkBegin, blockHeader.PreviousChunkOffset, "boundary %d", boundary)
		assert.Equal(t, uint64(len(file))-boundary, blockHeader.NextChunkOffset, "boundary %d", boundary)
	}
}

func TestAssembleCanonicalOrder(t *testing.T) {
	// Fields assemble in ascending tag order regardless of input order.
	shuffled := Assemble([]Value{Uint(3, 9), Str(1, "a")})
	sorted := Assemble([]Value{Str(1, "a"), Uint(3, 9)})
	assert.Equal(t, sorted, shuffled)
}

func TestSimpleChunkHeaderConsistency(t *testing.T) {
	header, payload, err := SimpleChunk([][]byte{[]byte("ab"), []byte("c")}, compress.Snappy)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), header.DataSize)
	assert.Equal(t, uint64(2), header.NumRecords)
	assert.Equal(t, uint64(3), header.DecodedDataSize)
	assert.Equal(t, codec.Hash(payload), header.DataHash)
}
