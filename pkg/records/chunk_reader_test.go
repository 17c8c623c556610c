package records

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregorycollins/riegeli/internal/wiretest"
	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/compress"
	"github.com/gregorycollins/riegeli/pkg/source"
)

func newChunkReader(data []byte) *ChunkReader {
	return NewChunkReader(source.NewBytesSource(data))
}

func TestChunkReaderEmptyFile(t *testing.T) {
	reader := newChunkReader(nil)

	ok, err := reader.CheckFileFormat()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reader.ReadChunk()
	assert.Equal(t, io.EOF, err)
	assert.True(t, reader.Healthy())
}

func TestChunkReaderSignatureOnly(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	file := builder.Bytes()
	// Block-0 header plus the 40-byte signature chunk header.
	require.Len(t, file, codec.BlockHeaderSize+codec.ChunkHeaderSize)

	reader := newChunkReader(file)
	ok, err := reader.CheckFileFormat()
	require.NoError(t, err)
	assert.True(t, ok)

	chunk, err := reader.ReadChunk()
	require.NoError(t, err)
	assert.Equal(t, codec.ChunkTypeFileSignature, chunk.Header.ChunkType)
	assert.Empty(t, chunk.Data)
	assert.Equal(t, uint64(64), reader.Pos())

	_, err = reader.ReadChunk()
	assert.Equal(t, io.EOF, err)
	assert.True(t, reader.Healthy())
}

func TestChunkReaderBadSignature(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("x")}, compress.None)
	file := builder.Bytes()
	file[30] ^= 0xff // damage inside the signature chunk header

	reader := newChunkReader(file)
	ok, err := reader.CheckFileFormat()
	assert.False(t, ok)
	require.Error(t, err)
	assert.Equal(t, codec.DataLoss, codec.KindOf(err))
	assert.False(t, reader.Healthy())
}

func TestChunkReaderSequential(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("a"), []byte("b")}, compress.None)
	builder.AddSimple([][]byte{[]byte("c")}, compress.Zstd)
	file := builder.Bytes()
	begins := builder.ChunkBegins()

	reader := newChunkReader(file)
	for i, expected := range []struct {
		chunkType  codec.ChunkType
		numRecords uint64
	}{
		{codec.ChunkTypeFileSignature, 0},
		{codec.ChunkTypeSimple, 2},
		{codec.ChunkTypeSimple, 1},
	} {
		assert.Equal(t, begins[i], reader.Pos(), "chunk %d begin", i)
		chunk, err := reader.ReadChunk()
		require.NoError(t, err, "chunk %d", i)
		assert.Equal(t, expected.chunkType, chunk.Header.ChunkType)
		assert.Equal(t, expected.numRecords, chunk.Header.NumRecords)
	}
	_, err := reader.ReadChunk()
	assert.Equal(t, io.EOF, err)
}

func TestChunkReaderPullThenRead(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("abc")}, compress.None)
	reader := newChunkReader(builder.Bytes())

	_, err := reader.ReadChunk() // signature
	require.NoError(t, err)

	posBefore := reader.Pos()
	header, err := reader.PullChunkHeader()
	require.NoError(t, err)
	assert.Equal(t, codec.ChunkTypeSimple, header.ChunkType)
	// Peeking does not move the chunk position.
	assert.Equal(t, posBefore, reader.Pos())

	chunk, err := reader.ReadChunk()
	require.NoError(t, err)
	assert.Equal(t, header.DataSize, chunk.Header.DataSize)
}

// bigRecord makes a record large enough that its chunk spans a block
// boundary.
func bigRecord(fill byte, n int) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

func TestChunkReaderAcrossBlockBoundary(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{bigRecord('x', 2*codec.BlockSize)}, compress.None)
	builder.AddSimple([][]byte{[]byte("after")}, compress.None)
	file := builder.Bytes()
	begins := builder.ChunkBegins()
	require.Greater(t, begins[2], uint64(2*codec.BlockSize))

	reader := newChunkReader(file)
	_, err := reader.ReadChunk() // signature
	require.NoError(t, err)

	chunk, err := reader.ReadChunk()
	require.NoError(t, err)
	assert.Equal(t, uint64(2*codec.BlockSize), chunk.Header.DecodedDataSize)
	assert.Equal(t, begins[2], reader.Pos())

	chunk, err = reader.ReadChunk()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), chunk.Header.NumRecords)
}

func TestChunkReaderChunkEndingOnBoundary(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	// Pad so the next chunk ends exactly on the block boundary: the
	// padding chunk runs from 64 to BlockSize.
	padding := uint64(codec.BlockSize) - 64 - codec.ChunkHeaderSize
	builder.AddPadding(padding)
	require.Equal(t, uint64(codec.BlockSize), builder.Pos())
	builder.AddSimple([][]byte{[]byte("next block")}, compress.None)

	reader := newChunkReader(builder.Bytes())
	_, err := reader.ReadChunk() // signature
	require.NoError(t, err)
	chunk, err := reader.ReadChunk() // padding
	require.NoError(t, err)
	assert.Equal(t, codec.ChunkTypePadding, chunk.Header.ChunkType)
	assert.Equal(t, uint64(codec.BlockSize), reader.Pos())

	chunk, err = reader.ReadChunk()
	require.NoError(t, err)
	assert.Equal(t, codec.ChunkTypeSimple, chunk.Header.ChunkType)
	_, err = reader.ReadChunk()
	assert.Equal(t, io.EOF, err)
}

func TestChunkReaderSeek(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("one")}, compress.None)
	builder.AddSimple([][]byte{[]byte("two")}, compress.None)
	begins := builder.ChunkBegins()

	reader := newChunkReader(builder.Bytes())
	require.NoError(t, reader.Seek(begins[2]))
	chunk, err := reader.ReadChunk()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), chunk.Header.NumRecords)

	require.NoError(t, reader.Seek(begins[0]))
	chunk, err = reader.ReadChunk()
	require.NoError(t, err)
	assert.Equal(t, codec.ChunkTypeFileSignature, chunk.Header.ChunkType)
}

func TestChunkReaderSeekToChunkContaining(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{bigRecord('a', codec.BlockSize)}, compress.None)
	builder.AddSimple([][]byte{[]byte("tail")}, compress.None)
	begins := builder.ChunkBegins()

	cases := []struct {
		name   string
		pos    uint64
		expect uint64
	}{
		{"file begin", 0, begins[0]},
		{"inside signature", 30, begins[0]},
		{"first data chunk begin", begins[1], begins[1]},
		{"inside first data chunk", begins[1] + 10, begins[1]},
		{"past the block boundary", codec.BlockSize + 100, begins[1]},
		{"second data chunk", begins[2] + 1, begins[2]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reader := newChunkReader(builder.Bytes())
			require.NoError(t, reader.SeekToChunkContaining(tc.pos))
			assert.Equal(t, tc.expect, reader.Pos())
		})
	}
}

func TestChunkReaderSeekToChunkContainingPastEnd(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("only")}, compress.None)
	file := builder.Bytes()

	reader := newChunkReader(file)
	require.NoError(t, reader.SeekToChunkContaining(uint64(len(file))+1000))
	assert.Equal(t, uint64(len(file)), reader.Pos())
	_, err := reader.ReadChunk()
	assert.Equal(t, io.EOF, err)
}

func TestChunkReaderTruncatedFile(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("will be cut")}, compress.None)
	file := builder.Bytes()
	cut := file[:len(file)-6]
	begins := builder.ChunkBegins()

	reader := newChunkReader(cut)
	_, err := reader.ReadChunk() // signature
	require.NoError(t, err)

	_, err = reader.ReadChunk()
	require.Error(t, err)
	assert.Equal(t, codec.Truncated, codec.KindOf(err))
	assert.False(t, reader.Healthy())

	region, ok := reader.Recover()
	require.True(t, ok)
	assert.True(t, reader.Healthy())
	assert.Equal(t, begins[1], region.Begin)
	assert.Equal(t, uint64(len(cut)), region.End)

	_, err = reader.ReadChunk()
	assert.Equal(t, io.EOF, err)
}

// TestChunkReaderHeaderCorruptionRecovery damages a chunk header and checks
// that recovery resumes at a chunk reachable from the next block boundary.
func TestChunkReaderHeaderCorruptionRecovery(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	payload := bigRecord('p', 20*1024)
	for i := 0; i < 5; i++ {
		builder.AddSimple([][]byte{payload}, compress.None)
	}
	file := append([]byte(nil), builder.Bytes()...)
	begins := builder.ChunkBegins()

	// Damage the header of the second data chunk.
	file[begins[2]+8] ^= 0xff

	reader := newChunkReader(file)
	for i := 0; i < 2; i++ { // signature + first data chunk
		_, err := reader.ReadChunk()
		require.NoError(t, err)
	}
	_, err := reader.ReadChunk()
	require.Error(t, err)
	assert.Equal(t, codec.DataLoss, codec.KindOf(err))

	region, ok := reader.Recover()
	require.True(t, ok)
	assert.Equal(t, begins[2], region.Begin)
	assert.Greater(t, region.End, region.Begin)

	// Whatever chunk we resumed at must read cleanly through to EOF.
	sawChunks := 0
	for {
		chunk, err := reader.ReadChunk()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, codec.ChunkTypeSimple, chunk.Header.ChunkType)
		sawChunks++
	}
	assert.Greater(t, sawChunks, 0)
	assert.True(t, reader.Healthy())
}

func TestChunkReaderRecoverNotFailed(t *testing.T) {
	reader := newChunkReader(wiretest.NewFileBuilder().Bytes())
	_, ok := reader.Recover()
	assert.False(t, ok)
}
