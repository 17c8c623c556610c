package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregorycollins/riegeli/internal/wiretest"
	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/compress"
	"github.com/gregorycollins/riegeli/pkg/projection"
)

func transposedChunk(t *testing.T, records [][]wiretest.Value, opts wiretest.TransposedOptions) (*codec.Chunk, [][]byte) {
	t.Helper()
	header, payload, expected, err := wiretest.TransposedChunk(records, opts)
	require.NoError(t, err)
	return &codec.Chunk{Header: *header, Data: payload}, expected
}

func testRecords() [][]wiretest.Value {
	return [][]wiretest.Value{
		{
			wiretest.Str(1, "ada"),
			wiretest.Sub(2, wiretest.Str(3, "london"), wiretest.Str(4, "classified")),
			wiretest.Uint(5, 1815),
		},
		{
			wiretest.Str(1, "grace"),
			wiretest.Sub(2, wiretest.Str(3, "arlington"), wiretest.Str(4, "classified")),
			wiretest.Uint(5, 1906),
		},
	}
}

func TestTransposedRoundTrip(t *testing.T) {
	for _, comp := range []compress.Codec{compress.None, compress.Brotli, compress.Zstd, compress.Snappy} {
		t.Run(comp.String(), func(t *testing.T) {
			chunk, expected := transposedChunk(t, testRecords(), wiretest.TransposedOptions{Compression: comp})
			d := NewChunkDecoder(Options{FieldProjection: projection.All()})
			require.NoError(t, d.Decode(chunk))
			assert.Equal(t, uint64(2), d.NumRecords())
			assert.Equal(t, expected, readAll(d))
		})
	}
}

func TestTransposedAllValueKinds(t *testing.T) {
	records := [][]wiretest.Value{
		{
			wiretest.Str(1, "bytes"),
			wiretest.Uint(2, 12345),
			wiretest.F32(3, 0xdeadbeef),
			wiretest.F64(4, 0x0123456789abcdef),
			wiretest.Sub(5, wiretest.Uint(1, 7), wiretest.Sub(2, wiretest.Str(9, "deep"))),
		},
	}
	chunk, expected := transposedChunk(t, records, wiretest.TransposedOptions{Compression: compress.Zstd})
	d := NewChunkDecoder(Options{FieldProjection: projection.All()})
	require.NoError(t, d.Decode(chunk))
	assert.Equal(t, expected, readAll(d))
}

func TestTransposedRepeatedFields(t *testing.T) {
	records := [][]wiretest.Value{
		{
			wiretest.Str(1, "first"),
			wiretest.Str(1, "second"),
			wiretest.Sub(2, wiretest.Uint(3, 1)),
			wiretest.Sub(2, wiretest.Uint(3, 2)),
		},
	}
	chunk, expected := transposedChunk(t, records, wiretest.TransposedOptions{Compression: compress.None})
	d := NewChunkDecoder(Options{FieldProjection: projection.All()})
	require.NoError(t, d.Decode(chunk))
	assert.Equal(t, expected, readAll(d))
}

func TestTransposedEmptyRecords(t *testing.T) {
	records := [][]wiretest.Value{{}, {}}
	chunk, expected := transposedChunk(t, records, wiretest.TransposedOptions{Compression: compress.None})
	d := NewChunkDecoder(Options{FieldProjection: projection.All()})
	require.NoError(t, d.Decode(chunk))
	assert.Equal(t, uint64(2), d.NumRecords())
	assert.Equal(t, expected, readAll(d))
	assert.Equal(t, [][]byte{{}, {}}, expected)
}

// TestTransposedProjection is the field-projection scenario: records with
// fields {1, 2.3, 2.4} read with projection {[1], [2,3]} must keep 1 and
// 2.3 with their values and drop 2.4 entirely.
func TestTransposedProjection(t *testing.T) {
	chunk, _ := transposedChunk(t, testRecords(), wiretest.TransposedOptions{
		Compression:   compress.Zstd,
		BucketPerLeaf: true,
	})
	proj := projection.Of(projection.NewPath(1), projection.NewPath(2, 3))
	d := NewChunkDecoder(Options{FieldProjection: proj})
	require.NoError(t, d.Decode(chunk))

	expected := [][]byte{
		wiretest.Assemble([]wiretest.Value{
			wiretest.Str(1, "ada"),
			wiretest.Sub(2, wiretest.Str(3, "london")),
		}),
		wiretest.Assemble([]wiretest.Value{
			wiretest.Str(1, "grace"),
			wiretest.Sub(2, wiretest.Str(3, "arlington")),
		}),
	}
	assert.Equal(t, expected, readAll(d))
}

// TestProjectionSkipsBuckets corrupts the bucket holding the values of an
// excluded field. A projected decode never touches that bucket and
// succeeds; the identity decode fails.
func TestProjectionSkipsBuckets(t *testing.T) {
	header, payload, _, err := wiretest.TransposedChunk(testRecords(), wiretest.TransposedOptions{
		Compression:   compress.Zstd,
		BucketPerLeaf: true,
	})
	require.NoError(t, err)
	// Field 5 registers last, so its bucket's compressed bytes are the
	// payload tail.
	payload[len(payload)-1] ^= 0xff
	header.DataHash = codec.Hash(payload)
	chunk := &codec.Chunk{Header: *header, Data: payload}

	proj := projection.Of(projection.NewPath(1), projection.NewPath(2))
	d := NewChunkDecoder(Options{FieldProjection: proj})
	require.NoError(t, d.Decode(chunk))
	assert.Equal(t, uint64(2), d.NumRecords())

	dAll := NewChunkDecoder(Options{FieldProjection: projection.All()})
	err = dAll.Decode(chunk)
	require.Error(t, err)
	assert.Equal(t, codec.DataLoss, codec.KindOf(err))
}

func TestTransposedExistenceOnly(t *testing.T) {
	chunk, _ := transposedChunk(t, testRecords(), wiretest.TransposedOptions{Compression: compress.None})
	proj := projection.Of(projection.NewPath(1), projection.ExistencePath(2))
	d := NewChunkDecoder(Options{FieldProjection: proj})
	require.NoError(t, d.Decode(chunk))

	expected := [][]byte{
		wiretest.Assemble([]wiretest.Value{wiretest.Str(1, "ada"), wiretest.Sub(2)}),
		wiretest.Assemble([]wiretest.Value{wiretest.Str(1, "grace"), wiretest.Sub(2)}),
	}
	assert.Equal(t, expected, readAll(d))
}

func TestTransposedCutShort(t *testing.T) {
	header, payload, _, err := wiretest.TransposedChunk(testRecords(), wiretest.TransposedOptions{Compression: compress.None})
	require.NoError(t, err)
	payload = payload[:len(payload)-4]
	header.DataSize = uint64(len(payload))
	header.DataHash = codec.Hash(payload)

	d := NewChunkDecoder(Options{FieldProjection: projection.All()})
	err = d.Decode(&codec.Chunk{Header: *header, Data: payload})
	require.Error(t, err)
	assert.Equal(t, codec.DataLoss, codec.KindOf(err))
}

func TestDecodeMetadata(t *testing.T) {
	header, payload, err := wiretest.MetadataChunk("test.Record", [][]byte{[]byte("fd-bytes")}, compress.Zstd)
	require.NoError(t, err)

	serialized, err := DecodeMetadata(&codec.Chunk{Header: *header, Data: payload})
	require.NoError(t, err)
	expected := wiretest.Assemble([]wiretest.Value{
		wiretest.Str(1, "test.Record"),
		wiretest.Str(2, "fd-bytes"),
	})
	assert.Equal(t, expected, serialized)
}

func TestDecodeMetadataRejectsNonzeroRecordCount(t *testing.T) {
	header, payload, err := wiretest.MetadataChunk("t", nil, compress.None)
	require.NoError(t, err)
	header.NumRecords = 1
	resigned, err := codec.DecodeChunkHeader(codec.EncodeChunkHeader(header))
	require.NoError(t, err)

	_, err = DecodeMetadata(&codec.Chunk{Header: *resigned, Data: payload})
	require.Error(t, err)
	assert.Equal(t, codec.DataLoss, codec.KindOf(err))
}

func TestDecodeMetadataWrongType(t *testing.T) {
	header, payload, err := wiretest.SimpleChunk([][]byte{[]byte("x")}, compress.None)
	require.NoError(t, err)
	_, err = DecodeMetadata(&codec.Chunk{Header: *header, Data: payload})
	require.Error(t, err)
	assert.Equal(t, codec.FailedPrecondition, codec.KindOf(err))
}
