package records

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregorycollins/riegeli/internal/wiretest"
	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/compress"
	"github.com/gregorycollins/riegeli/pkg/source"
)

// corruptibleFile builds a file of five single-record simple chunks and
// returns the image with the chunk begins.
func corruptibleFile(t *testing.T, recordSize int) ([]byte, []uint64, [][]byte) {
	t.Helper()
	builder := wiretest.NewFileBuilder()
	var records [][]byte
	for i := 0; i < 5; i++ {
		record := bytes.Repeat([]byte{byte('0' + i)}, recordSize)
		records = append(records, record)
		builder.AddSimple([][]byte{record}, compress.None)
	}
	return append([]byte(nil), builder.Bytes()...), builder.ChunkBegins(), records
}

// TestPayloadCorruptionRecovery flips a byte inside the payload of the
// second data chunk: the failure is decoder-level, the skipped region
// covers exactly the damaged chunk, and chunks 3-5 remain readable.
func TestPayloadCorruptionRecovery(t *testing.T) {
	file, begins, records := corruptibleFile(t, 64)
	// begins[0] is the signature; data chunks are begins[1..5].
	damaged := begins[2]
	file[damaged+codec.ChunkHeaderSize+10] ^= 0xff

	reader := newReader(file)
	defer reader.Close()

	record, err := reader.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, records[0], record)

	_, err = reader.ReadRecord()
	require.Error(t, err)
	assert.Equal(t, codec.DataLoss, codec.KindOf(err))
	assert.Equal(t, RecoverableChunkDecoder, reader.RecoverableState())
	assert.False(t, reader.Healthy())

	region, ok := reader.Recover()
	require.True(t, ok)
	assert.True(t, reader.Healthy())
	assert.Equal(t, damaged, region.Begin)
	assert.Equal(t, begins[3], region.End)
	assert.NotEmpty(t, region.Reason)

	// Recovery lands strictly past the last read record.
	assert.Greater(t, region.End, begins[1])

	for i := 2; i < 5; i++ {
		record, err := reader.ReadRecord()
		require.NoError(t, err, "chunk %d", i+1)
		assert.Equal(t, records[i], record)
	}
	_, err = reader.ReadRecord()
	assert.Equal(t, io.EOF, err)
	assert.True(t, reader.Healthy())
}

// TestHeaderCorruptionRecovery flips a byte inside the header of the
// second data chunk: the failure is chunk-reader-level and recovery scans
// forward for a block boundary.
func TestHeaderCorruptionRecovery(t *testing.T) {
	// Large records so the five chunks span block boundaries and a
	// resumption point exists past the damage.
	file, begins, records := corruptibleFile(t, 20*1024)
	damaged := begins[2]
	file[damaged+8] ^= 0xff

	reader := newReader(file)
	defer reader.Close()

	record, err := reader.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, records[0], record)

	_, err = reader.ReadRecord()
	require.Error(t, err)
	assert.Equal(t, codec.DataLoss, codec.KindOf(err))
	assert.Equal(t, RecoverableChunkReader, reader.RecoverableState())

	region, ok := reader.Recover()
	require.True(t, ok)
	assert.Equal(t, damaged, region.Begin)
	assert.Greater(t, region.End, region.Begin)

	// Everything from the resumption point reads cleanly.
	var salvaged [][]byte
	for {
		record, err := reader.ReadRecord()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		salvaged = append(salvaged, append([]byte(nil), record...))
	}
	require.NotEmpty(t, salvaged)
	// The salvaged records are a suffix of the originals.
	assert.Equal(t, records[5-len(salvaged):], salvaged)
	assert.True(t, reader.Healthy())
}

func TestTruncatedFinalChunkRecovery(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("whole")}, compress.None)
	truncatedBegin := builder.AddSimple([][]byte{[]byte("cut off record")}, compress.None)
	file := builder.Bytes()
	cut := file[:len(file)-5]

	reader := newReader(cut)
	defer reader.Close()

	record, err := reader.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, []byte("whole"), record)

	_, err = reader.ReadRecord()
	require.Error(t, err)
	assert.Equal(t, codec.Truncated, codec.KindOf(err))
	assert.Equal(t, RecoverableChunkReader, reader.RecoverableState())

	region, ok := reader.Recover()
	require.True(t, ok)
	assert.Equal(t, truncatedBegin, region.Begin)
	assert.Equal(t, uint64(len(cut)), region.End)

	// End of file is a legal terminal state after recovery.
	_, err = reader.ReadRecord()
	assert.Equal(t, io.EOF, err)
	assert.True(t, reader.Healthy())
}

func TestRecoverOnHealthyReaderFails(t *testing.T) {
	builder := wiretest.NewFileBuilder()
	builder.AddSimple([][]byte{[]byte("fine")}, compress.None)
	reader := newReader(builder.Bytes())
	defer reader.Close()

	_, ok := reader.Recover()
	assert.False(t, ok)
	assert.Equal(t, RecoverableNo, reader.RecoverableState())
}

// TestRecoveryHandlerSkips reads a damaged file with a handler that accepts
// every region: no explicit Recover calls are needed and the good records
// come through.
func TestRecoveryHandlerSkips(t *testing.T) {
	file, begins, records := corruptibleFile(t, 64)
	file[begins[3]+codec.ChunkHeaderSize+4] ^= 0xff

	var seen []SkippedRegion
	reader := NewRecordReader(source.NewBytesSource(file), ReaderOptions{
		Recovery: func(region SkippedRegion) bool {
			seen = append(seen, region)
			return true
		},
	})
	defer reader.Close()

	var got [][]byte
	for {
		record, err := reader.ReadRecord()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, append([]byte(nil), record...))
	}
	assert.Equal(t, [][]byte{records[0], records[1], records[3], records[4]}, got)
	require.Len(t, seen, 1)
	assert.Equal(t, begins[3], seen[0].Begin)
}

// TestRecoveryHandlerRejects stops at the first damage when the handler
// declines to continue.
func TestRecoveryHandlerRejects(t *testing.T) {
	file, begins, _ := corruptibleFile(t, 64)
	file[begins[2]+codec.ChunkHeaderSize+4] ^= 0xff

	reader := NewRecordReader(source.NewBytesSource(file), ReaderOptions{
		Recovery: func(SkippedRegion) bool { return false },
	})
	defer reader.Close()

	_, err := reader.ReadRecord()
	require.NoError(t, err)

	_, err = reader.ReadRecord()
	require.Error(t, err)
	assert.Equal(t, codec.DataLoss, codec.KindOf(err))
	assert.False(t, reader.Healthy())
	// The original failure is final: recovery was already consumed.
	assert.Equal(t, RecoverableNo, reader.RecoverableState())
}

// TestMultipleCorruptions bridges two separate damaged chunks in one pass.
func TestMultipleCorruptions(t *testing.T) {
	file, begins, records := corruptibleFile(t, 64)
	file[begins[1]+codec.ChunkHeaderSize+1] ^= 0xff
	file[begins[4]+codec.ChunkHeaderSize+1] ^= 0xff

	var regions []SkippedRegion
	reader := NewRecordReader(source.NewBytesSource(file), ReaderOptions{
		Recovery: func(region SkippedRegion) bool {
			regions = append(regions, region)
			return true
		},
	})
	defer reader.Close()

	var got [][]byte
	for {
		record, err := reader.ReadRecord()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, append([]byte(nil), record...))
	}
	assert.Equal(t, [][]byte{records[1], records[2], records[4]}, got)
	require.Len(t, regions, 2)
	assert.Equal(t, begins[1], regions[0].Begin)
	assert.Equal(t, begins[4], regions[1].Begin)
}

func TestSkippedRegionString(t *testing.T) {
	region := SkippedRegion{Begin: 10, End: 20, Reason: "why"}
	assert.Equal(t, uint64(10), region.Length())
	assert.Equal(t, "[10, 20): why", fmt.Sprintf("%s", region))
}
