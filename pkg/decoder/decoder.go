// Package decoder turns chunk payloads into indexed record slices. It
// understands the simple (concatenated) and transposed (column-wise)
// encodings and applies field projection to transposed chunks.
package decoder

import (
	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/projection"
)

// Options configures a ChunkDecoder.
type Options struct {
	// FieldProjection restricts which fields of transposed records are
	// materialized. Simple chunks are always returned verbatim.
	FieldProjection projection.Projection
}

// ChunkDecoder holds one decoded chunk and yields its records in order.
//
// Invariants while healthy: limits is sorted, the last limit equals
// len(values), and index <= NumRecords().
type ChunkDecoder struct {
	proj        projection.Projection
	limits      []uint64
	values      []byte
	index       uint64
	err         error
	recoverable bool
}

// NewChunkDecoder creates an empty decoder.
func NewChunkDecoder(options Options) *ChunkDecoder {
	return &ChunkDecoder{proj: options.FieldProjection}
}

// Clear resets the decoder to an empty chunk, keeping options.
func (d *ChunkDecoder) Clear() {
	d.limits = nil
	d.values = nil
	d.index = 0
	d.err = nil
	d.recoverable = false
}

// Healthy reports whether the decoder is in a working state.
func (d *ChunkDecoder) Healthy() bool {
	return d.err == nil
}

// Err returns the failure, or nil.
func (d *ChunkDecoder) Err() error {
	return d.err
}

// Decode resets the decoder and parses the chunk. Signature, metadata and
// padding chunks decode to zero records. The total decoded size must equal
// the header's DecodedDataSize (checked only under the identity projection,
// since projected output is smaller).
func (d *ChunkDecoder) Decode(chunk *codec.Chunk) error {
	d.Clear()
	h := &chunk.Header
	if uint64(len(chunk.Data)) != h.DataSize {
		return d.fail(codec.Errorf(codec.DataLoss,
			"chunk data size mismatch: %d != %d", len(chunk.Data), h.DataSize), false)
	}
	if computed := codec.Hash(chunk.Data); computed != h.DataHash {
		return d.fail(codec.Errorf(codec.DataLoss,
			"chunk data hash mismatch: %#x != %#x", computed, h.DataHash), false)
	}
	switch h.ChunkType {
	case codec.ChunkTypeFileSignature, codec.ChunkTypeFileMetadata, codec.ChunkTypePadding:
		return nil
	case codec.ChunkTypeSimple:
		values, limits, salvageable, err := decodeSimple(h, chunk.Data)
		if err != nil {
			d.values, d.limits = values, limits
			return d.fail(err, salvageable)
		}
		d.values, d.limits = values, limits
	case codec.ChunkTypeTransposed:
		values, limits, err := decodeTransposed(h, chunk.Data, h.NumRecords, d.proj)
		if err != nil {
			return d.fail(err, false)
		}
		d.values, d.limits = values, limits
		if d.proj.IncludesAll() && uint64(len(values)) != h.DecodedDataSize {
			d.values, d.limits = nil, nil
			return d.fail(codec.Errorf(codec.DataLoss,
				"decoded data size mismatch: %d != %d", len(values), h.DecodedDataSize), false)
		}
	default:
		return d.fail(codec.Errorf(codec.DataLoss,
			"unknown chunk type: %#x", byte(h.ChunkType)), false)
	}
	if uint64(len(d.limits)) != h.NumRecords {
		n := len(d.limits)
		return d.fail(codec.Errorf(codec.DataLoss,
			"record count mismatch: %d != %d", n, h.NumRecords), false)
	}
	return nil
}

func (d *ChunkDecoder) fail(err error, salvageable bool) error {
	d.err = err
	d.recoverable = salvageable
	if !salvageable {
		d.values = nil
		d.limits = nil
	}
	return err
}

// ReadRecord yields the next record and advances the index. It returns
// false when the chunk ends or the decoder has failed; it never generates a
// new failure.
func (d *ChunkDecoder) ReadRecord() ([]byte, bool) {
	if d.err != nil || d.index >= uint64(len(d.limits)) {
		return nil, false
	}
	begin := uint64(0)
	if d.index > 0 {
		begin = d.limits[d.index-1]
	}
	end := d.limits[d.index]
	d.index++
	return d.values[begin:end:end], true
}

// Index returns the current record index.
func (d *ChunkDecoder) Index() uint64 {
	return d.index
}

// SetIndex positions the decoder at record index, clamping to NumRecords.
func (d *ChunkDecoder) SetIndex(index uint64) {
	if index > uint64(len(d.limits)) {
		index = uint64(len(d.limits))
	}
	d.index = index
}

// NumRecords returns the number of decoded records.
func (d *ChunkDecoder) NumRecords() uint64 {
	return uint64(len(d.limits))
}

// Recover clears a failure whose decoded prefix is still usable: records
// before the damage remain readable, the rest of the chunk is abandoned.
// Returns false when nothing can be kept; the caller then discards the
// chunk with Clear.
func (d *ChunkDecoder) Recover() bool {
	if d.err == nil || !d.recoverable {
		return false
	}
	d.err = nil
	d.recoverable = false
	return true
}
