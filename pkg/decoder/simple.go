package decoder

import (
	"encoding/binary"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/compress"
)

// Simple chunk payload: a u32 compression type followed by one body, raw or
// compressed as a whole. The decoded body is NumRecords uvarint sizes
// followed by the record concatenation.
//
// decodeSimple returns the sliced records. When the concatenation is cut
// short but the size table parsed, the records that fit are returned with
// salvageable=true so the decoder can keep the prefix across Recover.
func decodeSimple(h *codec.ChunkHeader, data []byte) (values []byte, limits []uint64, salvageable bool, err error) {
	if len(data) < 4 {
		return nil, nil, false, codec.Errorf(codec.DataLoss,
			"simple chunk too short for compression type: %d bytes", len(data))
	}
	comp := compress.Codec(binary.LittleEndian.Uint32(data))
	if !compress.Known(comp) {
		return nil, nil, false, codec.Errorf(codec.DataLoss,
			"unknown compression type: %d", comp)
	}
	sizeHint := h.DecodedDataSize + 2*h.NumRecords
	body, err := compress.Decompress(comp, data[4:], sizeHint)
	if err != nil {
		return nil, nil, false, err
	}

	var total uint64
	pos := 0
	limits = make([]uint64, 0, min(h.NumRecords, uint64(len(body))+1))
	for i := uint64(0); i < h.NumRecords; i++ {
		size, n := binary.Uvarint(body[pos:])
		if n <= 0 {
			return nil, nil, false, codec.Errorf(codec.DataLoss,
				"simple chunk size table cut short at record %d", i)
		}
		pos += n
		if size > h.DecodedDataSize-total {
			return nil, nil, false, codec.Errorf(codec.DataLoss,
				"simple chunk record %d overruns decoded data size: %d + %d > %d",
				i, total, size, h.DecodedDataSize)
		}
		total += size
		limits = append(limits, total)
	}
	if total != h.DecodedDataSize {
		return nil, nil, false, codec.Errorf(codec.DataLoss,
			"simple chunk decoded data size mismatch: %d != %d", total, h.DecodedDataSize)
	}
	values = body[pos:]
	if uint64(len(values)) > total {
		return nil, nil, false, codec.Errorf(codec.DataLoss,
			"simple chunk has %d trailing bytes", uint64(len(values))-total)
	}
	if uint64(len(values)) < total {
		// The concatenation is cut short. Keep the records that are
		// wholly present.
		kept := limits[:0]
		for _, limit := range limits {
			if limit > uint64(len(values)) {
				break
			}
			kept = append(kept, limit)
		}
		var keptBytes uint64
		if len(kept) > 0 {
			keptBytes = kept[len(kept)-1]
		}
		return values[:keptBytes], kept, true, codec.Errorf(codec.DataLoss,
			"simple chunk records cut short: %d < %d bytes", len(values), total)
	}
	return values, limits, false, nil
}
