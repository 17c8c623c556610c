// Package wiretest builds byte-exact record files for tests: signature,
// metadata, padding, simple and transposed chunks, with block headers
// interleaved at every 64 KiB boundary. It is the writing counterpart the
// reader tests measure against and is not part of the public API.
package wiretest

import (
	"encoding/binary"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/compress"
)

// FileBuilder accumulates chunks into a file image.
type FileBuilder struct {
	buf         []byte
	chunkBegins []uint64
}

// NewFileBuilder starts a file with its signature chunk at position 0.
func NewFileBuilder() *FileBuilder {
	b := &FileBuilder{}
	header, payload := SignatureChunk()
	b.AppendChunk(header, payload)
	return b
}

// Bytes returns the file image built so far.
func (b *FileBuilder) Bytes() []byte {
	return b.buf
}

// ChunkBegins returns the begin position of every chunk appended, in order.
func (b *FileBuilder) ChunkBegins() []uint64 {
	return b.chunkBegins
}

// Pos returns the position the next chunk would begin at.
func (b *FileBuilder) Pos() uint64 {
	return uint64(len(b.buf))
}

// AppendChunk writes one chunk, interleaving block headers at every 64 KiB
// boundary crossed. Returns the chunk's begin position.
func (b *FileBuilder) AppendChunk(header *codec.ChunkHeader, payload []byte) uint64 {
	if uint64(len(payload)) != header.DataSize {
		panic(fmt.Sprintf("wiretest: payload is %d bytes, header says %d", len(payload), header.DataSize))
	}
	begin := uint64(len(b.buf))
	b.chunkBegins = append(b.chunkBegins, begin)
	end := codec.ChunkEnd(begin, header.DataSize)

	raw := codec.EncodeChunkHeader(header)
	raw = append(raw, payload...)
	raw = append(raw, make([]byte, codec.Padding(header.DataSize))...)

	pos := begin
	for len(raw) > 0 {
		if codec.IsBlockBoundary(pos) {
			blockHeader := &codec.BlockHeader{NextChunkOffset: end - pos}
			if pos > begin {
				blockHeader.PreviousChunkOffset = pos - begin
			}
			b.buf = append(b.buf, codec.EncodeBlockHeader(blockHeader)...)
			pos += codec.BlockHeaderSize
		}
		take := codec.BlockSize - pos%codec.BlockSize
		if take > uint64(len(raw)) {
			take = uint64(len(raw))
		}
		b.buf = append(b.buf, raw[:take]...)
		raw = raw[take:]
		pos += take
	}
	if pos != end {
		panic(fmt.Sprintf("wiretest: chunk at %d ended at %d, expected %d", begin, pos, end))
	}
	return begin
}

// AddSimple appends a simple chunk holding the given records.
func (b *FileBuilder) AddSimple(records [][]byte, comp compress.Codec) uint64 {
	header, payload, err := SimpleChunk(records, comp)
	if err != nil {
		panic(err)
	}
	return b.AppendChunk(header, payload)
}

// AddTransposed appends a transposed chunk holding the given records and
// returns its begin together with the serialized form the reader should
// produce under the identity projection.
func (b *FileBuilder) AddTransposed(records [][]Value, opts TransposedOptions) (uint64, [][]byte) {
	header, payload, expected, err := TransposedChunk(records, opts)
	if err != nil {
		panic(err)
	}
	return b.AppendChunk(header, payload), expected
}

// AddMetadata appends a file-metadata chunk.
func (b *FileBuilder) AddMetadata(recordTypeName string, fileDescriptors [][]byte, comp compress.Codec) uint64 {
	header, payload, err := MetadataChunk(recordTypeName, fileDescriptors, comp)
	if err != nil {
		panic(err)
	}
	return b.AppendChunk(header, payload)
}

// AddPadding appends a padding chunk with n payload bytes.
func (b *FileBuilder) AddPadding(n uint64) uint64 {
	header, payload := PaddingChunk(n)
	return b.AppendChunk(header, payload)
}

// SignatureChunk builds the file-signature chunk: a bare header with an
// empty payload.
func SignatureChunk() (*codec.ChunkHeader, []byte) {
	return &codec.ChunkHeader{
		DataHash:  codec.Hash(nil),
		ChunkType: codec.ChunkTypeFileSignature,
	}, nil
}

// PaddingChunk builds a padding chunk with n zero payload bytes.
func PaddingChunk(n uint64) (*codec.ChunkHeader, []byte) {
	payload := make([]byte, n)
	return &codec.ChunkHeader{
		DataHash:  codec.Hash(payload),
		DataSize:  n,
		ChunkType: codec.ChunkTypePadding,
	}, payload
}

// SimpleChunk builds a simple chunk: a size table and the record
// concatenation, compressed as one body.
func SimpleChunk(records [][]byte, comp compress.Codec) (*codec.ChunkHeader, []byte, error) {
	var body []byte
	var total uint64
	for _, record := range records {
		body = binary.AppendUvarint(body, uint64(len(record)))
		total += uint64(len(record))
	}
	for _, record := range records {
		body = append(body, record...)
	}
	compressed, err := compress.Compress(comp, body)
	if err != nil {
		return nil, nil, err
	}
	payload := make([]byte, 4, 4+len(compressed))
	binary.LittleEndian.PutUint32(payload, uint32(comp))
	payload = append(payload, compressed...)
	header := &codec.ChunkHeader{
		DataHash:        codec.Hash(payload),
		DataSize:        uint64(len(payload)),
		ChunkType:       codec.ChunkTypeSimple,
		NumRecords:      uint64(len(records)),
		DecodedDataSize: total,
	}
	return header, payload, nil
}

// Value kinds, matching the transposed wire format.
const (
	KindSubmessage = 0
	KindBytes      = 1
	KindVarint     = 2
	KindFixed32    = 3
	KindFixed64    = 4
)

// Value is one field occurrence in a record to be transposed.
type Value struct {
	Field    uint32
	Kind     byte
	Bytes    []byte
	Varint   uint64
	Fixed32  uint32
	Fixed64  uint64
	Children []Value
}

// Sub builds a submessage value.
func Sub(field uint32, children ...Value) Value {
	return Value{Field: field, Kind: KindSubmessage, Children: children}
}

// Str builds a bytes/string value.
func Str(field uint32, s string) Value {
	return Value{Field: field, Kind: KindBytes, Bytes: []byte(s)}
}

// Uint builds a varint value.
func Uint(field uint32, v uint64) Value {
	return Value{Field: field, Kind: KindVarint, Varint: v}
}

// F32 builds a fixed32 value.
func F32(field uint32, v uint32) Value {
	return Value{Field: field, Kind: KindFixed32, Fixed32: v}
}

// F64 builds a fixed64 value.
func F64(field uint32, v uint64) Value {
	return Value{Field: field, Kind: KindFixed64, Fixed64: v}
}

// TransposedOptions configures transposed encoding.
type TransposedOptions struct {
	Compression compress.Codec
	// BucketPerLeaf assigns each leaf node its own bucket, so projection
	// tests can observe untouched buckets. Default packs every stream
	// into one bucket.
	BucketPerLeaf bool
}

type encoderNode struct {
	parent int // -1 = root
	field  uint32
	kind   byte
	stream []byte
	bucket int
}

type transposedEncoder struct {
	nodes   []encoderNode
	nodeIDs map[[3]uint64]int // parent+1, field, kind
}

func (e *transposedEncoder) nodeID(parent int, field uint32, kind byte) int {
	key := [3]uint64{uint64(parent + 1), uint64(field), uint64(kind)}
	if id, ok := e.nodeIDs[key]; ok {
		return id
	}
	id := len(e.nodes)
	e.nodes = append(e.nodes, encoderNode{parent: parent, field: field, kind: kind})
	e.nodeIDs[key] = id
	return id
}

// encodeWalk appends the transition ops for values under parent, collecting
// leaf bytes into per-node streams, and returns the op count.
func (e *transposedEncoder) encodeWalk(parent int, values []Value, ops *[]byte) (uint64, error) {
	sorted := append([]Value(nil), values...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })
	var count uint64
	for _, v := range sorted {
		if v.Field == 0 || v.Field >= 1<<29 {
			return 0, fmt.Errorf("invalid field number %d", v.Field)
		}
		id := e.nodeID(parent, v.Field, v.Kind)
		*ops = binary.AppendUvarint(*ops, uint64(id)+1)
		count++
		switch v.Kind {
		case KindSubmessage:
			n, err := e.encodeWalk(id, v.Children, ops)
			if err != nil {
				return 0, err
			}
			count += n
			*ops = binary.AppendUvarint(*ops, 0)
			count++
		case KindBytes:
			node := &e.nodes[id]
			node.stream = binary.AppendUvarint(node.stream, uint64(len(v.Bytes)))
			node.stream = append(node.stream, v.Bytes...)
		case KindVarint:
			e.nodes[id].stream = binary.AppendUvarint(e.nodes[id].stream, v.Varint)
		case KindFixed32:
			e.nodes[id].stream = binary.LittleEndian.AppendUint32(e.nodes[id].stream, v.Fixed32)
		case KindFixed64:
			e.nodes[id].stream = binary.LittleEndian.AppendUint64(e.nodes[id].stream, v.Fixed64)
		default:
			return 0, fmt.Errorf("unknown value kind %d", v.Kind)
		}
	}
	return count, nil
}

// Assemble serializes values into canonical wire order, the form the
// decoder reproduces under the identity projection.
func Assemble(values []Value) []byte {
	sorted := append([]Value(nil), values...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })
	buf := []byte{}
	for _, v := range sorted {
		switch v.Kind {
		case KindSubmessage:
			buf = protowire.AppendTag(buf, protowire.Number(v.Field), protowire.BytesType)
			buf = protowire.AppendBytes(buf, Assemble(v.Children))
		case KindBytes:
			buf = protowire.AppendTag(buf, protowire.Number(v.Field), protowire.BytesType)
			buf = protowire.AppendBytes(buf, v.Bytes)
		case KindVarint:
			buf = protowire.AppendTag(buf, protowire.Number(v.Field), protowire.VarintType)
			buf = protowire.AppendVarint(buf, v.Varint)
		case KindFixed32:
			buf = protowire.AppendTag(buf, protowire.Number(v.Field), protowire.Fixed32Type)
			buf = protowire.AppendFixed32(buf, v.Fixed32)
		case KindFixed64:
			buf = protowire.AppendTag(buf, protowire.Number(v.Field), protowire.Fixed64Type)
			buf = protowire.AppendFixed64(buf, v.Fixed64)
		}
	}
	return buf
}

func encodeTransposedPayload(records [][]Value, opts TransposedOptions) ([]byte, uint64, [][]byte, error) {
	e := &transposedEncoder{nodeIDs: map[[3]uint64]int{}}
	var transitions []byte
	for _, record := range records {
		var ops []byte
		count, err := e.encodeWalk(-1, record, &ops)
		if err != nil {
			return nil, 0, nil, err
		}
		transitions = binary.AppendUvarint(transitions, count)
		transitions = append(transitions, ops...)
	}

	// Bucket assignment: one shared bucket, or one per leaf node.
	numBuckets := 0
	var buckets [][]byte
	for i := range e.nodes {
		if e.nodes[i].kind == KindSubmessage {
			continue
		}
		if opts.BucketPerLeaf || numBuckets == 0 {
			buckets = append(buckets, nil)
			numBuckets = len(buckets)
		}
		e.nodes[i].bucket = numBuckets - 1
		buckets[numBuckets-1] = append(buckets[numBuckets-1], e.nodes[i].stream...)
	}

	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(opts.Compression))
	payload = binary.AppendUvarint(payload, uint64(len(e.nodes)))
	for _, node := range e.nodes {
		payload = binary.AppendUvarint(payload, uint64(node.parent+1))
		payload = binary.AppendUvarint(payload, uint64(node.field))
		payload = append(payload, node.kind)
	}
	payload = binary.AppendUvarint(payload, uint64(numBuckets))
	compressedBuckets := make([][]byte, numBuckets)
	for i, bucket := range buckets {
		compressed, err := compress.Compress(opts.Compression, bucket)
		if err != nil {
			return nil, 0, nil, err
		}
		compressedBuckets[i] = compressed
		payload = binary.AppendUvarint(payload, uint64(len(compressed)))
	}
	for _, node := range e.nodes {
		if node.kind == KindSubmessage {
			payload = binary.AppendUvarint(payload, 0)
			payload = binary.AppendUvarint(payload, 0)
			continue
		}
		payload = binary.AppendUvarint(payload, uint64(node.bucket))
		payload = binary.AppendUvarint(payload, uint64(len(node.stream)))
	}
	compressedTransitions, err := compress.Compress(opts.Compression, transitions)
	if err != nil {
		return nil, 0, nil, err
	}
	payload = binary.AppendUvarint(payload, uint64(len(compressedTransitions)))
	payload = append(payload, compressedTransitions...)
	for _, bucket := range compressedBuckets {
		payload = append(payload, bucket...)
	}

	expected := make([][]byte, len(records))
	var decodedSize uint64
	for i, record := range records {
		expected[i] = Assemble(record)
		decodedSize += uint64(len(expected[i]))
	}
	return payload, decodedSize, expected, nil
}

// TransposedChunk builds a transposed chunk from record value trees,
// returning the header, the payload, and the serialized records the reader
// should produce under the identity projection.
func TransposedChunk(records [][]Value, opts TransposedOptions) (*codec.ChunkHeader, []byte, [][]byte, error) {
	payload, decodedSize, expected, err := encodeTransposedPayload(records, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	header := &codec.ChunkHeader{
		DataHash:        codec.Hash(payload),
		DataSize:        uint64(len(payload)),
		ChunkType:       codec.ChunkTypeTransposed,
		NumRecords:      uint64(len(records)),
		DecodedDataSize: decodedSize,
	}
	return header, payload, expected, nil
}

// MetadataChunk builds a file-metadata chunk: the RecordsMetadata message
// in the transposed encoding with a zero record count in the header.
func MetadataChunk(recordTypeName string, fileDescriptors [][]byte, comp compress.Codec) (*codec.ChunkHeader, []byte, error) {
	var values []Value
	if recordTypeName != "" {
		values = append(values, Value{Field: 1, Kind: KindBytes, Bytes: []byte(recordTypeName)})
	}
	for _, fd := range fileDescriptors {
		values = append(values, Value{Field: 2, Kind: KindBytes, Bytes: fd})
	}
	payload, decodedSize, _, err := encodeTransposedPayload([][]Value{values}, TransposedOptions{Compression: comp})
	if err != nil {
		return nil, nil, err
	}
	header := &codec.ChunkHeader{
		DataHash:        codec.Hash(payload),
		DataSize:        uint64(len(payload)),
		ChunkType:       codec.ChunkTypeFileMetadata,
		DecodedDataSize: decodedSize,
	}
	return header, payload, nil
}
