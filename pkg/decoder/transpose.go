package decoder

import (
	"encoding/binary"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/compress"
	"github.com/gregorycollins/riegeli/pkg/projection"
)

// Transposed chunk payload layout (all varints are uvarint64):
//
//	u32     compression type (applies to transitions and buckets)
//	uvarint num_nodes
//	per node: uvarint parent (0 = root, else 1-based index of an earlier
//	          submessage node), uvarint field number, u8 kind
//	uvarint num_buckets
//	per bucket: uvarint compressed size
//	per node: uvarint bucket index, uvarint value-stream size (decoded);
//	          submessage nodes store 0, 0
//	uvarint transitions compressed size
//	        transitions, then the bucket data concatenated
//
// A bucket decompresses to the value streams of its nodes in node order.
// The transitions stream holds, per record, an op count followed by ops:
// 0 closes the innermost open submessage, k > 0 enters node k. Entering a
// leaf consumes its next value. Ops at each nesting level are emitted in
// ascending field order, so assembled records are in canonical wire order.
//
// Buckets whose nodes are all excluded by the projection are never
// decompressed.

// Node kinds.
const (
	kindSubmessage = 0
	kindBytes      = 1
	kindVarint     = 2
	kindFixed32    = 3
	kindFixed64    = 4
)

type transposedNode struct {
	parent    int // -1 = root
	field     uint32
	kind      byte
	bucket    int
	streamLen uint64

	decision projection.Decision // effective, ancestors applied
	stream   []byte
	off      int
}

type payloadCursor struct {
	data []byte
	pos  int
}

func (c *payloadCursor) uvarint(what string) (uint64, error) {
	v, n := binary.Uvarint(c.data[c.pos:])
	if n <= 0 {
		return 0, codec.Errorf(codec.DataLoss, "transposed chunk cut short reading %s", what)
	}
	c.pos += n
	return v, nil
}

func (c *payloadCursor) byte(what string) (byte, error) {
	if c.pos >= len(c.data) {
		return 0, codec.Errorf(codec.DataLoss, "transposed chunk cut short reading %s", what)
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *payloadCursor) bytes(n uint64, what string) ([]byte, error) {
	if n > uint64(len(c.data)-c.pos) {
		return nil, codec.Errorf(codec.DataLoss, "transposed chunk cut short reading %s", what)
	}
	out := c.data[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return out, nil
}

func decodeTransposed(h *codec.ChunkHeader, data []byte, numRecords uint64, proj projection.Projection) ([]byte, []uint64, error) {
	if len(data) < 4 {
		return nil, nil, codec.Errorf(codec.DataLoss,
			"transposed chunk too short for compression type: %d bytes", len(data))
	}
	comp := compress.Codec(binary.LittleEndian.Uint32(data))
	if !compress.Known(comp) {
		return nil, nil, codec.Errorf(codec.DataLoss, "unknown compression type: %d", comp)
	}
	c := &payloadCursor{data: data, pos: 4}

	nodes, err := parseNodeTable(c, proj)
	if err != nil {
		return nil, nil, err
	}

	numBuckets, err := c.uvarint("bucket count")
	if err != nil {
		return nil, nil, err
	}
	if numBuckets > uint64(len(data)) {
		return nil, nil, codec.Errorf(codec.DataLoss, "implausible bucket count: %d", numBuckets)
	}
	bucketSizes := make([]uint64, numBuckets)
	for i := range bucketSizes {
		if bucketSizes[i], err = c.uvarint("bucket size"); err != nil {
			return nil, nil, err
		}
	}

	if err := parseStreamTable(c, nodes, int(numBuckets)); err != nil {
		return nil, nil, err
	}

	transitions, err := readTransitions(c, comp, h)
	if err != nil {
		return nil, nil, err
	}

	if err := loadBuckets(c, comp, nodes, bucketSizes); err != nil {
		return nil, nil, err
	}
	if c.pos != len(data) {
		return nil, nil, codec.Errorf(codec.DataLoss,
			"transposed chunk has %d trailing bytes", len(data)-c.pos)
	}

	return replayRecords(nodes, transitions, numRecords)
}

func parseNodeTable(c *payloadCursor, proj projection.Projection) ([]transposedNode, error) {
	numNodes, err := c.uvarint("node count")
	if err != nil {
		return nil, err
	}
	if numNodes > uint64(len(c.data)) {
		return nil, codec.Errorf(codec.DataLoss, "implausible node count: %d", numNodes)
	}
	nodes := make([]transposedNode, numNodes)
	paths := make([][]uint32, numNodes)
	for i := range nodes {
		parent, err := c.uvarint("node parent")
		if err != nil {
			return nil, err
		}
		field, err := c.uvarint("node field number")
		if err != nil {
			return nil, err
		}
		kind, err := c.byte("node kind")
		if err != nil {
			return nil, err
		}
		if parent > uint64(i) {
			return nil, codec.Errorf(codec.DataLoss,
				"node %d references parent %d before it is defined", i, parent)
		}
		if field == 0 || field >= 1<<29 {
			return nil, codec.Errorf(codec.DataLoss, "node %d has invalid field number %d", i, field)
		}
		if kind > kindFixed64 {
			return nil, codec.Errorf(codec.DataLoss, "node %d has unknown kind %d", i, kind)
		}
		nodes[i] = transposedNode{parent: int(parent) - 1, field: uint32(field), kind: kind}
		if nodes[i].parent >= 0 {
			if nodes[nodes[i].parent].kind != kindSubmessage {
				return nil, codec.Errorf(codec.DataLoss,
					"node %d has non-submessage parent %d", i, parent)
			}
			paths[i] = append(append([]uint32{}, paths[nodes[i].parent]...), uint32(field))
		} else {
			paths[i] = []uint32{uint32(field)}
		}
		decision := proj.Decide(paths[i])
		if nodes[i].parent >= 0 {
			switch nodes[nodes[i].parent].decision {
			case projection.Excluded, projection.Existence:
				decision = projection.Excluded
			}
		}
		nodes[i].decision = decision
	}
	return nodes, nil
}

func parseStreamTable(c *payloadCursor, nodes []transposedNode, numBuckets int) error {
	for i := range nodes {
		bucket, err := c.uvarint("node bucket")
		if err != nil {
			return err
		}
		size, err := c.uvarint("node stream size")
		if err != nil {
			return err
		}
		if nodes[i].kind != kindSubmessage && bucket >= uint64(numBuckets) {
			return codec.Errorf(codec.DataLoss,
				"node %d references bucket %d of %d", i, bucket, numBuckets)
		}
		nodes[i].bucket = int(bucket)
		nodes[i].streamLen = size
	}
	return nil
}

func readTransitions(c *payloadCursor, comp compress.Codec, h *codec.ChunkHeader) ([]byte, error) {
	size, err := c.uvarint("transitions size")
	if err != nil {
		return nil, err
	}
	raw, err := c.bytes(size, "transitions")
	if err != nil {
		return nil, err
	}
	return compress.Decompress(comp, raw, h.DecodedDataSize)
}

// loadBuckets walks the bucket data, decompressing only buckets that hold a
// value stream the projection needs, and slices each needed node's stream
// out of its bucket.
func loadBuckets(c *payloadCursor, comp compress.Codec, nodes []transposedNode, bucketSizes []uint64) error {
	needed := make([]bool, len(bucketSizes))
	decodedSizes := make([]uint64, len(bucketSizes))
	for i := range nodes {
		if nodes[i].kind == kindSubmessage {
			continue
		}
		decodedSizes[nodes[i].bucket] += nodes[i].streamLen
		if nodes[i].decision == projection.Included {
			needed[nodes[i].bucket] = true
		}
	}
	buckets := make([][]byte, len(bucketSizes))
	for b, size := range bucketSizes {
		raw, err := c.bytes(size, "bucket data")
		if err != nil {
			return err
		}
		if !needed[b] {
			continue
		}
		decoded, err := compress.Decompress(comp, raw, decodedSizes[b])
		if err != nil {
			return err
		}
		if uint64(len(decoded)) != decodedSizes[b] {
			return codec.Errorf(codec.DataLoss,
				"bucket %d decodes to %d bytes, streams claim %d", b, len(decoded), decodedSizes[b])
		}
		buckets[b] = decoded
	}
	offsets := make([]uint64, len(bucketSizes))
	for i := range nodes {
		if nodes[i].kind == kindSubmessage {
			continue
		}
		b := nodes[i].bucket
		if needed[b] {
			nodes[i].stream = buckets[b][offsets[b] : offsets[b]+nodes[i].streamLen]
		}
		offsets[b] += nodes[i].streamLen
	}
	return nil
}

// replayRecords walks the transition ops for each record and assembles the
// projected serialized message.
func replayRecords(nodes []transposedNode, transitions []byte, numRecords uint64) ([]byte, []uint64, error) {
	type frame struct {
		node int
		buf  []byte
	}
	var values []byte
	var limits []uint64
	tr := &payloadCursor{data: transitions}
	for r := uint64(0); r < numRecords; r++ {
		opCount, err := tr.uvarint("record op count")
		if err != nil {
			return nil, nil, err
		}
		stack := []frame{{node: -1}}
		for k := uint64(0); k < opCount; k++ {
			op, err := tr.uvarint("transition op")
			if err != nil {
				return nil, nil, err
			}
			if op == 0 {
				if len(stack) < 2 {
					return nil, nil, codec.Errorf(codec.DataLoss,
						"record %d closes more submessages than it opens", r)
				}
				closed := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				top := &stack[len(stack)-1]
				node := &nodes[closed.node]
				switch node.decision {
				case projection.Included:
					top.buf = protowire.AppendTag(top.buf, protowire.Number(node.field), protowire.BytesType)
					top.buf = protowire.AppendBytes(top.buf, closed.buf)
				case projection.Existence:
					top.buf = protowire.AppendTag(top.buf, protowire.Number(node.field), protowire.BytesType)
					top.buf = protowire.AppendVarint(top.buf, 0)
				}
				continue
			}
			if op > uint64(len(nodes)) {
				return nil, nil, codec.Errorf(codec.DataLoss,
					"record %d enters undefined node %d", r, op)
			}
			node := &nodes[op-1]
			if node.parent != stack[len(stack)-1].node {
				return nil, nil, codec.Errorf(codec.DataLoss,
					"record %d enters node %d outside its parent", r, op)
			}
			if node.kind == kindSubmessage {
				stack = append(stack, frame{node: int(op - 1)})
				continue
			}
			if err := appendLeaf(&stack[len(stack)-1].buf, node, r); err != nil {
				return nil, nil, err
			}
		}
		if len(stack) != 1 {
			return nil, nil, codec.Errorf(codec.DataLoss,
				"record %d leaves %d submessages open", r, len(stack)-1)
		}
		values = append(values, stack[0].buf...)
		limits = append(limits, uint64(len(values)))
	}
	if tr.pos != len(transitions) {
		return nil, nil, codec.Errorf(codec.DataLoss,
			"transposed chunk has %d trailing transition bytes", len(transitions)-tr.pos)
	}
	return values, limits, nil
}

// appendLeaf consumes the node's next value and emits it, honoring the
// projection decision: included values are written in their wire type,
// existence-only leaves become empty submessages, excluded leaves consume
// nothing (their streams are never loaded).
func appendLeaf(buf *[]byte, node *transposedNode, record uint64) error {
	switch node.decision {
	case projection.Excluded:
		return nil
	case projection.Existence:
		*buf = protowire.AppendTag(*buf, protowire.Number(node.field), protowire.BytesType)
		*buf = protowire.AppendVarint(*buf, 0)
		return nil
	}
	stream := node.stream[node.off:]
	switch node.kind {
	case kindBytes:
		size, n := binary.Uvarint(stream)
		if n <= 0 || size > uint64(len(stream)-n) {
			return codec.Errorf(codec.DataLoss,
				"record %d: value stream of field %d cut short", record, node.field)
		}
		*buf = protowire.AppendTag(*buf, protowire.Number(node.field), protowire.BytesType)
		*buf = protowire.AppendBytes(*buf, stream[n:n+int(size)])
		node.off += n + int(size)
	case kindVarint:
		v, n := binary.Uvarint(stream)
		if n <= 0 {
			return codec.Errorf(codec.DataLoss,
				"record %d: value stream of field %d cut short", record, node.field)
		}
		*buf = protowire.AppendTag(*buf, protowire.Number(node.field), protowire.VarintType)
		*buf = protowire.AppendVarint(*buf, v)
		node.off += n
	case kindFixed32:
		if len(stream) < 4 {
			return codec.Errorf(codec.DataLoss,
				"record %d: value stream of field %d cut short", record, node.field)
		}
		*buf = protowire.AppendTag(*buf, protowire.Number(node.field), protowire.Fixed32Type)
		*buf = protowire.AppendFixed32(*buf, binary.LittleEndian.Uint32(stream))
		node.off += 4
	case kindFixed64:
		if len(stream) < 8 {
			return codec.Errorf(codec.DataLoss,
				"record %d: value stream of field %d cut short", record, node.field)
		}
		*buf = protowire.AppendTag(*buf, protowire.Number(node.field), protowire.Fixed64Type)
		*buf = protowire.AppendFixed64(*buf, binary.LittleEndian.Uint64(stream))
		node.off += 8
	}
	return nil
}

// DecodeMetadata decodes a file-metadata chunk's payload: the transposed
// format with a forced record count of one and the identity projection.
// Returns the single serialized metadata message.
func DecodeMetadata(chunk *codec.Chunk) ([]byte, error) {
	h := &chunk.Header
	if h.ChunkType != codec.ChunkTypeFileMetadata {
		return nil, codec.Errorf(codec.FailedPrecondition,
			"not a file metadata chunk: %s", h.ChunkType)
	}
	if h.NumRecords != 0 {
		return nil, codec.Errorf(codec.DataLoss,
			"invalid file metadata chunk: number of records is not zero: %d", h.NumRecords)
	}
	if uint64(len(chunk.Data)) != h.DataSize {
		return nil, codec.Errorf(codec.DataLoss,
			"chunk data size mismatch: %d != %d", len(chunk.Data), h.DataSize)
	}
	if computed := codec.Hash(chunk.Data); computed != h.DataHash {
		return nil, codec.Errorf(codec.DataLoss,
			"chunk data hash mismatch: %#x != %#x", computed, h.DataHash)
	}
	values, limits, err := decodeTransposed(h, chunk.Data, 1, projection.All())
	if err != nil {
		return nil, err
	}
	if len(limits) != 1 || uint64(len(values)) != h.DecodedDataSize {
		return nil, codec.Errorf(codec.DataLoss,
			"file metadata chunk decoded to unexpected shape: %d records, %d bytes",
			len(limits), len(values))
	}
	return values, nil
}
