// Package codec implements the on-disk primitives of the record file format:
// block headers, chunk headers, the 64-bit content hash, and the position
// arithmetic that accounts for block headers interleaved with chunk data.
//
// # File layout
//
// A file is a sequence of chunks. Independently of chunk boundaries, the file
// is partitioned into 64 KiB blocks, and the first 24 bytes of every block
// hold a block header. Chunk data flows around block headers: a chunk that
// spans a block boundary simply has the 24 header bytes interleaved into its
// on-disk representation. A chunk may begin exactly at a block boundary; the
// block header there is then part of that chunk's on-disk extent, so the
// first chunk of every file begins at offset 0.
//
// # Block header (24 bytes, little-endian)
//
//	[HeaderHash(8)][PreviousChunkOffset(8)][NextChunkOffset(8)]
//
// HeaderHash covers the remaining 16 bytes. PreviousChunkOffset is the
// distance from the block start back to the beginning of the chunk whose
// on-disk extent contains the block boundary, or 0 when the boundary
// coincides with a chunk boundary. NextChunkOffset is the distance forward to
// the first chunk beginning after the block start. Together they let a reader
// re-synchronize on chunk boundaries after damage.
//
// # Chunk header (40 bytes, little-endian)
//
//	[DataHash(8)][DataSize(8)][ChunkType(1)+NumRecords(7)][DecodedDataSize(8)][HeaderHash(8)]
//
// HeaderHash covers the first 32 bytes; DataHash covers exactly DataSize
// payload bytes. The payload is followed by zero padding up to an 8-byte
// boundary; padding is not counted in DataSize.
//
// # Hash
//
// All hashes are 64-bit HighwayHash with an all-zero key, so files are
// portable across implementations.
package codec
