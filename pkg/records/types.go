package records

import (
	"fmt"

	"github.com/gregorycollins/riegeli/pkg/projection"
)

// RecordPosition identifies a record: the byte offset of its chunk's header
// and the record's index within the chunk.
type RecordPosition struct {
	ChunkBegin  uint64
	RecordIndex uint64
}

// Numeric folds the position into a single ordered integer. Positions from
// the same file compare in record order.
func (p RecordPosition) Numeric() uint64 {
	return p.ChunkBegin + p.RecordIndex
}

func (p RecordPosition) String() string {
	return fmt.Sprintf("%d/%d", p.ChunkBegin, p.RecordIndex)
}

// Less orders positions in record order.
func (p RecordPosition) Less(other RecordPosition) bool {
	if p.ChunkBegin != other.ChunkBegin {
		return p.ChunkBegin < other.ChunkBegin
	}
	return p.RecordIndex < other.RecordIndex
}

// SkippedRegion describes a byte range bridged by recovery, with the reason
// the bytes were skipped.
type SkippedRegion struct {
	Begin  uint64
	End    uint64
	Reason string
}

// Length returns the number of bytes skipped.
func (s SkippedRegion) Length() uint64 {
	return s.End - s.Begin
}

func (s SkippedRegion) String() string {
	return fmt.Sprintf("[%d, %d): %s", s.Begin, s.End, s.Reason)
}

// Recoverable tags a failed reader with the layer whose recovery applies.
type Recoverable int

const (
	// RecoverableNo marks a healthy reader or a failure recovery cannot
	// fix.
	RecoverableNo Recoverable = iota
	// RecoverableChunkReader marks damage the chunk reader skips by
	// scanning forward for block boundaries.
	RecoverableChunkReader
	// RecoverableChunkDecoder marks damage inside the current chunk; the
	// rest of the chunk is abandoned.
	RecoverableChunkDecoder
)

// RecoveryHandler decides per skipped region whether reading continues.
// Returning false re-fails the reader with a DataLoss error carrying the
// original error's message.
type RecoveryHandler func(SkippedRegion) bool

// ReaderOptions configures a RecordReader.
type ReaderOptions struct {
	// FieldProjection restricts which fields of transposed records are
	// materialized. Simple chunks are returned verbatim regardless.
	FieldProjection projection.Projection
	// Recovery, when set, is invoked after each recovered region; reading
	// continues while it returns true.
	Recovery RecoveryHandler
}

// DefaultReaderOptions reads whole records and stops at the first damage.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{FieldProjection: projection.All()}
}
