// Package index builds a record-ordinal index from a header-only chunk
// scan: it maps a global record number to its RecordPosition without
// decoding any payloads, giving the CLI and HTTP surfaces cheap random
// access.
package index

import (
	"io"
	"sort"
	"sync"

	"github.com/gregorycollins/riegeli/pkg/codec"
	"github.com/gregorycollins/riegeli/pkg/records"
	"github.com/gregorycollins/riegeli/pkg/source"
)

// ChunkEntry describes one record-bearing chunk.
type ChunkEntry struct {
	ChunkBegin   uint64
	FirstOrdinal uint64
	NumRecords   uint64
	ChunkType    codec.ChunkType
	DataSize     uint64
}

// OrdinalIndex maps global record ordinals to record positions. It is
// immutable after Build and safe for concurrent lookups.
type OrdinalIndex struct {
	mutex   sync.RWMutex
	entries []ChunkEntry
	total   uint64
	skipped []records.SkippedRegion
}

// Build scans chunk headers from the reader's current position (normally
// the beginning of the file) and indexes every record-bearing chunk.
// Damaged regions are skipped via the chunk reader's recovery and recorded.
func Build(reader *records.ChunkReader) (*OrdinalIndex, error) {
	idx := &OrdinalIndex{}
	for {
		pos := reader.Pos()
		header, err := reader.PullChunkHeader()
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			region, ok := reader.Recover()
			if !ok {
				return nil, err
			}
			idx.skipped = append(idx.skipped, region)
			continue
		}
		if header.NumRecords > 0 {
			idx.entries = append(idx.entries, ChunkEntry{
				ChunkBegin:   pos,
				FirstOrdinal: idx.total,
				NumRecords:   header.NumRecords,
				ChunkType:    header.ChunkType,
				DataSize:     header.DataSize,
			})
			idx.total += header.NumRecords
		}
		if err := reader.Seek(codec.ChunkEnd(pos, header.DataSize)); err != nil {
			return nil, err
		}
	}
}

// BuildFromFile scans the file at path.
func BuildFromFile(path string) (*OrdinalIndex, error) {
	src, err := source.NewFileSource(source.FileSourceConfig{FilePath: path})
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return Build(records.NewChunkReader(src))
}

// Lookup resolves a global record ordinal to its position.
func (idx *OrdinalIndex) Lookup(ordinal uint64) (records.RecordPosition, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	if ordinal >= idx.total {
		return records.RecordPosition{}, false
	}
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].FirstOrdinal+idx.entries[i].NumRecords > ordinal
	})
	entry := idx.entries[i]
	return records.RecordPosition{
		ChunkBegin:  entry.ChunkBegin,
		RecordIndex: ordinal - entry.FirstOrdinal,
	}, true
}

// Count returns the total number of indexed records.
func (idx *OrdinalIndex) Count() uint64 {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return idx.total
}

// Chunks returns the indexed chunk entries.
func (idx *OrdinalIndex) Chunks() []ChunkEntry {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return append([]ChunkEntry(nil), idx.entries...)
}

// Skipped returns the regions the scan bridged over damage.
func (idx *OrdinalIndex) Skipped() []records.SkippedRegion {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return append([]records.SkippedRegion(nil), idx.skipped...)
}
