package api

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gregorycollins/riegeli/pkg/index"
	"github.com/gregorycollins/riegeli/pkg/records"
)

// maxListCount bounds one list request.
const maxListCount = 1000

// Server holds the API server state. The record reader is single-threaded,
// so all record access is serialized behind a mutex.
type Server struct {
	reader   *records.RecordReader
	index    *index.OrdinalIndex
	metadata *records.RecordsMetadata
	config   ServerConfig
	metrics  *Metrics
	mutex    sync.Mutex
}

// NewServer creates a new API server. metadata may be nil when the file has
// none.
func NewServer(reader *records.RecordReader, idx *index.OrdinalIndex, metadata *records.RecordsMetadata, config ServerConfig, metrics *Metrics) *Server {
	return &Server{
		reader:   reader,
		index:    idx,
		metadata: metadata,
		config:   config,
		metrics:  metrics,
	}
}

// handleHealth reports server liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// readAt seeks to the position of the given ordinal and reads one record.
func (s *Server) readAt(ordinal uint64) (RecordResponse, bool, error) {
	position, ok := s.index.Lookup(ordinal)
	if !ok {
		return RecordResponse{}, false, nil
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.reader.Seek(position); err != nil {
		return RecordResponse{}, false, err
	}
	record, key, err := s.reader.ReadKeyedRecord()
	if err != nil {
		return RecordResponse{}, false, err
	}
	data := append([]byte(nil), record...)
	return RecordResponse{
		Ordinal:     ordinal,
		ChunkBegin:  key.ChunkBegin,
		RecordIndex: key.RecordIndex,
		Size:        len(data),
		Data:        data,
	}, true, nil
}

// handleGetRecord returns a single record by its global ordinal.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ordinal, err := strconv.ParseUint(chi.URLParam(r, "ordinal"), 10, 64)
	if err != nil {
		s.metrics.RecordReadOperation("get", false, time.Since(start))
		sendError(w, "Invalid record ordinal", http.StatusBadRequest)
		return
	}
	response, found, err := s.readAt(ordinal)
	if err != nil {
		s.metrics.RecordReadOperation("get", false, time.Since(start))
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		s.metrics.RecordReadOperation("get", false, time.Since(start))
		sendError(w, "Record not found", http.StatusNotFound)
		return
	}
	s.metrics.RecordReadOperation("get", true, time.Since(start))
	s.metrics.RecordServed()
	sendSuccess(w, response)
}

// handleListRecords returns a range of records: ?start=N&count=M.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	start := uint64(0)
	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			sendError(w, "Invalid start ordinal", http.StatusBadRequest)
			return
		}
		start = parsed
	}
	count := uint64(100)
	if v := r.URL.Query().Get("count"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil || parsed == 0 {
			sendError(w, "Invalid count", http.StatusBadRequest)
			return
		}
		count = parsed
	}
	if count > maxListCount {
		count = maxListCount
	}
	total := s.index.Count()
	responses := []RecordResponse{}
	if start < total {
		end := start + count
		if end > total {
			end = total
		}
		position, ok := s.index.Lookup(start)
		if !ok {
			sendError(w, "Record not found", http.StatusNotFound)
			return
		}
		s.mutex.Lock()
		if err := s.reader.Seek(position); err != nil {
			s.mutex.Unlock()
			s.metrics.RecordReadOperation("list", false, time.Since(startTime))
			sendError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for ordinal := start; ordinal < end; ordinal++ {
			record, key, err := s.reader.ReadKeyedRecord()
			if err == io.EOF {
				break
			}
			if err != nil {
				s.mutex.Unlock()
				s.metrics.RecordReadOperation("list", false, time.Since(startTime))
				sendError(w, err.Error(), http.StatusInternalServerError)
				return
			}
			data := append([]byte(nil), record...)
			responses = append(responses, RecordResponse{
				Ordinal:     ordinal,
				ChunkBegin:  key.ChunkBegin,
				RecordIndex: key.RecordIndex,
				Size:        len(data),
				Data:        data,
			})
		}
		s.mutex.Unlock()
	}
	s.metrics.RecordReadOperation("list", true, time.Since(startTime))
	for range responses {
		s.metrics.RecordServed()
	}
	sendSuccess(w, responses)
}

// handleMetadata returns the file's RecordsMetadata.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if s.metadata == nil {
		sendSuccess(w, map[string]interface{}{})
		return
	}
	fileDescriptorNames := make([]string, 0, len(s.metadata.FileDescriptors))
	for _, fd := range s.metadata.FileDescriptors {
		fileDescriptorNames = append(fileDescriptorNames, fd.GetName())
	}
	sendSuccess(w, map[string]interface{}{
		"record_type_name": s.metadata.RecordTypeName,
		"file_descriptors": fileDescriptorNames,
	})
}

// handleStats summarizes the served file.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	size, err := s.reader.Size()
	s.mutex.Unlock()
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	skipped := s.index.Skipped()
	var skippedBytes uint64
	for _, region := range skipped {
		skippedBytes += region.Length()
	}
	stats := StatsResponse{
		FilePath:       s.config.FilePath,
		FileSize:       size,
		RecordCount:    s.index.Count(),
		ChunkCount:     len(s.index.Chunks()),
		SkippedRegions: len(skipped),
		SkippedBytes:   skippedBytes,
	}
	if s.metadata != nil {
		stats.RecordTypeName = s.metadata.RecordTypeName
	}
	sendSuccess(w, stats)
}

// handleChunks lists the record-bearing chunks.
func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	entries := s.index.Chunks()
	responses := make([]ChunkResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, ChunkResponse{
			ChunkBegin:   entry.ChunkBegin,
			ChunkType:    entry.ChunkType.String(),
			FirstOrdinal: entry.FirstOrdinal,
			NumRecords:   entry.NumRecords,
			DataSize:     entry.DataSize,
		})
	}
	sendSuccess(w, responses)
}
