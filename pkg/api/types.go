package api

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port   int
	Bind   string
	APIKey string
	// FilePath is the record file being served; reported in stats.
	FilePath string
}

// RecordResponse is one record with its addressing information.
type RecordResponse struct {
	Ordinal     uint64 `json:"ordinal"`
	ChunkBegin  uint64 `json:"chunk_begin"`
	RecordIndex uint64 `json:"record_index"`
	Size        int    `json:"size"`
	Data        []byte `json:"data"` // base64 in JSON
}

// StatsResponse summarizes the served file.
type StatsResponse struct {
	FilePath       string `json:"file_path"`
	FileSize       uint64 `json:"file_size"`
	RecordCount    uint64 `json:"record_count"`
	ChunkCount     int    `json:"chunk_count"`
	SkippedRegions int    `json:"skipped_regions"`
	SkippedBytes   uint64 `json:"skipped_bytes"`
	RecordTypeName string `json:"record_type_name,omitempty"`
}

// ChunkResponse describes one record-bearing chunk.
type ChunkResponse struct {
	ChunkBegin   uint64 `json:"chunk_begin"`
	ChunkType    string `json:"chunk_type"`
	FirstOrdinal uint64 `json:"first_ordinal"`
	NumRecords   uint64 `json:"num_records"`
	DataSize     uint64 `json:"data_size"`
}
