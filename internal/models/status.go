package models

// IndexInfo describes the vector index held by the service.
type IndexInfo struct {
	Loaded         bool   `json:"loaded"`
	Chunks         int    `json:"chunks"`
	Sources        int    `json:"sources"`
	Backend        string `json:"backend"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	Dir            string `json:"dir"`
}

// RetrievalSettings are the MMR parameters used for audits.
type RetrievalSettings struct {
	K      int     `json:"k"`
	FetchK int     `json:"fetch_k"`
	Lambda float64 `json:"lambda"`
}

// IngestSettings are the chunking parameters and index mode used for uploads.
type IngestSettings struct {
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	Mode         string `json:"mode"`
}

// Status is the GET /status response.
type Status struct {
	Index          IndexInfo         `json:"index"`
	LLM            string            `json:"llm,omitempty"`
	Retrieval      RetrievalSettings `json:"retrieval"`
	Ingest         IngestSettings    `json:"ingest"`
	Inbox          []string          `json:"inbox,omitempty"`
	DiskUsageBytes *int64            `json:"disk_usage_bytes,omitempty"`
}
