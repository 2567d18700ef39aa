package docs

// Chunk is the in-memory unit the pipeline moves around: chunker output,
// embedding input, index payload. Persistence uses DocumentChunk.
type Chunk struct {
	ChunkID     string `json:"chunk_id"`
	DocumentID  string `json:"document_id"`
	Text        string `json:"text"`
	Page        int    `json:"page_number"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Ordinal     int    `json:"ordinal"`
}
