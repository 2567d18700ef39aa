package index

import (
	"context"

	types "github.com/clinvault/clinvault-backend/internal/domain"
)

// Entry pairs a chunk with its embedding for insertion.
type Entry struct {
	Chunk  types.Chunk
	Vector []float32
}

// Match is one search hit, ranked by ascending distance.
type Match struct {
	Chunk      types.Chunk
	Similarity float64
}

// Stats reports index size for health endpoints.
type Stats struct {
	NumChunks int `json:"num_chunks"`
	IndexSize int `json:"index_size"`
	Dimension int `json:"dimension"`
}

// Store is the vector index the retriever and ingest pipeline talk to.
// Implementations: the in-process Flat store and the Qdrant adapter.
type Store interface {
	// Create pins the vector dimension ahead of the first Add. It fails
	// if vectors already exist with a different dimension.
	Create(ctx context.Context, dimension int) error
	// Add appends chunk/vector pairs, pinning the dimension to the first
	// batch when Create was never called. Every entry must carry a vector.
	Add(ctx context.Context, entries []Entry) error
	// Search returns up to topK matches ranked best-first, with
	// similarity = exp(-distance). An empty index yields an empty
	// result, not an error.
	Search(ctx context.Context, query []float32, topK int) ([]Match, error)
	// ChunkText returns the stored text for a chunk id, or "" when the
	// id is unknown.
	ChunkText(ctx context.Context, chunkID string) (string, error)
	Save(ctx context.Context) error
	Load(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}
