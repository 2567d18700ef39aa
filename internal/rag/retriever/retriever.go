package retriever

import (
	"context"
	"fmt"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/platform/openai"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

// Citation snippets are capped here; answers cite chunks, they do not
// inline them.
const snippetLength = 200

// Retriever turns a query into ranked citations: one embedding call, one
// index search, snippet truncation.
type Retriever struct {
	store    index.Store
	embedder openai.Embedder
	log      *logger.Logger
}

func New(store index.Store, embedder openai.Embedder, log *logger.Logger) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		log:      log.With("component", "retriever"),
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]types.Citation, error) {
	r.log.Info("Retrieving chunks", "query_length", len(query), "top_k", topK)

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding collaborator returned no vector for query")
	}

	matches, err := r.store.Search(ctx, vecs[0], topK)
	if err != nil {
		return nil, err
	}

	citations := make([]types.Citation, 0, len(matches))
	for _, m := range matches {
		citations = append(citations, types.Citation{
			ChunkID:    m.Chunk.ChunkID,
			DocumentID: m.Chunk.DocumentID,
			Similarity: m.Similarity,
			Snippet:    utils.TruncateText(m.Chunk.Text, snippetLength),
			Page:       m.Chunk.Page,
		})
	}

	r.log.Info("Retrieval complete", "num_citations", len(citations))
	return citations, nil
}

// ChunkText returns the full stored text behind one citation, "" when the
// id is unknown.
func (r *Retriever) ChunkText(ctx context.Context, chunkID string) (string, error) {
	return r.store.ChunkText(ctx, chunkID)
}
