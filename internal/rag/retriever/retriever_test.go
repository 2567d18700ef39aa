package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = f.vec
	}
	return out, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func seededStore(t *testing.T) index.Store {
	t.Helper()
	store, err := index.NewFlat(t.TempDir(), testLogger(t))
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	longText := strings.Repeat("Lisinopril is indicated for hypertension. ", 10)
	entries := []index.Entry{
		{
			Chunk:  types.Chunk{ChunkID: "doc_a_chunk_0000", DocumentID: "doc_a", Text: longText, Page: 2},
			Vector: []float32{1, 0},
		},
		{
			Chunk:  types.Chunk{ChunkID: "doc_a_chunk_0001", DocumentID: "doc_a", Text: "Short follow-up note.", Page: 3},
			Vector: []float32{0, 1},
		},
	}
	if err := store.Add(context.Background(), entries); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return store
}

func TestRetrieveBuildsCitations(t *testing.T) {
	store := seededStore(t)
	r := New(store, &fakeEmbedder{vec: []float32{1, 0}}, testLogger(t))

	citations, err := r.Retrieve(context.Background(), "lisinopril dose", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(citations) != 2 {
		t.Fatalf("len(citations)=%d, want 2", len(citations))
	}

	top := citations[0]
	if top.ChunkID != "doc_a_chunk_0000" || top.DocumentID != "doc_a" || top.Page != 2 {
		t.Fatalf("top citation=%+v", top)
	}
	if top.Similarity != 1.0 {
		t.Fatalf("top.Similarity=%v, want 1.0", top.Similarity)
	}
	if citations[1].Similarity >= top.Similarity {
		t.Fatalf("citations not ranked: %v then %v", top.Similarity, citations[1].Similarity)
	}
}

func TestRetrieveCapsSnippetAtLimit(t *testing.T) {
	store := seededStore(t)
	r := New(store, &fakeEmbedder{vec: []float32{1, 0}}, testLogger(t))

	citations, err := r.Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	snippet := citations[0].Snippet
	if len([]rune(snippet)) != snippetLength {
		t.Fatalf("snippet length=%d, want %d", len([]rune(snippet)), snippetLength)
	}
	if !strings.HasSuffix(snippet, "...") {
		t.Fatalf("snippet not ellipsis-terminated: %q", snippet)
	}
}

func TestRetrieveKeepsShortSnippetIntact(t *testing.T) {
	store := seededStore(t)
	r := New(store, &fakeEmbedder{vec: []float32{0, 1}}, testLogger(t))

	citations, err := r.Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if citations[0].Snippet != "Short follow-up note." {
		t.Fatalf("snippet=%q", citations[0].Snippet)
	}
}

func TestRetrievePropagatesEmbedderError(t *testing.T) {
	store := seededStore(t)
	wantErr := errors.New("embedding provider down")
	r := New(store, &fakeEmbedder{err: wantErr}, testLogger(t))

	_, err := r.Retrieve(context.Background(), "q", 1)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v, want %v", err, wantErr)
	}
}

func TestChunkTextReturnsFullText(t *testing.T) {
	store := seededStore(t)
	r := New(store, &fakeEmbedder{vec: []float32{1, 0}}, testLogger(t))

	text, err := r.ChunkText(context.Background(), "doc_a_chunk_0001")
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if text != "Short follow-up note." {
		t.Fatalf("text=%q", text)
	}

	missing, err := r.ChunkText(context.Background(), "doc_a_chunk_9999")
	if err != nil {
		t.Fatalf("ChunkText missing: %v", err)
	}
	if missing != "" {
		t.Fatalf("missing=%q, want empty", missing)
	}
}
