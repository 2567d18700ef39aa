package index

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newTestFlat(t *testing.T) *Flat {
	t.Helper()
	f, err := NewFlat(t.TempDir(), testLogger(t))
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	return f
}

func chunkEntry(id string, vec ...float32) Entry {
	return Entry{
		Chunk:  types.Chunk{ChunkID: id, DocumentID: "doc_test00000000", Text: "text for " + id},
		Vector: vec,
	}
}

func TestSearchEmptyIndexReturnsNoMatches(t *testing.T) {
	f := newTestFlat(t)

	matches, err := f.Search(context.Background(), []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("len(matches)=%d, want 0", len(matches))
	}
}

func TestAddPinsDimensionFromFirstBatch(t *testing.T) {
	f := newTestFlat(t)
	ctx := context.Background()

	if err := f.Add(ctx, []Entry{chunkEntry("a", 1, 0, 0)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stats, err := f.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Dimension != 3 || stats.NumChunks != 1 || stats.IndexSize != 1 {
		t.Fatalf("stats=%+v, want dimension=3 num_chunks=1 index_size=1", stats)
	}

	err = f.Add(ctx, []Entry{chunkEntry("b", 1, 0)})
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorDimensionMismatch {
		t.Fatalf("Add with wrong dimension: err=%v, want %s", err, OperationErrorDimensionMismatch)
	}
}

func TestAddRejectsMissingVector(t *testing.T) {
	f := newTestFlat(t)

	err := f.Add(context.Background(), []Entry{chunkEntry("a", 1, 0), {Chunk: types.Chunk{ChunkID: "b"}}})
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorValidation {
		t.Fatalf("Add with missing vector: err=%v, want %s", err, OperationErrorValidation)
	}
}

func TestSearchRanksByDistance(t *testing.T) {
	f := newTestFlat(t)
	ctx := context.Background()

	entries := []Entry{
		chunkEntry("far", 0, 2),
		chunkEntry("exact", 0, 0),
		chunkEntry("near", 1, 0),
	}
	if err := f.Add(ctx, entries); err != nil {
		t.Fatalf("Add: %v", err)
	}

	matches, err := f.Search(ctx, []float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("len(matches)=%d, want 3", len(matches))
	}

	wantOrder := []string{"exact", "near", "far"}
	wantSim := []float64{1.0, math.Exp(-1), math.Exp(-4)}
	for i, m := range matches {
		if m.Chunk.ChunkID != wantOrder[i] {
			t.Fatalf("matches[%d]=%q, want %q", i, m.Chunk.ChunkID, wantOrder[i])
		}
		if math.Abs(m.Similarity-wantSim[i]) > 1e-9 {
			t.Fatalf("matches[%d].Similarity=%v, want %v", i, m.Similarity, wantSim[i])
		}
		if m.Similarity <= 0 || m.Similarity > 1 {
			t.Fatalf("matches[%d].Similarity=%v outside (0,1]", i, m.Similarity)
		}
	}
}

func TestSearchClampsTopK(t *testing.T) {
	f := newTestFlat(t)
	ctx := context.Background()

	if err := f.Add(ctx, []Entry{chunkEntry("a", 1, 0), chunkEntry("b", 0, 1)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	matches, err := f.Search(ctx, []float32{0, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("len(matches)=%d, want 2", len(matches))
	}

	matches, err = f.Search(ctx, []float32{0, 0}, 0)
	if err != nil {
		t.Fatalf("Search topK=0: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("topK=0: len(matches)=%d, want 0", len(matches))
	}
}

func TestSearchRejectsQueryDimensionMismatch(t *testing.T) {
	f := newTestFlat(t)
	ctx := context.Background()

	if err := f.Add(ctx, []Entry{chunkEntry("a", 1, 0, 0)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	_, err := f.Search(ctx, []float32{1, 0}, 1)
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorDimensionMismatch {
		t.Fatalf("Search with wrong dimension: err=%v, want %s", err, OperationErrorDimensionMismatch)
	}
}

func TestCreateRejectsDimensionChangeAfterAdd(t *testing.T) {
	f := newTestFlat(t)
	ctx := context.Background()

	if err := f.Create(ctx, 4); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Add(ctx, []Entry{chunkEntry("a", 1, 0, 0, 0)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := f.Create(ctx, 8)
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorDimensionMismatch {
		t.Fatalf("Create after Add: err=%v, want %s", err, OperationErrorDimensionMismatch)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log := testLogger(t)
	ctx := context.Background()

	f, err := NewFlat(dir, log)
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	entries := []Entry{
		chunkEntry("a", 0.25, 0.5),
		chunkEntry("b", 0.75, 0.1),
		chunkEntry("c", 0.33, 0.9),
	}
	if err := f.Add(ctx, entries); err != nil {
		t.Fatalf("Add: %v", err)
	}
	query := []float32{0.3, 0.4}
	before, err := f.Search(ctx, query, 3)
	if err != nil {
		t.Fatalf("Search before save: %v", err)
	}
	if err := f.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := NewFlat(dir, log)
	if err != nil {
		t.Fatalf("NewFlat reopen: %v", err)
	}
	after, err := reopened.Search(ctx, query, 3)
	if err != nil {
		t.Fatalf("Search after load: %v", err)
	}

	if len(after) != len(before) {
		t.Fatalf("len(after)=%d, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i].Chunk.ChunkID != before[i].Chunk.ChunkID {
			t.Fatalf("result %d: id=%q, want %q", i, after[i].Chunk.ChunkID, before[i].Chunk.ChunkID)
		}
		if math.Abs(after[i].Similarity-before[i].Similarity) > 1e-12 {
			t.Fatalf("result %d: similarity=%v, want %v", i, after[i].Similarity, before[i].Similarity)
		}
	}
}

func TestSaveEmptyIndexIsNoop(t *testing.T) {
	f := newTestFlat(t)

	if err := f.Save(context.Background()); err != nil {
		t.Fatalf("Save on empty index: %v", err)
	}
}

func TestConcurrentSearchIsSafe(t *testing.T) {
	f := newTestFlat(t)
	ctx := context.Background()

	if err := f.Add(ctx, []Entry{chunkEntry("a", 1, 0), chunkEntry("b", 0, 1)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Search(ctx, []float32{0.5, 0.5}, 2); err != nil {
				t.Errorf("Search: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestCustomScoreFuncReplacesSimilarity(t *testing.T) {
	f, err := NewFlatWithScore(t.TempDir(), func(d float64) float64 { return 1 / (1 + d) }, testLogger(t))
	if err != nil {
		t.Fatalf("NewFlatWithScore: %v", err)
	}
	ctx := context.Background()

	if err := f.Add(ctx, []Entry{chunkEntry("a", 0, 0), chunkEntry("b", 0, 2)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	matches, err := f.Search(ctx, []float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches[0].Similarity != 1.0 {
		t.Fatalf("matches[0].Similarity=%v, want 1.0", matches[0].Similarity)
	}
	if math.Abs(matches[1].Similarity-0.2) > 1e-9 {
		t.Fatalf("matches[1].Similarity=%v, want 0.2", matches[1].Similarity)
	}
}
