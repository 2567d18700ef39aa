package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

const (
	indexFileName    = "index.json"
	metadataFileName = "metadata.json"
)

// ScoreFunc maps a raw distance to a similarity in (0, 1].
type ScoreFunc func(distance float64) float64

// ExpScore is the default transform: exp(-d) over squared L2 distance.
// It saturates toward zero quickly for wide embeddings, which is the
// intended tuning surface, so callers may swap in their own transform.
func ExpScore(distance float64) float64 {
	return math.Exp(-distance)
}

// Flat is an exact nearest-neighbor store over squared L2 distance. All
// vectors live in memory; Save/Load persist two co-located artifacts, the
// vector table and the parallel chunk metadata list, whose ordering must
// stay in lockstep.
type Flat struct {
	mu        sync.RWMutex
	dir       string
	dimension int
	vectors   [][]float32
	chunks    []types.Chunk
	score     ScoreFunc
	log       *logger.Logger
}

// flatSnapshot is the on-disk layout of the vector table.
type flatSnapshot struct {
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors"`
}

// NewFlat opens the store rooted at dir with the default ExpScore
// transform, loading any previously saved index found there.
func NewFlat(dir string, log *logger.Logger) (*Flat, error) {
	return NewFlatWithScore(dir, ExpScore, log)
}

// NewFlatWithScore opens the store with a caller-supplied similarity
// transform.
func NewFlatWithScore(dir string, score ScoreFunc, log *logger.Logger) (*Flat, error) {
	const op = "open"
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if score == nil {
		score = ExpScore
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, opErr(op, OperationErrorPersistFailed, fmt.Sprintf("create index dir %q failed", dir), err)
	}

	f := &Flat{
		dir:   dir,
		score: score,
		log:   log.With("service", "FlatVectorIndex"),
	}
	if _, err := os.Stat(f.indexFile()); err == nil {
		if err := f.Load(context.Background()); err != nil {
			return nil, err
		}
	}
	f.log.Info("Flat vector index ready", "dir", dir, "num_chunks", len(f.chunks), "dimension", f.dimension)
	return f, nil
}

func (f *Flat) indexFile() string    { return filepath.Join(f.dir, indexFileName) }
func (f *Flat) metadataFile() string { return filepath.Join(f.dir, metadataFileName) }

func (f *Flat) Create(ctx context.Context, dimension int) error {
	const op = "create"
	if dimension <= 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("dimension must be positive, got %d", dimension), nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.vectors) > 0 && f.dimension != dimension {
		return opErr(
			op,
			OperationErrorDimensionMismatch,
			fmt.Sprintf("index already holds %d vectors of dimension %d, cannot recreate with %d", len(f.vectors), f.dimension, dimension),
			nil,
		)
	}
	f.dimension = dimension
	f.log.Info("Vector index created", "dimension", dimension)
	return nil
}

func (f *Flat) Add(ctx context.Context, entries []Entry) error {
	const op = "add"
	if len(entries) == 0 {
		f.log.Warn("No chunks to add")
		return nil
	}
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return opErr(op, OperationErrorValidation, "all chunks must have vectors", nil)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dimension == 0 {
		f.dimension = len(entries[0].Vector)
		f.log.Info("Vector index created", "dimension", f.dimension)
	}
	for _, e := range entries {
		if len(e.Vector) != f.dimension {
			return opErr(
				op,
				OperationErrorDimensionMismatch,
				fmt.Sprintf("chunk %q dimension mismatch: expected=%d got=%d", e.Chunk.ChunkID, f.dimension, len(e.Vector)),
				nil,
			)
		}
	}
	for _, e := range entries {
		f.vectors = append(f.vectors, e.Vector)
		f.chunks = append(f.chunks, e.Chunk)
	}

	f.log.Info("Chunks added to index", "num_chunks", len(entries), "total", len(f.chunks))
	return nil
}

func (f *Flat) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	const op = "search"

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.dimension == 0 || len(f.chunks) == 0 {
		f.log.Warn("Search against empty index")
		return []Match{}, nil
	}
	if len(query) != f.dimension {
		return nil, opErr(
			op,
			OperationErrorDimensionMismatch,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", f.dimension, len(query)),
			nil,
		)
	}

	k := topK
	if k > len(f.chunks) {
		k = len(f.chunks)
	}
	if k <= 0 {
		return []Match{}, nil
	}

	distances := make([]float64, len(f.vectors))
	order := make([]int, len(f.vectors))
	for i, v := range f.vectors {
		distances[i] = squaredL2(query, v)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return distances[order[a]] < distances[order[b]]
	})

	out := make([]Match, 0, k)
	for _, idx := range order[:k] {
		out = append(out, Match{
			Chunk:      f.chunks[idx],
			Similarity: f.score(distances[idx]),
		})
	}

	f.log.Info("Search completed", "query_dim", len(query), "top_k", topK, "results", len(out))
	return out, nil
}

// ChunkText scans the chunk list by id. Linear on purpose, corpus sizes
// here stay modest.
func (f *Flat) ChunkText(ctx context.Context, chunkID string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for i := range f.chunks {
		if f.chunks[i].ChunkID == chunkID {
			return f.chunks[i].Text, nil
		}
	}
	return "", nil
}

func (f *Flat) Save(ctx context.Context) error {
	const op = "save"

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.dimension == 0 {
		f.log.Warn("No index to save")
		return nil
	}

	snap, err := json.Marshal(flatSnapshot{Dimension: f.dimension, Vectors: f.vectors})
	if err != nil {
		return opErr(op, OperationErrorEncodeFailed, "encode vector table failed", err)
	}
	meta, err := json.Marshal(f.chunks)
	if err != nil {
		return opErr(op, OperationErrorEncodeFailed, "encode chunk metadata failed", err)
	}
	if err := os.WriteFile(f.indexFile(), snap, 0o644); err != nil {
		return opErr(op, OperationErrorPersistFailed, fmt.Sprintf("write %q failed", f.indexFile()), err)
	}
	if err := os.WriteFile(f.metadataFile(), meta, 0o644); err != nil {
		return opErr(op, OperationErrorPersistFailed, fmt.Sprintf("write %q failed", f.metadataFile()), err)
	}

	f.log.Info("Index saved", "num_chunks", len(f.chunks))
	return nil
}

func (f *Flat) Load(ctx context.Context) error {
	const op = "load"

	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.indexFile())
	if os.IsNotExist(err) {
		f.log.Warn("No index file found", "path", f.indexFile())
		return nil
	}
	if err != nil {
		return opErr(op, OperationErrorPersistFailed, fmt.Sprintf("read %q failed", f.indexFile()), err)
	}

	var snap flatSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode vector table failed", err)
	}

	var chunks []types.Chunk
	metaRaw, err := os.ReadFile(f.metadataFile())
	if err != nil && !os.IsNotExist(err) {
		return opErr(op, OperationErrorPersistFailed, fmt.Sprintf("read %q failed", f.metadataFile()), err)
	}
	if err == nil {
		if err := json.Unmarshal(metaRaw, &chunks); err != nil {
			return opErr(op, OperationErrorDecodeFailed, "decode chunk metadata failed", err)
		}
	}

	if len(chunks) != len(snap.Vectors) {
		return opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("chunk metadata out of step with vector table: %d chunks vs %d vectors", len(chunks), len(snap.Vectors)),
			nil,
		)
	}

	f.dimension = snap.Dimension
	f.vectors = snap.Vectors
	f.chunks = chunks

	f.log.Info("Index loaded", "num_chunks", len(f.chunks), "dimension", f.dimension)
	return nil
}

func (f *Flat) Stats(ctx context.Context) (Stats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return Stats{
		NumChunks: len(f.chunks),
		IndexSize: len(f.vectors),
		Dimension: f.dimension,
	}, nil
}

// squaredL2 matches the distance an exact flat L2 index reports: the sum
// of squared component differences, without the square root.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
