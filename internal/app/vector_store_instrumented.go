package app

import (
	"context"
	"time"

	"github.com/clinvault/clinvault-backend/internal/observability"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
)

type instrumentedVectorStore struct {
	provider string
	inner    index.Store
	metrics  *observability.Metrics
}

func instrumentVectorStore(provider string, inner index.Store) index.Store {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{
		provider: provider,
		inner:    inner,
		metrics:  observability.Current(),
	}
}

func (s *instrumentedVectorStore) Create(ctx context.Context, dimension int) error {
	start := time.Now()
	err := s.inner.Create(ctx, dimension)
	s.observe("create", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) Add(ctx context.Context, entries []index.Entry) error {
	start := time.Now()
	err := s.inner.Add(ctx, entries)
	s.observe("add", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) Search(ctx context.Context, query []float32, topK int) ([]index.Match, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, query, topK)
	s.observe("search", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorStore) ChunkText(ctx context.Context, chunkID string) (string, error) {
	start := time.Now()
	out, err := s.inner.ChunkText(ctx, chunkID)
	s.observe("chunk_text", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorStore) Save(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Save(ctx)
	s.observe("save", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) Load(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Load(ctx)
	s.observe("load", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) Stats(ctx context.Context) (index.Stats, error) {
	start := time.Now()
	out, err := s.inner.Stats(ctx)
	s.observe("stats", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorStore) observe(operation string, err error, dur time.Duration) {
	if s == nil || s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveVectorStoreOperation(s.provider, operation, status, dur)
}
