package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/rag/index"
	"github.com/clinvault/clinvault-backend/internal/services"
)

type fakeStatsService struct {
	snap *services.PipelineStats
	err  error
}

func (f *fakeStatsService) Snapshot(ctx context.Context, tx *gorm.DB) (*services.PipelineStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func TestHealthCheck(t *testing.T) {
	svc := &fakeStatsService{snap: &services.PipelineStats{
		Documents: 4,
		Chunks:    37,
		Index:     index.Stats{NumChunks: 37, IndexSize: 37, Dimension: 1536},
	}}
	r := newTestRouter(t)
	h := NewHealthHandler(newTestLogger(t), svc)
	r.GET("/healthcheck", h.HealthCheck)

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Fatalf("status=%v, want healthy", payload["status"])
	}
	if payload["index_size"] != float64(37) {
		t.Fatalf("index_size=%v, want 37", payload["index_size"])
	}
	if payload["documents_indexed"] != float64(4) {
		t.Fatalf("documents_indexed=%v, want 4", payload["documents_indexed"])
	}
	if payload["timestamp"] == "" {
		t.Fatal("expected timestamp")
	}
}

func TestHealthCheckDegradesWithoutStats(t *testing.T) {
	svc := &fakeStatsService{err: errors.New("db down")}
	r := newTestRouter(t)
	h := NewHealthHandler(newTestLogger(t), svc)
	r.GET("/healthcheck", h.HealthCheck)

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 even when stats fail", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Fatalf("status=%v, want healthy", payload["status"])
	}
	if _, ok := payload["index_size"]; ok {
		t.Fatal("expected no index_size when stats are unavailable")
	}
}
