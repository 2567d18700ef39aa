package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clinvault/clinvault-backend/internal/rag/index"
	"github.com/clinvault/clinvault-backend/internal/services"
)

func TestStatsHandler(t *testing.T) {
	svc := &fakeStatsService{snap: &services.PipelineStats{
		Documents:       2,
		Chunks:          11,
		QueriesAnswered: 5,
		Refusals:        1,
		Index:           index.Stats{NumChunks: 11, IndexSize: 11, Dimension: 384},
	}}
	r := newTestRouter(t)
	h := NewStatsHandler(newTestLogger(t), svc)
	r.GET("/api/stats", h.GetStats)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}

	var got services.PipelineStats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Documents != 2 || got.Chunks != 11 {
		t.Fatalf("stats=%+v", got)
	}
	if got.QueriesAnswered != 5 || got.Refusals != 1 {
		t.Fatalf("query counts=%d/%d, want 5/1", got.QueriesAnswered, got.Refusals)
	}
	if got.Index.Dimension != 384 {
		t.Fatalf("dimension=%d, want 384", got.Index.Dimension)
	}
}

func TestStatsHandlerFailure(t *testing.T) {
	svc := &fakeStatsService{err: errors.New("db down")}
	r := newTestRouter(t)
	h := NewStatsHandler(newTestLogger(t), svc)
	r.GET("/api/stats", h.GetStats)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
	if env := decodeErrorEnvelope(t, rec); env.Error.Code != "stats_unavailable" {
		t.Fatalf("code=%q, want stats_unavailable", env.Error.Code)
	}
}
