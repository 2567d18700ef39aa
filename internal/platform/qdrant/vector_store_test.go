package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
)

func TestVectorStoreAddRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/clinical_chunks/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/clinical_chunks/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.Add(context.Background(), []index.Entry{
		{
			Chunk: types.Chunk{
				ChunkID:    "doc_aaaa1111bbbb_chunk_0000",
				DocumentID: "doc_aaaa1111bbbb",
				Text:       "Lisinopril starting dose is 10 mg daily.",
				Page:       1,
				Ordinal:    0,
			},
			Vector: []float32{1, 0, 0},
		},
		{
			Chunk: types.Chunk{
				ChunkID:    "doc_aaaa1111bbbb_chunk_0001",
				DocumentID: "doc_aaaa1111bbbb",
				Text:       "Monitor potassium after initiation.",
				Page:       2,
				Ordinal:    1,
			},
			Vector: []float32{0, 1, 0},
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	pointsRaw, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(pointsRaw) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(pointsRaw))
	}

	first, ok := pointsRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("point[0] type: got=%T", pointsRaw[0])
	}
	if first["id"] != s.pointID("doc_aaaa1111bbbb_chunk_0000") {
		t.Fatalf("point id mismatch: got=%v", first["id"])
	}
	payload, ok := first["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload type: got=%T", first["payload"])
	}
	if payload[payloadChunkIDKey] != "doc_aaaa1111bbbb_chunk_0000" {
		t.Fatalf("payload chunk id: got=%v", payload[payloadChunkIDKey])
	}
	if payload[payloadDocumentIDKey] != "doc_aaaa1111bbbb" {
		t.Fatalf("payload document id: got=%v", payload[payloadDocumentIDKey])
	}
	if payload[payloadTextKey] != "Lisinopril starting dose is 10 mg daily." {
		t.Fatalf("payload text: got=%v", payload[payloadTextKey])
	}
}

func TestVectorStoreAddCreatesCollectionLazily(t *testing.T) {
	var createBody map[string]any
	var sawUpsert bool
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/clinical_chunks":
			return notFoundResponse(t), nil
		case r.Method == http.MethodPut && r.URL.Path == "/collections/clinical_chunks":
			if err := json.NewDecoder(r.Body).Decode(&createBody); err != nil {
				t.Fatalf("decode create body: %v", err)
			}
			return okResponse(t, true), nil
		case r.Method == http.MethodPut && r.URL.Path == "/collections/clinical_chunks/points":
			sawUpsert = true
			return okResponse(t, map[string]any{"status": "acknowledged"}), nil
		}
		t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		return nil, nil
	})
	s.dimension = 0
	s.cfg.VectorDim = 0

	err := s.Add(context.Background(), []index.Entry{
		{Chunk: types.Chunk{ChunkID: "doc_x_chunk_0000"}, Vector: []float32{1, 2}},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	vectors, ok := createBody["vectors"].(map[string]any)
	if !ok {
		t.Fatalf("create body vectors: got=%T", createBody["vectors"])
	}
	if vectors["size"] != float64(2) {
		t.Fatalf("created size: want=2 got=%v", vectors["size"])
	}
	if vectors["distance"] != "Euclid" {
		t.Fatalf("created distance: want=Euclid got=%v", vectors["distance"])
	}
	if !sawUpsert {
		t.Fatalf("points upsert never issued")
	}
	if s.currentDimension() != 2 {
		t.Fatalf("dimension not pinned: got=%d", s.currentDimension())
	}
}

func TestVectorStoreAddValidation(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected, got %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	err := s.Add(context.Background(), []index.Entry{
		{Chunk: types.Chunk{ChunkID: "doc_x_chunk_0000"}, Vector: nil},
	})
	assertOpErrCode(t, err, OperationErrorValidation)

	err = s.Add(context.Background(), []index.Entry{
		{Chunk: types.Chunk{ChunkID: "doc_x_chunk_0000"}, Vector: []float32{1, 2}},
	})
	assertOpErrCode(t, err, OperationErrorDimensionMismatch)

	if err := s.Add(context.Background(), nil); err != nil {
		t.Fatalf("Add(nil): %v", err)
	}
}

func TestVectorStoreSearchEuclidSimilarity(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/clinical_chunks/points/search" {
			t.Fatalf("path: want=%q got=%q", "/collections/clinical_chunks/points/search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{
				"id":    "point-far",
				"score": 2.0,
				"payload": map[string]any{
					payloadChunkIDKey:    "doc_a_chunk_0001",
					payloadDocumentIDKey: "doc_a",
					payloadTextKey:       "Metformin is first line for type 2 diabetes.",
					payloadPageKey:       float64(3),
					payloadOrdinalKey:    float64(1),
				},
			},
			{
				"id":    "point-near",
				"score": 0.5,
				"payload": map[string]any{
					payloadChunkIDKey:    "doc_a_chunk_0000",
					payloadDocumentIDKey: "doc_a",
					payloadTextKey:       "Lisinopril starting dose is 10 mg daily.",
					payloadPageKey:       float64(1),
					payloadOrdinalKey:    float64(0),
				},
			},
		}), nil
	})

	matches, err := s.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches length: want=2 got=%d", len(matches))
	}

	if matches[0].Chunk.ChunkID != "doc_a_chunk_0000" || matches[1].Chunk.ChunkID != "doc_a_chunk_0001" {
		t.Fatalf("ordering mismatch: got=%v", []string{matches[0].Chunk.ChunkID, matches[1].Chunk.ChunkID})
	}
	wantNear := math.Exp(-(0.5 * 0.5))
	wantFar := math.Exp(-(2.0 * 2.0))
	if math.Abs(matches[0].Similarity-wantNear) > 1e-12 {
		t.Fatalf("near similarity: want=%v got=%v", wantNear, matches[0].Similarity)
	}
	if math.Abs(matches[1].Similarity-wantFar) > 1e-12 {
		t.Fatalf("far similarity: want=%v got=%v", wantFar, matches[1].Similarity)
	}
	if matches[0].Chunk.Page != 1 || matches[0].Chunk.Ordinal != 0 {
		t.Fatalf("chunk fields not rebuilt: %+v", matches[0].Chunk)
	}

	if captured["limit"] != float64(2) {
		t.Fatalf("limit: want=2 got=%v", captured["limit"])
	}
	if captured["with_payload"] != true {
		t.Fatalf("with_payload: got=%v", captured["with_payload"])
	}
}

func TestVectorStoreSearchEmptyAndMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected, got %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	s.dimension = 0
	matches, err := s.Search(context.Background(), []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("Search on empty: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("Search on empty: want=0 got=%d", len(matches))
	}

	s.dimension = 3
	_, err = s.Search(context.Background(), []float32{1, 2}, 5)
	assertOpErrCode(t, err, OperationErrorDimensionMismatch)

	matches, err = s.Search(context.Background(), []float32{1, 2, 3}, 0)
	if err != nil || len(matches) != 0 {
		t.Fatalf("Search with topK=0: matches=%v err=%v", matches, err)
	}
}

func TestVectorStoreChunkText(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/clinical_chunks/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/clinical_chunks/points", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{
				"id": "whatever",
				"payload": map[string]any{
					payloadChunkIDKey: "doc_a_chunk_0000",
					payloadTextKey:    "Lisinopril starting dose is 10 mg daily.",
				},
			},
		}), nil
	})

	text, err := s.ChunkText(context.Background(), "doc_a_chunk_0000")
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if text != "Lisinopril starting dose is 10 mg daily." {
		t.Fatalf("text: got=%q", text)
	}

	ids, ok := captured["ids"].([]any)
	if !ok || len(ids) != 1 {
		t.Fatalf("ids: got=%v", captured["ids"])
	}
	if ids[0] != s.pointID("doc_a_chunk_0000") {
		t.Fatalf("point id: want=%q got=%v", s.pointID("doc_a_chunk_0000"), ids[0])
	}
}

func TestVectorStoreChunkTextMiss(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, []map[string]any{}), nil
	})

	text, err := s.ChunkText(context.Background(), "doc_a_chunk_9999")
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if text != "" {
		t.Fatalf("text: want empty got=%q", text)
	}

	text, err = s.ChunkText(context.Background(), "  ")
	if err != nil || text != "" {
		t.Fatalf("blank id: text=%q err=%v", text, err)
	}
}

func TestVectorStoreStats(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodGet || r.URL.Path != "/collections/clinical_chunks" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		return okResponse(t, map[string]any{
			"points_count": 7,
			"config": map[string]any{
				"params": map[string]any{
					"vectors": map[string]any{"size": 3, "distance": "Euclid"},
				},
			},
		}), nil
	})

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.NumChunks != 7 || stats.IndexSize != 7 || stats.Dimension != 3 {
		t.Fatalf("stats: got=%+v", stats)
	}
}

func TestVectorStoreStatsMissingCollection(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return notFoundResponse(t), nil
	})

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.NumChunks != 0 || stats.Dimension != 0 {
		t.Fatalf("stats: got=%+v", stats)
	}
}

func TestVectorStoreLoadAdoptsCollection(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, map[string]any{
			"points_count": 12,
			"config": map[string]any{
				"params": map[string]any{
					"vectors": map[string]any{"size": 5, "distance": "Cosine"},
				},
			},
		}), nil
	})
	s.dimension = 0
	s.cfg.VectorDim = 0
	s.distance = ""

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.currentDimension() != 5 {
		t.Fatalf("dimension: want=5 got=%d", s.currentDimension())
	}
	if s.currentDistance() != "Cosine" {
		t.Fatalf("distance: want=Cosine got=%q", s.currentDistance())
	}
}

func TestVectorStoreLoadDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, map[string]any{
			"points_count": 1,
			"config": map[string]any{
				"params": map[string]any{
					"vectors": map[string]any{"size": 5, "distance": "Euclid"},
				},
			},
		}), nil
	})

	err := s.Load(context.Background())
	assertOpErrCode(t, err, OperationErrorDimensionMismatch)
}

func TestVectorStoreLoadMissingCollection(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return notFoundResponse(t), nil
	})

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load on missing collection: %v", err)
	}
}

func TestSimilarityFromScore(t *testing.T) {
	cases := []struct {
		distance string
		score    float64
		want     float64
	}{
		{"Euclid", 0, 1},
		{"Euclid", 2, math.Exp(-4)},
		{"euclid", -2, math.Exp(-4)},
		{"Manhattan", 1, math.Exp(-1)},
		{"Cosine", 0.8, 0.8},
		{"Cosine", -0.2, 0},
		{"Dot", 1.5, 1},
		{"", 0.3, 0.3},
	}
	for _, tc := range cases {
		got := similarityFromScore(tc.distance, tc.score)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("similarityFromScore(%q, %v): want=%v got=%v", tc.distance, tc.score, tc.want, got)
		}
	}

	// Closer points must always score higher on the euclid mapping.
	if !(similarityFromScore("Euclid", 0.3) > similarityFromScore("Euclid", 0.9)) {
		t.Fatalf("euclid mapping is not monotonically decreasing in distance")
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("search", "timeout", context.DeadlineExceeded)
	assertOpErrCode(t, err, OperationErrorTimeout)
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	err := classifyHTTPCallError("search", "transport", fmt.Errorf("boom"))
	assertOpErrCode(t, err, OperationErrorTransportFailed)
}

func assertOpErrCode(t *testing.T, err error, want OperationErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %q, got nil", want)
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T (%v)", err, err)
	}
	if opErr.Code != want {
		t.Fatalf("error code: want=%q got=%q", want, opErr.Code)
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *vectorStore {
	t.Helper()
	return &vectorStore{
		log:       newTestLogger(t),
		cfg:       Config{URL: "http://qdrant.local", Collection: "clinical_chunks", VectorDim: 3},
		baseURL:   "http://qdrant.local",
		dimension: 3,
		distance:  "Euclid",
		http: &http.Client{
			Transport: roundTripFunc(roundTrip),
		},
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func notFoundResponse(t *testing.T) *http.Response {
	t.Helper()
	raw := `{"status":{"error":"Not found: collection clinical_chunks does not exist"},"time":0.001}`
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
