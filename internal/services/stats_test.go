package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
)

func TestStatsServiceSnapshot(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

	docRepo := newFakeDocumentRepo()
	docRepo.docs["doc_a"] = &types.Document{ID: uuid.New(), DocID: "doc_a"}
	docRepo.docs["doc_b"] = &types.Document{ID: uuid.New(), DocID: "doc_b"}

	chunkRepo := &fakeChunkRepo{rows: []*types.DocumentChunk{
		{ChunkID: "doc_a_chunk_0000"},
		{ChunkID: "doc_a_chunk_0001"},
		{ChunkID: "doc_b_chunk_0000"},
	}}

	store := &fakeIndexStore{entries: []index.Entry{
		{Chunk: types.Chunk{ChunkID: "doc_a_chunk_0000"}, Vector: []float32{1, 0, 0}},
		{Chunk: types.Chunk{ChunkID: "doc_a_chunk_0001"}, Vector: []float32{0, 1, 0}},
		{Chunk: types.Chunk{ChunkID: "doc_b_chunk_0000"}, Vector: []float32{0, 0, 1}},
	}}

	auditRepo := &fakeAuditRepo{appended: []*types.AuditEvent{
		{RequestID: "req_1", EventType: types.EventPipelineCompleted},
		{RequestID: "req_2", EventType: types.EventPipelineCompleted},
		{RequestID: "req_2", EventType: types.EventAnswerRefused},
	}}

	svc := NewStatsService(nil, log, docRepo, chunkRepo, NewAuditService(nil, log, auditRepo), store)

	snap, err := svc.Snapshot(context.Background(), stubTx())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Documents != 2 {
		t.Fatalf("Documents=%d, want 2", snap.Documents)
	}
	if snap.Chunks != 3 {
		t.Fatalf("Chunks=%d, want 3", snap.Chunks)
	}
	if snap.QueriesAnswered != 2 || snap.Refusals != 1 {
		t.Fatalf("QueriesAnswered=%d Refusals=%d, want 2/1", snap.QueriesAnswered, snap.Refusals)
	}
	if snap.Index.NumChunks != 3 || snap.Index.Dimension != 3 {
		t.Fatalf("Index=%+v", snap.Index)
	}
}
