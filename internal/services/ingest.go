package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/clinvault/clinvault-backend/internal/data/repos"
	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/platform/openai"
	"github.com/clinvault/clinvault-backend/internal/rag/chunker"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

var (
	ErrUnsupportedFileType      = errors.New("unsupported file type")
	ErrFileTooLarge             = errors.New("file too large")
	ErrEmptyDocument            = errors.New("document has no extractable text")
	ErrInvalidEncoding          = errors.New("file is not valid UTF-8 text")
	ErrPDFExtractionUnavailable = errors.New("pdf extraction is not configured")
)

// BlobStore is the slice of document storage ingestion needs. The local
// file store satisfies it directly; the GCS bucket service is adapted to
// it in the app wiring.
type BlobStore interface {
	SaveFile(ctx context.Context, key string, r io.Reader) (string, error)
}

// PageExtractor turns raw PDF bytes into per-page text.
type PageExtractor interface {
	ExtractPages(ctx context.Context, data []byte) ([]types.Page, error)
}

// IngestLimits bounds the upload pipeline. Zero values fall back to the
// defaults: 20 MiB uploads, 100-text embed batches, 4 embed workers.
type IngestLimits struct {
	MaxUploadBytes int64
	EmbedBatchSize int
	EmbedWorkers   int
}

// DocumentUpload is one file handed to the pipeline. RequestID is
// optional; the HTTP layer passes the id it minted so the ingestion
// audit trail matches the X-Request-Id header, and a fresh id is minted
// when it is blank.
type DocumentUpload struct {
	RequestID   string
	Filename    string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// IngestService runs the upload pipeline: validate, archive the raw
// bytes, extract text, chunk, embed, index, persist. One call takes a
// document all the way from bytes to searchable.
type IngestService interface {
	UploadDocument(ctx context.Context, tx *gorm.DB, upload DocumentUpload) (*UploadResult, error)
	ListDocuments(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Document, int64, error)
}

type ingestService struct {
	db           *gorm.DB
	log          *logger.Logger
	documentRepo repos.DocumentRepo
	chunkRepo    repos.DocumentChunkRepo
	blobs        BlobStore
	extractor    PageExtractor
	chunker      *chunker.Chunker
	embedder     openai.Embedder
	store        index.Store
	auditService AuditService
	limits       IngestLimits
}

func NewIngestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	documentRepo repos.DocumentRepo,
	chunkRepo repos.DocumentChunkRepo,
	blobs BlobStore,
	extractor PageExtractor,
	chunkSplitter *chunker.Chunker,
	embedder openai.Embedder,
	store index.Store,
	auditService AuditService,
	limits IngestLimits,
) IngestService {
	serviceLog := baseLog.With("service", "IngestService")
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = 20 << 20
	}
	if limits.EmbedBatchSize <= 0 {
		limits.EmbedBatchSize = 100
	}
	if limits.EmbedWorkers <= 0 {
		limits.EmbedWorkers = 4
	}
	return &ingestService{
		db:           db,
		log:          serviceLog,
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		blobs:        blobs,
		extractor:    extractor,
		chunker:      chunkSplitter,
		embedder:     embedder,
		store:        store,
		auditService: auditService,
		limits:       limits,
	}
}

// =====================================================================
// Upload pipeline
// =====================================================================

func (is *ingestService) UploadDocument(ctx context.Context, tx *gorm.DB, upload DocumentUpload) (*UploadResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = is.db
	}

	start := time.Now()
	requestID := strings.TrimSpace(upload.RequestID)
	if requestID == "" {
		requestID = utils.NewRequestID()
	}
	is.log.Info("Processing document upload", "request_id", requestID, "filename", upload.Filename, "size_bytes", len(upload.Data))

	ext, err := is.validateUpload(upload)
	if err != nil {
		is.log.Error("Upload rejected", "error", err, "filename", upload.Filename)
		return nil, err
	}

	safeName := utils.SanitizeFilename(upload.Filename)
	docID := utils.DocumentID(safeName)
	storageKey := "documents/" + docID + ext

	storageURL, err := is.blobs.SaveFile(ctx, storageKey, bytes.NewReader(upload.Data))
	if err != nil {
		is.log.Error("Failed to store uploaded file", "error", err, "key", storageKey)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &types.Document{
		DocID:       docID,
		Filename:    safeName,
		ContentType: upload.ContentType,
		SizeBytes:   int64(len(upload.Data)),
		StorageKey:  storageKey,
		StorageURL:  storageURL,
		Status:      types.DocumentStatusProcessing,
	}
	doc, err = is.documentRepo.Upsert(ctx, transaction, doc)
	if err != nil {
		is.log.Error("Failed to persist document", "error", err, "doc_id", docID)
		return nil, fmt.Errorf("persist document: %w", err)
	}

	chunks, numPages, err := is.extractAndChunk(ctx, ext, docID, upload.Data)
	if err != nil {
		is.markFailed(ctx, transaction, doc, requestID, err)
		return nil, err
	}

	vectors, err := is.embedTexts(ctx, chunks)
	if err != nil {
		is.markFailed(ctx, transaction, doc, requestID, err)
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	entries := make([]index.Entry, len(chunks))
	for i := range chunks {
		entries[i] = index.Entry{Chunk: chunks[i], Vector: vectors[i]}
	}
	if err := is.store.Add(ctx, entries); err != nil {
		is.markFailed(ctx, transaction, doc, requestID, err)
		return nil, fmt.Errorf("index chunks: %w", err)
	}
	if err := is.store.Save(ctx); err != nil {
		is.markFailed(ctx, transaction, doc, requestID, err)
		return nil, fmt.Errorf("save index: %w", err)
	}

	if err := is.replaceChunkRows(ctx, tx, doc, chunks); err != nil {
		is.markFailed(ctx, transaction, doc, requestID, err)
		return nil, err
	}

	elapsed := time.Since(start)
	is.appendIngestTrail(ctx, requestID, []types.AuditEvent{
		ingestEvent(requestID, 1, types.EventDocumentUploaded, map[string]any{
			"document_id":  docID,
			"filename":     safeName,
			"size_bytes":   len(upload.Data),
			"content_type": upload.ContentType,
			"pages":        numPages,
		}, 0),
		ingestEvent(requestID, 2, types.EventChunksIndexed, map[string]any{
			"document_id": docID,
			"chunks":      len(chunks),
		}, float64(elapsed.Milliseconds())),
	})

	is.log.Info("Document indexed", "request_id", requestID, "doc_id", docID, "chunks", len(chunks), "duration_ms", elapsed.Milliseconds())

	return &UploadResult{
		DocumentID:    docID,
		Filename:      safeName,
		ChunksIndexed: len(chunks),
		Status:        "success",
		Message:       fmt.Sprintf("Document processed successfully with %d chunks", len(chunks)),
	}, nil
}

func (is *ingestService) ListDocuments(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Document, int64, error) {
	docs, err := is.documentRepo.List(ctx, tx, limit, offset)
	if err != nil {
		is.log.Error("Failed to list documents", "error", err)
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	total, err := is.documentRepo.Count(ctx, tx)
	if err != nil {
		is.log.Error("Failed to count documents", "error", err)
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	return docs, total, nil
}

// =====================================================================
// Pipeline steps
// =====================================================================

func (is *ingestService) validateUpload(upload DocumentUpload) (string, error) {
	name := strings.TrimSpace(upload.Filename)
	if name == "" {
		return "", fmt.Errorf("filename required: %w", ErrUnsupportedFileType)
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf", ".txt", ".md":
	default:
		return "", fmt.Errorf("%w: %s (expected pdf, txt, or md)", ErrUnsupportedFileType, ext)
	}
	if len(upload.Data) == 0 {
		return "", ErrEmptyDocument
	}
	if int64(len(upload.Data)) > is.limits.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, len(upload.Data), is.limits.MaxUploadBytes)
	}
	return ext, nil
}

func (is *ingestService) extractAndChunk(ctx context.Context, ext, docID string, data []byte) ([]types.Chunk, int, error) {
	var pages []types.Page
	switch ext {
	case ".pdf":
		if is.extractor == nil {
			return nil, 0, ErrPDFExtractionUnavailable
		}
		extracted, err := is.extractor.ExtractPages(ctx, data)
		if err != nil {
			return nil, 0, fmt.Errorf("extract pages: %w", err)
		}
		pages = extracted
	default:
		if !utf8.Valid(data) {
			return nil, 0, ErrInvalidEncoding
		}
		pages = []types.Page{{Number: 1, Text: string(data)}}
	}

	chunks := is.chunker.ChunkDocument(pages, docID)
	if len(chunks) == 0 {
		return nil, 0, ErrEmptyDocument
	}
	return chunks, len(pages), nil
}

func (is *ingestService) embedTexts(ctx context.Context, chunks []types.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	batchSize := is.limits.EmbedBatchSize
	numBatches := (len(texts) + batchSize - 1) / batchSize
	vecsByBatch := make([][][]float32, numBatches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(is.limits.EmbedWorkers)

	for b := 0; b < numBatches; b++ {
		b := b
		lo := b * batchSize
		hi := min(lo+batchSize, len(texts))
		g.Go(func() error {
			vecs, err := is.embedder.Embed(gctx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("batch %d: %w", b, err)
			}
			if len(vecs) != hi-lo {
				return fmt.Errorf("batch %d: embedding count mismatch (got %d want %d)", b, len(vecs), hi-lo)
			}
			vecsByBatch[b] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, batch := range vecsByBatch {
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// replaceChunkRows swaps the document's chunk rows for the new split in
// one transaction, then flips the document to indexed.
func (is *ingestService) replaceChunkRows(ctx context.Context, tx *gorm.DB, doc *types.Document, chunks []types.Chunk) (err error) {
	transaction := tx
	createdTx := false
	if transaction == nil {
		createdTx = true
		transaction = is.db.Begin()
		if transaction.Error != nil {
			return fmt.Errorf("failed to begin transaction: %w", transaction.Error)
		}
	}

	defer func() {
		if !createdTx {
			return
		}
		if err != nil {
			transaction.Rollback()
		} else {
			_ = transaction.Commit().Error
		}
	}()

	if err = is.chunkRepo.DeleteByDocumentID(ctx, transaction, doc.ID); err != nil {
		is.log.Error("Failed to delete stale chunks", "error", err, "doc_id", doc.DocID)
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	rows := make([]*types.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = &types.DocumentChunk{
			DocumentID:  doc.ID,
			ChunkID:     c.ChunkID,
			Ordinal:     c.Ordinal,
			Text:        c.Text,
			Page:        c.Page,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Embedded:    true,
			Metadata:    datatypes.JSON([]byte("{}")),
		}
	}
	if _, err = is.chunkRepo.Create(ctx, transaction, rows); err != nil {
		is.log.Error("Failed to persist chunks", "error", err, "doc_id", doc.DocID)
		return fmt.Errorf("persist chunks: %w", err)
	}

	if err = is.documentRepo.UpdateFields(ctx, transaction, doc.ID, map[string]interface{}{
		"chunk_count": len(chunks),
		"status":      types.DocumentStatusIndexed,
		"error":       "",
	}); err != nil {
		is.log.Error("Failed to update document status", "error", err, "doc_id", doc.DocID)
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// markFailed records the failure on the document row and in the audit
// trail. Both writes are best effort; the original error is what the
// caller reports.
func (is *ingestService) markFailed(ctx context.Context, tx *gorm.DB, doc *types.Document, requestID string, cause error) {
	if doc != nil {
		updErr := is.documentRepo.UpdateFields(ctx, tx, doc.ID, map[string]interface{}{
			"status": types.DocumentStatusFailed,
			"error":  cause.Error(),
		})
		if updErr != nil {
			is.log.Error("Failed to record document failure", "error", updErr, "doc_id", doc.DocID)
		}
	}
	docID := ""
	if doc != nil {
		docID = doc.DocID
	}
	is.appendIngestTrail(ctx, requestID, []types.AuditEvent{
		ingestEvent(requestID, 1, types.EventIngestFailed, map[string]any{
			"document_id": docID,
			"error":       cause.Error(),
		}, 0),
	})
}

func (is *ingestService) appendIngestTrail(ctx context.Context, requestID string, events []types.AuditEvent) {
	if is.auditService == nil {
		return
	}
	if err := is.auditService.Append(ctx, events); err != nil {
		is.log.Error("Failed to append ingest audit trail", "error", err, "request_id", requestID)
	}
}

func ingestEvent(requestID string, seq int, eventType string, data map[string]any, durationMS float64) types.AuditEvent {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	return types.AuditEvent{
		RequestID:  requestID,
		Seq:        seq,
		Stage:      types.StageIngestion,
		EventType:  eventType,
		Data:       datatypes.JSON(payload),
		DurationMS: durationMS,
	}
}
