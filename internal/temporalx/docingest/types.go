package docingest

import (
	"context"
	"io"
)

const (
	WorkflowName   = "document_ingest"
	ActivityIngest = "document_ingest_staged"
)

// Application error types carried across the workflow boundary. The
// dispatcher maps them back to the ingest sentinels so HTTP status
// mapping behaves the same whether an upload ran in-process or through
// Temporal.
const (
	ErrTypeUnsupportedFileType      = "unsupported_file_type"
	ErrTypeFileTooLarge             = "file_too_large"
	ErrTypeEmptyDocument            = "empty_document"
	ErrTypeInvalidEncoding          = "invalid_encoding"
	ErrTypePDFExtractionUnavailable = "pdf_extraction_unavailable"
)

// BlobStore is the slice of document storage the durable ingest path
// needs: the dispatcher stages raw upload bytes, the activity reads them
// back on the worker and removes them once the run is terminal. Both
// sides must point at the same backend (shared bucket, or a shared dir
// when the worker runs in-process).
type BlobStore interface {
	SaveFile(ctx context.Context, key string, r io.Reader) (string, error)
	OpenFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, key string) error
}

// Input identifies one staged upload. The raw bytes never transit
// workflow history; only the staging key does.
type Input struct {
	RequestID   string `json:"request_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
}

// Result mirrors the in-process upload result so callers get the same
// response shape either way.
type Result struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}
