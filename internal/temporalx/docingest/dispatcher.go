package docingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/gorm"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/services"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

// Dispatcher is the IngestService used when a Temporal cluster is
// configured. UploadDocument stages the raw bytes, starts the
// document_ingest workflow and blocks on its result, so callers see the
// same synchronous response as the in-process path while the run itself
// is durable. ListDocuments goes straight to the inner service.
type Dispatcher struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
	inner     services.IngestService
	blobs     BlobStore
}

func NewDispatcher(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string, inner services.IngestService, blobs BlobStore) services.IngestService {
	return &Dispatcher{
		log:       log,
		tc:        tc,
		taskQueue: strings.TrimSpace(taskQueue),
		inner:     inner,
		blobs:     blobs,
	}
}

// UploadDocument ignores tx: the workflow runs on a worker with its own
// DB session, so the upload cannot join a caller transaction.
func (d *Dispatcher) UploadDocument(ctx context.Context, tx *gorm.DB, upload services.DocumentUpload) (*services.UploadResult, error) {
	requestID := strings.TrimSpace(upload.RequestID)
	if requestID == "" {
		requestID = utils.NewRequestID()
	}

	key := "inbox/" + requestID + "_" + utils.SanitizeFilename(upload.Filename)
	if _, err := d.blobs.SaveFile(ctx, key, bytes.NewReader(upload.Data)); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        "document-ingest-" + requestID,
		TaskQueue: d.taskQueue,
	}
	run, err := d.tc.ExecuteWorkflow(ctx, opts, WorkflowName, Input{
		RequestID:   requestID,
		Filename:    upload.Filename,
		ContentType: upload.ContentType,
		StorageKey:  key,
	})
	if err != nil {
		d.removeStaged(ctx, key)
		return nil, fmt.Errorf("start ingest workflow: %w", err)
	}

	if d.log != nil {
		d.log.Info("Dispatched ingest workflow", "workflow_id", opts.ID, "run_id", run.GetRunID(), "key", key)
	}

	var out Result
	if err := run.Get(ctx, &out); err != nil {
		return nil, mapWorkflowError(err)
	}

	return &services.UploadResult{
		DocumentID:    out.DocumentID,
		Filename:      out.Filename,
		ChunksIndexed: out.ChunksIndexed,
		Status:        out.Status,
		Message:       out.Message,
	}, nil
}

func (d *Dispatcher) ListDocuments(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.Document, int64, error) {
	return d.inner.ListDocuments(ctx, tx, limit, offset)
}

func (d *Dispatcher) removeStaged(ctx context.Context, key string) {
	if err := d.blobs.DeleteFile(ctx, key); err != nil && d.log != nil {
		d.log.Warn("Failed to remove staged upload", "key", key, "error", err)
	}
}

// mapWorkflowError converts the typed application errors the activity
// raises back into the ingest sentinels the HTTP layer branches on.
func mapWorkflowError(err error) error {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return err
	}
	switch appErr.Type() {
	case ErrTypeUnsupportedFileType:
		return services.ErrUnsupportedFileType
	case ErrTypeFileTooLarge:
		return services.ErrFileTooLarge
	case ErrTypeEmptyDocument:
		return services.ErrEmptyDocument
	case ErrTypeInvalidEncoding:
		return services.ErrInvalidEncoding
	case ErrTypePDFExtractionUnavailable:
		return services.ErrPDFExtractionUnavailable
	default:
		return err
	}
}
