package docingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/services"
)

type Activities struct {
	Log    *logger.Logger
	Ingest services.IngestService
	Blobs  BlobStore
}

// IngestStaged reads the staged upload back from blob storage and runs
// it through the regular ingest pipeline. The staged key is removed once
// the run is terminal; on retryable failures it stays put for the next
// attempt.
func (a *Activities) IngestStaged(ctx context.Context, in Input) (Result, error) {
	var res Result
	if a == nil || a.Ingest == nil || a.Blobs == nil {
		return res, fmt.Errorf("docingest: activity not configured")
	}

	key := strings.TrimSpace(in.StorageKey)
	if key == "" {
		return res, temporal.NewNonRetryableApplicationError("missing storage_key", "invalid_input", nil)
	}

	stopHB := a.startHeartbeat(ctx)
	defer stopHB()

	rc, err := a.Blobs.OpenFile(ctx, key)
	if err != nil {
		return res, fmt.Errorf("open staged upload %s: %w", key, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return res, fmt.Errorf("read staged upload %s: %w", key, err)
	}

	out, err := a.Ingest.UploadDocument(ctx, nil, services.DocumentUpload{
		RequestID:   in.RequestID,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Data:        data,
	})
	if err != nil {
		if errType := classifyIngestError(err); errType != "" {
			a.removeStaged(ctx, key)
			return res, temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
		}
		return res, err
	}

	a.removeStaged(ctx, key)

	res = Result{
		DocumentID:    out.DocumentID,
		Filename:      out.Filename,
		ChunksIndexed: out.ChunksIndexed,
		Status:        out.Status,
		Message:       out.Message,
	}
	return res, nil
}

func (a *Activities) removeStaged(ctx context.Context, key string) {
	if err := a.Blobs.DeleteFile(ctx, key); err != nil && a.Log != nil {
		a.Log.Warn("Failed to remove staged upload", "key", key, "error", err)
	}
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		hb := time.NewTicker(10 * time.Second)
		defer hb.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-hb.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

// classifyIngestError maps ingest validation sentinels to stable
// application error types. Anything else is treated as transient and
// left retryable.
func classifyIngestError(err error) string {
	switch {
	case errors.Is(err, services.ErrUnsupportedFileType):
		return ErrTypeUnsupportedFileType
	case errors.Is(err, services.ErrFileTooLarge):
		return ErrTypeFileTooLarge
	case errors.Is(err, services.ErrEmptyDocument):
		return ErrTypeEmptyDocument
	case errors.Is(err, services.ErrInvalidEncoding):
		return ErrTypeInvalidEncoding
	case errors.Is(err, services.ErrPDFExtractionUnavailable):
		return ErrTypePDFExtractionUnavailable
	default:
		return ""
	}
}
