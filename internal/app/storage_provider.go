package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/clinvault/clinvault-backend/internal/platform/gcp"
	"github.com/clinvault/clinvault-backend/internal/platform/localfiles"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

var (
	newLocalFileStore          = localfiles.New
	newBucketServiceWithConfig = gcp.NewBucketServiceWithConfig
)

// BlobStore unifies the local file store and the GCS bucket service for
// everything the pipeline touches in document storage: ingestion archives
// uploads with SaveFile, the Temporal ingest activity reads staged bytes
// back with OpenFile and cleans up with DeleteFile.
type BlobStore interface {
	SaveFile(ctx context.Context, key string, r io.Reader) (string, error)
	OpenFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, key string) error
}

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "document storage bootstrap failed"
	}
	return fmt.Sprintf(
		"document storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBlobStoreFromEnv resolves STORAGE_MODE and opens the matching
// store. Local mode writes under DOCUMENT_STORAGE_DIR; gcs and
// gcs_emulator modes go through the bucket service.
func resolveBlobStoreFromEnv(log *logger.Logger) (BlobStore, gcp.DocumentStorageConfig, error) {
	storageCfg, err := gcp.ResolveDocumentStorageConfigFromEnv()
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Document storage provider selection failed",
			"mode", storageCfg.Mode,
			"mode_source", storageCfg.ModeSource(),
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, storageCfg, classified
	}

	store, err := resolveBlobStore(log, storageCfg)
	return store, storageCfg, err
}

func resolveBlobStore(log *logger.Logger, storageCfg gcp.DocumentStorageConfig) (BlobStore, error) {
	modeSource := storageCfg.ModeSource()

	if !gcp.IsSupportedDocumentStorageMode(storageCfg.Mode) {
		err := &StorageProviderBootstrapError{
			Code:         StorageProviderBootstrapErrorInvalidMode,
			Mode:         string(storageCfg.Mode),
			EmulatorHost: storageCfg.EmulatorHost,
			Cause:        fmt.Errorf("unsupported document storage mode %q", storageCfg.Mode),
		}
		log.Error(
			"Document storage provider selection failed",
			"mode", storageCfg.Mode,
			"mode_source", modeSource,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", err.Code,
			"error", err,
		)
		return nil, err
	}

	log.Info(
		"Selecting document storage provider",
		"mode", storageCfg.Mode,
		"mode_source", modeSource,
		"compatibility_fallback", storageCfg.CompatibilityFallback,
		"emulator_host", storageCfg.EmulatorHost,
	)

	if storageCfg.Mode == gcp.DocumentStorageModeLocal {
		return newLocalFileStore(log), nil
	}

	bucket, err := newBucketServiceWithConfig(log, storageCfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Document storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"mode_source", modeSource,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return &bucketBlobStore{bucket: bucket}, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.DocumentStorageConfig, err error) error {
	var cfgErr *gcp.DocumentStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.DocumentStorageConfigErrorInvalidMode:
			return &StorageProviderBootstrapError{
				Code:         StorageProviderBootstrapErrorInvalidMode,
				Mode:         string(storageCfg.Mode),
				EmulatorHost: storageCfg.EmulatorHost,
				Cause:        err,
			}
		case gcp.DocumentStorageConfigErrorMissingEmulatorHost:
			return &StorageProviderBootstrapError{
				Code:         StorageProviderBootstrapErrorMissingEmulatorHost,
				Mode:         string(storageCfg.Mode),
				EmulatorHost: storageCfg.EmulatorHost,
				Cause:        err,
			}
		case gcp.DocumentStorageConfigErrorInvalidEmulatorHost:
			return &StorageProviderBootstrapError{
				Code:         StorageProviderBootstrapErrorInvalidEmulatorHost,
				Mode:         string(storageCfg.Mode),
				EmulatorHost: storageCfg.EmulatorHost,
				Cause:        err,
			}
		}
	}

	return &StorageProviderBootstrapError{
		Code:         StorageProviderBootstrapErrorConnectFailed,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}

// bucketBlobStore adapts the GCS bucket service to the BlobStore shape
// the rest of the app programs against.
type bucketBlobStore struct {
	bucket gcp.BucketService
}

func (b *bucketBlobStore) SaveFile(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := b.bucket.UploadFile(ctx, key, r); err != nil {
		return "", err
	}
	return b.bucket.GetPublicURL(key), nil
}

func (b *bucketBlobStore) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.bucket.DownloadFile(ctx, key)
}

func (b *bucketBlobStore) DeleteFile(ctx context.Context, key string) error {
	return b.bucket.DeleteFile(ctx, key)
}
