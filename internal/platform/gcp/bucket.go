package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// BucketService archives uploaded source documents in a single GCS
// bucket. The vector index and the database hold everything the query
// path needs; the bucket is the durable copy of the original bytes.
type BucketService interface {
	UploadFile(ctx context.Context, key string, file io.Reader) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, key string) error
	GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	GetPublicURL(key string) string
}

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   DocumentStorageMode
	emulatorHost  string
	bucketName    string
	cdnDomain     string
	publicBaseURL string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	storageCfg, err := ResolveDocumentStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve document storage config: %w", err)
	}
	return NewBucketServiceWithConfig(log, storageCfg)
}

func NewBucketServiceWithConfig(log *logger.Logger, storageCfg DocumentStorageConfig) (BucketService, error) {
	if err := ValidateDocumentStorageConfig(storageCfg); err != nil {
		return nil, fmt.Errorf("validate document storage config: %w", err)
	}
	if storageCfg.Mode == DocumentStorageModeLocal {
		return nil, fmt.Errorf("STORAGE_MODE=local uses the local file store, not GCS")
	}
	serviceLog := log.With("service", "BucketService")

	bucketName := os.Getenv("DOCUMENT_GCS_BUCKET_NAME")
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var DOCUMENT_GCS_BUCKET_NAME")
	}

	cdnDomain := os.Getenv("DOCUMENT_CDN_DOMAIN")
	publicBaseURL, publicBaseSource, err := resolveStoragePublicBaseURL(storageCfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	stClient, err := newStorageClientForMode(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Document storage initialized",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
		"public_base_source", publicBaseSource,
		"public_base_url", publicBaseURL,
		"bucket", bucketName,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		storageMode:   storageCfg.Mode,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"),
		bucketName:    bucketName,
		cdnDomain:     cdnDomain,
		publicBaseURL: publicBaseURL,
	}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg DocumentStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case DocumentStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case DocumentStorageModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		opts := []option.ClientOption{
			option.WithoutAuthentication(),
		}
		return storage.NewClient(ctx, opts...)
	default:
		return nil, &DocumentStorageConfigError{
			Code: DocumentStorageConfigErrorInvalidMode,
			Mode: string(storageCfg.Mode),
		}
	}
}

func resolveStoragePublicBaseURL(storageCfg DocumentStorageConfig) (baseURL string, source string, err error) {
	raw := strings.TrimSpace(os.Getenv("STORAGE_PUBLIC_BASE_URL"))
	if raw != "" {
		parsed, parseErr := url.Parse(raw)
		if parseErr != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
			return "", "", fmt.Errorf(
				"invalid STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443",
				raw,
			)
		}
		return strings.TrimRight(raw, "/"), "storage_public_base_url", nil
	}

	if storageCfg.IsEmulatorMode() {
		return strings.TrimRight(strings.TrimSpace(storageCfg.EmulatorHost), "/"), "storage_emulator_host", nil
	}

	return "", "gcs_default", nil
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, file io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(s, ".md"):
		return "text/markdown; charset=utf-8"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}

func (bs *bucketService) DeleteFile(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	o := bs.storageClient.Bucket(bs.bucketName).Object(key)
	if err := o.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, bs.bucketName, err)
	}
	return nil
}

func (bs *bucketService) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := bs.storageClient.Bucket(bs.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (bs *bucketService) GetPublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if bs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
	}
	if bs.storageMode == DocumentStorageModeGCSEmulator {
		if u := bs.publicEmulatorObjectMediaURL(bs.bucketName, key); u != "" {
			return u
		}
	}
	if bs.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", bs.publicBaseURL, bs.bucketName, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}

func (bs *bucketService) publicEmulatorObjectMediaURL(bucket, key string) string {
	base := strings.TrimRight(strings.TrimSpace(bs.publicBaseURL), "/")
	if base == "" {
		base = strings.TrimRight(strings.TrimSpace(bs.emulatorHost), "/")
	}
	if base == "" {
		return ""
	}
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		base,
		url.PathEscape(bucket),
		url.PathEscape(key),
	)
}

// IMPORTANT FIX:
// Do NOT `defer cancel()` before returning the reader.
// If you do, the context is canceled immediately and callers read 0 bytes.
// We attach the cancel to the reader's Close().
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (bs *bucketService) isEmulatorMode() bool {
	return bs != nil && IsEmulatorDocumentStorageMode(bs.storageMode) && strings.TrimSpace(bs.emulatorHost) != ""
}

func (bs *bucketService) emulatorObjectMediaURL(bucket, key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		strings.TrimRight(strings.TrimSpace(bs.emulatorHost), "/"),
		url.PathEscape(bucket),
		url.PathEscape(key),
	)
}

func (bs *bucketService) emulatorObjectMetaURL(bucket, key string) string {
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s",
		strings.TrimRight(strings.TrimSpace(bs.emulatorHost), "/"),
		url.PathEscape(bucket),
		url.PathEscape(key),
	)
}

func (bs *bucketService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if bs.isEmulatorMode() {
		ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, bs.emulatorObjectMediaURL(bs.bucketName, key), nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed creating emulator download request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed emulator download request: %w", err)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
	}

	// Cancel only after the reader is closed.
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)

	r, err := bs.storageClient.Bucket(bs.bucketName).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}

	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (bs *bucketService) GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	if bs.isEmulatorMode() {
		ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, bs.emulatorObjectMetaURL(bs.bucketName, key), nil)
		if err != nil {
			return nil, fmt.Errorf("failed creating emulator attrs request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed emulator attrs request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("emulator attrs failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var payload struct {
			Size        string `json:"size"`
			ContentType string `json:"contentType"`
			Updated     string `json:"updated"`
			ETag        string `json:"etag"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode emulator attrs: %w", err)
		}
		size, _ := strconv.ParseInt(strings.TrimSpace(payload.Size), 10, 64)
		updated := time.Time{}
		if ts := strings.TrimSpace(payload.Updated); ts != "" {
			if parsed, parseErr := time.Parse(time.RFC3339, ts); parseErr == nil {
				updated = parsed
			}
		}
		return &ObjectAttrs{
			Size:        size,
			ContentType: payload.ContentType,
			Updated:     updated,
			ETag:        payload.ETag,
		}, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	attrs, err := bs.storageClient.Bucket(bs.bucketName).Object(key).Attrs(ctx2)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}, nil
}
