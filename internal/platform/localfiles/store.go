package localfiles

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

// FileStore archives uploaded source documents on local disk. It is the
// backend for STORAGE_MODE=local; the GCS bucket service covers the cloud
// modes. Keys are slash-separated relative paths, the same shape the bucket
// service uses, so the ingest service can switch backends without renaming
// objects.
type FileStore interface {
	SaveFile(ctx context.Context, key string, r io.Reader) (string, error)
	OpenFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	PathFor(key string) string
}

type fileStore struct {
	log  *logger.Logger
	root string
}

// New roots the store at DOCUMENT_STORAGE_DIR, default data/uploads.
func New(log *logger.Logger) FileStore {
	return NewWithRoot(log, utils.GetEnv("DOCUMENT_STORAGE_DIR", "data/uploads", log))
}

func NewWithRoot(log *logger.Logger, root string) FileStore {
	slog := log.With("service", "FileStore")
	return &fileStore{log: slog, root: filepath.Clean(root)}
}

// resolve maps a key onto a path under the store root. Keys that are empty,
// absolute, or climb out of the root are rejected before any disk access.
func (s *fileStore) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("file key required")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file key %q escapes the store root", key)
	}
	return filepath.Join(s.root, clean), nil
}

// SaveFile writes r to the key's path and returns that path. The write goes
// through a temp file in the same directory and a rename, so a crashed upload
// never leaves a half-written document behind for the extractor to read.
func (s *fileStore) SaveFile(ctx context.Context, key string, r io.Reader) (string, error) {
	ctx = ctxutil.Default(ctx)
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir store dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("store %s: %w", key, err)
	}

	s.log.Debug("Stored document file", "key", key, "bytes", n)
	return path, nil
}

func (s *fileStore) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctxutil.Default(ctx)
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

func (s *fileStore) DeleteFile(ctx context.Context, key string) error {
	_ = ctxutil.Default(ctx)
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListKeys walks the store and returns every stored key with the given
// prefix, sorted. In-flight temp files are skipped.
func (s *fileStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	_ = ctxutil.Default(ctx)
	out := []string{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	sort.Strings(out)
	return out, nil
}

// PathFor returns the on-disk path a key resolves to, or "" for an invalid
// key. It does not check that the file exists.
func (s *fileStore) PathFor(key string) string {
	path, err := s.resolve(key)
	if err != nil {
		return ""
	}
	return path
}
