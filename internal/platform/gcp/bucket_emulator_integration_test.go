package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

func TestBucketServiceEmulatorCRUDLifecycle(t *testing.T) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("CV_RUN_GCS_EMULATOR_INTEGRATION")), "true") {
		t.Skip("set CV_RUN_GCS_EMULATOR_INTEGRATION=true to run emulator integration tests")
	}

	emulatorHost := strings.TrimSpace(os.Getenv("CV_GCS_EMULATOR_HOST"))
	if emulatorHost == "" {
		emulatorHost = strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))
	}
	if emulatorHost == "" {
		emulatorHost = "http://127.0.0.1:4443"
	}
	emulatorHost = strings.TrimRight(emulatorHost, "/")

	if !isEmulatorReachable(t, emulatorHost) {
		t.Skipf("storage emulator not reachable at %s", emulatorHost)
	}

	suffix := time.Now().UnixNano()
	documentBucket := fmt.Sprintf("cv-it-documents-%d", suffix)
	createBucketIfMissing(t, emulatorHost, documentBucket)

	t.Setenv("DOCUMENT_GCS_BUCKET_NAME", documentBucket)
	t.Setenv("DOCUMENT_CDN_DOMAIN", "")
	t.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)
	t.Setenv("STORAGE_PUBLIC_BASE_URL", emulatorHost)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	bucket, err := NewBucketServiceWithConfig(log, DocumentStorageConfig{
		Mode:         DocumentStorageModeGCSEmulator,
		EmulatorHost: emulatorHost,
	})
	if err != nil {
		t.Fatalf("NewBucketServiceWithConfig: %v", err)
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("documents/it-%d", suffix)
	keyA := prefix + "/a.txt"
	keyB := prefix + "/b.txt"

	if err := bucket.UploadFile(ctx, keyA, strings.NewReader("alpha")); err != nil {
		t.Fatalf("UploadFile(%s): %v", keyA, err)
	}
	if err := bucket.UploadFile(ctx, keyB, strings.NewReader("beta")); err != nil {
		t.Fatalf("UploadFile(%s): %v", keyB, err)
	}

	waitForKeys(t, bucket, ctx, prefix, keyA, keyB)

	body, err := downloadWithRetry(ctx, bucket, keyA, 5*time.Second)
	if err != nil {
		t.Fatalf("downloadWithRetry(%s): %v", keyA, err)
	}
	if string(body) != "alpha" {
		t.Fatalf("download body: want=%q got=%q", "alpha", string(body))
	}

	attrs, err := bucket.GetObjectAttrs(ctx, keyA)
	if err != nil {
		t.Fatalf("GetObjectAttrs(%s): %v", keyA, err)
	}
	if attrs.Size != int64(len("alpha")) {
		t.Fatalf("attrs.Size: want=%d got=%d", len("alpha"), attrs.Size)
	}

	keys, err := bucket.ListKeys(ctx, prefix)
	if err != nil {
		t.Fatalf("ListKeys(%s): %v", prefix, err)
	}
	if !slices.Contains(keys, keyA) || !slices.Contains(keys, keyB) {
		t.Fatalf("ListKeys missing uploaded keys: got=%v", keys)
	}

	if err := bucket.DeleteFile(ctx, keyA); err != nil {
		t.Fatalf("DeleteFile(%s): %v", keyA, err)
	}
	keys, err = bucket.ListKeys(ctx, prefix)
	if err != nil {
		t.Fatalf("ListKeys after delete: %v", err)
	}
	if slices.Contains(keys, keyA) {
		t.Fatalf("expected %s to be deleted; keys=%v", keyA, keys)
	}
	if !slices.Contains(keys, keyB) {
		t.Fatalf("expected %s to remain; keys=%v", keyB, keys)
	}
}

func isEmulatorReachable(t *testing.T, emulatorHost string) bool {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(emulatorHost + "/storage/v1/b?project=local-dev")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func createBucketIfMissing(t *testing.T, emulatorHost string, bucket string) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"name": bucket})
	if err != nil {
		t.Fatalf("json.Marshal(bucket): %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(
		http.MethodPost,
		emulatorHost+"/storage/v1/b?project=local-dev",
		bytes.NewReader(payload),
	)
	if err != nil {
		t.Fatalf("http.NewRequest(create bucket): %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("create bucket %q: %v", bucket, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return
	}
	b, _ := io.ReadAll(resp.Body)
	t.Fatalf("create bucket %q failed: status=%d body=%s", bucket, resp.StatusCode, strings.TrimSpace(string(b)))
}

func waitForKeys(
	t *testing.T,
	bucket BucketService,
	ctx context.Context,
	prefix string,
	keys ...string,
) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last []string
	for {
		got, err := bucket.ListKeys(ctx, prefix)
		if err == nil {
			last = got
			ok := true
			for _, k := range keys {
				if !slices.Contains(got, k) {
					ok = false
					break
				}
			}
			if ok {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for keys %v under prefix %q; last=%v", keys, prefix, last)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func downloadWithRetry(
	ctx context.Context,
	bucket BucketService,
	key string,
	timeout time.Duration,
) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		rc, err := bucket.DownloadFile(ctx, key)
		if err == nil {
			body, readErr := io.ReadAll(rc)
			_ = rc.Close()
			if readErr == nil {
				return body, nil
			}
			lastErr = readErr
		} else {
			lastErr = err
		}
		if time.Now().After(deadline) {
			return nil, lastErr
		}
		time.Sleep(100 * time.Millisecond)
	}
}
