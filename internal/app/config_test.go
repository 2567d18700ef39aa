package app

import (
	"os"
	"testing"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	// Setenv registers the restore; Unsetenv makes LookupEnv miss so the
	// defaults actually apply.
	for _, key := range []string{
		"MAX_UPLOAD_BYTES", "CHUNK_SIZE", "CHUNK_OVERLAP",
		"EMBED_BATCH_SIZE", "EMBED_CONCURRENCY",
		"SYNTHESIS_TEMPERATURE", "SYNTHESIS_MAX_TOKENS",
		"VECTOR_PROVIDER", "EMBEDDINGS_PROVIDER", "INDEX_DIR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := LoadConfig(log)

	if cfg.MaxUploadBytes != 20<<20 {
		t.Fatalf("MaxUploadBytes: want=%d got=%d", 20<<20, cfg.MaxUploadBytes)
	}
	if cfg.ChunkSize != 512 {
		t.Fatalf("ChunkSize: want=512 got=%d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 64 {
		t.Fatalf("ChunkOverlap: want=64 got=%d", cfg.ChunkOverlap)
	}
	if cfg.EmbedBatchSize != 100 {
		t.Fatalf("EmbedBatchSize: want=100 got=%d", cfg.EmbedBatchSize)
	}
	if cfg.EmbedWorkers != 4 {
		t.Fatalf("EmbedWorkers: want=4 got=%d", cfg.EmbedWorkers)
	}
	if cfg.SynthesisTemperature != 0.1 {
		t.Fatalf("SynthesisTemperature: want=0.1 got=%v", cfg.SynthesisTemperature)
	}
	if cfg.SynthesisMaxTokens != 2048 {
		t.Fatalf("SynthesisMaxTokens: want=2048 got=%d", cfg.SynthesisMaxTokens)
	}
	if cfg.VectorProvider != string(VectorProviderMemory) {
		t.Fatalf("VectorProvider: want=%q got=%q", VectorProviderMemory, cfg.VectorProvider)
	}
	if cfg.EmbeddingsProvider != string(EmbeddingsProviderOpenAI) {
		t.Fatalf("EmbeddingsProvider: want=%q got=%q", EmbeddingsProviderOpenAI, cfg.EmbeddingsProvider)
	}
	if cfg.IndexDir != "data/index" {
		t.Fatalf("IndexDir: want=%q got=%q", "data/index", cfg.IndexDir)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("CHUNK_SIZE", "256")
	t.Setenv("CHUNK_OVERLAP", "32")
	t.Setenv("EMBED_BATCH_SIZE", "50")
	t.Setenv("EMBED_CONCURRENCY", "8")
	t.Setenv("SYNTHESIS_TEMPERATURE", "0.0")
	t.Setenv("SYNTHESIS_MAX_TOKENS", "512")
	t.Setenv("GROUNDING_THRESHOLD", "0.9")
	t.Setenv("VECTOR_PROVIDER", "qdrant")
	t.Setenv("EMBEDDINGS_PROVIDER", "mock")
	t.Setenv("INDEX_DIR", "/var/lib/clinvault/index")

	cfg := LoadConfig(log)

	if cfg.MaxUploadBytes != 1048576 {
		t.Fatalf("MaxUploadBytes: want=1048576 got=%d", cfg.MaxUploadBytes)
	}
	if cfg.ChunkSize != 256 {
		t.Fatalf("ChunkSize: want=256 got=%d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 32 {
		t.Fatalf("ChunkOverlap: want=32 got=%d", cfg.ChunkOverlap)
	}
	if cfg.EmbedBatchSize != 50 {
		t.Fatalf("EmbedBatchSize: want=50 got=%d", cfg.EmbedBatchSize)
	}
	if cfg.EmbedWorkers != 8 {
		t.Fatalf("EmbedWorkers: want=8 got=%d", cfg.EmbedWorkers)
	}
	if cfg.SynthesisTemperature != 0.0 {
		t.Fatalf("SynthesisTemperature: want=0 got=%v", cfg.SynthesisTemperature)
	}
	if cfg.SynthesisMaxTokens != 512 {
		t.Fatalf("SynthesisMaxTokens: want=512 got=%d", cfg.SynthesisMaxTokens)
	}
	if cfg.GroundingThreshold != 0.9 {
		t.Fatalf("GroundingThreshold: want=0.9 got=%v", cfg.GroundingThreshold)
	}
	if cfg.VectorProvider != "qdrant" {
		t.Fatalf("VectorProvider: want=qdrant got=%q", cfg.VectorProvider)
	}
	if cfg.EmbeddingsProvider != "mock" {
		t.Fatalf("EmbeddingsProvider: want=mock got=%q", cfg.EmbeddingsProvider)
	}
	if cfg.IndexDir != "/var/lib/clinvault/index" {
		t.Fatalf("IndexDir: want=/var/lib/clinvault/index got=%q", cfg.IndexDir)
	}
}
