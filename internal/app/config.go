package app

import (
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/safety"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

// Config carries every pipeline knob the wiring layer needs. All values
// come from the environment with working defaults, so a bare
// `clinvault serve` runs against local disk and the in-process index.
type Config struct {
	Port        string
	MetricsAddr string

	// Ingestion
	MaxUploadBytes int64
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
	EmbedWorkers   int

	// Synthesis
	SynthesisTemperature float64
	SynthesisMaxTokens   int

	// Safety thresholds
	GroundingThreshold  float64
	ConfidenceThreshold float64
	MaxInjectionScore   float64

	// Providers
	VectorProvider     string
	IndexDir           string
	EmbeddingsProvider string
	ToolServerURL      string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:        utils.GetEnv("PORT", "8000", log),
		MetricsAddr: utils.GetEnv("METRICS_ADDR", "", log),

		MaxUploadBytes: int64(utils.GetEnvAsInt("MAX_UPLOAD_BYTES", 20<<20, log)),
		ChunkSize:      utils.GetEnvAsInt("CHUNK_SIZE", 512, log),
		ChunkOverlap:   utils.GetEnvAsInt("CHUNK_OVERLAP", 64, log),
		EmbedBatchSize: utils.GetEnvAsInt("EMBED_BATCH_SIZE", 100, log),
		EmbedWorkers:   utils.GetEnvAsInt("EMBED_CONCURRENCY", 4, log),

		SynthesisTemperature: utils.GetEnvAsFloat("SYNTHESIS_TEMPERATURE", 0.1, log),
		SynthesisMaxTokens:   utils.GetEnvAsInt("SYNTHESIS_MAX_TOKENS", 2048, log),

		GroundingThreshold:  utils.GetEnvAsFloat("GROUNDING_THRESHOLD", safety.DefaultGroundingThreshold, log),
		ConfidenceThreshold: utils.GetEnvAsFloat("CONFIDENCE_THRESHOLD", safety.DefaultConfidenceThreshold, log),
		MaxInjectionScore:   utils.GetEnvAsFloat("MAX_INJECTION_SCORE", safety.DefaultMaxInjectionScore, log),

		VectorProvider:     utils.GetEnv("VECTOR_PROVIDER", string(VectorProviderMemory), log),
		IndexDir:           utils.GetEnv("INDEX_DIR", "data/index", log),
		EmbeddingsProvider: utils.GetEnv("EMBEDDINGS_PROVIDER", string(EmbeddingsProviderOpenAI), log),
		ToolServerURL:      utils.GetEnv("TOOL_SERVER_URL", "", log),
	}
}
