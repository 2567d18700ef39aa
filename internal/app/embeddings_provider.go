package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinvault/clinvault-backend/internal/platform/hashembed"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/platform/openai"
)

var newOpenAIClient = openai.NewClient

type EmbeddingsProvider string

const (
	// EmbeddingsProviderOpenAI embeds through the OpenAI API
	// (text-embedding-3-small, 1536 dimensions) and is the default.
	EmbeddingsProviderOpenAI EmbeddingsProvider = "openai"
	// EmbeddingsProviderMock is the deterministic feature-hash embedder
	// (384 dimensions) so ingestion and retrieval run without network
	// access or an API key.
	EmbeddingsProviderMock EmbeddingsProvider = "mock"
)

func ParseEmbeddingsProvider(raw string) (EmbeddingsProvider, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(EmbeddingsProviderOpenAI):
		return EmbeddingsProviderOpenAI, true
	case string(EmbeddingsProviderMock):
		return EmbeddingsProviderMock, true
	default:
		return "", false
	}
}

// resolveEmbeddings picks the embedder and the synthesis generator per
// EMBEDDINGS_PROVIDER. The openai provider requires OPENAI_API_KEY and
// fails the bootstrap without it. The mock provider always boots: it
// hash-embeds locally and still uses OpenAI for synthesis when a key is
// present, otherwise synthesis degrades to the pipeline fallback answer.
func resolveEmbeddings(log *logger.Logger, cfg Config) (openai.Embedder, openai.TextGenerator, error) {
	provider, ok := ParseEmbeddingsProvider(cfg.EmbeddingsProvider)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported embeddings provider %q", cfg.EmbeddingsProvider)
	}

	switch provider {
	case EmbeddingsProviderMock:
		log.Info("Selecting embeddings provider", "provider", provider)
		embedder := hashembed.New(log)

		client, err := newOpenAIClient(log)
		if err != nil {
			log.Warn("OpenAI unavailable; answers degrade to the fallback text", "error", err)
			return embedder, offlineGenerator{}, nil
		}
		return embedder, tuneGenerator(client, cfg), nil

	default:
		log.Info("Selecting embeddings provider", "provider", provider)
		client, err := newOpenAIClient(log)
		if err != nil {
			return nil, nil, fmt.Errorf("init openai client: %w", err)
		}
		tuned := tuneGenerator(client, cfg)
		return client, tuned, nil
	}
}

// tuneGenerator applies the synthesis temperature and output cap on top
// of the base client.
func tuneGenerator(client openai.Client, cfg Config) openai.Client {
	tuned := openai.WithTemperature(client, cfg.SynthesisTemperature)
	if cfg.SynthesisMaxTokens > 0 {
		tuned = openai.WithMaxOutputTokens(tuned, cfg.SynthesisMaxTokens)
	}
	return tuned
}

// offlineGenerator stands in for the LLM when mock embeddings run with
// no API key. Every call errors, which the orchestrator converts into
// its fallback answer, so query handling stays total.
type offlineGenerator struct{}

func (offlineGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	return "", fmt.Errorf("text generation requires OPENAI_API_KEY")
}
