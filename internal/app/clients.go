package app

import (
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/clinvault/clinvault-backend/internal/platform/gcp"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/platform/openai"
	"github.com/clinvault/clinvault-backend/internal/platform/pdfextract"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
	"github.com/clinvault/clinvault-backend/internal/services"
	"github.com/clinvault/clinvault-backend/internal/temporalx"
	"github.com/clinvault/clinvault-backend/internal/tools"
)

type Clients struct {
	Embedder  openai.Embedder
	Generator openai.TextGenerator

	Tools tools.Client

	Blobs       BlobStore
	StorageMode gcp.DocumentStorageMode

	VectorStore index.Store

	// PDFExtractor is the built-in text-layer reader, with Document AI
	// in front of it when the processor env vars are set.
	PDFExtractor services.PageExtractor

	// Temporal is nil when TEMPORAL_ADDRESS is unset; uploads then run
	// in-process.
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	embedder, generator, err := resolveEmbeddings(log, cfg)
	if err != nil {
		return Clients{}, err
	}

	var toolClient tools.Client
	if cfg.ToolServerURL != "" {
		toolClient = tools.NewHTTPClient(cfg.ToolServerURL, log)
	} else {
		registry := tools.NewRegistry(log, tools.NewCalculator(log), tools.NewPHIDetector(log))
		toolClient = tools.NewLocalClient(registry, log)
	}

	blobs, storageCfg, err := resolveBlobStoreFromEnv(log)
	if err != nil {
		return Clients{}, err
	}

	vectorStore, err := resolveVectorStore(log, cfg)
	if err != nil {
		return Clients{}, err
	}

	local := pdfextract.New(log)
	var extractor services.PageExtractor = local
	if doc, err := gcp.NewDocument(log); err != nil {
		log.Info("Document AI not configured; PDFs use the built-in extractor", "reason", err.Error())
	} else {
		extractor = pdfextract.WithFallback(log, doc, local)
	}

	tc, err := temporalx.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}

	return Clients{
		Embedder:     embedder,
		Generator:    generator,
		Tools:        toolClient,
		Blobs:        blobs,
		StorageMode:  storageCfg.Mode,
		VectorStore:  vectorStore,
		PDFExtractor: extractor,
		Temporal:     tc,
	}, nil
}
