package app

import (
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/platform/qdrant"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
)

var (
	newFlatStore = func(dir string, log *logger.Logger) (index.Store, error) {
		return index.NewFlat(dir, log)
	}
	newQdrantVectorStore = qdrant.NewVectorStore
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider     VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL    VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL    VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorQdrantConfigFailed  VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed  VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector store bootstrap failed"
	}
	return fmt.Sprintf(
		"vector store bootstrap failed (code=%s provider=%q): %v",
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore picks the vector index named by VECTOR_PROVIDER and
// wraps it with operation metrics. The memory provider reopens any index
// persisted under IndexDir; the qdrant provider validates its env config
// and checks collection readiness before the app accepts traffic.
func resolveVectorStore(log *logger.Logger, cfg Config) (index.Store, error) {
	provider, ok := ParseVectorProvider(cfg.VectorProvider)
	if !ok {
		err := &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: strings.TrimSpace(cfg.VectorProvider),
			Cause:    fmt.Errorf("unsupported vector provider %q", cfg.VectorProvider),
		}
		log.Error(
			"Vector store provider selection failed",
			"provider", cfg.VectorProvider,
			"error_code", err.Code,
			"error", err,
		)
		return nil, err
	}

	switch provider {
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			classified := classifyVectorProviderBootstrapError(string(provider), err)
			log.Error(
				"Vector store provider bootstrap failed",
				"provider", provider,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, classified
		}

		log.Info(
			"Selecting vector store provider",
			"provider", provider,
			"qdrant_url", qcfg.URL,
			"qdrant_collection", qcfg.Collection,
			"qdrant_vector_dim", qcfg.VectorDim,
		)

		vs, err := newQdrantVectorStore(log, qcfg)
		if err != nil {
			classified := classifyVectorProviderBootstrapError(string(provider), err)
			log.Error(
				"Vector store provider bootstrap failed",
				"provider", provider,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, classified
		}
		return instrumentVectorStore(string(provider), vs), nil

	default:
		log.Info(
			"Selecting vector store provider",
			"provider", provider,
			"index_dir", cfg.IndexDir,
		)

		vs, err := newFlatStore(cfg.IndexDir, log)
		if err != nil {
			classified := classifyVectorProviderBootstrapError(string(provider), err)
			log.Error(
				"Vector store provider bootstrap failed",
				"provider", provider,
				"error_code", vectorProviderBootstrapErrorCode(classified),
				"error", classified,
			)
			return nil, classified
		}
		return instrumentVectorStore(string(provider), vs), nil
	}
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorConnectFailed,
			Provider: provider,
			Cause:    err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorConnectFailed,
			Provider: provider,
			Cause:    err,
		}
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorConnectFailed,
			Provider: provider,
			Cause:    err,
		}
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			return &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingQdrantURL,
				Provider: provider,
				Cause:    err,
			}
		case qdrant.ConfigErrorInvalidURL:
			return &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorInvalidQdrantURL,
				Provider: provider,
				Cause:    err,
			}
		case qdrant.ConfigErrorMissingCollection:
			return &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingQdrantColl,
				Provider: provider,
				Cause:    err,
			}
		case qdrant.ConfigErrorInvalidVectorDim:
			return &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorInvalidQdrantVector,
				Provider: provider,
				Cause:    err,
			}
		default:
			return &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorQdrantConfigFailed,
				Provider: provider,
				Cause:    err,
			}
		}
	}

	return &VectorProviderBootstrapError{
		Code:     VectorProviderBootstrapErrorProviderInitFailed,
		Provider: provider,
		Cause:    err,
	}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return VectorProviderBootstrapErrorConnectFailed
}
