package app

import (
	"github.com/gin-gonic/gin"

	internalhttp "github.com/clinvault/clinvault-backend/internal/http"
	httpH "github.com/clinvault/clinvault-backend/internal/http/handlers"
	"github.com/clinvault/clinvault-backend/internal/observability"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Document *httpH.DocumentHandler
	Query    *httpH.QueryHandler
	Audit    *httpH.AuditHandler
	Stats    *httpH.StatsHandler
	Tools    *httpH.ToolsHandler
}

func wireHandlers(log *logger.Logger, services Services, clients Clients, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(log, services.Stats),
		Document: httpH.NewDocumentHandler(log, services.Ingest, metrics),
		Query:    httpH.NewQueryHandler(log, services.Query, metrics),
		Audit:    httpH.NewAuditHandler(log, services.Audit),
		Stats:    httpH.NewStatsHandler(log, services.Stats),
		Tools:    httpH.NewToolsHandler(log, clients.Tools, metrics),
	}
}

func wireRouter(log *logger.Logger, metrics *observability.Metrics, handlers Handlers) *gin.Engine {
	return internalhttp.NewRouter(internalhttp.RouterConfig{
		Log:     log,
		Metrics: metrics,

		HealthHandler:   handlers.Health,
		DocumentHandler: handlers.Document,
		QueryHandler:    handlers.Query,
		AuditHandler:    handlers.Audit,
		StatsHandler:    handlers.Stats,
		ToolsHandler:    handlers.Tools,
	})
}
