package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/clinvault/clinvault-backend/internal/http/handlers"
	httpMW "github.com/clinvault/clinvault-backend/internal/http/middleware"
	"github.com/clinvault/clinvault-backend/internal/observability"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	DocumentHandler *httpH.DocumentHandler
	QueryHandler    *httpH.QueryHandler
	AuditHandler    *httpH.AuditHandler
	StatsHandler    *httpH.StatsHandler
	ToolsHandler    *httpH.ToolsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("clinvault-api"))
	r.Use(httpMW.CORS())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Documents
		if cfg.DocumentHandler != nil {
			api.POST("/documents/upload", cfg.DocumentHandler.Upload)
			api.GET("/documents", cfg.DocumentHandler.List)
		}

		// Query pipeline
		if cfg.QueryHandler != nil {
			api.POST("/query", cfg.QueryHandler.Answer)
		}

		// Audit trails
		if cfg.AuditHandler != nil {
			api.GET("/audit/:request_id", cfg.AuditHandler.GetTrail)
		}

		// Stats
		if cfg.StatsHandler != nil {
			api.GET("/stats", cfg.StatsHandler.GetStats)
		}

		// Tools (direct access, outside the pipeline)
		if cfg.ToolsHandler != nil {
			api.GET("/tools", cfg.ToolsHandler.ListTools)
			api.POST("/tools/:name", cfg.ToolsHandler.CallTool)
		}
	}

	return r
}
