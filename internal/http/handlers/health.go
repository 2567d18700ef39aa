package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/services"
)

const apiVersion = "1.0.0"

type HealthHandler struct {
	log   *logger.Logger
	stats services.StatsService
}

func NewHealthHandler(log *logger.Logger, stats services.StatsService) *HealthHandler {
	return &HealthHandler{
		log:   log.With("handler", "HealthHandler"),
		stats: stats,
	}
}

// HealthCheck reports liveness plus the current corpus shape. A failed
// stats read degrades to a bare liveness response rather than a 5xx so
// orchestrators keep the process alive while the database recovers.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	payload := gin.H{
		"status":    "healthy",
		"version":   apiVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.stats != nil {
		snap, err := h.stats.Snapshot(c.Request.Context(), nil)
		if err != nil {
			h.log.Warn("Health snapshot unavailable", "error", err)
		} else {
			payload["index_size"] = snap.Index.IndexSize
			payload["documents_indexed"] = snap.Documents
		}
	}
	c.JSON(http.StatusOK, payload)
}
