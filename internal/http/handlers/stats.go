package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/http/response"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/services"
)

type StatsHandler struct {
	log   *logger.Logger
	stats services.StatsService
}

func NewStatsHandler(log *logger.Logger, stats services.StatsService) *StatsHandler {
	return &StatsHandler{
		log:   log.With("handler", "StatsHandler"),
		stats: stats,
	}
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	snap, err := h.stats.Snapshot(c.Request.Context(), nil)
	if err != nil {
		h.log.Error("Failed to build pipeline stats", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "stats_unavailable", err)
		return
	}
	response.RespondOK(c, snap)
}
