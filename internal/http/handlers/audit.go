package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/http/response"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/services"
)

type AuditHandler struct {
	log   *logger.Logger
	audit services.AuditService
}

func NewAuditHandler(log *logger.Logger, audit services.AuditService) *AuditHandler {
	return &AuditHandler{
		log:   log.With("handler", "AuditHandler"),
		audit: audit,
	}
}

// GetTrail returns the ordered audit events for one request id, 404
// when the id was never seen.
func (h *AuditHandler) GetTrail(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("request_id"))
	if requestID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_id", nil)
		return
	}

	events, err := h.audit.GetTrail(c.Request.Context(), nil, requestID)
	if err != nil {
		h.log.Error("Failed to load audit trail", "request_id", requestID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "audit_trail_failed", err)
		return
	}
	if len(events) == 0 {
		response.RespondError(c, http.StatusNotFound, "audit_trail_not_found",
			fmt.Errorf("no audit trail for request id %s", requestID))
		return
	}

	response.RespondOK(c, gin.H{
		"request_id": requestID,
		"events":     events,
		"count":      len(events),
	})
}
