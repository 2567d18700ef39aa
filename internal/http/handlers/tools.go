package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/http/response"
	"github.com/clinvault/clinvault-backend/internal/observability"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/tools"
)

type toolCallRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// ToolsHandler exposes the tool registry directly, outside the query
// pipeline. Useful for smoke-testing the calculator and PHI detector
// without burning an LLM round trip.
type ToolsHandler struct {
	log     *logger.Logger
	client  tools.Client
	metrics *observability.Metrics
}

func NewToolsHandler(log *logger.Logger, client tools.Client, metrics *observability.Metrics) *ToolsHandler {
	return &ToolsHandler{
		log:     log.With("handler", "ToolsHandler"),
		client:  client,
		metrics: metrics,
	}
}

func (h *ToolsHandler) ListTools(c *gin.Context) {
	defs := h.client.ListTools(c.Request.Context())
	response.RespondOK(c, gin.H{
		"tools": defs,
		"count": len(defs),
	})
}

// CallTool executes one named tool with the posted arguments. Failures
// come back as 200s with the error recorded on the call, matching how
// the pipeline itself treats tool errors.
func (h *ToolsHandler) CallTool(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_tool_name", nil)
		return
	}

	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_tool_request", err)
		return
	}

	call := h.client.CallTool(c.Request.Context(), name, req.Arguments)
	status := "success"
	if call.Error != "" {
		status = "error"
	}
	h.metrics.IncToolCall(name, status)

	response.RespondOK(c, gin.H{
		"tool_name":   call.Tool,
		"success":     call.Error == "",
		"result":      call.Result,
		"error":       call.Error,
		"duration_ms": call.DurationMS,
	})
}
