package tools

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/http/response"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Server exposes the tool registry over HTTP. A tool that runs but fails
// still answers 200 with success=false; only an unknown tool or a bad
// request body gets an HTTP error status.
type Server struct {
	registry *Registry
	log      *logger.Logger
}

func NewServer(registry *Registry, log *logger.Logger) *Server {
	return &Server{
		registry: registry,
		log:      log.With("service", "ToolServer"),
	}
}

type executeRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

type executeResponse struct {
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error"`
}

// Router builds the tool server's route table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/tools", s.ListTools)
	r.POST("/tools/execute", s.ExecuteTool)
	r.GET("/health", s.Health)
	return r
}

// GET /tools
func (s *Server) ListTools(c *gin.Context) {
	response.RespondOK(c, gin.H{"tools": s.registry.Definitions()})
}

// POST /tools/execute
func (s *Server) ExecuteTool(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_tool_request", err)
		return
	}
	if req.ToolName == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_tool_request", fmt.Errorf("tool_name is required"))
		return
	}

	tool, ok := s.registry.Get(req.ToolName)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "tool_not_found", fmt.Errorf("Tool not found: %s", req.ToolName))
		return
	}

	s.log.Info("Tool execution requested", "tool", req.ToolName)
	result, err := tool.Execute(c.Request.Context(), req.Arguments)
	if err != nil {
		s.log.Warn("Tool execution failed", "tool", req.ToolName, "error", err)
		c.JSON(http.StatusOK, executeResponse{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, executeResponse{Success: true, Result: result})
}

// GET /health
func (s *Server) Health(c *gin.Context) {
	response.RespondOK(c, gin.H{"status": "healthy", "tools": s.registry.Len()})
}
