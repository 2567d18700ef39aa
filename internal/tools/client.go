package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Client is what the pipeline calls tools through. CallTool never returns
// an error; failures of any kind land in the ToolCall's Error field so the
// pipeline can keep going.
type Client interface {
	ListTools(ctx context.Context) []Definition
	CallTool(ctx context.Context, name string, args map[string]any) types.ToolCall
}

const (
	listTimeout = 5 * time.Second
	callTimeout = 10 * time.Second
)

// HTTPClient talks to a remote tool server.
type HTTPClient struct {
	baseURL    string
	listClient *http.Client
	callClient *http.Client
	log        *logger.Logger
}

func NewHTTPClient(baseURL string, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		listClient: &http.Client{Timeout: listTimeout},
		callClient: &http.Client{Timeout: callTimeout},
		log:        log.With("service", "ToolClient"),
	}
}

func (c *HTTPClient) ListTools(ctx context.Context) []Definition {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		c.log.Error("Failed to build tool list request", "error", err)
		return nil
	}
	resp, err := c.listClient.Do(req)
	if err != nil {
		c.log.Error("Failed to list tools", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("Failed to list tools", "status", resp.StatusCode)
		return nil
	}

	var payload struct {
		Tools []Definition `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Error("Failed to decode tool list", "error", err)
		return nil
	}
	return payload.Tools
}

func (c *HTTPClient) CallTool(ctx context.Context, name string, args map[string]any) (call types.ToolCall) {
	started := time.Now()
	call = types.ToolCall{Tool: name, Args: args, Timestamp: started.UTC()}
	defer func() { call.DurationMS = time.Since(started).Milliseconds() }()

	c.log.Info("Calling tool", "tool", name)

	body, err := json.Marshal(executeRequest{ToolName: name, Arguments: args})
	if err != nil {
		call.Error = err.Error()
		return call
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tools/execute", bytes.NewReader(body))
	if err != nil {
		call.Error = err.Error()
		return call
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.callClient.Do(req)
	if err != nil {
		c.log.Error("Tool call failed", "tool", name, "error", err)
		call.Error = err.Error()
		return call
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("Tool call failed", "tool", name, "status", resp.StatusCode)
		call.Error = fmt.Sprintf("tool server returned status %d", resp.StatusCode)
		return call
	}

	var payload executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		call.Error = err.Error()
		return call
	}
	if !payload.Success {
		call.Error = payload.Error
		if call.Error == "" {
			call.Error = "tool execution failed"
		}
		return call
	}
	call.Result = payload.Result
	return call
}

// LocalClient runs registry tools in-process, for single-binary deployments
// and tests.
type LocalClient struct {
	registry *Registry
	log      *logger.Logger
}

func NewLocalClient(registry *Registry, log *logger.Logger) *LocalClient {
	return &LocalClient{
		registry: registry,
		log:      log.With("service", "ToolClient"),
	}
}

func (c *LocalClient) ListTools(ctx context.Context) []Definition {
	return c.registry.Definitions()
}

func (c *LocalClient) CallTool(ctx context.Context, name string, args map[string]any) (call types.ToolCall) {
	started := time.Now()
	call = types.ToolCall{Tool: name, Args: args, Timestamp: started.UTC()}
	defer func() { call.DurationMS = time.Since(started).Milliseconds() }()

	tool, ok := c.registry.Get(name)
	if !ok {
		call.Error = fmt.Sprintf("Tool not found: %s", name)
		return call
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		c.log.Warn("Tool execution failed", "tool", name, "error", err)
		call.Error = err.Error()
		return call
	}
	call.Result = result
	return call
}
