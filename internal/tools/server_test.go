package tools

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testLogger(t)
	registry := NewRegistry(log, NewCalculator(log), NewPHIDetector(log))
	return NewServer(registry, log).Router()
}

func TestListToolsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	var payload struct {
		Tools []Definition `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Tools) != 2 {
		t.Fatalf("tools=%v, want 2 entries", payload.Tools)
	}
	if payload.Tools[0].Name != "calculator" || payload.Tools[1].Name != "phi_detector" {
		t.Fatalf("tools=%v, want calculator then phi_detector", payload.Tools)
	}
	if payload.Tools[0].Description == "" {
		t.Fatalf("calculator description is empty")
	}
}

func TestExecuteToolSuccess(t *testing.T) {
	r := newTestRouter(t)

	body := `{"tool_name":"calculator","arguments":{"operation":"add","a":2,"b":3}}`
	req := httptest.NewRequest(http.MethodPost, "/tools/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	var payload executeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Success {
		t.Fatalf("success=false, error=%q", payload.Error)
	}
	if payload.Result.(float64) != 5 {
		t.Fatalf("result=%v, want 5", payload.Result)
	}
	if payload.Error != "" {
		t.Fatalf("error=%q, want empty", payload.Error)
	}
}

func TestExecuteToolReportsToolError(t *testing.T) {
	r := newTestRouter(t)

	body := `{"tool_name":"calculator","arguments":{"operation":"divide","a":1,"b":0}}`
	req := httptest.NewRequest(http.MethodPost, "/tools/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	var payload executeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Success {
		t.Fatalf("success=true, want false")
	}
	if payload.Error != "Division by zero" {
		t.Fatalf("error=%q, want Division by zero", payload.Error)
	}
	if payload.Result != nil {
		t.Fatalf("result=%v, want nil", payload.Result)
	}
}

func TestExecuteToolUnknownToolIs404(t *testing.T) {
	r := newTestRouter(t)

	body := `{"tool_name":"translator","arguments":{}}`
	req := httptest.NewRequest(http.MethodPost, "/tools/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(rec.Body.String(), "Tool not found: translator") {
		t.Fatalf("body=%q, want tool-not-found message", rec.Body.String())
	}
}

func TestExecuteToolRejectsBadBody(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/tools/execute", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusOK)
	}
	var payload struct {
		Status string `json:"status"`
		Tools  int    `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "healthy" || payload.Tools != 2 {
		t.Fatalf("payload=%+v, want healthy with 2 tools", payload)
	}
}
