package tools

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newToolTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testLogger(t)
	registry := NewRegistry(log, NewCalculator(log), NewPHIDetector(log))
	srv := httptest.NewServer(NewServer(registry, log).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientCallToolSuccess(t *testing.T) {
	srv := newToolTestServer(t)
	client := NewHTTPClient(srv.URL, testLogger(t))

	call := client.CallTool(context.Background(), "calculator", map[string]any{
		"operation": "multiply", "a": 4.0, "b": 2.5,
	})

	if call.Error != "" {
		t.Fatalf("call error=%q, want none", call.Error)
	}
	if call.Result.(float64) != 10 {
		t.Fatalf("result=%v, want 10", call.Result)
	}
	if call.Tool != "calculator" {
		t.Fatalf("tool=%q, want calculator", call.Tool)
	}
	if call.Timestamp.IsZero() {
		t.Fatalf("timestamp not set")
	}
}

func TestHTTPClientCallToolSurfacesToolError(t *testing.T) {
	srv := newToolTestServer(t)
	client := NewHTTPClient(srv.URL, testLogger(t))

	call := client.CallTool(context.Background(), "calculator", map[string]any{
		"operation": "divide", "a": 1.0, "b": 0.0,
	})

	if call.Error != "Division by zero" {
		t.Fatalf("error=%q, want Division by zero", call.Error)
	}
	if call.Result != nil {
		t.Fatalf("result=%v, want nil", call.Result)
	}
}

func TestHTTPClientCallToolUnknownTool(t *testing.T) {
	srv := newToolTestServer(t)
	client := NewHTTPClient(srv.URL, testLogger(t))

	call := client.CallTool(context.Background(), "translator", nil)
	if call.Error != "tool server returned status 404" {
		t.Fatalf("error=%q, want status 404 message", call.Error)
	}
}

func TestHTTPClientNeverPanicsWhenServerGone(t *testing.T) {
	srv := newToolTestServer(t)
	url := srv.URL
	srv.Close()
	client := NewHTTPClient(url, testLogger(t))

	call := client.CallTool(context.Background(), "calculator", map[string]any{
		"operation": "add", "a": 1.0, "b": 2.0,
	})
	if call.Error == "" {
		t.Fatalf("call error empty, want transport failure recorded")
	}

	if tools := client.ListTools(context.Background()); tools != nil {
		t.Fatalf("tools=%v, want nil when server is unreachable", tools)
	}
}

func TestHTTPClientListTools(t *testing.T) {
	srv := newToolTestServer(t)
	client := NewHTTPClient(srv.URL, testLogger(t))

	tools := client.ListTools(context.Background())
	if len(tools) != 2 {
		t.Fatalf("tools=%v, want 2 entries", tools)
	}
	if tools[0].Name != "calculator" || tools[1].Name != "phi_detector" {
		t.Fatalf("tools=%v, want calculator then phi_detector", tools)
	}
}

func TestLocalClientMirrorsHTTPBehavior(t *testing.T) {
	log := testLogger(t)
	registry := NewRegistry(log, NewCalculator(log), NewPHIDetector(log))
	client := NewLocalClient(registry, log)
	ctx := context.Background()

	call := client.CallTool(ctx, "calculator", map[string]any{"operation": "add", "a": 2.0, "b": 3.0})
	if call.Error != "" || call.Result.(float64) != 5 {
		t.Fatalf("call=%+v, want result 5", call)
	}

	call = client.CallTool(ctx, "translator", nil)
	if call.Error != "Tool not found: translator" {
		t.Fatalf("error=%q, want Tool not found: translator", call.Error)
	}

	if tools := client.ListTools(ctx); len(tools) != 2 {
		t.Fatalf("tools=%v, want 2 entries", tools)
	}
}
