package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
)

func TestAttachTraceContextHonorsIncomingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var td *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachRequestContext())
	r.Use(AttachTraceContext())
	r.GET("/api/stats", func(c *gin.Context) {
		td = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-Trace-Id", "trace-from-gateway")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if td == nil {
		t.Fatal("expected trace data in context")
	}
	if td.TraceID != "trace-from-gateway" {
		t.Fatalf("TraceID=%q, want trace-from-gateway", td.TraceID)
	}
	if got := rec.Header().Get("X-Trace-Id"); got != "trace-from-gateway" {
		t.Fatalf("X-Trace-Id=%q, want echo of incoming header", got)
	}
	if td.RequestID == "" {
		t.Fatal("expected pipeline request id carried into trace data")
	}
	if td.RequestID != rec.Header().Get("X-Request-Id") {
		t.Fatalf("trace RequestID=%q, want %q", td.RequestID, rec.Header().Get("X-Request-Id"))
	}
}

func TestAttachTraceContextMintsWhenAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/api/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatal("expected minted trace id header")
	}
}
