package handlers

import (
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

const (
	testRequestID = "req_1234567890ab"
	testSessionID = "sess_abcdef123456"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

// newTestRouter builds a bare engine with canned pipeline ids in the
// request context, standing in for the request-context middleware.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			RequestID: testRequestID,
			SessionID: testSessionID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	return r
}
