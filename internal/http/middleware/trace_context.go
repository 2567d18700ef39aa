package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
)

const headerTraceID = "X-Trace-Id"

// AttachTraceContext resolves the trace id for one request: an incoming
// X-Trace-Id header wins, then the active OTel span, then a fresh id.
// The pipeline request id minted by AttachRequestContext rides along in
// the trace data so log lines correlate with audit trails.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" {
			spanCtx := trace.SpanContextFromContext(c.Request.Context())
			if spanCtx.HasTraceID() {
				traceID = spanCtx.TraceID().String()
			}
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		requestID := ""
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			requestID = rd.RequestID
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: requestID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("trace_id", traceID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Next()
	}
}
