package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

const (
	headerRequestID = "X-Request-Id"
	headerSessionID = "X-Session-Id"
)

// AttachRequestContext mints the pipeline identifiers for one request.
// The request id is always fresh so audit trails never collide; the
// session id comes from the X-Session-Id header when the caller is
// continuing a conversation and is minted otherwise. Both are echoed
// back as response headers so a client can fetch `/api/audit/<id>` for
// the answer it just received.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := utils.NewRequestID()
		sessionID := strings.TrimSpace(c.GetHeader(headerSessionID))
		if sessionID == "" {
			sessionID = utils.NewSessionID()
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			RequestID: requestID,
			SessionID: sessionID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("request_id", requestID)
		c.Set("session_id", sessionID)
		c.Writer.Header().Set(headerRequestID, requestID)
		c.Writer.Header().Set(headerSessionID, sessionID)
		c.Next()
	}
}
