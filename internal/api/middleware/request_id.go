package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/shared/id"
)

// RequestIDHeader is the response header the control API's per-request id
// is echoed on, so a client can correlate its own logs with the daemon's.
const RequestIDHeader = "X-Request-Id"

const requestLoggerContextKey = "spaces.request_logger"

// RequestID assigns a ULID-based id to every inbound HTTP request, stamps
// it on the response header, and attaches a request-scoped logger to the
// gin context for handlers to pull via RequestLogger.
func RequestID(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := id.NewRequestID()
		c.Writer.Header().Set(RequestIDHeader, reqID.String())
		c.Set(requestLoggerContextKey, logger.WithRequestID(reqID))
		c.Next()
	}
}

// RequestLogger returns the request-scoped logger RequestID attached to c,
// falling back to fallback if the middleware wasn't installed.
func RequestLogger(c *gin.Context, fallback *logging.Logger) *logging.Logger {
	if v, ok := c.Get(requestLoggerContextKey); ok {
		if l, ok := v.(*logging.Logger); ok {
			return l
		}
	}
	return fallback
}
