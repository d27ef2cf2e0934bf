package middleware

import (
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestLoggerMiddleware tags each request with an id and logs it once it
// completes. The id is taken from X-Request-ID when the caller sends one.
func RequestLoggerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx := logger.WithRequestID(c.Request.Context(), id)
		if channel := c.Query("channel"); channel != "" {
			ctx = logger.WithCall(ctx, channel, c.Query("uid"))
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		if last := c.Errors.Last(); last != nil && c.Writer.Status() >= 500 {
			cl.LogError(ctx, last.Err, "request error")
		}
		cl.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
