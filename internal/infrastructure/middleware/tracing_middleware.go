package middleware

import (
	"net/http"
	"strings"
	"time"

	apperrors "github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const callRoutePrefix = "/api/v1/call"

// TracingMiddleware opens a span per API request, named after the route.
// Call routes also carry the operation, the channel and uid from the query,
// and the code of the call error that failed them.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, route)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.host", c.Request.Host),
			attribute.String("http.user_agent", c.Request.UserAgent()),
			attribute.String("http.client_ip", c.ClientIP()),
		)
		if op := callOperation(c.Request.Method, route); op != "" {
			span.SetAttributes(tracing.OperationKey.String(op))
		}
		if channel := c.Query("channel"); channel != "" {
			span.SetAttributes(tracing.ChannelKey.String(channel))
		}
		if uid := c.Query("uid"); uid != "" {
			span.SetAttributes(tracing.UIDKey.String(uid))
		}

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		span.SetAttributes(
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int("http.response_size", c.Writer.Size()),
			attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
		)
		// The request logger runs first and echoes the id on the response.
		if id := c.Writer.Header().Get(requestIDHeader); id != "" {
			span.SetAttributes(tracing.RequestIDKey.String(id))
		}

		if last := c.Errors.Last(); last != nil {
			if appErr := apperrors.GetAppError(last.Err); appErr != nil {
				span.SetAttributes(tracing.ErrorCodeKey.String(string(appErr.Code)))
			}
			tracing.RecordError(ctx, last.Err)
		}
		if c.Writer.Status() >= 400 {
			span.SetStatus(codes.Error, c.Errors.String())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// callOperation names a call route by its path below the call prefix, e.g.
// "virtual-background.apply" or "screen-share.remove". PUT and DELETE add a
// verb; path parameters are dropped. Routes outside the call API have none.
func callOperation(method, route string) string {
	rest, ok := strings.CutPrefix(route, callRoutePrefix)
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return ""
	}
	var parts []string
	for _, seg := range strings.Split(rest, "/") {
		if seg == "" || strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") {
			continue
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		parts = []string{"state"}
	}
	switch method {
	case http.MethodDelete:
		parts = append(parts, "remove")
	case http.MethodPut:
		parts = append(parts, "set")
	}
	return strings.Join(parts, ".")
}
