package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"toolpipe/internal/logging"
	"toolpipe/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// requestContext tags each request with an id and a server span.
func requestContext(tracer *observability.TracerProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
		ctx, span := tracer.StartSpan(ctx, observability.SpanHTTPServer)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// accessLog logs one line per request.
func accessLog(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("%s %s %d %s request_id=%s",
			c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Round(time.Microsecond),
			observability.RequestIDFromContext(c.Request.Context()))
	}
}

// jsonOnly rejects request bodies that are not JSON.
func jsonOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			contentType := c.GetHeader("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, APIResponse{
					Success: false,
					Error:   "Content-Type must be application/json",
				})
				return
			}
		}
		c.Next()
	}
}
