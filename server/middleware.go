package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/drivebridge/drivebridge/observe"
)

// requestIDKey is the gin context key holding the request ID.
const requestIDKey = "request_id"

// RequestID injects a unique X-Request-Id header into every request/response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// AccessLog logs every request with method, path, status, and duration.
// Probe endpoints are skipped to keep the log readable.
func AccessLog(logger observe.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/ping" || path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := []observe.Field{
			observe.F("method", c.Request.Method),
			observe.F("path", path),
			observe.F("status", c.Writer.Status()),
			observe.F("duration_ms", time.Since(start).Milliseconds()),
			observe.F("client", c.ClientIP()),
		}
		if id := c.GetString(requestIDKey); id != "" {
			fields = append(fields, observe.F("request_id", id))
		}

		ctx := c.Request.Context()
		switch {
		case c.Writer.Status() >= 500:
			logger.Error(ctx, "request failed", fields...)
		case c.Writer.Status() >= 400:
			logger.Warn(ctx, "request rejected", fields...)
		default:
			logger.Info(ctx, "request served", fields...)
		}
	}
}

// Recovery converts panics into the standard 500 envelope and logs the stack.
func Recovery(logger observe.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					observe.F("panic", fmt.Sprintf("%v", r)),
					observe.F("stack", string(debug.Stack())),
					observe.F("path", c.Request.URL.Path),
					observe.F("method", c.Request.Method),
				)
				c.Abort()
				writeError(c, http.StatusInternalServerError, "internal", "internal server error")
			}
		}()
		c.Next()
	}
}
