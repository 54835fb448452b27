package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"executor-go/commonlib/log"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// =============================================================================
// Request ID Middleware
// =============================================================================

// RequestID adds a unique request ID to each request. An incoming
// X-Request-ID header is kept; otherwise newID is used, or a UUID when nil.
func RequestID(newID func() string) gin.HandlerFunc {
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = newID()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		ctx := log.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// =============================================================================
// Logger Middleware
// =============================================================================

// Logger logs request and response details.
func Logger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []log.Field{
			log.String("request_id", c.GetString(RequestIDKey)),
			log.String("method", c.Request.Method),
			log.String("path", path),
			log.String("query", query),
			log.Int("status", status),
			log.Duration("latency", time.Since(start)),
			log.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, log.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// =============================================================================
// Recovery Middleware
// =============================================================================

// Recovery recovers from panics.
func Recovery(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString(RequestIDKey)
				logger.Error("Panic recovered",
					log.String("request_id", requestID),
					log.Any("error", err),
					log.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "Internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}
