// Package middleware provides the HTTP middleware chain: request logging
// and panic recovery, both on the shared structured logger.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openrmt/openrmt/internal/observability/logging"
)

// RequestLogger logs one line per request with latency and status.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery converts panics into 500 responses and logs the panic value.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("http handler panic",
					logging.String("path", c.Request.URL.Path),
					logging.Any("panic", r),
				)
				c.AbortWithStatusJSON(500, gin.H{"code": "INTERNAL_ERROR", "message": "internal server error"})
			}
		}()
		c.Next()
	}
}
