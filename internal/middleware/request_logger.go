package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"marketplace_chat/pkg/logger"
)

func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		statusCode := c.Writer.Status()
		args := []any{
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", time.Since(start).String(),
			"request_id", c.GetString(requestIDKey),
		}

		// query не пишется: в нем может быть токен
		switch {
		case statusCode >= 500:
			log.Error("HTTP request", args...)
		case statusCode >= 400:
			log.Warn("HTTP request", args...)
		default:
			log.Info("HTTP request", args...)
		}
	}
}
