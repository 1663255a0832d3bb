package middleware

import (
	"github.com/gin-gonic/gin"
	"marketplace_chat/pkg/errors"
)

// ErrorHandler отвечает по последней ошибке из c.Errors, если ответ еще не записан
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		statusCode := errors.HTTPStatusFromError(err.Err)

		message := err.Error()
		if statusCode >= 500 {
			// внутренние детали клиенту не отдаются
			message = errors.ErrInternalServer.Error()
		}

		c.JSON(statusCode, gin.H{
			"error": message,
		})
	}
}
