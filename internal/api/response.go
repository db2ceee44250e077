// internal/api/response.go
package api

import (
	apperrors "kennel-notifications/internal/common/errors"

	"github.com/gin-gonic/gin"
)

func failure(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func failureFromError(c *gin.Context, status int, err error) {
	stdErr := apperrors.Normalize(err)
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":      string(stdErr.Code),
			"message":   stdErr.Message,
			"details":   stdErr.Details,
			"retryable": stdErr.Retryable,
		},
	})
}
