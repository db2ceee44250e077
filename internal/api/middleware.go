// internal/api/middleware.go
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"kennel-notifications/internal/common/logger"

	"github.com/gin-gonic/gin"
)

// TriggerTokenAuth protects the trigger endpoint with a static bearer token.
// An empty expected token rejects every request with 503.
func TriggerTokenAuth(expected string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			logAuthFailure(c, log, http.StatusServiceUnavailable, "token_not_configured")
			failure(c, http.StatusServiceUnavailable, "TRIGGER_DISABLED", "Trigger token is not configured")
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logAuthFailure(c, log, http.StatusUnauthorized, "missing_auth")
			failure(c, http.StatusUnauthorized, "AUTH_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			logAuthFailure(c, log, http.StatusUnauthorized, "invalid_auth_format")
			failure(c, http.StatusUnauthorized, "AUTH_INVALID", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(expected)) != 1 {
			logAuthFailure(c, log, http.StatusUnauthorized, "invalid_token")
			failure(c, http.StatusUnauthorized, "AUTH_INVALID", "Invalid trigger token")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestLogger logs every request and recovers from handler panics.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error("panic in request handler", map[string]interface{}{
					"panic":     recovered,
					"method":    c.Request.Method,
					"path":      c.Request.URL.Path,
					"requestId": requestID(c),
				})
				failure(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				c.Abort()
			}
		}()

		c.Next()

		fields := map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latencyMs": time.Since(start).Milliseconds(),
			"clientIp":  c.ClientIP(),
			"requestId": requestID(c),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request failed", fields)
			return
		}
		log.Debug("request completed", fields)
	}
}

func logAuthFailure(c *gin.Context, log logger.Logger, status int, reason string) {
	log.Warn("trigger auth rejected", map[string]interface{}{
		"status":    status,
		"reason":    reason,
		"clientIp":  c.ClientIP(),
		"requestId": requestID(c),
	})
}

func requestID(c *gin.Context) string {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = c.GetHeader("X-Request-Id")
	}
	return id
}
