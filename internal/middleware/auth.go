package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"inapppay/internal/response"
	"inapppay/pkg/logging"
)

// APIKeyAuth guards a route group with a shared API key. An empty key
// disables the check.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		// If not passed via header, try to get from query parameters
		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			provided = c.Query("api_key")
		}

		if provided == "" {
			response.AbortJSON(c, http.StatusUnauthorized, "Missing api_key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			response.AbortJSON(c, http.StatusUnauthorized, "Invalid api_key")
			return
		}

		c.Set("request_time", time.Now())
		c.Next()
	}
}

// RequestLogger logs each request through pkg/logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		if status >= http.StatusInternalServerError {
			logging.Errorf("%s %s %d %s %s", c.Request.Method, path, status, latency, c.ClientIP())
			return
		}
		logging.Infof("%s %s %d %s %s", c.Request.Method, path, status, latency, c.ClientIP())
	}
}
