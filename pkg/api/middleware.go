package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evoengine/evoengine/pkg/taskqueue"
)

// securityHeaders sets standard security response headers on every response.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// dispatchAuth checks the shared-secret header the dispatcher attaches
// to /orchestrate and /worker deliveries. An empty secret disables the
// check, which is the appropriate default for a single-replica,
// loopback-only deployment; configuring one is required once dispatch
// crosses a network boundary to another replica.
func dispatchAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(taskqueue.DispatchSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid dispatch secret"})
			return
		}
		c.Next()
	}
}
