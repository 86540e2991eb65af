package middlewares

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders sets the static response hardening headers. HSTS is sent only when enabled.
func SecurityHeaders(csp string, hsts bool, hstsMaxAge time.Duration) gin.HandlerFunc {
	hstsValue := fmt.Sprintf("max-age=%d; includeSubDomains", int64(hstsMaxAge.Seconds()))
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		if csp != "" {
			h.Set("Content-Security-Policy", csp)
		}
		if hsts {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		c.Next()
	}
}
