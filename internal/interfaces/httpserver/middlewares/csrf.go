package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"threadline/internal/utils/platformerrors"
)

// CSRF enforces the double-submit check on state-changing requests that carry a session cookie.
// Safe methods and paths under exemptPrefixes skip the check.
func CSRF(cookies *Cookies, log zerolog.Logger, exemptPrefixes ...string) gin.HandlerFunc {
	cfg := cookies.Config()
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		for _, prefix := range exemptPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}
		// Without a session cookie there is no ambient credential to forge.
		if cookies.SessionToken(c) == "" {
			c.Next()
			return
		}

		cookie, err := c.Cookie(cfg.CSRFName)
		header := c.GetHeader(cfg.CSRFHeader)
		if err != nil || cookie == "" || header == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			platformerrors.WriteProblem(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerRoute,
				platformerrors.ErrorTypeForbidden, "csrf token missing or invalid", nil, "4b5c6d7e-8f9a-4b0c-9d1e-3f4a5b6c7d8e"), log)
			return
		}
		c.Next()
	}
}
