package middlewares

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"threadline/internal/domain/ratelimit"
	"threadline/internal/utils/platformerrors"
)

// Decider is the rate-limit engine as seen by the HTTP layer.
type Decider interface {
	Decide(ctx context.Context, method, path, identity string) ratelimit.Decision
}

// RateLimitMiddleware applies the profile matched for the request and reports it in RateLimit-* headers.
func RateLimitMiddleware(engine Decider, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		d := engine.Decide(c.Request.Context(), c.Request.Method, c.Request.URL.Path, rateKey(c))

		h := c.Writer.Header()
		h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("RateLimit-Reset", strconv.FormatInt(ratelimit.Seconds(d.ResetAfter), 10))

		if !d.Allowed {
			retry := ratelimit.Seconds(d.RetryAfter)
			if retry < 1 {
				retry = 1
			}
			h.Set("Retry-After", strconv.FormatInt(retry, 10))
			platformerrors.WriteProblem(c, platformerrors.NewErrorWithContext(c.Request.Context(), platformerrors.LayerRoute,
				platformerrors.ErrorTypeRateLimited, "too many requests", nil, "5c6d7e8f-9a0b-4c1d-8e2f-4a5b6c7d8e9f",
				map[string]any{"retry_after_seconds": retry, "profile": d.Profile}), log)
			return
		}
		c.Next()
	}
}

func rateKey(c *gin.Context) string {
	if p, ok := PrincipalFromContext(c); ok {
		return "user:" + p.User.ID
	}
	if ip := clientIP(c.ClientIP()); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}

func clientIP(raw string) string {
	if raw == "" {
		return ""
	}
	if ip := net.ParseIP(raw); ip != nil {
		return ip.String()
	}
	return raw
}
