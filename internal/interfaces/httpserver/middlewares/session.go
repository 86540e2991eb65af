package middlewares

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"threadline/internal/domain/auth"
	"threadline/internal/domain/session"
	"threadline/internal/utils/idgen"
	"threadline/internal/utils/platformerrors"
)

const principalKey = "principal"

// Authenticator resolves a session token into the calling principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, meta session.Metadata) (*auth.Principal, error)
}

// CookieConfig names and scopes the session and CSRF cookies.
type CookieConfig struct {
	SessionName string
	CSRFName    string
	CSRFHeader  string
	Domain      string
	Secure      bool
}

// Cookies writes the session and CSRF cookies.
type Cookies struct {
	cfg CookieConfig
}

func NewCookies(cfg CookieConfig) *Cookies {
	return &Cookies{cfg: cfg}
}

func (k *Cookies) Config() CookieConfig {
	return k.cfg
}

// SetSession stores the session token (HttpOnly) and a fresh readable CSRF token that share its lifetime.
func (k *Cookies) SetSession(c *gin.Context, issued *session.Issued) error {
	http.SetCookie(c.Writer, k.cookie(k.cfg.SessionName, issued.Token, issued.AbsoluteExpiresAt, true))
	return k.ensureCSRF(c, issued.AbsoluteExpiresAt, true)
}

// ClearSession expires both cookies.
func (k *Cookies) ClearSession(c *gin.Context) {
	past := time.Unix(0, 0)
	http.SetCookie(c.Writer, k.cookie(k.cfg.SessionName, "", past, true))
	http.SetCookie(c.Writer, k.cookie(k.cfg.CSRFName, "", past, false))
}

func (k *Cookies) SessionToken(c *gin.Context) string {
	token, err := c.Cookie(k.cfg.SessionName)
	if err != nil {
		return ""
	}
	return token
}

func (k *Cookies) ensureCSRF(c *gin.Context, expires time.Time, rotate bool) error {
	if !rotate {
		if existing, err := c.Cookie(k.cfg.CSRFName); err == nil && existing != "" {
			return nil
		}
	}
	token, err := idgen.RandomToken(32)
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, k.cookie(k.cfg.CSRFName, token, expires, false))
	return nil
}

func (k *Cookies) cookie(name, value string, expires time.Time, httpOnly bool) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   k.cfg.Domain,
		Expires:  expires,
		Secure:   k.cfg.Secure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		ck.MaxAge = -1
	}
	return ck
}

// Session resolves the session cookie when present. Invalid sessions continue anonymously with
// their cookies cleared; RequireUser turns that into a uniform 401.
func Session(authenticator Authenticator, cookies *Cookies, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := cookies.SessionToken(c)
		if token == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		principal, err := authenticator.Authenticate(ctx, token, RequestMetadata(c))
		if err != nil {
			if platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnauthorized) ||
				platformerrors.IsErrorType(err, platformerrors.ErrorTypeExpired) {
				cookies.ClearSession(c)
				c.Next()
				return
			}
			platformerrors.WriteProblem(c, err, log)
			return
		}

		if principal.Session != nil && principal.Session.Refresh != nil {
			refresh := principal.Session.Refresh
			http.SetCookie(c.Writer, cookies.cookie(cookies.cfg.SessionName, refresh.Token, refresh.AbsoluteExpiresAt, true))
			// A rotated session gets a new CSRF token too.
			if err := cookies.ensureCSRF(c, refresh.AbsoluteExpiresAt, principal.Session.Rotated); err != nil {
				platformerrors.WriteProblem(c, platformerrors.NewError(ctx, platformerrors.LayerRoute,
					platformerrors.ErrorTypeInternal, "failed to issue csrf token", err, "7d8e9f0a-1b2c-4d3e-8f4a-5b6c7d8e9f0a"), log)
				return
			}
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := PrincipalFromContext(c); !ok {
			platformerrors.WriteProblem(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerRoute,
				platformerrors.ErrorTypeUnauthorized, "authentication required", nil, "1e2f3a4b-5c6d-4e7f-8a9b-0c1d2e3f4a5b"), log)
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects authenticated non-administrators with 403.
func RequireAdmin(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		if !ok {
			platformerrors.WriteProblem(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerRoute,
				platformerrors.ErrorTypeUnauthorized, "authentication required", nil, "2f3a4b5c-6d7e-4f8a-9b0c-1d2e3f4a5b6c"), log)
			return
		}
		if !p.Admin {
			platformerrors.WriteProblem(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerRoute,
				platformerrors.ErrorTypeForbidden, "administrator role required", nil, "3a4b5c6d-7e8f-4a9b-8c1d-2e3f4a5b6c7d"), log)
			return
		}
		c.Next()
	}
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(c *gin.Context) (*auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok && p != nil && p.User != nil
}

// RequestMetadata describes the client for session bookkeeping.
func RequestMetadata(c *gin.Context) session.Metadata {
	ua := c.Request.UserAgent()
	if len(ua) > 512 {
		ua = ua[:512]
	}
	return session.Metadata{UserAgent: ua, IPAddress: c.ClientIP()}
}
