package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"threadline/internal/domain/auth"
	"threadline/internal/domain/user"
	"threadline/internal/utils/httpclients"
)

const (
	jwksInitialRetryInterval   = time.Second
	jwksInitialRetryMaxBackoff = 10 * time.Second
	jwksInitialRetryTimeout    = 2 * time.Minute
)

// OIDCConfig describes the identity provider.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	TokenURL     string
	JWKSURL      string
	RedirectURL  string
	RefreshEvery time.Duration
	ClockSkew    time.Duration
}

// OIDCResolver exchanges authorization codes at the token endpoint and verifies the returned id_token.
type OIDCResolver struct {
	cfg     OIDCConfig
	client  *resty.Client
	keyfunc jwt.Keyfunc
	log     zerolog.Logger
}

var _ auth.IdentityResolver = (*OIDCResolver)(nil)

type tokenResponse struct {
	IDToken          string `json:"id_token"`
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// NewOIDCResolver builds a resolver whose signing keys are fetched from cfg.JWKSURL.
func NewOIDCResolver(ctx context.Context, cfg OIDCConfig, log zerolog.Logger) (*OIDCResolver, error) {
	log = log.With().Str("component", "oidc").Logger()
	keys, err := newJWKS(ctx, cfg.JWKSURL, cfg.RefreshEvery, log)
	if err != nil {
		return nil, err
	}
	return newOIDCResolver(cfg, keys.keyfunc, log), nil
}

func newOIDCResolver(cfg OIDCConfig, keyfunc jwt.Keyfunc, log zerolog.Logger) *OIDCResolver {
	client := httpclients.NewClient("oidc")
	client.SetTimeout(15 * time.Second)
	return &OIDCResolver{cfg: cfg, client: client, keyfunc: keyfunc, log: log}
}

func (r *OIDCResolver) Resolve(ctx context.Context, code, redirectURI string) (user.Identity, error) {
	if redirectURI == "" {
		redirectURI = r.cfg.RedirectURL
	}
	var body tokenResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "authorization_code",
			"code":          code,
			"redirect_uri":  redirectURI,
			"client_id":     r.cfg.ClientID,
			"client_secret": r.cfg.ClientSecret,
		}).
		SetResult(&body).
		SetError(&body).
		Post(r.cfg.TokenURL)
	if err != nil {
		return user.Identity{}, fmt.Errorf("token exchange: %w", err)
	}
	if resp.IsError() {
		return user.Identity{}, fmt.Errorf("token exchange rejected: %d %s %s", resp.StatusCode(), body.Error, body.ErrorDescription)
	}
	if body.IDToken == "" {
		return user.Identity{}, errors.New("token response carries no id_token")
	}
	return r.verify(body.IDToken)
}

func (r *OIDCResolver) verify(raw string) (user.Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(r.cfg.Issuer),
		jwt.WithAudience(r.cfg.ClientID),
		jwt.WithLeeway(r.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	)
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(raw, claims, r.keyfunc)
	if err != nil {
		return user.Identity{}, fmt.Errorf("parse id_token: %w", err)
	}
	if !token.Valid {
		return user.Identity{}, errors.New("invalid id_token")
	}

	sub, _ := claims.GetSubject()
	if strings.TrimSpace(sub) == "" {
		return user.Identity{}, errors.New("id_token has no subject")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	return user.Identity{Subject: sub, Email: email, Name: name}, nil
}

// ===== JWKS =====

type jwks struct {
	url     string
	log     zerolog.Logger
	current atomic.Pointer[keyfunc.JWKS]
}

func newJWKS(ctx context.Context, url string, refreshEvery time.Duration, log zerolog.Logger) (*jwks, error) {
	if url == "" {
		return nil, errors.New("jwks url is required")
	}
	k := &jwks{url: url, log: log}
	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   refreshEvery,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh failed")
		},
	}

	backoff := jwksInitialRetryInterval
	deadline := time.Now().Add(jwksInitialRetryTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for attempt := 1; ; attempt++ {
		set, err := keyfunc.Get(url, options)
		if err == nil {
			k.current.Store(set)
			return k, nil
		}
		log.Warn().Err(err).Str("jwks_url", url).Int("attempt", attempt).Msg("initial jwks fetch failed, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch jwks: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		backoff = min(backoff*2, jwksInitialRetryMaxBackoff)
	}
}

func (k *jwks) keyfunc(token *jwt.Token) (any, error) {
	set := k.current.Load()
	if set == nil {
		return nil, errors.New("jwks not initialised")
	}
	return set.Keyfunc(token)
}
