package identity

import (
	"context"

	"github.com/rs/zerolog"

	"threadline/internal/config"
	"threadline/internal/domain/auth"
)

// ProvideResolver returns the identity resolver selected by AUTH_MODE.
func ProvideResolver(cfg *config.Config, log zerolog.Logger) (auth.IdentityResolver, error) {
	if cfg.AuthMode == config.AuthModeDev {
		log.Warn().Msg("AUTH_MODE=dev: login codes are trusted without verification")
		return &DevResolver{Prefix: cfg.DevLoginCodePrefix}, nil
	}
	return NewOIDCResolver(context.Background(), OIDCConfig{
		Issuer:       cfg.OIDCIssuer,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		TokenURL:     cfg.OIDCTokenURL,
		JWKSURL:      cfg.OIDCJWKSURL,
		RedirectURL:  cfg.OIDCRedirectURL,
		RefreshEvery: cfg.JWKSRefreshEvery,
		ClockSkew:    cfg.AuthClockSkew,
	}, log)
}
