package auth

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"threadline/internal/domain/session"
	"threadline/internal/domain/user"
	"threadline/internal/utils/platformerrors"
)

// IdentityResolver exchanges an authorization code for a verified identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, code, redirectURI string) (user.Identity, error)
}

// AdminPolicy decides who may use the administrative routes.
type AdminPolicy interface {
	IsAdmin(userID, subject string) bool
}

// Principal is the authenticated caller of a request.
type Principal struct {
	User    *user.User
	Admin   bool
	Session *session.Validation
}

// Login is the result of a successful code exchange.
type Login struct {
	User    *user.User
	Admin   bool
	Session *session.Issued
}

type Service struct {
	resolver IdentityResolver
	users    *user.Service
	sessions *session.Manager
	admins   AdminPolicy
	log      zerolog.Logger
}

func NewService(resolver IdentityResolver, users *user.Service, sessions *session.Manager, admins AdminPolicy, log zerolog.Logger) *Service {
	return &Service{
		resolver: resolver,
		users:    users,
		sessions: sessions,
		admins:   admins,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

// Login resolves code, provisions the user and issues a session. Provider failures surface as a
// uniform UNAUTHORIZED.
func (s *Service) Login(ctx context.Context, code, redirectURI string, meta session.Metadata) (*Login, error) {
	if strings.TrimSpace(code) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"authorization code is required", nil, "a0b1c2d3-e4f5-4a6b-8c7d-9e0f1a2b3c4d")
	}
	identity, err := s.resolver.Resolve(ctx, code, redirectURI)
	if err != nil {
		s.log.Warn().Err(err).Msg("identity resolution failed")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnauthorized,
			"login failed", err, "b1c2d3e4-f5a6-4b7c-9d8e-0f1a2b3c4d5e")
	}
	u, err := s.users.EnsureUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	issued, err := s.sessions.Issue(ctx, u.ID, meta)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", u.ID).Msg("user logged in")
	return &Login{User: u, Admin: s.admins.IsAdmin(u.ID, u.Subject), Session: issued}, nil
}

// Authenticate validates a session token and loads its user.
func (s *Service) Authenticate(ctx context.Context, token string, meta session.Metadata) (*Principal, error) {
	v, err := s.sessions.Validate(ctx, token, meta)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, v.UserID)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnauthorized,
				"session user no longer exists", session.ErrUnknown, "c2d3e4f5-a6b7-4c8d-8e9f-1a2b3c4d5e6f")
		}
		return nil, err
	}
	return &Principal{User: u, Admin: s.admins.IsAdmin(u.ID, u.Subject), Session: v}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Logout(ctx, token)
}
