package user

import (
	"context"
	"strings"
	"time"

	"threadline/internal/utils/idgen"
	"threadline/internal/utils/platformerrors"
)

// User is an authenticated principal. Subject is the identity provider's stable id.
type User struct {
	ID          string
	Subject     string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// Identity is what an identity provider vouches for.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type Repository interface {
	// UpsertBySubject inserts u or refreshes email, display name and last login of the existing row.
	UpsertBySubject(ctx context.Context, u *User) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

// Service resolves users from identities.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// EnsureUser returns the user for identity, creating it on first login.
func (s *Service) EnsureUser(ctx context.Context, identity Identity) (*User, error) {
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"identity has no subject", nil, "5f6a7b8c-9d0e-4f1a-8b2c-3d4e5f6a7b8d")
	}
	id, err := idgen.GenerateSecureID("usr", 16)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to generate user id", err, "6a7b8c9d-0e1f-4a2b-9c3d-4e5f6a7b8c9f")
	}
	now := s.now().UTC()
	u, err := s.repo.UpsertBySubject(ctx, &User{
		ID:          id,
		Subject:     subject,
		Email:       strings.ToLower(strings.TrimSpace(identity.Email)),
		DisplayName: strings.TrimSpace(identity.Name),
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: &now,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to save user")
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "user not found")
	}
	return u, nil
}
