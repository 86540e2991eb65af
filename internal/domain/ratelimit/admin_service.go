package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"threadline/internal/utils/idgen"
	"threadline/internal/utils/platformerrors"
)

// AdminService manages profiles and assignments. Every change reloads the engine.
type AdminService struct {
	repo   Repository
	engine *Engine
	log    zerolog.Logger
}

func NewAdminService(repo Repository, engine *Engine, log zerolog.Logger) *AdminService {
	return &AdminService{
		repo:   repo,
		engine: engine,
		log:    log.With().Str("component", "ratelimit-admin").Logger(),
	}
}

// =============================================================================
// Profiles
// =============================================================================

func (s *AdminService) ListProfiles(ctx context.Context) ([]*Profile, error) {
	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list profiles")
	}
	return profiles, nil
}

func (s *AdminService) CreateProfile(ctx context.Context, name, algorithm string, params Params) (*Profile, error) {
	p := &Profile{Name: strings.TrimSpace(name), Algorithm: algorithm, Params: params}
	if err := validateProfile(ctx, p); err != nil {
		return nil, err
	}
	id, err := newID(ctx, "rlp")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p.ID, p.CreatedAt, p.UpdatedAt = id, now, now
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create profile")
	}
	return p, s.reload(ctx)
}

func (s *AdminService) UpdateProfile(ctx context.Context, id string, params Params) (*Profile, error) {
	p, err := s.repo.FindProfile(ctx, id)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load profile")
	}
	p.Params = params
	if err := validateProfile(ctx, p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update profile")
	}
	return p, s.reload(ctx)
}

func (s *AdminService) DeleteProfile(ctx context.Context, id string) error {
	if err := s.repo.DeleteProfile(ctx, id); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete profile")
	}
	return s.reload(ctx)
}

// =============================================================================
// Assignments
// =============================================================================

func (s *AdminService) ListAssignments(ctx context.Context) ([]*Assignment, error) {
	assignments, err := s.repo.ListAssignments(ctx)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list assignments")
	}
	return assignments, nil
}

func (s *AdminService) CreateAssignment(ctx context.Context, profileID, method, pathPattern string) (*Assignment, error) {
	if _, err := s.repo.FindProfile(ctx, profileID); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load profile")
	}
	a := &Assignment{ProfileID: profileID, Method: method, PathPattern: pathPattern}
	if err := validateAssignment(ctx, a); err != nil {
		return nil, err
	}
	id, err := newID(ctx, "rla")
	if err != nil {
		return nil, err
	}
	a.ID, a.CreatedAt = id, time.Now().UTC()
	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create assignment")
	}
	return a, s.reload(ctx)
}

func (s *AdminService) DeleteAssignment(ctx context.Context, id string) error {
	if err := s.repo.DeleteAssignment(ctx, id); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete assignment")
	}
	return s.reload(ctx)
}

// Reload swaps in the current database state.
func (s *AdminService) Reload(ctx context.Context) error {
	return s.reload(ctx)
}

func (s *AdminService) reload(ctx context.Context) error {
	if err := s.engine.Reload(ctx); err != nil {
		return err
	}
	s.log.Info().Msg("rate limit configuration reloaded")
	return nil
}

// =============================================================================
// Validation
// =============================================================================

func validateProfile(ctx context.Context, p *Profile) error {
	if p.Algorithm == "" {
		p.Algorithm = AlgorithmGCRA
	}
	switch {
	case p.Name == "":
		return invalid(ctx, "profile name is required")
	case p.Algorithm != AlgorithmGCRA:
		return invalid(ctx, "unsupported algorithm "+p.Algorithm)
	case p.Params.RequestsPerSecond <= 0:
		return invalid(ctx, "requests_per_second must be positive")
	case p.Params.Burst < 1:
		return invalid(ctx, "burst must be at least 1")
	}
	return nil
}

func validateAssignment(ctx context.Context, a *Assignment) error {
	method, ok := NormalizeMethod(a.Method)
	if !ok {
		return invalid(ctx, "unsupported method "+a.Method)
	}
	pattern, err := ParsePattern(a.PathPattern)
	if err != nil {
		return invalid(ctx, err.Error())
	}
	a.Method = method
	a.PathPattern = pattern.String()
	return nil
}

func invalid(ctx context.Context, msg string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, msg, nil, "6c7d8e9f-0a1b-4c2d-9e3f-4a5b6c7d8e9f")
}

func newID(ctx context.Context, prefix string) (string, error) {
	id, err := idgen.GenerateSecureID(prefix, 16)
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to generate id", err, "7d8e9f0a-1b2c-4d3e-8f4a-5b6c7d8e9f0a")
	}
	return id, nil
}
