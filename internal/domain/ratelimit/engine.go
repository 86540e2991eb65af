package ratelimit

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"threadline/internal/infrastructure/metrics"
	"threadline/internal/utils/platformerrors"
)

// EngineConfig carries the fallback profile and the optional seed.
type EngineConfig struct {
	Default Params
	Seed    *Seed
}

type route struct {
	method  string
	pattern Pattern
	profile *Profile
}

// table is an immutable routing snapshot. Decisions read whichever snapshot was current when they started.
type table struct {
	routes   []route
	fallback *Profile
}

func (t *table) resolve(method, path string) (*Profile, string) {
	var (
		best  *route
		exact bool
	)
	for i := range t.routes {
		r := &t.routes[i]
		if r.method != method && r.method != AnyMethod {
			continue
		}
		if !r.pattern.Match(path) {
			continue
		}
		rExact := r.method == method
		if best == nil || moreSpecific(r.pattern, best.pattern) ||
			(!moreSpecific(best.pattern, r.pattern) && rExact && !exact) {
			best, exact = r, rExact
		}
	}
	if best == nil {
		return t.fallback, "*"
	}
	return best.profile, best.pattern.String()
}

// Engine admits or rejects requests with GCRA buckets keyed by (method, pattern, identity).
type Engine struct {
	repo  Repository
	state StateStore
	cfg   EngineConfig
	table atomic.Pointer[table]
	log   zerolog.Logger
	now   func() time.Time
}

func NewEngine(repo Repository, state StateStore, cfg EngineConfig, log zerolog.Logger) *Engine {
	if cfg.Default.RequestsPerSecond <= 0 {
		cfg.Default.RequestsPerSecond = 10
	}
	if cfg.Default.Burst <= 0 {
		cfg.Default.Burst = 20
	}
	e := &Engine{
		repo:  repo,
		state: state,
		cfg:   cfg,
		log:   log.With().Str("component", "ratelimit").Logger(),
		now:   time.Now,
	}
	e.table.Store(&table{fallback: e.configDefault()})
	return e
}

func (e *Engine) configDefault() *Profile {
	return &Profile{Name: DefaultProfileName, Algorithm: AlgorithmGCRA, Params: e.cfg.Default}
}

// Bootstrap writes the seed when no profile exists yet and loads the routing table.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if e.cfg.Seed != nil {
		profiles, err := e.repo.ListProfiles(ctx)
		if err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list rate limit profiles")
		}
		if len(profiles) == 0 {
			if err := e.applySeed(ctx, e.cfg.Seed); err != nil {
				return err
			}
		}
	}
	return e.Reload(ctx)
}

func (e *Engine) applySeed(ctx context.Context, seed *Seed) error {
	byName := make(map[string]string, len(seed.Profiles))
	for i := range seed.Profiles {
		p := seed.Profiles[i]
		if err := validateProfile(ctx, &p); err != nil {
			return err
		}
		if p.ID == "" {
			id, err := newID(ctx, "rlp")
			if err != nil {
				return err
			}
			p.ID = id
		}
		now := e.now().UTC()
		p.CreatedAt, p.UpdatedAt = now, now
		if err := e.repo.CreateProfile(ctx, &p); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to seed rate limit profile")
		}
		byName[p.Name] = p.ID
	}
	for _, sa := range seed.Assignments {
		profileID, ok := byName[sa.Profile]
		if !ok {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"rate limit seed assigns an unknown profile "+sa.Profile, nil, "5b6c7d8e-9f0a-4b1c-8d2e-3f4a5b6c7d8e")
		}
		a := &Assignment{ProfileID: profileID, Method: sa.Method, PathPattern: sa.PathPattern}
		if err := validateAssignment(ctx, a); err != nil {
			return err
		}
		id, err := newID(ctx, "rla")
		if err != nil {
			return err
		}
		a.ID = id
		a.CreatedAt = e.now().UTC()
		if err := e.repo.CreateAssignment(ctx, a); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to seed rate limit assignment")
		}
	}
	e.log.Info().Int("profiles", len(seed.Profiles)).Int("assignments", len(seed.Assignments)).Msg("rate limit seed applied")
	return nil
}

// Reload rebuilds the routing table from storage and swaps it in.
func (e *Engine) Reload(ctx context.Context) error {
	profiles, err := e.repo.ListProfiles(ctx)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list rate limit profiles")
	}
	assignments, err := e.repo.ListAssignments(ctx)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list rate limit assignments")
	}

	byID := make(map[string]*Profile, len(profiles))
	next := &table{fallback: e.configDefault()}
	for _, p := range profiles {
		byID[p.ID] = p
		if p.Name == DefaultProfileName {
			next.fallback = p
		}
	}
	for _, a := range assignments {
		p, ok := byID[a.ProfileID]
		if !ok {
			e.log.Warn().Str("assignment_id", a.ID).Msg("assignment references a missing profile")
			continue
		}
		pattern, err := ParsePattern(a.PathPattern)
		if err != nil {
			e.log.Warn().Err(err).Str("assignment_id", a.ID).Msg("skipping invalid assignment pattern")
			continue
		}
		next.routes = append(next.routes, route{method: strings.ToUpper(a.Method), pattern: pattern, profile: p})
	}
	sort.SliceStable(next.routes, func(i, j int) bool {
		return moreSpecific(next.routes[i].pattern, next.routes[j].pattern)
	})

	e.table.Store(next)
	e.log.Debug().Int("profiles", len(profiles)).Int("routes", len(next.routes)).Msg("rate limit table reloaded")
	return nil
}

// Decide charges one request from identity against the profile covering (method, path).
// State store failures admit the request.
func (e *Engine) Decide(ctx context.Context, method, path, identity string) Decision {
	method = strings.ToUpper(method)
	profile, pattern := e.table.Load().resolve(method, path)
	limit := profile.Params.Limit()
	key := strings.Join([]string{profile.Name, method, pattern, identity}, "|")

	res, err := e.state.Admit(ctx, key, limit, e.now())
	if err != nil {
		e.log.Warn().Err(err).Str("profile", profile.Name).Msg("rate limit state unavailable, admitting request")
		res = Result{Allowed: true, Limit: limit.Burst, Remaining: limit.Burst}
	}
	metrics.RecordRateLimit(profile.Name, res.Allowed)
	return Decision{Result: res, Profile: profile.Name, Pattern: pattern}
}
