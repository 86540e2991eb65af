package ratelimit

import (
	"context"
	"sort"
	"sync"

	"threadline/internal/utils/platformerrors"
)

// MemoryRepository keeps profiles and assignments in process.
type MemoryRepository struct {
	mu          sync.RWMutex
	profiles    map[string]*Profile
	assignments map[string]*Assignment
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{profiles: map[string]*Profile{}, assignments: map[string]*Assignment{}}
}

func (r *MemoryRepository) ListProfiles(_ context.Context) ([]*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) FindProfile(ctx context.Context, id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, notFound(ctx, "profile not found")
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) CreateProfile(ctx context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.profiles {
		if existing.Name == p.Name {
			return conflict(ctx, "profile name already exists")
		}
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateProfile(ctx context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; !ok {
		return notFound(ctx, "profile not found")
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteProfile(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[id]; !ok {
		return notFound(ctx, "profile not found")
	}
	for _, a := range r.assignments {
		if a.ProfileID == id {
			return conflict(ctx, "profile is still assigned")
		}
	}
	delete(r.profiles, id)
	return nil
}

func (r *MemoryRepository) ListAssignments(_ context.Context) ([]*Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Assignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PathPattern < out[j].PathPattern })
	return out, nil
}

func (r *MemoryRepository) CreateAssignment(ctx context.Context, a *Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.assignments {
		if existing.Method == a.Method && existing.PathPattern == a.PathPattern {
			return conflict(ctx, "assignment already exists for method and path")
		}
	}
	cp := *a
	r.assignments[a.ID] = &cp
	return nil
}

func (r *MemoryRepository) DeleteAssignment(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assignments[id]; !ok {
		return notFound(ctx, "assignment not found")
	}
	delete(r.assignments, id)
	return nil
}

func notFound(ctx context.Context, msg string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, msg, nil, "8e9f0a1b-2c3d-4e4f-9a5b-6c7d8e9f0a1b")
}

func conflict(ctx context.Context, msg string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, msg, nil, "9f0a1b2c-3d4e-4f5a-8b6c-7d8e9f0a1b2c")
}
