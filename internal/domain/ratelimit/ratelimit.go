package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	AlgorithmGCRA = "gcra"

	// DefaultProfileName is applied to requests no assignment covers.
	DefaultProfileName = "default"

	// AnyMethod in an assignment matches every HTTP method.
	AnyMethod = "*"
)

// Params are the algorithm parameters stored with a profile.
type Params struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

func (p Params) Limit() Limit {
	return Limit{Rate: p.RequestsPerSecond, Burst: p.Burst}
}

type Profile struct {
	ID        string
	Name      string
	Algorithm string
	Params    Params
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assignment binds a profile to (method, path pattern). The pair is unique.
type Assignment struct {
	ID          string
	ProfileID   string
	Method      string
	PathPattern string
	CreatedAt   time.Time
}

type Repository interface {
	ListProfiles(ctx context.Context) ([]*Profile, error)
	FindProfile(ctx context.Context, id string) (*Profile, error)
	CreateProfile(ctx context.Context, p *Profile) error
	UpdateProfile(ctx context.Context, p *Profile) error
	// DeleteProfile fails with a CONFLICT while assignments reference the profile.
	DeleteProfile(ctx context.Context, id string) error
	ListAssignments(ctx context.Context) ([]*Assignment, error)
	CreateAssignment(ctx context.Context, a *Assignment) error
	DeleteAssignment(ctx context.Context, id string) error
}

// StateStore keeps the theoretical arrival time per key and applies Step atomically.
type StateStore interface {
	Admit(ctx context.Context, key string, limit Limit, now time.Time) (Result, error)
}

// Seed is the initial set of profiles written when the database has none.
type Seed struct {
	Profiles    []Profile
	Assignments []SeedAssignment
}

type SeedAssignment struct {
	Profile     string
	Method      string
	PathPattern string
}

// Decision is the engine's verdict for one request.
type Decision struct {
	Result
	Profile string
	Pattern string
}

var methods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodOptions: true, AnyMethod: true,
}

// NormalizeMethod upper-cases m and reports whether it is usable in an assignment.
func NormalizeMethod(m string) (string, bool) {
	m = strings.ToUpper(strings.TrimSpace(m))
	return m, methods[m]
}
