package dbschema

import (
	"time"

	"gorm.io/datatypes"

	"threadline/internal/domain/ratelimit"
)

type RateLimitProfile struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Name      string `gorm:"uniqueIndex"`
	Algorithm string
	Params    datatypes.JSONType[ratelimit.Params] `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewSchemaRateLimitProfile(p *ratelimit.Profile) *RateLimitProfile {
	return &RateLimitProfile{
		ID:        p.ID,
		Name:      p.Name,
		Algorithm: p.Algorithm,
		Params:    datatypes.NewJSONType(p.Params),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (p *RateLimitProfile) EtoD() *ratelimit.Profile {
	return &ratelimit.Profile{
		ID:        p.ID,
		Name:      p.Name,
		Algorithm: p.Algorithm,
		Params:    p.Params.Data(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type RateLimitAssignment struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	ProfileID   string
	Method      string
	PathPattern string
	CreatedAt   time.Time
}

func NewSchemaRateLimitAssignment(a *ratelimit.Assignment) *RateLimitAssignment {
	return &RateLimitAssignment{ID: a.ID, ProfileID: a.ProfileID, Method: a.Method, PathPattern: a.PathPattern, CreatedAt: a.CreatedAt}
}

func (a *RateLimitAssignment) EtoD() *ratelimit.Assignment {
	return &ratelimit.Assignment{ID: a.ID, ProfileID: a.ProfileID, Method: a.Method, PathPattern: a.PathPattern, CreatedAt: a.CreatedAt}
}
