package ratelimitrepo

import (
	"context"

	"gorm.io/plugin/dbresolver"

	"threadline/internal/domain/ratelimit"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/dbschema"
	"threadline/internal/infrastructure/database/transaction"
	"threadline/internal/utils/functional"
	"threadline/internal/utils/platformerrors"
)

type RateLimitGormRepository struct {
	db *transaction.Database
}

var _ ratelimit.Repository = (*RateLimitGormRepository)(nil)

func NewRateLimitGormRepository(db *transaction.Database) ratelimit.Repository {
	return &RateLimitGormRepository{db: db}
}

// ListProfiles implements ratelimit.Repository. Reloads read the primary so they see the change
// that triggered them.
func (repo *RateLimitGormRepository) ListProfiles(ctx context.Context) ([]*ratelimit.Profile, error) {
	var rows []*dbschema.RateLimitProfile
	if err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).Order("name").Find(&rows).Error; err != nil {
		return nil, database.MapError(ctx, err, "failed to list rate limit profiles")
	}
	return functional.Map(rows, func(r *dbschema.RateLimitProfile) *ratelimit.Profile { return r.EtoD() }), nil
}

func (repo *RateLimitGormRepository) FindProfile(ctx context.Context, id string) (*ratelimit.Profile, error) {
	var row dbschema.RateLimitProfile
	if err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, database.MapError(ctx, err, "rate limit profile not found")
	}
	return row.EtoD(), nil
}

func (repo *RateLimitGormRepository) CreateProfile(ctx context.Context, p *ratelimit.Profile) error {
	err := repo.db.GetTx(ctx).Create(dbschema.NewSchemaRateLimitProfile(p)).Error
	return database.MapError(ctx, err, "failed to create rate limit profile")
}

func (repo *RateLimitGormRepository) UpdateProfile(ctx context.Context, p *ratelimit.Profile) error {
	row := dbschema.NewSchemaRateLimitProfile(p)
	res := repo.db.GetTx(ctx).Model(&dbschema.RateLimitProfile{}).Where("id = ?", p.ID).
		Updates(map[string]any{"algorithm": row.Algorithm, "params": row.Params, "updated_at": row.UpdatedAt})
	if res.Error != nil {
		return database.MapError(ctx, res.Error, "failed to update rate limit profile")
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"rate limit profile not found", nil, "e7f8a9b0-c1d2-4e3f-8a4b-6c7d8e9f0a1b")
	}
	return nil
}

// DeleteProfile implements ratelimit.Repository. The foreign key rejects deleting an assigned profile.
func (repo *RateLimitGormRepository) DeleteProfile(ctx context.Context, id string) error {
	res := repo.db.GetTx(ctx).Where("id = ?", id).Delete(&dbschema.RateLimitProfile{})
	if res.Error != nil {
		if database.SQLState(res.Error) == "23503" {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"rate limit profile is still assigned", res.Error, "f8a9b0c1-d2e3-4f4a-9b5c-7d8e9f0a1b2c")
		}
		return database.MapError(ctx, res.Error, "failed to delete rate limit profile")
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"rate limit profile not found", nil, "a9b0c1d2-e3f4-4a5b-8c6d-8e9f0a1b2c3d")
	}
	return nil
}

func (repo *RateLimitGormRepository) ListAssignments(ctx context.Context) ([]*ratelimit.Assignment, error) {
	var rows []*dbschema.RateLimitAssignment
	if err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).Order("path_pattern, method").Find(&rows).Error; err != nil {
		return nil, database.MapError(ctx, err, "failed to list rate limit assignments")
	}
	return functional.Map(rows, func(r *dbschema.RateLimitAssignment) *ratelimit.Assignment { return r.EtoD() }), nil
}

func (repo *RateLimitGormRepository) CreateAssignment(ctx context.Context, a *ratelimit.Assignment) error {
	err := repo.db.GetTx(ctx).Create(dbschema.NewSchemaRateLimitAssignment(a)).Error
	return database.MapError(ctx, err, "failed to create rate limit assignment")
}

func (repo *RateLimitGormRepository) DeleteAssignment(ctx context.Context, id string) error {
	res := repo.db.GetTx(ctx).Where("id = ?", id).Delete(&dbschema.RateLimitAssignment{})
	if res.Error != nil {
		return database.MapError(ctx, res.Error, "failed to delete rate limit assignment")
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"rate limit assignment not found", nil, "b0c1d2e3-f4a5-4b6c-9d7e-9f0a1b2c3d4e")
	}
	return nil
}
