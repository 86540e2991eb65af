package presencerepo

import (
	"context"

	"gorm.io/gorm/clause"

	"threadline/internal/domain/presence"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/dbschema"
	"threadline/internal/infrastructure/database/transaction"
)

type PresenceGormRepository struct {
	db *transaction.Database
}

var _ presence.Repository = (*PresenceGormRepository)(nil)

func NewPresenceGormRepository(db *transaction.Database) presence.Repository {
	return &PresenceGormRepository{db: db}
}

func (repo *PresenceGormRepository) Upsert(ctx context.Context, p *presence.Presence) error {
	err := repo.db.GetTx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen_at"}),
	}).Create(dbschema.NewSchemaUserPresence(p)).Error
	return database.MapError(ctx, err, "failed to save presence")
}

func (repo *PresenceGormRepository) Find(ctx context.Context, userID string) (*presence.Presence, error) {
	var row dbschema.UserPresence
	if err := repo.db.GetTx(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, database.MapError(ctx, err, "presence not found")
	}
	return row.EtoD(), nil
}
