package sessionrepo

import (
	"context"
	"time"

	"gorm.io/plugin/dbresolver"

	"threadline/internal/domain/session"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/dbschema"
	"threadline/internal/infrastructure/database/transaction"
	"threadline/internal/utils/platformerrors"
)

type SessionGormRepository struct {
	db *transaction.Database
}

var _ session.Repository = (*SessionGormRepository)(nil)

func NewSessionGormRepository(db *transaction.Database) session.Repository {
	return &SessionGormRepository{db: db}
}

func (repo *SessionGormRepository) Create(ctx context.Context, s *session.Session) error {
	err := repo.db.GetTx(ctx).Create(dbschema.NewSchemaSession(s)).Error
	return database.MapError(ctx, err, "failed to create session")
}

// FindByTokenHash implements session.Repository. Sessions are always read from the primary.
func (repo *SessionGormRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*session.Session, error) {
	var row dbschema.Session
	err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).Where("token_hash = ?", tokenHash).First(&row).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "session not found")
	}
	return row.EtoD(), nil
}

func (repo *SessionGormRepository) Touch(ctx context.Context, id string, expiresAt, lastSeenAt time.Time) error {
	err := repo.db.GetTx(ctx).Model(&dbschema.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{"expires_at": expiresAt, "last_seen_at": lastSeenAt}).Error
	return database.MapError(ctx, err, "failed to touch session")
}

// Rotate implements session.Repository.
func (repo *SessionGormRepository) Rotate(ctx context.Context, oldID string, replacement *session.Session, at time.Time) error {
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		res := tx.Model(&dbschema.Session{}).
			Where("id = ? AND revoked_at IS NULL", oldID).
			Updates(map[string]any{"revoked_at": at, "replaced_by": replacement.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"session already rotated", nil, "d6e7f8a9-b0c1-4d2e-9f3a-5b6c7d8e9f0a")
		}
		return tx.Create(dbschema.NewSchemaSession(replacement)).Error
	})
	return database.MapError(ctx, err, "failed to rotate session")
}

func (repo *SessionGormRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	err := repo.db.GetTx(ctx).Model(&dbschema.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error
	return database.MapError(ctx, err, "failed to revoke session")
}

func (repo *SessionGormRepository) MarkUserForRotation(ctx context.Context, userID, reason string) (int64, error) {
	res := repo.db.GetTx(ctx).Model(&dbschema.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("rotation_pending_reason", reason)
	if res.Error != nil {
		return 0, database.MapError(ctx, res.Error, "failed to mark sessions for rotation")
	}
	return res.RowsAffected, nil
}

func (repo *SessionGormRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := repo.db.GetTx(ctx).Where("absolute_expires_at <= ?", before).Delete(&dbschema.Session{})
	if res.Error != nil {
		return 0, database.MapError(ctx, res.Error, "failed to delete expired sessions")
	}
	return res.RowsAffected, nil
}
