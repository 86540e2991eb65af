package userrepo

import (
	"context"

	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"threadline/internal/domain/user"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/dbschema"
	"threadline/internal/infrastructure/database/transaction"
)

type UserGormRepository struct {
	db *transaction.Database
}

var _ user.Repository = (*UserGormRepository)(nil)

func NewUserGormRepository(db *transaction.Database) user.Repository {
	return &UserGormRepository{db: db}
}

// UpsertBySubject implements user.Repository. The id of an existing row is kept.
func (repo *UserGormRepository) UpsertBySubject(ctx context.Context, u *user.User) (*user.User, error) {
	row := dbschema.NewSchemaUser(u)
	err := repo.db.GetTx(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "updated_at", "last_login_at"}),
		},
		clause.Returning{},
	).Create(row).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to upsert user")
	}
	return row.EtoD(), nil
}

// FindByID implements user.Repository.
func (repo *UserGormRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	var row dbschema.User
	if err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, database.MapError(ctx, err, "user not found")
	}
	return row.EtoD(), nil
}
