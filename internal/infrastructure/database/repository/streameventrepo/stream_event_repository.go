package streameventrepo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"threadline/internal/domain/streamevent"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/dbschema"
	"threadline/internal/infrastructure/database/transaction"
	"threadline/internal/utils/functional"
	"threadline/internal/utils/platformerrors"
)

type StreamEventGormRepository struct {
	db *transaction.Database
}

var _ streamevent.Store = (*StreamEventGormRepository)(nil)

func NewStreamEventGormRepository(db *transaction.Database) streamevent.Store {
	return &StreamEventGormRepository{db: db}
}

// RecordEvent implements streamevent.Store. The max+1 check runs in the insert transaction;
// the (user_id, sequence) primary key catches writers that race past it.
func (repo *StreamEventGormRepository) RecordEvent(ctx context.Context, r streamevent.Record) error {
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		var latest int64
		if err := tx.Model(&dbschema.StreamEvent{}).
			Where("user_id = ?", r.UserID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&latest).Error; err != nil {
			return err
		}
		if r.Sequence != latest+1 {
			return repo.conflict(ctx)
		}
		return tx.Create(dbschema.NewSchemaStreamEvent(r)).Error
	})
	if err == nil {
		return nil
	}
	if database.IsUniqueViolation(err) {
		return repo.conflict(ctx)
	}
	return database.MapError(ctx, err, "failed to record stream event")
}

func (repo *StreamEventGormRepository) conflict(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
		"stream event sequence conflict", streamevent.ErrSequenceConflict, "b8c9d0e1-f2a3-4b4c-9d5e-6f7a8b9c0d1e")
}

// LatestSequence implements streamevent.Store. It always reads the primary.
func (repo *StreamEventGormRepository) LatestSequence(ctx context.Context, userID string) (int64, error) {
	var latest int64
	err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).
		Model(&dbschema.StreamEvent{}).
		Where("user_id = ?", userID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&latest).Error
	if err != nil {
		return 0, database.MapError(ctx, err, "failed to read latest sequence")
	}
	return latest, nil
}

// LoadRecent implements streamevent.Store.
func (repo *StreamEventGormRepository) LoadRecent(ctx context.Context, userID string, filter streamevent.Filter, limit int) ([]streamevent.Record, error) {
	var rows []*dbschema.StreamEvent
	err := repo.scope(ctx, userID, filter).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "sequence"}, Desc: true}).
		Limit(unbounded(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to load recent events")
	}
	out := functional.Map(rows, func(e *dbschema.StreamEvent) streamevent.Record { return e.EtoD() })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LoadAfter implements streamevent.Store.
func (repo *StreamEventGormRepository) LoadAfter(ctx context.Context, userID string, lastSequence int64, filter streamevent.Filter, limit int) ([]streamevent.Record, error) {
	var rows []*dbschema.StreamEvent
	err := repo.scope(ctx, userID, filter).
		Where("sequence > ?", lastSequence).
		Order("sequence ASC").
		Limit(unbounded(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to load events after cursor")
	}
	return functional.Map(rows, func(e *dbschema.StreamEvent) streamevent.Record { return e.EtoD() }), nil
}

// Prune implements streamevent.Store.
func (repo *StreamEventGormRepository) Prune(ctx context.Context, userID string, maxEvents, batch int) (int64, error) {
	maxEvents, batch = streamevent.PruneBounds(maxEvents, batch)
	latest, err := repo.LatestSequence(ctx, userID)
	if err != nil {
		return 0, err
	}
	cutoff := latest - int64(maxEvents)
	if cutoff <= 0 {
		return 0, nil
	}
	var deleted int64
	for {
		res := repo.db.GetTx(ctx).Exec(
			`DELETE FROM threadline.stream_events
			 WHERE user_id = ? AND sequence IN (
			   SELECT sequence FROM threadline.stream_events
			   WHERE user_id = ? AND sequence <= ?
			   ORDER BY sequence
			   LIMIT ?)`,
			userID, userID, cutoff, batch)
		if res.Error != nil {
			return deleted, database.MapError(ctx, res.Error, "failed to prune stream events")
		}
		deleted += res.RowsAffected
		if res.RowsAffected < int64(batch) {
			return deleted, nil
		}
	}
}

// UsersOverRetention implements streamevent.Store.
func (repo *StreamEventGormRepository) UsersOverRetention(ctx context.Context, maxEvents int, limit int) ([]string, error) {
	var users []string
	err := repo.db.GetTx(ctx).
		Model(&dbschema.StreamEvent{}).
		Select("user_id").
		Group("user_id").
		Having("COUNT(*) > ?", maxEvents).
		Limit(limit).
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to list users over retention")
	}
	return users, nil
}

// unbounded maps a non-positive limit to gorm's "no limit", matching the memory store.
func unbounded(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (repo *StreamEventGormRepository) scope(ctx context.Context, userID string, filter streamevent.Filter) *gorm.DB {
	q := repo.db.GetTx(ctx).Clauses(dbresolver.Write).Where("user_id = ?", userID)
	if filter.ConversationID != "" {
		q = q.Where("conversation_id = ?", filter.ConversationID)
	}
	return q
}
