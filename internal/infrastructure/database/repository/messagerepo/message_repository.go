package messagerepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"threadline/internal/domain/message"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/dbschema"
	"threadline/internal/infrastructure/database/transaction"
	"threadline/internal/utils/functional"
	"threadline/internal/utils/platformerrors"
)

type MessageGormRepository struct {
	db *transaction.Database
}

var _ message.Repository = (*MessageGormRepository)(nil)

func NewMessageGormRepository(db *transaction.Database) message.Repository {
	return &MessageGormRepository{db: db}
}

func toDomain(rows []*dbschema.Message) []*message.Message {
	return functional.Map(rows, func(r *dbschema.Message) *message.Message { return r.EtoD() })
}

// ===============================================
// Writes
// ===============================================

// CreateRoot implements message.Repository. The conversation row is the lock that serializes root paths.
func (repo *MessageGormRepository) CreateRoot(ctx context.Context, m *message.Message) error {
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		var counter int64
		res := tx.Raw(`UPDATE threadline.conversations
			SET root_counter = root_counter + 1, updated_at = ?
			WHERE id = ? RETURNING root_counter`, m.CreatedAt, m.ConversationID).Scan(&counter)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		path, err := message.ChildPath("", counter)
		if err != nil {
			return pathExhausted(ctx, err)
		}
		m.RootID, m.ParentID, m.Path, m.Depth = m.ID, nil, path, 1
		return tx.Create(dbschema.NewSchemaMessage(m)).Error
	})
	return database.MapError(ctx, err, "failed to create root message")
}

// CreateReply implements message.Repository.
func (repo *MessageGormRepository) CreateReply(ctx context.Context, parentID string, m *message.Message) error {
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		var parent dbschema.Message
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", parentID).First(&parent).Error; err != nil {
			return err
		}
		next := parent.ChildCounter + 1
		path, err := message.ChildPath(parent.Path, next)
		if err != nil {
			return pathExhausted(ctx, err)
		}
		if err := tx.Model(&dbschema.Message{}).Where("id = ?", parent.ID).Update("child_counter", next).Error; err != nil {
			return err
		}
		pid := parent.ID
		m.ParentID = &pid
		m.RootID = parent.RootID
		m.ConversationID = parent.ConversationID
		m.Path = path
		m.Depth = message.Depth(path)
		if err := tx.Create(dbschema.NewSchemaMessage(m)).Error; err != nil {
			return err
		}
		return tx.Model(&dbschema.Conversation{}).Where("id = ?", m.ConversationID).Update("updated_at", m.CreatedAt).Error
	})
	return database.MapError(ctx, err, "failed to create reply")
}

// AppendChunk implements message.Repository.
func (repo *MessageGormRepository) AppendChunk(ctx context.Context, id string, index int, delta string, usage message.Usage) (*message.Message, error) {
	var out *message.Message
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		row, err := repo.lock(ctx, id)
		if err != nil {
			return err
		}
		current := row.EtoD()
		if !current.Streaming() {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"message is not streaming", message.ErrNotStreaming, "f2a3b4c5-d6e7-4f8a-9b0c-1d2e3f4a5b6c")
		}
		if index != current.ChunkCount {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"chunk out of order", message.ErrChunkOutOfOrder, "a3b4c5d6-e7f8-4a9b-8c0d-2e3f4a5b6c7d")
		}
		err = repo.db.GetTx(ctx).Model(&dbschema.Message{}).Where("id = ?", id).Updates(map[string]any{
			"content":     gorm.Expr("content || ?", delta),
			"chunk_count": gorm.Expr("chunk_count + 1"),
			"usage":       datatypes.NewJSONType(usage),
		}).Error
		if err != nil {
			return err
		}
		current.Content += delta
		current.ChunkCount++
		current.Usage = usage
		out = current
		return nil
	})
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to append chunk")
	}
	return out, nil
}

// Finalize implements message.Repository.
func (repo *MessageGormRepository) Finalize(ctx context.Context, id, finishReason string, usage message.Usage) (*message.Message, bool, error) {
	var (
		out     *message.Message
		changed bool
	)
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		row, err := repo.lock(ctx, id)
		if err != nil {
			return err
		}
		out = row.EtoD()
		if out.FinishReason != "" {
			return nil
		}
		err = repo.db.GetTx(ctx).Model(&dbschema.Message{}).Where("id = ?", id).Updates(map[string]any{
			"finish_reason": finishReason,
			"usage":         datatypes.NewJSONType(usage),
		}).Error
		if err != nil {
			return err
		}
		out.FinishReason, out.Usage, changed = finishReason, usage, true
		return nil
	})
	if err != nil {
		return nil, false, database.MapError(ctx, err, "failed to finalize message")
	}
	return out, changed, nil
}

// UpdateContent implements message.Repository. The previous content is archived first.
func (repo *MessageGormRepository) UpdateContent(ctx context.Context, id, content, editorID string, at time.Time) (*message.Message, error) {
	var out *message.Message
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		row, err := repo.lock(ctx, id)
		if err != nil {
			return err
		}
		tx := repo.db.GetTx(ctx)
		rev := &dbschema.MessageRevision{MessageID: id, Content: row.Content, EditedBy: editorID, CreatedAt: at}
		if err := tx.Create(rev).Error; err != nil {
			return err
		}
		if err := tx.Model(&dbschema.Message{}).Where("id = ?", id).
			Updates(map[string]any{"content": content, "edited_at": at}).Error; err != nil {
			return err
		}
		out = row.EtoD()
		out.Content, out.EditedAt = content, &at
		return nil
	})
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to update message")
	}
	return out, nil
}

// SoftDelete implements message.Repository. Deleting twice keeps the first deletion time.
func (repo *MessageGormRepository) SoftDelete(ctx context.Context, id, tombstone string, at time.Time) (*message.Message, error) {
	var out *message.Message
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		row, err := repo.lock(ctx, id)
		if err != nil {
			return err
		}
		out = row.EtoD()
		if out.DeletedAt != nil {
			return nil
		}
		updates := map[string]any{"content": tombstone, "deleted_at": at}
		if out.FinishReason == "" {
			updates["finish_reason"] = message.FinishDeleted
			out.FinishReason = message.FinishDeleted
		}
		if err := repo.db.GetTx(ctx).Model(&dbschema.Message{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		out.Content, out.DeletedAt = tombstone, &at
		return nil
	})
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to delete message")
	}
	return out, nil
}

// UpsertReadMarker implements message.Repository.
func (repo *MessageGormRepository) UpsertReadMarker(ctx context.Context, marker *message.ReadMarker) error {
	err := repo.db.GetTx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "root_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"conversation_id", "path", "marked_at", "updated_at"}),
	}).Create(dbschema.NewSchemaReadMarker(marker)).Error
	return database.MapError(ctx, err, "failed to save read marker")
}

// ===============================================
// Reads
// ===============================================

// FindByID implements message.Repository.
func (repo *MessageGormRepository) FindByID(ctx context.Context, id string) (*message.Message, error) {
	var row dbschema.Message
	if err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, database.MapError(ctx, err, "message not found")
	}
	return row.EtoD(), nil
}

// FindByPaths implements message.Repository.
func (repo *MessageGormRepository) FindByPaths(ctx context.Context, rootID string, paths []string) ([]*message.Message, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	var rows []*dbschema.Message
	err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).
		Where("root_id = ? AND path IN ?", rootID, paths).
		Order("path").
		Find(&rows).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to load messages by path")
	}
	return toDomain(rows), nil
}

// FindByPath implements message.Repository.
func (repo *MessageGormRepository) FindByPath(ctx context.Context, rootID, path string) (*message.Message, error) {
	var row dbschema.Message
	err := repo.db.GetTx(ctx).Where("root_id = ? AND path = ?", rootID, path).First(&row).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "message not found")
	}
	return row.EtoD(), nil
}

// ListChildren implements message.Repository.
func (repo *MessageGormRepository) ListChildren(ctx context.Context, parentID string) ([]*message.Message, error) {
	var rows []*dbschema.Message
	err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).Where("parent_id = ?", parentID).Order("path").Find(&rows).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to list children")
	}
	return toDomain(rows), nil
}

// ListTree implements message.Repository. The path column uses the C collation so byte order is tree order.
func (repo *MessageGormRepository) ListTree(ctx context.Context, rootID, afterPath string, limit int) ([]*message.Message, error) {
	var rows []*dbschema.Message
	q := repo.db.GetTx(ctx).Where("root_id = ? AND path > ?", rootID, afterPath).Order("path")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, database.MapError(ctx, err, "failed to list thread")
	}
	return toDomain(rows), nil
}

type threadRow struct {
	RootID         string
	ConversationID string
	Preview        string
	AuthorUserID   *string
	ReplyCount     int64
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// ListThreads implements message.Repository.
func (repo *MessageGormRepository) ListThreads(ctx context.Context, conversationID string, before *time.Time, limit int) ([]*message.ThreadSummary, error) {
	var rows []threadRow
	err := repo.db.GetTx(ctx).Raw(`
		SELECT * FROM (
			SELECT r.id AS root_id,
			       r.conversation_id,
			       r.content AS preview,
			       r.author_user_id,
			       r.created_at,
			       COUNT(c.id) FILTER (WHERE c.id <> r.id AND c.deleted_at IS NULL) AS reply_count,
			       COALESCE(MAX(c.created_at) FILTER (WHERE c.deleted_at IS NULL), r.created_at) AS last_activity_at
			FROM threadline.messages r
			JOIN threadline.messages c ON c.root_id = r.id
			WHERE r.conversation_id = ? AND r.parent_id IS NULL
			GROUP BY r.id
		) t
		WHERE (CAST(? AS TIMESTAMPTZ) IS NULL OR t.last_activity_at < ?)
		ORDER BY t.last_activity_at DESC, t.root_id DESC
		LIMIT ?`, conversationID, before, before, limit).Scan(&rows).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to list threads")
	}
	return functional.Map(rows, func(r threadRow) *message.ThreadSummary {
		return &message.ThreadSummary{
			RootID:         r.RootID,
			ConversationID: r.ConversationID,
			Preview:        r.Preview,
			AuthorUserID:   r.AuthorUserID,
			ReplyCount:     r.ReplyCount,
			CreatedAt:      r.CreatedAt,
			LastActivityAt: r.LastActivityAt,
		}
	}), nil
}

// LastByPath implements message.Repository.
func (repo *MessageGormRepository) LastByPath(ctx context.Context, rootID string) (*message.Message, error) {
	var row dbschema.Message
	err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).
		Where("root_id = ? AND deleted_at IS NULL", rootID).
		Order("path DESC").
		First(&row).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "thread has no messages")
	}
	return row.EtoD(), nil
}

// CountUnread implements message.Repository.
func (repo *MessageGormRepository) CountUnread(ctx context.Context, conversationID, userID, rootID string) ([]message.UnreadCount, error) {
	var rows []message.UnreadCount
	q := repo.db.GetTx(ctx).Clauses(dbresolver.Write).
		Table("threadline.messages m").
		Select(`m.root_id AS root_id,
			COUNT(m.id) FILTER (WHERE m.deleted_at IS NULL
				AND (m.author_user_id IS NULL OR m.author_user_id <> ?)
				AND (rm.marked_at IS NULL OR m.created_at > rm.marked_at)) AS unread`, userID).
		Joins("LEFT JOIN threadline.read_markers rm ON rm.user_id = ? AND rm.root_id = m.root_id", userID).
		Where("m.conversation_id = ?", conversationID)
	if rootID != "" {
		q = q.Where("m.root_id = ?", rootID)
	}
	if err := q.Group("m.root_id").Order("m.root_id").Scan(&rows).Error; err != nil {
		return nil, database.MapError(ctx, err, "failed to count unread messages")
	}
	return rows, nil
}

// ListRevisions implements message.Repository.
func (repo *MessageGormRepository) ListRevisions(ctx context.Context, messageID string) ([]*message.Revision, error) {
	var rows []*dbschema.MessageRevision
	if err := repo.db.GetTx(ctx).Where("message_id = ?", messageID).Order("id").Find(&rows).Error; err != nil {
		return nil, database.MapError(ctx, err, "failed to list revisions")
	}
	return functional.Map(rows, func(r *dbschema.MessageRevision) *message.Revision { return r.EtoD() }), nil
}

func (repo *MessageGormRepository) lock(ctx context.Context, id string) (*dbschema.Message, error) {
	var row dbschema.Message
	err := repo.db.GetTx(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"message not found", err, "b4c5d6e7-f8a9-4b0c-9d1e-3f4a5b6c7d8e")
	}
	return &row, err
}

func pathExhausted(ctx context.Context, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
		"thread path space exhausted", err, "c5d6e7f8-a9b0-4c1d-8e2f-4a5b6c7d8e9f")
}
