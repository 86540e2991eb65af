package conversationrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"threadline/internal/domain/conversation"
	"threadline/internal/infrastructure/database"
	"threadline/internal/infrastructure/database/dbschema"
	"threadline/internal/infrastructure/database/transaction"
	"threadline/internal/utils/functional"
	"threadline/internal/utils/platformerrors"
)

type ConversationGormRepository struct {
	db *transaction.Database
}

var _ conversation.Repository = (*ConversationGormRepository)(nil)

func NewConversationGormRepository(db *transaction.Database) conversation.Repository {
	return &ConversationGormRepository{db: db}
}

// Create implements conversation.Repository.
func (repo *ConversationGormRepository) Create(ctx context.Context, conv *conversation.Conversation, members []*conversation.Membership) error {
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		if err := tx.Create(dbschema.NewSchemaConversation(conv)).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		rows := functional.Map(members, dbschema.NewSchemaConversationMember)
		return tx.Create(&rows).Error
	})
	return database.MapError(ctx, err, "failed to create conversation")
}

// FindByID implements conversation.Repository.
func (repo *ConversationGormRepository) FindByID(ctx context.Context, id string) (*conversation.Conversation, error) {
	var row dbschema.Conversation
	if err := repo.db.GetTx(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, database.MapError(ctx, err, "conversation not found")
	}
	return row.EtoD(), nil
}

// ListForUser implements conversation.Repository.
func (repo *ConversationGormRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*conversation.Conversation, error) {
	var rows []*dbschema.Conversation
	err := repo.db.GetTx(ctx).
		Joins("JOIN threadline.conversation_members m ON m.conversation_id = conversations.id").
		Where("m.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to list conversations")
	}
	return functional.Map(rows, func(r *dbschema.Conversation) *conversation.Conversation { return r.EtoD() }), nil
}

// GetMembership implements conversation.Repository. Membership checks read the primary so a
// freshly added participant is visible at once.
func (repo *ConversationGormRepository) GetMembership(ctx context.Context, conversationID, userID string) (*conversation.Membership, error) {
	var row dbschema.ConversationMember
	err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&row).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "membership not found")
	}
	return row.EtoD(), nil
}

// ListMembers implements conversation.Repository.
func (repo *ConversationGormRepository) ListMembers(ctx context.Context, conversationID string) ([]*conversation.Membership, error) {
	var rows []*dbschema.ConversationMember
	err := repo.db.GetTx(ctx).Clauses(dbresolver.Write).
		Where("conversation_id = ?", conversationID).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to list members")
	}
	return functional.Map(rows, func(r *dbschema.ConversationMember) *conversation.Membership { return r.EtoD() }), nil
}

// ListConversationIDs implements conversation.Repository.
func (repo *ConversationGormRepository) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := repo.db.GetTx(ctx).Model(&dbschema.ConversationMember{}).
		Where("user_id = ?", userID).
		Order("conversation_id").
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to list conversation ids")
	}
	return ids, nil
}

// AddMember implements conversation.Repository.
func (repo *ConversationGormRepository) AddMember(ctx context.Context, m *conversation.Membership) error {
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		if err := tx.Create(dbschema.NewSchemaConversationMember(m)).Error; err != nil {
			return err
		}
		return repo.touch(tx, m.ConversationID, m.JoinedAt)
	})
	if database.IsUniqueViolation(err) {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"user is already a participant", err, "c9d0e1f2-a3b4-4c5d-8e6f-7a8b9c0d1e2f")
	}
	return database.MapError(ctx, err, "failed to add member")
}

// ChangeRole implements conversation.Repository.
func (repo *ConversationGormRepository) ChangeRole(ctx context.Context, conversationID, userID string, role conversation.Role) (*conversation.Membership, error) {
	var out *conversation.Membership
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		members, err := repo.lockMembers(ctx, conversationID)
		if err != nil {
			return err
		}
		target, owners := find(members, userID)
		if target == nil {
			return gorm.ErrRecordNotFound
		}
		if target.Role == string(conversation.RoleOwner) && role != conversation.RoleOwner && owners == 1 {
			return lastOwner(ctx)
		}
		if err := repo.db.GetTx(ctx).Model(&dbschema.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Update("role", string(role)).Error; err != nil {
			return err
		}
		target.Role = string(role)
		out = target.EtoD()
		return nil
	})
	if err != nil {
		return nil, database.MapError(ctx, err, "failed to change role")
	}
	return out, nil
}

// RemoveMember implements conversation.Repository.
func (repo *ConversationGormRepository) RemoveMember(ctx context.Context, conversationID, userID string) error {
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		members, err := repo.lockMembers(ctx, conversationID)
		if err != nil {
			return err
		}
		target, owners := find(members, userID)
		if target == nil {
			return gorm.ErrRecordNotFound
		}
		if target.Role == string(conversation.RoleOwner) && owners == 1 {
			return lastOwner(ctx)
		}
		return repo.db.GetTx(ctx).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Delete(&dbschema.ConversationMember{}).Error
	})
	return database.MapError(ctx, err, "failed to remove member")
}

// CreateInvite implements conversation.Repository.
func (repo *ConversationGormRepository) CreateInvite(ctx context.Context, inv *conversation.Invite) error {
	err := repo.db.GetTx(ctx).Create(dbschema.NewSchemaConversationInvite(inv)).Error
	return database.MapError(ctx, err, "failed to create invite")
}

// AcceptInvite implements conversation.Repository.
func (repo *ConversationGormRepository) AcceptInvite(ctx context.Context, tokenHash, userID string, now time.Time, check func(*conversation.Invite) error) (*conversation.Invite, *conversation.Membership, error) {
	var (
		inv    *conversation.Invite
		member *conversation.Membership
	)
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		var row dbschema.ConversationInvite
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token_hash = ?", tokenHash).
			First(&row).Error; err != nil {
			return err
		}
		inv = row.EtoD()
		if inv.Accepted() {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"invite already accepted", conversation.ErrInviteUsed, "d0e1f2a3-b4c5-4d6e-9f7a-8b9c0d1e2f3a")
		}
		if err := check(inv); err != nil {
			return err
		}

		res := tx.Model(&dbschema.ConversationInvite{}).
			Where("id = ? AND accepted_by IS NULL", row.ID).
			Updates(map[string]any{"accepted_by": userID, "accepted_at": now})
		if res.Error != nil {
			return res.Error
		}
		inv.AcceptedBy, inv.AcceptedAt = &userID, &now

		var existing dbschema.ConversationMember
		err := tx.Where("conversation_id = ? AND user_id = ?", inv.ConversationID, userID).First(&existing).Error
		switch {
		case err == nil:
			member = existing.EtoD()
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		m := &conversation.Membership{ConversationID: inv.ConversationID, UserID: userID, Role: inv.Role, JoinedAt: now}
		if err := tx.Create(dbschema.NewSchemaConversationMember(m)).Error; err != nil {
			return err
		}
		member = m
		return repo.touch(tx, inv.ConversationID, now)
	})
	if err != nil {
		return nil, nil, database.MapError(ctx, err, "failed to accept invite")
	}
	return inv, member, nil
}

// ExpireInvites implements conversation.Repository.
func (repo *ConversationGormRepository) ExpireInvites(ctx context.Context, now time.Time) (int64, error) {
	res := repo.db.GetTx(ctx).
		Where("accepted_by IS NULL AND expires_at <= ?", now).
		Delete(&dbschema.ConversationInvite{})
	if res.Error != nil {
		return 0, database.MapError(ctx, res.Error, "failed to expire invites")
	}
	return res.RowsAffected, nil
}

// lockMembers locks every membership row of the conversation so owner counting is serialized.
func (repo *ConversationGormRepository) lockMembers(ctx context.Context, conversationID string) ([]*dbschema.ConversationMember, error) {
	var rows []*dbschema.ConversationMember
	err := repo.db.GetTx(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("conversation_id = ?", conversationID).
		Order("user_id").
		Find(&rows).Error
	return rows, err
}

func (repo *ConversationGormRepository) touch(tx *gorm.DB, conversationID string, at time.Time) error {
	return tx.Model(&dbschema.Conversation{}).Where("id = ?", conversationID).Update("updated_at", at).Error
}

func find(members []*dbschema.ConversationMember, userID string) (*dbschema.ConversationMember, int) {
	var (
		target *dbschema.ConversationMember
		owners int
	)
	for _, m := range members {
		if m.Role == string(conversation.RoleOwner) {
			owners++
		}
		if m.UserID == userID {
			target = m
		}
	}
	return target, owners
}

func lastOwner(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
		"conversation must keep at least one owner", conversation.ErrLastOwner, "e1f2a3b4-c5d6-4e7f-8a9b-0c1d2e3f4a5b")
}
