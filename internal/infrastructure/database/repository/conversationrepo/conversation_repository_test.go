package conversationrepo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/domain/conversation"
	"threadline/internal/infrastructure/database/dbtest"
	"threadline/internal/infrastructure/database/transaction"
	"threadline/internal/utils/platformerrors"
)

func seed(t *testing.T, db *transaction.Database, repo conversation.Repository, roles ...conversation.Role) (string, []string) {
	t.Helper()
	now := time.Now().UTC()
	users := make([]string, len(roles))
	for i := range roles {
		users[i] = dbtest.SeedUser(t, db)
	}
	conv := &conversation.Conversation{ID: dbtest.NewID("conv"), IsGroup: true, CreatedBy: users[0], CreatedAt: now, UpdatedAt: now}
	members := make([]*conversation.Membership, len(roles))
	for i, role := range roles {
		members[i] = &conversation.Membership{ConversationID: conv.ID, UserID: users[i], Role: role, JoinedAt: now}
	}
	require.NoError(t, repo.Create(context.Background(), conv, members))
	return conv.ID, users
}

func newInvite(convID, issuer string) *conversation.Invite {
	now := time.Now().UTC()
	return &conversation.Invite{
		ID:             dbtest.NewID("inv"),
		ConversationID: convID,
		Role:           conversation.RoleMember,
		IssuedBy:       issuer,
		TokenHash:      (dbtest.NewID("h") + "0000000000000000000000000000000000000000000000000000000000000000")[:64],
		ExpiresAt:      now.Add(time.Hour),
		CreatedAt:      now,
	}
}

func TestAcceptInviteOnlyOnce(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewConversationGormRepository(db)
	ctx := context.Background()
	convID, users := seed(t, db, repo, conversation.RoleOwner)
	inv := newInvite(convID, users[0])
	require.NoError(t, repo.CreateInvite(ctx, inv))

	accept := func(userID string) error {
		_, _, err := repo.AcceptInvite(ctx, inv.TokenHash, userID, time.Now().UTC(), func(*conversation.Invite) error { return nil })
		return err
	}

	guests := []string{dbtest.SeedUser(t, db), dbtest.SeedUser(t, db), dbtest.SeedUser(t, db)}
	var (
		wg        sync.WaitGroup
		accepted  atomic.Int32
		conflicts atomic.Int32
	)
	for _, guest := range guests {
		wg.Add(1)
		go func(guest string) {
			defer wg.Done()
			switch err := accept(guest); {
			case err == nil:
				accepted.Add(1)
			case platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict):
				assert.ErrorIs(t, err, conversation.ErrInviteUsed)
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(guest)
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(2), conflicts.Load())

	members, err := repo.ListMembers(ctx, convID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestAcceptInviteRunsCheckBeforeConsuming(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewConversationGormRepository(db)
	ctx := context.Background()
	convID, users := seed(t, db, repo, conversation.RoleOwner)
	inv := newInvite(convID, users[0])
	require.NoError(t, repo.CreateInvite(ctx, inv))
	guest := dbtest.SeedUser(t, db)

	expired := platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExpired, "invite expired", nil, "")
	_, _, err := repo.AcceptInvite(ctx, inv.TokenHash, guest, time.Now().UTC(), func(*conversation.Invite) error { return expired })
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExpired))

	got, member, err := repo.AcceptInvite(ctx, inv.TokenHash, guest, time.Now().UTC(), func(*conversation.Invite) error { return nil })
	require.NoError(t, err)
	assert.True(t, got.Accepted())
	assert.Equal(t, conversation.RoleMember, member.Role)
}

func TestLastOwnerCannotLeaveOrBeDemoted(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewConversationGormRepository(db)
	ctx := context.Background()
	convID, users := seed(t, db, repo, conversation.RoleOwner, conversation.RoleMember)
	owner, member := users[0], users[1]

	err := repo.RemoveMember(ctx, convID, owner)
	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrLastOwner)

	_, err = repo.ChangeRole(ctx, convID, owner, conversation.RoleAdmin)
	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrLastOwner)

	promoted, err := repo.ChangeRole(ctx, convID, member, conversation.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleOwner, promoted.Role)

	require.NoError(t, repo.RemoveMember(ctx, convID, owner))
	_, err = repo.GetMembership(ctx, convID, owner)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestConcurrentOwnerDemotionsKeepOneOwner(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewConversationGormRepository(db)
	ctx := context.Background()
	convID, users := seed(t, db, repo, conversation.RoleOwner, conversation.RoleOwner)

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, _ = repo.ChangeRole(ctx, convID, u, conversation.RoleMember)
		}(u)
	}
	wg.Wait()

	members, err := repo.ListMembers(ctx, convID)
	require.NoError(t, err)
	owners := 0
	for _, m := range members {
		if m.Role == conversation.RoleOwner {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
}

func TestAddMemberTwiceConflicts(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewConversationGormRepository(db)
	ctx := context.Background()
	convID, users := seed(t, db, repo, conversation.RoleOwner)

	err := repo.AddMember(ctx, &conversation.Membership{ConversationID: convID, UserID: users[0], Role: conversation.RoleMember, JoinedAt: time.Now().UTC()})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))
}
