package conversation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/domain/streamevent"
	"threadline/internal/utils/platformerrors"
)

type fakeRepo struct {
	mu      sync.Mutex
	convs   map[string]*Conversation
	members map[string]map[string]*Membership
	invites map[string]*Invite
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		convs:   map[string]*Conversation{},
		members: map[string]map[string]*Membership{},
		invites: map[string]*Invite{},
	}
}

func notFound(ctx context.Context, msg string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, msg, nil, "")
}

func conflict(ctx context.Context, msg string, err error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, msg, err, "")
}

func (f *fakeRepo) Create(_ context.Context, conv *Conversation, members []*Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[conv.ID] = conv
	f.members[conv.ID] = map[string]*Membership{}
	for _, m := range members {
		f.members[conv.ID][m.UserID] = m
	}
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id string) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, notFound(ctx, "conversation not found")
	}
	return c, nil
}

func (f *fakeRepo) ListForUser(_ context.Context, userID string, limit int) ([]*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Conversation
	for id, ms := range f.members {
		if _, ok := ms[userID]; ok {
			out = append(out, f.convs[id])
		}
	}
	return out, nil
}

func (f *fakeRepo) GetMembership(ctx context.Context, conversationID, userID string) (*Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[conversationID][userID]
	if !ok {
		return nil, notFound(ctx, "membership not found")
	}
	cp := *m
	return &cp, nil
}

func (f *fakeRepo) ListMembers(_ context.Context, conversationID string) ([]*Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Membership
	for _, m := range f.members[conversationID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeRepo) ListConversationIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, ms := range f.members {
		if _, ok := ms[userID]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeRepo) AddMember(ctx context.Context, m *Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[m.ConversationID][m.UserID]; ok {
		return conflict(ctx, "already a participant", nil)
	}
	f.members[m.ConversationID][m.UserID] = m
	return nil
}

func (f *fakeRepo) owners(conversationID string) int {
	n := 0
	for _, m := range f.members[conversationID] {
		if m.Role == RoleOwner {
			n++
		}
	}
	return n
}

func (f *fakeRepo) ChangeRole(ctx context.Context, conversationID, userID string, role Role) (*Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[conversationID][userID]
	if !ok {
		return nil, notFound(ctx, "membership not found")
	}
	if m.Role == RoleOwner && role != RoleOwner && f.owners(conversationID) == 1 {
		return nil, conflict(ctx, "last owner", ErrLastOwner)
	}
	m.Role = role
	return m, nil
}

func (f *fakeRepo) RemoveMember(ctx context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[conversationID][userID]
	if !ok {
		return notFound(ctx, "membership not found")
	}
	if m.Role == RoleOwner && f.owners(conversationID) == 1 {
		return conflict(ctx, "last owner", ErrLastOwner)
	}
	delete(f.members[conversationID], userID)
	return nil
}

func (f *fakeRepo) CreateInvite(_ context.Context, inv *Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *inv
	f.invites[inv.TokenHash] = &cp
	return nil
}

func (f *fakeRepo) AcceptInvite(ctx context.Context, tokenHash, userID string, now time.Time, check func(*Invite) error) (*Invite, *Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[tokenHash]
	if !ok {
		return nil, nil, notFound(ctx, "invite not found")
	}
	if inv.Accepted() {
		return nil, nil, conflict(ctx, "invite already accepted", ErrInviteUsed)
	}
	if err := check(inv); err != nil {
		return nil, nil, err
	}
	inv.AcceptedBy = &userID
	inv.AcceptedAt = &now
	m, ok := f.members[inv.ConversationID][userID]
	if !ok {
		m = &Membership{ConversationID: inv.ConversationID, UserID: userID, Role: inv.Role, JoinedAt: now}
		f.members[inv.ConversationID][userID] = m
	}
	return inv, m, nil
}

func (f *fakeRepo) ExpireInvites(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, inv := range f.invites {
		if !inv.Accepted() && !now.Before(inv.ExpiresAt) {
			delete(f.invites, k)
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	drafts []streamevent.Draft
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, d streamevent.Draft) (streamevent.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drafts = append(p.drafts, d)
	return streamevent.PublishResult{}, nil
}

type recordingRotation struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingRotation) MarkUserForRotation(_ context.Context, userID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return nil
}

type recordingCloser struct{ closed []string }

func (c *recordingCloser) Disconnect(_, userID string) int {
	c.closed = append(c.closed, userID)
	return 1
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	pub      *recordingPublisher
	rotation *recordingRotation
	closer   *recordingCloser
}

func newFixture() fixture {
	f := fixture{repo: newFakeRepo(), pub: &recordingPublisher{}, rotation: &recordingRotation{}, closer: &recordingCloser{}}
	f.svc = NewService(f.repo, f.pub, f.rotation, f.closer, Config{InviteTTL: time.Hour}, zerolog.Nop())
	return f
}

func TestCreateMakesCreatorOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	conv, err := f.svc.Create(ctx, "u1", "Design", false, []string{"u2", "u2", "u1"})
	require.NoError(t, err)

	members, err := f.svc.ListParticipants(ctx, "u1", conv.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, RoleOwner, members[0].Role)
	assert.Equal(t, RoleMember, members[1].Role)
}

func TestNonMemberSeesNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	conv, err := f.svc.Create(ctx, "u1", "", false, nil)
	require.NoError(t, err)

	_, _, err = f.svc.Get(ctx, "stranger", conv.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestLastOwnerCannotLeaveOrBeDemoted(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	conv, err := f.svc.Create(ctx, "u1", "", true, nil)
	require.NoError(t, err)

	err = f.svc.Leave(ctx, "u1", conv.ID)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))

	_, err = f.svc.ChangeRole(ctx, "u1", conv.ID, "u1", RoleMember)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))

	_, err = f.svc.AddParticipant(ctx, "u1", conv.ID, "u2", RoleOwner)
	require.NoError(t, err)
	require.NoError(t, f.svc.Leave(ctx, "u1", conv.ID))
}

func TestMembershipChangesRotateAndNotify(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	conv, err := f.svc.Create(ctx, "u1", "", true, nil)
	require.NoError(t, err)

	_, err = f.svc.AddParticipant(ctx, "u1", conv.ID, "u2", RoleMember)
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveParticipant(ctx, "u1", conv.ID, "u2"))

	assert.Equal(t, []string{"u2", "u2"}, f.rotation.users)
	require.Len(t, f.pub.drafts, 2)
	assert.Equal(t, streamevent.MembershipChanged, f.pub.drafts[1].Name)
	assert.ElementsMatch(t, []string{"u1", "u2"}, f.pub.drafts[1].TargetUserIDs)
	assert.Equal(t, []string{"u2"}, f.closer.closed)
}

func TestRolePermissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	conv, err := f.svc.Create(ctx, "owner", "", true, []string{"member"})
	require.NoError(t, err)
	_, err = f.svc.AddParticipant(ctx, "owner", conv.ID, "admin", RoleAdmin)
	require.NoError(t, err)

	_, err = f.svc.AddParticipant(ctx, "member", conv.ID, "x", RoleMember)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	_, err = f.svc.AddParticipant(ctx, "admin", conv.ID, "y", RoleOwner)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	err = f.svc.RemoveParticipant(ctx, "admin", conv.ID, "owner")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	require.NoError(t, f.svc.RemoveParticipant(ctx, "admin", conv.ID, "member"))
}

func TestInviteAcceptedOnceUnderRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	conv, err := f.svc.Create(ctx, "u1", "", true, nil)
	require.NoError(t, err)
	inv, err := f.svc.CreateInvite(ctx, "u1", conv.ID, "", RoleMember)
	require.NoError(t, err)
	require.NotEmpty(t, inv.Token)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, user := range []string{"a", "b"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			m, err := f.svc.AcceptInvite(ctx, user, "", inv.Token)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				assert.Equal(t, conv.ID, m.ConversationID)
				successes++
			} else if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
				conflicts++
			}
		}(user)
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	members, err := f.svc.ListMemberIDs(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestInviteChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	conv, err := f.svc.Create(ctx, "u1", "", true, nil)
	require.NoError(t, err)

	inv, err := f.svc.CreateInvite(ctx, "u1", conv.ID, "Bob@Example.com", RoleViewer)
	require.NoError(t, err)

	_, err = f.svc.AcceptInvite(ctx, "u2", "eve@example.com", inv.Token)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.svc.AcceptInvite(ctx, "u2", "bob@example.com", inv.Token)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnprocessable))

	n, err := f.svc.ExpireInvites(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.AcceptInvite(ctx, "u2", "bob@example.com", "nope")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	_, err = f.svc.CreateInvite(ctx, "u1", conv.ID, "x@example.com", RoleOwner)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}
