package conversation

import (
	"context"
	"errors"
	"time"
)

// Role is a participant's permission level inside a conversation.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants at least the permissions of min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// CanManage reports whether r may add, remove or re-role participants.
func (r Role) CanManage() bool {
	return r.AtLeast(RoleAdmin)
}

// Membership actions carried by membership.changed.
const (
	ActionAdded       = "added"
	ActionRemoved     = "removed"
	ActionRoleChanged = "role_changed"
)

// ErrLastOwner is wrapped when a change would leave a conversation without an owner.
var ErrLastOwner = errors.New("conversation must keep at least one owner")

// ErrInviteUsed is wrapped when an invite has already been accepted.
var ErrInviteUsed = errors.New("invite already accepted")

type Conversation struct {
	ID        string
	Title     string
	IsGroup   bool
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Membership struct {
	ConversationID string
	UserID         string
	Role           Role
	JoinedAt       time.Time
}

type Invite struct {
	ID             string
	ConversationID string
	Email          string
	Role           Role
	IssuedBy       string
	TokenHash      string
	ExpiresAt      time.Time
	AcceptedBy     *string
	AcceptedAt     *time.Time
	CreatedAt      time.Time

	// Token is the plaintext token, only populated when the invite is created.
	Token string
}

// Accepted reports whether the invite has been consumed.
func (i *Invite) Accepted() bool {
	return i.AcceptedBy != nil
}

// Repository persists conversations, memberships and invites.
type Repository interface {
	Create(ctx context.Context, conv *Conversation, members []*Membership) error
	FindByID(ctx context.Context, id string) (*Conversation, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*Conversation, error)

	GetMembership(ctx context.Context, conversationID, userID string) (*Membership, error)
	ListMembers(ctx context.Context, conversationID string) ([]*Membership, error)
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
	AddMember(ctx context.Context, m *Membership) error
	// ChangeRole and RemoveMember fail with a CONFLICT wrapping ErrLastOwner when the
	// conversation would be left without an owner.
	ChangeRole(ctx context.Context, conversationID, userID string, role Role) (*Membership, error)
	RemoveMember(ctx context.Context, conversationID, userID string) error

	CreateInvite(ctx context.Context, inv *Invite) error
	// AcceptInvite consumes the invite and adds the membership in one transaction. The
	// check callback runs against the locked invite row before anything is written.
	AcceptInvite(ctx context.Context, tokenHash, userID string, now time.Time, check func(*Invite) error) (*Invite, *Membership, error)
	ExpireInvites(ctx context.Context, now time.Time) (int64, error)
}

// Directory answers member lookups straight from the repository. The stream hub uses it to fan out.
type Directory struct {
	repo Repository
}

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) ListMemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	members, err := d.repo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}
