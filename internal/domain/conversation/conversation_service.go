package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"threadline/internal/domain/streamevent"
	"threadline/internal/utils/functional"
	"threadline/internal/utils/idgen"
	"threadline/internal/utils/platformerrors"
)

// RotationMarker flags a user's sessions so their next request receives a fresh token.
type RotationMarker interface {
	MarkUserForRotation(ctx context.Context, userID, reason string) error
}

// SubscriptionCloser ends a user's live streams on a conversation.
type SubscriptionCloser interface {
	Disconnect(conversationID, userID string) int
}

// Config holds conversation policy knobs.
type Config struct {
	InviteTTL time.Duration
}

// Service handles conversations, memberships and invites.
type Service struct {
	repo      Repository
	publisher streamevent.Publisher
	rotation  RotationMarker
	closer    SubscriptionCloser
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a conversation service.
func NewService(repo Repository, publisher streamevent.Publisher, rotation RotationMarker, closer SubscriptionCloser, cfg Config, log zerolog.Logger) *Service {
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 7 * 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		rotation:  rotation,
		closer:    closer,
		cfg:       cfg,
		log:       log.With().Str("component", "conversation").Logger(),
		now:       time.Now,
	}
}

// ===============================================
// Conversations
// ===============================================

// Create makes a conversation owned by creatorID. memberIDs join as members.
func (s *Service) Create(ctx context.Context, creatorID, title string, isGroup bool, memberIDs []string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if len(title) > 200 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"title must be at most 200 characters", nil, "3f6b2a10-8c4d-4e1f-9a7b-1c2d3e4f5a60")
	}

	id, err := idgen.GenerateSecureID("conv", 16)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to generate conversation id", err, "7a8b9c0d-1e2f-4a3b-8c4d-5e6f7a8b9c0d")
	}
	now := s.now().UTC()
	conv := &Conversation{ID: id, Title: title, IsGroup: isGroup, CreatedBy: creatorID, CreatedAt: now, UpdatedAt: now}

	members := []*Membership{{ConversationID: id, UserID: creatorID, Role: RoleOwner, JoinedAt: now}}
	for _, uid := range functional.Uniq(memberIDs) {
		if uid == "" || uid == creatorID {
			continue
		}
		members = append(members, &Membership{ConversationID: id, UserID: uid, Role: RoleMember, JoinedAt: now})
	}
	if !isGroup && len(members) > 2 {
		conv.IsGroup = true
	}

	if err := s.repo.Create(ctx, conv, members); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create conversation")
	}
	for _, m := range members[1:] {
		s.membershipChanged(ctx, m.ConversationID, m.UserID, m.Role, ActionAdded)
	}
	return conv, nil
}

// Get returns a conversation visible to userID along with the caller's membership.
func (s *Service) Get(ctx context.Context, userID, conversationID string) (*Conversation, *Membership, error) {
	m, err := s.RequireRole(ctx, conversationID, userID, RoleViewer)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "conversation not found")
	}
	return conv, m, nil
}

// ListForUser lists the caller's conversations, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	convs, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list conversations")
	}
	return convs, nil
}

// ===============================================
// Memberships
// ===============================================

// RequireRole returns the caller's membership if it grants at least min. Non-members get
// NOT_FOUND so conversation ids are not probeable.
func (s *Service) RequireRole(ctx context.Context, conversationID, userID string, min Role) (*Membership, error) {
	m, err := s.repo.GetMembership(ctx, conversationID, userID)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
				"conversation not found", err, "0b1c2d3e-4f5a-4b6c-8d7e-9f0a1b2c3d4e")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load membership")
	}
	if !m.Role.AtLeast(min) {
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"insufficient role for this conversation", nil, "1c2d3e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f",
			map[string]any{"required_role": string(min), "role": string(m.Role)})
	}
	return m, nil
}

// ListMemberIDs returns the user ids of every participant.
func (s *Service) ListMemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	members, err := s.repo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list members")
	}
	return functional.Map(members, func(m *Membership) string { return m.UserID }), nil
}

// ListConversationIDs returns the ids of every conversation userID participates in.
func (s *Service) ListConversationIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.repo.ListConversationIDs(ctx, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list conversations")
	}
	return ids, nil
}

// ListParticipants lists memberships of a conversation the caller belongs to.
func (s *Service) ListParticipants(ctx context.Context, userID, conversationID string) ([]*Membership, error) {
	if _, err := s.RequireRole(ctx, conversationID, userID, RoleViewer); err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list participants")
	}
	return members, nil
}

// AddParticipant adds userID with role. Only owners may grant ownership.
func (s *Service) AddParticipant(ctx context.Context, actorID, conversationID, userID string, role Role) (*Membership, error) {
	if role == "" {
		role = RoleMember
	}
	if !role.Valid() || userID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"a user id and a valid role are required", nil, "2d3e4f5a-6b7c-4d8e-9f0a-1b2c3d4e5f6a")
	}
	actor, err := s.RequireRole(ctx, conversationID, actorID, RoleAdmin)
	if err != nil {
		return nil, err
	}
	if role == RoleOwner && actor.Role != RoleOwner {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"only owners may add owners", nil, "3e4f5a6b-7c8d-4e9f-8a0b-2c3d4e5f6a7b")
	}

	m := &Membership{ConversationID: conversationID, UserID: userID, Role: role, JoinedAt: s.now().UTC()}
	if err := s.repo.AddMember(ctx, m); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to add participant")
	}
	s.membershipChanged(ctx, conversationID, userID, role, ActionAdded)
	return m, nil
}

// ChangeRole re-roles a participant. The last owner cannot be demoted.
func (s *Service) ChangeRole(ctx context.Context, actorID, conversationID, userID string, role Role) (*Membership, error) {
	if !role.Valid() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"invalid role", nil, "4f5a6b7c-8d9e-4f0a-9b1c-3d4e5f6a7b8c")
	}
	actor, err := s.RequireRole(ctx, conversationID, actorID, RoleAdmin)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.GetMembership(ctx, conversationID, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "participant not found")
	}
	if (role == RoleOwner || target.Role == RoleOwner) && actor.Role != RoleOwner {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"only owners may change ownership", nil, "5a6b7c8d-9e0f-4a1b-8c2d-4e5f6a7b8c9d")
	}
	if target.Role == role {
		return target, nil
	}

	updated, err := s.repo.ChangeRole(ctx, conversationID, userID, role)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to change role")
	}
	s.membershipChanged(ctx, conversationID, userID, role, ActionRoleChanged)
	return updated, nil
}

// RemoveParticipant removes userID. Participants may always remove themselves; removing
// others requires admin, and removing an owner requires owner.
func (s *Service) RemoveParticipant(ctx context.Context, actorID, conversationID, userID string) error {
	target, err := s.RequireRole(ctx, conversationID, userID, RoleViewer)
	if err != nil {
		return err
	}
	if actorID != userID {
		actor, err := s.RequireRole(ctx, conversationID, actorID, RoleAdmin)
		if err != nil {
			return err
		}
		if target.Role == RoleOwner && actor.Role != RoleOwner {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
				"only owners may remove owners", nil, "6b7c8d9e-0f1a-4b2c-9d3e-5f6a7b8c9d0e")
		}
	}

	if err := s.repo.RemoveMember(ctx, conversationID, userID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to remove participant")
	}
	s.membershipChanged(ctx, conversationID, userID, "", ActionRemoved)
	if s.closer != nil {
		s.closer.Disconnect(conversationID, userID)
	}
	return nil
}

// Leave removes the caller from the conversation.
func (s *Service) Leave(ctx context.Context, userID, conversationID string) error {
	return s.RemoveParticipant(ctx, userID, conversationID, userID)
}

// ===============================================
// Invites
// ===============================================

// CreateInvite issues a single-use invite. The plaintext token is only returned here.
func (s *Service) CreateInvite(ctx context.Context, actorID, conversationID, email string, role Role) (*Invite, error) {
	if role == "" {
		role = RoleMember
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !role.Valid() || role == RoleOwner {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"invites may grant admin, member or viewer", nil, "7c8d9e0f-1a2b-4c3d-8e4f-6a7b8c9d0e1f")
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"invalid email", nil, "8d9e0f1a-2b3c-4d4e-9f5a-7b8c9d0e1f2a")
	}
	actor, err := s.RequireRole(ctx, conversationID, actorID, RoleAdmin)
	if err != nil {
		return nil, err
	}
	if role == RoleAdmin && actor.Role != RoleOwner {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"only owners may invite admins", nil, "9e0f1a2b-3c4d-4e5f-8a6b-8c9d0e1f2a3b")
	}

	token, err := idgen.RandomToken(32)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to generate invite token", err, "0f1a2b3c-4d5e-4f6a-9b7c-9d0e1f2a3b4c")
	}
	id, err := idgen.GenerateSecureID("inv", 16)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to generate invite id", err, "1a2b3c4d-5e6f-4a7b-8c8d-0e1f2a3b4c5d")
	}
	now := s.now().UTC()
	inv := &Invite{
		ID:             id,
		ConversationID: conversationID,
		Email:          email,
		Role:           role,
		IssuedBy:       actorID,
		TokenHash:      idgen.HashToken(token),
		ExpiresAt:      now.Add(s.cfg.InviteTTL),
		CreatedAt:      now,
	}
	if err := s.repo.CreateInvite(ctx, inv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create invite")
	}
	inv.Token = token
	return inv, nil
}

// AcceptInvite consumes token for userID. A second acceptance fails with CONFLICT.
func (s *Service) AcceptInvite(ctx context.Context, userID, userEmail, token string) (*Membership, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"invite token is required", nil, "2b3c4d5e-6f7a-4b8c-9d9e-1f2a3b4c5d6e")
	}
	now := s.now().UTC()
	userEmail = strings.ToLower(strings.TrimSpace(userEmail))

	check := func(inv *Invite) error {
		if !now.Before(inv.ExpiresAt) {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnprocessable,
				"invite has expired", nil, "3c4d5e6f-7a8b-4c9d-8e0f-2a3b4c5d6e7f")
		}
		if inv.Email != "" && userEmail != "" && inv.Email != userEmail {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
				"invite was issued to a different email", nil, "4d5e6f7a-8b9c-4d0e-9f1a-3b4c5d6e7f8a")
		}
		return nil
	}

	inv, m, err := s.repo.AcceptInvite(ctx, idgen.HashToken(token), userID, now, check)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to accept invite")
	}
	s.log.Info().Str("conversation_id", inv.ConversationID).Str("user_id", userID).Msg("invite accepted")
	s.membershipChanged(ctx, m.ConversationID, m.UserID, m.Role, ActionAdded)
	return m, nil
}

// ExpireInvites deletes unaccepted invites past their expiry.
func (s *Service) ExpireInvites(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireInvites(ctx, s.now().UTC())
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to expire invites")
	}
	return n, nil
}

// membershipChanged rotates the affected user's sessions and notifies the conversation.
// The removed user is notified explicitly since they are no longer a member.
func (s *Service) membershipChanged(ctx context.Context, conversationID, userID string, role Role, action string) {
	if s.rotation != nil {
		reason := "membership " + action
		if err := s.rotation.MarkUserForRotation(ctx, userID, reason); err != nil {
			// Marking is idempotent.
			if err := s.rotation.MarkUserForRotation(ctx, userID, reason); err != nil {
				s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to mark sessions for rotation")
			}
		}
	}

	if s.publisher == nil {
		return
	}
	draft := streamevent.Draft{
		Name: streamevent.MembershipChanged,
		Payload: streamevent.MembershipPayload{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           string(role),
			Action:         action,
		},
	}
	if action == ActionRemoved {
		members, err := s.ListMemberIDs(ctx, conversationID)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to resolve membership event recipients")
			return
		}
		draft.TargetUserIDs = append(members, userID)
	}
	if _, err := s.publisher.Publish(ctx, conversationID, draft); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to publish membership change")
	}
}
