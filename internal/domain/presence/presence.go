package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"threadline/internal/domain/conversation"
	"threadline/internal/domain/message"
	"threadline/internal/domain/streamevent"
	"threadline/internal/utils/keyedmutex"
	"threadline/internal/utils/platformerrors"
)

// Status is a user's availability.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusAway || s == StatusOffline
}

type Presence struct {
	UserID     string
	Status     Status
	LastSeenAt time.Time
}

type Repository interface {
	Upsert(ctx context.Context, p *Presence) error
	Find(ctx context.Context, userID string) (*Presence, error)
}

// Conversations lists where a user's presence is visible.
type Conversations interface {
	ListConversationIDs(ctx context.Context, userID string) ([]string, error)
}

// Threads resolves a thread root for a caller with the given role.
type Threads interface {
	ThreadRoot(ctx context.Context, userID, rootID string, min conversation.Role) (*message.Message, error)
}

// SubscriptionCounter reports how many live streams a user holds.
type SubscriptionCounter interface {
	ActiveSubscriptions(userID string) int
}

type typingKey struct {
	userID string
	rootID string
}

type typingEntry struct {
	conversationID string
	expiresAt      time.Time
}

// Service tracks presence and typing.
type Service struct {
	repo      Repository
	convs     Conversations
	threads   Threads
	subs      SubscriptionCounter
	publisher streamevent.Publisher
	typingTTL time.Duration
	log       zerolog.Logger
	now       func() time.Time

	streamLocks *keyedmutex.Mutex

	mu           sync.Mutex
	typing       map[typingKey]typingEntry
	streamStatus map[string]Status
}

// NewService creates a presence service.
func NewService(repo Repository, convs Conversations, threads Threads, subs SubscriptionCounter, publisher streamevent.Publisher, typingTTL time.Duration, log zerolog.Logger) *Service {
	if typingTTL <= 0 {
		typingTTL = 6 * time.Second
	}
	return &Service{
		repo:      repo,
		convs:     convs,
		threads:   threads,
		subs:      subs,
		publisher: publisher,
		typingTTL: typingTTL,
		log:       log.With().Str("component", "presence").Logger(),
		now:       time.Now,
		typing:    make(map[typingKey]typingEntry),

		streamLocks:  keyedmutex.New(),
		streamStatus: make(map[string]Status),
	}
}

// SetStatus records a status and broadcasts it to every conversation of the user.
func (s *Service) SetStatus(ctx context.Context, userID string, status Status) (*Presence, error) {
	if !status.Valid() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"status must be online, away or offline", nil, "7b8c9d0e-1f2a-4b3c-8d4e-5f6a7b8c9d0f")
	}
	p := &Presence{UserID: userID, Status: status, LastSeenAt: s.now().UTC()}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to save presence")
	}

	convIDs, err := s.convs.ListConversationIDs(ctx, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve presence audience")
	}
	payload := streamevent.PresencePayload{UserID: userID, Status: string(status), LastSeenAt: p.LastSeenAt}
	for _, convID := range convIDs {
		if _, err := s.publisher.Publish(ctx, convID, streamevent.Draft{Name: streamevent.PresenceUpdate, Payload: payload}); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", convID).Msg("failed to publish presence")
		}
	}
	return p, nil
}

// Get returns the stored presence, offline when none was recorded.
func (s *Service) Get(ctx context.Context, userID string) (*Presence, error) {
	p, err := s.repo.Find(ctx, userID)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return &Presence{UserID: userID, Status: StatusOffline}, nil
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load presence")
	}
	return p, nil
}

// Connected marks the user online when its first stream opens.
func (s *Service) Connected(ctx context.Context, userID string) {
	s.reconcile(ctx, userID)
}

// Disconnected marks the user offline once its last stream closes.
func (s *Service) Disconnected(ctx context.Context, userID string) {
	s.reconcile(ctx, userID)
}

// reconcile broadcasts a status only when the live stream count moves the user across zero.
// Concurrent opens and closes of one user converge to a single transition.
func (s *Service) reconcile(ctx context.Context, userID string) {
	release := s.streamLocks.Lock(userID)
	defer release()

	want := StatusOffline
	if s.subs.ActiveSubscriptions(userID) > 0 {
		want = StatusOnline
	}
	s.mu.Lock()
	have, ok := s.streamStatus[userID]
	s.mu.Unlock()
	if !ok {
		have = StatusOffline
	}
	if want == have {
		return
	}

	if _, err := s.SetStatus(ctx, userID, want); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("status", string(want)).Msg("failed to update stream presence")
		return
	}
	s.mu.Lock()
	if want == StatusOnline {
		s.streamStatus[userID] = want
	} else {
		delete(s.streamStatus, userID)
	}
	s.mu.Unlock()
}

// ===============================================
// Typing
// ===============================================

// Typing records that userID is typing in a thread and emits an ephemeral typing.update.
// Repeats within half the TTL refresh the expiry without a new event.
func (s *Service) Typing(ctx context.Context, userID, rootID string) (time.Time, error) {
	root, err := s.threads.ThreadRoot(ctx, userID, rootID, conversation.RoleMember)
	if err != nil {
		return time.Time{}, err
	}

	now := s.now().UTC()
	expires := now.Add(s.typingTTL)
	key := typingKey{userID: userID, rootID: rootID}

	s.mu.Lock()
	prev, active := s.typing[key]
	s.typing[key] = typingEntry{conversationID: root.ConversationID, expiresAt: expires}
	s.mu.Unlock()

	if active && prev.expiresAt.Sub(now) > s.typingTTL/2 {
		return expires, nil
	}
	_, err = s.publisher.Publish(ctx, root.ConversationID, streamevent.Draft{
		Name: streamevent.TypingUpdate,
		Payload: streamevent.TypingPayload{
			ConversationID: root.ConversationID,
			RootID:         rootID,
			UserID:         userID,
			ExpiresAt:      expires,
		},
		Ephemeral: true,
	})
	if err != nil {
		return time.Time{}, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to publish typing")
	}
	return expires, nil
}

// TypingIn lists users typing in a thread right now.
func (s *Service) TypingIn(rootID string) []string {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []string
	for k, e := range s.typing {
		if k.rootID == rootID && e.expiresAt.After(now) {
			users = append(users, k.userID)
		}
	}
	return users
}

// SweepTyping forgets expired typing entries.
func (s *Service) SweepTyping() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.typing {
		if !e.expiresAt.After(now) {
			delete(s.typing, k)
			n++
		}
	}
	return n
}
