package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/domain/conversation"
	"threadline/internal/domain/message"
	"threadline/internal/domain/streamevent"
	"threadline/internal/utils/platformerrors"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[string]*Presence
}

func (m *memRepo) Upsert(_ context.Context, p *Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.rows[p.UserID] = &cp
	return nil
}

func (m *memRepo) Find(ctx context.Context, userID string) (*Presence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[userID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "presence not found", nil, "")
	}
	return p, nil
}

type convs map[string][]string

func (c convs) ListConversationIDs(_ context.Context, userID string) ([]string, error) {
	return c[userID], nil
}

type threads struct{}

func (threads) ThreadRoot(ctx context.Context, userID, rootID string, _ conversation.Role) (*message.Message, error) {
	if userID == "outsider" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "thread not found", nil, "")
	}
	return &message.Message{ID: rootID, RootID: rootID, ConversationID: "c1"}, nil
}

type subs struct{ n int }

func (s *subs) ActiveSubscriptions(string) int { return s.n }

type recorder struct {
	mu     sync.Mutex
	drafts []published
}

type published struct {
	conversationID string
	draft          streamevent.Draft
}

func (r *recorder) Publish(_ context.Context, conversationID string, d streamevent.Draft) (streamevent.PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts = append(r.drafts, published{conversationID, d})
	return streamevent.PublishResult{}, nil
}

func newService(counter *subs, pub *recorder) *Service {
	return NewService(&memRepo{rows: map[string]*Presence{}}, convs{"u1": {"c1", "c2"}}, threads{}, counter, pub, 4*time.Second, zerolog.Nop())
}

func TestSetStatusBroadcastsToEveryConversation(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	svc := newService(&subs{}, pub)

	p, err := svc.SetStatus(ctx, "u1", StatusAway)
	require.NoError(t, err)
	assert.Equal(t, StatusAway, p.Status)
	require.Len(t, pub.drafts, 2)
	assert.Equal(t, "c1", pub.drafts[0].conversationID)
	assert.Equal(t, "c2", pub.drafts[1].conversationID)
	assert.Equal(t, streamevent.PresenceUpdate, pub.drafts[0].draft.Name)

	_, err = svc.SetStatus(ctx, "u1", Status("busy"))
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	got, err := svc.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, got.Status)
}

func TestConnectedAndDisconnectedFollowSubscriptions(t *testing.T) {
	ctx := context.Background()
	counter := &subs{n: 1}
	pub := &recorder{}
	svc := newService(counter, pub)

	svc.Connected(ctx, "u1")
	p, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, p.Status)

	counter.n = 2
	svc.Connected(ctx, "u1")
	counter.n = 1
	svc.Disconnected(ctx, "u1")
	assert.Len(t, pub.drafts, 2)

	counter.n = 0
	svc.Disconnected(ctx, "u1")
	p, err = svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, p.Status)
}

func TestConcurrentStreamChangesBroadcastOnce(t *testing.T) {
	tests := []struct {
		name   string
		active int
		open   bool
		want   []Status
	}{
		{name: "many streams open", active: 3, open: true, want: []Status{StatusOnline}},
		{name: "last stream closes", active: 0, open: false, want: []Status{StatusOnline, StatusOffline}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			pub := &recorder{}
			svc := newService(&subs{n: tt.active}, pub)
			if !tt.open {
				svc.streamStatus["u1"] = StatusOnline
				_, err := svc.SetStatus(ctx, "u1", StatusOnline)
				require.NoError(t, err)
			}

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if tt.open {
						svc.Connected(ctx, "u1")
					} else {
						svc.Disconnected(ctx, "u1")
					}
				}()
			}
			wg.Wait()

			var got []Status
			for i, d := range pub.drafts {
				if i%2 == 0 {
					got = append(got, Status(d.draft.Payload.(streamevent.PresencePayload).Status))
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypingIsThrottledAndSwept(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	svc := newService(&subs{}, pub)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Typing(ctx, "u1", "root1")
	require.NoError(t, err)
	now = now.Add(time.Second)
	_, err = svc.Typing(ctx, "u1", "root1")
	require.NoError(t, err)
	require.Len(t, pub.drafts, 1)
	assert.True(t, pub.drafts[0].draft.IsEphemeral())
	assert.Equal(t, []string{"u1"}, svc.TypingIn("root1"))

	now = now.Add(3 * time.Second)
	_, err = svc.Typing(ctx, "u1", "root1")
	require.NoError(t, err)
	assert.Len(t, pub.drafts, 2)

	now = now.Add(10 * time.Second)
	assert.Equal(t, 1, svc.SweepTyping())
	assert.Empty(t, svc.TypingIn("root1"))

	_, err = svc.Typing(ctx, "outsider", "root1")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}
