package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/domain/streamevent"
)

type staticMembers map[string][]string

func (m staticMembers) ListMemberIDs(_ context.Context, conversationID string) ([]string, error) {
	return m[conversationID], nil
}

type failingStore struct {
	*streamevent.MemoryStore
}

func (f failingStore) RecordEvent(context.Context, streamevent.Record) error {
	return errors.New("disk full")
}

func newTestHub(t *testing.T, store streamevent.Store, members staticMembers, cfg Config) *Hub {
	t.Helper()
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 64
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = time.Second
	}
	return New(store, members, cfg, zerolog.Nop())
}

func delta(text string) streamevent.Draft {
	return streamevent.Draft{Name: streamevent.MessageDelta, Payload: streamevent.MessageDeltaPayload{Delta: text}}
}

func next(t *testing.T, sub *Subscription) streamevent.Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := sub.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, r, "expected an event, got keep-alive")
	return *r
}

func TestPublishThenReplayAfterLastEventID(t *testing.T) {
	ctx := context.Background()
	store := streamevent.NewMemoryStore()
	h := newTestHub(t, store, staticMembers{"c1": {"u1"}}, Config{})

	for i := 0; i < 15; i++ {
		res, err := h.Publish(ctx, "c1", delta("x"))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), res.Sequences["u1"])
	}

	sub, err := h.Subscribe(ctx, "c1", "u1", "evt_13")
	require.NoError(t, err)
	defer sub.Close()

	first := next(t, sub)
	assert.Equal(t, int64(14), first.Sequence)
	assert.Equal(t, "evt_14", first.EventID)
	assert.Equal(t, int64(15), next(t, sub).Sequence)

	_, err = h.Publish(ctx, "c1", delta("live"))
	require.NoError(t, err)
	assert.Equal(t, int64(16), next(t, sub).Sequence)
}

func TestResumeBeyondReplayPageDeliversEveryEvent(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1"}}, Config{ReplayLimit: 5, ReplayMax: 5})

	for i := 0; i < 20; i++ {
		_, err := h.Publish(ctx, "c1", delta("x"))
		require.NoError(t, err)
	}

	sub, err := h.Subscribe(ctx, "c1", "u1", "evt_3")
	require.NoError(t, err)
	defer sub.Close()

	_, err = h.Publish(ctx, "c1", delta("live"))
	require.NoError(t, err)

	for want := int64(4); want <= 21; want++ {
		r := next(t, sub)
		require.Equal(t, want, r.Sequence)
		assert.Equal(t, streamevent.FormatEventID(want), r.EventID)
	}
}

func TestResumedReplayHoldsLiveEventsUntilCaughtUp(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1"}, "c2": {"u1"}}, Config{ReplayLimit: 2, ReplayMax: 2})

	for i := 0; i < 6; i++ {
		conv := "c1"
		if i%2 == 1 {
			conv = "c2"
		}
		_, err := h.Publish(ctx, conv, delta("x"))
		require.NoError(t, err)
	}

	sub, err := h.Subscribe(ctx, "c1", "u1", "evt_0")
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, int64(1), next(t, sub).Sequence)
	_, err = h.Publish(ctx, "c1", delta("live"))
	require.NoError(t, err)

	var got []int64
	for i := 0; i < 3; i++ {
		got = append(got, next(t, sub).Sequence)
	}
	assert.Equal(t, []int64{3, 5, 7}, got)
}

func TestSubscribeWithoutCursorReplaysNewest(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1"}}, Config{ReplayLimit: 3})

	for i := 0; i < 5; i++ {
		_, err := h.Publish(ctx, "c1", delta("x"))
		require.NoError(t, err)
	}

	for _, cursor := range []string{"", "garbage"} {
		sub, err := h.Subscribe(ctx, "c1", "u1", cursor)
		require.NoError(t, err)
		assert.Equal(t, int64(3), next(t, sub).Sequence, cursor)
		assert.Equal(t, int64(4), next(t, sub).Sequence, cursor)
		assert.Equal(t, int64(5), next(t, sub).Sequence, cursor)
		sub.Close()
	}
}

func TestReplayIsScopedToConversation(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1"}, "c2": {"u1"}}, Config{})

	_, err := h.Publish(ctx, "c1", delta("a"))
	require.NoError(t, err)
	_, err = h.Publish(ctx, "c2", delta("b"))
	require.NoError(t, err)
	_, err = h.Publish(ctx, "c1", delta("c"))
	require.NoError(t, err)

	sub, err := h.Subscribe(ctx, "c1", "u1", "evt_0")
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, int64(1), next(t, sub).Sequence)
	assert.Equal(t, int64(3), next(t, sub).Sequence)
}

func TestLiveEventsArriveInPublishOrder(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1", "u2"}}, Config{})

	sub1, err := h.Subscribe(ctx, "c1", "u1", "")
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := h.Subscribe(ctx, "c1", "u2", "")
	require.NoError(t, err)
	defer sub2.Close()

	for _, text := range []string{"Hello", " world"} {
		_, err := h.Publish(ctx, "c1", delta(text))
		require.NoError(t, err)
	}

	for _, sub := range []*Subscription{sub1, sub2} {
		var got []string
		for i := 0; i < 2; i++ {
			r := next(t, sub)
			var env struct {
				Payload streamevent.MessageDeltaPayload `json:"payload"`
			}
			data, err := r.Data()
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(data, &env))
			got = append(got, env.Payload.Delta)
		}
		assert.Equal(t, []string{"Hello", " world"}, got)
	}
}

func TestTargetedPublish(t *testing.T) {
	ctx := context.Background()
	store := streamevent.NewMemoryStore()
	h := newTestHub(t, store, staticMembers{"c1": {"u1", "u2"}}, Config{})

	res, err := h.Publish(ctx, "c1", streamevent.Draft{
		Name:          streamevent.UnreadUpdate,
		Payload:       streamevent.UnreadPayload{ConversationID: "c1"},
		TargetUserIDs: []string{"u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"u2": 1}, res.Sequences)

	latest, err := store.LatestSequence(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestLaggingSubscriberDropsOldestAndNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1"}}, Config{QueueCapacity: 4})

	sub, err := h.Subscribe(ctx, "c1", "u1", "")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		_, err := h.Publish(ctx, "c1", delta("x"))
		require.NoError(t, err)
	}

	marker := next(t, sub)
	assert.Equal(t, streamevent.StreamError, marker.Name)
	assert.False(t, marker.Persisted())
	var env struct {
		Payload streamevent.ErrorPayload `json:"payload"`
	}
	data, err := marker.Data()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, streamevent.ErrorCodeLagging, env.Payload.Code)
	assert.Equal(t, uint64(7), env.Payload.Dropped)

	for _, want := range []int64{8, 9, 10} {
		assert.Equal(t, want, next(t, sub).Sequence)
	}

	// Once drained the subscriber is healthy again.
	_, err = h.Publish(ctx, "c1", delta("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), next(t, sub).Sequence)
}

func TestLagMarkerPrecedesTheGap(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1"}}, Config{QueueCapacity: 4})

	sub, err := h.Subscribe(ctx, "c1", "u1", "")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		_, err := h.Publish(ctx, "c1", delta("x"))
		require.NoError(t, err)
	}

	var order []string
	for i := 0; i < 4; i++ {
		r := next(t, sub)
		if r.Persisted() {
			order = append(order, r.EventID)
		} else {
			order = append(order, string(r.Name))
		}
	}
	assert.Equal(t, []string{string(streamevent.StreamError), "evt_3", "evt_4", "evt_5"}, order)

	// A later overflow, after the first marker was read, is announced again.
	for i := 0; i < 6; i++ {
		_, err := h.Publish(ctx, "c1", delta("x"))
		require.NoError(t, err)
	}
	marker := next(t, sub)
	assert.Equal(t, streamevent.StreamError, marker.Name)
	for _, want := range []int64{9, 10, 11} {
		assert.Equal(t, want, next(t, sub).Sequence)
	}
}

func TestPruneDoesNotRestartSequences(t *testing.T) {
	ctx := context.Background()
	store := streamevent.NewMemoryStore()
	members := staticMembers{"c1": {"u1"}}
	h := newTestHub(t, store, members, Config{})

	for i := 0; i < 3; i++ {
		_, err := h.Publish(ctx, "c1", delta("x"))
		require.NoError(t, err)
	}
	_, err := store.Prune(ctx, "u1", 0, 0)
	require.NoError(t, err)

	restarted := newTestHub(t, store, members, Config{})
	res, err := restarted.Publish(ctx, "c1", delta("x"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Sequences["u1"])
}

func TestActiveSubscriptionsCountAcrossConversations(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1"}, "c2": {"u1"}}, Config{})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		subs []*Subscription
	)
	for i := 0; i < 10; i++ {
		conv := "c1"
		if i%2 == 1 {
			conv = "c2"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := h.Subscribe(ctx, conv, "u1", "")
			assert.NoError(t, err)
			mu.Lock()
			subs = append(subs, sub)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, h.ActiveSubscriptions("u1"))

	for _, sub := range subs {
		sub.Close()
		sub.Close()
	}
	assert.Zero(t, h.ActiveSubscriptions("u1"))
	assert.Zero(t, h.ActiveSubscriptions("u2"))
}

func TestTypingIsEphemeral(t *testing.T) {
	ctx := context.Background()
	store := streamevent.NewMemoryStore()
	h := newTestHub(t, store, staticMembers{"c1": {"u1", "u2"}}, Config{})

	sub, err := h.Subscribe(ctx, "c1", "u2", "")
	require.NoError(t, err)
	defer sub.Close()

	res, err := h.Publish(ctx, "c1", streamevent.Draft{
		Name:    streamevent.TypingUpdate,
		Payload: streamevent.TypingPayload{ConversationID: "c1", UserID: "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Empty(t, res.Sequences)

	r := next(t, sub)
	assert.Equal(t, streamevent.TypingUpdate, r.Name)
	assert.Empty(t, r.EventID)

	latest, err := store.LatestSequence(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestPersistFailureAbortsAndEmitsErrorEvent(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, failingStore{streamevent.NewMemoryStore()}, staticMembers{"c1": {"u1"}}, Config{})

	sub, err := h.Subscribe(ctx, "c1", "u1", "")
	require.NoError(t, err)
	defer sub.Close()

	_, err = h.Publish(ctx, "c1", delta("lost"))
	require.Error(t, err)

	r := next(t, sub)
	assert.Equal(t, streamevent.Error, r.Name)
	assert.False(t, r.Persisted())
}

func TestSequenceConflictReseeds(t *testing.T) {
	ctx := context.Background()
	store := streamevent.NewMemoryStore()
	members := staticMembers{"c1": {"u1"}}
	replicaA := newTestHub(t, store, members, Config{})
	replicaB := newTestHub(t, store, members, Config{})

	var got []int64
	for i := 0; i < 4; i++ {
		h := replicaA
		if i%2 == 1 {
			h = replicaB
		}
		res, err := h.Publish(ctx, "c1", delta("x"))
		require.NoError(t, err)
		got = append(got, res.Sequences["u1"])
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, got)
}

func TestConcurrentPublishesKeepPerUserSequenceUnique(t *testing.T) {
	ctx := context.Background()
	store := streamevent.NewMemoryStore()
	h := newTestHub(t, store, staticMembers{"c1": {"u1"}, "c2": {"u1"}}, Config{})

	var wg sync.WaitGroup
	for _, conv := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(conv string) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := h.Publish(ctx, conv, delta("x"))
				assert.NoError(t, err)
			}
		}(conv)
	}
	wg.Wait()

	all, err := store.LoadRecent(ctx, "u1", streamevent.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 50)
	for i, r := range all {
		assert.Equal(t, int64(i+1), r.Sequence)
	}
}

func TestKeepAliveAndClose(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1"}}, Config{KeepAlive: 10 * time.Millisecond})

	sub, err := h.Subscribe(ctx, "c1", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, h.ActiveSubscriptions("u1"))

	r, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, r)

	sub.Close()
	sub.Close()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
	assert.Zero(t, h.ActiveSubscriptions("u1"))
}

func TestDisconnectClosesUserSubscriptions(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, streamevent.NewMemoryStore(), staticMembers{"c1": {"u1", "u2"}}, Config{})

	sub1, err := h.Subscribe(ctx, "c1", "u1", "")
	require.NoError(t, err)
	sub2, err := h.Subscribe(ctx, "c1", "u2", "")
	require.NoError(t, err)
	defer sub2.Close()

	assert.Equal(t, 1, h.Disconnect("c1", "u1"))
	select {
	case <-sub1.Done():
	default:
		t.Fatal("subscription not closed")
	}
	assert.Equal(t, 1, h.ActiveSubscriptions("u2"))
}
