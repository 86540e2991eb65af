package streameventrepo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/domain/streamevent"
	"threadline/internal/infrastructure/database/dbtest"
	"threadline/internal/utils/platformerrors"
)

func record(userID string, seq int64, conv string) streamevent.Record {
	return streamevent.Record{
		UserID:         userID,
		Sequence:       seq,
		EventID:        streamevent.FormatEventID(seq),
		Name:           streamevent.MessageDelta,
		ConversationID: conv,
		Payload:        json.RawMessage(`{"delta":"x"}`),
		RecordedAt:     time.Now().UTC(),
	}
}

func sequences(records []streamevent.Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.Sequence
	}
	return out
}

func TestRecordEventRequiresNextSequence(t *testing.T) {
	store := NewStreamEventGormRepository(dbtest.Open(t))
	ctx := context.Background()
	userID := dbtest.NewID("usr")

	require.NoError(t, store.RecordEvent(ctx, record(userID, 1, "c1")))
	require.NoError(t, store.RecordEvent(ctx, record(userID, 2, "c1")))

	for _, seq := range []int64{2, 4} {
		err := store.RecordEvent(ctx, record(userID, seq, "c1"))
		require.Error(t, err, seq)
		assert.ErrorIs(t, err, streamevent.ErrSequenceConflict)
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict))
	}

	latest, err := store.LatestSequence(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest)
}

func TestLoadsAreOrderedAndFiltered(t *testing.T) {
	store := NewStreamEventGormRepository(dbtest.Open(t))
	ctx := context.Background()
	userID := dbtest.NewID("usr")
	for i := int64(1); i <= 6; i++ {
		conv := "c1"
		if i%2 == 0 {
			conv = "c2"
		}
		require.NoError(t, store.RecordEvent(ctx, record(userID, i, conv)))
	}

	recent, err := store.LoadRecent(ctx, userID, streamevent.Filter{ConversationID: "c1"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, sequences(recent))

	after, err := store.LoadAfter(ctx, userID, 2, streamevent.Filter{}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, sequences(after))
	assert.Equal(t, "evt_3", after[0].EventID)
	assert.JSONEq(t, `{"delta":"x"}`, string(after[0].Payload))
}

func TestPruneKeepsHighWaterMark(t *testing.T) {
	store := NewStreamEventGormRepository(dbtest.Open(t))
	ctx := context.Background()

	tests := []struct {
		name      string
		maxEvents int
		batch     int
		remaining []int64
	}{
		{name: "retention window", maxEvents: 3, batch: 2, remaining: []int64{8, 9, 10}},
		{name: "zero retention", maxEvents: 0, batch: 4, remaining: []int64{10}},
		{name: "zero batch", maxEvents: 2, batch: 0, remaining: []int64{9, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := dbtest.NewID("usr")
			for i := int64(1); i <= 10; i++ {
				require.NoError(t, store.RecordEvent(ctx, record(userID, i, "c1")))
			}

			deleted, err := store.Prune(ctx, userID, tt.maxEvents, tt.batch)
			require.NoError(t, err)
			assert.Equal(t, int64(10-len(tt.remaining)), deleted)

			rest, err := store.LoadAfter(ctx, userID, 0, streamevent.Filter{}, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.remaining, sequences(rest))

			require.NoError(t, store.RecordEvent(ctx, record(userID, 11, "c1")))
		})
	}
}

func TestUsersOverRetention(t *testing.T) {
	store := NewStreamEventGormRepository(dbtest.Open(t))
	ctx := context.Background()
	heavy, light := dbtest.NewID("usr"), dbtest.NewID("usr")
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.RecordEvent(ctx, record(heavy, i, "c1")))
	}
	require.NoError(t, store.RecordEvent(ctx, record(light, 1, "c1")))

	users, err := store.UsersOverRetention(ctx, 4, 1000)
	require.NoError(t, err)
	assert.Contains(t, users, heavy)
	assert.NotContains(t, users, light)
}
