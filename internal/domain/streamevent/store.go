package streamevent

import (
	"context"
	"errors"
)

// ErrSequenceConflict is wrapped by stores when a sequence is not max+1 for its user.
var ErrSequenceConflict = errors.New("sequence is not the next value for this user")

// Filter narrows a user's log. The zero value selects every event of the user.
type Filter struct {
	ConversationID string
}

// Store is the append-only per-user event log.
type Store interface {
	// RecordEvent appends r; it fails with a CONFLICT wrapping ErrSequenceConflict unless
	// r.Sequence == max(sequence)+1 for r.UserID.
	RecordEvent(ctx context.Context, r Record) error
	// LatestSequence returns the highest recorded sequence of the user, 0 when empty.
	LatestSequence(ctx context.Context, userID string) (int64, error)
	// LoadRecent returns the newest limit events ordered ascending by sequence.
	LoadRecent(ctx context.Context, userID string, filter Filter, limit int) ([]Record, error)
	// LoadAfter returns events with sequence > lastSequence ordered ascending.
	LoadAfter(ctx context.Context, userID string, lastSequence int64, filter Filter, limit int) ([]Record, error)
	// Prune keeps the newest maxEvents of the user, deleting older rows batch at a time.
	// Bounds are clamped by PruneBounds.
	Prune(ctx context.Context, userID string, maxEvents, batch int) (int64, error)
	// UsersOverRetention lists users whose log is longer than maxEvents.
	UsersOverRetention(ctx context.Context, maxEvents int, limit int) ([]string, error)
}

// DefaultPruneBatch applies when a prune is asked for a non-positive batch.
const DefaultPruneBatch = 500

// PruneBounds clamps prune arguments. At least the newest event of a user is kept
// since the log's max sequence is where the next sequence continues from.
func PruneBounds(maxEvents, batch int) (int, int) {
	if maxEvents < 1 {
		maxEvents = 1
	}
	if batch < 1 {
		batch = DefaultPruneBatch
	}
	return maxEvents, batch
}

// PublishResult reports the sequence assigned to each recipient of a publish.
type PublishResult struct {
	Sequences map[string]int64
	Delivered int
}

// Publisher hands events of a conversation to subscribers.
type Publisher interface {
	Publish(ctx context.Context, conversationID string, draft Draft) (PublishResult, error)
}
