package streamevent

import (
	"context"
	"sort"
	"sync"

	"threadline/internal/utils/platformerrors"
)

// MemoryStore is an in-process Store. It keeps the same ordering and conflict rules as the database store.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string][]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]Record)}
}

func (s *MemoryStore) RecordEvent(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[r.UserID]
	var last int64
	if len(log) > 0 {
		last = log[len(log)-1].Sequence
	}
	if r.Sequence != last+1 {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"stream event sequence conflict", ErrSequenceConflict, "0d1f6f2e-3c55-4a4f-9a53-0f3c1f8a6b21",
			map[string]any{"expected": last + 1, "got": r.Sequence})
	}
	s.logs[r.UserID] = append(log, r)
	return nil
}

func (s *MemoryStore) LatestSequence(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[userID]
	if len(log) == 0 {
		return 0, nil
	}
	return log[len(log)-1].Sequence, nil
}

func (s *MemoryStore) LoadRecent(_ context.Context, userID string, filter Filter, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := s.filtered(userID, filter, 0)
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (s *MemoryStore) LoadAfter(_ context.Context, userID string, lastSequence int64, filter Filter, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := s.filtered(userID, filter, lastSequence)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) Prune(_ context.Context, userID string, maxEvents, batch int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxEvents, batch = PruneBounds(maxEvents, batch)
	log := s.logs[userID]
	excess := len(log) - maxEvents
	if excess <= 0 {
		return 0, nil
	}
	var deleted int64
	for excess > 0 {
		n := min(batch, excess)
		log = log[n:]
		excess -= n
		deleted += int64(n)
	}
	s.logs[userID] = append([]Record(nil), log...)
	return deleted, nil
}

func (s *MemoryStore) UsersOverRetention(_ context.Context, maxEvents int, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0)
	for user, log := range s.logs {
		if len(log) > maxEvents {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *MemoryStore) filtered(userID string, filter Filter, after int64) []Record {
	out := make([]Record, 0)
	for _, r := range s.logs[userID] {
		if r.Sequence <= after {
			continue
		}
		if filter.ConversationID != "" && r.ConversationID != filter.ConversationID {
			continue
		}
		out = append(out, r)
	}
	return out
}
