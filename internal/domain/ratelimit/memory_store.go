package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const defaultMemoryKeys = 100_000

// MemoryStore is a single-replica StateStore. Keys beyond capacity are evicted least recently used
// first, which forgets their history.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache
}

var _ StateStore = (*MemoryStore)(nil)

func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = defaultMemoryKeys
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Admit(_ context.Context, key string, limit Limit, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tat time.Time
	if v, ok := s.cache.Get(key); ok {
		tat = v.(time.Time)
	}
	next, res := Step(tat, now, limit)
	if res.Allowed {
		s.cache.Add(key, next)
	}
	return res, nil
}
