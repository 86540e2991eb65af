package crontab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/config"
	"threadline/internal/domain/streamevent"
	"threadline/internal/infrastructure/cache"
)

type pruneStore struct {
	streamevent.Store
	mu     sync.Mutex
	counts map[string]int
	pruned []string
}

func (s *pruneStore) UsersOverRetention(_ context.Context, maxEvents, _ int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for u, n := range s.counts {
		if n > maxEvents {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *pruneStore) Prune(_ context.Context, userID string, maxEvents, _ int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	over := s.counts[userID] - maxEvents
	s.counts[userID] = maxEvents
	s.pruned = append(s.pruned, userID)
	return int64(over), nil
}

func TestPruneEventsOnlyTouchesUsersOverRetention(t *testing.T) {
	store := &pruneStore{counts: map[string]int{"u1": 12, "u2": 3}}
	c := &Crontab{
		cfg:    &config.Config{StreamEventRetention: 10, StreamPruneBatch: 5},
		events: store,
		locker: &LocalLocker{},
		log:    zerolog.Nop(),
	}

	require.NoError(t, c.pruneEvents(context.Background()))
	assert.Equal(t, []string{"u1"}, store.pruned)
	assert.Equal(t, 10, store.counts["u1"])
	assert.Equal(t, 3, store.counts["u2"])
}

func TestLocalLockerSkipsOverlappingRuns(t *testing.T) {
	l := &LocalLocker{}
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- l.RunExclusive(context.Background(), "job", time.Minute, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := l.RunExclusive(context.Background(), "job", time.Minute, func(context.Context) error {
		t.Fatal("overlapping run must not start")
		return nil
	})
	assert.ErrorIs(t, err, cache.ErrLockHeld)

	close(release)
	require.NoError(t, <-done)

	boom := errors.New("boom")
	assert.ErrorIs(t, l.RunExclusive(context.Background(), "job", time.Minute, func(context.Context) error { return boom }), boom)
}

func TestRunJobSkipsAfterShutdown(t *testing.T) {
	c := &Crontab{locker: &LocalLocker{}, log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	c.runJob(ctx, "noop", func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
}
