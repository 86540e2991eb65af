package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelTwiceReturnsSameReason(t *testing.T) {
	s := New(time.Minute)
	h := s.Create(context.Background(), 0)
	s.Register("msg_1", h)

	assert.Equal(t, Cancelled, s.Cancel("msg_1"))
	assert.Equal(t, Cancelled, s.Cancel("msg_1"))
	assert.Equal(t, Cancelled, h.Complete())
	assert.Error(t, h.Context().Err())
}

func TestCancelUnknownIsNone(t *testing.T) {
	s := New(time.Minute)
	assert.Equal(t, None, s.Cancel("missing"))
}

func TestCompleteWinsOverLaterCancel(t *testing.T) {
	s := New(time.Minute)
	h := s.Create(context.Background(), 0)
	s.Register("msg_1", h)

	assert.Equal(t, Completed, h.Complete())
	assert.Equal(t, Completed, s.Cancel("msg_1"))
	assert.Zero(t, s.Len())
}

func TestTimeoutFiresCancellation(t *testing.T) {
	s := New(time.Minute)
	h := s.Create(context.Background(), 30*time.Millisecond)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout did not fire")
	}
	assert.Equal(t, TimedOut, h.Reason())
	assert.Equal(t, TimedOut, h.Cancel())
}

func TestParentCancellationCountsAsCancel(t *testing.T) {
	s := New(time.Minute)
	parent, cancel := context.WithCancel(context.Background())
	h := s.Create(parent, 0)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation not observed")
	}
	assert.Equal(t, Cancelled, h.Reason())
}

func TestConcurrentTransitionsSettleOnce(t *testing.T) {
	s := New(time.Minute)
	h := s.Create(context.Background(), 0)

	var wg sync.WaitGroup
	results := make([]StopReason, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				results[i] = h.Cancel()
			} else {
				results[i] = h.Complete()
			}
		}(i)
	}
	wg.Wait()

	final := h.Reason()
	require.NotEqual(t, None, final)
	for _, r := range results {
		assert.Equal(t, final, r)
	}
}

func TestLookupDropsTerminalHandles(t *testing.T) {
	s := New(time.Minute)
	h := s.Create(context.Background(), 0)
	s.Register("msg_1", h)

	got, ok := s.Lookup("msg_1")
	require.True(t, ok)
	assert.Same(t, h, got)

	h.Complete()
	_, ok = s.Lookup("msg_1")
	assert.False(t, ok)

	s.Register("msg_2", s.Create(context.Background(), 0))
	assert.Equal(t, 1, s.CancelAll())
	assert.Zero(t, s.Len())
}
