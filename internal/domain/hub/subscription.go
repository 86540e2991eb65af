package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"threadline/internal/domain/streamevent"
	"threadline/internal/infrastructure/metrics"
	"threadline/internal/utils/platformerrors"
)

// ErrSubscriptionClosed is returned by Next once the subscription has been closed.
var ErrSubscriptionClosed = errors.New("subscription closed")

type entry struct {
	record streamevent.Record
	// lagMarker entries are rendered into a stream.error when read. A marker sits at the
	// head of the queue, immediately after the last record delivered before the gap.
	lagMarker bool
	dropped   uint64
}

// replayCursor pages a resumed subscription through the store up to the position
// it went live at.
type replayCursor struct {
	store    streamevent.Store
	filter   streamevent.Filter
	after    int64
	pageSize int
	done     bool
}

// fill appends the next page to s.backlog. Records past s.floor are live and skipped.
func (c *replayCursor) fill(ctx context.Context, s *Subscription) error {
	page, err := c.store.LoadAfter(ctx, s.userID, c.after, c.filter, c.pageSize)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load stream backlog")
	}
	kept := page[:0:0]
	for _, r := range page {
		if r.Sequence > s.floor {
			c.done = true
			break
		}
		kept = append(kept, r)
	}
	if len(page) < c.pageSize {
		c.done = true
	}
	if n := len(kept); n > 0 {
		c.after = kept[n-1].Sequence
		if c.after >= s.floor {
			c.done = true
		}
	} else {
		c.done = true
	}

	s.mu.Lock()
	s.backlog = append(s.backlog, kept...)
	s.mu.Unlock()
	return nil
}

// Subscription is one subscriber's view of a conversation. Replayed events are
// delivered first, followed by live events in publish order.
type Subscription struct {
	id             uint64
	conversationID string
	userID         string
	hub            *Hub
	capacity       int
	keepAlive      time.Duration

	mu      sync.Mutex
	backlog []streamevent.Record
	queue   []entry
	floor   int64

	// replay is only touched by the goroutine calling Next.
	replay *replayCursor

	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) ID() uint64             { return s.id }
func (s *Subscription) ConversationID() string { return s.conversationID }
func (s *Subscription) UserID() string         { return s.userID }

// Next returns the next event. A nil record with a nil error means the subscription
// was idle for the keep-alive interval.
func (s *Subscription) Next(ctx context.Context) (*streamevent.Record, error) {
	timer := time.NewTimer(s.keepAlive)
	defer timer.Stop()

	for {
		select {
		case <-s.closed:
			return nil, ErrSubscriptionClosed
		default:
		}

		if s.replayPending() {
			if err := s.replay.fill(ctx, s); err != nil {
				return nil, err
			}
			continue
		}

		if r, ok := s.pop(); ok {
			return &r, nil
		}

		select {
		case <-s.notify:
		case <-s.closed:
			return nil, ErrSubscriptionClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		}
	}
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.hub != nil {
			s.hub.unregister(s)
		}
	})
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.closed
}

// replayPending reports whether the backlog ran dry while stored events remain to be paged in.
// Live records stay queued until then.
func (s *Subscription) replayPending() bool {
	if s.replay == nil || s.replay.done {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog) == 0
}

func (s *Subscription) pop() (streamevent.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.backlog) > 0 {
		r := s.backlog[0]
		s.backlog = s.backlog[1:]
		return r, true
	}
	if len(s.queue) == 0 {
		return streamevent.Record{}, false
	}

	e := s.queue[0]
	s.queue = s.queue[1:]
	if e.lagMarker {
		return s.lagRecord(e.dropped), true
	}
	return e.record, true
}

// push enqueues a live record. Persisted records already covered by the replayed backlog are skipped.
func (s *Subscription) push(r streamevent.Record) bool {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return false
	default:
	}
	if r.Persisted() && r.Sequence <= s.floor {
		s.mu.Unlock()
		return false
	}

	if len(s.queue) >= s.capacity {
		if len(s.queue) > 0 && s.queue[0].lagMarker {
			// Still lagging: widen the gap behind the pending marker.
			s.queue[0].dropped += s.dropOldest(1)
		} else {
			// Room for the marker and the incoming record.
			dropped := s.dropOldest(2)
			s.queue = append([]entry{{lagMarker: true, dropped: dropped}}, s.queue...)
		}
	}
	s.queue = append(s.queue, entry{record: r})
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// dropOldest removes up to n of the oldest live records, never a lag marker, and returns
// how many it removed. Caller holds mu.
func (s *Subscription) dropOldest(n int) uint64 {
	var dropped uint64
	for n > 0 {
		idx := -1
		for i, e := range s.queue {
			if !e.lagMarker {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		dropped++
		metrics.HubDroppedTotal.Inc()
		n--
	}
	return dropped
}

func (s *Subscription) lagRecord(dropped uint64) streamevent.Record {
	payload, _ := json.Marshal(streamevent.ErrorPayload{
		Code:    streamevent.ErrorCodeLagging,
		Message: "subscriber fell behind; reconnect with the last received event id to resume",
		Dropped: dropped,
	})
	return streamevent.Record{
		UserID:         s.userID,
		Name:           streamevent.StreamError,
		ConversationID: s.conversationID,
		Payload:        payload,
		RecordedAt:     time.Now().UTC(),
	}
}
