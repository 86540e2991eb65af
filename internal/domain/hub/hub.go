package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"threadline/internal/domain/streamevent"
	"threadline/internal/infrastructure/metrics"
	"threadline/internal/utils/functional"
	"threadline/internal/utils/keyedmutex"
	"threadline/internal/utils/platformerrors"
)

// MembershipLister resolves the users an event of a conversation is addressed to.
type MembershipLister interface {
	ListMemberIDs(ctx context.Context, conversationID string) ([]string, error)
}

// Config bounds subscriber queues and replay.
type Config struct {
	QueueCapacity int
	ReplayLimit   int
	ReplayMax     int
	KeepAlive     time.Duration
}

type routingTable struct {
	byConversation map[string]map[uint64]*Subscription
}

var _ streamevent.Publisher = (*Hub)(nil)

// Hub fans out conversation events to subscribers and records them per user for replay.
type Hub struct {
	store   streamevent.Store
	members MembershipLister
	cfg     Config
	log     zerolog.Logger

	routes  atomic.Pointer[routingTable]
	writeMu sync.Mutex
	nextID  atomic.Uint64
	// perUser counts open subscriptions; guarded by writeMu.
	perUser map[string]int

	convLocks *keyedmutex.Mutex
	userLocks *keyedmutex.Mutex

	seqMu sync.Mutex
	seqs  map[string]int64
}

// New creates a hub.
func New(store streamevent.Store, members MembershipLister, cfg Config, log zerolog.Logger) *Hub {
	if cfg.QueueCapacity < 2 {
		cfg.QueueCapacity = 2
	}
	if cfg.ReplayLimit <= 0 || cfg.ReplayLimit > 50 {
		cfg.ReplayLimit = 50
	}
	if cfg.ReplayMax < cfg.ReplayLimit {
		cfg.ReplayMax = cfg.ReplayLimit
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 20 * time.Second
	}
	h := &Hub{
		store:     store,
		members:   members,
		cfg:       cfg,
		log:       log.With().Str("component", "hub").Logger(),
		convLocks: keyedmutex.New(),
		userLocks: keyedmutex.New(),
		seqs:      make(map[string]int64),
		perUser:   make(map[string]int),
	}
	h.routes.Store(&routingTable{byConversation: map[string]map[uint64]*Subscription{}})
	return h
}

// ===============================================
// Subscribe
// ===============================================

// Subscribe registers a subscriber. When lastEventID parses, every recorded event after it is
// replayed, ReplayMax at a time; otherwise the newest ReplayLimit events of the conversation are.
func (h *Hub) Subscribe(ctx context.Context, conversationID, userID, lastEventID string) (*Subscription, error) {
	if conversationID == "" || userID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"conversation and user are required", nil, "5b0e9a52-6f1c-4c8e-93d1-2a7e4b3c9f10")
	}

	release := h.convLocks.Lock(conversationID)
	defer release()

	// Publishes to this conversation wait on convLock, so everything after latest arrives live.
	latest, err := h.store.LatestSequence(ctx, userID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read stream position")
	}

	filter := streamevent.Filter{ConversationID: conversationID}
	sub := &Subscription{
		id:             h.nextID.Add(1),
		conversationID: conversationID,
		userID:         userID,
		hub:            h,
		capacity:       h.cfg.QueueCapacity,
		keepAlive:      h.cfg.KeepAlive,
		floor:          latest,
		notify:         make(chan struct{}, 1),
		closed:         make(chan struct{}),
	}

	var backlog []streamevent.Record
	if seq, ok := streamevent.ParseEventID(lastEventID); ok {
		sub.replay = &replayCursor{store: h.store, filter: filter, after: seq, pageSize: h.cfg.ReplayMax}
		if err := sub.replay.fill(ctx, sub); err != nil {
			return nil, err
		}
		backlog = sub.backlog
	} else {
		backlog, err = h.store.LoadRecent(ctx, userID, filter, h.cfg.ReplayLimit)
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load stream backlog")
		}
		sub.backlog = backlog
	}
	if n := len(backlog); n > 0 && backlog[n-1].Sequence > sub.floor {
		sub.floor = backlog[n-1].Sequence
	}

	h.register(sub)
	h.log.Debug().
		Str("conversation_id", conversationID).
		Str("user_id", userID).
		Int("replayed", len(backlog)).
		Bool("replay_paged", sub.replay != nil && !sub.replay.done).
		Msg("subscription registered")
	return sub, nil
}

// ActiveSubscriptions counts the open subscriptions of a user across conversations.
func (h *Hub) ActiveSubscriptions(userID string) int {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.perUser[userID]
}

// Disconnect closes the subscriptions a user holds on a conversation.
func (h *Hub) Disconnect(conversationID, userID string) int {
	closed := 0
	for _, sub := range h.routes.Load().byConversation[conversationID] {
		if sub.userID == userID {
			sub.Close()
			closed++
		}
	}
	return closed
}

// CloseAll closes every subscription.
func (h *Hub) CloseAll() {
	for _, subs := range h.routes.Load().byConversation {
		for _, sub := range subs {
			sub.Close()
		}
	}
}

func (h *Hub) register(sub *Subscription) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	current := h.routes.Load()
	next := &routingTable{byConversation: make(map[string]map[uint64]*Subscription, len(current.byConversation)+1)}
	for conv, subs := range current.byConversation {
		next.byConversation[conv] = subs
	}
	subs := make(map[uint64]*Subscription, len(current.byConversation[sub.conversationID])+1)
	for id, s := range current.byConversation[sub.conversationID] {
		subs[id] = s
	}
	subs[sub.id] = sub
	next.byConversation[sub.conversationID] = subs
	h.routes.Store(next)
	h.perUser[sub.userID]++
	metrics.HubSubscriptions.Inc()
}

func (h *Hub) unregister(sub *Subscription) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	current := h.routes.Load()
	existing, ok := current.byConversation[sub.conversationID]
	if !ok {
		return
	}
	if _, ok := existing[sub.id]; !ok {
		return
	}
	next := &routingTable{byConversation: make(map[string]map[uint64]*Subscription, len(current.byConversation))}
	for conv, subs := range current.byConversation {
		if conv != sub.conversationID {
			next.byConversation[conv] = subs
		}
	}
	if len(existing) > 1 {
		subs := make(map[uint64]*Subscription, len(existing)-1)
		for id, s := range existing {
			if id != sub.id {
				subs[id] = s
			}
		}
		next.byConversation[sub.conversationID] = subs
	}
	h.routes.Store(next)
	if h.perUser[sub.userID]--; h.perUser[sub.userID] <= 0 {
		delete(h.perUser, sub.userID)
	}
	metrics.HubSubscriptions.Dec()
}

// ===============================================
// Publish
// ===============================================

// Publish assigns the next sequence of every recipient, records the event and enqueues it to
// live subscribers. If recording fails nothing is enqueued and subscribers get an in-memory error event.
func (h *Hub) Publish(ctx context.Context, conversationID string, draft streamevent.Draft) (streamevent.PublishResult, error) {
	payload, err := json.Marshal(draft.Payload)
	if err != nil {
		return streamevent.PublishResult{}, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to encode event payload", err, "9c41d7e3-1a2b-4f5e-8d6c-7b3a2e1f0d94")
	}

	if draft.IsEphemeral() {
		delivered := h.deliverEphemeral(conversationID, draft.Name, payload, draft.TargetUserIDs)
		metrics.RecordPublish(string(draft.Name), "ephemeral")
		return streamevent.PublishResult{Delivered: delivered}, nil
	}

	targets := draft.TargetUserIDs
	if len(targets) == 0 {
		targets, err = h.members.ListMemberIDs(ctx, conversationID)
		if err != nil {
			metrics.RecordPublish(string(draft.Name), "error")
			return streamevent.PublishResult{}, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve event recipients")
		}
	}
	targets = functional.Uniq(targets)
	sort.Strings(targets)

	release := h.convLocks.Lock(conversationID)
	defer release()

	now := time.Now().UTC()
	records := make(map[string]streamevent.Record, len(targets))
	result := streamevent.PublishResult{Sequences: make(map[string]int64, len(targets))}
	for _, userID := range targets {
		record, err := h.recordFor(ctx, userID, conversationID, draft.Name, payload, now)
		if err != nil {
			metrics.RecordPublish(string(draft.Name), "error")
			h.log.Error().Err(err).
				Str("conversation_id", conversationID).
				Str("event", string(draft.Name)).
				Str("user_id", userID).
				Msg("failed to record stream event")
			h.publishFailure(conversationID, draft.Name)
			return streamevent.PublishResult{}, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to record stream event")
		}
		records[userID] = record
		result.Sequences[userID] = record.Sequence
	}

	for _, sub := range h.routes.Load().byConversation[conversationID] {
		record, ok := records[sub.userID]
		if !ok {
			continue
		}
		if sub.push(record) {
			result.Delivered++
		}
	}
	metrics.RecordPublish(string(draft.Name), "ok")
	metrics.HubDeliveredTotal.Add(float64(result.Delivered))
	return result, nil
}

// recordFor assigns and persists the next sequence of one user under that user's lock.
func (h *Hub) recordFor(ctx context.Context, userID, conversationID string, name streamevent.Name, payload json.RawMessage, now time.Time) (streamevent.Record, error) {
	release := h.userLocks.Lock(userID)
	defer release()

	prev, err := h.lastSequence(ctx, userID, false)
	if err != nil {
		return streamevent.Record{}, err
	}
	record := streamevent.Record{
		UserID:         userID,
		Sequence:       prev + 1,
		EventID:        streamevent.FormatEventID(prev + 1),
		Name:           name,
		ConversationID: conversationID,
		Payload:        payload,
		RecordedAt:     now,
	}
	err = h.store.RecordEvent(ctx, record)
	if errors.Is(err, streamevent.ErrSequenceConflict) {
		// Another replica advanced the log.
		prev, err = h.lastSequence(ctx, userID, true)
		if err != nil {
			return streamevent.Record{}, err
		}
		record.Sequence = prev + 1
		record.EventID = streamevent.FormatEventID(prev + 1)
		err = h.store.RecordEvent(ctx, record)
	}
	if err != nil {
		h.forgetSequence(userID)
		return streamevent.Record{}, err
	}

	h.seqMu.Lock()
	h.seqs[userID] = record.Sequence
	h.seqMu.Unlock()
	return record, nil
}

func (h *Hub) lastSequence(ctx context.Context, userID string, reseed bool) (int64, error) {
	if !reseed {
		h.seqMu.Lock()
		seq, ok := h.seqs[userID]
		h.seqMu.Unlock()
		if ok {
			return seq, nil
		}
	}
	seq, err := h.store.LatestSequence(ctx, userID)
	if err != nil {
		return 0, err
	}
	h.seqMu.Lock()
	h.seqs[userID] = seq
	h.seqMu.Unlock()
	return seq, nil
}

func (h *Hub) forgetSequence(userID string) {
	h.seqMu.Lock()
	delete(h.seqs, userID)
	h.seqMu.Unlock()
}

func (h *Hub) publishFailure(conversationID string, name streamevent.Name) {
	payload, _ := json.Marshal(streamevent.ErrorPayload{
		Code:    streamevent.ErrorCodePublishFailed,
		Message: "event " + string(name) + " could not be recorded",
	})
	h.deliverEphemeral(conversationID, streamevent.Error, payload, nil)
}

func (h *Hub) deliverEphemeral(conversationID string, name streamevent.Name, payload json.RawMessage, targets []string) int {
	var allowed map[string]struct{}
	if len(targets) > 0 {
		allowed = make(map[string]struct{}, len(targets))
		for _, t := range targets {
			allowed[t] = struct{}{}
		}
	}
	now := time.Now().UTC()
	delivered := 0
	for _, sub := range h.routes.Load().byConversation[conversationID] {
		if allowed != nil {
			if _, ok := allowed[sub.userID]; !ok {
				continue
			}
		}
		r := streamevent.Record{
			UserID:         sub.userID,
			Name:           name,
			ConversationID: conversationID,
			Payload:        payload,
			RecordedAt:     now,
		}
		if sub.push(r) {
			delivered++
		}
	}
	return delivered
}
