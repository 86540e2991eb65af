package message

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"threadline/internal/utils/platformerrors"
)

// MemoryRepository is an in-process Repository with the same path and chunk rules as the database one.
type MemoryRepository struct {
	mu           sync.Mutex
	messages     map[string]*Message
	rootCounters map[string]int64
	childCounter map[string]int64
	markers      map[string]*ReadMarker
	revisions    map[string][]*Revision
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		messages:     map[string]*Message{},
		rootCounters: map[string]int64{},
		childCounter: map[string]int64{},
		markers:      map[string]*ReadMarker{},
		revisions:    map[string][]*Revision{},
	}
}

func (r *MemoryRepository) notFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"message not found", nil, "6a7b8c9d-0e1f-4a2b-8c3d-4e5f6a7b8c9e")
}

func (r *MemoryRepository) CreateRoot(ctx context.Context, m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rootCounters[m.ConversationID]++
	path, err := ChildPath("", r.rootCounters[m.ConversationID])
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "path space exhausted", err, "")
	}
	m.RootID = m.ID
	m.ParentID = nil
	m.Path = path
	m.Depth = 1
	r.messages[m.ID] = clone(m)
	return nil
}

func (r *MemoryRepository) CreateReply(ctx context.Context, parentID string, m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.messages[parentID]
	if !ok {
		return r.notFound(ctx)
	}
	r.childCounter[parentID]++
	path, err := ChildPath(parent.Path, r.childCounter[parentID])
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "path space exhausted", err, "")
	}
	pid := parent.ID
	m.ParentID = &pid
	m.RootID = parent.RootID
	m.ConversationID = parent.ConversationID
	m.Path = path
	m.Depth = Depth(path)
	r.messages[m.ID] = clone(m)
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, r.notFound(ctx)
	}
	return clone(m), nil
}

func (r *MemoryRepository) FindByPaths(_ context.Context, rootID string, paths []string) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}
	return r.collect(func(m *Message) bool {
		_, ok := want[m.Path]
		return m.RootID == rootID && ok
	}), nil
}

func (r *MemoryRepository) FindByPath(ctx context.Context, rootID, path string) (*Message, error) {
	msgs, _ := r.FindByPaths(ctx, rootID, []string{path})
	if len(msgs) == 0 {
		return nil, r.notFound(ctx)
	}
	return msgs[0], nil
}

func (r *MemoryRepository) ListChildren(_ context.Context, parentID string) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(m *Message) bool { return m.ParentID != nil && *m.ParentID == parentID }), nil
}

func (r *MemoryRepository) ListTree(_ context.Context, rootID, afterPath string, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.collect(func(m *Message) bool { return m.RootID == rootID && m.Path > afterPath })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListThreads(_ context.Context, conversationID string, before *time.Time, limit int) ([]*ThreadSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byRoot := map[string]*ThreadSummary{}
	for _, m := range r.messages {
		if m.ConversationID != conversationID {
			continue
		}
		ts, ok := byRoot[m.RootID]
		if !ok {
			ts = &ThreadSummary{RootID: m.RootID, ConversationID: conversationID}
			byRoot[m.RootID] = ts
		}
		if m.IsRoot() {
			ts.Preview = m.Content
			ts.AuthorUserID = m.AuthorUserID
			ts.CreatedAt = m.CreatedAt
		} else if !m.IsDeleted() {
			ts.ReplyCount++
		}
		if !m.IsDeleted() && m.CreatedAt.After(ts.LastActivityAt) {
			ts.LastActivityAt = m.CreatedAt
		}
	}
	out := make([]*ThreadSummary, 0, len(byRoot))
	for _, ts := range byRoot {
		if before != nil && !ts.LastActivityAt.Before(*before) {
			continue
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].RootID > out[j].RootID
		}
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) AppendChunk(ctx context.Context, id string, index int, delta string, usage Usage) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, r.notFound(ctx)
	}
	if !m.Streaming() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"message is not streaming", ErrNotStreaming, "")
	}
	if index != m.ChunkCount {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"chunk out of order", ErrChunkOutOfOrder, "")
	}
	m.Content += delta
	m.ChunkCount++
	m.Usage = usage
	return clone(m), nil
}

func (r *MemoryRepository) Finalize(ctx context.Context, id, finishReason string, usage Usage) (*Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, false, r.notFound(ctx)
	}
	if m.FinishReason != "" {
		return clone(m), false, nil
	}
	m.FinishReason = finishReason
	m.Usage = usage
	return clone(m), true, nil
}

func (r *MemoryRepository) UpdateContent(ctx context.Context, id, content, editorID string, at time.Time) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, r.notFound(ctx)
	}
	r.revisions[id] = append(r.revisions[id], &Revision{MessageID: id, Content: m.Content, EditedBy: editorID, CreatedAt: at})
	m.Content = content
	m.EditedAt = &at
	return clone(m), nil
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, id, tombstone string, at time.Time) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, r.notFound(ctx)
	}
	if m.DeletedAt == nil {
		m.Content = tombstone
		m.DeletedAt = &at
		if m.FinishReason == "" {
			m.FinishReason = FinishDeleted
		}
	}
	return clone(m), nil
}

func (r *MemoryRepository) LastByPath(ctx context.Context, rootID string) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.collect(func(m *Message) bool { return m.RootID == rootID && !m.IsDeleted() })
	if len(msgs) == 0 {
		return nil, r.notFound(ctx)
	}
	return msgs[len(msgs)-1], nil
}

func (r *MemoryRepository) UpsertReadMarker(_ context.Context, marker *ReadMarker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *marker
	r.markers[marker.UserID+"/"+marker.RootID] = &cp
	return nil
}

func (r *MemoryRepository) CountUnread(_ context.Context, conversationID, userID, rootID string) ([]UnreadCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int64{}
	for _, m := range r.messages {
		if m.ConversationID != conversationID || (rootID != "" && m.RootID != rootID) {
			continue
		}
		if _, ok := counts[m.RootID]; !ok {
			counts[m.RootID] = 0
		}
		if m.IsDeleted() || m.AuthoredBy(userID) {
			continue
		}
		if marker, ok := r.markers[userID+"/"+m.RootID]; ok && !m.CreatedAt.After(marker.MarkedAt) {
			continue
		}
		counts[m.RootID]++
	}
	out := make([]UnreadCount, 0, len(counts))
	for root, n := range counts {
		out = append(out, UnreadCount{RootID: root, Unread: n})
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].RootID, out[j].RootID) < 0 })
	return out, nil
}

func (r *MemoryRepository) ListRevisions(_ context.Context, messageID string) ([]*Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Revision(nil), r.revisions[messageID]...), nil
}

func (r *MemoryRepository) collect(keep func(*Message) bool) []*Message {
	out := make([]*Message, 0)
	for _, m := range r.messages {
		if keep(m) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func clone(m *Message) *Message {
	cp := *m
	return &cp
}
