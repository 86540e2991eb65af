package message

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"threadline/internal/domain/conversation"
	"threadline/internal/domain/streamevent"
	"threadline/internal/domain/supervisor"
	"threadline/internal/utils/idgen"
	"threadline/internal/utils/platformerrors"
)

// Access resolves a caller's membership in a conversation.
type Access interface {
	RequireRole(ctx context.Context, conversationID, userID string, min conversation.Role) (*conversation.Membership, error)
}

// GenerationCanceller stops in-flight assistant generations.
type GenerationCanceller interface {
	Cancel(messageID string) supervisor.StopReason
}

// Config bounds message content and assembled prompt context.
type Config struct {
	MaxContentChars int
	ContextMaxDepth int
	ContextMaxChars int
	ContextSiblings bool
}

// Service implements threads and messages.
type Service struct {
	repo      Repository
	access    Access
	publisher streamevent.Publisher
	canceller GenerationCanceller
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a message service.
func NewService(repo Repository, access Access, publisher streamevent.Publisher, canceller GenerationCanceller, cfg Config, log zerolog.Logger) *Service {
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 32000
	}
	if cfg.ContextMaxDepth <= 0 {
		cfg.ContextMaxDepth = 16
	}
	return &Service{
		repo:      repo,
		access:    access,
		publisher: publisher,
		canceller: canceller,
		cfg:       cfg,
		log:       log.With().Str("component", "message").Logger(),
		now:       time.Now,
	}
}

// PostInput is a user-authored message.
type PostInput struct {
	ConversationID string
	ParentID       string
	AuthorID       string
	Content        string
}

// ===============================================
// Posting
// ===============================================

// PostRoot starts a new thread.
func (s *Service) PostRoot(ctx context.Context, in PostInput) (*Message, error) {
	if err := s.validateContent(ctx, in.Content); err != nil {
		return nil, err
	}
	if _, err := s.access.RequireRole(ctx, in.ConversationID, in.AuthorID, conversation.RoleMember); err != nil {
		return nil, err
	}

	id, err := s.newID(ctx)
	if err != nil {
		return nil, err
	}
	author := in.AuthorID
	msg := &Message{
		ID:             id,
		ConversationID: in.ConversationID,
		RootID:         id,
		AuthorUserID:   &author,
		Role:           RoleUser,
		Content:        in.Content,
		FinishReason:   FinishStop,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.CreateRoot(ctx, msg); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to post message")
	}

	s.publish(ctx, msg.ConversationID, streamevent.Draft{
		Name: streamevent.ThreadNew,
		Payload: streamevent.ThreadNewPayload{
			ConversationID: msg.ConversationID,
			RootID:         msg.ID,
			AuthorUserID:   in.AuthorID,
			Preview:        preview(msg.Content),
			CreatedAt:      msg.CreatedAt,
		},
	})
	s.publishActivity(ctx, msg)
	return msg, nil
}

// Reply posts a user message beneath parentID.
func (s *Service) Reply(ctx context.Context, in PostInput) (*Message, error) {
	if err := s.validateContent(ctx, in.Content); err != nil {
		return nil, err
	}
	parent, err := s.replyTarget(ctx, in.ParentID, in.AuthorID)
	if err != nil {
		return nil, err
	}

	id, err := s.newID(ctx)
	if err != nil {
		return nil, err
	}
	author := in.AuthorID
	msg := &Message{
		ID:             id,
		ConversationID: parent.ConversationID,
		AuthorUserID:   &author,
		Role:           RoleUser,
		Content:        in.Content,
		FinishReason:   FinishStop,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.CreateReply(ctx, parent.ID, msg); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to post reply")
	}

	s.publish(ctx, msg.ConversationID, streamevent.Draft{
		Name: streamevent.MessageDone,
		Payload: streamevent.MessageDonePayload{
			ConversationID: msg.ConversationID,
			RootID:         msg.RootID,
			MessageID:      msg.ID,
			ParentID:       parent.ID,
			Role:           string(msg.Role),
			Path:           msg.Path,
			Content:        msg.Content,
			FinishReason:   FinishStop,
		},
	})
	s.publishActivity(ctx, msg)
	return msg, nil
}

// CreateAssistantPlaceholder inserts the empty assistant reply that generation chunks append to.
func (s *Service) CreateAssistantPlaceholder(ctx context.Context, parentID, model string) (*Message, error) {
	parent, err := s.repo.FindByID(ctx, parentID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "parent message not found")
	}
	if parent.IsDeleted() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnprocessable,
			"cannot reply to a deleted message", nil, "c1d2e3f4-a5b6-4c7d-8e9f-0a1b2c3d4e5f")
	}
	id, err := s.newID(ctx)
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ID:             id,
		ConversationID: parent.ConversationID,
		Role:           RoleAssistant,
		Model:          model,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.CreateReply(ctx, parent.ID, msg); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create assistant message")
	}
	s.publishActivity(ctx, msg)
	return msg, nil
}

// ===============================================
// Streaming content
// ===============================================

// AppendChunk appends the chunk at index and emits message.delta with the running content.
func (s *Service) AppendChunk(ctx context.Context, messageID string, index int, delta string, usage Usage) (*Message, error) {
	msg, err := s.repo.AppendChunk(ctx, messageID, index, delta, usage)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to append chunk")
	}
	s.publish(ctx, msg.ConversationID, streamevent.Draft{
		Name: streamevent.MessageDelta,
		Payload: streamevent.MessageDeltaPayload{
			ConversationID: msg.ConversationID,
			RootID:         msg.RootID,
			MessageID:      msg.ID,
			ParentID:       msg.parentID(),
			Role:           string(msg.Role),
			Path:           msg.Path,
			Index:          index,
			Delta:          delta,
			Cumulative:     msg.Content,
			Usage:          msg.Usage,
		},
	})
	return msg, nil
}

// Finalize completes an assistant message. Repeated calls leave the first outcome in place.
func (s *Service) Finalize(ctx context.Context, messageID, finishReason string, usage Usage) (*Message, error) {
	switch finishReason {
	case FinishStop, FinishLength, FinishCancelled, FinishError:
	default:
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"invalid finish reason", nil, "d2e3f4a5-b6c7-4d8e-9f0a-1b2c3d4e5f6a")
	}
	current, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "message not found")
	}
	if current.Role != RoleAssistant {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"only assistant messages can be finalized", ErrNotStreaming, "e3f4a5b6-c7d8-4e9f-8a0b-2c3d4e5f6a7b")
	}

	msg, changed, err := s.repo.Finalize(ctx, messageID, finishReason, usage)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to finalize message")
	}
	if !changed {
		return msg, nil
	}
	s.publish(ctx, msg.ConversationID, streamevent.Draft{
		Name: streamevent.MessageDone,
		Payload: streamevent.MessageDonePayload{
			ConversationID: msg.ConversationID,
			RootID:         msg.RootID,
			MessageID:      msg.ID,
			ParentID:       msg.parentID(),
			Role:           string(msg.Role),
			Path:           msg.Path,
			FinishReason:   msg.FinishReason,
			Usage:          msg.Usage,
		},
	})
	return msg, nil
}

// ===============================================
// Edit / delete
// ===============================================

// Edit replaces the content of the caller's own message and archives the previous version.
func (s *Service) Edit(ctx context.Context, userID, messageID, content string) (*Message, error) {
	if err := s.validateContent(ctx, content); err != nil {
		return nil, err
	}
	msg, err := s.loadVisible(ctx, userID, messageID, conversation.RoleMember)
	if err != nil {
		return nil, err
	}
	if !msg.AuthoredBy(userID) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"only the author can edit a message", nil, "f4a5b6c7-d8e9-4f0a-9b1c-3d4e5f6a7b8c")
	}
	if msg.IsDeleted() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnprocessable,
			"deleted messages cannot be edited", nil, "a5b6c7d8-e9f0-4a1b-8c2d-4e5f6a7b8c9d")
	}

	updated, err := s.repo.UpdateContent(ctx, messageID, content, userID, s.now().UTC())
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to edit message")
	}
	s.publish(ctx, updated.ConversationID, streamevent.Draft{
		Name: streamevent.MessageDelta,
		Payload: streamevent.MessageDeltaPayload{
			ConversationID: updated.ConversationID,
			RootID:         updated.RootID,
			MessageID:      updated.ID,
			ParentID:       updated.parentID(),
			Role:           string(updated.Role),
			Path:           updated.Path,
			Delta:          updated.Content,
			Cumulative:     updated.Content,
			Usage:          updated.Usage,
			Replace:        true,
		},
	})
	return updated, nil
}

// Delete tombstones a message. Authors may delete their own; owners and admins any.
// A streaming assistant message has its generation cancelled first.
func (s *Service) Delete(ctx context.Context, userID, messageID string) (*Message, error) {
	msg, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "message not found")
	}
	member, err := s.access.RequireRole(ctx, msg.ConversationID, userID, conversation.RoleMember)
	if err != nil {
		return nil, err
	}
	if !msg.AuthoredBy(userID) && !member.Role.CanManage() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			"cannot delete another participant's message", nil, "b6c7d8e9-f0a1-4b2c-9d3e-5f6a7b8c9d0e")
	}
	if msg.IsDeleted() {
		return msg, nil
	}
	if msg.Streaming() && s.canceller != nil {
		s.canceller.Cancel(msg.ID)
	}

	deleted, err := s.repo.SoftDelete(ctx, messageID, Tombstone, s.now().UTC())
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete message")
	}
	s.publish(ctx, deleted.ConversationID, streamevent.Draft{
		Name: streamevent.MessageDone,
		Payload: streamevent.MessageDonePayload{
			ConversationID: deleted.ConversationID,
			RootID:         deleted.RootID,
			MessageID:      deleted.ID,
			ParentID:       deleted.parentID(),
			Role:           string(deleted.Role),
			Path:           deleted.Path,
			FinishReason:   FinishDeleted,
			Usage:          deleted.Usage,
		},
	})
	return deleted, nil
}

// CancelGeneration stops the generation streaming into messageID.
func (s *Service) CancelGeneration(ctx context.Context, userID, messageID string) (supervisor.StopReason, error) {
	msg, err := s.loadVisible(ctx, userID, messageID, conversation.RoleMember)
	if err != nil {
		return supervisor.None, err
	}
	if msg.Role != RoleAssistant {
		return supervisor.None, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnprocessable,
			"only assistant messages have generations", nil, "c7d8e9f0-a1b2-4c3d-8e4f-6a7b8c9d0e1f")
	}
	reason := supervisor.None
	if s.canceller != nil {
		reason = s.canceller.Cancel(messageID)
	}
	if reason != supervisor.None {
		return reason, nil
	}

	// The run is gone; answer with the outcome it persisted.
	msg, err = s.repo.FindByID(ctx, messageID)
	if err != nil {
		return supervisor.None, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to reload message")
	}
	if reason = stopReasonOf(msg.FinishReason); reason == supervisor.None {
		return reason, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"no generation in progress for this message", nil, "d8e9f0a1-b2c3-4d4e-9f5a-7b8c9d0e1f2a")
	}
	return reason, nil
}

// stopReasonOf maps a persisted finish reason to the stop reason of its run. Failed runs
// count as completed.
func stopReasonOf(finishReason string) supervisor.StopReason {
	switch finishReason {
	case "":
		return supervisor.None
	case FinishCancelled, FinishDeleted:
		return supervisor.Cancelled
	default:
		return supervisor.Completed
	}
}

// ===============================================
// Reading
// ===============================================

// Get returns a message visible to the caller.
func (s *Service) Get(ctx context.Context, userID, messageID string) (*Message, error) {
	return s.loadVisible(ctx, userID, messageID, conversation.RoleViewer)
}

// Revisions lists archived versions of a message, oldest first.
func (s *Service) Revisions(ctx context.Context, userID, messageID string) ([]*Revision, error) {
	if _, err := s.loadVisible(ctx, userID, messageID, conversation.RoleViewer); err != nil {
		return nil, err
	}
	revs, err := s.repo.ListRevisions(ctx, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list revisions")
	}
	return revs, nil
}

// ListThreads pages thread summaries by last activity, newest first. Pass the last
// LastActivityAt seen as after to fetch the next page.
func (s *Service) ListThreads(ctx context.Context, userID, conversationID string, after *time.Time, limit int) ([]*ThreadSummary, error) {
	if _, err := s.access.RequireRole(ctx, conversationID, userID, conversation.RoleViewer); err != nil {
		return nil, err
	}
	threads, err := s.repo.ListThreads(ctx, conversationID, after, clampLimit(limit))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list threads")
	}
	return threads, nil
}

// Tree returns a depth-first slice of a thread after cursorPath. next is empty on the last page.
func (s *Service) Tree(ctx context.Context, userID, rootID, cursorPath string, limit int) (msgs []*Message, next string, err error) {
	if cursorPath != "" && !ValidPath(cursorPath) {
		return nil, "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"invalid cursor", nil, "e9f0a1b2-c3d4-4e5f-8a6b-8c9d0e1f2a3b")
	}
	if _, err := s.ThreadRoot(ctx, userID, rootID, conversation.RoleViewer); err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	msgs, err = s.repo.ListTree(ctx, rootID, cursorPath, limit+1)
	if err != nil {
		return nil, "", platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load thread")
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		next = msgs[limit-1].Path
	}
	return msgs, next, nil
}

// ThreadRoot loads a thread's root after checking the caller's role in its conversation.
func (s *Service) ThreadRoot(ctx context.Context, userID, rootID string, min conversation.Role) (*Message, error) {
	root, err := s.loadVisible(ctx, userID, rootID, min)
	if err != nil {
		return nil, err
	}
	if !root.IsRoot() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			"thread not found", nil, "f0a1b2c3-d4e5-4f6a-9b7c-9d0e1f2a3b4c")
	}
	return root, nil
}

// ===============================================
// Unread
// ===============================================

// UnreadSummary counts unread messages per thread of a conversation.
func (s *Service) UnreadSummary(ctx context.Context, userID, conversationID string) ([]UnreadCount, error) {
	if _, err := s.access.RequireRole(ctx, conversationID, userID, conversation.RoleViewer); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountUnread(ctx, conversationID, userID, "")
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to count unread messages")
	}
	return counts, nil
}

// MarkRead moves the caller's marker to path, or to the newest path of the thread when empty,
// and sends the new count to the caller.
func (s *Service) MarkRead(ctx context.Context, userID, rootID, path string) (*ReadMarker, int64, error) {
	root, err := s.ThreadRoot(ctx, userID, rootID, conversation.RoleViewer)
	if err != nil {
		return nil, 0, err
	}

	var target *Message
	if path == "" {
		target, err = s.repo.LastByPath(ctx, rootID)
	} else {
		if !ValidPath(path) {
			return nil, 0, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"invalid path", nil, "a1b2c3d4-e5f6-4a7b-8c8d-0e1f2a3b4c5e")
		}
		target, err = s.repo.FindByPath(ctx, rootID, path)
	}
	if err != nil {
		return nil, 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve read position")
	}

	now := s.now().UTC()
	marker := &ReadMarker{
		UserID:         userID,
		ConversationID: root.ConversationID,
		RootID:         rootID,
		Path:           target.Path,
		MarkedAt:       target.CreatedAt,
		UpdatedAt:      now,
	}
	if path == "" {
		// Everything in the thread so far counts as read.
		marker.MarkedAt = now
	}
	if err := s.repo.UpsertReadMarker(ctx, marker); err != nil {
		return nil, 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update read marker")
	}

	counts, err := s.repo.CountUnread(ctx, root.ConversationID, userID, rootID)
	if err != nil {
		return nil, 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to count unread messages")
	}
	var unread int64
	for _, c := range counts {
		if c.RootID == rootID {
			unread = c.Unread
		}
	}
	s.publish(ctx, root.ConversationID, streamevent.Draft{
		Name: streamevent.UnreadUpdate,
		Payload: streamevent.UnreadPayload{
			ConversationID: root.ConversationID,
			RootID:         rootID,
			Unread:         unread,
			MarkerPath:     marker.Path,
		},
		TargetUserIDs: []string{userID},
	})
	return marker, unread, nil
}

// ===============================================
// Prompt context
// ===============================================

// ThreadContext assembles the prompt context of a reply to parentID: the root, the ancestor
// chain down to the parent and, when enabled, the parent's siblings, all in path order.
// The chain is capped at ContextMaxDepth entries, then the oldest non-root entries are dropped
// until the content fits ContextMaxChars. The parent itself is always kept.
func (s *Service) ThreadContext(ctx context.Context, parentID string) ([]*Message, error) {
	parent, err := s.repo.FindByID(ctx, parentID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "parent message not found")
	}
	chain, err := s.repo.FindByPaths(ctx, parent.RootID, AncestorPaths(parent.Path))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load ancestors")
	}

	if s.cfg.ContextSiblings && parent.ParentID != nil {
		siblings, err := s.repo.ListChildren(ctx, *parent.ParentID)
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load siblings")
		}
		for _, sib := range siblings {
			if sib.ID != parent.ID && sib.Path < parent.Path {
				chain = append(chain, sib)
			}
		}
	}

	live := chain[:0]
	for _, m := range chain {
		if !m.IsDeleted() && !m.Streaming() {
			live = append(live, m)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Path < live[j].Path })
	return truncateContext(live, parent.ID, s.cfg.ContextMaxDepth, s.cfg.ContextMaxChars), nil
}

func truncateContext(msgs []*Message, keepID string, maxDepth, maxChars int) []*Message {
	if len(msgs) == 0 {
		return msgs
	}
	droppable := func(m *Message) bool { return !m.IsRoot() && m.ID != keepID }

	for maxDepth > 0 && len(msgs) > maxDepth {
		idx := firstDroppable(msgs, droppable)
		if idx < 0 {
			break
		}
		msgs = append(msgs[:idx:idx], msgs[idx+1:]...)
	}

	if maxChars > 0 {
		total := 0
		for _, m := range msgs {
			total += utf8.RuneCountInString(m.Content)
		}
		for total > maxChars {
			idx := firstDroppable(msgs, droppable)
			if idx < 0 {
				break
			}
			total -= utf8.RuneCountInString(msgs[idx].Content)
			msgs = append(msgs[:idx:idx], msgs[idx+1:]...)
		}
	}
	return msgs
}

func firstDroppable(msgs []*Message, droppable func(*Message) bool) int {
	for i, m := range msgs {
		if droppable(m) {
			return i
		}
	}
	return -1
}

// ===============================================
// Helpers
// ===============================================

func (s *Service) replyTarget(ctx context.Context, parentID, userID string) (*Message, error) {
	parent, err := s.loadVisible(ctx, userID, parentID, conversation.RoleMember)
	if err != nil {
		return nil, err
	}
	if parent.IsDeleted() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnprocessable,
			"cannot reply to a deleted message", nil, "b2c3d4e5-f6a7-4b8c-9d9e-1f2a3b4c5d6f")
	}
	return parent, nil
}

// loadVisible hides messages of conversations the caller cannot see behind NOT_FOUND.
func (s *Service) loadVisible(ctx context.Context, userID, messageID string, min conversation.Role) (*Message, error) {
	msg, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "message not found")
	}
	if _, err := s.access.RequireRole(ctx, msg.ConversationID, userID, min); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) validateContent(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"content is required", nil, "c3d4e5f6-a7b8-4c9d-8e0f-2a3b4c5d6e7a")
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentChars {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"content is too long", nil, "d4e5f6a7-b8c9-4d0e-9f1a-3b4c5d6e7f8b",
			map[string]any{"field": "content", "limit": s.cfg.MaxContentChars})
	}
	return nil
}

func (s *Service) newID(ctx context.Context) (string, error) {
	id, err := idgen.GenerateSecureID("msg", 20)
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
			"failed to generate message id", err, "e5f6a7b8-c9d0-4e1f-8a2b-4c5d6e7f8a9c")
	}
	return id, nil
}

func (s *Service) publishActivity(ctx context.Context, msg *Message) {
	s.publish(ctx, msg.ConversationID, streamevent.Draft{
		Name: streamevent.ThreadActivity,
		Payload: streamevent.ThreadActivityPayload{
			ConversationID: msg.ConversationID,
			RootID:         msg.RootID,
			MessageID:      msg.ID,
			LastActivityAt: msg.CreatedAt,
		},
	})
}

// publish logs failures; the row is already committed and the hub has told subscribers.
func (s *Service) publish(ctx context.Context, conversationID string, draft streamevent.Draft) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, conversationID, draft); err != nil {
		s.log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Str("event", string(draft.Name)).
			Msg("failed to publish message event")
	}
}

func preview(content string) string {
	const limit = 140
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	r := []rune(content)
	return string(r[:limit]) + "…"
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
