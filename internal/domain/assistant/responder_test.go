package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadline/internal/domain/conversation"
	"threadline/internal/domain/hub"
	"threadline/internal/domain/message"
	"threadline/internal/domain/streamevent"
	"threadline/internal/domain/supervisor"
	"threadline/internal/utils/platformerrors"
)

type members struct{}

func (members) ListMemberIDs(context.Context, string) ([]string, error) {
	return []string{"owner"}, nil
}

func (members) RequireRole(_ context.Context, conversationID, userID string, _ conversation.Role) (*conversation.Membership, error) {
	return &conversation.Membership{ConversationID: conversationID, UserID: userID, Role: conversation.RoleOwner}, nil
}

type env struct {
	hub       *hub.Hub
	messages  *message.Service
	sup       *supervisor.Supervisor
	pool      *Pool
	responder *Responder
	sub       *hub.Subscription
	root      *message.Message
}

func newEnv(t *testing.T, runtime Runtime, timeout time.Duration) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{}
	e.hub = hub.New(streamevent.NewMemoryStore(), members{}, hub.Config{QueueCapacity: 256, KeepAlive: time.Second}, zerolog.Nop())
	e.sup = supervisor.New(time.Minute)
	e.messages = message.NewService(message.NewMemoryRepository(), members{}, e.hub, e.sup, message.Config{}, zerolog.Nop())
	e.pool = NewPool(PoolConfig{Workers: 2, QueueSize: 4}, zerolog.Nop())
	require.NoError(t, e.pool.Start(ctx))
	t.Cleanup(e.pool.Stop)
	e.responder = NewResponder(e.messages, runtime, e.sup, e.hub, e.pool, ResponderConfig{Timeout: timeout, DefaultModel: "stub"}, zerolog.Nop())

	var err error
	e.root, err = e.messages.PostRoot(ctx, message.PostInput{ConversationID: "c1", AuthorID: "owner", Content: "hi"})
	require.NoError(t, err)
	e.sub, err = e.hub.Subscribe(ctx, "c1", "owner", "evt_999999")
	require.NoError(t, err)
	t.Cleanup(e.sub.Close)
	return e
}

type observed struct {
	name    streamevent.Name
	payload map[string]any
}

// collect reads events for messageID until message.done.
func (e *env) collect(t *testing.T, messageID string) []observed {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var out []observed
	for {
		r, err := e.sub.Next(ctx)
		require.NoError(t, err)
		if r == nil {
			continue
		}
		var body struct {
			Payload map[string]any `json:"payload"`
		}
		data, err := r.Data()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &body))
		if r.Name == streamevent.ThreadActivity || body.Payload["message_id"] != messageID {
			continue
		}
		out = append(out, observed{name: r.Name, payload: body.Payload})
		if r.Name == streamevent.MessageDone {
			return out
		}
	}
}

func names(events []observed) []streamevent.Name {
	out := make([]streamevent.Name, len(events))
	for i, ev := range events {
		out[i] = ev.name
	}
	return out
}

func TestReplyStreamsDeltasThenDone(t *testing.T) {
	e := newEnv(t, &ScriptedRuntime{Deltas: []string{"Hello", " world"}}, time.Minute)

	placeholder, err := e.responder.Start(context.Background(), e.root.ID, "")
	require.NoError(t, err)
	events := e.collect(t, placeholder.ID)

	assert.Equal(t, []streamevent.Name{streamevent.MessageDelta, streamevent.MessageDelta, streamevent.MessageDone}, names(events))
	assert.Equal(t, "Hello", events[0].payload["delta"])
	assert.Equal(t, " world", events[1].payload["delta"])
	assert.Equal(t, "Hello world", events[1].payload["cumulative"])
	assert.Equal(t, "stop", events[2].payload["finish_reason"])

	msg, err := e.messages.Get(context.Background(), "owner", placeholder.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", msg.Content)
	assert.Equal(t, 2, msg.Usage.CompletionTokens)
	assert.Equal(t, message.FinishStop, msg.FinishReason)
}

// lateUsageRuntime learns the prompt size only once its stream is drained.
type lateUsageRuntime struct{}

func (lateUsageRuntime) StreamReply(context.Context, Request) (Stream, error) {
	return &lateUsageStream{deltas: []string{"a", "b"}}, nil
}

type lateUsageStream struct {
	deltas []string
	next   int
	prompt int
}

func (s *lateUsageStream) Recv(context.Context) (Chunk, error) {
	if s.next == len(s.deltas) {
		s.prompt = 42
		return Chunk{}, io.EOF
	}
	d := s.deltas[s.next]
	s.next++
	return Chunk{Delta: d}, nil
}

func (s *lateUsageStream) PromptTokens() int { return s.prompt }
func (s *lateUsageStream) Close() error      { return nil }

func TestPromptTokensReadAfterStreamDrains(t *testing.T) {
	e := newEnv(t, lateUsageRuntime{}, time.Minute)

	placeholder, err := e.responder.Start(context.Background(), e.root.ID, "")
	require.NoError(t, err)
	e.collect(t, placeholder.ID)

	msg, err := e.messages.Get(context.Background(), "owner", placeholder.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, msg.Usage.PromptTokens)
	assert.Equal(t, 2, msg.Usage.CompletionTokens)
	assert.Equal(t, 44, msg.Usage.TotalTokens)
}

func TestCancellationStopsGeneration(t *testing.T) {
	deltas := make([]string, 10)
	for i := range deltas {
		deltas[i] = "x"
	}
	e := newEnv(t, &ScriptedRuntime{Deltas: deltas, Gap: 20 * time.Millisecond}, time.Minute)

	placeholder, err := e.responder.Start(context.Background(), e.root.ID, "")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	reason, err := e.messages.CancelGeneration(context.Background(), "owner", placeholder.ID)
	require.NoError(t, err)
	assert.Equal(t, supervisor.Cancelled, reason)

	events := e.collect(t, placeholder.ID)
	last := events[len(events)-1]
	assert.Equal(t, streamevent.MessageDone, last.name)
	assert.Equal(t, "cancelled", last.payload["finish_reason"])

	msg, err := e.messages.Get(context.Background(), "owner", placeholder.ID)
	require.NoError(t, err)
	assert.Less(t, len(msg.Content), 10)
	assert.Equal(t, message.FinishCancelled, msg.FinishReason)
}

func TestTimeoutFinalizesWithError(t *testing.T) {
	e := newEnv(t, &ScriptedRuntime{Deltas: []string{"slow", "slower"}, Gap: 100 * time.Millisecond}, 30*time.Millisecond)

	root := e.root
	placeholder, err := e.messages.CreateAssistantPlaceholder(context.Background(), root.ID, "stub")
	require.NoError(t, err)
	handle := e.sup.Create(context.Background(), 30*time.Millisecond)
	e.sup.Register(placeholder.ID, handle)

	outcome := e.responder.Run(handle, placeholder, root.ID, "stub")
	assert.Equal(t, supervisor.TimedOut, outcome.Reason)
	assert.Equal(t, message.FinishError, outcome.Message.FinishReason)
	assert.Zero(t, outcome.Chunks)

	events := e.collect(t, placeholder.ID)
	assert.Equal(t, []streamevent.Name{streamevent.StreamError, streamevent.MessageDone}, names(events))
	assert.Equal(t, streamevent.ErrorCodeTimeout, events[0].payload["code"])
	assert.Equal(t, supervisor.None, e.sup.Cancel(placeholder.ID))
}

func TestBackendFailureKeepsPartialContent(t *testing.T) {
	e := newEnv(t, &ScriptedRuntime{Deltas: []string{"partial"}, Err: errors.New("upstream reset")}, time.Minute)

	placeholder, err := e.responder.Start(context.Background(), e.root.ID, "")
	require.NoError(t, err)
	events := e.collect(t, placeholder.ID)

	assert.Equal(t, []streamevent.Name{streamevent.MessageDelta, streamevent.StreamError, streamevent.MessageDone}, names(events))
	assert.Equal(t, "error", events[2].payload["finish_reason"])

	msg, err := e.messages.Get(context.Background(), "owner", placeholder.ID)
	require.NoError(t, err)
	assert.Equal(t, "partial", msg.Content)
}

func TestFullPoolRejectsWithServiceUnavailable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &ScriptedRuntime{Deltas: []string{"x"}}, time.Minute)
	e.pool.Stop()

	_, err := e.responder.Start(ctx, e.root.ID, "")
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeServiceUnavailable))
}

func TestScriptedRuntimeHonorsContext(t *testing.T) {
	rt := &ScriptedRuntime{Deltas: []string{"a", "b"}, Gap: time.Second}
	stream, err := rt.StreamReply(context.Background(), Request{Messages: []PromptMessage{{Role: "user", Content: strings.Repeat("x", 40)}}})
	require.NoError(t, err)
	assert.Equal(t, 10, stream.PromptTokens())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = stream.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
