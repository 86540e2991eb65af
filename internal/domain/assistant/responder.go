package assistant

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"threadline/internal/domain/message"
	"threadline/internal/domain/streamevent"
	"threadline/internal/domain/supervisor"
	"threadline/internal/infrastructure/metrics"
	"threadline/internal/utils/platformerrors"
)

// Messages is the slice of the message service a generation writes through.
type Messages interface {
	CreateAssistantPlaceholder(ctx context.Context, parentID, model string) (*message.Message, error)
	ThreadContext(ctx context.Context, parentID string) ([]*message.Message, error)
	AppendChunk(ctx context.Context, messageID string, index int, delta string, usage message.Usage) (*message.Message, error)
	Finalize(ctx context.Context, messageID, finishReason string, usage message.Usage) (*message.Message, error)
}

// ResponderConfig holds generation defaults.
type ResponderConfig struct {
	Timeout      time.Duration
	DefaultModel string
}

// Responder drives assistant replies from placeholder to final message.
type Responder struct {
	messages   Messages
	runtime    Runtime
	supervisor *supervisor.Supervisor
	publisher  streamevent.Publisher
	pool       *Pool
	cfg        ResponderConfig
	log        zerolog.Logger
}

// NewResponder creates a responder.
func NewResponder(messages Messages, runtime Runtime, sup *supervisor.Supervisor, publisher streamevent.Publisher, pool *Pool, cfg ResponderConfig, log zerolog.Logger) *Responder {
	return &Responder{
		messages:   messages,
		runtime:    runtime,
		supervisor: sup,
		publisher:  publisher,
		pool:       pool,
		cfg:        cfg,
		log:        log.With().Str("component", "responder").Logger(),
	}
}

// Outcome summarises a finished generation.
type Outcome struct {
	Message *message.Message
	Reason  supervisor.StopReason
	Chunks  int
}

// Start creates the assistant placeholder beneath parentID and queues its generation.
// The placeholder is returned immediately; content arrives as message.delta events.
func (r *Responder) Start(ctx context.Context, parentID, model string) (*message.Message, error) {
	if model == "" {
		model = r.cfg.DefaultModel
	}
	placeholder, err := r.messages.CreateAssistantPlaceholder(ctx, parentID, model)
	if err != nil {
		return nil, err
	}

	handle := r.supervisor.Create(context.Background(), r.cfg.Timeout)
	r.supervisor.Register(placeholder.ID, handle)

	err = r.pool.Submit(func(poolCtx context.Context) {
		stop := context.AfterFunc(poolCtx, func() { handle.Cancel() })
		defer stop()
		r.Run(handle, placeholder, parentID, model)
	})
	if err != nil {
		handle.Cancel()
		r.supervisor.Unregister(placeholder.ID)
		persistCtx := context.WithoutCancel(ctx)
		if _, ferr := r.messages.Finalize(persistCtx, placeholder.ID, message.FinishError, message.Usage{}); ferr != nil {
			r.log.Warn().Err(ferr).Str("message_id", placeholder.ID).Msg("failed to finalize rejected generation")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeServiceUnavailable,
			"assistant is busy, try again shortly", err, "4e5f6a7b-8c9d-4e0f-9a1b-2c3d4e5f6a7c")
	}
	return placeholder, nil
}

// Run streams one generation into placeholder and finalizes it. It blocks until the
// runtime finishes, the handle is cancelled or it times out.
func (r *Responder) Run(handle *supervisor.Handle, placeholder *message.Message, parentID, model string) Outcome {
	defer r.supervisor.Unregister(placeholder.ID)

	ctx := handle.Context()
	// Writes must land even after cancellation.
	persistCtx := context.WithoutCancel(ctx)
	log := r.log.With().Str("message_id", placeholder.ID).Str("model", model).Logger()
	started := time.Now()

	var (
		chunks       int
		finish       string
		backendErr   error
		promptTokens int
		reported     *message.Usage
	)

	history, err := r.messages.ThreadContext(ctx, parentID)
	if err != nil {
		backendErr = err
	}

	var stream Stream
	if backendErr == nil {
		stream, backendErr = r.runtime.StreamReply(ctx, Request{
			ConversationID: placeholder.ConversationID,
			MessageID:      placeholder.ID,
			Messages:       toPrompt(history),
			Metadata:       map[string]string{"model": model},
		})
	}

	if backendErr == nil {
		defer stream.Close()
		promptTokens = stream.PromptTokens()
		for {
			chunk, err := stream.Recv(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() == nil {
					backendErr = err
				}
				break
			}
			if chunk.Usage != nil {
				u := *chunk.Usage
				reported = &u
			}
			if chunk.Delta != "" {
				if chunks == 0 {
					metrics.AssistantFirstChunk.WithLabelValues(model).Observe(time.Since(started).Seconds())
				}
				running := usageFor(promptTokens, chunks+1, reported)
				if _, err := r.messages.AppendChunk(persistCtx, placeholder.ID, chunks, chunk.Delta, running); err != nil {
					backendErr = err
					break
				}
				chunks++
			}
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
		}
		if p := stream.PromptTokens(); p > 0 {
			promptTokens = p
		}
	}

	reason := handle.Reason()
	if reason == supervisor.None {
		reason = handle.Complete()
	}

	switch {
	case reason == supervisor.TimedOut:
		finish = FinishError
		r.streamError(persistCtx, placeholder, streamevent.ErrorCodeTimeout, "assistant reply timed out")
	case reason == supervisor.Cancelled:
		finish = FinishCancelled
	case backendErr != nil:
		finish = FinishError
		log.Error().Err(backendErr).Msg("assistant generation failed")
		r.streamError(persistCtx, placeholder, streamevent.ErrorCodeBackend, "assistant backend failed")
	case finish == "":
		finish = FinishStop
	}

	final := usageFor(promptTokens, chunks, reported)
	msg, err := r.messages.Finalize(persistCtx, placeholder.ID, finish, final)
	if err != nil {
		log.Error().Err(err).Msg("failed to finalize assistant message")
		msg = placeholder
	}
	metrics.RecordAssistantStream(model, finish, final.PromptTokens, final.CompletionTokens)
	log.Info().
		Str("finish_reason", finish).
		Str("stop_reason", reason.String()).
		Int("chunks", chunks).
		Dur("duration", time.Since(started)).
		Msg("assistant generation finished")
	return Outcome{Message: msg, Reason: reason, Chunks: chunks}
}

func (r *Responder) streamError(ctx context.Context, placeholder *message.Message, code, msg string) {
	if r.publisher == nil {
		return
	}
	_, err := r.publisher.Publish(ctx, placeholder.ConversationID, streamevent.Draft{
		Name: streamevent.StreamError,
		Payload: streamevent.ErrorPayload{
			Code:      code,
			Message:   msg,
			MessageID: placeholder.ID,
		},
	})
	if err != nil {
		r.log.Warn().Err(err).Str("message_id", placeholder.ID).Msg("failed to publish stream error")
	}
}

// usageFor prefers backend-reported usage; otherwise each chunk counts as one completion token.
func usageFor(promptTokens, chunks int, reported *message.Usage) message.Usage {
	if reported != nil && reported.TotalTokens > 0 {
		return *reported
	}
	return message.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: chunks,
		TotalTokens:      promptTokens + chunks,
	}
}

func toPrompt(history []*message.Message) []PromptMessage {
	out := make([]PromptMessage, 0, len(history))
	for _, m := range history {
		out = append(out, PromptMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
