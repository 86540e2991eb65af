package streamhandler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"threadline/internal/domain/conversation"
	"threadline/internal/domain/hub"
	"threadline/internal/domain/presence"
	"threadline/internal/domain/streamevent"
	"threadline/internal/interfaces/httpserver/middlewares"
	"threadline/internal/interfaces/httpserver/responses"
	"threadline/internal/utils/platformerrors"
)

// LastEventIDQuery lets clients that cannot set headers resume a stream.
const LastEventIDQuery = "last_event_id"

// StreamHandler serves a conversation's live event stream over SSE.
type StreamHandler struct {
	hub                 *hub.Hub
	conversationService *conversation.Service
	presenceService     *presence.Service
	log                 zerolog.Logger
}

func NewStreamHandler(h *hub.Hub, conversationService *conversation.Service, presenceService *presence.Service, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		hub:                 h,
		conversationService: conversationService,
		presenceService:     presenceService,
		log:                 log.With().Str("component", "stream-handler").Logger(),
	}
}

// Stream subscribes the caller to conversationID and writes events until the client goes
// away, the subscription is closed or the server shuts down.
func (h *StreamHandler) Stream(c *gin.Context, userID, conversationID string) {
	ctx := c.Request.Context()
	if _, _, err := h.conversationService.Get(ctx, userID, conversationID); err != nil {
		responses.HandleError(c, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to open stream"))
		return
	}

	lastEventID := c.GetHeader("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = c.Query(LastEventIDQuery)
	}

	sub, err := h.hub.Subscribe(ctx, conversationID, userID, lastEventID)
	if err != nil {
		responses.HandleError(c, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to open stream"))
		return
	}
	defer sub.Close()

	flusher, ok := middlewares.PrepareSSE(c)
	if !ok {
		responses.HandleNewError(c, platformerrors.ErrorTypeInternal, "streaming not supported", "3e9d7c1b-2a4f-4b6e-8c0d-5f1a2b3c4d6e")
		return
	}
	c.Status(http.StatusOK)
	flusher.Flush()

	h.presenceService.Connected(ctx, userID)
	defer func() {
		sub.Close()
		h.presenceService.Disconnected(context.WithoutCancel(ctx), userID)
	}()

	log := h.log.With().Str("conversation_id", conversationID).Str("user_id", userID).Logger()
	log.Debug().Str("last_event_id", lastEventID).Msg("stream opened")

	w := &sseWriter{w: c.Writer, flusher: flusher}
	for {
		rec, err := sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, hub.ErrSubscriptionClosed) && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("stream ended")
			}
			log.Debug().Msg("stream closed")
			return
		}
		if rec == nil {
			err = w.keepAlive()
		} else {
			err = w.event(rec)
		}
		if err != nil {
			log.Debug().Err(err).Msg("client write failed")
			return
		}
	}
}

// ===============================================
// SSE framing
// ===============================================

type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (s *sseWriter) event(rec *streamevent.Record) error {
	data, err := rec.Data()
	if err != nil {
		return err
	}
	if rec.Persisted() {
		_, err = fmt.Fprintf(s.w, "event: %s\nid: %s\ndata: %s\n\n", rec.Name, rec.EventID, data)
	} else {
		_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", rec.Name, data)
	}
	if err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) keepAlive() error {
	if _, err := io.WriteString(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
