package assistant

import (
	"context"
	"io"
	"time"
)

// ScriptedRuntime replays fixed deltas with a fixed gap. It backs tests and the "scripted" provider.
type ScriptedRuntime struct {
	Deltas       []string
	Gap          time.Duration
	FinishReason string
	PromptTokens int
	// Err, when set, is returned after the deltas instead of a finish reason.
	Err error
}

var _ Runtime = (*ScriptedRuntime)(nil)

func (r *ScriptedRuntime) StreamReply(ctx context.Context, req Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	finish := r.FinishReason
	if finish == "" {
		finish = FinishStop
	}
	prompt := r.PromptTokens
	if prompt == 0 {
		prompt = EstimatePromptTokens(req.Messages)
	}
	return &scriptedStream{deltas: r.Deltas, gap: r.Gap, finish: finish, err: r.Err, prompt: prompt}, nil
}

type scriptedStream struct {
	deltas     []string
	gap        time.Duration
	finish     string
	err        error
	prompt     int
	next       int
	cumulative string
	finished   bool
}

func (s *scriptedStream) Recv(ctx context.Context) (Chunk, error) {
	if s.finished {
		return Chunk{}, io.EOF
	}
	if s.gap > 0 {
		timer := time.NewTimer(s.gap)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Chunk{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}

	if s.next < len(s.deltas) {
		d := s.deltas[s.next]
		s.next++
		s.cumulative += d
		return Chunk{Delta: d, Cumulative: s.cumulative}, nil
	}
	s.finished = true
	if s.err != nil {
		return Chunk{}, s.err
	}
	return Chunk{Cumulative: s.cumulative, FinishReason: s.finish}, nil
}

func (s *scriptedStream) PromptTokens() int { return s.prompt }

func (s *scriptedStream) Close() error { return nil }
