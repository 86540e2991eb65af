package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// StopReason is the terminal state of a generation.
type StopReason int32

const (
	None StopReason = iota
	Completed
	Cancelled
	TimedOut
)

func (r StopReason) String() string {
	switch r {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed_out"
	default:
		return "none"
	}
}

// Handle tracks one in-flight generation. Its context is cancelled on any terminal transition.
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	mu    sync.Mutex
	timer *time.Timer
	stop  func() bool
}

// Context carries the cancellation signal observed by the producer.
func (h *Handle) Context() context.Context { return h.ctx }

// Done is closed once the handle leaves the active state.
func (h *Handle) Done() <-chan struct{} { return h.ctx.Done() }

// Reason returns the terminal reason, or None while active.
func (h *Handle) Reason() StopReason { return StopReason(h.state.Load()) }

// Cancel moves an active handle to Cancelled. It returns the terminal reason either way.
func (h *Handle) Cancel() StopReason { return h.finish(Cancelled) }

// Complete moves an active handle to Completed. It returns the terminal reason either way.
func (h *Handle) Complete() StopReason { return h.finish(Completed) }

func (h *Handle) finish(reason StopReason) StopReason {
	if h.state.CompareAndSwap(int32(None), int32(reason)) {
		h.cancel()
		h.mu.Lock()
		if h.timer != nil {
			h.timer.Stop()
		}
		if h.stop != nil {
			h.stop()
		}
		h.mu.Unlock()
		return reason
	}
	return h.Reason()
}

func (h *Handle) terminal() bool {
	return h.Reason() != None
}

// Supervisor is the registry of in-flight generations keyed by message id.
type Supervisor struct {
	defaultTimeout time.Duration

	mu      sync.Mutex
	handles map[string]*Handle
}

func New(defaultTimeout time.Duration) *Supervisor {
	return &Supervisor{defaultTimeout: defaultTimeout, handles: make(map[string]*Handle)}
}

// Create starts a handle whose timeout begins now. A zero timeout uses the default; cancelling
// parent counts as an explicit cancellation.
func (s *Supervisor) Create(parent context.Context, timeout time.Duration) *Handle {
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	h := &Handle{ctx: ctx, cancel: cancel}
	h.mu.Lock()
	defer h.mu.Unlock()
	if timeout > 0 {
		h.timer = time.AfterFunc(timeout, func() { h.finish(TimedOut) })
	}
	h.stop = context.AfterFunc(parent, func() { h.finish(Cancelled) })
	return h
}

// Register associates a handle with a message id, replacing any earlier one.
func (s *Supervisor) Register(messageID string, h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[messageID] = h
}

// Unregister forgets the message id.
func (s *Supervisor) Unregister(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, messageID)
}

// Cancel cancels the generation of messageID. It returns None when nothing is registered,
// otherwise the terminal reason, which is stable across repeated calls.
func (s *Supervisor) Cancel(messageID string) StopReason {
	s.mu.Lock()
	h, ok := s.handles[messageID]
	s.mu.Unlock()
	if !ok {
		return None
	}
	return h.Cancel()
}

// Lookup returns the active handle of messageID. Terminal handles are dropped on access.
func (s *Supervisor) Lookup(messageID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[messageID]
	if !ok {
		return nil, false
	}
	if h.terminal() {
		delete(s.handles, messageID)
		return nil, false
	}
	return h, true
}

// Len counts active handles, dropping terminal ones.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		if h.terminal() {
			delete(s.handles, id)
		}
	}
	return len(s.handles)
}

// CancelAll cancels every registered generation.
func (s *Supervisor) CancelAll() int {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	n := 0
	for _, h := range handles {
		if h.Cancel() == Cancelled {
			n++
		}
	}
	return n
}
