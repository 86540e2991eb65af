package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrPoolFull    = errors.New("generation queue is full")
	ErrPoolStopped = errors.New("generation pool is stopped")
)

// Job is a unit of generation work.
type Job func(ctx context.Context)

// PoolConfig bounds concurrent and queued generations.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// Pool runs generations on a fixed set of workers.
type Pool struct {
	jobs    chan Job
	workers int
	log     zerolog.Logger
	wg      sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
}

// NewPool creates a pool; call Start before jobs run.
func NewPool(cfg PoolConfig, log zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	return &Pool{
		jobs:    make(chan Job, cfg.QueueSize),
		workers: cfg.Workers,
		log:     log.With().Str("component", "generation-pool").Logger(),
	}
}

// Start launches the workers. Jobs receive a context cancelled when ctx ends or Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if p.stopped {
		return ErrPoolStopped
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.log.Info().Int("worker_count", p.workers).Msg("starting generation pool")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(id, job)
			}
		}(i + 1)
	}
	return nil
}

func (p *Pool) run(worker int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker_id", worker).Interface("panic", r).Msg("generation job panicked")
		}
	}()
	job(p.ctx)
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrPoolFull
	}
}

// Stop cancels running jobs, lets queued ones observe the cancellation and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		return
	}
	p.log.Info().Msg("stopping generation pool")
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("all generation workers stopped gracefully")
	case <-time.After(30 * time.Second):
		p.log.Warn().Msg("generation pool shutdown timed out")
	}
}

// QueueDepth returns the number of queued jobs.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}
