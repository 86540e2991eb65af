package crontab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"threadline/internal/config"
	"threadline/internal/domain/conversation"
	"threadline/internal/domain/presence"
	"threadline/internal/domain/ratelimit"
	"threadline/internal/domain/session"
	"threadline/internal/domain/streamevent"
	"threadline/internal/infrastructure/cache"
	"threadline/internal/infrastructure/metrics"
	"threadline/internal/utils/platformerrors"
)

const (
	CronJobTimeout        = 2 * time.Minute
	DefaultReloadInterval = 1
	pruneUserBatch        = 100
)

// Locker runs fn only on the replica that wins name.
type Locker interface {
	RunExclusive(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// LocalLocker serialises jobs within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *LocalLocker) RunExclusive(ctx context.Context, name string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[name] {
		l.mu.Unlock()
		return cache.ErrLockHeld
	}
	l.held[name] = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// ProvideLocker uses redsync when Redis is configured.
func ProvideLocker(redis *cache.RedisCache) Locker {
	if redis == nil {
		return &LocalLocker{}
	}
	return redis
}

type Crontab struct {
	ctab     *crontab.Crontab
	cfg      *config.Config
	locker   Locker
	presence *presence.Service
	events   streamevent.Store
	sessions *session.Manager
	convs    *conversation.Service
	limits   *ratelimit.Engine
	log      zerolog.Logger
}

func NewCrontab(
	cfg *config.Config,
	locker Locker,
	presenceService *presence.Service,
	events streamevent.Store,
	sessions *session.Manager,
	convs *conversation.Service,
	limits *ratelimit.Engine,
	log zerolog.Logger,
) *Crontab {
	return &Crontab{
		ctab:     crontab.New(),
		cfg:      cfg,
		locker:   locker,
		presence: presenceService,
		events:   events,
		sessions: sessions,
		convs:    convs,
		limits:   limits,
		log:      log.With().Str("component", "crontab").Logger(),
	}
}

// Run schedules the maintenance jobs and blocks until ctx is cancelled.
func (c *Crontab) Run(ctx context.Context) error {
	if !c.cfg.MaintenanceEnabled {
		c.log.Info().Msg("maintenance disabled")
		<-ctx.Done()
		return nil
	}

	reload := c.cfg.RateLimitReloadMinutes
	if reload <= 0 {
		reload = DefaultReloadInterval
	}
	jobs := []struct {
		spec string
		name string
		fn   func(context.Context) error
	}{
		{"* * * * *", "typing_sweep", c.sweepTyping},
		{"*/5 * * * *", "event_prune", c.pruneEvents},
		{"*/5 * * * *", "session_purge", c.purgeSessions},
		{"*/5 * * * *", "invite_expiry", c.expireInvites},
		{fmt.Sprintf("*/%d * * * *", reload), "ratelimit_reload", c.limits.Reload},
	}
	for _, job := range jobs {
		job := job
		if err := c.ctab.AddJob(job.spec, func() { c.runJob(ctx, job.name, job.fn) }); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add "+job.name+" job")
		}
	}
	c.log.Info().Int("jobs", len(jobs)).Int("ratelimit_reload_minutes", reload).Msg("maintenance scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) runJob(parent context.Context, name string, fn func(context.Context) error) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), CronJobTimeout)
	defer cancel()

	started := time.Now()
	err := c.locker.RunExclusive(ctx, "maintenance:"+name, CronJobTimeout, fn)
	if errors.Is(err, cache.ErrLockHeld) {
		c.log.Debug().Str("job", name).Msg("job running elsewhere, skipped")
		return
	}
	metrics.RecordMaintenance(name, err)
	if err != nil {
		c.log.Error().Err(err).Str("job", name).Msg("maintenance job failed")
		return
	}
	c.log.Debug().Str("job", name).Dur("took", time.Since(started)).Msg("maintenance job finished")
}

func (c *Crontab) sweepTyping(context.Context) error {
	if n := c.presence.SweepTyping(); n > 0 {
		c.log.Debug().Int("expired", n).Msg("typing indicators swept")
	}
	return nil
}

func (c *Crontab) pruneEvents(ctx context.Context) error {
	users, err := c.events.UsersOverRetention(ctx, c.cfg.StreamEventRetention, pruneUserBatch)
	if err != nil {
		return err
	}
	var total int64
	for _, userID := range users {
		n, err := c.events.Prune(ctx, userID, c.cfg.StreamEventRetention, c.cfg.StreamPruneBatch)
		if err != nil {
			return err
		}
		total += n
	}
	if total > 0 {
		c.log.Info().Int("users", len(users)).Int64("deleted", total).Msg("stream events pruned")
	}
	return nil
}

func (c *Crontab) purgeSessions(ctx context.Context) error {
	n, err := c.sessions.PurgeExpired(ctx)
	if n > 0 {
		c.log.Info().Int64("deleted", n).Msg("expired sessions purged")
	}
	return err
}

func (c *Crontab) expireInvites(ctx context.Context) error {
	n, err := c.convs.ExpireInvites(ctx)
	if n > 0 {
		c.log.Info().Int64("deleted", n).Msg("expired invites removed")
	}
	return err
}
