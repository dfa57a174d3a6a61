package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/mpc-relay-go/internal/config"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

// Deleter removes rows created before cutoff and reports how many went.
type Deleter interface {
	DeleteOlderThan(ctx context.Context, cutoff model.Millis) (int64, error)
}

// RetentionJob periodically deletes old relay messages and audit rows.
// Sessions, participants and sign requests are never swept.
type RetentionJob struct {
	messages Deleter
	auditLog Deleter
	cfg      config.RetentionConfig
	now      func() time.Time
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewRetentionJob(messages, auditLog Deleter, cfg config.RetentionConfig) *RetentionJob {
	return &RetentionJob{
		messages: messages,
		auditLog: auditLog,
		cfg:      cfg,
		now:      time.Now,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval. It returns
// false without starting when the interval is disabled.
func (j *RetentionJob) Start() bool {
	interval := j.cfg.CleanupInterval()
	if interval <= 0 {
		close(j.stopped)
		log.Info().Msg("mpc retention job disabled")
		return false
	}

	go j.run(interval)
	log.Info().
		Dur("interval", interval).
		Dur("messageRetention", j.cfg.MessageRetention()).
		Dur("auditRetention", j.cfg.AuditRetention()).
		Msg("mpc retention job started")
	return true
}

func (j *RetentionJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		<-j.stopped
		log.Info().Msg("mpc retention job stopped")
	})
}

func (j *RetentionJob) run(interval time.Duration) {
	defer close(j.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.RunOnce(context.Background())

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single sweep. Failures are logged; they never stop
// the job.
func (j *RetentionJob) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, config.RetentionRunTimeout)
	defer cancel()

	now := j.now()
	if keep := j.cfg.MessageRetention(); keep > 0 {
		j.runCleanup(ctx, "messages", model.MillisOf(now.Add(-keep)), j.messages)
	}
	if keep := j.cfg.AuditRetention(); keep > 0 {
		j.runCleanup(ctx, "audit logs", model.MillisOf(now.Add(-keep)), j.auditLog)
	}
}

func (j *RetentionJob) runCleanup(ctx context.Context, name string, cutoff model.Millis, d Deleter) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msgf("mpc cleanup of %s panicked", name)
		}
	}()

	count, err := d.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msgf("mpc cleanup of %s failed", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
