package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/repository"
)

// CleanupJob prunes old message history on a fixed interval so the log
// table does not grow without bound.
type CleanupJob struct {
	history   repository.MessageLogRepository
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
	now       func() time.Time
}

func NewCleanupJob(history repository.MessageLogRepository, retention, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		history:   history,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	j.runCleanup(ctx, "message history", func(ctx context.Context) (int64, error) {
		return j.history.DeleteOlderThan(ctx, cutoff)
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
