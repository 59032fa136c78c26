package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"companion-pipeline/internal/domain/ports/repository"
	"companion-pipeline/internal/infra/metrics"
)

// CleanupWorker periodically deletes terminal jobs older than the retention
// window. Terminal rows only exist for late status polls; past retention the
// client has either seen the outcome or never will.
type CleanupWorker struct {
	interval  time.Duration
	retention time.Duration
	jobs      repository.JobRepository
	log       zerolog.Logger
}

func NewCleanupWorker(interval, retention time.Duration, jobs repository.JobRepository, logger zerolog.Logger) *CleanupWorker {
	return &CleanupWorker{
		interval:  interval,
		retention: retention,
		jobs:      jobs,
		log:       logger.With().Str("component", "cleanup-worker").Logger(),
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("retention", w.retention).Msg("starting cleanup worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-w.retention)
			n, err := w.jobs.DeleteTerminalBefore(ctx, cutoff)
			if err != nil {
				w.log.Error().Err(err).Msg("cleanup sweep failed")
				continue
			}
			if n > 0 {
				metrics.AddJobsSwept(n)
				w.log.Info().Int("count", n).Msg("terminal jobs swept")
			}
		}
	}
}
