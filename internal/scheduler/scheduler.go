// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/observability"
	"github.com/swscloud/reviewd/internal/store"
)

// janitorInterval is how often the stale-version sweep runs.
const janitorInterval = 10 * time.Minute

// Scheduler owns the background cron jobs.
type Scheduler struct {
	cron gocron.Scheduler
}

// New builds the scheduler with the stale-processing janitor registered.
// Versions stuck in PROCESSING longer than staleMinutes are failed so they
// can be reprocessed.
func New(st *store.Store, staleMinutes int) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.SeverityFatal, "create scheduler")
	}

	_, err = cron.NewJob(
		gocron.DurationJob(janitorInterval),
		gocron.NewTask(func() {
			ctx := context.Background()
			ids, err := st.StaleProcessingVersions(ctx, staleMinutes)
			if err != nil {
				observability.Warn(ctx, "stale version sweep failed", slog.Any("error", err))
				return
			}
			for _, id := range ids {
				if err := st.FailVersion(ctx, id, "processing timed out"); err != nil {
					observability.Warn(ctx, "fail stale version errored",
						slog.Int64("version_id", id), slog.Any("error", err))
					continue
				}
				observability.Info(ctx, "stale version failed by janitor", slog.Int64("version_id", id))
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.SeverityFatal, "register janitor job")
	}
	return &Scheduler{cron: cron}, nil
}

// Start begins running jobs.
func (s *Scheduler) Start() { s.cron.Start() }

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error { return s.cron.Shutdown() }
