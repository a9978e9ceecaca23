package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/eventsphere/server/internal/config"
	"github.com/eventsphere/server/internal/domain/accounts"
	"github.com/eventsphere/server/internal/domain/events"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

type EventDeactivationArgs struct{}

func (EventDeactivationArgs) Kind() string { return JobKindEventDeactivation }

type AccountPurgeArgs struct{}

func (AccountPurgeArgs) Kind() string { return JobKindAccountPurge }

// EventDeactivationWorker flips off every active event whose end time has
// passed. The underlying UPDATE only matches still-active rows, so a rerun
// after a crash touches nothing it already handled.
type EventDeactivationWorker struct {
	river.WorkerDefaults[EventDeactivationArgs]
	Repo   events.Repository
	MaxRun time.Duration
	Logger zerolog.Logger
}

func (EventDeactivationWorker) Kind() string { return JobKindEventDeactivation }

// Timeout bounds a single run; River cancels and records the job as failed
// when it is exceeded.
func (w EventDeactivationWorker) Timeout(*river.Job[EventDeactivationArgs]) time.Duration {
	if w.MaxRun > 0 {
		return w.MaxRun
	}
	return 10 * time.Minute
}

func (w EventDeactivationWorker) Work(ctx context.Context, job *river.Job[EventDeactivationArgs]) error {
	if w.Repo == nil {
		return fmt.Errorf("events repository not configured")
	}

	deactivated, err := w.Repo.DeactivatePast(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate past events: %w", err)
	}
	if deactivated > 0 {
		w.Logger.Info().Int64("deactivated", deactivated).Msg("expired events deactivated")
	}
	return nil
}

// AccountPurgeWorker deletes accounts that were never confirmed within the
// TTL.
type AccountPurgeWorker struct {
	river.WorkerDefaults[AccountPurgeArgs]
	Repo           accounts.Repository
	UnconfirmedTTL time.Duration
	MaxRun         time.Duration
	Logger         zerolog.Logger
}

func (AccountPurgeWorker) Kind() string { return JobKindAccountPurge }

func (w AccountPurgeWorker) Timeout(*river.Job[AccountPurgeArgs]) time.Duration {
	if w.MaxRun > 0 {
		return w.MaxRun
	}
	return 10 * time.Minute
}

func (w AccountPurgeWorker) Work(ctx context.Context, job *river.Job[AccountPurgeArgs]) error {
	if w.Repo == nil {
		return fmt.Errorf("accounts repository not configured")
	}

	ttl := w.UnconfirmedTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}

	purged, err := w.Repo.PurgeUnconfirmed(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		return fmt.Errorf("purge unconfirmed accounts: %w", err)
	}
	if purged > 0 {
		w.Logger.Info().Int64("purged", purged).Msg("unconfirmed accounts purged")
	}
	return nil
}

// NewWorkers registers the maintenance workers with their repositories.
func NewWorkers(cfg config.JobsConfig, eventsRepo events.Repository, accountsRepo accounts.Repository, logger zerolog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[EventDeactivationArgs](workers, EventDeactivationWorker{
		Repo:   eventsRepo,
		MaxRun: cfg.MaxRunDuration,
		Logger: logger.With().Str("job", JobKindEventDeactivation).Logger(),
	})
	river.AddWorker[AccountPurgeArgs](workers, AccountPurgeWorker{
		Repo:           accountsRepo,
		UnconfirmedTTL: cfg.UnconfirmedTTL,
		MaxRun:         cfg.MaxRunDuration,
		Logger:         logger.With().Str("job", JobKindAccountPurge).Logger(),
	})
	return workers
}
