// Package jobs runs the periodic maintenance work behind the API: nightly
// deactivation of events whose end time has passed and purging of accounts
// that never confirmed. Both run on River so a crash between runs loses
// nothing; the next firing picks up whatever the missed run would have done.
package jobs

import (
	"log/slog"
	"time"

	"github.com/eventsphere/server/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindEventDeactivation = "event_deactivation"
	JobKindAccountPurge      = "account_purge"
)

// A failed run is not retried inside its cycle; the next periodic firing is
// the retry.
const maintenanceMaxAttempts = 1

// NewClientConfig builds a River client configuration for the maintenance
// schedule.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) *river.Config {
	cfg := &river.Config{
		Workers:      workers,
		MaxAttempts:  maintenanceMaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Hooks: hooks,
	}
	if logger != nil {
		cfg.Logger = logger
		cfg.ErrorHandler = NewAlertingErrorHandler(logger, nil)
	}
	return cfg
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, hooks, periodicJobs))
}

// NewPeriodicJobs builds the maintenance schedule from config. RunOnStart is
// on so a deploy after downtime catches up immediately instead of waiting a
// full interval.
func NewPeriodicJobs(cfg config.JobsConfig) []*river.PeriodicJob {
	deactivationInterval := cfg.DeactivationInterval
	if deactivationInterval <= 0 {
		deactivationInterval = 24 * time.Hour
	}
	purgeInterval := cfg.PurgeInterval
	if purgeInterval <= 0 {
		purgeInterval = 24 * time.Hour
	}

	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(deactivationInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return EventDeactivationArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(purgeInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return AccountPurgeArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// ScheduleFor reports the human-readable schedule a kind runs on, for the
// health endpoint's job records.
func ScheduleFor(kind string, cfg config.JobsConfig) string {
	switch kind {
	case JobKindEventDeactivation:
		return "every " + cfg.DeactivationInterval.String()
	case JobKindAccountPurge:
		return "every " + cfg.PurgeInterval.String()
	}
	return ""
}
