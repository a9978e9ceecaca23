package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/eventsphere/server/internal/config"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Outcome of a finished job run.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRunning   = "running"
	OutcomeNeverRan  = "never_ran"
)

// JobRecord is the per-job status surfaced on the health endpoint.
type JobRecord struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastOutcome string     `json:"last_outcome"`
}

// StatusTracker is a River hook that keeps the latest run record for each
// maintenance job. A timed-out run surfaces as failed like any other error.
type StatusTracker struct {
	river.HookDefaults

	mu      sync.Mutex
	records map[string]*JobRecord
}

func NewStatusTracker(cfg config.JobsConfig) *StatusTracker {
	records := make(map[string]*JobRecord)
	for _, kind := range []string{JobKindEventDeactivation, JobKindAccountPurge} {
		records[kind] = &JobRecord{
			Name:        kind,
			Schedule:    ScheduleFor(kind, cfg),
			LastOutcome: OutcomeNeverRan,
		}
	}
	return &StatusTracker{records: records}
}

func (t *StatusTracker) WorkBegin(ctx context.Context, job *rivertype.JobRow) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[job.Kind]; ok {
		now := time.Now().UTC()
		rec.LastRun = &now
		rec.LastOutcome = OutcomeRunning
	}
	return nil
}

func (t *StatusTracker) WorkEnd(ctx context.Context, job *rivertype.JobRow, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[job.Kind]; ok {
		if err != nil {
			rec.LastOutcome = OutcomeFailed
		} else {
			rec.LastOutcome = OutcomeSucceeded
		}
	}
	return nil
}

// Snapshot returns a stable copy of every record, ordered deactivation then
// purge.
func (t *StatusTracker) Snapshot() []JobRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]JobRecord, 0, len(t.records))
	for _, kind := range []string{JobKindEventDeactivation, JobKindAccountPurge} {
		if rec, ok := t.records[kind]; ok {
			out = append(out, *rec)
		}
	}
	return out
}
