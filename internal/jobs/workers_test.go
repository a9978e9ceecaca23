package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eventsphere/server/internal/domain/accounts"
	"github.com/eventsphere/server/internal/domain/events"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

type fakeEventsRepo struct {
	deactivated int64
	calls       int
	err         error
	lastNow     time.Time
}

func (f *fakeEventsRepo) Create(ctx context.Context, event *events.Event) error { return nil }
func (f *fakeEventsRepo) ListActive(ctx context.Context) ([]events.Event, error) {
	return nil, nil
}
func (f *fakeEventsRepo) Deactivate(ctx context.Context, id string) error { return nil }
func (f *fakeEventsRepo) DeactivatePast(ctx context.Context, now time.Time) (int64, error) {
	f.calls++
	f.lastNow = now
	if f.err != nil {
		return 0, f.err
	}
	// First run reports work, repeats report none, like the real UPDATE.
	if f.calls == 1 {
		return f.deactivated, nil
	}
	return 0, nil
}

type fakeAccountsRepo struct {
	purged     int64
	err        error
	lastCutoff time.Time
}

func (f *fakeAccountsRepo) Create(ctx context.Context, a *accounts.Account) error { return nil }
func (f *fakeAccountsRepo) FindByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	return nil, accounts.ErrNotFound
}
func (f *fakeAccountsRepo) FindByID(ctx context.Context, id string) (*accounts.Account, error) {
	return nil, accounts.ErrNotFound
}
func (f *fakeAccountsRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (f *fakeAccountsRepo) UpdateLanguage(ctx context.Context, id, lang string) error { return nil }
func (f *fakeAccountsRepo) PurgeUnconfirmed(ctx context.Context, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return f.purged, nil
}

func TestEventDeactivationWorker_Work(t *testing.T) {
	repo := &fakeEventsRepo{deactivated: 3}
	worker := EventDeactivationWorker{Repo: repo, Logger: zerolog.Nop()}

	job := &river.Job[EventDeactivationArgs]{}
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("DeactivatePast calls = %d, want 1", repo.calls)
	}
	if repo.lastNow.IsZero() {
		t.Error("DeactivatePast called with zero time")
	}

	// A second cycle is a no-op, not an error.
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("second Work() error = %v", err)
	}
}

func TestEventDeactivationWorker_PropagatesFailure(t *testing.T) {
	repoErr := errors.New("connection reset")
	worker := EventDeactivationWorker{Repo: &fakeEventsRepo{err: repoErr}, Logger: zerolog.Nop()}

	err := worker.Work(context.Background(), &river.Job[EventDeactivationArgs]{})
	if !errors.Is(err, repoErr) {
		t.Fatalf("Work() error = %v, want wrapped %v", err, repoErr)
	}
}

func TestEventDeactivationWorker_MissingRepo(t *testing.T) {
	worker := EventDeactivationWorker{Logger: zerolog.Nop()}
	if err := worker.Work(context.Background(), &river.Job[EventDeactivationArgs]{}); err == nil {
		t.Fatal("Work() with nil repo should error")
	}
}

func TestEventDeactivationWorker_Timeout(t *testing.T) {
	worker := EventDeactivationWorker{MaxRun: 5 * time.Minute}
	if got := worker.Timeout(nil); got != 5*time.Minute {
		t.Errorf("Timeout() = %v, want 5m", got)
	}

	worker = EventDeactivationWorker{}
	if got := worker.Timeout(nil); got != 10*time.Minute {
		t.Errorf("default Timeout() = %v, want 10m", got)
	}
}

func TestAccountPurgeWorker_CutoffUsesTTL(t *testing.T) {
	repo := &fakeAccountsRepo{purged: 2}
	worker := AccountPurgeWorker{Repo: repo, UnconfirmedTTL: 48 * time.Hour, Logger: zerolog.Nop()}

	before := time.Now().UTC().Add(-48 * time.Hour)
	if err := worker.Work(context.Background(), &river.Job[AccountPurgeArgs]{}); err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	after := time.Now().UTC().Add(-48 * time.Hour)

	if repo.lastCutoff.Before(before) || repo.lastCutoff.After(after) {
		t.Errorf("cutoff %v not within 48h window of now", repo.lastCutoff)
	}
}

func TestAccountPurgeWorker_PropagatesFailure(t *testing.T) {
	repoErr := errors.New("deadlock detected")
	worker := AccountPurgeWorker{Repo: &fakeAccountsRepo{err: repoErr}, Logger: zerolog.Nop()}

	err := worker.Work(context.Background(), &river.Job[AccountPurgeArgs]{})
	if !errors.Is(err, repoErr) {
		t.Fatalf("Work() error = %v, want wrapped %v", err, repoErr)
	}
}

func TestArgsKinds(t *testing.T) {
	if got := (EventDeactivationArgs{}).Kind(); got != JobKindEventDeactivation {
		t.Errorf("EventDeactivationArgs.Kind() = %q", got)
	}
	if got := (AccountPurgeArgs{}).Kind(); got != JobKindAccountPurge {
		t.Errorf("AccountPurgeArgs.Kind() = %q", got)
	}
}
