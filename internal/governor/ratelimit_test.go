package governor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eventsphere/server/internal/auth"
)

func newTestLimiter(t *testing.T, policy QuotaPolicy) *RateLimiter {
	t.Helper()
	limiter := NewRateLimiter(policy)
	t.Cleanup(limiter.Stop)
	return limiter
}

func TestCheckAdmitsUpToMax(t *testing.T) {
	policy := QuotaPolicy{auth.RouteClassUserWrite: {{Max: 3, Window: time.Minute}}}
	limiter := newTestLimiter(t, policy)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("request %d: expected admit, got %v", i+1, err)
		}
	}

	err := limiter.Check("sub:u1", auth.RouteClassUserWrite, now.Add(3*time.Second))
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if limited.RetryAfter <= 0 {
		t.Fatalf("retryAfter = %v, want > 0", limited.RetryAfter)
	}
}

func TestCheckWindowRollover(t *testing.T) {
	policy := QuotaPolicy{auth.RouteClassUserWrite: {{Max: 3, Window: time.Minute}}}
	limiter := newTestLimiter(t, policy)
	start := time.Now()

	for i := 0; i < 3; i++ {
		if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, start); err != nil {
			t.Fatalf("warmup request %d: %v", i+1, err)
		}
	}

	err := limiter.Check("sub:u1", auth.RouteClassUserWrite, start.Add(time.Second))
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected rate limited, got %v", err)
	}

	// Once retryAfter has elapsed the window rolls over and the first request
	// of the fresh window is admitted.
	after := start.Add(time.Second).Add(limited.RetryAfter)
	if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, after); err != nil {
		t.Fatalf("expected admit after rollover, got %v", err)
	}
	// The fresh window starts with count 1, so two more pass and the fourth
	// is limited again.
	for i := 0; i < 2; i++ {
		if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, after); err != nil {
			t.Fatalf("post-rollover request %d: %v", i+2, err)
		}
	}
	if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, after); err == nil {
		t.Fatal("expected fourth post-rollover request to be limited")
	}
}

func TestCheckDualWindowsBothMustPass(t *testing.T) {
	policy := QuotaPolicy{auth.RouteClassAuth: {
		{Max: 3, Window: time.Minute},
		{Max: 9, Window: time.Hour},
	}}
	limiter := newTestLimiter(t, policy)
	start := time.Now()

	// 3 per minute for 3 minutes exhausts the hourly budget of 9.
	for minute := 0; minute < 3; minute++ {
		at := start.Add(time.Duration(minute) * time.Minute)
		for i := 0; i < 3; i++ {
			if err := limiter.Check("ip:1.2.3.4", auth.RouteClassAuth, at); err != nil {
				t.Fatalf("minute %d request %d: %v", minute, i+1, err)
			}
		}
	}

	// Minute window has rolled over, but the hourly window is exhausted.
	err := limiter.Check("ip:1.2.3.4", auth.RouteClassAuth, start.Add(3*time.Minute))
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected hourly budget to reject, got %v", err)
	}
	if limited.RetryAfter <= 50*time.Minute {
		t.Fatalf("retryAfter = %v, want the hourly window remainder", limited.RetryAfter)
	}
}

func TestCheckKeysAreIsolated(t *testing.T) {
	policy := QuotaPolicy{auth.RouteClassUserWrite: {{Max: 1, Window: time.Minute}}}
	limiter := newTestLimiter(t, policy)
	now := time.Now()

	if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, now); err != nil {
		t.Fatalf("first key: %v", err)
	}
	if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, now); err == nil {
		t.Fatal("first key should be exhausted")
	}
	if err := limiter.Check("sub:u2", auth.RouteClassUserWrite, now); err != nil {
		t.Fatalf("second key must have its own counter, got %v", err)
	}
}

func TestCheckClassesAreIsolated(t *testing.T) {
	policy := QuotaPolicy{
		auth.RouteClassPublic:    {{Max: 1, Window: time.Minute}},
		auth.RouteClassUserWrite: {{Max: 1, Window: time.Minute}},
	}
	limiter := newTestLimiter(t, policy)
	now := time.Now()

	if err := limiter.Check("sub:u1", auth.RouteClassPublic, now); err != nil {
		t.Fatalf("public: %v", err)
	}
	if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, now); err != nil {
		t.Fatalf("user-write must not share the public counter, got %v", err)
	}
}

func TestCheckUnknownClassAdmits(t *testing.T) {
	limiter := newTestLimiter(t, QuotaPolicy{})
	if err := limiter.Check("sub:u1", auth.RouteClass("unheard-of"), time.Now()); err != nil {
		t.Fatalf("class without policy should admit, got %v", err)
	}
}

func TestCheckConcurrentNoLostUpdates(t *testing.T) {
	const max = 10
	const workers = 50

	policy := QuotaPolicy{auth.RouteClassUserWrite: {{Max: max, Window: time.Minute}}}
	limiter := newTestLimiter(t, policy)
	now := time.Now()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if err := limiter.Check("sub:u1", auth.RouteClassUserWrite, now); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != max {
		t.Fatalf("admitted %d requests, want exactly %d", got, max)
	}
}

func TestSweepEvictsIdleCounters(t *testing.T) {
	policy := QuotaPolicy{auth.RouteClassPublic: {{Max: 30, Window: time.Minute}}}
	limiter := newTestLimiter(t, policy)
	now := time.Now()

	if err := limiter.Check("ip:1.2.3.4", auth.RouteClassPublic, now); err != nil {
		t.Fatalf("check: %v", err)
	}

	limiter.sweep(now.Add(3 * time.Minute))

	for _, s := range limiter.shards {
		s.mu.Lock()
		remaining := len(s.counters)
		s.mu.Unlock()
		if remaining != 0 {
			t.Fatalf("expected idle counters to be evicted, %d remain", remaining)
		}
	}
}

func TestSweepKeepsLiveCounters(t *testing.T) {
	policy := QuotaPolicy{auth.RouteClassPublic: {{Max: 1, Window: time.Minute}}}
	limiter := newTestLimiter(t, policy)
	now := time.Now()

	if err := limiter.Check("ip:1.2.3.4", auth.RouteClassPublic, now); err != nil {
		t.Fatalf("check: %v", err)
	}

	limiter.sweep(now.Add(30 * time.Second))

	// Counter survived the sweep: the key is still exhausted.
	if err := limiter.Check("ip:1.2.3.4", auth.RouteClassPublic, now.Add(31*time.Second)); err == nil {
		t.Fatal("expected live counter to persist through sweep")
	}
}
