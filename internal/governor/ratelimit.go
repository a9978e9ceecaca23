package governor

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/eventsphere/server/internal/auth"
)

// QuotaWindow is one fixed window: at most Max requests per Window.
type QuotaWindow struct {
	Max    int
	Window time.Duration
}

// QuotaPolicy maps a route class to the windows that all must pass. A class
// may carry several windows (the auth class carries a per-minute and a
// per-hour budget simultaneously).
type QuotaPolicy map[auth.RouteClass][]QuotaWindow

// DefaultQuotaPolicy reproduces the production limits: public 30/min, auth
// 3/min and 9/hour, admin 60/min, manager 40/min, user 20/min.
func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{
		auth.RouteClassPublic: {{Max: 30, Window: time.Minute}},
		auth.RouteClassAuth: {
			{Max: 3, Window: time.Minute},
			{Max: 9, Window: time.Hour},
		},
		auth.RouteClassAdminWrite:   {{Max: 60, Window: time.Minute}},
		auth.RouteClassManagerWrite: {{Max: 40, Window: time.Minute}},
		auth.RouteClassUserWrite:    {{Max: 20, Window: time.Minute}},
	}
}

// RateLimitedError reports an exhausted quota and when it is worth retrying.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

const (
	shardCount    = 16
	sweepInterval = 5 * time.Minute
)

// RateLimiter enforces fixed-window quotas per (key, route class). Counters
// are created lazily, live in mutex-guarded shards selected by key hash, and
// are swept once idle for a full window past expiry. Counter updates are a
// single increment-and-check critical section under the shard lock, so
// concurrent checks on one key never lose updates.
type RateLimiter struct {
	policy    QuotaPolicy
	shards    [shardCount]*shard
	stopSweep chan struct{}
	stopOnce  sync.Once
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count       int
	windowStart time.Time
	window      time.Duration
	lastSeen    time.Time
}

func NewRateLimiter(policy QuotaPolicy) *RateLimiter {
	limiter := &RateLimiter{
		policy:    policy,
		stopSweep: make(chan struct{}),
	}
	for i := range limiter.shards {
		limiter.shards[i] = &shard{counters: make(map[string]*counter)}
	}
	go limiter.sweepLoop()
	return limiter
}

// Check records one request for (key, class) at the given instant. It returns
// nil to admit, or a *RateLimitedError when any window for the class is
// exhausted. Every configured window is consulted and counted; when several
// are exhausted at once the longest retry wins.
func (l *RateLimiter) Check(key string, class auth.RouteClass, now time.Time) error {
	windows := l.policy[class]
	if len(windows) == 0 {
		return nil
	}

	var retryAfter time.Duration
	for i, quota := range windows {
		lookup := fmt.Sprintf("%s|%s|%d", class, key, i)
		if retry, limited := l.observe(lookup, quota, now); limited && retry > retryAfter {
			retryAfter = retry
		}
	}

	if retryAfter > 0 {
		return &RateLimitedError{RetryAfter: retryAfter}
	}
	return nil
}

func (l *RateLimiter) observe(lookup string, quota QuotaWindow, now time.Time) (time.Duration, bool) {
	s := l.shardFor(lookup)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[lookup]
	if !ok {
		entry = &counter{windowStart: now, window: quota.Window}
		s.counters[lookup] = entry
	}

	// Fixed-window rollover. The start only ever moves forward.
	if now.Sub(entry.windowStart) >= quota.Window {
		entry.count = 0
		entry.windowStart = now
	}

	entry.count++
	entry.lastSeen = now

	if entry.count > quota.Max {
		return entry.windowStart.Add(quota.Window).Sub(now), true
	}
	return 0, false
}

func (l *RateLimiter) shardFor(lookup string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(lookup))
	return l.shards[h.Sum32()%shardCount]
}

func (l *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-l.stopSweep:
			return
		}
	}
}

// sweep evicts counters idle for more than one full window past their expiry.
// It takes the same shard locks as Check, so eviction cannot race an update.
func (l *RateLimiter) sweep(now time.Time) {
	for _, s := range l.shards {
		s.mu.Lock()
		for lookup, entry := range s.counters {
			if now.Sub(entry.lastSeen) > 2*entry.window {
				delete(s.counters, lookup)
			}
		}
		s.mu.Unlock()
	}
}

// Stop shuts down the background sweep goroutine.
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopSweep) })
}
