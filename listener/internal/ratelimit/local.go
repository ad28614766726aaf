package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/khushi89012/syook/listener/internal/metrics"
)

// LocalRateLimiter is a per-process token bucket per key, for deployments
// without Redis. Each key may burst up to limit connections and refills at
// limit per window.
type LocalRateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor

	stop chan struct{}
	done chan struct{}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalRateLimiter starts a limiter whose idle keys are evicted after
// three windows.
func NewLocalRateLimiter(limit int, window time.Duration) *LocalRateLimiter {
	rl := newLocalRateLimiter(limit, window)
	go rl.cleanupLoop(window)
	return rl
}

func newLocalRateLimiter(limit int, window time.Duration) *LocalRateLimiter {
	return &LocalRateLimiter{
		limit:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idle:     3 * window,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (rl *LocalRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := rl.now()

	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	allowed := v.limiter.AllowN(now, 1)
	rl.mu.Unlock()

	if !allowed {
		metrics.RateLimitHits.WithLabelValues(ScopeInstance).Inc()
	}
	return allowed, nil
}

// Close stops the eviction loop.
func (rl *LocalRateLimiter) Close() error {
	select {
	case <-rl.stop:
	default:
		close(rl.stop)
	}
	<-rl.done
	return nil
}

func (rl *LocalRateLimiter) cleanupLoop(window time.Duration) {
	defer close(rl.done)

	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *LocalRateLimiter) evictIdle() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.visitors, key)
		}
	}
}

// tracked reports how many keys currently hold a bucket.
func (rl *LocalRateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}
