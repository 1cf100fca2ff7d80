// Package ratelimit provides a keyed rate limiter using token bucket algorithm.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultIdle is how long an unused key keeps its bucket.
const defaultIdle = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages per-key rate limiting.
// Each unique key gets its own independent token bucket. Buckets of keys
// that stay unused for the idle period are dropped.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new keyed rate limiter.
// perSecond: tokens added per second.
// burst: maximum burst size (tokens available immediately).
// idle: eviction age for unused keys, 10 minutes when not positive.
func New(perSecond float64, burst int, idle time.Duration) *KeyedRateLimiter {
	if idle <= 0 {
		idle = defaultIdle
	}
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	krl.wg.Add(1)
	go krl.cleanup()

	return krl
}

// Allow reports whether a request for key may proceed now. When it may
// not, retryAfter tells when the next token becomes available.
func (krl *KeyedRateLimiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	now := krl.now()

	krl.mu.Lock()
	e, exists := krl.limiters[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = e
	}
	e.lastSeen = now
	krl.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, krl.idle
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

// Stop shuts down the cleanup goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
	krl.wg.Wait()
}

// evict drops keys last seen before now minus the idle period.
func (krl *KeyedRateLimiter) evict(now time.Time) {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	for key, e := range krl.limiters {
		if now.Sub(e.lastSeen) >= krl.idle {
			delete(krl.limiters, key)
		}
	}
}

func (krl *KeyedRateLimiter) cleanup() {
	defer krl.wg.Done()

	ticker := time.NewTicker(max(krl.idle/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case <-ticker.C:
			krl.evict(krl.now())
		}
	}
}
