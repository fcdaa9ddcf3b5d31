package enforce

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleAge is how long a key may go unused before its bucket is
// reclaimed.
const limiterIdleAge = 10 * time.Minute

// keyedLimiter hands out one token bucket per key (principal id or team
// name). Buckets for idle keys are evicted so a long-running gateway does
// not accumulate a limiter per caller it has ever seen.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
}

// newKeyedLimiter builds a limiter registry. perSecond <= 0 disables the
// limiter entirely; Allow then always succeeds. Burst is sized to one
// second of traffic with a floor of 1 so a low rate still admits single
// calls.
func newKeyedLimiter(perSecond float64) *keyedLimiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &keyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow consumes one token for the key. A nil registry or empty key admits
// unconditionally.
func (kl *keyedLimiter) Allow(key string) bool {
	if kl == nil || key == "" {
		return true
	}
	kl.mu.Lock()
	limiter, ok := kl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(kl.rate, kl.burst)
		kl.limiters[key] = limiter
	}
	kl.lastSeen[key] = time.Now()
	kl.mu.Unlock()
	return limiter.Allow()
}

// Cleanup removes buckets that have not been consulted within maxAge.
func (kl *keyedLimiter) Cleanup(maxAge time.Duration) {
	if kl == nil {
		return
	}
	kl.mu.Lock()
	defer kl.mu.Unlock()
	for key, seen := range kl.lastSeen {
		if time.Since(seen) > maxAge {
			delete(kl.limiters, key)
			delete(kl.lastSeen, key)
		}
	}
}

// size reports the number of live buckets.
func (kl *keyedLimiter) size() int {
	if kl == nil {
		return 0
	}
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}
