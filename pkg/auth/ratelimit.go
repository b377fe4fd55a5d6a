package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	// Allow reports whether the request may proceed. When it may not, retry
	// is how long the caller should wait.
	Allow(id *Identity) (retry time.Duration, ok bool)
}

// maxIdleBuckets is the bucket count above which idle buckets are evicted.
const maxIdleBuckets = 4096

// TierLimiter is a token-bucket limiter keyed by tier and subject. Each
// bucket holds a minute's worth of requests and refills continuously.
// Limits are per replica.
type TierLimiter struct {
	perMinute map[string]int
	fallback  int
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewTierLimiter creates a limiter. perMinute maps tier names to requests
// per minute; tiers not listed use fallback. Zero means unlimited.
func NewTierLimiter(perMinute map[string]int, fallback int) *TierLimiter {
	return &TierLimiter{
		perMinute: perMinute,
		fallback:  fallback,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// Allow takes a token from the identity's bucket.
func (l *TierLimiter) Allow(id *Identity) (time.Duration, bool) {
	tier := id.TierName()
	rpm := l.fallback
	if n, ok := l.perMinute[tier]; ok {
		rpm = n
	}
	if rpm <= 0 {
		return 0, true
	}

	now := l.now()
	key := tier + "/" + id.Subject

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) > maxIdleBuckets {
		l.evictIdle(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)}
		l.buckets[key] = b
	}
	b.seen = now

	if b.lim.AllowN(now, 1) {
		return 0, true
	}
	r := b.lim.ReserveN(now, 1)
	retry := r.DelayFrom(now)
	r.CancelAt(now)
	return retry, false
}

// evictIdle drops buckets unused for a minute; they are full again by then.
// Must be called with l.mu held.
func (l *TierLimiter) evictIdle(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) >= time.Minute {
			delete(l.buckets, k)
		}
	}
}
