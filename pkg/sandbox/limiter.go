package sandbox

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds the number of concurrent executions.
type Limiter struct {
	sem          *semaphore.Weighted
	capacity     int64
	queueTimeout time.Duration
	inFlight     atomic.Int64
}

// NewLimiter creates a limiter with the given capacity. Callers wait up to
// queueTimeout for a slot; zero means fail immediately when full.
// A capacity of zero or less disables limiting.
func NewLimiter(capacity int, queueTimeout time.Duration) *Limiter {
	l := &Limiter{capacity: int64(capacity), queueTimeout: queueTimeout}
	if capacity > 0 {
		l.sem = semaphore.NewWeighted(int64(capacity))
	}
	return l
}

// Acquire reserves a slot. It returns ErrAtCapacity when no slot frees up
// within the queue timeout, or the context error if ctx ends first.
// The returned release function must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l.sem != nil {
		if !l.sem.TryAcquire(1) {
			if l.queueTimeout <= 0 {
				return nil, ErrAtCapacity
			}
			waitCtx, cancel := context.WithTimeout(ctx, l.queueTimeout)
			err := l.sem.Acquire(waitCtx, 1)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, ErrAtCapacity
				}
				return nil, err
			}
		}
	}

	l.inFlight.Add(1)
	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		l.inFlight.Add(-1)
		if l.sem != nil {
			l.sem.Release(1)
		}
	}, nil
}

// InFlight returns the number of held slots.
func (l *Limiter) InFlight() int64 { return l.inFlight.Load() }

// Capacity returns the configured capacity, zero when unlimited.
func (l *Limiter) Capacity() int64 { return l.capacity }
