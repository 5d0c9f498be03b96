// Package throttle serializes and spaces outbound API requests to stay
// within a per-minute quota.
package throttle

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultRequestsPerMinute is used when the configured rate is missing or
// not positive.
const DefaultRequestsPerMinute = 30

// Limiter enforces a minimum delay between consecutive requests. Acquire
// holds the limiter's lock for the full wait, so concurrent callers queue
// behind one another rather than racing the clock.
type Limiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter allowing requestsPerMinute requests. A non-positive
// rate falls back to DefaultRequestsPerMinute.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		log.Printf("throttle: invalid rate %d, using default %d", requestsPerMinute, DefaultRequestsPerMinute)
		requestsPerMinute = DefaultRequestsPerMinute
	}
	// Round up so N requests never fit in under a minute.
	delay := time.Duration((60000 + requestsPerMinute - 1) / requestsPerMinute * int(time.Millisecond))
	return &Limiter{
		minDelay: delay,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// MinDelay returns the enforced spacing between requests.
func (l *Limiter) MinDelay() time.Duration {
	return l.minDelay
}

// Acquire blocks until the caller may issue a request, or until ctx is
// cancelled. On success the limiter's last-request time is advanced.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		elapsed := l.now().Sub(l.last)
		if wait := l.minDelay - elapsed; wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	l.last = l.now()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
