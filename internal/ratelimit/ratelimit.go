// Package ratelimit bounds how many provider calls may start within a
// sliding time window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter admits at most Limit calls per Window. A Limiter with a positive
// maxInFlight also bounds how many admitted calls may run at once; by default
// in-flight calls are unbounded and only the admission rate is limited.
//
// A nil *Limiter admits everything immediately.
type Limiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time

	inFlight *semaphore.Weighted
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMaxInFlight caps concurrently running calls. n <= 0 leaves them
// unbounded.
func WithMaxInFlight(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.inFlight = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New returns a limiter admitting limit calls per window. It returns nil
// (no limiting) when limit or window is not positive and no in-flight cap
// is requested.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if (limit <= 0 || window <= 0) && l.inFlight == nil {
		return nil
	}
	return l
}

// Acquire blocks until the call may start. The returned release must be
// called when the call finishes. waited is the time spent blocked.
func (l *Limiter) Acquire(ctx context.Context) (release func(), waited time.Duration, err error) {
	if l == nil {
		return func() {}, 0, nil
	}

	start := time.Now()
	release = func() {}
	if l.inFlight != nil {
		if err := l.inFlight.Acquire(ctx, 1); err != nil {
			return nil, time.Since(start), err
		}
		var once sync.Once
		release = func() { once.Do(func() { l.inFlight.Release(1) }) }
	}

	if err := l.admit(ctx); err != nil {
		release()
		return nil, time.Since(start), err
	}
	return release, time.Since(start), nil
}

// admit records a start timestamp once the window has room, sleeping until
// the oldest timestamp leaves the window otherwise.
func (l *Limiter) admit(ctx context.Context) error {
	if l.limit <= 0 || l.window <= 0 {
		return nil
	}

	for {
		wait := l.tryAdmit()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAdmit admits the call and returns 0, or returns how long until the
// oldest admission leaves the window.
func (l *Limiter) tryAdmit() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	l.stamps = l.stamps[i:]

	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return 0
	}
	wait := l.stamps[0].Add(l.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// InWindow returns the number of admissions currently inside the window.
func (l *Limiter) InWindow() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
