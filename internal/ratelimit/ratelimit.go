// Package ratelimit throttles requests with per-key token buckets.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter allows rate requests per window for each key, refilling
// continuously.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter that allows rate requests per window.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// getBucket must be called with l.mu held.
func (l *Limiter) getBucket(key string) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.rate), lastRefill: l.now()}
		l.buckets[key] = b
	}
	return b
}

// refill must be called with l.mu held.
func (l *Limiter) refill(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * float64(l.rate) / l.window.Seconds()
	if b.tokens > float64(l.rate) {
		b.tokens = float64(l.rate)
	}
	b.lastRefill = now
}

// Allow consumes a token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Status returns the bucket size, the whole tokens left for key and the
// time the next token becomes available.
func (l *Limiter) Status(key string) (limit int, remaining int, retryAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getBucket(key)
	l.refill(b)

	remaining = int(b.tokens)
	if remaining < 0 {
		remaining = 0
	}
	retryAt = l.now()
	if b.tokens < 1 {
		wait := (1 - b.tokens) * l.window.Seconds() / float64(l.rate)
		retryAt = retryAt.Add(time.Duration(wait * float64(time.Second)))
	}
	return l.rate, remaining, retryAt
}

// Sweep drops buckets that have refilled completely, since they hold no
// state a fresh bucket would not. It returns the number dropped.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		l.refill(b)
		if b.tokens >= float64(l.rate) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}
