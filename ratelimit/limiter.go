// Package ratelimit enforces per-endpoint delivery rates.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per endpoint. Buckets hold one second's
// worth of tokens and start full.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a delivery to endpointID may proceed now,
// consuming a token if so. perSecond <= 0 means unlimited.
func (l *Limiter) Allow(endpointID string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}
	return l.bucket(endpointID, perSecond).Allow()
}

// Wait blocks until a token is available or ctx is done. It fails
// immediately when the wait would outlast ctx's deadline.
func (l *Limiter) Wait(ctx context.Context, endpointID string, perSecond int) error {
	if perSecond <= 0 {
		return nil
	}
	return l.bucket(endpointID, perSecond).Wait(ctx)
}

// Reset drops the bucket for endpointID.
func (l *Limiter) Reset(endpointID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, endpointID)
}

// bucket returns the endpoint's bucket, adjusting it when the endpoint's
// configured rate has changed since it was created.
func (l *Limiter) bucket(endpointID string, perSecond int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[endpointID]
	if !ok {
		b = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		l.buckets[endpointID] = b
		return b
	}
	if b.Burst() != perSecond {
		b.SetLimit(rate.Limit(perSecond))
		b.SetBurst(perSecond)
	}
	return b
}
