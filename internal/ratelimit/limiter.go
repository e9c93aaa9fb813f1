// Package ratelimit implements the Rate Limiter: an in-memory, per-instance
// token bucket keyed by client IP, with a signed X-SSR-Ip override header
// and a cost model (spec §4.7).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BucketCapacity, RefillWindow, and BlockDuration fix the spec's bucket
// shape: 11 tokens refilled over 60 seconds, a 10-minute block once a
// bucket is drained.
const (
	BucketCapacity  = 11
	RefillWindow    = 60 * time.Second
	BlockDuration   = 10 * time.Minute
	LoginCost       = 2
	DefaultCost     = 1
	cleanupInterval = 10 * time.Minute
)

// bucket wraps a golang.org/x/time/rate.Limiter with the spec's
// block-on-exhaustion behavior, which plain token-bucket refill alone
// doesn't give: once a bucket is drained it stays blocked for
// BlockDuration even after tokens would otherwise have refilled.
type bucket struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	blockedUntil time.Time
}

func newBucket() *bucket {
	return &bucket{limiter: rate.NewLimiter(rate.Every(RefillWindow/BucketCapacity), BucketCapacity)}
}

func (b *bucket) allow(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Before(b.blockedUntil) {
		return false
	}
	if !b.limiter.AllowN(now, cost) {
		b.blockedUntil = now.Add(BlockDuration)
		return false
	}
	return true
}

// Limiter holds one bucket per client IP.
type Limiter struct {
	buckets sync.Map // string -> *bucket
}

// NewLimiter starts a Limiter with a periodic full-wipe cleanup, mirroring
// the teacher's own simplistic (non-LRU) eviction strategy.
func NewLimiter() *Limiter {
	l := &Limiter{}
	go l.cleanupLoop()
	return l
}

// Allow consumes cost tokens from ip's bucket, creating one if absent.
func (l *Limiter) Allow(ip string, cost int) bool {
	actual, _ := l.buckets.LoadOrStore(ip, newBucket())
	return actual.(*bucket).allow(cost)
}

func (l *Limiter) cleanupLoop() {
	for {
		time.Sleep(cleanupInterval)
		l.buckets.Range(func(key, _ any) bool {
			l.buckets.Delete(key)
			return true
		})
	}
}
