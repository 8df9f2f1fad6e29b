// Package ratelimit throttles outgoing requests.
//
// Authenticated calls go through an Interval per account: one request at a time,
// with a fixed gap measured from the end of the previous response. Public
// market-data reads share a token bucket (RateLimiter) with optional per-market
// buckets.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket for public reads. The global bucket applies to
// every call; market buckets are created on demand with the same limit.
type RateLimiter struct {
	mu      sync.RWMutex
	global  *rate.Limiter
	markets sync.Map
	limit   rate.Limit
	burst   int
	metrics *Metrics
}

// Metrics tracks statistics about limiter usage.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64
	bucketCount     atomic.Int32
	waitNanos       atomic.Int64
}

// New creates a RateLimiter allowing requests per period, with a burst of requests.
func New(requests int, period time.Duration) *RateLimiter {
	limit := perSecond(requests, period)
	return &RateLimiter{
		global:  rate.NewLimiter(limit, requests),
		limit:   limit,
		burst:   requests,
		metrics: &Metrics{},
	}
}

func perSecond(requests int, period time.Duration) rate.Limit {
	return rate.Limit(float64(requests) / period.Seconds())
}

// Wait blocks until the global bucket and, if market is not empty, the market's
// bucket both grant a token, or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, market string) error {
	r.metrics.totalRequests.Add(1)
	start := time.Now()
	defer func() { r.metrics.waitNanos.Add(int64(time.Since(start))) }()

	if err := r.global.Wait(ctx); err != nil {
		r.metrics.deniedRequests.Add(1)
		return err
	}
	if market != "" {
		if err := r.bucket(market).Wait(ctx); err != nil {
			r.metrics.deniedRequests.Add(1)
			return err
		}
	}
	r.metrics.allowedRequests.Add(1)
	return nil
}

// Allow reports whether a request for market may proceed immediately.
func (r *RateLimiter) Allow(market string) bool {
	r.metrics.totalRequests.Add(1)
	allowed := r.global.Allow()
	if allowed && market != "" {
		allowed = r.bucket(market).Allow()
	}
	if allowed {
		r.metrics.allowedRequests.Add(1)
	} else {
		r.metrics.deniedRequests.Add(1)
	}
	return allowed
}

func (r *RateLimiter) bucket(market string) *rate.Limiter {
	if v, ok := r.markets.Load(market); ok {
		return v.(*rate.Limiter)
	}

	r.mu.RLock()
	limiter := rate.NewLimiter(r.limit, r.burst)
	r.mu.RUnlock()
	actual, loaded := r.markets.LoadOrStore(market, limiter)
	if !loaded {
		r.metrics.bucketCount.Add(1)
	}
	return actual.(*rate.Limiter)
}

// SetLimit updates the global limit and every existing market bucket.
func (r *RateLimiter) SetLimit(requests int, period time.Duration) {
	limit := perSecond(requests, period)
	r.mu.Lock()
	r.limit = limit
	r.burst = requests
	r.mu.Unlock()

	r.global.SetLimit(limit)
	r.global.SetBurst(requests)
	r.markets.Range(func(_, v any) bool {
		l := v.(*rate.Limiter)
		l.SetLimit(limit)
		l.SetBurst(requests)
		return true
	})
}

// Metrics returns a snapshot of the current limiter statistics.
func (r *RateLimiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:   r.metrics.totalRequests.Load(),
		AllowedRequests: r.metrics.allowedRequests.Load(),
		DeniedRequests:  r.metrics.deniedRequests.Load(),
		BucketCount:     r.metrics.bucketCount.Load(),
		TotalWait:       time.Duration(r.metrics.waitNanos.Load()),
	}
}

// MetricsSnapshot is a point-in-time capture of limiter statistics.
type MetricsSnapshot struct {
	// TotalRequests is the total number of rate limit checks performed.
	TotalRequests int64
	// AllowedRequests is the number of requests that were allowed.
	AllowedRequests int64
	// DeniedRequests is the number of requests that were denied or cancelled.
	DeniedRequests int64
	// BucketCount is the number of buckets (markets or accounts) in use.
	BucketCount int32
	// TotalWait is the cumulative time callers spent blocked.
	TotalWait time.Duration
}
