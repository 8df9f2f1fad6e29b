package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Interval serialises requests of one account and keeps at least a fixed gap
// between the end of one request and the start of the next.
//
// Acquire holds the lock for the whole request; the returned release func must be
// called once the response (or failure) is in, and stamps that moment as the end
// of the request.
type Interval struct {
	// lock is a one-slot semaphore so waiting can observe ctx; lastEnd is only
	// touched while it is held.
	lock     chan struct{}
	interval time.Duration
	lastEnd  time.Time

	acquired atomic.Int64
	waitNs   atomic.Int64
}

// NewInterval returns an Interval enforcing d between requests.
func NewInterval(d time.Duration) *Interval {
	return &Interval{lock: make(chan struct{}, 1), interval: d}
}

// Acquire blocks until the account is free and the gap since the previous
// request has elapsed. On error the lock is not held.
func (i *Interval) Acquire(ctx context.Context) (release func(), err error) {
	start := time.Now()
	select {
	case i.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if !i.lastEnd.IsZero() {
		if wait := i.interval - time.Since(i.lastEnd); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				<-i.lock
				return nil, ctx.Err()
			}
		}
	}

	i.acquired.Add(1)
	i.waitNs.Add(int64(time.Since(start)))

	var once sync.Once
	return func() {
		once.Do(func() {
			i.lastEnd = time.Now()
			<-i.lock
		})
	}, nil
}

// Gap returns the configured interval.
func (i *Interval) Gap() time.Duration {
	return i.interval
}

// Metrics returns the number of acquisitions and the cumulative wait.
func (i *Interval) Metrics() MetricsSnapshot {
	n := i.acquired.Load()
	return MetricsSnapshot{
		TotalRequests:   n,
		AllowedRequests: n,
		TotalWait:       time.Duration(i.waitNs.Load()),
	}
}
