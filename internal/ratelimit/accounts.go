package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accounts hands out one Interval per access key.
type Accounts struct {
	interval  time.Duration
	intervals sync.Map
	count     atomic.Int32
}

// NewAccounts returns a registry whose Intervals enforce d.
func NewAccounts(d time.Duration) *Accounts {
	return &Accounts{interval: d}
}

// For returns the Interval of accessKey, creating it on first use.
func (a *Accounts) For(accessKey string) *Interval {
	if v, ok := a.intervals.Load(accessKey); ok {
		return v.(*Interval)
	}
	actual, loaded := a.intervals.LoadOrStore(accessKey, NewInterval(a.interval))
	if !loaded {
		a.count.Add(1)
	}
	return actual.(*Interval)
}

// Metrics aggregates the snapshots of every account.
func (a *Accounts) Metrics() MetricsSnapshot {
	out := MetricsSnapshot{BucketCount: a.count.Load()}
	a.intervals.Range(func(_, v any) bool {
		m := v.(*Interval).Metrics()
		out.TotalRequests += m.TotalRequests
		out.AllowedRequests += m.AllowedRequests
		out.TotalWait += m.TotalWait
		return true
	})
	return out
}
