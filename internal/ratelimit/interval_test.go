package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval_FirstAcquireImmediate(t *testing.T) {
	iv := NewInterval(time.Second)

	start := time.Now()
	release, err := iv.Acquire(context.Background())
	require.NoError(t, err)
	release()

	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestInterval_Sequential(t *testing.T) {
	const gap = 50 * time.Millisecond
	const calls = 4
	iv := NewInterval(gap)

	start := time.Now()
	for range calls {
		release, err := iv.Acquire(context.Background())
		require.NoError(t, err)
		release()
	}

	assert.GreaterOrEqual(t, time.Since(start), (calls-1)*gap)
	assert.Equal(t, int64(calls), iv.Metrics().TotalRequests)
}

func TestInterval_MeasuredFromRequestEnd(t *testing.T) {
	const gap = 40 * time.Millisecond
	const work = 60 * time.Millisecond
	iv := NewInterval(gap)

	release, err := iv.Acquire(context.Background())
	require.NoError(t, err)
	time.Sleep(work)
	release()
	ended := time.Now()

	release, err = iv.Acquire(context.Background())
	require.NoError(t, err)
	release()

	assert.GreaterOrEqual(t, time.Since(ended), gap)
}

func TestInterval_Concurrent(t *testing.T) {
	const gap = 30 * time.Millisecond
	const calls = 5
	iv := NewInterval(gap)

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
		wg       sync.WaitGroup
	)
	start := time.Now()
	for range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := iv.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inFlight++
			maxSeen = max(maxSeen, inFlight)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.GreaterOrEqual(t, time.Since(start), (calls-1)*gap)
}

func TestInterval_ContextCancelledWhileWaitingGap(t *testing.T) {
	iv := NewInterval(time.Second)

	release, err := iv.Acquire(context.Background())
	require.NoError(t, err)
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = iv.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// lock must have been handed back
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	release, err = iv.Acquire(ctx2)
	require.NoError(t, err)
	release()
}

func TestInterval_ContextCancelledWhileLocked(t *testing.T) {
	iv := NewInterval(0)

	release, err := iv.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = iv.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
}

func TestAccounts(t *testing.T) {
	accounts := NewAccounts(10 * time.Millisecond)

	a := accounts.For("ak-1")
	b := accounts.For("ak-2")

	assert.Same(t, a, accounts.For("ak-1"))
	assert.NotSame(t, a, b)
	assert.Equal(t, 10*time.Millisecond, a.Gap())

	release, err := a.Acquire(context.Background())
	require.NoError(t, err)
	release()

	m := accounts.Metrics()
	assert.Equal(t, int32(2), m.BucketCount)
	assert.Equal(t, int64(1), m.TotalRequests)
}
