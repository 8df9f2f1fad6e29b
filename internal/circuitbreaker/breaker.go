// Package circuitbreaker stops sending requests to an exchange that keeps failing
// at the transport level, and lets a few trial requests through once a cooldown passes.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker rejects requests.
var ErrOpen = errors.New("circuit breaker is open")

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

type Config struct {
	// FailThreshold consecutive failures open the breaker.
	FailThreshold int `json:"fail_threshold" yaml:"fail_threshold"`
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	config    Config
	state     State
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time

	rejected     int64
	stateChanges int64
}

// New returns a closed Breaker. Thresholds below one are raised to one.
func New(config Config) *Breaker {
	if config.FailThreshold < 1 {
		config.FailThreshold = 1
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	return &Breaker{config: config, now: time.Now}
}

// Allow reports whether a request may be sent. An open breaker whose cooldown
// has elapsed moves to half-open and lets the request through as a trial.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return ErrOpen
		}
		b.transition(StateHalfOpen)
	}
	return nil
}

// Record reports the outcome of a request that Allow let through.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.config.FailThreshold {
			b.open()
		}
	case StateHalfOpen:
		if !success {
			b.open()
			return
		}
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateOpen:
		// a request admitted before the breaker opened
		if !success {
			b.openedAt = b.now()
		}
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	b.stateChanges++
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

func (b *Breaker) Metrics() MetricsSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return MetricsSnapshot{
		Rejected:     b.rejected,
		StateChanges: b.stateChanges,
		Failures:     b.failures,
		CurrentState: b.state.String(),
	}
}

type MetricsSnapshot struct {
	Rejected     int64
	StateChanges int64
	Failures     int
	CurrentState string
}
