package exchange

import (
	"time"
)

type Option func(*Options)

// Options tunes market-data and listing reads. Zero values mean "use the
// client's configured default".
type Options struct {
	Limit  int
	Period time.Duration
	// Since restricts candles to those starting at or after this time.
	Since time.Time
}

func WithLimit(limit int) Option {
	return func(o *Options) {
		o.Limit = limit
	}
}

// WithPeriod sets the candle period. The exchange supports whole minutes only.
func WithPeriod(period time.Duration) Option {
	return func(o *Options) {
		o.Period = period
	}
}

func WithSince(since time.Time) Option {
	return func(o *Options) {
		o.Since = since
	}
}

func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
