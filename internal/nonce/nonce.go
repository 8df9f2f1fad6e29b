// Package nonce issues the millisecond "tonce" values Peatio requires on
// authenticated requests.
package nonce

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Nonce hands out strictly increasing millisecond timestamps. Two calls within
// the same millisecond get consecutive values.
type Nonce struct {
	last atomic.Int64
	now  func() time.Time
}

// New returns a Nonce seeded from the wall clock.
func New() *Nonce {
	return &Nonce{now: time.Now}
}

// Next returns the next tonce.
func (n *Nonce) Next() int64 {
	for {
		last := n.last.Load()
		next := n.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if n.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// String returns Next formatted for a request parameter.
func (n *Nonce) String() string {
	return strconv.FormatInt(n.Next(), 10)
}
