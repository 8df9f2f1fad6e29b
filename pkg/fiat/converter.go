// Package fiat converts amounts between an exchange's native quote currency and
// the canonical currency callers work in.
//
// A rate is the number of native units bought by one canonical unit (for a CNY
// exchange reporting in USD, about 6.5).
package fiat

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cockroachdb/apd/v3"

	"peatio/pkg/core"
)

// Converter translates amounts between native and canonical currency.
type Converter interface {
	// ToCanonical converts amount, denominated in currency, into the canonical
	// currency using the rate in force at at.
	ToCanonical(amount *apd.Decimal, currency core.Currency, at time.Time) (apd.Decimal, error)
	// ToNative converts a canonical amount into the native currency.
	ToNative(amount *apd.Decimal, at time.Time) (apd.Decimal, error)
	Native() core.Currency
	Canonical() core.Currency
}

var (
	ErrInvalidRate         = errors.New("fiat: rate must be positive")
	ErrUnsupportedCurrency = errors.New("fiat: unsupported currency")
)

// Point is a rate in force from At onwards.
type Point struct {
	At   time.Time
	Rate apd.Decimal
}

// Table is an immutable rate snapshot: a current rate plus dated historical
// points. The zero time and any time before the first point use the current rate.
type Table struct {
	native    core.Currency
	canonical core.Currency
	current   apd.Decimal
	points    []Point
}

// NewTable builds a Table. points need not be sorted.
func NewTable(native, canonical core.Currency, current apd.Decimal, points ...Point) (*Table, error) {
	t := &Table{native: native, canonical: canonical}
	if native == canonical {
		t.current.SetInt64(1)
		return t, nil
	}
	if current.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRate, current.String())
	}
	t.current.Set(&current)

	t.points = make([]Point, 0, len(points))
	for _, p := range points {
		if p.Rate.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s at %s", ErrInvalidRate, p.Rate.String(), p.At.Format(time.DateOnly))
		}
		var cp Point
		cp.At = p.At
		cp.Rate.Set(&p.Rate)
		t.points = append(t.points, cp)
	}
	slices.SortStableFunc(t.points, func(a, b Point) int { return a.At.Compare(b.At) })
	return t, nil
}

// MustTable is NewTable that panics on error.
func MustTable(native, canonical core.Currency, current string, points ...Point) *Table {
	t, err := NewTable(native, canonical, core.MustDecimal(current), points...)
	if err != nil {
		panic(err)
	}
	return t
}

// Identity returns a Table for an exchange that already prices in canonical.
func Identity(currency core.Currency) *Table {
	return &Table{native: currency, canonical: currency, current: *apd.New(1, 0)}
}

func (t *Table) Native() core.Currency    { return t.native }
func (t *Table) Canonical() core.Currency { return t.canonical }

// Rate returns the native-per-canonical rate in force at at.
func (t *Table) Rate(at time.Time) apd.Decimal {
	var out apd.Decimal
	out.Set(&t.current)
	if at.IsZero() || len(t.points) == 0 {
		return out
	}
	// first point strictly after at
	i, _ := slices.BinarySearchFunc(t.points, at, func(p Point, at time.Time) int {
		if p.At.After(at) {
			return 1
		}
		return -1
	})
	if i > 0 {
		out.Set(&t.points[i-1].Rate)
	}
	return out
}

func (t *Table) identity() bool {
	return t.native == t.canonical
}

func (t *Table) ToCanonical(amount *apd.Decimal, currency core.Currency, at time.Time) (apd.Decimal, error) {
	var out apd.Decimal
	switch {
	case currency == t.canonical || t.identity() && currency == t.native:
		out.Set(amount)
		return out, nil
	case currency == t.native:
		rate := t.Rate(at)
		if _, err := core.DecimalContext.Quo(&out, amount, &rate); err != nil {
			return out, fmt.Errorf("convert %s to %s: %w", currency, t.canonical, err)
		}
		core.Normalize(&out)
		return out, nil
	default:
		return out, fmt.Errorf("%w: %s (have %s and %s)", ErrUnsupportedCurrency, currency, t.native, t.canonical)
	}
}

func (t *Table) ToNative(amount *apd.Decimal, at time.Time) (apd.Decimal, error) {
	var out apd.Decimal
	if t.identity() {
		out.Set(amount)
		return out, nil
	}
	rate := t.Rate(at)
	if _, err := core.DecimalContext.Mul(&out, amount, &rate); err != nil {
		return out, fmt.Errorf("convert %s to %s: %w", t.canonical, t.native, err)
	}
	return out, nil
}
