package core

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
)

var four = apd.New(4, 0)

// Candle is one OHLCV data point for a fixed period. A Candle is immutable once
// constructed; values are reached through accessors that return copies.
type Candle struct {
	market    string
	period    time.Duration
	timestamp time.Time
	open      apd.Decimal
	high      apd.Decimal
	low       apd.Decimal
	close     apd.Decimal
	volume    apd.Decimal
	vwap      apd.Decimal
}

// NewCandle builds a Candle and derives its VWAP.
//
// VWAP here is the arithmetic mean of open, high, low and close. It carries no
// volume weighting; downstream consumers depend on this exact formula.
func NewCandle(market string, period time.Duration, ts time.Time, open, high, low, close, volume apd.Decimal) (Candle, error) {
	c := Candle{
		market:    market,
		period:    period,
		timestamp: ts,
	}
	c.open.Set(&open)
	c.high.Set(&high)
	c.low.Set(&low)
	c.close.Set(&close)
	c.volume.Set(&volume)

	var sum apd.Decimal
	for _, d := range []*apd.Decimal{&c.open, &c.high, &c.low, &c.close} {
		if _, err := DecimalContext.Add(&sum, &sum, d); err != nil {
			return Candle{}, fmt.Errorf("sum prices: %w", err)
		}
	}
	if _, err := DecimalContext.Quo(&c.vwap, &sum, four); err != nil {
		return Candle{}, fmt.Errorf("vwap: %w", err)
	}
	Normalize(&c.vwap)
	return c, nil
}

func (c Candle) Market() string        { return c.market }
func (c Candle) Period() time.Duration { return c.period }
func (c Candle) Timestamp() time.Time  { return c.timestamp }
func (c Candle) Open() apd.Decimal     { return copyDecimal(&c.open) }
func (c Candle) High() apd.Decimal     { return copyDecimal(&c.high) }
func (c Candle) Low() apd.Decimal      { return copyDecimal(&c.low) }
func (c Candle) Close() apd.Decimal    { return copyDecimal(&c.close) }
func (c Candle) Volume() apd.Decimal   { return copyDecimal(&c.volume) }
func (c Candle) VWAP() apd.Decimal     { return copyDecimal(&c.vwap) }
func (c Candle) CloseTime() time.Time  { return c.timestamp.Add(c.period) }

// MarshalJSON implements json.Marshaler for Candle.
func (c Candle) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(struct {
		Market    string    `json:"market"`
		Period    string    `json:"period"`
		Timestamp time.Time `json:"timestamp"`
		Open      string    `json:"open"`
		High      string    `json:"high"`
		Low       string    `json:"low"`
		Close     string    `json:"close"`
		Volume    string    `json:"volume"`
		VWAP      string    `json:"vwap"`
	}{
		Market:    c.market,
		Period:    c.period.String(),
		Timestamp: c.timestamp,
		Open:      c.open.String(),
		High:      c.high.String(),
		Low:       c.low.String(),
		Close:     c.close.String(),
		Volume:    c.volume.String(),
		VWAP:      c.vwap.String(),
	})
}

func copyDecimal(d *apd.Decimal) apd.Decimal {
	var out apd.Decimal
	out.Set(d)
	return out
}
