package peatio

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"

	"peatio/pkg/core"
	"peatio/pkg/fiat"
)

// errMissingAsks is reported when an order book response has no asks side.
var errMissingAsks = errors.New("update_depth error")

// number accepts a JSON number, a quoted number or null. Peatio quotes most
// decimals but the k-line endpoint returns bare numbers.
type number string

func (n *number) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch {
	case s == "null":
		*n = ""
	case len(s) >= 2 && s[0] == '"':
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		*n = number(strings.TrimSpace(unquoted))
	default:
		*n = number(s)
	}
	return nil
}

func (n number) decimal() (apd.Decimal, error) {
	return core.ParseDecimal(string(n))
}

func (n number) unix() (time.Time, error) {
	if sec, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", string(n), err)
	}
	return time.Unix(int64(f), 0), nil
}

// peatioOrder represents the raw order object returned by the order endpoints.
type peatioOrder struct {
	ID              int64  `json:"id"`
	Side            string `json:"side"`
	OrdType         string `json:"ord_type"`
	Price           number `json:"price"`
	AvgPrice        number `json:"avg_price"`
	State           string `json:"state"`
	Market          string `json:"market"`
	CreatedAt       string `json:"created_at"`
	Volume          number `json:"volume"`
	RemainingVolume number `json:"remaining_volume"`
	ExecutedVolume  number `json:"executed_volume"`
	TradesCount     int    `json:"trades_count"`
}

// peatioMember represents the members/me response.
type peatioMember struct {
	SN       string          `json:"sn"`
	Accounts []peatioAccount `json:"accounts"`
}

type peatioAccount struct {
	Currency string `json:"currency"`
	Balance  number `json:"balance"`
	Locked   number `json:"locked"`
}

// peatioOrderBook keeps asks as a pointer so a missing key can be told apart
// from an empty side.
type peatioOrderBook struct {
	Asks *[]peatioOrder `json:"asks"`
	Bids []peatioOrder  `json:"bids"`
}

type peatioTicker struct {
	At     number `json:"at"`
	Ticker struct {
		Buy  number `json:"buy"`
		Sell number `json:"sell"`
		Low  number `json:"low"`
		High number `json:"high"`
		Last number `json:"last"`
		Vol  number `json:"vol"`
	} `json:"ticker"`
}

var orderStatus = map[string]core.OrderStatus{
	"wait":   core.StatusPending,
	"done":   core.StatusFilled,
	"cancel": core.StatusCancelled,
}

// Normalizer converts Peatio payloads to core types, converting native prices to
// the canonical currency.
type Normalizer struct {
	exchange  string
	converter fiat.Converter
	now       func() time.Time
}

// NewNormalizer returns a Normalizer that tags errors with exchange and prices
// through converter.
func NewNormalizer(exchange string, converter fiat.Converter) *Normalizer {
	return &Normalizer{
		exchange:  exchange,
		converter: converter,
		now:       time.Now,
	}
}

func (n *Normalizer) parseError(err error) error {
	return core.NewParseError(n.exchange, 0, err)
}

func (n *Normalizer) canonical(native *apd.Decimal, at time.Time) (apd.Decimal, error) {
	out, err := n.converter.ToCanonical(native, n.converter.Native(), at)
	if err != nil {
		return out, core.NewConfigurationError(n.exchange, err)
	}
	return out, nil
}

// Order decodes a single order object.
func (n *Normalizer) Order(body []byte) (*core.Order, error) {
	var raw peatioOrder
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, n.parseError(fmt.Errorf("unmarshal order: %w", err))
	}
	return n.NormalizeOrder(&raw)
}

// OrderID reads only the "id" of an order echo. It is used when the rest of an
// accepted order cannot be decoded.
func (n *Normalizer) OrderID(body []byte) (int64, bool) {
	node, err := sonic.Get(body, "id")
	if err != nil || !node.Exists() {
		return 0, false
	}
	id, err := node.Int64()
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Orders decodes an array of order objects.
func (n *Normalizer) Orders(body []byte) ([]core.Order, error) {
	var raw []peatioOrder
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, n.parseError(fmt.Errorf("unmarshal orders: %w", err))
	}
	orders := make([]core.Order, 0, len(raw))
	for i := range raw {
		order, err := n.NormalizeOrder(&raw[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// NormalizeOrder converts a raw order. Unknown states map to StatusPending; the
// fee is zero, which is what Peatio charges.
func (n *Normalizer) NormalizeOrder(raw *peatioOrder) (*core.Order, error) {
	order := &core.Order{
		ID:          raw.ID,
		Market:      raw.Market,
		Status:      orderStatus[raw.State],
		Fee:         fees.Transaction,
		TradesCount: raw.TradesCount,
	}

	if raw.Side != "" {
		side, err := core.ParseOrderSide(raw.Side)
		if err != nil {
			return nil, n.parseError(err)
		}
		order.Side = side
	}
	if err := order.Type.UnmarshalJSON([]byte(raw.OrdType)); err != nil {
		return nil, n.parseError(err)
	}
	if raw.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, raw.CreatedAt)
		if err != nil {
			return nil, n.parseError(fmt.Errorf("parse created_at: %w", err))
		}
		order.CreatedAt = ts
	}

	fields := []struct {
		src number
		dst *apd.Decimal
	}{
		{raw.Volume, &order.Amount},
		{raw.Price, &order.PriceNative},
		{raw.ExecutedVolume, &order.ExecutedAmount},
		{raw.RemainingVolume, &order.RemainingAmount},
		{raw.AvgPrice, &order.AvgPriceNative},
	}
	for _, f := range fields {
		d, err := f.src.decimal()
		if err != nil {
			return nil, n.parseError(err)
		}
		f.dst.Set(&d)
	}

	price, err := n.canonical(&order.PriceNative, time.Time{})
	if err != nil {
		return nil, err
	}
	order.Price = price

	avg, err := n.canonical(&order.AvgPriceNative, time.Time{})
	if err != nil {
		return nil, err
	}
	order.AvgPrice = avg
	return order, nil
}

// Asset decodes the members/me response. Crypto balances are verbatim; the
// native quote currency also gets its canonical mirror.
func (n *Normalizer) Asset(body []byte) (*core.Asset, error) {
	var raw peatioMember
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, n.parseError(fmt.Errorf("unmarshal member: %w", err))
	}

	asset := &core.Asset{
		Exchange:  n.exchange,
		Balances:  make([]core.Balance, 0, len(raw.Accounts)),
		UpdatedAt: n.now(),
	}
	for _, acc := range raw.Accounts {
		balance := core.Balance{Currency: core.NewCurrency(acc.Currency)}
		available, err := acc.Balance.decimal()
		if err != nil {
			return nil, n.parseError(err)
		}
		frozen, err := acc.Locked.decimal()
		if err != nil {
			return nil, n.parseError(err)
		}
		balance.Available.Set(&available)
		balance.Frozen.Set(&frozen)

		if balance.Currency == n.converter.Native() {
			if balance.AvailableCanonical, err = n.canonical(&available, time.Time{}); err != nil {
				return nil, err
			}
			if balance.FrozenCanonical, err = n.canonical(&frozen, time.Time{}); err != nil {
				return nil, err
			}
		}
		asset.Balances = append(asset.Balances, balance)
	}
	return asset, nil
}

// OrderBook decodes an order_book response. Each level's amount is the order's
// remaining volume. Asks are sorted ascending and bids descending; levels with
// equal prices keep their response order.
func (n *Normalizer) OrderBook(market string, body []byte) (*core.OrderBook, error) {
	var raw peatioOrderBook
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, n.parseError(fmt.Errorf("unmarshal order book: %w", err))
	}
	if raw.Asks == nil {
		return nil, n.parseError(errMissingAsks)
	}

	asks, err := n.levels(*raw.Asks)
	if err != nil {
		return nil, err
	}
	bids, err := n.levels(raw.Bids)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(asks, func(a, b core.OrderBookLevel) int {
		return a.PriceNative.Cmp(&b.PriceNative)
	})
	slices.SortStableFunc(bids, func(a, b core.OrderBookLevel) int {
		return b.PriceNative.Cmp(&a.PriceNative)
	})

	return &core.OrderBook{
		Market:    market,
		Asks:      asks,
		Bids:      bids,
		Timestamp: n.now(),
	}, nil
}

func (n *Normalizer) levels(orders []peatioOrder) ([]core.OrderBookLevel, error) {
	levels := make([]core.OrderBookLevel, len(orders))
	for i, o := range orders {
		price, err := o.Price.decimal()
		if err != nil {
			return nil, n.parseError(err)
		}
		amount, err := o.RemainingVolume.decimal()
		if err != nil {
			return nil, n.parseError(err)
		}
		canonical, err := n.canonical(&price, time.Time{})
		if err != nil {
			return nil, err
		}
		levels[i].PriceNative.Set(&price)
		levels[i].Amount.Set(&amount)
		levels[i].Price = canonical
	}
	return levels, nil
}

// Candles decodes k-line tuples [timestamp, open, high, low, close, volume].
// Prices are converted with the rate in force at each candle's start.
func (n *Normalizer) Candles(market string, period time.Duration, body []byte) ([]core.Candle, error) {
	var raw [][]number
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, n.parseError(fmt.Errorf("unmarshal candles: %w", err))
	}

	candles := make([]core.Candle, 0, len(raw))
	for i, tuple := range raw {
		if len(tuple) < 6 {
			return nil, n.parseError(fmt.Errorf("candle %d has %d fields, want 6", i, len(tuple)))
		}
		ts, err := tuple[0].unix()
		if err != nil {
			return nil, n.parseError(err)
		}

		var values [5]apd.Decimal
		for j := range values {
			d, err := tuple[j+1].decimal()
			if err != nil {
				return nil, n.parseError(fmt.Errorf("candle %d: %w", i, err))
			}
			values[j] = d
		}
		for j := 0; j < 4; j++ {
			if values[j], err = n.canonical(&values[j], ts); err != nil {
				return nil, err
			}
		}

		candle, err := core.NewCandle(market, period, ts, values[0], values[1], values[2], values[3], values[4])
		if err != nil {
			return nil, n.parseError(err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// Ticker decodes a tickers/{market} response.
func (n *Normalizer) Ticker(market string, body []byte) (*core.Ticker, error) {
	var raw peatioTicker
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, n.parseError(fmt.Errorf("unmarshal ticker: %w", err))
	}

	ticker := &core.Ticker{Market: market, Timestamp: n.now()}
	if raw.At != "" {
		at, err := raw.At.unix()
		if err != nil {
			return nil, n.parseError(err)
		}
		ticker.Timestamp = at
	}

	prices := []struct {
		src number
		dst *apd.Decimal
	}{
		{raw.Ticker.Buy, &ticker.Buy},
		{raw.Ticker.Sell, &ticker.Sell},
		{raw.Ticker.Low, &ticker.Low},
		{raw.Ticker.High, &ticker.High},
		{raw.Ticker.Last, &ticker.Last},
	}
	for _, p := range prices {
		native, err := p.src.decimal()
		if err != nil {
			return nil, n.parseError(err)
		}
		if p.dst == &ticker.Last {
			ticker.LastNative.Set(&native)
		}
		converted, err := n.canonical(&native, time.Time{})
		if err != nil {
			return nil, err
		}
		p.dst.Set(&converted)
	}

	vol, err := raw.Ticker.Vol.decimal()
	if err != nil {
		return nil, n.parseError(err)
	}
	ticker.Volume.Set(&vol)
	return ticker, nil
}
