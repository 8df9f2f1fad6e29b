package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// DecimalContext is the arithmetic context used for every derived decimal value
// (currency conversion, VWAP). 34 digits matches IEEE 754 decimal128.
var DecimalContext = apd.BaseContext.WithPrecision(34)

// ParseDecimal parses a decimal string. An empty string yields zero.
func ParseDecimal(s string) (apd.Decimal, error) {
	var d apd.Decimal
	if s == "" {
		return d, nil
	}
	if _, _, err := apd.BaseContext.SetString(&d, s); err != nil {
		return d, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// Normalize strips trailing zeros from d without switching to exponent notation,
// so 10.000 becomes 10 and 101.2500 becomes 101.25.
func Normalize(d *apd.Decimal) *apd.Decimal {
	d.Reduce(d)
	if d.Form == apd.Finite && d.Exponent > 0 {
		_, _ = DecimalContext.Quantize(d, d, 0)
	}
	return d
}

// MustDecimal parses s and panics on failure. Intended for constants and tests.
func MustDecimal(s string) apd.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// OrderSide represents the direction of an order (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
const (
	// SideBuy indicates an order to purchase an asset.
	SideBuy OrderSide = iota
	// SideSell indicates an order to sell an asset.
	SideSell
)

// String returns the wire representation of the order side ("buy" or "sell").
func (s OrderSide) String() string {
	return [...]string{"buy", "sell"}[s]
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
// It accepts both uppercase and lowercase formats; Peatio's "bid"/"ask" aliases are accepted too.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	side, err := ParseOrderSide(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseOrderSide maps a side string to an OrderSide.
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return SideBuy, nil
	case "sell", "ask":
		return SideSell, nil
	}
	return SideBuy, fmt.Errorf("unknown order side %q", s)
}

// OrderType represents the type of order to place on an exchange.
type OrderType int

// Order type constants define how an order is executed.
const (
	// TypeLimit executes at a specified price or better.
	TypeLimit OrderType = iota
	// TypeMarket executes immediately at the best available price.
	TypeMarket
	// TypeMarginLimit is a leveraged limit order. Spot-only accounts reject it.
	TypeMarginLimit
	// TypeMarginMarket is a leveraged market order. Spot-only accounts reject it.
	TypeMarginMarket
)

// String returns the wire representation of the order type.
func (t OrderType) String() string {
	return [...]string{"limit", "market", "margin_limit", "margin_market"}[t]
}

// IsMargin reports whether the order type requires a margin account.
func (t OrderType) IsMargin() bool {
	return t == TypeMarginLimit || t == TypeMarginMarket
}

// MarshalJSON implements json.Marshaler for OrderType.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderType.
func (t *OrderType) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "market":
		*t = TypeMarket
	case "margin_limit":
		*t = TypeMarginLimit
	case "margin_market":
		*t = TypeMarginMarket
	default:
		*t = TypeLimit
	}
	return nil
}

// OrderStatus represents the state of an order as last observed on the exchange.
// Transitions are server driven: Pending may become Filled or Cancelled, both terminal.
type OrderStatus int

// Order status constants.
const (
	// StatusPending indicates the order is resting on the book (or its state is not recognised).
	StatusPending OrderStatus = iota
	// StatusFilled indicates the order has been completely executed.
	StatusFilled
	// StatusCancelled indicates the order has been cancelled.
	StatusCancelled
)

// String returns the string representation of the order status.
func (s OrderStatus) String() string {
	return [...]string{"PENDING", "FILLED", "CANCELLED"}[s]
}

// IsTerminal returns true if the order is in a terminal state (no further changes possible).
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// MarshalJSON implements json.Marshaler for OrderStatus.
func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderStatus.
// It accepts both uppercase and lowercase formats.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	switch strings.ToUpper(strings.Trim(string(data), `"`)) {
	case "FILLED":
		*s = StatusFilled
	case "CANCELLED":
		*s = StatusCancelled
	default:
		*s = StatusPending
	}
	return nil
}

// Ticker represents the latest market statistics for a trading pair.
// Prices are in the canonical currency; LastNative keeps the exchange's own figure.
type Ticker struct {
	Market     string      `json:"market"`
	Buy        apd.Decimal `json:"buy"`
	Sell       apd.Decimal `json:"sell"`
	Low        apd.Decimal `json:"low"`
	High       apd.Decimal `json:"high"`
	Last       apd.Decimal `json:"last"`
	LastNative apd.Decimal `json:"last_native"`
	Volume     apd.Decimal `json:"volume"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Order represents an exchange order as observed in a single response.
type Order struct {
	// ID is the exchange-assigned order identifier.
	ID int64 `json:"id"`
	// Market is the exchange market identifier (e.g. "btccny").
	Market string `json:"market"`
	// Side indicates whether this is a buy or sell order.
	Side OrderSide `json:"side"`
	// Type defines how the order executes.
	Type OrderType `json:"type"`
	// Amount is the requested order volume.
	Amount apd.Decimal `json:"amount"`
	// Price is the requested price in the canonical currency.
	Price apd.Decimal `json:"price"`
	// PriceNative is the requested price in the exchange's quote currency.
	PriceNative apd.Decimal `json:"price_native"`
	// ExecutedAmount is the volume filled so far.
	ExecutedAmount apd.Decimal `json:"executed_amount"`
	// RemainingAmount is the volume still resting on the book.
	RemainingAmount apd.Decimal `json:"remaining_amount"`
	// AvgPrice is the average execution price in the canonical currency.
	AvgPrice apd.Decimal `json:"avg_price"`
	// AvgPriceNative is the average execution price in the exchange's quote currency.
	AvgPriceNative apd.Decimal `json:"avg_price_native"`
	// Status is the order state reported by the exchange.
	Status OrderStatus `json:"status"`
	// Fee is the trading fee charged for the order.
	Fee apd.Decimal `json:"fee"`
	// TradesCount is the number of trades the order has matched.
	TradesCount int `json:"trades_count"`
	// CreatedAt is when the exchange accepted the order.
	CreatedAt time.Time `json:"created_at"`
}

// FeeSchedule lists the fees an exchange charges, as fractions of the amount.
type FeeSchedule struct {
	// Transaction is charged on every executed trade.
	Transaction apd.Decimal `json:"transaction"`
	// Withdrawal is charged when funds leave the exchange.
	Withdrawal apd.Decimal `json:"withdrawal"`
	// Deposit is charged when funds arrive.
	Deposit apd.Decimal `json:"deposit"`
}

// Balance is the holding of a single currency.
// For the exchange's native quote currency the canonical mirror fields are populated.
type Balance struct {
	Currency           Currency    `json:"currency"`
	Available          apd.Decimal `json:"available"`
	Frozen             apd.Decimal `json:"frozen"`
	AvailableCanonical apd.Decimal `json:"available_canonical"`
	FrozenCanonical    apd.Decimal `json:"frozen_canonical"`
}

// Asset is a snapshot of the balances of one account.
type Asset struct {
	Exchange  string    `json:"exchange"`
	Balances  []Balance `json:"balances"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Balance returns the balance of the given currency, if present.
func (a *Asset) Balance(currency Currency) (Balance, bool) {
	for _, b := range a.Balances {
		if b.Currency == currency {
			return b, true
		}
	}
	return Balance{}, false
}

// OrderBookLevel represents a single price level in the order book.
type OrderBookLevel struct {
	// Price is the level price in the canonical currency.
	Price apd.Decimal `json:"price"`
	// PriceNative is the level price in the exchange's quote currency.
	PriceNative apd.Decimal `json:"price_native"`
	// Amount is the remaining tradable volume at this level.
	Amount apd.Decimal `json:"amount"`
}

// OrderBook represents the current state of the order book for a market.
type OrderBook struct {
	Market string `json:"market"`
	// Asks are sell orders sorted by price ascending.
	Asks []OrderBookLevel `json:"asks"`
	// Bids are buy orders sorted by price descending.
	Bids []OrderBookLevel `json:"bids"`
	// Timestamp is when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// BestAsk returns the lowest ask, if any.
func (ob *OrderBook) BestAsk() (OrderBookLevel, bool) {
	if len(ob.Asks) == 0 {
		return OrderBookLevel{}, false
	}
	return ob.Asks[0], true
}

// BestBid returns the highest bid, if any.
func (ob *OrderBook) BestBid() (OrderBookLevel, bool) {
	if len(ob.Bids) == 0 {
		return OrderBookLevel{}, false
	}
	return ob.Bids[0], true
}
