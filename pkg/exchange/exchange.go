// Package exchange defines the capability set a trading client offers to callers.
package exchange

import (
	"context"

	"github.com/cockroachdb/apd/v3"

	"peatio/pkg/core"
)

// TradingClient is the operation set of a spot exchange account. Authenticated
// calls take the caller's credentials; the client never stores or mutates them.
// Prices in and out are in the client's canonical currency.
type TradingClient interface {
	// Name returns the exchange identifier.
	Name() string
	// Fees returns the exchange's fee schedule.
	Fees() core.FeeSchedule

	// Buy places a limit buy and returns the exchange order id.
	Buy(ctx context.Context, creds *core.Credentials, pair core.SymbolPair, amount, price apd.Decimal) (int64, error)
	// Sell places a limit sell and returns the exchange order id.
	Sell(ctx context.Context, creds *core.Credentials, pair core.SymbolPair, amount, price apd.Decimal) (int64, error)
	// PlaceOrder submits req and returns the order as accepted by the exchange.
	PlaceOrder(ctx context.Context, creds *core.Credentials, req *OrderRequest) (*core.Order, error)
	// Cancel cancels an order. A nil error means the exchange accepted the cancellation.
	Cancel(ctx context.Context, creds *core.Credentials, req *CancelRequest) error

	GetBalances(ctx context.Context, creds *core.Credentials) (*core.Asset, error)
	GetOrder(ctx context.Context, creds *core.Credentials, query *OrderQuery) (*core.Order, error)
	GetOpenOrders(ctx context.Context, creds *core.Credentials, pair core.SymbolPair, opts ...Option) ([]core.Order, error)

	// GetTicker returns the latest market statistics. Public.
	GetTicker(ctx context.Context, pair core.SymbolPair) (*core.Ticker, error)
	// GetOrderBook returns asks ascending and bids descending. Public.
	GetOrderBook(ctx context.Context, pair core.SymbolPair, opts ...Option) (*core.OrderBook, error)
	// GetCandles returns candles oldest first. Public.
	GetCandles(ctx context.Context, pair core.SymbolPair, opts ...Option) ([]core.Candle, error)

	Close() error
}

// OrderRequest represents a request to place a new order.
type OrderRequest struct {
	// Pair is the trading pair; a USD quote is priced in the exchange's native currency.
	Pair core.SymbolPair `json:"pair"`
	// Side indicates whether this is a buy or sell order.
	Side core.OrderSide `json:"side"`
	// Type defines how the order executes. Margin types are rejected.
	Type core.OrderType `json:"type"`
	// Amount is the order volume in the base currency.
	Amount apd.Decimal `json:"amount"`
	// Price is the limit price in the canonical currency.
	Price apd.Decimal `json:"price"`
}

// CancelRequest identifies an order to cancel.
type CancelRequest struct {
	ID   int64           `json:"id"`
	Pair core.SymbolPair `json:"pair"`
}

// OrderQuery identifies an order to look up.
type OrderQuery struct {
	ID   int64           `json:"id"`
	Pair core.SymbolPair `json:"pair"`
}
