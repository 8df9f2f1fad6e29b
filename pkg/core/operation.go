package core

// Operation represents a type of action that can be performed on an exchange.
type Operation int

// Operation constants define all supported exchange operations.
const (
	// OpGetTicker retrieves current market ticker data for a market.
	OpGetTicker Operation = iota
	// OpGetOrderBook retrieves the current order book depth.
	OpGetOrderBook
	// OpGetCandles retrieves candlestick/OHLCV data.
	OpGetCandles
	// OpGetBalances retrieves account balance information.
	OpGetBalances
	// OpPlaceOrder submits a new order to the exchange.
	OpPlaceOrder
	// OpCancelOrder cancels an existing order.
	OpCancelOrder
	// OpGetOrder retrieves details of a specific order.
	OpGetOrder
	// OpGetOpenOrders retrieves all open orders of a market.
	OpGetOpenOrders
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	names := [...]string{
		"GET_TICKER",
		"GET_ORDER_BOOK",
		"GET_CANDLES",
		"GET_BALANCES",
		"PLACE_ORDER",
		"CANCEL_ORDER",
		"GET_ORDER",
		"GET_OPEN_ORDERS",
	}
	if o < 0 || int(o) >= len(names) {
		return "UNKNOWN"
	}
	return names[o]
}

// IsPublic reports whether the operation reads public market data.
func (o Operation) IsPublic() bool {
	return o == OpGetTicker || o == OpGetOrderBook || o == OpGetCandles
}

// IsWrite reports whether the operation changes state on the exchange.
func (o Operation) IsWrite() bool {
	return o == OpPlaceOrder || o == OpCancelOrder
}
