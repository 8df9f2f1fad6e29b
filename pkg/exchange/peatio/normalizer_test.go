package peatio

import (
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peatio/pkg/core"
	"peatio/pkg/fiat"
)

func assertDecimal(t *testing.T, want string, got apd.Decimal) {
	t.Helper()
	w := core.MustDecimal(want)
	assert.Zero(t, w.Cmp(&got), "want %s, got %s", want, got.String())
}

func cnyNormalizer() *Normalizer {
	return NewNormalizer(Name, fiat.MustTable(core.CNY, core.USD, "7"))
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want number
	}{
		{"quoted", `"3100.5"`, "3100.5"},
		{"bare", `3100.5`, "3100.5"},
		{"integer", `1398410899`, "1398410899"},
		{"null", `null`, ""},
		{"padded", `" 1.0 "`, "1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n number
			require.NoError(t, n.UnmarshalJSON([]byte(tt.in)))
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNormalizer_OrderStatus(t *testing.T) {
	tests := []struct {
		state string
		want  core.OrderStatus
	}{
		{"wait", core.StatusPending},
		{"done", core.StatusFilled},
		{"cancel", core.StatusCancelled},
		{"convert", core.StatusPending},
		{"", core.StatusPending},
	}
	n := cnyNormalizer()
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			order, err := n.Order([]byte(`{"id":1,"side":"sell","price":"70","state":"` + tt.state + `","volume":"1"}`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, order.Status)
		})
	}
}

func TestNormalizer_Order(t *testing.T) {
	body := `{
		"id": 7,
		"side": "buy",
		"ord_type": "limit",
		"price": "3100.0",
		"avg_price": "3106.2",
		"state": "wait",
		"market": "btccny",
		"created_at": "2014-04-18T02:02:33Z",
		"volume": "100.0",
		"remaining_volume": "89.8",
		"executed_volume": "10.2",
		"trades_count": 1
	}`
	n := NewNormalizer(Name, fiat.MustTable(core.CNY, core.USD, "6.2"))

	order, err := n.Order([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, "btccny", order.Market)
	assert.Equal(t, core.SideBuy, order.Side)
	assert.Equal(t, core.TypeLimit, order.Type)
	assert.Equal(t, core.StatusPending, order.Status)
	assert.Equal(t, 1, order.TradesCount)
	assert.Equal(t, time.Date(2014, 4, 18, 2, 2, 33, 0, time.UTC), order.CreatedAt.UTC())

	assertDecimal(t, "100", order.Amount)
	assertDecimal(t, "10.2", order.ExecutedAmount)
	assertDecimal(t, "89.8", order.RemainingAmount)
	assertDecimal(t, "3100", order.PriceNative)
	assertDecimal(t, "500", order.Price)
	assertDecimal(t, "3106.2", order.AvgPriceNative)
	assertDecimal(t, "501", order.AvgPrice)
	assert.True(t, order.Fee.IsZero())
}

func TestNormalizer_OrderMissingAvgPrice(t *testing.T) {
	order, err := cnyNormalizer().Order([]byte(`{"id":3,"side":"sell","price":"14","avg_price":null,"state":"done","volume":"2"}`))
	require.NoError(t, err)
	assertDecimal(t, "2", order.Price)
	assert.True(t, order.AvgPrice.IsZero())
	assert.Equal(t, core.SideSell, order.Side)
	assert.True(t, order.Status.IsTerminal())
}

func TestNormalizer_OrderMalformed(t *testing.T) {
	n := cnyNormalizer()

	_, err := n.Order([]byte(`<html>`))
	assert.True(t, core.IsParseError(err))

	_, err = n.Order([]byte(`{"id":1,"price":"abc"}`))
	assert.True(t, core.IsParseError(err))

	_, err = n.Order([]byte(`{"id":1,"side":"long"}`))
	assert.True(t, core.IsParseError(err))
}

func TestNormalizer_Orders(t *testing.T) {
	orders, err := cnyNormalizer().Orders([]byte(`[
		{"id":1,"side":"buy","price":"7","state":"wait","volume":"1"},
		{"id":2,"side":"sell","price":"14","state":"wait","volume":"2"}
	]`))
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].ID)
	assertDecimal(t, "1", orders[0].Price)
	assertDecimal(t, "2", orders[1].Price)

	orders, err = cnyNormalizer().Orders([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestNormalizer_Asset(t *testing.T) {
	body := `{
		"sn": "PEA5TFFOGQHTIO",
		"name": "foo",
		"accounts": [
			{"currency": "cny", "balance": "700.0", "locked": "14.0"},
			{"currency": "btc", "balance": "1.5", "locked": "0.25"}
		]
	}`
	asset, err := cnyNormalizer().Asset([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, Name, asset.Exchange)
	require.Len(t, asset.Balances, 2)

	cny, ok := asset.Balance(core.CNY)
	require.True(t, ok)
	assertDecimal(t, "700", cny.Available)
	assertDecimal(t, "14", cny.Frozen)
	assertDecimal(t, "100", cny.AvailableCanonical)
	assertDecimal(t, "2", cny.FrozenCanonical)

	btc, ok := asset.Balance(core.BTC)
	require.True(t, ok)
	assertDecimal(t, "1.5", btc.Available)
	assertDecimal(t, "0.25", btc.Frozen)
	assert.True(t, btc.AvailableCanonical.IsZero())
	assert.True(t, btc.FrozenCanonical.IsZero())

	_, ok = asset.Balance(core.ETH)
	assert.False(t, ok)
}

func TestNormalizer_OrderBookOrdering(t *testing.T) {
	body := `{
		"asks": [
			{"id":1,"price":"3113.0","remaining_volume":"0.5"},
			{"id":2,"price":"3101.0","remaining_volume":"1.0"},
			{"id":3,"price":"3150.0","remaining_volume":"2.0"},
			{"id":4,"price":"3101.0","remaining_volume":"3.0"}
		],
		"bids": [
			{"id":5,"price":"3000.0","remaining_volume":"1.0"},
			{"id":6,"price":"3090.0","remaining_volume":"0.1"},
			{"id":7,"price":"2950.0","remaining_volume":"4.0"}
		]
	}`
	n := NewNormalizer(Name, fiat.Identity(core.CNY))

	book, err := n.OrderBook("btccny", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "btccny", book.Market)
	require.Len(t, book.Asks, 4)
	require.Len(t, book.Bids, 3)

	for i := 1; i < len(book.Asks); i++ {
		assert.LessOrEqual(t, book.Asks[i-1].Price.Cmp(&book.Asks[i].Price), 0)
	}
	for i := 1; i < len(book.Bids); i++ {
		assert.GreaterOrEqual(t, book.Bids[i-1].Price.Cmp(&book.Bids[i].Price), 0)
	}

	// equal prices keep response order
	assertDecimal(t, "1.0", book.Asks[0].Amount)
	assertDecimal(t, "3.0", book.Asks[1].Amount)

	ask, ok := book.BestAsk()
	require.True(t, ok)
	assertDecimal(t, "3101", ask.Price)
	bid, ok := book.BestBid()
	require.True(t, ok)
	assertDecimal(t, "3090", bid.Price)
	assertDecimal(t, "0.1", bid.Amount)
}

func TestNormalizer_OrderBookConverted(t *testing.T) {
	book, err := cnyNormalizer().OrderBook("btccny", []byte(`{"asks":[{"price":"70","remaining_volume":"1"}],"bids":[]}`))
	require.NoError(t, err)
	require.Len(t, book.Asks, 1)
	assertDecimal(t, "10", book.Asks[0].Price)
	assertDecimal(t, "70", book.Asks[0].PriceNative)
	assert.Empty(t, book.Bids)
}

func TestNormalizer_OrderBookMissingAsks(t *testing.T) {
	_, err := cnyNormalizer().OrderBook("btccny", []byte(`{"bids":[]}`))
	require.Error(t, err)
	assert.True(t, core.IsParseError(err))
	assert.Contains(t, err.Error(), "update_depth error")
	assert.ErrorIs(t, err, errMissingAsks)
}

func TestNormalizer_CandlesVWAP(t *testing.T) {
	n := NewNormalizer(Name, fiat.Identity(core.CNY))

	candles, err := n.Candles("btccny", time.Minute, []byte(`[[1398410880,100,102,99,104,5.5]]`))
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, "btccny", c.Market())
	assert.Equal(t, time.Minute, c.Period())
	assert.Equal(t, time.Unix(1398410880, 0), c.Timestamp())
	assertDecimal(t, "101.25", c.VWAP())
	assertDecimal(t, "5.5", c.Volume())
	assertDecimal(t, "104", c.Close())
}

func TestNormalizer_CandlesHistoricalRate(t *testing.T) {
	cutover := time.Unix(1398410000, 0)
	table := fiat.MustTable(core.CNY, core.USD, "7", fiat.Point{At: cutover, Rate: core.MustDecimal("6")})
	n := NewNormalizer(Name, table)

	body := `[[1398400000,"70","70","70","70","1"],[1398420000,"72","72","72","72","2"]]`
	candles, err := n.Candles("btccny", 5*time.Minute, []byte(body))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// before the first point the live rate applies
	assertDecimal(t, "10", candles[0].Open())
	assertDecimal(t, "12", candles[1].Open())
	assertDecimal(t, "12", candles[1].VWAP())
	assertDecimal(t, "2", candles[1].Volume())
}

func TestNormalizer_CandlesMalformed(t *testing.T) {
	n := cnyNormalizer()

	_, err := n.Candles("btccny", time.Minute, []byte(`[[1398410880,100,102]]`))
	assert.True(t, core.IsParseError(err))

	_, err = n.Candles("btccny", time.Minute, []byte(`{"error":"nope"}`))
	assert.True(t, core.IsParseError(err))

	candles, err := n.Candles("btccny", time.Minute, []byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestNormalizer_Ticker(t *testing.T) {
	body := `{"at":1398410899,"ticker":{"buy":"3000.0","sell":"3100.0","low":"2800.0","high":"3200.0","last":"3080.0","vol":"0.11"}}`
	n := NewNormalizer(Name, fiat.MustTable(core.CNY, core.USD, "4"))

	ticker, err := n.Ticker("btccny", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "btccny", ticker.Market)
	assert.Equal(t, time.Unix(1398410899, 0), ticker.Timestamp)
	assertDecimal(t, "750", ticker.Buy)
	assertDecimal(t, "775", ticker.Sell)
	assertDecimal(t, "700", ticker.Low)
	assertDecimal(t, "800", ticker.High)
	assertDecimal(t, "770", ticker.Last)
	assertDecimal(t, "3080", ticker.LastNative)
	assertDecimal(t, "0.11", ticker.Volume)
}
