package peatio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peatio/internal/signer"
	"peatio/pkg/core"
	"peatio/pkg/exchange"
	"peatio/pkg/fiat"
)

const (
	testAccessKey = "access-key-0001"
	testSecretKey = "secret-key-0001"
)

var btcusd = core.NewSymbolPair("BTC", "USD")

func testCreds() *core.Credentials {
	return core.NewCredentials(testAccessKey, testSecretKey)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	config := core.DefaultConfig(server.URL).
		WithTimeouts(time.Second, time.Second).
		WithMinInterval(0).
		WithRetry(2, 10*time.Millisecond).
		WithRateLimit(1000, time.Second)

	opts = append([]Option{WithConverter(fiat.MustTable(core.CNY, core.USD, "7"))}, opts...)
	c, err := New(config, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, &hits
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// formParams returns the request's form values and checks the signature over them.
func formParams(t *testing.T, r *http.Request) map[string]string {
	assert.NoError(t, r.ParseForm())
	params := flatten(r.Form)
	sig := params[signer.ParamSignature]
	delete(params, signer.ParamSignature)
	want, err := signer.Sign(r.Method, r.URL.Path, params, testSecretKey)
	if assert.NoError(t, err) {
		assert.Equal(t, want, sig)
	}
	return params
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(core.DefaultConfig(""))
	assert.Error(t, err)

	// CNY prices reported in USD need a rate table.
	_, err = New(core.DefaultConfig(ProductionURL))
	assert.Error(t, err)

	_, err = New(core.DefaultConfig(ProductionURL), WithConverter(fiat.Identity(core.CNY)))
	assert.Error(t, err)

	c, err := New(core.DefaultConfig(ProductionURL).WithCurrencies(core.CNY, core.CNY))
	require.NoError(t, err)
	assert.Equal(t, "peatio", c.Name())
	require.NoError(t, c.Close())

	var tc exchange.TradingClient = c
	assert.NotNil(t, tc)
}

func TestClient_Buy(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/orders", r.URL.Path)

		params := formParams(t, r)
		assert.Equal(t, "70.00", params["price"])
		assert.Equal(t, "btccny", params["market"])
		assert.Equal(t, "0.01", params["volume"])
		assert.Equal(t, "buy", params["side"])
		assert.Equal(t, "limit", params["ord_type"])
		assert.Equal(t, testAccessKey, params["access_key"])
		assert.NotEmpty(t, params["tonce"])

		writeJSON(w, http.StatusCreated, `{"id":434669,"side":"buy","ord_type":"limit","price":"70.0","avg_price":"0.0","state":"wait","market":"btccny","created_at":"2014-04-18T02:02:33Z","volume":"0.01","remaining_volume":"0.01","executed_volume":"0.0","trades_count":0}`)
	})

	id, err := c.Buy(context.Background(), testCreds(), btcusd, core.MustDecimal("0.01"), core.MustDecimal("10.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(434669), id)
}

func TestClient_Sell(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		params := formParams(t, r)
		assert.Equal(t, "sell", params["side"])
		assert.Equal(t, "14", params["price"])
		writeJSON(w, http.StatusCreated, `{"id":12,"side":"sell","ord_type":"limit","price":"14.0","state":"wait","market":"btccny","volume":"1"}`)
	})

	id, err := c.Sell(context.Background(), testCreds(), core.NewSymbolPair("btc", "cny"), core.MustDecimal("1"), core.MustDecimal("2"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestClient_PlaceOrderReturnsCanonicalPrice(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":5,"side":"buy","ord_type":"limit","price":"70.0","state":"wait","market":"btccny","volume":"0.01"}`)
	})

	order, err := c.PlaceOrder(context.Background(), testCreds(), &exchange.OrderRequest{
		Pair:   btcusd,
		Side:   core.SideBuy,
		Type:   core.TypeLimit,
		Amount: core.MustDecimal("0.01"),
		Price:  core.MustDecimal("10.00"),
	})
	require.NoError(t, err)
	assertDecimal(t, "10", order.Price)
	assertDecimal(t, "70", order.PriceNative)
	assert.Equal(t, core.StatusPending, order.Status)
}

func TestClient_PlaceOrderRejectedBeforeSending(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ctx := context.Background()

	_, err := c.PlaceOrder(ctx, testCreds(), &exchange.OrderRequest{
		Pair: btcusd, Side: core.SideBuy, Type: core.TypeMarginLimit,
		Amount: core.MustDecimal("1"), Price: core.MustDecimal("1"),
	})
	assert.True(t, core.IsUnsupportedError(err))

	_, err = c.Buy(ctx, testCreds(), core.NewSymbolPair("btc", "eur"), core.MustDecimal("1"), core.MustDecimal("1"))
	require.Error(t, err)
	assert.True(t, core.IsErrorCode(err, core.ErrCodeInvalidSymbol))
	var exErr *core.ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "peatio", exErr.Exchange)

	disabled := testCreds()
	disabled.Enabled = false
	_, err = c.Buy(ctx, disabled, btcusd, core.MustDecimal("1"), core.MustDecimal("1"))
	assert.True(t, core.IsConfigurationError(err))
	assert.ErrorIs(t, err, core.ErrAccountDisabled)

	_, err = c.Buy(ctx, nil, btcusd, core.MustDecimal("1"), core.MustDecimal("1"))
	assert.True(t, core.IsConfigurationError(err))

	_, err = c.PlaceOrder(ctx, testCreds(), nil)
	assert.Error(t, err)

	assert.Zero(t, hits.Load())
}

func TestClient_Cancel(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/order/delete", r.URL.Path)
		params := formParams(t, r)
		assert.Equal(t, "434669", params["id"])
		writeJSON(w, http.StatusOK, `{"id":434669,"side":"buy","ord_type":"limit","price":"70.0","state":"wait","market":"btccny","volume":"0.01"}`)
	})

	err := c.Cancel(context.Background(), testCreds(), &exchange.CancelRequest{ID: 434669, Pair: btcusd})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_CancelIgnoresEcho(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":434669,"state":"wait","created_at":"2014-04-18 02:02:33"}`)
	})

	err := c.Cancel(context.Background(), testCreds(), &exchange.CancelRequest{ID: 434669})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_PlaceOrderUndecodableEcho(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":434669,"side":"buy","ord_type":"limit","price":"70.0","state":"wait","market":"btccny","created_at":"2014-04-18 02:02:33","volume":"0.01"}`)
	})

	id, err := c.Buy(context.Background(), testCreds(), btcusd, core.MustDecimal("0.01"), core.MustDecimal("10.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(434669), id)
	assert.Equal(t, int32(1), hits.Load())

	order, err := c.PlaceOrder(context.Background(), testCreds(), &exchange.OrderRequest{
		Pair:   btcusd,
		Side:   core.SideBuy,
		Type:   core.TypeLimit,
		Amount: core.MustDecimal("0.01"),
		Price:  core.MustDecimal("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(434669), order.ID)
	assert.Equal(t, "btccny", order.Market)
	assert.Equal(t, core.StatusPending, order.Status)
	assertDecimal(t, "10", order.Price)
	assertDecimal(t, "70", order.PriceNative)
}

func TestClient_PlaceOrderEchoWithoutID(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `"queued"`)
	})

	id, err := c.Buy(context.Background(), testCreds(), btcusd, core.MustDecimal("0.01"), core.MustDecimal("10.00"))
	require.Error(t, err)
	assert.Zero(t, id)
	assert.True(t, core.IsOutcomeUnknown(err))
	assert.True(t, core.IsParseError(errors.Unwrap(err)))
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_Fees(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	fees := c.Fees()
	assert.True(t, fees.Transaction.IsZero())
	assert.True(t, fees.Withdrawal.IsZero())
	assert.True(t, fees.Deposit.IsZero())
}

func TestClient_CancelErrorEnvelope(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"error":{"code":1001,"message":"order not found"}}`)
	})

	err := c.Cancel(context.Background(), testCreds(), &exchange.CancelRequest{ID: 434669})
	require.Error(t, err)

	var exErr *core.ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, core.ErrorTypeBadRequest, exErr.Type)
	assert.Equal(t, "1001", exErr.Code)
	assert.Equal(t, "order not found", exErr.Message)
	assert.True(t, core.IsExchangeRejection(err))
	// authenticated calls are never retried
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_AuthErrorCodes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error":{"code":2005,"message":"Signature is incorrect."}}`)
	})

	_, err := c.GetBalances(context.Background(), testCreds())
	assert.True(t, core.IsAuthenticationError(err))
	assert.True(t, core.IsErrorCode(err, "2005"))
}

func TestClient_GetOrder(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v2/order", r.URL.Path)
		params := formParams(t, r)
		assert.Equal(t, "42", params["id"])
		writeJSON(w, http.StatusOK, `{"id":42,"side":"sell","ord_type":"limit","price":"70.0","avg_price":"77.0","state":"done","market":"btccny","volume":"1","remaining_volume":"0","executed_volume":"1","trades_count":2}`)
	})

	order, err := c.GetOrder(context.Background(), testCreds(), &exchange.OrderQuery{ID: 42})
	require.NoError(t, err)
	assert.Equal(t, core.StatusFilled, order.Status)
	assertDecimal(t, "11", order.AvgPrice)
	assert.Equal(t, 2, order.TradesCount)
}

func TestClient_GetOrderNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":{"code":2004,"message":"Order#42 doesn't exist."}}`)
	})

	_, err := c.GetOrder(context.Background(), testCreds(), &exchange.OrderQuery{ID: 42})
	require.Error(t, err)
	assert.Equal(t, core.ErrorTypeNotFound, core.ErrorTypeOf(err))
	assert.True(t, core.IsTerminalError(err))
}

func TestClient_GetOpenOrders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/orders", r.URL.Path)
		params := formParams(t, r)
		assert.Equal(t, "btccny", params["market"])
		assert.Equal(t, "100", params["limit"])
		writeJSON(w, http.StatusOK, `[{"id":1,"side":"buy","price":"7","state":"wait","volume":"1"},{"id":2,"side":"sell","price":"21","state":"wait","volume":"1"}]`)
	})

	orders, err := c.GetOpenOrders(context.Background(), testCreds(), btcusd)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assertDecimal(t, "3", orders[1].Price)
}

func TestClient_GetBalances(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/members/me", r.URL.Path)
		params := formParams(t, r)
		assert.Len(t, params, 2)
		writeJSON(w, http.StatusOK, `{"sn":"PEA5","accounts":[{"currency":"cny","balance":"70","locked":"0"},{"currency":"btc","balance":"2","locked":"1"}]}`)
	})

	asset, err := c.GetBalances(context.Background(), testCreds())
	require.NoError(t, err)
	cny, ok := asset.Balance(core.CNY)
	require.True(t, ok)
	assertDecimal(t, "10", cny.AvailableCanonical)
}

func TestClient_GetTicker(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/tickers/btccny", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get(signer.ParamSignature))
		writeJSON(w, http.StatusOK, `{"at":1398410899,"ticker":{"buy":"70","sell":"77","low":"63","high":"84","last":"70","vol":"3"}}`)
	})

	ticker, err := c.GetTicker(context.Background(), btcusd)
	require.NoError(t, err)
	assertDecimal(t, "10", ticker.Last)
	assertDecimal(t, "11", ticker.Sell)
}

func TestClient_GetOrderBook(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/order_book", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "btccny", q.Get("market"))
		assert.Equal(t, "100", q.Get("asks_limit"))
		assert.Equal(t, "100", q.Get("bids_limit"))
		writeJSON(w, http.StatusOK, `{"asks":[{"price":"77","remaining_volume":"1"},{"price":"70","remaining_volume":"2"}],"bids":[{"price":"63","remaining_volume":"1"},{"price":"56","remaining_volume":"1"},{"price":"68.6","remaining_volume":"5"}]}`)
	})

	book, err := c.GetOrderBook(context.Background(), btcusd)
	require.NoError(t, err)
	require.Len(t, book.Asks, 2)
	require.Len(t, book.Bids, 3)
	assertDecimal(t, "10", book.Asks[0].Price)
	assertDecimal(t, "11", book.Asks[1].Price)
	assertDecimal(t, "9.8", book.Bids[0].Price)
	assertDecimal(t, "9", book.Bids[1].Price)
	assertDecimal(t, "8", book.Bids[2].Price)
}

func TestClient_GetOrderBookRetriesOnce(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `not json`)
	})

	book, err := c.GetOrderBook(context.Background(), btcusd, exchange.WithLimit(5))
	require.Error(t, err)
	assert.Nil(t, book)
	assert.True(t, core.IsParseError(err))
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_GetOrderBookMissingAsks(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"bids":[]}`)
	})

	_, err := c.GetOrderBook(context.Background(), btcusd)
	require.Error(t, err)
	assert.True(t, core.IsParseError(err))
	assert.Contains(t, err.Error(), "update_depth error")
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_PublicReadRetriesWrongShape(t *testing.T) {
	tests := []struct {
		name  string
		first string
		call  func(t *testing.T, c *Client) error
	}{
		{"order_book_string", `"maintenance"`, func(t *testing.T, c *Client) error {
			book, err := c.GetOrderBook(context.Background(), btcusd)
			if err == nil {
				assert.Len(t, book.Asks, 1)
			}
			return err
		}},
		{"order_book_array", `[]`, func(t *testing.T, c *Client) error {
			_, err := c.GetOrderBook(context.Background(), btcusd)
			return err
		}},
		{"ticker", `"maintenance"`, func(t *testing.T, c *Client) error {
			_, err := c.GetTicker(context.Background(), btcusd)
			return err
		}},
		{"candles", `{"k":[]}`, func(t *testing.T, c *Client) error {
			_, err := c.GetCandles(context.Background(), btcusd)
			return err
		}},
	}

	valid := map[string]string{
		"/api/v2/order_book":     `{"asks":[{"price":"70","remaining_volume":"1"}],"bids":[]}`,
		"/api/v2/tickers/btccny": `{"at":1398410899,"ticker":{"buy":"28","sell":"29","low":"27","high":"30","last":"28","vol":"100"}}`,
		"/api/v2/k":              `[[1398410880,700,714,693,728,1.5]]`,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					writeJSON(w, http.StatusOK, tt.first)
					return
				}
				writeJSON(w, http.StatusOK, valid[r.URL.Path])
			})

			require.NoError(t, tt.call(t, c))
			assert.Equal(t, int32(2), hits.Load())
		})
	}
}

func TestClient_GetCandles(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/k", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "btccny", q.Get("market"))
		assert.Equal(t, "5", q.Get("period"))
		assert.Equal(t, "100", q.Get("limit"))
		assert.Equal(t, "1398410700", q.Get("timestamp"))
		writeJSON(w, http.StatusOK, `[[1398410700,700,714,693,728,1.5],[1398411000,721,728,700,707,0.5]]`)
	})

	candles, err := c.GetCandles(context.Background(), btcusd,
		exchange.WithPeriod(5*time.Minute),
		exchange.WithSince(time.Unix(1398410700, 0)))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 5*time.Minute, candles[0].Period())
	assertDecimal(t, "101.25", candles[0].VWAP())
	assertDecimal(t, "1.5", candles[0].Volume())
}

func TestClient_GetCandlesBadPeriod(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.GetCandles(context.Background(), btcusd, exchange.WithPeriod(90*time.Second))
	require.Error(t, err)
	assert.Equal(t, core.ErrorTypeBadRequest, core.ErrorTypeOf(err))
	assert.Zero(t, hits.Load())
}

func TestClient_WriteTimeoutIsOutcomeUnknown(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Buy(ctx, testCreds(), btcusd, core.MustDecimal("0.01"), core.MustDecimal("10.00"))
	require.Error(t, err)
	assert.True(t, core.IsOutcomeUnknown(err))
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"at":1,"ticker":{"buy":"7","sell":"7","low":"7","high":"7","last":"7","vol":"1"}}`)
	}, WithMetrics(reg))

	_, err := c.GetTicker(context.Background(), btcusd)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "peatio_requests_total")
	assert.NotNil(t, c.MetricsHandler())
}
