package peatio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"peatio/internal/metrics"
	"peatio/pkg/core"
	"peatio/pkg/exchange"
	"peatio/pkg/fiat"
	"peatio/pkg/session"
)

var _ exchange.TradingClient = (*Client)(nil)

// fees is Peatio's advertised schedule: nothing is charged.
var fees = core.FeeSchedule{}

// Client implements exchange.TradingClient for a Peatio deployment. One Client
// may be shared by many goroutines and many accounts.
type Client struct {
	config     *core.Config
	session    *session.Session
	protocol   *Protocol
	normalizer *Normalizer
	converter  fiat.Converter
	metrics    *metrics.Recorder
	logger     zerolog.Logger
}

// Option is a functional option for configuring the Client.
type Option func(*Options)

// Options holds configuration options for the Client.
type Options struct {
	Logger     zerolog.Logger
	Converter  fiat.Converter
	Registerer prometheus.Registerer
	Metrics    bool
}

// WithLogger returns an option that sets the logger for the client.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithConverter sets the native/canonical currency converter. It is required
// when the configured currencies differ.
func WithConverter(c fiat.Converter) Option {
	return func(o *Options) {
		o.Converter = c
	}
}

// WithMetrics registers request metrics on reg. A nil reg uses a private registry
// that is served by MetricsHandler.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = reg
		o.Metrics = true
	}
}

// New creates a Client from config.
func New(config *core.Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	converter := options.Converter
	if converter == nil {
		if config.NativeCurrency != config.CanonicalCurrency {
			return nil, fmt.Errorf("a converter is required to price %s in %s",
				config.NativeCurrency.Upper(), config.CanonicalCurrency.Upper())
		}
		converter = fiat.Identity(config.NativeCurrency)
	}
	if converter.Native() != config.NativeCurrency || converter.Canonical() != config.CanonicalCurrency {
		return nil, fmt.Errorf("converter prices %s in %s, config wants %s in %s",
			converter.Native(), converter.Canonical(), config.NativeCurrency, config.CanonicalCurrency)
	}

	var recorder *metrics.Recorder
	if options.Metrics {
		r, err := metrics.New(options.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		recorder = r
	}

	logger := options.Logger.With().Str("exchange", config.Exchange).Logger()
	sess, err := session.New(config,
		session.WithLogger(logger),
		session.WithMetrics(recorder),
		session.WithClassifier(Classify),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Client{
		config:     config,
		session:    sess,
		protocol:   NewProtocol(config),
		normalizer: NewNormalizer(config.Exchange, converter),
		converter:  converter,
		metrics:    recorder,
		logger:     logger,
	}, nil
}

// Name returns the configured exchange identifier.
func (c *Client) Name() string {
	return c.config.Exchange
}

// Fees returns Peatio's fee schedule. Peatio charges no trading, withdrawal or
// deposit fee.
func (c *Client) Fees() core.FeeSchedule {
	return fees
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.session.Close()
}

// MetricsHandler serves the client's Prometheus registry.
func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

// Session exposes the dispatcher, mainly for limiter metrics.
func (c *Client) Session() *session.Session {
	return c.session
}

// Buy places a limit buy of amount at the canonical price and returns the order id.
func (c *Client) Buy(ctx context.Context, creds *core.Credentials, pair core.SymbolPair, amount, price apd.Decimal) (int64, error) {
	return c.limit(ctx, creds, core.SideBuy, pair, amount, price)
}

// Sell places a limit sell of amount at the canonical price and returns the order id.
func (c *Client) Sell(ctx context.Context, creds *core.Credentials, pair core.SymbolPair, amount, price apd.Decimal) (int64, error) {
	return c.limit(ctx, creds, core.SideSell, pair, amount, price)
}

func (c *Client) limit(ctx context.Context, creds *core.Credentials, side core.OrderSide, pair core.SymbolPair, amount, price apd.Decimal) (int64, error) {
	order, err := c.PlaceOrder(ctx, creds, &exchange.OrderRequest{
		Pair:   pair,
		Side:   side,
		Type:   core.TypeLimit,
		Amount: amount,
		Price:  price,
	})
	if err != nil {
		return 0, err
	}
	return order.ID, nil
}

// PlaceOrder converts the canonical price to the native currency and submits the
// order. Margin order types are rejected before anything is sent. A timeout after
// sending is reported as an outcome-unknown error; reconcile with GetOpenOrders
// before resubmitting.
func (c *Client) PlaceOrder(ctx context.Context, creds *core.Credentials, req *exchange.OrderRequest) (*core.Order, error) {
	if req == nil {
		return nil, c.badRequest(errors.New("order request is required"))
	}
	if req.Type.IsMargin() {
		return nil, core.NewUnsupportedError(c.Name(), fmt.Sprintf("%s orders are not supported", req.Type))
	}
	market, err := c.marketID(req.Pair)
	if err != nil {
		return nil, err
	}

	params := core.Params{
		ParamMarket:  market,
		ParamSide:    req.Side,
		ParamOrdType: req.Type,
		ParamVolume:  req.Amount,
	}
	var native apd.Decimal
	if req.Type == core.TypeLimit {
		native, err = c.converter.ToNative(&req.Price, time.Time{})
		if err != nil {
			return nil, core.NewConfigurationError(c.Name(), err)
		}
		params[ParamPrice] = native
	}

	body, err := c.do(ctx, core.OpPlaceOrder, params, creds)
	if err != nil {
		return nil, err
	}
	order, err := c.normalizer.Order(body)
	if err != nil {
		order, err = c.acceptedOrder(body, market, req, native, err)
		if err != nil {
			return nil, err
		}
	}
	c.logger.Info().
		Int64("order_id", order.ID).
		Str("market", market).
		Str("side", req.Side.String()).
		Str("status", order.Status.String()).
		Msg("order placed")
	return order, nil
}

// Cancel asks the exchange to cancel an order. A nil error means the request was
// accepted; the order reaches StatusCancelled asynchronously.
func (c *Client) Cancel(ctx context.Context, creds *core.Credentials, req *exchange.CancelRequest) error {
	if req == nil {
		return c.badRequest(errors.New("cancel request is required"))
	}
	if _, err := c.do(ctx, core.OpCancelOrder, core.Params{ParamID: req.ID}, creds); err != nil {
		return err
	}
	c.logger.Info().Int64("order_id", req.ID).Msg("order cancel requested")
	return nil
}

// GetBalances returns the account's holdings; the native currency carries its
// canonical mirror.
func (c *Client) GetBalances(ctx context.Context, creds *core.Credentials) (*core.Asset, error) {
	var asset *core.Asset
	err := c.fetch(ctx, core.OpGetBalances, nil, creds, func(body []byte) (err error) {
		asset, err = c.normalizer.Asset(body)
		return err
	})
	return asset, err
}

// GetOrder looks up one order by id.
func (c *Client) GetOrder(ctx context.Context, creds *core.Credentials, query *exchange.OrderQuery) (*core.Order, error) {
	if query == nil {
		return nil, c.badRequest(errors.New("order query is required"))
	}
	var order *core.Order
	err := c.fetch(ctx, core.OpGetOrder, core.Params{ParamID: query.ID}, creds, func(body []byte) (err error) {
		order, err = c.normalizer.Order(body)
		return err
	})
	return order, err
}

// GetOpenOrders lists resting orders of the pair's market.
func (c *Client) GetOpenOrders(ctx context.Context, creds *core.Credentials, pair core.SymbolPair, opts ...exchange.Option) ([]core.Order, error) {
	market, err := c.marketID(pair)
	if err != nil {
		return nil, err
	}
	params := core.Params{ParamMarket: market}
	if o := exchange.ApplyOptions(opts...); o.Limit > 0 {
		params[ParamLimit] = o.Limit
	}

	var orders []core.Order
	err = c.fetch(ctx, core.OpGetOpenOrders, params, creds, func(body []byte) (err error) {
		orders, err = c.normalizer.Orders(body)
		return err
	})
	return orders, err
}

// GetTicker returns the latest statistics of the pair's market.
func (c *Client) GetTicker(ctx context.Context, pair core.SymbolPair) (*core.Ticker, error) {
	market, err := c.marketID(pair)
	if err != nil {
		return nil, err
	}
	var ticker *core.Ticker
	err = c.fetch(ctx, core.OpGetTicker, core.Params{ParamMarket: market}, nil, func(body []byte) (err error) {
		ticker, err = c.normalizer.Ticker(market, body)
		return err
	})
	return ticker, err
}

// GetOrderBook returns the order book of the pair's market, WithLimit levels per side.
func (c *Client) GetOrderBook(ctx context.Context, pair core.SymbolPair, opts ...exchange.Option) (*core.OrderBook, error) {
	market, err := c.marketID(pair)
	if err != nil {
		return nil, err
	}
	params := core.Params{ParamMarket: market}
	if o := exchange.ApplyOptions(opts...); o.Limit > 0 {
		params[ParamLimit] = o.Limit
	}

	var book *core.OrderBook
	err = c.fetch(ctx, core.OpGetOrderBook, params, nil, func(body []byte) (err error) {
		book, err = c.normalizer.OrderBook(market, body)
		return err
	})
	return book, err
}

// GetCandles returns candles of WithPeriod (one minute by default).
func (c *Client) GetCandles(ctx context.Context, pair core.SymbolPair, opts ...exchange.Option) ([]core.Candle, error) {
	market, err := c.marketID(pair)
	if err != nil {
		return nil, err
	}
	o := exchange.ApplyOptions(opts...)
	period := o.Period
	if period == 0 {
		period = time.Minute
	}
	if period < time.Minute || period%time.Minute != 0 {
		return nil, c.badRequest(fmt.Errorf("candle period %s is not a whole number of minutes", period))
	}

	params := core.Params{
		ParamMarket: market,
		ParamPeriod: int(period / time.Minute),
	}
	if o.Limit > 0 {
		params[ParamLimit] = o.Limit
	}
	if !o.Since.IsZero() {
		params[ParamTimestamp] = o.Since.Unix()
	}

	var candles []core.Candle
	err = c.fetch(ctx, core.OpGetCandles, params, nil, func(body []byte) (err error) {
		candles, err = c.normalizer.Candles(market, period, body)
		return err
	})
	return candles, err
}

// acceptedOrder stands in for an order echo that could not be decoded. The exchange
// has accepted the order, so its id is returned whenever the echo carries one;
// otherwise the caller must reconcile before resubmitting.
func (c *Client) acceptedOrder(body []byte, market string, req *exchange.OrderRequest, native apd.Decimal, decodeErr error) (*core.Order, error) {
	id, ok := c.normalizer.OrderID(body)
	if !ok {
		return nil, core.NewExchangeError(c.Name(), core.ErrorTypeOutcomeUnknown, 0,
			"order accepted but its id could not be read; reconcile before retrying").
			WithCode(core.ErrCodeOutcomeUnknown).
			WithCause(decodeErr)
	}
	c.logger.Warn().
		Err(decodeErr).
		Int64("order_id", id).
		Msg("order accepted but its echo could not be decoded")
	return &core.Order{
		ID:          id,
		Market:      market,
		Side:        req.Side,
		Type:        req.Type,
		Amount:      req.Amount,
		Price:       req.Price,
		PriceNative: native,
		Status:      core.StatusPending,
		Fee:         fees.Transaction,
	}, nil
}

func (c *Client) do(ctx context.Context, op core.Operation, params core.Params, creds *core.Credentials) ([]byte, error) {
	req, err := c.protocol.BuildRequest(op, params)
	if err != nil {
		return nil, c.badRequest(err)
	}
	return c.session.Do(ctx, req, creds)
}

// fetch is do for reads: decode runs inside the session's retry loop.
func (c *Client) fetch(ctx context.Context, op core.Operation, params core.Params, creds *core.Credentials, decode session.Decoder) error {
	req, err := c.protocol.BuildRequest(op, params)
	if err != nil {
		return c.badRequest(err)
	}
	return c.session.DoDecode(ctx, req, creds, decode)
}

func (c *Client) marketID(pair core.SymbolPair) (string, error) {
	market, err := pair.MarketID(c.config.NativeCurrency)
	if err != nil {
		var exErr *core.ExchangeError
		if errors.As(err, &exErr) {
			exErr.Exchange = c.Name()
		}
		return "", err
	}
	return market, nil
}

func (c *Client) badRequest(err error) error {
	return core.NewExchangeError(c.Name(), core.ErrorTypeBadRequest, 0, err.Error()).
		WithCode(core.ErrCodeBadRequest).
		WithCause(err)
}
