package peatio

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"peatio/pkg/core"
)

const (
	ProductionURL = "https://peatio.com"

	Name    = "peatio"
	version = "v2"
)

// API paths.
const (
	pathOrders      = "/api/v2/orders"
	pathOrderDelete = "/api/v2/order/delete"
	pathOrder       = "/api/v2/order"
	pathMembersMe   = "/api/v2/members/me"
	pathTickers     = "/api/v2/tickers/"
	pathOrderBook   = "/api/v2/order_book"
	pathCandles     = "/api/v2/k"
)

// Operation parameter keys accepted by BuildRequest.
const (
	ParamMarket    = "market"
	ParamSide      = "side"
	ParamOrdType   = "ord_type"
	ParamVolume    = "volume"
	ParamPrice     = "price"
	ParamID        = "id"
	ParamLimit     = "limit"
	ParamPeriod    = "period"
	ParamTimestamp = "timestamp"
)

// Protocol implements core.Protocol for the Peatio API v2. Prices handed to
// BuildRequest are already in the exchange's native currency.
type Protocol struct {
	depthLimit      int
	openOrdersLimit int
	candleLimit     int
}

// NewProtocol creates a Protocol whose default list sizes come from config.
func NewProtocol(config *core.Config) *Protocol {
	return &Protocol{
		depthLimit:      config.DepthLimit,
		openOrdersLimit: config.OpenOrdersLimit,
		candleLimit:     config.CandleLimit,
	}
}

func (p *Protocol) Name() string {
	return Name
}

func (p *Protocol) Version() string {
	return version
}

// SupportedOperations returns the list of operations supported by this protocol.
func (p *Protocol) SupportedOperations() []core.Operation {
	return []core.Operation{
		core.OpGetTicker,
		core.OpGetOrderBook,
		core.OpGetCandles,
		core.OpGetBalances,
		core.OpPlaceOrder,
		core.OpCancelOrder,
		core.OpGetOrder,
		core.OpGetOpenOrders,
	}
}

// BuildRequest constructs the wire request for op. It validates required
// parameters and fills list sizes with the configured defaults.
func (p *Protocol) BuildRequest(op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpGetTicker:
		return p.buildGetTickerRequest(params)
	case core.OpGetOrderBook:
		return p.buildGetOrderBookRequest(params)
	case core.OpGetCandles:
		return p.buildGetCandlesRequest(params)
	case core.OpGetBalances:
		return core.NewRequest(op, http.MethodGet, pathMembersMe).SetRequireAuth(true), nil
	case core.OpPlaceOrder:
		return p.buildPlaceOrderRequest(params)
	case core.OpCancelOrder:
		return p.buildOrderIDRequest(op, http.MethodPost, pathOrderDelete, params)
	case core.OpGetOrder:
		return p.buildOrderIDRequest(op, http.MethodGet, pathOrder, params)
	case core.OpGetOpenOrders:
		return p.buildGetOpenOrdersRequest(params)
	default:
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}
}

func (p *Protocol) buildGetTickerRequest(params core.Params) (*core.Request, error) {
	market, err := getRequiredStringParam(params, ParamMarket)
	if err != nil {
		return nil, err
	}
	return core.NewRequest(core.OpGetTicker, http.MethodGet, pathTickers+market), nil
}

func (p *Protocol) buildGetOrderBookRequest(params core.Params) (*core.Request, error) {
	market, err := getRequiredStringParam(params, ParamMarket)
	if err != nil {
		return nil, err
	}
	limit := int64(getIntParamWithDefault(params, ParamLimit, p.depthLimit))
	return core.NewRequest(core.OpGetOrderBook, http.MethodGet, pathOrderBook).
		SetParam("market", market).
		SetIntParam("asks_limit", limit).
		SetIntParam("bids_limit", limit), nil
}

func (p *Protocol) buildGetCandlesRequest(params core.Params) (*core.Request, error) {
	market, err := getRequiredStringParam(params, ParamMarket)
	if err != nil {
		return nil, err
	}
	period := getIntParamWithDefault(params, ParamPeriod, 1)
	if period < 1 {
		return nil, fmt.Errorf("parameter %s must be at least one minute", ParamPeriod)
	}
	req := core.NewRequest(core.OpGetCandles, http.MethodGet, pathCandles).
		SetParam("market", market).
		SetIntParam("period", int64(period)).
		SetIntParam("limit", int64(getIntParamWithDefault(params, ParamLimit, p.candleLimit)))
	if ts := getIntParamWithDefault(params, ParamTimestamp, 0); ts > 0 {
		req.SetIntParam("timestamp", int64(ts))
	}
	return req, nil
}

func (p *Protocol) buildPlaceOrderRequest(params core.Params) (*core.Request, error) {
	market, err := getRequiredStringParam(params, ParamMarket)
	if err != nil {
		return nil, err
	}
	side, ok := params[ParamSide].(core.OrderSide)
	if !ok {
		return nil, fmt.Errorf("missing required parameter: %s", ParamSide)
	}
	ordType, _ := params[ParamOrdType].(core.OrderType)
	if ordType.IsMargin() {
		return nil, fmt.Errorf("order type %s is not supported", ordType)
	}
	volume, err := getRequiredDecimalParam(params, ParamVolume)
	if err != nil {
		return nil, err
	}

	req := core.NewRequest(core.OpPlaceOrder, http.MethodPost, pathOrders).
		SetRequireAuth(true).
		SetParam("market", market).
		SetParam("side", side.String()).
		SetParam("ord_type", ordType.String()).
		SetDecimalParam("volume", volume)

	if ordType == core.TypeLimit {
		price, err := getRequiredDecimalParam(params, ParamPrice)
		if err != nil {
			return nil, err
		}
		req.SetDecimalParam("price", price)
	}
	return req, nil
}

func (p *Protocol) buildOrderIDRequest(op core.Operation, method, path string, params core.Params) (*core.Request, error) {
	id, err := getRequiredIDParam(params)
	if err != nil {
		return nil, err
	}
	return core.NewRequest(op, method, path).
		SetRequireAuth(true).
		SetIntParam("id", id), nil
}

func (p *Protocol) buildGetOpenOrdersRequest(params core.Params) (*core.Request, error) {
	market, err := getRequiredStringParam(params, ParamMarket)
	if err != nil {
		return nil, err
	}
	return core.NewRequest(core.OpGetOpenOrders, http.MethodGet, pathOrders).
		SetRequireAuth(true).
		SetParam("market", market).
		SetIntParam("limit", int64(getIntParamWithDefault(params, ParamLimit, p.openOrdersLimit))), nil
}

func getRequiredStringParam(params core.Params, key string) (string, error) {
	val, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string", key)
	}

	if str == "" {
		return "", fmt.Errorf("parameter %s cannot be empty", key)
	}

	return str, nil
}

func getRequiredDecimalParam(params core.Params, key string) (*apd.Decimal, error) {
	switch v := params[key].(type) {
	case apd.Decimal:
		return &v, nil
	case *apd.Decimal:
		if v != nil {
			return v, nil
		}
	case string:
		d, err := core.ParseDecimal(v)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}
	return nil, fmt.Errorf("missing required parameter: %s", key)
}

func getRequiredIDParam(params core.Params) (int64, error) {
	switch v := params[ParamID].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s must be an integer: %w", ParamID, err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("missing required parameter: %s", ParamID)
}

func getIntParamWithDefault(params core.Params, key string, def int) int {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return def
}
