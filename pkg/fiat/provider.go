package fiat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	internalhttp "peatio/internal/http"
	"peatio/pkg/core"
)

const (
	pathLatest  = "/latest"
	pathHistory = "/history"
)

// Provider loads rates from an exchangeratesapi.io style service. Every call
// returns a fresh Table; nothing is cached between calls.
type Provider struct {
	client *internalhttp.Client
	logger zerolog.Logger
}

type ProviderOption func(*Provider)

// WithLogger sets the provider's logger.
func WithLogger(logger zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Provider for the service at baseURL.
func NewProvider(baseURL string, opts ...ProviderOption) (*Provider, error) {
	p := &Provider{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	client, err := internalhttp.NewClient(&internalhttp.Config{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}, internalhttp.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("forex client: %w", err)
	}
	p.client = client
	return p, nil
}

func (p *Provider) Close() error {
	return p.client.Close()
}

type latestRates struct {
	Base  string                 `json:"base"`
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

type historicalRates struct {
	Base  string                            `json:"base"`
	Rates map[string]map[string]json.Number `json:"rates"`
}

// Latest returns a Table holding only the current rate.
func (p *Provider) Latest(ctx context.Context, native, canonical core.Currency) (*Table, error) {
	if native == canonical {
		return Identity(native), nil
	}
	current, err := p.latest(ctx, native, canonical)
	if err != nil {
		return nil, err
	}
	return NewTable(native, canonical, current)
}

// History returns a Table with the current rate and one point per day between
// start and end.
func (p *Provider) History(ctx context.Context, native, canonical core.Currency, start, end time.Time) (*Table, error) {
	if native == canonical {
		return Identity(native), nil
	}
	if end.Before(start) {
		return nil, fmt.Errorf("history: end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	current, err := p.latest(ctx, native, canonical)
	if err != nil {
		return nil, err
	}

	var body historicalRates
	if err := p.get(ctx, pathHistory, map[string]string{
		"base":     canonical.Upper(),
		"symbols":  native.Upper(),
		"start_at": start.Format(time.DateOnly),
		"end_at":   end.Format(time.DateOnly),
	}, &body); err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(body.Rates))
	for day, rates := range body.Rates {
		at, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return nil, fmt.Errorf("history: date %q: %w", day, err)
		}
		raw, ok := lookup(rates, native)
		if !ok {
			continue
		}
		rate, err := core.ParseDecimal(raw.String())
		if err != nil {
			return nil, fmt.Errorf("history: %s rate: %w", day, err)
		}
		points = append(points, Point{At: at, Rate: rate})
	}
	p.logger.Debug().
		Str("pair", canonical.Upper()+native.Upper()).
		Int("points", len(points)).
		Msg("loaded historical rates")
	return NewTable(native, canonical, current, points...)
}

func (p *Provider) latest(ctx context.Context, native, canonical core.Currency) (apd.Decimal, error) {
	var body latestRates
	if err := p.get(ctx, pathLatest, map[string]string{
		"base":    canonical.Upper(),
		"symbols": native.Upper(),
	}, &body); err != nil {
		return apd.Decimal{}, err
	}
	raw, ok := lookup(body.Rates, native)
	if !ok {
		return apd.Decimal{}, fmt.Errorf("latest: no %s rate for base %s", native.Upper(), canonical.Upper())
	}
	rate, err := core.ParseDecimal(raw.String())
	if err != nil {
		return apd.Decimal{}, fmt.Errorf("latest: %w", err)
	}
	return rate, nil
}

func (p *Provider) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := p.client.Get(ctx, path, params)
	if err != nil {
		return fmt.Errorf("forex %s: %w", path, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("forex %s: %s", path, resp.Status())
	}
	if err := sonic.Unmarshal(resp.Bytes(), out); err != nil {
		return fmt.Errorf("forex %s: decode: %w", path, err)
	}
	return nil
}

func lookup(rates map[string]json.Number, c core.Currency) (json.Number, bool) {
	for k, v := range rates {
		if strings.EqualFold(k, string(c)) {
			return v, true
		}
	}
	return "", false
}
