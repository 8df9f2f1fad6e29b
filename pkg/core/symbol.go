package core

import (
	"fmt"
	"strings"
)

// Currency is a lowercase currency code such as "btc", "cny" or "usd".
type Currency string

// Well-known currencies.
const (
	BTC Currency = "btc"
	ETH Currency = "eth"
	CNY Currency = "cny"
	USD Currency = "usd"
)

// NewCurrency normalises a currency code.
func NewCurrency(code string) Currency {
	return Currency(strings.ToLower(strings.TrimSpace(code)))
}

// String returns the currency code.
func (c Currency) String() string {
	return string(c)
}

// Upper returns the uppercase currency code for display.
func (c Currency) Upper() string {
	return strings.ToUpper(string(c))
}

// IsUSD reports whether the currency is the US dollar.
func (c Currency) IsUSD() bool {
	return c == USD
}

// SymbolPair is a base/quote trading pair such as BTC/USD.
type SymbolPair struct {
	Base  Currency `json:"base"`
	Quote Currency `json:"quote"`
}

// NewSymbolPair creates a SymbolPair from two currency codes.
func NewSymbolPair(base, quote string) SymbolPair {
	return SymbolPair{Base: NewCurrency(base), Quote: NewCurrency(quote)}
}

// ParseSymbolPair parses "BTC/USD" or "btc-usd" style identifiers.
func ParseSymbolPair(s string) (SymbolPair, error) {
	for _, sep := range []string{"/", "-", "_"} {
		if base, quote, ok := strings.Cut(s, sep); ok && base != "" && quote != "" {
			return NewSymbolPair(base, quote), nil
		}
	}
	return SymbolPair{}, fmt.Errorf("invalid symbol pair %q", s)
}

// String returns the pair as "BTC/USD".
func (p SymbolPair) String() string {
	return p.Base.Upper() + "/" + p.Quote.Upper()
}

// MarketID returns the exchange market identifier for the pair on an exchange whose
// prices are denominated in native. A USD quote is translated to native; any quote
// that is neither USD nor native is rejected.
func (p SymbolPair) MarketID(native Currency) (string, error) {
	if p.Base == "" {
		return "", NewExchangeError("", ErrorTypeBadRequest, 0, "symbol pair has no base currency").
			WithCode(ErrCodeInvalidSymbol)
	}
	switch {
	case p.Quote.IsUSD(), p.Quote == native:
		return string(p.Base) + string(native), nil
	default:
		return "", NewExchangeError("", ErrorTypeBadRequest, 0,
			fmt.Sprintf("symbol pair %s is neither USD nor %s quoted", p, native.Upper())).
			WithCode(ErrCodeInvalidSymbol)
	}
}
