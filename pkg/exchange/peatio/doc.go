// Package peatio implements exchange.TradingClient for the Peatio API v2.
//
// Peatio prices in a single native fiat currency (CNY on the public deployment).
// The client quotes prices to callers in a canonical currency and converts both
// ways with a fiat.Converter: order prices are converted to native before they
// are sent, and every price in a response is converted back. Pairs quoted in USD
// are traded on the matching native market, so BTC/USD maps to "btccny".
//
// Authenticated calls are signed with the account's secret key, serialised per
// access key with a minimum gap between requests, and never retried. Public
// market-data reads go through a token bucket and are retried once.
//
// Peatio API Documentation: https://github.com/peatio/peatio/blob/master/docs/api/rest.md
package peatio
