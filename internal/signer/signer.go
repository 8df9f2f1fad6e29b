// Package signer produces Peatio API v2 request signatures.
//
// The signed payload is "VERB|URI|QUERY" where QUERY is every parameter except
// the signature itself, sorted by key and joined as k=v pairs with "&". The
// signature is the lowercase hex HMAC-SHA256 of that payload keyed with the
// account's secret key.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
)

// ParamSignature is the parameter that carries the signature.
const ParamSignature = "signature"

// ErrEmptySecret is returned when signing without a secret key.
var ErrEmptySecret = errors.New("signer: secret key is empty")

var excluded = map[string]struct{}{
	ParamSignature:   {},
	"canonical_verb": {},
	"canonical_uri":  {},
}

// Canonical builds the string that is signed for a request.
func Canonical(verb, uri string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if _, skip := excluded[k]; skip {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(strings.ToUpper(verb))
	b.WriteByte('|')
	b.WriteString(uri)
	b.WriteByte('|')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Sign returns the 64-character lowercase hex signature of the request.
func Sign(verb, uri string, params map[string]string, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Canonical(verb, uri, params)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
