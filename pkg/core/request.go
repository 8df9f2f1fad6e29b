package core

import (
	"maps"
	"net/http"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// Params carries operation inputs from the facade to a Protocol.
type Params map[string]any

// Request is a fully described exchange call. Params are the wire parameters; the
// dispatcher sends them as a query string for GET and as a form body for POST.
type Request struct {
	Operation   Operation         `json:"operation"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Params      map[string]string `json:"params,omitempty"`
	RequireAuth bool              `json:"require_auth"`
	// Retryable marks idempotent public reads that may be repeated once on a
	// parse or network failure.
	Retryable bool `json:"retryable"`
	// Write marks requests that change exchange state. A timeout on a write
	// surfaces as an outcome-unknown error.
	Write bool `json:"write"`
}

// NewRequest creates a Request for op with an empty parameter set.
func NewRequest(op Operation, method, path string) *Request {
	return &Request{
		Operation: op,
		Method:    method,
		Path:      path,
		Params:    make(map[string]string),
		Retryable: op.IsPublic() && method == http.MethodGet,
		Write:     op.IsWrite(),
	}
}

func (r *Request) SetParam(key, value string) *Request {
	if r.Params == nil {
		r.Params = make(map[string]string)
	}
	r.Params[key] = value
	return r
}

func (r *Request) SetIntParam(key string, value int64) *Request {
	return r.SetParam(key, strconv.FormatInt(value, 10))
}

func (r *Request) SetDecimalParam(key string, value *apd.Decimal) *Request {
	return r.SetParam(key, value.Text('f'))
}

func (r *Request) SetParams(params map[string]string) *Request {
	if r.Params == nil {
		r.Params = make(map[string]string)
	}
	maps.Copy(r.Params, params)
	return r
}

func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	return r
}

func (r *Request) SetRetryable(retryable bool) *Request {
	r.Retryable = retryable
	return r
}

// CloneParams returns a copy of the wire parameters, safe to extend with
// authentication fields without touching the Request.
func (r *Request) CloneParams() map[string]string {
	out := make(map[string]string, len(r.Params)+3)
	maps.Copy(out, r.Params)
	return out
}
