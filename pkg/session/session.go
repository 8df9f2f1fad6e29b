// Package session dispatches exchange requests: it authenticates, throttles,
// signs, sends, retries public reads and turns error envelopes into typed errors.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"peatio/internal/circuitbreaker"
	internalhttp "peatio/internal/http"
	"peatio/internal/metrics"
	"peatio/internal/nonce"
	"peatio/internal/ratelimit"
	"peatio/internal/retry"
	"peatio/internal/signer"
	"peatio/pkg/core"
)

// Authentication parameters added to every signed request.
const (
	ParamAccessKey = "access_key"
	ParamTonce     = "tonce"
)

// State represents the lifecycle state of a Session.
type State int

const (
	// StateActive indicates a session that is ready to process requests.
	StateActive State = iota
	// StateClosed indicates a session that has been shut down and can no longer be used.
	StateClosed
)

// String returns the string representation of the State.
func (s State) String() string {
	return [...]string{"ACTIVE", "CLOSED"}[s]
}

// Classifier maps an exchange's numeric error code to an ErrorType.
type Classifier func(code int) core.ErrorType

// Session sends requests to one exchange. It is safe for concurrent use; requests
// of the same account are serialised by that account's Interval.
type Session struct {
	mu        sync.RWMutex
	config    *core.Config
	client    *internalhttp.Client
	accounts  *ratelimit.Accounts
	public    *ratelimit.RateLimiter
	retry     retry.Policy
	breaker   *circuitbreaker.Breaker
	nonce     *nonce.Nonce
	classify  Classifier
	metrics   *metrics.Recorder
	logger    zerolog.Logger
	state     State
	createdAt time.Time
	lastUsed  time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger for request and retry lines.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics records request outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Session) {
		s.metrics = r
	}
}

// WithClassifier sets the exchange error-code table.
func WithClassifier(c Classifier) Option {
	return func(s *Session) {
		s.classify = c
	}
}

// WithHTTPClient replaces the HTTP client built from the config.
func WithHTTPClient(c *internalhttp.Client) Option {
	return func(s *Session) {
		s.client = c
	}
}

// New creates a Session with the provided configuration.
// The configuration is validated before the session is created.
func New(config *core.Config, opts ...Option) (*Session, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	s := &Session{
		config:    config,
		accounts:  ratelimit.NewAccounts(config.MinInterval),
		public:    ratelimit.New(config.PublicRateLimitRequests, config.PublicRateLimitPeriod),
		nonce:     nonce.New(),
		classify:  func(int) core.ErrorType { return core.ErrorTypeUnknown },
		logger:    zerolog.Nop(),
		state:     StateActive,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.retry = retry.Default(core.IsRetryable)
	s.retry.MaxAttempts = config.RetryAttempts
	s.retry.Backoff = config.RetryBackoff

	if config.CircuitBreakerEnabled {
		s.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Cooldown:         config.CircuitBreakerCooldown,
		})
	}

	if s.client == nil {
		client, err := internalhttp.NewClient(&internalhttp.Config{
			BaseURL:   config.BaseURL,
			UserAgent: "peatio-go",
		}, internalhttp.WithLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("http client: %w", err)
		}
		s.client = client
	}
	return s, nil
}

// Decoder turns a response body into the caller's result. Errors that are not an
// *core.ExchangeError are reported as parse errors.
type Decoder func(body []byte) error

// Do executes req and returns the raw response body.
//
// Authenticated requests need enabled credentials; they are signed, serialised per
// account and never retried. Public reads marked Retryable are retried under the
// configured policy on parse, network and timeout failures.
func (s *Session) Do(ctx context.Context, req *core.Request, creds *core.Credentials) ([]byte, error) {
	var body []byte
	err := s.DoDecode(ctx, req, creds, func(b []byte) error {
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DoDecode executes req like Do and hands the body to decode. For retryable public
// reads decode runs inside the retry loop, so a body of the wrong shape is fetched
// again just like one that is not JSON at all.
func (s *Session) DoDecode(ctx context.Context, req *core.Request, creds *core.Credentials, decode Decoder) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return core.NewExchangeError(s.config.Exchange, core.ErrorTypeConfiguration, 0, core.ErrClientClosed.Error()).
			WithCode(core.ErrCodeClientClosed).
			WithCause(core.ErrClientClosed)
	}
	s.lastUsed = time.Now()
	s.mu.Unlock()

	if req.RequireAuth {
		if err := s.checkCredentials(creds); err != nil {
			s.metrics.RecordError(core.ErrorTypeOf(err).String())
			return err
		}
	}

	policy := retry.Once()
	if req.Retryable && !req.RequireAuth {
		policy = s.retry
		policy.OnRetry = func(next int, err error) {
			s.metrics.RecordRetry(req.Operation.String())
			s.logger.Warn().
				Err(err).
				Str("operation", req.Operation.String()).
				Int("attempt", next).
				Dur("backoff", policy.Backoff).
				Msg("retrying request")
		}
	}

	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		body, err := s.send(ctx, req, creds)
		if err != nil {
			return err
		}
		return s.decode(decode, body)
	})
	if err != nil {
		s.metrics.RecordError(core.ErrorTypeOf(err).String())
		return err
	}
	return nil
}

func (s *Session) decode(decode Decoder, body []byte) error {
	if decode == nil {
		return nil
	}
	err := decode(body)
	if err == nil {
		return nil
	}
	var exErr *core.ExchangeError
	if errors.As(err, &exErr) {
		return err
	}
	return core.NewParseError(s.config.Exchange, 0, err)
}

func (s *Session) checkCredentials(creds *core.Credentials) error {
	if creds == nil {
		return core.NewConfigurationError(s.config.Exchange, core.ErrNoCredentials).
			WithCode(core.ErrCodeNoCredentials)
	}
	if !creds.Enabled {
		return core.NewConfigurationError(s.config.Exchange, core.ErrAccountDisabled).
			WithCode(core.ErrCodeAccountDisabled)
	}
	if err := creds.Validate(); err != nil {
		return core.NewConfigurationError(s.config.Exchange, err).
			WithCode(core.ErrCodeNoCredentials)
	}
	return nil
}

func (s *Session) send(ctx context.Context, req *core.Request, creds *core.Credentials) ([]byte, error) {
	waitStart := time.Now()
	timeout := s.config.MarketTimeout
	if req.RequireAuth {
		timeout = s.config.TradeTimeout
		release, err := s.accounts.For(creds.AccessKey).Acquire(ctx)
		if err != nil {
			return nil, s.contextError(err, false)
		}
		defer release()
		s.metrics.ObserveWait("account", time.Since(waitStart))
	} else {
		if err := s.public.Wait(ctx, req.Params["market"]); err != nil {
			return nil, s.contextError(err, false)
		}
		s.metrics.ObserveWait("public", time.Since(waitStart))
	}

	params := req.CloneParams()
	if req.RequireAuth {
		params[ParamAccessKey] = creds.AccessKey
		params[ParamTonce] = s.nonce.String()
		sig, err := signer.Sign(req.Method, req.Path, params, creds.SecretKey)
		if err != nil {
			return nil, core.NewConfigurationError(s.config.Exchange, err)
		}
		params[signer.ParamSignature] = sig
	}

	if s.breaker != nil {
		if err := s.breaker.Allow(); err != nil {
			return nil, core.NewExchangeError(s.config.Exchange, core.ErrorTypeNetwork, 0,
				"too many consecutive transport failures; requests suspended").
				WithCode(core.ErrCodeCircuitOpen).
				WithCause(err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Debug().
		Str("operation", req.Operation.String()).
		Str("method", req.Method).
		Str("path", req.Path).
		Interface("params", redact(params)).
		Msg("sending request")

	start := time.Now()
	var (
		resp *resty.Response
		err  error
	)
	switch req.Method {
	case http.MethodGet:
		resp, err = s.client.Get(callCtx, req.Path, params)
	case http.MethodPost:
		resp, err = s.client.PostForm(callCtx, req.Path, params)
	default:
		return nil, core.NewExchangeError(s.config.Exchange, core.ErrorTypeBadRequest, 0,
			fmt.Sprintf("unsupported method: %s", req.Method))
	}
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.ObserveRequest(req.Operation.String(), metrics.OutcomeError, elapsed)
		if ctxErr := callCtx.Err(); ctxErr != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			if ctxErr == nil {
				ctxErr = err
			}
			exErr := s.contextError(ctxErr, req.Write).WithCause(err)
			if ctx.Err() == nil {
				// our own deadline fired, not the caller's
				s.recordBreaker(exErr)
			}
			return nil, exErr
		}
		exErr := core.NewExchangeError(s.config.Exchange, core.ErrorTypeNetwork, 0, err.Error()).
			WithCode(core.ErrCodeNetwork).
			WithCause(err)
		s.recordBreaker(exErr)
		return nil, exErr
	}

	body := resp.Bytes()
	s.logger.Debug().
		Str("operation", req.Operation.String()).
		Int("status", resp.StatusCode()).
		Dur("elapsed", elapsed).
		Int("size", len(body)).
		Msg("received response")

	err = s.checkEnvelope(resp.StatusCode(), body)
	s.recordBreaker(err)
	if err != nil {
		outcome := metrics.OutcomeRejected
		if core.IsParseError(err) {
			outcome = metrics.OutcomeError
		}
		s.metrics.ObserveRequest(req.Operation.String(), outcome, elapsed)
		return nil, err
	}
	s.metrics.ObserveRequest(req.Operation.String(), metrics.OutcomeOK, elapsed)
	return body, nil
}

// recordBreaker feeds the outcome of a sent request to the circuit breaker. Only
// transport failures and 5xx responses count against the exchange.
func (s *Session) recordBreaker(err error) {
	if s.breaker == nil {
		return
	}
	switch core.ErrorTypeOf(err) {
	case core.ErrorTypeNetwork, core.ErrorTypeTimeout, core.ErrorTypeOutcomeUnknown, core.ErrorTypeServerError:
		s.breaker.Record(false)
	default:
		s.breaker.Record(true)
	}
}

// contextError reports a cancelled or expired context. For writes the request may
// already have reached the exchange.
func (s *Session) contextError(err error, write bool) *core.ExchangeError {
	if write {
		return core.NewExchangeError(s.config.Exchange, core.ErrorTypeOutcomeUnknown, 0,
			"no response before deadline; order state unknown, reconcile before retrying").
			WithCode(core.ErrCodeOutcomeUnknown).
			WithCause(err)
	}
	return core.NewExchangeError(s.config.Exchange, core.ErrorTypeTimeout, 0, err.Error()).
		WithCode(core.ErrCodeTimeout).
		WithCause(err)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// checkEnvelope turns an error status, a body carrying a non-null "error" field or
// a non-JSON body into a typed error.
func (s *Session) checkEnvelope(status int, body []byte) error {
	valid := len(body) > 0 && sonic.Valid(body)

	if valid {
		if node, err := sonic.Get(body, "error"); err == nil && node.Exists() && node.TypeSafe() != ast.V_NULL {
			return s.envelopeError(status, node)
		}
	}

	if status >= 400 {
		errType, code := mapStatusCode(status)
		exErr := core.NewExchangeError(s.config.Exchange, errType, status, truncate(body, 256))
		if code != "" {
			exErr.WithCode(code)
		}
		return exErr
	}
	if !valid {
		return core.NewParseError(s.config.Exchange, status, fmt.Errorf("response is not JSON: %q", truncate(body, 64)))
	}
	return nil
}

// envelopeError reports the "error" field as an exchange error. A {code, message}
// object goes through the classifier; anything else keeps its text as message.
func (s *Session) envelopeError(status int, node ast.Node) *core.ExchangeError {
	raw, _ := node.Raw()

	var apiErr apiError
	if node.TypeSafe() == ast.V_OBJECT && sonic.UnmarshalString(raw, &apiErr) == nil && apiErr.Code != 0 {
		exErr := core.NewExchangeErrorWithCode(s.config.Exchange, s.classify(apiErr.Code), status,
			strconv.Itoa(apiErr.Code), apiErr.Message)
		exErr.RawError = raw
		return exErr
	}

	msg := raw
	if text, err := node.String(); err == nil && node.TypeSafe() == ast.V_STRING {
		msg = text
	}
	errType := core.ErrorTypeExchange
	if t, _ := mapStatusCode(status); t != core.ErrorTypeUnknown {
		errType = t
	}
	exErr := core.NewExchangeError(s.config.Exchange, errType, status, msg)
	exErr.RawError = raw
	return exErr
}

func mapStatusCode(statusCode int) (core.ErrorType, core.ErrorCode) {
	switch {
	case statusCode >= 500:
		return core.ErrorTypeServerError, core.ErrCodeServerError
	case statusCode == 429:
		return core.ErrorTypeRateLimit, core.ErrCodeRateLimit
	case statusCode == 401 || statusCode == 403:
		return core.ErrorTypeAuthentication, core.ErrCodeAuth
	case statusCode == 400:
		return core.ErrorTypeBadRequest, core.ErrCodeBadRequest
	case statusCode == 404:
		return core.ErrorTypeNotFound, core.ErrCodeNotFound
	default:
		return core.ErrorTypeUnknown, ""
	}
}

func redact(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == signer.ParamSignature {
			v = "<redacted>"
		}
		out[k] = v
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Close shuts down the session and releases the HTTP client.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	return s.client.Close()
}

// State returns the current lifecycle state of the session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Config returns the configuration used to create the session.
func (s *Session) Config() *core.Config {
	return s.config
}

// CreatedAt returns the timestamp when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastUsed returns the timestamp of the last request executed by the session.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// BreakerMetrics returns a snapshot of the circuit breaker, or false when it is disabled.
func (s *Session) BreakerMetrics() (circuitbreaker.MetricsSnapshot, bool) {
	if s.breaker == nil {
		return circuitbreaker.MetricsSnapshot{}, false
	}
	return s.breaker.Metrics(), true
}

// LimiterMetrics returns snapshots of the per-account and public limiters.
func (s *Session) LimiterMetrics() (accounts, public ratelimit.MetricsSnapshot) {
	return s.accounts.Metrics(), s.public.Metrics()
}
