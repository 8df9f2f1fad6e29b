package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of an exchange error.
type ErrorType int

// Error type constants categorize errors for proper handling and retry logic.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a network connectivity issue.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeRateLimit indicates rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeAuthentication indicates invalid or expired credentials.
	ErrorTypeAuthentication
	// ErrorTypeBadRequest indicates invalid request parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates the requested resource does not exist.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a server-side error.
	ErrorTypeServerError
	// ErrorTypeInsufficientFunds indicates account lacks required balance.
	ErrorTypeInsufficientFunds
	// ErrorTypeInvalidOrder indicates the order violates exchange rules.
	ErrorTypeInvalidOrder
	// ErrorTypeParse indicates the response body was not the expected JSON.
	ErrorTypeParse
	// ErrorTypeUnsupported indicates the operation is not available for the account.
	ErrorTypeUnsupported
	// ErrorTypeConfiguration indicates disabled, missing or malformed credentials or settings.
	ErrorTypeConfiguration
	// ErrorTypeOutcomeUnknown indicates a write request was sent but no answer arrived;
	// the order may or may not exist on the exchange.
	ErrorTypeOutcomeUnknown
	// ErrorTypeExchange indicates the exchange reported an error without a code
	// the client recognises.
	ErrorTypeExchange
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"TIMEOUT",
		"RATE_LIMIT",
		"AUTHENTICATION",
		"BAD_REQUEST",
		"NOT_FOUND",
		"SERVER_ERROR",
		"INSUFFICIENT_FUNDS",
		"INVALID_ORDER",
		"PARSE",
		"UNSUPPORTED",
		"CONFIGURATION",
		"OUTCOME_UNKNOWN",
		"EXCHANGE",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrNoCredentials is returned when an authenticated call has no credentials.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrAccountDisabled is returned when an authenticated call uses a disabled account.
	ErrAccountDisabled = errors.New("account is disabled")
)

// ExchangeError represents a structured error returned from an exchange or raised by
// the client before a request was sent.
type ExchangeError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code from the response, 0 if none was received.
	StatusCode int `json:"status_code"`
	// Code is the exchange-specific (or client) error code.
	Code string `json:"code"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// RawError contains the original error response for debugging.
	RawError any `json:"raw_error,omitempty"`
	// Exchange identifies which exchange returned this error.
	Exchange string `json:"exchange"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface for ExchangeError.
// It returns a formatted string with exchange name, error type, status code, and message.
func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Exchange, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Exchange, e.Type, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// WithCode sets the error code and returns the error for chaining.
func (e *ExchangeError) WithCode(code ErrorCode) *ExchangeError {
	e.Code = string(code)
	return e
}

// WithCause sets the underlying cause and returns the error for chaining.
func (e *ExchangeError) WithCause(err error) *ExchangeError {
	e.Err = err
	return e
}

// NewExchangeError creates a new ExchangeError with the specified details.
// The timestamp is automatically set to the current time.
func NewExchangeError(exchange string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewExchangeErrorWithCode creates a new ExchangeError including an exchange-specific error code.
// The timestamp is automatically set to the current time.
func NewExchangeErrorWithCode(exchange string, errorType ErrorType, statusCode int, code, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewParseError reports a response body that could not be decoded.
func NewParseError(exchange string, statusCode int, err error) *ExchangeError {
	msg := "malformed response body"
	if err != nil {
		msg = err.Error()
	}
	return NewExchangeError(exchange, ErrorTypeParse, statusCode, msg).
		WithCode(ErrCodeParse).
		WithCause(err)
}

// NewConfigurationError reports a problem that prevents a request from being built.
func NewConfigurationError(exchange string, err error) *ExchangeError {
	return NewExchangeError(exchange, ErrorTypeConfiguration, 0, err.Error()).
		WithCode(ErrCodeInvalidConfig).
		WithCause(err)
}

// NewUnsupportedError reports an operation the account or exchange cannot perform.
func NewUnsupportedError(exchange, message string) *ExchangeError {
	return NewExchangeError(exchange, ErrorTypeUnsupported, 0, message).
		WithCode(ErrCodeUnsupported)
}

// ErrorTypeOf returns the ErrorType of err, or ErrorTypeUnknown if err is not an ExchangeError.
func ErrorTypeOf(err error) ErrorType {
	var e *ExchangeError
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

func isType(err error, types ...ErrorType) bool {
	var e *ExchangeError
	if !errors.As(err, &e) {
		return false
	}
	for _, t := range types {
		if e.Type == t {
			return true
		}
	}
	return false
}

// IsNetworkError returns true if the error is a network connectivity issue.
// Network errors are typically retryable.
func IsNetworkError(err error) bool {
	return isType(err, ErrorTypeNetwork)
}

// IsTimeoutError returns true if the error is a timeout.
// Timeout errors are typically retryable with a longer deadline.
func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

// IsRateLimitError returns true if the error is a rate limit violation.
// Rate limit errors should be retried after a delay.
func IsRateLimitError(err error) bool {
	return isType(err, ErrorTypeRateLimit)
}

// IsAuthenticationError returns true if the error is an authentication failure.
// Authentication errors require credential validation and are not retryable.
func IsAuthenticationError(err error) bool {
	return isType(err, ErrorTypeAuthentication)
}

// IsParseError returns true if the response body could not be decoded.
func IsParseError(err error) bool {
	return isType(err, ErrorTypeParse)
}

// IsConfigurationError returns true if the request was rejected before sending
// because of credentials or settings.
func IsConfigurationError(err error) bool {
	return isType(err, ErrorTypeConfiguration)
}

// IsUnsupportedError returns true if the operation is not available.
func IsUnsupportedError(err error) bool {
	return isType(err, ErrorTypeUnsupported)
}

// IsOutcomeUnknown returns true if a write request may or may not have been applied.
// Callers must reconcile (e.g. list open orders) before resubmitting.
func IsOutcomeUnknown(err error) bool {
	return isType(err, ErrorTypeOutcomeUnknown)
}

// IsExchangeRejection returns true if the exchange answered with a domain error.
func IsExchangeRejection(err error) bool {
	return isType(err,
		ErrorTypeRateLimit,
		ErrorTypeAuthentication,
		ErrorTypeBadRequest,
		ErrorTypeNotFound,
		ErrorTypeServerError,
		ErrorTypeInsufficientFunds,
		ErrorTypeInvalidOrder,
		ErrorTypeExchange,
	)
}

// IsRetryable returns true for failures a read-only request may safely repeat.
func IsRetryable(err error) bool {
	return isType(err, ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeParse)
}

// IsTerminalError returns true if the error indicates a terminal condition.
// Terminal errors should not be retried as they will not succeed.
func IsTerminalError(err error) bool {
	return isType(err,
		ErrorTypeInsufficientFunds,
		ErrorTypeInvalidOrder,
		ErrorTypeNotFound,
		ErrorTypeUnsupported,
		ErrorTypeConfiguration,
	)
}
