package core

import "errors"

// ErrorCode represents an exchange-specific error identifier.
// Error codes provide a stable, machine-readable way to identify specific error conditions.
type ErrorCode string

// Error code constants. Codes raised by the exchange itself keep the exchange's numeric
// code as a string; these are the client-side ones.
const (
	// ErrCodeNetwork indicates a network connectivity failure.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"
	// ErrCodeTimeout indicates the request exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimit indicates the rate limit was exceeded.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT"
	// ErrCodeAuth indicates authentication or authorization failure.
	ErrCodeAuth ErrorCode = "AUTH_ERROR"
	// ErrCodeBadRequest indicates invalid request parameters.
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeServerError indicates a server-side error occurred.
	ErrCodeServerError ErrorCode = "SERVER_ERROR"
	// ErrCodeInvalidSymbol indicates the trading pair is not recognized.
	ErrCodeInvalidSymbol ErrorCode = "INVALID_SYMBOL"

	// ErrCodeParse indicates the response body could not be decoded.
	ErrCodeParse ErrorCode = "PARSE_ERROR"
	// ErrCodeOutcomeUnknown indicates a write request timed out after it was sent.
	ErrCodeOutcomeUnknown ErrorCode = "OUTCOME_UNKNOWN"
	// ErrCodeCircuitOpen indicates the request was not sent because the circuit breaker is open.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// Configuration errors
	ErrCodeInvalidConfig   ErrorCode = "INVALID_CONFIG"
	ErrCodeAccountDisabled ErrorCode = "ACCOUNT_DISABLED"
	ErrCodeNoCredentials   ErrorCode = "NO_CREDENTIALS"

	// Client state errors
	ErrCodeClientClosed ErrorCode = "CLIENT_CLOSED"

	// Unsupported operation
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED_METHOD"
)

// IsErrorCode checks if the error matches the specified error code.
// It extracts the exchange error and compares its code field against the provided ErrorCode.
func IsErrorCode(err error, code ErrorCode) bool {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return ErrorCode(exErr.Code) == code
	}
	return false
}
