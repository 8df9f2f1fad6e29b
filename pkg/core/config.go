package core

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables read by CredentialsFromEnv.
const (
	EnvAccessKey = "PEATIO_ACCESS_KEY"
	EnvSecretKey = "PEATIO_SECRET_KEY"
)

// Credentials holds the API keys of one exchange account. They are owned by the
// caller and passed into every authenticated call; the client never mutates them.
type Credentials struct {
	// AccessKey is the public API key identifier.
	AccessKey string `json:"access_key" yaml:"access_key"`
	// SecretKey is the private API key used for signing requests.
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	// Enabled is false for accounts switched off by the operator.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// NewCredentials returns enabled credentials.
func NewCredentials(accessKey, secretKey string) *Credentials {
	return &Credentials{AccessKey: accessKey, SecretKey: secretKey, Enabled: true}
}

// CredentialsFromEnv reads credentials from PEATIO_ACCESS_KEY and PEATIO_SECRET_KEY.
func CredentialsFromEnv() (*Credentials, error) {
	creds := NewCredentials(os.Getenv(EnvAccessKey), os.Getenv(EnvSecretKey))
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// Validate reports missing keys.
func (c *Credentials) Validate() error {
	if c == nil {
		return ErrNoCredentials
	}
	if c.AccessKey == "" {
		return errors.New("access key is empty")
	}
	if c.SecretKey == "" {
		return errors.New("secret key is empty")
	}
	return nil
}

// String masks both keys.
func (c *Credentials) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("access=%s secret=%s enabled=%t", maskKey(c.AccessKey), maskKey(c.SecretKey), c.Enabled)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Config contains all configuration options for a Peatio client.
type Config struct {
	Exchange string `json:"exchange" yaml:"exchange" validate:"required"`
	BaseURL  string `json:"base_url" yaml:"base_url" validate:"required,url"`

	// NativeCurrency is the quote currency the exchange prices in.
	NativeCurrency Currency `json:"native_currency" yaml:"native_currency" validate:"required"`
	// CanonicalCurrency is the currency prices are reported in to callers.
	CanonicalCurrency Currency `json:"canonical_currency" yaml:"canonical_currency" validate:"required"`

	// TradeTimeout bounds authenticated calls.
	TradeTimeout time.Duration `json:"trade_timeout" yaml:"trade_timeout" validate:"min=1ms"`
	// MarketTimeout bounds public market-data reads.
	MarketTimeout time.Duration `json:"market_timeout" yaml:"market_timeout" validate:"min=1ms"`

	// MinInterval is the gap kept between the end of one request and the start of the
	// next on the same account.
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval" validate:"min=0"`

	RetryAttempts int           `json:"retry_attempts" yaml:"retry_attempts" validate:"min=1"`
	RetryBackoff  time.Duration `json:"retry_backoff" yaml:"retry_backoff" validate:"min=0"`

	PublicRateLimitRequests int           `json:"public_rate_limit_requests" yaml:"public_rate_limit_requests" validate:"min=1"`
	PublicRateLimitPeriod   time.Duration `json:"public_rate_limit_period" yaml:"public_rate_limit_period" validate:"min=1ms"`

	DepthLimit      int `json:"depth_limit" yaml:"depth_limit" validate:"min=1,max=1000"`
	OpenOrdersLimit int `json:"open_orders_limit" yaml:"open_orders_limit" validate:"min=1,max=1000"`
	CandleLimit     int `json:"candle_limit" yaml:"candle_limit" validate:"min=1,max=10000"`

	// Circuit breaker over transport failures, shared by all calls of one client.
	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled" yaml:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold" yaml:"circuit_breaker_fail_threshold" validate:"min=0"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold" yaml:"circuit_breaker_success_threshold" validate:"min=0"`
	CircuitBreakerCooldown         time.Duration `json:"circuit_breaker_cooldown" yaml:"circuit_breaker_cooldown" validate:"min=0"`

	LogLevel string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with the exchange's production defaults:
// 15s trade timeout, 5s market timeout, 1s per-account interval, one retry after 3s,
// 100 levels/orders/candles, CNY native and USD canonical currency.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		Exchange:          "peatio",
		BaseURL:           baseURL,
		NativeCurrency:    CNY,
		CanonicalCurrency: USD,

		TradeTimeout:  15 * time.Second,
		MarketTimeout: 5 * time.Second,
		MinInterval:   time.Second,

		RetryAttempts: 2,
		RetryBackoff:  3 * time.Second,

		PublicRateLimitRequests: 60,
		PublicRateLimitPeriod:   time.Minute,

		DepthLimit:      100,
		OpenOrdersLimit: 100,
		CandleLimit:     100,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerCooldown:         30 * time.Second,

		LogLevel: "info",
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.RetryAttempts > 1 && c.RetryBackoff >= c.MarketTimeout*time.Duration(c.RetryAttempts) {
		return errors.New("retry backoff must be shorter than the combined market timeout")
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 || c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("circuit breaker thresholds must be positive")
		}
		if c.CircuitBreakerCooldown <= 0 {
			return errors.New("circuit breaker cooldown must be positive")
		}
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.NativeCurrency = NewCurrency(string(cfg.NativeCurrency))
	cfg.CanonicalCurrency = NewCurrency(string(cfg.CanonicalCurrency))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// WithTimeouts sets the trade and market timeouts and returns the config for chaining.
func (c *Config) WithTimeouts(trade, market time.Duration) *Config {
	c.TradeTimeout = trade
	c.MarketTimeout = market
	return c
}

// WithMinInterval sets the per-account request interval and returns the config for chaining.
func (c *Config) WithMinInterval(d time.Duration) *Config {
	c.MinInterval = d
	return c
}

// WithRetry sets the public-read retry policy and returns the config for chaining.
func (c *Config) WithRetry(attempts int, backoff time.Duration) *Config {
	c.RetryAttempts = attempts
	c.RetryBackoff = backoff
	return c
}

// WithRateLimit sets the public-read token bucket and returns the config for chaining.
func (c *Config) WithRateLimit(requests int, period time.Duration) *Config {
	c.PublicRateLimitRequests = requests
	c.PublicRateLimitPeriod = period
	return c
}

// WithCircuitBreaker enables the breaker with the given thresholds and cooldown and
// returns the config for chaining. A zero failThreshold disables it.
func (c *Config) WithCircuitBreaker(failThreshold, successThreshold int, cooldown time.Duration) *Config {
	c.CircuitBreakerEnabled = failThreshold > 0
	c.CircuitBreakerFailThreshold = failThreshold
	c.CircuitBreakerSuccessThreshold = successThreshold
	c.CircuitBreakerCooldown = cooldown
	return c
}

// WithCurrencies sets the native and canonical currencies and returns the config for chaining.
func (c *Config) WithCurrencies(native, canonical Currency) *Config {
	c.NativeCurrency = native
	c.CanonicalCurrency = canonical
	return c
}
