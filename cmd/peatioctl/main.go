// Command peatioctl reads market data from a Peatio exchange and manages orders
// of the account whose keys are in PEATIO_ACCESS_KEY and PEATIO_SECRET_KEY.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"peatio/pkg/core"
	"peatio/pkg/exchange/peatio"
	"peatio/pkg/fiat"
)

var (
	configPath  string
	baseURL     string
	envFile     string
	logLevel    string
	fixedRate   string
	forexURL    string
	metricsAddr string
	jsonOut     bool
)

func main() {
	app := cli.NewApp()
	app.Name = "peatioctl"
	app.Usage = "command line client for the Peatio exchange API"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to a YAML config file",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "url",
			Value:       peatio.ProductionURL,
			Usage:       "exchange base URL, overrides the config file",
			Destination: &baseURL,
		},
		&cli.StringFlag{
			Name:        "env-file",
			Value:       ".env",
			Usage:       "file with PEATIO_ACCESS_KEY and PEATIO_SECRET_KEY",
			Destination: &envFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info, warn or error; overrides the config file",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "rate",
			Usage:       "fixed native units per canonical unit, e.g. 6.8 CNY per USD",
			Destination: &fixedRate,
		},
		&cli.StringFlag{
			Name:        "forex-url",
			Usage:       "exchange-rates API used to load the conversion rate when --rate is not set",
			Destination: &forexURL,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "serve Prometheus metrics on this address while the command runs",
			Destination: &metricsAddr,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print JSON instead of tables",
			Destination: &jsonOut,
		},
	}
	app.Commands = []*cli.Command{
		tickerCommand,
		depthCommand,
		candlesCommand,
		balancesCommand,
		ordersCommand,
		orderCommand,
		buyCommand,
		sellCommand,
		cancelCommand,
		feesCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvFile loads environment variables from envFile if it exists.
func loadEnvFile() error {
	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(envFile)
}

func loadConfig(c *cli.Context) (*core.Config, error) {
	var (
		config *core.Config
		err    error
	)
	if configPath != "" {
		config, err = core.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		config = core.DefaultConfig(baseURL)
	}
	if c.IsSet("url") || config.BaseURL == "" {
		config.BaseURL = baseURL
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func newConverter(ctx context.Context, config *core.Config, logger zerolog.Logger) (fiat.Converter, error) {
	if config.NativeCurrency == config.CanonicalCurrency {
		return fiat.Identity(config.NativeCurrency), nil
	}
	if fixedRate != "" {
		rate, err := core.ParseDecimal(fixedRate)
		if err != nil {
			return nil, fmt.Errorf("--rate: %w", err)
		}
		return fiat.NewTable(config.NativeCurrency, config.CanonicalCurrency, rate)
	}
	if forexURL == "" {
		return nil, fmt.Errorf("pricing %s in %s needs --rate or --forex-url",
			config.NativeCurrency.Upper(), config.CanonicalCurrency.Upper())
	}

	provider, err := fiat.NewProvider(forexURL, fiat.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer provider.Close()
	return provider.Latest(ctx, config.NativeCurrency, config.CanonicalCurrency)
}

// newClient builds a client from the global flags. The returned cleanup closes the
// client and stops the metrics server.
func newClient(c *cli.Context) (*peatio.Client, func(), error) {
	if err := loadEnvFile(); err != nil {
		return nil, nil, fmt.Errorf("load env file: %w", err)
	}
	config, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(config.LogLevel)

	converter, err := newConverter(c.Context, config, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []peatio.Option{
		peatio.WithLogger(logger),
		peatio.WithConverter(converter),
	}
	if metricsAddr != "" {
		opts = append(opts, peatio.WithMetrics(nil))
	}
	client, err := peatio.New(config, opts...)
	if err != nil {
		return nil, nil, err
	}

	var server *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", client.MetricsHandler())
		server = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	cleanup := func() {
		if server != nil {
			_ = server.Close()
		}
		if err := client.Close(); err != nil {
			logger.Warn().Err(err).Msg("close client")
		}
	}
	return client, cleanup, nil
}

func credentials() (*core.Credentials, error) {
	creds, err := core.CredentialsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	return creds, nil
}

func argPair(c *cli.Context, n int) (core.SymbolPair, error) {
	s := c.Args().Get(n)
	if s == "" {
		return core.SymbolPair{}, errors.New("missing pair, e.g. BTC/USD")
	}
	return core.ParseSymbolPair(s)
}

func argDecimal(c *cli.Context, n int, name string) (apd.Decimal, error) {
	s := c.Args().Get(n)
	if s == "" {
		return apd.Decimal{}, fmt.Errorf("missing %s", name)
	}
	d, err := core.ParseDecimal(s)
	if err != nil {
		return apd.Decimal{}, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
