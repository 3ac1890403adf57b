package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-forecast/internal/logger"
	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/provider"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/writer"
)

// DataMode selects whether the client talks to a provider at all.
type DataMode string

const (
	// DataModeLive fetches from the provider and falls back to synthetic data on failure.
	DataModeLive DataMode = "live"
	// DataModeSynthetic never calls the provider. Used for offline demos.
	DataModeSynthetic DataMode = "synthetic"
)

// ClientConfig holds the configuration for the market data client.
type ClientConfig struct {
	ProviderType provider.ProviderType `validate:"required,oneof=coingecko yahoo binance polygon"`
	Provider     provider.Config
	DataMode     DataMode `validate:"required,oneof=live synthetic"`
	Retry        RetryConfig
	Synthetic    SyntheticConfig
}

// DefaultClientConfig returns a coingecko client in live mode with default retry and synthetic settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ProviderType: provider.ProviderCoinGecko,
		Provider:     provider.Config{},
		DataMode:     DataModeLive,
		Retry:        DefaultRetryConfig(),
		Synthetic:    DefaultSyntheticConfig(),
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.ProviderType == "" {
		c.ProviderType = provider.ProviderCoinGecko
	}

	if c.DataMode == "" {
		c.DataMode = DataModeLive
	}

	c.Retry = c.Retry.WithDefaults()
	c.Synthetic = c.Synthetic.WithDefaults()

	return c
}

// FetchResult is the outcome of a successful Fetch.
type FetchResult struct {
	Series     types.PriceSeries `json:"series"`
	Source     types.Source      `json:"source"`
	Instrument Instrument        `json:"instrument"`
	// Attempts is the number of provider calls made. Zero when the provider was skipped.
	Attempts int `json:"attempts"`
	// FallbackReason explains why synthetic data was returned. Empty for live data.
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithRegistry replaces the default instrument registry.
func WithRegistry(registry *InstrumentRegistry) ClientOption {
	return func(c *Client) {
		c.registry = registry
	}
}

// WithTimerFactory sets how backoff waits are timed. Each Fetch gets its own timer.
func WithTimerFactory(newTimer func() backoff.Timer) ClientOption {
	return func(c *Client) {
		c.newTimer = newTimer
	}
}

// WithClock sets the source of "now" used to resolve lookback windows.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// Client runs the fetch-normalize pipeline against one provider.
// It holds only read-only state and is safe for concurrent use.
type Client struct {
	provider  provider.Provider
	config    ClientConfig
	registry  *InstrumentRegistry
	synthetic *SyntheticGenerator
	validate  *validator.Validate
	logger    *logger.Logger
	newTimer  func() backoff.Timer
	now       func() time.Time
}

// NewClient creates a new market data client with the given configuration.
func NewClient(config ClientConfig, log *logger.Logger, opts ...ClientOption) (*Client, error) {
	config = config.withDefaults()

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	var marketProvider provider.Provider

	if config.DataMode == DataModeLive {
		var err error

		marketProvider, err = provider.NewMarketDataProvider(config.ProviderType, config.Provider)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to create %s provider", config.ProviderType)
		}
	}

	return newClient(config, marketProvider, validate, log, opts...), nil
}

// NewClientWithProvider creates a client around an existing provider.
func NewClientWithProvider(config ClientConfig, marketProvider provider.Provider, log *logger.Logger, opts ...ClientOption) (*Client, error) {
	config = config.withDefaults()

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid client configuration", err)
	}

	if marketProvider == nil && config.DataMode == DataModeLive {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "provider is required in live mode")
	}

	return newClient(config, marketProvider, validate, log, opts...), nil
}

func newClient(config ClientConfig, marketProvider provider.Provider, validate *validator.Validate, log *logger.Logger, opts ...ClientOption) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}

	client := &Client{
		provider:  marketProvider,
		config:    config,
		registry:  DefaultInstrumentRegistry(),
		synthetic: NewSyntheticGenerator(config.Synthetic),
		validate:  validate,
		logger:    log.Named("marketdata"),
		newTimer:  nil,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Registry returns the instrument registry used for lookups.
func (c *Client) Registry() *InstrumentRegistry {
	return c.registry
}

// ProviderName returns the configured provider, or "synthetic" when none is used.
func (c *Client) ProviderName() string {
	if c.provider == nil {
		return string(types.SourceSynthetic)
	}

	return c.provider.Name()
}

// Fetch returns a normalized series for the requested instrument.
//
// Only caller errors fail: an unsupported instrument (ErrCodeUnsupportedInstrument)
// or a malformed request (ErrCodeInvalidParameter). Provider failures are retried
// within the retry budget and then replaced by a synthetic series.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	if err := req.Validate(c.validate); err != nil {
		return FetchResult{}, err
	}

	instrument, err := c.registry.Lookup(req.Instrument)
	if err != nil {
		return FetchResult{}, err
	}

	start, end, err := req.Window(c.now())
	if err != nil {
		return FetchResult{}, err
	}

	interval := req.interval()

	if c.config.DataMode == DataModeSynthetic || c.provider == nil {
		return c.fallback(instrument, interval, end, 0, "synthetic data mode"), nil
	}

	series, attempts, err := c.fetchLive(ctx, instrument, interval, start, end)
	if err != nil {
		c.logger.Warn("Live data unavailable, using synthetic series",
			zap.String("symbol", instrument.Symbol),
			zap.String("provider", c.provider.Name()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)

		return c.fallback(instrument, interval, end, attempts, err.Error()), nil
	}

	c.logger.Info("Fetched live series",
		zap.String("symbol", instrument.Symbol),
		zap.String("provider", c.provider.Name()),
		zap.Int("points", series.Len()),
		zap.Int("attempts", attempts),
	)

	return FetchResult{
		Series:         series,
		Source:         types.SourceLive,
		Instrument:     instrument,
		Attempts:       attempts,
		FallbackReason: "",
	}, nil
}

// fetchLive calls the provider under the retry budget. Permanent errors and
// context cancellation stop the loop without waiting.
func (c *Client) fetchLive(ctx context.Context, instrument Instrument, interval types.Interval, start, end time.Time) (types.PriceSeries, int, error) {
	var series types.PriceSeries

	attempts := 0
	historyRequest := provider.HistoryRequest{
		Symbol:         instrument.Symbol,
		ProviderSymbol: instrument.ProviderSymbol(provider.ProviderType(c.provider.Name())),
		Start:          start,
		End:            end,
		Interval:       interval,
	}

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempts++

		points, err := c.provider.FetchHistory(ctx, historyRequest)
		if err == nil {
			series, err = Normalize(instrument.Symbol, interval, points)
		}

		if err != nil {
			if !errors.IsRetryable(err) {
				return backoff.Permanent(err)
			}

			return err
		}

		return nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.Warn("Provider attempt failed, retrying",
			zap.String("symbol", instrument.Symbol),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.config.Retry.MaxAttempts),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotifyWithTimer(operation, c.config.Retry.newBackOff(ctx), notify, c.timer())
	if err != nil {
		return types.PriceSeries{}, attempts, err
	}

	return series, attempts, nil
}

func (c *Client) fallback(instrument Instrument, interval types.Interval, end time.Time, attempts int, reason string) FetchResult {
	return FetchResult{
		Series:         c.synthetic.Generate(instrument, interval, end),
		Source:         types.SourceSynthetic,
		Instrument:     instrument,
		Attempts:       attempts,
		FallbackReason: reason,
	}
}

func (c *Client) timer() backoff.Timer {
	if c.newTimer == nil {
		return nil
	}

	return c.newTimer()
}

// ExportParams holds the parameters for writing a fetched series to disk.
type ExportParams struct {
	Request   FetchRequest
	Format    writer.WriterType `validate:"required,oneof=csv parquet"`
	OutputDir string            `validate:"required"`
}

// Export fetches a series and writes it to OutputDir as SYMBOL_START_END_INTERVAL.<format>.
func (c *Client) Export(ctx context.Context, params ExportParams) (string, FetchResult, error) {
	if err := c.validate.Struct(params); err != nil {
		return "", FetchResult{}, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid export parameters", err)
	}

	result, err := c.Fetch(ctx, params.Request)
	if err != nil {
		return "", FetchResult{}, err
	}

	if err := os.MkdirAll(params.OutputDir, 0o755); err != nil {
		return "", result, errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create %s", params.OutputDir)
	}

	series := result.Series
	fileName := fmt.Sprintf("%s_%s_%s_%s%s",
		series.Symbol,
		series.First().Time.Format(types.DateLayout),
		series.Last().Time.Format(types.DateLayout),
		series.Interval,
		params.Format.Extension())

	seriesWriter, err := writer.NewSeriesWriter(params.Format, filepath.Join(params.OutputDir, fileName), writer.SeriesMeta{
		Symbol: series.Symbol,
		Source: result.Source,
	})
	if err != nil {
		return "", result, err
	}

	path, err := writer.WriteSeries(seriesWriter, series)
	if err != nil {
		return "", result, err
	}

	c.logger.Info("Exported series", zap.String("symbol", series.Symbol), zap.String("path", path))

	return path, result, nil
}
