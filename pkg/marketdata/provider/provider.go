package provider

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

// ProviderType defines the type of market data provider.
type ProviderType string

const (
	ProviderCoinGecko ProviderType = "coingecko"
	ProviderYahoo     ProviderType = "yahoo"
	ProviderBinance   ProviderType = "binance"
	ProviderPolygon   ProviderType = "polygon"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 10 * time.Second

// Config carries the settings shared by every provider. Fields a provider does
// not need are ignored.
type Config struct {
	// APIKey is the provider credential. Required by polygon, optional for coingecko.
	APIKey string
	// BaseURL overrides the provider endpoint. Used by tests and self-hosted proxies.
	BaseURL string
	// Timeout bounds each HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}

	return c.Timeout
}

// HistoryRequest describes one provider call for a closing price history.
type HistoryRequest struct {
	// Symbol is the user-facing instrument symbol, e.g. BTC-USD.
	Symbol string
	// ProviderSymbol is the provider-specific identifier, e.g. "bitcoin" for coingecko.
	ProviderSymbol string
	Start          time.Time
	End            time.Time
	Interval       types.Interval
}

type Provider interface {
	// Name returns the provider type as a string, used in logs and results.
	Name() string
	// FetchHistory performs exactly one upstream request (or one paginated
	// sequence) and returns the raw observations in provider order.
	// Points may be unsorted, duplicated, or carry NaN prices for null rows;
	// normalization is the caller's job.
	//
	// Errors are *errors.Error values: retryable codes for transient failures
	// and ErrCodeProviderRejectedRequest for requests that will never succeed.
	FetchHistory(ctx context.Context, req HistoryRequest) ([]types.PricePoint, error)
}

// NewMarketDataProvider creates a new market data provider based on the provider type.
func NewMarketDataProvider(providerType ProviderType, config Config) (Provider, error) {
	switch providerType {
	case ProviderCoinGecko:
		return NewCoinGeckoClient(config)
	case ProviderYahoo:
		return NewYahooClient(config)
	case ProviderBinance:
		return NewBinanceClient(config)
	case ProviderPolygon:
		return NewPolygonClient(config)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider: %s", providerType)
	}
}
