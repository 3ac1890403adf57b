package provider

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

const (
	defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	coinGeckoAPIKeyHeader   = "x-cg-demo-api-key"
	coinGeckoRangePath      = "/coins/{id}/market_chart/range"
)

// CoinGeckoClient reads closing prices from the CoinGecko market chart range endpoint.
// Ranges longer than 90 days come back with one sample per day; shorter ranges are
// intraday and rely on normalization to collapse them.
type CoinGeckoClient struct {
	client *resty.Client
}

type coinGeckoMarketChart struct {
	// Each row is [unix_millis, price]. Price may be null for delisted days.
	Prices [][]*float64 `json:"prices"`
}

func NewCoinGeckoClient(config Config) (Provider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultCoinGeckoBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(config.timeout()).
		SetHeader("Accept", "application/json")

	if config.APIKey != "" {
		client.SetHeader(coinGeckoAPIKeyHeader, config.APIKey)
	}

	return &CoinGeckoClient{client: client}, nil
}

func (c *CoinGeckoClient) Name() string {
	return string(ProviderCoinGecko)
}

func (c *CoinGeckoClient) FetchHistory(ctx context.Context, req HistoryRequest) ([]types.PricePoint, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", req.ProviderSymbol).
		SetQueryParams(map[string]string{
			"vs_currency": "usd",
			"from":        strconv.FormatInt(req.Start.Unix(), 10),
			"to":          strconv.FormatInt(req.End.Unix(), 10),
		}).
		Get(coinGeckoRangePath)
	if err != nil {
		return nil, classifyTransportError(c.Name(), err)
	}

	if err := checkResponse(c.Name(), resp.StatusCode(), resp.Body()); err != nil {
		return nil, err
	}

	var chart coinGeckoMarketChart
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "coingecko: malformed market chart payload", err)
	}

	if len(chart.Prices) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "coingecko: no prices for %s", req.ProviderSymbol)
	}

	points := make([]types.PricePoint, 0, len(chart.Prices))

	for _, row := range chart.Prices {
		if len(row) < 2 || row[0] == nil {
			continue
		}

		price := math.NaN()
		if row[1] != nil {
			price = *row[1]
		}

		points = append(points, types.PricePoint{
			Time:  time.UnixMilli(int64(*row[0])).UTC(),
			Close: price,
		})
	}

	return points, nil
}
