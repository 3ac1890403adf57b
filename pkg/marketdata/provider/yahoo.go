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
	defaultYahooBaseURL = "https://query1.finance.yahoo.com"
	yahooChartPath      = "/v8/finance/chart/{symbol}"
	// Yahoo rejects requests without a browser-like user agent.
	yahooUserAgent = "Mozilla/5.0 (compatible; argo-forecast/1.0)"
)

// YahooClient reads closing prices from the Yahoo Finance chart endpoint.
type YahooClient struct {
	client *resty.Client
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func NewYahooClient(config Config) (Provider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(config.timeout()).
		SetHeader("User-Agent", yahooUserAgent).
		SetHeader("Accept", "application/json")

	return &YahooClient{client: client}, nil
}

func (c *YahooClient) Name() string {
	return string(ProviderYahoo)
}

func (c *YahooClient) FetchHistory(ctx context.Context, req HistoryRequest) ([]types.PricePoint, error) {
	interval, err := yahooInterval(req.Interval)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", req.ProviderSymbol).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(req.Start.Unix(), 10),
			"period2":  strconv.FormatInt(req.End.Unix(), 10),
			"interval": interval,
			"events":   "history",
		}).
		Get(yahooChartPath)
	if err != nil {
		return nil, classifyTransportError(c.Name(), err)
	}

	if err := checkResponse(c.Name(), resp.StatusCode(), resp.Body()); err != nil {
		return nil, err
	}

	var chart yahooChartResponse
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "yahoo: malformed chart payload", err)
	}

	if chart.Chart.Error != nil {
		return nil, errors.Newf(errors.ErrCodeProviderRejectedRequest, "yahoo: %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}

	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "yahoo: no chart result for %s", req.ProviderSymbol)
	}

	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close

	if len(closes) != len(result.Timestamp) {
		return nil, errors.Newf(errors.ErrCodeMarketDataParseFailed, "yahoo: %d timestamps but %d closes", len(result.Timestamp), len(closes))
	}

	points := make([]types.PricePoint, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		price := math.NaN()
		if closes[i] != nil {
			price = *closes[i]
		}

		points = append(points, types.PricePoint{
			Time:  time.Unix(ts, 0).UTC(),
			Close: price,
		})
	}

	return points, nil
}

func yahooInterval(interval types.Interval) (string, error) {
	switch interval {
	case types.IntervalDaily:
		return "1d", nil
	case types.IntervalWeekly:
		return "1wk", nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidInterval, "unsupported interval for yahoo: %s", interval)
	}
}
