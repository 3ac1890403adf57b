package provider

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

// binanceKlinesLimit is the maximum number of klines Binance returns per page.
const binanceKlinesLimit = 1000

// BinanceAPIClient is the subset of the binance client used by BinanceClient.
type BinanceAPIClient interface {
	NewKlinesService() BinanceKlinesService
}

// BinanceKlinesService mirrors the builder exposed by *binance.KlinesService.
type BinanceKlinesService interface {
	Symbol(symbol string) BinanceKlinesService
	Interval(interval string) BinanceKlinesService
	StartTime(startTime int64) BinanceKlinesService
	EndTime(endTime int64) BinanceKlinesService
	Limit(limit int) BinanceKlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

type binanceClientAdapter struct {
	client *binance.Client
}

func (a *binanceClientAdapter) NewKlinesService() BinanceKlinesService {
	return &binanceKlinesServiceAdapter{service: a.client.NewKlinesService()}
}

type binanceKlinesServiceAdapter struct {
	service *binance.KlinesService
}

func (a *binanceKlinesServiceAdapter) Symbol(symbol string) BinanceKlinesService {
	a.service = a.service.Symbol(symbol)

	return a
}

func (a *binanceKlinesServiceAdapter) Interval(interval string) BinanceKlinesService {
	a.service = a.service.Interval(interval)

	return a
}

func (a *binanceKlinesServiceAdapter) StartTime(startTime int64) BinanceKlinesService {
	a.service = a.service.StartTime(startTime)

	return a
}

func (a *binanceKlinesServiceAdapter) EndTime(endTime int64) BinanceKlinesService {
	a.service = a.service.EndTime(endTime)

	return a
}

func (a *binanceKlinesServiceAdapter) Limit(limit int) BinanceKlinesService {
	a.service = a.service.Limit(limit)

	return a
}

func (a *binanceKlinesServiceAdapter) Do(ctx context.Context) ([]*binance.Kline, error) {
	return a.service.Do(ctx)
}

// BinanceClient fetches daily or weekly klines from the Binance spot API.
// Public market data needs no credentials.
type BinanceClient struct {
	apiClient BinanceAPIClient
}

func NewBinanceClient(config Config) (Provider, error) {
	client := binance.NewClient(config.APIKey, "")
	client.HTTPClient = &http.Client{Timeout: config.timeout()}

	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return &BinanceClient{
		apiClient: &binanceClientAdapter{client: client},
	}, nil
}

// NewBinanceClientWithAPI creates a client backed by the given API implementation.
func NewBinanceClientWithAPI(apiClient BinanceAPIClient) *BinanceClient {
	return &BinanceClient{
		apiClient: apiClient,
	}
}

func (c *BinanceClient) Name() string {
	return string(ProviderBinance)
}

// FetchHistory pages through klines until the window end is reached or a short page is returned.
func (c *BinanceClient) FetchHistory(ctx context.Context, req HistoryRequest) ([]types.PricePoint, error) {
	interval, err := binanceInterval(req.Interval)
	if err != nil {
		return nil, err
	}

	endMillis := req.End.UnixMilli()
	currentStart := req.Start.UnixMilli()
	points := make([]types.PricePoint, 0)

	for {
		klines, err := c.apiClient.NewKlinesService().
			Symbol(req.ProviderSymbol).
			Interval(interval).
			StartTime(currentStart).
			EndTime(endMillis).
			Limit(binanceKlinesLimit).
			Do(ctx)
		if err != nil {
			return nil, classifyBinanceError(c.Name(), err)
		}

		for _, k := range klines {
			closePrice, parseErr := strconv.ParseFloat(k.Close, 64)
			if parseErr != nil {
				closePrice = math.NaN()
			}

			points = append(points, types.PricePoint{
				Time:  time.UnixMilli(k.OpenTime).UTC(),
				Close: closePrice,
			})
		}

		if len(klines) < binanceKlinesLimit {
			break
		}

		// Resume after the close of the last kline to avoid duplicates
		currentStart = klines[len(klines)-1].CloseTime + 1
		if currentStart >= endMillis {
			break
		}
	}

	if len(points) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "%s: no klines for %s", c.Name(), req.ProviderSymbol)
	}

	return points, nil
}

// binanceInterval converts a series interval to a Binance kline interval.
// Ref: https://binance-docs.github.io/apidocs/spot/en/#kline-candlestick-data
func binanceInterval(interval types.Interval) (string, error) {
	switch interval {
	case types.IntervalDaily:
		return "1d", nil
	case types.IntervalWeekly:
		return "1w", nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidInterval, "unsupported interval for binance: %s", interval)
	}
}

// classifyBinanceError maps API error codes onto retryable and permanent failures.
// Ref: https://binance-docs.github.io/apidocs/spot/en/#error-codes
func classifyBinanceError(providerName string, err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return classifyTransportError(providerName, err)
	}

	switch {
	case apiErr.Code == -1003 || apiErr.Code == -1015:
		return errors.Wrapf(errors.ErrCodeProviderRateLimited, err, "%s: rate limited", providerName)
	case apiErr.Code <= -1100 && apiErr.Code >= -1199:
		// 11xx: bad request parameters, including -1121 invalid symbol
		return errors.Wrapf(errors.ErrCodeProviderRejectedRequest, err, "%s: request rejected", providerName)
	case apiErr.Code == -2014 || apiErr.Code == -2015:
		return errors.Wrapf(errors.ErrCodeProviderRejectedRequest, err, "%s: api key rejected", providerName)
	default:
		return errors.Wrapf(errors.ErrCodeProviderUnavailable, err, "%s: upstream error", providerName)
	}
}
