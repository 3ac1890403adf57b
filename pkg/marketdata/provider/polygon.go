package provider

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

// PolygonAPIClient is the subset of the polygon REST client used by PolygonClient.
type PolygonAPIClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator
}

// PolygonAggsIterator mirrors the iterator returned by ListAggs.
type PolygonAggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

type polygonClientAdapter struct {
	client *polygon.Client
}

func (a *polygonClientAdapter) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator {
	return a.client.ListAggs(ctx, params, options...)
}

type PolygonClient struct {
	apiClient PolygonAPIClient
}

func NewPolygonClient(config Config) (Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon: apiKey is required")
	}

	return &PolygonClient{
		apiClient: &polygonClientAdapter{client: polygon.New(config.APIKey)},
	}, nil
}

// NewPolygonClientWithAPI creates a client backed by the given API implementation.
func NewPolygonClientWithAPI(apiClient PolygonAPIClient) *PolygonClient {
	return &PolygonClient{
		apiClient: apiClient,
	}
}

func (c *PolygonClient) Name() string {
	return string(ProviderPolygon)
}

func (c *PolygonClient) FetchHistory(ctx context.Context, req HistoryRequest) ([]types.PricePoint, error) {
	timespan, err := polygonTimespan(req.Interval)
	if err != nil {
		return nil, err
	}

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     req.ProviderSymbol,
		Multiplier: 1,
		Timespan:   timespan,
		From:       models.Millis(req.Start),
		To:         models.Millis(req.End),
	}.WithLimit(50000)

	iter := c.apiClient.ListAggs(ctx, params)
	points := make([]types.PricePoint, 0)

	for iter.Next() {
		agg := iter.Item()
		points = append(points, types.PricePoint{
			Time:  time.Time(agg.Timestamp).UTC(),
			Close: agg.Close,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, classifyPolygonError(c.Name(), err)
	}

	if len(points) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "%s: no aggregates for %s", c.Name(), req.ProviderSymbol)
	}

	return points, nil
}

func polygonTimespan(interval types.Interval) (models.Timespan, error) {
	switch interval {
	case types.IntervalDaily:
		return models.Day, nil
	case types.IntervalWeekly:
		return models.Week, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidInterval, "unsupported interval for polygon: %s", interval)
	}
}

func classifyPolygonError(providerName string, err error) error {
	var respErr *models.ErrorResponse
	if errors.As(err, &respErr) {
		return errors.Wrapf(classifyStatus(providerName, respErr.StatusCode, nil).Code, err, "%s: aggregates request failed", providerName)
	}

	return classifyTransportError(providerName, err)
}
