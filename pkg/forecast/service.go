package forecast

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-forecast/internal/logger"
	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata"
)

// DefaultHorizon is six months of daily periods.
const DefaultHorizon = 6 * 30

// SeriesFetcher is satisfied by *marketdata.Client.
type SeriesFetcher interface {
	Fetch(ctx context.Context, req marketdata.FetchRequest) (marketdata.FetchResult, error)
}

// Report is the complete forecast output for one instrument.
type Report struct {
	Instrument     marketdata.Instrument `json:"instrument"`
	Source         types.Source          `json:"source"`
	FallbackReason string                `json:"fallbackReason,omitempty"`
	Model          string                `json:"model"`
	Horizon        int                   `json:"horizon"`
	// CurrentPrice is the last close of the history.
	CurrentPrice float64               `json:"currentPrice"`
	History      []types.PricePoint    `json:"history"`
	Forecast     []types.ForecastPoint `json:"forecast"`
	Summary      Summary               `json:"summary"`
	GeneratedAt  time.Time             `json:"generatedAt"`
}

// IsSynthetic reports whether the history is placeholder data.
func (r *Report) IsSynthetic() bool {
	return r.Source == types.SourceSynthetic
}

// Tail returns the last n forecast rows.
func (r *Report) Tail(n int) []types.ForecastPoint {
	if n <= 0 {
		return nil
	}

	if n >= len(r.Forecast) {
		return r.Forecast
	}

	return r.Forecast[len(r.Forecast)-n:]
}

// Service fetches a history and runs the forecaster on it.
type Service struct {
	fetcher    SeriesFetcher
	forecaster Forecaster
	logger     *logger.Logger
	now        func() time.Time
}

// NewService creates a forecasting service.
func NewService(fetcher SeriesFetcher, forecaster Forecaster, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Service{
		fetcher:    fetcher,
		forecaster: forecaster,
		logger:     log.Named("forecast"),
		now:        time.Now,
	}
}

// Run fetches the requested history and forecasts horizon periods past its end.
// A non-positive horizon means DefaultHorizon. Fetch errors (unsupported instrument,
// invalid request) are returned unchanged.
func (s *Service) Run(ctx context.Context, req marketdata.FetchRequest, horizon int) (*Report, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	result, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	points, err := s.forecaster.Forecast(ctx, result.Series, horizon)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return nil, errors.Wrap(errors.ErrCodeInsufficientData, err.Error(), err)
		}

		if errors.HasCode(err, errors.ErrCodeInvalidParameter) {
			return nil, err
		}

		return nil, errors.Wrapf(errors.ErrCodeForecastFailed, err, "%s forecast failed for %s", s.forecaster.Name(), result.Instrument.Symbol)
	}

	summary, err := Summarize(result.Series)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeForecastFailed, "failed to summarize history", err)
	}

	s.logger.Info("Forecast complete",
		zap.String("symbol", result.Instrument.Symbol),
		zap.String("source", string(result.Source)),
		zap.String("model", s.forecaster.Name()),
		zap.Int("history", result.Series.Len()),
		zap.Int("horizon", horizon),
	)

	return &Report{
		Instrument:     result.Instrument,
		Source:         result.Source,
		FallbackReason: result.FallbackReason,
		Model:          s.forecaster.Name(),
		Horizon:        horizon,
		CurrentPrice:   result.Series.Last().Close,
		History:        result.Series.Points,
		Forecast:       points,
		Summary:        summary,
		GeneratedAt:    s.now().UTC(),
	}, nil
}

// ProgressFunc is called after each instrument of RunAll, successful or not.
type ProgressFunc func(done, total int, symbol string)

// BatchResult holds the outcome of RunAll. Every requested symbol appears in
// exactly one of Reports or Failures.
type BatchResult struct {
	Reports  map[string]*Report
	Failures map[string]error
	// Order is the requested symbol order.
	Order []string
}

// RunAll forecasts each symbol in turn. A failing symbol is recorded and the batch
// continues; a cancelled context marks the remaining symbols as failed.
func (s *Service) RunAll(ctx context.Context, symbols []string, days, horizon int, onProgress ProgressFunc) BatchResult {
	batch := BatchResult{
		Reports:  make(map[string]*Report, len(symbols)),
		Failures: make(map[string]error),
		Order:    symbols,
	}

	for i, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			batch.Failures[symbol] = err
		} else {
			report, err := s.Run(ctx, marketdata.NewFetchRequest(symbol, days), horizon)
			if err != nil {
				s.logger.Warn("Forecast failed", zap.String("symbol", symbol), zap.Error(err))
				batch.Failures[symbol] = err
			} else {
				batch.Reports[symbol] = report
			}
		}

		if onProgress != nil {
			onProgress(i+1, len(symbols), symbol)
		}
	}

	return batch
}
