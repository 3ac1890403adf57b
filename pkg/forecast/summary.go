package forecast

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

// Summary describes a price history.
type Summary struct {
	Points int       `json:"points"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Mean   float64   `json:"mean"`
	Median float64   `json:"median"`
	// Volatility is the sample standard deviation of period log returns.
	Volatility float64 `json:"volatility"`
	// ChangePercent is the move from the first to the last close.
	ChangePercent float64 `json:"changePercent"`
}

// Summarize computes descriptive statistics of a series.
func Summarize(series types.PriceSeries) (Summary, error) {
	if series.IsEmpty() {
		return Summary{}, errors.NewInsufficientDataError(1, 0, series.Symbol, "cannot summarize an empty series")
	}

	closes := stats.Float64Data(series.Closes())

	minPrice, err := closes.Min()
	if err != nil {
		return Summary{}, errors.Wrap(errors.ErrCodeForecastFailed, "failed to compute min", err)
	}

	maxPrice, err := closes.Max()
	if err != nil {
		return Summary{}, errors.Wrap(errors.ErrCodeForecastFailed, "failed to compute max", err)
	}

	mean, err := closes.Mean()
	if err != nil {
		return Summary{}, errors.Wrap(errors.ErrCodeForecastFailed, "failed to compute mean", err)
	}

	median, err := closes.Median()
	if err != nil {
		return Summary{}, errors.Wrap(errors.ErrCodeForecastFailed, "failed to compute median", err)
	}

	volatility := 0.0

	returns := logReturns(series.Points)
	if len(returns) >= 2 {
		volatility, err = stats.StandardDeviationSample(returns)
		if err != nil {
			return Summary{}, errors.Wrap(errors.ErrCodeForecastFailed, "failed to compute volatility", err)
		}
	}

	changePercent := 0.0
	if first := series.First().Close; first > 0 {
		changePercent = (series.Last().Close - first) / first * 100
	}

	return Summary{
		Points:        series.Len(),
		Start:         series.First().Time,
		End:           series.Last().Time,
		Min:           minPrice,
		Max:           maxPrice,
		Mean:          mean,
		Median:        median,
		Volatility:    volatility,
		ChangePercent: changePercent,
	}, nil
}

func logReturns(points []types.PricePoint) stats.Float64Data {
	returns := make(stats.Float64Data, 0, len(points))

	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1].Close, points[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}

		returns = append(returns, math.Log(cur/prev))
	}

	return returns
}
