// Package forecast turns a price history into a forecast with an uncertainty band.
package forecast

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

// Forecaster predicts future closes from an ascending price series.
// horizon is the number of future periods, in units of the series interval.
type Forecaster interface {
	Name() string
	Forecast(ctx context.Context, series types.PriceSeries, horizon int) ([]types.ForecastPoint, error)
}

const (
	// DefaultZ gives an 80% two-sided prediction band.
	DefaultZ = 1.2816
	// minFitPoints is the smallest series a line can be fitted to.
	minFitPoints = 2
)

// LogLinearConfig configures LogLinearModel.
type LogLinearConfig struct {
	// Z is the band half-width in residual standard errors.
	Z float64 `yaml:"z" json:"z" validate:"gt=0" jsonschema:"default=1.2816"`
	// IncludeHistory prepends in-sample fitted values to the output.
	IncludeHistory bool `yaml:"include_history" json:"include_history"`
}

// DefaultLogLinearConfig returns an 80% band without in-sample points.
func DefaultLogLinearConfig() LogLinearConfig {
	return LogLinearConfig{
		Z:              DefaultZ,
		IncludeHistory: false,
	}
}

// LogLinearModel fits log(price) = alpha + beta*t by least squares and extrapolates,
// i.e. constant exponential growth. The band is the ordinary regression prediction
// interval mapped back through exp, so it is asymmetric around yhat.
type LogLinearModel struct {
	config LogLinearConfig
}

// NewLogLinearModel creates a model. A non-positive Z falls back to DefaultZ.
func NewLogLinearModel(config LogLinearConfig) *LogLinearModel {
	if config.Z <= 0 {
		config.Z = DefaultZ
	}

	return &LogLinearModel{config: config}
}

func (m *LogLinearModel) Name() string {
	return "log-linear"
}

type fit struct {
	alpha, beta float64
	sigma       float64
	n           float64
	xMean       float64
	sxx         float64
}

// predict returns yhat, lower, upper at x days after the origin.
func (f fit) predict(x, z float64) (float64, float64, float64) {
	mu := f.alpha + f.beta*x

	se := f.sigma * math.Sqrt(1+1/f.n)
	if f.sxx > 0 {
		se = f.sigma * math.Sqrt(1+1/f.n+(x-f.xMean)*(x-f.xMean)/f.sxx)
	}

	return math.Exp(mu), math.Exp(mu - z*se), math.Exp(mu + z*se)
}

func (m *LogLinearModel) Forecast(ctx context.Context, series types.PriceSeries, horizon int) ([]types.ForecastPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeForecastFailed, "forecast cancelled", err)
	}

	if horizon <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "horizon must be positive, got %d", horizon)
	}

	if series.IsEmpty() {
		return nil, errors.NewInsufficientDataError(minFitPoints, 0, series.Symbol, "insufficient data for log-linear fit")
	}

	origin := series.First().Time
	xs := make([]float64, 0, series.Len())
	ys := make([]float64, 0, series.Len())

	for _, p := range series.Points {
		// log is undefined at zero
		if p.Close <= 0 {
			continue
		}

		xs = append(xs, daysSince(origin, p.Time))
		ys = append(ys, math.Log(p.Close))
	}

	if len(xs) < minFitPoints {
		return nil, errors.NewInsufficientDataErrorf(minFitPoints, len(xs), series.Symbol,
			"insufficient data for log-linear fit: required %d, got %d", minFitPoints, len(xs))
	}

	f := fitLine(xs, ys)
	z := m.config.Z
	out := make([]types.ForecastPoint, 0, horizon+series.Len())

	if m.config.IncludeHistory {
		for _, p := range series.Points {
			yhat, lower, upper := f.predict(daysSince(origin, p.Time), z)
			if !finite(yhat, lower, upper) {
				return nil, errors.Newf(errors.ErrCodeForecastFailed, "log-linear fit for %s is not finite at %s", series.Symbol, p.Time.Format(time.DateOnly))
			}

			out = append(out, types.ForecastPoint{Time: p.Time, Yhat: yhat, YhatLower: lower, YhatUpper: upper})
		}
	}

	last := series.Last().Time
	for h := 1; h <= horizon; h++ {
		t := step(last, series.Interval, h)
		yhat, lower, upper := f.predict(daysSince(origin, t), z)
		// exp overflows when a steep trend is extrapolated far enough
		if !finite(yhat, lower, upper) {
			return nil, errors.Newf(errors.ErrCodeForecastFailed,
				"forecast for %s overflows at period %d of %d, try a shorter horizon", series.Symbol, h, horizon)
		}

		out = append(out, types.ForecastPoint{Time: t, Yhat: yhat, YhatLower: lower, YhatUpper: upper})
	}

	return out, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}

	return true
}

func fitLine(xs, ys []float64) fit {
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	xMean := stat.Mean(xs, nil)

	var sse, sxx float64
	for i := range xs {
		r := ys[i] - (alpha + beta*xs[i])
		sse += r * r
		sxx += (xs[i] - xMean) * (xs[i] - xMean)
	}

	sigma := 0.0
	if len(xs) > 2 {
		sigma = math.Sqrt(sse / float64(len(xs)-2))
	}

	return fit{
		alpha: alpha,
		beta:  beta,
		sigma: sigma,
		n:     float64(len(xs)),
		xMean: xMean,
		sxx:   sxx,
	}
}

func daysSince(origin, t time.Time) float64 {
	return t.Sub(origin).Hours() / 24
}

func step(t time.Time, interval types.Interval, n int) time.Time {
	if interval == types.IntervalWeekly {
		return t.AddDate(0, 0, 7*n)
	}

	return t.AddDate(0, 0, n)
}
