package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

type LogLinearModelTestSuite struct {
	suite.Suite
	start time.Time
}

func TestLogLinearModelSuite(t *testing.T) {
	suite.Run(t, new(LogLinearModelTestSuite))
}

func (suite *LogLinearModelTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (suite *LogLinearModelTestSuite) series(interval types.Interval, closes ...float64) types.PriceSeries {
	points := make([]types.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = types.PricePoint{Time: step(suite.start, interval, i), Close: c}
	}

	return types.PriceSeries{Symbol: "BTC-USD", Interval: interval, Points: points}
}

func (suite *LogLinearModelTestSuite) exponential(n int, rate float64) types.PriceSeries {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 * math.Exp(rate*float64(i))
	}

	return suite.series(types.IntervalDaily, closes...)
}

func (suite *LogLinearModelTestSuite) TestExactExponentialGrowth() {
	model := NewLogLinearModel(DefaultLogLinearConfig())

	out, err := model.Forecast(context.Background(), suite.exponential(30, 0.01), 10)
	suite.Require().NoError(err)
	suite.Require().Len(out, 10)

	for h, p := range out {
		expected := 100 * math.Exp(0.01*float64(30+h))
		suite.Equal(suite.start.AddDate(0, 0, 30+h), p.Time)
		suite.InEpsilon(expected, p.Yhat, 1e-9)
		// Perfect fit leaves no residual variance.
		suite.InEpsilon(p.Yhat, p.YhatLower, 1e-6)
		suite.InEpsilon(p.Yhat, p.YhatUpper, 1e-6)
	}
}

func (suite *LogLinearModelTestSuite) TestBandContainsEstimateAndWidens() {
	model := NewLogLinearModel(DefaultLogLinearConfig())
	series := suite.series(types.IntervalDaily, 100, 104, 99, 108, 103, 111, 107, 115, 110, 118)

	out, err := model.Forecast(context.Background(), series, 30)
	suite.Require().NoError(err)

	prevWidth := 0.0
	for _, p := range out {
		suite.Less(p.YhatLower, p.Yhat)
		suite.Less(p.Yhat, p.YhatUpper)
		suite.Greater(p.YhatLower, 0.0)

		width := p.YhatUpper - p.YhatLower
		suite.Greater(width, prevWidth)
		prevWidth = width
	}
}

func (suite *LogLinearModelTestSuite) TestWiderZGivesWiderBand() {
	series := suite.series(types.IntervalDaily, 10, 12, 11, 13, 12, 14)

	narrow, err := NewLogLinearModel(LogLinearConfig{Z: 1}).Forecast(context.Background(), series, 1)
	suite.Require().NoError(err)
	wide, err := NewLogLinearModel(LogLinearConfig{Z: 2}).Forecast(context.Background(), series, 1)
	suite.Require().NoError(err)

	suite.InEpsilon(narrow[0].Yhat, wide[0].Yhat, 1e-12)
	suite.Greater(wide[0].YhatUpper, narrow[0].YhatUpper)
	suite.Less(wide[0].YhatLower, narrow[0].YhatLower)
}

func (suite *LogLinearModelTestSuite) TestWeeklyStep() {
	model := NewLogLinearModel(DefaultLogLinearConfig())
	series := suite.series(types.IntervalWeekly, 1, 2, 4)

	out, err := model.Forecast(context.Background(), series, 2)
	suite.Require().NoError(err)
	suite.Equal(suite.start.AddDate(0, 0, 21), out[0].Time)
	suite.Equal(suite.start.AddDate(0, 0, 28), out[1].Time)
	suite.InEpsilon(8.0, out[0].Yhat, 1e-9)
}

func (suite *LogLinearModelTestSuite) TestIncludeHistory() {
	model := NewLogLinearModel(LogLinearConfig{Z: DefaultZ, IncludeHistory: true})
	series := suite.exponential(5, 0.02)

	out, err := model.Forecast(context.Background(), series, 3)
	suite.Require().NoError(err)
	suite.Require().Len(out, 8)

	for i, p := range series.Points {
		suite.Equal(p.Time, out[i].Time)
		suite.InEpsilon(p.Close, out[i].Yhat, 1e-9)
	}
	suite.Equal(suite.start.AddDate(0, 0, 5), out[5].Time)
}

func (suite *LogLinearModelTestSuite) TestZeroPricesSkipped() {
	model := NewLogLinearModel(DefaultLogLinearConfig())

	out, err := model.Forecast(context.Background(), suite.series(types.IntervalDaily, 0, 1, 2, 4), 1)
	suite.Require().NoError(err)
	suite.Len(out, 1)
	suite.False(math.IsNaN(out[0].Yhat))
}

func (suite *LogLinearModelTestSuite) TestInsufficientData() {
	model := NewLogLinearModel(DefaultLogLinearConfig())

	tests := []struct {
		name   string
		series types.PriceSeries
	}{
		{name: "empty", series: types.PriceSeries{Symbol: "BTC-USD"}},
		{name: "single point", series: suite.series(types.IntervalDaily, 100)},
		{name: "one positive price", series: suite.series(types.IntervalDaily, 0, 0, 5)},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := model.Forecast(context.Background(), tc.series, 10)
			suite.Require().Error(err)
			suite.True(errors.IsInsufficientDataError(err))
		})
	}
}

func (suite *LogLinearModelTestSuite) TestInvalidHorizon() {
	model := NewLogLinearModel(DefaultLogLinearConfig())

	_, err := model.Forecast(context.Background(), suite.exponential(10, 0.01), 0)
	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeInvalidParameter, errors.GetCode(err))
}

func (suite *LogLinearModelTestSuite) TestOverflowingHorizon() {
	model := NewLogLinearModel(DefaultLogLinearConfig())
	steep := suite.series(types.IntervalDaily, 100, 250)

	_, err := model.Forecast(context.Background(), steep, 3650)
	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeForecastFailed, errors.GetCode(err))

	// the same trend is still representable over a short horizon
	out, err := model.Forecast(context.Background(), steep, 30)
	suite.Require().NoError(err)
	suite.Len(out, 30)
	for _, p := range out {
		suite.False(math.IsInf(p.YhatUpper, 0))
	}
}

func (suite *LogLinearModelTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLogLinearModel(DefaultLogLinearConfig()).Forecast(ctx, suite.exponential(10, 0.01), 5)
	suite.Require().Error(err)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *LogLinearModelTestSuite) TestDefaults() {
	model := NewLogLinearModel(LogLinearConfig{})
	suite.InDelta(DefaultZ, model.config.Z, 1e-12)
	suite.Equal("log-linear", model.Name())
}
