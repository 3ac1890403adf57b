package marketdata

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/rxtech-lab/argo-forecast/internal/logger"
	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/mocks"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/provider"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/writer"
)

// fakeTimer fires immediately and records every requested delay.
type fakeTimer struct {
	c      chan time.Time
	record func(time.Duration)
}

func (t *fakeTimer) Start(d time.Duration) {
	t.record(d)
	t.c <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

// ClientTestSuite is a test suite for the fetch-normalize pipeline
type ClientTestSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockProvider *mocks.MockProvider
	now          time.Time

	mu     sync.Mutex
	delays []time.Duration
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (suite *ClientTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.mockProvider = mocks.NewMockProvider(suite.ctrl)
	suite.mockProvider.EXPECT().Name().Return("coingecko").AnyTimes()
	suite.now = time.Date(2024, 6, 30, 15, 4, 5, 0, time.UTC)
	suite.delays = nil
}

func (suite *ClientTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *ClientTestSuite) recordDelay(d time.Duration) {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	suite.delays = append(suite.delays, d)
}

func (suite *ClientTestSuite) newTimer() backoff.Timer {
	return &fakeTimer{c: make(chan time.Time, 1), record: suite.recordDelay}
}

func (suite *ClientTestSuite) newClient(config ClientConfig) *Client {
	client, err := NewClientWithProvider(config, suite.mockProvider, logger.NewNopLogger(),
		WithTimerFactory(suite.newTimer),
		WithClock(func() time.Time { return suite.now }),
	)
	suite.Require().NoError(err)

	return client
}

// dailyPoints returns n daily closes ending on end.
func dailyPoints(end time.Time, n int) []types.PricePoint {
	points := make([]types.PricePoint, n)
	for i := 0; i < n; i++ {
		points[i] = types.PricePoint{
			Time:  end.AddDate(0, 0, i-n+1),
			Close: 100 + float64(i),
		}
	}

	return points
}

func (suite *ClientTestSuite) assertValidSeries(series types.PriceSeries) {
	suite.Require().NoError(series.Validate())
	for _, p := range series.Points {
		suite.False(math.IsNaN(p.Close))
		suite.GreaterOrEqual(p.Close, 0.0)
	}
}

func transient() error {
	return errors.New(errors.ErrCodeProviderUnavailable, "upstream error (status 503)")
}

func (suite *ClientTestSuite) TestSupportedSymbolsNeverFail() {
	client := suite.newClient(DefaultClientConfig())
	suite.mockProvider.EXPECT().
		FetchHistory(gomock.Any(), gomock.Any()).
		Return(dailyPoints(suite.now, 30), nil).
		Times(len(DefaultInstruments))

	for _, symbol := range client.Registry().Symbols() {
		result, err := client.Fetch(context.Background(), NewFetchRequest(symbol, 30))
		suite.Require().NoError(err, symbol)
		suite.Equal(types.SourceLive, result.Source)
		suite.Equal(symbol, result.Instrument.Symbol)
		suite.Equal(1, result.Attempts)
		suite.Empty(result.FallbackReason)
		suite.assertValidSeries(result.Series)
	}

	suite.Empty(suite.delays)
}

func (suite *ClientTestSuite) TestProviderReceivesResolvedRequest() {
	client := suite.newClient(DefaultClientConfig())

	var got provider.HistoryRequest
	suite.mockProvider.EXPECT().
		FetchHistory(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req provider.HistoryRequest) ([]types.PricePoint, error) {
			got = req
			return dailyPoints(suite.now, 5), nil
		})

	_, err := client.Fetch(context.Background(), NewFetchRequest("btcusd", 180))
	suite.Require().NoError(err)

	suite.Equal("BTC-USD", got.Symbol)
	suite.Equal("bitcoin", got.ProviderSymbol)
	suite.Equal(suite.now, got.End)
	suite.Equal(suite.now.AddDate(0, 0, -180), got.Start)
	suite.Equal(types.IntervalDaily, got.Interval)
}

func (suite *ClientTestSuite) TestUnsupportedInstrumentFailsWithoutCalls() {
	client := suite.newClient(DefaultClientConfig())

	result, err := client.Fetch(context.Background(), NewFetchRequest("NOT-A-COIN", 30))
	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeUnsupportedInstrument, errors.GetCode(err))
	suite.Contains(err.Error(), "NOT-A-COIN")
	suite.Equal(FetchResult{}, result)
	suite.Empty(suite.delays)
}

func (suite *ClientTestSuite) TestBlankInstrumentIsUnsupported() {
	client := suite.newClient(DefaultClientConfig())

	for _, symbol := range []string{"", "   "} {
		_, err := client.Fetch(context.Background(), NewFetchRequest(symbol, 30))
		suite.Require().Error(err)
		suite.Equal(errors.ErrCodeUnsupportedInstrument, errors.GetCode(err), "symbol %q", symbol)
	}
	suite.Empty(suite.delays)
}

func (suite *ClientTestSuite) TestInvalidRangeFailsWithoutCalls() {
	client := suite.newClient(DefaultClientConfig())
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := client.Fetch(context.Background(), NewRangeRequest("BTC-USD", start, start.AddDate(0, 0, -1)))
	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeInvalidParameter, errors.GetCode(err))
	suite.Empty(suite.delays)
}

func (suite *ClientTestSuite) TestInvalidIntervalFailsWithoutCalls() {
	client := suite.newClient(DefaultClientConfig())

	_, err := client.Fetch(context.Background(), NewFetchRequest("BTC-USD", 30).WithInterval(types.Interval("1h")))
	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeInvalidParameter, errors.GetCode(err))
}

func (suite *ClientTestSuite) TestTransientFailuresThenSuccess() {
	tests := []struct {
		name     string
		failures int
	}{
		{name: "no failures", failures: 0},
		{name: "one failure", failures: 1},
		{name: "two failures", failures: 2},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.delays = nil
			client := suite.newClient(DefaultClientConfig())

			gomock.InOrder(func() []any {
				calls := make([]any, 0, tc.failures+1)
				for i := 0; i < tc.failures; i++ {
					calls = append(calls, suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).Return(nil, transient()))
				}
				calls = append(calls, suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).Return(dailyPoints(suite.now, 10), nil))
				return calls
			}()...)

			result, err := client.Fetch(context.Background(), NewFetchRequest("ETH-USD", 10))
			suite.Require().NoError(err)
			suite.Equal(types.SourceLive, result.Source)
			suite.Equal(tc.failures+1, result.Attempts)
			suite.Len(suite.delays, tc.failures)
		})
	}
}

func (suite *ClientTestSuite) TestBudgetExhaustedFallsBackToSynthetic() {
	client := suite.newClient(DefaultClientConfig())
	suite.mockProvider.EXPECT().
		FetchHistory(gomock.Any(), gomock.Any()).
		Return(nil, errors.New(errors.ErrCodeProviderTimeout, "request timed out")).
		Times(3)

	result, err := client.Fetch(context.Background(), NewFetchRequest("ETH-USD", 30))
	suite.Require().NoError(err)
	suite.Equal(types.SourceSynthetic, result.Source)
	suite.Equal(3, result.Attempts)
	suite.Contains(result.FallbackReason, "timed out")
	suite.Equal([]time.Duration{2 * time.Second, 4 * time.Second}, suite.delays)

	suite.Len(result.Series.Points, DefaultSyntheticConfig().Length)
	suite.assertValidSeries(result.Series)
	for _, p := range result.Series.Points {
		suite.Greater(p.Close, 0.0)
	}
}

func (suite *ClientTestSuite) TestBackoffScheduleIsCapped() {
	config := DefaultClientConfig()
	config.Retry = RetryConfig{MaxAttempts: 6, BaseDelay: 10 * time.Second, Multiplier: 3, MaxDelay: 60 * time.Second}
	client := suite.newClient(config)
	suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).Return(nil, transient()).Times(6)

	result, err := client.Fetch(context.Background(), NewFetchRequest("SOL-USD", 30))
	suite.Require().NoError(err)
	suite.Equal(types.SourceSynthetic, result.Source)
	suite.Equal([]time.Duration{
		10 * time.Second,
		30 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}, suite.delays)
}

func (suite *ClientTestSuite) TestPermanentErrorSkipsRetries() {
	client := suite.newClient(DefaultClientConfig())
	suite.mockProvider.EXPECT().
		FetchHistory(gomock.Any(), gomock.Any()).
		Return(nil, errors.New(errors.ErrCodeProviderRejectedRequest, "request rejected (status 404)")).
		Times(1)

	result, err := client.Fetch(context.Background(), NewFetchRequest("XRP-USD", 30))
	suite.Require().NoError(err)
	suite.Equal(types.SourceSynthetic, result.Source)
	suite.Equal(1, result.Attempts)
	suite.Contains(result.FallbackReason, "404")
	suite.Empty(suite.delays)
}

func (suite *ClientTestSuite) TestPayloadWithoutValidRowsIsRetried() {
	client := suite.newClient(DefaultClientConfig())
	gomock.InOrder(
		suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).
			Return([]types.PricePoint{{Time: suite.now, Close: math.NaN()}, {Time: suite.now, Close: -1}}, nil),
		suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).
			Return(dailyPoints(suite.now, 3), nil),
	)

	result, err := client.Fetch(context.Background(), NewFetchRequest("ADA-USD", 3))
	suite.Require().NoError(err)
	suite.Equal(types.SourceLive, result.Source)
	suite.Equal(2, result.Attempts)
	suite.Len(suite.delays, 1)
}

func (suite *ClientTestSuite) TestLiveSeriesIsNormalized() {
	client := suite.newClient(DefaultClientConfig())
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).Return([]types.PricePoint{
		{Time: day.AddDate(0, 0, 1).Add(23 * time.Hour), Close: 12},
		{Time: day.Add(6 * time.Hour), Close: 10},
		{Time: day.Add(18 * time.Hour), Close: 11},
		{Time: day.AddDate(0, 0, 1).Add(time.Hour), Close: math.Inf(1)},
	}, nil)

	result, err := client.Fetch(context.Background(), NewFetchRequest("BTC-USD", 5))
	suite.Require().NoError(err)
	suite.Equal([]types.PricePoint{
		{Time: day, Close: 11},
		{Time: day.AddDate(0, 0, 1), Close: 12},
	}, result.Series.Points)
}

func (suite *ClientTestSuite) TestRepeatedFetchIsIdempotent() {
	client := suite.newClient(DefaultClientConfig())
	payload := dailyPoints(suite.now, 30)
	// duplicate and out-of-order rows must normalize the same way every time
	payload = append(payload, payload[3], types.PricePoint{Time: suite.now.AddDate(0, 0, -40), Close: math.NaN()})
	payload[0], payload[5] = payload[5], payload[0]
	suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).Return(payload, nil).Times(2)

	first, err := client.Fetch(context.Background(), NewFetchRequest("BTC-USD", 30))
	suite.Require().NoError(err)
	second, err := client.Fetch(context.Background(), NewFetchRequest("BTC-USD", 30))
	suite.Require().NoError(err)

	suite.Equal(types.SourceLive, first.Source)
	suite.Len(first.Series.Points, 30)
	suite.Equal(first.Series, second.Series)
	suite.Equal(first.Source, second.Source)
}

func (suite *ClientTestSuite) TestCancelledContextFallsBackWithoutCalls() {
	client := suite.newClient(DefaultClientConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := client.Fetch(ctx, NewFetchRequest("BTC-USD", 30))
	suite.Require().NoError(err)
	suite.Equal(types.SourceSynthetic, result.Source)
	suite.Equal(0, result.Attempts)
	suite.Contains(result.FallbackReason, context.Canceled.Error())
}

func (suite *ClientTestSuite) TestSyntheticDataModeSkipsProvider() {
	client, err := NewClient(ClientConfig{DataMode: DataModeSynthetic}, logger.NewNopLogger(),
		WithClock(func() time.Time { return suite.now }))
	suite.Require().NoError(err)
	suite.Equal("synthetic", client.ProviderName())

	result, err := client.Fetch(context.Background(), NewFetchRequest("BTC-USD", 30))
	suite.Require().NoError(err)
	suite.Equal(types.SourceSynthetic, result.Source)
	suite.Equal(0, result.Attempts)
	suite.Equal(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), result.Series.Last().Time)
}

func (suite *ClientTestSuite) TestScenarios() {
	suite.Run("BTC-USD 180 days succeeds after two failures", func() {
		suite.delays = nil
		client := suite.newClient(DefaultClientConfig())
		gomock.InOrder(
			suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).Return(nil, transient()),
			suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).Return(nil, transient()),
			suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).Return(dailyPoints(suite.now, 180), nil),
		)

		result, err := client.Fetch(context.Background(), NewFetchRequest("BTC-USD", 180))
		suite.Require().NoError(err)
		suite.Equal(types.SourceLive, result.Source)
		suite.Equal(3, result.Attempts)
		suite.Len(result.Series.Points, 180)
		suite.Equal([]time.Duration{2 * time.Second, 4 * time.Second}, suite.delays)
	})

	suite.Run("ETH-USD always timing out returns synthetic", func() {
		suite.delays = nil
		client := suite.newClient(DefaultClientConfig())
		suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).
			Return(nil, errors.New(errors.ErrCodeProviderTimeout, "timeout")).Times(3)

		result, err := client.Fetch(context.Background(), NewFetchRequest("ETH-USD", 365))
		suite.Require().NoError(err)
		suite.Equal(types.SourceSynthetic, result.Source)
		suite.Len(result.Series.Points, 365)
	})

	suite.Run("NOT-A-COIN fails", func() {
		suite.delays = nil
		client := suite.newClient(DefaultClientConfig())

		_, err := client.Fetch(context.Background(), NewFetchRequest("NOT-A-COIN", 365))
		suite.Equal(errors.ErrCodeUnsupportedInstrument, errors.GetCode(err))
		suite.Empty(suite.delays)
	})
}

func (suite *ClientTestSuite) TestConcurrentFetches() {
	client := suite.newClient(DefaultClientConfig())
	suite.mockProvider.EXPECT().FetchHistory(gomock.Any(), gomock.Any()).
		Return(dailyPoints(suite.now, 20), nil).AnyTimes()

	var wg sync.WaitGroup
	results := make([]FetchResult, 16)
	errs := make([]error, 16)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbol := DefaultInstruments[i%len(DefaultInstruments)].Symbol
			results[i], errs[i] = client.Fetch(context.Background(), NewFetchRequest(symbol, 20))
		}(i)
	}
	wg.Wait()

	for i := range results {
		suite.NoError(errs[i])
		suite.Equal(types.SourceLive, results[i].Source)
		suite.Len(results[i].Series.Points, 20)
	}
}

func (suite *ClientTestSuite) TestExport() {
	client, err := NewClient(ClientConfig{DataMode: DataModeSynthetic}, logger.NewNopLogger(),
		WithClock(func() time.Time { return suite.now }))
	suite.Require().NoError(err)

	dir := suite.T().TempDir()
	path, result, err := client.Export(context.Background(), ExportParams{
		Request:   NewFetchRequest("ADA-USD", 30),
		Format:    writer.WriterCSV,
		OutputDir: dir,
	})
	suite.Require().NoError(err)
	suite.Equal(filepath.Join(dir, "ADA-USD_2023-07-02_2024-06-30_1d.csv"), path)

	points, err := writer.ReadCSV(path)
	suite.Require().NoError(err)
	suite.Len(points, result.Series.Len())
}

func (suite *ClientTestSuite) TestExportInvalidFormat() {
	client := suite.newClient(DefaultClientConfig())

	_, _, err := client.Export(context.Background(), ExportParams{
		Request:   NewFetchRequest("ADA-USD", 30),
		Format:    writer.WriterType("xlsx"),
		OutputDir: suite.T().TempDir(),
	})
	suite.Equal(errors.ErrCodeInvalidParameter, errors.GetCode(err))
}

func (suite *ClientTestSuite) TestNewClientValidation() {
	tests := []struct {
		name   string
		config ClientConfig
	}{
		{name: "unknown provider", config: ClientConfig{ProviderType: provider.ProviderType("kraken")}},
		{name: "unknown data mode", config: ClientConfig{DataMode: DataMode("replay")}},
		{name: "retry budget too large", config: ClientConfig{Retry: RetryConfig{MaxAttempts: 100}}},
		{name: "polygon without key", config: ClientConfig{ProviderType: provider.ProviderPolygon}},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := NewClient(tc.config, logger.NewNopLogger())
			suite.Error(err)
			suite.Equal(errors.ErrCodeInvalidConfiguration, errors.GetCode(err))
		})
	}
}

func (suite *ClientTestSuite) TestNewClientWithProviderRequiresProviderInLiveMode() {
	_, err := NewClientWithProvider(DefaultClientConfig(), nil, nil)
	suite.Error(err)
	suite.Equal(errors.ErrCodeInvalidConfiguration, errors.GetCode(err))
}
