package provider

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

type CoinGeckoClientTestSuite struct {
	suite.Suite
	req HistoryRequest
}

func TestCoinGeckoClientSuite(t *testing.T) {
	suite.Run(t, new(CoinGeckoClientTestSuite))
}

func (suite *CoinGeckoClientTestSuite) SetupTest() {
	suite.req = HistoryRequest{
		Symbol:         "BTC-USD",
		ProviderSymbol: "bitcoin",
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Interval:       types.IntervalDaily,
	}
}

func (suite *CoinGeckoClientTestSuite) newServer(status int, body string, inspect func(r *http.Request)) *httptest.Server {
	router := mux.NewRouter()
	router.HandleFunc("/coins/{id}/market_chart/range", func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}).Methods(http.MethodGet)

	server := httptest.NewServer(router)
	suite.T().Cleanup(server.Close)

	return server
}

func (suite *CoinGeckoClientTestSuite) newClient(server *httptest.Server, apiKey string) Provider {
	client, err := NewCoinGeckoClient(Config{BaseURL: server.URL, APIKey: apiKey, Timeout: 2 * time.Second})
	suite.Require().NoError(err)

	return client
}

func (suite *CoinGeckoClientTestSuite) TestFetchHistorySuccess() {
	var gotID, gotFrom, gotTo, gotCurrency, gotKey string
	server := suite.newServer(http.StatusOK, `{"prices":[[1704067200000,42283.58],[1704153600000,44187.14],[1704240000000,null]]}`, func(r *http.Request) {
		gotID = mux.Vars(r)["id"]
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		gotCurrency = r.URL.Query().Get("vs_currency")
		gotKey = r.Header.Get(coinGeckoAPIKeyHeader)
	})
	client := suite.newClient(server, "demo-key")

	points, err := client.FetchHistory(context.Background(), suite.req)
	suite.Require().NoError(err)
	suite.Require().Len(points, 3)
	suite.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), points[0].Time)
	suite.InDelta(42283.58, points[0].Close, 1e-9)
	suite.True(math.IsNaN(points[2].Close))

	suite.Equal("bitcoin", gotID)
	suite.Equal("1704067200", gotFrom)
	suite.Equal("1704240000", gotTo)
	suite.Equal("usd", gotCurrency)
	suite.Equal("demo-key", gotKey)
}

func (suite *CoinGeckoClientTestSuite) TestFetchHistoryWithoutAPIKeyOmitsHeader() {
	var present bool
	server := suite.newServer(http.StatusOK, `{"prices":[[1704067200000,1.0]]}`, func(r *http.Request) {
		_, present = r.Header[http.CanonicalHeaderKey(coinGeckoAPIKeyHeader)]
	})

	_, err := suite.newClient(server, "").FetchHistory(context.Background(), suite.req)
	suite.Require().NoError(err)
	suite.False(present)
}

func (suite *CoinGeckoClientTestSuite) TestFetchHistoryFailures() {
	tests := []struct {
		name      string
		status    int
		body      string
		code      errors.ErrorCode
		retryable bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"status":{"error_code":429}}`, code: errors.ErrCodeProviderRateLimited, retryable: true},
		{name: "server error", status: http.StatusServiceUnavailable, body: `oops`, code: errors.ErrCodeProviderUnavailable, retryable: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"pro only"}`, code: errors.ErrCodeProviderRejectedRequest, retryable: false},
		{name: "unknown coin", status: http.StatusNotFound, body: `{"error":"coin not found"}`, code: errors.ErrCodeProviderRejectedRequest, retryable: false},
		{name: "html body", status: http.StatusOK, body: `<html>slow down</html>`, code: errors.ErrCodeMarketDataParseFailed, retryable: true},
		{name: "malformed json", status: http.StatusOK, body: `{"prices":[[`, code: errors.ErrCodeMarketDataParseFailed, retryable: true},
		{name: "empty body", status: http.StatusOK, body: ``, code: errors.ErrCodeNoDataFound, retryable: true},
		{name: "no prices", status: http.StatusOK, body: `{"prices":[]}`, code: errors.ErrCodeNoDataFound, retryable: true},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			server := suite.newServer(tc.status, tc.body, nil)

			_, err := suite.newClient(server, "").FetchHistory(context.Background(), suite.req)
			suite.Require().Error(err)
			suite.Equal(tc.code, errors.GetCode(err))
			suite.Equal(tc.retryable, errors.IsRetryable(err))
		})
	}
}

func (suite *CoinGeckoClientTestSuite) TestFetchHistoryTimeout() {
	router := mux.NewRouter()
	router.HandleFunc("/coins/{id}/market_chart/range", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"prices":[]}`))
	})
	server := httptest.NewServer(router)
	defer server.Close()

	client, err := NewCoinGeckoClient(Config{BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	suite.Require().NoError(err)

	_, err = client.FetchHistory(context.Background(), suite.req)
	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeProviderTimeout, errors.GetCode(err))
	suite.True(errors.IsRetryable(err))
}

func (suite *CoinGeckoClientTestSuite) TestName() {
	client, err := NewCoinGeckoClient(Config{})
	suite.Require().NoError(err)
	suite.Equal("coingecko", client.Name())
}
