package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/forecast"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type pricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

type forecastPoint struct {
	Date      string  `json:"date"`
	Yhat      float64 `json:"yhat"`
	YhatLower float64 `json:"yhat_lower"`
	YhatUpper float64 `json:"yhat_upper"`
}

type summaryResponse struct {
	Points        int     `json:"points"`
	Start         string  `json:"start"`
	End           string  `json:"end"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Mean          float64 `json:"mean"`
	Median        float64 `json:"median"`
	Volatility    float64 `json:"volatility"`
	ChangePercent float64 `json:"changePercent"`
}

type forecastResponse struct {
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	Source         types.Source    `json:"source"`
	Synthetic      bool            `json:"synthetic"`
	FallbackReason string          `json:"fallbackReason,omitempty"`
	Model          string          `json:"model"`
	Horizon        int             `json:"horizon"`
	CurrentPrice   float64         `json:"currentPrice"`
	GeneratedAt    time.Time       `json:"generatedAt"`
	Summary        summaryResponse `json:"summary"`
	History        []pricePoint    `json:"history"`
	Forecast       []forecastPoint `json:"forecast"`
}

type instrumentResponse struct {
	Symbol string                     `json:"symbol"`
	Name   string                     `json:"name"`
	Class  marketdata.InstrumentClass `json:"class"`
}

// pricePlaces keeps cents for coins above a dollar and six decimals below.
func pricePlaces(price float64) int32 {
	if math.Abs(price) >= 1 {
		return 2
	}

	return 6
}

// formatFixed renders value with places decimals; decimal cannot hold NaN or Inf.
func formatFixed(value float64, places int32) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "n/a"
	}

	return decimal.NewFromFloat(value).StringFixed(places)
}

func roundPrice(price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return price
	}

	return decimal.NewFromFloat(price).Round(pricePlaces(price)).InexactFloat64()
}

func roundTo(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}

	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

func newForecastResponse(report *forecast.Report) forecastResponse {
	history := make([]pricePoint, len(report.History))
	for i, point := range report.History {
		history[i] = pricePoint{
			Date:  point.Time.Format(types.DateLayout),
			Close: roundPrice(point.Close),
		}
	}

	points := make([]forecastPoint, len(report.Forecast))
	for i, point := range report.Forecast {
		points[i] = forecastPoint{
			Date:      point.Time.Format(types.DateLayout),
			Yhat:      roundPrice(point.Yhat),
			YhatLower: roundPrice(point.YhatLower),
			YhatUpper: roundPrice(point.YhatUpper),
		}
	}

	summary := report.Summary

	return forecastResponse{
		Symbol:         report.Instrument.Symbol,
		Name:           report.Instrument.Name,
		Source:         report.Source,
		Synthetic:      report.IsSynthetic(),
		FallbackReason: report.FallbackReason,
		Model:          report.Model,
		Horizon:        report.Horizon,
		CurrentPrice:   roundPrice(report.CurrentPrice),
		GeneratedAt:    report.GeneratedAt,
		Summary: summaryResponse{
			Points:        summary.Points,
			Start:         summary.Start.Format(types.DateLayout),
			End:           summary.End.Format(types.DateLayout),
			Min:           roundPrice(summary.Min),
			Max:           roundPrice(summary.Max),
			Mean:          roundPrice(summary.Mean),
			Median:        roundPrice(summary.Median),
			Volatility:    roundTo(summary.Volatility, 6),
			ChangePercent: roundTo(summary.ChangePercent, 2),
		},
		History:  history,
		Forecast: points,
	}
}

// statusForError maps error codes onto HTTP statuses: unknown instruments are
// 404, other validation codes 400, everything else 500.
func statusForError(err error) int {
	code := errors.GetCode(err)

	switch {
	case code == errors.ErrCodeUnsupportedInstrument:
		return http.StatusNotFound
	case code >= 100 && code < 200:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var coded *errors.Error
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// writeJSON encodes before writing the header so an unencodable body still
// reaches the client as a 500 envelope.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		s.requestLogger(r).Error("Failed to encode response", zap.Error(err))

		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(envelope{
			Status: statusError,
			Data:   nil,
			Error:  &errorBody{Code: errors.ErrCodeForecastFailed, Message: "failed to encode response"},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(buf.Bytes()); err != nil {
		s.requestLogger(r).Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeData(w http.ResponseWriter, r *http.Request, data any) {
	s.writeJSON(w, r, http.StatusOK, envelope{Status: statusSuccess, Data: data, Error: nil})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.requestLogger(r).Error("Request failed", zap.Error(err))
	}

	code := errors.GetCode(err)

	s.writeJSON(w, r, status, envelope{
		Status: statusError,
		Data:   nil,
		Error:  &errorBody{Code: code, Message: errorMessage(err)},
	})
}
