package types

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the calendar date format used in CSV exports, CLI flags and API responses.
const DateLayout = time.DateOnly

// ParseDate parses a DateLayout string as a UTC midnight timestamp.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}

// Interval is the sampling interval of a price series.
type Interval string

const (
	// IntervalDaily samples one close per UTC calendar day.
	IntervalDaily Interval = "1d"
	// IntervalWeekly samples one close per ISO week, keyed on the Monday.
	IntervalWeekly Interval = "1w"
)

// Duration returns the nominal step between two consecutive points.
func (i Interval) Duration() time.Duration {
	switch i {
	case IntervalWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Truncate maps t onto the start of the interval bucket it belongs to, in UTC.
func (i Interval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	if i == IntervalWeekly {
		// time.Weekday counts from Sunday; ISO weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7

		return day.AddDate(0, 0, -offset)
	}

	return day
}

// Valid reports whether the interval is one the pipeline can serve.
func (i Interval) Valid() bool {
	return i == IntervalDaily || i == IntervalWeekly
}

// Source tells whether a series came from a market data provider or was generated.
type Source string

const (
	// SourceLive marks data returned by a market data provider.
	SourceLive Source = "live"
	// SourceSynthetic marks placeholder data produced when the provider is unavailable.
	SourceSynthetic Source = "synthetic"
)

// PricePoint is a single (timestamp, closing price) observation.
type PricePoint struct {
	Time  time.Time `json:"time" csv:"date"`
	Close float64   `json:"close" csv:"close"`
}

// PriceSeries is an ordered close-price series for one instrument.
type PriceSeries struct {
	Symbol   string       `json:"symbol"`
	Interval Interval     `json:"interval"`
	Points   []PricePoint `json:"points"`
}

// Len returns the number of points in the series.
func (s PriceSeries) Len() int {
	return len(s.Points)
}

// IsEmpty reports whether the series has no points. An empty series is absent data.
func (s PriceSeries) IsEmpty() bool {
	return len(s.Points) == 0
}

// First returns the oldest point. It panics on an empty series.
func (s PriceSeries) First() PricePoint {
	return s.Points[0]
}

// Last returns the most recent point. It panics on an empty series.
func (s PriceSeries) Last() PricePoint {
	return s.Points[len(s.Points)-1]
}

// Closes returns the close prices in series order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}

	return closes
}

// Dates returns the point timestamps in series order.
func (s PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		dates[i] = p.Time
	}

	return dates
}

// Validate checks the series invariants: non-empty, strictly ascending
// timestamps, and finite non-negative prices.
func (s PriceSeries) Validate() error {
	if s.IsEmpty() {
		return fmt.Errorf("series %s is empty", s.Symbol)
	}

	for i, p := range s.Points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return fmt.Errorf("series %s: non-finite price at %s", s.Symbol, p.Time.Format(time.DateOnly))
		}

		if p.Close < 0 {
			return fmt.Errorf("series %s: negative price %f at %s", s.Symbol, p.Close, p.Time.Format(time.DateOnly))
		}

		if i > 0 && !p.Time.After(s.Points[i-1].Time) {
			return fmt.Errorf("series %s: timestamp %s not after %s", s.Symbol,
				p.Time.Format(time.RFC3339), s.Points[i-1].Time.Format(time.RFC3339))
		}
	}

	return nil
}

// ForecastPoint is one row of forecaster output: point estimate plus uncertainty band.
type ForecastPoint struct {
	Time      time.Time `json:"time" csv:"date"`
	Yhat      float64   `json:"yhat" csv:"yhat"`
	YhatLower float64   `json:"yhat_lower" csv:"yhat_lower"`
	YhatUpper float64   `json:"yhat_upper" csv:"yhat_upper"`
}
