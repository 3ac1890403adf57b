package marketdata

import (
	"math"
	"sort"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

// Normalize turns raw provider observations into a canonical series:
// non-finite and negative prices are dropped, timestamps are bucketed to the
// interval start in UTC, and the latest observation in each bucket wins.
// The result is sorted ascending with unique timestamps.
//
// Normalize is pure and idempotent. A result with no points is
// ErrCodeNormalizationFailed, which callers treat as transient.
func Normalize(symbol string, interval types.Interval, raw []types.PricePoint) (types.PriceSeries, error) {
	series := types.PriceSeries{
		Symbol:   symbol,
		Interval: interval,
		Points:   nil,
	}

	valid := make([]types.PricePoint, 0, len(raw))

	for _, p := range raw {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close < 0 {
			continue
		}

		valid = append(valid, types.PricePoint{Time: p.Time.UTC(), Close: p.Close})
	}

	if len(valid) == 0 {
		return series, errors.Newf(errors.ErrCodeNormalizationFailed,
			"no valid prices for %s after normalization (%d raw rows)", symbol, len(raw))
	}

	// Stable so that equal timestamps keep provider order and the later row wins.
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Time.Before(valid[j].Time)
	})

	points := make([]types.PricePoint, 0, len(valid))

	for _, p := range valid {
		bucket := interval.Truncate(p.Time)
		n := len(points)

		if n > 0 && points[n-1].Time.Equal(bucket) {
			points[n-1].Close = p.Close

			continue
		}

		points = append(points, types.PricePoint{Time: bucket, Close: p.Close})
	}

	series.Points = points

	return series, nil
}
