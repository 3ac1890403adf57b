package marketdata

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
)

// DefaultDays is the lookback used when a request names neither a day count nor a range.
const DefaultDays = 365

// MaxDays bounds the lookback of a single request, roughly one hundred years.
const MaxDays = 36500

// FetchRequest describes one series fetch. It is a value type built per call.
type FetchRequest struct {
	// Instrument is resolved by the registry, so a blank symbol is an unsupported instrument.
	Instrument string
	// Days is the lookback ending today (UTC). Values <= 0 mean DefaultDays.
	Days int `validate:"lte=36500"`
	// Start and End select an explicit window and take precedence over Days.
	Start    optional.Option[time.Time]
	End      optional.Option[time.Time]
	Interval types.Interval `validate:"omitempty,oneof=1d 1w"`
}

// NewFetchRequest creates a daily request for the last days days.
func NewFetchRequest(symbol string, days int) FetchRequest {
	return FetchRequest{
		Instrument: symbol,
		Days:       days,
		Start:      optional.None[time.Time](),
		End:        optional.None[time.Time](),
		Interval:   types.IntervalDaily,
	}
}

// NewRangeRequest creates a daily request for the window [start, end].
func NewRangeRequest(symbol string, start, end time.Time) FetchRequest {
	return FetchRequest{
		Instrument: symbol,
		Days:       0,
		Start:      optional.Some(start),
		End:        optional.Some(end),
		Interval:   types.IntervalDaily,
	}
}

// WithInterval returns a copy of the request sampling at the given interval.
func (r FetchRequest) WithInterval(interval types.Interval) FetchRequest {
	r.Interval = interval

	return r
}

// Validate checks field constraints and returns ErrCodeInvalidParameter on failure.
func (r FetchRequest) Validate(validate *validator.Validate) error {
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid fetch request", err)
	}

	return nil
}

func (r FetchRequest) interval() types.Interval {
	if r.Interval == "" {
		return types.IntervalDaily
	}

	return r.Interval
}

func (r FetchRequest) days() int {
	if r.Days <= 0 {
		return DefaultDays
	}

	return r.Days
}

// Window resolves the request to a concrete [start, end] range in UTC.
// An explicit End before Start is ErrCodeInvalidParameter.
func (r FetchRequest) Window(now time.Time) (start time.Time, end time.Time, err error) {
	end = now.UTC()
	if r.End.IsSome() {
		end = r.End.Unwrap().UTC()
	}

	if r.Start.IsSome() {
		start = r.Start.Unwrap().UTC()
	} else {
		start = end.AddDate(0, 0, -r.days())
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"invalid date range: end %s is before start %s", end.Format(types.DateLayout), start.Format(types.DateLayout))
	}

	return start, end, nil
}
