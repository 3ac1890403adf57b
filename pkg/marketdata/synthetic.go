package marketdata

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-forecast/internal/types"
)

// SyntheticConfig configures the fallback series generator.
type SyntheticConfig struct {
	// Length is the number of points generated.
	Length int `yaml:"length" json:"length" validate:"min=2,max=5000" jsonschema:"minimum=2,default=365"`
	// MinPriceRatio sets the price floor as a fraction of the class base price.
	MinPriceRatio float64 `yaml:"min_price_ratio" json:"min_price_ratio" validate:"gt=0,lt=1" jsonschema:"default=0.01"`
	// Seed fixes the random walk. Zero derives the seed from symbol and end date.
	Seed int64 `yaml:"seed" json:"seed"`
}

// DefaultSyntheticConfig returns 365 points with a floor at 1% of the base price.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Length:        365,
		MinPriceRatio: 0.01,
		Seed:          0,
	}
}

// WithDefaults fills zero fields from DefaultSyntheticConfig.
func (c SyntheticConfig) WithDefaults() SyntheticConfig {
	defaults := DefaultSyntheticConfig()

	if c.Length == 0 {
		c.Length = defaults.Length
	}

	if c.MinPriceRatio == 0 {
		c.MinPriceRatio = defaults.MinPriceRatio
	}

	return c
}

// WalkParams are the random walk parameters for an instrument class.
type WalkParams struct {
	BasePrice float64
	// Volatility is the maximum relative move per step.
	Volatility float64
}

var classWalkParams = map[InstrumentClass]WalkParams{
	ClassMajor:    {BasePrice: 30000, Volatility: 0.03},
	ClassLargeCap: {BasePrice: 2000, Volatility: 0.04},
	ClassAltcoin:  {BasePrice: 0.5, Volatility: 0.05},
}

// ParamsForClass returns the walk parameters of a class. Unknown classes use the altcoin profile.
func ParamsForClass(class InstrumentClass) WalkParams {
	if params, ok := classWalkParams[class]; ok {
		return params
	}

	return classWalkParams[ClassAltcoin]
}

// SyntheticGenerator produces placeholder series when live data is unavailable.
// Output is deterministic for equal inputs.
type SyntheticGenerator struct {
	config SyntheticConfig
}

// NewSyntheticGenerator creates a generator, filling zero config fields with defaults.
func NewSyntheticGenerator(config SyntheticConfig) *SyntheticGenerator {
	return &SyntheticGenerator{config: config.WithDefaults()}
}

// Generate returns a bounded random walk of Length points whose last point is the
// interval bucket containing end. Every price is strictly positive.
func (g *SyntheticGenerator) Generate(instrument Instrument, interval types.Interval, end time.Time) types.PriceSeries {
	params := ParamsForClass(instrument.Class)
	floor := params.BasePrice * g.config.MinPriceRatio
	last := interval.Truncate(end)
	rng := rand.New(rand.NewSource(g.seed(instrument.Symbol, interval, last)))

	points := make([]types.PricePoint, g.config.Length)
	price := params.BasePrice

	for i := 0; i < g.config.Length; i++ {
		if i > 0 {
			u := rng.Float64()*2 - 1
			price = math.Max(floor, price+u*params.Volatility*price)
		}

		points[i] = types.PricePoint{
			Time:  stepBack(last, interval, g.config.Length-1-i),
			Close: roundToDecimals(price, 6),
		}
	}

	return types.PriceSeries{
		Symbol:   instrument.Symbol,
		Interval: interval,
		Points:   points,
	}
}

func (g *SyntheticGenerator) seed(symbol string, interval types.Interval, end time.Time) int64 {
	if g.config.Seed != 0 {
		return g.config.Seed
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol + "|" + string(interval) + "|" + end.Format(types.DateLayout)))

	return int64(h.Sum64())
}

func stepBack(t time.Time, interval types.Interval, steps int) time.Time {
	if interval == types.IntervalWeekly {
		return t.AddDate(0, 0, -7*steps)
	}

	return t.AddDate(0, 0, -steps)
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
