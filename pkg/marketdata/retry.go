package marketdata

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds how often and how patiently a provider is retried.
type RetryConfig struct {
	// MaxAttempts is the total number of provider calls, including the first.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" validate:"min=1,max=10" jsonschema:"minimum=1,maximum=10,default=3"`
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay" validate:"gte=0" jsonschema_description:"Go duration, e.g. 2s or 1m30s"`
	// Multiplier grows the delay after each failed attempt.
	Multiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" validate:"gte=1" jsonschema:"minimum=1,default=2"`
	// MaxDelay caps any single wait.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay" validate:"gtefield=BaseDelay" jsonschema_description:"Go duration, e.g. 2s or 1m30s"`
}

// DefaultRetryConfig returns 3 attempts waiting 2s then 4s, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultRetryConfig.
func (c RetryConfig) WithDefaults() RetryConfig {
	defaults := DefaultRetryConfig()

	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}

	if c.BaseDelay == 0 {
		c.BaseDelay = defaults.BaseDelay
	}

	if c.Multiplier == 0 {
		c.Multiplier = defaults.Multiplier
	}

	if c.MaxDelay == 0 {
		c.MaxDelay = defaults.MaxDelay
	}

	return c
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		return c.MaxDelay
	}

	return time.Duration(delay)
}

// newBackOff builds the deterministic exponential schedule bounded to MaxAttempts calls
// and to the lifetime of ctx.
func (c RetryConfig) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.BaseDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = c.Multiplier
	exp.MaxInterval = c.MaxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := c.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}
