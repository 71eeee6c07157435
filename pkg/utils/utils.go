// Package utils provides small numeric and retry helpers shared across
// FinSight's detection, classification, and adapter components.
package utils

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Mean returns the arithmetic mean of a float64 series, or 0 for an empty
// series.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of a float64 series
// (divisor N, not N-1) — the detector's reference windows are treated as
// the full population being compared against, not a sample of a larger one.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	sumSquares := 0.0
	for _, v := range values {
		d := v - mean
		sumSquares += d * d
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

// ZScore returns (value-mean)/stddev, or 0 if stddev is zero — callers must
// check StdDev themselves when a zero stddev should instead skip the test.
func ZScore(value, mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	return (value - mean) / stddev
}

// Percentile returns the share of values strictly below target, as a
// percentage in [0,100].
func Percentile(values []float64, target float64) float64 {
	if len(values) == 0 {
		return 0
	}
	below := 0
	for _, v := range values {
		if v < target {
			below++
		}
	}
	return float64(below) / float64(len(values)) * 100
}

// Clamp bounds value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampDecimal bounds value to [min, max].
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// MinDecimal returns the minimum of two decimals.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the maximum of two decimals.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// RetryConfig contains exponential-backoff retry configuration.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry retries fn with exponential backoff until it succeeds or
// MaxAttempts is exhausted. The returned error wraps the final attempt's
// error so callers can classify it (e.g. as TransientExternal).
func Retry[T any](config RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if attempt == config.MaxAttempts {
			break
		}

		time.Sleep(delay)
		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return result, fmt.Errorf("after %d attempts: %w", config.MaxAttempts, err)
}

// BatchProcess processes items in fixed-size batches, accumulating results.
func BatchProcess[T any, R any](items []T, batchSize int, fn func([]T) ([]R, error)) ([]R, error) {
	var results []R

	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}

		batch := items[i:end]
		batchResults, err := fn(batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d failed: %w", i, end, err)
		}

		results = append(results, batchResults...)
	}

	return results, nil
}

// EMA calculates an exponential moving average over a float64 stream.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates an EMA calculator for the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

// Add adds a value and returns the updated EMA.
func (e *EMA) Add(value float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = value
		return e.current
	}
	e.current = (value-e.current)*e.multiplier + e.current
	return e.current
}

// Current returns the current EMA value.
func (e *EMA) Current() float64 {
	return e.current
}

// Ready reports whether the EMA has seen at least `period` values.
func (e *EMA) Ready() bool {
	return e.count >= e.period
}
