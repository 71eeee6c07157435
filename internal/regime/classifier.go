// Package regime classifies a bar window into a RegimeContext, grounded on
// the teacher's internal/regime/detector.go — its rolling stddev buffers
// and EMA-based trend strength are kept, its RegimeType vocabulary and
// RegimeState shape are remapped to spec.md §3's enumeration and extended
// with the additive fields (volatility percentile, volume regime,
// time-of-day, day-of-week) the teacher's struct lacks.
package regime

import (
	"math"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/finsight/finsight/pkg/utils"
)

// Classifier derives a RegimeContext from a bar window.
type Classifier struct {
	config types.RegimeConfig
}

// New creates a Classifier with the given configuration.
func New(config types.RegimeConfig) *Classifier {
	return &Classifier{config: config}
}

// Classify computes the RegimeContext for window (spec §4.3). If window is
// shorter than the configured minimum it returns RegimeUnknown with
// neutral defaults rather than an error — regime classification degrades
// gracefully, it does not fail the cycle.
func (c *Classifier) Classify(window []types.Bar) types.RegimeContext {
	if len(window) < c.config.WindowSize {
		return types.RegimeContext{
			Regime:       types.RegimeUnknown,
			Horizon:      types.HorizonIntraday,
			Source:       types.SourceTechnical,
			VolumeRegime: types.VolumeNormal,
			TimeOfDay:    types.TimeMid,
		}
	}

	closes := make([]float64, len(window))
	volumes := make([]float64, len(window))
	for i, b := range window {
		closes[i] = b.Close.InexactFloat64()
		volumes[i] = b.Volume.InexactFloat64()
	}

	rollingStdDevs := c.rollingStdDevs(closes)
	currentStdDev := rollingStdDevs[len(rollingStdDevs)-1]

	trendStrength := c.trendStrength(closes)
	volatilityPercentile := utils.Percentile(rollingStdDevs, currentStdDev)

	newest := window[len(window)-1]
	regimeType := c.classifyRegime(currentStdDev, rollingStdDevs, trendStrength, newest, window)

	volRegime := c.volumeRegime(volumes)
	tod := timeOfDay(newest.Instant)

	return types.RegimeContext{
		Regime:               regimeType,
		Horizon:              types.HorizonIntraday,
		Source:               types.SourceTechnical,
		VolatilityPercentile: volatilityPercentile,
		TrendStrength:        trendStrength,
		VolumeRegime:         volRegime,
		TimeOfDay:            tod,
		DayOfWeek:            int(newest.Instant.Weekday()),
	}
}

// rollingStdDevs computes the stddev of returns over a trailing sub-window
// for every position, producing one value per bar from the configured
// window size onward — the population the current stddev is percentile-
// ranked against.
func (c *Classifier) rollingStdDevs(closes []float64) []float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}

	window := c.config.WindowSize
	if window < 2 {
		window = 2
	}
	var out []float64
	for i := window; i <= len(returns); i++ {
		out = append(out, utils.StdDev(returns[i-window:i]))
	}
	if len(out) == 0 {
		out = []float64{utils.StdDev(returns)}
	}
	return out
}

// trendStrength is (EMA(fast)-EMA(slow))/EMA(slow) per spec §4.3.
func (c *Classifier) trendStrength(closes []float64) float64 {
	fast := utils.NewEMA(c.config.TrendEMAFast)
	slow := utils.NewEMA(c.config.TrendEMASlow)
	var fastVal, slowVal float64
	for _, v := range closes {
		fastVal = fast.Add(v)
		slowVal = slow.Add(v)
	}
	if slowVal == 0 {
		return 0
	}
	return (fastVal - slowVal) / slowVal
}

func (c *Classifier) classifyRegime(currentStdDev float64, rollingStdDevs []float64, trendStrength float64, newest types.Bar, window []types.Bar) types.RegimeType {
	highThreshold := percentileValue(rollingStdDevs, c.config.HighVolPercentile)
	lowThreshold := percentileValue(rollingStdDevs, c.config.LowVolPercentile)

	switch {
	case currentStdDev > highThreshold:
		return types.RegimeHighVolatility
	case currentStdDev < lowThreshold:
		return types.RegimeLowVolatility
	case math.Abs(trendStrength) > c.config.TrendThreshold:
		if trendStrength > 0 {
			return types.RegimeTrendingUp
		}
		return types.RegimeTrendingDown
	case c.isBreakout(newest, window):
		return types.RegimeBreakout
	default:
		return types.RegimeRanging
	}
}

// isBreakout reports whether the newest close is at or above
// BreakoutCloseFactor (default 0.99) of the rolling window high.
func (c *Classifier) isBreakout(newest types.Bar, window []types.Bar) bool {
	high := window[0].High
	for _, b := range window {
		if b.High.GreaterThan(high) {
			high = b.High
		}
	}
	if high.IsZero() {
		return false
	}
	ratio := newest.Close.InexactFloat64() / high.InexactFloat64()
	return ratio >= c.config.BreakoutCloseFactor
}

func (c *Classifier) volumeRegime(volumes []float64) types.VolumeRegime {
	mean := utils.Mean(volumes[:len(volumes)-1])
	current := volumes[len(volumes)-1]
	if mean == 0 {
		return types.VolumeNormal
	}
	ratio := current / mean
	switch {
	case ratio > c.config.VolumeHighFactor:
		return types.VolumeHigh
	case ratio < c.config.VolumeLowFactor:
		return types.VolumeLow
	default:
		return types.VolumeNormal
	}
}

// timeOfDay buckets the local hour of t per spec §4.3.
func timeOfDay(t time.Time) types.TimeOfDay {
	hour := t.Hour()
	switch {
	case hour < 10:
		return types.TimeOpen
	case hour < 14:
		return types.TimeMid
	case hour < 16:
		return types.TimeClose
	default:
		return types.TimeAfterHours
	}
}

// percentileValue returns the value at the given percentile (0-100) of a
// float64 population: the sorted element at index floor(pct/100*(n-1)),
// without interpolation.
func percentileValue(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	idx := int(pct / 100 * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
