// Package detector implements FinSight's anomaly detector: from a bar
// window it produces zero or more Anomaly events for the newest bar via
// z-score tests. Grounded on original_source/detection/real_detector.py's
// z-score thresholds and severity bands, translated to idiomatic Go and
// driven off pkg/utils' mean/stddev helpers the way the teacher's
// regime/detector.go drives its own statistics.
package detector

import (
	"math"

	"github.com/finsight/finsight/internal/finsighterrors"
	"github.com/finsight/finsight/pkg/types"
	"github.com/finsight/finsight/pkg/utils"
	"github.com/google/uuid"
)

// Detector evaluates a bar window against configured per-pattern
// thresholds. It is a pure function of its inputs (spec §4.2 determinism).
type Detector struct {
	config types.DetectorConfig
}

// New creates a Detector with the given configuration.
func New(config types.DetectorConfig) *Detector {
	return &Detector{config: config}
}

// Detect evaluates the newest bar in window against the prior bars and
// returns zero or more anomalies. window must be sorted ascending by
// Instant with the newest bar last. An InsufficientData error is returned
// (never panics) when window is shorter than the configured minimum.
func (d *Detector) Detect(symbol string, window []types.Bar, thresholds *types.DetectionThreshold) ([]types.Anomaly, error) {
	min := d.config.WindowSize
	if len(window) < min {
		return nil, finsighterrors.New(finsighterrors.CodeInsufficientData,
			"bar window shorter than the detector's minimum")
	}

	newest := window[len(window)-1]
	reference := window[:len(window)-1]

	volumeThreshold := d.config.Volume.ZThreshold
	priceThreshold := d.config.Price.ZThreshold
	rangeThreshold := d.config.Range.ZThreshold
	if thresholds != nil {
		// A per-(user,pattern,symbol) override supersedes all three system
		// defaults for this evaluation (spec §4.2's override precedence is
		// defined per pattern_type; callers evaluating a single pattern
		// pass a threshold scoped to that pattern).
		volumeThreshold = thresholds.ZThreshold
		priceThreshold = thresholds.ZThreshold
		rangeThreshold = thresholds.ZThreshold
	}

	var anomalies []types.Anomaly

	volumeZ, haveVolumeZ := d.rawVolumeZ(reference, newest)
	if haveVolumeZ && math.Abs(volumeZ) >= volumeThreshold && newest.Volume.InexactFloat64() >= d.config.Volume.MinValueFloor {
		anomalies = append(anomalies, d.newAnomaly(symbol, types.PatternVolumeSpike, math.Abs(volumeZ), newest))
	}

	if priceZ, ok := d.priceMomentum(reference, newest, priceThreshold); ok {
		anomalies = append(anomalies, d.newAnomaly(symbol, types.PatternPriceMomentum, priceZ, newest))
	}

	if rangeZ, ok := d.volatilitySurge(reference, newest, rangeThreshold); ok {
		anomalies = append(anomalies, d.newAnomaly(symbol, types.PatternVolatilitySurge, rangeZ, newest))
	}

	if pattern, z, ok := d.breakout(reference, newest, volumeZ, haveVolumeZ); ok {
		anomalies = append(anomalies, d.newAnomaly(symbol, pattern, z, newest))
	}

	return anomalies, nil
}

func (d *Detector) newAnomaly(symbol string, pattern types.PatternType, z float64, newest types.Bar) types.Anomaly {
	a := types.Anomaly{
		ID:          uuid.New().String(),
		Symbol:      symbol,
		PatternType: pattern,
		Severity:    types.SeverityFromZScore(z),
		ZScore:      z,
		Price:       newest.Close,
		Volume:      newest.Volume,
		DetectedAt:  newest.Instant,
	}
	a.Narrative = buildNarrative(pattern, z, a.Severity, newest)
	return a
}

// rawVolumeZ computes the signed volume z-score against the reference
// window without applying any threshold — shared by the volume_spike test
// and the breakout rule's separate floor check (spec §4.2).
func (d *Detector) rawVolumeZ(reference []types.Bar, newest types.Bar) (float64, bool) {
	volumes := make([]float64, len(reference))
	for i, b := range reference {
		volumes[i] = b.Volume.InexactFloat64()
	}
	mean := utils.Mean(volumes)
	std := utils.StdDev(volumes)
	if std == 0 {
		return 0, false
	}
	return utils.ZScore(newest.Volume.InexactFloat64(), mean, std), true
}

// priceMomentum implements spec §4.2 rule 2.
func (d *Detector) priceMomentum(reference []types.Bar, newest types.Bar, threshold float64) (float64, bool) {
	closes := make([]float64, 0, len(reference)+1)
	for _, b := range reference {
		closes = append(closes, b.Close.InexactFloat64())
	}
	closes = append(closes, newest.Close.InexactFloat64())

	if len(closes) < 3 {
		return 0, false
	}

	returns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			returns[i-1] = 0
			continue
		}
		returns[i-1] = (closes[i] - prev) / prev
	}

	current := returns[len(returns)-1]
	prior := returns[:len(returns)-1]
	mean := utils.Mean(prior)
	std := utils.StdDev(prior)
	if std == 0 {
		return 0, false
	}
	if math.Abs(current) < d.config.Price.MinChange {
		return 0, false
	}

	z := utils.ZScore(current, mean, std)
	return math.Abs(z), math.Abs(z) >= threshold
}

// volatilitySurge implements spec §4.2 rule 3.
func (d *Detector) volatilitySurge(reference []types.Bar, newest types.Bar, threshold float64) (float64, bool) {
	rangePct := func(b types.Bar) float64 {
		if b.Close.IsZero() {
			return 0
		}
		return b.High.Sub(b.Low).Div(b.Close).InexactFloat64()
	}

	ranges := make([]float64, len(reference))
	for i, b := range reference {
		ranges[i] = rangePct(b)
	}
	mean := utils.Mean(ranges)
	std := utils.StdDev(ranges)
	if std == 0 {
		return 0, false
	}

	z := utils.ZScore(rangePct(newest), mean, std)
	return math.Abs(z), math.Abs(z) >= threshold
}

// breakout implements the auxiliary rule: newest high/low exceeds the
// extreme of the prior 20 bars AND volume z >= the configured floor,
// carrying the volume z as its z_score.
func (d *Detector) breakout(reference []types.Bar, newest types.Bar, volumeZ float64, haveVolumeZ bool) (types.PatternType, float64, bool) {
	if len(reference) == 0 {
		return "", 0, false
	}
	if !haveVolumeZ {
		return "", 0, false
	}
	if volumeZ < d.config.BreakoutVolumeZFloor {
		return "", 0, false
	}

	lookback := reference
	if len(lookback) > 20 {
		lookback = lookback[len(lookback)-20:]
	}
	high20 := lookback[0].High
	low20 := lookback[0].Low
	for _, b := range lookback {
		if b.High.GreaterThan(high20) {
			high20 = b.High
		}
		if b.Low.LessThan(low20) {
			low20 = b.Low
		}
	}

	switch {
	case newest.High.GreaterThan(high20):
		return types.PatternBreakoutHigh, math.Max(volumeZ, d.config.BreakoutVolumeZFloor), true
	case newest.Low.LessThan(low20):
		return types.PatternBreakoutLow, math.Max(volumeZ, d.config.BreakoutVolumeZFloor), true
	default:
		return "", 0, false
	}
}
