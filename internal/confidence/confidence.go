// Package confidence computes FinSight's composite confidence score (spec
// §4.4), a pure function combining statistical, behavioral, regime, and
// data-quality signals with an uncertainty discount. Its weighted-source
// aggregation shape is grounded on the teacher's
// internal/signals/aggregator.go weighted-combination idiom; the formula
// itself is spec-defined and has no direct teacher analogue.
package confidence

import (
	"fmt"

	"github.com/finsight/finsight/pkg/types"
	"github.com/finsight/finsight/pkg/utils"
)

// Inputs bundles everything the composite-confidence computation needs.
type Inputs struct {
	ZScore             float64
	PatternType        types.PatternType
	Regime             types.RegimeContext
	History            *types.PatternQuality // nil if no prior row
	RegimeConfidence    float64               // from the causal learner; 0.5 if none
	DataPoints         int
	ConflictingSignals int
}

// Calculator computes CompositeConfidence from Inputs.
type Calculator struct {
	weights types.ConfidenceWeights
}

// New creates a Calculator with the given weighting configuration.
func New(weights types.ConfidenceWeights) *Calculator {
	return &Calculator{weights: weights}
}

// Compute implements spec §4.4's formula exactly.
func (c *Calculator) Compute(in Inputs) types.CompositeConfidence {
	statistical := utils.Clamp((in.ZScore-1)/4, 0, 1)

	behavioral := 0.5
	if in.History != nil && in.History.SampleSize >= 5 {
		behavioral = 0.6*in.History.Accuracy + 0.2*in.History.TradeRate + 0.2*in.History.AgentAccuracy
	}

	regimeScore := utils.Clamp(in.RegimeConfidence, 0, 1)

	dataQuality := dataQualityScore(in.DataPoints)

	uncertainty := 0.0
	if in.Regime.Regime == types.RegimeUnknown {
		uncertainty += 0.20
	}
	if in.History == nil || in.History.SampleSize < 10 {
		uncertainty += 0.15
	}
	conflicts := in.ConflictingSignals
	if conflicts > 3 {
		conflicts = 3
	}
	uncertainty += 0.10 * float64(conflicts)
	if in.Regime.VolatilityPercentile > 80 {
		uncertainty += 0.10
	}
	uncertainty = utils.Clamp(uncertainty, 0, 1)

	weighted := c.weights.Statistical*statistical +
		c.weights.Behavioral*behavioral +
		c.weights.Regime*regimeScore +
		c.weights.DataQuality*dataQuality

	composite := weighted * (1 - c.weights.UncertaintyDiscount*uncertainty)

	return types.CompositeConfidence{
		Statistical: statistical,
		Behavioral:  behavioral,
		Regime:      regimeScore,
		DataQuality: dataQuality,
		Uncertainty: uncertainty,
		Composite:   composite,
	}
}

func dataQualityScore(bars int) float64 {
	switch {
	case bars >= 50:
		return 1.0
	case bars >= 30:
		return 0.8
	case bars >= 20:
		return 0.6
	default:
		return 0.4
	}
}

// Breakdown produces a textual summary of the strongest and weakest
// dimensions of a CompositeConfidence, for display alongside a decision.
func Breakdown(cc types.CompositeConfidence) string {
	dims := map[string]float64{
		"statistical": cc.Statistical,
		"behavioral":  cc.Behavioral,
		"regime":      cc.Regime,
		"data_quality": cc.DataQuality,
	}
	strongest, weakest := "", ""
	var strongestVal, weakestVal float64
	first := true
	for name, val := range dims {
		if first || val > strongestVal {
			strongest, strongestVal = name, val
		}
		if first || val < weakestVal {
			weakest, weakestVal = name, val
		}
		first = false
	}
	return fmt.Sprintf("composite=%.2f (strongest: %s=%.2f, weakest: %s=%.2f, uncertainty=%.2f)",
		cc.Composite, strongest, strongestVal, weakest, weakestVal, cc.Uncertainty)
}
