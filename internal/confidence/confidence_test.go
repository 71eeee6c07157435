package confidence_test

import (
	"testing"

	"github.com/finsight/finsight/internal/confidence"
	"github.com/finsight/finsight/pkg/types"
)

func TestComputeBounds(t *testing.T) {
	calc := confidence.New(types.DefaultConfidenceWeights())

	cc := calc.Compute(confidence.Inputs{
		ZScore:      6.0,
		PatternType: types.PatternVolumeSpike,
		Regime:      types.RegimeContext{Regime: types.RegimeRanging, VolatilityPercentile: 40},
		History:     &types.PatternQuality{Accuracy: 0.72, TradeRate: 0.55, AgentAccuracy: 0.70, SampleSize: 30},
		RegimeConfidence: 0.8,
		DataPoints:  60,
	})

	if cc.Composite < 0 || cc.Composite > 1 {
		t.Fatalf("composite = %v, want in [0,1]", cc.Composite)
	}
	weightedSum := 0.25*cc.Statistical + 0.30*cc.Behavioral + 0.25*cc.Regime + 0.20*cc.DataQuality
	if cc.Composite > weightedSum+1e-9 {
		t.Errorf("composite %v exceeds weighted sum %v; uncertainty must never increase it", cc.Composite, weightedSum)
	}
}

func TestComputeUnknownRegimeRaisesUncertainty(t *testing.T) {
	calc := confidence.New(types.DefaultConfidenceWeights())

	known := calc.Compute(confidence.Inputs{ZScore: 3, Regime: types.RegimeContext{Regime: types.RegimeRanging}, DataPoints: 60, History: &types.PatternQuality{SampleSize: 20, Accuracy: 0.5}})
	unknown := calc.Compute(confidence.Inputs{ZScore: 3, Regime: types.RegimeContext{Regime: types.RegimeUnknown}, DataPoints: 60, History: &types.PatternQuality{SampleSize: 20, Accuracy: 0.5}})

	if unknown.Uncertainty <= known.Uncertainty {
		t.Errorf("expected unknown regime to raise uncertainty above known regime: %v vs %v", unknown.Uncertainty, known.Uncertainty)
	}
}

func TestNoHistoryDefaultsBehavioralToHalf(t *testing.T) {
	calc := confidence.New(types.DefaultConfidenceWeights())
	cc := calc.Compute(confidence.Inputs{ZScore: 3, Regime: types.RegimeContext{Regime: types.RegimeRanging}, DataPoints: 60})
	if cc.Behavioral != 0.5 {
		t.Errorf("behavioral = %v, want 0.5 with no history", cc.Behavioral)
	}
}
