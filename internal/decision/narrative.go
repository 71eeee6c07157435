package decision

import (
	"fmt"

	"github.com/finsight/finsight/pkg/types"
)

// riskAssessment derives a one-sentence risk gloss from volatility
// percentile, volume regime, time of day and z-score extremity, per
// spec's requirement that every decision carry this independent of
// which rule fired.
func riskAssessment(in Input) string {
	risk := "normal risk profile"
	switch {
	case in.Regime.VolatilityPercentile >= 90:
		risk = "elevated risk: volatility is in the top decile for this symbol"
	case in.Regime.VolatilityPercentile >= 75:
		risk = "above-average volatility"
	}

	if in.Regime.VolumeRegime == types.VolumeLow {
		risk += "; thin volume may exaggerate price impact"
	} else if in.Regime.VolumeRegime == types.VolumeHigh {
		risk += "; heavy volume supports the move's liquidity"
	}

	if in.Regime.TimeOfDay == types.TimeOpen || in.Regime.TimeOfDay == types.TimeClose {
		risk += fmt.Sprintf("; occurring near the %s, where noise is typically higher", in.Regime.TimeOfDay)
	}

	if in.Anomaly.ZScore >= 5.0 {
		risk += fmt.Sprintf("; z-score of %.1f is an extreme outlier even for this pattern", in.Anomaly.ZScore)
	}

	return risk
}

// invalidation states the condition that would flip this decision, so a
// reviewer knows what to watch for.
func invalidation(in Input, d types.Decision) string {
	switch d.RejectionReason {
	case "poor_history":
		return fmt.Sprintf("would reconsider if this pattern's recorded accuracy for %s rises above %.0f%%", in.Anomaly.Symbol, 100*in.History.Quality.Accuracy)
	case "unfavorable_regime":
		return "would reconsider if the regime classification changes or the z-score climbs further"
	case "insufficient_data":
		return "would reconsider once data quality improves above the minimum floor"
	}

	switch d.EscalationReason {
	case "high_uncertainty":
		return "would escalate to execute if uncertainty drops and composite confidence holds"
	case "first_occurrence":
		return "would treat future occurrences routinely once the causal learner has a prior for this pattern and regime"
	}

	switch d.State {
	case types.StateExecute:
		return "would downgrade if the composite confidence or z-score falls back below the execute bar on the next bar"
	case types.StateReview:
		return "would upgrade to execute if z-score strengthens, or downgrade if composite confidence fades"
	case types.StateMonitor:
		return "would escalate to review if composite confidence continues to climb"
	default:
		return "would only become actionable if composite confidence rises materially on a subsequent bar"
	}
}

// story packages the four-part human-readable narration.
func story(in Input, d types.Decision) types.Story {
	return types.Story{
		Context: fmt.Sprintf("%s is trading in a %s regime (volatility percentile %.2f, volume %s)",
			in.Anomaly.Symbol, in.Regime.Regime, in.Regime.VolatilityPercentile, in.Regime.VolumeRegime),
		Trigger: fmt.Sprintf("%s detected with z-score %.2f (%s severity)",
			in.Anomaly.PatternType, in.Anomaly.ZScore, in.Anomaly.Severity),
		Risk:         d.RiskAssessment,
		Invalidation: d.Invalidation,
	}
}
