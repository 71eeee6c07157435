package detector

import (
	"fmt"
	"math"

	"github.com/finsight/finsight/pkg/types"
)

// buildNarrative produces the optional, template-generated (never
// LLM-authored) explanatory fields original_source/detection/real_detector.py
// attaches to every anomaly (generate_context/generate_sources), reduced to
// what a pure z-score-driven detector actually has on hand: pattern, z,
// severity, and the triggering bar. The z-score-to-percentile conversion is
// the same one-tailed normal approximation the Python original uses.
func buildNarrative(pattern types.PatternType, z float64, severity types.Severity, bar types.Bar) *types.AnomalyNarrative {
	percentile := zScoreToPercentile(z)

	var context string
	switch pattern {
	case types.PatternVolumeSpike:
		context = fmt.Sprintf(
			"Volume %.0f is %.1f standard deviations from its reference window. "+
				"This level of activity occurs in less than %.2f%% of observations, "+
				"suggesting significant institutional interest or news-driven trading.",
			bar.Volume.InexactFloat64(), z, percentile)
	case types.PatternPriceMomentum:
		context = fmt.Sprintf(
			"Price move on the newest bar is %.1f standard deviations from typical returns. "+
				"Such moves occur less than %.2f%% of the time, indicating a shift in market sentiment.",
			z, percentile)
	case types.PatternVolatilitySurge:
		context = fmt.Sprintf(
			"Intraday range expanded to %.1f standard deviations above its reference window, "+
				"suggesting uncertainty or positioning ahead of a significant move.",
			z)
	case types.PatternBreakoutHigh:
		context = fmt.Sprintf(
			"Bar closing at %s broke above the prior 20-bar high on a volume z-score of %.1f, "+
				"a breakout pattern with volume confirmation.", bar.Close.String(), z)
	case types.PatternBreakoutLow:
		context = fmt.Sprintf(
			"Bar closing at %s broke below the prior 20-bar low on a volume z-score of %.1f, "+
				"a breakdown pattern with volume confirmation.", bar.Close.String(), z)
	default:
		context = fmt.Sprintf("Unusual activity with z-score %.2f.", z)
	}

	sources := fmt.Sprintf(
		"bar window | close %s | volume %s | range %s-%s | severity %s",
		bar.Close.String(), bar.Volume.String(), bar.Low.String(), bar.High.String(), severity)

	thoughtProcess := fmt.Sprintf(
		"pattern=%s z=%.2f severity=%s\nstatistical probability of this occurring by chance: <%.2f%%",
		pattern, z, severity, percentile)

	return &types.AnomalyNarrative{
		Context:        context,
		Sources:        sources,
		ThoughtProcess: thoughtProcess,
		Percentile:     percentile,
	}
}

// zScoreToPercentile converts an absolute z-score to an approximate
// one-tailed percentile via the normal CDF, matching
// original_source/detection/real_detector.py's _zscore_to_percentile
// (Z=2 -> ~2.3%, Z=3 -> ~0.13%, Z=4 -> ~0.003%).
func zScoreToPercentile(z float64) float64 {
	return (1 - normalCDF(math.Abs(z))) * 100
}

// normalCDF is the standard normal cumulative distribution function,
// Φ(x) = 0.5 * (1 + erf(x / sqrt(2))).
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
