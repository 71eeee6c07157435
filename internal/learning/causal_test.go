package learning_test

import (
	"testing"
	"time"

	"github.com/finsight/finsight/internal/learning"
	"github.com/finsight/finsight/pkg/types"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestHasRecordFirstOccurrence(t *testing.T) {
	l := learning.New(types.DefaultCausalLearnerConfig(), nil, nil)
	if l.HasRecord(types.PatternPriceMomentum, types.RegimeBreakout) {
		t.Fatal("expected no record before any observation")
	}
	l.Record(types.PatternPriceMomentum, types.RegimeContext{Regime: types.RegimeBreakout}, true, time.Now())
	if !l.HasRecord(types.PatternPriceMomentum, types.RegimeBreakout) {
		t.Fatal("expected a record after observing one outcome")
	}
}

func TestContextConfidenceFallsBackBelowMinSample(t *testing.T) {
	config := types.DefaultCausalLearnerConfig()
	config.ContextMinSample = 5
	l := learning.New(config, nil, nil)

	for i := 0; i < 3; i++ {
		l.Record(types.PatternVolumeSpike, types.RegimeContext{Regime: types.RegimeRanging}, true, time.Now())
	}

	confidence, explanation := l.ContextConfidence(types.PatternVolumeSpike, types.RegimeContext{Regime: types.RegimeRanging})
	if confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5 below min sample", confidence)
	}
	if explanation == "" {
		t.Error("expected a non-empty explanation for the neutral-prior fallback")
	}
}

func TestContextConfidenceWeightsRecentObservationsMoreHeavily(t *testing.T) {
	config := types.DefaultCausalLearnerConfig()
	config.ContextMinSample = 3
	config.HalfLife = 10 * 24 * time.Hour
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := fixedClock{t: now}
	l := learning.New(config, clock, nil)

	ctx := types.RegimeContext{Regime: types.RegimeTrendingUp}
	// Two old failures, then three recent successes: recency should pull
	// the weighted rate above the unweighted 0.6.
	l.Record(types.PatternBreakoutHigh, ctx, false, now.Add(-90*24*time.Hour))
	l.Record(types.PatternBreakoutHigh, ctx, false, now.Add(-80*24*time.Hour))
	l.Record(types.PatternBreakoutHigh, ctx, true, now.Add(-time.Hour))
	l.Record(types.PatternBreakoutHigh, ctx, true, now.Add(-2*time.Hour))
	l.Record(types.PatternBreakoutHigh, ctx, true, now.Add(-3*time.Hour))

	confidence, _ := l.ContextConfidence(types.PatternBreakoutHigh, ctx)
	if confidence <= 0.6 {
		t.Errorf("weighted confidence = %v, want greater than the unweighted rate 0.6 since old failures should decay", confidence)
	}
}

func TestSuggestThresholdClampsToConfiguredRange(t *testing.T) {
	config := types.DefaultCausalLearnerConfig()
	config.ContextMinSample = 1
	config.ThresholdFloor = 2.0
	config.ThresholdCeiling = 5.0
	l := learning.New(config, nil, nil)

	ctx := types.RegimeContext{Regime: types.RegimeRanging}
	for i := 0; i < 10; i++ {
		l.Record(types.PatternVolatilitySurge, ctx, false, time.Now())
	}

	suggested := l.SuggestThreshold(types.PatternVolatilitySurge, ctx, 4.9)
	if suggested < config.ThresholdFloor || suggested > config.ThresholdCeiling {
		t.Errorf("suggested threshold %v out of configured range [%v,%v]", suggested, config.ThresholdFloor, config.ThresholdCeiling)
	}
}

func TestRegimeInsightsSeparatesRegimesForSamePattern(t *testing.T) {
	l := learning.New(types.DefaultCausalLearnerConfig(), nil, nil)
	l.Record(types.PatternVolumeSpike, types.RegimeContext{Regime: types.RegimeRanging}, true, time.Now())
	l.Record(types.PatternVolumeSpike, types.RegimeContext{Regime: types.RegimeHighVolatility}, false, time.Now())

	insights := l.RegimeInsights(types.PatternVolumeSpike)
	if len(insights) != 2 {
		t.Fatalf("got %d insight rows, want 2", len(insights))
	}
}
