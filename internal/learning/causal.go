// Package learning implements FinSight's Causal Learner (spec §4.6):
// per-context success statistics with exponential temporal decay. Grounded
// on the teacher's internal/learning/feedback.go (FeedbackEngine/
// PatternPerformance shape, periodic-persistence cadence), but the
// teacher's fixed-alpha EMA update is replaced with spec's explicit
// age-weighted exponential decay — a different mechanism, not a reuse of
// the constant.
package learning

import (
	"math"
	"sync"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"go.uber.org/zap"
)

// Clock abstracts "now" so outcome-tracking and decay math are
// deterministically testable (spec §9's injectable logical clock note).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock backed by time.Now.
var SystemClock Clock = systemClock{}

// Learner holds per-CausalKey observation lists and answers context-
// confidence and threshold-suggestion queries over them.
type Learner struct {
	logger *zap.Logger
	clock  Clock
	config types.CausalLearnerConfig

	mu           sync.RWMutex
	observations map[types.CausalKey][]types.CausalObservation
}

// New creates a Learner. logger may be nil.
func New(config types.CausalLearnerConfig, clock Clock, logger *zap.Logger) *Learner {
	if clock == nil {
		clock = SystemClock
	}
	return &Learner{
		logger:       logger,
		clock:        clock,
		config:       config,
		observations: make(map[types.CausalKey][]types.CausalObservation),
	}
}

// Record appends one outcome's success boolean to every relevant key: the
// plain (pattern,regime) cell, the (pattern,regime,horizon) cell, and the
// (pattern,time_of_day,day_of_week) cell — spec §4.6's three key shapes.
func (l *Learner) Record(pattern types.PatternType, regimeCtx types.RegimeContext, success bool, at time.Time) {
	obs := types.CausalObservation{Timestamp: at, Success: success}

	keys := []types.CausalKey{
		{PatternType: pattern, Regime: regimeCtx.Regime},
		{PatternType: pattern, TimeOfDay: regimeCtx.TimeOfDay, DayOfWeek: regimeCtx.DayOfWeek, HasTimeDim: true},
	}
	if regimeCtx.Horizon != "" {
		keys = append(keys, types.CausalKey{PatternType: pattern, Regime: regimeCtx.Regime, Horizon: regimeCtx.Horizon})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		l.observations[k] = append(l.observations[k], obs)
	}

	if l.logger != nil {
		l.logger.Debug("causal learner recorded observation",
			zap.String("pattern", string(pattern)), zap.String("regime", string(regimeCtx.Regime)), zap.Bool("success", success))
	}
}

// ContextConfidence returns a [0,1] multiplier and a short explanation for
// (pattern, regime), using the weighted success rate with exponential
// temporal decay (spec §4.6). Falls back to 0.5 below the configured
// minimum sample size.
func (l *Learner) ContextConfidence(pattern types.PatternType, regimeCtx types.RegimeContext) (float64, string) {
	key := types.CausalKey{PatternType: pattern, Regime: regimeCtx.Regime}

	l.mu.RLock()
	obs := append([]types.CausalObservation(nil), l.observations[key]...)
	l.mu.RUnlock()

	if len(obs) < l.config.ContextMinSample {
		return 0.5, "insufficient history, using neutral prior"
	}

	rate := l.weightedSuccessRate(obs)
	return rate, ""
}

// HasRecord reports whether any observation exists for (pattern, regime) —
// the decision agent's "first occurrence" escalation rule (spec §4.5 rule
// 5) consults this directly.
func (l *Learner) HasRecord(pattern types.PatternType, regimeType types.RegimeType) bool {
	key := types.CausalKey{PatternType: pattern, Regime: regimeType}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.observations[key]) > 0
}

// weightedSuccessRate computes the decay-weighted fraction of successes:
// newest observation weight 1.0, decaying by 0.5^(age_days/halfLife).
func (l *Learner) weightedSuccessRate(obs []types.CausalObservation) float64 {
	now := l.clock.Now()
	halfLifeDays := l.config.HalfLife.Hours() / 24
	if halfLifeDays <= 0 {
		halfLifeDays = 30
	}

	var weightedSuccess, totalWeight float64
	for _, o := range obs {
		ageDays := now.Sub(o.Timestamp).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		weight := math.Pow(0.5, ageDays/halfLifeDays)
		totalWeight += weight
		if o.Success {
			weightedSuccess += weight
		}
	}
	if totalWeight == 0 {
		return 0.5
	}
	return weightedSuccess / totalWeight
}

// RegimeInsight is one diagnostic row from RegimeInsights.
type RegimeInsight struct {
	Regime         types.RegimeType
	SuccessRate    float64
	SampleSize     int
	Recommendation string
}

// RegimeInsights returns a diagnostic breakdown of success rate per regime
// for the given pattern type (spec §4.6).
func (l *Learner) RegimeInsights(pattern types.PatternType) []RegimeInsight {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byRegime := make(map[types.RegimeType][]types.CausalObservation)
	for k, obs := range l.observations {
		if k.PatternType != pattern || k.HasTimeDim || k.Horizon != "" {
			continue
		}
		byRegime[k.Regime] = append(byRegime[k.Regime], obs...)
	}

	var out []RegimeInsight
	for regimeType, obs := range byRegime {
		rate := l.weightedSuccessRate(obs)
		rec := "monitor"
		switch {
		case rate > 0.6:
			rec = "favor this regime"
		case rate < 0.4:
			rec = "avoid this regime"
		}
		out = append(out, RegimeInsight{Regime: regimeType, SuccessRate: rate, SampleSize: len(obs), Recommendation: rec})
	}
	return out
}

// SuggestThreshold implements spec §4.6: if confidence > 1.2, lower the
// threshold by 10%; if < 0.8, raise it by 15%; clamp to the configured
// floor/ceiling.
func (l *Learner) SuggestThreshold(pattern types.PatternType, regimeCtx types.RegimeContext, currentThreshold float64) float64 {
	// rawSuccessRate expresses the weighted success rate as a multiplier
	// of the neutral 0.5 rate (1.0 = neutral, range [0,2]) and defaults to
	// 1.0 below the sample floor.
	rate := l.rawSuccessRate(pattern, regimeCtx)

	threshold := currentThreshold
	switch {
	case rate > 1.2:
		threshold *= 0.9
	case rate < 0.8:
		threshold *= 1.15
	}
	if threshold < l.config.ThresholdFloor {
		threshold = l.config.ThresholdFloor
	}
	if threshold > l.config.ThresholdCeiling {
		threshold = l.config.ThresholdCeiling
	}
	return threshold
}

func (l *Learner) rawSuccessRate(pattern types.PatternType, regimeCtx types.RegimeContext) float64 {
	key := types.CausalKey{PatternType: pattern, Regime: regimeCtx.Regime}
	l.mu.RLock()
	obs := append([]types.CausalObservation(nil), l.observations[key]...)
	l.mu.RUnlock()
	if len(obs) < l.config.ContextMinSample {
		return 1.0
	}
	return l.weightedSuccessRate(obs) / 0.5
}
