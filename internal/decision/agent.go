// Package decision implements FinSight's Decision Agent: a strict-priority
// rule cascade over one anomaly's composite confidence, regime, history and
// causal prior, producing an authoritative Decision. Grounded on the
// teacher's internal/autonomous/enhanced_agent.go processSignals rejection
// cascade (sequential guard clauses, mutex-guarded rejection counters),
// reordered into the nine rules below; the per-rule counters are renamed
// from SignalsRejectedConf/Reg/MC to the rejection/escalation reasons this
// cascade actually produces.
package decision

import (
	"fmt"
	"sync"

	"github.com/finsight/finsight/pkg/types"
	"go.uber.org/zap"
)

// History summarizes what the behavioral quality store and causal learner
// know about this (user, pattern_type, symbol, regime) combination prior
// to this decision.
type History struct {
	Quality          types.PatternQuality
	HasQuality       bool
	CausalConfidence float64
	HasCausalRecord  bool
}

// Input is everything the cascade reads. It carries no mutable state and
// no I/O handle: the cascade is a pure function of Input (spec's
// determinism requirement — identical inputs produce identical output).
type Input struct {
	Anomaly    types.Anomaly
	Regime     types.RegimeContext
	Confidence types.CompositeConfidence
	DataQuality float64
	History    History
}

// Metrics are the running counters the agent keeps for reporting.
type Metrics struct {
	Total      int
	Rejected   int
	Escalated  int
	ByState    map[types.DecisionState]int
}

// Agent applies the authority-rule cascade. Safe for concurrent use.
type Agent struct {
	config types.DecisionThresholds
	logger *zap.Logger

	mu      sync.Mutex
	total   int
	rejected  int
	escalated int
	byState map[types.DecisionState]int
}

// New creates an Agent with the given thresholds.
func New(config types.DecisionThresholds, logger *zap.Logger) *Agent {
	return &Agent{
		config:  config,
		logger:  logger,
		byState: make(map[types.DecisionState]int),
	}
}

// Decide runs the nine-rule cascade and returns the resulting Decision.
// The first matching rule wins; later rules are never evaluated once one
// fires.
func (a *Agent) Decide(in Input) types.Decision {
	d := a.cascade(in)
	d.RiskAssessment = riskAssessment(in)
	d.Invalidation = invalidation(in, d)
	d.Story = story(in, d)

	a.record(d)
	return d
}

func (a *Agent) cascade(in Input) types.Decision {
	z := in.Anomaly.ZScore
	composite := in.Confidence.Composite

	// 1. Reject: poor history.
	if in.History.HasQuality && in.History.Quality.SampleSize >= a.config.PoorHistoryMinSamples &&
		in.History.Quality.Accuracy < a.config.PoorHistoryMaxAccuracy {
		return rejection(in, types.StateIgnore, "poor_history", false)
	}

	// 2. Reject: unfavorable regime + weak signal.
	if in.Regime.Regime != types.RegimeUnknown && in.History.CausalConfidence < a.config.UnfavorableRegimeMaxConfidence &&
		z < a.config.UnfavorableRegimeMaxZ {
		return rejection(in, types.StateIgnore, "unfavorable_regime", false)
	}

	// 3. Reject: insufficient data.
	if in.DataQuality < a.config.InsufficientDataMaxQuality {
		return rejection(in, types.StateIgnore, "insufficient_data", true)
	}

	// 4. Escalate: high uncertainty.
	if in.Confidence.Uncertainty >= a.config.HighUncertaintyMin {
		return escalation(in, types.StateReview, "high_uncertainty")
	}

	// 5. Escalate: first occurrence.
	if !in.History.HasCausalRecord {
		return escalation(in, types.StateReview, "first_occurrence")
	}

	// 6. Execute.
	if composite >= a.config.ExecuteMinComposite && z >= a.config.ExecuteMinZ {
		return plain(in, types.StateExecute, fmt.Sprintf("composite %.2f and z-score %.2f clear the execute bar", composite, z))
	}

	// 7. Review.
	if composite >= a.config.ReviewMinComposite {
		return plain(in, types.StateReview, fmt.Sprintf("composite %.2f clears the review bar", composite))
	}

	// 8. Monitor.
	if composite >= a.config.MonitorMinComposite && z >= a.config.MonitorMinZ {
		return plain(in, types.StateMonitor, fmt.Sprintf("composite %.2f and z-score %.2f clear the monitor bar", composite, z))
	}

	// 9. Ignore — below every threshold, no rejection flag.
	return plain(in, types.StateIgnore, fmt.Sprintf("composite %.2f stays below every actionable threshold", composite))
}

func rejection(in Input, state types.DecisionState, reason string, requestMoreData bool) types.Decision {
	return types.Decision{
		State:             state,
		Confidence:        in.Confidence,
		Reason:            reason,
		Rejected:          true,
		RejectionReason:   reason,
		RequestedMoreData: requestMoreData,
	}
}

func escalation(in Input, state types.DecisionState, reason string) types.Decision {
	return types.Decision{
		State:            state,
		Confidence:       in.Confidence,
		Reason:           reason,
		Escalated:        true,
		EscalationReason: reason,
	}
}

func plain(in Input, state types.DecisionState, reason string) types.Decision {
	return types.Decision{
		State:      state,
		Confidence: in.Confidence,
		Reason:     reason,
	}
}

func (a *Agent) record(d types.Decision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	if d.Rejected {
		a.rejected++
	}
	if d.Escalated {
		a.escalated++
	}
	a.byState[d.State]++
}

// Metrics returns a snapshot of the running counters.
func (a *Agent) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	byState := make(map[types.DecisionState]int, len(a.byState))
	for k, v := range a.byState {
		byState[k] = v
	}
	return Metrics{Total: a.total, Rejected: a.rejected, Escalated: a.escalated, ByState: byState}
}
