package decision

import (
	"testing"

	"github.com/finsight/finsight/pkg/types"
)

func baseInput() Input {
	return Input{
		Anomaly: types.Anomaly{
			Symbol:      "AAPL",
			PatternType: types.PatternVolumeSpike,
			Severity:    types.SeverityHigh,
			ZScore:      4.5,
		},
		Regime: types.RegimeContext{
			Regime:               types.RegimeTrendingUp,
			VolatilityPercentile: 0.5,
			VolumeRegime:         types.VolumeNormal,
			TimeOfDay:            types.TimeMid,
		},
		Confidence: types.CompositeConfidence{
			Composite:   0.8,
			Uncertainty: 0.1,
		},
		DataQuality: 0.9,
		History: History{
			HasQuality:       true,
			Quality:          types.PatternQuality{SampleSize: 30, Accuracy: 0.7},
			HasCausalRecord:  true,
			CausalConfidence: 0.6,
		},
	}
}

func TestPoorHistoryRejects(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.History.Quality.SampleSize = 20
	in.History.Quality.Accuracy = 0.1

	d := a.Decide(in)
	if d.State != types.StateIgnore || !d.Rejected || d.RejectionReason != "poor_history" {
		t.Fatalf("got state=%s rejected=%v reason=%s, want ignore/poor_history", d.State, d.Rejected, d.RejectionReason)
	}
}

func TestUnfavorableRegimeRejectsWeakSignal(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.History.CausalConfidence = 0.2
	in.Anomaly.ZScore = 3.0

	d := a.Decide(in)
	if d.State != types.StateIgnore || d.RejectionReason != "unfavorable_regime" {
		t.Fatalf("got state=%s reason=%s, want ignore/unfavorable_regime", d.State, d.RejectionReason)
	}
}

func TestInsufficientDataRejects(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.DataQuality = 0.2

	d := a.Decide(in)
	if d.State != types.StateIgnore || d.RejectionReason != "insufficient_data" || !d.RequestedMoreData {
		t.Fatalf("got state=%s reason=%s requestedMoreData=%v, want ignore/insufficient_data/true",
			d.State, d.RejectionReason, d.RequestedMoreData)
	}
}

func TestHighUncertaintyEscalates(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.Confidence.Uncertainty = 0.5

	d := a.Decide(in)
	if d.State != types.StateReview || !d.Escalated || d.EscalationReason != "high_uncertainty" {
		t.Fatalf("got state=%s escalated=%v reason=%s, want review/high_uncertainty", d.State, d.Escalated, d.EscalationReason)
	}
}

func TestFirstOccurrenceEscalates(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.History.HasCausalRecord = false

	d := a.Decide(in)
	if d.State != types.StateReview || d.EscalationReason != "first_occurrence" {
		t.Fatalf("got state=%s reason=%s, want review/first_occurrence", d.State, d.EscalationReason)
	}
}

func TestExecuteWhenCompositeAndZClearBar(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.Confidence.Composite = 0.8
	in.Anomaly.ZScore = 4.2

	d := a.Decide(in)
	if d.State != types.StateExecute || d.Rejected || d.Escalated {
		t.Fatalf("got state=%s rejected=%v escalated=%v, want plain execute", d.State, d.Rejected, d.Escalated)
	}
}

func TestReviewWhenCompositeHighButZTooLowForExecute(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.Confidence.Composite = 0.6
	in.Anomaly.ZScore = 3.0

	d := a.Decide(in)
	if d.State != types.StateReview {
		t.Fatalf("got state=%s, want review", d.State)
	}
}

func TestMonitorWhenBelowReviewButAboveFloor(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.Confidence.Composite = 0.4
	in.Anomaly.ZScore = 3.0

	d := a.Decide(in)
	if d.State != types.StateMonitor {
		t.Fatalf("got state=%s, want monitor", d.State)
	}
}

func TestIgnoreWhenBelowEveryThreshold(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.Confidence.Composite = 0.1
	in.Anomaly.ZScore = 1.0

	d := a.Decide(in)
	if d.State != types.StateIgnore || d.Rejected {
		t.Fatalf("got state=%s rejected=%v, want plain ignore with no rejection flag", d.State, d.Rejected)
	}
}

func TestRuleOrderRejectionBeatsExecuteLevelConfidence(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	in.Confidence.Composite = 0.95
	in.Anomaly.ZScore = 5.0
	in.History.Quality.SampleSize = 20
	in.History.Quality.Accuracy = 0.1

	d := a.Decide(in)
	if d.State != types.StateIgnore || d.RejectionReason != "poor_history" {
		t.Fatalf("poor_history must win even over execute-level confidence, got state=%s reason=%s", d.State, d.RejectionReason)
	}
}

func TestDeterminismSameInputSameOutput(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()

	first := a.Decide(in)
	second := a.Decide(in)
	if first.State != second.State || first.Reason != second.Reason {
		t.Fatalf("decision not deterministic: %+v vs %+v", first, second)
	}
}

func TestMetricsTracksCounters(t *testing.T) {
	a := New(types.DefaultDecisionThresholds(), nil)
	in := baseInput()
	a.Decide(in)

	rejectIn := baseInput()
	rejectIn.History.Quality.SampleSize = 20
	rejectIn.History.Quality.Accuracy = 0.1
	a.Decide(rejectIn)

	m := a.Metrics()
	if m.Total != 2 || m.Rejected != 1 {
		t.Fatalf("got total=%d rejected=%d, want total=2 rejected=1", m.Total, m.Rejected)
	}
}
