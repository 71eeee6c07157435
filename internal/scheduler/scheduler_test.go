package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/finsight/finsight/internal/confidence"
	"github.com/finsight/finsight/internal/decision"
	"github.com/finsight/finsight/internal/detector"
	"github.com/finsight/finsight/internal/quality"
	"github.com/finsight/finsight/internal/regime"
	"github.com/finsight/finsight/internal/scheduler"
	"github.com/finsight/finsight/pkg/types"
	"github.com/shopspring/decimal"
)

type fakeMarketData struct {
	bars map[string][]types.Bar
	err  error
}

func (f *fakeMarketData) Bars(_ context.Context, symbol string, _ int) ([]types.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[symbol], nil
}

type fakeAnomalyStore struct {
	mu    sync.Mutex
	saved []types.Anomaly
	err   error
}

func (f *fakeAnomalyStore) Save(_ context.Context, _ string, a types.Anomaly, _ types.Decision) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeAnomalyStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeThresholdStore struct {
	overrides map[types.PatternType]*types.DetectionThreshold
}

func (f fakeThresholdStore) Get(_ context.Context, _ string, pt types.PatternType, _ string) (*types.DetectionThreshold, error) {
	return f.overrides[pt], nil
}

type fakeQualityStore struct{}

func (fakeQualityStore) Read(_ context.Context, _ string, _ types.PatternType, _ string) (*types.PatternQuality, error) {
	return nil, nil
}

type fakeLearner struct {
	confidence float64
	hasRecord  bool
}

func (f fakeLearner) ContextConfidence(_ types.PatternType, _ types.RegimeContext) (float64, string) {
	return f.confidence, "fake"
}

func (f fakeLearner) HasRecord(_ types.PatternType, _ types.RegimeType) bool {
	return f.hasRecord
}

type fakeOutcomeEnqueuer struct {
	mu       sync.Mutex
	enqueued int
}

func (f *fakeOutcomeEnqueuer) Enqueue(_ context.Context, _ types.Anomaly, _ string, _ types.Decision, _ types.RegimeContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued++
	return nil
}

func (f *fakeOutcomeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enqueued
}

// spikyBars builds a window with a clear volume/price spike on the last
// bar, enough to trip the detector's default thresholds.
func spikyBars(symbol string, n int) []types.Bar {
	d := decimal.NewFromFloat
	bars := make([]types.Bar, 0, n)
	base := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n-1; i++ {
		bars = append(bars, types.Bar{
			Symbol: symbol, Instant: base.Add(time.Duration(i) * time.Minute),
			Open: d(price), High: d(price + 0.2), Low: d(price - 0.2), Close: d(price + 0.05),
			Volume: d(float64(500 + 1000*(i%2))),
		})
		price += 0.05
	}
	bars = append(bars, types.Bar{
		Symbol: symbol, Instant: base.Add(time.Duration(n-1) * time.Minute),
		Open: d(price), High: d(price + 3), Low: d(price - 0.1), Close: d(price + 2.8),
		Volume: d(20000),
	})
	return bars
}

func newSupervisor(md *fakeMarketData, anomalies *fakeAnomalyStore, outcomes *fakeOutcomeEnqueuer, learner fakeLearner) *scheduler.Supervisor {
	return newSupervisorWithThresholds(md, anomalies, outcomes, learner, fakeThresholdStore{})
}

func newSupervisorWithThresholds(md *fakeMarketData, anomalies *fakeAnomalyStore, outcomes *fakeOutcomeEnqueuer, learner fakeLearner, thresholds fakeThresholdStore) *scheduler.Supervisor {
	deps := scheduler.Deps{
		MarketData: md,
		Validator:  quality.NewValidator(nil),
		Classifier: regime.New(types.DefaultRegimeConfig()),
		Detector:   detector.New(types.DefaultDetectorConfig()),
		Confidence: confidence.New(types.DefaultConfidenceWeights()),
		Agent:      decision.New(types.DefaultDecisionThresholds(), nil),
		Learner:    learner,
		Anomalies:  anomalies,
		Thresholds: thresholds,
		History:    fakeQualityStore{},
		Outcomes:   outcomes,
	}
	config := types.DefaultSchedulerConfig()
	config.Parallelism = 2
	return scheduler.New(deps, config, nil)
}

func TestRunCycleSavesAnomalyBeforeEnqueuingOutcome(t *testing.T) {
	md := &fakeMarketData{bars: map[string][]types.Bar{
		"AAPL": spikyBars("AAPL", 21),
	}}
	anomalies := &fakeAnomalyStore{}
	outcomes := &fakeOutcomeEnqueuer{}
	learner := fakeLearner{confidence: 0.6, hasRecord: true}

	s := newSupervisor(md, anomalies, outcomes, learner)
	report := s.RunCycle(context.Background(), "user-1", []string{"AAPL"})

	if len(report.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(report.Results))
	}
	if report.Results[0].Err != nil {
		t.Fatalf("unexpected error: %v", report.Results[0].Err)
	}
	if anomalies.savedCount() == 0 {
		t.Fatal("expected at least one anomaly saved")
	}
	// save_anomaly must precede enqueue: the enqueue count can never
	// exceed the saved count for any given run.
	if outcomes.count() > anomalies.savedCount() {
		t.Fatalf("outcome enqueues (%d) exceed anomaly saves (%d)", outcomes.count(), anomalies.savedCount())
	}
}

func TestRunCycleIsolatesSymbolErrors(t *testing.T) {
	md := &fakeMarketData{err: errFetch}
	anomalies := &fakeAnomalyStore{}
	outcomes := &fakeOutcomeEnqueuer{}
	learner := fakeLearner{confidence: 0.6, hasRecord: true}

	s := newSupervisor(md, anomalies, outcomes, learner)
	report := s.RunCycle(context.Background(), "user-1", []string{"AAPL", "MSFT"})

	for _, r := range report.Results {
		if r.Err == nil {
			t.Fatalf("expected fetch error for %s", r.Symbol)
		}
	}
}

func TestRunCycleSkipsUnusableQuality(t *testing.T) {
	md := &fakeMarketData{bars: map[string][]types.Bar{
		"AAPL": {}, // empty window, fails validator
	}}
	anomalies := &fakeAnomalyStore{}
	outcomes := &fakeOutcomeEnqueuer{}
	learner := fakeLearner{confidence: 0.6, hasRecord: true}

	s := newSupervisor(md, anomalies, outcomes, learner)
	report := s.RunCycle(context.Background(), "user-1", []string{"AAPL"})

	if report.Results[0].AnomalyCount != 0 {
		t.Fatalf("expected no anomalies from an unusable window, got %d", report.Results[0].AnomalyCount)
	}
	if anomalies.savedCount() != 0 {
		t.Fatal("expected no anomaly saves from an unusable window")
	}
}

// TestRunCycleHonorsThresholdOverride checks spec §8 property 8 end to end
// through the scheduler's wiring, not just the Detector in isolation: a
// raised override for volume_spike suppresses it from the saved anomalies,
// even though it fires under system defaults.
func TestRunCycleHonorsThresholdOverride(t *testing.T) {
	md := &fakeMarketData{bars: map[string][]types.Bar{
		"AAPL": spikyBars("AAPL", 21),
	}}
	anomalies := &fakeAnomalyStore{}
	outcomes := &fakeOutcomeEnqueuer{}
	learner := fakeLearner{confidence: 0.6, hasRecord: true}
	thresholds := fakeThresholdStore{overrides: map[types.PatternType]*types.DetectionThreshold{
		types.PatternVolumeSpike: {ZThreshold: 50.0},
	}}

	s := newSupervisorWithThresholds(md, anomalies, outcomes, learner, thresholds)
	s.RunCycle(context.Background(), "user-1", []string{"AAPL"})

	for _, a := range anomalies.saved {
		if a.PatternType == types.PatternVolumeSpike {
			t.Fatalf("expected the raised override to suppress volume_spike, got %+v", a)
		}
	}
}

func TestRunCycleHandlesEmptyWatchlist(t *testing.T) {
	s := newSupervisor(&fakeMarketData{}, &fakeAnomalyStore{}, &fakeOutcomeEnqueuer{}, fakeLearner{})
	report := s.RunCycle(context.Background(), "user-1", nil)
	if len(report.Results) != 0 {
		t.Fatalf("got %d results, want 0", len(report.Results))
	}
}

var errFetch = fetchError("fetch failed")

type fetchError string

func (e fetchError) Error() string { return string(e) }
