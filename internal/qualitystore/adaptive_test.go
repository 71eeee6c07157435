package qualitystore

import (
	"context"
	"testing"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"go.uber.org/zap"
)

type fakeQualityReader struct {
	rows []types.PatternQuality
}

func (f *fakeQualityReader) ListMatured(_ context.Context, _ int) ([]types.PatternQuality, error) {
	return f.rows, nil
}

type fakeThresholdStore struct {
	current map[string]types.DetectionThreshold
	set     []types.DetectionThreshold
}

func newFakeThresholdStore() *fakeThresholdStore {
	return &fakeThresholdStore{current: make(map[string]types.DetectionThreshold)}
}

func key(userID string, patternType types.PatternType, symbol string) string {
	return userID + "|" + string(patternType) + "|" + symbol
}

func (f *fakeThresholdStore) Get(_ context.Context, userID string, patternType types.PatternType, symbol string) (*types.DetectionThreshold, error) {
	t, ok := f.current[key(userID, patternType, symbol)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeThresholdStore) Set(_ context.Context, t types.DetectionThreshold) error {
	f.current[key(t.UserID, t.PatternType, t.Symbol)] = t
	f.set = append(f.set, t)
	return nil
}

func testConfig() types.QualityStoreConfig {
	return types.QualityStoreConfig{
		ScanInterval:     time.Hour,
		MinSampleSize:    10,
		LowAccuracy:      0.30,
		HighAccuracy:     0.60,
		HighReviewRate:   0.50,
		RaiseAmount:      0.5,
		LowerAmount:      0.3,
		MaxThreshold:     5.0,
		MinThreshold:     2.0,
		DefaultThreshold: 2.0,
	}
}

func TestScanRaisesThresholdOnPoorAccuracy(t *testing.T) {
	reader := &fakeQualityReader{rows: []types.PatternQuality{
		{UserID: "u1", PatternType: types.PatternVolumeSpike, Symbol: "AAPL", Accuracy: 0.20, ReviewRate: 0.1, SampleSize: 20},
	}}
	thresholds := newFakeThresholdStore()
	job := New(reader, thresholds, testConfig(), nil, zap.NewNop())

	adjusted := job.Scan(context.Background())
	if adjusted != 1 {
		t.Fatalf("adjusted = %d, want 1", adjusted)
	}
	got, _ := thresholds.Get(context.Background(), "u1", types.PatternVolumeSpike, "AAPL")
	if got == nil || got.ZThreshold != 2.5 {
		t.Fatalf("threshold = %+v, want 2.5", got)
	}
}

func TestScanLowersThresholdOnHighAccuracyAndReviewRate(t *testing.T) {
	reader := &fakeQualityReader{rows: []types.PatternQuality{
		{UserID: "u1", PatternType: types.PatternPriceMomentum, Symbol: "MSFT", Accuracy: 0.75, ReviewRate: 0.60, SampleSize: 30},
	}}
	thresholds := newFakeThresholdStore()
	thresholds.current[key("u1", types.PatternPriceMomentum, "MSFT")] = types.DetectionThreshold{
		UserID: "u1", PatternType: types.PatternPriceMomentum, Symbol: "MSFT", ZThreshold: 3.0,
	}
	job := New(reader, thresholds, testConfig(), nil, zap.NewNop())

	adjusted := job.Scan(context.Background())
	if adjusted != 1 {
		t.Fatalf("adjusted = %d, want 1", adjusted)
	}
	got, _ := thresholds.Get(context.Background(), "u1", types.PatternPriceMomentum, "MSFT")
	if got == nil || got.ZThreshold != 2.7 {
		t.Fatalf("threshold = %+v, want 2.7", got)
	}
}

func TestScanLeavesMidRangeAccuracyUnchanged(t *testing.T) {
	reader := &fakeQualityReader{rows: []types.PatternQuality{
		{UserID: "u1", PatternType: types.PatternVolumeSpike, Symbol: "TSLA", Accuracy: 0.45, ReviewRate: 0.30, SampleSize: 15},
	}}
	thresholds := newFakeThresholdStore()
	job := New(reader, thresholds, testConfig(), nil, zap.NewNop())

	adjusted := job.Scan(context.Background())
	if adjusted != 0 {
		t.Fatalf("adjusted = %d, want 0", adjusted)
	}
	if len(thresholds.set) != 0 {
		t.Fatalf("expected no threshold writes, got %d", len(thresholds.set))
	}
}

func TestScanClampsAtMaxThreshold(t *testing.T) {
	reader := &fakeQualityReader{rows: []types.PatternQuality{
		{UserID: "u1", PatternType: types.PatternVolumeSpike, Symbol: "NVDA", Accuracy: 0.10, ReviewRate: 0.0, SampleSize: 25},
	}}
	thresholds := newFakeThresholdStore()
	thresholds.current[key("u1", types.PatternVolumeSpike, "NVDA")] = types.DetectionThreshold{
		UserID: "u1", PatternType: types.PatternVolumeSpike, Symbol: "NVDA", ZThreshold: 4.8,
	}
	job := New(reader, thresholds, testConfig(), nil, zap.NewNop())

	job.Scan(context.Background())
	got, _ := thresholds.Get(context.Background(), "u1", types.PatternVolumeSpike, "NVDA")
	if got == nil || got.ZThreshold != 5.0 {
		t.Fatalf("threshold = %+v, want clamped to 5.0", got)
	}
}
