// Package qualitystore runs the adaptive per-pattern threshold job (spec
// §4.8): it periodically scans matured pattern_quality rows and nudges
// each (user, pattern_type, symbol) triple's detection_thresholds override
// up or down based on that triple's realized accuracy and review rate.
// Grounded on internal/outcome.Tracker's ticker/select/stopCh polling loop,
// which is itself grounded on internal/workers/pool.go's supervisor idiom.
package qualitystore

import (
	"context"
	"fmt"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"go.uber.org/zap"
)

// QualityReader lists matured quality rows for the adaptive scan.
type QualityReader interface {
	ListMatured(ctx context.Context, minSamples int) ([]types.PatternQuality, error)
}

// ThresholdStore reads and writes per-triple detection threshold overrides.
type ThresholdStore interface {
	Get(ctx context.Context, userID string, patternType types.PatternType, symbol string) (*types.DetectionThreshold, error)
	Set(ctx context.Context, t types.DetectionThreshold) error
}

// Clock abstracts "now" for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Job periodically adapts per-triple thresholds from observed quality.
type Job struct {
	quality    QualityReader
	thresholds ThresholdStore
	config     types.QualityStoreConfig
	clock      Clock
	logger     *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Job. clock may be nil (defaults to wall-clock time).
func New(quality QualityReader, thresholds ThresholdStore, config types.QualityStoreConfig, clock Clock, logger *zap.Logger) *Job {
	if clock == nil {
		clock = systemClock{}
	}
	return &Job{
		quality:    quality,
		thresholds: thresholds,
		config:     config,
		clock:      clock,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the scan loop in a background goroutine.
func (j *Job) Start(ctx context.Context) {
	go j.run(ctx)
}

// Stop signals the scan loop to exit and waits for it to finish.
func (j *Job) Stop() {
	close(j.stopCh)
	<-j.doneCh
}

func (j *Job) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.Scan(ctx)
		}
	}
}

// Scan runs one adaptive pass over every matured quality row, returning the
// number of triples whose threshold it changed.
func (j *Job) Scan(ctx context.Context) int {
	rows, err := j.quality.ListMatured(ctx, j.config.MinSampleSize)
	if err != nil {
		if j.logger != nil {
			j.logger.Warn("adaptive threshold scan: list matured failed", zap.Error(err))
		}
		return 0
	}

	adjusted := 0
	for _, row := range rows {
		if j.adjust(ctx, row) {
			adjusted++
		}
	}
	return adjusted
}

// adjust applies spec §4.8's rule to a single triple, returning true if the
// threshold changed.
func (j *Job) adjust(ctx context.Context, row types.PatternQuality) bool {
	delta, reason := thresholdDelta(row, j.config)
	if delta == 0 {
		return false
	}

	current, err := j.thresholds.Get(ctx, row.UserID, row.PatternType, row.Symbol)
	if err != nil {
		if j.logger != nil {
			j.logger.Warn("adaptive threshold scan: get threshold failed",
				zap.String("user", row.UserID), zap.String("pattern", string(row.PatternType)),
				zap.String("symbol", row.Symbol), zap.Error(err))
		}
		return false
	}
	base := j.config.DefaultThreshold
	if current != nil {
		base = current.ZThreshold
	}

	next := clamp(base+delta, j.config.MinThreshold, j.config.MaxThreshold)
	if next == base {
		return false
	}

	err = j.thresholds.Set(ctx, types.DetectionThreshold{
		UserID:      row.UserID,
		PatternType: row.PatternType,
		Symbol:      row.Symbol,
		ZThreshold:  next,
		Reason:      reason,
		UpdatedAt:   j.clock.Now(),
	})
	if err != nil {
		if j.logger != nil {
			j.logger.Warn("adaptive threshold scan: set threshold failed", zap.Error(err))
		}
		return false
	}
	if j.logger != nil {
		j.logger.Info("adaptive threshold adjusted",
			zap.String("user", row.UserID), zap.String("pattern", string(row.PatternType)),
			zap.String("symbol", row.Symbol), zap.Float64("from", base), zap.Float64("to", next),
			zap.String("reason", reason))
	}
	return true
}

// thresholdDelta implements spec §4.8's literal rule: raise on poor
// accuracy, lower on strong accuracy paired with high review engagement,
// otherwise leave it alone.
func thresholdDelta(row types.PatternQuality, config types.QualityStoreConfig) (float64, string) {
	if row.Accuracy < config.LowAccuracy {
		return config.RaiseAmount, fmt.Sprintf("accuracy %.2f below %.2f, raising threshold", row.Accuracy, config.LowAccuracy)
	}
	if row.Accuracy > config.HighAccuracy && row.ReviewRate > config.HighReviewRate {
		return -config.LowerAmount, fmt.Sprintf("accuracy %.2f above %.2f with review_rate %.2f above %.2f, lowering threshold",
			row.Accuracy, config.HighAccuracy, row.ReviewRate, config.HighReviewRate)
	}
	return 0, ""
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
