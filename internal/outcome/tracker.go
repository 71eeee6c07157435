// Package outcome implements FinSight's durable outcome-tracking scheduler
// (spec §4.7, §9). Every non-ignore decision is followed up at a series of
// configured offsets by sampling a spot price and recording a forward
// return; the schedule is backed by a persisted job row rather than an
// in-process timer, so a process restart never silently drops a pending
// follow-up — the failure mode the original Python tracker's
// asyncio.create_task design was explicitly redesigned away from (spec §9).
//
// The polling loop itself is grounded on the teacher's
// internal/workers/pool.go ticker/select/stopCh idiom.
package outcome

import (
	"context"
	"math"
	"time"

	"github.com/finsight/finsight/internal/events"
	"github.com/finsight/finsight/pkg/types"
	"go.uber.org/zap"
)

// Store is the persistence surface the tracker needs. Implemented by
// internal/storage.
type Store interface {
	EnqueuePendingOutcome(ctx context.Context, job types.PendingOutcomeJob) error
	DuePendingOutcomes(ctx context.Context, before time.Time) ([]types.PendingOutcomeJob, error)
	UpdatePendingOutcome(ctx context.Context, job types.PendingOutcomeJob) error
	RecoverPendingOutcomes(ctx context.Context, maxInterval time.Duration) (int, error)

	UserAction(ctx context.Context, anomalyID string) (*types.UserAction, error)
	SaveOutcome(ctx context.Context, outcome types.Outcome) error
	RecentOutcomes(ctx context.Context, userID string, patternType types.PatternType, symbol string) ([]types.Outcome, error)
	UpdatePatternQuality(ctx context.Context, pq types.PatternQuality) error
}

// PriceFetcher resolves the current spot price for a symbol.
type PriceFetcher interface {
	SpotPrice(ctx context.Context, symbol string) (float64, error)
}

// CausalRecorder is the subset of the causal learner the tracker feeds.
type CausalRecorder interface {
	Record(pattern types.PatternType, regimeCtx types.RegimeContext, success bool, at time.Time)
}

// Clock abstracts "now" for deterministic scheduling tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Tracker polls for due pending-outcome jobs and advances them.
type Tracker struct {
	store   Store
	prices  PriceFetcher
	learner CausalRecorder
	config  types.OutcomeTrackerConfig
	logger  *zap.Logger
	clock   Clock
	bus     *events.Bus

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Tracker. clock may be nil (defaults to wall-clock time); bus
// may be nil (outcome_written/quality_updated events are then not published).
func New(store Store, prices PriceFetcher, learner CausalRecorder, config types.OutcomeTrackerConfig, clock Clock, bus *events.Bus, logger *zap.Logger) *Tracker {
	if clock == nil {
		clock = systemClock{}
	}
	return &Tracker{
		store:   store,
		prices:  prices,
		learner: learner,
		config:  config,
		logger:  logger,
		clock:   clock,
		bus:     bus,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Enqueue registers follow-up sampling for a non-ignore decision. Callers
// must not enqueue ignore-state decisions (spec §4.7: follow-up runs on
// any non-ignore decision only).
func (t *Tracker) Enqueue(ctx context.Context, anomaly types.Anomaly, userID string, decision types.Decision, regimeCtx types.RegimeContext) error {
	if len(t.config.Intervals) == 0 {
		return nil
	}
	job := types.PendingOutcomeJob{
		AnomalyID:         anomaly.ID,
		UserID:            userID,
		Symbol:            anomaly.Symbol,
		PatternType:       anomaly.PatternType,
		Regime:            regimeCtx,
		EntryPrice:        anomaly.Price,
		AgentDecision:     decision.State,
		AgentConfidence:   decision.Confidence.Composite,
		DetectedAt:        anomaly.DetectedAt,
		NextIntervalIndex: 0,
		FireAt:            anomaly.DetectedAt.Add(t.config.Intervals[0].Offset),
	}
	return t.store.EnqueuePendingOutcome(ctx, job)
}

// Start begins the polling loop in a background goroutine. Recover runs
// once synchronously first, so a caller that waits on Start's return knows
// restart recovery has completed before accepting new work.
func (t *Tracker) Start(ctx context.Context) error {
	maxInterval := t.config.Intervals[len(t.config.Intervals)-1].Offset
	recovered, err := t.store.RecoverPendingOutcomes(ctx, maxInterval)
	if err != nil {
		return err
	}
	if recovered > 0 && t.logger != nil {
		t.logger.Info("recovered pending outcome jobs after restart", zap.Int("count", recovered))
	}

	go t.run(ctx)
	return nil
}

// Stop signals the polling loop to exit and waits for it to finish.
func (t *Tracker) Stop() {
	close(t.stopCh)
	<-t.doneCh
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

func (t *Tracker) poll(ctx context.Context) {
	due, err := t.store.DuePendingOutcomes(ctx, t.clock.Now())
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("failed to list due pending outcomes", zap.Error(err))
		}
		return
	}
	for _, job := range due {
		t.Advance(ctx, job)
	}
}

// Advance samples the current interval's forward return for job and either
// schedules the next interval or finalizes the outcome. Exported so a
// supervisor (or a test) can drive a single step without waiting out the
// poll interval. A failed price fetch never aborts the job — it leaves
// that interval's return null and the job still advances, per spec §7's
// InsufficientData/TransientExternal handling.
func (t *Tracker) Advance(ctx context.Context, job types.PendingOutcomeJob) {
	interval := t.config.Intervals[job.NextIntervalIndex]

	ret := t.sampleReturn(ctx, job)
	setReturn(&job.Returns, interval.Label, ret)

	job.NextIntervalIndex++
	if job.NextIntervalIndex < len(t.config.Intervals) {
		job.FireAt = job.DetectedAt.Add(t.config.Intervals[job.NextIntervalIndex].Offset)
		if err := t.store.UpdatePendingOutcome(ctx, job); err != nil && t.logger != nil {
			t.logger.Warn("failed to persist pending outcome advance", zap.String("anomaly_id", job.AnomalyID), zap.Error(err))
		}
		return
	}

	job.Done = true
	t.finalize(ctx, job)
}

func (t *Tracker) sampleReturn(ctx context.Context, job types.PendingOutcomeJob) *float64 {
	spot, err := t.prices.SpotPrice(ctx, job.Symbol)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("spot price fetch failed, recording null forward return",
				zap.String("symbol", job.Symbol), zap.Error(err))
		}
		return nil
	}
	entry, _ := job.EntryPrice.Float64()
	if entry == 0 {
		return nil
	}
	ret := (spot - entry) / entry
	return &ret
}

// finalize reads the user's action (defaulting to ignored when nothing has
// been recorded by the final sampling interval), classifies profitability and
// agent correctness, persists the Outcome row, recomputes PatternQuality
// from the user's full outcome history, and feeds the causal learner.
func (t *Tracker) finalize(ctx context.Context, job types.PendingOutcomeJob) {
	if err := t.store.UpdatePendingOutcome(ctx, job); err != nil && t.logger != nil {
		t.logger.Warn("failed to persist completed pending outcome", zap.String("anomaly_id", job.AnomalyID), zap.Error(err))
	}

	action := types.ActionIgnored
	if recorded, err := t.store.UserAction(ctx, job.AnomalyID); err == nil && recorded != nil {
		action = recorded.Action
	} else if err != nil && t.logger != nil {
		t.logger.Warn("failed to read user action", zap.String("anomaly_id", job.AnomalyID), zap.Error(err))
	}

	profitable := wasProfitable(job.Returns, t.config.ProfitThreshold)
	correct := agentCorrect(job.AgentDecision, action, profitable)

	outcome := types.Outcome{
		AnomalyID:       job.AnomalyID,
		UserID:          job.UserID,
		AgentDecision:   job.AgentDecision,
		AgentConfidence: job.AgentConfidence,
		UserAction:      action,
		Returns:         job.Returns,
		WasProfitable:   profitable,
		AgentCorrect:    correct,
		CreatedAt:       t.clock.Now(),
	}
	if err := t.store.SaveOutcome(ctx, outcome); err != nil {
		if t.logger != nil {
			t.logger.Error("failed to save outcome", zap.String("anomaly_id", job.AnomalyID), zap.Error(err))
		}
		return
	}
	if t.bus != nil {
		t.bus.Publish(events.NewOutcomeWrittenEvent(outcome))
	}

	if t.learner != nil {
		t.learner.Record(job.PatternType, job.Regime, correct, t.clock.Now())
	}

	t.recomputeQuality(ctx, job.UserID, job.PatternType, job.Symbol)
}

// recomputeQuality rebuilds a PatternQuality row from ALL of the user's
// outcome rows for (pattern_type, symbol) — an exact aggregation, not a
// streaming approximation (spec §8 "quality idempotence").
func (t *Tracker) recomputeQuality(ctx context.Context, userID string, patternType types.PatternType, symbol string) {
	outcomes, err := t.store.RecentOutcomes(ctx, userID, patternType, symbol)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("failed to read outcomes for quality recompute", zap.Error(err))
		}
		return
	}
	if len(outcomes) == 0 {
		return
	}

	pq := BuildPatternQuality(userID, patternType, symbol, outcomes, t.clock.Now())
	if err := t.store.UpdatePatternQuality(ctx, pq); err != nil {
		if t.logger != nil {
			t.logger.Warn("failed to persist recomputed pattern quality", zap.Error(err))
		}
		return
	}
	if t.bus != nil {
		t.bus.Publish(events.NewQualityUpdatedEvent(pq))
	}
}

// BuildPatternQuality aggregates a full outcome set into a PatternQuality
// row. It is a pure function of outcomes (and the updated_at stamp): calling
// it twice with the same outcome slice yields byte-identical rows aside from
// updatedAt, since it always recomputes from the complete set rather than
// folding in a delta (spec §8 "quality idempotence").
func BuildPatternQuality(userID string, patternType types.PatternType, symbol string, outcomes []types.Outcome, updatedAt time.Time) types.PatternQuality {
	var reviewedOrTraded, traded, correct, profitable int
	var returnSum float64
	var returnCount int
	for _, o := range outcomes {
		switch o.UserAction {
		case types.ActionReviewed:
			reviewedOrTraded++
		case types.ActionTraded:
			reviewedOrTraded++
			traded++
		}
		if o.AgentCorrect {
			correct++
		}
		if o.WasProfitable {
			profitable++
		}
		for _, r := range o.Returns.Values() {
			returnSum += r
			returnCount++
		}
	}

	n := float64(len(outcomes))
	pq := types.PatternQuality{
		UserID:        userID,
		PatternType:   patternType,
		Symbol:        symbol,
		Accuracy:      float64(profitable) / n,
		ReviewRate:    float64(reviewedOrTraded) / n,
		TradeRate:     float64(traded) / n,
		AgentAccuracy: float64(correct) / n,
		SampleSize:    len(outcomes),
		UpdatedAt:     updatedAt,
	}
	if returnCount > 0 {
		pq.AvgReturn = returnSum / float64(returnCount)
	}
	return pq
}

// wasProfitable reports whether the best recorded forward return meets the
// profit threshold. A null (never sampled) return counts as -infinity, so
// a job with no successful samples is never profitable.
func wasProfitable(returns types.ForwardReturns, threshold float64) bool {
	best := math.Inf(-1)
	for _, v := range returns.Values() {
		if v > best {
			best = v
		}
	}
	return best >= threshold
}

// agentCorrect implements spec §4.7's rule, ported from the original
// tracker's _evaluate_agent: for an ignore decision the agent was right
// iff the pattern did not turn out profitable; for any other decision the
// agent was right iff the user engaged with a profitable pattern, or
// ignored an unprofitable one.
func agentCorrect(decision types.DecisionState, action types.UserActionType, profitable bool) bool {
	if decision == types.StateIgnore {
		return !profitable
	}
	engaged := action == types.ActionReviewed || action == types.ActionTraded
	if engaged && profitable {
		return true
	}
	if action == types.ActionIgnored && !profitable {
		return true
	}
	return false
}

func setReturn(r *types.ForwardReturns, label string, value *float64) {
	switch label {
	case "15m":
		r.Return15m = value
	case "1h":
		r.Return1h = value
	case "4h":
		r.Return4h = value
	case "1d":
		r.Return1d = value
	}
}
