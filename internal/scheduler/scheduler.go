// Package scheduler drives FinSight's per-symbol detection cycle: fetch
// bars, classify regime, detect anomalies, load history, decide, persist,
// and enqueue outcome tracking for any non-ignore decision (spec §5).
// Grounded on the teacher's internal/workers.Pool for bounded per-symbol
// parallelism, combined with enhanced_agent.go's ticker/select/stopCh
// supervisor-loop idiom for the periodic scan driver.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/finsight/finsight/internal/confidence"
	"github.com/finsight/finsight/internal/decision"
	"github.com/finsight/finsight/internal/detector"
	"github.com/finsight/finsight/internal/events"
	"github.com/finsight/finsight/internal/quality"
	"github.com/finsight/finsight/internal/regime"
	"github.com/finsight/finsight/internal/workers"
	"github.com/finsight/finsight/pkg/types"
	"go.uber.org/zap"
)

// MarketData supplies the bar window a detection cycle evaluates.
type MarketData interface {
	Bars(ctx context.Context, symbol string, lookback int) ([]types.Bar, error)
}

// AnomalyStore persists an anomaly alongside its agent decision. Saving
// must complete before outcome tracking is enqueued (spec §5 ordering).
type AnomalyStore interface {
	Save(ctx context.Context, userID string, a types.Anomaly, decision types.Decision) error
}

// ThresholdStore reads a per-(user,pattern,symbol) detection override.
type ThresholdStore interface {
	Get(ctx context.Context, userID string, patternType types.PatternType, symbol string) (*types.DetectionThreshold, error)
}

// QualityStore reads the behavioral prior for one (user,pattern,symbol).
type QualityStore interface {
	Read(ctx context.Context, userID string, patternType types.PatternType, symbol string) (*types.PatternQuality, error)
}

// CausalLearner supplies the causal prior the agent's escalation and
// rejection rules read.
type CausalLearner interface {
	ContextConfidence(pattern types.PatternType, regimeCtx types.RegimeContext) (float64, string)
	HasRecord(pattern types.PatternType, regimeType types.RegimeType) bool
}

// OutcomeEnqueuer registers follow-up return sampling for a decision.
type OutcomeEnqueuer interface {
	Enqueue(ctx context.Context, anomaly types.Anomaly, userID string, decision types.Decision, regimeCtx types.RegimeContext) error
}

// SymbolResult reports one symbol's outcome for a single cycle.
type SymbolResult struct {
	Symbol        string
	AnomalyCount  int
	DecisionCount int
	Err           error
}

// CycleReport aggregates every symbol's result for one scan.
type CycleReport struct {
	Results []SymbolResult
	Started time.Time
	Elapsed time.Duration
}

// Supervisor runs bounded-parallelism detection cycles across a
// watchlist. Per-symbol tasks may run concurrently; no ordering is
// guaranteed across symbols (spec §5).
type Supervisor struct {
	marketData MarketData
	validator  *quality.Validator
	classifier *regime.Classifier
	detector   *detector.Detector
	confidence *confidence.Calculator
	agent      *decision.Agent
	learner    CausalLearner
	anomalies  AnomalyStore
	thresholds ThresholdStore
	history    QualityStore
	outcomes   OutcomeEnqueuer
	bus        *events.Bus

	pool   *workers.Pool
	config types.SchedulerConfig
	logger *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Deps bundles every collaborator a Supervisor needs. Grouped into a
// struct rather than a long parameter list, matching the teacher's
// NewEnhancedTradingAgent constructor shape.
type Deps struct {
	MarketData MarketData
	Validator  *quality.Validator
	Classifier *regime.Classifier
	Detector   *detector.Detector
	Confidence *confidence.Calculator
	Agent      *decision.Agent
	Learner    CausalLearner
	Anomalies  AnomalyStore
	Thresholds ThresholdStore
	History    QualityStore
	Outcomes   OutcomeEnqueuer
	Bus        *events.Bus
}

// New creates a Supervisor and its worker pool, sized to
// config.Parallelism.
func New(deps Deps, config types.SchedulerConfig, logger *zap.Logger) *Supervisor {
	poolConfig := &workers.PoolConfig{
		Name:            "scheduler",
		NumWorkers:      config.Parallelism,
		QueueSize:       4 * config.Parallelism,
		TaskTimeout:     config.FetchTimeout + config.DBTimeout,
		ShutdownTimeout: 30 * time.Second,
		PanicRecovery:   true,
	}
	if poolConfig.NumWorkers <= 0 {
		poolConfig.NumWorkers = 12
	}

	return &Supervisor{
		marketData: deps.MarketData,
		validator:  deps.Validator,
		classifier: deps.Classifier,
		detector:   deps.Detector,
		confidence: deps.Confidence,
		agent:      deps.Agent,
		learner:    deps.Learner,
		anomalies:  deps.Anomalies,
		thresholds: deps.Thresholds,
		history:    deps.History,
		outcomes:   deps.Outcomes,
		bus:        deps.Bus,
		pool:       workers.NewPool(logger, poolConfig),
		config:     config,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Run starts the periodic scan loop, calling RunCycle every
// config.ScanInterval until Stop is called or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, userID string, watchlist []string) {
	s.pool.Start()
	go s.loop(ctx, userID, watchlist)
}

func (s *Supervisor) loop(ctx context.Context, userID string, watchlist []string) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunCycle(ctx, userID, watchlist)
		}
	}
}

// Stop signals the scan loop to exit and stops the worker pool. It does
// not cancel in-flight symbol tasks; cooperative cancellation is through
// the ctx passed to Run.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.pool.Stop()
}

// RunCycle runs one detection cycle across watchlist, bounded by the
// supervisor's worker pool, and blocks until every symbol's task has
// been attempted.
func (s *Supervisor) RunCycle(ctx context.Context, userID string, watchlist []string) CycleReport {
	started := time.Now()
	results := make([]SymbolResult, len(watchlist))

	var wg sync.WaitGroup
	for i, symbol := range watchlist {
		i, symbol := i, symbol
		wg.Add(1)
		submitErr := s.pool.SubmitFunc(func() error {
			defer wg.Done()
			results[i] = s.runSymbol(ctx, userID, symbol)
			return results[i].Err
		})
		if submitErr != nil {
			wg.Done()
			results[i] = SymbolResult{Symbol: symbol, Err: submitErr}
		}
	}
	wg.Wait()

	return CycleReport{Results: results, Started: started, Elapsed: time.Since(started)}
}

// runSymbol executes one symbol's detection cycle: fetch, classify,
// detect, decide, persist, enqueue. It never panics out to the pool
// worker — errors are captured on the result instead.
func (s *Supervisor) runSymbol(ctx context.Context, userID, symbol string) SymbolResult {
	result := SymbolResult{Symbol: symbol}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	bars, err := s.marketData.Bars(fetchCtx, symbol, s.config.BarLookback)
	cancel()
	if err != nil {
		result.Err = err
		return result
	}
	if s.bus != nil {
		s.bus.Publish(events.NewBarsFetchedEvent(symbol, len(bars)))
	}

	bars = quality.Clean(bars)
	report := s.validator.Validate(symbol, bars)
	if !report.IsUsable {
		return result
	}

	regimeCtx := s.classifier.Classify(bars)

	dbCtx, cancel := context.WithTimeout(ctx, s.config.DBTimeout)
	defer cancel()

	anomalies, err := s.detectWithOverrides(dbCtx, userID, symbol, bars)
	if err != nil {
		result.Err = err
		return result
	}
	result.AnomalyCount = len(anomalies)

	for _, anomaly := range anomalies {
		if s.bus != nil {
			s.bus.Publish(events.NewAnomalyEmittedEvent(anomaly))
		}

		history, _ := s.history.Read(dbCtx, userID, anomaly.PatternType, symbol)
		causalConfidence, _ := s.learner.ContextConfidence(anomaly.PatternType, regimeCtx)
		hasCausalRecord := s.learner.HasRecord(anomaly.PatternType, regimeCtx.Regime)

		cc := s.confidence.Compute(confidence.Inputs{
			ZScore:           anomaly.ZScore,
			PatternType:      anomaly.PatternType,
			Regime:           regimeCtx,
			History:          history,
			RegimeConfidence: causalConfidence,
			DataPoints:       len(bars),
		})

		d := s.agent.Decide(decision.Input{
			Anomaly:     anomaly,
			Regime:      regimeCtx,
			Confidence:  cc,
			DataQuality: cc.DataQuality,
			History: decision.History{
				Quality:          valueOrZero(history),
				HasQuality:       history != nil,
				CausalConfidence: causalConfidence,
				HasCausalRecord:  hasCausalRecord,
			},
		})
		result.DecisionCount++

		// save_anomaly strictly precedes enqueuing outcome tracking.
		if err := s.anomalies.Save(dbCtx, userID, anomaly, d); err != nil {
			result.Err = err
			continue
		}
		if s.bus != nil {
			s.bus.Publish(events.NewDecisionMadeEvent(symbol, d))
		}

		if d.State != types.StateIgnore {
			if err := s.outcomes.Enqueue(ctx, anomaly, userID, d, regimeCtx); err != nil {
				result.Err = err
			}
		}
	}

	return result
}

func valueOrZero(pq *types.PatternQuality) types.PatternQuality {
	if pq == nil {
		return types.PatternQuality{}
	}
	return *pq
}

// detectedPatternTypes is the fixed set of pattern types the detector can
// produce; detectWithOverrides checks each one against its own
// per-(user,pattern,symbol) threshold override so a raised override
// suppresses it and a lowered one can reveal it, independent of what the
// system defaults alone would have found (spec §4.2, §8 property 8).
// Breakout patterns are gated by the detector's BreakoutVolumeZFloor,
// which an override does not change, so a breakout_high/breakout_low
// override re-evaluates to the same result as the defaults.
var detectedPatternTypes = []types.PatternType{
	types.PatternVolumeSpike,
	types.PatternPriceMomentum,
	types.PatternVolatilitySurge,
	types.PatternBreakoutHigh,
	types.PatternBreakoutLow,
}

// detectWithOverrides evaluates window once against system defaults, then
// re-evaluates each pattern type that has a stored override and replaces
// (or removes, or adds) that pattern's entry accordingly. A pattern never
// falls back to its default-threshold result once an override exists for
// it — the override is used instead of the default, never alongside it.
func (s *Supervisor) detectWithOverrides(ctx context.Context, userID, symbol string, bars []types.Bar) ([]types.Anomaly, error) {
	baseline, err := s.detector.Detect(symbol, bars, nil)
	if err != nil {
		return nil, err
	}

	byPattern := make(map[types.PatternType]types.Anomaly, len(baseline))
	for _, a := range baseline {
		byPattern[a.PatternType] = a
	}

	for _, pt := range detectedPatternTypes {
		override, _ := s.thresholds.Get(ctx, userID, pt, symbol)
		if override == nil {
			continue
		}
		delete(byPattern, pt)
		rescored, err := s.detector.Detect(symbol, bars, override)
		if err != nil {
			continue
		}
		for _, a := range rescored {
			if a.PatternType == pt {
				byPattern[pt] = a
			}
		}
	}

	anomalies := make([]types.Anomaly, 0, len(byPattern))
	for _, pt := range detectedPatternTypes {
		if a, ok := byPattern[pt]; ok {
			anomalies = append(anomalies, a)
		}
	}
	return anomalies, nil
}
