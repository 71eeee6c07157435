// Package types holds the shared records that flow between FinSight's
// detection, classification, decision, and learning components.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PatternType enumerates the anomaly shapes the detector recognizes.
type PatternType string

const (
	PatternVolumeSpike     PatternType = "volume_spike"
	PatternPriceMomentum   PatternType = "price_momentum"
	PatternVolatilitySurge PatternType = "volatility_surge"
	PatternBreakoutHigh    PatternType = "breakout_high"
	PatternBreakoutLow     PatternType = "breakout_low"
)

// Severity is a deterministic function of an anomaly's z-score.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank gives severity its total order for monotonicity checks.
var severityRank = map[Severity]int{
	SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2, SeverityCritical: 3,
}

// Less reports whether s ranks below other under low<medium<high<critical.
func (s Severity) Less(other Severity) bool {
	return severityRank[s] < severityRank[other]
}

// SeverityFromZScore maps an absolute z-score to its severity band.
func SeverityFromZScore(z float64) Severity {
	switch {
	case z < 3:
		return SeverityLow
	case z < 4:
		return SeverityMedium
	case z < 5:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// RegimeType labels the coarse behavior of a bar window.
type RegimeType string

const (
	RegimeTrendingUp     RegimeType = "trending_up"
	RegimeTrendingDown   RegimeType = "trending_down"
	RegimeRanging        RegimeType = "ranging"
	RegimeHighVolatility RegimeType = "high_volatility"
	RegimeLowVolatility  RegimeType = "low_volatility"
	RegimeBreakout       RegimeType = "breakout"
	RegimeUnknown        RegimeType = "unknown"
)

// Horizon is the trading timeframe a regime classification applies to.
type Horizon string

const (
	HorizonScalp      Horizon = "scalp"
	HorizonIntraday   Horizon = "intraday"
	HorizonSwing      Horizon = "swing"
	HorizonPositional Horizon = "positional"
)

// RegimeSource names which analytical lens produced a RegimeContext.
type RegimeSource string

const (
	SourceTechnical RegimeSource = "technical"
	SourceSentiment RegimeSource = "sentiment"
	SourceMacro     RegimeSource = "macro"
	SourceFlow      RegimeSource = "flow"
	SourceComposite RegimeSource = "composite"
)

// VolumeRegime labels current volume relative to its window mean.
type VolumeRegime string

const (
	VolumeHigh   VolumeRegime = "high"
	VolumeNormal VolumeRegime = "normal"
	VolumeLow    VolumeRegime = "low"
)

// TimeOfDay buckets the local hour of the newest bar.
type TimeOfDay string

const (
	TimeOpen       TimeOfDay = "open"
	TimeMid        TimeOfDay = "mid"
	TimeClose      TimeOfDay = "close"
	TimeAfterHours TimeOfDay = "after_hours"
)

// DecisionState is the agent's recommended response to an anomaly.
type DecisionState string

const (
	StateIgnore  DecisionState = "ignore"
	StateMonitor DecisionState = "monitor"
	StateReview  DecisionState = "review"
	StateExecute DecisionState = "execute"
)

// UserActionType is the human response recorded against an anomaly.
type UserActionType string

const (
	ActionIgnored  UserActionType = "ignored"
	ActionReviewed UserActionType = "reviewed"
	ActionTraded   UserActionType = "traded"
)

// Bar is one OHLCV observation. low <= open,close <= high and volume >= 0
// are enforced by the quality validator before a window reaches the
// detector or classifier.
type Bar struct {
	Symbol  string
	Instant time.Time
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

// RegimeContext is the classification of a bar window, derived fresh and
// immutable for the duration of one decision cycle.
type RegimeContext struct {
	Regime               RegimeType
	Horizon              Horizon
	Source               RegimeSource
	VolatilityPercentile float64
	TrendStrength        float64
	VolumeRegime         VolumeRegime
	TimeOfDay            TimeOfDay
	DayOfWeek            int
}

// Anomaly is a detected unusual event. Created by the detector and never
// mutated once persisted alongside its decision.
type Anomaly struct {
	ID          string
	Symbol      string
	PatternType PatternType
	Severity    Severity
	ZScore      float64
	Price       decimal.Decimal
	Volume      decimal.Decimal
	DetectedAt  time.Time

	// Narrative is an optional, template-generated (never LLM-authored)
	// human-readable gloss of the anomaly, recovered from the Python
	// original's context/sources/thought_process fields. Set by the
	// detector on every anomaly it creates; nil on anomalies read back by
	// storage.AnomalyRepo.ListPending.
	Narrative *AnomalyNarrative
}

// AnomalyNarrative holds the structured, template-built explanatory text
// attached to an anomaly for display purposes.
type AnomalyNarrative struct {
	Context        string
	Sources        string
	ThoughtProcess string
	Percentile     float64 // approximate one-tailed percentile of z_score
}

// CompositeConfidence combines statistical, behavioral, regime, and
// data-quality signals into one scalar, discounted by uncertainty.
type CompositeConfidence struct {
	Statistical float64
	Behavioral  float64
	Regime      float64
	DataQuality float64
	Uncertainty float64
	Composite   float64
}

// Story is the four-part human-readable narration attached to a Decision.
type Story struct {
	Context      string
	Trigger      string
	Risk         string
	Invalidation string
}

// Decision is the agent's authoritative output for one anomaly.
type Decision struct {
	State             DecisionState
	Confidence        CompositeConfidence
	Reason            string
	RiskAssessment    string
	Rejected          bool
	RejectionReason   string
	Escalated         bool
	EscalationReason  string
	RequestedMoreData bool
	Invalidation      string
	Story             Story
}

// PatternQuality is the per (user, pattern_type, symbol) empirical
// statistic set used as a behavioral prior. A row exists iff SampleSize>=1.
type PatternQuality struct {
	UserID        string
	PatternType   PatternType
	Symbol        string
	Accuracy      float64
	ReviewRate    float64
	TradeRate     float64
	AgentAccuracy float64
	AvgReturn     float64
	SampleSize    int
	UpdatedAt     time.Time
}

// UserAction is the recorded human response to an anomaly. At most one
// per (anomaly, user); the latest by RecordedAt wins.
type UserAction struct {
	AnomalyID  string
	UserID     string
	Action     UserActionType
	Notes      string
	RecordedAt time.Time
}

// ForwardReturns holds the nullable per-offset forward returns sampled by
// the outcome tracker.
type ForwardReturns struct {
	Return15m *float64
	Return1h  *float64
	Return4h  *float64
	Return1d  *float64
}

// Values returns the non-nil forward returns, for profitability scoring.
func (f ForwardReturns) Values() []float64 {
	var out []float64
	for _, v := range []*float64{f.Return15m, f.Return1h, f.Return4h, f.Return1d} {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// Outcome closes an anomaly's follow-up window. Created exactly once per
// anomaly that survives rejection.
type Outcome struct {
	AnomalyID       string
	UserID          string
	AgentDecision   DecisionState
	AgentConfidence float64
	UserAction      UserActionType
	Returns         ForwardReturns
	WasProfitable   bool
	AgentCorrect    bool
	CreatedAt       time.Time
}

// CausalObservation is one (timestamp, success) tuple fed to the causal
// learner under a given key.
type CausalObservation struct {
	Timestamp time.Time
	Success   bool
}

// CausalKey identifies one success-rate cell the learner tracks.
type CausalKey struct {
	PatternType PatternType
	Regime      RegimeType
	Horizon     Horizon // optional; zero value means "any horizon"
	TimeOfDay   TimeOfDay
	DayOfWeek   int
	HasTimeDim  bool // true when TimeOfDay/DayOfWeek participate in the key
}

// DetectionThreshold is a per (user, pattern_type, symbol) override of the
// system-default z-score threshold.
type DetectionThreshold struct {
	UserID      string
	PatternType PatternType
	Symbol      string
	ZThreshold  float64
	Reason      string
	UpdatedAt   time.Time
}

// PendingOutcomeJob is a durable row backing one anomaly's scheduled
// forward-return sampling, surviving process restarts.
type PendingOutcomeJob struct {
	AnomalyID         string
	UserID            string
	Symbol            string
	PatternType       PatternType
	Regime            RegimeContext
	EntryPrice        decimal.Decimal
	AgentDecision     DecisionState
	AgentConfidence   float64
	DetectedAt        time.Time
	NextIntervalIndex int
	FireAt            time.Time
	Returns           ForwardReturns
	Done              bool
}
