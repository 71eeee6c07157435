// Package types provides configuration types for FinSight's components.
package types

import "time"

// PatternThresholdConfig is the system-default detection tuning for one
// pattern type: its z-score threshold, any value floor, and the minimum
// bar count it needs to evaluate.
type PatternThresholdConfig struct {
	ZThreshold     float64 `json:"zThreshold" mapstructure:"z_threshold"`
	MinValueFloor  float64 `json:"minValueFloor" mapstructure:"min_value_floor"`
	MinChange      float64 `json:"minChange" mapstructure:"min_change"`
	MinDataPoints  int     `json:"minDataPoints" mapstructure:"min_data_points"`
}

// DetectorConfig configures the anomaly detector.
type DetectorConfig struct {
	WindowSize int                                `json:"windowSize" mapstructure:"window_size"`
	Volume     PatternThresholdConfig             `json:"volume" mapstructure:"volume"`
	Price      PatternThresholdConfig             `json:"price" mapstructure:"price"`
	Range      PatternThresholdConfig             `json:"range" mapstructure:"range"`
	BreakoutVolumeZFloor float64                  `json:"breakoutVolumeZFloor" mapstructure:"breakout_volume_z_floor"`
}

// DefaultDetectorConfig matches spec.md §4.2's default thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		WindowSize: 20,
		Volume:     PatternThresholdConfig{ZThreshold: 2.0, MinValueFloor: 0, MinDataPoints: 20},
		Price:      PatternThresholdConfig{ZThreshold: 2.0, MinChange: 0.002, MinDataPoints: 20},
		Range:      PatternThresholdConfig{ZThreshold: 2.0, MinDataPoints: 20},
		BreakoutVolumeZFloor: 1.5,
	}
}

// RegimeConfig configures the regime classifier.
type RegimeConfig struct {
	WindowSize          int     `json:"windowSize" mapstructure:"window_size"`
	TrendEMAFast        int     `json:"trendEmaFast" mapstructure:"trend_ema_fast"`
	TrendEMASlow        int     `json:"trendEmaSlow" mapstructure:"trend_ema_slow"`
	TrendThreshold      float64 `json:"trendThreshold" mapstructure:"trend_threshold"`
	HighVolPercentile   float64 `json:"highVolPercentile" mapstructure:"high_vol_percentile"`
	LowVolPercentile    float64 `json:"lowVolPercentile" mapstructure:"low_vol_percentile"`
	BreakoutCloseFactor float64 `json:"breakoutCloseFactor" mapstructure:"breakout_close_factor"`
	VolumeHighFactor    float64 `json:"volumeHighFactor" mapstructure:"volume_high_factor"`
	VolumeLowFactor     float64 `json:"volumeLowFactor" mapstructure:"volume_low_factor"`
}

// DefaultRegimeConfig matches spec.md §4.3.
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		WindowSize:          20,
		TrendEMAFast:        8,
		TrendEMASlow:        21,
		TrendThreshold:      0.02,
		HighVolPercentile:   80,
		LowVolPercentile:    20,
		BreakoutCloseFactor: 0.99,
		VolumeHighFactor:    1.5,
		VolumeLowFactor:     0.5,
	}
}

// ConfidenceWeights configures the composite confidence weighted sum.
type ConfidenceWeights struct {
	Statistical float64 `json:"statistical" mapstructure:"statistical"`
	Behavioral  float64 `json:"behavioral" mapstructure:"behavioral"`
	Regime      float64 `json:"regime" mapstructure:"regime"`
	DataQuality float64 `json:"dataQuality" mapstructure:"data_quality"`
	UncertaintyDiscount float64 `json:"uncertaintyDiscount" mapstructure:"uncertainty_discount"`
}

// DefaultConfidenceWeights matches spec.md §3's composite invariant.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Statistical: 0.25, Behavioral: 0.30, Regime: 0.25, DataQuality: 0.20,
		UncertaintyDiscount: 0.5,
	}
}

// DecisionThresholds configures the decision agent's authority-rule gates.
type DecisionThresholds struct {
	PoorHistoryMinSamples   int     `json:"poorHistoryMinSamples" mapstructure:"poor_history_min_samples"`
	PoorHistoryMaxAccuracy  float64 `json:"poorHistoryMaxAccuracy" mapstructure:"poor_history_max_accuracy"`
	UnfavorableRegimeMaxConfidence float64 `json:"unfavorableRegimeMaxConfidence" mapstructure:"unfavorable_regime_max_confidence"`
	UnfavorableRegimeMaxZ   float64 `json:"unfavorableRegimeMaxZ" mapstructure:"unfavorable_regime_max_z"`
	InsufficientDataMaxQuality float64 `json:"insufficientDataMaxQuality" mapstructure:"insufficient_data_max_quality"`
	HighUncertaintyMin      float64 `json:"highUncertaintyMin" mapstructure:"high_uncertainty_min"`
	ExecuteMinComposite     float64 `json:"executeMinComposite" mapstructure:"execute_min_composite"`
	ExecuteMinZ             float64 `json:"executeMinZ" mapstructure:"execute_min_z"`
	ReviewMinComposite      float64 `json:"reviewMinComposite" mapstructure:"review_min_composite"`
	MonitorMinComposite     float64 `json:"monitorMinComposite" mapstructure:"monitor_min_composite"`
	MonitorMinZ             float64 `json:"monitorMinZ" mapstructure:"monitor_min_z"`
}

// DefaultDecisionThresholds matches spec.md §4.5.
func DefaultDecisionThresholds() DecisionThresholds {
	return DecisionThresholds{
		PoorHistoryMinSamples:      15,
		PoorHistoryMaxAccuracy:     0.25,
		UnfavorableRegimeMaxConfidence: 0.4,
		UnfavorableRegimeMaxZ:      3.5,
		InsufficientDataMaxQuality: 0.5,
		HighUncertaintyMin:         0.4,
		ExecuteMinComposite:        0.75,
		ExecuteMinZ:                4.0,
		ReviewMinComposite:         0.55,
		MonitorMinComposite:        0.35,
		MonitorMinZ:                2.5,
	}
}

// CausalLearnerConfig configures the causal learner's decay and sampling.
type CausalLearnerConfig struct {
	HalfLife          time.Duration `json:"halfLife" mapstructure:"half_life"`
	ContextMinSample  int           `json:"contextMinSample" mapstructure:"context_min_sample"`
	SuggestRaiseAbove float64       `json:"suggestRaiseAbove" mapstructure:"suggest_raise_above"`
	SuggestLowerBelow float64       `json:"suggestLowerBelow" mapstructure:"suggest_lower_below"`
	ThresholdFloor    float64       `json:"thresholdFloor" mapstructure:"threshold_floor"`
	ThresholdCeiling  float64       `json:"thresholdCeiling" mapstructure:"threshold_ceiling"`
}

// DefaultCausalLearnerConfig matches spec.md §4.6 and the Open Question
// resolution recorded in DESIGN.md (minimum sample size = 5, the top of
// spec's stated 3-5 range).
func DefaultCausalLearnerConfig() CausalLearnerConfig {
	return CausalLearnerConfig{
		HalfLife:          30 * 24 * time.Hour,
		ContextMinSample:  5,
		SuggestRaiseAbove: 1.2,
		SuggestLowerBelow: 0.8,
		ThresholdFloor:    2.0,
		ThresholdCeiling:  5.0,
	}
}

// OutcomeInterval is a single labeled forward-return sampling offset.
type OutcomeInterval struct {
	Label   string        `json:"label" mapstructure:"label"`
	Offset  time.Duration `json:"offset" mapstructure:"offset"`
}

// OutcomeTrackerConfig configures the durable outcome-tracking scheduler.
type OutcomeTrackerConfig struct {
	Intervals         []OutcomeInterval `json:"intervals" mapstructure:"intervals"`
	ProfitThreshold   float64           `json:"profitThreshold" mapstructure:"profit_threshold"`
	UserActionTimeout time.Duration     `json:"userActionTimeout" mapstructure:"user_action_timeout"`
	PollInterval      time.Duration     `json:"pollInterval" mapstructure:"poll_interval"`
}

// DefaultOutcomeTrackerConfig matches spec.md §6's configuration surface.
func DefaultOutcomeTrackerConfig() OutcomeTrackerConfig {
	return OutcomeTrackerConfig{
		Intervals: []OutcomeInterval{
			{Label: "15m", Offset: 15 * time.Minute},
			{Label: "1h", Offset: time.Hour},
			{Label: "4h", Offset: 4 * time.Hour},
			{Label: "1d", Offset: 24 * time.Hour},
		},
		ProfitThreshold:   0.005,
		UserActionTimeout: time.Hour,
		PollInterval:      30 * time.Second,
	}
}

// PersistenceConfig configures the relational connection pool.
type PersistenceConfig struct {
	DSN             string        `json:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `json:"queryTimeout" mapstructure:"query_timeout"`
}

// DefaultPersistenceConfig mirrors the pool tuning grounded on cryptorun's
// db.Config.
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// SchedulerConfig bounds the detection cycle's concurrency.
type SchedulerConfig struct {
	ScanInterval  time.Duration `json:"scanInterval" mapstructure:"scan_interval"`
	Parallelism   int           `json:"parallelism" mapstructure:"parallelism"`
	FetchTimeout  time.Duration `json:"fetchTimeout" mapstructure:"fetch_timeout"`
	DBTimeout     time.Duration `json:"dbTimeout" mapstructure:"db_timeout"`
	BarLookback   int           `json:"barLookback" mapstructure:"bar_lookback"`
}

// DefaultSchedulerConfig matches spec.md §5's typical parallelism of 8-16
// and its provider/DB timeout bounds.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ScanInterval: time.Minute,
		Parallelism:  12,
		FetchTimeout: 30 * time.Second,
		DBTimeout:    30 * time.Second,
		BarLookback:  21,
	}
}

// MarketDataConfig configures the market data adapter's caching and
// provider fallback.
type MarketDataConfig struct {
	CacheTTL      time.Duration `json:"cacheTtl" mapstructure:"cache_ttl"`
	RetryAttempts int           `json:"retryAttempts" mapstructure:"retry_attempts"`
	RetryInitialDelay time.Duration `json:"retryInitialDelay" mapstructure:"retry_initial_delay"`
	RetryMaxDelay time.Duration `json:"retryMaxDelay" mapstructure:"retry_max_delay"`
}

// DefaultMarketDataConfig supplies conservative provider-fallback retry
// defaults in the teacher's Retry[T] idiom.
func DefaultMarketDataConfig() MarketDataConfig {
	return MarketDataConfig{
		CacheTTL:          30 * time.Second,
		RetryAttempts:     3,
		RetryInitialDelay: 500 * time.Millisecond,
		RetryMaxDelay:     5 * time.Second,
	}
}

// ServerConfig represents the ops HTTP surface (health, metrics, manual
// inspection) — not the out-of-scope user-facing API.
type ServerConfig struct {
	Host          string        `json:"host" mapstructure:"host"`
	Port          int           `json:"port" mapstructure:"port"`
	ReadTimeout   time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
	EnableMetrics bool          `json:"enableMetrics" mapstructure:"enable_metrics"`
}

// DefaultServerConfig supplies the ops-surface defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8090,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  10 * time.Second,
		EnableMetrics: true,
	}
}

// QualityStoreConfig tunes the adaptive per-pattern threshold job (spec
// §4.8): it periodically scans matured pattern_quality rows and nudges
// detection_thresholds up or down.
type QualityStoreConfig struct {
	ScanInterval     time.Duration `json:"scanInterval" mapstructure:"scan_interval"`
	MinSampleSize    int           `json:"minSampleSize" mapstructure:"min_sample_size"`
	LowAccuracy      float64       `json:"lowAccuracy" mapstructure:"low_accuracy"`
	HighAccuracy     float64       `json:"highAccuracy" mapstructure:"high_accuracy"`
	HighReviewRate   float64       `json:"highReviewRate" mapstructure:"high_review_rate"`
	RaiseAmount      float64       `json:"raiseAmount" mapstructure:"raise_amount"`
	LowerAmount      float64       `json:"lowerAmount" mapstructure:"lower_amount"`
	MaxThreshold     float64       `json:"maxThreshold" mapstructure:"max_threshold"`
	MinThreshold     float64       `json:"minThreshold" mapstructure:"min_threshold"`
	DefaultThreshold float64       `json:"defaultThreshold" mapstructure:"default_threshold"`
}

// DefaultQualityStoreConfig matches spec.md §4.8's literal thresholds.
func DefaultQualityStoreConfig() QualityStoreConfig {
	return QualityStoreConfig{
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

// AppConfig aggregates every component's configuration into the one
// struct viper unmarshals into at startup.
type AppConfig struct {
	Watchlist   []string           `json:"watchlist" mapstructure:"watchlist"`
	UserID      string             `json:"userId" mapstructure:"user_id"`
	Detector    DetectorConfig     `json:"detector" mapstructure:"detector"`
	Regime      RegimeConfig       `json:"regime" mapstructure:"regime"`
	Confidence  ConfidenceWeights  `json:"confidence" mapstructure:"confidence"`
	Decision    DecisionThresholds `json:"decision" mapstructure:"decision"`
	Causal      CausalLearnerConfig `json:"causal" mapstructure:"causal"`
	Outcome     OutcomeTrackerConfig `json:"outcome" mapstructure:"outcome"`
	Persistence PersistenceConfig  `json:"persistence" mapstructure:"persistence"`
	Scheduler   SchedulerConfig    `json:"scheduler" mapstructure:"scheduler"`
	MarketData  MarketDataConfig   `json:"marketData" mapstructure:"market_data"`
	Server      ServerConfig       `json:"server" mapstructure:"server"`
	QualityStore QualityStoreConfig `json:"qualityStore" mapstructure:"quality_store"`
}

// DefaultAppConfig composes every component's defaults.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		UserID:      "default",
		Detector:    DefaultDetectorConfig(),
		Regime:      DefaultRegimeConfig(),
		Confidence:  DefaultConfidenceWeights(),
		Decision:    DefaultDecisionThresholds(),
		Causal:      DefaultCausalLearnerConfig(),
		Outcome:     DefaultOutcomeTrackerConfig(),
		Persistence: DefaultPersistenceConfig(),
		Scheduler:   DefaultSchedulerConfig(),
		MarketData:  DefaultMarketDataConfig(),
		Server:      DefaultServerConfig(),
		QualityStore: DefaultQualityStoreConfig(),
	}
}
