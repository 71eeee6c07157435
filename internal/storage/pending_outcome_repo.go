package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PendingOutcomeRepo persists the durable job rows backing the outcome
// tracker's restart-safe scheduling (spec §9's explicit design note).
type PendingOutcomeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPendingOutcomeRepo builds a PendingOutcomeRepo bound to db.
func NewPendingOutcomeRepo(db *sqlx.DB, timeout time.Duration) *PendingOutcomeRepo {
	return &PendingOutcomeRepo{db: db, timeout: timeout}
}

type pendingOutcomeRow struct {
	AnomalyID             string    `db:"anomaly_id"`
	UserID                string    `db:"user_id"`
	Symbol                string    `db:"symbol"`
	PatternType           string    `db:"pattern_type"`
	Regime                string    `db:"regime"`
	Horizon               string    `db:"horizon"`
	VolatilityPercentile  float64   `db:"volatility_percentile"`
	TrendStrength         float64   `db:"trend_strength"`
	VolumeRegime          string    `db:"volume_regime"`
	TimeOfDay             string    `db:"time_of_day"`
	DayOfWeek             int       `db:"day_of_week"`
	EntryPrice            float64   `db:"entry_price"`
	AgentDecision         string    `db:"agent_decision"`
	AgentConfidence       float64   `db:"agent_confidence"`
	DetectedAt            time.Time `db:"detected_at"`
	NextIntervalIndex     int       `db:"next_interval_index"`
	FireAt                time.Time `db:"fire_at"`
	Return15m             *float64  `db:"return_15m"`
	Return1h              *float64  `db:"return_1h"`
	Return4h              *float64  `db:"return_4h"`
	Return1d              *float64  `db:"return_1d"`
	Done                  bool      `db:"done"`
}

// Enqueue inserts a new pending-outcome job row. Anomaly ids are unique,
// so this is a plain insert rather than an upsert.
func (r *PendingOutcomeRepo) Enqueue(ctx context.Context, job types.PendingOutcomeJob) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO pending_outcomes
			(anomaly_id, user_id, symbol, pattern_type, regime, horizon, volatility_percentile,
			 trend_strength, volume_regime, time_of_day, day_of_week, entry_price, agent_decision,
			 agent_confidence, detected_at, next_interval_index, fire_at, done)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (anomaly_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		job.AnomalyID, job.UserID, job.Symbol, string(job.PatternType), string(job.Regime.Regime),
		string(job.Regime.Horizon), job.Regime.VolatilityPercentile, job.Regime.TrendStrength,
		string(job.Regime.VolumeRegime), string(job.Regime.TimeOfDay), job.Regime.DayOfWeek,
		job.EntryPrice.InexactFloat64(), string(job.AgentDecision), job.AgentConfidence,
		job.DetectedAt, job.NextIntervalIndex, job.FireAt, job.Done)
	if err != nil {
		return fmt.Errorf("storage: enqueue pending outcome: %w", err)
	}
	return nil
}

// Due returns every not-done job whose fire_at has passed.
func (r *PendingOutcomeRepo) Due(ctx context.Context, before time.Time) ([]types.PendingOutcomeJob, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT anomaly_id, user_id, symbol, pattern_type, regime, horizon, volatility_percentile,
		       trend_strength, volume_regime, time_of_day, day_of_week, entry_price, agent_decision,
		       agent_confidence, detected_at, next_interval_index, fire_at,
		       return_15m, return_1h, return_4h, return_1d, done
		FROM pending_outcomes
		WHERE NOT done AND fire_at <= $1
		ORDER BY fire_at`

	var rows []pendingOutcomeRow
	if err := r.db.SelectContext(ctx, &rows, query, before); err != nil {
		return nil, fmt.Errorf("storage: due pending outcomes: %w", err)
	}
	return toPendingJobs(rows), nil
}

// Update persists the advanced state of a job (next interval, sampled
// returns, or completion).
func (r *PendingOutcomeRepo) Update(ctx context.Context, job types.PendingOutcomeJob) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE pending_outcomes SET
			next_interval_index = $2,
			fire_at             = $3,
			return_15m          = $4,
			return_1h           = $5,
			return_4h           = $6,
			return_1d           = $7,
			done                = $8
		WHERE anomaly_id = $1`

	_, err := r.db.ExecContext(ctx, query,
		job.AnomalyID, job.NextIntervalIndex, job.FireAt,
		job.Returns.Return15m, job.Returns.Return1h, job.Returns.Return4h, job.Returns.Return1d, job.Done)
	if err != nil {
		return fmt.Errorf("storage: update pending outcome: %w", err)
	}
	return nil
}

// Recover counts jobs detected more than maxInterval ago that were never
// marked done — the restart-recovery scan spec §5 requires instead of
// trusting an in-process timer to have survived. It changes no rows:
// such jobs already have fire_at in the past and are picked up by the
// next Due poll, so the return count is informational only.
func (r *PendingOutcomeRepo) Recover(ctx context.Context, maxInterval time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT count(*) FROM pending_outcomes
		WHERE NOT done AND detected_at < $1`

	var count int
	cutoff := time.Now().Add(-maxInterval)
	if err := r.db.GetContext(ctx, &count, query, cutoff); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: recover pending outcomes: %w", err)
	}
	return count, nil
}

func toPendingJobs(rows []pendingOutcomeRow) []types.PendingOutcomeJob {
	out := make([]types.PendingOutcomeJob, len(rows))
	for i, row := range rows {
		out[i] = types.PendingOutcomeJob{
			AnomalyID:     row.AnomalyID,
			UserID:        row.UserID,
			Symbol:        row.Symbol,
			PatternType:   types.PatternType(row.PatternType),
			EntryPrice:    decimal.NewFromFloat(row.EntryPrice),
			AgentDecision: types.DecisionState(row.AgentDecision),
			AgentConfidence: row.AgentConfidence,
			DetectedAt:        row.DetectedAt,
			NextIntervalIndex: row.NextIntervalIndex,
			FireAt:            row.FireAt,
			Done:              row.Done,
			Regime: types.RegimeContext{
				Regime:               types.RegimeType(row.Regime),
				Horizon:              types.Horizon(row.Horizon),
				VolatilityPercentile: row.VolatilityPercentile,
				TrendStrength:        row.TrendStrength,
				VolumeRegime:         types.VolumeRegime(row.VolumeRegime),
				TimeOfDay:            types.TimeOfDay(row.TimeOfDay),
				DayOfWeek:            row.DayOfWeek,
			},
			Returns: types.ForwardReturns{
				Return15m: row.Return15m,
				Return1h:  row.Return1h,
				Return4h:  row.Return4h,
				Return1d:  row.Return1d,
			},
		}
	}
	return out
}
