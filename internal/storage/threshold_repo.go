package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/jmoiron/sqlx"
)

// ThresholdRepo persists per-(user,pattern_type,symbol) z-score threshold
// overrides (spec §4.8), read by the detector before each cycle.
type ThresholdRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewThresholdRepo builds a ThresholdRepo bound to db.
func NewThresholdRepo(db *sqlx.DB, timeout time.Duration) *ThresholdRepo {
	return &ThresholdRepo{db: db, timeout: timeout}
}

type thresholdRow struct {
	UserID      string    `db:"user_id"`
	PatternType string    `db:"pattern_type"`
	Symbol      string    `db:"symbol"`
	ZThreshold  float64   `db:"z_score_threshold"`
	Reason      string    `db:"reason"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Set upserts a threshold override.
func (r *ThresholdRepo) Set(ctx context.Context, t types.DetectionThreshold) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO detection_thresholds (user_id, pattern_type, symbol, z_score_threshold, reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, pattern_type, symbol) DO UPDATE SET
			z_score_threshold = EXCLUDED.z_score_threshold,
			reason            = EXCLUDED.reason,
			updated_at        = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query, t.UserID, string(t.PatternType), t.Symbol, t.ZThreshold, t.Reason, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: set threshold: %w", err)
	}
	return nil
}

// Get returns the override for (userID, patternType, symbol), or nil if
// the detector should fall back to its system default.
func (r *ThresholdRepo) Get(ctx context.Context, userID string, patternType types.PatternType, symbol string) (*types.DetectionThreshold, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, pattern_type, symbol, z_score_threshold, reason, updated_at
		FROM detection_thresholds
		WHERE user_id = $1 AND pattern_type = $2 AND symbol = $3`

	var row thresholdRow
	err := r.db.GetContext(ctx, &row, query, userID, string(patternType), symbol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get threshold: %w", err)
	}
	return &types.DetectionThreshold{
		UserID:      row.UserID,
		PatternType: types.PatternType(row.PatternType),
		Symbol:      row.Symbol,
		ZThreshold:  row.ZThreshold,
		Reason:      row.Reason,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// ListForAdaptiveReview returns every override row, so the adaptive
// threshold job can scan pattern_quality alongside it (spec §4.8).
func (r *ThresholdRepo) ListForAdaptiveReview(ctx context.Context) ([]types.DetectionThreshold, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT user_id, pattern_type, symbol, z_score_threshold, reason, updated_at FROM detection_thresholds`
	var rows []thresholdRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("storage: list thresholds: %w", err)
	}
	out := make([]types.DetectionThreshold, len(rows))
	for i, row := range rows {
		out[i] = types.DetectionThreshold{
			UserID:      row.UserID,
			PatternType: types.PatternType(row.PatternType),
			Symbol:      row.Symbol,
			ZThreshold:  row.ZThreshold,
			Reason:      row.Reason,
			UpdatedAt:   row.UpdatedAt,
		}
	}
	return out, nil
}
