package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/jmoiron/sqlx"
)

// PatternQualityRepo persists and reads per-(user,pattern_type,symbol)
// quality rows, upsert-safe on that natural key.
type PatternQualityRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPatternQualityRepo builds a PatternQualityRepo bound to db.
func NewPatternQualityRepo(db *sqlx.DB, timeout time.Duration) *PatternQualityRepo {
	return &PatternQualityRepo{db: db, timeout: timeout}
}

type patternQualityRow struct {
	UserID        string    `db:"user_id"`
	PatternType   string    `db:"pattern_type"`
	Symbol        string    `db:"symbol"`
	Accuracy      float64   `db:"accuracy"`
	ReviewRate    float64   `db:"review_rate"`
	TradeRate     float64   `db:"trade_rate"`
	AvgReturn     float64   `db:"avg_return"`
	SampleSize    int       `db:"sample_size"`
	AgentAccuracy float64   `db:"agent_accuracy"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Update upserts a recomputed quality row. Re-running with the same
// underlying outcome set must produce a byte-identical row (spec §8
// property 7) — this is guaranteed by the caller recomputing from the
// full outcome history rather than incrementally, not by anything here.
func (r *PatternQualityRepo) Update(ctx context.Context, pq types.PatternQuality) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO pattern_quality
			(user_id, pattern_type, symbol, accuracy, review_rate, trade_rate, avg_return, sample_size, agent_accuracy, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, pattern_type, symbol) DO UPDATE SET
			accuracy       = EXCLUDED.accuracy,
			review_rate    = EXCLUDED.review_rate,
			trade_rate     = EXCLUDED.trade_rate,
			avg_return     = EXCLUDED.avg_return,
			sample_size    = EXCLUDED.sample_size,
			agent_accuracy = EXCLUDED.agent_accuracy,
			updated_at     = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		pq.UserID, string(pq.PatternType), pq.Symbol, pq.Accuracy, pq.ReviewRate,
		pq.TradeRate, pq.AvgReturn, pq.SampleSize, pq.AgentAccuracy, pq.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: update pattern quality: %w", err)
	}
	return nil
}

// Read returns the quality row for (userID, patternType, symbol), or nil
// if the triple has no history yet.
func (r *PatternQualityRepo) Read(ctx context.Context, userID string, patternType types.PatternType, symbol string) (*types.PatternQuality, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, pattern_type, symbol, accuracy, review_rate, trade_rate, avg_return, sample_size, agent_accuracy, updated_at
		FROM pattern_quality
		WHERE user_id = $1 AND pattern_type = $2 AND symbol = $3`

	var row patternQualityRow
	err := r.db.GetContext(ctx, &row, query, userID, string(patternType), symbol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read pattern quality: %w", err)
	}
	return &types.PatternQuality{
		UserID:        row.UserID,
		PatternType:   types.PatternType(row.PatternType),
		Symbol:        row.Symbol,
		Accuracy:      row.Accuracy,
		ReviewRate:    row.ReviewRate,
		TradeRate:     row.TradeRate,
		AvgReturn:     row.AvgReturn,
		SampleSize:    row.SampleSize,
		AgentAccuracy: row.AgentAccuracy,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

// ListMatured returns every quality row with sample_size >= minSamples, the
// population the adaptive threshold job (spec §4.8) scans on each pass.
func (r *PatternQualityRepo) ListMatured(ctx context.Context, minSamples int) ([]types.PatternQuality, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, pattern_type, symbol, accuracy, review_rate, trade_rate, avg_return, sample_size, agent_accuracy, updated_at
		FROM pattern_quality
		WHERE sample_size >= $1`

	var rows []patternQualityRow
	if err := r.db.SelectContext(ctx, &rows, query, minSamples); err != nil {
		return nil, fmt.Errorf("storage: list matured pattern quality: %w", err)
	}
	out := make([]types.PatternQuality, len(rows))
	for i, row := range rows {
		out[i] = types.PatternQuality{
			UserID:        row.UserID,
			PatternType:   types.PatternType(row.PatternType),
			Symbol:        row.Symbol,
			Accuracy:      row.Accuracy,
			ReviewRate:    row.ReviewRate,
			TradeRate:     row.TradeRate,
			AvgReturn:     row.AvgReturn,
			SampleSize:    row.SampleSize,
			AgentAccuracy: row.AgentAccuracy,
			UpdatedAt:     row.UpdatedAt,
		}
	}
	return out, nil
}
