package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/jmoiron/sqlx"
)

// UserActionRepo records human responses to anomalies.
type UserActionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUserActionRepo builds a UserActionRepo bound to db.
func NewUserActionRepo(db *sqlx.DB, timeout time.Duration) *UserActionRepo {
	return &UserActionRepo{db: db, timeout: timeout}
}

type userActionRow struct {
	AnomalyID  string    `db:"anomaly_id"`
	UserID     string    `db:"user_id"`
	Action     string    `db:"action"`
	Notes      string    `db:"notes"`
	RecordedAt time.Time `db:"recorded_at"`
}

// Save inserts a user action. Multiple actions on the same anomaly are
// allowed; the latest by recorded_at wins (spec §3's UserAction note).
func (r *UserActionRepo) Save(ctx context.Context, a types.UserAction) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO user_actions (anomaly_id, user_id, action, notes, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, a.AnomalyID, a.UserID, string(a.Action), a.Notes, a.RecordedAt)
	if err != nil {
		return fmt.Errorf("storage: save user action: %w", err)
	}
	return nil
}

// Latest returns the most recently recorded action for anomalyID, or nil
// if none was ever recorded.
func (r *UserActionRepo) Latest(ctx context.Context, anomalyID string) (*types.UserAction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT anomaly_id, user_id, action, notes, recorded_at
		FROM user_actions
		WHERE anomaly_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`

	var row userActionRow
	err := r.db.GetContext(ctx, &row, query, anomalyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: latest user action: %w", err)
	}
	return &types.UserAction{
		AnomalyID:  row.AnomalyID,
		UserID:     row.UserID,
		Action:     types.UserActionType(row.Action),
		Notes:      row.Notes,
		RecordedAt: row.RecordedAt,
	}, nil
}
