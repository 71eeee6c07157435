package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/jmoiron/sqlx"
)

// OutcomeRepo persists closed outcomes, upsert-safe on anomaly_id, and
// answers the "recompute pattern quality from all history" query (spec
// §8's quality-idempotence property).
type OutcomeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOutcomeRepo builds an OutcomeRepo bound to db.
func NewOutcomeRepo(db *sqlx.DB, timeout time.Duration) *OutcomeRepo {
	return &OutcomeRepo{db: db, timeout: timeout}
}

type outcomeRow struct {
	AnomalyID       string    `db:"anomaly_id"`
	UserID          string    `db:"user_id"`
	AgentDecision   string    `db:"agent_decision"`
	AgentConfidence float64   `db:"agent_confidence"`
	UserAction      string    `db:"user_action"`
	Return15m       *float64  `db:"return_15m"`
	Return1h        *float64  `db:"return_1h"`
	Return4h        *float64  `db:"return_4h"`
	Return1d        *float64  `db:"return_1d"`
	WasProfitable   bool      `db:"was_profitable"`
	AgentCorrect    bool      `db:"agent_correct"`
	CreatedAt       time.Time `db:"created_at"`
	// Symbol and PatternType are not columns on anomaly_outcomes; they're
	// joined in from anomalies so RecentOutcomes can filter by them
	// without denormalizing the outcome row itself.
	Symbol      string `db:"symbol"`
	PatternType string `db:"pattern_type"`
}

// Save upserts the outcome for anomaly_id, called exactly once per
// anomaly that survives rejection (spec §4.7).
func (r *OutcomeRepo) Save(ctx context.Context, o types.Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO anomaly_outcomes
			(anomaly_id, user_id, agent_decision, agent_confidence, user_action,
			 return_15m, return_1h, return_4h, return_1d, was_profitable, agent_correct, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (anomaly_id) DO UPDATE SET
			user_action    = EXCLUDED.user_action,
			return_15m     = EXCLUDED.return_15m,
			return_1h      = EXCLUDED.return_1h,
			return_4h      = EXCLUDED.return_4h,
			return_1d      = EXCLUDED.return_1d,
			was_profitable = EXCLUDED.was_profitable,
			agent_correct  = EXCLUDED.agent_correct`

	_, err := r.db.ExecContext(ctx, query,
		o.AnomalyID, o.UserID, string(o.AgentDecision), o.AgentConfidence, string(o.UserAction),
		o.Returns.Return15m, o.Returns.Return1h, o.Returns.Return4h, o.Returns.Return1d,
		o.WasProfitable, o.AgentCorrect, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: save outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns every outcome row for (userID, patternType,
// symbol), joined against anomalies for the pattern/symbol filter — the
// full history PatternQuality recomputation reads from, never a
// streaming window (spec §8 property 7).
func (r *OutcomeRepo) RecentOutcomes(ctx context.Context, userID string, patternType types.PatternType, symbol string) ([]types.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT o.anomaly_id, o.user_id, o.agent_decision, o.agent_confidence, o.user_action,
		       o.return_15m, o.return_1h, o.return_4h, o.return_1d, o.was_profitable, o.agent_correct, o.created_at,
		       a.symbol, a.pattern_type
		FROM anomaly_outcomes o
		JOIN anomalies a ON a.id = o.anomaly_id
		WHERE o.user_id = $1 AND a.pattern_type = $2 AND a.symbol = $3
		ORDER BY o.created_at`

	var rows []outcomeRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, string(patternType), symbol); err != nil {
		return nil, fmt.Errorf("storage: recent outcomes: %w", err)
	}

	out := make([]types.Outcome, len(rows))
	for i, row := range rows {
		out[i] = types.Outcome{
			AnomalyID:       row.AnomalyID,
			UserID:          row.UserID,
			AgentDecision:   types.DecisionState(row.AgentDecision),
			AgentConfidence: row.AgentConfidence,
			UserAction:      types.UserActionType(row.UserAction),
			Returns: types.ForwardReturns{
				Return15m: row.Return15m,
				Return1h:  row.Return1h,
				Return4h:  row.Return4h,
				Return1d:  row.Return1d,
			},
			WasProfitable: row.WasProfitable,
			AgentCorrect:  row.AgentCorrect,
			CreatedAt:     row.CreatedAt,
		}
	}
	return out, nil
}
