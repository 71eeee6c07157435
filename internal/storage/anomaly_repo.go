package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// AnomalyRepo persists and queries anomalies, upsert-safe on id.
type AnomalyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAnomalyRepo builds an AnomalyRepo bound to db with a per-call timeout.
func NewAnomalyRepo(db *sqlx.DB, timeout time.Duration) *AnomalyRepo {
	return &AnomalyRepo{db: db, timeout: timeout}
}

type anomalyRow struct {
	ID              string    `db:"id"`
	UserID          string    `db:"user_id"`
	Symbol          string    `db:"symbol"`
	PatternType     string    `db:"pattern_type"`
	Severity        string    `db:"severity"`
	ZScore          float64   `db:"z_score"`
	Price           float64   `db:"price"`
	Volume          float64   `db:"volume"`
	DetectedAt      time.Time `db:"detected_at"`
	AgentDecision   string    `db:"agent_decision"`
	AgentConfidence float64   `db:"agent_confidence"`
	AgentReason     string    `db:"agent_reason"`
	Context         string    `db:"context"`
	Sources         string    `db:"sources"`
	ThoughtProcess  string    `db:"thought_process"`
}

// Save upserts an anomaly alongside its agent decision, keyed by id.
func (r *AnomalyRepo) Save(ctx context.Context, userID string, a types.Anomaly, decision types.Decision) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := anomalyRow{
		ID:              a.ID,
		UserID:          userID,
		Symbol:          a.Symbol,
		PatternType:     string(a.PatternType),
		Severity:        string(a.Severity),
		ZScore:          a.ZScore,
		Price:           a.Price.InexactFloat64(),
		Volume:          a.Volume.InexactFloat64(),
		DetectedAt:      a.DetectedAt,
		AgentDecision:   string(decision.State),
		AgentConfidence: decision.Confidence.Composite,
		AgentReason:     decision.Reason,
	}
	if a.Narrative != nil {
		row.Context = a.Narrative.Context
		row.Sources = a.Narrative.Sources
		row.ThoughtProcess = a.Narrative.ThoughtProcess
	}

	query := `
		INSERT INTO anomalies
			(id, user_id, symbol, pattern_type, severity, z_score, price, volume,
			 detected_at, agent_decision, agent_confidence, agent_reason, context, sources, thought_process)
		VALUES
			(:id, :user_id, :symbol, :pattern_type, :severity, :z_score, :price, :volume,
			 :detected_at, :agent_decision, :agent_confidence, :agent_reason, :context, :sources, :thought_process)
		ON CONFLICT (id) DO UPDATE SET
			agent_decision   = EXCLUDED.agent_decision,
			agent_confidence = EXCLUDED.agent_confidence,
			agent_reason     = EXCLUDED.agent_reason,
			context          = EXCLUDED.context,
			sources          = EXCLUDED.sources,
			thought_process  = EXCLUDED.thought_process`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("storage: save anomaly: %w", err)
	}
	return nil
}

// ListPending returns anomalies for userID with agent_decision != ignore
// that have no corresponding outcome row yet — the read side of the
// outcome tracker's restart-recovery scan (spec §5).
func (r *AnomalyRepo) ListPending(ctx context.Context, userID string) ([]types.Anomaly, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT a.id, a.user_id, a.symbol, a.pattern_type, a.severity, a.z_score, a.price, a.volume,
		       a.detected_at, a.agent_decision, a.agent_confidence, a.agent_reason, a.context, a.sources, a.thought_process
		FROM anomalies a
		LEFT JOIN anomaly_outcomes o ON o.anomaly_id = a.id
		WHERE a.user_id = $1 AND a.agent_decision <> 'ignore' AND o.anomaly_id IS NULL
		ORDER BY a.detected_at DESC`

	var rows []anomalyRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("storage: list pending anomalies: %w", err)
	}
	return toAnomalies(rows), nil
}

func toAnomalies(rows []anomalyRow) []types.Anomaly {
	out := make([]types.Anomaly, len(rows))
	for i, row := range rows {
		out[i] = types.Anomaly{
			ID:          row.ID,
			Symbol:      row.Symbol,
			PatternType: types.PatternType(row.PatternType),
			Severity:    types.Severity(row.Severity),
			ZScore:      row.ZScore,
			Price:       decimal.NewFromFloat(row.Price),
			Volume:      decimal.NewFromFloat(row.Volume),
			DetectedAt:  row.DetectedAt,
		}
	}
	return out
}
