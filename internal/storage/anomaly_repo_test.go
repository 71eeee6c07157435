package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/finsight/finsight/pkg/types"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func newMockRepo(t *testing.T) (*AnomalyRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	sqlxDB := sqlx.NewDb(db, "postgres")
	repo := NewAnomalyRepo(sqlxDB, 5*time.Second)
	return repo, mock, func() { db.Close() }
}

func TestAnomalyRepoSaveUpserts(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectExec("INSERT INTO anomalies").WillReturnResult(sqlmock.NewResult(0, 1))

	anomaly := types.Anomaly{
		ID:          "anom-1",
		Symbol:      "AAPL",
		PatternType: types.PatternVolumeSpike,
		Severity:    types.SeverityHigh,
		ZScore:      4.2,
		Price:       decimal.NewFromFloat(150.25),
		Volume:      decimal.NewFromFloat(1_600_000),
		DetectedAt:  time.Now(),
	}
	decision := types.Decision{State: types.StateExecute, Confidence: types.CompositeConfidence{Composite: 0.8}, Reason: "strong signal"}

	if err := repo.Save(context.Background(), "user-1", anomaly, decision); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAnomalyRepoListPending(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "symbol", "pattern_type", "severity", "z_score", "price", "volume",
		"detected_at", "agent_decision", "agent_confidence", "agent_reason", "context", "sources", "thought_process",
	}).AddRow("anom-2", "user-1", "MSFT", "price_momentum", "medium", 3.4, 310.0, 900000.0,
		time.Now(), "review", 0.6, "", "", "", "")

	mock.ExpectQuery("SELECT a.id").WillReturnRows(rows)

	result, err := repo.ListPending(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d pending anomalies, want 1", len(result))
	}
	if result[0].Symbol != "MSFT" {
		t.Errorf("symbol = %s, want MSFT", result[0].Symbol)
	}
}
