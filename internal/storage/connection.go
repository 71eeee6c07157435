// Package storage implements FinSight's relational persistence layer
// (spec §4.9, §6): connection pooling, prepared-statement repositories,
// and upsert-safe natural-key writes over Postgres. Grounded on
// sawpanic-cryptorun's internal/infrastructure/db/connection.go and
// internal/persistence/postgres/regime_repo.go — the teacher's own
// internal/data/store.go is a flat JSON file store and cannot express
// spec §6's schema, pooling, or prepared-statement requirements, so this
// component is grounded cross-repo rather than on the teacher itself.
package storage

import (
	"context"
	"fmt"

	"github.com/finsight/finsight/pkg/types"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Manager owns the pooled connection and every repository built on it.
type Manager struct {
	db     *sqlx.DB
	config types.PersistenceConfig
	logger *zap.Logger

	Anomalies   *AnomalyRepo
	UserActions *UserActionRepo
	Outcomes    *OutcomeRepo
	Quality     *PatternQualityRepo
	Thresholds  *ThresholdRepo
	Pending     *PendingOutcomeRepo
}

// NewManager opens a pooled connection per config, pings it, and wires
// every repository against the shared *sqlx.DB.
func NewManager(config types.PersistenceConfig, logger *zap.Logger) (*Manager, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("storage: DSN is required")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	timeout := config.QueryTimeout
	m := &Manager{
		db:          db,
		config:      config,
		logger:      logger,
		Anomalies:   NewAnomalyRepo(db, timeout),
		UserActions: NewUserActionRepo(db, timeout),
		Outcomes:    NewOutcomeRepo(db, timeout),
		Quality:     NewPatternQualityRepo(db, timeout),
		Thresholds:  NewThresholdRepo(db, timeout),
		Pending:     NewPendingOutcomeRepo(db, timeout),
	}

	if logger != nil {
		logger.Info("storage manager connected",
			zap.Int("max_open_conns", config.MaxOpenConns),
			zap.Int("max_idle_conns", config.MaxIdleConns))
	}
	return m, nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Health reports pool statistics for the ops surface.
func (m *Manager) Health(ctx context.Context) (Stats, error) {
	if err := m.db.PingContext(ctx); err != nil {
		return Stats{}, err
	}
	s := m.db.Stats()
	return Stats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
	}, nil
}

// Stats mirrors database/sql.DBStats' fields relevant to operators.
type Stats struct {
	MaxOpenConnections int
	OpenConnections     int
	InUse               int
	Idle                int
	WaitCount           int64
}
