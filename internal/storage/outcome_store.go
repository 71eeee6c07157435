package storage

import (
	"context"
	"time"

	"github.com/finsight/finsight/pkg/types"
)

// OutcomeStore adapts Manager's repositories to internal/outcome.Store,
// so the outcome tracker depends only on the narrow interface it needs
// rather than the full Manager.
type OutcomeStore struct {
	m *Manager
}

// NewOutcomeStore wraps m for use as an internal/outcome.Store.
func NewOutcomeStore(m *Manager) *OutcomeStore {
	return &OutcomeStore{m: m}
}

func (s *OutcomeStore) EnqueuePendingOutcome(ctx context.Context, job types.PendingOutcomeJob) error {
	return s.m.Pending.Enqueue(ctx, job)
}

func (s *OutcomeStore) DuePendingOutcomes(ctx context.Context, before time.Time) ([]types.PendingOutcomeJob, error) {
	return s.m.Pending.Due(ctx, before)
}

func (s *OutcomeStore) UpdatePendingOutcome(ctx context.Context, job types.PendingOutcomeJob) error {
	return s.m.Pending.Update(ctx, job)
}

func (s *OutcomeStore) RecoverPendingOutcomes(ctx context.Context, maxInterval time.Duration) (int, error) {
	return s.m.Pending.Recover(ctx, maxInterval)
}

func (s *OutcomeStore) UserAction(ctx context.Context, anomalyID string) (*types.UserAction, error) {
	return s.m.UserActions.Latest(ctx, anomalyID)
}

func (s *OutcomeStore) SaveOutcome(ctx context.Context, outcome types.Outcome) error {
	return s.m.Outcomes.Save(ctx, outcome)
}

func (s *OutcomeStore) RecentOutcomes(ctx context.Context, userID string, patternType types.PatternType, symbol string) ([]types.Outcome, error) {
	return s.m.Outcomes.RecentOutcomes(ctx, userID, patternType, symbol)
}

func (s *OutcomeStore) UpdatePatternQuality(ctx context.Context, pq types.PatternQuality) error {
	return s.m.Quality.Update(ctx, pq)
}
