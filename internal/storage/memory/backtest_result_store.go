package memory

import (
	"context"
	"sort"
	"sync"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// BacktestResultStore is an in-memory implementation of storage.BacktestResultStore.
type BacktestResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BacktestResult // keyed by result id
}

// NewBacktestResultStore creates a new in-memory backtest result store.
func NewBacktestResultStore() *BacktestResultStore {
	return &BacktestResultStore{
		data: make(map[string]*domain.BacktestResult),
	}
}

// Insert appends a result. Returns ErrDuplicateKey if the id exists.
func (s *BacktestResultStore) Insert(_ context.Context, r *domain.BacktestResult) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ID] = cloneResult(r, true)
	return nil
}

// GetByID retrieves a result with its trades. Returns ErrNotFound if not exists.
func (s *BacktestResultStore) GetByID(_ context.Context, id string) (*domain.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneResult(r, true), nil
}

// ListRecent returns up to limit results ordered by created_at DESC, id ASC.
func (s *BacktestResultStore) ListRecent(_ context.Context, limit int) ([]*domain.BacktestResult, error) {
	return s.list(func(*domain.BacktestResult) bool { return true }, limit), nil
}

// GetByStrategy returns up to limit results for a strategy.
func (s *BacktestResultStore) GetByStrategy(_ context.Context, strategyID string, limit int) ([]*domain.BacktestResult, error) {
	return s.list(func(r *domain.BacktestResult) bool { return r.StrategyID == strategyID }, limit), nil
}

func (s *BacktestResultStore) list(match func(*domain.BacktestResult) bool, limit int) []*domain.BacktestResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BacktestResult
	for _, r := range s.data {
		if match(r) {
			result = append(result, cloneResult(r, false))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// cloneResult copies r; trades are copied only when withTrades is set.
func cloneResult(r *domain.BacktestResult, withTrades bool) *domain.BacktestResult {
	c := *r
	c.Trades = nil
	if withTrades && r.Trades != nil {
		c.Trades = append([]domain.Trade(nil), r.Trades...)
	}
	c.MonthlyReturns = append([]domain.MonthlyReturn(nil), r.MonthlyReturns...)
	return &c
}

var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)
