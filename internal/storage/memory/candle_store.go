package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

type candleKey struct {
	symbol   string
	interval domain.Interval
}

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[candleKey]map[int64]domain.Candle // open time (ms) -> candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[candleKey]map[int64]domain.Candle),
	}
}

// InsertBulk appends candles, skipping open times already stored.
func (s *CandleStore) InsertBulk(_ context.Context, symbol string, interval domain.Interval, candles []domain.Candle) error {
	if symbol == "" || !interval.IsValid() {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := candleKey{symbol: symbol, interval: interval}
	series, ok := s.data[key]
	if !ok {
		series = make(map[int64]domain.Candle)
		s.data[key] = series
	}
	for _, c := range candles {
		ms := c.OpenTime.UnixMilli()
		if _, exists := series[ms]; exists {
			continue
		}
		series[ms] = c
	}
	return nil
}

// GetRange returns candles with open time in [start, end), ordered ASC.
func (s *CandleStore) GetRange(_ context.Context, symbol string, interval domain.Interval, start, end time.Time) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[candleKey{symbol: symbol, interval: interval}]
	from, to := start.UnixMilli(), end.UnixMilli()

	var result []domain.Candle
	for ms, c := range series {
		if ms >= from && ms < to {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTime.Before(result[j].OpenTime)
	})
	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
