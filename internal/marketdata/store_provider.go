package marketdata

import (
	"context"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// StoreProvider serves archived candles so backtests can run without the exchange.
type StoreProvider struct {
	store storage.CandleStore
}

// NewStoreProvider creates a Provider backed by a candle archive.
func NewStoreProvider(store storage.CandleStore) *StoreProvider {
	return &StoreProvider{store: store}
}

// FetchCandles returns up to limit archived candles with open time in [start, end).
func (p *StoreProvider) FetchCandles(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time, limit int) ([]domain.Candle, error) {
	candles, err := p.store.GetRange(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[:limit]
	}
	return candles, nil
}

var _ Provider = (*StoreProvider)(nil)
