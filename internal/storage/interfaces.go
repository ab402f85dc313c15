package storage

import (
	"context"
	"time"

	"signal-lab/internal/domain"
)

// BacktestResultStore provides access to backtest_results storage.
// Results are immutable; a result is stored together with its trade ledger.
type BacktestResultStore interface {
	// Insert appends a result and its trades. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, r *domain.BacktestResult) error

	// GetByID retrieves a result with its trades. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.BacktestResult, error)

	// ListRecent returns up to limit results ordered by created_at DESC, id ASC.
	// Trades are not loaded.
	ListRecent(ctx context.Context, limit int) ([]*domain.BacktestResult, error)

	// GetByStrategy returns up to limit results for a strategy ordered by created_at DESC, id ASC.
	// Trades are not loaded.
	GetByStrategy(ctx context.Context, strategyID string, limit int) ([]*domain.BacktestResult, error)
}

// SignalRecordStore provides access to the append-only signal learning log.
type SignalRecordStore interface {
	// Insert appends a record. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, r *domain.SignalRecord) error

	// InsertBulk appends records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.SignalRecord) error

	// GetByModeSymbol returns records for (mode, symbol) ordered by timestamp ASC, id ASC.
	GetByModeSymbol(ctx context.Context, mode domain.Mode, symbol string) ([]*domain.SignalRecord, error)

	// GetByMode returns all records for a mode ordered by symbol ASC, timestamp ASC, id ASC.
	GetByMode(ctx context.Context, mode domain.Mode) ([]*domain.SignalRecord, error)
}

// CandleStore archives fetched candles per (symbol, interval).
type CandleStore interface {
	// InsertBulk appends candles. Candles whose open time is already stored are skipped.
	InsertBulk(ctx context.Context, symbol string, interval domain.Interval, candles []domain.Candle) error

	// GetRange returns candles with open time in [start, end), ordered by open time ASC.
	GetRange(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) ([]domain.Candle, error)
}
