package clickhouse

import (
	"context"
	"fmt"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk appends candles. Open times already archived (or repeated in the batch) are skipped.
func (s *CandleStore) InsertBulk(ctx context.Context, symbol string, interval domain.Interval, candles []domain.Candle) error {
	if symbol == "" || !interval.IsValid() {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	from, to := candles[0].OpenTime.UnixMilli(), candles[0].OpenTime.UnixMilli()
	for _, c := range candles {
		ms := c.OpenTime.UnixMilli()
		from = min(from, ms)
		to = max(to, ms)
	}

	existing, err := s.existingOpenTimes(ctx, symbol, interval, from, to)
	if err != nil {
		return fmt.Errorf("check existing candles: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			symbol, interval, open_time_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	appended := 0
	for _, c := range candles {
		ms := c.OpenTime.UnixMilli()
		if _, exists := existing[ms]; exists {
			continue
		}
		existing[ms] = struct{}{}

		if err := batch.Append(symbol, string(interval), ms, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
		appended++
	}

	if appended == 0 {
		return batch.Abort()
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange returns candles with open time in [start, end), ordered by open time ASC.
func (s *CandleStore) GetRange(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) ([]domain.Candle, error) {
	query := `
		SELECT open_time_ms, open, high, low, close, volume
		FROM candles FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms < ?
		ORDER BY open_time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, string(interval), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query candle range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

func (s *CandleStore) existingOpenTimes(ctx context.Context, symbol string, interval domain.Interval, from, to int64) (map[int64]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT open_time_ms FROM candles
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms <= ?
	`, symbol, string(interval), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[int64]struct{})
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		seen[ms] = struct{}{}
	}
	return seen, rows.Err()
}

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		var openTimeMs int64
		if err := rows.Scan(&openTimeMs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.OpenTime = time.UnixMilli(openTimeMs).UTC()
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	return candles, nil
}
