package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// BacktestResultStore implements storage.BacktestResultStore using PostgreSQL.
// Decimal columns travel as text to keep full precision.
type BacktestResultStore struct {
	pool *Pool
}

// NewBacktestResultStore creates a new BacktestResultStore.
func NewBacktestResultStore(pool *Pool) *BacktestResultStore {
	return &BacktestResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)

const resultColumns = `
	id, strategy_id, symbol, interval, period_start, period_end,
	initial_balance::text, final_balance::text, total_return_pct, total_trades,
	win_rate, profit_factor, max_drawdown_pct, sharpe_ratio,
	monthly_returns, stats, created_at
`

// Insert stores a result and its trades in one transaction.
// Returns ErrDuplicateKey if the result id exists.
func (s *BacktestResultStore) Insert(ctx context.Context, r *domain.BacktestResult) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	monthly, err := json.Marshal(nonNilMonthly(r.MonthlyReturns))
	if err != nil {
		return fmt.Errorf("marshal monthly returns: %w", err)
	}
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO backtest_results (
			id, strategy_id, symbol, interval, period_start, period_end,
			initial_balance, final_balance, total_return_pct, total_trades,
			win_rate, profit_factor, max_drawdown_pct, sharpe_ratio,
			monthly_returns, stats, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8::numeric, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17
		)
	`,
		r.ID, r.StrategyID, r.Symbol, string(r.Interval), r.PeriodStart.UTC(), r.PeriodEnd.UTC(),
		r.InitialBalance.String(), r.FinalBalance.String(), r.TotalReturnPct, r.TotalTrades,
		r.WinRate, r.ProfitFactor, r.MaxDrawdownPct, r.SharpeRatio,
		monthly, stats, r.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest result: %w", err)
	}

	tradeQuery := `
		INSERT INTO backtest_trades (
			id, result_id, seq, symbol, direction,
			entry_price, exit_price, entry_time, exit_time,
			quantity, leverage, pnl, strategy_id, exit_reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10::numeric, $11, $12::numeric, $13, $14
		)
	`
	for i, t := range r.Trades {
		_, err := tx.Exec(ctx, tradeQuery,
			t.ID, r.ID, i, t.Symbol, string(t.Direction),
			t.EntryPrice, t.ExitPrice, t.EntryTime.UTC(), t.ExitTime.UTC(),
			t.Quantity.String(), t.Leverage, t.PnL.String(), t.StrategyID, string(t.ExitReason),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert backtest trade: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a result with its trades. Returns ErrNotFound if not exists.
func (s *BacktestResultStore) GetByID(ctx context.Context, id string) (*domain.BacktestResult, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM backtest_results WHERE id = $1`, id)
	r, err := scanResult(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest result by id: %w", err)
	}

	trades, err := s.getTrades(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Trades = trades
	return r, nil
}

// ListRecent returns up to limit results ordered by created_at DESC, id ASC.
func (s *BacktestResultStore) ListRecent(ctx context.Context, limit int) ([]*domain.BacktestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM backtest_results ORDER BY created_at DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return s.queryResults(ctx, query, args...)
}

// GetByStrategy returns up to limit results for a strategy.
func (s *BacktestResultStore) GetByStrategy(ctx context.Context, strategyID string, limit int) ([]*domain.BacktestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM backtest_results WHERE strategy_id = $1 ORDER BY created_at DESC, id ASC`
	args := []any{strategyID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryResults(ctx, query, args...)
}

func (s *BacktestResultStore) queryResults(ctx context.Context, query string, args ...any) ([]*domain.BacktestResult, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query backtest results: %w", err)
	}
	defer rows.Close()

	var result []*domain.BacktestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest result: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest results: %w", err)
	}
	return result, nil
}

func (s *BacktestResultStore) getTrades(ctx context.Context, resultID string) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			id, symbol, direction, entry_price, exit_price, entry_time, exit_time,
			quantity::text, leverage, pnl::text, strategy_id, exit_reason
		FROM backtest_trades
		WHERE result_id = $1
		ORDER BY seq ASC
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("query backtest trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t                   domain.Trade
			direction, reason   string
			quantity, pnl       string
			entryTime, exitTime time.Time
		)
		if err := rows.Scan(
			&t.ID, &t.Symbol, &direction, &t.EntryPrice, &t.ExitPrice, &entryTime, &exitTime,
			&quantity, &t.Leverage, &pnl, &t.StrategyID, &reason,
		); err != nil {
			return nil, fmt.Errorf("scan backtest trade: %w", err)
		}
		t.Direction = domain.Direction(direction)
		t.ExitReason = domain.ExitReason(reason)
		t.EntryTime = entryTime.UTC()
		t.ExitTime = exitTime.UTC()
		if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("parse trade quantity: %w", err)
		}
		if t.PnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("parse trade pnl: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest trades: %w", err)
	}
	return trades, nil
}

// scanResult scans a row into BacktestResult. Trades are not loaded.
func scanResult(row pgx.Row) (*domain.BacktestResult, error) {
	var (
		r                  domain.BacktestResult
		interval           string
		initial, final     string
		monthly, stats     []byte
		start, end, create time.Time
	)

	err := row.Scan(
		&r.ID, &r.StrategyID, &r.Symbol, &interval, &start, &end,
		&initial, &final, &r.TotalReturnPct, &r.TotalTrades,
		&r.WinRate, &r.ProfitFactor, &r.MaxDrawdownPct, &r.SharpeRatio,
		&monthly, &stats, &create,
	)
	if err != nil {
		return nil, err
	}

	r.Interval = domain.Interval(interval)
	r.PeriodStart = start.UTC()
	r.PeriodEnd = end.UTC()
	r.CreatedAt = create.UTC()

	if r.InitialBalance, err = decimal.NewFromString(initial); err != nil {
		return nil, fmt.Errorf("parse initial balance: %w", err)
	}
	if r.FinalBalance, err = decimal.NewFromString(final); err != nil {
		return nil, fmt.Errorf("parse final balance: %w", err)
	}
	if err := json.Unmarshal(monthly, &r.MonthlyReturns); err != nil {
		return nil, fmt.Errorf("unmarshal monthly returns: %w", err)
	}
	if err := json.Unmarshal(stats, &r.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal run stats: %w", err)
	}
	return &r, nil
}

func nonNilMonthly(m []domain.MonthlyReturn) []domain.MonthlyReturn {
	if m == nil {
		return []domain.MonthlyReturn{}
	}
	return m
}
