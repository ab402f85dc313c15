package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

func sampleResult(id, strategyID string, createdAt time.Time) *domain.BacktestResult {
	entry := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.BacktestResult{
		ID:             id,
		StrategyID:     strategyID,
		Symbol:         "BTCUSDT",
		Interval:       domain.Interval1h,
		PeriodStart:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		InitialBalance: decimal.RequireFromString("10000"),
		FinalBalance:   decimal.RequireFromString("10123.45678901"),
		TotalReturnPct: 1.2345678901,
		Trades: []domain.Trade{
			{
				ID: id + "-1", Symbol: "BTCUSDT", Direction: domain.DirectionBuy,
				EntryPrice: 100, ExitPrice: 102,
				EntryTime: entry, ExitTime: entry.Add(time.Hour),
				Quantity: decimal.RequireFromString("2.5"), Leverage: 3,
				PnL: decimal.RequireFromString("15"), StrategyID: strategyID,
				ExitReason: domain.ExitReasonTakeProfit,
			},
			{
				ID: id + "-2", Symbol: "BTCUSDT", Direction: domain.DirectionSell,
				EntryPrice: 102, ExitPrice: 103,
				EntryTime: entry.Add(2 * time.Hour), ExitTime: entry.Add(3 * time.Hour),
				Quantity: decimal.RequireFromString("0.12345678"), Leverage: 1,
				PnL: decimal.RequireFromString("-0.12345678"), StrategyID: strategyID,
				ExitReason: domain.ExitReasonStopLoss,
			},
		},
		TotalTrades:    2,
		WinRate:        50,
		ProfitFactor:   121.5,
		MaxDrawdownPct: 0.01,
		SharpeRatio:    0.9,
		MonthlyReturns: []domain.MonthlyReturn{{Month: "2024-03", Trades: 2, ReturnPct: 0.1488}},
		Stats:          domain.RunStats{Candles: 3625, Steps: 3625, SignalsGenerated: 4, SignalsIgnored: 2},
		CreatedAt:      createdAt,
	}
}

func TestBacktestResultStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestResultStore(pool)
	ctx := context.Background()

	want := sampleResult("res-1", "alpha", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Insert(ctx, want))

	got, err := store.GetByID(ctx, "res-1")
	require.NoError(t, err)

	assert.True(t, want.FinalBalance.Equal(got.FinalBalance), "final balance %s", got.FinalBalance)
	assert.Equal(t, want.Interval, got.Interval)
	assert.Equal(t, want.Stats, got.Stats)
	assert.Equal(t, want.MonthlyReturns, got.MonthlyReturns)
	assert.True(t, want.PeriodStart.Equal(got.PeriodStart))

	require.Len(t, got.Trades, 2)
	assert.Equal(t, "res-1-1", got.Trades[0].ID)
	assert.True(t, got.Trades[1].Quantity.Equal(decimal.RequireFromString("0.12345678")))
	assert.True(t, got.Trades[1].PnL.Equal(decimal.RequireFromString("-0.12345678")))
	assert.Equal(t, domain.ExitReasonStopLoss, got.Trades[1].ExitReason)
}

func TestBacktestResultStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestResultStore(pool)
	ctx := context.Background()

	r := sampleResult("res-dup", "alpha", time.Now().UTC())
	require.NoError(t, store.Insert(ctx, r))

	err := store.Insert(ctx, r)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestBacktestResultStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestResultStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBacktestResultStore_ListRecentAndByStrategy(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBacktestResultStore(pool)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, sampleResult("r1", "alpha", base)))
	require.NoError(t, store.Insert(ctx, sampleResult("r2", "bull", base.Add(time.Hour))))
	require.NoError(t, store.Insert(ctx, sampleResult("r3", "alpha", base.Add(2*time.Hour))))

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "r3", recent[0].ID)
	assert.Equal(t, "r2", recent[1].ID)
	assert.Nil(t, recent[0].Trades)

	alpha, err := store.GetByStrategy(ctx, "alpha", 0)
	require.NoError(t, err)
	require.Len(t, alpha, 2)
	assert.Equal(t, "r3", alpha[0].ID)
	assert.Equal(t, "r1", alpha[1].ID)
}
