package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

func testResult(id, strategyID string, createdAt time.Time) *domain.BacktestResult {
	return &domain.BacktestResult{
		ID:             id,
		StrategyID:     strategyID,
		Symbol:         "BTCUSDT",
		Interval:       domain.Interval1h,
		InitialBalance: decimal.NewFromInt(10000),
		FinalBalance:   decimal.NewFromInt(10500),
		TotalReturnPct: 5,
		Trades: []domain.Trade{
			{ID: id + "-t1", Symbol: "BTCUSDT", Direction: domain.DirectionBuy, PnL: decimal.NewFromInt(500)},
		},
		CreatedAt: createdAt,
	}
}

func TestBacktestResultStore_InsertAndGet(t *testing.T) {
	store := NewBacktestResultStore()
	ctx := context.Background()

	r := testResult("r1", "alpha", time.Unix(1000, 0))
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.FinalBalance.Equal(decimal.NewFromInt(10500)) {
		t.Errorf("FinalBalance mismatch: got %s", got.FinalBalance)
	}
	if len(got.Trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(got.Trades))
	}

	// Mutating the returned copy must not affect the store
	got.Trades[0].ID = "changed"
	again, _ := store.GetByID(ctx, "r1")
	if again.Trades[0].ID != "r1-t1" {
		t.Errorf("Store was mutated through returned copy")
	}
}

func TestBacktestResultStore_DuplicateKey(t *testing.T) {
	store := NewBacktestResultStore()
	ctx := context.Background()

	r := testResult("r1", "alpha", time.Unix(1000, 0))
	if err := store.Insert(ctx, r); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestBacktestResultStore_NotFound(t *testing.T) {
	store := NewBacktestResultStore()

	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBacktestResultStore_InvalidInput(t *testing.T) {
	store := NewBacktestResultStore()

	if err := store.Insert(context.Background(), &domain.BacktestResult{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestBacktestResultStore_ListRecentOrdering(t *testing.T) {
	store := NewBacktestResultStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testResult("b", "alpha", time.Unix(2000, 0)))
	_ = store.Insert(ctx, testResult("a", "bull", time.Unix(2000, 0)))
	_ = store.Insert(ctx, testResult("c", "alpha", time.Unix(3000, 0)))
	_ = store.Insert(ctx, testResult("d", "alpha", time.Unix(1000, 0)))

	got, err := store.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}

	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d results, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Position %d: got %s, want %s", i, got[i].ID, id)
		}
		if got[i].Trades != nil {
			t.Errorf("ListRecent should not load trades")
		}
	}
}

func TestBacktestResultStore_GetByStrategy(t *testing.T) {
	store := NewBacktestResultStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testResult("r1", "alpha", time.Unix(1000, 0)))
	_ = store.Insert(ctx, testResult("r2", "bull", time.Unix(2000, 0)))
	_ = store.Insert(ctx, testResult("r3", "alpha", time.Unix(3000, 0)))

	got, err := store.GetByStrategy(ctx, "alpha", 0)
	if err != nil {
		t.Fatalf("GetByStrategy failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got))
	}
	if got[0].ID != "r3" || got[1].ID != "r1" {
		t.Errorf("Unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}
