package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

func testRecord(id string, mode domain.Mode, ts int64) *domain.SignalRecord {
	return &domain.SignalRecord{
		ID:          id,
		Mode:        mode,
		Symbol:      "BTCUSDT",
		Direction:   domain.DirectionBuy,
		Entry:       100,
		Targets:     []float64{102, 104, 106},
		Stop:        97,
		Outcome:     domain.OutcomeTP2,
		ImpactScore: 0.0372,
		Confidence:  0.9,
		MLScore:     ptr(0.6),
		Executed:    true,
		StrategyID:  "ml",
		Timestamp:   time.UnixMilli(ts).UTC(),
	}
}

func TestSignalRecordStore_InsertAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalRecordStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.SignalRecord{
		testRecord("b", domain.ModeBacktest, 2000),
		testRecord("a", domain.ModeBacktest, 1000),
		testRecord("p", domain.ModePaper, 1500),
	}))

	got, err := store.GetByModeSymbol(ctx, domain.ModeBacktest, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, []float64{102, 104, 106}, got[0].Targets)
	require.NotNil(t, got[0].MLScore)
	assert.Equal(t, 0.6, *got[0].MLScore)
	assert.True(t, got[0].Executed)
	assert.Equal(t, domain.OutcomeTP2, got[0].Outcome)

	paper, err := store.GetByMode(ctx, domain.ModePaper)
	require.NoError(t, err)
	assert.Len(t, paper, 1)
}

func TestSignalRecordStore_Duplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSignalRecordStore(conn)
	ctx := context.Background()

	r := testRecord("dup", domain.ModeLive, 1000)
	r.MLScore = nil
	require.NoError(t, store.Insert(ctx, r))
	assert.ErrorIs(t, store.Insert(ctx, r), storage.ErrDuplicateKey)

	got, err := store.GetByMode(ctx, domain.ModeLive)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].MLScore)
}
