package replay

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-lab/internal/backtest"
	"signal-lab/internal/domain"
	"signal-lab/internal/ingestion"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/storage/memory"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time {
	return t0.Add(time.Duration(i) * time.Hour)
}

func flat(n int, price float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{OpenTime: at(i), Open: price, High: price * 1.005, Low: price * 0.995, Close: price, Volume: 1000}
	}
	return out
}

func TestMergeCandles_Order(t *testing.T) {
	merged := MergeCandles(domain.Interval1h, map[string][]domain.Candle{
		"SOLUSDT": flat(2, 100),
		"BTCUSDT": flat(2, 42000),
		"ETHUSDT": flat(1, 2300),
	})

	require.Len(t, merged, 5)
	var got []string
	for _, c := range merged {
		got = append(got, c.Symbol+"@"+c.Candle.OpenTime.Format("15"))
		assert.Equal(t, domain.Interval1h, c.Interval)
	}
	assert.Equal(t, []string{"BTCUSDT@00", "ETHUSDT@00", "SOLUSDT@00", "BTCUSDT@01", "SOLUSDT@01"}, got)
	assert.NoError(t, ValidateOrdering(merged))
}

func TestValidateOrdering(t *testing.T) {
	c := func(symbol string, i int) marketdata.StreamCandle {
		return marketdata.StreamCandle{Symbol: symbol, Candle: domain.Candle{OpenTime: at(i)}}
	}

	tests := []struct {
		name    string
		candles []marketdata.StreamCandle
		wantErr bool
	}{
		{"empty", nil, false},
		{"ordered", []marketdata.StreamCandle{c("A", 0), c("B", 0), c("A", 1)}, false},
		{"time goes back", []marketdata.StreamCandle{c("A", 1), c("A", 0)}, true},
		{"symbol order", []marketdata.StreamCandle{c("B", 0), c("A", 0)}, true},
		{"duplicate", []marketdata.StreamCandle{c("A", 0), c("A", 0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrdering(tt.candles)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidOrdering), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCandleStore()
	require.NoError(t, store.InsertBulk(ctx, "BTCUSDT", domain.Interval1h, flat(10, 42000)))
	require.NoError(t, store.InsertBulk(ctx, "ETHUSDT", domain.Interval1h, flat(10, 2300)))

	got, err := NewLoader(store).Load(ctx, []string{"ETHUSDT", "BTCUSDT", "XRPUSDT"}, domain.Interval1h, at(2), at(5))
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.Equal(t, at(2), got[0].Candle.OpenTime)
	assert.Equal(t, at(4), got[5].Candle.OpenTime)

	_, err = NewLoader(store).Load(ctx, []string{"BTCUSDT"}, domain.Interval1h, at(5), at(5))
	assert.Error(t, err)
}

func TestStream_ThroughIngestion(t *testing.T) {
	ctx := context.Background()
	candles := flat(6, 100)
	candles[4] = domain.Candle{OpenTime: at(4), Open: 100, High: 103, Low: 100, Close: 102.5, Volume: 1000}

	strat := backtest.NewStubStrategy("stub", map[time.Time]backtest.ScriptedSignal{
		at(3): {Direction: domain.DirectionBuy, TargetPcts: []float64{2}, StopPct: 5},
	})
	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Streams:    []ingestion.Stream{NewStream(ctx, MergeCandles(domain.Interval1h, map[string][]domain.Candle{"BTCUSDT": candles}))},
		Strategy:   strat,
		WindowSize: 3,
		Mode:       domain.ModePaper,
		Logger:     log.New(io.Discard, "", 0),
	})

	require.NoError(t, runner.Run(ctx))
	stats := runner.Stats()
	assert.Equal(t, 6, stats.Candles)
	assert.Equal(t, 1, stats.Signals)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 0, runner.Pending())
}

func TestStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(ctx, MergeCandles(domain.Interval1h, map[string][]domain.Candle{"BTCUSDT": flat(3, 100)}))

	first := <-s.Candles()
	assert.Equal(t, at(0), first.Candle.OpenTime)
	cancel()

	// The channel closes once the emitter sees cancellation
	for range s.Candles() {
	}
}
