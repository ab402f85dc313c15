package backtest

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signal-lab/internal/domain"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/storage/memory"
	"signal-lab/internal/strategy"
)

var fixedNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

type runnerFixture struct {
	runner  *Runner
	results *memory.BacktestResultStore
	records *memory.SignalRecordStore
}

func newRunnerFixture(t *testing.T, candles []domain.Candle, s strategy.Strategy, cfg *domain.EngineConfig) *runnerFixture {
	t.Helper()
	ctx := context.Background()

	candleStore := memory.NewCandleStore()
	if err := candleStore.InsertBulk(ctx, "BTCUSDT", domain.Interval1h, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	registry := strategy.Default
	if s != nil {
		registry = strategy.NewRegistry()
		if err := registry.Register(s.ID(), func(domain.EngineConfig) (strategy.Strategy, error) { return s, nil }); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	f := &runnerFixture{
		results: memory.NewBacktestResultStore(),
		records: memory.NewSignalRecordStore(),
	}
	runner, err := NewRunner(RunnerOptions{
		Source: marketdata.NewFetcher(marketdata.NewStoreProvider(candleStore), marketdata.FetcherOptions{
			BatchDelay: -1,
			Logger:     logger,
		}),
		Registry: registry,
		Config:   cfg,
		Results:  f.results,
		Tracker:  learning.NewTracker(f.records, learning.TrackerOptions{Logger: logger}),
		Clock:    func() time.Time { return fixedNow },
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	f.runner = runner
	return f
}

func takeProfitSeries() []domain.Candle {
	candles := flatSeries(6)
	candles[3] = bar(3, 102.5, 99, 102)
	return candles
}

func stubRequest(n int) Request {
	return Request{
		Symbol:     "BTCUSDT",
		StrategyID: "stub",
		Interval:   domain.Interval1h,
		From:       at(0),
		To:         at(n),
	}
}

func TestRunner_PersistsResult(t *testing.T) {
	cfg := testConfig()
	stub := NewStubStrategy("stub", map[time.Time]ScriptedSignal{at(2): buyAt(2, 3)})
	f := newRunnerFixture(t, takeProfitSeries(), stub, &cfg)
	ctx := context.Background()

	result, err := f.runner.Run(ctx, stubRequest(6))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ID == "" {
		t.Error("Expected a result id")
	}
	if result.TotalTrades != 1 || len(result.Trades) != 1 {
		t.Errorf("Expected 1 trade, got %d", result.TotalTrades)
	}
	if !result.InitialBalance.Equal(DefaultInitialBalance) {
		t.Errorf("Expected default balance, got %s", result.InitialBalance)
	}
	if !result.FinalBalance.Equal(decimal.NewFromInt(10020)) {
		t.Errorf("Expected final balance 10020, got %s", result.FinalBalance)
	}
	if result.WinRate != 100 {
		t.Errorf("Expected win rate 100, got %v", result.WinRate)
	}
	if result.Stats.Candles != 6 || result.Stats.SignalsGenerated != 1 {
		t.Errorf("Unexpected stats: %+v", result.Stats)
	}
	if !result.CreatedAt.Equal(fixedNow) {
		t.Errorf("Expected CreatedAt from clock, got %s", result.CreatedAt)
	}

	stored, err := f.results.GetByID(ctx, result.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(stored.Trades) != 1 || stored.Trades[0].ID != result.Trades[0].ID {
		t.Error("Stored trades do not match")
	}
}

func TestRunner_IdempotentRerun(t *testing.T) {
	cfg := testConfig()
	stub := NewStubStrategy("stub", map[time.Time]ScriptedSignal{at(2): buyAt(2, 3)})
	f := newRunnerFixture(t, takeProfitSeries(), stub, &cfg)
	ctx := context.Background()

	first, err := f.runner.Run(ctx, stubRequest(6))
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := f.runner.Run(ctx, stubRequest(6))
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("result ids differ: %s vs %s", first.ID, second.ID)
	}
	if first.Trades[0].ID != second.Trades[0].ID {
		t.Error("trade ids differ between reruns")
	}
	if !first.FinalBalance.Equal(second.FinalBalance) {
		t.Error("final balances differ between reruns")
	}

	all, err := f.results.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 stored result, got %d", len(all))
	}

	records, _ := f.records.GetByMode(ctx, domain.ModeBacktest)
	if len(records) != 1 {
		t.Errorf("Expected 1 learning record after rerun, got %d", len(records))
	}
}

func TestRunner_RecordsLearning(t *testing.T) {
	cfg := testConfig()
	stub := NewStubStrategy("stub", map[time.Time]ScriptedSignal{
		at(2): buyAt(2, 3),
		at(3): buyAt(2, 3),
	})
	f := newRunnerFixture(t, takeProfitSeries(), stub, &cfg)
	ctx := context.Background()

	if _, err := f.runner.Run(ctx, stubRequest(6)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	records, err := f.records.GetByModeSymbol(ctx, domain.ModeBacktest, "BTCUSDT")
	if err != nil {
		t.Fatalf("GetByModeSymbol failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Outcome != domain.OutcomeTP1 || !records[0].Executed {
		t.Errorf("Expected executed TP1, got %s executed=%v", records[0].Outcome, records[0].Executed)
	}
	// The second buy was generated at candle 3, after the position closed there
	if !records[1].Executed {
		t.Error("Expected second signal to open a position")
	}
}

func TestRunner_DataUnavailable(t *testing.T) {
	cfg := testConfig()
	f := newRunnerFixture(t, takeProfitSeries(), NewStubStrategy("stub", nil), &cfg)
	ctx := context.Background()

	req := stubRequest(6)
	req.Symbol = "ETHUSDT"
	_, err := f.runner.Run(ctx, req)
	if !errors.Is(err, marketdata.ErrDataUnavailable) {
		t.Fatalf("Expected ErrDataUnavailable, got %v", err)
	}

	all, _ := f.results.ListRecent(ctx, 0)
	if len(all) != 0 {
		t.Errorf("Expected nothing stored, got %d", len(all))
	}
}

func TestRunner_Cancelled(t *testing.T) {
	cfg := testConfig()
	f := newRunnerFixture(t, takeProfitSeries(), NewStubStrategy("stub", nil), &cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.Run(ctx, stubRequest(6))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	all, _ := f.results.ListRecent(context.Background(), 0)
	if len(all) != 0 {
		t.Errorf("Expected nothing stored, got %d", len(all))
	}
}

func TestRunner_RejectsBadRequests(t *testing.T) {
	cfg := testConfig()
	f := newRunnerFixture(t, takeProfitSeries(), NewStubStrategy("stub", nil), &cfg)
	ctx := context.Background()

	req := stubRequest(6)
	req.StrategyID = "nope"
	if _, err := f.runner.Run(ctx, req); !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Errorf("Expected ErrUnknownStrategy, got %v", err)
	}

	req = stubRequest(6)
	req.Symbol = ""
	if _, err := f.runner.Run(ctx, req); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for empty symbol, got %v", err)
	}

	req = stubRequest(6)
	req.From, req.To = req.To, req.From
	if _, err := f.runner.Run(ctx, req); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for inverted range, got %v", err)
	}
}

func TestRequest_WithDefaults(t *testing.T) {
	req := Request{Symbol: "BTCUSDT"}.WithDefaults("alpha", fixedNow)

	if req.StrategyID != "alpha" || req.Interval != domain.Interval1h {
		t.Errorf("Unexpected defaults: %+v", req)
	}
	if !req.From.Equal(DefaultFrom) || !req.To.Equal(fixedNow) {
		t.Errorf("Unexpected period: %s..%s", req.From, req.To)
	}
	if !req.InitialBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Expected balance 10000, got %s", req.InitialBalance)
	}
}

func TestRunner_FlatSeriesWithShippedStrategies(t *testing.T) {
	candles := make([]domain.Candle, 30)
	for i := range candles {
		candles[i] = bar(i, 100, 100, 100)
	}
	f := newRunnerFixture(t, candles, nil, nil)

	for _, id := range strategy.Default.IDs() {
		req := stubRequest(30)
		req.StrategyID = id
		result, err := f.runner.Run(context.Background(), req)
		if err != nil {
			t.Fatalf("%s: Run failed: %v", id, err)
		}
		if result.Stats.SignalsGenerated != 0 || result.TotalTrades != 0 {
			t.Errorf("%s: expected no signals on a flat series, got %d", id, result.Stats.SignalsGenerated)
		}
		if !result.FinalBalance.Equal(result.InitialBalance) {
			t.Errorf("%s: balance moved without trades", id)
		}
	}
}
