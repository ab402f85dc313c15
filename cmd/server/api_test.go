package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-lab/internal/backtest"
	"signal-lab/internal/decision"
	"signal-lab/internal/domain"
	"signal-lab/internal/ingestion"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/metrics"
	"signal-lab/internal/notify"
	"signal-lab/internal/storage/memory"
	"signal-lab/internal/strategy"
	"signal-lab/internal/verification"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*domain.Signal
}

func (n *recordingNotifier) Notify(_ context.Context, sig *domain.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sig)
	return nil
}

func (n *recordingNotifier) Name() string { return "recording" }

type apiFixture struct {
	server   *httptest.Server
	tracker  *learning.Tracker
	notifier *recordingNotifier
}

func flatCandles(n int, price float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     price, High: price, Low: price, Close: price,
			Volume: 50_000,
		}
	}
	return out
}

// uptrendCandles closes each hour 1% above the previous one on heavy volume.
func uptrendCandles(n int) []candleJSON {
	out := make([]candleJSON, n)
	price := 100.0
	for i := range out {
		next := price * 1.01
		out[i] = candleJSON{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     next,
			Low:      price,
			Close:    next,
			Volume:   2_000_000 / next,
		}
		price = next
	}
	return out
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	now := t0.Add(30 * time.Hour)
	clock := func() time.Time { return now }

	candles := memory.NewCandleStore()
	require.NoError(t, candles.InsertBulk(ctx, "BTCUSDT", domain.Interval1h, flatCandles(30, 100)))
	results := memory.NewBacktestResultStore()
	tracker := learning.NewTracker(memory.NewSignalRecordStore(), learning.TrackerOptions{Logger: logger})

	fetcher := marketdata.NewFetcher(marketdata.NewStoreProvider(candles), marketdata.FetcherOptions{
		BatchDelay: -1,
		Logger:     logger,
	})
	cfg := domain.DefaultEngineConfig()
	runner, err := backtest.NewRunner(backtest.RunnerOptions{
		Source:  fetcher,
		Config:  &cfg,
		Results: results,
		Tracker: tracker,
		Clock:   clock,
		Logger:  logger,
	})
	require.NoError(t, err)

	rec := &recordingNotifier{}
	srv := NewServer(ServerOptions{
		Runner:     runner,
		Results:    results,
		Tracker:    tracker,
		Aggregator: metrics.NewAggregator(results),
		Verifier:   verification.NewVerifier(results, runner),
		Source:     fetcher,
		Config:     cfg,
		Notifier:   notify.NewGuard(rec, logger),
		Backend:    "memory",
		Clock:      clock,
		Logger:     logger,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &apiFixture{server: ts, tracker: tracker, notifier: rec}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func flatBacktest() map[string]any {
	return map[string]any{
		"symbol":      "BTCUSDT",
		"strategy_id": "alpha",
		"interval":    "1h",
		"from":        t0,
		"to":          t0.Add(30 * time.Hour),
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestBacktests_RunListGet(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/backtests", flatBacktest())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[resultJSON](t, resp)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "alpha", created.StrategyID)
	assert.Equal(t, 0, created.TotalTrades)
	assert.Equal(t, 30, created.Stats.Candles)
	assert.True(t, created.FinalBalance.Equal(created.InitialBalance))

	// Idempotent rerun returns the same result
	resp = f.do(t, http.MethodPost, "/api/backtests", flatBacktest())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decode[resultJSON](t, resp).ID)

	resp = f.do(t, http.MethodGet, "/api/backtests", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]resultJSON](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	resp = f.do(t, http.MethodGet, "/api/backtests?strategy=ml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]resultJSON](t, resp))

	resp = f.do(t, http.MethodGet, "/api/backtests/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decode[resultJSON](t, resp).ID)

	resp = f.do(t, http.MethodGet, "/api/backtests/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBacktests_Errors(t *testing.T) {
	f := newAPIFixture(t)

	unknown := flatBacktest()
	unknown["strategy_id"] = "nope"
	noSymbol := flatBacktest()
	delete(noSymbol, "symbol")
	noData := flatBacktest()
	noData["symbol"] = "ETHUSDT"
	extra := flatBacktest()
	extra["window"] = 3

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown strategy", unknown, http.StatusBadRequest},
		{"missing symbol", noSymbol, http.StatusBadRequest},
		{"unknown field", extra, http.StatusBadRequest},
		{"no market data", noData, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/backtests", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, decode[errorResponse](t, resp).Error)
		})
	}

	resp := f.do(t, http.MethodGet, "/api/backtests?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignals_FromRequestCandles(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/signals", map[string]any{
		"symbol":      "BTCUSDT",
		"strategy_id": "alpha",
		"candles":     uptrendCandles(20),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[signalResponse](t, resp)

	require.NotNil(t, out.Signal)
	assert.Equal(t, domain.DirectionBuy, out.Signal.Direction)
	assert.GreaterOrEqual(t, out.Signal.Confidence, 0.8)
	assert.GreaterOrEqual(t, out.Signal.Leverage, 5)
	assert.True(t, out.Notified)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, out.Signal.ID, f.notifier.sent[0].ID)
}

func TestSignals_RejectsUnorderedCandles(t *testing.T) {
	f := newAPIFixture(t)

	reversed := uptrendCandles(20)
	slices.Reverse(reversed)
	withDuplicate := uptrendCandles(20)
	withDuplicate = append(withDuplicate, withDuplicate[len(withDuplicate)-1])

	tests := []struct {
		name    string
		candles []candleJSON
	}{
		{"reversed", reversed},
		{"duplicate open time", withDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/signals", map[string]any{
				"symbol":      "BTCUSDT",
				"strategy_id": "alpha",
				"candles":     tt.candles,
			})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, f.notifier.sent)
}

func TestSignals_FetchedWindowFlat(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/signals", map[string]any{"symbol": "BTCUSDT"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[signalResponse](t, resp)
	assert.Nil(t, out.Signal)
	assert.False(t, out.Notified)
	assert.Empty(t, f.notifier.sent)
}

func TestSignals_Errors(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing symbol", map[string]any{"strategy_id": "alpha"}, http.StatusBadRequest},
		{"bad interval", map[string]any{"symbol": "BTCUSDT", "interval": "7m"}, http.StatusBadRequest},
		{"unknown strategy", map[string]any{"symbol": "BTCUSDT", "strategy_id": "nope"}, http.StatusBadRequest},
		{"single candle", map[string]any{"symbol": "BTCUSDT", "candles": uptrendCandles(1)}, http.StatusUnprocessableEntity},
		{"no market data", map[string]any{"symbol": "ETHUSDT"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/signals", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Empty(t, f.notifier.sent)
}

func TestLearning(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	window := make([]domain.Candle, 0, 20)
	for _, c := range uptrendCandles(20) {
		window = append(window, c.toCandle())
	}
	sig, _, err := strategy.GenerateSignal(ctx, strategy.NewAlphaStrategy(domain.DefaultEngineConfig()), "BTCUSDT", window)
	require.NoError(t, err)
	require.NotNil(t, sig)

	_, err = f.tracker.Record(ctx, domain.ModeSignal, learning.Resolved{
		Signal:     sig,
		Outcome:    domain.OutcomeTP1,
		Resolution: learning.Resolution{High: sig.Targets[0], Low: sig.EntryPrice, Current: sig.Targets[0]},
		Candles:    3,
	}, false)
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/api/learning/signal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[learning.Summary](t, resp)
	assert.Equal(t, 1, summary.Overall.Total)
	assert.Equal(t, 100.0, summary.Overall.WinRate)
	require.Len(t, summary.Symbols, 1)
	assert.Equal(t, "BTCUSDT", summary.Symbols[0].Symbol)

	resp = f.do(t, http.MethodGet, "/api/learning/signal/BTCUSDT", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rollup := decode[learning.Rollup](t, resp)
	assert.Equal(t, 1, rollup.Total)
	assert.Equal(t, 1, rollup.Outcomes[domain.OutcomeTP1])

	resp = f.do(t, http.MethodGet, "/api/learning/paper/BTCUSDT", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[learning.Rollup](t, resp).Total)

	resp = f.do(t, http.MethodGet, "/api/learning/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLeaderboardAndStatus(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/leaderboard", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/backtests", flatBacktest())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bad := flatBacktest()
	bad["strategy_id"] = "nope"
	f.do(t, http.MethodPost, "/api/backtests", bad)

	resp = f.do(t, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := decode[[]metrics.StrategyAggregate](t, resp)
	require.Len(t, board, 1)
	assert.Equal(t, "alpha", board[0].StrategyID)
	assert.Equal(t, 1, board[0].Runs)

	resp = f.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[StatusResponse](t, resp)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "memory", status.Storage)
	assert.Equal(t, domain.DefaultStrategy, status.ActiveStrategy)
	assert.Equal(t, 2, status.BacktestsRun)
	assert.Equal(t, 1, status.BacktestsFailed)
	assert.Contains(t, status.Strategies, "alpha")
}

func TestVerifyAndDecisions(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/decisions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/backtests/missing/verify", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/backtests", flatBacktest())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[resultJSON](t, resp)

	resp = f.do(t, http.MethodGet, "/api/backtests/"+created.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	verified := decode[verification.Result](t, resp)
	assert.True(t, verified.Match)
	assert.Equal(t, created.ID, verified.ResultID)
	assert.Empty(t, verified.Divergences)

	resp = f.do(t, http.MethodGet, "/api/decisions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decisions := decode[[]decision.Result](t, resp)
	require.Len(t, decisions, 1)
	assert.Equal(t, "alpha", decisions[0].StrategyID)
	assert.Equal(t, decision.DecisionInsufficientData, decisions[0].Decision)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
	assert.Equal(t, http.StatusNotFound, statusFor(metrics.ErrNoResults))
	assert.Equal(t, http.StatusNotFound, statusFor(verification.ErrResultNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(ingestion.ErrInvalidOrdering))
}
