package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"signal-lab/internal/domain"
	"signal-lab/internal/idhash"
	"signal-lab/internal/learning"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/metrics"
	"signal-lab/internal/observability"
	"signal-lab/internal/storage"
	"signal-lab/internal/strategy"
)

// Request defaults
const (
	DefaultInterval = domain.Interval1h
)

var (
	// DefaultFrom is the start of the default backtest period.
	DefaultFrom = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	// DefaultInitialBalance is the starting balance in quote units.
	DefaultInitialBalance = decimal.NewFromInt(10000)
)

// Request describes one backtest run. Zero fields take defaults.
type Request struct {
	Symbol         string          `json:"symbol"`
	StrategyID     string          `json:"strategy_id,omitempty"` // default: config's active strategy
	Interval       domain.Interval `json:"interval,omitempty"`
	From           time.Time       `json:"from,omitempty"`
	To             time.Time       `json:"to,omitempty"` // exclusive, default: now
	InitialBalance decimal.Decimal `json:"initial_balance,omitempty"`
}

// WithDefaults fills zero fields.
func (r Request) WithDefaults(activeStrategy string, now time.Time) Request {
	if r.StrategyID == "" {
		r.StrategyID = activeStrategy
	}
	if r.Interval == "" {
		r.Interval = DefaultInterval
	}
	if r.From.IsZero() {
		r.From = DefaultFrom
	}
	if r.To.IsZero() {
		r.To = now
	}
	if r.InitialBalance.IsZero() {
		r.InitialBalance = DefaultInitialBalance
	}
	r.From = r.From.UTC()
	r.To = r.To.UTC()
	return r
}

// Validate checks a defaulted request.
func (r Request) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidRequest)
	}
	if !r.Interval.IsValid() {
		return fmt.Errorf("%w: unknown interval %q", ErrInvalidRequest, r.Interval)
	}
	if !r.From.Before(r.To) {
		return fmt.Errorf("%w: from %s not before to %s", ErrInvalidRequest,
			r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
	}
	if !r.InitialBalance.IsPositive() {
		return fmt.Errorf("%w: initial balance %s", ErrInvalidRequest, r.InitialBalance)
	}
	return nil
}

// CandleSource returns a contiguous candle series for a range.
type CandleSource interface {
	Fetch(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time) (*marketdata.FetchResult, error)
}

// RunnerOptions configures Runner.
type RunnerOptions struct {
	Source     CandleSource
	Registry   *strategy.Registry          // default: strategy.Default
	Config     *domain.EngineConfig        // default: domain.DefaultEngineConfig()
	Results    storage.BacktestResultStore // optional; results are appended here
	Tracker    *learning.Tracker           // optional; every signal is recorded in mode backtest
	MaxCandles int                         // learning resolution horizon, default learning.DefaultMaxCandles
	Clock      func() time.Time
	Logger     *log.Logger
}

// Runner fetches candles, simulates them and persists the result.
type Runner struct {
	source     CandleSource
	registry   *strategy.Registry
	cfg        domain.EngineConfig
	results    storage.BacktestResultStore
	tracker    *learning.Tracker
	maxCandles int
	clock      func() time.Time
	logger     *log.Logger
}

// NewRunner creates a new backtest runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: candle source required", ErrInvalidRequest)
	}

	cfg := domain.DefaultEngineConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		source:     opts.Source,
		registry:   opts.Registry,
		cfg:        cfg,
		results:    opts.Results,
		tracker:    opts.Tracker,
		maxCandles: opts.MaxCandles,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	if r.registry == nil {
		r.registry = strategy.Default
	}
	if r.maxCandles <= 0 {
		r.maxCandles = learning.DefaultMaxCandles
	}
	if r.clock == nil {
		r.clock = func() time.Time { return time.Now().UTC() }
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r, nil
}

// Config returns the engine configuration runs use.
func (r *Runner) Config() domain.EngineConfig {
	return r.cfg
}

// Run executes one backtest. Only ErrDataUnavailable, ErrInvalidRequest,
// strategy.ErrUnknownStrategy and context cancellation fail a run; a cancelled
// run persists nothing.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.BacktestResult, error) {
	req = req.WithDefaults(r.cfg.ActiveStrategy, r.clock())
	if err := req.Validate(); err != nil {
		return nil, err
	}

	began := time.Now()
	result, err := r.run(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordBacktestRun(req.StrategyID, status, time.Since(began).Seconds())
	return result, err
}

// Simulate executes one backtest without recording signals or persisting
// the result. Equal requests against equal data give equal results.
func (r *Runner) Simulate(ctx context.Context, req Request) (*domain.BacktestResult, error) {
	req = req.WithDefaults(r.cfg.ActiveStrategy, r.clock())
	if err := req.Validate(); err != nil {
		return nil, err
	}
	result, _, _, err := r.simulate(ctx, req)
	if err != nil {
		return nil, err
	}
	return result, ctx.Err()
}

func (r *Runner) run(ctx context.Context, req Request) (*domain.BacktestResult, error) {
	result, sim, candles, err := r.simulate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.recordSignals(ctx, sim, candles); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runner) simulate(ctx context.Context, req Request) (*domain.BacktestResult, *Simulation, []domain.Candle, error) {
	cfg := r.cfg
	cfg.ActiveStrategy = req.StrategyID

	strat, err := r.registry.New(req.StrategyID, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	fetched, err := r.source.Fetch(ctx, req.Symbol, req.Interval, req.From, req.To)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch %s %s: %w", req.Symbol, req.Interval, err)
	}

	key, err := configKey(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	resultID := idhash.ComputeResultID(
		req.Symbol,
		req.StrategyID,
		req.Interval.String(),
		req.From.UnixMilli(),
		req.To.UnixMilli(),
		req.InitialBalance.String(),
		key,
	)

	engine, err := NewEngine(strat, cfg, req.InitialBalance, EngineOptions{ResultKey: resultID, Logger: r.logger})
	if err != nil {
		return nil, nil, nil, err
	}
	sim, err := engine.Run(ctx, req.Symbol, fetched.Candles)
	if err != nil {
		return nil, nil, nil, err
	}
	sim.Stats.Truncated = fetched.Truncated

	result := &domain.BacktestResult{
		ID:             resultID,
		StrategyID:     req.StrategyID,
		Symbol:         req.Symbol,
		Interval:       req.Interval,
		PeriodStart:    req.From,
		PeriodEnd:      req.To,
		InitialBalance: req.InitialBalance,
		Trades:         sim.Trades,
		Stats:          sim.Stats,
		CreatedAt:      r.clock(),
	}
	metrics.Compute(sim.Trades, req.InitialBalance).Apply(result)

	r.logger.Printf("[backtest] %s %s %s: %d candles, %d signals, %d trades, return %.2f%%",
		result.Symbol, result.StrategyID, result.Interval,
		sim.Stats.Candles, sim.Stats.SignalsGenerated, result.TotalTrades, result.TotalReturnPct)

	return result, sim, fetched.Candles, nil
}

// recordSignals resolves every signal over the candles after it and appends it
// to the learning log. Store failures are logged, not fatal.
func (r *Runner) recordSignals(ctx context.Context, sim *Simulation, candles []domain.Candle) error {
	if r.tracker == nil {
		return nil
	}
	for _, ev := range sim.Signals {
		if err := ctx.Err(); err != nil {
			return err
		}
		resolved := learning.ResolveForward(ev.Signal, candles[ev.Index+1:], r.maxCandles)
		if _, err := r.tracker.Record(ctx, domain.ModeBacktest, resolved, ev.Executed); err != nil {
			r.logger.Printf("[backtest] learning record for signal %s: %v", ev.Signal.ID, err)
		}
	}
	return nil
}

func (r *Runner) persist(ctx context.Context, result *domain.BacktestResult) error {
	if r.results == nil {
		return nil
	}

	began := time.Now()
	err := r.results.Insert(ctx, result)
	if errors.Is(err, storage.ErrDuplicateKey) {
		r.logger.Printf("[backtest] result %s already stored", result.ID)
		err = nil
	}
	observability.RecordDBQuery("results", "insert", time.Since(began).Seconds(), err)
	if err != nil {
		return fmt.Errorf("store result %s: %w", result.ID, err)
	}
	return nil
}

// configKey serializes the parameters that change simulation output.
func configKey(cfg domain.EngineConfig) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode engine config: %w", err)
	}
	return string(b), nil
}
