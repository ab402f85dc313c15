package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"signal-lab/internal/domain"
	"signal-lab/internal/idhash"
	"signal-lab/internal/observability"
	"signal-lab/internal/strategy"
)

// ErrInvalidRequest is returned for malformed run inputs.
var ErrInvalidRequest = errors.New("invalid backtest request")

// Discard reasons reported to metrics.
const (
	reasonInsufficientData  = "insufficient_data"
	reasonInvalidMarketData = "invalid_market_data"
	reasonInvalidSignal     = "invalid_signal"
	reasonPositionOpen      = "position_open"
)

// EngineOptions configures Engine.
type EngineOptions struct {
	ResultKey string // scopes trade ids to one run
	Logger    *log.Logger
}

// SignalEvent is a signal produced during a run and what the ledger did with it.
type SignalEvent struct {
	Signal   *domain.Signal
	Index    int  // candle index the signal was generated on
	Executed bool // opened a position
}

// Simulation is the raw output of one engine run.
type Simulation struct {
	Trades       []domain.Trade
	FinalBalance decimal.Decimal
	Signals      []SignalEvent
	Stats        domain.RunStats
}

// Engine replays a candle series through a strategy against a single-position ledger.
type Engine struct {
	strategy  strategy.Strategy
	cfg       domain.EngineConfig
	initial   decimal.Decimal
	resultKey string
	logger    *log.Logger
}

// NewEngine creates a new backtest engine.
func NewEngine(s strategy.Strategy, cfg domain.EngineConfig, initialBalance decimal.Decimal, opts EngineOptions) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil strategy", ErrInvalidRequest)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !initialBalance.IsPositive() {
		return nil, fmt.Errorf("%w: initial balance %s", ErrInvalidRequest, initialBalance)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		strategy:  s,
		cfg:       cfg,
		initial:   initialBalance,
		resultKey: opts.ResultKey,
		logger:    logger,
	}, nil
}

// ledger is the mutable state of one Run.
type ledger struct {
	symbol   string
	balance  decimal.Decimal
	position *domain.Position
	sim      *Simulation
}

// Run simulates candles in order. Candles must be strictly increasing by open time.
// Per-step data and signal errors are counted in Stats; any other strategy error
// or context cancellation aborts the run.
func (e *Engine) Run(ctx context.Context, symbol string, candles []domain.Candle) (*Simulation, error) {
	l := &ledger{
		symbol:  symbol,
		balance: e.initial,
		sim: &Simulation{
			Trades:  []domain.Trade{},
			Signals: []SignalEvent{},
			Stats:   domain.RunStats{Candles: len(candles)},
		},
	}
	strategyID := e.strategy.ID()

	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.sim.Stats.Steps++

		if l.position != nil && l.position.OpenedAt.Before(c.OpenTime) {
			e.checkExit(l, c)
		}

		window := candles[max(0, i-e.cfg.WindowSize+1) : i+1]
		sig, _, err := strategy.GenerateSignal(ctx, e.strategy, symbol, window)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case errors.Is(err, strategy.ErrInsufficientData):
			l.sim.Stats.InsufficientDataSteps++
			observability.RecordDiscard(strategyID, reasonInsufficientData)
			continue
		case errors.Is(err, strategy.ErrInvalidMarketData):
			l.sim.Stats.InvalidMarketDataSteps++
			observability.RecordDiscard(strategyID, reasonInvalidMarketData)
			e.logger.Printf("[backtest] %s step %d: skipped: %v", symbol, i, err)
			continue
		case errors.Is(err, strategy.ErrInvalidSignal):
			l.sim.Stats.DiscardedSignals++
			observability.RecordDiscard(strategyID, reasonInvalidSignal)
			continue
		default:
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if sig == nil {
			continue
		}

		l.sim.Stats.SignalsGenerated++
		observability.RecordSignal(strategyID, sig.Direction.String())
		event := SignalEvent{Signal: sig, Index: i}

		switch {
		case l.position == nil:
			event.Executed = e.open(l, sig)
		case l.position.Direction != sig.Direction:
			e.close(l, sig.EntryPrice, sig.CreatedAt, domain.ExitReasonOpposingSignal)
		default:
			l.sim.Stats.SignalsIgnored++
			observability.RecordDiscard(strategyID, reasonPositionOpen)
		}
		l.sim.Signals = append(l.sim.Signals, event)
	}

	if l.position != nil && len(candles) > 0 {
		last := candles[len(candles)-1]
		e.close(l, last.Close, last.OpenTime, domain.ExitReasonEndOfData)
	}

	l.sim.FinalBalance = l.balance
	return l.sim, nil
}

// checkExit closes the position when c crosses its stop or exit target.
// The stop is checked first. A candle that opens beyond the stop fills at
// its open; targets fill at the target price.
func (e *Engine) checkExit(l *ledger, c domain.Candle) {
	if err := c.Validate(); err != nil {
		return
	}
	p := l.position
	target := p.Targets[min(e.cfg.ExitTarget, len(p.Targets)-1)]

	switch p.Direction {
	case domain.DirectionBuy:
		if c.Low <= p.StopLoss {
			e.close(l, math.Min(c.Open, p.StopLoss), c.OpenTime, domain.ExitReasonStopLoss)
		} else if c.High >= target {
			e.close(l, target, c.OpenTime, domain.ExitReasonTakeProfit)
		}
	case domain.DirectionSell:
		if c.High >= p.StopLoss {
			e.close(l, math.Max(c.Open, p.StopLoss), c.OpenTime, domain.ExitReasonStopLoss)
		} else if c.Low <= target {
			e.close(l, target, c.OpenTime, domain.ExitReasonTakeProfit)
		}
	}
}

// open sizes and opens a position from sig. Returns false when nothing could be opened.
func (e *Engine) open(l *ledger, sig *domain.Signal) bool {
	if !l.balance.IsPositive() {
		l.sim.Stats.SignalsIgnored++
		return false
	}

	fraction := e.cfg.Risk.PositionFraction
	if fraction <= 0 {
		fraction = sig.RiskFraction
	}
	fraction = min(fraction, e.cfg.Risk.MaxPositionFraction)

	qty := l.balance.
		Mul(decimal.NewFromFloat(fraction)).
		Div(decimal.NewFromFloat(sig.EntryPrice)).
		Round(domain.PnLPrecision)
	if !qty.IsPositive() {
		l.sim.Stats.SignalsIgnored++
		return false
	}

	l.position = &domain.Position{
		Symbol:     l.symbol,
		Direction:  sig.Direction,
		EntryPrice: sig.EntryPrice,
		Quantity:   qty,
		Leverage:   max(1, min(sig.Leverage, e.cfg.Leverage.Max)),
		OpenedAt:   sig.CreatedAt,
		StrategyID: e.strategy.ID(),
		SignalID:   sig.ID,
		Targets:    append([]float64(nil), sig.Targets...),
		StopLoss:   sig.StopLoss,
	}
	return true
}

// close realizes the open position at price and appends the trade.
func (e *Engine) close(l *ledger, price float64, at time.Time, reason domain.ExitReason) {
	p := l.position
	pnl := domain.RealizedPnL(p.Direction, p.EntryPrice, price, p.Quantity, p.Leverage)

	trade := domain.Trade{
		ID: idhash.ComputeTradeID(
			e.resultKey,
			p.Symbol,
			p.StrategyID,
			p.OpenedAt.UnixMilli(),
			at.UnixMilli(),
		),
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		EntryTime:  p.OpenedAt,
		ExitTime:   at,
		Quantity:   p.Quantity,
		Leverage:   p.Leverage,
		PnL:        pnl,
		StrategyID: p.StrategyID,
		ExitReason: reason,
	}

	l.balance = l.balance.Add(pnl)
	l.sim.Trades = append(l.sim.Trades, trade)
	l.position = nil
	observability.RecordTradeClosed(string(reason))
}
