// Package orchestrator runs batches of isolated backtests.
// It coordinates: backtest runs → per-strategy aggregation
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"signal-lab/internal/backtest"
	"signal-lab/internal/domain"
	"signal-lab/internal/metrics"
)

// DefaultConcurrency bounds simultaneous runs.
const DefaultConcurrency = 4

// BacktestRunner executes a single backtest.
type BacktestRunner interface {
	Run(ctx context.Context, req backtest.Request) (*domain.BacktestResult, error)
}

// Orchestrator runs many backtests concurrently.
// Flow: backtests (bounded parallelism) → strategy aggregates
type Orchestrator struct {
	runner      BacktestRunner
	aggregator  *metrics.Aggregator
	concurrency int
	verbose     bool
}

// Options for creating Orchestrator.
type Options struct {
	Runner      BacktestRunner      // required
	Aggregator  *metrics.Aggregator // optional; skips phase 2 when nil
	Concurrency int                 // default DefaultConcurrency
	Verbose     bool
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		runner:      opts.Runner,
		aggregator:  opts.Aggregator,
		concurrency: opts.Concurrency,
		verbose:     opts.Verbose,
	}
	if o.concurrency <= 0 {
		o.concurrency = DefaultConcurrency
	}
	return o
}

// RunOutcome is the result of one request. Exactly one of Result and Err is set.
type RunOutcome struct {
	Request backtest.Request
	Result  *domain.BacktestResult
	Err     error
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Runs          []RunOutcome // in request order
	Succeeded     int
	Failed        int
	TradesCreated int
	Aggregates    []*metrics.StrategyAggregate // strategy id ASC
	Errors        []string
}

// Run executes every request. A failed run is recorded in its outcome and
// does not stop the others. Only cancellation of ctx fails the batch.
func (o *Orchestrator) Run(ctx context.Context, requests []backtest.Request) (*RunResult, error) {
	result := &RunResult{Runs: make([]RunOutcome, len(requests))}

	// Phase 1: Backtests
	o.log("Phase 1: Running %d backtests (concurrency %d)...", len(requests), o.concurrency)
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, req := range requests {
		g.Go(func() error {
			res, err := o.runner.Run(ctx, req)
			result.Runs[i] = RunOutcome{Request: req, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	strategies := make(map[string]struct{})
	for _, run := range result.Runs {
		if run.Err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("backtest %s/%s/%s: %v",
				run.Request.Symbol, run.Request.StrategyID, run.Request.Interval, run.Err))
			continue
		}
		result.Succeeded++
		result.TradesCreated += run.Result.TotalTrades
		strategies[run.Result.StrategyID] = struct{}{}
	}
	o.log("  %d succeeded, %d failed, %d trades", result.Succeeded, result.Failed, result.TradesCreated)

	// Phase 2: Aggregation
	if o.aggregator == nil {
		return result, nil
	}
	o.log("Phase 2: Computing aggregates...")
	ids := make([]string, 0, len(strategies))
	for id := range strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		agg, err := o.aggregator.ComputeAggregate(ctx, id)
		if err != nil {
			// Nothing persisted for this strategy
			if errors.Is(err, metrics.ErrNoResults) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("aggregate %s: %v", id, err))
			continue
		}
		result.Aggregates = append(result.Aggregates, agg)
	}
	o.log("  Computed %d aggregates", len(result.Aggregates))

	return result, nil
}

// Matrix expands base into one request per (symbol, strategy) pair, symbols outermost.
// An empty strategies list keeps base.StrategyID.
func Matrix(base backtest.Request, symbols, strategies []string) []backtest.Request {
	if len(strategies) == 0 {
		strategies = []string{base.StrategyID}
	}
	out := make([]backtest.Request, 0, len(symbols)*len(strategies))
	for _, symbol := range symbols {
		for _, id := range strategies {
			req := base
			req.Symbol = symbol
			req.StrategyID = id
			out = append(out, req)
		}
	}
	return out
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
