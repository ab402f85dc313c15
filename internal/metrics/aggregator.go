package metrics

import (
	"context"
	"errors"
	"sort"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// ErrNoResults is returned when no backtest results are available for aggregation.
var ErrNoResults = errors.New("no backtest results available for aggregation")

// StrategyAggregate summarizes every stored run of one strategy.
type StrategyAggregate struct {
	StrategyID     string  `json:"strategy_id"`
	Runs           int     `json:"runs"`
	TotalTrades    int     `json:"total_trades"`
	ReturnMean     float64 `json:"return_mean"`
	ReturnMedian   float64 `json:"return_median"`
	ReturnBest     float64 `json:"return_best"`
	ReturnWorst    float64 `json:"return_worst"`
	WinRateMean    float64 `json:"win_rate_mean"`
	SharpeMean     float64 `json:"sharpe_mean"`
	WorstDrawdown  float64 `json:"worst_drawdown_pct"`
	ProfitableRuns int     `json:"profitable_runs"`
}

// Aggregator computes cross-run aggregates from stored backtest results.
type Aggregator struct {
	results storage.BacktestResultStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(results storage.BacktestResultStore) *Aggregator {
	return &Aggregator{results: results}
}

// ComputeAggregate aggregates every stored run of strategyID.
// Returns ErrNoResults if the strategy has no runs.
func (a *Aggregator) ComputeAggregate(ctx context.Context, strategyID string) (*StrategyAggregate, error) {
	results, err := a.results.GetByStrategy(ctx, strategyID, 0)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return aggregateResults(strategyID, results), nil
}

// Leaderboard aggregates all stored runs per strategy, ordered by mean return DESC
// then strategy id ASC. limit <= 0 returns every strategy.
func (a *Aggregator) Leaderboard(ctx context.Context, limit int) ([]*StrategyAggregate, error) {
	results, err := a.results.ListRecent(ctx, 0)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	byStrategy := make(map[string][]*domain.BacktestResult)
	for _, r := range results {
		byStrategy[r.StrategyID] = append(byStrategy[r.StrategyID], r)
	}

	board := make([]*StrategyAggregate, 0, len(byStrategy))
	for id, rs := range byStrategy {
		board = append(board, aggregateResults(id, rs))
	}
	sort.Slice(board, func(i, j int) bool {
		if board[i].ReturnMean != board[j].ReturnMean {
			return board[i].ReturnMean > board[j].ReturnMean
		}
		return board[i].StrategyID < board[j].StrategyID
	})

	if limit > 0 && len(board) > limit {
		board = board[:limit]
	}
	return board, nil
}

func aggregateResults(strategyID string, results []*domain.BacktestResult) *StrategyAggregate {
	agg := &StrategyAggregate{
		StrategyID: strategyID,
		Runs:       len(results),
	}

	returns := make([]float64, len(results))
	winRates := make([]float64, len(results))
	sharpes := make([]float64, len(results))
	for i, r := range results {
		returns[i] = r.TotalReturnPct
		winRates[i] = r.WinRate
		sharpes[i] = r.SharpeRatio
		agg.TotalTrades += r.TotalTrades
		if r.TotalReturnPct > 0 {
			agg.ProfitableRuns++
		}
		if r.MaxDrawdownPct > agg.WorstDrawdown {
			agg.WorstDrawdown = r.MaxDrawdownPct
		}
	}

	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	agg.ReturnMean = computeMean(returns)
	agg.ReturnMedian = computePercentile(sorted, 0.5)
	agg.ReturnWorst = sorted[0]
	agg.ReturnBest = sorted[len(sorted)-1]
	agg.WinRateMean = computeMean(winRates)
	agg.SharpeMean = computeMean(sharpes)
	return agg
}
