package reporting

import (
	"context"
	"errors"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/learning"
	"signal-lab/internal/metrics"
	"signal-lab/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	resultStore storage.BacktestResultStore
	aggregator  *metrics.Aggregator
	tracker     *learning.Tracker
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. tracker may be nil.
func NewGenerator(results storage.BacktestResultStore, tracker *learning.Tracker) *Generator {
	return &Generator{
		resultStore: results,
		aggregator:  metrics.NewAggregator(results),
		tracker:     tracker,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report over the most recent limit runs (all if limit <= 0).
func (g *Generator) Generate(ctx context.Context, limit int) (*Report, error) {
	results, err := g.resultStore.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	leaderboard, err := g.aggregator.Leaderboard(ctx, 0)
	if err != nil && !errors.Is(err, metrics.ErrNoResults) {
		return nil, err
	}

	var rollups []*learning.Summary
	if g.tracker != nil {
		for _, mode := range []domain.Mode{domain.ModeBacktest, domain.ModePaper, domain.ModeLive, domain.ModeSignal} {
			s, err := g.tracker.Summary(ctx, mode)
			if err != nil {
				return nil, err
			}
			if s.Overall.Total > 0 {
				rollups = append(rollups, s)
			}
		}
	}

	return &Report{
		GeneratedAt: g.now(),
		DataSummary: summarize(results),
		Results:     ResultRows(results),
		Leaderboard: leaderboard,
		Learning:    rollups,
	}, nil
}

// summarize computes the data summary of results.
func summarize(results []*domain.BacktestResult) DataSummary {
	s := DataSummary{Runs: len(results)}
	symbols := make(map[string]struct{})
	strategies := make(map[string]struct{})

	for i, r := range results {
		symbols[r.Symbol] = struct{}{}
		strategies[r.StrategyID] = struct{}{}
		s.TotalTrades += r.TotalTrades

		if i == 0 || r.PeriodStart.Before(s.PeriodStart) {
			s.PeriodStart = r.PeriodStart
		}
		if i == 0 || r.PeriodEnd.After(s.PeriodEnd) {
			s.PeriodEnd = r.PeriodEnd
		}
	}

	s.Symbols = len(symbols)
	s.Strategies = len(strategies)
	return s
}

// ResultRows flattens results for tables, keeping their order.
func ResultRows(results []*domain.BacktestResult) []ResultRow {
	rows := make([]ResultRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, ResultRow{
			ID:             r.ID,
			Symbol:         r.Symbol,
			StrategyID:     r.StrategyID,
			Interval:       r.Interval.String(),
			PeriodStart:    r.PeriodStart,
			PeriodEnd:      r.PeriodEnd,
			InitialBalance: r.InitialBalance.StringFixed(2),
			FinalBalance:   r.FinalBalance.StringFixed(2),
			TotalReturnPct: r.TotalReturnPct,
			TotalTrades:    r.TotalTrades,
			WinRate:        r.WinRate,
			ProfitFactor:   r.ProfitFactor,
			MaxDrawdownPct: r.MaxDrawdownPct,
			SharpeRatio:    r.SharpeRatio,
			Signals:        r.Stats.SignalsGenerated,
			Truncated:      r.Stats.Truncated,
		})
	}
	return rows
}
