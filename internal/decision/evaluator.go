package decision

import (
	"fmt"

	"signal-lab/internal/metrics"
)

// Evaluator evaluates decision criteria.
type Evaluator struct {
	criteria Criteria
}

// NewEvaluator creates a new decision evaluator.
func NewEvaluator(criteria Criteria) *Evaluator {
	return &Evaluator{criteria: criteria}
}

// Criteria returns the thresholds in use.
func (e *Evaluator) Criteria() Criteria {
	return e.criteria
}

// Evaluate produces a Result from a strategy aggregate.
// INSUFFICIENT_DATA if a sufficiency check fails.
// GO if ALL criteria pass and NO NO-GO triggers.
// NO-GO otherwise.
func (e *Evaluator) Evaluate(a *metrics.StrategyAggregate) *Result {
	res := &Result{
		StrategyID:  a.StrategyID,
		Sufficiency: e.sufficiency(a),
		GOCriteria:  e.goCriteria(a),
		NOGOChecks:  e.nogoTriggers(a),
	}

	switch {
	case !allPass(res.Sufficiency):
		res.Decision = DecisionInsufficientData
	case allPass(res.GOCriteria) && allPass(res.NOGOChecks):
		res.Decision = DecisionGO
	default:
		res.Decision = DecisionNOGO
	}
	return res
}

// EvaluateAll evaluates every aggregate, keeping their order.
func (e *Evaluator) EvaluateAll(aggregates []*metrics.StrategyAggregate) []*Result {
	out := make([]*Result, 0, len(aggregates))
	for _, a := range aggregates {
		out = append(out, e.Evaluate(a))
	}
	return out
}

func (e *Evaluator) sufficiency(a *metrics.StrategyAggregate) []CriterionResult {
	return []CriterionResult{
		{
			Name:      "Backtest runs",
			Threshold: fmt.Sprintf(">= %d", e.criteria.MinRuns),
			Actual:    fmt.Sprintf("%d", a.Runs),
			Pass:      a.Runs >= e.criteria.MinRuns,
		},
		{
			Name:      "Closed trades",
			Threshold: fmt.Sprintf(">= %d", e.criteria.MinTrades),
			Actual:    fmt.Sprintf("%d", a.TotalTrades),
			Pass:      a.TotalTrades >= e.criteria.MinTrades,
		},
	}
}

// goCriteria evaluates the 5 GO criteria.
func (e *Evaluator) goCriteria(a *metrics.StrategyAggregate) []CriterionResult {
	share := 0.0
	if a.Runs > 0 {
		share = float64(a.ProfitableRuns) / float64(a.Runs)
	}

	return []CriterionResult{
		{
			Name:      "Mean return",
			Threshold: "> 0%",
			Actual:    fmt.Sprintf("%.2f%%", a.ReturnMean),
			Pass:      a.ReturnMean > 0,
		},
		{
			Name:      "Median return",
			Threshold: "> 0%",
			Actual:    fmt.Sprintf("%.2f%%", a.ReturnMedian),
			Pass:      a.ReturnMedian > 0,
		},
		{
			Name:      "Mean win rate",
			Threshold: fmt.Sprintf(">= %.0f%%", e.criteria.MinWinRate),
			Actual:    fmt.Sprintf("%.2f%%", a.WinRateMean),
			Pass:      a.WinRateMean >= e.criteria.MinWinRate,
		},
		{
			Name:      "Profitable runs",
			Threshold: fmt.Sprintf(">= %.0f%%", e.criteria.MinProfitableShare*100),
			Actual:    fmt.Sprintf("%d/%d", a.ProfitableRuns, a.Runs),
			Pass:      share >= e.criteria.MinProfitableShare,
		},
		{
			Name:      "Mean Sharpe",
			Threshold: "> 0",
			Actual:    fmt.Sprintf("%.4f", a.SharpeMean),
			Pass:      a.SharpeMean > 0,
		},
	}
}

// nogoTriggers evaluates the 3 NO-GO triggers.
// Pass=true means NOT triggered, Pass=false means triggered.
func (e *Evaluator) nogoTriggers(a *metrics.StrategyAggregate) []CriterionResult {
	return []CriterionResult{
		{
			Name:      "Deep drawdown",
			Threshold: fmt.Sprintf("worst drawdown > %.0f%%", e.criteria.MaxDrawdownPct),
			Actual:    fmt.Sprintf("%.2f%%", a.WorstDrawdown),
			Pass:      a.WorstDrawdown <= e.criteria.MaxDrawdownPct,
		},
		{
			Name:      "Ruinous run",
			Threshold: fmt.Sprintf("worst return < -%.0f%%", e.criteria.MaxLossPerRunPct),
			Actual:    fmt.Sprintf("%.2f%%", a.ReturnWorst),
			Pass:      a.ReturnWorst >= -e.criteria.MaxLossPerRunPct,
		},
		{
			Name:      "Negative/zero median",
			Threshold: "<= 0%",
			Actual:    fmt.Sprintf("%.2f%%", a.ReturnMedian),
			Pass:      a.ReturnMedian > 0,
		},
	}
}

func allPass(checks []CriterionResult) bool {
	for _, c := range checks {
		if !c.Pass {
			return false
		}
	}
	return true
}
