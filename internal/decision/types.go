// Package decision decides whether a strategy's backtest record is strong
// enough to promote it to live signal generation.
package decision

// Decision represents the final GO/NO-GO result.
type Decision string

const (
	DecisionGO               Decision = "GO"
	DecisionNOGO             Decision = "NO-GO"
	DecisionInsufficientData Decision = "INSUFFICIENT_DATA"
)

// Criteria holds the gate thresholds. Percent values are in [0, 100].
type Criteria struct {
	MinRuns            int     // runs required before any decision
	MinTrades          int     // trades across all runs required before any decision
	MinWinRate         float64 // mean win rate, percent
	MinProfitableShare float64 // share of profitable runs, [0, 1]
	MaxDrawdownPct     float64 // worst drawdown of any run above this triggers NO-GO
	MaxLossPerRunPct   float64 // worst run return below -this triggers NO-GO
}

// DefaultCriteria returns the default gate thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		MinRuns:            3,
		MinTrades:          30,
		MinWinRate:         40,
		MinProfitableShare: 0.5,
		MaxDrawdownPct:     50,
		MaxLossPerRunPct:   50,
	}
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string `json:"name"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
	Pass      bool   `json:"pass"`
}

// Result contains the decision for one strategy with its checklist.
type Result struct {
	StrategyID  string            `json:"strategy_id"`
	Decision    Decision          `json:"decision"`
	Sufficiency []CriterionResult `json:"sufficiency"`
	GOCriteria  []CriterionResult `json:"go_criteria"`
	NOGOChecks  []CriterionResult `json:"nogo_checks"` // Pass=false means triggered
}
