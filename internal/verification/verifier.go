// Package verification re-simulates stored backtest results and reports
// every field that no longer matches.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"signal-lab/internal/backtest"
	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// ErrResultNotFound is returned when a result ID doesn't exist.
var ErrResultNotFound = errors.New("backtest result not found")

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      `json:"field"`
	Expected interface{} `json:"expected"` // stored value
	Actual   interface{} `json:"actual"`   // replayed value
}

// Result contains the verification of one backtest result.
type Result struct {
	ResultID       string            `json:"result_id"`
	Match          bool              `json:"match"`
	Divergences    []FieldDivergence `json:"divergences"`
	StoredTrades   int               `json:"stored_trades"`
	ReplayedTrades int               `json:"replayed_trades"`
}

// Report contains results for batch verification.
type Report struct {
	Total     int      `json:"total"`
	Matched   int      `json:"matched"`
	Divergent int      `json:"divergent"`
	Failed    int      `json:"failed"` // results that could not be replayed
	Results   []Result `json:"results"`
	Errors    []string `json:"errors,omitempty"`
}

// Simulator re-executes a backtest request without side effects.
type Simulator interface {
	Simulate(ctx context.Context, req backtest.Request) (*domain.BacktestResult, error)
}

// Verifier replays stored results through a Simulator.
type Verifier struct {
	results storage.BacktestResultStore
	sim     Simulator
}

// NewVerifier creates a new Verifier.
func NewVerifier(results storage.BacktestResultStore, sim Simulator) *Verifier {
	return &Verifier{results: results, sim: sim}
}

// Verify loads the stored result, re-simulates its request and compares
// the summary fields and every trade.
func (v *Verifier) Verify(ctx context.Context, resultID string) (*Result, error) {
	stored, err := v.results.GetByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, resultID)
		}
		return nil, err
	}

	replayed, err := v.sim.Simulate(ctx, requestFor(stored))
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", resultID, err)
	}

	divergences := CompareResults(stored, replayed)
	return &Result{
		ResultID:       resultID,
		Match:          len(divergences) == 0,
		Divergences:    divergences,
		StoredTrades:   len(stored.Trades),
		ReplayedTrades: len(replayed.Trades),
	}, nil
}

// VerifyAll verifies the most recent limit results (all if limit <= 0).
// A result that cannot be replayed is counted as failed; only cancellation
// aborts the batch.
func (v *Verifier) VerifyAll(ctx context.Context, limit int) (*Report, error) {
	recent, err := v.results.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, r := range recent {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Total++

		res, err := v.Verify(ctx, r.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Failed++
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		if res.Match {
			report.Matched++
		} else {
			report.Divergent++
		}
		report.Results = append(report.Results, *res)
	}
	return report, nil
}

func requestFor(r *domain.BacktestResult) backtest.Request {
	return backtest.Request{
		Symbol:         r.Symbol,
		StrategyID:     r.StrategyID,
		Interval:       r.Interval,
		From:           r.PeriodStart,
		To:             r.PeriodEnd,
		InitialBalance: r.InitialBalance,
	}
}

// CompareResults compares two backtest results and returns divergences.
// Uses FloatTolerance for float64 comparisons. CreatedAt is not compared.
func CompareResults(stored, replayed *domain.BacktestResult) []FieldDivergence {
	var d divergences

	// ID covers every input, including the engine config
	d.check("ID", stored.ID, replayed.ID, stored.ID == replayed.ID)
	d.check("TotalTrades", stored.TotalTrades, replayed.TotalTrades, stored.TotalTrades == replayed.TotalTrades)
	d.decimal("FinalBalance", stored.FinalBalance, replayed.FinalBalance)
	d.float("TotalReturnPct", stored.TotalReturnPct, replayed.TotalReturnPct)
	d.float("WinRate", stored.WinRate, replayed.WinRate)
	d.float("ProfitFactor", stored.ProfitFactor, replayed.ProfitFactor)
	d.float("MaxDrawdownPct", stored.MaxDrawdownPct, replayed.MaxDrawdownPct)
	d.float("SharpeRatio", stored.SharpeRatio, replayed.SharpeRatio)

	if len(stored.Trades) != len(replayed.Trades) {
		d.add("Trades", len(stored.Trades), len(replayed.Trades))
	}
	n := min(len(stored.Trades), len(replayed.Trades))
	for i := 0; i < n; i++ {
		compareTrade(&d, fmt.Sprintf("Trades[%d].", i), stored.Trades[i], replayed.Trades[i])
	}
	return d.list
}

func compareTrade(d *divergences, prefix string, stored, replayed domain.Trade) {
	d.check(prefix+"ID", stored.ID, replayed.ID, stored.ID == replayed.ID)
	d.check(prefix+"Direction", stored.Direction, replayed.Direction, stored.Direction == replayed.Direction)
	d.float(prefix+"EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	d.float(prefix+"ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	d.check(prefix+"EntryTime", stored.EntryTime, replayed.EntryTime, stored.EntryTime.Equal(replayed.EntryTime))
	d.check(prefix+"ExitTime", stored.ExitTime, replayed.ExitTime, stored.ExitTime.Equal(replayed.ExitTime))
	d.decimal(prefix+"Quantity", stored.Quantity, replayed.Quantity)
	d.check(prefix+"Leverage", stored.Leverage, replayed.Leverage, stored.Leverage == replayed.Leverage)
	d.decimal(prefix+"PnL", stored.PnL, replayed.PnL)
	d.check(prefix+"ExitReason", stored.ExitReason, replayed.ExitReason, stored.ExitReason == replayed.ExitReason)
}

type divergences struct {
	list []FieldDivergence
}

func (d *divergences) add(field string, expected, actual interface{}) {
	d.list = append(d.list, FieldDivergence{Field: field, Expected: expected, Actual: actual})
}

func (d *divergences) check(field string, expected, actual interface{}, equal bool) {
	if !equal {
		d.add(field, expected, actual)
	}
}

func (d *divergences) float(field string, expected, actual float64) {
	d.check(field, expected, actual, floatEquals(expected, actual))
}

func (d *divergences) decimal(field string, expected, actual decimal.Decimal) {
	d.check(field, expected.String(), actual.String(), expected.Equal(actual))
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
