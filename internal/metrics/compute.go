// Package metrics computes backtest statistics from a closed trade ledger.
package metrics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"signal-lab/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Summary holds the statistics of one trade ledger.
type Summary struct {
	TotalTrades int
	Wins        int
	Losses      int

	GrossProfit  decimal.Decimal
	GrossLoss    decimal.Decimal // absolute value
	NetPnL       decimal.Decimal
	FinalBalance decimal.Decimal

	WinRate        float64 // percent, [0, 100]
	ProfitFactor   float64 // >= 0
	MaxDrawdownPct float64 // percent, [0, 100]
	SharpeRatio    float64
	TotalReturnPct float64
	AvgWin         float64
	AvgLoss        float64

	MaxConsecutiveLosses int
	MonthlyReturns       []domain.MonthlyReturn
}

// Compute calculates every statistic from trades and the starting balance.
// Trades are ordered by ExitTime ASC, ID ASC before order-dependent metrics
// (drawdown, loss streaks) are computed.
func Compute(trades []domain.Trade, initialBalance decimal.Decimal) Summary {
	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ExitTime.Equal(sorted[j].ExitTime) {
			return sorted[i].ExitTime.Before(sorted[j].ExitTime)
		}
		return sorted[i].ID < sorted[j].ID
	})

	s := Summary{
		TotalTrades:  len(sorted),
		GrossProfit:  decimal.Zero,
		GrossLoss:    decimal.Zero,
		NetPnL:       decimal.Zero,
		FinalBalance: initialBalance,
	}

	for _, t := range sorted {
		s.NetPnL = s.NetPnL.Add(t.PnL)
		switch {
		case t.PnL.IsPositive():
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(t.PnL)
		case t.PnL.IsNegative():
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(t.PnL.Abs())
		}
	}
	s.FinalBalance = initialBalance.Add(s.NetPnL)

	s.WinRate = computeWinRate(s.Wins, s.TotalTrades)
	s.ProfitFactor = computeProfitFactor(s.GrossProfit, s.GrossLoss)
	s.MaxDrawdownPct = computeMaxDrawdown(sorted, initialBalance)
	s.SharpeRatio = computeSharpe(sorted, initialBalance)
	s.TotalReturnPct = percentOf(s.NetPnL, initialBalance)
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(sorted)
	s.MonthlyReturns = computeMonthlyReturns(sorted, initialBalance)
	if s.Wins > 0 {
		s.AvgWin = s.GrossProfit.Div(decimal.NewFromInt(int64(s.Wins))).InexactFloat64()
	}
	if s.Losses > 0 {
		s.AvgLoss = s.GrossLoss.Div(decimal.NewFromInt(int64(s.Losses))).InexactFloat64()
	}
	return s
}

// Apply copies the statistics onto a result.
func (s Summary) Apply(r *domain.BacktestResult) {
	r.TotalTrades = s.TotalTrades
	r.FinalBalance = s.FinalBalance
	r.TotalReturnPct = s.TotalReturnPct
	r.WinRate = s.WinRate
	r.ProfitFactor = s.ProfitFactor
	r.MaxDrawdownPct = s.MaxDrawdownPct
	r.SharpeRatio = s.SharpeRatio
	r.MonthlyReturns = s.MonthlyReturns
}

// computeWinRate returns wins / total * 100, or 0 without trades.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// computeProfitFactor returns gross profit / gross loss. Without losing trades
// it falls back to the gross profit.
func computeProfitFactor(profit, loss decimal.Decimal) float64 {
	if loss.IsZero() {
		return profit.InexactFloat64()
	}
	return profit.Div(loss).InexactFloat64()
}

// computeMaxDrawdown tracks the running peak of the balance curve, starting at
// the initial balance, and returns the worst (peak - balance) / peak in percent.
// A curve that goes to zero or below reports 100.
func computeMaxDrawdown(trades []domain.Trade, initial decimal.Decimal) float64 {
	if !initial.IsPositive() {
		return 0
	}
	balance := initial
	peak := initial
	maxDD := 0.0

	for _, t := range trades {
		balance = balance.Add(t.PnL)
		if balance.GreaterThan(peak) {
			peak = balance
		}
		dd := peak.Sub(balance).Div(peak).Mul(hundred).InexactFloat64()
		if dd > maxDD {
			maxDD = dd
		}
	}
	return math.Min(maxDD, 100)
}

// computeSharpe returns mean / population stddev of per-trade returns, where a
// return is pnl / initial * 100. Returns 0 when stddev is 0 or NaN.
func computeSharpe(trades []domain.Trade, initial decimal.Decimal) float64 {
	if len(trades) == 0 || initial.IsZero() {
		return 0
	}
	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = percentOf(t.PnL, initial)
	}
	mean := computeMean(returns)
	std := computePopulationStddev(returns, mean)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}

// computeMonthlyReturns buckets pnl by UTC entry month as percent of the
// initial balance. Months without trades are omitted.
func computeMonthlyReturns(trades []domain.Trade, initial decimal.Decimal) []domain.MonthlyReturn {
	if len(trades) == 0 {
		return nil
	}
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, t := range trades {
		month := t.EntryTime.UTC().Format("2006-01")
		sums[month] = sums[month].Add(t.PnL)
		counts[month]++
	}

	months := make([]string, 0, len(sums))
	for m := range sums {
		months = append(months, m)
	}
	sort.Strings(months)

	out := make([]domain.MonthlyReturn, len(months))
	for i, m := range months {
		out[i] = domain.MonthlyReturn{
			Month:     m,
			Trades:    counts[m],
			ReturnPct: percentOf(sums[m], initial),
		}
	}
	return out
}

// computeMaxConsecutiveLosses finds the longest streak of pnl <= 0.
func computeMaxConsecutiveLosses(trades []domain.Trade) int {
	maxStreak := 0
	current := 0
	for _, t := range trades {
		if !t.PnL.IsPositive() {
			current++
			if current > maxStreak {
				maxStreak = current
			}
		} else {
			current = 0
		}
	}
	return maxStreak
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computePopulationStddev uses the n denominator.
func computePopulationStddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// computePercentile uses linear interpolation. sorted must be ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func percentOf(v, base decimal.Decimal) float64 {
	if base.IsZero() {
		return 0
	}
	return v.Div(base).Mul(hundred).InexactFloat64()
}
