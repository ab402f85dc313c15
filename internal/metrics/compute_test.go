package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signal-lab/internal/domain"
)

func trade(id string, pnl string, entry, exit time.Time) domain.Trade {
	return domain.Trade{
		ID:        id,
		PnL:       decimal.RequireFromString(pnl),
		EntryTime: entry,
		ExitTime:  exit,
	}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestCompute_NoTrades(t *testing.T) {
	s := Compute(nil, decimal.NewFromInt(10000))

	if s.TotalTrades != 0 || s.WinRate != 0 || s.ProfitFactor != 0 || s.MaxDrawdownPct != 0 || s.SharpeRatio != 0 {
		t.Errorf("expected zero statistics, got %+v", s)
	}
	if !s.FinalBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected final balance 10000, got %s", s.FinalBalance)
	}
	if s.MonthlyReturns != nil {
		t.Errorf("expected no monthly returns, got %v", s.MonthlyReturns)
	}
}

func TestCompute_BalanceIdentity(t *testing.T) {
	trades := []domain.Trade{
		trade("a", "150.12345678", day(1), day(2)),
		trade("b", "-40.5", day(3), day(4)),
		trade("c", "0.00000001", day(5), day(6)),
	}
	initial := decimal.NewFromInt(1000)

	s := Compute(trades, initial)

	want := decimal.RequireFromString("1109.62345679")
	if !s.FinalBalance.Equal(want) {
		t.Errorf("expected final balance %s, got %s", want, s.FinalBalance)
	}
	if s.Wins != 2 || s.Losses != 1 {
		t.Errorf("expected 2 wins / 1 loss, got %d / %d", s.Wins, s.Losses)
	}
}

func TestCompute_WinRateAndProfitFactor(t *testing.T) {
	trades := []domain.Trade{
		trade("a", "100", day(1), day(2)),
		trade("b", "-50", day(3), day(4)),
		trade("c", "200", day(5), day(6)),
		trade("d", "-100", day(7), day(8)),
	}

	s := Compute(trades, decimal.NewFromInt(10000))

	if s.WinRate != 50 {
		t.Errorf("expected win rate 50, got %f", s.WinRate)
	}
	// 300 / 150
	if s.ProfitFactor != 2 {
		t.Errorf("expected profit factor 2, got %f", s.ProfitFactor)
	}
	if s.TotalReturnPct != 1.5 {
		t.Errorf("expected total return 1.5, got %f", s.TotalReturnPct)
	}
	if s.AvgWin != 150 || s.AvgLoss != 75 {
		t.Errorf("expected avg win/loss 150/75, got %f/%f", s.AvgWin, s.AvgLoss)
	}
}

func TestCompute_ProfitFactorWithoutLosses(t *testing.T) {
	trades := []domain.Trade{
		trade("a", "100", day(1), day(2)),
		trade("b", "25", day(3), day(4)),
	}

	s := Compute(trades, decimal.NewFromInt(1000))

	if s.ProfitFactor != 125 {
		t.Errorf("expected profit factor to fall back to gross profit 125, got %f", s.ProfitFactor)
	}
}

func TestCompute_MaxDrawdownFromPeak(t *testing.T) {
	// Balance: 1000 -> 1200 (peak) -> 900 -> 1100
	trades := []domain.Trade{
		trade("a", "200", day(1), day(2)),
		trade("b", "-300", day(3), day(4)),
		trade("c", "200", day(5), day(6)),
	}

	s := Compute(trades, decimal.NewFromInt(1000))

	if math.Abs(s.MaxDrawdownPct-25) > 1e-9 {
		t.Errorf("expected max drawdown 25, got %f", s.MaxDrawdownPct)
	}
}

func TestCompute_DrawdownOrderedByExitTime(t *testing.T) {
	// Given out of order; the loss closes first in time.
	trades := []domain.Trade{
		trade("win", "500", day(1), day(10)),
		trade("loss", "-100", day(2), day(3)),
	}

	s := Compute(trades, decimal.NewFromInt(1000))

	if math.Abs(s.MaxDrawdownPct-10) > 1e-9 {
		t.Errorf("expected max drawdown 10, got %f", s.MaxDrawdownPct)
	}
}

func TestCompute_MaxDrawdownCapped(t *testing.T) {
	trades := []domain.Trade{
		trade("a", "-1500", day(1), day(2)),
	}

	s := Compute(trades, decimal.NewFromInt(1000))

	if s.MaxDrawdownPct != 100 {
		t.Errorf("expected drawdown capped at 100, got %f", s.MaxDrawdownPct)
	}
}

func TestCompute_SharpeZeroVariance(t *testing.T) {
	trades := []domain.Trade{
		trade("a", "10", day(1), day(2)),
		trade("b", "10", day(3), day(4)),
	}

	s := Compute(trades, decimal.NewFromInt(1000))

	if s.SharpeRatio != 0 {
		t.Errorf("expected sharpe 0 for constant returns, got %f", s.SharpeRatio)
	}
}

func TestCompute_Sharpe(t *testing.T) {
	// Returns 2% and -1%: mean 0.5, population std 1.5
	trades := []domain.Trade{
		trade("a", "20", day(1), day(2)),
		trade("b", "-10", day(3), day(4)),
	}

	s := Compute(trades, decimal.NewFromInt(1000))

	if math.Abs(s.SharpeRatio-1.0/3.0) > 1e-9 {
		t.Errorf("expected sharpe 0.3333, got %f", s.SharpeRatio)
	}
}

func TestCompute_MonthlyReturns(t *testing.T) {
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	trades := []domain.Trade{
		trade("a", "100", day(1), day(2)),
		trade("b", "-30", day(20), feb),
		trade("c", "50", feb, feb.Add(time.Hour)),
	}

	s := Compute(trades, decimal.NewFromInt(1000))

	if len(s.MonthlyReturns) != 2 {
		t.Fatalf("expected 2 months, got %d", len(s.MonthlyReturns))
	}
	jan, febRet := s.MonthlyReturns[0], s.MonthlyReturns[1]
	if jan.Month != "2024-01" || jan.Trades != 2 || math.Abs(jan.ReturnPct-7) > 1e-9 {
		t.Errorf("unexpected january bucket: %+v", jan)
	}
	if febRet.Month != "2024-02" || febRet.Trades != 1 || math.Abs(febRet.ReturnPct-5) > 1e-9 {
		t.Errorf("unexpected february bucket: %+v", febRet)
	}
}

func TestCompute_MaxConsecutiveLosses(t *testing.T) {
	trades := []domain.Trade{
		trade("a", "-1", day(1), day(2)),
		trade("b", "-1", day(3), day(4)),
		trade("c", "5", day(5), day(6)),
		trade("d", "0", day(7), day(8)),
		trade("e", "-1", day(9), day(10)),
		trade("f", "-1", day(11), day(12)),
	}

	s := Compute(trades, decimal.NewFromInt(1000))

	if s.MaxConsecutiveLosses != 3 {
		t.Errorf("expected streak 3, got %d", s.MaxConsecutiveLosses)
	}
}

func TestSummary_Apply(t *testing.T) {
	trades := []domain.Trade{trade("a", "100", day(1), day(2))}
	s := Compute(trades, decimal.NewFromInt(1000))

	r := &domain.BacktestResult{InitialBalance: decimal.NewFromInt(1000), Trades: trades}
	s.Apply(r)

	if !r.FinalBalance.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("expected final balance 1100, got %s", r.FinalBalance)
	}
	if r.TotalTrades != 1 || r.WinRate != 100 || r.TotalReturnPct != 10 {
		t.Errorf("unexpected applied statistics: %+v", r)
	}
}

func TestComputePercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	if got := computePercentile(sorted, 0.5); got != 2.5 {
		t.Errorf("expected median 2.5, got %f", got)
	}
	if got := computePercentile(sorted, 1); got != 4 {
		t.Errorf("expected p100 4, got %f", got)
	}
	if got := computePercentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0 for empty input, got %f", got)
	}
}
