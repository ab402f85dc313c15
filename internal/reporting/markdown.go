package reporting

import (
	"fmt"
	"strings"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/learning"
)

const dateLayout = "2006-01-02"

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Runs | %d |\n", r.DataSummary.Runs))
	sb.WriteString(fmt.Sprintf("| Symbols | %d |\n", r.DataSummary.Symbols))
	sb.WriteString(fmt.Sprintf("| Strategies | %d |\n", r.DataSummary.Strategies))
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", r.DataSummary.TotalTrades))
	if r.DataSummary.Runs > 0 {
		sb.WriteString(fmt.Sprintf("| Period | %s .. %s |\n",
			r.DataSummary.PeriodStart.Format(dateLayout), r.DataSummary.PeriodEnd.Format(dateLayout)))
	}
	sb.WriteString("\n")

	// Runs
	sb.WriteString("## Runs\n\n")
	if len(r.Results) > 0 {
		sb.WriteString("| Symbol | Strategy | Interval | Period | Final Balance | Return % | Trades | WinRate | PF | MaxDD % | Sharpe |\n")
		sb.WriteString("|--------|----------|----------|--------|---------------|----------|--------|---------|----|---------|--------|\n")
		for _, row := range r.Results {
			truncated := ""
			if row.Truncated {
				truncated = " (truncated)"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s .. %s%s | %s | %.2f | %d | %.2f | %.2f | %.2f | %.4f |\n",
				row.Symbol, row.StrategyID, row.Interval,
				row.PeriodStart.Format(dateLayout), row.PeriodEnd.Format(dateLayout), truncated,
				row.FinalBalance, row.TotalReturnPct, row.TotalTrades, row.WinRate,
				row.ProfitFactor, row.MaxDrawdownPct, row.SharpeRatio))
		}
	} else {
		sb.WriteString("No backtest results available.\n")
	}
	sb.WriteString("\n")

	// Leaderboard
	if len(r.Leaderboard) > 0 {
		sb.WriteString("## Strategy Leaderboard\n\n")
		sb.WriteString("| Strategy | Runs | Trades | Mean % | Median % | Best % | Worst % | WinRate | Sharpe | Worst DD % | Profitable |\n")
		sb.WriteString("|----------|------|--------|--------|----------|--------|---------|---------|--------|------------|------------|\n")
		for _, a := range r.Leaderboard {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.2f | %.2f | %.2f | %.2f | %.2f | %.4f | %.2f | %d/%d |\n",
				a.StrategyID, a.Runs, a.TotalTrades, a.ReturnMean, a.ReturnMedian, a.ReturnBest, a.ReturnWorst,
				a.WinRateMean, a.SharpeMean, a.WorstDrawdown, a.ProfitableRuns, a.Runs))
		}
		sb.WriteString("\n")
	}

	// Learning
	if len(r.Learning) > 0 {
		sb.WriteString("## Signal Learning\n\n")
		sb.WriteString("| Mode | Symbol | Signals | WinRate | Avg Impact |")
		for _, o := range domain.AllOutcomes {
			sb.WriteString(fmt.Sprintf(" %s |", o))
		}
		sb.WriteString("\n|------|--------|---------|---------|------------|")
		for range domain.AllOutcomes {
			sb.WriteString("----|")
		}
		sb.WriteString("\n")
		for _, s := range r.Learning {
			rows := append([]learningRow{{"all", s.Overall.Total, s.Overall.WinRate, s.Overall.AvgImpactScore, s.Overall.Outcomes}},
				symbolRows(s)...)
			for _, row := range rows {
				sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %.4f |", s.Overall.Mode, row.symbol, row.total, row.winRate, row.impact))
				for _, o := range domain.AllOutcomes {
					sb.WriteString(fmt.Sprintf(" %d |", row.outcomes[o]))
				}
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderResultMarkdown renders one run with its monthly returns and trade ledger.
func RenderResultMarkdown(r *domain.BacktestResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s %s %s\n\n", r.Symbol, r.StrategyID, r.Interval))
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.ID))
	sb.WriteString(fmt.Sprintf("Period: %s .. %s\n\n", r.PeriodStart.Format(time.RFC3339), r.PeriodEnd.Format(time.RFC3339)))

	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Initial Balance | %s |\n", r.InitialBalance.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Final Balance | %s |\n", r.FinalBalance.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Total Return | %.2f%% |\n", r.TotalReturnPct))
	sb.WriteString(fmt.Sprintf("| Trades | %d |\n", r.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", r.WinRate))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %.4f |\n", r.ProfitFactor))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", r.MaxDrawdownPct))
	sb.WriteString(fmt.Sprintf("| Sharpe Ratio | %.4f |\n", r.SharpeRatio))
	sb.WriteString(fmt.Sprintf("| Candles | %d |\n", r.Stats.Candles))
	sb.WriteString(fmt.Sprintf("| Signals | %d (ignored %d, discarded %d) |\n",
		r.Stats.SignalsGenerated, r.Stats.SignalsIgnored, r.Stats.DiscardedSignals))
	sb.WriteString(fmt.Sprintf("| Skipped Steps | %d insufficient, %d invalid data |\n",
		r.Stats.InsufficientDataSteps, r.Stats.InvalidMarketDataSteps))
	if r.Stats.Truncated {
		sb.WriteString("| Data | truncated |\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Monthly Returns\n\n")
	if len(r.MonthlyReturns) > 0 {
		sb.WriteString("| Month | Trades | Return % |\n")
		sb.WriteString("|-------|--------|----------|\n")
		for _, m := range r.MonthlyReturns {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f |\n", m.Month, m.Trades, m.ReturnPct))
		}
	} else {
		sb.WriteString("No trades.\n")
	}
	sb.WriteString("\n")

	if len(r.Trades) > 0 {
		sb.WriteString("## Trades\n\n")
		sb.WriteString("| Entry | Exit | Side | Entry Price | Exit Price | Qty | Lev | PnL | Reason |\n")
		sb.WriteString("|-------|------|------|-------------|------------|-----|-----|-----|--------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %dx | %s | %s |\n",
				t.EntryTime.Format(time.RFC3339), t.ExitTime.Format(time.RFC3339), t.Direction,
				formatFloat(t.EntryPrice), formatFloat(t.ExitPrice), t.Quantity.String(), t.Leverage,
				t.PnL.StringFixed(2), t.ExitReason))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

type learningRow struct {
	symbol   string
	total    int
	winRate  float64
	impact   float64
	outcomes map[domain.Outcome]int
}

func symbolRows(s *learning.Summary) []learningRow {
	rows := make([]learningRow, 0, len(s.Symbols))
	for _, r := range s.Symbols {
		rows = append(rows, learningRow{r.Symbol, r.Total, r.WinRate, r.AvgImpactScore, r.Outcomes})
	}
	return rows
}
