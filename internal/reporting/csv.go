package reporting

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal-lab/internal/domain"
)

// RenderSummaryCSV renders one row per run as CSV string.
func RenderSummaryCSV(rows []ResultRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("id,symbol,strategy_id,interval,period_start,period_end,initial_balance,final_balance,")
	sb.WriteString("total_return_pct,total_trades,win_rate,profit_factor,max_drawdown_pct,sharpe_ratio,signals,truncated\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%.6f,%d,%.6f,%.6f,%.6f,%.6f,%d,%t\n",
			r.ID,
			r.Symbol,
			r.StrategyID,
			r.Interval,
			r.PeriodStart.Format(time.RFC3339),
			r.PeriodEnd.Format(time.RFC3339),
			r.InitialBalance,
			r.FinalBalance,
			r.TotalReturnPct,
			r.TotalTrades,
			r.WinRate,
			r.ProfitFactor,
			r.MaxDrawdownPct,
			r.SharpeRatio,
			r.Signals,
			r.Truncated,
		))
	}

	return sb.String()
}

// RenderTradesCSV renders the trade ledger of one run as CSV string.
func RenderTradesCSV(r *domain.BacktestResult) string {
	var sb strings.Builder

	// Header
	sb.WriteString("trade_id,symbol,strategy_id,direction,entry_time,exit_time,entry_price,exit_price,")
	sb.WriteString("quantity,leverage,pnl,exit_reason\n")

	// Rows
	for _, t := range r.Trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%s,%d,%s,%s\n",
			t.ID,
			t.Symbol,
			t.StrategyID,
			t.Direction,
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			t.Quantity.String(),
			t.Leverage,
			t.PnL.String(),
			t.ExitReason,
		))
	}

	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
