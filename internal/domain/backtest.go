package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestResult is the immutable outcome of one backtest run.
type BacktestResult struct {
	ID          string // deterministic hash of run inputs
	StrategyID  string
	Symbol      string
	Interval    Interval
	PeriodStart time.Time
	PeriodEnd   time.Time

	// Balance
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal // InitialBalance + sum(Trades.PnL)
	TotalReturnPct float64

	Trades      []Trade
	TotalTrades int // len(Trades); kept when trades are not loaded

	// Statistics
	WinRate        float64 // [0, 100]
	ProfitFactor   float64 // >= 0
	MaxDrawdownPct float64 // [0, 100]
	SharpeRatio    float64
	MonthlyReturns []MonthlyReturn

	Stats     RunStats
	CreatedAt time.Time
}

// MonthlyReturn is the summed pnl of trades entered in one calendar month.
type MonthlyReturn struct {
	Month     string  `json:"month"` // YYYY-MM (UTC)
	Trades    int     `json:"trades"`
	ReturnPct float64 `json:"return_pct"` // percent of initial balance
}

// RunStats counts skipped steps and discarded signals for auditability.
type RunStats struct {
	Candles                int  `json:"candles"`
	Steps                  int  `json:"steps"`
	SignalsGenerated       int  `json:"signals_generated"`
	SignalsIgnored         int  `json:"signals_ignored"` // produced while a position was open
	InsufficientDataSteps  int  `json:"insufficient_data_steps"`
	InvalidMarketDataSteps int  `json:"invalid_market_data_steps"`
	DiscardedSignals       int  `json:"discarded_signals"`
	Truncated              bool `json:"truncated"` // candle fetch ended early
}
