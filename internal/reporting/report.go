package reporting

import (
	"time"

	"signal-lab/internal/learning"
	"signal-lab/internal/metrics"
)

// Report is a snapshot of stored backtests and learning rollups.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Data Summary
	DataSummary DataSummary

	// Runs (created_at DESC, id ASC)
	Results []ResultRow

	// Strategy leaderboard (mean return DESC)
	Leaderboard []*metrics.StrategyAggregate

	// Learning rollups, one per mode with records
	Learning []*learning.Summary
}

// DataSummary describes the runs a report covers.
type DataSummary struct {
	Runs        int
	Symbols     int
	Strategies  int
	TotalTrades int
	PeriodStart time.Time // earliest run start
	PeriodEnd   time.Time // latest run end
}

// ResultRow is one backtest run in summary tables.
type ResultRow struct {
	ID             string
	Symbol         string
	StrategyID     string
	Interval       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	InitialBalance string
	FinalBalance   string
	TotalReturnPct float64
	TotalTrades    int
	WinRate        float64
	ProfitFactor   float64
	MaxDrawdownPct float64
	SharpeRatio    float64
	Signals        int
	Truncated      bool
}
