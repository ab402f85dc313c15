package main

import (
	"time"

	"github.com/shopspring/decimal"

	"signal-lab/internal/domain"
)

type candleJSON struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

func (c candleJSON) toCandle() domain.Candle {
	return domain.Candle{
		OpenTime: c.OpenTime.UTC(),
		Open:     c.Open,
		High:     c.High,
		Low:      c.Low,
		Close:    c.Close,
		Volume:   c.Volume,
	}
}

type signalJSON struct {
	ID           string               `json:"id"`
	Symbol       string               `json:"symbol"`
	Direction    domain.Direction     `json:"direction"`
	EntryPrice   float64              `json:"entry_price"`
	Targets      []float64            `json:"targets"`
	StopLoss     float64              `json:"stop_loss"`
	Confidence   float64              `json:"confidence"`
	Leverage     int                  `json:"leverage"`
	RiskFraction float64              `json:"risk_fraction"`
	StrategyID   string               `json:"strategy_id"`
	CreatedAt    time.Time            `json:"created_at"`
	MLScore      *float64             `json:"ml_score,omitempty"`
	Context      domain.MarketContext `json:"context"`
}

func newSignalJSON(s *domain.Signal) *signalJSON {
	return &signalJSON{
		ID:           s.ID,
		Symbol:       s.Symbol,
		Direction:    s.Direction,
		EntryPrice:   s.EntryPrice,
		Targets:      s.Targets,
		StopLoss:     s.StopLoss,
		Confidence:   s.Confidence,
		Leverage:     s.Leverage,
		RiskFraction: s.RiskFraction,
		StrategyID:   s.StrategyID,
		CreatedAt:    s.CreatedAt,
		MLScore:      s.MLScore,
		Context:      s.Context,
	}
}

type tradeJSON struct {
	ID         string            `json:"id"`
	Direction  domain.Direction  `json:"direction"`
	EntryPrice float64           `json:"entry_price"`
	ExitPrice  float64           `json:"exit_price"`
	EntryTime  time.Time         `json:"entry_time"`
	ExitTime   time.Time         `json:"exit_time"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Leverage   int               `json:"leverage"`
	PnL        decimal.Decimal   `json:"pnl"`
	ExitReason domain.ExitReason `json:"exit_reason"`
}

type resultJSON struct {
	ID             string                 `json:"id"`
	StrategyID     string                 `json:"strategy_id"`
	Symbol         string                 `json:"symbol"`
	Interval       domain.Interval        `json:"interval"`
	PeriodStart    time.Time              `json:"period_start"`
	PeriodEnd      time.Time              `json:"period_end"`
	InitialBalance decimal.Decimal        `json:"initial_balance"`
	FinalBalance   decimal.Decimal        `json:"final_balance"`
	TotalReturnPct float64                `json:"total_return_pct"`
	TotalTrades    int                    `json:"total_trades"`
	WinRate        float64                `json:"win_rate"`
	ProfitFactor   float64                `json:"profit_factor"`
	MaxDrawdownPct float64                `json:"max_drawdown_pct"`
	SharpeRatio    float64                `json:"sharpe_ratio"`
	MonthlyReturns []domain.MonthlyReturn `json:"monthly_returns"`
	Stats          domain.RunStats        `json:"stats"`
	CreatedAt      time.Time              `json:"created_at"`
	Trades         []tradeJSON            `json:"trades,omitempty"`
}

func newResultJSON(r *domain.BacktestResult, withTrades bool) resultJSON {
	out := resultJSON{
		ID:             r.ID,
		StrategyID:     r.StrategyID,
		Symbol:         r.Symbol,
		Interval:       r.Interval,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		InitialBalance: r.InitialBalance,
		FinalBalance:   r.FinalBalance,
		TotalReturnPct: r.TotalReturnPct,
		TotalTrades:    r.TotalTrades,
		WinRate:        r.WinRate,
		ProfitFactor:   r.ProfitFactor,
		MaxDrawdownPct: r.MaxDrawdownPct,
		SharpeRatio:    r.SharpeRatio,
		MonthlyReturns: r.MonthlyReturns,
		Stats:          r.Stats,
		CreatedAt:      r.CreatedAt,
	}
	if out.TotalTrades == 0 {
		out.TotalTrades = len(r.Trades)
	}
	if out.MonthlyReturns == nil {
		out.MonthlyReturns = []domain.MonthlyReturn{}
	}
	if withTrades {
		out.Trades = make([]tradeJSON, 0, len(r.Trades))
		for _, t := range r.Trades {
			out.Trades = append(out.Trades, tradeJSON{
				ID:         t.ID,
				Direction:  t.Direction,
				EntryPrice: t.EntryPrice,
				ExitPrice:  t.ExitPrice,
				EntryTime:  t.EntryTime,
				ExitTime:   t.ExitTime,
				Quantity:   t.Quantity,
				Leverage:   t.Leverage,
				PnL:        t.PnL,
				ExitReason: t.ExitReason,
			})
		}
	}
	return out
}
