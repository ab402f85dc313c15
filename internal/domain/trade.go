package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the open leg held by the simulator. At most one per symbol.
type Position struct {
	Symbol     string
	Direction  Direction
	EntryPrice float64
	Quantity   decimal.Decimal // base units
	Leverage   int
	OpenedAt   time.Time
	StrategyID string
	SignalID   string // signal that opened the position
	Targets    []float64
	StopLoss   float64
}

// Trade is a closed position. Immutable once appended to the ledger.
type Trade struct {
	ID         string // deterministic hash
	Symbol     string
	Direction  Direction
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	Quantity   decimal.Decimal
	Leverage   int
	PnL        decimal.Decimal // realized, leverage applied
	StrategyID string
	ExitReason ExitReason
}

// IsWin reports whether the trade realized a positive pnl.
func (t Trade) IsWin() bool {
	return t.PnL.IsPositive()
}

// ExitReason records why a position was closed.
type ExitReason string

// Exit reason codes
const (
	ExitReasonOpposingSignal ExitReason = "OPPOSING_SIGNAL"
	ExitReasonStopLoss       ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit     ExitReason = "TAKE_PROFIT"
	ExitReasonEndOfData      ExitReason = "END_OF_DATA"
)

// PnLPrecision is the number of decimal places pnl and quantity are rounded to.
const PnLPrecision = 8

// RealizedPnL computes leveraged pnl for closing qty at exit.
// Buy: (exit - entry) * qty * leverage. Sell: (entry - exit) * qty * leverage.
func RealizedPnL(dir Direction, entry, exit float64, qty decimal.Decimal, leverage int) decimal.Decimal {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if dir == DirectionSell {
		diff = diff.Neg()
	}
	return diff.Mul(qty).Mul(decimal.NewFromInt(int64(leverage))).Round(PnLPrecision)
}
