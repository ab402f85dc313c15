package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSignal is returned when a signal violates its price invariants.
var ErrInvalidSignal = errors.New("invalid signal")

// Direction is the side of a signal, position or trade.
type Direction string

// Direction values
const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// IsValid returns true if the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// String returns the string representation.
func (d Direction) String() string {
	return string(d)
}

// MaxTargets is the maximum number of take-profit levels on a signal.
const MaxTargets = 3

// Signal is an immutable trade recommendation produced by a strategy.
type Signal struct {
	ID           string    // deterministic signal id
	Symbol       string    // instrument, e.g. BTCUSDT
	Direction    Direction // BUY | SELL
	EntryPrice   float64
	Targets      []float64 // 1-3 take-profit levels, nearest first
	StopLoss     float64
	Confidence   float64 // [0, 1]
	Leverage     int     // >= 1
	RiskFraction float64 // share of balance committed when opened, (0, 1]
	StrategyID   string
	CreatedAt    time.Time
	MLScore      *float64 // only set by model-driven strategies
	Context      MarketContext
}

// MarketContext captures the indicator values a signal was generated from.
type MarketContext struct {
	Momentum       float64 `json:"momentum"`
	Trend          float64 `json:"trend"`
	RangePct       float64 `json:"range_pct"`
	Volatility     float64 `json:"volatility"`
	NotionalVolume float64 `json:"notional_volume"`
	Sentiment      float64 `json:"sentiment,omitempty"`
	Tier           string  `json:"tier,omitempty"`
}

// NewSignal validates s and returns a copy that owns its targets.
// No signal is returned when validation fails.
func NewSignal(s Signal) (*Signal, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := s
	out.Targets = append([]float64(nil), s.Targets...)
	if s.MLScore != nil {
		v := *s.MLScore
		out.MLScore = &v
	}
	return &out, nil
}

// Validate checks the price, ordering and sizing invariants. Errors wrap ErrInvalidSignal.
func (s *Signal) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil signal", ErrInvalidSignal)
	}
	if !s.Direction.IsValid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, s.Direction)
	}
	if !isPositiveFinite(s.EntryPrice) {
		return fmt.Errorf("%w: entry price %v", ErrInvalidSignal, s.EntryPrice)
	}
	if !isPositiveFinite(s.StopLoss) {
		return fmt.Errorf("%w: stop loss %v", ErrInvalidSignal, s.StopLoss)
	}
	if len(s.Targets) == 0 || len(s.Targets) > MaxTargets {
		return fmt.Errorf("%w: %d targets", ErrInvalidSignal, len(s.Targets))
	}

	prev := s.EntryPrice
	for i, t := range s.Targets {
		if !isPositiveFinite(t) {
			return fmt.Errorf("%w: target %d is %v", ErrInvalidSignal, i+1, t)
		}
		switch s.Direction {
		case DirectionBuy:
			if t <= prev {
				return fmt.Errorf("%w: buy target %d (%v) not above %v", ErrInvalidSignal, i+1, t, prev)
			}
		case DirectionSell:
			if t >= prev {
				return fmt.Errorf("%w: sell target %d (%v) not below %v", ErrInvalidSignal, i+1, t, prev)
			}
		}
		prev = t
	}

	if s.Direction == DirectionBuy && s.StopLoss >= s.EntryPrice {
		return fmt.Errorf("%w: buy stop %v not below entry %v", ErrInvalidSignal, s.StopLoss, s.EntryPrice)
	}
	if s.Direction == DirectionSell && s.StopLoss <= s.EntryPrice {
		return fmt.Errorf("%w: sell stop %v not above entry %v", ErrInvalidSignal, s.StopLoss, s.EntryPrice)
	}

	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v", ErrInvalidSignal, s.Confidence)
	}
	if s.Leverage < 1 {
		return fmt.Errorf("%w: leverage %d", ErrInvalidSignal, s.Leverage)
	}
	if math.IsNaN(s.RiskFraction) || s.RiskFraction <= 0 || s.RiskFraction > 1 {
		return fmt.Errorf("%w: risk fraction %v", ErrInvalidSignal, s.RiskFraction)
	}
	return nil
}
