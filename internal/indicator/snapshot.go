package indicator

import (
	"fmt"
	"math"
	"time"

	"signal-lab/internal/domain"
)

// Snapshot is the transient market view a strategy decides on.
// It is rebuilt every simulation step and never persisted.
type Snapshot struct {
	Symbol string
	Time   time.Time // open time of the latest candle

	Price float64 // latest close
	High  float64 // window high
	Low   float64 // window low

	Momentum       float64 // RSI proxy, [0, 100]
	Trend          float64 // MACD proxy, signed
	RangePct       float64 // ATR proxy, percent of price
	Volatility     float64 // mean absolute step change, percent
	StepChangePct  float64 // latest close-to-close change, percent
	NotionalVolume float64 // sum of close*volume over the window
	EMAAligned     bool
	Fib            FibLevels

	Candles int // window length
}

// Validate rejects snapshots whose price, high or low is non-positive or NaN.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidMarketData)
	}
	if !validPrice(s.Price) || !validPrice(s.High) || !validPrice(s.Low) {
		return fmt.Errorf("%w: price=%v high=%v low=%v", ErrInvalidMarketData, s.Price, s.High, s.Low)
	}
	for _, v := range []float64{s.Momentum, s.Trend, s.RangePct, s.Volatility, s.NotionalVolume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite indicator value", ErrInvalidMarketData)
		}
	}
	return nil
}

// Context converts the indicator values into the signal's market context.
func (s *Snapshot) Context() domain.MarketContext {
	return domain.MarketContext{
		Momentum:       s.Momentum,
		Trend:          s.Trend,
		RangePct:       s.RangePct,
		Volatility:     s.Volatility,
		NotionalVolume: s.NotionalVolume,
	}
}

// BuildSnapshot computes every indicator over window. The window must hold only
// already closed candles; the last one is the current step.
func BuildSnapshot(symbol string, window []domain.Candle) (*Snapshot, error) {
	if len(window) < MinWindow {
		return nil, fmt.Errorf("%w: %d candles, need %d", ErrInsufficientData, len(window), MinWindow)
	}
	for _, c := range window {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMarketData, err)
		}
	}

	momentum, err := MomentumScore(window)
	if err != nil {
		return nil, err
	}
	trend, err := TrendScore(window)
	if err != nil {
		return nil, err
	}
	rangePct, err := VolatilityRange(window)
	if err != nil {
		return nil, err
	}
	vol, err := StepVolatility(window)
	if err != nil {
		return nil, err
	}
	step, err := StepChangePct(window)
	if err != nil {
		return nil, err
	}
	aligned, err := EMAAligned(window)
	if err != nil {
		return nil, err
	}

	high, low := Extremes(window)
	var notional float64
	for _, c := range window {
		notional += c.Notional()
	}
	last := window[len(window)-1]

	return &Snapshot{
		Symbol:         symbol,
		Time:           last.OpenTime,
		Price:          last.Close,
		High:           high,
		Low:            low,
		Momentum:       momentum,
		Trend:          trend,
		RangePct:       rangePct,
		Volatility:     vol,
		StepChangePct:  step,
		NotionalVolume: notional,
		EMAAligned:     aligned,
		Fib:            FibonacciLevels(high, low),
		Candles:        len(window),
	}, nil
}
