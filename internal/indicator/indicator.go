// Package indicator computes simplified technical indicators over a trailing candle window.
//
// MomentumScore and TrendScore are deliberately approximate proxies for RSI and MACD:
// they are deterministic black-box scalars, not textbook formulas.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"signal-lab/internal/domain"
)

var (
	// ErrInsufficientData is returned when a window has fewer than MinWindow candles.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidMarketData is returned for non-positive or NaN price inputs.
	ErrInvalidMarketData = errors.New("invalid market data")
)

// MinWindow is the smallest window any indicator accepts.
const MinWindow = 2

// EMA periods for the trend proxy.
const (
	FastPeriod = 5
	SlowPeriod = 13
)

// checkWindow rejects short windows and a zero or invalid last close.
func checkWindow(window []domain.Candle) error {
	if len(window) < MinWindow {
		return fmt.Errorf("%w: %d candles, need %d", ErrInsufficientData, len(window), MinWindow)
	}
	last := window[len(window)-1].Close
	if !validPrice(last) {
		return fmt.Errorf("%w: last close %v", ErrInvalidMarketData, last)
	}
	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func closes(window []domain.Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Close
	}
	return out
}

// EMA returns the exponential moving average of values seeded at the first value.
// A constant series yields exactly that constant.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period < 1 {
		period = 1
	}
	alpha := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema += alpha * (v - ema)
	}
	return ema
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
