package indicator

import (
	"fmt"
	"math"

	"signal-lab/internal/domain"
)

// VolatilityRange is an ATR proxy: (window high - window low) / last close * 100.
func VolatilityRange(window []domain.Candle) (float64, error) {
	if err := checkWindow(window); err != nil {
		return 0, err
	}
	high, low := Extremes(window)
	return (high - low) / window[len(window)-1].Close * 100, nil
}

// StepVolatility is the mean absolute close-to-close change over the window in percent.
func StepVolatility(window []domain.Candle) (float64, error) {
	if err := checkWindow(window); err != nil {
		return 0, err
	}
	var sum float64
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		if !validPrice(prev) {
			return 0, fmt.Errorf("%w: close %v at %d", ErrInvalidMarketData, prev, i-1)
		}
		sum += math.Abs(window[i].Close-prev) / prev * 100
	}
	return sum / float64(len(window)-1), nil
}

// Extremes returns the highest high and lowest low of the window.
func Extremes(window []domain.Candle) (high, low float64) {
	if len(window) == 0 {
		return 0, 0
	}
	high, low = window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}
