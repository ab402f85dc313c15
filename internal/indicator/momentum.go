package indicator

import (
	"fmt"

	"signal-lab/internal/domain"
)

// MomentumScale maps one percent of window price change to oscillator points.
const MomentumScale = 5.0

// MomentumScore is an RSI proxy in [0, 100]: 50 + MomentumScale * change%,
// where change% is the first-to-last close change over the window.
func MomentumScore(window []domain.Candle) (float64, error) {
	if err := checkWindow(window); err != nil {
		return 0, err
	}
	change, err := ChangePct(window)
	if err != nil {
		return 0, err
	}
	return clamp(50+MomentumScale*change, 0, 100), nil
}

// ChangePct returns the first-to-last close change over the window in percent.
func ChangePct(window []domain.Candle) (float64, error) {
	if err := checkWindow(window); err != nil {
		return 0, err
	}
	first := window[0].Close
	if !validPrice(first) {
		return 0, fmt.Errorf("%w: first close %v", ErrInvalidMarketData, first)
	}
	last := window[len(window)-1].Close
	return (last - first) / first * 100, nil
}

// StepChangePct returns the last close-to-close change in percent.
func StepChangePct(window []domain.Candle) (float64, error) {
	if err := checkWindow(window); err != nil {
		return 0, err
	}
	prev := window[len(window)-2].Close
	if !validPrice(prev) {
		return 0, fmt.Errorf("%w: previous close %v", ErrInvalidMarketData, prev)
	}
	last := window[len(window)-1].Close
	return (last - prev) / prev * 100, nil
}
