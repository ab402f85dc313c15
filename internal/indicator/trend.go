package indicator

import "signal-lab/internal/domain"

// TrendScore is a MACD proxy: (EMA_fast - EMA_slow) / last close * 100.
// Positive means bullish bias; magnitude is strength.
func TrendScore(window []domain.Candle) (float64, error) {
	if err := checkWindow(window); err != nil {
		return 0, err
	}
	cs := closes(window)
	fast := EMA(cs, FastPeriod)
	slow := EMA(cs, SlowPeriod)
	return (fast - slow) / cs[len(cs)-1] * 100, nil
}

// EMAAligned reports whether close >= fast EMA >= slow EMA with close above the slow EMA.
func EMAAligned(window []domain.Candle) (bool, error) {
	if err := checkWindow(window); err != nil {
		return false, err
	}
	cs := closes(window)
	last := cs[len(cs)-1]
	fast := EMA(cs, FastPeriod)
	slow := EMA(cs, SlowPeriod)
	return last >= fast && fast >= slow && last > slow, nil
}
