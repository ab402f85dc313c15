package ingestion

import (
	"errors"
	"fmt"
	"sort"

	"signal-lab/internal/domain"
)

// ErrInvalidOrdering is returned when candles are not strictly increasing by open time.
var ErrInvalidOrdering = errors.New("candles are not in strictly increasing order")

// SortCandles orders candles by open time ASC.
func SortCandles(candles []domain.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})
}

// ValidateCandleOrdering checks that open times strictly increase.
// Returns ErrInvalidOrdering if not.
func ValidateCandleOrdering(candles []domain.Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: index %d at %s", ErrInvalidOrdering, i, candles[i].OpenTime)
		}
	}
	return nil
}

// window is the trailing candle series of one symbol.
// Candles not after the latest one are rejected, so replays after a
// reconnect never reach the strategy twice.
type window struct {
	size    int
	candles []domain.Candle
}

func newWindow(size int) *window {
	return &window{size: size, candles: make([]domain.Candle, 0, size)}
}

// push appends c and reports whether it was accepted.
func (w *window) push(c domain.Candle) bool {
	if n := len(w.candles); n > 0 && !c.OpenTime.After(w.candles[n-1].OpenTime) {
		return false
	}
	if len(w.candles) == w.size {
		copy(w.candles, w.candles[1:])
		w.candles = w.candles[:w.size-1]
	}
	w.candles = append(w.candles, c)
	return true
}

// snapshot returns a copy of the current series.
func (w *window) snapshot() []domain.Candle {
	return append([]domain.Candle(nil), w.candles...)
}
