// Package replay feeds archived candles back through the live signal loop
// in a deterministic order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/marketdata"
	"signal-lab/internal/storage"
)

// ErrInvalidOrdering is returned when candles are not properly ordered.
var ErrInvalidOrdering = errors.New("candles are not in deterministic order")

// Loader reads archived candles for replay.
type Loader struct {
	store storage.CandleStore
}

// NewLoader creates a new replay loader.
func NewLoader(store storage.CandleStore) *Loader {
	return &Loader{store: store}
}

// Load reads [from, to) for every symbol and merges the series.
// Candles are ordered by (open time, symbol) before replay.
func (l *Loader) Load(ctx context.Context, symbols []string, interval domain.Interval, from, to time.Time) ([]marketdata.StreamCandle, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("replay range: from %s not before to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	series := make(map[string][]domain.Candle, len(symbols))
	for _, symbol := range symbols {
		candles, err := l.store.GetRange(ctx, symbol, interval, from, to)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", symbol, err)
		}
		series[symbol] = candles
	}
	return MergeCandles(interval, series), nil
}

// MergeCandles flattens per-symbol series into one replay sequence.
func MergeCandles(interval domain.Interval, series map[string][]domain.Candle) []marketdata.StreamCandle {
	var out []marketdata.StreamCandle
	for symbol, candles := range series {
		for _, c := range candles {
			out = append(out, marketdata.StreamCandle{Symbol: symbol, Interval: interval, Candle: c})
		}
	}
	SortCandles(out)
	return out
}

// SortCandles sorts in place by (open time, symbol).
func SortCandles(candles []marketdata.StreamCandle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return less(candles[i], candles[j])
	})
}

// ValidateOrdering checks that candles are strictly ordered by (open time, symbol).
func ValidateOrdering(candles []marketdata.StreamCandle) error {
	for i := 1; i < len(candles); i++ {
		if !less(candles[i-1], candles[i]) {
			return fmt.Errorf("%w: %s %s at index %d", ErrInvalidOrdering,
				candles[i].Symbol, candles[i].Candle.OpenTime.Format(time.RFC3339), i)
		}
	}
	return nil
}

func less(a, b marketdata.StreamCandle) bool {
	if !a.Candle.OpenTime.Equal(b.Candle.OpenTime) {
		return a.Candle.OpenTime.Before(b.Candle.OpenTime)
	}
	return a.Symbol < b.Symbol
}
