package pipeline

import (
	"context"
	"reflect"
	"testing"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage/memory"
)

func TestFixtureSeries(t *testing.T) {
	a := FixtureSeries(7, FixtureStart, domain.Interval1h, 500, 100)
	b := FixtureSeries(7, FixtureStart, domain.Interval1h, 500, 100)
	c := FixtureSeries(8, FixtureStart, domain.Interval1h, 500, 100)

	if len(a) != 500 {
		t.Fatalf("expected 500 candles, got %d", len(a))
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different series")
	}
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds produced the same series")
	}

	for i, candle := range a {
		if err := candle.Validate(); err != nil {
			t.Fatalf("candle %d invalid: %v", i, err)
		}
		if candle.High < candle.Open || candle.High < candle.Close || candle.Low > candle.Open || candle.Low > candle.Close {
			t.Fatalf("candle %d: body outside wicks %+v", i, candle)
		}
		if i > 0 {
			if !candle.OpenTime.After(a[i-1].OpenTime) {
				t.Fatalf("candle %d not after previous", i)
			}
			if candle.Open != a[i-1].Close {
				t.Fatalf("candle %d does not open at previous close", i)
			}
		}
	}
}

func TestLoadFixtureCandles(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCandleStore()
	if err := LoadFixtureCandles(ctx, store, domain.Interval1h); err != nil {
		t.Fatalf("LoadFixtureCandles failed: %v", err)
	}

	for _, symbol := range FixtureSymbols {
		got, err := store.GetRange(ctx, symbol, domain.Interval1h, FixtureStart, FixtureEnd(domain.Interval1h))
		if err != nil {
			t.Fatalf("GetRange %s: %v", symbol, err)
		}
		if len(got) != FixtureCandles {
			t.Errorf("%s: expected %d candles, got %d", symbol, FixtureCandles, len(got))
		}
	}
}
