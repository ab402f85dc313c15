package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/storage"
)

// Fixture data parameters
var (
	FixtureSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	FixtureStart   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// FixtureCandles is the length of every fixture series.
const FixtureCandles = 60 * 24

var fixturePrices = map[string]float64{
	"BTCUSDT": 42_000,
	"ETHUSDT": 2_300,
	"SOLUSDT": 100,
}

// regime is a stretch of candles with a common drift per candle.
type regime struct {
	drift float64
	noise float64
}

var fixtureRegimes = []regime{
	{drift: 0.003, noise: 0.006},  // trend up
	{drift: 0, noise: 0.004},      // range
	{drift: -0.003, noise: 0.008}, // trend down
	{drift: 0.001, noise: 0.012},  // volatile drift
}

// regimeLength is the number of candles before the regime may change.
const regimeLength = 96

// FixtureSeries returns n candles of a seeded random walk that alternates
// between trending and ranging regimes. Equal inputs give equal series.
func FixtureSeries(seed uint64, start time.Time, interval domain.Interval, n int, startPrice float64) []domain.Candle {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	step := interval.Duration()

	out := make([]domain.Candle, n)
	price := startPrice
	current := fixtureRegimes[0]
	for i := range out {
		if i > 0 && i%regimeLength == 0 {
			current = fixtureRegimes[rng.IntN(len(fixtureRegimes))]
		}

		open := price
		ret := current.drift + rng.NormFloat64()*current.noise
		closePrice := open * math.Max(0.5, 1+ret)
		wick := math.Abs(rng.NormFloat64()) * current.noise / 2
		notional := 200_000 + rng.Float64()*1_800_000

		out[i] = domain.Candle{
			OpenTime: start.Add(time.Duration(i) * step).UTC(),
			Open:     open,
			High:     math.Max(open, closePrice) * (1 + wick),
			Low:      math.Min(open, closePrice) * (1 - wick),
			Close:    closePrice,
			Volume:   notional / closePrice,
		}
		price = closePrice
	}
	return out
}

// LoadFixtureCandles writes a FixtureCandles-long series per fixture symbol.
func LoadFixtureCandles(ctx context.Context, store storage.CandleStore, interval domain.Interval) error {
	for i, symbol := range FixtureSymbols {
		series := FixtureSeries(uint64(i+1), FixtureStart, interval, FixtureCandles, fixturePrices[symbol])
		if err := store.InsertBulk(ctx, symbol, interval, series); err != nil {
			return fmt.Errorf("load %s fixtures: %w", symbol, err)
		}
	}
	return nil
}

// FixtureEnd returns the exclusive end of the fixture series for interval.
func FixtureEnd(interval domain.Interval) time.Time {
	return FixtureStart.Add(time.Duration(FixtureCandles) * interval.Duration())
}
