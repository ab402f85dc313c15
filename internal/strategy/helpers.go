package strategy

import (
	"fmt"
	"math"

	"signal-lab/internal/domain"
	"signal-lab/internal/idhash"
	"signal-lab/internal/indicator"
)

// Momentum and trend gate levels shared by variants.
const (
	OversoldMomentum   = 35.0 // window drop of more than 3%
	RecoveryMomentum   = 25.0 // not deeper than a 5% drop
	OverboughtMomentum = 75.0 // window gain of more than 5%
	TrendRangeMin      = 1.0  // minimum range percent for a trend gate
)

// gates are the boolean conditions variants combine.
type gates struct {
	oversold     bool
	recovering   bool
	overbought   bool
	macdBullish  bool
	macdBearish  bool
	validVolume  bool
	volumeSpike  bool
	highVolume   bool
	emaAlign     bool
	inFibZone    bool
	inWideZone   bool
	inOrderBlock bool
}

func evaluateGates(snap *indicator.Snapshot, th domain.GateThresholds) gates {
	oversold := snap.Momentum < OversoldMomentum
	return gates{
		oversold:     oversold,
		recovering:   oversold && snap.Momentum > RecoveryMomentum,
		overbought:   snap.Momentum > OverboughtMomentum,
		macdBullish:  snap.Trend > 0 && snap.RangePct > TrendRangeMin,
		macdBearish:  snap.Trend < 0 && snap.RangePct > TrendRangeMin,
		validVolume:  snap.NotionalVolume > th.MinVolume,
		volumeSpike:  snap.NotionalVolume > th.SpikeVolume,
		highVolume:   snap.NotionalVolume > th.HighVolume,
		emaAlign:     snap.EMAAligned,
		inFibZone:    snap.Fib.InZone(snap.Price),
		inWideZone:   snap.Fib.InWideZone(snap.Price),
		inOrderBlock: snap.Fib.InOrderBlock(snap.Price),
	}
}

// thresholdsOrDefault fills zero thresholds with the engine defaults.
func thresholdsOrDefault(th domain.GateThresholds) domain.GateThresholds {
	def := domain.DefaultEngineConfig().Thresholds
	if th.MinVolume <= 0 {
		th.MinVolume = def.MinVolume
	}
	if th.SpikeVolume <= 0 {
		th.SpikeVolume = def.SpikeVolume
	}
	if th.HighVolume <= 0 {
		th.HighVolume = def.HighVolume
	}
	return th
}

// signalSpec carries the variant-specific parts of a signal.
type signalSpec struct {
	direction    domain.Direction
	targets      []float64
	stop         float64
	confidence   float64
	leverage     int
	riskFraction float64
	mlScore      *float64
	tier         string
	sentiment    float64
}

// buildSignal assembles and validates a signal for the snapshot.
// Errors wrap domain.ErrInvalidSignal.
func buildSignal(strategyID, symbol string, snap *indicator.Snapshot, spec signalSpec) (*domain.Signal, error) {
	ctx := snap.Context()
	ctx.Tier = spec.tier
	ctx.Sentiment = spec.sentiment

	sig, err := domain.NewSignal(domain.Signal{
		ID:           idhash.ComputeSignalID(symbol, strategyID, snap.Time.UnixMilli(), spec.direction.String(), snap.Price),
		Symbol:       symbol,
		Direction:    spec.direction,
		EntryPrice:   snap.Price,
		Targets:      spec.targets,
		StopLoss:     spec.stop,
		Confidence:   spec.confidence,
		Leverage:     spec.leverage,
		RiskFraction: spec.riskFraction,
		StrategyID:   strategyID,
		CreatedAt:    snap.Time,
		MLScore:      spec.mlScore,
		Context:      ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strategyID, err)
	}
	return sig, nil
}

// scaledTargets returns price*(1 + sign*m*pct/100) for each multiplier.
func scaledTargets(price, pct float64, dir domain.Direction, multipliers ...float64) []float64 {
	sign := 1.0
	if dir == domain.DirectionSell {
		sign = -1
	}
	out := make([]float64, len(multipliers))
	for i, m := range multipliers {
		out[i] = price * (1 + sign*m*pct/100)
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// floorLeverage floors v, treating values within 1e-9 of the next integer as that integer.
func floorLeverage(v float64) int {
	return int(math.Floor(v + 1e-9))
}

// roundConfidence rounds to two decimals so summed bumps compare exactly.
func roundConfidence(v float64) float64 {
	return math.Round(v*100) / 100
}
