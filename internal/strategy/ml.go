package strategy

import (
	"context"
	"math"

	"signal-lab/internal/domain"
	"signal-lab/internal/indicator"
)

// ML parameters
const (
	mlBaseConfidence = 0.7
	mlMinConfidence  = 0.5
	mlMaxConfidence  = 0.95
	mlRiskFraction   = 0.10
	mlStopFactor     = 1.5
	mlRangeFeature   = 2.0 // range percent above which the volatility feature fires
)

var mlTargetFactors = []float64{0.5, 1.0, 1.5}

// MLStrategy averages five boolean features into a model score and adds an
// external sentiment term. It only ever emits Buy signals.
type MLStrategy struct {
	thresholds domain.GateThresholds
	sentiment  SentimentSource
}

// NewMLStrategy creates the model-driven variant. A nil source defaults to a
// seeded source built from cfg.Seed.
func NewMLStrategy(cfg domain.EngineConfig, sentiment SentimentSource) *MLStrategy {
	if sentiment == nil {
		sentiment = NewSeededSentiment(cfg.Seed)
	}
	return &MLStrategy{
		thresholds: thresholdsOrDefault(cfg.Thresholds),
		sentiment:  sentiment,
	}
}

// ID returns the strategy identifier.
func (s *MLStrategy) ID() string {
	return MLID
}

// Score returns the mean of the five model features in [0, 1].
func (s *MLStrategy) Score(snap *indicator.Snapshot) float64 {
	g := evaluateGates(snap, s.thresholds)
	features := []bool{
		g.oversold,
		g.macdBullish,
		snap.NotionalVolume > 2*s.thresholds.HighVolume,
		g.emaAlign,
		snap.RangePct > mlRangeFeature,
	}
	var sum float64
	for _, f := range features {
		if f {
			sum++
		}
	}
	return sum / float64(len(features))
}

// Generate emits a Buy only when the long condition (oversold, bullish trend,
// EMA alignment, volume spike) holds.
func (s *MLStrategy) Generate(ctx context.Context, symbol string, snap *indicator.Snapshot) (*domain.Signal, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	g := evaluateGates(snap, s.thresholds)
	if !(g.oversold && g.macdBullish && g.emaAlign && g.volumeSpike) {
		return nil, nil
	}

	score := s.Score(snap)
	sentiment := clampFloat(s.sentiment.Sentiment(symbol, snap.Time), MinSentiment, MaxSentiment)
	conf := clampFloat(roundConfidence(mlBaseConfidence+score*0.2+sentiment*0.01), mlMinConfidence, mlMaxConfidence)

	p := snap.Price
	unit := snap.RangePct / 100 * p
	targets := make([]float64, len(mlTargetFactors))
	for i, f := range mlTargetFactors {
		targets[i] = p + f*unit
	}

	return buildSignal(s.ID(), symbol, snap, signalSpec{
		direction:    domain.DirectionBuy,
		targets:      targets,
		stop:         p - mlStopFactor*unit,
		confidence:   conf,
		leverage:     clampInt(floorLeverage(conf*10), 1, domain.DefaultMaxLeverage),
		riskFraction: mlRiskFraction,
		mlScore:      &score,
		sentiment:    math.Round(sentiment*100) / 100,
	})
}

// Ensure MLStrategy implements Strategy
var _ Strategy = (*MLStrategy)(nil)
