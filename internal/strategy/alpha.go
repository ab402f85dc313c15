package strategy

import (
	"context"
	"math"

	"signal-lab/internal/domain"
	"signal-lab/internal/indicator"
)

// Alpha parameters
const (
	alphaBaseConfidence = 0.7
	alphaMaxConfidence  = 0.95
	alphaMinRangePct    = 0.5
	alphaRiskFraction   = 0.10
	alphaStopPct        = 0.03
)

var (
	alphaTargetPcts  = []float64{0.02, 0.05, 0.08}
	alphaRangeFactor = []float64{0.5, 1.0, 1.5}
)

// AlphaStrategy is the momentum variant: it follows the trend bias and scales
// confidence with volume and range.
type AlphaStrategy struct {
	thresholds  domain.GateThresholds
	maxLeverage int
}

// NewAlphaStrategy creates the momentum variant.
func NewAlphaStrategy(cfg domain.EngineConfig) *AlphaStrategy {
	return &AlphaStrategy{
		thresholds:  thresholdsOrDefault(cfg.Thresholds),
		maxLeverage: domain.DefaultMaxLeverage,
	}
}

// ID returns the strategy identifier.
func (s *AlphaStrategy) ID() string {
	return AlphaID
}

// Generate emits a Buy when the trend is positive with more than 1% range,
// otherwise a Sell. A window with no trend or almost no range yields nothing.
func (s *AlphaStrategy) Generate(ctx context.Context, symbol string, snap *indicator.Snapshot) (*domain.Signal, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if snap.Trend == 0 || snap.RangePct < alphaMinRangePct {
		return nil, nil
	}

	dir := domain.DirectionSell
	if snap.Trend > 0 && snap.RangePct > 1 {
		dir = domain.DirectionBuy
	}

	conf := alphaBaseConfidence
	if snap.NotionalVolume > s.thresholds.HighVolume {
		conf += 0.1
	}
	if snap.RangePct > 2 {
		conf += 0.1
	}
	if snap.RangePct > 5 {
		conf += 0.1
	}
	conf = math.Min(roundConfidence(conf), alphaMaxConfidence)

	p := snap.Price
	targets := make([]float64, len(alphaTargetPcts))
	stop := p * (1 - alphaStopPct)
	for i, pct := range alphaTargetPcts {
		offset := alphaRangeFactor[i] * snap.RangePct / 100 * p
		if dir == domain.DirectionBuy {
			targets[i] = math.Max(p*(1+pct), p+offset)
		} else {
			targets[i] = math.Min(p*(1-pct), p-offset)
		}
	}
	if dir == domain.DirectionSell {
		stop = p * (1 + alphaStopPct)
	}

	leverage := clampInt(floorLeverage(conf*15/(snap.Volatility/2+1)), 1, s.maxLeverage)

	return buildSignal(s.ID(), symbol, snap, signalSpec{
		direction:    dir,
		targets:      targets,
		stop:         stop,
		confidence:   conf,
		leverage:     leverage,
		riskFraction: alphaRiskFraction,
	})
}

// Ensure AlphaStrategy implements Strategy
var _ Strategy = (*AlphaStrategy)(nil)
