package strategy

import (
	"context"
	"math"

	"signal-lab/internal/domain"
	"signal-lab/internal/indicator"
)

// bullTier is one confidence band with its own leverage and risk percentage.
type bullTier struct {
	confidence float64
	leverage   int
	risk       float64 // stop distance as a fraction of price
}

// Tiers, best first.
var (
	bullTierStrong   = bullTier{confidence: 0.9, leverage: 10, risk: 0.10}
	bullTierGood     = bullTier{confidence: 0.8, leverage: 7, risk: 0.15}
	bullTierModerate = bullTier{confidence: 0.7, leverage: 5, risk: 0.20}
	bullTierWeak     = bullTier{confidence: 0.6, leverage: 3, risk: 0.25}
)

// Bull entry kinds, recorded in the signal context.
const (
	BullEntryPrimary  = "primary"
	BullEntryFallback = "fallback"
	BullEntryShort    = "short"
	BullEntryTrend    = "trend"
)

var bullTargetMultipliers = []float64{1.5, 3, 5}

// BullStrategy combines momentum, trend, volume and Fibonacci gates into
// prioritized entries with tiered confidence.
type BullStrategy struct {
	thresholds domain.GateThresholds
}

// NewBullStrategy creates the trend variant.
func NewBullStrategy(cfg domain.EngineConfig) *BullStrategy {
	return &BullStrategy{thresholds: thresholdsOrDefault(cfg.Thresholds)}
}

// ID returns the strategy identifier.
func (s *BullStrategy) ID() string {
	return BullID
}

// tier picks the confidence band from the gates.
func (s *BullStrategy) tier(g gates) bullTier {
	switch {
	case g.oversold && g.macdBullish && g.volumeSpike && g.inFibZone:
		return bullTierStrong
	case g.macdBullish && g.recovering && g.volumeSpike:
		return bullTierGood
	case g.macdBullish && g.emaAlign:
		return bullTierModerate
	default:
		return bullTierWeak
	}
}

// Generate evaluates, in order: primary entry (all gates incl. recovering momentum
// and the 0.5-0.382 zone), fallback entry (0.618-0.5 zone), short entry (overbought
// with bearish trend) and finally a low-confidence trend-following default.
// No trend means no signal.
func (s *BullStrategy) Generate(ctx context.Context, symbol string, snap *indicator.Snapshot) (*domain.Signal, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if snap.RangePct <= 0 {
		return nil, nil
	}

	g := evaluateGates(snap, s.thresholds)
	t := s.tier(g)
	conf := t.confidence

	var dir domain.Direction
	var entry string
	switch {
	case g.oversold && g.recovering && g.macdBullish && g.emaAlign && g.volumeSpike && g.validVolume && g.inFibZone:
		dir, entry = domain.DirectionBuy, BullEntryPrimary
	case g.inWideZone && g.oversold && g.macdBullish && g.emaAlign && g.volumeSpike && g.validVolume:
		dir, entry = domain.DirectionBuy, BullEntryFallback
	case g.overbought && g.macdBearish && g.validVolume:
		dir, entry = domain.DirectionSell, BullEntryShort
	case snap.Trend > 0:
		dir, entry = domain.DirectionBuy, BullEntryTrend
		conf = math.Max(0.5, roundConfidence(conf*0.7))
	case snap.Trend < 0:
		dir, entry = domain.DirectionSell, BullEntryTrend
		conf = math.Max(0.5, roundConfidence(conf*0.7))
	default:
		return nil, nil
	}

	p := snap.Price
	stop := snap.Low - p*t.risk
	if dir == domain.DirectionSell {
		stop = snap.High + p*t.risk
	}

	return buildSignal(s.ID(), symbol, snap, signalSpec{
		direction:    dir,
		targets:      scaledTargets(p, snap.RangePct, dir, bullTargetMultipliers...),
		stop:         stop,
		confidence:   conf,
		leverage:     t.leverage,
		riskFraction: 0.5 * t.risk,
		tier:         entry,
	})
}

// Ensure BullStrategy implements Strategy
var _ Strategy = (*BullStrategy)(nil)
