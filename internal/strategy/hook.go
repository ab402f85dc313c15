package strategy

import (
	"context"
	"math"

	"signal-lab/internal/domain"
	"signal-lab/internal/indicator"
)

// Hook parameters
const (
	hookBaseConfidence = 0.6
	hookMaxConfidence  = 0.9
	hookStopPct        = 0.03
	hookBandBuffer     = 0.005 // below the 0.618 level
	hookRewardRatio    = 2.0
	hookMaxLeverage    = 2.5
	hookRiskFraction   = 0.10
)

// HookStrategy buys pullbacks into the 0.618-0.382 order block once momentum
// recovers. The stop sits under the band edge so high leverage is rarely liquidated.
type HookStrategy struct {
	thresholds domain.GateThresholds
}

// NewHookStrategy creates the order-block variant.
func NewHookStrategy(cfg domain.EngineConfig) *HookStrategy {
	return &HookStrategy{thresholds: thresholdsOrDefault(cfg.Thresholds)}
}

// ID returns the strategy identifier.
func (s *HookStrategy) ID() string {
	return HookID
}

// Generate emits a long-only signal inside the order block.
func (s *HookStrategy) Generate(ctx context.Context, symbol string, snap *indicator.Snapshot) (*domain.Signal, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	g := evaluateGates(snap, s.thresholds)
	recovering := snap.Momentum >= RecoveryMomentum && snap.StepChangePct > 0
	if !g.inOrderBlock || !recovering || snap.Trend <= 0 {
		return nil, nil
	}

	p := snap.Price
	stop := math.Min(p*(1-hookStopPct), snap.Fib.L618*(1-hookBandBuffer))
	risk := p - stop
	targets := []float64{
		p + risk*1.2,
		p + risk*hookRewardRatio,
		p + risk*hookRewardRatio*1.8,
	}

	conf := hookBaseConfidence
	if g.volumeSpike {
		conf += 0.1
	}
	if g.emaAlign {
		conf += 0.1
	}
	if g.oversold {
		conf += 0.1
	}
	conf = math.Min(roundConfidence(conf), hookMaxConfidence)

	return buildSignal(s.ID(), symbol, snap, signalSpec{
		direction:    domain.DirectionBuy,
		targets:      targets,
		stop:         stop,
		confidence:   conf,
		leverage:     clampInt(floorLeverage(math.Min(hookMaxLeverage, 1.5+conf)), 1, domain.DefaultMaxLeverage),
		riskFraction: hookRiskFraction * conf,
		tier:         "order_block",
	})
}

// Ensure HookStrategy implements Strategy
var _ Strategy = (*HookStrategy)(nil)
