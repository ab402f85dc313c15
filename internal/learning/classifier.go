// Package learning classifies how signals played out and keeps the
// append-only record used for win-rate and impact rollups.
package learning

import (
	"math"

	"signal-lab/internal/domain"
)

// StopLossPct is the adverse move, relative to entry, that classifies a signal as SL.
const StopLossPct = 0.10

// ImpactPrecision is the number of decimal places impact scores are rounded to.
const ImpactPrecision = 4

// Resolution holds the price extremes observed after a signal was issued.
type Resolution struct {
	High    float64 // highest high since the signal
	Low     float64 // lowest low since the signal
	Current float64 // latest close
}

// Classify maps a signal and the subsequent extremes to an outcome.
// Targets are checked furthest first; only targets the signal carries count.
func Classify(sig *domain.Signal, res Resolution) domain.Outcome {
	if sig == nil {
		return domain.OutcomeNeutral
	}

	tps := []domain.Outcome{domain.OutcomeTP1, domain.OutcomeTP2, domain.OutcomeTP3}
	for k := min(len(sig.Targets), len(tps)) - 1; k >= 0; k-- {
		t := sig.Targets[k]
		if sig.Direction == domain.DirectionSell {
			if res.Low > 0 && res.Low <= t {
				return tps[k]
			}
			continue
		}
		if res.High >= t {
			return tps[k]
		}
	}

	if sig.Direction == domain.DirectionSell {
		if res.High >= sig.EntryPrice*(1+StopLossPct) {
			return domain.OutcomeSL
		}
		return domain.OutcomeNeutral
	}
	if res.Low > 0 && res.Low <= sig.EntryPrice*(1-StopLossPct) {
		return domain.OutcomeSL
	}
	return domain.OutcomeNeutral
}

// ImpactOptions selects the optional score multipliers.
type ImpactOptions struct {
	WeightConfidence bool // multiply by the signal's confidence
	WeightMLScore    bool // multiply by the signal's ML score when present
}

// ImpactScore returns |hit - ref| / ref rounded to ImpactPrecision.
// Wins and Sell stops score the extreme that produced the outcome against
// entry, except Sell targets which measure entry against the low. A Buy stop
// scores the fixed StopLossPct move. Neutral has no impact.
func ImpactScore(sig *domain.Signal, outcome domain.Outcome, res Resolution, opts ImpactOptions) float64 {
	if sig == nil || sig.EntryPrice <= 0 {
		return 0
	}

	entry := sig.EntryPrice
	hit, ref := 0.0, entry
	sell := sig.Direction == domain.DirectionSell
	switch {
	case outcome.IsWin() && !sell, outcome == domain.OutcomeSL && sell:
		hit = res.High
	case outcome.IsWin() && sell:
		hit, ref = entry, res.Low
	case outcome == domain.OutcomeSL:
		hit = entry * (1 - StopLossPct)
	default:
		return 0
	}
	if hit <= 0 || ref <= 0 || math.IsNaN(hit) || math.IsNaN(ref) {
		return 0
	}

	score := math.Abs(hit-ref) / ref
	if opts.WeightConfidence {
		score *= sig.Confidence
	}
	if opts.WeightMLScore && sig.MLScore != nil {
		score *= *sig.MLScore
	}
	return round(score, ImpactPrecision)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
