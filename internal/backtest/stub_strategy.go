package backtest

import (
	"context"
	"sync"
	"time"

	"signal-lab/internal/domain"
	"signal-lab/internal/idhash"
	"signal-lab/internal/indicator"
	"signal-lab/internal/strategy"
)

// ScriptedSignal describes a signal relative to the snapshot price.
type ScriptedSignal struct {
	Direction  domain.Direction
	TargetPcts []float64 // distance of each target from entry, in percent
	StopPct    float64   // distance of the stop from entry, in percent
	Leverage   int
	Risk       float64 // risk fraction
	Err        error   // returned instead of a signal when set
}

// StubStrategy replays a fixed script keyed by snapshot time.
// It records every snapshot time it was asked about.
type StubStrategy struct {
	mu     sync.Mutex
	id     string
	script map[int64]ScriptedSignal
	calls  []time.Time
}

// NewStubStrategy creates a stub strategy that signals per script.
func NewStubStrategy(id string, script map[time.Time]ScriptedSignal) *StubStrategy {
	s := &StubStrategy{id: id, script: make(map[int64]ScriptedSignal, len(script))}
	for t, sig := range script {
		s.script[t.UnixMilli()] = sig
	}
	return s
}

// Generate returns the scripted signal for the snapshot time, if any.
func (s *StubStrategy) Generate(_ context.Context, symbol string, snap *indicator.Snapshot) (*domain.Signal, error) {
	s.mu.Lock()
	s.calls = append(s.calls, snap.Time)
	step, ok := s.script[snap.Time.UnixMilli()]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}
	if step.Err != nil {
		return nil, step.Err
	}

	sign := 1.0
	if step.Direction == domain.DirectionSell {
		sign = -1.0
	}
	targets := make([]float64, len(step.TargetPcts))
	for i, pct := range step.TargetPcts {
		targets[i] = snap.Price * (1 + sign*pct/100)
	}
	leverage := step.Leverage
	if leverage == 0 {
		leverage = 1
	}
	risk := step.Risk
	if risk == 0 {
		risk = 0.1
	}

	return domain.NewSignal(domain.Signal{
		ID:           idhash.ComputeSignalID(symbol, s.id, snap.Time.UnixMilli(), step.Direction.String(), snap.Price),
		Symbol:       symbol,
		Direction:    step.Direction,
		EntryPrice:   snap.Price,
		Targets:      targets,
		StopLoss:     snap.Price * (1 - sign*step.StopPct/100),
		Confidence:   0.5,
		Leverage:     leverage,
		RiskFraction: risk,
		StrategyID:   s.id,
		CreatedAt:    snap.Time,
		Context:      snap.Context(),
	})
}

// ID returns the strategy identifier.
func (s *StubStrategy) ID() string {
	return s.id
}

// Calls returns the snapshot times seen so far.
func (s *StubStrategy) Calls() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.calls...)
}

// Ensure StubStrategy implements strategy.Strategy
var _ strategy.Strategy = (*StubStrategy)(nil)
