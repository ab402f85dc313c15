package learning

import (
	"sort"
	"sync"

	"signal-lab/internal/domain"
)

// DefaultMaxCandles bounds how long a signal stays pending before it resolves Neutral.
const DefaultMaxCandles = 48

// Resolved is a signal whose outcome is final.
type Resolved struct {
	Signal     *domain.Signal
	Outcome    domain.Outcome
	Resolution Resolution
	Candles    int // candles observed before resolution
}

type pending struct {
	signal  *domain.Signal
	res     Resolution
	candles int
}

// Monitor tracks open signals and resolves them as candles arrive.
// A signal resolves on its first non-Neutral classification or, after
// maxCandles observations, as Neutral at the latest close.
type Monitor struct {
	mu         sync.Mutex
	maxCandles int
	pending    map[string]*pending // keyed by signal id
}

// NewMonitor creates a monitor. maxCandles <= 0 uses DefaultMaxCandles.
func NewMonitor(maxCandles int) *Monitor {
	if maxCandles <= 0 {
		maxCandles = DefaultMaxCandles
	}
	return &Monitor{
		maxCandles: maxCandles,
		pending:    make(map[string]*pending),
	}
}

// Add starts tracking sig. Re-adding a tracked signal is a no-op.
func (m *Monitor) Add(sig *domain.Signal) {
	if sig == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[sig.ID]; ok {
		return
	}
	m.pending[sig.ID] = &pending{signal: sig}
}

// Pending returns the number of unresolved signals.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Observe feeds a candle for symbol and returns the signals it resolved,
// ordered by signal creation time then id. Candles at or before a signal's
// creation time are ignored for that signal.
func (m *Monitor) Observe(symbol string, c domain.Candle) []Resolved {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Resolved
	for id, p := range m.pending {
		if p.signal.Symbol != symbol || !c.OpenTime.After(p.signal.CreatedAt) {
			continue
		}

		p.observe(c)
		outcome := Classify(p.signal, p.res)
		if outcome == domain.OutcomeNeutral && p.candles < m.maxCandles {
			continue
		}

		out = append(out, Resolved{Signal: p.signal, Outcome: outcome, Resolution: p.res, Candles: p.candles})
		delete(m.pending, id)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Signal, out[j].Signal
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (p *pending) observe(c domain.Candle) {
	if p.candles == 0 {
		p.res.High = c.High
		p.res.Low = c.Low
	} else {
		p.res.High = max(p.res.High, c.High)
		p.res.Low = min(p.res.Low, c.Low)
	}
	p.res.Current = c.Close
	p.candles++
}

// ResolveForward classifies sig over the candles that follow it, the way a
// Monitor would. With no candles the outcome is Neutral at the entry price.
func ResolveForward(sig *domain.Signal, candles []domain.Candle, maxCandles int) Resolved {
	if maxCandles <= 0 {
		maxCandles = DefaultMaxCandles
	}

	p := &pending{signal: sig}
	for _, c := range candles {
		if p.candles >= maxCandles {
			break
		}
		p.observe(c)
		if outcome := Classify(sig, p.res); outcome != domain.OutcomeNeutral {
			return Resolved{Signal: sig, Outcome: outcome, Resolution: p.res, Candles: p.candles}
		}
	}

	if p.candles == 0 {
		p.res = Resolution{High: sig.EntryPrice, Low: sig.EntryPrice, Current: sig.EntryPrice}
	}
	return Resolved{Signal: sig, Outcome: domain.OutcomeNeutral, Resolution: p.res, Candles: p.candles}
}
