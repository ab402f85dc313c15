package domain

import "time"

// Outcome is the resolution class of a signal.
type Outcome string

// Outcome values, best first
const (
	OutcomeTP3     Outcome = "TP3"
	OutcomeTP2     Outcome = "TP2"
	OutcomeTP1     Outcome = "TP1"
	OutcomeSL      Outcome = "SL"
	OutcomeNeutral Outcome = "Neutral"
)

// AllOutcomes lists every outcome in histogram order.
var AllOutcomes = []Outcome{OutcomeTP1, OutcomeTP2, OutcomeTP3, OutcomeSL, OutcomeNeutral}

// IsWin returns true for take-profit outcomes.
func (o Outcome) IsWin() bool {
	return o == OutcomeTP1 || o == OutcomeTP2 || o == OutcomeTP3
}

// IsValid returns true if the outcome is a known value.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeTP1, OutcomeTP2, OutcomeTP3, OutcomeSL, OutcomeNeutral:
		return true
	}
	return false
}

// Mode separates learning histories by where a signal was produced.
type Mode string

// Mode values
const (
	ModeBacktest Mode = "backtest"
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
	ModeSignal   Mode = "signal"
)

// IsValid returns true if the mode is a known value.
func (m Mode) IsValid() bool {
	switch m {
	case ModeBacktest, ModePaper, ModeLive, ModeSignal:
		return true
	}
	return false
}

// String returns the string representation.
func (m Mode) String() string {
	return string(m)
}

// SignalRecord is one classified signal in the append-only learning log.
type SignalRecord struct {
	ID          string // deterministic: signal id + mode
	Mode        Mode
	Symbol      string
	Direction   Direction
	Entry       float64
	Targets     []float64
	Stop        float64
	Outcome     Outcome
	ImpactScore float64 // rounded to 4 dp
	Confidence  float64
	MLScore     *float64 // nullable
	Executed    bool     // a position was opened from the signal
	StrategyID  string
	Timestamp   time.Time // signal creation time
}
