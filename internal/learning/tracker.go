package learning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"signal-lab/internal/domain"
	"signal-lab/internal/idhash"
	"signal-lab/internal/observability"
	"signal-lab/internal/storage"
)

// ErrInvalidMode is returned for a mode outside backtest, paper, live and signal.
var ErrInvalidMode = errors.New("invalid learning mode")

// Rollup aggregates the records of one (mode, symbol) pair, or of a whole mode
// when Symbol is empty. Derived on read, never stored.
type Rollup struct {
	Mode           domain.Mode            `json:"mode"`
	Symbol         string                 `json:"symbol,omitempty"`
	Total          int                    `json:"total"`
	Wins           int                    `json:"wins"`
	WinRate        float64                `json:"win_rate"`         // percent, 2 dp
	AvgImpactScore float64                `json:"avg_impact_score"` // 4 dp
	Outcomes       map[domain.Outcome]int `json:"outcomes"`
}

// Summary is the rollup of a whole mode plus one rollup per symbol.
type Summary struct {
	Overall Rollup   `json:"overall"`
	Symbols []Rollup `json:"symbols"`
}

// TrackerOptions configures Tracker.
type TrackerOptions struct {
	Impact ImpactOptions
	Logger *log.Logger
}

// Tracker appends classified signals and derives rollups.
type Tracker struct {
	store  storage.SignalRecordStore
	impact ImpactOptions
	logger *log.Logger
}

// NewTracker creates a tracker over store.
func NewTracker(store storage.SignalRecordStore, opts TrackerOptions) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{store: store, impact: opts.Impact, logger: logger}
}

// Record appends the resolved signal under mode. Recording the same signal
// twice in a mode is a no-op that returns the record.
func (t *Tracker) Record(ctx context.Context, mode domain.Mode, r Resolved, executed bool) (*domain.SignalRecord, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if r.Signal == nil {
		return nil, storage.ErrInvalidInput
	}

	rec := NewRecord(mode, r, executed, t.impact)
	if err := t.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return rec, nil
		}
		return nil, fmt.Errorf("record signal %s: %w", r.Signal.ID, err)
	}

	observability.RecordClassified(string(mode), string(rec.Outcome))
	return rec, nil
}

// NewRecord builds the learning record for a resolved signal.
func NewRecord(mode domain.Mode, r Resolved, executed bool, impact ImpactOptions) *domain.SignalRecord {
	sig := r.Signal
	rec := &domain.SignalRecord{
		ID:          idhash.ComputeSignalRecordID(sig.ID, string(mode)),
		Mode:        mode,
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Entry:       sig.EntryPrice,
		Targets:     append([]float64(nil), sig.Targets...),
		Stop:        sig.StopLoss,
		Outcome:     r.Outcome,
		ImpactScore: ImpactScore(sig, r.Outcome, r.Resolution, impact),
		Confidence:  sig.Confidence,
		Executed:    executed,
		StrategyID:  sig.StrategyID,
		Timestamp:   sig.CreatedAt,
	}
	if sig.MLScore != nil {
		v := *sig.MLScore
		rec.MLScore = &v
	}
	return rec
}

// Rollup aggregates the records of (mode, symbol).
func (t *Tracker) Rollup(ctx context.Context, mode domain.Mode, symbol string) (*Rollup, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	records, err := t.store.GetByModeSymbol(ctx, mode, symbol)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s records: %w", mode, symbol, err)
	}
	r := computeRollup(mode, symbol, records)
	return &r, nil
}

// Summary aggregates every record of mode, overall and per symbol (symbol ASC).
func (t *Tracker) Summary(ctx context.Context, mode domain.Mode) (*Summary, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	records, err := t.store.GetByMode(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("load %s records: %w", mode, err)
	}

	s := &Summary{
		Overall: computeRollup(mode, "", records),
		Symbols: []Rollup{},
	}

	// Records arrive ordered by symbol
	for start := 0; start < len(records); {
		end := start
		for end < len(records) && records[end].Symbol == records[start].Symbol {
			end++
		}
		s.Symbols = append(s.Symbols, computeRollup(mode, records[start].Symbol, records[start:end]))
		start = end
	}
	return s, nil
}

func computeRollup(mode domain.Mode, symbol string, records []*domain.SignalRecord) Rollup {
	r := Rollup{
		Mode:     mode,
		Symbol:   symbol,
		Total:    len(records),
		Outcomes: make(map[domain.Outcome]int, len(domain.AllOutcomes)),
	}
	for _, o := range domain.AllOutcomes {
		r.Outcomes[o] = 0
	}
	if len(records) == 0 {
		return r
	}

	impact := 0.0
	for _, rec := range records {
		r.Outcomes[rec.Outcome]++
		if rec.Outcome.IsWin() {
			r.Wins++
		}
		impact += rec.ImpactScore
	}

	r.WinRate = roundTo(float64(r.Wins)/float64(r.Total)*100, 2)
	r.AvgImpactScore = roundTo(impact/float64(r.Total), ImpactPrecision)
	return r
}

func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return round(v, places)
}
