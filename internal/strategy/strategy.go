// Package strategy turns market snapshots into trade signals.
package strategy

import (
	"context"

	"signal-lab/internal/domain"
	"signal-lab/internal/indicator"
)

// Re-exported per-step errors.
var (
	ErrInvalidMarketData = indicator.ErrInvalidMarketData
	ErrInsufficientData  = indicator.ErrInsufficientData
	ErrInvalidSignal     = domain.ErrInvalidSignal
)

// Strategy produces at most one signal per market snapshot.
type Strategy interface {
	// Generate returns a validated signal, or nil when the variant has no opinion.
	// Fails with ErrInvalidMarketData for non-positive or NaN prices and with
	// ErrInvalidSignal when the signal it would emit breaks a price invariant.
	Generate(ctx context.Context, symbol string, snap *indicator.Snapshot) (*domain.Signal, error)

	// ID returns the registry key of the variant.
	ID() string
}

// GenerateSignal builds a snapshot from window and asks s for a signal.
// The snapshot is returned even when no signal is produced.
func GenerateSignal(ctx context.Context, s Strategy, symbol string, window []domain.Candle) (*domain.Signal, *indicator.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	snap, err := indicator.BuildSnapshot(symbol, window)
	if err != nil {
		return nil, nil, err
	}
	sig, err := s.Generate(ctx, symbol, snap)
	if err != nil {
		return nil, snap, err
	}
	return sig, snap, nil
}
