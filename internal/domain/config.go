package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by EngineConfig.Validate.
var ErrInvalidConfig = errors.New("invalid engine config")

// EngineConfig is passed to the simulator and strategies at construction.
type EngineConfig struct {
	ActiveStrategy string         `yaml:"active_strategy" json:"active_strategy"`
	WindowSize     int            `yaml:"window_size" json:"window_size"` // trailing candles per snapshot
	Risk           RiskParams     `yaml:"risk" json:"risk"`
	Leverage       LeverageCaps   `yaml:"leverage" json:"leverage"`
	ExitTarget     int            `yaml:"exit_target" json:"exit_target"` // index of the take-profit level used by the simulator
	Seed           uint64         `yaml:"seed" json:"seed"`               // sentiment source seed
	Thresholds     GateThresholds `yaml:"thresholds" json:"thresholds"`
}

// RiskParams bounds position sizing.
type RiskParams struct {
	PositionFraction    float64 `yaml:"position_fraction" json:"position_fraction"` // 0 = use the signal's fraction
	MaxPositionFraction float64 `yaml:"max_position_fraction" json:"max_position_fraction"`
}

// LeverageCaps bounds leverage applied by the simulator.
type LeverageCaps struct {
	Max int `yaml:"max" json:"max"`
}

// GateThresholds holds the notional volume thresholds shared by strategy gates.
type GateThresholds struct {
	MinVolume   float64 `yaml:"min_volume" json:"min_volume"`     // valid volume
	SpikeVolume float64 `yaml:"spike_volume" json:"spike_volume"` // volume spike
	HighVolume  float64 `yaml:"high_volume" json:"high_volume"`   // confidence bump / model feature
}

// Engine defaults
const (
	DefaultStrategy            = "alpha"
	DefaultWindowSize          = 20
	DefaultMaxPositionFraction = 0.25
	DefaultMaxLeverage         = 20
	DefaultSeed                = 42
)

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ActiveStrategy: DefaultStrategy,
		WindowSize:     DefaultWindowSize,
		Risk: RiskParams{
			MaxPositionFraction: DefaultMaxPositionFraction,
		},
		Leverage: LeverageCaps{Max: DefaultMaxLeverage},
		Seed:     DefaultSeed,
		Thresholds: GateThresholds{
			MinVolume:   100_000,
			SpikeVolume: 150_000,
			HighVolume:  1_000_000,
		},
	}
}

// Validate checks ranges.
func (c EngineConfig) Validate() error {
	if c.ActiveStrategy == "" {
		return fmt.Errorf("%w: active strategy required", ErrInvalidConfig)
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("%w: window size %d < 2", ErrInvalidConfig, c.WindowSize)
	}
	if c.Risk.PositionFraction < 0 || c.Risk.PositionFraction > 1 {
		return fmt.Errorf("%w: position fraction %v", ErrInvalidConfig, c.Risk.PositionFraction)
	}
	if c.Risk.MaxPositionFraction <= 0 || c.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("%w: max position fraction %v", ErrInvalidConfig, c.Risk.MaxPositionFraction)
	}
	if c.Leverage.Max < 1 {
		return fmt.Errorf("%w: leverage cap %d", ErrInvalidConfig, c.Leverage.Max)
	}
	if c.ExitTarget < 0 || c.ExitTarget >= MaxTargets {
		return fmt.Errorf("%w: exit target %d", ErrInvalidConfig, c.ExitTarget)
	}
	return nil
}
