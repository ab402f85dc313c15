package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-lab/internal/domain"
	"signal-lab/internal/indicator"
)

// errorsIs keeps the property test readable.
func errorsIs(err, target error) bool {
	return errors.Is(err, target)
}

func TestDefaultRegistry_IDs(t *testing.T) {
	assert.Equal(t, []string{AlphaID, BullID, HookID, MLID}, Default.IDs())
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := Default.New("martingale", domain.DefaultEngineConfig())
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewDefaultRegistry()
	err := r.Register(AlphaID, func(domain.EngineConfig) (Strategy, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrDuplicateStrategy)
}

type noopStrategy struct{}

func (noopStrategy) ID() string { return "noop" }
func (noopStrategy) Generate(context.Context, string, *indicator.Snapshot) (*domain.Signal, error) {
	return nil, nil
}

func TestRegistry_CustomVariant(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("noop", func(domain.EngineConfig) (Strategy, error) { return noopStrategy{}, nil }))

	s, err := r.New("noop", domain.DefaultEngineConfig())
	require.NoError(t, err)
	assert.Equal(t, "noop", s.ID())
}

func TestFromConfig(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	for _, id := range []string{AlphaID, BullID, MLID, HookID} {
		cfg.ActiveStrategy = id
		s, err := FromConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, id, s.ID())
	}
}
