package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"signal-lab/internal/domain"
)

// Registry errors
var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrDuplicateStrategy = errors.New("strategy already registered")
)

// Strategy ids
const (
	AlphaID = "alpha"
	BullID  = "bull"
	MLID    = "ml"
	HookID  = "hook"
)

// Constructor builds a strategy from the engine configuration.
type Constructor func(cfg domain.EngineConfig) (Strategy, error)

// Registry maps strategy ids to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// NewDefaultRegistry creates a registry holding the four shipped variants.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister(AlphaID, func(cfg domain.EngineConfig) (Strategy, error) {
		return NewAlphaStrategy(cfg), nil
	})
	r.mustRegister(BullID, func(cfg domain.EngineConfig) (Strategy, error) {
		return NewBullStrategy(cfg), nil
	})
	r.mustRegister(MLID, func(cfg domain.EngineConfig) (Strategy, error) {
		return NewMLStrategy(cfg, NewSeededSentiment(cfg.Seed)), nil
	})
	r.mustRegister(HookID, func(cfg domain.EngineConfig) (Strategy, error) {
		return NewHookStrategy(cfg), nil
	})
	return r
}

// Default is the registry used by FromConfig.
var Default = NewDefaultRegistry()

// Register adds a constructor under id.
func (r *Registry) Register(id string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ctors[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, id)
	}
	r.ctors[id] = ctor
	return nil
}

func (r *Registry) mustRegister(id string, ctor Constructor) {
	if err := r.Register(id, ctor); err != nil {
		panic(err)
	}
}

// New constructs the strategy registered under id.
func (r *Registry) New(id string, cfg domain.EngineConfig) (Strategy, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
	return ctor(cfg)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FromConfig creates the active strategy from the default registry.
func FromConfig(cfg domain.EngineConfig) (Strategy, error) {
	return Default.New(cfg.ActiveStrategy, cfg)
}
