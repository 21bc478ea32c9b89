package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/domain/stock"
)

// StrategyRegistry manages strategy registrations
type StrategyRegistry struct {
	mu                 sync.RWMutex
	pickingPreferences map[string]stock.PickingPreference
	routingStrategies  map[string]stock.RoutingStrategy
	defaults           map[strategy.StrategyType]string
}

// NewStrategyRegistry creates a new strategy registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		pickingPreferences: make(map[string]stock.PickingPreference),
		routingStrategies:  make(map[string]stock.RoutingStrategy),
		defaults:           make(map[strategy.StrategyType]string),
	}
}

// RegisterPickingPreference registers a picking preference
func (r *StrategyRegistry) RegisterPickingPreference(s stock.PickingPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.pickingPreferences[name]; exists {
		return fmt.Errorf("%w: picking preference '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.pickingPreferences[name] = s
	return nil
}

// GetPickingPreference returns a picking preference by name, or the default if name is empty
func (r *StrategyRegistry) GetPickingPreference(name string) (stock.PickingPreference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaults[strategy.StrategyTypePickingPreference]
		if name == "" {
			return nil, fmt.Errorf("%w: no default picking preference set", shared.ErrNotFound)
		}
	}

	s, exists := r.pickingPreferences[name]
	if !exists {
		return nil, fmt.Errorf("%w: picking preference '%s' not found", shared.ErrNotFound, name)
	}
	return s, nil
}

// GetPickingPreferenceOrDefault returns a picking preference by name, or the default if not found
func (r *StrategyRegistry) GetPickingPreferenceOrDefault(name string) stock.PickingPreference {
	s, err := r.GetPickingPreference(name)
	if err != nil {
		s, _ = r.GetPickingPreference("")
	}
	return s
}

// ListPickingPreferences returns all registered picking preference names
func (r *StrategyRegistry) ListPickingPreferences() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pickingPreferences))
	for name := range r.pickingPreferences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterRoutingStrategy registers a routing strategy
func (r *StrategyRegistry) RegisterRoutingStrategy(s stock.RoutingStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.routingStrategies[name]; exists {
		return fmt.Errorf("%w: routing strategy '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.routingStrategies[name] = s
	return nil
}

// GetRoutingStrategy returns a routing strategy by name, or the default if name is empty
func (r *StrategyRegistry) GetRoutingStrategy(name string) (stock.RoutingStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaults[strategy.StrategyTypeRouting]
		if name == "" {
			return nil, fmt.Errorf("%w: no default routing strategy set", shared.ErrNotFound)
		}
	}

	s, exists := r.routingStrategies[name]
	if !exists {
		return nil, fmt.Errorf("%w: routing strategy '%s' not found", shared.ErrNotFound, name)
	}
	return s, nil
}

// GetRoutingStrategyOrDefault returns a routing strategy by name, or the default if not found
func (r *StrategyRegistry) GetRoutingStrategyOrDefault(name string) stock.RoutingStrategy {
	s, err := r.GetRoutingStrategy(name)
	if err != nil {
		s, _ = r.GetRoutingStrategy("")
	}
	return s
}

// ListRoutingStrategies returns all registered routing strategy names
func (r *StrategyRegistry) ListRoutingStrategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routingStrategies))
	for name := range r.routingStrategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a strategy; the current default of its type cannot be removed
func (r *StrategyRegistry) Unregister(strategyType strategy.StrategyType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRegisteredLocked(strategyType, name) {
		return fmt.Errorf("%w: strategy '%s' of type '%s' not found", shared.ErrNotFound, name, strategyType)
	}
	if r.defaults[strategyType] == name {
		return fmt.Errorf("%w: cannot unregister default %s strategy '%s'", shared.ErrInvalidState, strategyType, name)
	}
	switch strategyType {
	case strategy.StrategyTypePickingPreference:
		delete(r.pickingPreferences, name)
	case strategy.StrategyTypeRouting:
		delete(r.routingStrategies, name)
	}
	return nil
}

// SetDefault sets the default strategy for a strategy type
func (r *StrategyRegistry) SetDefault(strategyType strategy.StrategyType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRegisteredLocked(strategyType, name) {
		return fmt.Errorf("%w: strategy '%s' of type '%s' not found", shared.ErrNotFound, name, strategyType)
	}

	r.defaults[strategyType] = name
	return nil
}

// GetDefault returns the default strategy name for a strategy type
func (r *StrategyRegistry) GetDefault(strategyType strategy.StrategyType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[strategyType]
}

// IsRegistered returns true if a strategy with the given name is registered for the type
func (r *StrategyRegistry) IsRegistered(strategyType strategy.StrategyType, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRegisteredLocked(strategyType, name)
}

// isRegisteredLocked checks registration without locking (caller must hold lock)
func (r *StrategyRegistry) isRegisteredLocked(strategyType strategy.StrategyType, name string) bool {
	switch strategyType {
	case strategy.StrategyTypePickingPreference:
		_, exists := r.pickingPreferences[name]
		return exists
	case strategy.StrategyTypeRouting:
		_, exists := r.routingStrategies[name]
		return exists
	default:
		return false
	}
}

// Stats returns registration counts for each strategy type
func (r *StrategyRegistry) Stats() map[strategy.StrategyType]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[strategy.StrategyType]int{
		strategy.StrategyTypePickingPreference: len(r.pickingPreferences),
		strategy.StrategyTypeRouting:           len(r.routingStrategies),
	}
}
