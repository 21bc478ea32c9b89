package strategy

import (
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/infrastructure/strategy/picking"
	"github.com/erp/stockledger/internal/infrastructure/strategy/routing"
)

// NewRegistryWithDefaults creates a registry with the built-in picking and routing
// strategies. Empty names select bin_priority and bin_position.
func NewRegistryWithDefaults(pickingDefault, routingDefault string) (*StrategyRegistry, error) {
	r := NewStrategyRegistry()

	// Register picking preferences
	binPriority := picking.NewBinPriorityPreference()
	if err := r.RegisterPickingPreference(binPriority); err != nil {
		return nil, err
	}
	if err := r.RegisterPickingPreference(picking.NewSmallestQuantityFirstPreference()); err != nil {
		return nil, err
	}
	if err := r.RegisterPickingPreference(picking.NewFIFOPreference()); err != nil {
		return nil, err
	}

	// Register routing strategies
	binPosition := routing.NewBinPositionStrategy()
	if err := r.RegisterRoutingStrategy(binPosition); err != nil {
		return nil, err
	}
	if err := r.RegisterRoutingStrategy(routing.NewBinCodeStrategy()); err != nil {
		return nil, err
	}

	// Set defaults
	if pickingDefault == "" {
		pickingDefault = binPriority.Name()
	}
	if routingDefault == "" {
		routingDefault = binPosition.Name()
	}
	if err := r.SetDefault(strategy.StrategyTypePickingPreference, pickingDefault); err != nil {
		return nil, err
	}
	if err := r.SetDefault(strategy.StrategyTypeRouting, routingDefault); err != nil {
		return nil, err
	}

	return r, nil
}
