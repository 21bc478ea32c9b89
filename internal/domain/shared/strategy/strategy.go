// Package strategy holds the base contract shared by pluggable stock policies.
// Concrete policy interfaces live next to the domain that consumes them.
package strategy

// StrategyType groups policies that can replace one another
type StrategyType string

const (
	// StrategyTypePickingPreference orders candidate locations for allocation
	StrategyTypePickingPreference StrategyType = "picking_preference"
	// StrategyTypeRouting orders locations along a physical walk
	StrategyTypeRouting StrategyType = "routing"
)

func (t StrategyType) String() string { return string(t) }

// Strategy is a named policy. Names are unique within a type and are what
// configuration refers to.
type Strategy interface {
	Name() string
	Type() StrategyType
	Description() string
}

// BaseStrategy is embedded by concrete policies to satisfy Strategy
type BaseStrategy struct {
	name, description string
	kind              StrategyType
}

func NewBaseStrategy(name string, kind StrategyType, description string) BaseStrategy {
	return BaseStrategy{name: name, kind: kind, description: description}
}

func (s BaseStrategy) Name() string        { return s.name }
func (s BaseStrategy) Type() StrategyType  { return s.kind }
func (s BaseStrategy) Description() string { return s.description }
