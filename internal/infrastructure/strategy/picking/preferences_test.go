package picking

import (
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func candidate(code string, qty int64, priority int, inbound *time.Time) stock.StockCandidate {
	return stock.StockCandidate{
		Location:      stock.AtBinLocation(uuid.New()),
		Quantity:      qty,
		Code:          code,
		Priority:      priority,
		LastInboundAt: inbound,
	}
}

func codes(candidates []stock.StockCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Code
	}
	return out
}

func TestBinPriorityPreference(t *testing.T) {
	s := NewBinPriorityPreference()
	assert.Equal(t, NameBinPriority, s.Name())
	assert.Equal(t, strategy.StrategyTypePickingPreference, s.Type())

	in := []stock.StockCandidate{
		candidate("B10", 1, 0, nil),
		candidate("B2", 1, 0, nil),
		candidate("Z1", 1, 5, nil),
	}
	out := s.Order(in)
	assert.Equal(t, []string{"Z1", "B2", "B10"}, codes(out))
	assert.Equal(t, []string{"B10", "B2", "Z1"}, codes(in), "input must not be reordered")
}

func TestSmallestQuantityFirstPreference(t *testing.T) {
	s := NewSmallestQuantityFirstPreference()
	out := s.Order([]stock.StockCandidate{
		candidate("A", 9, 0, nil),
		candidate("B", 2, 0, nil),
		candidate("C", 5, 1, nil),
	})
	assert.Equal(t, []string{"C", "B", "A"}, codes(out))
}

func TestFIFOPreference(t *testing.T) {
	s := NewFIFOPreference()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(48 * time.Hour)
	out := s.Order([]stock.StockCandidate{
		candidate("A", 1, 0, nil),
		candidate("B", 1, 0, &recent),
		candidate("C", 1, 0, &old),
	})
	assert.Equal(t, []string{"C", "B", "A"}, codes(out))
}
